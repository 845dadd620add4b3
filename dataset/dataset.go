// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataset

import (
	"github.com/gorse-io/affinity/base/log"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Dataset is the encoded training partition. Ratings are kept in coordinate
// format; feedback lists hold positions into the coordinate arrays.
type Dataset struct {
	userIndex    *Index
	itemIndex    *Index
	users        []int32
	items        []int32
	ratings      []float32
	userFeedback [][]int32
	itemFeedback [][]int32
	skipped      int
}

// NewDataset fits user and item indices on train and freezes them. Records
// without an identity are skipped.
func NewDataset(train []Record) *Dataset {
	d := &Dataset{
		userIndex: NewIndex(),
		itemIndex: NewIndex(),
		users:     make([]int32, 0, len(train)),
		items:     make([]int32, 0, len(train)),
		ratings:   make([]float32, 0, len(train)),
	}
	for _, record := range train {
		userId, err := record.EffectiveUser()
		if err != nil {
			d.skipped++
			continue
		}
		userIndex := d.userIndex.Add(userId)
		itemIndex := d.itemIndex.Add(FormatItemId(record.ItemId))
		if int(userIndex) == len(d.userFeedback) {
			d.userFeedback = append(d.userFeedback, nil)
		}
		if int(itemIndex) == len(d.itemFeedback) {
			d.itemFeedback = append(d.itemFeedback, nil)
		}
		pos := int32(len(d.ratings))
		d.users = append(d.users, userIndex)
		d.items = append(d.items, itemIndex)
		d.ratings = append(d.ratings, record.Rating)
		d.userFeedback[userIndex] = append(d.userFeedback[userIndex], pos)
		d.itemFeedback[itemIndex] = append(d.itemFeedback[itemIndex], pos)
	}
	d.userIndex.Freeze()
	d.itemIndex.Freeze()
	if d.skipped > 0 {
		log.Logger().Warn("skip records without identity",
			zap.Int("skipped", d.skipped), zap.Int("total", len(train)))
	}
	return d
}

func (d *Dataset) UserIndex() *Index {
	return d.userIndex
}

func (d *Dataset) ItemIndex() *Index {
	return d.itemIndex
}

// Count returns the number of encoded ratings.
func (d *Dataset) Count() int {
	return len(d.ratings)
}

func (d *Dataset) CountUsers() int {
	return int(d.userIndex.Count())
}

func (d *Dataset) CountItems() int {
	return int(d.itemIndex.Count())
}

// Skipped returns the number of records dropped for missing identity.
func (d *Dataset) Skipped() int {
	return d.skipped
}

func (d *Dataset) Users() []int32 {
	return d.users
}

func (d *Dataset) Items() []int32 {
	return d.items
}

func (d *Dataset) Ratings() []float32 {
	return d.ratings
}

// UserFeedback returns, for every user, positions of its ratings.
func (d *Dataset) UserFeedback() [][]int32 {
	return d.userFeedback
}

// ItemFeedback returns, for every item, positions of its ratings.
func (d *Dataset) ItemFeedback() [][]int32 {
	return d.itemFeedback
}

// GlobalMean returns the mean rating, or zero for an empty dataset.
func (d *Dataset) GlobalMean() float32 {
	if len(d.ratings) == 0 {
		return 0
	}
	var sum float64
	for _, r := range d.ratings {
		sum += float64(r)
	}
	return float32(sum / float64(len(d.ratings)))
}

// Split partitions records in order: the first floor(N*trainFraction) records
// are for training and the rest for testing.
func Split(records []Record, trainFraction float64) (train, test []Record, err error) {
	if !(trainFraction > 0 && trainFraction < 1) {
		return nil, nil, errors.NotValidf("train fraction %v", trainFraction)
	}
	n := int(float64(len(records)) * trainFraction)
	train = records[:n:n]
	test = records[n:len(records):len(records)]
	return train, test, nil
}
