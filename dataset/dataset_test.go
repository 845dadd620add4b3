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
	"testing"

	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

func TestEffectiveUser(t *testing.T) {
	userId, err := Record{UserId: "u1", SessionId: "s1"}.EffectiveUser()
	assert.NoError(t, err)
	assert.Equal(t, "u1", userId)

	userId, err = Record{SessionId: "s1"}.EffectiveUser()
	assert.NoError(t, err)
	assert.Equal(t, "s1", userId)

	_, err = Record{ItemId: 1}.EffectiveUser()
	assert.ErrorIs(t, err, ErrMissingIdentity)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestFormatItemId(t *testing.T) {
	assert.Equal(t, "42", FormatItemId(42))
	assert.Equal(t, "-7", FormatItemId(-7))
}

func TestNewDataset(t *testing.T) {
	train := []Record{
		{UserId: "u1", ItemId: 10, Rating: 5},
		{UserId: "u2", ItemId: 20, Rating: 3},
		{SessionId: "s1", ItemId: 10, Rating: 1},
		{ItemId: 30, Rating: 4},
		{UserId: "u1", ItemId: 20, Rating: 3},
	}
	d := NewDataset(train)
	assert.Equal(t, 4, d.Count())
	assert.Equal(t, 1, d.Skipped())
	assert.Equal(t, 3, d.CountUsers())
	assert.Equal(t, 2, d.CountItems())
	assert.True(t, d.UserIndex().Frozen())
	assert.True(t, d.ItemIndex().Frozen())
	assert.Equal(t, []string{"u1", "u2", "s1"}, d.UserIndex().Names())
	assert.Equal(t, []string{"10", "20"}, d.ItemIndex().Names())
	assert.Equal(t, []int32{0, 1, 2, 0}, d.Users())
	assert.Equal(t, []int32{0, 1, 0, 1}, d.Items())
	assert.Equal(t, []float32{5, 3, 1, 3}, d.Ratings())
	assert.Equal(t, [][]int32{{0, 3}, {1}, {2}}, d.UserFeedback())
	assert.Equal(t, [][]int32{{0, 2}, {1, 3}}, d.ItemFeedback())
	assert.Equal(t, float32(3), d.GlobalMean())

	// item 30 only appears in a skipped record
	_, err := d.ItemIndex().Encode("30")
	assert.ErrorIs(t, err, ErrUnknownIdentifier)
}

func TestNewDatasetEmpty(t *testing.T) {
	d := NewDataset(nil)
	assert.Zero(t, d.Count())
	assert.Zero(t, d.CountUsers())
	assert.Zero(t, d.GlobalMean())
}

func TestSplit(t *testing.T) {
	records := lo.Times(100, func(i int) Record {
		return Record{UserId: FormatItemId(int64(i % 10)), ItemId: int64(i)}
	})
	train, test, err := Split(records, 0.7)
	assert.NoError(t, err)
	assert.Len(t, train, 70)
	assert.Len(t, test, 30)
	assert.Equal(t, records, append(append([]Record{}, train...), test...))

	// appending to train must not overwrite test
	train = append(train, Record{UserId: "x"})
	assert.Equal(t, records[70], test[0])

	train, test, err = Split(records[:7], 0.5)
	assert.NoError(t, err)
	assert.Len(t, train, 3)
	assert.Len(t, test, 4)

	train, test, err = Split(nil, 0.7)
	assert.NoError(t, err)
	assert.Empty(t, train)
	assert.Empty(t, test)

	for _, fraction := range []float64{0, 1, -0.5, 1.5} {
		_, _, err = Split(records, fraction)
		assert.True(t, errors.Is(err, errors.NotValid), fraction)
	}
}
