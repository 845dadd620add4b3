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

package logics

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/affinity/dataset"
	"github.com/samber/lo"
)

const DefaultTopK = 20

type Recommendation struct {
	ItemId int64
	Score  float32
}

// RatedItems returns items the user (or session) interacted with in records.
func RatedItems(userId string, records []dataset.Record) mapset.Set[int64] {
	rated := mapset.NewThreadUnsafeSet[int64]()
	for _, record := range records {
		if id, err := record.EffectiveUser(); err == nil && id == userId {
			rated.Add(record.ItemId)
		}
	}
	return rated
}

// TopK ranks items of pool for a user. Every pool entry whose item is not
// excluded is scored once for the user, so items appearing several times in
// pool are ranked by their mean score.
func TopK(p Predictor, userId string, exclude mapset.Set[int64], pool []dataset.Record, k int) []Recommendation {
	predictions := make([]Prediction, 0, len(pool))
	for _, record := range pool {
		if exclude != nil && exclude.Contains(record.ItemId) {
			continue
		}
		predictions = append(predictions, Predict(p, dataset.Record{UserId: userId, ItemId: record.ItemId}))
	}
	return Aggregate(predictions, nil, k)
}

// Aggregate drops unscorable predictions and excluded items, averages scores
// per item and returns at most k items by descending mean. Ties keep the order
// in which items first appear. A non-positive k means DefaultTopK.
func Aggregate(predictions []Prediction, exclude mapset.Set[int64], k int) []Recommendation {
	if k <= 0 {
		k = DefaultTopK
	}
	var (
		order  []int64
		sums   = make(map[int64]float64)
		counts = make(map[int64]int)
	)
	for _, prediction := range predictions {
		if !prediction.Scorable() {
			continue
		}
		if exclude != nil && exclude.Contains(prediction.ItemId) {
			continue
		}
		if _, exist := counts[prediction.ItemId]; !exist {
			order = append(order, prediction.ItemId)
		}
		sums[prediction.ItemId] += float64(prediction.Score)
		counts[prediction.ItemId]++
	}
	recommendations := lo.Map(order, func(itemId int64, _ int) Recommendation {
		return Recommendation{
			ItemId: itemId,
			Score:  float32(sums[itemId] / float64(counts[itemId])),
		}
	})
	sort.SliceStable(recommendations, func(i, j int) bool {
		return recommendations[i].Score > recommendations[j].Score
	})
	if len(recommendations) > k {
		recommendations = recommendations[:k]
	}
	return recommendations
}
