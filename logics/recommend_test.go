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
	"context"
	"fmt"
	"testing"

	"github.com/chewxy/math32"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/affinity/dataset"
	"github.com/gorse-io/affinity/model"
	"github.com/gorse-io/affinity/model/mf"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

// sequencePredictor returns scores in call order.
type sequencePredictor struct {
	scores []float32
	calls  int
}

func (p *sequencePredictor) Score(_, _ string) (float32, error) {
	score := p.scores[p.calls]
	p.calls++
	if math32.IsNaN(score) {
		return score, dataset.ErrUnknownIdentifier
	}
	return score, nil
}

func TestTopK(t *testing.T) {
	p := &sequencePredictor{scores: []float32{4, 2, math32.NaN(), 5}}
	pool := []dataset.Record{{ItemId: 10}, {ItemId: 10}, {ItemId: 20}, {ItemId: 30}}
	recommendations := TopK(p, "u1", nil, pool, 10)
	assert.Equal(t, []Recommendation{{ItemId: 30, Score: 5}, {ItemId: 10, Score: 3}}, recommendations)
	assert.Equal(t, 4, p.calls)
}

func TestTopK_Exclude(t *testing.T) {
	p := &sequencePredictor{scores: []float32{4, 2, 5}}
	pool := []dataset.Record{{ItemId: 10}, {ItemId: 10}, {ItemId: 20}, {ItemId: 30}}
	recommendations := TopK(p, "u1", mapset.NewSet[int64](20), pool, 0)
	assert.Equal(t, []Recommendation{{ItemId: 30, Score: 5}, {ItemId: 10, Score: 3}}, recommendations)
	assert.Equal(t, 3, p.calls)
}

func TestTopK_MissingIdentity(t *testing.T) {
	p := newMapPredictor()
	assert.Empty(t, TopK(p, "", nil, []dataset.Record{{ItemId: 10}}, 5))
	assert.Empty(t, TopK(p, "u1", nil, nil, 5))
}

func TestAggregate(t *testing.T) {
	predictions := []Prediction{
		{ItemId: 1, Score: 2},
		{ItemId: 2, Score: 3},
		{ItemId: 3, Score: 3},
		{ItemId: 4, Score: math32.NaN()},
		{ItemId: 1, Score: 4},
		{ItemId: 5, Score: 9},
	}
	// ties keep first occurrence
	assert.Equal(t, []Recommendation{
		{ItemId: 5, Score: 9},
		{ItemId: 1, Score: 3},
		{ItemId: 2, Score: 3},
		{ItemId: 3, Score: 3},
	}, Aggregate(predictions, nil, 10))
	assert.Equal(t, []Recommendation{
		{ItemId: 1, Score: 3},
		{ItemId: 2, Score: 3},
	}, Aggregate(predictions, mapset.NewSet[int64](5, 3), 2))
	assert.Empty(t, Aggregate(nil, nil, 3))

	many := lo.Times(30, func(i int) Prediction { return Prediction{ItemId: int64(i), Score: float32(i)} })
	assert.Len(t, Aggregate(many, nil, 0), DefaultTopK)
}

func TestRatedItems(t *testing.T) {
	records := []dataset.Record{
		{UserId: "u1", ItemId: 1},
		{UserId: "u2", ItemId: 2},
		{SessionId: "u1", ItemId: 3},
		{UserId: "u1", ItemId: 1},
		{ItemId: 4},
	}
	assert.ElementsMatch(t, []int64{1, 3}, RatedItems("u1", records).ToSlice())
	assert.Zero(t, RatedItems("u9", records).Cardinality())
}

func TestRecommendWithModel(t *testing.T) {
	var records []dataset.Record
	for a := 0; a < 10; a++ {
		for b := 0; b < 10; b++ {
			records = append(records, dataset.Record{
				UserId: fmt.Sprintf("u%d", b),
				ItemId: int64((a + b) % 10),
				Rating: float32((a+b)%5 + 1),
			})
		}
	}
	train, test, err := dataset.Split(records, 0.7)
	assert.NoError(t, err)
	m, err := mf.NewSVD(model.Params{model.NFactors: 4, model.NEpochs: 10}).
		Fit(context.Background(), dataset.NewDataset(train), nil)
	assert.NoError(t, err)

	// held-out records are scorable
	predictions, err := BatchPredict(context.Background(), m, test, 2)
	assert.NoError(t, err)
	for _, prediction := range predictions {
		assert.True(t, prediction.Scorable())
	}

	rated := RatedItems("u0", train)
	recommendations := TopK(m, "u0", rated, train, 5)
	assert.NotEmpty(t, recommendations)
	assert.LessOrEqual(t, len(recommendations), 5)
	for i, recommendation := range recommendations {
		assert.False(t, rated.Contains(recommendation.ItemId))
		if i > 0 {
			assert.GreaterOrEqual(t, recommendations[i-1].Score, recommendation.Score)
		}
	}
}
