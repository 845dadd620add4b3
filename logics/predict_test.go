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
	"slices"
	"testing"

	"github.com/chewxy/math32"
	"github.com/gorse-io/affinity/dataset"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

// mapPredictor scores known (user, item) pairs and fails on the rest.
type mapPredictor map[string]map[string]float32

func (m mapPredictor) Score(userId, itemId string) (float32, error) {
	items, ok := m[userId]
	if !ok {
		return math32.NaN(), errors.Annotatef(dataset.ErrUnknownIdentifier, "user %q", userId)
	}
	score, ok := items[itemId]
	if !ok {
		return math32.NaN(), errors.Annotatef(dataset.ErrUnknownIdentifier, "item %q", itemId)
	}
	return score, nil
}

func newMapPredictor() mapPredictor {
	return mapPredictor{
		"u1": {"10": 4.5, "20": 3.5},
		"s1": {"10": 1},
	}
}

func TestPredictOne(t *testing.T) {
	p := newMapPredictor()
	prediction, err := PredictOne(p, dataset.Record{UserId: "u1", ItemId: 10})
	assert.NoError(t, err)
	assert.Equal(t, Prediction{UserId: "u1", ItemId: 10, Score: 4.5}, prediction)
	assert.True(t, prediction.Scorable())

	prediction, err = PredictOne(p, dataset.Record{SessionId: "s1", ItemId: 10})
	assert.NoError(t, err)
	assert.Equal(t, "s1", prediction.UserId)
	assert.Equal(t, float32(1), prediction.Score)

	prediction, err = PredictOne(p, dataset.Record{ItemId: 10})
	assert.ErrorIs(t, err, dataset.ErrMissingIdentity)
	assert.False(t, prediction.Scorable())

	_, err = PredictOne(p, dataset.Record{UserId: "u9", ItemId: 10})
	assert.ErrorIs(t, err, dataset.ErrUnknownIdentifier)
	_, err = PredictOne(p, dataset.Record{UserId: "u1", ItemId: 30})
	assert.ErrorIs(t, err, dataset.ErrUnknownIdentifier)
}

func TestPredict(t *testing.T) {
	p := newMapPredictor()
	before := testutil.ToFloat64(UnscorablePredictionsTotal)
	assert.Equal(t, float32(3.5), Predict(p, dataset.Record{UserId: "u1", ItemId: 20}).Score)
	assert.True(t, math32.IsNaN(Predict(p, dataset.Record{UserId: "u9", ItemId: 20}).Score))
	assert.True(t, math32.IsNaN(Predict(p, dataset.Record{ItemId: 20}).Score))
	assert.Equal(t, before+2, testutil.ToFloat64(UnscorablePredictionsTotal))
}

func TestPredictBatch(t *testing.T) {
	p := newMapPredictor()
	records := []dataset.Record{
		{UserId: "u1", ItemId: 10},
		{UserId: "u9", ItemId: 10},
		{UserId: "u1", ItemId: 20},
	}
	predictions := PredictBatch(p, slices.Values(records))
	result := slices.Collect(predictions)
	assert.Len(t, result, 3)
	assert.Equal(t, []int64{10, 10, 20}, lo.Map(result, func(p Prediction, _ int) int64 { return p.ItemId }))
	assert.Equal(t, float32(4.5), result[0].Score)
	assert.False(t, result[1].Scorable())
	assert.Equal(t, float32(3.5), result[2].Score)
	// single pass
	assert.Empty(t, slices.Collect(predictions))

	// early stop
	count := 0
	for range PredictBatch(p, slices.Values(records)) {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestBatchPredict(t *testing.T) {
	p := newMapPredictor()
	records := lo.Times(1000, func(i int) dataset.Record {
		return dataset.Record{UserId: "u1", ItemId: int64(10 * (i%3 + 1))}
	})
	predictions, err := BatchPredict(context.Background(), p, records, 4)
	assert.NoError(t, err)
	assert.Len(t, predictions, len(records))
	for i, prediction := range predictions {
		assert.Equal(t, records[i].ItemId, prediction.ItemId)
		assert.Equal(t, records[i].ItemId != 30, prediction.Scorable())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = BatchPredict(ctx, p, records, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRecommended(t *testing.T) {
	assert.True(t, IsRecommended(3.6, DefaultThreshold))
	assert.False(t, IsRecommended(3.5, DefaultThreshold))
	assert.False(t, IsRecommended(3.54, DefaultThreshold))
	assert.True(t, IsRecommended(3.56, DefaultThreshold))
	// 3.55 in float32 is slightly below 3.55
	assert.False(t, IsRecommended(3.55, DefaultThreshold))
	assert.True(t, IsRecommended(3.65, DefaultThreshold))
	assert.False(t, IsRecommended(math32.NaN(), DefaultThreshold))
	assert.True(t, IsRecommended(1.1, 1))
	// exact halves round to even
	assert.False(t, IsRecommended(0.25, 0.2))
	assert.True(t, IsRecommended(0.75, 0.7))
}
