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
	"iter"
	"math"

	"github.com/chewxy/math32"
	"github.com/gorse-io/affinity/common/parallel"
	"github.com/gorse-io/affinity/dataset"
	"github.com/juju/errors"
	"go.uber.org/atomic"
)

// DefaultThreshold is the score above which an item is recommended.
const DefaultThreshold float32 = 3.5

// Predictor estimates the score of a user for an item. *mf.Model implements it.
type Predictor interface {
	Score(userId, itemId string) (float32, error)
}

// Prediction of a record. A NaN score means the record could not be scored.
type Prediction struct {
	UserId string
	ItemId int64
	Score  float32
}

func (p Prediction) Scorable() bool {
	return !math32.IsNaN(p.Score)
}

// PredictOne scores a record and reports why it could not be scored.
func PredictOne(p Predictor, record dataset.Record) (Prediction, error) {
	prediction := Prediction{
		UserId: record.UserId,
		ItemId: record.ItemId,
		Score:  math32.NaN(),
	}
	userId, err := record.EffectiveUser()
	if err != nil {
		return prediction, errors.Trace(err)
	}
	prediction.UserId = userId
	score, err := p.Score(userId, dataset.FormatItemId(record.ItemId))
	if err != nil {
		return prediction, errors.Trace(err)
	}
	prediction.Score = score
	return prediction, nil
}

// Predict scores a record. Identifier problems result in a NaN score.
func Predict(p Predictor, record dataset.Record) Prediction {
	prediction, err := PredictOne(p, record)
	PredictionsTotal.Inc()
	if err != nil {
		UnscorablePredictionsTotal.Inc()
	}
	return prediction
}

// PredictBatch lazily scores records in order. The returned sequence can be
// consumed once; later iterations yield nothing.
func PredictBatch(p Predictor, records iter.Seq[dataset.Record]) iter.Seq[Prediction] {
	var consumed atomic.Bool
	return func(yield func(Prediction) bool) {
		if consumed.Swap(true) {
			return
		}
		for record := range records {
			if !yield(Predict(p, record)) {
				return
			}
		}
	}
}

// BatchPredict scores records with jobs workers. Predictions keep the order of records.
func BatchPredict(ctx context.Context, p Predictor, records []dataset.Record, jobs int) ([]Prediction, error) {
	predictions := make([]Prediction, len(records))
	err := parallel.Parallel(ctx, len(records), jobs, func(_, i int) error {
		predictions[i] = Predict(p, records[i])
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return predictions, nil
}

// IsRecommended rounds score to one decimal, halves to even after widening
// to float64, and compares it strictly with threshold.
func IsRecommended(score, threshold float32) bool {
	return math.RoundToEven(float64(score)*10)/10 > float64(threshold)
}
