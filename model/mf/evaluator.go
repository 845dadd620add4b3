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

package mf

import (
	"context"
	"math"

	"github.com/chewxy/math32"
	"github.com/gorse-io/affinity/base/log"
	"github.com/gorse-io/affinity/common/parallel"
	"github.com/gorse-io/affinity/dataset"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

var EvaluationExcludedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "affinity",
	Subsystem: "model",
	Name:      "evaluation_excluded_records_total",
})

// Label selects the ground truth of a record during evaluation.
type Label int

const (
	// LabelItemId compares predictions against the numeric item id.
	LabelItemId Label = iota
	// LabelRating compares predictions against the observed rating.
	LabelRating
)

func ParseLabel(s string) (Label, error) {
	switch s {
	case "", "item_id":
		return LabelItemId, nil
	case "rating":
		return LabelRating, nil
	}
	return 0, errors.NotValidf("evaluation label %q", s)
}

func (l Label) String() string {
	switch l {
	case LabelItemId:
		return "item_id"
	case LabelRating:
		return "rating"
	}
	return "unknown"
}

func (l Label) truth(record dataset.Record) float64 {
	if l == LabelRating {
		return float64(record.Rating)
	}
	return float64(record.ItemId)
}

// Metrics of a model on a partition. Metrics are NaN when no record could be scored.
type Metrics struct {
	RootMeanSquaredError float64
	RSquared             float64
	Count                int
	Excluded             int
}

// Evaluate scores every record of testSet. Records whose user or item is
// unknown to the model, or which have no identity, are excluded and counted.
func Evaluate(ctx context.Context, m *Model, testSet []dataset.Record, label Label, jobs int) (Metrics, error) {
	predictions := make([]float32, len(testSet))
	err := parallel.Parallel(ctx, len(testSet), jobs, func(_, i int) error {
		record := testSet[i]
		userId, err := record.EffectiveUser()
		if err != nil {
			predictions[i] = math32.NaN()
			return nil
		}
		predictions[i] = m.Predict(userId, dataset.FormatItemId(record.ItemId))
		return nil
	})
	if err != nil {
		return Metrics{}, errors.Trace(err)
	}

	var (
		estimates = make([]float64, 0, len(testSet))
		values    = make([]float64, 0, len(testSet))
		sum       float64
	)
	for i, prediction := range predictions {
		if math32.IsNaN(prediction) {
			continue
		}
		truth := label.truth(testSet[i])
		estimates = append(estimates, float64(prediction))
		values = append(values, truth)
		sum += (float64(prediction) - truth) * (float64(prediction) - truth)
	}
	metrics := Metrics{
		Count:    len(estimates),
		Excluded: len(testSet) - len(estimates),
	}
	if metrics.Excluded > 0 {
		EvaluationExcludedTotal.Add(float64(metrics.Excluded))
		log.Logger().Warn("exclude unscorable records from evaluation",
			zap.Int("excluded", metrics.Excluded), zap.Int("total", len(testSet)))
	}
	if metrics.Count == 0 {
		metrics.RootMeanSquaredError = math.NaN()
		metrics.RSquared = math.NaN()
		return metrics, nil
	}
	metrics.RootMeanSquaredError = math.Sqrt(sum / float64(metrics.Count))
	metrics.RSquared = stat.RSquaredFrom(estimates, values, nil)
	return metrics, nil
}
