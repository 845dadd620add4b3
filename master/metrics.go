// Copyright 2021 gorse Project Authors
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

package master

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelStep = "step"
	LabelData = "data"
	LabelAxis = "axis"
	LabelUser = "user"
	LabelItem = "item"
)

var (
	LoadDatasetTotalSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "affinity",
		Subsystem: "master",
		Name:      "load_dataset_total_seconds",
	})
	TrainStepSecondsVec = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "affinity",
		Subsystem: "master",
		Name:      "train_step_seconds",
	}, []string{LabelStep})
	DatasetRecordsVec = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "affinity",
		Subsystem: "master",
		Name:      "dataset_records",
	}, []string{LabelData})
	ModelRMSEVec = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "affinity",
		Subsystem: "master",
		Name:      "model_rmse",
	}, []string{LabelData})
	ModelRSquaredVec = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "affinity",
		Subsystem: "master",
		Name:      "model_r_squared",
	}, []string{LabelData})
	ExcludedTestRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "affinity",
		Subsystem: "master",
		Name:      "excluded_test_records",
	})
	SparseEntitiesVec = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "affinity",
		Subsystem: "master",
		Name:      "sparse_entities",
	}, []string{LabelAxis})
	TrainedModelsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "affinity",
		Subsystem: "master",
		Name:      "trained_models_total",
	})
)
