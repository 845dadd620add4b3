// Copyright 2020 gorse Project Authors
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
	"context"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/affinity/base/log"
	"github.com/gorse-io/affinity/base/progress"
	"github.com/gorse-io/affinity/config"
	"github.com/gorse-io/affinity/dataset"
	"github.com/gorse-io/affinity/model/mf"
	"github.com/gorse-io/affinity/storage/blob"
	"github.com/gorse-io/affinity/storage/data"
	"github.com/gorse-io/affinity/storage/meta"
	"github.com/juju/errors"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

const (
	batchSize = 10000
	// minRatings is the number of training ratings below which a user or an
	// item is reported as sparse.
	minRatings = 2
)

// Master trains, evaluates and registers models.
type Master struct {
	Config     *config.Config
	DataClient data.Database
	MetaClient meta.Database
	BlobStore  blob.Store

	tracer *progress.Tracer
}

// TrainResult is the outcome of a training run.
type TrainResult struct {
	Info         *meta.ModelInfo
	Model        *mf.Model
	TrainMetrics mf.Metrics
	TestMetrics  mf.Metrics
}

// NewMaster creates a master. Stores are connected by Open.
func NewMaster(cfg *config.Config) *Master {
	otel.SetErrorHandler(log.GetErrorHandler())
	return &Master{
		Config: cfg,
		tracer: progress.NewTracer("master"),
	}
}

// Open connects the record store, the model registry and the blob store.
func (m *Master) Open() error {
	var err error
	m.DataClient, err = data.Open(m.Config.Database.DataStore, m.Config.Database.TablePrefix)
	if err != nil {
		log.Logger().Error("failed to connect data database", zap.Error(err),
			zap.String("database", log.RedactURL(m.Config.Database.DataStore)))
		return errors.Trace(err)
	}
	if err = m.DataClient.Init(); err != nil {
		return errors.Annotate(err, "failed to init data database")
	}
	m.MetaClient, err = meta.Open(m.Config.Database.MetaStore)
	if err != nil {
		log.Logger().Error("failed to connect meta database", zap.Error(err),
			zap.String("database", log.RedactURL(m.Config.Database.MetaStore)))
		return errors.Trace(err)
	}
	if err = m.MetaClient.Init(); err != nil {
		return errors.Annotate(err, "failed to init meta database")
	}
	m.BlobStore, err = blob.Open(m.Config.Blob)
	if err != nil {
		return errors.Annotate(err, "failed to open blob store")
	}
	return nil
}

func (m *Master) Close() error {
	var errs []error
	if m.DataClient != nil {
		errs = append(errs, m.DataClient.Close())
	}
	if m.MetaClient != nil {
		errs = append(errs, m.MetaClient.Close())
	}
	for _, err := range errs {
		if err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// Progress of running and finished jobs.
func (m *Master) Progress() []progress.Progress {
	return m.tracer.List()
}

// LoadRecords reads all records from the record store in insertion order.
func (m *Master) LoadRecords(ctx context.Context) ([]dataset.Record, error) {
	startTime := time.Now()
	total, err := m.DataClient.CountFeedback(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	records := make([]dataset.Record, 0, total)
	feedbackChan, errChan := m.DataClient.GetFeedbackStream(ctx, batchSize)
	for batch := range feedbackChan {
		records = append(records, batch...)
	}
	if err := <-errChan; err != nil {
		return nil, errors.Trace(err)
	}
	LoadDatasetTotalSeconds.Set(time.Since(startTime).Seconds())
	log.Logger().Info("load dataset complete",
		zap.Int("n_records", len(records)),
		zap.Duration("used_time", time.Since(startTime)))
	return records, nil
}

// Train loads records, splits them, fits a model on the leading part,
// evaluates it on the rest and registers it.
func (m *Master) Train(ctx context.Context) (result *TrainResult, err error) {
	ctx, span := m.tracer.Start(ctx, "Train", 4)
	defer func() {
		if err != nil {
			span.Fail(err)
		} else {
			span.End()
		}
	}()

	// load dataset
	records, err := m.LoadRecords(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	span.Add(1)

	// split dataset
	train, test, err := dataset.Split(records, m.Config.Training.TrainFraction)
	if err != nil {
		return nil, errors.Trace(err)
	}
	trainSet := dataset.NewDataset(train)
	DatasetRecordsVec.WithLabelValues("train").Set(float64(len(train)))
	DatasetRecordsVec.WithLabelValues("test").Set(float64(len(test)))
	sparseUsers := countSparse(trainSet.UserIndex(), minRatings)
	sparseItems := countSparse(trainSet.ItemIndex(), minRatings)
	SparseEntitiesVec.WithLabelValues(LabelUser).Set(float64(sparseUsers))
	SparseEntitiesVec.WithLabelValues(LabelItem).Set(float64(sparseItems))
	if sparseUsers > 0 || sparseItems > 0 {
		log.Logger().Warn("users or items with too few ratings",
			zap.Int("min_ratings", minRatings),
			zap.Int("n_sparse_users", sparseUsers),
			zap.Int("n_sparse_items", sparseItems))
	}

	// fit model
	startTime := time.Now()
	trainer, err := mf.NewTrainer(m.Config.Training.Model, m.Config.TrainingParams())
	if err != nil {
		return nil, errors.Trace(err)
	}
	log.Logger().Info("fit model",
		zap.String("model", m.Config.Training.Model),
		zap.Int("n_train", trainSet.Count()),
		zap.Int("n_users", trainSet.CountUsers()),
		zap.Int("n_items", trainSet.CountItems()),
		zap.String("params", trainer.GetParams().ToString()))
	model, err := trainer.Fit(ctx, trainSet, m.Config.FitConfig())
	if err != nil {
		return nil, errors.Trace(err)
	}
	TrainStepSecondsVec.WithLabelValues("fit").Set(time.Since(startTime).Seconds())
	span.Add(1)

	// evaluate model
	startTime = time.Now()
	label, err := m.Config.EvaluationLabel()
	if err != nil {
		return nil, errors.Trace(err)
	}
	result = &TrainResult{Model: model}
	if result.TestMetrics, err = mf.Evaluate(ctx, model, test, label, m.Config.Evaluation.Jobs); err != nil {
		return nil, errors.Trace(err)
	}
	if result.TrainMetrics, err = mf.Evaluate(ctx, model, train, mf.LabelRating, m.Config.Evaluation.Jobs); err != nil {
		return nil, errors.Trace(err)
	}
	TrainStepSecondsVec.WithLabelValues("evaluate").Set(time.Since(startTime).Seconds())
	ModelRMSEVec.WithLabelValues("test").Set(result.TestMetrics.RootMeanSquaredError)
	ModelRSquaredVec.WithLabelValues("test").Set(result.TestMetrics.RSquared)
	ModelRMSEVec.WithLabelValues("train").Set(result.TrainMetrics.RootMeanSquaredError)
	ModelRSquaredVec.WithLabelValues("train").Set(result.TrainMetrics.RSquared)
	ExcludedTestRecords.Set(float64(result.TestMetrics.Excluded))
	log.Logger().Info("evaluate model complete",
		zap.String("label", label.String()),
		zap.Float64("rmse", result.TestMetrics.RootMeanSquaredError),
		zap.Float64("r_squared", result.TestMetrics.RSquared),
		zap.Int("n_evaluated", result.TestMetrics.Count),
		zap.Int("n_excluded", result.TestMetrics.Excluded),
		zap.Float64("train_rmse", result.TrainMetrics.RootMeanSquaredError))
	span.Add(1)

	// save model
	result.Info = &meta.ModelInfo{
		ID:        time.Now().UnixNano(),
		Name:      model.Name,
		Params:    model.Params.ToString(),
		Label:     label.String(),
		RMSE:      result.TestMetrics.RootMeanSquaredError,
		RSquared:  result.TestMetrics.RSquared,
		Evaluated: result.TestMetrics.Count,
		Excluded:  result.TestMetrics.Excluded,
		TrainSize: len(train),
		TestSize:  len(test),
		Users:     int(model.UserIndex.Count()),
		Items:     int(model.ItemIndex.Count()),
		Timestamp: time.Now().UTC(),
	}
	if err = m.saveModel(result.Info, model); err != nil {
		return nil, errors.Trace(err)
	}
	if err = m.MetaClient.AddModel(result.Info); err != nil {
		return nil, errors.Trace(err)
	}
	TrainedModelsTotal.Inc()
	log.Logger().Info("model registered",
		zap.Int64("id", result.Info.ID),
		zap.String("blob", result.Info.BlobName()))
	return result, nil
}

func (m *Master) saveModel(info *meta.ModelInfo, model *mf.Model) error {
	w, done, err := m.BlobStore.Create(info.BlobName())
	if err != nil {
		return errors.Trace(err)
	}
	if err = mf.MarshalModel(w, model); err != nil {
		_ = w.CloseWithError(err)
		<-done
		return errors.Trace(err)
	}
	if err = w.Close(); err != nil {
		return errors.Trace(err)
	}
	<-done
	return nil
}

// countSparse counts identifiers added fewer than minFreq times.
func countSparse(idx *dataset.Index, minFreq int) int {
	n := 0
	for i := int32(0); i < idx.Count(); i++ {
		if idx.Freq(i) < minFreq {
			n++
		}
	}
	return n
}

// PruneModels removes model blobs that are not registered. These are left
// behind by runs that failed between saving and registering a model.
func (m *Master) PruneModels() ([]string, error) {
	models, err := m.MetaClient.ListModels()
	if err != nil {
		return nil, errors.Trace(err)
	}
	registered := mapset.NewThreadUnsafeSet[string]()
	for _, info := range models {
		registered.Add(info.BlobName())
	}
	names, err := m.BlobStore.List()
	if err != nil {
		return nil, errors.Trace(err)
	}
	var pruned []string
	for _, name := range names {
		if !strings.HasPrefix(name, meta.ModelsDir) || registered.Contains(name) {
			continue
		}
		if err = m.BlobStore.Remove(name); err != nil {
			return pruned, errors.Trace(err)
		}
		pruned = append(pruned, name)
		log.Logger().Info("prune unregistered model", zap.String("blob", name))
	}
	return pruned, nil
}
