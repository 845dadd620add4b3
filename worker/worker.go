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

package worker

import (
	"context"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/affinity/base/encoding"
	"github.com/gorse-io/affinity/base/log"
	"github.com/gorse-io/affinity/config"
	"github.com/gorse-io/affinity/dataset"
	"github.com/gorse-io/affinity/logics"
	"github.com/gorse-io/affinity/model/mf"
	"github.com/gorse-io/affinity/storage/blob"
	"github.com/gorse-io/affinity/storage/cache"
	"github.com/gorse-io/affinity/storage/data"
	"github.com/gorse-io/affinity/storage/meta"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Worker serves predictions and recommendations from the latest registered model.
type Worker struct {
	Config      *config.Config
	DataClient  data.Database
	MetaClient  meta.Database
	BlobStore   blob.Store
	CacheClient cache.Database

	current atomic.Pointer[servingModel]
}

type servingModel struct {
	info  *meta.ModelInfo
	model *mf.Model
}

// PredictResult is a prediction together with its classification.
type PredictResult struct {
	logics.Prediction
	Recommended bool
}

func NewWorker(cfg *config.Config) *Worker {
	return &Worker{Config: cfg}
}

// Open connects every store used for serving.
func (w *Worker) Open() error {
	var err error
	if w.DataClient, err = data.Open(w.Config.Database.DataStore, w.Config.Database.TablePrefix); err != nil {
		log.Logger().Error("failed to connect data database", zap.Error(err),
			zap.String("database", log.RedactURL(w.Config.Database.DataStore)))
		return errors.Trace(err)
	}
	if err = w.DataClient.Init(); err != nil {
		return errors.Annotate(err, "failed to init data database")
	}
	if w.MetaClient, err = meta.Open(w.Config.Database.MetaStore); err != nil {
		return errors.Trace(err)
	}
	if err = w.MetaClient.Init(); err != nil {
		return errors.Annotate(err, "failed to init meta database")
	}
	if w.BlobStore, err = blob.Open(w.Config.Blob); err != nil {
		return errors.Trace(err)
	}
	if w.CacheClient, err = cache.Open(w.Config.Database.CacheStore, w.Config.Database.TablePrefix, w.Config.Recommend.CacheTTL); err != nil {
		log.Logger().Error("failed to connect cache database", zap.Error(err),
			zap.String("database", log.RedactURL(w.Config.Database.CacheStore)))
		return errors.Trace(err)
	}
	return nil
}

func (w *Worker) Close() error {
	closers := []interface{ Close() error }{}
	if w.DataClient != nil {
		closers = append(closers, w.DataClient)
	}
	if w.MetaClient != nil {
		closers = append(closers, w.MetaClient)
	}
	if w.CacheClient != nil {
		closers = append(closers, w.CacheClient)
	}
	for _, closer := range closers {
		if err := closer.Close(); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// Model returns the model being served, or nil before the first pull.
func (w *Worker) Model() (*meta.ModelInfo, *mf.Model) {
	current := w.current.Load()
	if current == nil {
		return nil, nil
	}
	return current.info, current.model
}

// Pull loads the latest registered model if it is newer than the served one.
// It reports whether the served model changed.
func (w *Worker) Pull(ctx context.Context) (bool, error) {
	info, err := w.MetaClient.GetLatestModel()
	if err != nil {
		return false, errors.Trace(err)
	}
	if info == nil {
		return false, nil
	}
	if current := w.current.Load(); current != nil && current.info.ID >= info.ID {
		return false, nil
	}
	if err = ctx.Err(); err != nil {
		return false, errors.Trace(err)
	}
	log.Logger().Info("start pull model", zap.String("version", encoding.Hex(info.ID)))
	r, err := w.BlobStore.Open(info.BlobName())
	if err != nil {
		return false, errors.Trace(err)
	}
	defer r.Close()
	model, err := mf.UnmarshalModel(r)
	if err != nil {
		return false, errors.Annotatef(err, "failed to unmarshal model %s", encoding.Hex(info.ID))
	}
	w.current.Store(&servingModel{info: info, model: model})
	ModelPulledTotal.Inc()
	if err = w.MetaClient.Put(meta.ServingModelKey, encoding.Hex(info.ID)); err != nil {
		log.Logger().Warn("failed to record serving model", zap.Error(err))
	}
	log.Logger().Info("synced model",
		zap.String("version", encoding.Hex(info.ID)),
		zap.String("name", info.Name),
		zap.Float64("rmse", info.RMSE))
	return true, nil
}

func (w *Worker) serving() (*servingModel, error) {
	current := w.current.Load()
	if current == nil {
		return nil, errors.NotFoundf("model")
	}
	return current, nil
}

// Predict scores a record and classifies it with the configured threshold.
func (w *Worker) Predict(_ context.Context, record dataset.Record) (PredictResult, error) {
	current, err := w.serving()
	if err != nil {
		return PredictResult{}, errors.Trace(err)
	}
	prediction, err := logics.PredictOne(current.model, record)
	if err != nil {
		return PredictResult{Prediction: prediction}, errors.Trace(err)
	}
	return PredictResult{
		Prediction:  prediction,
		Recommended: logics.IsRecommended(prediction.Score, w.Config.Recommend.Threshold),
	}, nil
}

// Recommend returns at most k items for a user, skipping items the user rated.
// Lists of the configured size are cached per model version.
func (w *Worker) Recommend(ctx context.Context, userId string, k int) ([]cache.Score, error) {
	startTime := time.Now()
	defer func() {
		RecommendSeconds.Observe(time.Since(startTime).Seconds())
	}()
	current, err := w.serving()
	if err != nil {
		return nil, errors.Trace(err)
	}
	if k <= 0 {
		k = w.Config.Recommend.TopK
	}
	cacheable := k <= w.Config.Recommend.TopK
	cacheKey := recommendCacheKey(current.info.ID, userId)

	// load from cache
	if cacheable {
		scores, err := w.CacheClient.GetRecommendations(ctx, cacheKey)
		if err == nil {
			RecommendCacheHitTotal.Inc()
			return scores[:min(k, len(scores))], nil
		} else if !errors.Is(err, errors.NotFound) {
			log.Logger().Warn("failed to load recommendations from cache", zap.Error(err))
		}
		RecommendCacheMissTotal.Inc()
	}

	// rank items of the record store
	records, err := w.DataClient.GetFeedback(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	n := k
	if cacheable {
		n = w.Config.Recommend.TopK
	}
	recommendations := logics.TopK(current.model, userId, logics.RatedItems(userId, records), records, n)
	scores := lo.Map(recommendations, func(r logics.Recommendation, _ int) cache.Score {
		return cache.Score{Id: r.ItemId, Score: float64(r.Score)}
	})
	if cacheable {
		if err = w.CacheClient.SetRecommendations(ctx, cacheKey, scores); err != nil {
			log.Logger().Warn("failed to cache recommendations", zap.Error(err))
		}
	}
	return scores[:min(k, len(scores))], nil
}

func recommendCacheKey(modelId int64, userId string) string {
	return encoding.Hex(modelId) + "/" + userId
}

// Invalidate drops cached recommendations of the latest model for every user
// appearing in records. It returns the number of users invalidated.
func (w *Worker) Invalidate(ctx context.Context, records []dataset.Record) (int, error) {
	info, err := w.MetaClient.GetLatestModel()
	if err != nil {
		return 0, errors.Trace(err)
	}
	if info == nil {
		return 0, nil
	}
	users := mapset.NewThreadUnsafeSet[string]()
	for _, record := range records {
		if userId, err := record.EffectiveUser(); err == nil {
			users.Add(userId)
		}
	}
	for _, userId := range users.ToSlice() {
		if err = w.CacheClient.DeleteRecommendations(ctx, recommendCacheKey(info.ID, userId)); err != nil {
			return 0, errors.Trace(err)
		}
	}
	return users.Cardinality(), nil
}
