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
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorse-io/affinity/base/progress"
	"github.com/gorse-io/affinity/config"
	"github.com/gorse-io/affinity/dataset"
	"github.com/gorse-io/affinity/model/mf"
	"github.com/gorse-io/affinity/storage/blob"
	"github.com/gorse-io/affinity/storage/meta"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type MasterTestSuite struct {
	suite.Suite
	*Master
}

func (suite *MasterTestSuite) SetupTest() {
	dir := suite.T().TempDir()
	cfg := config.GetDefaultConfig()
	cfg.Database.DataStore = "sqlite://" + filepath.Join(dir, "data.db")
	cfg.Database.MetaStore = "sqlite://" + filepath.Join(dir, "meta.db")
	cfg.Blob.POSIX.Dir = filepath.Join(dir, "blob")
	cfg.Training.NFactors = 4
	cfg.Training.NEpochs = 10
	cfg.Training.Jobs = 2
	suite.Master = NewMaster(cfg)
	suite.NoError(suite.Master.Open())
}

func (suite *MasterTestSuite) TearDownTest() {
	suite.NoError(suite.Master.Close())
}

func newRecords() []dataset.Record {
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
	return records
}

func (suite *MasterTestSuite) TestTrain() {
	ctx := context.Background()
	records := newRecords()
	suite.NoError(suite.DataClient.BatchInsertFeedback(ctx, records))
	before := testutil.ToFloat64(TrainedModelsTotal)

	result, err := suite.Train(ctx)
	suite.NoError(err)
	suite.Equal(70, result.Info.TrainSize)
	suite.Equal(30, result.Info.TestSize)
	suite.Equal("svd", result.Info.Name)
	suite.Equal("item_id", result.Info.Label)
	suite.Equal(10, result.Info.Users)
	suite.Equal(10, result.Info.Items)
	suite.Equal(30, result.TestMetrics.Count+result.TestMetrics.Excluded)
	suite.Equal(70, result.TrainMetrics.Count)
	suite.Equal(before+1, testutil.ToFloat64(TrainedModelsTotal))
	suite.Equal(float64(30), testutil.ToFloat64(DatasetRecordsVec.WithLabelValues("test")))
	suite.Zero(testutil.ToFloat64(SparseEntitiesVec.WithLabelValues(LabelUser)))
	suite.Zero(testutil.ToFloat64(SparseEntitiesVec.WithLabelValues(LabelItem)))

	// registered
	latest, err := suite.MetaClient.GetLatestModel()
	suite.NoError(err)
	suite.Equal(result.Info.ID, latest.ID)

	// persisted
	r, err := suite.BlobStore.Open(latest.BlobName())
	suite.NoError(err)
	model, err := mf.UnmarshalModel(r)
	suite.NoError(err)
	suite.NoError(r.Close())
	suite.Equal(result.Model.Predict("u1", "3"), model.Predict("u1", "3"))

	// progress
	p := suite.Progress()
	if suite.Len(p, 1) {
		suite.Equal(progress.StatusComplete, p[0].Status)
		suite.Equal(4, p[0].Count)
	}
}

func (suite *MasterTestSuite) TestTrain_InsufficientData() {
	ctx := context.Background()
	suite.NoError(suite.DataClient.BatchInsertFeedback(ctx, []dataset.Record{
		{UserId: "u1", ItemId: 1, Rating: 5},
		{UserId: "u1", ItemId: 2, Rating: 4},
		{UserId: "u2", ItemId: 1, Rating: 3},
	}))
	_, err := suite.Train(ctx)
	suite.ErrorIs(err, mf.ErrInsufficientTrainingData)
	latest, err := suite.MetaClient.GetLatestModel()
	suite.NoError(err)
	suite.Nil(latest)
	p := suite.Progress()
	if suite.Len(p, 1) {
		suite.Equal(progress.StatusFailed, p[0].Status)
		suite.NotEmpty(p[0].Error)
	}
}

func (suite *MasterTestSuite) TestTrain_Empty() {
	_, err := suite.Train(context.Background())
	suite.Error(err)
}

// shortStore hands out writers that fail after limit bytes.
type shortStore struct {
	blob.Store
	limit int
}

func (s shortStore) Create(name string) (blob.Writer, chan struct{}, error) {
	w, done, err := s.Store.Create(name)
	if err != nil {
		return nil, nil, err
	}
	return &shortWriter{Writer: w, limit: s.limit}, done, nil
}

type shortWriter struct {
	blob.Writer
	limit int
}

func (w *shortWriter) Write(p []byte) (int, error) {
	if len(p) <= w.limit {
		w.limit -= len(p)
		return w.Writer.Write(p)
	}
	n, err := w.Writer.Write(p[:w.limit])
	w.limit -= n
	if err != nil {
		return n, err
	}
	return n, errors.New("no space left on device")
}

func (suite *MasterTestSuite) TestTrain_SaveFailed() {
	ctx := context.Background()
	suite.NoError(suite.DataClient.BatchInsertFeedback(ctx, newRecords()))
	store := suite.BlobStore
	suite.BlobStore = shortStore{Store: store, limit: 64}
	_, err := suite.Train(ctx)
	suite.ErrorContains(err, "no space left on device")

	// neither a truncated blob nor a registered model
	names, err := store.List()
	suite.NoError(err)
	suite.Empty(names)
	entries, err := os.ReadDir(filepath.Join(suite.Config.Blob.POSIX.Dir, "models"))
	suite.NoError(err)
	suite.Empty(entries)
	latest, err := suite.MetaClient.GetLatestModel()
	suite.NoError(err)
	suite.Nil(latest)
}

func (suite *MasterTestSuite) TestPruneModels() {
	ctx := context.Background()
	suite.NoError(suite.DataClient.BatchInsertFeedback(ctx, newRecords()))
	result, err := suite.Train(ctx)
	suite.NoError(err)
	// an orphan model and an unrelated blob
	orphan := (&meta.ModelInfo{ID: 255}).BlobName()
	for _, name := range []string{orphan, "exports/1"} {
		w, done, err := suite.BlobStore.Create(name)
		suite.NoError(err)
		_, err = w.Write([]byte("orphan"))
		suite.NoError(err)
		suite.NoError(w.Close())
		<-done
	}

	pruned, err := suite.PruneModels()
	suite.NoError(err)
	suite.Equal([]string{orphan}, pruned)
	names, err := suite.BlobStore.List()
	suite.NoError(err)
	suite.ElementsMatch([]string{result.Info.BlobName(), "exports/1"}, names)

	// idempotent
	pruned, err = suite.PruneModels()
	suite.NoError(err)
	suite.Empty(pruned)
}

func TestCountSparse(t *testing.T) {
	trainSet := dataset.NewDataset([]dataset.Record{
		{UserId: "u1", ItemId: 1},
		{UserId: "u1", ItemId: 2},
		{UserId: "u2", ItemId: 1},
	})
	assert.Equal(t, 1, countSparse(trainSet.UserIndex(), 2))
	assert.Equal(t, 1, countSparse(trainSet.ItemIndex(), 2))
	assert.Equal(t, 2, countSparse(trainSet.UserIndex(), 3))
	assert.Zero(t, countSparse(trainSet.ItemIndex(), 1))
}

func TestMaster(t *testing.T) {
	suite.Run(t, new(MasterTestSuite))
}

func TestMaster_OpenUnknownStore(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Database.DataStore = "unknown://"
	m := NewMaster(cfg)
	assert.Error(t, m.Open())
	assert.NoError(t, m.Close())
}
