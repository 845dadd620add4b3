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

package meta

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/gorse-io/affinity/base/encoding"
	"github.com/gorse-io/affinity/storage"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
)

// ModelInfo describes a trained model registered after evaluation.
type ModelInfo struct {
	ID        int64
	Name      string
	Params    string
	Label     string
	RMSE      float64
	RSquared  float64
	Evaluated int
	Excluded  int
	TrainSize int
	TestSize  int
	Users     int
	Items     int
	Timestamp time.Time
}

const (
	// ModelsDir is the blob name prefix of serialized models.
	ModelsDir = "models/"
	// ServingModelKey holds the hex ID of the model last pulled by a worker.
	ServingModelKey = "serving_model"
)

// BlobName is the name of the serialized model in the blob store.
func (m *ModelInfo) BlobName() string {
	return ModelsDir + encoding.Hex(m.ID)
}

func (m *ModelInfo) ToJSON() string {
	return string(lo.Must1(json.Marshal(m)))
}

func (m *ModelInfo) FromJSON(data string) error {
	return json.Unmarshal([]byte(data), m)
}

type Database interface {
	Close() error
	Init() error
	Put(key, value string) error
	Get(key string) (*string, error)
	AddModel(info *ModelInfo) error
	GetLatestModel() (*ModelInfo, error)
	ListModels() ([]*ModelInfo, error)
}

// Open a connection to a database.
func Open(path string) (Database, error) {
	var err error
	if strings.HasPrefix(path, storage.SQLitePrefix) {
		dataSourceName := path[len(storage.SQLitePrefix):]
		// append parameters
		if dataSourceName, err = storage.AppendURLParams(dataSourceName, []lo.Tuple2[string, string]{
			{"_pragma", "busy_timeout(10000)"},
			{"_pragma", "journal_mode(wal)"},
		}); err != nil {
			return nil, errors.Trace(err)
		}
		// connect to database
		database := new(SQLite)
		if database.db, err = otelsql.Open("sqlite", dataSourceName,
			otelsql.WithAttributes(attribute.String("db.system", "sqlite")),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		); err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	}
	return nil, errors.Errorf("Unknown database: %s", path)
}
