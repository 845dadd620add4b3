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

package data

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/gorse-io/affinity/base/log"
	"github.com/gorse-io/affinity/dataset"
	"github.com/gorse-io/affinity/storage"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

const bufSize = 1

// Database stores feedback records in insertion order.
type Database interface {
	Init() error
	Ping() error
	Close() error
	Purge() error
	BatchInsertFeedback(ctx context.Context, records []dataset.Record) error
	CountFeedback(ctx context.Context) (int, error)
	GetFeedback(ctx context.Context) ([]dataset.Record, error)
	GetFeedbackStream(ctx context.Context, batchSize int) (chan []dataset.Record, chan error)
}

// Open a record store by its URL prefix.
func Open(path, tablePrefix string) (Database, error) {
	switch {
	case strings.HasPrefix(path, storage.MySQLPrefix):
		name, err := storage.AppendMySQLParams(strings.TrimPrefix(path, storage.MySQLPrefix), map[string]string{
			"sql_mode": "'ONLY_FULL_GROUP_BY,STRICT_TRANS_TABLES,ERROR_FOR_DIVISION_BY_ZERO,NO_ENGINE_SUBSTITUTION'",
		})
		if err != nil {
			return nil, errors.Trace(err)
		}
		return openSQL(MySQL, name, tablePrefix)
	case strings.HasPrefix(path, storage.PostgresPrefix), strings.HasPrefix(path, storage.PostgreSQLPrefix):
		return openSQL(Postgres, path, tablePrefix)
	case strings.HasPrefix(path, storage.MongoPrefix), strings.HasPrefix(path, storage.MongoSrvPrefix):
		return openMongo(path, tablePrefix)
	case strings.HasPrefix(path, storage.SQLitePrefix):
		path, err := storage.AppendURLParams(path, []lo.Tuple2[string, string]{
			{"_pragma", "busy_timeout(10000)"},
			{"_pragma", "journal_mode(wal)"},
		})
		if err != nil {
			return nil, errors.Trace(err)
		}
		return openSQL(SQLite, strings.TrimPrefix(path, storage.SQLitePrefix), tablePrefix)
	}
	return nil, errors.NotSupportedf("data store %q", log.RedactURL(path))
}

// ReadJSON parses an exported array of feedback records.
func ReadJSON(r io.Reader) ([]dataset.Record, error) {
	var records []dataset.Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, errors.Annotate(err, "failed to decode feedback records")
	}
	return records, nil
}
