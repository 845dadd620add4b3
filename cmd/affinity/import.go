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

package main

import (
	"context"
	"os"

	"github.com/gorse-io/affinity/base/log"
	"github.com/gorse-io/affinity/dataset"
	"github.com/gorse-io/affinity/storage/data"
	"github.com/gorse-io/affinity/worker"
	"github.com/juju/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const importBatchSize = 1000

var importCommand = &cobra.Command{
	Use:   "import <records.json>",
	Short: "Append records from a JSON array to the record store.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		conf := loadConfig(cmd)
		records, err := importRecords(cmd.Context(), args[0], conf.Database.DataStore, conf.Database.TablePrefix)
		if err != nil {
			log.Logger().Fatal("failed to import records", zap.Error(err))
		}
		log.Logger().Info("import records successfully", zap.Int("records", len(records)))

		// cached recommendations of these users no longer exclude what they rated
		w := worker.NewWorker(conf)
		if err = w.Open(); err != nil {
			log.Logger().Fatal("failed to open worker", zap.Error(err))
		}
		defer w.Close()
		n, err := w.Invalidate(cmd.Context(), records)
		if err != nil {
			log.Logger().Fatal("failed to invalidate recommendations", zap.Error(err))
		}
		log.Logger().Info("invalidate cached recommendations", zap.Int("users", n))
	},
}

// importRecords appends records of a JSON file to the record store and returns
// the records inserted.
func importRecords(ctx context.Context, path, dataStore, tablePrefix string) ([]dataset.Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	stat, err := file.Stat()
	if err != nil {
		return nil, errors.Trace(err)
	}
	reader := progressbar.NewReader(file, progressbar.DefaultBytes(stat.Size(), "Reading records"))
	records, err := data.ReadJSON(&reader)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to parse %s", path)
	}

	database, err := data.Open(dataStore, tablePrefix)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer database.Close()
	if err = database.Init(); err != nil {
		return nil, errors.Trace(err)
	}
	bar := progressbar.Default(int64(len(records)), "Importing records")
	for i := 0; i < len(records); i += importBatchSize {
		j := min(i+importBatchSize, len(records))
		if err = database.BatchInsertFeedback(ctx, records[i:j]); err != nil {
			return records[:i], errors.Trace(err)
		}
		_ = bar.Add(j - i)
	}
	_ = bar.Finish()
	total, err := database.CountFeedback(ctx)
	if err != nil {
		return records, errors.Trace(err)
	}
	log.Logger().Info("record store updated",
		zap.Int("n_imported", len(records)),
		zap.Int("n_total", total))
	return records, nil
}
