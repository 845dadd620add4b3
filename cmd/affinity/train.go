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
	"os"
	"strconv"

	"github.com/gorse-io/affinity/base/encoding"
	"github.com/gorse-io/affinity/base/log"
	"github.com/gorse-io/affinity/master"
	"github.com/gorse-io/affinity/model/mf"
	"github.com/gorse-io/affinity/storage/meta"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var trainCommand = &cobra.Command{
	Use:   "train",
	Short: "Train, evaluate and register a model on the record store.",
	Run: func(cmd *cobra.Command, args []string) {
		conf := loadConfig(cmd)
		m := master.NewMaster(conf)
		if err := m.Open(); err != nil {
			log.Logger().Fatal("failed to open master", zap.Error(err))
		}
		defer m.Close()
		result, err := m.Train(cmd.Context())
		if err != nil {
			log.Logger().Fatal("failed to train model", zap.Error(err))
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Split", "Label", "RMSE", "R2", "Evaluated", "Excluded")
		appendMetrics(table, "train", mf.LabelRating.String(), result.TrainMetrics)
		appendMetrics(table, "test", result.Info.Label, result.TestMetrics)
		if err = table.Render(); err != nil {
			log.Logger().Fatal("failed to render table", zap.Error(err))
		}
		log.Logger().Info("model registered",
			zap.String("id", encoding.Hex(result.Info.ID)),
			zap.String("blob", result.Info.BlobName()))
	},
}

var modelsCommand = &cobra.Command{
	Use:   "models",
	Short: "List registered models.",
	Run: func(cmd *cobra.Command, args []string) {
		conf := loadConfig(cmd)
		if prune, _ := cmd.Flags().GetBool("prune"); prune {
			m := master.NewMaster(conf)
			if err := m.Open(); err != nil {
				log.Logger().Fatal("failed to open master", zap.Error(err))
			}
			defer m.Close()
			pruned, err := m.PruneModels()
			if err != nil {
				log.Logger().Fatal("failed to prune models", zap.Error(err))
			}
			log.Logger().Info("prune models complete", zap.Strings("blobs", pruned))
		}

		client, err := meta.Open(conf.Database.MetaStore)
		if err != nil {
			log.Logger().Fatal("failed to open meta database", zap.Error(err))
		}
		defer client.Close()
		if err = client.Init(); err != nil {
			log.Logger().Fatal("failed to init meta database", zap.Error(err))
		}
		models, err := client.ListModels()
		if err != nil {
			log.Logger().Fatal("failed to list models", zap.Error(err))
		}
		serving, err := client.Get(meta.ServingModelKey)
		if err != nil {
			log.Logger().Fatal("failed to get serving model", zap.Error(err))
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("ID", "Name", "Trained", "Train Size", "Test Size", "RMSE", "R2", "Serving")
		for _, info := range models {
			_ = table.Append([]string{
				encoding.Hex(info.ID),
				info.Name,
				info.Timestamp.Format("2006-01-02 15:04:05"),
				strconv.Itoa(info.TrainSize),
				strconv.Itoa(info.TestSize),
				formatFloat(info.RMSE),
				formatFloat(info.RSquared),
				servingMark(info, serving),
			})
		}
		if err = table.Render(); err != nil {
			log.Logger().Fatal("failed to render table", zap.Error(err))
		}
	},
}

func init() {
	modelsCommand.Flags().Bool("prune", false, "remove model blobs that are not registered")
}

// servingMark flags the model last pulled by a worker.
func servingMark(info *meta.ModelInfo, serving *string) string {
	if serving != nil && *serving == encoding.Hex(info.ID) {
		return "*"
	}
	return ""
}

func appendMetrics(table *tablewriter.Table, split, label string, metrics mf.Metrics) {
	_ = table.Append([]string{
		split,
		label,
		formatFloat(metrics.RootMeanSquaredError),
		formatFloat(metrics.RSquared),
		strconv.Itoa(metrics.Count),
		strconv.Itoa(metrics.Excluded),
	})
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
