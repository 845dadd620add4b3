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
	"fmt"
	"os"
	"strconv"

	"github.com/gorse-io/affinity/base/log"
	"github.com/gorse-io/affinity/dataset"
	"github.com/gorse-io/affinity/worker"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var predictCommand = &cobra.Command{
	Use:   "predict",
	Short: "Score an item for a user or session with the latest model.",
	Run: func(cmd *cobra.Command, args []string) {
		userId, _ := cmd.Flags().GetString("user")
		sessionId, _ := cmd.Flags().GetString("session")
		itemId, _ := cmd.Flags().GetInt64("item")
		w := openWorker(cmd)
		defer w.Close()
		result, err := w.Predict(cmd.Context(), dataset.Record{UserId: userId, SessionId: sessionId, ItemId: itemId})
		if err != nil {
			log.Logger().Fatal("failed to predict", zap.Error(err))
		}
		fmt.Printf("user:\t\t%s\nitem:\t\t%d\nscore:\t\t%.4f\nrecommended:\t%v\n",
			result.UserId, result.ItemId, result.Score, result.Recommended)
	},
}

var recommendCommand = &cobra.Command{
	Use:   "recommend",
	Short: "Rank unrated items for a user with the latest model.",
	Run: func(cmd *cobra.Command, args []string) {
		userId, _ := cmd.Flags().GetString("user")
		n, _ := cmd.Flags().GetInt("number")
		w := openWorker(cmd)
		defer w.Close()
		scores, err := w.Recommend(cmd.Context(), userId, n)
		if err != nil {
			log.Logger().Fatal("failed to recommend", zap.Error(err))
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Rank", "Item", "Score")
		for i, score := range scores {
			_ = table.Append([]string{
				strconv.Itoa(i + 1),
				strconv.FormatInt(score.Id, 10),
				formatFloat(score.Score),
			})
		}
		if err = table.Render(); err != nil {
			log.Logger().Fatal("failed to render table", zap.Error(err))
		}
	},
}

func init() {
	predictCommand.Flags().String("user", "", "user id")
	predictCommand.Flags().String("session", "", "session id used when user id is empty")
	predictCommand.Flags().Int64("item", 0, "item id")
	_ = predictCommand.MarkFlagRequired("item")
	recommendCommand.Flags().String("user", "", "user id")
	recommendCommand.Flags().IntP("number", "n", 0, "number of recommendations (0 means recommend.top_k)")
	_ = recommendCommand.MarkFlagRequired("user")
}

// openWorker connects stores and loads the latest registered model.
func openWorker(cmd *cobra.Command) *worker.Worker {
	w := worker.NewWorker(loadConfig(cmd))
	if err := w.Open(); err != nil {
		log.Logger().Fatal("failed to open worker", zap.Error(err))
	}
	if _, err := w.Pull(cmd.Context()); err != nil {
		log.Logger().Fatal("failed to load model", zap.Error(err))
	}
	return w
}
