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
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorse-io/affinity/dataset"
	"github.com/gorse-io/affinity/storage"
	"github.com/gorse-io/affinity/storage/data"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportRecords(t *testing.T) {
	dir := t.TempDir()
	records := lo.Times(2500, func(i int) dataset.Record {
		return dataset.Record{UserId: "u" + string(rune('a'+i%7)), ItemId: int64(i % 13), Rating: float32(i%5 + 1)}
	})
	text, err := json.Marshal(records)
	require.NoError(t, err)
	path := filepath.Join(dir, "records.json")
	require.NoError(t, os.WriteFile(path, text, 0644))

	dataStore := storage.SQLitePrefix + filepath.Join(dir, "data.db")
	inserted, err := importRecords(context.Background(), path, dataStore, "")
	assert.NoError(t, err)
	assert.Equal(t, records, inserted)

	// a second import appends
	inserted, err = importRecords(context.Background(), path, dataStore, "")
	assert.NoError(t, err)
	assert.Len(t, inserted, len(records))

	database, err := data.Open(dataStore, "")
	require.NoError(t, err)
	defer database.Close()
	imported, err := database.GetFeedback(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, append(records, records...), imported)
	count, err := database.CountFeedback(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 2*len(records), count)
}

func TestImportRecords_Invalid(t *testing.T) {
	dir := t.TempDir()
	dataStore := storage.SQLitePrefix + filepath.Join(dir, "data.db")
	_, err := importRecords(context.Background(), filepath.Join(dir, "missing.json"), dataStore, "")
	assert.Error(t, err)

	path := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("[{"), 0644))
	_, err = importRecords(context.Background(), path, dataStore, "")
	assert.Error(t, err)
}
