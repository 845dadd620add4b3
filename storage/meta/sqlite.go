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
	"database/sql"
	"errors"

	_ "modernc.org/sqlite"
)

type SQLite struct {
	db *sql.DB
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Init() error {
	// Create tables
	if _, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS key_values (
	key TEXT PRIMARY KEY,
	value TEXT
);`); err != nil {
		return err
	}
	if _, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS models (
	id INTEGER PRIMARY KEY,
	name TEXT,
	info TEXT
);`); err != nil {
		return err
	}
	return nil
}

func (s *SQLite) Put(key, value string) error {
	_, err := s.db.Exec(`
INSERT INTO key_values (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value
`, key, value)
	return err
}

func (s *SQLite) Get(key string) (*string, error) {
	var value string
	err := s.db.QueryRow(`
SELECT value FROM key_values WHERE key = ?
`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // key not found
		}
		return nil, err
	}
	return &value, nil
}

// AddModel registers a model. A zero ID is replaced by the next free one.
func (s *SQLite) AddModel(info *ModelInfo) error {
	if info.ID == 0 {
		if err := s.db.QueryRow(`SELECT COALESCE(MAX(id), 0) + 1 FROM models`).Scan(&info.ID); err != nil {
			return err
		}
	}
	_, err := s.db.Exec(`
INSERT INTO models (id, name, info) VALUES (?, ?, ?)
`, info.ID, info.Name, info.ToJSON())
	return err
}

// GetLatestModel returns the model with the largest ID, or nil if there is none.
func (s *SQLite) GetLatestModel() (*ModelInfo, error) {
	var data string
	err := s.db.QueryRow(`
SELECT info FROM models ORDER BY id DESC LIMIT 1
`).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	info := new(ModelInfo)
	if err = info.FromJSON(data); err != nil {
		return nil, err
	}
	return info, nil
}

func (s *SQLite) ListModels() ([]*ModelInfo, error) {
	rs, err := s.db.Query(`SELECT info FROM models ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	var models []*ModelInfo
	for rs.Next() {
		var data string
		if err = rs.Scan(&data); err != nil {
			return nil, err
		}
		info := new(ModelInfo)
		if err = info.FromJSON(data); err != nil {
			return nil, err
		}
		models = append(models, info)
	}
	return models, rs.Err()
}
