// Copyright 2021 gorse Project Authors
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

package cache

import (
	"context"
	"strings"
	"time"

	"github.com/gorse-io/affinity/storage"
	"github.com/jellydator/ttlcache/v3"
	"github.com/juju/errors"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

const RecommendPrefix = "recommend/"

// Score of an item in a recommendation list.
type Score struct {
	Id    int64   `json:"id"`
	Score float64 `json:"score"`
}

// Database caches recommendation lists per user. A missing or expired list
// is reported as errors.NotFound.
type Database interface {
	Close() error
	Ping() error
	GetRecommendations(ctx context.Context, userId string) ([]Score, error)
	SetRecommendations(ctx context.Context, userId string, scores []Score) error
	DeleteRecommendations(ctx context.Context, userId string) error
}

func recommendKey(prefix storage.TablePrefix, userId string) string {
	return prefix.Key(RecommendPrefix + userId)
}

// Open a cache by its URL prefix. Entries expire after ttl; a zero ttl keeps them forever.
func Open(path, tablePrefix string, ttl time.Duration) (Database, error) {
	if strings.HasPrefix(path, storage.RedisPrefix) || strings.HasPrefix(path, storage.RedissPrefix) {
		opt, err := redis.ParseURL(path)
		if err != nil {
			return nil, errors.Trace(err)
		}
		database := new(Redis)
		database.client = redis.NewClient(opt)
		database.TablePrefix = storage.TablePrefix(tablePrefix)
		database.ttl = ttl
		if err = redisotel.InstrumentTracing(database.client); err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.MemoryPrefix) {
		database := new(Memory)
		database.TablePrefix = storage.TablePrefix(tablePrefix)
		database.cache = ttlcache.New[string, []Score](ttlcache.WithTTL[string, []Score](ttl))
		go database.cache.Start()
		return database, nil
	}
	return nil, errors.Errorf("Unknown database: %s", path)
}
