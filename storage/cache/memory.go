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

package cache

import (
	"context"
	"slices"

	"github.com/gorse-io/affinity/storage"
	"github.com/jellydator/ttlcache/v3"
	"github.com/juju/errors"
)

// Memory keeps recommendation lists in process.
type Memory struct {
	storage.TablePrefix
	cache *ttlcache.Cache[string, []Score]
}

func (m *Memory) Close() error {
	m.cache.Stop()
	return nil
}

func (m *Memory) Ping() error {
	return nil
}

func (m *Memory) GetRecommendations(_ context.Context, userId string) ([]Score, error) {
	item := m.cache.Get(recommendKey(m.TablePrefix, userId))
	if item == nil {
		return nil, errors.NotFoundf("recommendations of %s", userId)
	}
	return slices.Clone(item.Value()), nil
}

func (m *Memory) SetRecommendations(_ context.Context, userId string, scores []Score) error {
	m.cache.Set(recommendKey(m.TablePrefix, userId), slices.Clone(scores), ttlcache.DefaultTTL)
	return nil
}

func (m *Memory) DeleteRecommendations(_ context.Context, userId string) error {
	m.cache.Delete(recommendKey(m.TablePrefix, userId))
	return nil
}
