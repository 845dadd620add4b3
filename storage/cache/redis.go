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
	"encoding/json"
	"time"

	"github.com/gorse-io/affinity/storage"
	"github.com/juju/errors"
	"github.com/redis/go-redis/v9"
)

// Redis stores recommendation lists as JSON strings.
type Redis struct {
	storage.TablePrefix
	client *redis.Client
	ttl    time.Duration
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Ping() error {
	return r.client.Ping(context.Background()).Err()
}

func (r *Redis) GetRecommendations(ctx context.Context, userId string) ([]Score, error) {
	key := recommendKey(r.TablePrefix, userId)
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errors.NotFoundf("recommendations of %s", userId)
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	var scores []Score
	if err = json.Unmarshal(data, &scores); err != nil {
		return nil, errors.Trace(err)
	}
	return scores, nil
}

func (r *Redis) SetRecommendations(ctx context.Context, userId string, scores []Score) error {
	data, err := json.Marshal(scores)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(r.client.Set(ctx, recommendKey(r.TablePrefix, userId), data, r.ttl).Err())
}

func (r *Redis) DeleteRecommendations(ctx context.Context, userId string) error {
	return errors.Trace(r.client.Del(ctx, recommendKey(r.TablePrefix, userId)).Err())
}
