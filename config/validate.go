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

package config

import (
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gorse-io/affinity/storage"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func hasPrefix(prefixes ...string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return lo.SomeBy(prefixes, func(prefix string) bool {
			return strings.HasPrefix(fl.Field().String(), prefix)
		})
	}
}

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		lo.Must0(validate.RegisterValidation("data_store", hasPrefix(
			storage.MySQLPrefix,
			storage.PostgresPrefix,
			storage.PostgreSQLPrefix,
			storage.MongoPrefix,
			storage.MongoSrvPrefix,
			storage.SQLitePrefix,
		)))
		lo.Must0(validate.RegisterValidation("cache_store", hasPrefix(
			storage.RedisPrefix,
			storage.RedissPrefix,
			storage.MemoryPrefix,
		)))
	})
	return validate
}

// Validate checks value ranges and store URLs.
func (c *Config) Validate() error {
	if err := getValidator().Struct(c); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			messages := lo.Map(validationErrors, func(e validator.FieldError, _ int) string {
				return e.Namespace() + " failed on " + e.Tag()
			})
			return errors.NotValidf("config (%s)", strings.Join(messages, "; "))
		}
		return errors.Trace(err)
	}
	return nil
}
