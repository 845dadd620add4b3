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
	"time"

	"github.com/stretchr/testify/suite"
)

type baseTestSuite struct {
	suite.Suite
	Database
}

func (suite *baseTestSuite) TestKeyValues() {
	err := suite.Database.Put("key1", "value1")
	suite.NoError(err)
	err = suite.Database.Put("key2", "value2")
	suite.NoError(err)
	// overwrite
	err = suite.Database.Put("key1", "value3")
	suite.NoError(err)

	value, err := suite.Database.Get("key1")
	suite.NoError(err)
	suite.Equal("value3", *value)

	value, err = suite.Database.Get("key2")
	suite.NoError(err)
	suite.Equal("value2", *value)

	// Test non-existing key
	value, err = suite.Database.Get("non-existing-key")
	suite.NoError(err)
	suite.Nil(value)
}

func (suite *baseTestSuite) TestModels() {
	// no model
	latest, err := suite.Database.GetLatestModel()
	suite.NoError(err)
	suite.Nil(latest)

	timestamp := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	err = suite.Database.AddModel(&ModelInfo{ID: 10, Name: "svd", RMSE: 1.5, Timestamp: timestamp})
	suite.NoError(err)
	second := &ModelInfo{Name: "als", RMSE: 0.5, RSquared: 0.25, TrainSize: 70, TestSize: 30, Timestamp: timestamp}
	err = suite.Database.AddModel(second)
	suite.NoError(err)
	suite.Equal(int64(11), second.ID)
	// duplicate id
	err = suite.Database.AddModel(&ModelInfo{ID: 10, Name: "svd"})
	suite.Error(err)

	latest, err = suite.Database.GetLatestModel()
	suite.NoError(err)
	suite.Equal(second, latest)
	suite.Equal("models/b", latest.BlobName())

	models, err := suite.Database.ListModels()
	suite.NoError(err)
	if suite.Len(models, 2) {
		suite.Equal("svd", models[0].Name)
		suite.Equal("als", models[1].Name)
	}
}
