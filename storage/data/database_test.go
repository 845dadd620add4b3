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

package data

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/gorse-io/affinity/dataset"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type baseTestSuite struct {
	suite.Suite
	Database
}

func (suite *baseTestSuite) SetupTest() {
	err := suite.Database.Purge()
	suite.NoError(err)
}

func (suite *baseTestSuite) TearDownSuite() {
	err := suite.Database.Close()
	suite.NoError(err)
}

func newRecords(n int) []dataset.Record {
	return lo.Times(n, func(i int) dataset.Record {
		record := dataset.Record{
			ItemId: int64(100 + i%7),
			Rating: float32(i%5 + 1),
		}
		if i%3 == 0 {
			record.SessionId = fmt.Sprintf("s%d", i)
		} else {
			record.UserId = fmt.Sprintf("u%d", i%4)
		}
		return record
	})
}

func (suite *baseTestSuite) TestPing() {
	suite.NoError(suite.Database.Ping())
}

func (suite *baseTestSuite) TestFeedback() {
	ctx := context.Background()
	records := newRecords(25)
	// insert in two batches
	suite.NoError(suite.BatchInsertFeedback(ctx, records[:10]))
	suite.NoError(suite.BatchInsertFeedback(ctx, records[10:]))
	suite.NoError(suite.BatchInsertFeedback(ctx, nil))
	count, err := suite.CountFeedback(ctx)
	suite.NoError(err)
	suite.Equal(25, count)
	// insertion order is kept
	feedback, err := suite.GetFeedback(ctx)
	suite.NoError(err)
	suite.Equal(records, feedback)
	// purge
	suite.NoError(suite.Purge())
	count, err = suite.CountFeedback(ctx)
	suite.NoError(err)
	suite.Zero(count)
}

func (suite *baseTestSuite) TestFeedbackStream() {
	ctx := context.Background()
	records := newRecords(25)
	suite.NoError(suite.BatchInsertFeedback(ctx, records))
	feedbackChan, errChan := suite.GetFeedbackStream(ctx, 10)
	var (
		batches []int
		stream  []dataset.Record
	)
	for batch := range feedbackChan {
		batches = append(batches, len(batch))
		stream = append(stream, batch...)
	}
	suite.NoError(<-errChan)
	suite.Equal([]int{10, 10, 5}, batches)
	suite.Equal(records, stream)
}

func TestReadJSON(t *testing.T) {
	records, err := ReadJSON(strings.NewReader(`[
	{"userId": "u1", "userSession": "s1", "rating": 4.5, "contentId": 10},
	{"userId": null, "userSession": "s2", "rating": 3, "contentId": 20}
]`))
	assert.NoError(t, err)
	assert.Equal(t, []dataset.Record{
		{UserId: "u1", SessionId: "s1", Rating: 4.5, ItemId: 10},
		{SessionId: "s2", Rating: 3, ItemId: 20},
	}, records)

	_, err = ReadJSON(strings.NewReader(`{`))
	assert.Error(t, err)
}

func TestOpen_Unknown(t *testing.T) {
	_, err := Open("unknown://", "")
	assert.True(t, errors.Is(err, errors.NotSupported))
}

func (suite *baseTestSuite) TestFeedbackStreamCanceled() {
	ctx, cancel := context.WithCancel(context.Background())
	records := newRecords(25)
	suite.NoError(suite.BatchInsertFeedback(context.Background(), records))
	feedbackChan, errChan := suite.GetFeedbackStream(ctx, 10)
	batch := <-feedbackChan
	suite.Len(batch, 10)
	// the producer must not block on a reader that has gone away
	cancel()
	suite.Error(<-errChan)
	n := len(batch)
	for batch = range feedbackChan {
		n += len(batch)
	}
	suite.Less(n, len(records))
}
