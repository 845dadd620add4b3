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

	"github.com/gorse-io/affinity/dataset"
	"github.com/gorse-io/affinity/storage"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

const feedbackSeqKey = "feedback"

type mongoFeedback struct {
	Seq       int64   `bson:"_id"`
	UserId    string  `bson:"user_id"`
	SessionId string  `bson:"session_id"`
	ItemId    int64   `bson:"item_id"`
	Rating    float32 `bson:"rating"`
}

func (f mongoFeedback) toRecord() dataset.Record {
	return dataset.Record{
		UserId:    f.UserId,
		SessionId: f.SessionId,
		ItemId:    f.ItemId,
		Rating:    f.Rating,
	}
}

// MongoDB stores feedback in a collection keyed by sequence number.
type MongoDB struct {
	storage.TablePrefix
	client *mongo.Client
	dbName string
}

// openMongo connects to the database named in the connection string.
func openMongo(uri, tablePrefix string) (*MongoDB, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return nil, errors.Trace(err)
	}
	opts := options.Client().ApplyURI(uri)
	opts.Monitor = otelmongo.NewMonitor()
	client, err := mongo.Connect(context.Background(), opts)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &MongoDB{
		TablePrefix: storage.TablePrefix(tablePrefix),
		client:      client,
		dbName:      cs.Database,
	}, nil
}

func (m MongoDB) counters() *mongo.Collection {
	return m.client.Database(m.dbName).Collection(m.CountersTable())
}

func (m MongoDB) feedback() *mongo.Collection {
	return m.client.Database(m.dbName).Collection(m.FeedbackTable())
}

// Init collections and indices in MongoDB.
func (m MongoDB) Init() error {
	ctx := context.Background()
	d := m.client.Database(m.dbName)
	collections, err := d.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return errors.Trace(err)
	}
	for _, name := range []string{m.FeedbackTable(), m.CountersTable()} {
		if !lo.Contains(collections, name) {
			if err = d.CreateCollection(ctx, name); err != nil {
				return errors.Trace(err)
			}
		}
	}
	_, err = m.feedback().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.M{"user_id": 1},
	})
	return errors.Trace(err)
}

func (m MongoDB) Ping() error {
	return m.client.Ping(context.Background(), nil)
}

func (m MongoDB) Close() error {
	return m.client.Disconnect(context.Background())
}

func (m MongoDB) Purge() error {
	ctx := context.Background()
	if _, err := m.feedback().DeleteMany(ctx, bson.M{}); err != nil {
		return errors.Trace(err)
	}
	if _, err := m.counters().DeleteMany(ctx, bson.M{}); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// reserve allocates n sequence numbers and returns the first one.
func (m MongoDB) reserve(ctx context.Context, n int) (int64, error) {
	var counter struct {
		Value int64 `bson:"value"`
	}
	err := m.counters().FindOneAndUpdate(ctx,
		bson.M{"_id": feedbackSeqKey},
		bson.M{"$inc": bson.M{"value": int64(n)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return counter.Value - int64(n) + 1, nil
}

func (m MongoDB) BatchInsertFeedback(ctx context.Context, records []dataset.Record) error {
	if len(records) == 0 {
		return nil
	}
	first, err := m.reserve(ctx, len(records))
	if err != nil {
		return errors.Trace(err)
	}
	docs := lo.Map(records, func(record dataset.Record, i int) any {
		return mongoFeedback{
			Seq:       first + int64(i),
			UserId:    record.UserId,
			SessionId: record.SessionId,
			ItemId:    record.ItemId,
			Rating:    record.Rating,
		}
	})
	_, err = m.feedback().InsertMany(ctx, docs)
	return errors.Trace(err)
}

func (m MongoDB) CountFeedback(ctx context.Context) (int, error) {
	n, err := m.feedback().CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, errors.Trace(err)
	}
	return int(n), nil
}

func (m MongoDB) GetFeedback(ctx context.Context) ([]dataset.Record, error) {
	cur, err := m.feedback().Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"_id": 1}))
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer cur.Close(ctx)
	var records []dataset.Record
	for cur.Next(ctx) {
		var doc mongoFeedback
		if err = cur.Decode(&doc); err != nil {
			return nil, errors.Trace(err)
		}
		records = append(records, doc.toRecord())
	}
	return records, errors.Trace(cur.Err())
}

func (m MongoDB) GetFeedbackStream(ctx context.Context, batchSize int) (chan []dataset.Record, chan error) {
	feedbackChan := make(chan []dataset.Record, bufSize)
	errChan := make(chan error, 1)
	go func() {
		defer close(feedbackChan)
		defer close(errChan)
		cur, err := m.feedback().Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"_id": 1}))
		if err != nil {
			errChan <- errors.Trace(err)
			return
		}
		defer cur.Close(ctx)
		records := make([]dataset.Record, 0, batchSize)
		for cur.Next(ctx) {
			var doc mongoFeedback
			if err = cur.Decode(&doc); err != nil {
				errChan <- errors.Trace(err)
				return
			}
			records = append(records, doc.toRecord())
			if len(records) == batchSize {
				select {
				case feedbackChan <- records:
				case <-ctx.Done():
					errChan <- errors.Trace(ctx.Err())
					return
				}
				records = make([]dataset.Record, 0, batchSize)
			}
		}
		if err = cur.Err(); err != nil {
			errChan <- errors.Trace(err)
			return
		}
		if len(records) > 0 {
			select {
			case feedbackChan <- records:
			case <-ctx.Done():
				errChan <- errors.Trace(ctx.Err())
				return
			}
		}
		errChan <- nil
	}()
	return feedbackChan, errChan
}
