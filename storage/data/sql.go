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
	"database/sql"

	"github.com/XSAM/otelsql"
	"github.com/gorse-io/affinity/dataset"
	"github.com/gorse-io/affinity/storage"
	"github.com/juju/errors"
	_ "github.com/lib/pq"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"
)

type SQLDriver int

const (
	MySQL SQLDriver = iota
	Postgres
	SQLite
)

// driverName is the database/sql driver registered for the SQLDriver.
func (d SQLDriver) driverName() string {
	switch d {
	case MySQL:
		return "mysql"
	case Postgres:
		return "postgres"
	default:
		return "sqlite"
	}
}

// system is the OpenTelemetry db.system attribute value.
func (d SQLDriver) system() string {
	if d == Postgres {
		return "postgresql"
	}
	return d.driverName()
}

func (d SQLDriver) dialector(conn *sql.DB) gorm.Dialector {
	switch d {
	case MySQL:
		return mysql.New(mysql.Config{Conn: conn})
	case Postgres:
		return postgres.New(postgres.Config{Conn: conn})
	default:
		return sqlite.Dialector{Conn: conn}
	}
}

// openSQL connects through an instrumented connection pool shared with gorm.
func openSQL(driver SQLDriver, dataSourceName, tablePrefix string) (*SQLDatabase, error) {
	client, err := otelsql.Open(driver.driverName(), dataSourceName,
		otelsql.WithAttributes(attribute.String("db.system", driver.system())),
		otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
	)
	if err != nil {
		return nil, errors.Trace(err)
	}
	gormDB, err := gorm.Open(driver.dialector(client), storage.NewGORMConfig(tablePrefix))
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &SQLDatabase{
		TablePrefix: storage.TablePrefix(tablePrefix),
		gormDB:      gormDB,
		client:      client,
		driver:      driver,
	}, nil
}

// SQLFeedback is a feedback row. Seq keeps insertion order.
type SQLFeedback struct {
	Seq       int64   `gorm:"column:seq;primaryKey;autoIncrement"`
	UserId    string  `gorm:"column:user_id;type:varchar(256);not null;index"`
	SessionId string  `gorm:"column:session_id;type:varchar(256);not null"`
	ItemId    int64   `gorm:"column:item_id;not null;index"`
	Rating    float32 `gorm:"column:rating;not null"`
}

func fromRecord(record dataset.Record, _ int) SQLFeedback {
	return SQLFeedback{
		UserId:    record.UserId,
		SessionId: record.SessionId,
		ItemId:    record.ItemId,
		Rating:    record.Rating,
	}
}

func (f SQLFeedback) toRecord() dataset.Record {
	return dataset.Record{
		UserId:    f.UserId,
		SessionId: f.SessionId,
		ItemId:    f.ItemId,
		Rating:    f.Rating,
	}
}

// SQLDatabase stores feedback in MySQL, Postgres or SQLite.
type SQLDatabase struct {
	storage.TablePrefix
	gormDB *gorm.DB
	client *sql.DB
	driver SQLDriver
}

// Init creates the feedback table.
func (d *SQLDatabase) Init() error {
	tx := d.gormDB
	if d.driver == MySQL {
		tx = tx.Set("gorm:table_options", "ENGINE=InnoDB")
	}
	if err := tx.AutoMigrate(&SQLFeedback{}); err != nil {
		return errors.Trace(err)
	}
	return nil
}

func (d *SQLDatabase) Ping() error {
	return d.client.Ping()
}

func (d *SQLDatabase) Close() error {
	return d.client.Close()
}

// Purge deletes all feedback.
func (d *SQLDatabase) Purge() error {
	if err := d.gormDB.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&SQLFeedback{}).Error; err != nil {
		return errors.Trace(err)
	}
	return nil
}

// BatchInsertFeedback appends records after the existing ones.
func (d *SQLDatabase) BatchInsertFeedback(ctx context.Context, records []dataset.Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := lo.Map(records, fromRecord)
	if err := d.gormDB.WithContext(ctx).CreateInBatches(rows, 1000).Error; err != nil {
		return errors.Trace(err)
	}
	return nil
}

func (d *SQLDatabase) CountFeedback(ctx context.Context) (int, error) {
	var count int64
	if err := d.gormDB.WithContext(ctx).Model(&SQLFeedback{}).Count(&count).Error; err != nil {
		return 0, errors.Trace(err)
	}
	return int(count), nil
}

// GetFeedback returns all records in insertion order.
func (d *SQLDatabase) GetFeedback(ctx context.Context) ([]dataset.Record, error) {
	var rows []SQLFeedback
	if err := d.gormDB.WithContext(ctx).Order("seq").Find(&rows).Error; err != nil {
		return nil, errors.Trace(err)
	}
	return lo.Map(rows, func(row SQLFeedback, _ int) dataset.Record {
		return row.toRecord()
	}), nil
}

// GetFeedbackStream reads records in insertion order and sends them in batches.
func (d *SQLDatabase) GetFeedbackStream(ctx context.Context, batchSize int) (chan []dataset.Record, chan error) {
	feedbackChan := make(chan []dataset.Record, bufSize)
	errChan := make(chan error, 1)
	go func() {
		defer close(feedbackChan)
		defer close(errChan)
		result, err := d.gormDB.WithContext(ctx).Model(&SQLFeedback{}).Order("seq").Rows()
		if err != nil {
			errChan <- errors.Trace(err)
			return
		}
		defer result.Close()
		records := make([]dataset.Record, 0, batchSize)
		for result.Next() {
			var row SQLFeedback
			if err = d.gormDB.ScanRows(result, &row); err != nil {
				errChan <- errors.Trace(err)
				return
			}
			records = append(records, row.toRecord())
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
		if err = result.Err(); err != nil {
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
