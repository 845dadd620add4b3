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

package blob

import (
	"context"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"github.com/gorse-io/affinity/config"
	"github.com/juju/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// EmulatorEndpointEnv points the GCS client to an emulator without authentication.
const EmulatorEndpointEnv = "GCS_EMULATOR_ENDPOINT"

// GCS stores models in a Google Cloud Storage bucket.
type GCS struct {
	bucket *storage.BucketHandle
	keys   keyspace
}

func NewGCS(cfg config.GCSConfig) (*GCS, error) {
	var opts []option.ClientOption
	if endpoint := os.Getenv(EmulatorEndpointEnv); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint), option.WithoutAuthentication())
	} else if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &GCS{
		bucket: client.Bucket(cfg.Bucket),
		keys:   newKeyspace(cfg.Prefix),
	}, nil
}

func (g *GCS) Open(name string) (io.ReadCloser, error) {
	r, err := g.bucket.Object(g.keys.key(name)).NewReader(context.Background())
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, errors.NotFoundf("blob %s", name)
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	return r, nil
}

// Create returns the object writer directly. The object is committed by Close.
func (g *GCS) Create(name string) (Writer, chan struct{}, error) {
	ctx, cancel := context.WithCancel(context.Background())
	w := &gcsWriter{
		Writer: g.bucket.Object(g.keys.key(name)).NewWriter(ctx),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	return w, w.done, nil
}

type gcsWriter struct {
	*storage.Writer
	cancel context.CancelFunc
	done   chan struct{}
}

func (w *gcsWriter) Close() error {
	defer close(w.done)
	defer w.cancel()
	return errors.Trace(w.Writer.Close())
}

// CloseWithError cancels the upload before the object is finalized.
func (w *gcsWriter) CloseWithError(error) error {
	defer close(w.done)
	w.cancel()
	_ = w.Writer.Close()
	return nil
}

func (g *GCS) List() ([]string, error) {
	var names []string
	it := g.bucket.Objects(context.Background(), &storage.Query{Prefix: g.keys.dir()})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return names, nil
		} else if err != nil {
			return nil, errors.Trace(err)
		}
		if name, ok := g.keys.name(attrs.Name); ok {
			names = append(names, name)
		}
	}
}

func (g *GCS) Remove(name string) error {
	err := g.bucket.Object(g.keys.key(name)).Delete(context.Background())
	if errors.Is(err, storage.ErrObjectNotExist) {
		return errors.NotFoundf("blob %s", name)
	}
	return errors.Trace(err)
}
