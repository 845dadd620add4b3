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
	"io"
	"path"
	"strings"

	"github.com/gorse-io/affinity/config"
	"github.com/juju/errors"
)

// Writer writes a blob. Close commits it, CloseWithError discards it.
type Writer interface {
	io.WriteCloser
	CloseWithError(err error) error
}

// Store keeps serialized models.
type Store interface {
	// Open a blob for reading.
	Open(name string) (io.ReadCloser, error)
	// Create a blob for writing. The done channel is closed once the blob is
	// persisted or discarded. Close on the writer waits for it and reports
	// upload errors.
	Create(name string) (Writer, chan struct{}, error)
	List() ([]string, error)
	Remove(name string) error
}

// Open a blob store by type.
func Open(cfg config.BlobConfig) (Store, error) {
	switch cfg.Type {
	case "", "posix":
		return NewPOSIX(cfg.POSIX.Dir), nil
	case "s3":
		return NewS3(cfg.S3)
	case "gcs":
		return NewGCS(cfg.GCS)
	case "azure":
		return NewAzureBlob(cfg.Azure)
	}
	return nil, errors.NotSupportedf("blob store %q", cfg.Type)
}

// pipeWriter feeds an upload goroutine. Close returns after the upload
// finished with the upload error, if any.
type pipeWriter struct {
	*io.PipeWriter
	done chan struct{}
	err  error
}

func newPipeWriter(upload func(r io.Reader) error) *pipeWriter {
	pr, pw := io.Pipe()
	w := &pipeWriter{PipeWriter: pw, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		w.err = upload(pr)
		_ = pr.CloseWithError(w.err)
	}()
	return w
}

func (w *pipeWriter) Close() error {
	if err := w.PipeWriter.Close(); err != nil {
		return err
	}
	<-w.done
	return w.err
}

// CloseWithError fails the upload so that nothing is committed under the name.
func (w *pipeWriter) CloseWithError(err error) error {
	if err == nil {
		err = io.ErrClosedPipe
	}
	_ = w.PipeWriter.CloseWithError(err)
	<-w.done
	return nil
}

// keyspace maps blob names to object keys below a prefix of a bucket.
type keyspace string

func newKeyspace(prefix string) keyspace {
	return keyspace(strings.Trim(prefix, "/"))
}

func (k keyspace) key(name string) string {
	return path.Join(string(k), name)
}

// dir is the listing prefix. It ends with a slash unless the keyspace is the whole bucket.
func (k keyspace) dir() string {
	if k == "" {
		return ""
	}
	return string(k) + "/"
}

// name converts an object key back to a blob name.
func (k keyspace) name(key string) (string, bool) {
	if !strings.HasPrefix(key, k.dir()) {
		return "", false
	}
	name := strings.TrimPrefix(key, k.dir())
	return name, name != ""
}
