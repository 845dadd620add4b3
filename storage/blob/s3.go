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
	"net/http"

	"github.com/gorse-io/affinity/base/log"
	"github.com/gorse-io/affinity/config"
	"github.com/juju/errors"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// S3 stores models in an S3 compatible bucket.
type S3 struct {
	*minio.Client
	bucket string
	keys   keyspace
}

func NewS3(cfg config.S3Config) (*S3, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &S3{
		Client: client,
		bucket: cfg.Bucket,
		keys:   newKeyspace(cfg.Prefix),
	}, nil
}

// Open an object for reading. GetObject is lazy, so existence is checked first.
func (s *S3) Open(name string) (io.ReadCloser, error) {
	key := s.keys.key(name)
	if _, err := s.Client.StatObject(context.Background(), s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).StatusCode == http.StatusNotFound {
			return nil, errors.NotFoundf("blob %s", name)
		}
		return nil, errors.Trace(err)
	}
	object, err := s.Client.GetObject(context.Background(), s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return object, nil
}

func (s *S3) Create(name string) (Writer, chan struct{}, error) {
	key := s.keys.key(name)
	w := newPipeWriter(func(r io.Reader) error {
		if _, err := s.Client.PutObject(context.Background(), s.bucket, key, r, -1, minio.PutObjectOptions{}); err != nil {
			log.Logger().Error("failed to upload blob to s3", zap.String("key", key), zap.Error(err))
			return errors.Trace(err)
		}
		return nil
	})
	return w, w.done, nil
}

func (s *S3) List() ([]string, error) {
	var names []string
	for object := range s.Client.ListObjects(context.Background(), s.bucket, minio.ListObjectsOptions{
		Prefix:    s.keys.dir(),
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, errors.Trace(object.Err)
		}
		if name, ok := s.keys.name(object.Key); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

func (s *S3) Remove(name string) error {
	return errors.Trace(s.Client.RemoveObject(context.Background(), s.bucket, s.keys.key(name), minio.RemoveObjectOptions{}))
}
