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
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/gorse-io/affinity/base/log"
	"github.com/gorse-io/affinity/config"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// AzureBlob stores models in an Azure Blob Storage container.
type AzureBlob struct {
	client    *azblob.Client
	container string
	keys      keyspace
}

func NewAzureBlob(cfg config.AzureBlobConfig) (*AzureBlob, error) {
	client, err := newAzureClient(cfg)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &AzureBlob{
		client:    client,
		container: cfg.Container,
		keys:      newKeyspace(cfg.Prefix),
	}, nil
}

// newAzureClient prefers the connection string over shared key credentials.
func newAzureClient(cfg config.AzureBlobConfig) (*azblob.Client, error) {
	if cfg.ConnectionString != "" {
		return azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	}
	if cfg.AccountName == "" || cfg.AccountKey == "" {
		return nil, errors.NotValidf("azure blob credentials (account_name and account_key or connection_string)")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
	}
	credential, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return azblob.NewClientWithSharedKeyCredential(endpoint, credential, nil)
}

func (a *AzureBlob) Open(name string) (io.ReadCloser, error) {
	resp, err := a.client.DownloadStream(context.Background(), a.container, a.keys.key(name), nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return nil, errors.NotFoundf("blob %s", name)
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	return resp.Body, nil
}

func (a *AzureBlob) Create(name string) (Writer, chan struct{}, error) {
	key := a.keys.key(name)
	w := newPipeWriter(func(r io.Reader) error {
		if _, err := a.client.UploadStream(context.Background(), a.container, key, r, nil); err != nil {
			log.Logger().Error("failed to upload blob to azure", zap.String("key", key), zap.Error(err))
			return errors.Trace(err)
		}
		return nil
	})
	return w, w.done, nil
}

func (a *AzureBlob) List() ([]string, error) {
	var names []string
	dir := a.keys.dir()
	pager := a.client.NewListBlobsFlatPager(a.container, &azblob.ListBlobsFlatOptions{Prefix: &dir})
	for pager.More() {
		resp, err := pager.NextPage(context.Background())
		if err != nil {
			return nil, errors.Trace(err)
		}
		for _, item := range resp.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			if name, ok := a.keys.name(*item.Name); ok {
				names = append(names, name)
			}
		}
	}
	return names, nil
}

func (a *AzureBlob) Remove(name string) error {
	_, err := a.client.DeleteBlob(context.Background(), a.container, a.keys.key(name), nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return errors.NotFoundf("blob %s", name)
	}
	return errors.Trace(err)
}
