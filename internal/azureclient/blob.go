// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package azureclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"go.opentelemetry.io/otel/trace"
)

// BlobClient pairs a blob client with the tracer used for blob reads.
type BlobClient struct {
	Client *azblob.Client
	Tracer trace.Tracer
}

type blobConfig struct {
	StorageAccount string
	Endpoint       string
}

// BlobOption configures GetBlob.
type BlobOption func(*blobConfig)

// WithBlobStorageAccount derives the endpoint https://<account>.blob.core.windows.net/.
func WithBlobStorageAccount(storageAccount string) BlobOption {
	return func(c *blobConfig) {
		c.StorageAccount = storageAccount
	}
}

// WithBlobEndpoint sets the service URL directly, e.g. for Azurite.
func WithBlobEndpoint(endpoint string) BlobOption {
	return func(c *blobConfig) {
		c.Endpoint = endpoint
	}
}

func (c blobConfig) serviceURL() (string, error) {
	if c.Endpoint != "" {
		return c.Endpoint, nil
	}
	if c.StorageAccount == "" {
		return "", fmt.Errorf("azure blob storage needs an account name or an endpoint")
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net/", strings.ToLower(c.StorageAccount)), nil
}

// GetBlob returns a cached client for the service URL the options resolve to.
func (m *Manager) GetBlob(_ context.Context, opts ...BlobOption) (*BlobClient, error) {
	var bc blobConfig
	for _, o := range opts {
		o(&bc)
	}
	url, err := bc.serviceURL()
	if err != nil {
		return nil, err
	}

	m.RLock()
	client, ok := m.blobClients[url]
	m.RUnlock()
	if ok {
		return client, nil
	}

	m.Lock()
	defer m.Unlock()
	if client, ok = m.blobClients[url]; ok {
		return client, nil
	}
	c, err := azblob.NewClient(url, m.cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}
	client = &BlobClient{Client: c, Tracer: m.tracer}
	m.blobClients[url] = client
	return client, nil
}
