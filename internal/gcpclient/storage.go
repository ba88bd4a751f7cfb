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

package gcpclient

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/impersonate"
	"google.golang.org/api/option"
)

// StorageClient pairs a GCS client with the tracer used for object reads.
type StorageClient struct {
	Client *storage.Client
	Tracer trace.Tracer
}

type storageClientKey struct {
	ServiceAccountEmail string
	Endpoint            string
}

type storageConfig struct {
	ServiceAccountEmail string
	Endpoint            string
}

// StorageOption configures GetStorage.
type StorageOption func(*storageConfig)

// WithImpersonateServiceAccount reads as the given service account.
func WithImpersonateServiceAccount(email string) StorageOption {
	return func(c *storageConfig) {
		c.ServiceAccountEmail = email
	}
}

// WithEndpoint overrides the JSON API endpoint, e.g. for fake-gcs-server.
func WithEndpoint(endpoint string) StorageOption {
	return func(c *storageConfig) {
		c.Endpoint = endpoint
	}
}

func (c storageConfig) clientOptions(ctx context.Context) ([]option.ClientOption, error) {
	var opts []option.ClientOption
	if c.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.Endpoint), option.WithoutAuthentication())
		return opts, nil
	}
	if c.ServiceAccountEmail != "" {
		ts, err := impersonate.CredentialsTokenSource(ctx, impersonate.CredentialsConfig{
			TargetPrincipal: c.ServiceAccountEmail,
			Scopes:          []string{storage.ScopeReadOnly},
		})
		if err != nil {
			return nil, fmt.Errorf("creating impersonated token source: %w", err)
		}
		opts = append(opts, option.WithTokenSource(ts))
	}
	return opts, nil
}

// GetStorage returns a cached client for the given options.
func (m *Manager) GetStorage(ctx context.Context, opts ...StorageOption) (*StorageClient, error) {
	var cfg storageConfig
	for _, o := range opts {
		o(&cfg)
	}
	key := storageClientKey(cfg)

	m.Lock()
	defer m.Unlock()
	if client, ok := m.storageClients[key]; ok {
		return client, nil
	}

	clientOpts, err := cfg.clientOptions(ctx)
	if err != nil {
		return nil, err
	}
	sc, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating GCP storage client: %w", err)
	}
	client := &StorageClient{Client: sc, Tracer: m.tracer}
	m.storageClients[key] = client
	return client, nil
}
