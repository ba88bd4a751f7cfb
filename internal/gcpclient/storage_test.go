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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageOptions(t *testing.T) {
	var cfg storageConfig
	WithImpersonateServiceAccount("reader@project.iam.gserviceaccount.com")(&cfg)
	WithEndpoint("http://localhost:4443/storage/v1/")(&cfg)

	assert.Equal(t, "reader@project.iam.gserviceaccount.com", cfg.ServiceAccountEmail)
	assert.Equal(t, "http://localhost:4443/storage/v1/", cfg.Endpoint)
	assert.Equal(t, storageClientKey{
		ServiceAccountEmail: "reader@project.iam.gserviceaccount.com",
		Endpoint:            "http://localhost:4443/storage/v1/",
	}, storageClientKey(cfg))
}

func TestGetStorage_EndpointClientIsCached(t *testing.T) {
	m := NewManager()
	t.Cleanup(func() { _ = m.Close() })

	a, err := m.GetStorage(context.Background(), WithEndpoint("http://localhost:4443/storage/v1/"))
	require.NoError(t, err)
	b, err := m.GetStorage(context.Background(), WithEndpoint("http://localhost:4443/storage/v1/"))
	require.NoError(t, err)
	assert.Same(t, a, b)

	require.NoError(t, m.Close())
	assert.Empty(t, m.storageClients)
}
