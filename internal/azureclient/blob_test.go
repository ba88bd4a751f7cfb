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
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken struct{}

func (staticToken) GetToken(context.Context, policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{Token: "test"}, nil
}

func TestBlobConfigServiceURL(t *testing.T) {
	tests := []struct {
		name    string
		opts    []BlobOption
		want    string
		wantErr bool
	}{
		{"account", []BlobOption{WithBlobStorageAccount("MyAccount")}, "https://myaccount.blob.core.windows.net/", false},
		{"endpoint wins", []BlobOption{WithBlobStorageAccount("a"), WithBlobEndpoint("http://127.0.0.1:10000/devstoreaccount1")}, "http://127.0.0.1:10000/devstoreaccount1", false},
		{"nothing", nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var bc blobConfig
			for _, o := range tt.opts {
				o(&bc)
			}
			got, err := bc.serviceURL()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetBlob_Caches(t *testing.T) {
	m := NewManagerWithCredential(staticToken{})

	a, err := m.GetBlob(context.Background(), WithBlobStorageAccount("acct"))
	require.NoError(t, err)
	b, err := m.GetBlob(context.Background(), WithBlobStorageAccount("acct"))
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = m.GetBlob(context.Background())
	assert.Error(t, err)
}
