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
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Manager creates and caches GCS clients using Application Default Credentials.
type Manager struct {
	sync.Mutex
	storageClients map[storageClientKey]*StorageClient
	tracer         trace.Tracer
}

// NewManager creates an empty manager. Clients are created on first use.
func NewManager() *Manager {
	return &Manager{
		storageClients: make(map[storageClientKey]*StorageClient),
		tracer:         otel.Tracer("github.com/cardinalhq/rowstream/internal/gcpclient"),
	}
}

// Close closes every cached client.
func (m *Manager) Close() error {
	m.Lock()
	defer m.Unlock()
	var first error
	for key, c := range m.storageClients {
		if err := c.Client.Close(); err != nil && first == nil {
			first = err
		}
		delete(m.storageClients, key)
	}
	return first
}
