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

package idgen

import (
	"sort"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestULIDGenerator_Monotonic(t *testing.T) {
	gen := NewULIDGenerator()
	now := time.Now()

	ids := make([]string, 100)
	for i := range ids {
		ids[i] = gen.Make(now)
	}
	assert.True(t, sort.StringsAreSorted(ids), "ids made for the same instant should sort in creation order")

	parsed, err := ulid.Parse(ids[0])
	require.NoError(t, err)
	assert.Equal(t, ulid.Timestamp(now), parsed.Time())
}

func TestNextULID(t *testing.T) {
	a := NextULID()
	b := NextULID()
	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
}
