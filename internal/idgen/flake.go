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
	"encoding/base32"
	"encoding/binary"
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/sony/sonyflake"
)

// SonyFlakeGenerator makes positive int64 ids that increase roughly in time order.
type SonyFlakeGenerator struct {
	sf *sonyflake.Sonyflake
}

var defaultFlake = sync.OnceValues(newFlakeGenerator)

func newFlakeGenerator() (*SonyFlakeGenerator, error) {
	sf, err := sonyflake.New(sonyflake.Settings{
		StartTime: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		return nil, err
	}
	if sf == nil {
		return nil, errors.New("failed to create Sonyflake instance")
	}
	return &SonyFlakeGenerator{sf: sf}, nil
}

// NextID returns the next id, or a random positive id if the generator
// cannot produce one.
func (g *SonyFlakeGenerator) NextID() int64 {
	v, err := g.sf.NextID()
	if err != nil {
		return rand.Int64()
	}
	return int64(v)
}

// NextBase32ID returns NextID encoded as unpadded lower-case base32.
func (g *SonyFlakeGenerator) NextBase32ID() string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(g.NextID()))
	return strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b[:]))
}

// NextID returns an id from the process-wide generator. Hosts without a
// private address, where Sonyflake cannot derive a machine id, get random ids.
func NextID() int64 {
	g, err := defaultFlake()
	if err != nil {
		return rand.Int64()
	}
	return g.NextID()
}

// NextBase32ID is NextID in base32 form.
func NextBase32ID() string {
	g, err := defaultFlake()
	if err != nil {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], rand.Uint64())
		return strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b[:]))
	}
	return g.NextBase32ID()
}
