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

package cloudstorage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		want    Location
		wantErr bool
	}{
		{"s3", "s3://logs/2025/01/rows.csv.gz", Location{SchemeS3, "logs", "2025/01/rows.csv.gz"}, false},
		{"s3a alias", "s3a://logs/rows.csv", Location{SchemeS3, "logs", "rows.csv"}, false},
		{"gcs", "gs://bucket/a/b.parquet", Location{SchemeGCS, "bucket", "a/b.parquet"}, false},
		{"gcs alias", "gcs://bucket/a.orc", Location{SchemeGCS, "bucket", "a.orc"}, false},
		{"azure", "azblob://container/dir/blob.csv", Location{SchemeAzure, "container", "dir/blob.csv"}, false},
		{"file uri", "file:///tmp/rows.csv", Location{Scheme: SchemeFile, Key: "/tmp/rows.csv"}, false},
		{"plain absolute path", "/tmp/rows.csv", Location{Scheme: SchemeFile, Key: "/tmp/rows.csv"}, false},
		{"plain relative path", "data/rows.csv", Location{Scheme: SchemeFile, Key: "data/rows.csv"}, false},
		{"empty", "", Location{}, true},
		{"missing key", "s3://bucket/", Location{}, true},
		{"missing bucket", "gs:///key", Location{}, true},
		{"unknown scheme", "ftp://host/file", Location{}, true},
		{"file with host", "file://remote/tmp/x", Location{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseURI(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocationString(t *testing.T) {
	assert.Equal(t, "s3://b/k/x.csv", Location{SchemeS3, "b", "k/x.csv"}.String())
	assert.Equal(t, "/tmp/x.csv", Location{Scheme: SchemeFile, Key: "/tmp/x.csv"}.String())
}
