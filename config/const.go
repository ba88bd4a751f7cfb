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

package config

const (
	// EnvPrefix prefixes every environment variable read by Load.
	EnvPrefix = "ROWSTREAM"

	// ServiceName is reported to telemetry when OTEL_SERVICE_NAME is unset.
	ServiceName = "rowstream"

	// ConfigName is the base name of the optional config file in the working directory.
	ConfigName = "config"
)
