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

package helpers

import (
	"os"
	"strings"
)

// GetBoolEnv reads a boolean environment variable. "true", "1", "yes", "on"
// and "enabled" (any case) are true; "false", "0", "no", "off" and
// "disabled" are false. Unset, empty or unrecognized values return
// defaultValue.
func GetBoolEnv(envVar string, defaultValue bool) bool {
	return parseBool(os.Getenv(envVar), defaultValue)
}

// AnyBoolEnv reports whether any of the named variables is set to a true value.
func AnyBoolEnv(envVars ...string) bool {
	for _, name := range envVars {
		if GetBoolEnv(name, false) {
			return true
		}
	}
	return false
}

func parseBool(v string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on", "enable", "enabled":
		return true
	case "false", "0", "no", "off", "disable", "disabled":
		return false
	default:
		return defaultValue
	}
}
