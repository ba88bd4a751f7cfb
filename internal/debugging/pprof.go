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

// Package debugging exposes the pprof handlers while a long read runs.
package debugging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"strconv"
	"strings"
)

// PprofPortEnv names the variable that enables the pprof server.
const PprofPortEnv = "ROWSTREAM_PPROF_PORT"

// PprofPort reads the pprof port from the environment. The server is off
// unless the variable holds a positive port number.
func PprofPort() int {
	v := strings.TrimSpace(os.Getenv(PprofPortEnv))
	switch strings.ToLower(v) {
	case "", "0", "false", "off":
		return 0
	}
	port, err := strconv.Atoi(v)
	if err != nil || port < 0 || port > 65535 {
		slog.Warn("Invalid pprof port, pprof disabled", slog.String("env", PprofPortEnv), slog.String("value", v))
		return 0
	}
	return port
}

// RunPprof serves pprof on localhost:port until ctx is done and returns the
// bound address. A port of zero does nothing.
func RunPprof(ctx context.Context, port int) (string, error) {
	if port <= 0 {
		return "", nil
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
	if err != nil {
		return "", fmt.Errorf("failed to listen for pprof: %w", err)
	}
	server := &http.Server{Handler: http.DefaultServeMux}

	go func() {
		slog.Info("Starting pprof server", slog.String("address", ln.Addr().String()))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Pprof server error", slog.Any("error", err))
		}
	}()

	go func() {
		<-ctx.Done()
		slog.Info("Shutting down pprof server")
		if err := server.Shutdown(context.Background()); err != nil {
			slog.Error("Error shutting down pprof server", slog.Any("error", err))
		}
	}()

	return ln.Addr().String(), nil
}
