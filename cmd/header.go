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

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/rowstream/config"
	"github.com/cardinalhq/rowstream/internal/streamreader"
)

var headerCmd = &cobra.Command{
	Use:   "header [input...]",
	Short: "Print the header row of each input",
	Long: `Print the first row of each input, one column name per line. Only the
first chunks of delimited text are read; parquet and ORC input is loaded in
full to read its schema.`,
	RunE: func(c *cobra.Command, args []string) error {
		return runWithTelemetry(c, func(ctx context.Context, cfg *config.Config) error {
			return runHeader(ctx, cfg, args, stdout)
		})
	},
}

func runHeader(ctx context.Context, cfg *config.Config, names []string, out io.Writer) error {
	cfg.Reader.IgnoreHeader = false
	multi := len(names) > 1
	return forEachInput(ctx, cfg, names, func(name string, r *streamreader.Reader) error {
		header, err := r.Header(ctx)
		if errors.Is(err, io.EOF) {
			header = nil
		} else if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if multi {
			if _, err := fmt.Fprintf(out, "==> %s <==\n", name); err != nil {
				return err
			}
		}
		for _, col := range header {
			if _, err := fmt.Fprintln(out, cellString(col)); err != nil {
				return err
			}
		}
		return nil
	})
}
