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
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/rowstream/config"
	"github.com/cardinalhq/rowstream/internal/cloudstorage"
	"github.com/cardinalhq/rowstream/internal/logctx"
	"github.com/cardinalhq/rowstream/internal/streamreader"
)

var schemaJSON bool

var schemaCmd = &cobra.Command{
	Use:   "schema <input>",
	Short: "Print the columns and row count of a parquet or ORC input",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		return runWithTelemetry(c, func(ctx context.Context, cfg *config.Config) error {
			return runSchema(ctx, cfg, args[0], stdout)
		})
	},
}

func init() {
	schemaCmd.Flags().BoolVar(&schemaJSON, "json", false, "Print the schema as JSON")
}

// tableSchema is what the schema command reports.
type tableSchema struct {
	Input   string   `json:"input"`
	Format  string   `json:"format"`
	Columns []string `json:"columns"`
	Rows    int64    `json:"rows"`
	Bytes   int64    `json:"bytes"`
	Spilled bool     `json:"spilled"`
}

func runSchema(ctx context.Context, cfg *config.Config, name string, out io.Writer) error {
	openers := cloudstorage.NewOpeners(cfg.CloudStorage())
	defer func() {
		if err := openers.Close(); err != nil {
			logctx.FromContext(ctx).Warn("Failed to close storage clients", slog.Any("error", err))
		}
	}()

	body, inferName, err := openInput(ctx, openers, name)
	if err != nil {
		return err
	}
	opts, body, err := resolveOptions(cfg, inferName, body)
	defer func() { _ = body.Close() }()
	if err != nil {
		return err
	}
	if !opts.Encoding.Table() {
		return fmt.Errorf("%s: schema needs parquet or orc input, got %s", name, opts.Encoding)
	}

	opts.Logger = logctx.FromContext(ctx)
	sch, err := loadSchema(ctx, body, opts)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	sch.Input = name

	if schemaJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(sch)
	}
	if _, err := fmt.Fprintf(out, "format: %s\nrows: %d\nbytes: %d\nspilled: %t\ncolumns:\n",
		sch.Format, sch.Rows, sch.Bytes, sch.Spilled); err != nil {
		return err
	}
	for _, col := range sch.Columns {
		if _, err := fmt.Fprintf(out, "  %s\n", col); err != nil {
			return err
		}
	}
	return nil
}

// loadSchema decodes the table metadata without materializing any rows.
func loadSchema(ctx context.Context, body io.Reader, opts streamreader.Options) (tableSchema, error) {
	dec, err := streamreader.NewDecompressor(streamreader.NewReaderSource(body, opts.ChunkSize), opts.Compression)
	if err != nil {
		return tableSchema{}, err
	}
	defer func() { _ = dec.Close() }()

	loader := streamreader.NewTableLoader(opts.Decoder(), opts.Table.Spill(), opts.Logger)
	defer func() {
		if err := loader.Close(); err != nil {
			opts.Logger.Warn("Failed to release table", slog.Any("error", err))
		}
	}()

	table, err := loader.Load(ctx, dec)
	if err != nil {
		return tableSchema{}, err
	}
	return tableSchema{
		Format:  opts.Encoding.String(),
		Columns: table.Columns(),
		Rows:    table.NumRows(),
		Bytes:   dec.BytesOut(),
		Spilled: loader.Spilled(),
	}, nil
}
