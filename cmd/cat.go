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
	"bufio"
	"context"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/rowstream/config"
	"github.com/cardinalhq/rowstream/internal/streamreader"
)

var (
	catFormat string
	catLimit  int64
	catStats  bool

	stdout io.Writer = os.Stdout
)

var catCmd = &cobra.Command{
	Use:   "cat [input...]",
	Short: "Stream rows to stdout as CSV or JSON lines",
	Long: `Stream the rows of each input to stdout. An input is a local path, "-" for
stdin, or an s3://, gs:// or azblob:// URI. With --header the first row of
each input is written once as the CSV header or used as JSON object keys.`,
	RunE: func(c *cobra.Command, args []string) error {
		switch catFormat {
		case "csv", "jsonl":
		default:
			return fmt.Errorf("unsupported output format %q, want csv or jsonl", catFormat)
		}
		return runWithTelemetry(c, func(ctx context.Context, cfg *config.Config) error {
			return runCat(ctx, cfg, args, stdout)
		})
	},
}

func init() {
	catCmd.Flags().StringVarP(&catFormat, "format", "f", "csv", "Output format: csv or jsonl")
	catCmd.Flags().Int64VarP(&catLimit, "limit", "n", 0, "Stop after this many data rows per input, 0 for all")
	catCmd.Flags().BoolVar(&catStats, "stats", false, "Log reader statistics for each input")
}

func runCat(ctx context.Context, cfg *config.Config, names []string, out io.Writer) error {
	bw := bufio.NewWriter(out)
	w := newRowWriter(catFormat, bw)

	err := forEachInput(ctx, cfg, names, func(name string, r *streamreader.Reader) error {
		if !cfg.Reader.IgnoreHeader {
			header, err := r.Header(ctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			if err := w.header(header); err != nil {
				return err
			}
		}

		var n int64
		for row, err := range r.All(ctx) {
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			if err := w.row(row); err != nil {
				return err
			}
			n++
			if catLimit > 0 && n >= catLimit {
				break
			}
		}
		if catStats {
			s := r.Stats()
			fmt.Fprintf(logOutput, "%s: rows=%d records=%d batches=%d dropped=%d compressed=%d decompressed=%d spilled=%t\n",
				name, s.RowsReturned, s.Records, s.BatchesFlushed, s.RowsDropped,
				s.CompressedBytes, s.DecompressedBytes, s.Spilled)
		}
		return nil
	})
	if ferr := w.flush(); ferr != nil && err == nil {
		err = ferr
	}
	if ferr := bw.Flush(); ferr != nil && err == nil {
		err = ferr
	}
	return err
}

// rowWriter renders rows in one output format.
type rowWriter struct {
	format string
	csv    *csv.Writer
	json   *json.Encoder

	keys       []string
	headerSent bool
}

func newRowWriter(format string, w io.Writer) *rowWriter {
	rw := &rowWriter{format: format}
	if format == "jsonl" {
		rw.json = json.NewEncoder(w)
		rw.json.SetEscapeHTML(false)
	} else {
		rw.csv = csv.NewWriter(w)
	}
	return rw
}

// header records the column names. CSV output writes them once for the
// whole run; later inputs are expected to share the same columns.
func (w *rowWriter) header(row streamreader.Row) error {
	w.keys = make([]string, len(row))
	for i, v := range row {
		w.keys[i] = cellString(v)
	}
	if w.csv == nil || w.headerSent {
		return nil
	}
	w.headerSent = true
	return w.csv.Write(w.keys)
}

func (w *rowWriter) row(row streamreader.Row) error {
	if w.json != nil {
		return w.json.Encode(w.jsonRow(row))
	}
	rec := make([]string, len(row))
	for i, v := range row {
		rec[i] = cellString(v)
	}
	return w.csv.Write(rec)
}

// jsonRow keys values by header name when a header is known, and emits a
// plain array otherwise. Columns beyond the header are keyed by position.
func (w *rowWriter) jsonRow(row streamreader.Row) any {
	if w.keys == nil {
		vals := make([]any, len(row))
		for i, v := range row {
			vals[i] = jsonCell(v)
		}
		return vals
	}
	obj := make(map[string]any, len(row))
	for i, v := range row {
		key := fmt.Sprintf("_%d", i)
		if i < len(w.keys) {
			key = w.keys[i]
		}
		obj[key] = jsonCell(v)
	}
	return obj
}

func (w *rowWriter) flush() error {
	if w.csv != nil {
		w.csv.Flush()
		return w.csv.Error()
	}
	return nil
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return base64.StdEncoding.EncodeToString(x)
	default:
		return fmt.Sprint(x)
	}
}

func jsonCell(v any) any {
	if b, ok := v.([]byte); ok {
		return base64.StdEncoding.EncodeToString(b)
	}
	return v
}
