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
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cardinalhq/rowstream/config"
	"github.com/cardinalhq/rowstream/internal/debugging"
	"github.com/cardinalhq/rowstream/internal/idgen"
	"github.com/cardinalhq/rowstream/internal/logctx"
)

// readerFlags are the persistent flags that override the loaded config.
type readerFlags struct {
	compression     string
	encoding        string
	header          bool
	dialect         string
	delimiter       string
	quoteChar       string
	escapeChar      string
	bufferSize      int
	skipInvalidRows bool
	maxRecordBytes  int
	parquetEngine   string
	spillDir        string
	maxMemoryBytes  int64
	disableSpill    bool
}

var flags readerFlags

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rowstream",
	Short: "Stream rows out of compressed delimited text, parquet and ORC",
	Long: `Read a local file, stdin or an object in S3, GCS or Azure Blob Storage,
decompress it on the fly and emit its rows.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.compression, "compression", "auto", "Compression codec: none, gzip, bzip2, zstd, xz, lz4 or auto")
	pf.StringVar(&flags.encoding, "encoding", "auto", "Input encoding: csv, parquet, orc or auto")
	pf.BoolVar(&flags.header, "header", false, "Treat the first row as a header")
	pf.StringVar(&flags.dialect, "dialect", "excel", "Delimited text dialect: excel, excel-tab or unix")
	pf.StringVar(&flags.delimiter, "delimiter", "", "Field delimiter override (a single character or \"tab\")")
	pf.StringVar(&flags.quoteChar, "quote-char", "", "Quote character override, or \"none\"")
	pf.StringVar(&flags.escapeChar, "escape-char", "", "Escape character override")
	pf.IntVar(&flags.bufferSize, "buffer-size", 0, "Batch threshold in bytes for delimited text")
	pf.BoolVar(&flags.skipInvalidRows, "skip-invalid-rows", false, "Drop malformed rows instead of failing")
	pf.IntVar(&flags.maxRecordBytes, "max-record-bytes", 0, "Maximum size of a single text record, 0 for unlimited")
	pf.StringVar(&flags.parquetEngine, "parquet-engine", "", "Parquet decoder: arrow or parquet-go")
	pf.StringVar(&flags.spillDir, "spill-dir", "", "Directory for table spill files")
	pf.Int64Var(&flags.maxMemoryBytes, "max-memory-bytes", 0, "In-memory budget for parquet and ORC input before spilling")
	pf.BoolVar(&flags.disableSpill, "disable-spill", false, "Fail instead of spilling table input to disk")

	rootCmd.AddCommand(catCmd)
	rootCmd.AddCommand(headerCmd)
	rootCmd.AddCommand(schemaCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// loadConfig reads config.yaml and the environment, then applies any flag
// the user set explicitly.
func loadConfig(fs *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	flags.apply(fs, cfg)
	return cfg, nil
}

func (f readerFlags) apply(fs *pflag.FlagSet, cfg *config.Config) {
	set := func(name string, fn func()) {
		if fs.Changed(name) {
			fn()
		}
	}
	set("compression", func() { cfg.Reader.Compression = f.compression })
	set("encoding", func() { cfg.Reader.Encoding = f.encoding })
	set("header", func() { cfg.Reader.IgnoreHeader = !f.header })
	set("dialect", func() { cfg.Reader.Dialect = f.dialect })
	set("delimiter", func() { cfg.Reader.Delimiter = f.delimiter })
	set("quote-char", func() { cfg.Reader.QuoteChar = f.quoteChar })
	set("escape-char", func() { cfg.Reader.EscapeChar = f.escapeChar })
	set("buffer-size", func() { cfg.Reader.BufferSize = f.bufferSize })
	set("skip-invalid-rows", func() { cfg.Reader.SkipInvalidRows = f.skipInvalidRows })
	set("max-record-bytes", func() { cfg.Reader.MaxRecordBytes = f.maxRecordBytes })
	set("parquet-engine", func() { cfg.Table.ParquetEngine = f.parquetEngine })
	set("spill-dir", func() { cfg.Table.SpillDir = f.spillDir })
	set("max-memory-bytes", func() { cfg.Table.MaxMemoryBytes = f.maxMemoryBytes })
	set("disable-spill", func() { cfg.Table.DisableSpill = f.disableSpill })
}

// runWithTelemetry wraps a command body with logger and OTel setup and
// makes sure the SDK is shut down however the body returns.
func runWithTelemetry(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config) error) (err error) {
	ctx, doneFx, err := setupTelemetry(config.ServiceName, nil)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer func() {
		if shutdownErr := doneFx(); shutdownErr != nil {
			slog.Warn("Telemetry shutdown failed", slog.Any("error", shutdownErr))
		}
	}()

	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	ctx = logctx.With(ctx,
		slog.String("command", cmd.Name()),
		slog.String("run", idgen.NextBase32ID()))
	if _, err := debugging.RunPprof(ctx, debugging.PprofPort()); err != nil {
		logctx.FromContext(ctx).Warn("Pprof server not started", slog.Any("error", err))
	}
	start := commandStart(ctx, cmd.Name())
	err = fn(ctx, cfg)
	commandDone(ctx, cmd.Name(), start, err)
	return err
}
