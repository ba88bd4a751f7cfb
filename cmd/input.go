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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cardinalhq/rowstream/config"
	"github.com/cardinalhq/rowstream/internal/cloudstorage"
	"github.com/cardinalhq/rowstream/internal/helpers"
	"github.com/cardinalhq/rowstream/internal/logctx"
	"github.com/cardinalhq/rowstream/internal/streamreader"
)

// staleSpillAge is how old an orphaned spill file must be before a new run
// removes it.
const staleSpillAge = time.Hour

// stdinName selects standard input as the source.
const stdinName = "-"

var stdin io.Reader = os.Stdin

// peekedBody reads through the sniffing buffer but closes the real body.
type peekedBody struct {
	*bufio.Reader
	io.Closer
}

// openInput opens name, which is "-", a local path or an object URI, and
// returns its body together with the name used for extension inference.
func openInput(ctx context.Context, openers *cloudstorage.Openers, name string) (io.ReadCloser, string, error) {
	if name == stdinName {
		return io.NopCloser(stdin), "", nil
	}
	loc, opener, err := openers.Open(ctx, name)
	if err != nil {
		return nil, "", err
	}
	body, size, err := opener.Open(ctx, loc.Bucket, loc.Key)
	if err != nil {
		if errors.Is(err, cloudstorage.ErrObjectNotFound) {
			return nil, "", fmt.Errorf("%s: %w", name, err)
		}
		return nil, "", fmt.Errorf("failed to open %s: %w", name, err)
	}
	logctx.FromContext(ctx).Debug("Opened input",
		slog.String("location", loc.String()),
		slog.Int64("size", size))
	return body, loc.Key, nil
}

// resolveOptions builds reader options for an opened body. Settings left at
// "auto" are inferred from the name first and then from the leading magic
// bytes, so stdin and extension-less objects are still detected.
func resolveOptions(cfg *config.Config, name string, body io.ReadCloser) (streamreader.Options, io.ReadCloser, error) {
	opts, err := cfg.ReaderOptions(name)
	if err != nil {
		return opts, body, err
	}

	autoCompression := strings.EqualFold(cfg.Reader.Compression, "auto")
	autoEncoding := strings.EqualFold(cfg.Reader.Encoding, "auto")
	if !autoCompression && !autoEncoding {
		return opts, body, nil
	}

	br := bufio.NewReader(body)
	head, err := br.Peek(helpers.SniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return opts, body, fmt.Errorf("failed to read input header: %w", err)
	}
	wrapped := peekedBody{Reader: br, Closer: body}

	if autoCompression && opts.Compression == streamreader.CompressionNone {
		if name := helpers.SniffCompression(head); name != "" {
			codec, err := streamreader.ParseCompression(name)
			if err != nil {
				return opts, wrapped, err
			}
			opts.Compression = codec
		}
	}
	if autoEncoding && opts.Compression == streamreader.CompressionNone && !opts.Encoding.Table() {
		if name := helpers.SniffEncoding(head); name != "" {
			enc, err := streamreader.ParseEncoding(name)
			if err != nil {
				return opts, wrapped, err
			}
			opts.Encoding = enc
		}
	}
	return opts, wrapped, opts.Validate()
}

// openReader opens name and wraps it in a streamreader.Reader. The returned
// Reader owns the body and closes it.
func openReader(ctx context.Context, cfg *config.Config, openers *cloudstorage.Openers, name string) (*streamreader.Reader, error) {
	body, inferName, err := openInput(ctx, openers, name)
	if err != nil {
		return nil, err
	}
	opts, body, err := resolveOptions(cfg, inferName, body)
	if err != nil {
		_ = body.Close()
		return nil, err
	}
	opts.Logger = logctx.FromContext(ctx).With(slog.String("input", name))

	if opts.Encoding.Table() && !opts.Table.DisableSpill {
		dir := opts.Table.SpillDir
		if dir == "" {
			dir = os.TempDir()
		}
		if n := helpers.CleanStaleFiles(dir, streamreader.SpillFilePrefix, staleSpillAge); n > 0 {
			opts.Logger.Info("Removed stale spill files", slog.String("dir", dir), slog.Int("count", n))
		}
	}

	r, err := streamreader.NewReaderFromIO(body, opts)
	if err != nil {
		_ = body.Close()
		return nil, err
	}
	opts.Logger.Debug("Reader ready",
		slog.String("compression", opts.Compression.String()),
		slog.String("encoding", opts.Encoding.String()))
	return r, nil
}

// forEachInput opens every name in turn and hands its reader to fn. Each
// reader is closed before the next input is opened.
func forEachInput(ctx context.Context, cfg *config.Config, names []string, fn func(name string, r *streamreader.Reader) error) error {
	if len(names) == 0 {
		names = []string{stdinName}
	}
	openers := cloudstorage.NewOpeners(cfg.CloudStorage())
	defer func() {
		if err := openers.Close(); err != nil {
			logctx.FromContext(ctx).Warn("Failed to close storage clients", slog.Any("error", err))
		}
	}()

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		r, err := openReader(ctx, cfg, openers, name)
		if err != nil {
			return err
		}
		err = fn(name, r)
		if cerr := r.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", name, cerr)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
