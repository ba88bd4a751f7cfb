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

import (
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/spf13/viper"

	"github.com/cardinalhq/rowstream/internal/cloudstorage"
	"github.com/cardinalhq/rowstream/internal/streamreader"
)

// Config aggregates configuration for rowstream.
type Config struct {
	Reader  ReaderConfig  `mapstructure:"reader"`
	Table   TableConfig   `mapstructure:"table"`
	Storage StorageConfig `mapstructure:"storage"`
}

// ReaderConfig controls decoding of the input stream.
type ReaderConfig struct {
	// Compression is a codec name or "auto" to infer it from the input name.
	Compression string `mapstructure:"compression"`
	// Encoding is csv, parquet, orc or "auto".
	Encoding        string `mapstructure:"encoding"`
	BufferSize      int    `mapstructure:"buffer_size"`
	IgnoreHeader    bool   `mapstructure:"ignore_header"`
	SkipInvalidRows bool   `mapstructure:"skip_invalid_rows"`
	MaxRecordBytes  int    `mapstructure:"max_record_bytes"`
	ChunkSize       int    `mapstructure:"chunk_size"`

	// Dialect names a base dialect; the fields after it override single runes.
	Dialect          string `mapstructure:"dialect"`
	Delimiter        string `mapstructure:"delimiter"`
	QuoteChar        string `mapstructure:"quote_char"`
	EscapeChar       string `mapstructure:"escape_char"`
	Comment          string `mapstructure:"comment"`
	SkipInitialSpace bool   `mapstructure:"skip_initial_space"`
	Strict           bool   `mapstructure:"strict"`
}

// TableConfig controls the buffered path for parquet and ORC.
type TableConfig struct {
	MaxMemoryBytes int64  `mapstructure:"max_memory_bytes"`
	MaxTotalBytes  int64  `mapstructure:"max_total_bytes"`
	SpillDir       string `mapstructure:"spill_dir"`
	DisableSpill   bool   `mapstructure:"disable_spill"`
	ParquetEngine  string `mapstructure:"parquet_engine"`
	BinaryAsText   bool   `mapstructure:"binary_as_text"`
}

// StorageConfig configures the object-store backends.
type StorageConfig struct {
	S3    S3Config    `mapstructure:"s3"`
	GCS   GCSConfig   `mapstructure:"gcs"`
	Azure AzureConfig `mapstructure:"azure"`
	// FileBase roots bucket/key lookups for file URIs.
	FileBase string `mapstructure:"file_base"`
}

type S3Config struct {
	Region      string `mapstructure:"region"`
	Endpoint    string `mapstructure:"endpoint"`
	PathStyle   bool   `mapstructure:"path_style"`
	InsecureTLS bool   `mapstructure:"insecure_tls"`
	Role        string `mapstructure:"role"`
	SessionName string `mapstructure:"session_name"`
}

type GCSConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	ServiceAccount string `mapstructure:"service_account"`
}

type AzureConfig struct {
	Account  string `mapstructure:"account"`
	Endpoint string `mapstructure:"endpoint"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Reader: ReaderConfig{
			Compression:  "auto",
			Encoding:     "auto",
			BufferSize:   streamreader.DefaultBufferSize,
			IgnoreHeader: true,
			ChunkSize:    streamreader.DefaultChunkSize,
			Dialect:      "excel",
		},
		Table: TableConfig{
			MaxMemoryBytes: streamreader.DefaultMaxMemoryBytes,
			ParquetEngine:  string(streamreader.ParquetEngineArrow),
			BinaryAsText:   true,
		},
	}
}

// Load reads configuration from an optional config.yaml in the working
// directory and from environment variables. Environment variables use the
// prefix "ROWSTREAM" and the dot character in keys is replaced by an
// underscore, so "reader.buffer_size" becomes "ROWSTREAM_READER_BUFFER_SIZE".
func Load() (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName(ConfigName)
	v.AddConfigPath(".")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(append([]string{}, parts...), tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}

// ReaderOptions converts the configuration into reader options. name is the
// input's file name or object key and is used when compression or encoding
// is "auto".
func (c *Config) ReaderOptions(name string) (streamreader.Options, error) {
	opts := streamreader.DefaultOptions()

	switch strings.ToLower(c.Reader.Compression) {
	case "auto":
		opts.Compression = streamreader.CompressionFromFilename(name)
	default:
		codec, err := streamreader.ParseCompression(c.Reader.Compression)
		if err != nil {
			return opts, err
		}
		opts.Compression = codec
	}

	switch strings.ToLower(c.Reader.Encoding) {
	case "auto":
		opts.Encoding = streamreader.EncodingFromFilename(name)
	default:
		enc, err := streamreader.ParseEncoding(c.Reader.Encoding)
		if err != nil {
			return opts, err
		}
		opts.Encoding = enc
	}

	dialect, err := c.Reader.dialect()
	if err != nil {
		return opts, err
	}
	opts.Dialect = dialect

	engine, err := streamreader.ParseParquetEngine(c.Table.ParquetEngine)
	if err != nil {
		return opts, err
	}

	opts.BufferSize = c.Reader.BufferSize
	opts.IgnoreHeader = c.Reader.IgnoreHeader
	opts.SkipInvalidRows = c.Reader.SkipInvalidRows
	opts.MaxRecordBytes = c.Reader.MaxRecordBytes
	opts.ChunkSize = c.Reader.ChunkSize
	opts.Table = streamreader.TableOptions{
		MaxMemoryBytes: c.Table.MaxMemoryBytes,
		MaxTotalBytes:  c.Table.MaxTotalBytes,
		SpillDir:       c.Table.SpillDir,
		DisableSpill:   c.Table.DisableSpill,
		ParquetEngine:  engine,
		BinaryAsText:   c.Table.BinaryAsText,
	}
	return opts, opts.Validate()
}

func (r ReaderConfig) dialect() (streamreader.Dialect, error) {
	d, err := streamreader.ParseDialect(r.Dialect)
	if err != nil {
		return d, err
	}
	overrides := []struct {
		name  string
		value string
		dst   *rune
	}{
		{"delimiter", r.Delimiter, &d.Delimiter},
		{"quote_char", r.QuoteChar, &d.Quote},
		{"escape_char", r.EscapeChar, &d.Escape},
		{"comment", r.Comment, &d.Comment},
	}
	for _, o := range overrides {
		if o.value == "" {
			continue
		}
		ch, err := singleRune(o.value)
		if err != nil {
			return d, &streamreader.UnsupportedDialectError{Name: d.Name, Reason: fmt.Sprintf("%s: %v", o.name, err)}
		}
		*o.dst = ch
	}
	d.SkipInitialSpace = r.SkipInitialSpace
	d.Strict = r.Strict
	return d, d.Validate()
}

// singleRune parses a one-character setting. "tab" or \t mean a tab and
// "none" clears the setting.
func singleRune(s string) (rune, error) {
	switch strings.ToLower(s) {
	case `\t`, "tab":
		return '\t', nil
	case "none":
		return 0, nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("want a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

// CloudStorage converts the storage section for the object openers.
func (c *Config) CloudStorage() cloudstorage.Config {
	return cloudstorage.Config{
		S3Region:          c.Storage.S3.Region,
		S3Endpoint:        c.Storage.S3.Endpoint,
		S3PathStyle:       c.Storage.S3.PathStyle,
		S3InsecureTLS:     c.Storage.S3.InsecureTLS,
		S3Role:            c.Storage.S3.Role,
		S3SessionName:     c.Storage.S3.SessionName,
		GCSEndpoint:       c.Storage.GCS.Endpoint,
		GCSServiceAccount: c.Storage.GCS.ServiceAccount,
		AzureAccount:      c.Storage.Azure.Account,
		AzureEndpoint:     c.Storage.Azure.Endpoint,
		FileBase:          c.Storage.FileBase,
	}
}
