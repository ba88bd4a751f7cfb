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
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cardinalhq/oteltools/pkg/telemetry"
	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/instrumentation/host"
	iruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/rowstream/internal/helpers"
	"github.com/cardinalhq/rowstream/internal/idgen"
	"github.com/cardinalhq/rowstream/internal/logctx"
)

var (
	commonAttributes attribute.Set

	meter = otel.Meter("github.com/cardinalhq/rowstream")

	myInstanceID int64

	metricsOnce     sync.Once
	commandDuration metric.Float64Histogram
	commandCounter  metric.Int64Counter

	// logOutput is where the CLI logs. Rows go to stdout, so logs never do.
	logOutput io.Writer = os.Stderr
)

func setupTelemetry(servicename string, addlAttrs *attribute.Set) (context.Context, func() error, error) {
	myInstanceID = idgen.NextID()

	// A signal cancels the run at the next chunk boundary; deferred Close
	// calls still remove spill files.
	doneCtx, doneCancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	f := func() error {
		doneCancel()
		return nil
	}

	attrs := []attribute.KeyValue{
		attribute.Int64("instanceID", myInstanceID),
	}
	if addlAttrs != nil {
		iter := addlAttrs.Iter()
		for iter.Next() {
			attrs = append(attrs, iter.Attribute())
		}
	}
	commonAttributes = attribute.NewSet(attrs...)

	metricsOnce.Do(setupGlobalMetrics)

	opts := &slog.HandlerOptions{Level: slog.LevelWarn}
	if helpers.AnyBoolEnv("DEBUG", "ROWSTREAM_DEBUG") {
		opts.Level = slog.LevelDebug
	} else if helpers.GetBoolEnv("ROWSTREAM_VERBOSE", false) {
		opts.Level = slog.LevelInfo
	}

	if os.Getenv("OTEL_SERVICE_NAME") != "" && helpers.GetBoolEnv("ENABLE_OTLP_TELEMETRY", false) {
		slog.SetDefault(slog.New(slogmulti.Fanout(
			slog.NewTextHandler(logOutput, opts),
			otelslog.NewHandler(servicename),
		)).With(
			slog.String("service", servicename),
			slog.Int64("instanceID", myInstanceID),
		))
		slog.Info("OpenTelemetry exporting enabled")

		otelShutdown, err := telemetry.SetupOTelSDK(doneCtx)
		if err != nil {
			doneCancel()
			return doneCtx, nil, fmt.Errorf("failed to setup OpenTelemetry SDK: %w", err)
		}

		if err := iruntime.Start(iruntime.WithMinimumReadMemStatsInterval(time.Second * 10)); err != nil {
			slog.Warn("failed to start runtime metrics", "error", err.Error())
		}

		if err := host.Start(); err != nil {
			slog.Warn("failed to start host metrics", "error", err.Error())
		}

		f = func() error {
			defer doneCancel()
			slog.Info("Shutting down OpenTelemetry SDK")
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return otelShutdown(ctx)
		}
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(logOutput, opts)).With(
			slog.String("service", servicename),
			slog.Int64("instanceID", myInstanceID),
		))
	}

	return doneCtx, f, nil
}

func setupGlobalMetrics() {
	h, err := meter.Float64Histogram(
		"rowstream.command.duration",
		metric.WithUnit("s"),
		metric.WithDescription("The duration in seconds of a rowstream command"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create command.duration histogram: %w", err))
	}
	commandDuration = h

	c, err := meter.Int64Counter(
		"rowstream.command.count",
		metric.WithDescription("Number of rowstream commands run, by command and outcome"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create command.count counter: %w", err))
	}
	commandCounter = c
}

func commandStart(ctx context.Context, name string) time.Time {
	logctx.FromContext(ctx).Debug("Command starting", slog.String("command", name))
	return time.Now()
}

func commandDone(ctx context.Context, name string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("command", name),
		attribute.String("outcome", outcome),
	)
	commandDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributeSet(commonAttributes), attrs)
	commandCounter.Add(ctx, 1, metric.WithAttributeSet(commonAttributes), attrs)
	logctx.FromContext(ctx).Debug("Command finished",
		slog.String("outcome", outcome),
		slog.Duration("elapsed", time.Since(start)))
}
