package infra

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/tnqbao/gau-ml-service/config"
)

// LoggerClient writes every record to the console and, when an OTLP endpoint
// is configured, mirrors it to Grafana through the otelslog bridge.
type LoggerClient struct {
	console  *slog.Logger
	otel     *slog.Logger
	provider *sdklog.LoggerProvider
}

func InitLoggerClient(cfg *config.EnvConfig) *LoggerClient {
	level := slog.LevelInfo
	if cfg.Environment.Mode == "development" {
		level = slog.LevelDebug
	}

	console := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).With(
		slog.String("service", cfg.Grafana.ServiceName),
		slog.String("environment", cfg.Environment.Mode),
		slog.String("group", cfg.Environment.Group),
	)

	client := &LoggerClient{console: console}

	if cfg.Grafana.OTLPEndpoint == "" {
		log.Println("GRAFANA_OTLP_ENDPOINT not set, logs are written to stdout only")
		return client
	}

	exporter, err := otlploghttp.New(context.Background(), otlploghttp.WithEndpoint(cfg.Grafana.OTLPEndpoint))
	if err != nil {
		log.Printf("Failed to create OTLP log exporter: %v", err)
		return client
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(newResource(cfg)),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)
	global.SetLoggerProvider(provider)

	client.provider = provider
	client.otel = otelslog.NewLogger(cfg.Grafana.ServiceName, otelslog.WithLoggerProvider(provider))

	log.Println("OpenTelemetry logging enabled:", cfg.Grafana.OTLPEndpoint)
	return client
}

// NewLoggerClient builds a console-only logger on top of w.
func NewLoggerClient(w io.Writer) *LoggerClient {
	return &LoggerClient{
		console: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}
}

func NewNopLogger() *LoggerClient {
	return NewLoggerClient(io.Discard)
}

func (l *LoggerClient) DebugWithContextf(ctx context.Context, format string, args ...interface{}) {
	l.log(ctx, slog.LevelDebug, nil, format, args...)
}

func (l *LoggerClient) InfoWithContextf(ctx context.Context, format string, args ...interface{}) {
	l.log(ctx, slog.LevelInfo, nil, format, args...)
}

func (l *LoggerClient) WarningWithContextf(ctx context.Context, format string, args ...interface{}) {
	l.log(ctx, slog.LevelWarn, nil, format, args...)
}

func (l *LoggerClient) ErrorWithContextf(ctx context.Context, err error, format string, args ...interface{}) {
	l.log(ctx, slog.LevelError, err, format, args...)
}

func (l *LoggerClient) log(ctx context.Context, level slog.Level, err error, format string, args ...interface{}) {
	if l == nil || l.console == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	msg := fmt.Sprintf(format, args...)
	var attrs []slog.Attr
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	l.console.LogAttrs(ctx, level, msg, attrs...)
	if l.otel != nil {
		l.otel.LogAttrs(ctx, level, msg, attrs...)
	}
}

func (l *LoggerClient) Shutdown(ctx context.Context) error {
	if l == nil || l.provider == nil {
		return nil
	}
	return l.provider.Shutdown(ctx)
}
