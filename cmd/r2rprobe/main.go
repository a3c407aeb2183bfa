package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kailas-cloud/r2rprobe/internal/config"
	logpkg "github.com/kailas-cloud/r2rprobe/internal/logger"
	"github.com/kailas-cloud/r2rprobe/internal/metrics"
	"github.com/kailas-cloud/r2rprobe/internal/probe"
	"github.com/kailas-cloud/r2rprobe/internal/tracing"
	"github.com/kailas-cloud/r2rprobe/internal/version"
	"github.com/kailas-cloud/r2rprobe/pkg/r2r"
)

const (
	metricsShutdownTimeout = 5 * time.Second
	tracingShutdownTimeout = 5 * time.Second
)

// newSpanExporter is replaced in tests with an in-memory exporter.
var newSpanExporter = tracing.NewOTLPExporter

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one probe and returns the process exit code.
// Only setup failures and a fatal provisioning failure produce a non-zero code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("r2rprobe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to a YAML config file (default: config/$ENV.yaml)")
	filePath := fs.String("file", "", "document to ingest (default: probe.sample_path)")
	baseURL := fs.String("base-url", "", "R2R base URL (overrides r2r.base_url)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	env := config.GetEnv()
	cfg, err := loadConfig(env, *configPath, *baseURL, *filePath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return 1
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	runLogger, runID := logpkg.WithRunID(logger)
	runLogger.Info("Starting r2rprobe",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.String("base_url", cfg.R2R.BaseURL),
		zap.String("sample_path", cfg.Probe.SamplePath),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	steps, err := metrics.NewStepMetrics(reg)
	if err != nil {
		runLogger.Error("Failed to register step metrics", zap.Error(err))
		return 1
	}

	if cfg.Metrics.Addr != "" {
		srv, err := metrics.NewServer(cfg.Metrics.Addr, reg, logger)
		if err != nil {
			runLogger.Error("Failed to create metrics server", zap.Error(err))
			return 1
		}
		if err := srv.Start(); err != nil {
			runLogger.Error("Failed to start metrics server", zap.Error(err))
			return 1
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				runLogger.Error("Error during metrics shutdown", zap.Error(err))
			}
		}()
	}

	// The provider is installed before the client so its transport picks it up.
	span := trace.SpanFromContext(ctx)
	if cfg.R2R.Tracing {
		exp, err := newSpanExporter(ctx)
		if err != nil {
			runLogger.Error("Failed to create trace exporter", zap.Error(err))
			return 1
		}
		tp := tracing.Setup(exp, version.Version)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), tracingShutdownTimeout)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				runLogger.Warn("Error flushing traces", zap.Error(err))
			}
		}()

		ctx, span = otel.Tracer("cmd/r2rprobe").Start(ctx, "probe.run",
			trace.WithAttributes(attribute.String("run_id", runID)))
		defer span.End()
		runLogger = runLogger.With(zap.String("trace_id", span.SpanContext().TraceID().String()))
	}

	conn := newConnector(clientOptions(cfg.R2R, runLogger, reg)...)
	defer conn.Close()

	runner, err := probe.New(conn.connect, cfg.RunConfig(), stdout, probe.WithRecorder(steps))
	if err != nil {
		runLogger.Error("Failed to create probe", zap.Error(err))
		return 1
	}

	ctx = logpkg.ContextWithLogger(ctx, runLogger)
	summary, err := runner.Run(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "probe aborted")
		runLogger.Error("Probe aborted", zap.Error(err))
		return 1
	}

	logSummary(runLogger, runID, summary)
	return 0
}

func loadConfig(env, path, baseURL, file string) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load(env)
	}
	if err != nil {
		return config.Config{}, err
	}

	if baseURL != "" {
		cfg.R2R.BaseURL = baseURL
	}
	if file != "" {
		cfg.Probe.SamplePath = file
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

func clientOptions(cfg config.R2RConfig, logger *zap.Logger, reg prometheus.Registerer) []r2r.Option {
	opts := []r2r.Option{
		r2r.WithConnectTimeout(cfg.ConnectTimeout()),
		r2r.WithRequestTimeout(cfg.RequestTimeout()),
		r2r.WithUserAgent(version.UserAgent()),
		r2r.WithLogger(logger.Named("r2r")),
		r2r.WithPrometheus(reg),
	}
	if cfg.APIKey != "" {
		opts = append(opts, r2r.WithAPIKey(cfg.APIKey))
	}
	if cfg.RateLimitRPS > 0 {
		opts = append(opts, r2r.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}
	if cfg.Tracing {
		opts = append(opts, r2r.WithTracing())
	}
	return opts
}

// logSummary emits one wide event describing the whole run.
func logSummary(logger *zap.Logger, runID string, s probe.Summary) {
	fields := []zap.Field{
		zap.String("run_id", runID),
		zap.Bool("connected", s.Connection.OK()),
	}
	if !s.Connection.OK() {
		fields = append(fields, zap.String("failure", string(s.Connection.Kind)))
		logger.Warn("Probe finished without a connection", fields...)
		return
	}

	fields = append(fields,
		zap.Bool("healthy", s.Health.OK()),
		zap.Int("documents", len(s.Documents.Value.Documents)),
		zap.Bool("sample_created", s.SampleCreated),
		zap.Bool("ingested", s.Ingest.OK()),
		zap.String("document_id", s.Ingest.Value.DocumentID),
		zap.Bool("waited", s.Waited),
		zap.Int("searches_ok", countOK(s.Searches)),
		zap.Int("searches", len(s.Searches)),
		zap.Int("completions_ok", countOK(s.Completions)),
		zap.Int("completions", len(s.Completions)),
	)
	logger.Info("Probe finished", fields...)
}

func countOK[T any](outcomes []probe.Outcome[T]) int {
	n := 0
	for _, o := range outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}
