package commands

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/autokernel/autokernel/pkg/bridge"
	"github.com/autokernel/autokernel/pkg/config"
	"github.com/autokernel/autokernel/pkg/script"
	"github.com/autokernel/autokernel/pkg/telemetry"
	"github.com/autokernel/autokernel/pkg/tracker"
	"github.com/autokernel/autokernel/pkg/validator"
)

// session bundles the evaluator stages every command drives: the
// bridge, its validator, the assignment history and the script host.
type session struct {
	logger  *telemetry.Logger
	tracer  *telemetry.Tracer
	metrics *telemetry.Metrics
	bridge  *bridge.Bridge
	history *tracker.History
	host    *script.Host
}

// newSession builds the bridge for the configured kernel tree and
// wires the evaluator pipeline on top of it. Tracing and metrics are
// controlled by AUTOKERNEL_TRACE_EXPORTER (otlp, stdout) with
// AUTOKERNEL_TRACE_ENDPOINT, and AUTOKERNEL_METRICS=1.
func newSession() (*session, error) {
	level := "info"
	if verbose {
		level = "debug"
	}
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{
		Level:  level,
		Format: "console",
		Output: "stderr",
	})
	if err != nil {
		return nil, err
	}

	exporter := os.Getenv("AUTOKERNEL_TRACE_EXPORTER")
	tracer, err := telemetry.NewTracer(telemetry.TracingConfig{
		Enabled:  exporter != "",
		Exporter: exporter,
		Endpoint: os.Getenv("AUTOKERNEL_TRACE_ENDPOINT"),
		Insecure: true,
	}, "autokernel", "dev")
	if err != nil {
		return nil, err
	}

	metrics, err := telemetry.NewMetrics(telemetry.MetricsConfig{
		Enabled:   os.Getenv("AUTOKERNEL_METRICS") == "1",
		Namespace: "autokernel",
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	b, err := bridge.New(kernelDir, bridge.Options{
		Logger: logger.NewComponentLogger("bridge").Zerolog(),
	})
	if err != nil {
		return nil, err
	}
	metrics.ObserveParse(time.Since(start), len(b.NamedSymbols()))

	history := tracker.NewHistory(logger.NewComponentLogger("tracker").Zerolog())
	v := validator.New(validator.Adapt(b), history,
		logger.NewComponentLogger("validator").Zerolog(), metrics)
	host := script.NewHost(b, v, logger.NewComponentLogger("script").Zerolog())

	return &session{
		logger:  logger,
		tracer:  tracer,
		metrics: metrics,
		bridge:  b,
		history: history,
		host:    host,
	}, nil
}

// close releases the bridge and flushes pending telemetry.
func (s *session) close() {
	if err := s.bridge.Close(); err != nil {
		s.logger.WithError(err).Warn("Could not close bridge cleanly")
	}
	if err := s.tracer.Shutdown(context.Background()); err != nil {
		s.logger.WithError(err).Warn("Could not flush traces")
	}
}

// applyConfiguredScript loads the TOML configuration and applies the
// script it names, under one apply span.
func (s *session) applyConfiguredScript() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	_, span := s.tracer.StartApplySpan(context.Background(), cfg.Config.Script)
	err = s.host.Apply(cfg.Config.Script)
	telemetry.EndSpan(span, err)
	return err
}

// consoleLogger returns a bare console logger for command output.
func consoleLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}
