package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/focustrack/focustrack/agent/internal/alerts"
	"github.com/focustrack/focustrack/agent/internal/capture"
	"github.com/focustrack/focustrack/agent/internal/config"
	"github.com/focustrack/focustrack/agent/internal/control"
	"github.com/focustrack/focustrack/agent/internal/metrics"
	"github.com/focustrack/focustrack/agent/internal/monitor"
	"github.com/focustrack/focustrack/agent/internal/scorer"
	"github.com/focustrack/focustrack/agent/internal/security"
	"github.com/focustrack/focustrack/agent/internal/shipper"
	"github.com/focustrack/focustrack/pkg/types"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	autostart := flag.Bool("start", false, "start a session for the configured subject on launch")
	flag.Parse()

	var level slog.LevelVar
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	slog.Info("focustrack-agent starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(parseLevel(cfg.LogLevel))
	slog.Info("config loaded",
		"store_endpoint", cfg.Agent.StoreEndpoint,
		"scorer_mode", cfg.Agent.Scorer.Mode,
		"capture_type", cfg.Agent.Capture.Type,
		"sampling_interval", cfg.Agent.Policy.SamplingInterval,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, cfg, &level, *autostart); err != nil {
		slog.Error("agent stopped with error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, cfg *config.Config, level *slog.LevelVar, autostart bool) error {
	device, err := capture.New(cfg.Agent.Capture)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	sc, err := scorer.New(cfg.Agent.Scorer, cfg.Agent.ClientID)
	if err != nil {
		return fmt.Errorf("scorer: %w", err)
	}
	defer sc.Close()

	ship := shipper.New(cfg.Agent)
	defer ship.Close()

	var alertEngine *alerts.Engine
	if !cfg.Agent.Alerts.Disabled {
		if alertEngine, err = alerts.New(cfg.Agent.Alerts); err != nil {
			return fmt.Errorf("alerts: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			alertEngine.Shutdown(sctx)
		}()
	}

	m := metrics.New()
	opts := monitor.Options{
		Device:  device,
		Scorer:  sc,
		Store:   ship,
		Policy:  policyFrom(cfg.Agent.Policy),
		Metrics: m,
	}
	// A nil *alerts.Engine must not become a non-nil interface.
	if alertEngine != nil {
		opts.Alerts = alertEngine
	}
	mon, err := monitor.New(opts)
	if err != nil {
		return err
	}

	go func() {
		if err := config.Watch(ctx, configPath, func(updated *config.Config) {
			level.Set(parseLevel(updated.LogLevel))
			if err := mon.SetPolicy(policyFrom(updated.Agent.Policy)); err != nil {
				slog.Warn("config hot-reload: policy rejected", "err", err)
			}
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	copts := control.Options{
		Sessions:       mon,
		SessionContext: ctx,
		DefaultSubject: subjectFrom(cfg.Agent.Subject),
		Metrics:        m.Handler(),
		Endpoints:      endpoints(cfg.Agent),
	}
	if alertEngine != nil {
		copts.Alerts = alertEngine
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Agent.HTTPPort),
		Handler:           control.New(copts),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("control API listening", "port", cfg.Agent.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("control API error", "err", err)
		}
	}()

	if autostart {
		if err := mon.Start(ctx, subjectFrom(cfg.Agent.Subject)); err != nil {
			slog.Error("autostart failed", "err", err)
		}
	}

	<-ctx.Done()
	slog.Info("focustrack-agent shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()

	if report, err := mon.Stop(stopCtx); err != nil {
		slog.Error("final session report not stored", "err", err)
	} else if report != nil {
		slog.Info("final session report", "session", report.SessionID, "intervals", len(report.Intervals))
	}
	return srv.Shutdown(stopCtx)
}

func policyFrom(p config.PolicyConfig) monitor.Policy {
	return monitor.Policy{
		SamplingInterval: p.SamplingInterval,
		Threshold:        p.Threshold,
		MinSave:          p.MinSave,
	}
}

func subjectFrom(s config.SubjectConfig) types.SubjectRef {
	return types.SubjectRef{Learner: s.Learner, ClassID: s.ClassID, CourseID: s.CourseID}
}

// endpoints lists the outbound connections whose certificates /api/v1/certs
// reports on.
func endpoints(cfg config.AgentConfig) []security.Endpoint {
	eps := []security.Endpoint{{
		Name:     "scorer",
		URL:      cfg.Scorer.Endpoint,
		AuthMode: cfg.Scorer.Auth.Mode,
		Insecure: cfg.Scorer.TLS.InsecureSkipVerify,
	}}
	if cfg.Capture.Type == "http" {
		eps = append(eps, security.Endpoint{
			Name:     "capture",
			URL:      cfg.Capture.Endpoint,
			AuthMode: cfg.Capture.Auth.Mode,
			Insecure: cfg.Capture.TLS.InsecureSkipVerify,
		})
	}
	if cfg.StoreAuth.Mode == "mtls" {
		eps = append(eps, security.Endpoint{
			Name:     "store",
			URL:      "tls://" + cfg.StoreEndpoint,
			AuthMode: cfg.StoreAuth.Mode,
		})
	}
	return eps
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
