package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/focustrack/focustrack/pkg/reportrpc"
	"github.com/focustrack/focustrack/server/internal/api"
	"github.com/focustrack/focustrack/server/internal/auth"
	"github.com/focustrack/focustrack/server/internal/config"
	"github.com/focustrack/focustrack/server/internal/receiver"
	"github.com/focustrack/focustrack/server/internal/store"
	"github.com/focustrack/focustrack/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	var level slog.LevelVar
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	slog.Info("focustrack-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(parseLevel(cfg.LogLevel))

	slog.Info("config loaded",
		"grpc_port", cfg.Server.GRPCPort,
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"storage_path", cfg.Server.Storage.Path,
		"retention", cfg.Server.Storage.Retention,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(cfg.Server.Storage.Path, cfg.Server.Storage.Retention)
	if err != nil {
		slog.Error("failed to open report store", "err", err)
		os.Exit(1)
	}
	defer st.Close()
	go st.Run(ctx, cfg.Server.Storage.EvictInterval)

	hub := ws.New(cfg.Server.Stream.Heartbeat)
	go hub.Run(ctx)

	gate := auth.New(cfg.Server.Auth, "/api/v1/health")
	if !gate.Enabled() {
		slog.Warn("api key authentication disabled")
	}

	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(gate.UnaryInterceptor()))
	reportrpc.RegisterReportServiceServer(grpcSrv, receiver.New(st, hub))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		slog.Error("failed to listen on gRPC port", "port", cfg.Server.GRPCPort, "err", err)
		os.Exit(1)
	}
	go func() {
		slog.Info("gRPC report service listening", "port", cfg.Server.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil {
			slog.Error("gRPC server stopped", "err", err)
		}
	}()

	// REST API and WebSocket stream share HTTPPort.
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", api.New(st, hub))
	httpMux.Handle("/ws/stream", hub)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           gate.Middleware(httpMux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("focustrack-server shutting down")
	grpcSrv.GracefulStop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
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
