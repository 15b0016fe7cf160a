// Command worker answers cross and inference requests over NATS and gRPC.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/heredity/engine/calculator"
	"github.com/WessleyAI/heredity/engine/pedigree"
	"github.com/WessleyAI/heredity/engine/rpc"
	"github.com/WessleyAI/heredity/internal/config"
	"github.com/WessleyAI/heredity/pkg/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	level, _ := cfg.Level()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("worker exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Connect to Neo4j ---
	graphOpts := pedigree.DefaultGraphOptions()
	graphOpts.Database = cfg.Neo4jDatabase
	store, err := pedigree.Connect(ctx, cfg.Neo4jURL, cfg.Neo4jUser, cfg.Neo4jPass, graphOpts, logger)
	if err != nil {
		return fmt.Errorf("neo4j: %w", err)
	}
	defer store.Close(context.Background())

	// --- Connect to NATS ---
	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("heredity-worker"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer nc.Close()

	// --- Build engines ---
	reg := metrics.New()
	calcOpts := calculator.DefaultOptions()
	calcOpts.Workers = cfg.Workers
	calcOpts.Metrics = reg
	calc, err := calculator.New(store, store, store, calcOpts, logger)
	if err != nil {
		return err
	}
	svc, err := rpc.NewService(store, calc, logger)
	if err != nil {
		return err
	}

	w := newWorker(svc, reg, cfg, logger)
	if err := w.subscribe(nc); err != nil {
		return err
	}

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	grpcSrv := w.grpcServer()

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           reg.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// --- Serve until shutdown ---
	errCh := make(chan error, 2)
	go func() {
		logger.Info("grpc server starting", "port", cfg.GRPCPort)
		errCh <- grpcSrv.Serve(lis)
	}()
	go func() {
		logger.Info("metrics server starting", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	// Drain lets in-flight NATS requests finish before the connection closes.
	if err := nc.Drain(); err != nil {
		logger.Warn("nats drain", "err", err)
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutCtx)
	stopped := make(chan struct{})
	go func() {
		grpcSrv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutCtx.Done():
		grpcSrv.Stop()
	}
	return runErr
}
