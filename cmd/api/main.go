// Package main implements the heredity HTTP API server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/WessleyAI/heredity/engine/calculator"
	"github.com/WessleyAI/heredity/engine/pedigree"
	"github.com/WessleyAI/heredity/engine/rpc"
	"github.com/WessleyAI/heredity/internal/config"
	"github.com/WessleyAI/heredity/pkg/metrics"
	"github.com/WessleyAI/heredity/pkg/mid"
	"github.com/WessleyAI/heredity/pkg/resilience"
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
		logger.Error("server exited with error", "err", err)
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

	// --- Build HTTP server ---
	limiter := resilience.NewLimiter(resilience.LimiterOpts{Rate: cfg.RateLimit, Burst: cfg.RateBurst})
	handler := mid.Chain(newMux(svc, reg, store.Breaker, cfg.RequestTimeout, logger),
		mid.Recover(logger),
		mid.RequestID(),
		mid.Logger(logger),
		mid.Metrics(reg),
		mid.OTel("heredity-api"),
		mid.CORS(cfg.CORSOrigin),
		mid.RateLimit(limiter),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.HTTPPort)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// heredityService is the part of rpc.Service the handlers use.
type heredityService interface {
	Cross(ctx context.Context, req rpc.CrossRequest) (rpc.CrossResponse, error)
	Infer(ctx context.Context, req rpc.InferRequest) (rpc.InferResponse, error)
}

func newMux(svc heredityService, reg *metrics.Registry, breaker func() resilience.State, timeout time.Duration, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth(breaker))
	mux.HandleFunc("POST /api/cross", handleCross(svc, timeout, logger))
	mux.HandleFunc("GET /api/individuals/{id}/genotypes", handleGenotypes(svc, timeout, logger))
	mux.Handle("GET /metrics", reg.Handler())
	return mux
}

// --- Handlers ---

func handleHealth(breaker func() resilience.State) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		state := breaker()
		status := http.StatusOK
		if state == resilience.StateOpen {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]string{"status": "ok", "store": state.String()})
	}
}

func handleCross(svc heredityService, timeout time.Duration, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rpc.CrossRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, rpc.CodeInvalidArgument, "invalid request body")
			return
		}
		if req.LocusID == "" {
			writeError(w, http.StatusBadRequest, rpc.CodeInvalidArgument, "locus_id is required")
			return
		}

		ctx, cancel := withTimeout(r.Context(), timeout)
		defer cancel()
		resp, err := svc.Cross(ctx, req)
		if err != nil {
			fail(w, r, logger, "cross failed", err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleGenotypes(svc heredityService, timeout time.Duration, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		locus := r.URL.Query().Get("locus")
		if locus == "" {
			writeError(w, http.StatusBadRequest, rpc.CodeInvalidArgument, "locus query parameter is required")
			return
		}

		ctx, cancel := withTimeout(r.Context(), timeout)
		defer cancel()
		resp, err := svc.Infer(ctx, rpc.InferRequest{IndividualID: r.PathValue("id"), LocusID: locus})
		if err != nil {
			fail(w, r, logger, "inference failed", err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// statusClientClosedRequest is the non-standard status for requests the
// client abandoned.
const statusClientClosedRequest = 499

func httpStatus(code string) int {
	switch code {
	case rpc.CodeInvalidArgument:
		return http.StatusBadRequest
	case rpc.CodeNotFound:
		return http.StatusNotFound
	case rpc.CodeCancelled:
		return statusClientClosedRequest
	case rpc.CodeDeadline:
		return http.StatusGatewayTimeout
	case rpc.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func fail(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string, err error) {
	code := rpc.Code(err)
	status := httpStatus(code)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, "err", err, "request_id", mid.RequestIDFrom(r.Context()))
		writeError(w, status, code, http.StatusText(status))
		return
	}
	writeError(w, status, code, err.Error())
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
