package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/WessleyAI/heredity/engine/rpc"
	"github.com/WessleyAI/heredity/internal/config"
	"github.com/WessleyAI/heredity/pkg/metrics"
	"github.com/WessleyAI/heredity/pkg/natsutil"
)

// NATS subjects served by the worker.
const (
	SubjectCross = "heredity.cross"
	SubjectInfer = "heredity.infer"
)

type worker struct {
	svc     *rpc.Service
	reg     *metrics.Registry
	queue   string
	timeout time.Duration
	logger  *slog.Logger
}

func newWorker(svc *rpc.Service, reg *metrics.Registry, cfg config.Config, logger *slog.Logger) *worker {
	return &worker{svc: svc, reg: reg, queue: cfg.NATSQueue, timeout: cfg.RequestTimeout, logger: logger}
}

// observed counts each request by transport, method and outcome code.
func observed[Req, Resp any](w *worker, transport, method string, h func(context.Context, Req) (Resp, error)) func(context.Context, Req) (Resp, error) {
	dur := w.reg.Histogram(metrics.WithLabels("heredity_worker_request_duration_seconds", "transport", transport, "method", method), "Worker request latency", nil)
	return func(ctx context.Context, req Req) (Resp, error) {
		start := time.Now()
		resp, err := h(ctx, req)
		dur.Since(start)
		outcome := "ok"
		if err != nil {
			outcome = rpc.Code(err)
			w.logger.Warn("request failed", "transport", transport, "method", method, "code", outcome, "err", err)
		}
		w.reg.Counter(metrics.WithLabels("heredity_worker_requests_total", "transport", transport, "method", method, "outcome", outcome), "Worker requests").Inc()
		return resp, err
	}
}

func (w *worker) subscribe(nc *nats.Conn) error {
	opts := natsutil.HandleOpts{Queue: w.queue, Timeout: w.timeout, Code: rpc.Code}
	if _, err := natsutil.Handle(nc, SubjectCross, opts, observed(w, "nats", "cross", w.svc.Cross)); err != nil {
		return fmt.Errorf("subscribe %s: %w", SubjectCross, err)
	}
	if _, err := natsutil.Handle(nc, SubjectInfer, opts, observed(w, "nats", "infer", w.svc.Infer)); err != nil {
		return fmt.Errorf("subscribe %s: %w", SubjectInfer, err)
	}
	w.logger.Info("nats subscribed", "subjects", []string{SubjectCross, SubjectInfer}, "queue", w.queue)
	return nil
}

func (w *worker) grpcServer() *grpc.Server {
	srv := grpc.NewServer(grpc.UnaryInterceptor(w.unaryInterceptor))
	rpc.RegisterHeredityServer(srv, rpc.NewServer(w.svc))
	return srv
}

func (w *worker) unaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	start := time.Now()
	resp, err := handler(ctx, req)
	code := status.Code(err)
	w.reg.Counter(metrics.WithLabels("heredity_worker_requests_total", "transport", "grpc", "method", info.FullMethod, "outcome", code.String()), "Worker requests").Inc()
	w.logger.Debug("grpc request", "method", info.FullMethod, "code", code.String(), "duration", time.Since(start))
	return resp, err
}
