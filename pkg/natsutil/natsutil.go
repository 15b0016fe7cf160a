// Package natsutil provides typed NATS publish/subscribe/request helpers
// with OpenTelemetry trace propagation.
package natsutil

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// natsHeaderCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

func encode[T any](ctx context.Context, subject string, v T) (*nats.Msg, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("natsutil: encode %s: %w", subject, err)
	}
	msg := &nats.Msg{Subject: subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	return msg, nil
}

func extract(msg *nats.Msg) context.Context {
	return otel.GetTextMapPropagator().Extract(context.Background(), (*natsHeaderCarrier)(msg))
}

// Publish serializes v as JSON and publishes to the given subject.
// Trace context from ctx is injected into NATS message headers.
func Publish[T any](ctx context.Context, nc *nats.Conn, subject string, v T) error {
	msg, err := encode(ctx, subject, v)
	if err != nil {
		return err
	}
	return nc.PublishMsg(msg)
}

// Subscribe registers a handler that deserializes JSON messages of type T.
// Trace context is extracted from NATS message headers and passed to the handler.
// Malformed messages are silently dropped.
func Subscribe[T any](nc *nats.Conn, subject string, handler func(context.Context, T)) (*nats.Subscription, error) {
	return nc.Subscribe(subject, func(msg *nats.Msg) {
		var v T
		if err := json.Unmarshal(msg.Data, &v); err != nil {
			return // drop malformed messages
		}
		handler(extract(msg), v)
	})
}

// Request sends a JSON-encoded request and decodes the response. The
// deadline of ctx bounds the wait; without one nats.DefaultTimeout applies.
func Request[Req, Resp any](ctx context.Context, nc *nats.Conn, subject string, req Req) (Resp, error) {
	var zero Resp
	msg, err := encode(ctx, subject, req)
	if err != nil {
		return zero, err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, nats.DefaultTimeout)
		defer cancel()
	}
	resp, err := nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return zero, fmt.Errorf("natsutil: request %s: %w", subject, err)
	}
	var result Resp
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return zero, fmt.Errorf("natsutil: decode %s: %w", subject, err)
	}
	return result, nil
}

// RemoteError is a failure reported by a Handle responder.
type RemoteError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string { return e.Code + ": " + e.Message }

// Reply is the envelope Handle responds with. Exactly one field is set.
type Reply[T any] struct {
	Result *T           `json:"result,omitempty"`
	Error  *RemoteError `json:"error,omitempty"`
}

// CodeInvalidRequest marks a request the responder could not decode.
const CodeInvalidRequest = "invalid_request"

// HandleOpts configures a responder.
type HandleOpts struct {
	// Queue joins a queue group so that replicas share the subject.
	Queue string
	// Timeout bounds each handler call. Zero means no bound.
	Timeout time.Duration
	// Code maps handler errors to RemoteError codes. Nil reports "internal".
	Code func(error) string
}

// Handle answers JSON requests on subject with a Reply envelope.
func Handle[Req, Resp any](nc *nats.Conn, subject string, opts HandleOpts, handler func(context.Context, Req) (Resp, error)) (*nats.Subscription, error) {
	cb := func(msg *nats.Msg) {
		var reply Reply[Resp]
		var req Req
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			reply.Error = &RemoteError{Code: CodeInvalidRequest, Message: err.Error()}
		} else {
			ctx, span := otel.Tracer("pkg/natsutil").Start(extract(msg), subject, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()
			if opts.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
				defer cancel()
			}
			resp, err := handler(ctx, req)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			switch {
			case err == nil:
				reply.Result = &resp
			case opts.Code != nil:
				reply.Error = &RemoteError{Code: opts.Code(err), Message: err.Error()}
			default:
				reply.Error = &RemoteError{Code: "internal", Message: err.Error()}
			}
		}
		data, err := json.Marshal(reply)
		if err != nil {
			data, _ = json.Marshal(Reply[Resp]{Error: &RemoteError{Code: "internal", Message: err.Error()}})
		}
		_ = msg.Respond(data)
	}
	if opts.Queue != "" {
		return nc.QueueSubscribe(subject, opts.Queue, cb)
	}
	return nc.Subscribe(subject, cb)
}

// Call is Request against a Handle responder. A reported failure comes back
// as *RemoteError.
func Call[Req, Resp any](ctx context.Context, nc *nats.Conn, subject string, req Req) (Resp, error) {
	var zero Resp
	reply, err := Request[Req, Reply[Resp]](ctx, nc, subject, req)
	if err != nil {
		return zero, err
	}
	if reply.Error != nil {
		return zero, reply.Error
	}
	if reply.Result == nil {
		return zero, fmt.Errorf("natsutil: %s: empty reply", subject)
	}
	return *reply.Result, nil
}
