// Package metrics is a small Prometheus-compatible registry for counters,
// gauges and histograms, rendered in the text exposition format.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBuckets are histogram buckets in seconds.
var DefaultBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10}

// Counter only goes up.
type Counter struct{ v atomic.Int64 }

func (c *Counter) Inc()         { c.v.Add(1) }
func (c *Counter) Add(n int64)  { c.v.Add(n) }
func (c *Counter) Value() int64 { return c.v.Load() }

// Gauge holds a value that can go up and down.
type Gauge struct{ v atomic.Int64 }

func (g *Gauge) Set(n int64)  { g.v.Store(n) }
func (g *Gauge) Inc()         { g.v.Add(1) }
func (g *Gauge) Dec()         { g.v.Add(-1) }
func (g *Gauge) Value() int64 { return g.v.Load() }

// Histogram counts observations into cumulative buckets.
type Histogram struct {
	mu     sync.Mutex
	bounds []float64
	counts []uint64
	sum    float64
	total  uint64
}

// Observe records v.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.total++
	if i := sort.SearchFloat64s(h.bounds, v); i < len(h.bounds) {
		h.counts[i]++
	}
}

// Since observes the seconds elapsed since t.
func (h *Histogram) Since(t time.Time) { h.Observe(time.Since(t).Seconds()) }

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

type kind string

const (
	kindCounter   kind = "counter"
	kindGauge     kind = "gauge"
	kindHistogram kind = "histogram"
)

type family struct {
	name   string
	help   string
	kind   kind
	series map[string]any
}

// Registry holds metric families in registration order.
type Registry struct {
	mu       sync.Mutex
	families map[string]*family
	order    []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{families: make(map[string]*family)}
}

// lookup returns the series for a full name such as `x_total{k="v"}`,
// creating the family and series as needed.
func (r *Registry) lookup(full, help string, k kind, create func() any) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	base, _ := split(full)
	f, ok := r.families[base]
	if !ok {
		f = &family{name: base, kind: k, series: make(map[string]any)}
		r.families[base] = f
		r.order = append(r.order, base)
	}
	if help != "" {
		f.help = help
	}
	m, ok := f.series[full]
	if !ok {
		m = create()
		f.series[full] = m
	}
	return m
}

// Counter returns the counter registered under name, creating it on first use.
func (r *Registry) Counter(name, help string) *Counter {
	return r.lookup(name, help, kindCounter, func() any { return &Counter{} }).(*Counter)
}

// Gauge returns the gauge registered under name.
func (r *Registry) Gauge(name, help string) *Gauge {
	return r.lookup(name, help, kindGauge, func() any { return &Gauge{} }).(*Gauge)
}

// Histogram returns the histogram registered under name. Nil buckets use
// DefaultBuckets.
func (r *Registry) Histogram(name, help string, buckets []float64) *Histogram {
	if buckets == nil {
		buckets = DefaultBuckets
	}
	return r.lookup(name, help, kindHistogram, func() any {
		b := append([]float64(nil), buckets...)
		sort.Float64s(b)
		return &Histogram{bounds: b, counts: make([]uint64, len(b))}
	}).(*Histogram)
}

// WithLabels appends label pairs to name: WithLabels("x", "k", "v") is `x{k="v"}`.
// An odd number of label arguments leaves name unchanged.
func WithLabels(name string, kv ...string) string {
	if len(kv) == 0 || len(kv)%2 != 0 {
		return name
	}
	pairs := make([]string, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		pairs = append(pairs, fmt.Sprintf("%s=%q", kv[i], kv[i+1]))
	}
	return name + "{" + strings.Join(pairs, ",") + "}"
}

// split separates `x{k="v"}` into "x" and `k="v"`.
func split(full string) (string, string) {
	i := strings.IndexByte(full, '{')
	if i < 0 {
		return full, ""
	}
	return full[:i], strings.TrimSuffix(full[i+1:], "}")
}

func braces(labels string) string {
	if labels == "" {
		return ""
	}
	return "{" + labels + "}"
}

// Render writes every family in the Prometheus text format.
func (r *Registry) Render() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	for _, name := range r.order {
		f := r.families[name]
		if f.help != "" {
			fmt.Fprintf(&b, "# HELP %s %s\n", f.name, f.help)
		}
		fmt.Fprintf(&b, "# TYPE %s %s\n", f.name, f.kind)

		keys := make([]string, 0, len(f.series))
		for k := range f.series {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, full := range keys {
			switch m := f.series[full].(type) {
			case *Counter:
				fmt.Fprintf(&b, "%s %d\n", full, m.Value())
			case *Gauge:
				fmt.Fprintf(&b, "%s %d\n", full, m.Value())
			case *Histogram:
				_, labels := split(full)
				writeHistogram(&b, f.name, labels, m)
			}
		}
	}
	return b.String()
}

func writeHistogram(b *strings.Builder, name, labels string, h *Histogram) {
	h.mu.Lock()
	defer h.mu.Unlock()
	extra := ""
	if labels != "" {
		extra = "," + labels
	}
	var cum uint64
	for i, bound := range h.bounds {
		cum += h.counts[i]
		fmt.Fprintf(b, "%s_bucket{le=\"%g\"%s} %d\n", name, bound, extra, cum)
	}
	fmt.Fprintf(b, "%s_bucket{le=\"+Inf\"%s} %d\n", name, extra, h.total)
	fmt.Fprintf(b, "%s_sum%s %g\n", name, braces(labels), h.sum)
	fmt.Fprintf(b, "%s_count%s %d\n", name, braces(labels), h.total)
}

// Handler serves Render output.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(r.Render()))
	})
}
