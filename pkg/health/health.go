// Package health serves liveness and readiness probes backed by periodic
// dependency checks.
//
// A check flips to unhealthy after failureThreshold consecutive failures and
// back after successThreshold consecutive successes, so a single slow ping
// does not pull a replica out of rotation.
package health

import (
	"cmp"
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

// CheckFunc returns nil if the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// Kind tells which probe a check belongs to.
type Kind uint8

const (
	Liveness Kind = iota
	Readiness
)

func (k Kind) String() string {
	if k == Liveness {
		return "liveness"
	}
	return "readiness"
}

const (
	defaultFailureThreshold = 3
	defaultSuccessThreshold = 1
)

// check is one registered probe. run is only called from the check's own
// goroutine, so the counters need no locking; HTTP handlers only read the
// atomics.
type check struct {
	name             string
	kind             Kind
	timeout          time.Duration
	fn               CheckFunc
	failureThreshold int
	successThreshold int

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	consecutiveFails int
	consecutiveOK    int
}

func (c *check) isHealthy() bool {
	return c.healthy.Load()
}

func (c *check) lastError() error {
	if p := c.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// run executes the check once and reports whether its state flipped.
func (c *check) run(ctx context.Context) (changed bool) {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.fn(checkCtx)
	c.lastErr.Store(&err)

	was := c.isHealthy()
	if err != nil {
		c.consecutiveOK = 0
		c.consecutiveFails++
		if c.consecutiveFails >= c.failureThreshold {
			c.healthy.Store(false)
		}
	} else {
		c.consecutiveFails = 0
		c.consecutiveOK++
		if c.consecutiveOK >= c.successThreshold {
			c.healthy.Store(true)
		}
	}
	return was != c.isHealthy()
}

// Option configures Health.
type Option func(*Health)

// WithLogger logs check state changes.
func WithLogger(lg *zap.Logger) Option {
	return func(h *Health) { h.lg = lg }
}

// WithMeterProvider exports check states as the ledger.health.status gauge.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(h *Health) { h.mp = mp }
}

// CheckOption configures a single check.
type CheckOption func(*check)

// Thresholds overrides how many consecutive failures mark a check unhealthy
// and how many successes restore it.
func Thresholds(failures, successes int) CheckOption {
	return func(c *check) {
		c.failureThreshold = max(failures, 1)
		c.successThreshold = max(successes, 1)
	}
}

// Health manages liveness and readiness checks for a service.
type Health struct {
	ready atomic.Bool
	lg    *zap.Logger
	mp    metric.MeterProvider

	// mu guards checks and cancel. Handlers copy checks and release it
	// before touching check state.
	mu     sync.RWMutex
	checks []*check
	cancel context.CancelFunc
}

// New creates a Health in the not-ready state; call SetReady(true) once
// initialization is done.
func New(opts ...Option) (*Health, error) {
	h := &Health{
		lg: zap.NewNop(),
		mp: noop.NewMeterProvider(),
	}
	for _, o := range opts {
		o(h)
	}

	meter := h.mp.Meter("github.com/xenking/burger-ledger/pkg/health")
	gauge, err := meter.Int64ObservableGauge("ledger.health.status",
		metric.WithDescription("1 if the check is passing, 0 otherwise"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create health gauge")
	}
	if _, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for _, c := range h.snapshot() {
			var v int64
			if c.isHealthy() {
				v = 1
			}
			o.ObserveInt64(gauge, v, metric.WithAttributes(
				attribute.String("check", c.name),
				attribute.String("probe", c.kind.String()),
			))
		}
		return nil
	}, gauge); err != nil {
		return nil, errors.Wrap(err, "register health callback")
	}
	return h, nil
}

func (h *Health) add(kind Kind, name string, timeout time.Duration, fn CheckFunc, opts []CheckOption) {
	c := &check{
		name:             name,
		kind:             kind,
		timeout:          timeout,
		fn:               fn,
		failureThreshold: defaultFailureThreshold,
		successThreshold: defaultSuccessThreshold,
	}
	for _, o := range opts {
		o(c)
	}
	// Healthy until proven otherwise.
	c.healthy.Store(true)

	h.mu.Lock()
	h.checks = append(h.checks, c)
	h.mu.Unlock()
}

// AddLivenessCheck registers a check that decides whether the process should
// be restarted.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc, opts ...CheckOption) {
	h.add(Liveness, name, timeout, fn, opts)
}

// AddReadinessCheck registers a check that decides whether the service
// should receive traffic, typically a dependency ping.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc, opts ...CheckOption) {
	h.add(Readiness, name, timeout, fn, opts)
}

func (h *Health) snapshot() []*check {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.checks)
}

func (h *Health) byKind(kind Kind) []*check {
	var out []*check
	for _, c := range h.snapshot() {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Start runs every registered check in its own goroutine, once immediately
// and then at interval, until ctx is cancelled or Stop is called.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := slices.Clone(h.checks)
	h.mu.Unlock()

	for _, c := range checks {
		go h.loop(ctx, c, interval)
	}
}

func (h *Health) loop(ctx context.Context, c *check, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		h.runOnce(ctx, c)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *Health) runOnce(ctx context.Context, c *check) {
	if !c.run(ctx) {
		return
	}
	fields := []zap.Field{zap.String("check", c.name), zap.Stringer("probe", c.kind)}
	if c.isHealthy() {
		h.lg.Info("Health check recovered", fields...)
		return
	}
	h.lg.Warn("Health check failing", append(fields, zap.Error(c.lastError()))...)
}

// SetReady marks the service ready after startup, or not ready during
// shutdown drain.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service is marked ready and every readiness
// check passes.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	for _, c := range h.byKind(Readiness) {
		if !c.isHealthy() {
			return false
		}
	}
	return true
}

// Stop cancels the check goroutines. It is safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// LiveEndpoint serves /livez: 200 if every liveness check passes, 503
// otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeResponse(w, results(h.byKind(Liveness)), true)
}

// notReadyCheck is reported when the service is not marked ready.
const notReadyCheck = "_readiness"

// ReadyEndpoint serves /readyz: 200 if the service is marked ready and
// every readiness check passes, 503 otherwise.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	res := results(h.byKind(Readiness))
	ok := res.ok()
	if !h.ready.Load() {
		res = append(res, result{name: notReadyCheck, message: "service is not ready"})
		ok = false
	}
	writeResponse(w, res, ok)
}

type result struct {
	name    string
	healthy bool
	message string
}

type resultSet []result

func (rs resultSet) ok() bool {
	for _, r := range rs {
		if !r.healthy {
			return false
		}
	}
	return true
}

// results reports the stored outcome of each check without re-running it.
func results(checks []*check) resultSet {
	out := make(resultSet, 0, len(checks))
	for _, c := range checks {
		r := result{name: c.name, healthy: c.isHealthy(), message: "ok"}
		if !r.healthy {
			r.message = "check is unhealthy"
			if err := c.lastError(); err != nil {
				r.message = err.Error()
			}
		}
		out = append(out, r)
	}
	return out
}

// writeResponse writes {"status":"ok"|"unhealthy","checks":{...}} with
// checks sorted by name. Passing checks read "ok".
func writeResponse(w http.ResponseWriter, rs resultSet, ok bool) {
	status, text := http.StatusOK, "ok"
	if !ok || !rs.ok() {
		status, text = http.StatusServiceUnavailable, "unhealthy"
	}
	slices.SortFunc(rs, func(a, b result) int { return cmp.Compare(a.name, b.name) })

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("status", func(e *jx.Encoder) { e.Str(text) })
		if len(rs) == 0 {
			return
		}
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for _, r := range rs {
					e.Field(r.name, func(e *jx.Encoder) { e.Str(r.message) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status is already sent; a failed write means the client left.
	_, _ = w.Write(e.Bytes())
}
