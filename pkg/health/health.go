// Package health serves liveness and readiness probes.
//
// Every registered check runs in its own goroutine. A check turns
// unhealthy after FailureThreshold consecutive failures and healthy again
// after SuccessThreshold consecutive successes, so a single slow ping does
// not flip the probe.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// CheckFunc reports the health of one component. A nil error means healthy.
type CheckFunc func(ctx context.Context) error

// Thresholds controls how many consecutive results flip a check.
type Thresholds struct {
	Failure int
	Success int
}

// DefaultThresholds is used by AddLivenessCheck and AddReadinessCheck.
var DefaultThresholds = Thresholds{Failure: 3, Success: 1}

type probe struct {
	name    string
	timeout time.Duration
	check   CheckFunc
	limits  Thresholds

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	// Owned by the goroutine calling run.
	fails int
	oks   int
}

func newProbe(name string, timeout time.Duration, check CheckFunc, limits Thresholds) *probe {
	p := &probe{name: name, timeout: timeout, check: check, limits: limits}
	p.healthy.Store(true)
	return p
}

func (p *probe) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(ctx)
	p.lastErr.Store(&err)
	if err != nil {
		p.oks = 0
		p.fails++
		if p.fails >= p.limits.Failure {
			p.healthy.Store(false)
		}
		return
	}
	p.fails = 0
	p.oks++
	if p.oks >= p.limits.Success {
		p.healthy.Store(true)
	}
}

// failure returns the reason p is unhealthy, or "" if it is healthy.
func (p *probe) failure() string {
	if p.healthy.Load() {
		return ""
	}
	if e := p.lastErr.Load(); e != nil && *e != nil {
		return (*e).Error()
	}
	return "check is unhealthy"
}

// Health tracks liveness and readiness of a service.
type Health struct {
	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []*probe
	readiness []*probe
	cancel    context.CancelFunc
}

// New creates a Health that is not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a check of the process itself.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.AddLivenessCheckWith(name, timeout, DefaultThresholds, check)
}

// AddLivenessCheckWith is AddLivenessCheck with explicit thresholds.
func (h *Health) AddLivenessCheckWith(name string, timeout time.Duration, limits Thresholds, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, newProbe(name, timeout, check, limits))
}

// AddReadinessCheck registers a check of a dependency needed to serve
// traffic, such as the database.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.AddReadinessCheckWith(name, timeout, DefaultThresholds, check)
}

// AddReadinessCheckWith is AddReadinessCheck with explicit thresholds.
func (h *Health) AddReadinessCheckWith(name string, timeout time.Duration, limits Thresholds, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, newProbe(name, timeout, check, limits))
}

// Start runs every registered check immediately and then once per
// interval until Stop or ctx cancellation.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := slices.Concat(h.liveness, h.readiness)
	h.mu.Unlock()

	for _, p := range probes {
		go loop(ctx, p, interval)
	}
}

func loop(ctx context.Context, p *probe, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.run(ctx)
		}
	}
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

// SetReady sets the manual readiness flag. Set it to false at the start of
// a graceful shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service is marked ready and every readiness
// check passes.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	return len(failures(h.snapshot(false))) == 0
}

func (h *Health) snapshot(live bool) []*probe {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if live {
		return slices.Clone(h.liveness)
	}
	return slices.Clone(h.readiness)
}

func failures(probes []*probe) map[string]string {
	out := make(map[string]string)
	for _, p := range probes {
		if reason := p.failure(); reason != "" {
			out[p.name] = reason
		}
	}
	return out
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, failures(h.snapshot(true)))
}

// ReadyEndpoint serves /readyz. It fails while the service is not marked
// ready even if every check passes.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	f := failures(h.snapshot(false))
	if !h.ready.Load() {
		f["_readiness"] = "service is not ready"
	}
	writeStatus(w, f)
}

// writeStatus answers {"status":"ok"} or 503 with
// {"status":"unhealthy","checks":{name:reason}}.
func writeStatus(w http.ResponseWriter, failed map[string]string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	status := http.StatusOK
	if len(failed) == 0 {
		e.Str("ok")
	} else {
		status = http.StatusServiceUnavailable
		e.Str("unhealthy")
		e.FieldStart("checks")
		e.ObjStart()
		names := make([]string, 0, len(failed))
		for name := range failed {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			e.FieldStart(name)
			e.Str(failed[name])
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
