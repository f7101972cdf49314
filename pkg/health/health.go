// Package health implements liveness and readiness probes.
//
// Probes run on a shared background ticker. A probe flips to failing only
// after failing several times in a row, and flips back after one success,
// which keeps transient blips from flapping the endpoints.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc reports nil when the probed component is healthy.
type CheckFunc func(ctx context.Context) error

// failAfter is the consecutive-failure streak required before a probe is
// reported as failing.
const failAfter = 3

type probe struct {
	name    string
	timeout time.Duration
	check   CheckFunc

	failing atomic.Bool
	lastErr atomic.Pointer[error]

	// streak is touched only by the tick goroutine.
	streak int
}

func (p *probe) tick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(ctx)
	p.lastErr.Store(&err)

	if err == nil {
		p.streak = 0
		p.failing.Store(false)
		return
	}
	if p.streak++; p.streak >= failAfter {
		p.failing.Store(true)
	}
}

// Probes tracks liveness and readiness state for a service.
type Probes struct {
	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []*probe
	readiness []*probe
	stop      context.CancelFunc
}

// New returns an empty probe set. The service starts not ready; call
// SetReady(true) once startup has finished.
func New() *Probes {
	return &Probes{}
}

// AddLiveness registers a liveness probe, used to decide whether the process
// should be restarted.
func (ps *Probes) AddLiveness(name string, timeout time.Duration, check CheckFunc) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.liveness = append(ps.liveness, &probe{name: name, timeout: timeout, check: check})
}

// AddReadiness registers a readiness probe, used to decide whether the
// service should receive traffic.
func (ps *Probes) AddReadiness(name string, timeout time.Duration, check CheckFunc) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.readiness = append(ps.readiness, &probe{name: name, timeout: timeout, check: check})
}

// Start runs all registered probes on a shared ticker until Stop is called or
// ctx is cancelled. Probes must be registered before Start.
func (ps *Probes) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	ps.mu.Lock()
	ps.stop = cancel
	all := append(append([]*probe(nil), ps.liveness...), ps.readiness...)
	ps.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for _, p := range all {
			p.tick(ctx)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, p := range all {
					p.tick(ctx)
				}
			}
		}
	}()
}

// Stop cancels the background ticker. Safe to call more than once.
func (ps *Probes) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.stop != nil {
		ps.stop()
		ps.stop = nil
	}
}

// SetReady flips the manual readiness gate. Set it to false during graceful
// shutdown so load balancers drain the instance.
func (ps *Probes) SetReady(ready bool) {
	ps.ready.Store(ready)
}

// IsReady reports whether the manual gate is open and all readiness probes
// pass.
func (ps *Probes) IsReady() bool {
	if !ps.ready.Load() {
		return false
	}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for _, p := range ps.readiness {
		if p.failing.Load() {
			return false
		}
	}
	return true
}

type probeStatus struct {
	Status   string            `json:"status"`
	Failures map[string]string `json:"failures,omitempty"`
}

// LiveEndpoint serves the /livez probe: 200 while all liveness probes pass,
// 503 with failure details otherwise.
func (ps *Probes) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	ps.mu.RLock()
	probes := append([]*probe(nil), ps.liveness...)
	ps.mu.RUnlock()

	writeStatus(w, failures(probes))
}

// ReadyEndpoint serves the /readyz probe: 200 while the service is marked
// ready and all readiness probes pass, 503 otherwise.
func (ps *Probes) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	ps.mu.RLock()
	probes := append([]*probe(nil), ps.readiness...)
	ps.mu.RUnlock()

	fails := failures(probes)
	if !ps.ready.Load() {
		fails["service"] = "not ready"
	}
	writeStatus(w, fails)
}

func failures(probes []*probe) map[string]string {
	fails := make(map[string]string)
	for _, p := range probes {
		if !p.failing.Load() {
			continue
		}
		msg := "failing"
		if errp := p.lastErr.Load(); errp != nil && *errp != nil {
			msg = (*errp).Error()
		}
		fails[p.name] = msg
	}
	return fails
}

func writeStatus(w http.ResponseWriter, fails map[string]string) {
	resp := probeStatus{Status: "ok"}
	code := http.StatusOK
	if len(fails) > 0 {
		resp = probeStatus{Status: "failing", Failures: fails}
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
