// Package health tracks per-component reliability over a rolling call window
// and derives circuit-breaker style status plus a system-wide degradation
// strategy.
package health

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Status is the health classification of a component.
type Status int

const (
	StatusUnknown Status = iota
	StatusHealthy
	StatusDegraded
	StatusFailing
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "HEALTHY"
	case StatusDegraded:
		return "DEGRADED"
	case StatusFailing:
		return "FAILING"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Config bounds the rolling window and the slow-call threshold.
type Config struct {
	WindowSize    int           `yaml:"window_size"`
	SlowThreshold time.Duration `yaml:"slow_threshold"`
	// MinSamples is the window population required before a component may be
	// classified worse than DEGRADED. Below it, error rates are too noisy to
	// call an outage.
	MinSamples int `yaml:"min_samples"`
	// Fallbacks maps a component ID to the documented degradation action
	// taken when that component is unhealthy. Configuration, not logic.
	Fallbacks map[string]string `yaml:"fallbacks"`
}

// DefaultConfig mirrors the documented defaults: last 100 calls, 5s slow bar.
func DefaultConfig() Config {
	return Config{
		WindowSize:    100,
		SlowThreshold: 5 * time.Second,
		MinSamples:    5,
		Fallbacks: map[string]string{
			"aggregator": "use single highest-priority source",
			"accuracy":   "use static priors",
			"regime":     "use default timeframe set",
			"extractor":  "proceed with empty feature set",
		},
	}
}

type call struct {
	ok      bool
	latency time.Duration
}

type window struct {
	calls []call
	next  int
	full  bool
}

func (w *window) add(c call, size int) {
	if !w.full && len(w.calls) < size {
		w.calls = append(w.calls, c)
		if len(w.calls) == size {
			w.full = true
			w.next = 0
		}
		return
	}
	w.calls[w.next] = c
	w.next = (w.next + 1) % len(w.calls)
}

// ComponentHealth is the derived health record for one component. It is a
// pure function of the component's current window.
type ComponentHealth struct {
	ComponentID   string  `json:"component_id"`
	Status        string  `json:"status"`
	SuccessRate   float64 `json:"success_rate"`
	ErrorCount    int     `json:"error_count"`
	LastLatencyMS int64   `json:"last_latency_ms"`
	WindowCalls   int     `json:"window_calls"`
}

// Monitor owns the rolling windows for all registered components.
type Monitor struct {
	cfg     Config
	mu      sync.RWMutex
	windows map[string]*window
}

// NewMonitor creates a monitor; zero-value config fields fall back to
// defaults.
func NewMonitor(cfg Config) *Monitor {
	def := DefaultConfig()
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = def.SlowThreshold
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.Fallbacks == nil {
		cfg.Fallbacks = def.Fallbacks
	}
	return &Monitor{cfg: cfg, windows: make(map[string]*window)}
}

// Register makes a component known before its first call so it shows up in
// reports as UNKNOWN rather than being absent.
func (m *Monitor) Register(component string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.windows[component]; !ok {
		m.windows[component] = &window{}
	}
}

// Record appends one call observation to the component's window.
func (m *Monitor) Record(component string, ok bool, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, exists := m.windows[component]
	if !exists {
		w = &window{}
		m.windows[component] = w
	}
	w.add(call{ok: ok, latency: latency}, m.cfg.WindowSize)
}

// Check recomputes the component's health from its current window.
func (m *Monitor) Check(component string) ComponentHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, exists := m.windows[component]
	if !exists || len(w.calls) == 0 {
		return ComponentHealth{ComponentID: component, Status: StatusUnknown.String()}
	}

	var errs int
	var latencySum time.Duration
	for _, c := range w.calls {
		if !c.ok {
			errs++
		}
		latencySum += c.latency
	}
	n := len(w.calls)
	errorRate := float64(errs) / float64(n)
	avgLatency := latencySum / time.Duration(n)

	last := w.calls[len(w.calls)-1]
	if w.full {
		last = w.calls[(w.next+n-1)%n]
	}

	status := Evaluate(errorRate, avgLatency, m.cfg.SlowThreshold)
	if n < m.cfg.MinSamples && status > StatusDegraded {
		status = StatusDegraded
	}
	return ComponentHealth{
		ComponentID:   component,
		Status:        status.String(),
		SuccessRate:   1 - errorRate,
		ErrorCount:    errs,
		LastLatencyMS: last.latency.Milliseconds(),
		WindowCalls:   n,
	}
}

// SystemStatus is the worst status across registered components. UNKNOWN only
// when every component is unknown.
func (m *Monitor) SystemStatus() Status {
	worst := StatusUnknown
	for _, id := range m.componentIDs() {
		st := parseStatus(m.Check(id).Status)
		if st == StatusUnknown {
			continue
		}
		if st > worst {
			worst = st
		}
	}
	return worst
}

// Healthy reports whether a component is safe to rely on without a fallback.
func (m *Monitor) Healthy(component string) bool {
	st := parseStatus(m.Check(component).Status)
	return st == StatusHealthy || st == StatusUnknown
}

// Fallback returns the configured degradation action for a component.
func (m *Monitor) Fallback(component string) (string, bool) {
	action, ok := m.cfg.Fallbacks[component]
	return action, ok
}

// Wrap times fn, records the observation, and passes the error through.
func (m *Monitor) Wrap(component string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	m.Record(component, err == nil, elapsed)
	if err != nil {
		log.Warn().Str("component", component).Dur("latency", elapsed).
			Err(err).Msg("monitored call failed")
	}
	return err
}

func parseStatus(s string) Status {
	switch s {
	case "HEALTHY":
		return StatusHealthy
	case "DEGRADED":
		return StatusDegraded
	case "FAILING":
		return StatusFailing
	case "FAILED":
		return StatusFailed
	default:
		return StatusUnknown
	}
}

// componentIDs returns registered components in stable order for reporting.
func (m *Monitor) componentIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.windows))
	for id := range m.windows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
