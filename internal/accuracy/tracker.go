// Package accuracy learns how trustworthy each signal-generating indicator
// actually is, by scoring its directional calls against realized trade
// outcomes and blending the evidence into a per-indicator reliability prior.
package accuracy

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/marketvet/marketvet/internal/health"
	"github.com/marketvet/marketvet/internal/market"
)

// Record is the persisted reliability state for one indicator, either global
// (empty Symbol) or scoped to one symbol. TotalSignals never decreases.
type Record struct {
	IndicatorID    string    `json:"indicator_id"`
	Symbol         string    `json:"symbol,omitempty"`
	TotalSignals   int       `json:"total_signals"`
	CorrectSignals int       `json:"correct_signals"`
	Accuracy       float64   `json:"accuracy"`
	LastUpdated    time.Time `json:"last_updated"`
}

// Outcome is one realized trade result, the asynchronous feedback that
// drives accuracy learning.
type Outcome struct {
	Timestamp       time.Time         `json:"timestamp"`
	Symbol          string            `json:"symbol"`
	PredictedAction string            `json:"predicted_action"`
	ActualAction    string            `json:"actual_action"`
	Success         bool              `json:"success"`
	PnLPct          float64           `json:"pnl_pct"`
	IndicatorsUsed  map[string]string `json:"indicators_used"`
}

// Store is the persistence boundary: both tables are loaded once at
// construction and fully rewritten after each mutation. Single writer.
type Store interface {
	Load() ([]Record, []Outcome, error)
	Save(records []Record, outcomes []Outcome) error
}

// Config tunes the learning behavior.
type Config struct {
	MinSamples    int                `yaml:"min_samples"`
	LearningRate  float64            `yaml:"learning_rate"`
	OutcomeBuffer int                `yaml:"outcome_buffer"`
	Priors        map[string]float64 `yaml:"priors"`
}

// DefaultConfig returns the documented learning defaults.
func DefaultConfig() Config {
	return Config{
		MinSamples:    10,
		LearningRate:  0.3,
		OutcomeBuffer: 1000,
	}
}

// Tracker owns the accuracy table and the bounded outcome log.
type Tracker struct {
	cfg     Config
	store   Store
	monitor *health.Monitor

	mu       sync.Mutex
	records  map[string]*Record
	outcomes []Outcome
}

// NewTracker loads persisted state through the store. A nil monitor disables
// health recording.
func NewTracker(cfg Config, store Store, monitor *health.Monitor) (*Tracker, error) {
	def := DefaultConfig()
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.LearningRate <= 0 || cfg.LearningRate > 1 {
		cfg.LearningRate = def.LearningRate
	}
	if cfg.OutcomeBuffer <= 0 {
		cfg.OutcomeBuffer = def.OutcomeBuffer
	}

	t := &Tracker{
		cfg:     cfg,
		store:   store,
		monitor: monitor,
		records: make(map[string]*Record),
	}
	records, outcomes, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load accuracy state: %w", err)
	}
	for i := range records {
		r := records[i]
		t.records[recordKey(r.IndicatorID, r.Symbol)] = &r
	}
	if len(outcomes) > cfg.OutcomeBuffer {
		trimmed := make([]Outcome, cfg.OutcomeBuffer)
		copy(trimmed, outcomes[len(outcomes)-cfg.OutcomeBuffer:])
		outcomes = trimmed
	}
	t.outcomes = outcomes
	return t, nil
}

func recordKey(indicatorID, symbol string) string {
	return indicatorID + "|" + symbol
}

// RecordOutcome scores every directional indicator signal attached to the
// outcome, updates global and symbol-scoped records, appends to the outcome
// ring, and rewrites the persisted tables.
func (t *Tracker) RecordOutcome(o Outcome) error {
	predDir, ok := market.ParseDirection(o.PredictedAction)
	if !ok {
		return fmt.Errorf("outcome carries no directional prediction: %q", o.PredictedAction)
	}
	winning := predDir
	if !o.Success {
		winning = predDir.Opposite()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for indicatorID, signal := range o.IndicatorsUsed {
		dir, directional := market.ParseDirection(signal)
		if !directional {
			continue // abstentions are neither right nor wrong
		}
		correct := dir == winning
		t.updateRecord(indicatorID, "", correct, now)
		if o.Symbol != "" {
			t.updateRecord(indicatorID, o.Symbol, correct, now)
		}
	}

	t.outcomes = append(t.outcomes, o)
	if len(t.outcomes) > t.cfg.OutcomeBuffer {
		// Copy instead of reslicing so evicted outcomes are freed.
		trimmed := make([]Outcome, t.cfg.OutcomeBuffer)
		copy(trimmed, t.outcomes[len(t.outcomes)-t.cfg.OutcomeBuffer:])
		t.outcomes = trimmed
	}

	return t.persistLocked()
}

// updateRecord applies one observation. Accuracy stays at the seeded prior
// until the record matures, then blends toward the raw hit rate at the
// configured learning rate.
func (t *Tracker) updateRecord(indicatorID, symbol string, correct bool, now time.Time) {
	key := recordKey(indicatorID, symbol)
	rec, exists := t.records[key]
	if !exists {
		rec = &Record{
			IndicatorID: indicatorID,
			Symbol:      symbol,
			Accuracy:    t.Prior(indicatorID),
		}
		t.records[key] = rec
	}

	rec.TotalSignals++
	if correct {
		rec.CorrectSignals++
	}
	if rec.TotalSignals >= t.cfg.MinSamples {
		raw := float64(rec.CorrectSignals) / float64(rec.TotalSignals)
		alpha := t.cfg.LearningRate
		rec.Accuracy = market.Clamp01((1-alpha)*rec.Accuracy + alpha*raw)
	}
	rec.LastUpdated = now
}

func (t *Tracker) persistLocked() error {
	records := make([]Record, 0, len(t.records))
	for _, r := range t.records {
		records = append(records, *r)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].IndicatorID != records[j].IndicatorID {
			return records[i].IndicatorID < records[j].IndicatorID
		}
		return records[i].Symbol < records[j].Symbol
	})

	start := time.Now()
	err := t.store.Save(records, t.outcomes)
	if t.monitor != nil {
		t.monitor.Record("accuracy", err == nil, time.Since(start))
	}
	if err != nil {
		return fmt.Errorf("persist accuracy state: %w", err)
	}
	return nil
}

// GetAccuracy prefers a matured symbol-scoped record, then the global record,
// then the static prior.
func (t *Tracker) GetAccuracy(indicatorID, symbol string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if symbol != "" {
		if rec, ok := t.records[recordKey(indicatorID, symbol)]; ok && rec.TotalSignals >= t.cfg.MinSamples {
			return rec.Accuracy
		}
	}
	if rec, ok := t.records[recordKey(indicatorID, "")]; ok {
		return rec.Accuracy
	}
	return t.Prior(indicatorID)
}

// DetectUnreliable lists indicators whose matured global accuracy fell below
// the threshold.
func (t *Tracker) DetectUnreliable(threshold float64) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []string
	for _, rec := range t.records {
		if rec.Symbol != "" {
			continue
		}
		if rec.TotalSignals >= t.cfg.MinSamples && rec.Accuracy < threshold {
			out = append(out, rec.IndicatorID)
		}
	}
	sort.Strings(out)
	if len(out) > 0 {
		log.Warn().Strs("indicators", out).Float64("threshold", threshold).
			Msg("unreliable indicators detected")
	}
	return out
}

// Prior returns the configured or default static prior for an indicator.
func (t *Tracker) Prior(indicatorID string) float64 {
	if p, ok := t.cfg.Priors[indicatorID]; ok {
		return p
	}
	if p, ok := DefaultPriors[indicatorID]; ok {
		return p
	}
	return 0.5
}

// MinSamples exposes the maturity bound for reporting.
func (t *Tracker) MinSamples() int { return t.cfg.MinSamples }
