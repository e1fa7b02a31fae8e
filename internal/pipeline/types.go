// Package pipeline is the staged orchestrator: it gates data collection,
// feature analysis, signal synthesis, scenario simulation, risk metrics,
// final validation, and sizing into one scored recommendation with an audit
// trail.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/marketvet/marketvet/internal/aggregator"
	"github.com/marketvet/marketvet/internal/market"
	"github.com/marketvet/marketvet/internal/regime"
)

// ErrValidationFailed marks a recommendation rejected by the final gate.
var ErrValidationFailed = errors.New("validation failed")

// Action is the terminal trading call.
type Action string

const (
	ActionLong    Action = "LONG"
	ActionShort   Action = "SHORT"
	ActionNoTrade Action = "NO_TRADE"
)

// Stage names, in pipeline order.
type Stage string

const (
	StageDataCollection Stage = "DATA_COLLECTION"
	StageFeatures       Stage = "FEATURES"
	StageSignal         Stage = "SIGNAL"
	StageScenario       Stage = "SCENARIO"
	StageRisk           Stage = "RISK"
	StageValidation     Stage = "VALIDATION"
	StageSizing         Stage = "SIZING"
)

// Request asks for one analysis run.
type Request struct {
	Symbol     string   `json:"symbol"`
	Timeframes []string `json:"timeframes,omitempty"`
	Equity     float64  `json:"equity"`
}

// PatternSignal is one pattern's directional contribution from the feature
// extractor.
type PatternSignal struct {
	Name       string           `json:"name"`
	Direction  market.Direction `json:"direction"`
	Confidence float64          `json:"confidence"`
	// Indicator attributes the signal for accuracy gating; empty means
	// the pattern is never gated out.
	Indicator string `json:"indicator,omitempty"`
}

// FeatureBundle is what the core reads from the opaque feature extractor.
type FeatureBundle struct {
	Patterns   []PatternSignal  `json:"patterns"`
	Trend      market.Direction `json:"trend"`
	HighVolume bool             `json:"high_volume"`
}

// FeatureExtractor is the external feature/pattern analysis collaborator.
type FeatureExtractor interface {
	Analyze(ctx context.Context, series market.Series) (FeatureBundle, error)
}

// SeriesProvider is the source aggregation collaborator (the Aggregator in
// production, a fake in tests).
type SeriesProvider interface {
	FetchAndValidate(ctx context.Context, symbol, timeframe string, limit int) (aggregator.Result, error)
}

// PositionSize is the stage-7 sizing artifact.
type PositionSize struct {
	Entry            float64 `json:"entry"`
	Stop             float64 `json:"stop"`
	Quantity         float64 `json:"quantity"`
	Notional         float64 `json:"notional"`
	RiskAmount       float64 `json:"risk_amount"`
	FractionOfEquity float64 `json:"fraction_of_equity"`
}

// Recommendation is the terminal artifact of one run.
type Recommendation struct {
	RunID               string                                  `json:"run_id"`
	Symbol              string                                  `json:"symbol"`
	Action              Action                                  `json:"action"`
	Confidence          float64                                 `json:"confidence"`
	StagesPassed        []Stage                                 `json:"stages_passed"`
	Reason              string                                  `json:"reason,omitempty"`
	Sizing              *PositionSize                           `json:"sizing,omitempty"`
	Signal              *SignalResult                           `json:"signal,omitempty"`
	Scenario            *ScenarioResult                         `json:"scenario,omitempty"`
	Risk                *RiskMetrics                            `json:"risk,omitempty"`
	Regime              *regime.Profile                         `json:"regime,omitempty"`
	SuggestedTimeframes []string                                `json:"suggested_timeframes,omitempty"`
	Reports             map[string]aggregator.ValidationReport  `json:"reports,omitempty"`
	Notes               []string                                `json:"notes,omitempty"`
	StartedAt           time.Time                               `json:"started_at"`
	FinishedAt          time.Time                               `json:"finished_at"`
}

func (r *Recommendation) passed(s Stage) {
	r.StagesPassed = append(r.StagesPassed, s)
}

func (r *Recommendation) note(msg string) {
	r.Notes = append(r.Notes, msg)
}
