package aggregator

import (
	"math"

	"github.com/marketvet/marketvet/internal/market"
	"github.com/marketvet/marketvet/internal/metrics"
)

// Status classifies a cross-validation outcome.
type Status string

const (
	StatusSuccess             Status = "success"
	StatusAnomaliesDetected   Status = "anomalies_detected"
	StatusInsufficientSources Status = "insufficient_sources"
)

// Severity grades an anomaly.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Anomaly kinds.
const (
	KindPriceDeviation      = "price_deviation"
	KindVolumeInconsistency = "volume_inconsistency"
)

// Cross-validation thresholds. These are the documented rules, not tunables.
const (
	priceDeviationLimit = 0.05 // relative deviation from median flags a source
	highDeviationLimit  = 0.10 // above this the flag is HIGH severity
	volumeCVLimit       = 2.0  // volume coefficient of variation across sources
	tightConsensusCV    = 0.01 // price CV under 1% earns a confidence bonus
	anomalyPenalty      = 0.15
	tightConsensusBonus = 0.05
)

// Anomaly is one per-source deviation from consensus.
type Anomaly struct {
	Kind      string   `json:"kind"`
	SourceID  string   `json:"source_id,omitempty"`
	Magnitude float64  `json:"magnitude"`
	Severity  Severity `json:"severity"`
}

// ValidationReport is the immutable outcome of cross-validating one fetch.
type ValidationReport struct {
	Status          Status    `json:"status"`
	Anomalies       []Anomaly `json:"anomalies,omitempty"`
	Confidence      float64   `json:"confidence"`
	ConsensusValue  float64   `json:"consensus_value"`
	ForcedInclusion bool      `json:"forced_inclusion,omitempty"`
}

// buildReport cross-validates the successful sources. Fewer than two
// successes short-circuits to insufficient_sources and skips anomaly
// detection entirely.
func buildReport(results []SourceResult, mc *metrics.Collector) ValidationReport {
	successes := successfulResults(results)

	if len(successes) < 2 {
		rep := ValidationReport{Status: StatusInsufficientSources}
		if len(successes) == 1 {
			rep.Confidence = 0.5
			rep.ConsensusValue = successes[0].Series.Last().Close
		}
		return rep
	}

	latest := make([]float64, len(successes))
	volumes := make([]float64, len(successes))
	for i, r := range successes {
		latest[i] = r.Series.Last().Close
		volumes[i] = r.Series.Last().Volume
	}
	median := market.Median(latest)

	var anomalies []Anomaly
	if len(successes) == 2 {
		// Two sources cannot out-vote each other, so a deviation is
		// reported once, unattributed, as the relative spread.
		if median != 0 {
			spread := math.Abs(latest[0]-latest[1]) / median
			if spread > priceDeviationLimit {
				anomalies = append(anomalies, Anomaly{
					Kind:      KindPriceDeviation,
					Magnitude: spread,
					Severity:  deviationSeverity(spread),
				})
			}
		}
	} else {
		for i, r := range successes {
			if median == 0 {
				continue
			}
			deviation := math.Abs(latest[i]-median) / median
			if deviation > priceDeviationLimit {
				anomalies = append(anomalies, Anomaly{
					Kind:      KindPriceDeviation,
					SourceID:  r.SourceID,
					Magnitude: deviation,
					Severity:  deviationSeverity(deviation),
				})
			}
		}
	}
	if cv := market.CoefficientOfVariation(volumes); cv > volumeCVLimit {
		anomalies = append(anomalies, Anomaly{
			Kind:      KindVolumeInconsistency,
			Magnitude: cv,
			Severity:  SeverityLow,
		})
	}
	for _, a := range anomalies {
		mc.RecordAnomaly(a.Kind, string(a.Severity))
	}

	status := StatusSuccess
	if len(anomalies) > 0 {
		status = StatusAnomaliesDetected
	}
	return ValidationReport{
		Status:         status,
		Anomalies:      anomalies,
		Confidence:     confidenceScore(len(successes), len(anomalies), market.CoefficientOfVariation(latest)),
		ConsensusValue: median,
	}
}

func deviationSeverity(deviation float64) Severity {
	if deviation > highDeviationLimit {
		return SeverityHigh
	}
	return SeverityMedium
}

// confidenceScore implements the documented formula: base by source count,
// minus a fixed penalty per anomaly, plus a bonus for a tight consensus,
// clamped to [0,1]. It is non-increasing in the anomaly count.
func confidenceScore(successCount, anomalyCount int, priceCV float64) float64 {
	var base float64
	switch {
	case successCount >= 3:
		base = 0.95
	case successCount == 2:
		base = 0.85
	case successCount == 1:
		base = 0.60
	}
	score := base - anomalyPenalty*float64(anomalyCount)
	if priceCV < tightConsensusCV {
		score += tightConsensusBonus
	}
	return market.Clamp01(score)
}

func successfulResults(results []SourceResult) []SourceResult {
	out := make([]SourceResult, 0, len(results))
	for _, r := range results {
		if r.OK {
			out = append(out, r)
		}
	}
	return out
}
