package aggregator

// latencyFloorMS is the latency at which a source's latency score reaches 0.
const latencyFloorMS = 5000

// selectBest picks the winning source among successful results. Sources
// carrying a HIGH-severity anomaly are excluded, unless that would empty the
// candidate set; then the full set is used and the report is marked
// ForcedInclusion.
func (c Config) selectBest(results []SourceResult, report *ValidationReport) (SourceResult, bool) {
	successes := successfulResults(results)
	if len(successes) == 0 {
		return SourceResult{}, false
	}

	flagged := make(map[string]bool)
	for _, a := range report.Anomalies {
		if a.Severity == SeverityHigh && a.SourceID != "" {
			flagged[a.SourceID] = true
		}
	}

	candidates := make([]SourceResult, 0, len(successes))
	for _, r := range successes {
		if !flagged[r.SourceID] {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		candidates = successes
		report.ForcedInclusion = true
	}

	best := candidates[0]
	bestScore := c.selectionScore(best)
	for _, r := range candidates[1:] {
		if s := c.selectionScore(r); s > bestScore {
			best, bestScore = r, s
		}
	}
	return best, true
}

// selectionScore weighs the static priority ranking (70%) against observed
// latency (30%).
func (c Config) selectionScore(r SourceResult) float64 {
	latencyScore := 1 - float64(r.LatencyMS)/latencyFloorMS
	if latencyScore < 0 {
		latencyScore = 0
	}
	return 0.7*c.rank(r.SourceID) + 0.3*latencyScore
}
