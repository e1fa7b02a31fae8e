package accuracy

import "sort"

// Summary is the report surface for the CLI and the /accuracy endpoint.
type Summary struct {
	Indicators    []Record `json:"indicators"`
	OutcomeCount  int      `json:"outcome_count"`
	RecentHitRate float64  `json:"recent_hit_rate"`
}

// Stats snapshots the accuracy table and the recent outcome hit rate.
func (t *Tracker) Stats() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Summary{OutcomeCount: len(t.outcomes)}
	for _, rec := range t.records {
		s.Indicators = append(s.Indicators, *rec)
	}
	sort.Slice(s.Indicators, func(i, j int) bool {
		if s.Indicators[i].IndicatorID != s.Indicators[j].IndicatorID {
			return s.Indicators[i].IndicatorID < s.Indicators[j].IndicatorID
		}
		return s.Indicators[i].Symbol < s.Indicators[j].Symbol
	})

	if len(t.outcomes) > 0 {
		wins := 0
		for _, o := range t.outcomes {
			if o.Success {
				wins++
			}
		}
		s.RecentHitRate = float64(wins) / float64(len(t.outcomes))
	}
	return s
}

// Outcomes returns a copy of the bounded outcome log, oldest first.
func (t *Tracker) Outcomes() []Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Outcome, len(t.outcomes))
	copy(out, t.outcomes)
	return out
}
