package health

import "fmt"

// FallbackEntry pairs an unhealthy component with its degradation action.
type FallbackEntry struct {
	Component string `json:"component"`
	Fallback  string `json:"fallback"`
}

// Report is the health surface consumed by external alerting/logging.
type Report struct {
	Status          string                     `json:"status"`
	PerComponent    map[string]ComponentHealth `json:"per_component"`
	Recommendations []string                   `json:"recommendations"`
	FallbackMap     []FallbackEntry            `json:"fallback_map"`
}

// Report assembles the full system health report, including the degradation
// plan for every component not currently HEALTHY.
func (m *Monitor) Report() Report {
	rep := Report{
		Status:       m.SystemStatus().String(),
		PerComponent: make(map[string]ComponentHealth),
	}
	for _, id := range m.componentIDs() {
		ch := m.Check(id)
		rep.PerComponent[id] = ch

		st := parseStatus(ch.Status)
		if st == StatusHealthy || st == StatusUnknown {
			continue
		}
		if action, ok := m.Fallback(id); ok {
			rep.FallbackMap = append(rep.FallbackMap, FallbackEntry{Component: id, Fallback: action})
			rep.Recommendations = append(rep.Recommendations,
				fmt.Sprintf("%s is %s: %s", id, ch.Status, action))
		} else {
			rep.Recommendations = append(rep.Recommendations,
				fmt.Sprintf("%s is %s: no fallback configured, investigate", id, ch.Status))
		}
	}
	return rep
}

// DegradationPlan returns only the active fallback actions, keyed by
// component.
func (m *Monitor) DegradationPlan() map[string]string {
	plan := make(map[string]string)
	for _, entry := range m.Report().FallbackMap {
		plan[entry.Component] = entry.Fallback
	}
	return plan
}
