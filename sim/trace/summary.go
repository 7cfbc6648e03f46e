package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalAssignments       int
	CongestionNotices      int
	MaxConsecutiveFailures int
	MeanAttempts           float64 // mean failed attempts before a placement
	UniqueTargets          int
	TargetDistribution     map[int]int    // server ID → count of requests placed
	PolicyUsage            map[string]int // policy name → count of placements
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		TargetDistribution: make(map[int]int),
		PolicyUsage:        make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalAssignments = len(st.Assignments)
	if len(st.Assignments) > 0 {
		totalAttempts := 0
		for _, a := range st.Assignments {
			summary.TargetDistribution[a.ServerID]++
			summary.PolicyUsage[a.Policy]++
			totalAttempts += a.Attempts
		}
		summary.MeanAttempts = float64(totalAttempts) / float64(len(st.Assignments))
	}

	summary.CongestionNotices = len(st.Congestions)
	for _, c := range st.Congestions {
		if c.ConsecutiveFailures > summary.MaxConsecutiveFailures {
			summary.MaxConsecutiveFailures = c.ConsecutiveFailures
		}
	}

	summary.UniqueTargets = len(summary.TargetDistribution)

	return summary
}
