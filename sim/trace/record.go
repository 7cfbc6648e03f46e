// Package trace provides decision-trace recording for allocation policy analysis.
// This package depends on neither sim/ nor sim/cluster/; it stores plain data types.
package trace

import "time"

// AssignmentRecord captures a single successful placement decision.
type AssignmentRecord struct {
	RequestID  string
	Clock      time.Time
	ServerID   int
	Policy     string
	Preference []int // server indices in the order the policy proposed them
	Attempts   int   // failed attempts before this placement (0 = first try)
}

// CongestionRecord captures a rate-limited "all servers full" notice.
type CongestionRecord struct {
	RequestID           string // head-of-queue request that could not be placed
	Clock               time.Time
	ConsecutiveFailures int
	Backoff             time.Duration
}
