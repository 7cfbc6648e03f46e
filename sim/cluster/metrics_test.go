package cluster

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/inference-sim/reqsim/sim"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// completeRequest feeds the full lifecycle of one request, finishing waitMs
// after arrival, with half of it spent queued.
func completeRequest(s *Stats, id string, serverID int, arrival time.Time, waitMs int) {
	r := sim.Request{ID: id, Kind: sim.CPUBound, Size: sim.Small, ArrivalTime: arrival}
	wait := time.Duration(waitMs) * time.Millisecond
	s.Observe(sim.RequestCreated{At: arrival, Request: r})
	s.Observe(sim.RequestAssigned{At: arrival, ServerID: serverID, Request: r})
	s.Observe(sim.RequestProcessStarted{At: arrival.Add(wait / 2), ServerID: serverID, RequestID: id, ArrivalTime: arrival, ServiceTime: r.ServiceTime()})
	s.Observe(sim.RequestProcessed{At: arrival.Add(wait), ServerID: serverID, RequestID: id, ArrivalTime: arrival, ServiceTime: r.ServiceTime()})
}

func TestStats_CountsAndAverages(t *testing.T) {
	// GIVEN three completed requests with waits 100, 200 and 300 ms
	clock := clockwork.NewFakeClock()
	s := NewStats(clock, 10*time.Second, nil)
	now := clock.Now()
	completeRequest(s, "a", 1, now, 100)
	completeRequest(s, "b", 2, now, 200)
	completeRequest(s, "c", 2, now, 300)
	s.Observe(sim.ErrorEncountered{At: now})
	s.Observe(sim.ConfigChanged{At: now, Change: sim.ConfigChange{Policy: sim.PolicyRandom}})

	// WHEN a snapshot is taken
	snap := s.Snapshot()

	// THEN every counter and derived average reflects the events
	assert.Equal(t, 3, snap.TotalRequests)
	assert.Equal(t, 3, snap.AssignedRequests)
	assert.Equal(t, 3, snap.ProcessedRequests)
	assert.Equal(t, 1, snap.Errors)
	assert.Equal(t, 1, snap.ConfigChanges)
	assert.Equal(t, map[int]int{1: 1, 2: 2}, snap.ProcessedByServer)
	assert.InDelta(t, 200.0, snap.AvgWait, 1e-9)
	assert.InDelta(t, 100.0, snap.AvgQueueDelay, 1e-9)
	assert.InDelta(t, 200.0, snap.P50Wait, 1e-9)
	assert.InDelta(t, 298.0, snap.P99Wait, 1e-9)
	assert.InDelta(t, 0.3, snap.Throughput, 1e-9)
}

func TestStats_Empty(t *testing.T) {
	s := NewStats(clockwork.NewFakeClock(), time.Second, nil)
	snap := s.Snapshot()
	assert.Equal(t, 0, snap.ProcessedRequests)
	assert.Equal(t, 0.0, snap.AvgWait)
	assert.Equal(t, 0.0, snap.Throughput)
	assert.Empty(t, snap.ProcessedByServer)
}

func TestStats_Throughput_SlidingWindowExpires(t *testing.T) {
	// GIVEN two completions inside a 10s window
	clock := clockwork.NewFakeClock()
	s := NewStats(clock, 10*time.Second, nil)
	completeRequest(s, "a", 1, clock.Now(), 0)
	completeRequest(s, "b", 1, clock.Now(), 0)
	assert.InDelta(t, 0.2, s.Snapshot().Throughput, 1e-9)

	// WHEN the window passes with one more completion
	clock.Advance(11 * time.Second)
	completeRequest(s, "c", 1, clock.Now(), 0)

	// THEN only the recent completion counts, while totals keep growing
	snap := s.Snapshot()
	assert.InDelta(t, 0.1, snap.Throughput, 1e-9)
	assert.Equal(t, 3, snap.ProcessedRequests)
	assert.Len(t, s.completions, 1)
}

func TestStats_ReservoirBounded(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewStats(clock, time.Second, nil)
	for i := 0; i < waitReservoirSize+50; i++ {
		s.Observe(sim.RequestProcessed{At: clock.Now(), ServerID: 1, ArrivalTime: clock.Now()})
	}
	assert.Len(t, s.recentWaits, waitReservoirSize)
	assert.Equal(t, 50, s.nextWait)
}

func TestStats_PrometheusCollectors(t *testing.T) {
	// GIVEN stats registered on a private registry
	reg := prometheus.NewRegistry()
	clock := clockwork.NewFakeClock()
	s := NewStats(clock, 10*time.Second, reg)

	// WHEN one request completes and one congestion notice arrives
	completeRequest(s, "a", 1, clock.Now(), 1000)
	s.Observe(sim.ErrorEncountered{At: clock.Now()})

	// THEN the collectors reflect it
	assert.Equal(t, 1.0, testutil.ToFloat64(s.collectors.created))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.collectors.processed))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.collectors.errors))
	assert.InDelta(t, 0.1, testutil.ToFloat64(s.collectors.throughput), 1e-9)

	n, err := testutil.GatherAndCount(reg, "reqsim_request_wait_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStats_Run_StopsWhenFeedCloses(t *testing.T) {
	s := NewStats(clockwork.NewFakeClock(), time.Second, nil)
	feed := make(chan sim.Event, 2)
	feed <- sim.RequestCreated{Request: sim.Request{ID: "a"}}
	close(feed)
	require.NoError(t, s.Run(context.Background(), feed))
	assert.Equal(t, 1, s.Snapshot().TotalRequests)
}

func TestStatsSnapshot_Print(t *testing.T) {
	snap := StatsSnapshot{
		TotalRequests:     4,
		ProcessedRequests: 2,
		ProcessedByServer: map[int]int{2: 1, 1: 1},
		Throughput:        0.5,
		AvgWait:           120,
	}
	var buf bytes.Buffer
	snap.Print(&buf)
	out := buf.String()
	assert.Contains(t, out, "=== Simulation Metrics ===")
	assert.Contains(t, out, "Total Requests       : 4")
	assert.Contains(t, out, "Average Wait         : 120.0 ms")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("Server 1")), bytes.Index(buf.Bytes(), []byte("Server 2")))
}

func TestStats_QueueDelay_FromStartedEventAlone(t *testing.T) {
	// GIVEN a start whose creation was never observed
	clock := clockwork.NewFakeClock()
	s := NewStats(clock, time.Second, nil)
	arrival := clock.Now()

	// WHEN only the start event arrives
	s.Observe(sim.RequestProcessStarted{At: arrival.Add(250 * time.Millisecond), ServerID: 1, RequestID: "lost", ArrivalTime: arrival})

	// THEN the queue delay still comes from the event payload
	snap := s.Snapshot()
	assert.InDelta(t, 250.0, snap.AvgQueueDelay, 1e-9)
	assert.Equal(t, 0, snap.TotalRequests)
}
