package cluster

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/inference-sim/reqsim/sim"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "reqsim"

	// waitReservoirSize bounds the samples kept for wait percentiles.
	waitReservoirSize = 1000
)

// StatsSnapshot is a read-only copy of the aggregated statistics.
// Times are in milliseconds.
type StatsSnapshot struct {
	TotalRequests     int
	AssignedRequests  int
	ProcessedRequests int
	Errors            int
	ConfigChanges     int
	ProcessedByServer map[int]int

	Throughput    float64 // completions per second over the window
	AvgWait       float64 // completion - arrival
	AvgQueueDelay float64 // start - arrival
	P50Wait       float64
	P99Wait       float64
}

// Print writes the snapshot in the simulator's report format.
func (s StatsSnapshot) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Simulation Metrics ===")
	fmt.Fprintf(w, "Total Requests       : %d\n", s.TotalRequests)
	fmt.Fprintf(w, "Assigned Requests    : %d\n", s.AssignedRequests)
	fmt.Fprintf(w, "Processed Requests   : %d\n", s.ProcessedRequests)
	fmt.Fprintf(w, "Congestion Notices   : %d\n", s.Errors)
	fmt.Fprintf(w, "Throughput           : %.2f req/s\n", s.Throughput)
	if s.ProcessedRequests > 0 {
		fmt.Fprintf(w, "Average Wait         : %.1f ms\n", s.AvgWait)
		fmt.Fprintf(w, "Average Queue Delay  : %.1f ms\n", s.AvgQueueDelay)
		fmt.Fprintf(w, "P50 / P99 Wait       : %.1f / %.1f ms\n", s.P50Wait, s.P99Wait)
	}
	ids := make([]int, 0, len(s.ProcessedByServer))
	for id := range s.ProcessedByServer {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "Server %d Processed   : %d\n", id, s.ProcessedByServer[id])
	}
}

type statsCollectors struct {
	created    prometheus.Counter
	processed  prometheus.Counter
	errors     prometheus.Counter
	throughput prometheus.Gauge
	wait       prometheus.Histogram
}

// newStatsCollectors registers on reg; a nil reg yields unregistered collectors.
func newStatsCollectors(reg prometheus.Registerer) *statsCollectors {
	f := promauto.With(reg)
	return &statsCollectors{
		created: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_created_total",
			Help:      "Number of requests created by the generator.",
		}),
		processed: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_processed_total",
			Help:      "Number of requests whose processing completed.",
		}),
		errors: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "allocation_errors_total",
			Help:      "Number of congestion notices emitted by the allocator.",
		}),
		throughput: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "throughput_rps",
			Help:      "Completions per second over the sliding throughput window.",
		}),
		wait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "request_wait_seconds",
			Help:      "Time from request creation to processing completion.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 8),
		}),
	}
}

// Stats derives running counts and throughput from the routed event stream.
// It is the only writer of its accumulators; readers get copies via Snapshot.
type Stats struct {
	clock  clockwork.Clock
	window time.Duration

	mu                sync.RWMutex
	total             int
	assigned          int
	processed         int
	errors            int
	configChanges     int
	processedByServer map[int]int
	completions       []time.Time // within the throughput window, oldest first
	waitSumMs         float64
	queueDelaySumMs   float64
	queueDelayCount   int
	recentWaits       []float64 // ring buffer of the last waitReservoirSize waits
	nextWait          int

	collectors *statsCollectors
}

// NewStats creates an aggregator with the given throughput window.
// reg may be nil.
func NewStats(clock clockwork.Clock, window time.Duration, reg prometheus.Registerer) *Stats {
	return &Stats{
		clock:             clock,
		window:            window,
		processedByServer: make(map[int]int),
		recentWaits:       make([]float64, 0, waitReservoirSize),
		collectors:        newStatsCollectors(reg),
	}
}

// Run consumes feed until ctx is cancelled or feed is closed.
func (s *Stats) Run(ctx context.Context, feed <-chan sim.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-feed:
			if !ok {
				return nil
			}
			s.Observe(ev)
		}
	}
}

// Observe folds one event into the statistics.
func (s *Stats) Observe(ev sim.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e := ev.(type) {
	case sim.RequestCreated:
		s.total++
		s.collectors.created.Inc()
	case sim.RequestAssigned:
		s.assigned++
	case sim.RequestProcessStarted:
		s.queueDelaySumMs += msBetween(e.ArrivalTime, e.At)
		s.queueDelayCount++
	case sim.RequestProcessed:
		s.processed++
		s.processedByServer[e.ServerID]++
		wait := msBetween(e.ArrivalTime, e.At)
		s.waitSumMs += wait
		s.recordWait(wait)
		s.completions = append(s.completions, e.At)
		s.collectors.processed.Inc()
		s.collectors.wait.Observe(wait / 1000)
	case sim.ErrorEncountered:
		s.errors++
		s.collectors.errors.Inc()
	case sim.ConfigChanged:
		s.configChanges++
	}
	s.expire(s.clock.Now())
	s.collectors.throughput.Set(s.throughputLocked(s.clock.Now()))
}

func (s *Stats) recordWait(ms float64) {
	if len(s.recentWaits) < waitReservoirSize {
		s.recentWaits = append(s.recentWaits, ms)
		return
	}
	s.recentWaits[s.nextWait] = ms
	s.nextWait = (s.nextWait + 1) % waitReservoirSize
}

// expire drops completions older than the window.
func (s *Stats) expire(now time.Time) {
	cutoff := now.Add(-s.window)
	i := 0
	for i < len(s.completions) && !s.completions[i].After(cutoff) {
		i++
	}
	if i > 0 {
		s.completions = append(s.completions[:0], s.completions[i:]...)
	}
}

func (s *Stats) throughputLocked(now time.Time) float64 {
	cutoff := now.Add(-s.window)
	n := 0
	for _, t := range s.completions {
		if t.After(cutoff) {
			n++
		}
	}
	return float64(n) / s.window.Seconds()
}

// Snapshot returns a copy of the current statistics. Safe for concurrent use.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := StatsSnapshot{
		TotalRequests:     s.total,
		AssignedRequests:  s.assigned,
		ProcessedRequests: s.processed,
		Errors:            s.errors,
		ConfigChanges:     s.configChanges,
		ProcessedByServer: make(map[int]int, len(s.processedByServer)),
		Throughput:        s.throughputLocked(s.clock.Now()),
		P50Wait:           sim.CalculatePercentile(s.recentWaits, 50),
		P99Wait:           sim.CalculatePercentile(s.recentWaits, 99),
	}
	for id, n := range s.processedByServer {
		snap.ProcessedByServer[id] = n
	}
	if s.processed > 0 {
		snap.AvgWait = s.waitSumMs / float64(s.processed)
	}
	if s.queueDelayCount > 0 {
		snap.AvgQueueDelay = s.queueDelaySumMs / float64(s.queueDelayCount)
	}
	return snap
}

func msBetween(from, to time.Time) float64 {
	d := to.Sub(from)
	if d < 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
