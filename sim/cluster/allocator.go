package cluster

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/inference-sim/reqsim/sim"
	"github.com/inference-sim/reqsim/sim/trace"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// serverMirror is the allocator's eventually-consistent view of one server.
// queued counts requests assigned and not yet seen as processed, so it
// includes the one in flight.
type serverMirror struct {
	id       int
	capacity int
	queued   int
	workload int64 // milliseconds
}

func (m serverMirror) snapshot() sim.ServerSnapshot {
	return sim.ServerSnapshot{ID: m.id, QueueLen: m.queued, Capacity: m.capacity, TotalWorkload: m.workload}
}

// Allocator places pending requests on servers using the active placement policy.
//
// Thread-safety: NOT thread-safe. All state, including the policy value and
// its cursor, is owned by the Run goroutine.
type Allocator struct {
	clock clockwork.Clock
	rng   *rand.Rand
	tick  time.Duration

	errorEvery  int
	backoffStep time.Duration
	maxBackoff  time.Duration

	policy   sim.PlacementPolicy
	pending  []sim.Request
	mirror   []serverMirror
	failures int // consecutive failed placement attempts

	trace *trace.SimulationTrace // nil when tracing is off

	inbox chan sim.Event
	out   chan<- sim.Event
}

// NewAllocator creates an Allocator for sim.ServerCount servers.
// st may be nil.
func NewAllocator(cfg sim.ClusterConfig, clock clockwork.Clock, rng *rand.Rand, st *trace.SimulationTrace, out chan<- sim.Event) *Allocator {
	mirror := make([]serverMirror, sim.ServerCount)
	for i := range mirror {
		mirror[i] = serverMirror{id: i + 1, capacity: cfg.ServerCapacity}
	}
	return &Allocator{
		clock:       clock,
		rng:         rng,
		tick:        cfg.AllocatorTick,
		errorEvery:  cfg.ErrorEvery,
		backoffStep: cfg.BackoffStep,
		maxBackoff:  cfg.MaxBackoff,
		policy:      sim.NewPlacementPolicy(cfg.PlacementPolicy, rng),
		mirror:      mirror,
		trace:       st,
		inbox:       make(chan sim.Event, cfg.InboxBuffer),
		out:         out,
	}
}

// Inbox returns the channel the router delivers to.
func (a *Allocator) Inbox() chan<- sim.Event {
	return a.inbox
}

// Policy returns the active placement policy.
func (a *Allocator) Policy() sim.PlacementPolicy {
	return a.policy
}

// Pending returns the number of requests waiting for placement.
func (a *Allocator) Pending() int {
	return len(a.pending)
}

// Mirror returns the allocator's current view of every server.
func (a *Allocator) Mirror() []sim.ServerSnapshot {
	out := make([]sim.ServerSnapshot, len(a.mirror))
	for i, m := range a.mirror {
		out[i] = m.snapshot()
	}
	return out
}

// Run ticks until ctx is cancelled, sleeping the returned backoff after
// every failed placement.
func (a *Allocator) Run(ctx context.Context) error {
	ticker := a.clock.NewTicker(a.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			a.drain()
			backoff := a.step(ctx)
			if backoff <= 0 {
				continue
			}
			select {
			case <-ctx.Done():
				return nil
			case <-a.clock.After(backoff):
			}
		}
	}
}

func (a *Allocator) drain() {
	for {
		select {
		case ev := <-a.inbox:
			a.handle(ev)
		default:
			return
		}
	}
}

func (a *Allocator) handle(ev sim.Event) {
	switch e := ev.(type) {
	case sim.RequestCreated:
		a.pending = append(a.pending, e.Request)
	case sim.RequestProcessed:
		idx := e.ServerID - 1
		if idx < 0 || idx >= len(a.mirror) {
			logrus.Warnf("allocator: processed event for unknown server %d, skipping", e.ServerID)
			return
		}
		m := &a.mirror[idx]
		if m.queued > 0 {
			m.queued--
		}
		m.workload = sim.SaturatingSub(m.workload, e.ServiceTime.Milliseconds())
	case sim.ConfigChanged:
		name := e.Change.Policy
		if name == "" {
			return
		}
		if !sim.IsValidPlacementPolicy(name) {
			logrus.Warnf("allocator: ignoring unknown placement policy %q", name)
			return
		}
		old := a.policy.Name()
		a.policy = sim.NewPlacementPolicy(name, a.rng)
		logrus.Infof("allocator: placement policy %s -> %s", old, a.policy.Name())
	}
}

// backoff grows linearly with the consecutive-failure count, capped at maxBackoff.
func (a *Allocator) backoff() time.Duration {
	d := time.Duration(a.failures) * a.backoffStep
	if d > a.maxBackoff {
		return a.maxBackoff
	}
	return d
}

// step tries to place the head of the pending FIFO. It returns the backoff
// to wait before the next attempt, zero on success or when idle.
func (a *Allocator) step(ctx context.Context) time.Duration {
	if len(a.pending) == 0 {
		return 0
	}
	head := a.pending[0]
	snapshots := a.Mirror()
	order := a.policy.Choose(snapshots)
	for _, idx := range order {
		if idx < 0 || idx >= len(snapshots) || !snapshots[idx].HasCapacity() {
			continue
		}
		a.place(ctx, head, idx, order)
		return 0
	}

	a.failures++
	backoff := a.backoff()
	if a.failures%a.errorEvery == 0 {
		msg := fmt.Sprintf("all %d servers are full, request #%s waiting (%d consecutive failed attempts)",
			len(a.mirror), head.ID, a.failures)
		logrus.Warnf("allocator: %s", msg)
		if a.trace != nil {
			a.trace.RecordCongestion(trace.CongestionRecord{
				RequestID:           head.ID,
				Clock:               a.clock.Now(),
				ConsecutiveFailures: a.failures,
				Backoff:             backoff,
			})
		}
		emit(ctx, a.out, sim.ErrorEncountered{At: a.clock.Now(), Message: msg, ConsecutiveFailures: a.failures})
	}
	return backoff
}

func (a *Allocator) place(ctx context.Context, req sim.Request, idx int, order []int) {
	m := &a.mirror[idx]
	m.queued++
	m.workload += req.ServiceTimeMs()
	a.pending[0] = sim.Request{}
	a.pending = a.pending[1:]

	attempts := a.failures
	a.failures = 0
	if a.trace != nil {
		a.trace.RecordAssignment(trace.AssignmentRecord{
			RequestID:  req.ID,
			Clock:      a.clock.Now(),
			ServerID:   m.id,
			Policy:     a.policy.Name(),
			Preference: order,
			Attempts:   attempts,
		})
	}
	logrus.Debugf("allocator: request #%s -> server %d (%s)", req.ID, m.id, a.policy.Name())
	emit(ctx, a.out, sim.RequestAssigned{At: a.clock.Now(), ServerID: m.id, Request: req})
}
