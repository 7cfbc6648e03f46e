package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/inference-sim/reqsim/sim"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(cfg sim.ClusterConfig) (*Pool, clockwork.FakeClock, chan sim.Event) {
	clock := clockwork.NewFakeClock()
	out := make(chan sim.Event, 64)
	return NewPool(cfg, clock, out), clock, out
}

func TestPool_AtMostOneJobPerServer(t *testing.T) {
	// GIVEN two requests queued on server 1
	p, clock, out := newTestPool(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.handle(sim.RequestAssigned{ServerID: 1, Request: testRequest("a", sim.CPUBound, sim.Small)})
	p.handle(sim.RequestAssigned{ServerID: 1, Request: testRequest("b", sim.CPUBound, sim.Small)})

	// WHEN the pool ticks twice
	assert.Equal(t, 1, p.step(ctx))
	assert.Equal(t, 0, p.step(ctx))

	// THEN only the head started and the second waits in the queue
	started := receive(t, out, time.Second).(sim.RequestProcessStarted)
	assert.Equal(t, 1, started.ServerID)
	assert.Equal(t, "a", started.RequestID)
	assert.Equal(t, 500*time.Millisecond, started.ServiceTime)
	assert.Equal(t, time.Unix(0, 0), started.ArrivalTime)
	assert.Equal(t, 1, p.Snapshot()[0].QueueLen)

	// WHEN the service time elapses
	clock.BlockUntil(1)
	clock.Advance(500 * time.Millisecond)
	processed := receive(t, out, time.Second).(sim.RequestProcessed)
	assert.Equal(t, "a", processed.RequestID)
	assert.Equal(t, 1, processed.ServerID)

	// THEN the server stays busy until the completion is routed back
	assert.Equal(t, 0, p.step(ctx))
	p.handle(processed)
	assert.Equal(t, 1, p.step(ctx))
	next := receive(t, out, time.Second).(sim.RequestProcessStarted)
	assert.Equal(t, "b", next.RequestID)
}

func TestPool_ServersRunInParallel(t *testing.T) {
	p, _, out := newTestPool(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for id := 1; id <= sim.ServerCount; id++ {
		p.handle(sim.RequestAssigned{ServerID: id, Request: testRequest("r", sim.Mixed, sim.Large)})
	}
	assert.Equal(t, sim.ServerCount, p.step(ctx))

	seen := make(map[int]bool)
	for i := 0; i < sim.ServerCount; i++ {
		seen[receive(t, out, time.Second).(sim.RequestProcessStarted).ServerID] = true
	}
	assert.Len(t, seen, sim.ServerCount)
}

func TestPool_EnqueueDequeueRoundTrip_RestoresState(t *testing.T) {
	p, clock, out := newTestPool(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	before := p.Snapshot()

	p.handle(sim.RequestAssigned{ServerID: 2, Request: testRequest("a", sim.IOBound, sim.Medium)})
	assert.Equal(t, int64(1000), p.Snapshot()[1].TotalWorkload)
	p.step(ctx)
	receive(t, out, time.Second)
	clock.BlockUntil(1)
	clock.Advance(time.Second)
	p.handle(receive(t, out, time.Second))

	assert.Equal(t, before, p.Snapshot())
}

func TestPool_UnknownServer_NoChange(t *testing.T) {
	p, _, _ := newTestPool(testConfig())
	before := p.Snapshot()
	p.handle(sim.RequestAssigned{ServerID: 0, Request: testRequest("a", sim.CPUBound, sim.Small)})
	p.handle(sim.RequestAssigned{ServerID: 9, Request: testRequest("b", sim.CPUBound, sim.Small)})
	p.handle(sim.RequestProcessed{ServerID: 9})
	assert.Equal(t, before, p.Snapshot())
}

func TestPool_FullServer_DropsAssignment(t *testing.T) {
	cfg := testConfig()
	cfg.ServerCapacity = 1
	p, _, _ := newTestPool(cfg)
	p.handle(sim.RequestAssigned{ServerID: 1, Request: testRequest("a", sim.CPUBound, sim.Small)})
	p.handle(sim.RequestAssigned{ServerID: 1, Request: testRequest("b", sim.CPUBound, sim.Large)})
	snap := p.Snapshot()[0]
	assert.Equal(t, 1, snap.QueueLen)
	assert.Equal(t, int64(500), snap.TotalWorkload)
}

func TestPool_ServiceTimeScale(t *testing.T) {
	cfg := testConfig()
	cfg.ServiceTimeScale = 0.01
	p, _, _ := newTestPool(cfg)
	assert.Equal(t, 50*time.Millisecond, p.serviceDelay(testRequest("a", sim.Mixed, sim.Large)))
}

func TestPool_Cancel_AbandonsInFlightJob(t *testing.T) {
	// GIVEN a job waiting on its service time
	p, clock, out := newTestPool(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	p.handle(sim.RequestAssigned{ServerID: 1, Request: testRequest("a", sim.CPUBound, sim.Large)})
	require.Equal(t, 1, p.step(ctx))
	receive(t, out, time.Second)
	clock.BlockUntil(1)

	// WHEN the context is cancelled
	cancel()
	p.jobs.Wait()

	// THEN no completion is reported
	assert.Empty(t, collect(out))
}

func TestPool_Run_ProcessesOnTick(t *testing.T) {
	cfg := testConfig()
	p, clock, out := newTestPool(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	clock.BlockUntil(1)

	p.Inbox() <- sim.RequestAssigned{ServerID: 3, Request: testRequest("z", sim.CPUBound, sim.Small)}
	clock.Advance(cfg.PoolTick)

	started := receive(t, out, time.Second).(sim.RequestProcessStarted)
	assert.Equal(t, 3, started.ServerID)

	cancel()
	require.NoError(t, <-done)
}
