// Package cluster runs the request-allocation pipeline as a set of actors
// that only communicate through routed events:
//
//	Generator -> Router -> {Allocator, observers}
//	Allocator -> Router -> {Generator, Pool, observers}
//	Pool      -> Router -> {Allocator, Pool, observers}
//
// Each actor ticks on its own clock-driven interval, drains its inbox before
// acting, and keeps a private mirror of whatever it needs to know about the
// others. There are no locks on cross-actor state.
package cluster

import (
	"context"
	"fmt"

	"github.com/inference-sim/reqsim/sim"
	"github.com/inference-sim/reqsim/sim/trace"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// statsFeedBuffer sizes the Stats subscription; Stats drops like any observer.
const statsFeedBuffer = 4096

// Cluster wires the router and actors of one simulation run.
type Cluster struct {
	config DeploymentConfig
	clock  clockwork.Clock

	router    *Router
	generator *Generator
	allocator *Allocator
	pool      *Pool
	stats     *Stats
	statsFeed <-chan sim.Event
	trace     *trace.SimulationTrace

	hasRun bool
}

// NewCluster validates config and builds the actors. Nothing runs until Run.
func NewCluster(config DeploymentConfig) (*Cluster, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid deployment config: %w", err)
	}
	clock := config.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(config.Seed))

	var st *trace.SimulationTrace
	if config.Trace.Enabled() {
		st = trace.NewSimulationTrace(config.Trace)
	}

	router := NewRouter(config.InboxBuffer)
	c := &Cluster{
		config:    config,
		clock:     clock,
		router:    router,
		generator: NewGenerator(config.ClusterConfig, clock, rng.ForSubsystem(sim.SubsystemGenerator), router.Inbox()),
		allocator: NewAllocator(config.ClusterConfig, clock, rng.ForSubsystem(sim.SubsystemAllocator), st, router.Inbox()),
		pool:      NewPool(config.ClusterConfig, clock, router.Inbox()),
		stats:     NewStats(clock, config.ThroughputWindow, config.Registerer),
		trace:     st,
	}
	router.Connect(ToGenerator, c.generator.Inbox())
	router.Connect(ToAllocator, c.allocator.Inbox())
	router.Connect(ToPool, c.pool.Inbox())
	c.statsFeed = router.Subscribe(statsFeedBuffer)
	return c, nil
}

// Subscribe returns a bounded, at-most-once feed of every observer-routed
// event. Call before Run; the channel is closed when Run returns.
func (c *Cluster) Subscribe(buffer int) <-chan sim.Event {
	return c.router.Subscribe(buffer)
}

// SubmitConfig is the admission point for out-of-band configuration changes.
// The change is validated here and then fanned out by the router.
func (c *Cluster) SubmitConfig(ctx context.Context, change sim.ConfigChange) error {
	if !change.HasArrivalRate && change.Policy == "" {
		return fmt.Errorf("config change sets nothing")
	}
	if change.HasArrivalRate && change.ArrivalRate < 0 {
		return fmt.Errorf("arrival rate must be non-negative, got %f", change.ArrivalRate)
	}
	if change.Policy != "" && !sim.IsValidPlacementPolicy(change.Policy) {
		return fmt.Errorf("unknown placement policy %q", change.Policy)
	}
	if !emit(ctx, c.router.Inbox(), sim.ConfigChanged{At: c.clock.Now(), Change: change}) {
		return ctx.Err()
	}
	return nil
}

// Run starts every actor and blocks until ctx is cancelled. In-flight
// processing jobs are abandoned. Panics if called more than once.
func (c *Cluster) Run(ctx context.Context) error {
	if c.hasRun {
		panic("Cluster.Run() called more than once")
	}
	c.hasRun = true

	logrus.Infof("Starting cluster: %d servers, capacity=%d, rate=%.2f req/s, policy=%s, admission limit=%d, seed=%d",
		sim.ServerCount, c.config.ServerCapacity, c.config.ArrivalRate, c.allocator.Policy().Name(),
		c.config.AdmissionLimit, c.config.Seed)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.router.Run(gctx) })
	g.Go(func() error { return c.generator.Run(gctx) })
	g.Go(func() error { return c.allocator.Run(gctx) })
	g.Go(func() error { return c.pool.Run(gctx) })
	g.Go(func() error { return c.stats.Run(gctx, c.statsFeed) })
	err := g.Wait()

	logrus.Infof("Cluster stopped (%d router drops)", c.router.Dropped())
	return err
}

// Stats returns the current aggregated statistics.
func (c *Cluster) Stats() StatsSnapshot {
	return c.stats.Snapshot()
}

// Trace returns the decision trace, or nil when tracing is off.
// Read it only after Run has returned.
func (c *Cluster) Trace() *trace.SimulationTrace {
	return c.trace
}

// Servers returns the pool's authoritative server state.
// Only valid after Run has returned.
func (c *Cluster) Servers() []sim.ServerSnapshot {
	return c.pool.Snapshot()
}

// Dropped returns the number of router deliveries lost so far.
func (c *Cluster) Dropped() int64 {
	return c.router.Dropped()
}
