package cluster

import (
	"context"
	"sync"
	"time"

	"github.com/inference-sim/reqsim/sim"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// Pool owns the authoritative server slots and runs at most one processing
// job per server at a time.
//
// Thread-safety: slots, including their Busy flags, are touched only by the
// Run goroutine. Processing jobs read nothing but immutable fields.
type Pool struct {
	clock clockwork.Clock
	tick  time.Duration
	scale float64 // service delay multiplier

	servers []*sim.ServerSlot

	inbox chan sim.Event
	out   chan<- sim.Event
	jobs  sync.WaitGroup
}

// NewPool creates sim.ServerCount empty servers with ids 1..N.
func NewPool(cfg sim.ClusterConfig, clock clockwork.Clock, out chan<- sim.Event) *Pool {
	servers := make([]*sim.ServerSlot, sim.ServerCount)
	for i := range servers {
		servers[i] = sim.NewServerSlot(i+1, cfg.ServerCapacity)
	}
	return &Pool{
		clock:   clock,
		tick:    cfg.PoolTick,
		scale:   cfg.ServiceTimeScale,
		servers: servers,
		inbox:   make(chan sim.Event, cfg.InboxBuffer),
		out:     out,
	}
}

// Inbox returns the channel the router delivers to.
func (p *Pool) Inbox() chan<- sim.Event {
	return p.inbox
}

// Snapshot returns the state of every server. Only meaningful from the Run
// goroutine or after Run has returned.
func (p *Pool) Snapshot() []sim.ServerSnapshot {
	out := make([]sim.ServerSnapshot, len(p.servers))
	for i, s := range p.servers {
		out[i] = s.Snapshot()
	}
	return out
}

// Run ticks until ctx is cancelled, then waits for abandoned jobs to return.
func (p *Pool) Run(ctx context.Context) error {
	defer p.jobs.Wait()
	ticker := p.clock.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			p.drain()
			p.step(ctx)
		}
	}
}

func (p *Pool) drain() {
	for {
		select {
		case ev := <-p.inbox:
			p.handle(ev)
		default:
			return
		}
	}
}

func (p *Pool) server(id int) *sim.ServerSlot {
	idx := id - 1
	if idx < 0 || idx >= len(p.servers) {
		return nil
	}
	return p.servers[idx]
}

func (p *Pool) handle(ev sim.Event) {
	switch e := ev.(type) {
	case sim.RequestAssigned:
		s := p.server(e.ServerID)
		if s == nil {
			logrus.Warnf("pool: assignment to unknown server %d, skipping", e.ServerID)
			return
		}
		if err := s.Enqueue(e.Request); err != nil {
			logrus.Warnf("pool: server %d: %v, dropping request #%s", s.ID, err, e.Request.ID)
		}
	case sim.RequestProcessed:
		s := p.server(e.ServerID)
		if s == nil {
			logrus.Warnf("pool: processed event for unknown server %d, skipping", e.ServerID)
			return
		}
		s.Busy = false
	}
}

// step starts a job on every idle server with queued work and returns how
// many were started.
func (p *Pool) step(ctx context.Context) int {
	started := 0
	for _, s := range p.servers {
		if s.Busy {
			continue
		}
		req, ok := s.Dequeue()
		if !ok {
			continue
		}
		s.Busy = true
		started++
		p.jobs.Add(1)
		go p.process(ctx, s.ID, req)
	}
	return started
}

func (p *Pool) serviceDelay(req sim.Request) time.Duration {
	return time.Duration(float64(req.ServiceTime()) * p.scale)
}

// process is one processing job. It is abandoned, not drained, on cancel.
func (p *Pool) process(ctx context.Context, serverID int, req sim.Request) {
	defer p.jobs.Done()
	delay := p.serviceDelay(req)
	if !emit(ctx, p.out, sim.RequestProcessStarted{
		At:          p.clock.Now(),
		ServerID:    serverID,
		RequestID:   req.ID,
		ArrivalTime: req.ArrivalTime,
		ServiceTime: req.ServiceTime(),
	}) {
		return
	}
	select {
	case <-ctx.Done():
		logrus.Debugf("pool: server %d abandoned request #%s", serverID, req.ID)
		return
	case <-p.clock.After(delay):
	}
	emit(ctx, p.out, sim.RequestProcessed{
		At:          p.clock.Now(),
		ServerID:    serverID,
		RequestID:   req.ID,
		ArrivalTime: req.ArrivalTime,
		ServiceTime: req.ServiceTime(),
	})
}
