package cluster

import (
	"context"
	"math/rand"
	"time"

	"github.com/inference-sim/reqsim/sim"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// Generator creates requests at a probabilistic rate, holding back once
// AdmissionLimit requests are created but not yet assigned.
//
// Thread-safety: NOT thread-safe. All state is owned by the Run goroutine;
// other actors influence it only through Inbox.
type Generator struct {
	clock clockwork.Clock
	rng   *rand.Rand
	tick  time.Duration
	limit int

	rate     float64 // requests per second
	inFlight int     // created and not yet seen as assigned

	inbox chan sim.Event
	out   chan<- sim.Event
}

// NewGenerator creates a Generator that emits into out.
func NewGenerator(cfg sim.ClusterConfig, clock clockwork.Clock, rng *rand.Rand, out chan<- sim.Event) *Generator {
	return &Generator{
		clock: clock,
		rng:   rng,
		tick:  cfg.GeneratorTick,
		limit: cfg.AdmissionLimit,
		rate:  cfg.ArrivalRate,
		inbox: make(chan sim.Event, cfg.InboxBuffer),
		out:   out,
	}
}

// Inbox returns the channel the router delivers to.
func (g *Generator) Inbox() chan<- sim.Event {
	return g.inbox
}

// Rate returns the current arrival rate.
func (g *Generator) Rate() float64 {
	return g.rate
}

// InFlight returns the number of created requests not yet seen as assigned.
func (g *Generator) InFlight() int {
	return g.inFlight
}

// Run ticks until ctx is cancelled.
func (g *Generator) Run(ctx context.Context) error {
	ticker := g.clock.NewTicker(g.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			g.drain()
			g.step(ctx)
		}
	}
}

func (g *Generator) drain() {
	for {
		select {
		case ev := <-g.inbox:
			g.handle(ev)
		default:
			return
		}
	}
}

func (g *Generator) handle(ev sim.Event) {
	switch e := ev.(type) {
	case sim.RequestAssigned:
		if g.inFlight > 0 {
			g.inFlight--
		}
	case sim.ConfigChanged:
		if !e.Change.HasArrivalRate {
			return
		}
		if e.Change.ArrivalRate < 0 {
			logrus.Warnf("generator: ignoring negative arrival rate %f", e.Change.ArrivalRate)
			return
		}
		logrus.Infof("generator: arrival rate %.2f -> %.2f req/s", g.rate, e.Change.ArrivalRate)
		g.rate = e.Change.ArrivalRate
	}
}

// arrivalProbability scales the per-second rate to one tick window.
func (g *Generator) arrivalProbability() float64 {
	p := g.rate * g.tick.Seconds()
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// step runs one arrival trial and reports whether a request was emitted.
// The trial draw happens even at the admission limit so the RNG sequence
// does not depend on downstream timing.
func (g *Generator) step(ctx context.Context) bool {
	if g.rng.Float64() >= g.arrivalProbability() {
		return false
	}
	if g.inFlight >= g.limit {
		logrus.Debugf("generator: admission limit %d reached, skipping arrival", g.limit)
		return false
	}
	req, err := sim.NewRandomRequest(g.rng, g.clock.Now())
	if err != nil {
		logrus.Warnf("generator: %v", err)
		return false
	}
	if !emit(ctx, g.out, sim.RequestCreated{At: req.ArrivalTime, Request: req}) {
		return false
	}
	g.inFlight++
	logrus.Debugf("generator: request #%s arrived (%s, %dms)", req.ID, req.Name(), req.ServiceTimeMs())
	return true
}
