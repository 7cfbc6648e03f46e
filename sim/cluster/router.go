package cluster

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/inference-sim/reqsim/sim"
	"github.com/sirupsen/logrus"
)

// Destination is a bit set of the consumers an event is delivered to.
type Destination uint8

const (
	ToGenerator Destination = 1 << iota
	ToAllocator
	ToPool
	ToObservers // UI feeds and the Stats aggregator
)

// actorDestinations are the single-consumer destinations, in delivery order.
var actorDestinations = [...]Destination{ToGenerator, ToAllocator, ToPool}

func (d Destination) String() string {
	switch d {
	case ToGenerator:
		return "generator"
	case ToAllocator:
		return "allocator"
	case ToPool:
		return "pool"
	case ToObservers:
		return "observers"
	default:
		return "mixed"
	}
}

// routes is the static fan-out table. It never changes at runtime.
var routes = map[sim.EventKind]Destination{
	sim.EventRequestCreated:        ToAllocator | ToObservers,
	sim.EventRequestAssigned:       ToGenerator | ToPool | ToObservers,
	sim.EventRequestProcessStarted: ToObservers,
	sim.EventRequestProcessed:      ToAllocator | ToPool | ToObservers,
	sim.EventErrorEncountered:      ToObservers,
	sim.EventConfigChanged:         ToGenerator | ToAllocator | ToObservers,
}

// Routes returns the destinations for an event kind. Unknown kinds route nowhere.
func Routes(kind sim.EventKind) Destination {
	return routes[kind]
}

// Router is the single ingress point for domain events. It copies each event
// to the fixed set of consumers for its kind and never transforms it.
//
// Delivery is best-effort: a full or unconnected consumer drops the event,
// which is counted and logged but never blocks the router.
type Router struct {
	inbox   chan sim.Event
	outputs map[Destination]chan<- sim.Event

	mu        sync.Mutex
	observers []chan sim.Event
	closed    bool

	dropped atomic.Int64
}

// NewRouter creates a Router whose inbox buffers up to inboxSize events.
func NewRouter(inboxSize int) *Router {
	return &Router{
		inbox:   make(chan sim.Event, inboxSize),
		outputs: make(map[Destination]chan<- sim.Event),
	}
}

// Inbox returns the channel every producer sends to.
func (r *Router) Inbox() chan<- sim.Event {
	return r.inbox
}

// Connect attaches a single consumer. Must be called before Run.
func (r *Router) Connect(dest Destination, ch chan<- sim.Event) {
	r.outputs[dest] = ch
}

// Subscribe registers an observer feed with the given buffer size.
// The channel is closed when Run returns; subscribing after that returns a
// closed channel.
func (r *Router) Subscribe(buffer int) <-chan sim.Event {
	ch := make(chan sim.Event, buffer)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		close(ch)
		return ch
	}
	r.observers = append(r.observers, ch)
	return ch
}

// Dropped returns the number of deliveries lost to full or missing consumers.
func (r *Router) Dropped() int64 {
	return r.dropped.Load()
}

// Run forwards events until ctx is cancelled.
func (r *Router) Run(ctx context.Context) error {
	defer r.closeObservers()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-r.inbox:
			r.route(ev)
		}
	}
}

func (r *Router) route(ev sim.Event) {
	dest := Routes(ev.Kind())
	if dest == 0 {
		logrus.Warnf("router: no route for %s, dropping", ev.Kind())
		r.dropped.Add(1)
		return
	}
	for _, d := range actorDestinations {
		if dest&d == 0 {
			continue
		}
		r.deliver(d, r.outputs[d], ev)
	}
	if dest&ToObservers != 0 {
		r.mu.Lock()
		for _, ch := range r.observers {
			r.deliver(ToObservers, ch, ev)
		}
		r.mu.Unlock()
	}
}

func (r *Router) deliver(d Destination, ch chan<- sim.Event, ev sim.Event) {
	if ch == nil {
		r.dropped.Add(1)
		logrus.Warnf("router: no %s connected, dropped %s", d, ev.Kind())
		return
	}
	select {
	case ch <- ev:
	default:
		r.dropped.Add(1)
		if d == ToObservers {
			logrus.Debugf("router: %s feed full, dropped %s", d, ev.Kind())
			return
		}
		// actors never see a dropped event again, so their mirrors stay stale
		logrus.Warnf("router: %s inbox full, dropped %s", d, ev.Kind())
	}
}

func (r *Router) closeObservers() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.observers {
		close(ch)
	}
	r.observers = nil
	r.closed = true
}

// emit hands ev to the router inbox, giving up when ctx is done.
// Producers block here rather than drop, since the router always drains.
func emit(ctx context.Context, out chan<- sim.Event, ev sim.Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
