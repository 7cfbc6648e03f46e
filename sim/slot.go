// Implements the ServerSlot, the per-server FIFO queue with incremental workload accounting.

package sim

import (
	"errors"
	"fmt"
	"strings"
)

// ServerCount is the fixed number of servers in the simulated cluster.
const ServerCount = 3

// ErrSlotFull is returned by Enqueue when the queue is at capacity.
var ErrSlotFull = errors.New("server queue is full")

// ServerSlot is one server's bounded FIFO of requests plus its running workload.
//
// Thread-safety: NOT thread-safe. Each slot is owned by exactly one goroutine.
type ServerSlot struct {
	ID       int  // Stable server id, 1..ServerCount
	Capacity int  // Max queued requests
	Busy     bool // A processing job is in flight for this server

	queue         []Request
	totalWorkload int64 // Σ ServiceTimeMs of queued requests
}

// NewServerSlot creates an empty slot. Panics if capacity < 1.
func NewServerSlot(id, capacity int) *ServerSlot {
	if capacity < 1 {
		panic(fmt.Sprintf("NewServerSlot: capacity must be >= 1, got %d", capacity))
	}
	return &ServerSlot{
		ID:       id,
		Capacity: capacity,
		queue:    make([]Request, 0, capacity),
	}
}

// Enqueue adds a request to the back of the queue.
func (s *ServerSlot) Enqueue(r Request) error {
	if len(s.queue) >= s.Capacity {
		return ErrSlotFull
	}
	s.queue = append(s.queue, r)
	s.totalWorkload += r.ServiceTimeMs()
	return nil
}

// Dequeue removes and returns the request at the front of the queue.
func (s *ServerSlot) Dequeue() (Request, bool) {
	if len(s.queue) == 0 {
		return Request{}, false
	}
	r := s.queue[0]
	s.queue[0] = Request{}
	s.queue = s.queue[1:]
	s.totalWorkload = SaturatingSub(s.totalWorkload, r.ServiceTimeMs())
	return r, true
}

// Peek returns the request at the front of the queue without removing it.
func (s *ServerSlot) Peek() (Request, bool) {
	if len(s.queue) == 0 {
		return Request{}, false
	}
	return s.queue[0], true
}

// Len returns the number of queued requests.
func (s *ServerSlot) Len() int {
	return len(s.queue)
}

// Full reports whether the queue is at capacity.
func (s *ServerSlot) Full() bool {
	return len(s.queue) >= s.Capacity
}

// TotalWorkload returns the summed service time of queued requests, in milliseconds.
func (s *ServerSlot) TotalWorkload() int64 {
	return s.totalWorkload
}

// Items returns a copy of the queue contents, head first.
func (s *ServerSlot) Items() []Request {
	out := make([]Request, len(s.queue))
	copy(out, s.queue)
	return out
}

// Snapshot returns the read-only view handed to placement policies.
func (s *ServerSlot) Snapshot() ServerSnapshot {
	return ServerSnapshot{
		ID:            s.ID,
		QueueLen:      len(s.queue),
		Capacity:      s.Capacity,
		TotalWorkload: s.totalWorkload,
	}
}

func (s *ServerSlot) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Server %d [", s.ID)
	for i, r := range s.queue {
		sb.WriteString(r.ID)
		if i < len(s.queue)-1 {
			sb.WriteString(" ")
		}
	}
	fmt.Fprintf(&sb, "] workload=%dms busy=%v", s.totalWorkload, s.Busy)
	return sb.String()
}

// ServerSnapshot is a lightweight view of a server for placement decisions.
type ServerSnapshot struct {
	ID            int
	QueueLen      int
	Capacity      int
	TotalWorkload int64 // milliseconds
}

// HasCapacity reports whether one more request fits in the queue.
func (s ServerSnapshot) HasCapacity() bool {
	return s.QueueLen < s.Capacity
}

// SaturatingSub returns a-b, floored at zero.
func SaturatingSub(a, b int64) int64 {
	if b >= a {
		return 0
	}
	return a - b
}
