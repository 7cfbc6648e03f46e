// Defines the Request value that models a unit of synthetic work in the simulation.
// The service time of a request is derived from its kind and size, never stored.

package sim

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Kind describes which resource dominates a request's synthetic cost.
type Kind int

const (
	CPUBound Kind = iota
	IOBound
	Mixed
)

// Kinds lists every request kind, in declaration order.
var Kinds = [...]Kind{CPUBound, IOBound, Mixed}

func (k Kind) String() string {
	switch k {
	case CPUBound:
		return "CPU-bound"
	case IOBound:
		return "IO-bound"
	case Mixed:
		return "Mixed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// baseCosts returns the (cpu, io) cost of a kind in milliseconds.
func (k Kind) baseCosts() (cpu, io int64) {
	switch k {
	case CPUBound:
		return 95, 5
	case IOBound:
		return 30, 70
	case Mixed:
		return 55, 45
	default:
		return 0, 0
	}
}

// Size scales the base cost of a request.
type Size int

const (
	Small Size = iota
	Medium
	Large
)

// Sizes lists every request size, in declaration order.
var Sizes = [...]Size{Small, Medium, Large}

func (s Size) String() string {
	switch s {
	case Small:
		return "Small"
	case Medium:
		return "Medium"
	case Large:
		return "Large"
	default:
		return fmt.Sprintf("Size(%d)", int(s))
	}
}

func (s Size) multiplier() int64 {
	switch s {
	case Small:
		return 5
	case Medium:
		return 10
	case Large:
		return 50
	default:
		return 0
	}
}

// Request is immutable once created. It moves between owners by value:
// generator -> allocator FIFO -> one server queue -> processed and dropped.
type Request struct {
	ID          string    // Unique within a run
	Kind        Kind      // CPU-bound, IO-bound or Mixed
	Size        Size      // Small, Medium or Large
	ArrivalTime time.Time // When the generator created the request
}

// ServiceTimeMs returns (cpu + io) × size multiplier, in milliseconds.
func (r Request) ServiceTimeMs() int64 {
	cpu, io := r.Kind.baseCosts()
	return (cpu + io) * r.Size.multiplier()
}

// ServiceTime returns ServiceTimeMs as a time.Duration.
func (r Request) ServiceTime() time.Duration {
	return time.Duration(r.ServiceTimeMs()) * time.Millisecond
}

// Name returns a short human-readable label such as "Small CPU-bound".
func (r Request) Name() string {
	return fmt.Sprintf("%s %s", r.Size, r.Kind)
}

// This method returns a human-readable string representation of a Request.
func (r Request) String() string {
	return fmt.Sprintf("Request: (ID: %s, Kind: %s, Size: %s, ServiceTime: %dms)", r.ID, r.Kind, r.Size, r.ServiceTimeMs())
}

// NewRandomRequest draws a uniform kind and size from rng and a UUID whose
// bytes also come from rng, so a seeded run produces the same IDs.
func NewRandomRequest(rng *rand.Rand, now time.Time) (Request, error) {
	id, err := uuid.NewRandomFromReader(rng)
	if err != nil {
		return Request{}, fmt.Errorf("generating request id: %w", err)
	}
	return Request{
		ID:          id.String(),
		Kind:        Kinds[rng.Intn(len(Kinds))],
		Size:        Sizes[rng.Intn(len(Sizes))],
		ArrivalTime: now,
	}, nil
}
