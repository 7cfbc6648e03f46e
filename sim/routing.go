package sim

import (
	"fmt"
	"math/rand"
	"sort"
)

// PlacementPolicy decides the order in which servers are tried for a pending request.
// Implementations may keep state across calls (e.g. a round-robin cursor);
// that state belongs to the allocator that owns the policy value.
type PlacementPolicy interface {
	// Choose returns an ordered preference list of indices into servers.
	Choose(servers []ServerSnapshot) []int
	Name() string
}

const (
	PolicyRandom           = "random"
	PolicyRoundRobin       = "round-robin"
	PolicySmallestWorkload = "smallest-workload"
)

// validPlacementPolicies is shared by IsValidPlacementPolicy and NewPlacementPolicy.
var validPlacementPolicies = map[string]bool{
	"":                     true,
	PolicyRandom:           true,
	PolicyRoundRobin:       true,
	PolicySmallestWorkload: true,
}

// IsValidPlacementPolicy returns true if name is a recognized policy (empty = default).
func IsValidPlacementPolicy(name string) bool {
	return validPlacementPolicies[name]
}

// ValidPlacementPolicies returns the recognized policy names, sorted.
func ValidPlacementPolicies() []string {
	names := make([]string, 0, len(validPlacementPolicies))
	for name := range validPlacementPolicies {
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Random returns an independent uniform permutation on every call.
type Random struct {
	rng *rand.Rand
}

// Choose implements PlacementPolicy for Random.
func (p *Random) Choose(servers []ServerSnapshot) []int {
	return p.rng.Perm(len(servers))
}

func (p *Random) Name() string { return PolicyRandom }

// RoundRobin starts each preference list at a cursor that advances by one per call.
type RoundRobin struct {
	cursor int
}

// Choose implements PlacementPolicy for RoundRobin.
func (p *RoundRobin) Choose(servers []ServerSnapshot) []int {
	n := len(servers)
	if n == 0 {
		return nil
	}
	start := p.cursor % n
	p.cursor = (start + 1) % n
	order := make([]int, n)
	for i := range order {
		order[i] = (start + i) % n
	}
	return order
}

func (p *RoundRobin) Name() string { return PolicyRoundRobin }

// SmallestWorkload orders servers by ascending TotalWorkload.
// Ties are broken by original index order.
type SmallestWorkload struct{}

// Choose implements PlacementPolicy for SmallestWorkload.
func (p *SmallestWorkload) Choose(servers []ServerSnapshot) []int {
	order := make([]int, len(servers))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return servers[order[a]].TotalWorkload < servers[order[b]].TotalWorkload
	})
	return order
}

func (p *SmallestWorkload) Name() string { return PolicySmallestWorkload }

// NewPlacementPolicy creates a fresh policy by name; no state carries over
// from any previous instance. Empty string defaults to random.
// rng is only used by the random policy.
// Panics on unrecognized names.
func NewPlacementPolicy(name string, rng *rand.Rand) PlacementPolicy {
	if !IsValidPlacementPolicy(name) {
		panic(fmt.Sprintf("unknown placement policy %q", name))
	}
	switch name {
	case "", PolicyRandom:
		if rng == nil {
			panic("NewPlacementPolicy: random policy requires an rng")
		}
		return &Random{rng: rng}
	case PolicyRoundRobin:
		return &RoundRobin{}
	case PolicySmallestWorkload:
		return &SmallestWorkload{}
	default:
		panic(fmt.Sprintf("unhandled placement policy %q", name))
	}
}
