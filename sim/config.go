package sim

import (
	"fmt"
	"time"
)

// ClusterConfig groups every tunable of a simulation run.
// Durations are written in YAML as Go duration strings ("100ms").
type ClusterConfig struct {
	Seed            int64   `yaml:"seed"`
	ArrivalRate     float64 `yaml:"arrival_rate"`     // requests per second
	PlacementPolicy string  `yaml:"placement_policy"` // random, round-robin, smallest-workload
	AdmissionLimit  int     `yaml:"admission_limit"`  // max created-but-unassigned requests
	ServerCapacity  int     `yaml:"server_capacity"`  // max queued requests per server

	GeneratorTick time.Duration `yaml:"generator_tick"`
	AllocatorTick time.Duration `yaml:"allocator_tick"`
	PoolTick      time.Duration `yaml:"pool_tick"`

	ErrorEvery  int           `yaml:"error_every"`  // emit one congestion notice per N consecutive failures
	BackoffStep time.Duration `yaml:"backoff_step"` // backoff added per consecutive failure
	MaxBackoff  time.Duration `yaml:"max_backoff"`

	ThroughputWindow time.Duration `yaml:"throughput_window"`
	ServiceTimeScale float64       `yaml:"service_time_scale"` // multiplies every service delay
	InboxBuffer      int           `yaml:"inbox_buffer"`       // per-actor inbound channel size
}

// DefaultClusterConfig returns the configuration used when nothing is overridden.
func DefaultClusterConfig() ClusterConfig {
	return ClusterConfig{
		Seed:             42,
		ArrivalRate:      50,
		PlacementPolicy:  PolicyRandom,
		AdmissionLimit:   20,
		ServerCapacity:   10,
		GeneratorTick:    100 * time.Millisecond,
		AllocatorTick:    50 * time.Millisecond,
		PoolTick:         10 * time.Millisecond,
		ErrorEvery:       10,
		BackoffStep:      10 * time.Millisecond,
		MaxBackoff:       500 * time.Millisecond,
		ThroughputWindow: 10 * time.Second,
		ServiceTimeScale: 1.0,
		InboxBuffer:      1024,
	}
}

// Validate checks value ranges and the policy name.
func (c *ClusterConfig) Validate() error {
	if c.ArrivalRate < 0 {
		return fmt.Errorf("arrival_rate must be non-negative, got %f", c.ArrivalRate)
	}
	if !IsValidPlacementPolicy(c.PlacementPolicy) {
		return fmt.Errorf("unknown placement policy %q", c.PlacementPolicy)
	}
	if c.AdmissionLimit < 1 {
		return fmt.Errorf("admission_limit must be >= 1, got %d", c.AdmissionLimit)
	}
	if c.ServerCapacity < 1 {
		return fmt.Errorf("server_capacity must be >= 1, got %d", c.ServerCapacity)
	}
	for name, d := range map[string]time.Duration{
		"generator_tick":    c.GeneratorTick,
		"allocator_tick":    c.AllocatorTick,
		"pool_tick":         c.PoolTick,
		"throughput_window": c.ThroughputWindow,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}
	if c.ErrorEvery < 1 {
		return fmt.Errorf("error_every must be >= 1, got %d", c.ErrorEvery)
	}
	if c.BackoffStep < 0 || c.MaxBackoff < 0 {
		return fmt.Errorf("backoff durations must be non-negative, got step=%v max=%v", c.BackoffStep, c.MaxBackoff)
	}
	if c.ServiceTimeScale < 0 {
		return fmt.Errorf("service_time_scale must be non-negative, got %f", c.ServiceTimeScale)
	}
	if c.InboxBuffer < 1 {
		return fmt.Errorf("inbox_buffer must be >= 1, got %d", c.InboxBuffer)
	}
	return nil
}
