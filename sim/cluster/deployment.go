package cluster

import (
	"fmt"

	"github.com/inference-sim/reqsim/sim"
	"github.com/inference-sim/reqsim/sim/trace"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
)

// DeploymentConfig describes one cluster run: the simulation tunables plus
// the collaborators injected by the caller.
type DeploymentConfig struct {
	sim.ClusterConfig

	Trace trace.TraceConfig

	// Clock drives every ticker, service delay and backoff. Nil = real clock.
	Clock clockwork.Clock

	// Registerer receives the Stats collectors. Nil = not registered.
	// Registering two clusters on the same Registerer panics.
	Registerer prometheus.Registerer
}

// Validate checks the embedded ClusterConfig and the trace level.
func (c DeploymentConfig) Validate() error {
	if err := c.ClusterConfig.Validate(); err != nil {
		return err
	}
	if !trace.IsValidTraceLevel(string(c.Trace.Level)) {
		return fmt.Errorf("unknown trace level %q", c.Trace.Level)
	}
	return nil
}
