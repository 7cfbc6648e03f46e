package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/reqsim/sim"
)

// parseCommand turns one console line into a config change.
// Recognized forms: "rate <req/s>", "policy <name>", "quit".
func parseCommand(line string) (change sim.ConfigChange, quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return sim.ConfigChange{}, false, fmt.Errorf("empty command")
	}
	switch strings.ToLower(fields[0]) {
	case "quit", "exit", "q":
		return sim.ConfigChange{}, true, nil
	case "rate":
		if len(fields) != 2 {
			return sim.ConfigChange{}, false, fmt.Errorf("usage: rate <requests per second>")
		}
		r, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return sim.ConfigChange{}, false, fmt.Errorf("invalid rate %q: %w", fields[1], err)
		}
		if r < 0 {
			return sim.ConfigChange{}, false, fmt.Errorf("rate must be non-negative, got %f", r)
		}
		return sim.ConfigChange{ArrivalRate: r, HasArrivalRate: true}, false, nil
	case "policy":
		if len(fields) != 2 {
			return sim.ConfigChange{}, false, fmt.Errorf("usage: policy <%s>", strings.Join(sim.ValidPlacementPolicies(), "|"))
		}
		if !sim.IsValidPlacementPolicy(fields[1]) {
			return sim.ConfigChange{}, false, fmt.Errorf("unknown placement policy %q", fields[1])
		}
		return sim.ConfigChange{Policy: fields[1]}, false, nil
	default:
		return sim.ConfigChange{}, false, fmt.Errorf("unknown command %q", fields[0])
	}
}

// runConsole reads commands from r until EOF, ctx cancellation or "quit".
// Invalid lines are logged and skipped.
func runConsole(ctx context.Context, r io.Reader, submit func(context.Context, sim.ConfigChange) error, quit func()) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		change, done, err := parseCommand(line)
		if err != nil {
			logrus.Warnf("console: %v", err)
			continue
		}
		if done {
			quit()
			return
		}
		if err := submit(ctx, change); err != nil {
			logrus.Warnf("console: %v", err)
		}
	}
}
