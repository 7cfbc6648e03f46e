package cluster

import (
	"testing"
	"time"

	"github.com/inference-sim/reqsim/sim"
)

// testConfig returns defaults with buffers large enough that no test drops.
func testConfig() sim.ClusterConfig {
	cfg := sim.DefaultClusterConfig()
	cfg.InboxBuffer = 64
	return cfg
}

func testRequest(id string, kind sim.Kind, size sim.Size) sim.Request {
	return sim.Request{ID: id, Kind: kind, Size: size, ArrivalTime: time.Unix(0, 0)}
}

// collect reads every event currently buffered on ch without blocking.
func collect(ch <-chan sim.Event) []sim.Event {
	var out []sim.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// receive waits up to timeout for one event.
func receive(t *testing.T, ch <-chan sim.Event, timeout time.Duration) sim.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(timeout):
		t.Fatalf("no event within %v", timeout)
		return nil
	}
}

func ofKind(events []sim.Event, kind sim.EventKind) []sim.Event {
	var out []sim.Event
	for _, ev := range events {
		if ev.Kind() == kind {
			out = append(out, ev)
		}
	}
	return out
}
