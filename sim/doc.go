// Package sim provides the value types of the request-allocation simulator.
//
// # Reading Guide
//
// Start with these files:
//   - request.go: the immutable Request and its derived service time
//   - slot.go: ServerSlot, the bounded FIFO with incremental workload accounting
//   - event.go: the domain events exchanged between actors
//   - routing.go: placement policies (random, round-robin, smallest-workload)
//
// # Architecture
//
// This package holds no goroutines. The actors that exchange events live in
// sub-packages:
//   - sim/cluster/: Router, Generator, Allocator, Server Pool, Stats and the Cluster wiring
//   - sim/trace/: allocation decision trace
//
// Every actor owns its state. Cross-actor knowledge is an eventually
// consistent mirror built only from routed events.
package sim
