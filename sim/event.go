package sim

import (
	"fmt"
	"strings"
	"time"
)

// EventKind identifies an event variant for routing.
type EventKind int

const (
	EventRequestCreated EventKind = iota
	EventRequestAssigned
	EventRequestProcessStarted
	EventRequestProcessed
	EventErrorEncountered
	EventConfigChanged
)

// EventKinds lists every event variant.
var EventKinds = [...]EventKind{
	EventRequestCreated,
	EventRequestAssigned,
	EventRequestProcessStarted,
	EventRequestProcessed,
	EventErrorEncountered,
	EventConfigChanged,
}

func (k EventKind) String() string {
	switch k {
	case EventRequestCreated:
		return "RequestCreated"
	case EventRequestAssigned:
		return "RequestAssigned"
	case EventRequestProcessStarted:
		return "RequestProcessStarted"
	case EventRequestProcessed:
		return "RequestProcessed"
	case EventErrorEncountered:
		return "ErrorEncountered"
	case EventConfigChanged:
		return "ConfigChanged"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event defines the interface for all domain events.
// Implementations are plain values; every send copies them.
type Event interface {
	Kind() EventKind
	Timestamp() time.Time
}

// RequestCreated is emitted by the generator for every admitted new request.
type RequestCreated struct {
	At      time.Time
	Request Request
}

func (e RequestCreated) Kind() EventKind      { return EventRequestCreated }
func (e RequestCreated) Timestamp() time.Time { return e.At }

// RequestAssigned is emitted by the allocator when a request is placed on a server.
type RequestAssigned struct {
	At       time.Time
	ServerID int
	Request  Request
}

func (e RequestAssigned) Kind() EventKind      { return EventRequestAssigned }
func (e RequestAssigned) Timestamp() time.Time { return e.At }

// RequestProcessStarted is emitted by a processing job before its service delay.
type RequestProcessStarted struct {
	At          time.Time
	ServerID    int
	RequestID   string
	ArrivalTime time.Time
	ServiceTime time.Duration
}

func (e RequestProcessStarted) Kind() EventKind      { return EventRequestProcessStarted }
func (e RequestProcessStarted) Timestamp() time.Time { return e.At }

// RequestProcessed is emitted by a processing job once its service delay elapsed.
// ServiceTime lets mirrors release the workload without a lookup.
type RequestProcessed struct {
	At          time.Time
	ServerID    int
	RequestID   string
	ArrivalTime time.Time
	ServiceTime time.Duration
}

func (e RequestProcessed) Kind() EventKind      { return EventRequestProcessed }
func (e RequestProcessed) Timestamp() time.Time { return e.At }

// ErrorEncountered carries a rate-limited congestion notice.
type ErrorEncountered struct {
	At                  time.Time
	Message             string
	ConsecutiveFailures int
}

func (e ErrorEncountered) Kind() EventKind      { return EventErrorEncountered }
func (e ErrorEncountered) Timestamp() time.Time { return e.At }

// ConfigChange describes an out-of-band configuration update.
// HasArrivalRate distinguishes "rate 0" from "rate unchanged"; an empty
// Policy leaves the placement policy unchanged.
type ConfigChange struct {
	ArrivalRate    float64
	HasArrivalRate bool
	Policy         string
}

func (c ConfigChange) String() string {
	var parts []string
	if c.HasArrivalRate {
		parts = append(parts, fmt.Sprintf("rate=%.2f", c.ArrivalRate))
	}
	if c.Policy != "" {
		parts = append(parts, "policy="+c.Policy)
	}
	if len(parts) == 0 {
		return "no-op"
	}
	return strings.Join(parts, " ")
}

// ConfigChanged fans a ConfigChange out to the generator and allocator.
type ConfigChanged struct {
	At     time.Time
	Change ConfigChange
}

func (e ConfigChanged) Kind() EventKind      { return EventConfigChanged }
func (e ConfigChanged) Timestamp() time.Time { return e.At }

// Describe renders an event as a one-line log message.
func Describe(ev Event) string {
	switch e := ev.(type) {
	case RequestCreated:
		return fmt.Sprintf("Request #%s created (%s)", e.Request.ID, e.Request.Name())
	case RequestAssigned:
		return fmt.Sprintf("Request #%s assigned to Server %d", e.Request.ID, e.ServerID)
	case RequestProcessStarted:
		return fmt.Sprintf("Server %d started processing Request #%s", e.ServerID, e.RequestID)
	case RequestProcessed:
		return fmt.Sprintf("Server %d processed Request #%s", e.ServerID, e.RequestID)
	case ErrorEncountered:
		return "Error: " + e.Message
	case ConfigChanged:
		return "Config changed: " + e.Change.String()
	default:
		return fmt.Sprintf("unknown event %T", ev)
	}
}
