// Package stream defines the InfoStreamer contract that every action,
// pipeline and transaction handler in this module reports its lifecycle
// through, along with a handful of ready-to-use sinks.
//
// This mirrors go.alis.build/atom's Observer interface (OnOperationStart/
// OnOperationEnd/OnCommit/OnRollback) collapsed into the single wide Event
// record the original pysyphe InfoStreamer.send_info(**kwargs) call uses,
// since callers here need to observe simulation steps and rollback-of
// linkage that a narrower four-method interface can't express without
// growing just as wide anyway.
package stream

import (
	"context"
	"sync"

	"go.alis.build/alog"
)

// Side identifies which face of an action produced an Event.
type Side int

const (
	// SideForward identifies the forward (do) side of an action.
	SideForward Side = iota
	// SideReverse identifies the reverse (undo) side of an action.
	SideReverse
)

func (s Side) String() string {
	if s == SideReverse {
		return "reverse"
	}
	return "forward"
}

// Step identifies which point in an action's lifecycle an Event describes.
type Step int

const (
	// StepBegin is emitted before a side's hook stack is entered.
	StepBegin Step = iota
	// StepEnd is emitted after a side returns, successfully or not.
	StepEnd
	// StepSimulate is emitted by Simulate in place of a real Begin/End
	// pair, when a pipeline is fast-forwarded from a recovery log.
	StepSimulate
)

func (s Step) String() string {
	switch s {
	case StepBegin:
		return "begin"
	case StepEnd:
		return "end"
	case StepSimulate:
		return "simulate"
	default:
		return "unknown"
	}
}

// Event is the structured record every component in this module reports
// to an InfoStreamer.
type Event struct {
	// ActionName is the forward or reverse name of the action/pipeline
	// reporting the event, depending on Side.
	ActionName string
	Side       Side
	Step       Step

	// State is a snapshot of a StatefulAction's state at the point the
	// event was raised. Nil for events from a bare Action or a Pipeline.
	State map[string]any

	// RollbackOf names the forward action this event's reverse side is
	// undoing. Empty for forward-side events.
	RollbackOf string

	// Err is set on a StepEnd event that's leaving on failure.
	Err error

	// TransactionID correlates every event raised within one
	// txn.Manager.Begin scope, when the event originated from a pipeline
	// registered with a manager. The manager's stamping streamer stays on
	// the pipeline after the scope closes, so later events from that
	// pipeline carry the most recent scope's id. Empty for a pipeline no
	// manager has begun a scope over.
	TransactionID string
}

// InfoStreamer receives structured lifecycle events. Implementations must
// tolerate unknown future fields being added to Event without erroring,
// exactly as pysyphe's send_info(**kwargs) tolerates unknown keys.
type InfoStreamer interface {
	Receive(Event)
}

// DiscardStreamer accepts and discards every event. It is the zero-value
// default streamer for a freshly constructed Action, mirroring
// go.alis.build/atom's NoOpObserver.
type DiscardStreamer struct{}

// Receive implements InfoStreamer.
func (DiscardStreamer) Receive(Event) {}

// HumanReadableStreamer formats each Event as a single log line and routes
// it through alog, the way go.alis.build/atom routes its LoggingObserver's
// output and pysyphe's HumanReadableActionsLogger formats strings. Line
// shape depends on Step: "Do <name>" (or "Undo <name>" on the reverse
// side), "Successful end of <side> <name>", "Failure of <side> <name>:
// <err>", or "Simulation of <side> <name>". For an event with RollbackOf
// set, <name> is the forward name it rolls back.
type HumanReadableStreamer struct {
	// Ctx is passed through to every alog call. A nil Ctx is replaced with
	// context.Background() at Receive time.
	Ctx context.Context
}

// Receive implements InfoStreamer.
func (h HumanReadableStreamer) Receive(e Event) {
	ctx := h.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	name := e.ActionName
	if e.RollbackOf != "" {
		name = e.RollbackOf
	}
	switch e.Step {
	case StepBegin:
		alog.Infof(ctx, "%s %s", beginVerb(e), name)
	case StepSimulate:
		alog.Infof(ctx, "Simulation of %s %s", e.Side, name)
	case StepEnd:
		if e.Err != nil {
			alog.Warnf(ctx, "Failure of %s %s: %v", e.Side, name, e.Err)
		} else {
			alog.Infof(ctx, "Successful end of %s %s", e.Side, name)
		}
	}
}

func beginVerb(e Event) string {
	if e.Side == SideReverse {
		return "Undo"
	}
	return "Do"
}

// actionCounts accumulates the four tallies MetricsStreamer keeps per
// action name, mirroring go.alis.build/atom's MetricsObserver counters.
type actionCounts struct {
	Begins    int
	Ends      int
	Failures  int
	Simulates int
}

// MetricsStreamer counts, per action name, how many times each Step was
// observed on each Side, without ever logging or failing. Grounded on
// go.alis.build/atom's MetricsObserver, which keeps the equivalent tallies
// for operations/commits/rollbacks.
type MetricsStreamer struct {
	mu      sync.Mutex
	forward map[string]*actionCounts
	reverse map[string]*actionCounts
}

// NewMetricsStreamer builds an empty MetricsStreamer.
func NewMetricsStreamer() *MetricsStreamer {
	return &MetricsStreamer{
		forward: make(map[string]*actionCounts),
		reverse: make(map[string]*actionCounts),
	}
}

// Receive implements InfoStreamer.
func (m *MetricsStreamer) Receive(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table := m.forward
	if e.Side == SideReverse {
		table = m.reverse
	}
	c, ok := table[e.ActionName]
	if !ok {
		c = &actionCounts{}
		table[e.ActionName] = c
	}
	switch e.Step {
	case StepBegin:
		c.Begins++
	case StepSimulate:
		c.Simulates++
	case StepEnd:
		c.Ends++
		if e.Err != nil {
			c.Failures++
		}
	}
}

// Snapshot returns a point-in-time copy of the counters for actionName on
// the given side. A name never observed returns the zero value.
func (m *MetricsStreamer) Snapshot(side Side, actionName string) (begins, ends, failures, simulates int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table := m.forward
	if side == SideReverse {
		table = m.reverse
	}
	c, ok := table[actionName]
	if !ok {
		return 0, 0, 0, 0
	}
	return c.Begins, c.Ends, c.Failures, c.Simulates
}
