// Package caction implements the reversible action model: a bare Action
// with scoped life-cycle hooks, StatefulAction adding per-instance bound
// state, and UnitAction adding an atomicity gate on top of that.
//
// The hook composition and preparation sequence are grounded on
// go.alis.build/atom's hooks.go/transaction.go shape, generalized to match
// the nestable, named scoped-resource model the original pysyphe actions.py
// implements with context managers.
package caction

import (
	"reflect"
	"runtime"

	"go.alis.build/compose/cerrors"
	"go.alis.build/compose/stream"
)

// Func is a zero-argument callable bound to a side of an Action. For a
// StatefulAction, Prepare binds the user's StateFunc to its state and wraps
// it in a Func so the base Action never needs to know about state.
type Func func() error

// Hook is a scoped-resource factory: called with the action it's attached
// to, it returns an enter phase (run before the wrapped callable) and an
// exit phase (run after, on every exit path, given the error the callable
// or an inner hook produced). Either may be nil to skip that phase.
type Hook func(a *Action) (enter func() error, exit func(err error) error)

type hookConfig struct {
	inner bool
}

// HookOption configures a single AddHook call.
type HookOption func(*hookConfig)

// Inner marks a hook as innermost: entered last, exited first, closest to
// the wrapped callable. Without it, a hook is outer: the most recently
// added outer hook is entered first and exited last.
func Inner() HookOption {
	return func(c *hookConfig) { c.inner = true }
}

// Actionable is the minimal contract a pipeline can compose: something with
// a forward side, a reverse side, and a way to receive a streamer.
type Actionable interface {
	Execute() error
	Undo() error
	SetStreamer(stream.InfoStreamer) error
}

// Action is the base reversible operation: an optional forward callable, an
// optional reverse callable, a name per side, and an ordered hook list per
// side. A bare Action carries no state of its own.
type Action struct {
	name         string
	reverseName  string
	forward      Func
	reverse      Func
	forwardHooks []Hook
	reverseHooks []Hook
	streamer     stream.InfoStreamer

	// snapshot, when set, is consulted by run to attach a state snapshot
	// to the events it emits. StatefulAction sets this once state exists.
	snapshot func() map[string]any

	// suppressReverseEvents silences Undo's events entirely, for the
	// null-reverse case ("a reverseless action is legal; undo must be a
	// silent no-op") and for UnitAction before its gate opens.
	suppressReverseEvents bool
}

// New builds a bare Action from optional forward/reverse callables.
func New(forward, reverse Func) *Action {
	return &Action{
		forward:  forward,
		reverse:  reverse,
		streamer: stream.DiscardStreamer{},
	}
}

// funcName derives a diagnostic name from any function value, including a
// StatefulAction's pre-wrap StateFunc (not just the base Action's Func) —
// reflect.ValueOf(f).Pointer() works the same regardless of signature, so
// callers can pass the user's original callable even after it's been
// wrapped in a closure of a different shape.
func funcName(f any) string {
	v := reflect.ValueOf(f)
	if !v.IsValid() || v.IsNil() {
		return ""
	}
	pc := v.Pointer()
	if fn := runtime.FuncForPC(pc); fn != nil {
		return fn.Name()
	}
	return "<anonymous>"
}

// SetName overrides the auto-derived forward-side name.
func (a *Action) SetName(name string) { a.name = name }

// SetReverseName overrides the auto-derived reverse-side name.
func (a *Action) SetReverseName(name string) { a.reverseName = name }

// Name returns the forward-side name: explicit if set via SetName,
// otherwise derived from the forward callable's identifier.
func (a *Action) Name() string {
	if a.name != "" {
		return a.name
	}
	if n := funcName(a.forward); n != "" {
		return n
	}
	return "<unnamed action>"
}

// ReverseName returns the reverse-side name, analogous to Name.
func (a *Action) ReverseName() string {
	if a.reverseName != "" {
		return a.reverseName
	}
	if n := funcName(a.reverse); n != "" {
		return n
	}
	return "<unnamed reverse>"
}

// AddHook installs factory on the given side. Without Inner(), it becomes
// the new outermost hook (most recently added = entered first); with
// Inner(), it becomes the innermost hook (entered last, right before the
// wrapped callable).
func (a *Action) AddHook(side stream.Side, factory Hook, opts ...HookOption) {
	cfg := hookConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	list := &a.forwardHooks
	if side == stream.SideReverse {
		list = &a.reverseHooks
	}
	if cfg.inner {
		*list = append(*list, factory)
		return
	}
	*list = append([]Hook{factory}, *list...)
}

// ActionHook installs factory as an outer forward hook and returns it
// unchanged, so it stays usable as a plain scoped-resource factory
// elsewhere in caller code.
func (a *Action) ActionHook(factory Hook) Hook {
	a.AddHook(stream.SideForward, factory)
	return factory
}

// RollbackHook installs factory as an outer reverse hook and returns it
// unchanged.
func (a *Action) RollbackHook(factory Hook) Hook {
	a.AddHook(stream.SideReverse, factory)
	return factory
}

// SetStreamer attaches the InfoStreamer events are reported to. Returns
// cerrors.ErrNoSinkMethod if s is nil.
func (a *Action) SetStreamer(s stream.InfoStreamer) error {
	if s == nil {
		return cerrors.ErrNoSinkMethod
	}
	a.streamer = s
	return nil
}

// Execute runs the forward side: emits a begin event, enters the hook
// chain outermost-first down to the forward callable, emits an end event
// carrying any error, and returns that error.
func (a *Action) Execute() error {
	if a.forward == nil {
		return cerrors.ErrNoForwardDefined
	}
	return a.run(stream.SideForward, a.forward, a.forwardHooks, "")
}

// Undo runs the reverse side, symmetric to Execute except its events
// carry RollbackOf set to the forward name, and it is a complete no-op
// (including no events) for a suppressed reverse.
func (a *Action) Undo() error {
	if a.suppressReverseEvents {
		return nil
	}
	if a.reverse == nil {
		return cerrors.ErrNoReverseDefined
	}
	return a.run(stream.SideReverse, a.reverse, a.reverseHooks, a.Name())
}

func (a *Action) run(side stream.Side, callable Func, hooks []Hook, rollbackOf string) error {
	name := a.Name()
	if side == stream.SideReverse {
		name = a.ReverseName()
	}
	var state map[string]any
	if a.snapshot != nil {
		state = a.snapshot()
	}
	a.streamer.Receive(stream.Event{
		ActionName: name,
		Side:       side,
		Step:       stream.StepBegin,
		State:      state,
		RollbackOf: rollbackOf,
	})

	err := runHookChain(hooks, a, callable)

	if a.snapshot != nil {
		state = a.snapshot()
	}
	a.streamer.Receive(stream.Event{
		ActionName: name,
		Side:       side,
		Step:       stream.StepEnd,
		State:      state,
		RollbackOf: rollbackOf,
		Err:        err,
	})
	return err
}

// runHookChain invokes hooks in entry order (hooks[0] entered first),
// nesting each one's body inside the previous, down to callable at the
// center. Exit phases unwind in exactly the reverse order.
func runHookChain(hooks []Hook, a *Action, callable Func) error {
	if len(hooks) == 0 {
		return callable()
	}
	enter, exit := hooks[0](a)
	if enter != nil {
		if err := enter(); err != nil {
			return err
		}
	}
	err := runHookChain(hooks[1:], a, callable)
	if exit != nil {
		return exit(err)
	}
	return err
}

// Simulate is a no-op on the base Action; StatefulAction overrides it to
// advance bound state without invoking the callable or hooks.
func (a *Action) Simulate(side stream.Side, after map[string]any) {}

// Copy returns a value-copy of a, with both hook lists duplicated so
// appending to the copy never mutates the original.
func (a *Action) Copy() *Action {
	cp := *a
	cp.forwardHooks = append([]Hook(nil), a.forwardHooks...)
	cp.reverseHooks = append([]Hook(nil), a.reverseHooks...)
	return &cp
}
