package caction

import (
	"go.alis.build/compose/cerrors"
	"go.alis.build/compose/refmap"
	"go.alis.build/compose/stream"
)

// UnitAction wraps a StatefulAction with an atomicity guarantee: Undo is a
// silent no-op until the first successful Execute. Composition over
// StatefulAction, not embedding — spec.md's own redesign note prefers a
// has-a "rollback gate" decorator over an is-a relationship here, unlike
// StatefulAction's embedding of Action.
type UnitAction struct {
	template *StatefulAction

	// set only on a prepared instance.
	inner       *StatefulAction
	realReverse Func
}

// NewUnit builds a template UnitAction. reverse must not be nil: Prepare
// fails with cerrors.ErrNoReverseDefined otherwise, since an atomicity gate
// with nothing to gate is meaningless.
func NewUnit(forward, reverse StateFunc) *UnitAction {
	return &UnitAction{template: NewStateful(forward, reverse)}
}

// SetRequiredForwardKeys declares the exact kwargs Prepare must receive.
func (u *UnitAction) SetRequiredForwardKeys(keys ...string) {
	u.template.SetRequiredForwardKeys(keys...)
}

// SetRequiredReverseKeys declares the state keys that must be present
// after a successful forward call.
func (u *UnitAction) SetRequiredReverseKeys(keys ...string) {
	u.template.SetRequiredReverseKeys(keys...)
}

// State returns the bound ReferenceMap of a prepared instance, or nil in
// template mode.
func (u *UnitAction) State() *refmap.Map {
	if u.inner == nil {
		return nil
	}
	return u.inner.State()
}

// Name returns the forward-side name.
func (u *UnitAction) Name() string { return u.activeAction().Name() }

// ReverseName returns the reverse-side name.
func (u *UnitAction) ReverseName() string { return u.activeAction().ReverseName() }

func (u *UnitAction) activeAction() *StatefulAction {
	if u.inner != nil {
		return u.inner
	}
	return u.template
}

// AddHook installs a hook on the active (template or prepared) instance's
// given side: outer by default, innermost with Inner().
func (u *UnitAction) AddHook(side stream.Side, factory Hook, opts ...HookOption) {
	u.activeAction().AddHook(side, factory, opts...)
}

// SetStreamer attaches the InfoStreamer events are reported to.
func (u *UnitAction) SetStreamer(s stream.InfoStreamer) error {
	return u.activeAction().SetStreamer(s)
}

// Prepare binds kwargs to a fresh instance exactly as StatefulAction.Prepare
// does, then installs the rollback gate: the bound reverse is stashed
// aside and replaced with a silent no-op, restored only once the forward
// side exits without error.
func (u *UnitAction) Prepare(kwargs map[string]any) (*UnitAction, error) {
	if u.template.reverseFn == nil {
		return nil, cerrors.ErrNoReverseDefined
	}
	prepared, err := u.template.Prepare(kwargs)
	if err != nil {
		return nil, err
	}

	result := &UnitAction{template: u.template, inner: prepared}
	result.realReverse = prepared.Action.reverse
	prepared.Action.reverse = func() error { return nil }
	prepared.Action.suppressReverseEvents = true

	// Outer, not Inner(): StatefulAction.Prepare already installed
	// rollbackPrereqCheckHook as the innermost forward hook, and exits
	// unwind innermost-first. The gate must only open once that hook's
	// required-reverse-key check has had its say, so this hook's exit has
	// to run after it — which means entering before it, i.e. outer.
	prepared.AddHook(stream.SideForward, result.enableReverseHook)

	return result, nil
}

func (u *UnitAction) enableReverseHook(_ *Action) (func() error, func(error) error) {
	exit := func(err error) error {
		if err == nil {
			u.openGate()
		}
		return err
	}
	return nil, exit
}

func (u *UnitAction) openGate() {
	u.inner.Action.reverse = u.realReverse
	u.inner.Action.suppressReverseEvents = false
}

// Execute runs the forward side.
func (u *UnitAction) Execute() error { return u.activeAction().Execute() }

// Undo runs the reverse side. A silent no-op until the gate has opened.
func (u *UnitAction) Undo() error { return u.activeAction().Undo() }

// Simulate advances state as StatefulAction.Simulate does. Simulating the
// forward side also opens the rollback gate, matching the runtime behavior
// a real successful Execute would have produced.
func (u *UnitAction) Simulate(side stream.Side, after map[string]any) {
	u.activeAction().Simulate(side, after)
	if side == stream.SideForward && u.inner != nil {
		u.openGate()
	}
}

// Copy returns a fresh, unprepared template copy.
func (u *UnitAction) Copy() *UnitAction {
	return &UnitAction{template: u.activeAction().Copy()}
}
