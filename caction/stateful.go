package caction

import (
	"go.alis.build/utils/sets"

	"go.alis.build/compose/cerrors"
	"go.alis.build/compose/refmap"
	"go.alis.build/compose/stream"
)

// StateFunc is a user-supplied forward or reverse callable for a
// StatefulAction. It receives the action's bound state as its sole
// argument, per spec.md's callable-arity contract.
type StateFunc func(state *refmap.Map) error

// StatefulAction is an Action plus a declared set of required state keys
// per side and an internal ReferenceMap populated on preparation. Before
// Prepare it is a reusable template; after Prepare the returned copy is
// frozen to that one execution context.
type StatefulAction struct {
	Action

	forwardFn StateFunc
	reverseFn StateFunc

	requiredForwardKeys *sets.Set[string]
	requiredReverseKeys *sets.Set[string]

	state *refmap.Map
}

// NewStateful builds a template StatefulAction. reverse may be nil: the
// action is then reverseless, and Undo on a prepared instance is a silent
// no-op.
func NewStateful(forward, reverse StateFunc) *StatefulAction {
	return &StatefulAction{
		Action:              *New(nil, nil),
		forwardFn:           forward,
		reverseFn:           reverse,
		requiredForwardKeys: sets.NewSet[string](),
		requiredReverseKeys: sets.NewSet[string](),
	}
}

// SetRequiredForwardKeys declares the exact kwargs Prepare must receive.
func (s *StatefulAction) SetRequiredForwardKeys(keys ...string) {
	s.requiredForwardKeys = sets.NewSet(keys...)
}

// SetRequiredReverseKeys declares the state keys that must be present
// after a successful forward call for this action to be reversible.
func (s *StatefulAction) SetRequiredReverseKeys(keys ...string) {
	s.requiredReverseKeys = sets.NewSet(keys...)
}

// State returns the bound ReferenceMap of a prepared instance, or nil in
// template mode.
func (s *StatefulAction) State() *refmap.Map {
	return s.state
}

// Call invokes the forward callable directly against external, bypassing
// hooks and the pipeline machinery entirely. Template-mode convenience;
// fails with cerrors.ErrAlreadyPrepared once the action has been prepared.
func (s *StatefulAction) Call(external map[string]any) error {
	if s.state != nil {
		return cerrors.ErrAlreadyPrepared
	}
	if s.forwardFn == nil {
		return cerrors.ErrNoForwardDefined
	}
	return s.forwardFn(refmap.New(external))
}

func missingAndSuperfluous(required *sets.Set[string], kwargs map[string]any) (missing, superfluous []string) {
	for _, k := range required.Values() {
		if _, ok := kwargs[k]; !ok {
			missing = append(missing, k)
		}
	}
	for k := range kwargs {
		if !required.Contains(k) {
			superfluous = append(superfluous, k)
		}
	}
	return missing, superfluous
}

// Prepare binds kwargs into a fresh ReferenceMap on an independent copy of
// the template and returns that copy. The template itself is left
// untouched and may be prepared again. Fails with cerrors.ErrNoForwardDefined,
// cerrors.ErrAlreadyPrepared, or a *cerrors.ActionKeysError.
func (s *StatefulAction) Prepare(kwargs map[string]any) (*StatefulAction, error) {
	if s.forwardFn == nil {
		return nil, cerrors.ErrNoForwardDefined
	}
	if s.state != nil {
		return nil, cerrors.ErrAlreadyPrepared
	}
	if missing, superfluous := missingAndSuperfluous(s.requiredForwardKeys, kwargs); len(missing) > 0 || len(superfluous) > 0 {
		if len(missing) > 0 {
			return nil, cerrors.NewMissingKeysError(missing)
		}
		return nil, cerrors.NewSuperfluousKeysError(superfluous)
	}

	cp := s.cloneTemplate()
	cp.state = refmap.New(kwargs)

	// Stamp the name/reverseName defaults from the user's own StateFunc
	// values before they get wrapped below — every prepared instance's
	// forward/reverse otherwise becomes the same Prepare-local closure,
	// which would collapse every action's auto-derived name to one
	// generic wrapper identity.
	if cp.Action.name == "" {
		cp.Action.name = funcName(cp.forwardFn)
	}
	if cp.Action.reverseName == "" {
		cp.Action.reverseName = funcName(cp.reverseFn)
	}

	forwardFn := cp.forwardFn
	cp.Action.forward = func() error { return forwardFn(cp.state) }

	cp.Action.AddHook(stream.SideForward, rollbackPrereqCheckHook(cp), Inner())

	if cp.reverseFn != nil {
		reverseFn := cp.reverseFn
		cp.Action.reverse = func() error { return reverseFn(cp.state) }
	} else {
		cp.Action.reverse = func() error { return nil }
		cp.Action.suppressReverseEvents = true
	}

	cp.Action.snapshot = func() map[string]any { return cp.state.Snapshot() }

	return cp, nil
}

// cloneTemplate builds an independent StatefulAction sharing no mutable
// structure with s: a fresh Action (hook lists duplicated), fresh required
// key sets, and state left nil.
func (s *StatefulAction) cloneTemplate() *StatefulAction {
	cp := &StatefulAction{
		Action:              *s.Action.Copy(),
		forwardFn:           s.forwardFn,
		reverseFn:           s.reverseFn,
		requiredForwardKeys: sets.NewSet(s.requiredForwardKeys.Values()...),
		requiredReverseKeys: sets.NewSet(s.requiredReverseKeys.Values()...),
	}
	return cp
}

// Copy returns a fresh, unprepared template copy of s, regardless of
// whether s itself is a template or a prepared instance. Grounded on
// pysyphe's __copy__ dance: a prepared action's copy forgets its binding
// and is reusable as a template again.
func (s *StatefulAction) Copy() *StatefulAction {
	cp := s.cloneTemplate()
	cp.state = nil
	return cp
}

// Simulate advances state as if the callable had run, without invoking it
// or any hook, merging after into the existing ReferenceMap in place so
// Refs held by other actions keep observing it. Emits a single
// stream.StepSimulate event.
func (s *StatefulAction) Simulate(side stream.Side, after map[string]any) {
	if s.state == nil {
		return
	}
	s.state.Merge(after)

	name := s.Name()
	rollbackOf := ""
	if side == stream.SideReverse {
		name = s.ReverseName()
		rollbackOf = s.Name()
	}
	s.streamer.Receive(stream.Event{
		ActionName: name,
		Side:       side,
		Step:       stream.StepSimulate,
		State:      s.state.Snapshot(),
		RollbackOf: rollbackOf,
	})
}

// rollbackPrereqCheckHook wraps the forward call as the innermost hook. On
// a forward exception it stamps state["action_failed"] = true; on forward
// success it verifies every required reverse key is now present.
func rollbackPrereqCheckHook(s *StatefulAction) Hook {
	return func(_ *Action) (func() error, func(error) error) {
		exit := func(err error) error {
			if err != nil {
				s.state.Set("action_failed", true)
				return err
			}
			var missing []string
			for _, k := range s.requiredReverseKeys.Values() {
				if !s.state.Has(k) {
					missing = append(missing, k)
				}
			}
			if len(missing) > 0 {
				return cerrors.NewRollbackPrereqMissingError(missing)
			}
			return nil
		}
		return nil, exit
	}
}
