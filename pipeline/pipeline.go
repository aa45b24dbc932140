// Package pipeline implements ActionPipeline: an ordered, replayable
// sequence of actions that is itself an action, plus the crash-resume
// SimulateUntil algorithm.
//
// Grounded on go.alis.build/atom/transaction.go's operation list and LIFO
// compensation walk (Transaction.Commit/Rollback), generalized to the
// explicit reversible-cursor model pysyphe's ActionsPipeline/ReversibleList
// implement.
package pipeline

import (
	"go.alis.build/compose/cerrors"
	"go.alis.build/compose/stream"
)

// Action is the contract an ActionPipeline composes: every caction type
// (Action, StatefulAction, UnitAction) and ActionPipeline itself satisfies
// it, so pipelines nest.
type Action interface {
	Name() string
	ReverseName() string
	Execute() error
	Undo() error
	SetStreamer(stream.InfoStreamer) error
	Simulate(side stream.Side, after map[string]any)
}

// ActionPipeline is an ordered sequence of Actions forming a composite
// Action: executing it runs every contained action forward in append
// order; undoing it runs the executed ones backward, invoking their
// reverses.
type ActionPipeline struct {
	name        string
	reverseName string
	cur         *cursor[Action]
	streamer    stream.InfoStreamer
}

// New builds an empty pipeline. A non-empty name makes the pipeline emit
// its own begin/end events in addition to the events its contained actions
// emit; an empty name keeps it silent, per spec.md's "no noise unless
// named" rule.
func New(name string, streamer stream.InfoStreamer) *ActionPipeline {
	if streamer == nil {
		streamer = stream.DiscardStreamer{}
	}
	return &ActionPipeline{
		name:     name,
		cur:      newCursor[Action](nil),
		streamer: streamer,
	}
}

// Name returns the pipeline's forward-side name.
func (p *ActionPipeline) Name() string { return p.name }

// ReverseName returns the pipeline's reverse-side name, defaulting to Name
// if never set explicitly via SetReverseName.
func (p *ActionPipeline) ReverseName() string {
	if p.reverseName != "" {
		return p.reverseName
	}
	return p.name
}

// SetReverseName overrides the reverse-side event name.
func (p *ActionPipeline) SetReverseName(name string) { p.reverseName = name }

// Append adds a to the end of the pipeline and propagates the pipeline's
// current streamer to it. Fails with cerrors.ErrNotAnAction if a does not
// satisfy the Action contract.
func (p *ActionPipeline) Append(a any) error {
	act, ok := a.(Action)
	if !ok {
		return cerrors.ErrNotAnAction
	}
	if err := act.SetStreamer(p.streamer); err != nil {
		return err
	}
	p.cur.items = append(p.cur.items, act)
	return nil
}

// SetStreamer sets the pipeline's own streamer and cascades it to every
// already-appended action.
func (p *ActionPipeline) SetStreamer(s stream.InfoStreamer) error {
	if s == nil {
		return cerrors.ErrNoSinkMethod
	}
	p.streamer = s
	for _, a := range p.cur.items {
		if err := a.SetStreamer(s); err != nil {
			return err
		}
	}
	return nil
}

// Actions returns a read-only copy of the currently appended actions, in
// their current cursor order.
func (p *ActionPipeline) Actions() []Action {
	return p.cur.snapshot()
}

func (p *ActionPipeline) emit(step stream.Step, side stream.Side, err error) {
	if p.name == "" {
		return
	}
	name := p.name
	rollbackOf := ""
	if side == stream.SideReverse {
		name = p.ReverseName()
		rollbackOf = p.name
	}
	p.streamer.Receive(stream.Event{
		ActionName: name,
		Side:       side,
		Step:       step,
		RollbackOf: rollbackOf,
		Err:        err,
	})
}

// Execute walks the cursor forward, calling Execute on each action in
// append order. On the first failure it stops and propagates the error;
// the cursor is left pointing just past the failing action, so Undo will
// still roll it back (its forward side was entered, even though it did
// not complete).
func (p *ActionPipeline) Execute() error {
	p.emit(stream.StepBegin, stream.SideForward, nil)
	for p.cur.hasNext() {
		act := p.cur.next()
		if err := act.Execute(); err != nil {
			p.emit(stream.StepEnd, stream.SideForward, err)
			return err
		}
	}
	p.emit(stream.StepEnd, stream.SideForward, nil)
	return nil
}

// Undo reverses the cursor and calls Undo on every action it yields —
// every action whose forward side was entered, in reverse order — then
// re-reverses the cursor so the pipeline can be re-executed. It keeps
// walking even after a failure, but returns the first error encountered.
func (p *ActionPipeline) Undo() error {
	p.emit(stream.StepBegin, stream.SideReverse, nil)
	p.cur.reverse()

	var firstErr error
	for p.cur.hasNext() {
		act := p.cur.next()
		if err := act.Undo(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	p.cur.reverse()
	p.emit(stream.StepEnd, stream.SideReverse, firstErr)
	return firstErr
}

// Simulate is a no-op for a pipeline: SimulateUntil drives the simulation
// of its contained actions directly. Present only so ActionPipeline
// satisfies Action and can itself be nested inside another pipeline.
func (p *ActionPipeline) Simulate(side stream.Side, after map[string]any) {}

// Copy returns a value-copy of the pipeline: its own cursor and slice are
// duplicated, but the contained actions are shared by reference (a
// shallow copy), matching spec.md's lifecycle note for pipeline copies.
func (p *ActionPipeline) Copy() *ActionPipeline {
	cp := &ActionPipeline{
		name:        p.name,
		reverseName: p.reverseName,
		streamer:    p.streamer,
	}
	items := p.cur.snapshot()
	cp.cur = newCursor(items)
	cp.cur.pos = p.cur.pos
	return cp
}
