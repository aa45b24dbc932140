package pipeline

import (
	"go.alis.build/compose/cerrors"
	"go.alis.build/compose/stream"
)

// LogEntry is one recorded step from a crashed run: the forward or
// reverse name of the action that produced it, and the state snapshot
// taken just after it ran.
type LogEntry struct {
	Name  string
	After map[string]any
}

// SimulateUntil replays log against the pipeline's own action sequence to
// fast-forward it to the point a prior run crashed, without invoking any
// callable or hook. It resets the cursor to the beginning first, since the
// replay always walks the full pipeline from scratch.
//
// Phase 1 matches log entries against each action's forward name in
// append order; phase 2 (entered once phase 1 can no longer match, or once
// it runs out of actions) matches the remainder against reverse names in
// reverse-append order. Because phase 1 only consumes the cursor on an
// actual match (it peeks the next action's name before calling next),
// the cursor is already sitting exactly where phase 2 needs it once
// phase 1 stops — no corrective step-back is needed the way a
// consume-then-undo cursor API would require one.
//
// Returns *cerrors.SimulateError if a phase-2 entry names something other
// than the next action's reverse name, or if log has unconsumed entries
// once both phases are exhausted.
func (p *ActionPipeline) SimulateUntil(log []LogEntry) error {
	p.cur.pos = 0

	i := 0
	for p.cur.hasNext() && i < len(log) {
		act := p.cur.peek()
		if log[i].Name != act.Name() {
			break
		}
		act.Simulate(stream.SideForward, log[i].After)
		p.cur.next()
		i++
	}

	p.cur.reverse()

	for p.cur.hasNext() && i < len(log) {
		act := p.cur.peek()
		if log[i].Name != act.ReverseName() {
			return cerrors.NewSimulateMismatchError(act.ReverseName(), log[i].Name)
		}
		act.Simulate(stream.SideReverse, log[i].After)
		p.cur.next()
		i++
	}

	p.cur.reverse()

	if i < len(log) {
		return cerrors.NewSimulateIncompleteError(log[i].Name)
	}
	return nil
}
