package caction_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"go.alis.build/compose/caction"
	"go.alis.build/compose/cerrors"
	"go.alis.build/compose/refmap"
	"go.alis.build/compose/stream"
)

type StatefulActionTestSuite struct {
	suite.Suite
}

func TestStatefulActionSuite(t *testing.T) {
	suite.Run(t, new(StatefulActionTestSuite))
}

func reverseString(in string) string {
	r := []rune(in)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

func newReverseTemplate(sink *[]string) *caction.StatefulAction {
	tmpl := caction.NewStateful(
		func(state *refmap.Map) error {
			v, err := state.Get("text")
			if err != nil {
				return err
			}
			text := v.(string)
			*sink = append(*sink, text)
			state.Set("reverse_text", reverseString(text))
			return nil
		},
		func(state *refmap.Map) error {
			v, err := state.Get("reverse_text")
			if err != nil {
				return err
			}
			*sink = append(*sink, v.(string))
			return nil
		},
	)
	tmpl.SetRequiredForwardKeys("text")
	tmpl.SetRequiredReverseKeys("reverse_text")
	return tmpl
}

// TestS1_SimpleReverseString: prepare with text="YOLO", execute, undo;
// sink ends up ["YOLO", "OLOY"].
func (s *StatefulActionTestSuite) TestS1_SimpleReverseString() {
	var sink []string
	tmpl := newReverseTemplate(&sink)

	prepared, err := tmpl.Prepare(map[string]any{"text": "YOLO"})
	s.Require().NoError(err)

	s.Require().NoError(prepared.Execute())
	s.Require().NoError(prepared.Undo())

	s.Equal([]string{"YOLO", "OLOY"}, sink)
}

// TestS2_LinkedStates: P2's "text" is a Ref into P1's "reverse_text",
// so P2 observes whatever P1 last wrote even though P2 was configured
// before P1 ran.
func (s *StatefulActionTestSuite) TestS2_LinkedStates() {
	var sink []string
	tmpl := newReverseTemplate(&sink)

	p1, err := tmpl.Prepare(map[string]any{"text": "ABC"})
	s.Require().NoError(err)

	p2, err := tmpl.Prepare(map[string]any{"text": p1.State().RefTo("reverse_text")})
	s.Require().NoError(err)

	s.Require().NoError(p1.Execute())
	s.Require().NoError(p2.Execute())
	s.Require().NoError(p1.Undo())
	s.Require().NoError(p2.Undo())

	s.Equal([]string{"ABC", "CBA", "CBA", "ABC"}, sink)
}

// TestInvariant1_TemplateStateNotShared verifies that two Prepare calls
// from the same template share no mutable state.
func (s *StatefulActionTestSuite) TestInvariant1_TemplateStateNotShared() {
	var sink []string
	tmpl := newReverseTemplate(&sink)

	p1, err := tmpl.Prepare(map[string]any{"text": "AAA"})
	s.Require().NoError(err)
	p2, err := tmpl.Prepare(map[string]any{"text": "BBB"})
	s.Require().NoError(err)

	s.Require().NoError(p1.Execute())

	_, err = p2.State().Get("reverse_text")
	s.Error(err, "p2 must not observe p1's write")
}

// TestInvariant3_PrepareRejectsMismatchedKeys verifies missing and
// superfluous kwargs are both rejected.
func (s *StatefulActionTestSuite) TestInvariant3_PrepareRejectsMismatchedKeys() {
	var sink []string
	tmpl := newReverseTemplate(&sink)

	_, err := tmpl.Prepare(map[string]any{})
	var keysErr *cerrors.ActionKeysError
	s.ErrorAs(err, &keysErr)
	s.Equal("missing", keysErr.Reason)

	_, err = tmpl.Prepare(map[string]any{"text": "X", "extra": "Y"})
	s.ErrorAs(err, &keysErr)
	s.Equal("superfluous", keysErr.Reason)
}

// TestInvariant4_RollbackPrereqMissing verifies a successful forward that
// fails to populate a declared required reverse key fails preparation's
// installed check.
func (s *StatefulActionTestSuite) TestInvariant4_RollbackPrereqMissing() {
	tmpl := caction.NewStateful(
		func(state *refmap.Map) error { return nil },
		func(state *refmap.Map) error { return nil },
	)
	tmpl.SetRequiredReverseKeys("never_written")

	prepared, err := tmpl.Prepare(nil)
	s.Require().NoError(err)

	err = prepared.Execute()
	var keysErr *cerrors.ActionKeysError
	s.ErrorAs(err, &keysErr)
	s.Equal("rollback-prereq", keysErr.Reason)
}

// TestInvariant5_ActionFailedStampedOnForwardError verifies that a
// forward exception stamps action_failed on the state.
func (s *StatefulActionTestSuite) TestInvariant5_ActionFailedStampedOnForwardError() {
	wantErr := errors.New("boom")
	tmpl := caction.NewStateful(
		func(state *refmap.Map) error { return wantErr },
		nil,
	)

	prepared, err := tmpl.Prepare(nil)
	s.Require().NoError(err)

	s.ErrorIs(prepared.Execute(), wantErr)

	failed, err := prepared.State().Get("action_failed")
	s.Require().NoError(err)
	s.Equal(true, failed)
}

// TestReverselessAction_UndoIsSilentNoOp verifies an action with no
// reverse callable installs a null reverse and suppresses its events.
func (s *StatefulActionTestSuite) TestReverselessAction_UndoIsSilentNoOp() {
	tmpl := caction.NewStateful(func(state *refmap.Map) error { return nil }, nil)
	prepared, err := tmpl.Prepare(nil)
	s.Require().NoError(err)

	s.Require().NoError(prepared.Execute())
	s.NoError(prepared.Undo())
}

// TestPrepare_AlreadyPrepared verifies a prepared instance cannot itself
// be re-prepared.
func (s *StatefulActionTestSuite) TestPrepare_AlreadyPrepared() {
	tmpl := caction.NewStateful(func(state *refmap.Map) error { return nil }, nil)
	prepared, err := tmpl.Prepare(nil)
	s.Require().NoError(err)

	_, err = prepared.Prepare(nil)
	s.ErrorIs(err, cerrors.ErrAlreadyPrepared)
}

// TestSimulate_AdvancesStateWithoutInvokingCallable verifies Simulate
// merges state in place without running the forward callable.
func (s *StatefulActionTestSuite) TestSimulate_AdvancesStateWithoutInvokingCallable() {
	called := false
	tmpl := caction.NewStateful(func(state *refmap.Map) error {
		called = true
		return nil
	}, nil)
	prepared, err := tmpl.Prepare(nil)
	s.Require().NoError(err)

	prepared.Simulate(stream.SideForward, map[string]any{"reverse_text": "simulated"})
	s.False(called)

	v, err := prepared.State().Get("reverse_text")
	s.Require().NoError(err)
	s.Equal("simulated", v)
}
