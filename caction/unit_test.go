package caction_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"go.alis.build/compose/caction"
	"go.alis.build/compose/cerrors"
	"go.alis.build/compose/refmap"
)

type UnitActionTestSuite struct {
	suite.Suite
}

func TestUnitActionSuite(t *testing.T) {
	suite.Run(t, new(UnitActionTestSuite))
}

// TestS3_UnitAtomicity: a UnitAction whose forward throws leaves Execute
// returning the error, and an immediately following Undo a silent no-op,
// contrasting with a plain StatefulAction which would invoke the reverse.
func (s *UnitActionTestSuite) TestS3_UnitAtomicity() {
	wantErr := errors.New("forward failed")
	reverseCalled := false

	tmpl := caction.NewUnit(
		func(state *refmap.Map) error { return wantErr },
		func(state *refmap.Map) error {
			reverseCalled = true
			return nil
		},
	)

	prepared, err := tmpl.Prepare(nil)
	s.Require().NoError(err)

	s.ErrorIs(prepared.Execute(), wantErr)
	s.NoError(prepared.Undo())
	s.False(reverseCalled, "rollback must stay disabled after a failed forward")
}

// TestUnitAction_ReverseEnabledAfterSuccess verifies the gate opens once
// the forward side completes without error.
func (s *UnitActionTestSuite) TestUnitAction_ReverseEnabledAfterSuccess() {
	reverseCalled := false

	tmpl := caction.NewUnit(
		func(state *refmap.Map) error { return nil },
		func(state *refmap.Map) error {
			reverseCalled = true
			return nil
		},
	)

	prepared, err := tmpl.Prepare(nil)
	s.Require().NoError(err)

	s.Require().NoError(prepared.Execute())
	s.Require().NoError(prepared.Undo())
	s.True(reverseCalled)
}

// TestPrepare_RequiresReverse verifies UnitAction mandates a reverse
// callable at preparation time.
func (s *UnitActionTestSuite) TestPrepare_RequiresReverse() {
	tmpl := caction.NewUnit(func(state *refmap.Map) error { return nil }, nil)
	_, err := tmpl.Prepare(nil)
	s.ErrorIs(err, cerrors.ErrNoReverseDefined)
}

// TestUnitAction_GateStaysClosedWhenRequiredReverseKeyMissing: a forward
// call that succeeds but never sets a declared required reverse key must
// fail the rollback-prerequisite check, and the gate must stay closed —
// Undo afterward must still be a silent no-op, not invoke the real
// reverse. This pins the hook ordering between the atomicity gate and the
// prerequisite check: the gate may only open once the check has passed.
func (s *UnitActionTestSuite) TestUnitAction_GateStaysClosedWhenRequiredReverseKeyMissing() {
	reverseCalled := false

	tmpl := caction.NewUnit(
		func(state *refmap.Map) error { return nil },
		func(state *refmap.Map) error {
			reverseCalled = true
			return nil
		},
	)
	tmpl.SetRequiredReverseKeys("resource_id")

	prepared, err := tmpl.Prepare(nil)
	s.Require().NoError(err)

	s.Error(prepared.Execute())
	s.NoError(prepared.Undo())
	s.False(reverseCalled, "rollback must stay disabled when the prerequisite check fails")
}
