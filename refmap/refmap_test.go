package refmap_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"go.alis.build/compose/cerrors"
	"go.alis.build/compose/refmap"
)

type RefMapTestSuite struct {
	suite.Suite
}

func TestRefMapSuite(t *testing.T) {
	suite.Run(t, new(RefMapTestSuite))
}

func (s *RefMapTestSuite) TestGet_PlainValue() {
	m := refmap.New(map[string]any{"text": "YOLO"})
	v, err := m.Get("text")
	s.NoError(err)
	s.Equal("YOLO", v)
}

func (s *RefMapTestSuite) TestGet_MissingKey() {
	m := refmap.New(nil)
	_, err := m.Get("missing")
	s.Error(err)
	var kme *cerrors.KeyMissingError
	s.ErrorAs(err, &kme)
}

func (s *RefMapTestSuite) TestRoundTrip_RefTracksLiveWrites() {
	m1 := refmap.New(map[string]any{"reverse_text": "OLOY"})
	m2 := refmap.New(map[string]any{"text": m1.RefTo("reverse_text")})

	v, err := m2.Get("text")
	s.NoError(err)
	s.Equal("OLOY", v)

	m1.Set("reverse_text", "CBA")
	v, err = m2.Get("text")
	s.NoError(err)
	s.Equal("CBA", v)
}

func (s *RefMapTestSuite) TestSet_DestroysExistingRef() {
	m1 := refmap.New(map[string]any{"v": 1})
	m2 := refmap.New(map[string]any{"k": m1.RefTo("v")})

	s.Contains(m2.RefKeys(), "k")
	m2.Set("k", 2)
	s.NotContains(m2.RefKeys(), "k")

	v, err := m2.Get("k")
	s.NoError(err)
	s.Equal(2, v)
}

func (s *RefMapTestSuite) TestGet_TransitiveRefChain() {
	m1 := refmap.New(map[string]any{"a": "final"})
	m2 := refmap.New(map[string]any{"b": m1.RefTo("a")})
	m3 := refmap.New(map[string]any{"c": m2.RefTo("b")})

	v, err := m3.Get("c")
	s.NoError(err)
	s.Equal("final", v)
}

func (s *RefMapTestSuite) TestGet_CycleIsDiagnosable() {
	m1 := refmap.New(nil)
	m2 := refmap.New(nil)
	m1.Set("a", m2.RefTo("b"))
	m2.Set("b", m1.RefTo("a"))

	_, err := m1.Get("a")
	s.Error(err)
	var kme *cerrors.KeyMissingError
	s.ErrorAs(err, &kme)
	s.Equal("cycle", kme.Reason)
}

func (s *RefMapTestSuite) TestSnapshot_ResolvesRefs() {
	m1 := refmap.New(map[string]any{"out": "value"})
	m2 := refmap.New(map[string]any{"in": m1.RefTo("out")})

	snap := m2.Snapshot()
	s.Equal("value", snap["in"])
}

func (s *RefMapTestSuite) TestMerge_PreservesIdentity() {
	m1 := refmap.New(map[string]any{"a": 1})
	m2 := refmap.New(map[string]any{"linked": m1.RefTo("a")})

	m1.Merge(map[string]any{"a": 42})

	v, err := m2.Get("linked")
	s.NoError(err)
	s.Equal(42, v)
}

func (s *RefMapTestSuite) TestDeleteAndKeys() {
	m := refmap.New(map[string]any{"a": 1, "b": 2})
	s.Len(m.Keys(), 2)
	m.Delete("a")
	s.Len(m.Keys(), 1)
	s.False(m.Has("a"))
}
