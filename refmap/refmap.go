// Package refmap implements ReferenceMap: a string-keyed map whose values
// may be lazy references into another ReferenceMap, resolved at read time.
// It is the state container bound to a prepared caction.StatefulAction, and
// the mechanism by which one action's output becomes another's input
// without copying at wiring time.
//
// The backing store is go.alis.build/utils/maps.OrderedMap, which already
// gives the order-preserving, concurrency-safe key/value semantics this
// package needs; refmap adds the Ref indirection and cycle-bounded
// resolution on top of it.
package refmap

import (
	"go.alis.build/utils/maps"

	"go.alis.build/compose/cerrors"
)

// defaultMaxRefDepth bounds how many hops Get will follow through a chain
// of References before concluding the chain is cyclic. 64 comfortably
// exceeds any legitimate wiring depth between prepared actions in a single
// pipeline; see Map.SetMaxRefDepth to raise it for unusually deep graphs.
const defaultMaxRefDepth = 64

// Ref is a lazy, late-bound pointer at another Map's key. Storing a Ref as
// a value makes the key it's stored under track whatever the referent
// holds at read time, including across multiple writes to the referent.
type Ref struct {
	target *Map
	key    string
}

// Map is a ReferenceMap: an ordered string-keyed map whose values may be
// References to another Map's key.
type Map struct {
	store       *maps.OrderedMap[string, any]
	maxRefDepth int
}

// New builds a Map pre-populated from initial. Values in initial may
// themselves be Ref values, wiring this Map to others right away.
func New(initial map[string]any) *Map {
	m := &Map{
		store:       maps.NewOrderedMap[string, any](),
		maxRefDepth: defaultMaxRefDepth,
	}
	for k, v := range initial {
		m.store.Set(k, v)
	}
	return m
}

// SetMaxRefDepth overrides the cycle-detection bound used by Get. Panics if
// depth is not positive.
func (m *Map) SetMaxRefDepth(depth int) {
	if depth <= 0 {
		panic("refmap: max ref depth must be positive")
	}
	m.maxRefDepth = depth
}

// RefTo returns a Ref pointing at key in m. The key need not exist yet:
// the miss is only surfaced when the Ref is eventually dereferenced.
func (m *Map) RefTo(key string) Ref {
	return Ref{target: m, key: key}
}

// Set stores value under key, overwriting and so destroying any Ref
// previously stored there.
func (m *Map) Set(key string, value any) {
	m.store.Set(key, value)
}

// Has reports whether key has a stored entry, without following a Ref.
func (m *Map) Has(key string) bool {
	_, ok := m.store.Get(key)
	return ok
}

// Get resolves key, following a chain of References (if any) to the
// terminal concrete value. Returns a *cerrors.KeyMissingError if key (or
// any key in a followed chain) is absent, or if the chain is longer than
// the configured max ref depth.
func (m *Map) Get(key string) (any, error) {
	return m.resolve(key, 0)
}

func (m *Map) resolve(key string, depth int) (any, error) {
	v, ok := m.store.Get(key)
	if !ok {
		return nil, cerrors.NewKeyMissingError(key, "")
	}
	ref, isRef := v.(Ref)
	if !isRef {
		return v, nil
	}
	if depth >= m.maxRefDepth {
		return nil, cerrors.NewKeyMissingError(key, "cycle")
	}
	return ref.target.resolve(ref.key, depth+1)
}

// Delete removes key (and, if it held one, the Ref stored there).
func (m *Map) Delete(key string) {
	m.store.Delete(key)
}

// Keys returns the stored keys in insertion order. A key that holds an
// unresolved (or unresolvable) Ref is still included.
func (m *Map) Keys() []string {
	return m.store.Keys()
}

// Len returns the number of stored entries.
func (m *Map) Len() int {
	return m.store.Len()
}

// RefKeys returns the subset of Keys whose current value is a Ref.
func (m *Map) RefKeys() []string {
	var refs []string
	m.store.Range(func(_ int, key string, value any) bool {
		if _, isRef := value.(Ref); isRef {
			refs = append(refs, key)
		}
		return true
	})
	return refs
}

// Snapshot returns a shallow copy of the map's entries, with any Ref
// resolved to its current concrete value where possible. A Ref that fails
// to resolve (missing key or cycle) is recorded as the error itself so
// that a streamer event carrying a snapshot never panics or drops keys.
func (m *Map) Snapshot() map[string]any {
	out := make(map[string]any, m.Len())
	m.store.Range(func(_ int, key string, value any) bool {
		if ref, isRef := value.(Ref); isRef {
			resolved, err := ref.target.resolve(ref.key, 1)
			if err != nil {
				out[key] = err
			} else {
				out[key] = resolved
			}
			return true
		}
		out[key] = value
		return true
	})
	return out
}

// Merge writes every entry of after into m in place, preserving m's
// identity so that other Maps holding a Ref into m keep observing it.
// Used by caction.StatefulAction.Simulate to advance state without
// invoking the action's callable.
func (m *Map) Merge(after map[string]any) {
	for k, v := range after {
		m.store.Set(k, v)
	}
}
