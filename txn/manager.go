package txn

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"go.alis.build/compose/cerrors"
	"go.alis.build/compose/stream"
	"go.alis.build/utils/retry"
)

// TraceRecord pairs an error with its formatted trace, in the order it was
// encountered, mirroring pysyphe's exceptions_encountered list of
// (exception, formatted_trace) pairs.
type TraceRecord struct {
	Err   error
	Trace string
}

// Manager is the 2PC coordinator: an ordered list of handlers plus an
// optional mutex handler bracketing all of them, driven through one Begin
// scope at a time.
type Manager struct {
	handlers []Handler
	mutex    Handler

	streamer stream.InfoStreamer

	begun             bool
	alreadyRolledBack bool
	exceptions        []TraceRecord
	txID              string
}

// NewManager builds an empty Manager. A nil streamer is treated as
// stream.DiscardStreamer{}; when set, it receives every event any
// PipelineHandler's pipeline emits during a Begin scope, with
// TransactionID stamped to the scope's correlation id.
func NewManager(streamer stream.InfoStreamer) *Manager {
	if streamer == nil {
		streamer = stream.DiscardStreamer{}
	}
	return &Manager{streamer: streamer}
}

// Add registers a handler. Fails with cerrors.ErrAlreadyBegun once a Begin
// scope is active.
func (m *Manager) Add(h Handler) error {
	if m.begun {
		return cerrors.ErrAlreadyBegun
	}
	m.handlers = append(m.handlers, h)
	return nil
}

// SetMutex registers the bracket handler, invoked first on Begin and last
// on Commit/Rollback. Fails with cerrors.ErrAlreadyBegun once a Begin
// scope is active.
func (m *Manager) SetMutex(h Handler) error {
	if m.begun {
		return cerrors.ErrAlreadyBegun
	}
	m.mutex = h
	return nil
}

// ExceptionsEncountered returns a copy of every error recorded across the
// most recent Begin scope (and any prior scope's rollback failures that
// predate a successful reset).
func (m *Manager) ExceptionsEncountered() []TraceRecord {
	cp := make([]TraceRecord, len(m.exceptions))
	copy(cp, m.exceptions)
	return cp
}

func (m *Manager) traceStrings() []string {
	out := make([]string, len(m.exceptions))
	for i, t := range m.exceptions {
		out[i] = t.Trace
	}
	return out
}

func (m *Manager) record(err error) {
	m.exceptions = append(m.exceptions, TraceRecord{Err: err, Trace: fmt.Sprintf("%+v", err)})
}

// Begin starts a transaction scope: resets bookkeeping, stamps a fresh
// correlation id, and calls Begin on the mutex handler (if any) then every
// handler in append order. It returns an end function the caller must
// defer, passing the address of its own named error return — mirroring
// the dynamic extent of Python's `with manager.begin():` in a language
// without context managers.
//
// end's contract: it always closes the scope. If *bodyErr is nil, it does
// nothing more. Otherwise it
// records the error; if a rollback had already run in this scope, it
// replaces *bodyErr with a *cerrors.DoomedError; otherwise it attempts
// Rollback — on success *bodyErr is left as the original error (to
// propagate to the caller), on failure *bodyErr becomes a
// *cerrors.DoomedError carrying both traces.
func (m *Manager) Begin(ctx context.Context) (end func(*error), err error) {
	if m.begun {
		return nil, cerrors.ErrAlreadyBegun
	}
	m.alreadyRolledBack = false
	m.exceptions = nil
	m.txID = uuid.NewString()
	m.begun = true

	m.stampPipelineStreamers()

	if m.mutex != nil {
		if err := m.mutex.Begin(ctx); err != nil {
			m.begun = false
			return nil, err
		}
	}
	for _, h := range m.handlers {
		if err := h.Begin(ctx); err != nil {
			m.begun = false
			return nil, err
		}
	}

	return func(bodyErr *error) {
		// The scope Begin opened closes here on every path, success or
		// failure, so a later Begin call is never rejected by the
		// already-begun guard above.
		defer func() { m.begun = false }()

		if bodyErr == nil || *bodyErr == nil {
			return
		}
		m.record(*bodyErr)

		if m.alreadyRolledBack {
			*bodyErr = cerrors.NewDoomedError("transactions already rollbacked", m.traceStrings())
			return
		}
		if rbErr := m.Rollback(ctx); rbErr != nil {
			// Rollback already appended rbErr (and every other handler
			// failure) to m.exceptions via its own loop; recording it
			// again here would duplicate the trace.
			*bodyErr = cerrors.NewDoomedError("transactions rollbacking failed", m.traceStrings())
		}
	}, nil
}

func (m *Manager) stampPipelineStreamers() {
	for _, h := range m.handlers {
		if ph, ok := h.(*PipelineHandler); ok {
			_ = ph.pipeline.SetStreamer(stamper{sink: m.streamer, txID: m.txID})
		}
	}
}

// Execute calls Execute on every handler in append order. Fails with
// cerrors.ErrNotBegun outside of a Begin scope.
func (m *Manager) Execute(ctx context.Context) error {
	if !m.begun {
		return cerrors.ErrNotBegun
	}
	for _, h := range m.handlers {
		if err := h.Execute(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Rollback calls Rollback on every handler in append order, swallowing
// each failure into ExceptionsEncountered and continuing regardless, then
// rolls back the mutex handler last. Returns the most recently encountered
// error, if any. Fails outright with cerrors.ErrNotBegun outside of a
// Begin scope.
func (m *Manager) Rollback(ctx context.Context) error {
	if !m.begun {
		return cerrors.ErrNotBegun
	}
	m.alreadyRolledBack = true

	var lastErr error
	for _, h := range m.handlers {
		if err := m.rollbackHandler(ctx, h); err != nil {
			m.record(err)
			lastErr = err
		}
	}
	if m.mutex != nil {
		if err := m.mutex.Rollback(ctx); err != nil {
			m.record(err)
			lastErr = err
		}
	}
	return lastErr
}

func (m *Manager) rollbackHandler(ctx context.Context, h Handler) error {
	rh, ok := h.(RetryableHandler)
	if !ok {
		return h.Rollback(ctx)
	}
	opts := rh.RollbackRetryOptions()
	if opts.Attempts <= 1 {
		return h.Rollback(ctx)
	}
	_, err := retry.Retry(opts.Attempts, opts.BaseSleep, func() (struct{}, error) {
		return struct{}{}, h.Rollback(ctx)
	})
	return err
}

// Commit runs the 2PC commit sequence: partition handlers into preparable
// and unpreparable, prepare the preparable ones (a false readiness aborts
// into Rollback instead of erroring), commit the unpreparable handlers
// first, then the preparable ones, then the mutex handler last. Fails
// with cerrors.ErrNotBegun outside of a Begin scope.
func (m *Manager) Commit(ctx context.Context) error {
	if !m.begun {
		return cerrors.ErrNotBegun
	}

	var preparable, unpreparable []Handler
	for _, h := range m.handlers {
		if h.CanPrepareCommit() {
			preparable = append(preparable, h)
		} else {
			unpreparable = append(unpreparable, h)
		}
	}

	for _, h := range preparable {
		ready, err := h.PrepareCommit(ctx)
		if err != nil {
			return err
		}
		if !ready {
			return m.Rollback(ctx)
		}
	}

	for _, h := range unpreparable {
		if err := h.Commit(ctx); err != nil {
			return err
		}
	}
	for _, h := range preparable {
		if err := h.Commit(ctx); err != nil {
			return err
		}
	}
	if m.mutex != nil {
		if err := m.mutex.Commit(ctx); err != nil {
			return err
		}
	}
	return nil
}
