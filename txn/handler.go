// Package txn implements the two-phase-commit coordinator: a Handler
// contract any transactional participant can satisfy, an adapter from a
// pipeline to that contract, and the Manager that sequences a list of
// heterogeneous handlers through begin/execute/commit-or-rollback.
//
// Grounded on go.alis.build/atom/transaction.go's single-ledger
// Commit/Rollback shape for the retry and compensation mechanics, and on
// pysyphe's transactions.py for the Handler contract and the doomed-state
// detection in Manager.Begin, which atom has no equivalent of since it
// coordinates one ledger rather than several heterogeneous participants.
package txn

import (
	"context"
	"time"

	"go.alis.build/compose/pipeline"
	"go.alis.build/compose/stream"
)

// Handler is a participant in the 2PC protocol. Every operation must
// tolerate being called out of the order Begin, Execute, {Commit |
// Rollback} implies — in particular Rollback may be called even if Begin
// or Execute never ran.
type Handler interface {
	Begin(ctx context.Context) error
	Execute(ctx context.Context) error
	Rollback(ctx context.Context) error
	CanPrepareCommit() bool
	PrepareCommit(ctx context.Context) (bool, error)
	Commit(ctx context.Context) error
}

// RetryOptions configures the exponential-backoff retry Manager.Rollback
// applies to a RetryableHandler's Rollback call, mirroring the shape of
// go.alis.build/atom's retry options for compensations.
type RetryOptions struct {
	Attempts  int
	BaseSleep time.Duration
}

// RetryableHandler is a Handler whose Rollback should be retried on
// failure rather than treated as a one-shot call. Supplements spec.md,
// which is silent on retries, the way go.alis.build/atom augments the
// plain compensation model it shares with pysyphe.
type RetryableHandler interface {
	Handler
	RollbackRetryOptions() RetryOptions
}

// PipelineHandler adapts a *pipeline.ActionPipeline to Handler. A pipeline
// commits nothing of its own, so CanPrepareCommit and PrepareCommit are
// unconditionally true: the commit phase is vacuous and cannot fail.
type PipelineHandler struct {
	pipeline *pipeline.ActionPipeline
}

// NewPipelineHandler wraps p as a Handler.
func NewPipelineHandler(p *pipeline.ActionPipeline) *PipelineHandler {
	return &PipelineHandler{pipeline: p}
}

// PipelineName forwards the wrapped pipeline's name, read-only.
func (h *PipelineHandler) PipelineName() string { return h.pipeline.Name() }

// Begin is a no-op: a pipeline acquires nothing at begin time.
func (h *PipelineHandler) Begin(ctx context.Context) error { return nil }

// Execute runs the pipeline forward.
func (h *PipelineHandler) Execute(ctx context.Context) error { return h.pipeline.Execute() }

// Rollback runs the pipeline in reverse.
func (h *PipelineHandler) Rollback(ctx context.Context) error { return h.pipeline.Undo() }

// CanPrepareCommit always returns true.
func (h *PipelineHandler) CanPrepareCommit() bool { return true }

// PrepareCommit always succeeds.
func (h *PipelineHandler) PrepareCommit(ctx context.Context) (bool, error) { return true, nil }

// Commit is a no-op: a pipeline has nothing left to commit.
func (h *PipelineHandler) Commit(ctx context.Context) error { return nil }

// stamper forwards every event to sink with TransactionID overwritten,
// correlating every event raised by a handler within one Begin scope.
type stamper struct {
	sink stream.InfoStreamer
	txID string
}

func (s stamper) Receive(e stream.Event) {
	e.TransactionID = s.txID
	s.sink.Receive(e)
}
