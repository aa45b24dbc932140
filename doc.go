// Package compose provides reversible, stateful actions, pipelines that
// sequence them, and a two-phase-commit manager that coordinates pipelines
// alongside other transactional participants.
//
// See the refmap, caction, pipeline, txn, stream and cerrors packages for
// the actual types; this package exists only to give the module a root
// doc comment.
package compose
