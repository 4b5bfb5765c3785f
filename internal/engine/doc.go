// Package engine implements the qflow questionnaire engine.
//
// The engine decides, after each answer submission, which questions of a
// template are visible and required and whether the questionnaire is
// complete. It performs no I/O: persistence, transport and rendering are
// collaborators that call in and consume Snapshots.
//
// Layers, leaves first:
//
//   - Evaluator: one rule against the answer set, a pure boolean with a
//     mismatch diagnostic. Step rules and question rules share it.
//   - Resolve: the full visible/required sets for (template, answers),
//     recomputed from scratch on every call, emitted in declaration order.
//   - Session: owns one answer set, applies submissions, re-resolves and
//     hands out immutable Snapshots.
//   - Progress: derived completion figures over a resolution.
//
// Combination policy: when several rules of one owner match, hide wins over
// show and require wins over optional. A question that is not visible is
// never required. A hidden step suppresses its questions without evaluating
// their rules.
//
// Answers of questions that become hidden are retained by default so that
// toggling a condition back restores them. WithHiddenAnswerPolicy(ClearHidden)
// drops them instead.
//
// A Session is single-writer and not safe for concurrent use; surfaces that
// share one must serialise access and may use Snapshot.Version for
// optimistic concurrency.
package engine
