package store

import (
	"context"
	"fmt"

	"github.com/roach88/qflow/internal/engine"
	"github.com/roach88/qflow/internal/ir"
)

// TemplateMismatchError is returned when a session is replayed against a
// template that differs from the one it was recorded with.
type TemplateMismatchError struct {
	SessionID string
	Stored    string
	Got       string
}

func (e *TemplateMismatchError) Error() string {
	return fmt.Sprintf("session %s was recorded with template hash %s, got %s",
		e.SessionID, e.Stored, e.Got)
}

// ReplayResult is a session rebuilt from the answer log.
type ReplayResult struct {
	Session  *engine.Session
	Snapshot engine.Snapshot
	Answers  int

	// Diverged is true when the rebuilt completion state differs from the
	// stored one. Date-relative rules evaluated on a different day are the
	// usual cause.
	Diverged bool
}

// Replay rebuilds a session by re-running every logged mutation, in seq
// order: answers through ProcessAnswer, group instance events through
// AddGroupInstance and RemoveGroupInstance.
//
// The rebuilt session keeps the stored id and hidden answer policy, and its
// clock is started so that the final version equals the stored version. opts
// are applied last and may override any of these.
func (s *Store) Replay(ctx context.Context, tpl *ir.Template, sessionID string, opts ...engine.SessionOption) (ReplayResult, error) {
	rec, err := s.ReadSession(ctx, sessionID)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay: %w", err)
	}

	hash, err := ir.TemplateHash(tpl)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay: %w", err)
	}
	if hash != rec.TemplateHash {
		return ReplayResult{}, &TemplateMismatchError{SessionID: sessionID, Stored: rec.TemplateHash, Got: hash}
	}

	policy, err := engine.ParseHiddenAnswerPolicy(rec.Policy)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay: %w", err)
	}

	answers, err := s.ReadAnswers(ctx, sessionID)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay: %w", err)
	}

	start := rec.Version - int64(len(answers))
	if start < 0 {
		start = 0
	}

	base := []engine.SessionOption{
		engine.WithSessionID(rec.ID),
		engine.WithHiddenAnswerPolicy(policy),
		engine.WithClock(engine.NewClockAt(start)),
	}
	sess := engine.NewSession(tpl, append(base, opts...)...)

	snap := sess.CurrentState()
	for _, ans := range answers {
		switch ans.Kind {
		case KindAddInstance:
			snap, err = sess.AddGroupInstance(ans.QuestionID)
		case KindRemoveInstance:
			snap, err = sess.RemoveGroupInstance(ans.QuestionID)
		case KindAnswer, "":
			snap, err = sess.ProcessAnswer(ans.QuestionID, ans.Value, ans.IsFinal)
		default:
			err = fmt.Errorf("unknown event kind %q", ans.Kind)
		}
		if err != nil {
			return ReplayResult{}, fmt.Errorf("replay seq %d: %w", ans.Seq, err)
		}
	}

	return ReplayResult{
		Session:  sess,
		Snapshot: snap,
		Answers:  len(answers),
		Diverged: snap.IsComplete != (rec.CompletedAt != nil),
	}, nil
}
