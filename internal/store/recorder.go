package store

import (
	"context"
	"fmt"

	"github.com/roach88/qflow/internal/engine"
	"github.com/roach88/qflow/internal/ir"
)

// Recorder persists every submission made through it.
//
// The session is mutated first and the log written second; if the write
// fails the in-memory session is ahead of the log and the error says so.
// Like engine.Session, a Recorder is single-writer.
type Recorder struct {
	store    *Store
	session  *engine.Session
	complete bool
}

// NewRecorder registers sess in the store and returns a recorder for it.
// Registering an already stored session is a no-op, so a replayed session
// can be wrapped again.
func NewRecorder(ctx context.Context, st *Store, sess *engine.Session) (*Recorder, error) {
	hash, err := ir.TemplateHash(sess.Template())
	if err != nil {
		return nil, fmt.Errorf("new recorder: %w", err)
	}

	snap := sess.CurrentState()
	err = st.CreateSession(ctx, SessionRecord{
		ID:            snap.SessionID,
		TemplateID:    snap.TemplateID,
		TemplateHash:  hash,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.SchemaVersion,
		Policy:        sess.Policy().String(),
		Version:       snap.Version,
		StartedAt:     snap.StartedAt,
		UpdatedAt:     snap.UpdatedAt,
		CompletedAt:   snap.CompletedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("new recorder: %w", err)
	}

	return &Recorder{store: st, session: sess, complete: snap.IsComplete}, nil
}

// Session returns the recorded session.
func (r *Recorder) Session() *engine.Session {
	return r.session
}

// ProcessAnswer forwards to the session and logs the submission.
// Unknown questions are rejected by the session and never logged.
func (r *Recorder) ProcessAnswer(ctx context.Context, questionID string, value ir.Value, isFinal bool) (engine.Snapshot, error) {
	snap, err := r.session.ProcessAnswer(questionID, value, isFinal)
	if err != nil {
		return snap, err
	}
	if value == nil {
		value = ir.Null{}
	}
	return snap, r.record(ctx, snap, KindAnswer, questionID, value, isFinal)
}

// AddGroupInstance forwards to the session and logs the new instance.
func (r *Recorder) AddGroupInstance(ctx context.Context, groupID string) (engine.Snapshot, error) {
	snap, err := r.session.AddGroupInstance(groupID)
	if err != nil {
		return snap, err
	}
	return snap, r.record(ctx, snap, KindAddInstance, groupID, ir.Null{}, true)
}

// RemoveGroupInstance forwards to the session and logs the removal.
func (r *Recorder) RemoveGroupInstance(ctx context.Context, groupID string) (engine.Snapshot, error) {
	snap, err := r.session.RemoveGroupInstance(groupID)
	if err != nil {
		return snap, err
	}
	return snap, r.record(ctx, snap, KindRemoveInstance, groupID, ir.Null{}, true)
}

// record appends one log entry for snap and keeps the stored completion
// state in step with it.
func (r *Recorder) record(ctx context.Context, snap engine.Snapshot, kind EventKind, id string, value ir.Value, isFinal bool) error {
	err := r.store.AppendAnswer(ctx, AnswerRecord{
		SessionID:  snap.SessionID,
		Seq:        snap.Version,
		Kind:       kind,
		QuestionID: id,
		Value:      value,
		IsFinal:    isFinal,
		RecordedAt: snap.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("record %s %q: %w", kind, id, err)
	}

	if snap.IsComplete != r.complete {
		if err := r.store.MarkCompleted(ctx, snap.SessionID, snap.CompletedAt); err != nil {
			return fmt.Errorf("record completion: %w", err)
		}
		r.complete = snap.IsComplete
	}
	return nil
}

// Reset resets the session and truncates its log.
func (r *Recorder) Reset(ctx context.Context) (engine.Snapshot, error) {
	snap := r.session.Reset()
	r.complete = false
	if err := r.store.ResetSession(ctx, snap.SessionID, snap.Version, snap.StartedAt); err != nil {
		return snap, fmt.Errorf("record reset: %w", err)
	}
	return snap, nil
}
