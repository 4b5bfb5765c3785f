package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/qflow/internal/ir"
)

// CreateSession inserts a session record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - creating the same session
// twice is silently ignored.
func (s *Store) CreateSession(ctx context.Context, rec SessionRecord) error {
	policy := rec.Policy
	if policy == "" {
		policy = "retain"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions
		(id, template_id, template_hash, engine_version, ir_version, policy, version, started_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.TemplateID,
		rec.TemplateHash,
		rec.EngineVersion,
		rec.IRVersion,
		policy,
		rec.Version,
		formatTime(rec.StartedAt),
		formatTime(rec.UpdatedAt),
		formatNullTime(rec.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// AppendAnswer logs a submission and advances the session's version and
// updated_at in one transaction.
//
// Uses ON CONFLICT(session_id, seq) DO NOTHING: re-appending the same seq is
// a no-op. The session row must exist (foreign key constraint).
func (s *Store) AppendAnswer(ctx context.Context, ans AnswerRecord) error {
	value := ans.Value
	if value == nil {
		value = ir.Null{}
	}
	valueJSON, err := marshalValue(value)
	if err != nil {
		return fmt.Errorf("append answer: %w", err)
	}
	kind := ans.Kind
	if kind == "" {
		kind = KindAnswer
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append answer: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO answers
		(session_id, seq, kind, question_id, value, is_final, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`,
		ans.SessionID,
		ans.Seq,
		string(kind),
		ans.QuestionID,
		valueJSON,
		boolToInt(ans.IsFinal),
		formatTime(ans.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("append answer: insert: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sessions
		SET version = MAX(version, ?), updated_at = ?
		WHERE id = ?
	`, ans.Seq, formatTime(ans.RecordedAt), ans.SessionID)
	if err != nil {
		return fmt.Errorf("append answer: update session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append answer: commit: %w", err)
	}
	return nil
}

// MarkCompleted sets the session's completion time, or clears it when at is
// nil (a later answer reopened the questionnaire).
func (s *Store) MarkCompleted(ctx context.Context, sessionID string, at *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET completed_at = ? WHERE id = ?
	`, formatNullTime(at), sessionID)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return requireRow(res, "mark completed", sessionID)
}

// ResetSession deletes a session's answers and records the reset version.
func (s *Store) ResetSession(ctx context.Context, sessionID string, version int64, startedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("reset session: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM answers WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("reset session: delete answers: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE sessions
		SET version = ?, started_at = ?, updated_at = ?, completed_at = NULL
		WHERE id = ?
	`, version, formatTime(startedAt), formatTime(startedAt), sessionID)
	if err != nil {
		return fmt.Errorf("reset session: update session: %w", err)
	}
	if err := requireRow(res, "reset session", sessionID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("reset session: commit: %w", err)
	}
	return nil
}
