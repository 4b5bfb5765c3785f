package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// IsNotFound reports whether err means the requested session does not exist.
// Read methods wrap sql.ErrNoRows for missing rows.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

const sessionColumns = `id, template_id, template_hash, engine_version, ir_version, policy,
	version, started_at, updated_at, completed_at`

// ReadSession retrieves a single session by id.
// Returns an error wrapping sql.ErrNoRows if not found.
func (s *Store) ReadSession(ctx context.Context, id string) (SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE id = ?
	`, id)

	rec, err := scanSession(row)
	if err != nil {
		return SessionRecord{}, fmt.Errorf("read session %q: %w", id, err)
	}
	return rec, nil
}

// ListSessions returns sessions ordered by id. UUIDv7 ids sort by creation
// time, so this is also oldest first. An empty templateID lists every session.
//
// Returns an empty slice (not nil) when there are none.
func (s *Store) ListSessions(ctx context.Context, templateID string) ([]SessionRecord, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	var args []any
	if templateID != "" {
		query += ` WHERE template_id = ?`
		args = append(args, templateID)
	}
	query += ` ORDER BY id COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []SessionRecord{}
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadAnswers returns a session's logged mutations in seq order.
//
// Returns an empty slice (not nil) if the session has no answers.
func (s *Store) ReadAnswers(ctx context.Context, sessionID string) ([]AnswerRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, seq, kind, question_id, value, is_final, recorded_at
		FROM answers
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	answers := []AnswerRecord{}
	for rows.Next() {
		var (
			rec        AnswerRecord
			kind       string
			valueJSON  string
			isFinal    int
			recordedAt string
		)
		if err := rows.Scan(&rec.SessionID, &rec.Seq, &kind, &rec.QuestionID, &valueJSON, &isFinal, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		rec.Kind = EventKind(kind)
		if rec.Value, err = unmarshalValue(valueJSON); err != nil {
			return nil, fmt.Errorf("answer seq %d: %w", rec.Seq, err)
		}
		if rec.RecordedAt, err = parseTime(recordedAt); err != nil {
			return nil, fmt.Errorf("answer seq %d: %w", rec.Seq, err)
		}
		rec.IsFinal = isFinal != 0
		answers = append(answers, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answers: %w", err)
	}
	return answers, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (SessionRecord, error) {
	var (
		rec                  SessionRecord
		startedAt, updatedAt string
		completedAt          sql.NullString
	)
	err := row.Scan(
		&rec.ID,
		&rec.TemplateID,
		&rec.TemplateHash,
		&rec.EngineVersion,
		&rec.IRVersion,
		&rec.Policy,
		&rec.Version,
		&startedAt,
		&updatedAt,
		&completedAt,
	)
	if err != nil {
		return SessionRecord{}, fmt.Errorf("scan session: %w", err)
	}

	if rec.StartedAt, err = parseTime(startedAt); err != nil {
		return SessionRecord{}, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return SessionRecord{}, err
	}
	if rec.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return SessionRecord{}, err
	}
	return rec, nil
}

// requireRow turns an UPDATE that matched nothing into a not-found error.
func requireRow(res sql.Result, op, sessionID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %q: %w", op, sessionID, sql.ErrNoRows)
	}
	return nil
}
