package store

import (
	"time"

	"github.com/roach88/qflow/internal/ir"
)

// SessionRecord is a row of the sessions table.
type SessionRecord struct {
	ID            string     `json:"id"`
	TemplateID    string     `json:"template_id"`
	TemplateHash  string     `json:"template_hash"`
	EngineVersion string     `json:"engine_version"`
	IRVersion     string     `json:"ir_version"`
	Policy        string     `json:"policy"`
	Version       int64      `json:"version"`
	StartedAt     time.Time  `json:"started_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// EventKind tells logged answers apart from group instance changes.
type EventKind string

const (
	KindAnswer         EventKind = "answer"
	KindAddInstance    EventKind = "add_instance"
	KindRemoveInstance EventKind = "remove_instance"
)

// AnswerRecord is one logged session mutation, usually an answer.
// Seq is the snapshot version the mutation produced. For group instance
// events QuestionID holds the group id and Value is Null. An empty Kind is
// written as KindAnswer.
type AnswerRecord struct {
	SessionID  string    `json:"session_id"`
	Seq        int64     `json:"seq"`
	Kind       EventKind `json:"kind"`
	QuestionID string    `json:"question_id"`
	Value      ir.Value  `json:"value"`
	IsFinal    bool      `json:"is_final"`
	RecordedAt time.Time `json:"recorded_at"`
}
