package store

import (
	"context"
	"database/sql"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qflow/internal/engine"
	"github.com/roach88/qflow/internal/ir"
	"github.com/roach88/qflow/internal/testutil"
)

// childTemplate asks for one name per child, one to three children.
func childTemplate() *ir.Template {
	return &ir.Template{
		ID: "cocuklar",
		Steps: []ir.Step{{
			ID:             "cocuklar",
			DefaultVisible: true,
			Groups: []ir.Group{{
				ID:             "cocuk",
				MinInstances:   1,
				MaxInstances:   3,
				DefaultVisible: true,
				Questions: []ir.Question{
					{ID: "cocuk_ad", Type: ir.InputText, DefaultVisible: true, DefaultRequired: true},
				},
			}},
		}},
	}
}

func newChildSession() *engine.Session {
	return engine.NewSession(childTemplate(),
		engine.WithSessionID("s-g"),
		engine.WithNow(testutil.NewManualClock(t0).Now),
		engine.WithLogger(slog.New(slog.DiscardHandler)),
	)
}

// recordGroupFlow answers, grows and shrinks the child group, leaving two
// instances with the second unanswered.
func recordGroupFlow(t *testing.T, s *Store) engine.Snapshot {
	t.Helper()
	ctx := context.Background()

	rec, err := NewRecorder(ctx, s, newChildSession())
	require.NoError(t, err)

	_, err = rec.ProcessAnswer(ctx, "cocuk_ad_1", ir.String("Ali"), true)
	require.NoError(t, err)
	_, err = rec.AddGroupInstance(ctx, "cocuk")
	require.NoError(t, err)
	_, err = rec.ProcessAnswer(ctx, "cocuk_ad_2", ir.String("Ayla"), true)
	require.NoError(t, err)
	_, err = rec.RemoveGroupInstance(ctx, "cocuk")
	require.NoError(t, err)
	snap, err := rec.AddGroupInstance(ctx, "cocuk")
	require.NoError(t, err)
	return snap
}

func TestRecorder_LogsGroupEvents(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	live := recordGroupFlow(t, s)
	require.Equal(t, int64(5), live.Version)
	require.False(t, live.IsComplete)

	answers, err := s.ReadAnswers(ctx, "s-g")
	require.NoError(t, err)
	require.Len(t, answers, 5)

	kinds := make([]EventKind, len(answers))
	ids := make([]string, len(answers))
	for i, ans := range answers {
		kinds[i] = ans.Kind
		ids[i] = ans.QuestionID
	}
	assert.Equal(t, []EventKind{KindAnswer, KindAddInstance, KindAnswer, KindRemoveInstance, KindAddInstance}, kinds)
	assert.Equal(t, []string{"cocuk_ad_1", "cocuk", "cocuk_ad_2", "cocuk", "cocuk"}, ids)
	assert.Equal(t, ir.Null{}, answers[1].Value)

	stored, err := s.ReadSession(ctx, "s-g")
	require.NoError(t, err)
	assert.Equal(t, int64(5), stored.Version)
	assert.Nil(t, stored.CompletedAt, "the new instance reopened the session")
}

func TestRecorder_GroupLimitNotLogged(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec, err := NewRecorder(ctx, s, newChildSession())
	require.NoError(t, err)

	_, err = rec.RemoveGroupInstance(ctx, "cocuk")
	assert.True(t, engine.IsGroupLimit(err))
	_, err = rec.AddGroupInstance(ctx, "yok")
	assert.True(t, engine.IsUnknownGroup(err))

	answers, err := s.ReadAnswers(ctx, "s-g")
	require.NoError(t, err)
	assert.Empty(t, answers)
}

func TestReplay_RebuildsGroupInstances(t *testing.T) {
	s := createTestStore(t)
	live := recordGroupFlow(t, s)

	got, err := s.Replay(context.Background(), childTemplate(), "s-g",
		engine.WithNow(testutil.NewManualClock(t0).Now),
		engine.WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)

	assert.Equal(t, 5, got.Answers)
	assert.False(t, got.Diverged)
	assert.Equal(t, live.Version, got.Snapshot.Version)
	assert.Equal(t, map[string]int{"cocuk": 2}, got.Snapshot.GroupInstances)
	assert.Equal(t, live.AnswersHash, got.Snapshot.AnswersHash)
	assert.Equal(t, live.RequiredQuestions, got.Snapshot.RequiredQuestions)
	_, ok := got.Snapshot.Answers.Get("cocuklar", "cocuk_ad_2")
	assert.False(t, ok, "removal dropped the answer before the instance came back")
}

func TestReplay_UnknownEventKind(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	tpl := childTemplate()

	rec := SessionRecord{
		ID:            "s-x",
		TemplateID:    tpl.ID,
		TemplateHash:  ir.MustTemplateHash(tpl),
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.SchemaVersion,
		StartedAt:     t0,
		UpdatedAt:     t0,
	}
	require.NoError(t, s.CreateSession(ctx, rec))
	require.NoError(t, s.AppendAnswer(ctx, AnswerRecord{
		SessionID: "s-x", Seq: 1, Kind: "rename_group", QuestionID: "cocuk", RecordedAt: t0,
	}))

	_, err := s.Replay(ctx, tpl, "s-x", engine.WithLogger(slog.New(slog.DiscardHandler)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown event kind "rename_group"`)
}

func TestOpen_MigratesVersionOneDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v1.db")

	// Lay down a database as the first release left it: original tables,
	// the template index and user_version 1.
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(schemaSQL)
	require.NoError(t, err)
	_, err = db.Exec(migrations[0].stmt)
	require.NoError(t, err)
	_, err = db.Exec("PRAGMA user_version = 1")
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO sessions
		(id, template_id, template_hash, engine_version, ir_version, started_at, updated_at)
		VALUES ('s-old', 'velayet', 'h', 'e', 'i', ?, ?)`, formatTime(t0), formatTime(t0))
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO answers
		(session_id, seq, question_id, value, is_final, recorded_at)
		VALUES ('s-old', 1, 'cocuk_var_mi', ?, 1, ?)`, mustMarshal(t, ir.Bool(true)), formatTime(t0))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.verifyPragma("user_version", "2"))
	answers, err := s.ReadAnswers(context.Background(), "s-old")
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.Equal(t, KindAnswer, answers[0].Kind, "rows logged before groups read as answers")
	assert.Equal(t, ir.Bool(true), answers[0].Value)
}

func mustMarshal(t *testing.T, v ir.Value) string {
	t.Helper()
	data, err := marshalValue(v)
	require.NoError(t, err)
	return data
}
