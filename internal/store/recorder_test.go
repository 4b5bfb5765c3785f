package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qflow/internal/engine"
	"github.com/roach88/qflow/internal/ir"
	"github.com/roach88/qflow/internal/testutil"
)

func TestRecorder_RegistersSession(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	clock := testutil.NewManualClock(t0)

	rec, err := NewRecorder(ctx, s, newTestSession(t, clock, engine.WithHiddenAnswerPolicy(engine.ClearHidden)))
	require.NoError(t, err)
	assert.Equal(t, "s-1", rec.Session().ID())

	stored, err := s.ReadSession(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "velayet", stored.TemplateID)
	assert.Equal(t, ir.MustTemplateHash(testTemplate()), stored.TemplateHash)
	assert.Equal(t, "clear", stored.Policy)
	assert.Equal(t, ir.EngineVersion, stored.EngineVersion)
	assert.Equal(t, int64(0), stored.Version)
	assert.Equal(t, t0, stored.StartedAt)
}

func TestRecorder_LogsAnswersAndCompletion(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	clock := testutil.NewManualClock(t0)

	rec, err := NewRecorder(ctx, s, newTestSession(t, clock))
	require.NoError(t, err)

	clock.Advance(time.Minute)
	snap, err := rec.ProcessAnswer(ctx, "cocuk_var_mi", ir.Bool(false), true)
	require.NoError(t, err)
	require.True(t, snap.IsComplete)

	stored, err := s.ReadSession(ctx, "s-1")
	require.NoError(t, err)
	require.NotNil(t, stored.CompletedAt)
	assert.Equal(t, t0.Add(time.Minute), *stored.CompletedAt)
	assert.Equal(t, int64(1), stored.Version)

	clock.Advance(time.Minute)
	snap, err = rec.ProcessAnswer(ctx, "cocuk_var_mi", ir.Bool(true), true)
	require.NoError(t, err)
	require.False(t, snap.IsComplete, "the revealed date is required")

	stored, err = s.ReadSession(ctx, "s-1")
	require.NoError(t, err)
	assert.Nil(t, stored.CompletedAt)

	answers, err := s.ReadAnswers(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, answers, 2)
	assert.Equal(t, int64(1), answers[0].Seq)
	assert.Equal(t, int64(2), answers[1].Seq)
	assert.Equal(t, t0.Add(2*time.Minute), answers[1].RecordedAt)
}

func TestRecorder_UnknownQuestionNotLogged(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec, err := NewRecorder(ctx, s, newTestSession(t, testutil.NewManualClock(t0)))
	require.NoError(t, err)

	_, err = rec.ProcessAnswer(ctx, "yok", ir.String("x"), false)
	require.Error(t, err)
	assert.True(t, engine.IsUnknownQuestion(err))

	answers, err := s.ReadAnswers(ctx, "s-1")
	require.NoError(t, err)
	assert.Empty(t, answers)
}

func TestRecorder_NilValueLoggedAsNull(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec, err := NewRecorder(ctx, s, newTestSession(t, testutil.NewManualClock(t0)))
	require.NoError(t, err)

	_, err = rec.ProcessAnswer(ctx, "cocuk_var_mi", nil, false)
	require.NoError(t, err)

	answers, err := s.ReadAnswers(ctx, "s-1")
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.Equal(t, ir.Null{}, answers[0].Value)
}

func TestRecorder_Reset(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	clock := testutil.NewManualClock(t0)

	rec, err := NewRecorder(ctx, s, newTestSession(t, clock))
	require.NoError(t, err)
	_, err = rec.ProcessAnswer(ctx, "cocuk_var_mi", ir.Bool(false), true)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	snap, err := rec.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Version)

	stored, err := s.ReadSession(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
	assert.Nil(t, stored.CompletedAt)
	assert.Equal(t, t0.Add(time.Hour), stored.StartedAt)

	answers, err := s.ReadAnswers(ctx, "s-1")
	require.NoError(t, err)
	assert.Empty(t, answers)
}
