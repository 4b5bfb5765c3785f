package cli

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qflow/internal/catalog"
	"github.com/roach88/qflow/internal/compiler"
	"github.com/roach88/qflow/internal/engine"
	"github.com/roach88/qflow/internal/ir"
	"github.com/roach88/qflow/internal/store"
	"github.com/roach88/qflow/internal/testutil"
)

type recordedAnswer struct {
	question string
	value    ir.Value
}

// recordSession writes one session with the given answers to the database
// at dbPath.
func recordSession(t *testing.T, dbPath string, tpl *ir.Template, id string, answers ...recordedAnswer) {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	clock := testutil.NewManualClock(testutil.DefaultEpoch)
	sess := engine.NewSession(tpl,
		engine.WithSessionID(id),
		engine.WithNow(clock.Now),
		engine.WithLogger(slog.New(slog.DiscardHandler)),
	)
	rec, err := store.NewRecorder(ctx, st, sess)
	require.NoError(t, err)

	for _, a := range answers {
		clock.Advance(time.Minute)
		_, err := rec.ProcessAnswer(ctx, a.question, a.value, true)
		require.NoError(t, err)
	}
}

func TestReplaySessionsFromFileTemplate(t *testing.T) {
	dir := t.TempDir()
	tplPath := writeFile(t, dir, "evlilik.yaml", marriageYAML)
	dbPath := filepath.Join(dir, "qflow.db")

	tpl, err := compiler.LoadFile(tplPath)
	require.NoError(t, err)
	recordSession(t, dbPath, tpl, "s-1",
		recordedAnswer{"evlilik_tarihi", ir.String("2020-05-10")},
		recordedAnswer{"cocuk_var_mi", ir.String("hayir")},
	)
	recordSession(t, dbPath, tpl, "s-2",
		recordedAnswer{"evlilik_tarihi", ir.String("2020-05-10")},
	)

	out, err := execute(NewReplayCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--template", tplPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Replay Summary: 2 session(s)")
	assert.Contains(t, out, "✓ s-1 (evlilik)")
	assert.Contains(t, out, "2 answer(s), version 2, 100%, complete")
	assert.Contains(t, out, "1 answer(s), version 1, 50%")
	assert.Contains(t, out, "✓ All sessions replayed consistently")
}

func TestReplaySingleSessionJSON(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "qflow.db")

	tpl, err := catalog.Get("anlasmali-bosanma")
	require.NoError(t, err)
	recordSession(t, dbPath, tpl, "s-1")
	recordSession(t, dbPath, tpl, "s-2")

	out, err := execute(NewReplayCommand(&RootOptions{Format: "json"}), "--db", dbPath, "s-2")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   ReplaySummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Sessions, 1)
	assert.Equal(t, "s-2", resp.Data.Sessions[0].SessionID)
	assert.Equal(t, "anlasmali-bosanma", resp.Data.Sessions[0].TemplateID)
	assert.Equal(t, 0, resp.Data.Sessions[0].Answers)
	assert.True(t, resp.Data.Consistent)
}

func TestReplayTemplateChanged(t *testing.T) {
	dir := t.TempDir()
	tplPath := writeFile(t, dir, "evlilik.yaml", marriageYAML)
	dbPath := filepath.Join(dir, "qflow.db")

	tpl, err := compiler.LoadFile(tplPath)
	require.NoError(t, err)
	recordSession(t, dbPath, tpl, "s-1", recordedAnswer{"evlilik_tarihi", ir.String("2020-05-10")})

	writeFile(t, dir, "evlilik.yaml", strings.Replace(marriageYAML, "Evlilik tarihi", "Nikah tarihi", 1))

	out, err := execute(NewReplayCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--template", tplPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ s-1 (evlilik)")
	assert.Contains(t, out, "template changed since the session was recorded")
	assert.Contains(t, out, "✗ Replay verification failed")
}

func TestReplayUnknownCatalogTemplate(t *testing.T) {
	dir := t.TempDir()
	tplPath := writeFile(t, dir, "evlilik.yaml", marriageYAML)
	dbPath := filepath.Join(dir, "qflow.db")

	tpl, err := compiler.LoadFile(tplPath)
	require.NoError(t, err)
	recordSession(t, dbPath, tpl, "s-1")

	// Without --template, "evlilik" is looked up in the catalog.
	out, err := execute(NewReplayCommand(&RootOptions{Format: "json"}), "--db", dbPath)
	require.Error(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   ReplaySummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Consistent)
	assert.Contains(t, resp.Data.Sessions[0].Error, "E005")
}

func TestReplayEmptyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "qflow.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := execute(NewReplayCommand(&RootOptions{Format: "text"}), "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions found in database.")
}

func TestReplayCommandErrors(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "qflow.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	tests := []struct {
		name string
		args []string
		code string
	}{
		{"missing database", []string{"--db", "/nonexistent/qflow.db"}, ErrCodeNotFound},
		{"unknown session", []string{"--db", dbPath, "yok"}, ErrCodeNotFound},
		{"bad today", []string{"--db", dbPath, "--today", "bugun"}, ErrCodeBadInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(NewReplayCommand(&RootOptions{Format: "text"}), tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.code)
		})
	}
}

func TestReplayRequiresDB(t *testing.T) {
	_, err := execute(NewReplayCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "db" not set`)
}
