package store

import (
	"log/slog"
	"testing"
	"time"

	"github.com/roach88/qflow/internal/engine"
	"github.com/roach88/qflow/internal/ir"
	"github.com/roach88/qflow/internal/testutil"
)

// createTestStore creates a new in-memory store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testTemplate has one gate question revealing a required follow-up.
func testTemplate() *ir.Template {
	return &ir.Template{
		ID:   "velayet",
		Name: "Velayet",
		Steps: []ir.Step{{
			ID:             "cocuk",
			DefaultVisible: true,
			Questions: []ir.Question{
				{ID: "cocuk_var_mi", Type: ir.InputCheckbox, DefaultVisible: true, DefaultRequired: true},
				{ID: "dogum_tarihi", Type: ir.InputDate, Rules: []ir.Rule{
					{Trigger: "cocuk_var_mi", Operator: ir.OpEquals, Value: ir.Bool(true), Effect: ir.EffectShow},
					{Trigger: "cocuk_var_mi", Operator: ir.OpEquals, Value: ir.Bool(true), Effect: ir.EffectRequire},
				}},
			},
		}},
	}
}

func newTestSession(t *testing.T, clock *testutil.ManualClock, opts ...engine.SessionOption) *engine.Session {
	t.Helper()
	base := []engine.SessionOption{
		engine.WithIDGenerator(testutil.NewFixedIDGenerator("s-1")),
		engine.WithNow(clock.Now),
		engine.WithLogger(slog.New(slog.DiscardHandler)),
	}
	return engine.NewSession(testTemplate(), append(base, opts...)...)
}

func testSessionRecord(id string, started time.Time) SessionRecord {
	return SessionRecord{
		ID:            id,
		TemplateID:    "velayet",
		TemplateHash:  ir.MustTemplateHash(testTemplate()),
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.SchemaVersion,
		StartedAt:     started,
		UpdatedAt:     started,
	}
}
