package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/roach88/qflow/internal/catalog"
	"github.com/roach88/qflow/internal/compiler"
	"github.com/roach88/qflow/internal/engine"
	"github.com/roach88/qflow/internal/ir"
	"github.com/roach88/qflow/internal/store"
	"github.com/roach88/qflow/internal/testutil"
)

// Harness is the scenario execution environment.
// It runs one session with a manual clock and a fixed session id, recording
// every submission in an in-memory store.
type Harness struct {
	store    *store.Store
	recorder *store.Recorder
	template *ir.Template
	clock    *testutil.ManualClock
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Load the template (file or catalog) and open a fresh in-memory store
//  2. Start a recorded session with a fixed id and clock
//  3. Submit each flow step, checking its expectations
//  4. Check the final assertions
//  5. Replay the answer log and require the same final state
//
// An error is returned only when the scenario cannot be executed; failed
// expectations are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	tpl, err := LoadTemplate(scenario)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	clock := testutil.NewManualClock(scenarioStart(scenario))
	policy, err := engine.ParseHiddenAnswerPolicy(scenario.Policy)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		store:    st,
		template: tpl,
		clock:    clock,
		logger:   slog.New(slog.DiscardHandler),
	}

	ctx := context.Background()
	sess := engine.NewSession(tpl,
		engine.WithIDGenerator(testutil.NewFixedIDGenerator(scenario.SessionID)),
		engine.WithNow(clock.Now),
		engine.WithLogger(h.logger),
		engine.WithHiddenAnswerPolicy(policy),
	)
	h.recorder, err = store.NewRecorder(ctx, st, sess)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	result := NewResult()
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	result.Final = sess.CurrentState()
	for _, msg := range EvaluateAssertions(result.Final, "", scenario.Assertions) {
		result.AddError(msg)
	}

	if err := h.verifyReplay(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to replay session: %w", err)
	}

	return result, nil
}

// LoadTemplate resolves the scenario's template from a file or the catalog.
func LoadTemplate(scenario *Scenario) (*ir.Template, error) {
	if scenario.TemplateID != "" {
		tpl, err := catalog.Get(scenario.TemplateID)
		if err != nil {
			return nil, fmt.Errorf("failed to load template: %w", err)
		}
		return tpl, nil
	}
	tpl, err := compiler.LoadFile(scenario.Template)
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}
	return tpl, nil
}

// scenarioStart is 09:00 UTC on the scenario's "today".
func scenarioStart(scenario *Scenario) time.Time {
	if scenario.Today == "" {
		return testutil.DefaultEpoch
	}
	d, _ := ir.ParseDate(scenario.Today) // checked by validateScenario
	return d.Time().Add(9 * time.Hour)
}

// codedError is implemented by the engine's session errors.
type codedError interface {
	Code() engine.ErrorCode
}

// executeFlow submits each step in order. A submission the engine rejects
// (unknown question or group, group limit) is traced with its error code and
// does not stop the flow; a store failure does.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep, result *Result) error {
	for i, step := range flow {
		h.clock.Advance(time.Minute)

		value, err := ir.FromAny(step.Value)
		if err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}

		var snap engine.Snapshot
		switch {
		case step.AddInstance != "":
			snap, err = h.recorder.AddGroupInstance(ctx, step.AddInstance)
		case step.RemoveInstance != "":
			snap, err = h.recorder.RemoveGroupInstance(ctx, step.RemoveInstance)
		default:
			snap, err = h.recorder.ProcessAnswer(ctx, step.Question, value, step.Final)
		}
		errCode := ""
		if err != nil {
			var coded codedError
			if !errors.As(err, &coded) {
				return fmt.Errorf("flow[%d]: %w", i, err)
			}
			errCode = string(coded.Code())
		}

		result.addEvent(traceEvent(step, value, errCode, snap))

		for _, msg := range EvaluateAssertions(snap, errCode, step.Expect) {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.label(), msg))
		}
	}
	return nil
}

func (s FlowStep) label() string {
	switch {
	case s.AddInstance != "":
		return "add_instance " + s.AddInstance
	case s.RemoveInstance != "":
		return "remove_instance " + s.RemoveInstance
	}
	return s.Question
}

func traceEvent(step FlowStep, value ir.Value, errCode string, snap engine.Snapshot) TraceEvent {
	ev := TraceEvent{
		Seq:            snap.Version,
		Question:       step.Question,
		AddInstance:    step.AddInstance,
		RemoveInstance: step.RemoveInstance,
		Value:          ir.ToAny(value),
		Final:          step.Final,
		Error:          errCode,
		Visible:        slices.Clone(snap.VisibleQuestions),
		Required:       slices.Clone(snap.RequiredQuestions),
		Step:           snap.CurrentStepID,
		Completion:     snap.CompletionPercentage,
		Complete:       snap.IsComplete,
	}
	if len(snap.ValidationErrors) > 0 {
		ev.ValidationErrors = snap.ValidationErrors
	}
	return ev
}

// verifyReplay rebuilds the session from the store and compares it with the
// live one. Any difference means the log does not capture the session.
func (h *Harness) verifyReplay(ctx context.Context, result *Result) error {
	replayed, err := h.store.Replay(ctx, h.template, result.Final.SessionID,
		engine.WithNow(h.clock.Now),
		engine.WithLogger(h.logger),
	)
	if err != nil {
		return err
	}

	got, want := replayed.Snapshot, result.Final
	switch {
	case got.Version != want.Version:
		result.AddError(fmt.Sprintf("replay: version %d, live session at %d", got.Version, want.Version))
	case got.AnswersHash != want.AnswersHash:
		result.AddError("replay: answers differ from the live session")
	case !slices.Equal(got.VisibleQuestions, want.VisibleQuestions):
		result.AddError(fmt.Sprintf("replay: visible %v, live session %v", got.VisibleQuestions, want.VisibleQuestions))
	case got.IsComplete != want.IsComplete:
		result.AddError(fmt.Sprintf("replay: complete=%v, live session complete=%v", got.IsComplete, want.IsComplete))
	case !maps.Equal(got.GroupInstances, want.GroupInstances):
		result.AddError(fmt.Sprintf("replay: group instances %v, live session %v", got.GroupInstances, want.GroupInstances))
	}
	return nil
}
