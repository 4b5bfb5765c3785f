package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/qflow/internal/engine"
	"github.com/roach88/qflow/internal/ir"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Today           string // YYYY-MM-DD; empty means the current date
	Policy          string // hidden answer policy
	RequireComplete bool
}

// SimulatedAnswer is one entry of an answers file: an answer, or a group
// instance change when AddInstance or RemoveInstance names a group.
type SimulatedAnswer struct {
	Question       string `yaml:"question"`
	Value          any    `yaml:"value"`
	Final          bool   `yaml:"final"`
	AddInstance    string `yaml:"add_instance"`
	RemoveInstance string `yaml:"remove_instance"`
}

// SimulationStep is the state after one entry of the answers file.
type SimulationStep struct {
	Question       string `json:"question,omitempty"`
	AddInstance    string `json:"add_instance,omitempty"`
	RemoveInstance string `json:"remove_instance,omitempty"`
	Value          any    `json:"value"`
	Error          string `json:"error,omitempty"`
	Version        int64  `json:"version"`
	Step           string `json:"step"`
	Completion     int    `json:"completion"`
	Visible        int    `json:"visible"`
}

// SimulationResult is the outcome of a simulation.
type SimulationResult struct {
	Steps        []SimulationStep `json:"steps"`
	Final        engine.Snapshot  `json:"final"`
	Progress     engine.Report    `json:"progress"`
	NextQuestion string           `json:"next_question,omitempty"`
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <template> <answers-file>",
		Short: "Feed a list of answers through a template",
		Long: `Run a sequence of answers through a fresh session and print the result.

The answers file is a YAML list:

  - question: evlilik_tarihi
    value: "2020-05-10"
    final: true
  - question: cocuk_var_mi
    value: evet

Answers to unknown questions are reported and skipped.

Examples:
  qflow simulate anlasmali-bosanma answers.yaml
  qflow simulate ./evlilik.yaml answers.yaml --today 2024-03-01 --policy clear`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Today, "today", "", "evaluate date rules as of this day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.Policy, "policy", "retain", "hidden answer policy (retain|clear)")
	cmd.Flags().BoolVar(&opts.RequireComplete, "require-complete", false, "exit 1 unless the questionnaire is complete")

	return cmd
}

func runSimulate(opts *SimulateOptions, ref, answersFile string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	policy, err := engine.ParseHiddenAnswerPolicy(opts.Policy)
	if err != nil {
		return formatter.fail(ErrCodeBadInput, err.Error(), nil)
	}
	now := time.Now
	if opts.Today != "" {
		d, err := ir.ParseDate(opts.Today)
		if err != nil {
			return formatter.fail(ErrCodeBadInput, fmt.Sprintf("--today: %v", err), nil)
		}
		fixed := d.Time().Add(9 * time.Hour)
		now = func() time.Time { return fixed }
	}

	tpl, loadErr := LoadTemplate(ref)
	if loadErr != nil {
		return formatter.fail(loadErr.Code, loadErr.Message, nil)
	}

	answers, err := readAnswersFile(answersFile)
	if err != nil {
		code := ErrCodeScenario
		if errors.Is(err, os.ErrNotExist) {
			code = ErrCodeNotFound
		}
		return formatter.fail(code, err.Error(), nil)
	}

	logger := slog.New(slog.DiscardHandler)
	if opts.Verbose {
		logger = newLogger(true)
	}
	sess := engine.NewSession(tpl,
		engine.WithSessionID("simulation"),
		engine.WithNow(now),
		engine.WithLogger(logger),
		engine.WithHiddenAnswerPolicy(policy),
	)

	result := simulate(sess, answers)

	if formatter.isJSON() {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		printSimulation(formatter.Writer, tpl, result)
	}

	if opts.RequireComplete && !result.Final.IsComplete {
		return NewExitError(ExitFailure, fmt.Sprintf("questionnaire incomplete at %d%%", result.Final.CompletionPercentage))
	}
	return nil
}

// readAnswersFile decodes an answers file, converting values to engine
// values up front so a bad entry fails before any answer is submitted.
func readAnswersFile(path string) ([]simulatedValue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading answers file: %w", err)
	}

	var raw []SimulatedAnswer
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing answers file: %w", err)
	}

	out := make([]simulatedValue, 0, len(raw))
	for i, a := range raw {
		switch {
		case a.AddInstance != "" || a.RemoveInstance != "":
			if a.Question != "" || (a.AddInstance != "" && a.RemoveInstance != "") {
				return nil, fmt.Errorf("answers[%d]: a group change cannot carry a question or another change", i)
			}
		case a.Question == "":
			return nil, fmt.Errorf("answers[%d]: question is required", i)
		}
		v, err := ir.FromAny(a.Value)
		if err != nil {
			return nil, fmt.Errorf("answers[%d] %s: %w", i, a.Question, err)
		}
		out = append(out, simulatedValue{SimulatedAnswer: a, value: v})
	}
	return out, nil
}

type simulatedValue struct {
	SimulatedAnswer
	value ir.Value
}

func simulate(sess *engine.Session, answers []simulatedValue) SimulationResult {
	result := SimulationResult{Steps: make([]SimulationStep, 0, len(answers))}

	for _, a := range answers {
		var (
			snap engine.Snapshot
			err  error
		)
		switch {
		case a.AddInstance != "":
			snap, err = sess.AddGroupInstance(a.AddInstance)
		case a.RemoveInstance != "":
			snap, err = sess.RemoveGroupInstance(a.RemoveInstance)
		default:
			snap, err = sess.ProcessAnswer(a.Question, a.value, a.Final)
		}
		step := SimulationStep{
			Question:       a.Question,
			AddInstance:    a.AddInstance,
			RemoveInstance: a.RemoveInstance,
			Value:          ir.ToAny(a.value),
			Version:        snap.Version,
			Step:           snap.CurrentStepID,
			Completion:     snap.CompletionPercentage,
			Visible:        len(snap.VisibleQuestions),
		}
		var coded interface{ Code() engine.ErrorCode }
		if errors.As(err, &coded) {
			step.Error = string(coded.Code())
		}
		result.Steps = append(result.Steps, step)
	}

	result.Final = sess.CurrentState()
	result.Progress = sess.Progress()
	result.NextQuestion, _ = sess.NextQuestion()
	return result
}

func printSimulation(w io.Writer, tpl *ir.Template, result SimulationResult) {
	fmt.Fprintf(w, "Simulating %s (%d answer(s))\n\n", tpl.ID, len(result.Steps))

	for i, s := range result.Steps {
		entry := fmt.Sprintf("%s = %v", s.Question, s.Value)
		switch {
		case s.AddInstance != "":
			entry = "+ " + s.AddInstance
		case s.RemoveInstance != "":
			entry = "- " + s.RemoveInstance
		}
		if s.Error != "" {
			fmt.Fprintf(w, "  %2d  %s  ✗ %s\n", i+1, entry, s.Error)
			continue
		}
		fmt.Fprintf(w, "  %2d  %s  %d%%  step %s\n", i+1, entry, s.Completion, s.Step)
	}

	final := result.Final
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Visible:  %s\n", strings.Join(final.VisibleQuestions, ", "))
	fmt.Fprintf(w, "Required: %s\n", strings.Join(final.RequiredQuestions, ", "))

	status := "incomplete"
	if final.IsComplete {
		status = "complete"
	}
	fmt.Fprintf(w, "Progress: %d%% (%d/%d answered), %s\n",
		result.Progress.Percentage, result.Progress.Answered, result.Progress.Visible, status)
	if result.NextQuestion != "" {
		fmt.Fprintf(w, "Next:     %s\n", result.NextQuestion)
	}

	if len(final.ValidationErrors) > 0 {
		fmt.Fprintln(w, "\nValidation errors:")
		for _, id := range final.VisibleQuestions {
			for _, msg := range final.ValidationErrors[id] {
				fmt.Fprintf(w, "  %s: %s\n", id, msg)
			}
		}
	}
}
