package engine

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/roach88/qflow/internal/ir"
)

// HiddenAnswerPolicy decides what happens to answers of questions that
// become hidden.
type HiddenAnswerPolicy int

const (
	// RetainHidden keeps the answers so that showing the question again
	// restores them. Hidden answers still take part in rule evaluation.
	RetainHidden HiddenAnswerPolicy = iota

	// ClearHidden deletes the answers of every question that is not
	// visible after a submission.
	ClearHidden
)

func (p HiddenAnswerPolicy) String() string {
	if p == ClearHidden {
		return "clear"
	}
	return "retain"
}

// ParseHiddenAnswerPolicy parses "retain" or "clear". The empty string is
// RetainHidden.
func ParseHiddenAnswerPolicy(s string) (HiddenAnswerPolicy, error) {
	switch s {
	case "", "retain":
		return RetainHidden, nil
	case "clear":
		return ClearHidden, nil
	}
	return RetainHidden, fmt.Errorf("unknown hidden answer policy %q (want retain or clear)", s)
}

// Snapshot is an immutable view of a session after a mutation.
// Slices and maps are copies; mutating them does not affect the session.
type Snapshot struct {
	SessionID            string              `json:"session_id"`
	TemplateID           string              `json:"template_id"`
	Version              int64               `json:"version"`
	VisibleQuestions     []string            `json:"visible_questions"`
	RequiredQuestions    []string            `json:"required_questions"`
	VisibleSteps         []string            `json:"visible_steps"`
	CurrentStep          int                 `json:"current_step"`
	CurrentStepID        string              `json:"current_step_id"`
	TotalSteps           int                 `json:"total_steps"`
	CompletionPercentage int                 `json:"completion_percentage"`
	IsComplete           bool                `json:"is_complete"`
	Answers              ir.AnswerSet        `json:"answers"`
	ValidationErrors     map[string][]string `json:"validation_errors"`
	AnswersHash          string              `json:"answers_hash"`
	StartedAt            time.Time           `json:"started_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
	CompletedAt          *time.Time          `json:"completed_at,omitempty"`
	GroupInstances       map[string]int      `json:"group_instances,omitempty"`
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.VisibleQuestions = slices.Clone(s.VisibleQuestions)
	out.RequiredQuestions = slices.Clone(s.RequiredQuestions)
	out.VisibleSteps = slices.Clone(s.VisibleSteps)
	out.Answers = s.Answers.Clone()
	out.GroupInstances = maps.Clone(s.GroupInstances)
	out.ValidationErrors = make(map[string][]string, len(s.ValidationErrors))
	for id, errs := range s.ValidationErrors {
		out.ValidationErrors[id] = slices.Clone(errs)
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// Session drives one questionnaire instance.
//
// A Session exclusively owns its answer set; callers only ever see copies
// through Snapshots. It is single-writer and not safe for concurrent use.
type Session struct {
	tpl    *ir.Template
	index  map[string]ir.QuestionRef
	id     string
	idGen  IDGenerator
	eval   *Evaluator
	clock  *Clock
	now    func() time.Time
	logger *slog.Logger
	policy HiddenAnswerPolicy

	answers    ir.AnswerSet
	instances  map[string]int      // group id → instance count
	errors     map[string][]string // question id → validation messages
	resolution Resolution
	activeStep string // step id; survives the step's index shifting
	complete   bool

	startedAt   time.Time
	updatedAt   time.Time
	completedAt *time.Time

	snapshot Snapshot
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionID sets the session id. Takes precedence over WithIDGenerator.
func WithSessionID(id string) SessionOption {
	return func(s *Session) {
		s.id = id
	}
}

// WithIDGenerator sets the generator used when no session id is given.
// Default: UUIDv7Generator.
func WithIDGenerator(gen IDGenerator) SessionOption {
	return func(s *Session) {
		s.idGen = gen
	}
}

// WithNow sets the wall-clock source for timestamps and date-relative
// operators. Default: time.Now.
func WithNow(now func() time.Time) SessionOption {
	return func(s *Session) {
		s.now = now
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithHiddenAnswerPolicy selects retain (default) or clear semantics for
// answers of hidden questions.
func WithHiddenAnswerPolicy(p HiddenAnswerPolicy) SessionOption {
	return func(s *Session) {
		s.policy = p
	}
}

// WithClock sets the logical clock for Snapshot.Version.
// Used to resume a persisted session at its last version.
func WithClock(c *Clock) SessionOption {
	return func(s *Session) {
		s.clock = c
	}
}

// NewSession starts a questionnaire for a validated template.
//
// The template must not be mutated afterwards. WithSessionID wins over
// WithIDGenerator regardless of option order.
func NewSession(tpl *ir.Template, opts ...SessionOption) *Session {
	s := &Session{
		tpl:       tpl,
		now:       time.Now,
		logger:    slog.Default(),
		answers:   ir.AnswerSet{},
		instances: tpl.MinInstances(),
		errors:    make(map[string][]string),
	}
	s.index = tpl.IndexInstances(s.instances)

	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		if s.idGen == nil {
			s.idGen = UUIDv7Generator{}
		}
		s.id = s.idGen.Generate()
	}
	if s.clock == nil {
		s.clock = NewClock()
	}

	s.eval = NewEvaluator(s.now)
	s.logger = s.logger.With("session_id", s.id, "template_id", tpl.ID)

	s.startedAt = s.now().UTC()
	s.updatedAt = s.startedAt
	s.resolveAnswers()
	if len(s.resolution.VisibleSteps) > 0 {
		s.activeStep = s.resolution.VisibleSteps[0]
	}
	s.publish(s.clock.Current())

	s.logger.Debug("session started", "policy", s.policy.String())
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Template returns the template the session runs.
func (s *Session) Template() *ir.Template { return s.tpl }

// Policy returns the hidden answer policy.
func (s *Session) Policy() HiddenAnswerPolicy { return s.policy }

// CurrentState returns the latest snapshot. It never mutates the session.
func (s *Session) CurrentState() Snapshot {
	return s.snapshot.clone()
}

// ProcessAnswer records an answer and returns the resulting snapshot.
//
// The value is coerced to the question's input type and validated; a value
// that fails validation is still recorded and the problems are reported in
// Snapshot.ValidationErrors. Visibility is always recomputed. Only when
// isFinal is true are step position and completion recomputed, so live
// keystrokes can reveal dependent questions without committing the step.
//
// Group instance questions are answered by instance id ("cocuk_ad_soyad_2").
// An unknown question id, or an instance the group does not have yet,
// returns *UnknownQuestionError and leaves the session unchanged.
func (s *Session) ProcessAnswer(questionID string, value ir.Value, isFinal bool) (Snapshot, error) {
	ref, ok := s.index[questionID]
	if !ok {
		s.logger.Warn("answer for unknown question", "question_id", questionID)
		return s.CurrentState(), &UnknownQuestionError{
			SessionID:  s.id,
			TemplateID: s.tpl.ID,
			QuestionID: questionID,
		}
	}
	if value == nil {
		value = ir.Null{}
	}

	q := s.tpl.QuestionAt(ref)
	coerced, typeErrs := coerce(&q, value)
	s.answers.Set(ref.StepID, questionID, coerced)

	s.resolveAnswers()

	errs := append(typeErrs, validateAnswer(&q, coerced, s.resolution.IsRequired(questionID), isFinal)...)
	if _, kept := s.answers.Get(ref.StepID, questionID); !kept {
		// Cleared at once because the question is hidden.
		errs = nil
	}
	s.setErrors(questionID, errs)

	s.logger.Debug("answer processed",
		"question_id", questionID,
		"is_final", isFinal,
		"visible", len(s.resolution.Visible),
		"errors", len(errs),
	)

	if isFinal {
		s.commit()
	}

	s.updatedAt = s.now().UTC()
	s.publish(s.clock.Next())
	return s.CurrentState(), nil
}

// Seed replaces the answer set wholesale, e.g. to resume a stored session
// without replaying every submission. Answers are filed under the step that
// owns each question, whatever step key they arrive under. Groups are
// grown to hold every answered instance. Completion is recomputed as for a
// final submission.
//
// An unknown question id returns *UnknownQuestionError and leaves the
// session unchanged.
func (s *Session) Seed(answers ir.AnswerSet) (Snapshot, error) {
	seeded := ir.AnswerSet{}
	seededErrs := make(map[string][]string)

	instances := s.tpl.MinInstances()
	for _, fields := range answers {
		for questionID := range fields {
			groupID, n, ok := s.tpl.ParseInstanceID(questionID)
			if !ok {
				continue
			}
			g, _, _ := s.tpl.Group(groupID)
			if n > instances[groupID] && n <= g.MaxInstances {
				instances[groupID] = n
			}
		}
	}
	index := s.tpl.IndexInstances(instances)

	for _, stepID := range slices.Sorted(maps.Keys(answers)) {
		for _, questionID := range slices.Sorted(maps.Keys(answers[stepID])) {
			ref, ok := index[questionID]
			if !ok {
				return s.CurrentState(), &UnknownQuestionError{
					SessionID:  s.id,
					TemplateID: s.tpl.ID,
					QuestionID: questionID,
				}
			}
			value := answers[stepID][questionID]
			if value == nil {
				value = ir.Null{}
			}
			q := s.tpl.QuestionAt(ref)
			coerced, typeErrs := coerce(&q, value)
			seeded.Set(ref.StepID, questionID, coerced)
			if len(typeErrs) > 0 {
				seededErrs[questionID] = typeErrs
			}
		}
	}

	s.answers = seeded
	s.errors = seededErrs
	s.instances = instances
	s.index = index
	s.resolveAnswers()

	for _, id := range s.resolution.Visible {
		ref := s.index[id]
		q := s.tpl.QuestionAt(ref)
		v, ok := s.answers.Get(ref.StepID, id)
		if !ok {
			continue
		}
		s.setErrors(id, append(s.errors[id], validateAnswer(&q, v, s.resolution.IsRequired(id), true)...))
	}

	s.commit()
	s.updatedAt = s.now().UTC()
	s.publish(s.clock.Next())
	s.logger.Debug("session seeded", "answers", s.answers.Len())
	return s.CurrentState(), nil
}

// NextQuestion returns the first visible question, in declaration order,
// that has no non-empty answer.
func (s *Session) NextQuestion() (string, bool) {
	for _, id := range s.resolution.Visible {
		ref := s.index[id]
		if v, ok := s.answers.Get(ref.StepID, id); !ok || ir.IsEmpty(v) {
			return id, true
		}
	}
	return "", false
}

// GoToStep moves to the i-th currently visible step. Navigation changes no
// answers, so the version stays where it is.
func (s *Session) GoToStep(i int) (Snapshot, error) {
	if i < 0 || i >= len(s.resolution.VisibleSteps) {
		return s.CurrentState(), &StepOutOfRangeError{
			SessionID: s.id,
			Index:     i,
			Total:     len(s.resolution.VisibleSteps),
		}
	}
	s.activeStep = s.resolution.VisibleSteps[i]
	s.publish(s.clock.Current())
	return s.CurrentState(), nil
}

// Reset discards every answer, shrinks every group back to its minimum and
// starts the questionnaire over. The session id and version history are
// kept.
func (s *Session) Reset() Snapshot {
	s.answers = ir.AnswerSet{}
	s.instances = s.tpl.MinInstances()
	s.index = s.tpl.IndexInstances(s.instances)
	s.errors = make(map[string][]string)
	s.complete = false
	s.completedAt = nil
	s.resolveAnswers()
	s.activeStep = ""
	if len(s.resolution.VisibleSteps) > 0 {
		s.activeStep = s.resolution.VisibleSteps[0]
	}
	s.startedAt = s.now().UTC()
	s.updatedAt = s.startedAt
	s.publish(s.clock.Next())
	s.logger.Debug("session reset")
	return s.CurrentState()
}

// AddGroupInstance appends an instance to a repeatable group. Its questions
// start unanswered. Step position and completion are recomputed as for a
// final submission, since new required questions reopen the step.
//
// An unknown group returns *UnknownGroupError, a group already at its
// maximum returns *GroupLimitError; either leaves the session unchanged.
func (s *Session) AddGroupInstance(groupID string) (Snapshot, error) {
	g, _, err := s.group(groupID)
	if err != nil {
		return s.CurrentState(), err
	}
	count := s.instances[groupID]
	if count >= g.MaxInstances {
		return s.CurrentState(), &GroupLimitError{
			SessionID: s.id, GroupID: groupID, Count: count, Limit: g.MaxInstances, Adding: true,
		}
	}

	s.setInstances(groupID, count+1)
	s.logger.Debug("group instance added", "group_id", groupID, "instances", count+1)
	return s.CurrentState(), nil
}

// RemoveGroupInstance drops a group's last instance together with its
// answers and validation errors.
//
// An unknown group returns *UnknownGroupError, a group already at its
// minimum returns *GroupLimitError; either leaves the session unchanged.
func (s *Session) RemoveGroupInstance(groupID string) (Snapshot, error) {
	g, si, err := s.group(groupID)
	if err != nil {
		return s.CurrentState(), err
	}
	count := s.instances[groupID]
	if count <= g.MinInstances {
		return s.CurrentState(), &GroupLimitError{
			SessionID: s.id, GroupID: groupID, Count: count, Limit: g.MinInstances,
		}
	}

	stepID := s.tpl.Steps[si].ID
	for _, id := range g.InstanceQuestionIDs(count) {
		s.answers.Delete(stepID, id)
		delete(s.errors, id)
	}
	s.setInstances(groupID, count-1)
	s.logger.Debug("group instance removed", "group_id", groupID, "instances", count-1)
	return s.CurrentState(), nil
}

func (s *Session) setInstances(groupID string, n int) {
	s.instances[groupID] = n
	s.index = s.tpl.IndexInstances(s.instances)
	s.resolveAnswers()
	s.commit()
	s.updatedAt = s.now().UTC()
	s.publish(s.clock.Next())
}

// GroupInfo describes a repeatable group's instances in this session.
type GroupInfo struct {
	GroupID   string     `json:"group_id"`
	StepID    string     `json:"step_id"`
	Count     int        `json:"count"`
	Min       int        `json:"min_instances"`
	Max       int        `json:"max_instances"`
	CanAdd    bool       `json:"can_add"`
	CanRemove bool       `json:"can_remove"`
	Visible   bool       `json:"visible"`
	Instances [][]string `json:"instances"` // question ids, one slice per instance
}

// GroupInfo returns the state of a repeatable group, or *UnknownGroupError.
func (s *Session) GroupInfo(groupID string) (GroupInfo, error) {
	g, si, err := s.group(groupID)
	if err != nil {
		return GroupInfo{}, err
	}
	count := s.instances[groupID]
	info := GroupInfo{
		GroupID:   groupID,
		StepID:    s.tpl.Steps[si].ID,
		Count:     count,
		Min:       g.MinInstances,
		Max:       g.MaxInstances,
		CanAdd:    count < g.MaxInstances,
		CanRemove: count > g.MinInstances,
		Visible:   slices.Contains(s.resolution.VisibleGroups, groupID),
		Instances: make([][]string, 0, count),
	}
	for n := 1; n <= count; n++ {
		info.Instances = append(info.Instances, g.InstanceQuestionIDs(n))
	}
	return info, nil
}

func (s *Session) group(groupID string) (*ir.Group, int, error) {
	g, si, ok := s.tpl.Group(groupID)
	if !ok {
		s.logger.Warn("unknown group", "group_id", groupID)
		return nil, -1, &UnknownGroupError{SessionID: s.id, TemplateID: s.tpl.ID, GroupID: groupID}
	}
	return g, si, nil
}

// IsVisible reports whether a question is currently visible.
func (s *Session) IsVisible(questionID string) bool {
	return s.resolution.IsVisible(questionID)
}

// IsRequired reports whether a question is currently required.
func (s *Session) IsRequired(questionID string) bool {
	return s.resolution.IsRequired(questionID)
}

// Answers returns a copy of the answer set.
func (s *Session) Answers() ir.AnswerSet {
	return s.answers.Clone()
}

// Progress returns the progress report for the current state.
func (s *Session) Progress() Report {
	return Progress(s.tpl, s.answers, s.resolution)
}

// resolveAnswers recomputes the resolution and, under ClearHidden, drops
// answers of hidden questions until nothing changes. Each pass either
// removes an answer or stops, so the loop is bounded by the answer count.
func (s *Session) resolveAnswers() {
	s.resolution = s.eval.ResolveInstances(s.tpl, s.answers, s.instances)
	s.logDiagnostics()

	if s.policy != ClearHidden {
		return
	}
	for {
		var cleared []answerKey
		for stepID, fields := range s.answers {
			for questionID := range fields {
				if !s.resolution.IsVisible(questionID) {
					cleared = append(cleared, answerKey{stepID: stepID, questionID: questionID})
				}
			}
		}
		if len(cleared) == 0 {
			return
		}
		for _, key := range cleared {
			s.answers.Delete(key.stepID, key.questionID)
			delete(s.errors, key.questionID)
		}
		s.logger.Debug("cleared hidden answers", "count", len(cleared))
		s.resolution = s.eval.ResolveInstances(s.tpl, s.answers, s.instances)
	}
}

type answerKey struct {
	stepID     string
	questionID string
}

func (s *Session) logDiagnostics() {
	for _, d := range s.resolution.Diagnostics {
		switch d.Kind {
		case DiagTypeMismatch:
			s.logger.Warn("rule failed closed",
				"owner", d.Owner, "owner_kind", d.OwnerKind,
				"rule_index", d.RuleIndex, "trigger", d.Trigger,
				"reason", d.Message)
		default:
			s.logger.Debug("rule ignored",
				"owner", d.Owner, "owner_kind", d.OwnerKind,
				"rule_index", d.RuleIndex, "trigger", d.Trigger,
				"reason", d.Message)
		}
	}
}

func (s *Session) setErrors(questionID string, errs []string) {
	if len(errs) == 0 {
		delete(s.errors, questionID)
		return
	}
	s.errors[questionID] = errs
}

// commit recomputes completion and moves the active step to the first
// visible step that is not complete, or the last visible step when all are.
func (s *Session) commit() {
	report := Progress(s.tpl, s.answers, s.resolution)

	s.activeStep = ""
	allComplete := len(report.Steps) > 0
	for _, sp := range report.Steps {
		if s.stepComplete(sp) {
			continue
		}
		allComplete = false
		if s.activeStep == "" {
			s.activeStep = sp.StepID
		}
	}
	if s.activeStep == "" && len(report.Steps) > 0 {
		s.activeStep = report.Steps[len(report.Steps)-1].StepID
	}

	switch {
	case allComplete && !s.complete:
		t := s.now().UTC()
		s.completedAt = &t
		s.logger.Info("questionnaire complete")
	case !allComplete:
		s.completedAt = nil
	}
	s.complete = allComplete
}

// stepComplete extends StepProgress.Complete with validation state: a step
// holding an invalid visible answer is not complete.
func (s *Session) stepComplete(sp StepProgress) bool {
	if !sp.Complete {
		return false
	}
	for _, id := range s.resolution.StepQuestions(sp.StepID) {
		if len(s.errors[id]) > 0 {
			return false
		}
	}
	return true
}

func (s *Session) stepIndex(stepID string) int {
	for i, step := range s.tpl.Steps {
		if step.ID == stepID {
			return i
		}
	}
	return -1
}

// followActiveStep keeps the active step valid after visibility changed:
// when it became hidden, move to the next visible step in declaration order.
func (s *Session) followActiveStep() {
	visible := s.resolution.VisibleSteps
	if len(visible) == 0 {
		s.activeStep = ""
		return
	}
	if slices.Contains(visible, s.activeStep) {
		return
	}

	from := s.stepIndex(s.activeStep)
	for _, id := range visible {
		if s.stepIndex(id) > from {
			s.activeStep = id
			return
		}
	}
	s.activeStep = visible[len(visible)-1]
}

// publish rebuilds the stored snapshot at the given version.
func (s *Session) publish(version int64) {
	s.followActiveStep()

	report := Progress(s.tpl, s.answers, s.resolution)
	current := slices.Index(s.resolution.VisibleSteps, s.activeStep)
	if current < 0 {
		current = 0
	}

	errs := make(map[string][]string)
	for id, msgs := range s.errors {
		if s.resolution.IsVisible(id) {
			errs[id] = slices.Clone(msgs)
		}
	}

	hash, err := ir.AnswerSetHash(s.answers)
	if err != nil {
		// Answers are finite by construction; keep the previous hash.
		s.logger.Error("hash answers", "error", err)
		hash = s.snapshot.AnswersHash
	}

	var completedAt *time.Time
	if s.completedAt != nil {
		t := *s.completedAt
		completedAt = &t
	}

	s.snapshot = Snapshot{
		SessionID:            s.id,
		TemplateID:           s.tpl.ID,
		Version:              version,
		VisibleQuestions:     slices.Clone(s.resolution.Visible),
		RequiredQuestions:    slices.Clone(s.resolution.Required),
		VisibleSteps:         slices.Clone(s.resolution.VisibleSteps),
		CurrentStep:          current,
		CurrentStepID:        s.activeStep,
		TotalSteps:           len(s.resolution.VisibleSteps),
		CompletionPercentage: report.Percentage,
		IsComplete:           s.complete,
		Answers:              s.answers.Clone(),
		ValidationErrors:     errs,
		AnswersHash:          hash,
		StartedAt:            s.startedAt,
		UpdatedAt:            s.updatedAt,
		CompletedAt:          completedAt,
		GroupInstances:       maps.Clone(s.instances),
	}
}
