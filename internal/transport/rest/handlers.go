package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/roach88/qflow/internal/catalog"
	"github.com/roach88/qflow/internal/engine"
	"github.com/roach88/qflow/internal/ir"
	"github.com/roach88/qflow/internal/store"
)

// apiError carries the HTTP mapping of a failure out of helper functions.
type apiError struct {
	status  int
	code    string
	message string
}

func (e *apiError) Error() string { return e.message }

func respondError(w http.ResponseWriter, err error) {
	var ae *apiError
	if errors.As(err, &ae) {
		writeError(w, ae.status, ae.code, ae.message)
		return
	}
	writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
}

// TemplateSummary is the list view of a template.
type TemplateSummary struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	Name      string `json:"name"`
	Version   string `json:"version,omitempty"`
	Steps     int    `json:"steps"`
	Questions int    `json:"questions"`
	Hash      string `json:"hash"`
}

// CreateSessionRequest is the body of POST /v1/sessions.
type CreateSessionRequest struct {
	TemplateID string `json:"template_id"`
	Policy     string `json:"policy,omitempty"` // "retain" or "clear"
}

// AnswerRequest is the body of POST /v1/sessions/{id}/answers.
//
// ExpectedVersion, when set, must equal the session's current version or
// the submission is rejected with 409.
type AnswerRequest struct {
	QuestionID      string          `json:"question_id"`
	Value           json.RawMessage `json:"value"`
	IsFinal         bool            `json:"is_final"`
	ExpectedVersion *int64          `json:"expected_version,omitempty"`
}

// GoToStepRequest is the body of POST /v1/sessions/{id}/step.
type GoToStepRequest struct {
	Index int `json:"index"`
}

// ProgressResponse is the body of GET /v1/sessions/{id}/progress.
type ProgressResponse struct {
	engine.Report
	Version       int64  `json:"version"`
	CurrentStepID string `json:"current_step_id"`
	IsComplete    bool   `json:"is_complete"`
	NextQuestion  string `json:"next_question,omitempty"`
}

// health handles GET /health
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			s.logger.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.len(),
	})
}

// listTemplates handles GET /v1/templates
func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	all, err := s.templates.All()
	if err != nil {
		respondError(w, err)
		return
	}

	out := make([]TemplateSummary, 0, len(all))
	for _, tpl := range all {
		hash, err := ir.TemplateHash(tpl)
		if err != nil {
			respondError(w, err)
			return
		}
		out = append(out, TemplateSummary{
			ID:        tpl.ID,
			Category:  tpl.Category,
			Name:      tpl.Name,
			Version:   tpl.Version,
			Steps:     len(tpl.Steps),
			Questions: tpl.QuestionCount(),
			Hash:      hash,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": out})
}

// getTemplate handles GET /v1/templates/{id}
func (s *Server) getTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.template(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

// createSession handles POST /v1/sessions
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TemplateID == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "template_id is required")
		return
	}

	policy := s.policy
	if req.Policy != "" {
		p, err := engine.ParseHiddenAnswerPolicy(req.Policy)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
			return
		}
		policy = p
	}

	tpl, err := s.template(req.TemplateID)
	if err != nil {
		respondError(w, err)
		return
	}

	sess := engine.NewSession(tpl,
		engine.WithIDGenerator(s.idGen),
		engine.WithNow(s.now),
		engine.WithLogger(s.logger),
		engine.WithHiddenAnswerPolicy(policy),
	)

	e := &entry{session: sess}
	if s.store != nil {
		rec, err := store.NewRecorder(r.Context(), s.store, sess)
		if err != nil {
			respondError(w, err)
			return
		}
		e.recorder = rec
	}
	s.sessions.add(sess.ID(), e)

	writeJSON(w, http.StatusCreated, sess.CurrentState())
}

// getSession handles GET /v1/sessions/{id}
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	e, err := s.lookup(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}

	e.mu.Lock()
	snap := e.session.CurrentState()
	e.mu.Unlock()

	writeJSON(w, http.StatusOK, snap)
}

// submitAnswer handles POST /v1/sessions/{id}/answers
func (s *Server) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req AnswerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.QuestionID == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "question_id is required")
		return
	}
	value, err := decodeValue(req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}

	e, err := s.lookup(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if req.ExpectedVersion != nil {
		if current := e.session.CurrentState().Version; current != *req.ExpectedVersion {
			writeError(w, http.StatusConflict, codeVersionConflict,
				fmt.Sprintf("session is at version %d, expected %d", current, *req.ExpectedVersion))
			return
		}
	}

	snap, err := e.processAnswer(r.Context(), req.QuestionID, value, req.IsFinal)
	if err != nil {
		if engine.IsUnknownQuestion(err) {
			writeError(w, http.StatusUnprocessableEntity, string(engine.ErrCodeUnknownQuestion), err.Error())
			return
		}
		s.logger.Error("record answer", "session_id", snap.SessionID, "error", err)
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// getProgress handles GET /v1/sessions/{id}/progress
func (s *Server) getProgress(w http.ResponseWriter, r *http.Request) {
	e, err := s.lookup(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}

	e.mu.Lock()
	snap := e.session.CurrentState()
	resp := ProgressResponse{
		Report:        e.session.Progress(),
		Version:       snap.Version,
		CurrentStepID: snap.CurrentStepID,
		IsComplete:    snap.IsComplete,
	}
	resp.NextQuestion, _ = e.session.NextQuestion()
	e.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// goToStep handles POST /v1/sessions/{id}/step
func (s *Server) goToStep(w http.ResponseWriter, r *http.Request) {
	var req GoToStepRequest
	if !decodeBody(w, r, &req) {
		return
	}

	e, err := s.lookup(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}

	e.mu.Lock()
	snap, err := e.session.GoToStep(req.Index)
	e.mu.Unlock()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, string(engine.ErrCodeStepOutOfRange), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// resetSession handles POST /v1/sessions/{id}/reset
func (s *Server) resetSession(w http.ResponseWriter, r *http.Request) {
	e, err := s.lookup(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}

	e.mu.Lock()
	snap, err := e.reset(r.Context())
	e.mu.Unlock()
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// getGroup handles GET /v1/sessions/{id}/groups/{group}
func (s *Server) getGroup(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	e, err := s.lookup(r.Context(), vars["id"])
	if err != nil {
		respondError(w, err)
		return
	}

	e.mu.Lock()
	info, err := e.session.GroupInfo(vars["group"])
	e.mu.Unlock()
	if err != nil {
		respondGroupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// addGroupInstance handles POST /v1/sessions/{id}/groups/{group}/instances
func (s *Server) addGroupInstance(w http.ResponseWriter, r *http.Request) {
	s.changeGroup(w, r, (*entry).addGroupInstance)
}

// removeGroupInstance handles DELETE /v1/sessions/{id}/groups/{group}/instances
func (s *Server) removeGroupInstance(w http.ResponseWriter, r *http.Request) {
	s.changeGroup(w, r, (*entry).removeGroupInstance)
}

func (s *Server) changeGroup(w http.ResponseWriter, r *http.Request,
	change func(*entry, context.Context, string) (engine.Snapshot, error)) {
	vars := mux.Vars(r)
	e, err := s.lookup(r.Context(), vars["id"])
	if err != nil {
		respondError(w, err)
		return
	}

	e.mu.Lock()
	snap, err := change(e, r.Context(), vars["group"])
	e.mu.Unlock()
	if err != nil {
		if !engine.IsUnknownGroup(err) && !engine.IsGroupLimit(err) {
			s.logger.Error("record group change", "session_id", snap.SessionID, "error", err)
		}
		respondGroupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// respondGroupError maps the engine's group errors to 422.
func respondGroupError(w http.ResponseWriter, err error) {
	switch {
	case engine.IsUnknownGroup(err):
		writeError(w, http.StatusUnprocessableEntity, string(engine.ErrCodeUnknownGroup), err.Error())
	case engine.IsGroupLimit(err):
		writeError(w, http.StatusUnprocessableEntity, string(engine.ErrCodeGroupLimit), err.Error())
	default:
		respondError(w, err)
	}
}

func (s *Server) template(id string) (*ir.Template, error) {
	tpl, err := s.templates.Get(id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, &apiError{status: http.StatusNotFound, code: codeNotFound, message: err.Error()}
		}
		return nil, err
	}
	return tpl, nil
}

// lookup returns the live session, rebuilding it from the store when it is
// not in memory.
func (s *Server) lookup(ctx context.Context, id string) (*entry, error) {
	if e, ok := s.sessions.get(id); ok {
		return e, nil
	}
	notFound := &apiError{status: http.StatusNotFound, code: codeNotFound, message: fmt.Sprintf("session %q not found", id)}
	if s.store == nil {
		return nil, notFound
	}

	rec, err := s.store.ReadSession(ctx, id)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, notFound
		}
		return nil, err
	}
	tpl, err := s.template(rec.TemplateID)
	if err != nil {
		return nil, err
	}

	res, err := s.store.Replay(ctx, tpl, id, engine.WithNow(s.now), engine.WithLogger(s.logger))
	if err != nil {
		var mismatch *store.TemplateMismatchError
		if errors.As(err, &mismatch) {
			return nil, &apiError{status: http.StatusConflict, code: codeTemplateMismatch, message: err.Error()}
		}
		return nil, err
	}
	if res.Diverged {
		s.logger.Warn("replayed session diverged from stored completion state", "session_id", id)
	}

	recorder, err := store.NewRecorder(ctx, s.store, res.Session)
	if err != nil {
		return nil, err
	}
	s.logger.Info("session resumed", "session_id", id, "answers", res.Answers)
	return s.sessions.add(id, &entry{session: res.Session, recorder: recorder}), nil
}

// decodeValue turns a raw JSON answer into a Value. An absent value is Null.
func decodeValue(raw json.RawMessage) (ir.Value, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ir.Null{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid value: %w", err)
	}
	value, err := ir.FromAny(v)
	if err != nil {
		return nil, fmt.Errorf("invalid value: %w", err)
	}
	return value, nil
}
