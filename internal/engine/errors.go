package engine

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes session errors for callers that map them onto
// transport status codes.
type ErrorCode string

const (
	// ErrCodeUnknownQuestion indicates an answer for a question id the
	// template does not declare.
	ErrCodeUnknownQuestion ErrorCode = "UNKNOWN_QUESTION"

	// ErrCodeStepOutOfRange indicates navigation to a step that is not
	// currently visible.
	ErrCodeStepOutOfRange ErrorCode = "STEP_OUT_OF_RANGE"

	// ErrCodeUnknownGroup indicates a repeatable group id the template does
	// not declare.
	ErrCodeUnknownGroup ErrorCode = "UNKNOWN_GROUP"

	// ErrCodeGroupLimit indicates adding past a group's maximum or removing
	// past its minimum instance count.
	ErrCodeGroupLimit ErrorCode = "GROUP_LIMIT"
)

// UnknownQuestionError is returned when a caller submits an answer for a
// question the template does not declare. It signals a template/UI
// mismatch; the session's answers are left untouched.
type UnknownQuestionError struct {
	SessionID  string
	TemplateID string
	QuestionID string
}

func (e *UnknownQuestionError) Error() string {
	return fmt.Sprintf("%s: question %q not found in template %q (session=%s)",
		ErrCodeUnknownQuestion, e.QuestionID, e.TemplateID, e.SessionID)
}

// Code returns the error category.
func (e *UnknownQuestionError) Code() ErrorCode { return ErrCodeUnknownQuestion }

// StepOutOfRangeError is returned by GoToStep for an index outside the
// currently visible steps.
type StepOutOfRangeError struct {
	SessionID string
	Index     int
	Total     int
}

func (e *StepOutOfRangeError) Error() string {
	return fmt.Sprintf("%s: step index %d outside [0, %d) (session=%s)",
		ErrCodeStepOutOfRange, e.Index, e.Total, e.SessionID)
}

// Code returns the error category.
func (e *StepOutOfRangeError) Code() ErrorCode { return ErrCodeStepOutOfRange }

// UnknownGroupError is returned by the group operations for a group id the
// template does not declare.
type UnknownGroupError struct {
	SessionID  string
	TemplateID string
	GroupID    string
}

func (e *UnknownGroupError) Error() string {
	return fmt.Sprintf("%s: group %q not found in template %q (session=%s)",
		ErrCodeUnknownGroup, e.GroupID, e.TemplateID, e.SessionID)
}

// Code returns the error category.
func (e *UnknownGroupError) Code() ErrorCode { return ErrCodeUnknownGroup }

// GroupLimitError is returned when adding an instance to a group at its
// maximum, or removing one from a group at its minimum.
type GroupLimitError struct {
	SessionID string
	GroupID   string
	Count     int
	Limit     int
	Adding    bool
}

func (e *GroupLimitError) Error() string {
	bound := "minimum"
	if e.Adding {
		bound = "maximum"
	}
	return fmt.Sprintf("%s: group %q is at its %s of %d instance(s) (session=%s)",
		ErrCodeGroupLimit, e.GroupID, bound, e.Limit, e.SessionID)
}

// Code returns the error category.
func (e *GroupLimitError) Code() ErrorCode { return ErrCodeGroupLimit }

// IsUnknownQuestion returns true if the error is an UnknownQuestionError.
// Uses errors.As to handle wrapped errors.
func IsUnknownQuestion(err error) bool {
	var uq *UnknownQuestionError
	return errors.As(err, &uq)
}

// IsStepOutOfRange returns true if the error is a StepOutOfRangeError.
func IsStepOutOfRange(err error) bool {
	var so *StepOutOfRangeError
	return errors.As(err, &so)
}

// IsUnknownGroup returns true if the error is an UnknownGroupError.
func IsUnknownGroup(err error) bool {
	var ug *UnknownGroupError
	return errors.As(err, &ug)
}

// IsGroupLimit returns true if the error is a GroupLimitError.
func IsGroupLimit(err error) bool {
	var gl *GroupLimitError
	return errors.As(err, &gl)
}
