// Package ir provides the canonical intermediate representation for qflow
// questionnaire templates and answers.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal. This keeps the
// template model the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Value is a sealed interface; only the six answer kinds implement it
//   - Unanswered fields are absent from an AnswerSet, never stored as Null
//   - Operators, effects and input types are closed enumerations parsed at load time
//   - All JSON tags use snake_case
package ir
