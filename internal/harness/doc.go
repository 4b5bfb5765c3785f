// Package harness runs questionnaire scenarios as executable contract tests.
//
// A scenario names a template, submits answers one at a time and asserts on
// the session state after each submission and at the end.
//
// # Scenario Format
//
//	name: evlilik-tarihi-acar
//	description: "Entering the marriage date reveals the children question"
//	template: ../templates/evlilik.yaml   # or template_id: anlasmali-bosanma
//	today: 2024-03-01
//	policy: retain                        # or clear
//	flow:
//	  - question: evlilik_tarihi
//	    value: "2020-05-10"
//	    final: true
//	    expect:
//	      - type: visible_contains
//	        questions: [cocuk_var_mi]
//	  - question: bilinmeyen
//	    value: x
//	    expect:
//	      - type: error
//	        code: UNKNOWN_QUESTION
//	assertions:
//	  - type: completion
//	    value: 50
//
// # Assertion Types
//
//   - visible_contains / visible_excludes / visible_exact: visible question set
//   - required_contains / required_excludes: required question set
//   - completion: completion percentage
//   - complete: whether every visible step is complete
//   - answer_equals / answer_absent: stored answer of a question
//   - validation_error: the question has validation messages
//   - current_step: id of the active step
//   - error: engine error code of the step's submission (flow only)
//
// # Deterministic Testing
//
// Each run uses a fixed session id, a manual clock pinned to the scenario's
// "today" and a fresh in-memory SQLite store. After the flow, the session is
// rebuilt from the store's answer log and must match the live session.
// Traces are rendered as canonical JSON for golden comparison.
package harness
