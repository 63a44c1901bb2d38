// Package harness provides conformance testing for rule catalogs.
//
// A scenario pairs a handful of rules with report tables and states what
// validation must report. The harness runs the real pipeline (compile,
// store, bind, evaluate, aggregate) and checks the report against the
// scenario's expectations.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	catalog: rules.cue            # optional, relative to the scenario file
//	rules:                        # inline rules, appended after the catalog
//	  - id: R1
//	    expression: "{c0010} >= 0"
//	    table: tB_01.01
//	tables:
//	  - id: tB_01.01
//	    columns: [c0010]
//	    rows:
//	      - {c0010: 5}
//	options:
//	  workers: 4
//	  chunk_size: 2
//	expect:
//	  overall_pass: false
//	  total_errors: 1
//	assertions:
//	  - type: failure
//	    rule: R1
//	    row: 0
//	    message: "expected 5 < 0"
//
// # Assertion Types
//
//   - failure: a failure for rule (optionally at table/row, with message)
//   - no_failure: rule never fails
//   - eval_error: an evaluation error for rule (optionally with code)
//   - warning: rule was not applicable (optionally with context error code)
//   - table_status: table ends with status PASS, FAIL or ERROR
//
// # Deterministic Testing
//
// Every scenario runs against a fresh in-memory SQLite store with a fixed
// run id, so reports are identical across runs and worker counts and can
// be compared against golden snapshots (testdata/golden).
package harness
