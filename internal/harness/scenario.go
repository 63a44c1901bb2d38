package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/dpmcheck/internal/compiler"
	"github.com/roach88/dpmcheck/internal/ir"
	"github.com/roach88/dpmcheck/internal/store"
)

// Scenario defines a conformance test scenario: rules, the tables they run
// against, and what the validation report must say.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Catalog is an optional CUE catalog file.
	// Relative paths are resolved against the scenario file location.
	Catalog string `yaml:"catalog,omitempty"`

	// Rules are inline catalog entries, compiled after Catalog.
	Rules []compiler.RuleSpec `yaml:"rules,omitempty"`

	// Tables are the report tables, in table dump form.
	Tables []store.TableSpec `yaml:"tables"`

	// Options tune the validator. Results must not depend on them.
	Options Options `yaml:"options,omitempty"`

	// Expect holds report-level expectations. Unset fields are not checked.
	Expect Expect `yaml:"expect"`

	// Assertions check individual findings.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Options configures the validator for a scenario.
type Options struct {
	Workers   int    `yaml:"workers,omitempty"`
	ChunkSize int    `yaml:"chunk_size,omitempty"`
	CodeMatch string `yaml:"code_match,omitempty"`
}

// Expect specifies report-level totals.
type Expect struct {
	OverallPass *bool `yaml:"overall_pass,omitempty"`
	TotalErrors *int  `yaml:"total_errors,omitempty"`
	Failures    *int  `yaml:"failures,omitempty"`
	EvalErrors  *int  `yaml:"eval_errors,omitempty"`
	Warnings    *int  `yaml:"warnings,omitempty"`
	Rejected    *int  `yaml:"rejected,omitempty"`
}

// Assertion validates one aspect of the report.
type Assertion struct {
	// Type specifies the assertion type:
	// - "failure": a failure finding for Rule exists
	// - "no_failure": Rule has no failure finding
	// - "eval_error": an evaluation error for Rule exists
	// - "warning": Rule produced a not-applicable warning
	// - "table_status": Table has Status
	Type string `yaml:"type"`

	// Rule is the rule id (all types except table_status).
	Rule string `yaml:"rule,omitempty"`

	// Table restricts the match to one table (optional except for
	// table_status). Sheet and canonical ids both match.
	Table string `yaml:"table,omitempty"`

	// Row restricts failure and eval_error to one data row.
	Row *int `yaml:"row,omitempty"`

	// Totals restricts failure and eval_error to the totals row.
	Totals bool `yaml:"totals,omitempty"`

	// Message is the exact finding message (failure) or a substring of
	// it (eval_error).
	Message string `yaml:"message,omitempty"`

	// Code is the error code (eval_error, warning).
	Code string `yaml:"code,omitempty"`

	// Status is the expected table status (table_status).
	Status string `yaml:"status,omitempty"`
}

// Assertion type constants.
const (
	AssertFailure     = "failure"
	AssertNoFailure   = "no_failure"
	AssertEvalError   = "eval_error"
	AssertWarning     = "warning"
	AssertTableStatus = "table_status"
)

// CatalogNotFoundError is returned when a scenario references a catalog
// file that doesn't exist.
type CatalogNotFoundError struct {
	Scenario     string
	CatalogPath  string
	ResolvedPath string
}

// Error implements the error interface.
func (e *CatalogNotFoundError) Error() string {
	return fmt.Sprintf(
		"scenario %q references catalog %q which does not exist (resolved to: %s)",
		e.Scenario,
		e.CatalogPath,
		e.ResolvedPath,
	)
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, filepath.Dir(path))
}

// ParseScenario parses scenario YAML. A relative catalog path is resolved
// against basePath.
func ParseScenario(data []byte, basePath string) (*Scenario, error) {
	// Reject unknown fields (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Catalog != "" && !filepath.IsAbs(scenario.Catalog) && basePath != "" {
		resolved := filepath.Join(basePath, scenario.Catalog)
		if _, err := os.Stat(resolved); os.IsNotExist(err) {
			return nil, &CatalogNotFoundError{
				Scenario:     scenario.Name,
				CatalogPath:  scenario.Catalog,
				ResolvedPath: resolved,
			}
		}
		scenario.Catalog = resolved
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every *.yaml scenario in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	names := make(map[string]string)
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		if prev, ok := names[s.Name]; ok {
			return nil, fmt.Errorf("%s: scenario name %q already used by %s", filepath.Base(p), s.Name, prev)
		}
		names[s.Name] = filepath.Base(p)
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// Dump returns the scenario's tables as ir tables.
func (s *Scenario) Dump() ([]*ir.Table, error) {
	return store.TableDump{Tables: s.Tables}.ToTables()
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Catalog == "" && len(s.Rules) == 0 {
		return fmt.Errorf("catalog or rules is required")
	}

	if len(s.Tables) == 0 {
		return fmt.Errorf("tables list is required and must be non-empty")
	}

	for i, r := range s.Rules {
		if r.ID == "" {
			return fmt.Errorf("rules[%d]: id is required", i)
		}
		if r.Expression == "" {
			return fmt.Errorf("rules[%d]: expression is required", i)
		}
	}

	if s.Options.Workers < 0 || s.Options.ChunkSize < 0 {
		return fmt.Errorf("options: workers and chunk_size must not be negative")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFailure, AssertNoFailure, AssertEvalError, AssertWarning:
		if a.Rule == "" {
			return fmt.Errorf("assertions[%d]: rule is required for %s", index, a.Type)
		}
		if a.Row != nil && a.Totals {
			return fmt.Errorf("assertions[%d]: row and totals are exclusive", index)
		}
	case AssertTableStatus:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for table_status", index)
		}
		switch ir.TableStatus(a.Status) {
		case ir.StatusPass, ir.StatusFail, ir.StatusError:
		default:
			return fmt.Errorf("assertions[%d]: status must be PASS, FAIL or ERROR", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
