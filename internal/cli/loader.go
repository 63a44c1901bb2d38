package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/dpmcheck/internal/catalog"
	"github.com/roach88/dpmcheck/internal/compiler"
	"github.com/roach88/dpmcheck/internal/expr"
	"github.com/roach88/dpmcheck/internal/ir"
)

// LoadMode controls how errors are handled during catalog loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first rejected rule.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll compiles every entry and collects all rejections.
	LoadModeCollectAll
)

// EmbeddedCatalog is the Source of the built-in catalog.
const EmbeddedCatalog = "embedded"

// LoadResult contains the rules loaded from a catalog.
type LoadResult struct {
	Rules     []*ir.Rule
	Source    string // catalog directory, or EmbeddedCatalog
	FileCount int    // Number of CUE files found
}

// LoadError represents an error that occurred during catalog loading.
type LoadError struct {
	Code    string
	Message string
	RuleID  string
	Pos     token.Pos // CUE position if available

	// Err is the compiler error the entry was rejected with, if any.
	Err error
}

func (e *LoadError) Error() string {
	prefix := ""
	if e.RuleID != "" {
		prefix = "rule " + e.RuleID + ": "
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s%s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, prefix, e.Message)
	}
	return fmt.Sprintf("%s: %s%s", e.Code, prefix, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// LoadCatalog loads and compiles the rule catalog in dir. An empty dir
// selects the embedded catalog.
//
// A nil result means nothing could be loaded. Otherwise the result holds
// every rule that compiled, and the errors are the rejected entries.
func LoadCatalog(dir string, mode LoadMode) (*LoadResult, []error) {
	if dir == "" {
		rules, rejected := catalog.Load()
		result := &LoadResult{Rules: rules, Source: EmbeddedCatalog, FileCount: len(catalog.Files())}
		return result, convertCompileErrors(rejected, mode)
	}

	// Verify directory exists
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("catalog directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing catalog directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	// Find CUE files
	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	// Load CUE instances
	ctx := cuecontext.New()
	cfg := &load.Config{Dir: dir}
	instances := load.Instances([]string{"."}, cfg)
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}

	// Check for load errors
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	// Build value from instance
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	rules, rejected := compiler.CompileCatalog(value)
	result := &LoadResult{
		Rules:     rules,
		Source:    dir,
		FileCount: len(cueFiles),
	}
	errs := convertCompileErrors(rejected, mode)

	// Check if we found anything
	if len(result.Rules) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoRules, Message: "no rules found in catalog"})
	}
	return result, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func convertCompileErrors(errs []error, mode LoadMode) []error {
	var out []error
	for _, err := range errs {
		out = append(out, convertCompileError(err))
		if mode == LoadModeFailFast {
			break
		}
	}
	return out
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			RuleID:  compileErr.RuleID,
			Pos:     compileErr.Pos,
			Err:     err,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: err.Error(),
		Err:     err,
	}
}

// logRejected records rejected catalog entries. Validation continues
// without them.
func logRejected(logger *slog.Logger, errs []error) {
	for _, err := range errs {
		logger.Warn("rule rejected",
			slog.String("kind", rejectionKind(err)),
			slog.String("error", err.Error()))
	}
}

// rejectionKind tells expression syntax errors apart from other faults in
// a catalog entry.
func rejectionKind(err error) string {
	switch {
	case expr.IsParseError(err):
		return "syntax"
	case compiler.IsCompileError(err):
		return "entry"
	}
	return "catalog"
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeNoRules     = "E008" // Catalog holds no rules
	ErrCodeStore       = "E009" // Store could not be opened or read

	// Catalog entry errors
	ErrCodeRuleID     = "E010" // Missing rule id
	ErrCodeExpression = "E011" // Expression does not parse
	ErrCodeSource     = "E012" // Unknown provenance
	ErrCodeKind       = "E013" // Unknown or conflicting kind
	ErrCodeSchema     = "E014" // Entry does not satisfy #Rule

	// Run outcomes
	ErrCodeValidationFailed = "E020" // Rule failures or evaluation errors
	ErrCodeRunNotFound      = "E021" // No such run in the store
	ErrCodeTestFailed       = "E022" // One or more scenarios failed
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "id":
		return ErrCodeRuleID
	case "expression":
		return ErrCodeExpression
	case "source":
		return ErrCodeSource
	case "kind":
		return ErrCodeKind
	case "cue":
		return ErrCodeSchema
	default:
		return ErrCodeGeneric
	}
}
