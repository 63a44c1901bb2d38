package cli

import (
	"bytes"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dpmcheck/internal/compiler"
)

func TestLoadCatalogKeepsCompileError(t *testing.T) {
	result, errs := LoadCatalog(filepath.Join("testdata", "catalog_bad"), LoadModeCollectAll)
	require.NotNil(t, result)
	require.Len(t, result.Rules, 1)
	require.Len(t, errs, 1)

	var loadErr *LoadError
	require.True(t, errors.As(errs[0], &loadErr))
	assert.Equal(t, ErrCodeExpression, loadErr.Code)
	assert.Equal(t, "R_BAD", loadErr.RuleID)
	assert.True(t, compiler.IsCompileError(errs[0]), "the compiler error stays in the chain")
	assert.Equal(t, "syntax", rejectionKind(errs[0]))
}

func TestRejectionKind(t *testing.T) {
	_, err := compiler.CompileRule(compiler.RuleSpec{ID: "R1", Expression: "{c0010} > 0", Source: "sheet"})
	require.Error(t, err)

	assert.Equal(t, "entry", rejectionKind(convertCompileError(err)))
	assert.Equal(t, "catalog", rejectionKind(errors.New("no CUE instances loaded")))
}

func TestLogRejected(t *testing.T) {
	_, errs := LoadCatalog(filepath.Join("testdata", "catalog_bad"), LoadModeCollectAll)

	var buf bytes.Buffer
	logRejected(slog.New(slog.NewTextHandler(&buf, nil)), errs)

	out := buf.String()
	assert.Contains(t, out, `msg="rule rejected"`)
	assert.Contains(t, out, "kind=syntax")
	assert.Contains(t, out, "R_BAD")
}
