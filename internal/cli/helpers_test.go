package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dpmcheck/internal/engine"
	"github.com/roach88/dpmcheck/internal/store"
)

const testRunID = "run-fixed"

// execute runs cmd with args and returns its stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// createTestDB imports testdata/tables.yaml into a fresh database.
func createTestDB(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "report.db")

	f, err := os.Open(filepath.Join("testdata", "tables.yaml"))
	require.NoError(t, err)
	defer f.Close()
	tables, err := store.ReadTableDump(f)
	require.NoError(t, err)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	for _, tbl := range tables {
		require.NoError(t, st.WriteTable(context.Background(), tbl, "tables.yaml"))
	}
	return dbPath
}

// validateCommand builds a validate command with a fixed run id.
func validateCommand(format string) *cobra.Command {
	return newValidateCommand(&ValidateOptions{
		RootOptions: &RootOptions{Format: format},
		RunIDs:      engine.NewFixedGenerator(testRunID),
	})
}

// validatedDB returns a database holding one run, testRunID.
func validatedDB(t *testing.T) string {
	t.Helper()
	dbPath := createTestDB(t)
	_, err := execute(t, validateCommand("text"), "--db", dbPath, "--catalog", filepath.Join("testdata", "catalog"))
	require.Error(t, err)
	require.Equal(t, ExitFailure, GetExitCode(err))
	return dbPath
}
