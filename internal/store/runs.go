package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/dpmcheck/internal/ir"
)

// ErrRunNotFound is returned by ReadRun for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// RunSummary is the listing form of a stored run.
type RunSummary struct {
	Seq         int64  `json:"seq"`
	ID          string `json:"id"`
	CatalogHash string `json:"catalog_hash"`
	Version     string `json:"version"`
	OverallPass bool   `json:"overall_pass"`
	Complete    bool   `json:"complete"`
	TotalErrors int    `json:"total_errors"`
	Tables      int    `json:"tables"`
}

// RunFinding is one stored failure or evaluation error.
type RunFinding struct {
	RunID    string     `json:"run_id"`
	TableID  string     `json:"table_id"`
	RuleID   string     `json:"rule_id"`
	RowIndex *int       `json:"row_index,omitempty"`
	Outcome  ir.Outcome `json:"outcome"`
	Message  string     `json:"message"`
	Code     string     `json:"code,omitempty"`
}

// WriteRun stores a report and indexes its findings. Writing a run id that
// already exists is silently ignored, so a retried write is harmless.
func (s *Store) WriteRun(ctx context.Context, r *ir.Report) error {
	data, err := marshalReport(r)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, catalog_hash, version, overall_pass, complete, total_errors, tables, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		r.RunID,
		r.CatalogHash,
		r.Version,
		r.OverallPass,
		r.Complete,
		r.TotalErrors,
		len(r.Tables),
		data,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}

	seq := 0
	for _, t := range r.Tables {
		for _, group := range []struct {
			outcome  ir.Outcome
			findings []ir.Finding
		}{
			{ir.OutcomeFail, t.Failures},
			{ir.OutcomeEvalError, t.Errors},
		} {
			for _, f := range group.findings {
				var row sql.NullInt64
				if f.RowIndex != nil {
					row = sql.NullInt64{Int64: int64(*f.RowIndex), Valid: true}
				}
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO run_findings
					(run_id, seq, table_id, rule_id, row_index, outcome, message, code)
					VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				`, r.RunID, seq, t.TableID, f.RuleID, row, string(group.outcome), f.Message, f.Code); err != nil {
					return fmt.Errorf("write run: finding %d: %w", seq, err)
				}
				seq++
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// ReadRun returns the stored report for id, or ErrRunNotFound.
func (s *Store) ReadRun(ctx context.Context, id string) (*ir.Report, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT report FROM runs WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read run %s: %w", id, err)
	}
	return unmarshalReport(data)
}

// LatestRun returns the most recently written report, or ErrRunNotFound
// when the store holds no runs.
func (s *Store) LatestRun(ctx context.Context) (*ir.Report, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT report FROM runs ORDER BY seq DESC LIMIT 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("latest run: %w", ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return unmarshalReport(data)
}

// ListRuns returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, catalog_hash, version, overall_pass, complete, total_errors, tables
		FROM runs
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.Seq, &r.ID, &r.CatalogHash, &r.Version,
			&r.OverallPass, &r.Complete, &r.TotalErrors, &r.Tables); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// ReadFindings returns the findings of a run in report order. A non-empty
// ruleID restricts the result to that rule.
func (s *Store) ReadFindings(ctx context.Context, runID, ruleID string) ([]RunFinding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, table_id, rule_id, row_index, outcome, message, code
		FROM run_findings
		WHERE run_id = ? AND (? = '' OR rule_id = ?)
		ORDER BY seq ASC
	`, runID, ruleID, ruleID)
	if err != nil {
		return nil, fmt.Errorf("read findings: %w", err)
	}
	defer rows.Close()

	findings := []RunFinding{}
	for rows.Next() {
		var (
			f       RunFinding
			row     sql.NullInt64
			outcome string
		)
		if err := rows.Scan(&f.RunID, &f.TableID, &f.RuleID, &row, &outcome, &f.Message, &f.Code); err != nil {
			return nil, fmt.Errorf("read findings: %w", err)
		}
		if row.Valid {
			i := int(row.Int64)
			f.RowIndex = &i
		}
		f.Outcome = ir.Outcome(outcome)
		findings = append(findings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read findings: %w", err)
	}
	return findings, nil
}
