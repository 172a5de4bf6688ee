package backtest

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/anjeshnu/quantfolio/internal/database"
)

// Store persists completed runs. Summaries and record series are stored
// as msgpack blobs keyed by run ID.
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

// NewStore creates a run store over an open database.
func NewStore(db *database.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("component", "backtest_store").Logger(),
	}
}

// storedRecords is the msgpack payload for the records column.
type storedRecords struct {
	Symbols []string `msgpack:"symbols"`
	Records []Record `msgpack:"records"`
}

// Save persists one run.
func (s *Store) Save(ctx context.Context, result *RunResult) error {
	summary, err := msgpack.Marshal(result.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	records, err := msgpack.Marshal(storedRecords{
		Symbols: result.Symbols,
		Records: result.Records,
	})
	if err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}

	_, err = s.db.Conn().ExecContext(ctx,
		`INSERT INTO backtest_runs (run_id, strategy, started_at, summary, records)
		 VALUES (?, ?, ?, ?, ?)`,
		result.RunID, result.Strategy, result.StartedAt.Format(time.RFC3339), summary, records,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", result.RunID, err)
	}

	s.log.Info().
		Str("run_id", result.RunID).
		Str("strategy", result.Strategy).
		Int("records", len(result.Records)).
		Msg("Saved backtest run")
	return nil
}

// Get loads one run by ID. Returns (nil, nil) when the run does not
// exist.
func (s *Store) Get(ctx context.Context, runID string) (*RunResult, error) {
	var (
		strategy  string
		startedAt string
		summary   []byte
		records   []byte
	)
	err := s.db.Conn().QueryRowContext(ctx,
		`SELECT strategy, started_at, summary, records FROM backtest_runs WHERE run_id = ?`,
		runID,
	).Scan(&strategy, &startedAt, &summary, &records)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	result := &RunResult{RunID: runID, Strategy: strategy}
	if result.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
		return nil, fmt.Errorf("failed to parse started_at for run %s: %w", runID, err)
	}
	if err := msgpack.Unmarshal(summary, &result.Summary); err != nil {
		return nil, fmt.Errorf("failed to decode summary for run %s: %w", runID, err)
	}
	var stored storedRecords
	if err := msgpack.Unmarshal(records, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode records for run %s: %w", runID, err)
	}
	result.Symbols = stored.Symbols
	result.Records = stored.Records
	return result, nil
}

// RunInfo is the listing row for a stored run.
type RunInfo struct {
	RunID     string    `json:"run_id"`
	Strategy  string    `json:"strategy"`
	StartedAt time.Time `json:"started_at"`
	Summary   Summary   `json:"summary"`
}

// List returns stored runs, newest first. An empty strategy matches all.
func (s *Store) List(ctx context.Context, strategy string, limit int) ([]RunInfo, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT run_id, strategy, started_at, summary FROM backtest_runs`
	args := []interface{}{}
	if strategy != "" {
		query += ` WHERE strategy = ?`
		args = append(args, strategy)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		var (
			info      RunInfo
			startedAt string
			summary   []byte
		)
		if err := rows.Scan(&info.RunID, &info.Strategy, &startedAt, &summary); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		if info.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
			return nil, fmt.Errorf("failed to parse started_at: %w", err)
		}
		if err := msgpack.Unmarshal(summary, &info.Summary); err != nil {
			return nil, fmt.Errorf("failed to decode summary: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep runs for a strategy and returns
// the number removed. The scan and the deletes share one transaction so a
// concurrent Save cannot slip a run between them.
func (s *Store) Prune(ctx context.Context, strategy string, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	removed := 0
	err := database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT run_id FROM backtest_runs WHERE strategy = ?
			 ORDER BY started_at DESC LIMIT -1 OFFSET ?`,
			strategy, keep)
		if err != nil {
			return fmt.Errorf("failed to scan stale runs: %w", err)
		}
		defer rows.Close()

		var stale []string
		for rows.Next() {
			var runID string
			if err := rows.Scan(&runID); err != nil {
				return fmt.Errorf("failed to scan run id: %w", err)
			}
			stale = append(stale, runID)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, runID := range stale {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM backtest_runs WHERE run_id = ?`, runID); err != nil {
				return fmt.Errorf("failed to delete run %s: %w", runID, err)
			}
		}
		removed = len(stale)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		s.log.Info().
			Str("strategy", strategy).
			Int("removed", removed).
			Msg("Pruned old backtest runs")
	}
	return removed, nil
}

// Delete removes one run. Missing runs are not an error.
func (s *Store) Delete(ctx context.Context, runID string) error {
	_, err := s.db.Conn().ExecContext(ctx,
		`DELETE FROM backtest_runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", runID, err)
	}
	return nil
}
