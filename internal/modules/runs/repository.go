package runs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/hybrid/internal/database"
	"github.com/aristath/hybrid/internal/domain"
	"github.com/aristath/hybrid/internal/utils"
)

// Repository handles run database operations
type Repository struct {
	db  *sql.DB // runs.db - runs and evaluations tables
	log zerolog.Logger
}

// runsColumns is the list of columns for the runs table
// Column order must match scanRun()
const runsColumns = `id, problem, kernel, optimizer, options, initial_params, state, status, energy, params, evaluations, executor_calls, error, started_at, finished_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// NewRepository creates a new run repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "runs").Logger(),
	}
}

// Create inserts a run in the running state
func (r *Repository) Create(run *Run) error {
	options, err := json.Marshal(run.Options)
	if err != nil {
		return fmt.Errorf("failed to encode options for run %s: %w", run.ID, err)
	}
	if run.Options == nil {
		options = []byte("{}")
	}
	initial, err := msgpack.Marshal(run.InitialParams)
	if err != nil {
		return fmt.Errorf("failed to encode initial params for run %s: %w", run.ID, err)
	}

	query := `
		INSERT INTO runs
		(id, problem, kernel, optimizer, options, initial_params, state, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query,
		run.ID,
		run.Problem,
		run.Kernel,
		run.Optimizer,
		string(options),
		initial,
		string(run.State),
		run.StartedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", run.ID, err)
	}

	r.log.Debug().Str("run_id", run.ID).Str("problem", run.Problem).Msg("Run created")
	return nil
}

// Finish stores the final summary of a run together with its evaluation
// history in one transaction. Evaluations already stored for the run are kept.
func (r *Repository) Finish(run *Run, evaluations []Evaluation) error {
	timer := utils.NewTimer("persist_run", r.log)

	var params []byte
	if run.Params != nil {
		encoded, err := msgpack.Marshal(run.Params)
		if err != nil {
			return fmt.Errorf("failed to encode params for run %s: %w", run.ID, err)
		}
		params = encoded
	}

	var finishedAt interface{}
	if run.FinishedAt != nil {
		finishedAt = run.FinishedAt.UnixMilli()
	}

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE runs
			SET state = ?, status = ?, energy = ?, params = ?, evaluations = ?,
			    executor_calls = ?, error = ?, finished_at = ?
			WHERE id = ?
		`,
			string(run.State),
			nullString(run.Status),
			nullFloat64Ptr(run.Energy),
			params,
			run.Evaluations,
			run.ExecutorCalls,
			nullString(run.Error),
			finishedAt,
			run.ID,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("run %s: %w", run.ID, domain.ErrNotFound)
		}

		stmt, err := tx.Prepare(`
			INSERT OR IGNORE INTO evaluations
			(run_id, sequence, params, energy, term_values, evaluated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, ev := range evaluations {
			p, err := msgpack.Marshal(ev.Params)
			if err != nil {
				return fmt.Errorf("failed to encode evaluation %d: %w", ev.Sequence, err)
			}
			tv, err := msgpack.Marshal(ev.TermValues)
			if err != nil {
				return fmt.Errorf("failed to encode term values %d: %w", ev.Sequence, err)
			}
			if _, err := stmt.Exec(run.ID, ev.Sequence, p, ev.Energy, tv, ev.EvaluatedAt.UnixMilli()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", run.ID, err)
	}

	timer.StopWithContext(map[string]interface{}{
		"run_id":      run.ID,
		"state":       string(run.State),
		"evaluations": len(evaluations),
	})
	return nil
}

// Get retrieves a run by ID
func (r *Repository) Get(id string) (*Run, error) {
	row := r.db.QueryRow("SELECT "+runsColumns+" FROM runs WHERE id = ?", id)
	run, err := r.scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return run, nil
}

// List returns runs matching filter, newest first
func (r *Repository) List(filter ListFilter) ([]Run, error) {
	var (
		where []string
		args  []interface{}
	)
	if len(filter.States) > 0 {
		placeholders := make([]string, len(filter.States))
		for i, s := range filter.States {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "state IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.Problem != "" {
		where = append(where, "problem = ?")
		args = append(args, filter.Problem)
	}

	query := "SELECT " + runsColumns + " FROM runs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id LIMIT ?"

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// Evaluations returns the stored history of a run in sequence order
func (r *Repository) Evaluations(runID string) ([]Evaluation, error) {
	rows, err := r.db.Query(`
		SELECT sequence, params, energy, term_values, evaluated_at
		FROM evaluations
		WHERE run_id = ?
		ORDER BY sequence
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query evaluations for run %s: %w", runID, err)
	}
	defer rows.Close()

	out := make([]Evaluation, 0)
	for rows.Next() {
		var (
			ev          Evaluation
			params, tvs []byte
			evaluatedAt int64
		)
		if err := rows.Scan(&ev.Sequence, &params, &ev.Energy, &tvs, &evaluatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}
		if err := msgpack.Unmarshal(params, &ev.Params); err != nil {
			return nil, fmt.Errorf("failed to decode params of evaluation %d: %w", ev.Sequence, err)
		}
		if err := msgpack.Unmarshal(tvs, &ev.TermValues); err != nil {
			return nil, fmt.Errorf("failed to decode term values of evaluation %d: %w", ev.Sequence, err)
		}
		ev.EvaluatedAt = time.UnixMilli(evaluatedAt)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating evaluations: %w", err)
	}
	return out, nil
}

// Delete removes a run and its history
func (r *Repository) Delete(id string) error {
	res, err := r.db.Exec("DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// PruneFinishedBefore deletes finished runs that started before cutoff and
// returns how many were deleted. Running runs are never pruned.
func (r *Repository) PruneFinishedBefore(cutoff time.Time) (int64, error) {
	done := utils.MeasureDBQuery("prune_runs", r.log)

	res, err := r.db.Exec(`
		DELETE FROM runs
		WHERE state != ? AND started_at < ?
	`, string(StateRunning), cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}

	n, _ := res.RowsAffected()
	done(n)
	return n, nil
}

// MarkInterrupted fails every run still marked running. Called at startup: no
// run survives a process restart.
func (r *Repository) MarkInterrupted(now time.Time) (int64, error) {
	res, err := r.db.Exec(`
		UPDATE runs SET state = ?, error = ?, finished_at = ?
		WHERE state = ?
	`, string(StateFailed), "interrupted by shutdown", now.UnixMilli(), string(StateRunning))
	if err != nil {
		return 0, fmt.Errorf("failed to mark interrupted runs: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		r.log.Warn().Int64("runs", n).Msg("Marked interrupted runs as failed")
	}
	return n, nil
}

func (r *Repository) scanRun(row rowScanner) (*Run, error) {
	var (
		run        Run
		options    string
		initial    []byte
		state      string
		status     sql.NullString
		energy     sql.NullFloat64
		params     []byte
		errText    sql.NullString
		startedAt  int64
		finishedAt sql.NullInt64
	)

	err := row.Scan(
		&run.ID,
		&run.Problem,
		&run.Kernel,
		&run.Optimizer,
		&options,
		&initial,
		&state,
		&status,
		&energy,
		&params,
		&run.Evaluations,
		&run.ExecutorCalls,
		&errText,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(options), &run.Options); err != nil {
		return nil, fmt.Errorf("failed to decode options of run %s: %w", run.ID, err)
	}
	if err := msgpack.Unmarshal(initial, &run.InitialParams); err != nil {
		return nil, fmt.Errorf("failed to decode initial params of run %s: %w", run.ID, err)
	}
	if len(params) > 0 {
		if err := msgpack.Unmarshal(params, &run.Params); err != nil {
			return nil, fmt.Errorf("failed to decode params of run %s: %w", run.ID, err)
		}
	}

	run.State = State(state)
	run.Status = status.String
	if energy.Valid {
		e := energy.Float64
		run.Energy = &e
	}
	run.Error = errText.String
	run.StartedAt = time.UnixMilli(startedAt)
	if finishedAt.Valid {
		t := time.UnixMilli(finishedAt.Int64)
		run.FinishedAt = &t
	}

	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat64Ptr(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
