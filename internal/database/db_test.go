package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRunsDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{
		Path: filepath.Join(t.TempDir(), "nested", "runs.db"),
		Name: "runs",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrate_IsIdempotent(t *testing.T) {
	db := newRunsDB(t)

	require.NoError(t, db.Migrate())
	require.NoError(t, db.Migrate())

	for _, table := range []string{"runs", "evaluations"} {
		var name string
		err := db.Conn().QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_UnknownNameIsNoop(t *testing.T) {
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "x.db"), Name: "scratch", Profile: ProfileCache})
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, db.Migrate())
	assert.Equal(t, "scratch", db.Name())
	assert.True(t, filepath.IsAbs(db.Path()))
}

func TestForeignKeysCascade(t *testing.T) {
	db := newRunsDB(t)
	require.NoError(t, db.Migrate())

	_, err := db.Conn().Exec(`INSERT INTO runs (id, problem, kernel, optimizer, initial_params, state, started_at)
		VALUES ('r1', 'deuteron', 'ansatz', 'nelder-mead', x'90', 'completed', 1)`)
	require.NoError(t, err)
	_, err = db.Conn().Exec(`INSERT INTO evaluations (run_id, sequence, params, energy, term_values, evaluated_at)
		VALUES ('r1', 0, x'90', -1.0, x'90', 1)`)
	require.NoError(t, err)

	_, err = db.Conn().Exec(`DELETE FROM runs WHERE id = 'r1'`)
	require.NoError(t, err)

	var n int
	require.NoError(t, db.Conn().QueryRow(`SELECT COUNT(*) FROM evaluations`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestWithTransaction(t *testing.T) {
	db := newRunsDB(t)
	_, err := db.Conn().Exec(`CREATE TABLE t (v INTEGER)`)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO t VALUES (1)`); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		panic("unexpected")
	})
	assert.Error(t, err)

	require.NoError(t, WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO t VALUES (2)`)
		return err
	}))

	var sum int
	require.NoError(t, db.Conn().QueryRow(`SELECT COALESCE(SUM(v), 0) FROM t`).Scan(&sum))
	assert.Equal(t, 2, sum)

	assert.Error(t, WithTransaction(nil, func(*sql.Tx) error { return nil }))
}

func TestMaintenance(t *testing.T) {
	db := newRunsDB(t)
	require.NoError(t, db.Migrate())

	assert.NoError(t, db.HealthCheck(context.Background()))
	assert.NoError(t, db.WALCheckpoint(""))
	assert.NoError(t, db.IncrementalVacuum(100))

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Greater(t, stats.PageCount, int64(0))
	assert.Greater(t, stats.PageSize, int64(0))
}
