package scheduler

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testutil "github.com/aristath/hybrid/internal/testing"
)

func TestCheckWALCheckpointsJob_Name(t *testing.T) {
	job := &CheckWALCheckpointsJob{
		log: zerolog.Nop(),
	}
	assert.Equal(t, "check_wal_checkpoints", job.Name())
}

func TestCheckWALCheckpointsJob_Run_NoDatabases(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)
	job := NewCheckWALCheckpointsJob(nil, nil)
	job.SetLogger(log)

	err := job.Run()
	assert.NoError(t, err) // Should handle nil databases gracefully
}

func TestCheckWALCheckpointsJob_Run(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t, "runs")
	defer cleanup()

	job := NewCheckWALCheckpointsJob(db)
	job.SetLogger(zerolog.New(nil).Level(zerolog.Disabled))
	assert.NoError(t, job.Run())
}

func TestCheckWALCheckpointsJob_Run_ClosedDatabase(t *testing.T) {
	db, cleanup := testutil.NewTestDB(t, "runs")
	defer cleanup()
	require.NoError(t, db.Close())

	job := NewCheckWALCheckpointsJob(db)
	assert.Error(t, job.Run())
}
