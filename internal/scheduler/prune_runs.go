package scheduler

import (
	"github.com/rs/zerolog"
)

// RunPruner deletes finished runs past their retention
type RunPruner interface {
	Prune(retentionDays int) (int64, error)
}

// PruneRunsJob deletes finished runs older than the retention window
type PruneRunsJob struct {
	log           zerolog.Logger
	pruner        RunPruner
	retentionDays int
}

// NewPruneRunsJob creates a new PruneRunsJob. A retention of zero days keeps
// every run.
func NewPruneRunsJob(pruner RunPruner, retentionDays int) *PruneRunsJob {
	return &PruneRunsJob{
		log:           zerolog.Nop(),
		pruner:        pruner,
		retentionDays: retentionDays,
	}
}

// SetLogger sets the logger for the job
func (j *PruneRunsJob) SetLogger(log zerolog.Logger) {
	j.log = log
}

// Name returns the job name
func (j *PruneRunsJob) Name() string {
	return "prune_runs"
}

// Run executes the prune runs job
func (j *PruneRunsJob) Run() error {
	if j.retentionDays <= 0 {
		j.log.Debug().Msg("Run retention disabled, nothing to prune")
		return nil
	}

	deleted, err := j.pruner.Prune(j.retentionDays)
	if err != nil {
		return err
	}

	j.log.Info().
		Int64("deleted", deleted).
		Int("retention_days", j.retentionDays).
		Msg("Prune runs completed")
	return nil
}
