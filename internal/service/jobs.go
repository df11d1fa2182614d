package service

import (
	"context"
	"time"

	"ufmedic/pkg/eventlog"
	"ufmedic/pkg/logger"
)

// StatsSnapshotJob periodically recomputes statistics from the event log
// and publishes them to the advisory snapshot file.
type StatsSnapshotJob struct {
	orch     *Orchestrator
	sysLog   *eventlog.SystemLog
	interval time.Duration
}

// NewStatsSnapshotJob returns a snapshot job running at the given interval.
func NewStatsSnapshotJob(orch *Orchestrator, sysLog *eventlog.SystemLog, interval time.Duration) *StatsSnapshotJob {
	return &StatsSnapshotJob{orch: orch, sysLog: sysLog, interval: interval}
}

func (j *StatsSnapshotJob) Name() string { return "stats-snapshot" }

func (j *StatsSnapshotJob) Interval() time.Duration { return j.interval }

func (j *StatsSnapshotJob) Run(ctx context.Context) error {
	stats := j.orch.Stats(ctx)
	if err := j.sysLog.WriteStatsSnapshot(stats); err != nil {
		return err
	}
	logger.DebugCtx(ctx, "stats snapshot written: %d tasks, %.2f%% success", stats.TotalTasks, stats.SuccessRate)
	return nil
}

// InventoryPruner removes stale generated inventory files.
type InventoryPruner interface {
	PruneInventories() int
}

// InventoryPruneJob periodically removes inventory files orphaned by
// crashed runs.
type InventoryPruneJob struct {
	pruner   InventoryPruner
	interval time.Duration
}

// NewInventoryPruneJob returns a prune job running at the given interval.
func NewInventoryPruneJob(pruner InventoryPruner, interval time.Duration) *InventoryPruneJob {
	return &InventoryPruneJob{pruner: pruner, interval: interval}
}

func (j *InventoryPruneJob) Name() string { return "inventory-prune" }

func (j *InventoryPruneJob) Interval() time.Duration { return j.interval }

func (j *InventoryPruneJob) Run(ctx context.Context) error {
	if n := j.pruner.PruneInventories(); n > 0 {
		logger.InfoCtx(ctx, "pruned %d stale inventory files", n)
	}
	return nil
}
