package server

import (
	"context"
	"time"

	"github.com/mohammad-safakhou/vibeops/internal/logger"
	"github.com/mohammad-safakhou/vibeops/internal/metrics"
	"github.com/mohammad-safakhou/vibeops/internal/search"
	"github.com/mohammad-safakhou/vibeops/internal/store"
)

// Job names as they appear under scheduler.jobs.
const (
	JobActivateScheduledConfigs = "activate_scheduled_configs"
	JobReconcileBalances        = "reconcile_balances"
	JobReindexSearch            = "reindex_search"
	JobPruneIdempotency         = "prune_idempotency"
)

const idempotencyRetention = 7 * 24 * time.Hour

type jobStore interface {
	ActivateScheduledConfigs(ctx context.Context, now time.Time) ([]store.AlgorithmConfigRecord, error)
	ReconcileBalances(ctx context.Context) ([]store.BalanceMismatch, error)
	PruneIdempotency(ctx context.Context, olderThan time.Time) (int64, error)
	search.Lister
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

type reindexer interface {
	Reindex(ctx context.Context, src search.Lister, full bool) (int, error)
}

// MaintenanceJobs returns the periodic jobs. index may be nil when search is disabled.
func MaintenanceJobs(st jobStore, cache cacheInvalidator, index reindexer, log *logger.Logger) []Job {
	if log == nil {
		log = logger.Nop()
	}
	log = log.Named("jobs")
	jobs := []Job{
		{Name: JobActivateScheduledConfigs, Run: func(ctx context.Context) error {
			recs, err := st.ActivateScheduledConfigs(ctx, time.Now())
			if len(recs) > 0 {
				for _, rec := range recs {
					log.Info("scheduled config activated", "config_type", rec.Type, "version", rec.Version)
				}
				if cerr := cache.Invalidate(ctx); cerr != nil {
					log.Warn("snapshot cache invalidation failed", "error", cerr)
				}
			}
			return err
		}},
		{Name: JobReconcileBalances, Run: func(ctx context.Context) error {
			mismatches, err := st.ReconcileBalances(ctx)
			if err != nil {
				return err
			}
			metrics.BalanceMismatches.Set(float64(len(mismatches)))
			for _, m := range mismatches {
				log.Error("balance disagrees with ledger",
					"creator_id", m.CreatorID,
					"reserved_payout", m.ReservedPayout, "ledger_reserved", m.LedgerReserved,
					"total_withdrawn", m.TotalWithdrawn, "ledger_withdrawn", m.LedgerWithdrawn)
			}
			return nil
		}},
		{Name: JobPruneIdempotency, Run: func(ctx context.Context) error {
			n, err := st.PruneIdempotency(ctx, time.Now().Add(-idempotencyRetention))
			if n > 0 {
				log.Info("idempotency keys pruned", "count", n)
			}
			return err
		}},
	}
	if index != nil {
		jobs = append(jobs, Job{Name: JobReindexSearch, Run: func(ctx context.Context) error {
			_, err := index.Reindex(ctx, st, false)
			return err
		}})
	}
	return jobs
}
