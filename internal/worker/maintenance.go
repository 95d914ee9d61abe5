package worker

import (
	"context"
	"database/sql"
	"log"
	"time"
)

const (
	// DefaultMaintenanceInterval is how often the maintenance cycle runs.
	DefaultMaintenanceInterval = 1 * time.Hour

	// DefaultDeadWorkerAge is how long a worker may miss heartbeats
	// before its registry row is marked dead. Its claimed contacts are
	// already re-claimable once their lease expires; this only keeps
	// the registry honest.
	DefaultDeadWorkerAge = 5 * time.Minute

	// DefaultOutcomeRetention is how long raw outcome rows are kept.
	// Launch counters and contact state survive the purge, so insights
	// lose per-day detail past this horizon, not totals.
	DefaultOutcomeRetention = 90 * 24 * time.Hour

	// maintenanceBatchSize limits each DELETE to avoid long-running
	// transactions on busy tables.
	maintenanceBatchSize = 10000
)

// MaintenanceWorker keeps the operational tables tidy: it releases
// expired contact claims, marks silent workers dead, and purges
// outcome rows past the retention horizon.
type MaintenanceWorker struct {
	db        *sql.DB
	interval  time.Duration
	deadAge   time.Duration
	retention time.Duration
}

// NewMaintenanceWorker creates a maintenance worker with default settings.
func NewMaintenanceWorker(db *sql.DB) *MaintenanceWorker {
	return &MaintenanceWorker{
		db:        db,
		interval:  DefaultMaintenanceInterval,
		deadAge:   DefaultDeadWorkerAge,
		retention: DefaultOutcomeRetention,
	}
}

// Start begins the maintenance loop. It blocks until ctx is cancelled.
func (m *MaintenanceWorker) Start(ctx context.Context) {
	log.Printf("[Maintenance] Starting (interval=%s, retention=%s)", m.interval, m.retention)

	// Run once immediately on start
	m.run(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Maintenance] Stopping")
			return
		case <-ticker.C:
			m.run(ctx)
		}
	}
}

func (m *MaintenanceWorker) run(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	m.releaseExpiredClaims(runCtx)
	m.markDeadWorkers(runCtx)
	m.purgeOldOutcomes(runCtx)
}

// releaseExpiredClaims nulls out leases that have lapsed. Claiming
// already ignores lapsed leases; clearing them keeps the scheduled
// actions view accurate.
func (m *MaintenanceWorker) releaseExpiredClaims(ctx context.Context) {
	result, err := m.db.ExecContext(ctx, `
		UPDATE outreach_contacts
		SET claimed_until = NULL, updated_at = NOW()
		WHERE claimed_until IS NOT NULL AND claimed_until < NOW()
	`)
	if err != nil {
		log.Printf("[Maintenance] Release expired claims failed: %v", err)
		return
	}
	if n, _ := result.RowsAffected(); n > 0 {
		log.Printf("[Maintenance] Released %d expired contact claims", n)
	}
}

func (m *MaintenanceWorker) markDeadWorkers(ctx context.Context) {
	result, err := m.db.ExecContext(ctx, `
		UPDATE outreach_workers
		SET status = 'dead'
		WHERE status = 'running' AND last_heartbeat_at < NOW() - make_interval(secs => $1)
	`, m.deadAge.Seconds())
	if err != nil {
		log.Printf("[Maintenance] Mark dead workers failed: %v", err)
		return
	}
	if n, _ := result.RowsAffected(); n > 0 {
		log.Printf("[Maintenance] Marked %d workers dead", n)
	}
}

// purgeOldOutcomes deletes outcome rows past retention in batches until
// a batch comes back short.
func (m *MaintenanceWorker) purgeOldOutcomes(ctx context.Context) {
	var total int64
	for {
		result, err := m.db.ExecContext(ctx, `
			DELETE FROM outreach_outcomes
			WHERE id IN (
				SELECT id FROM outreach_outcomes
				WHERE occurred_at < NOW() - make_interval(secs => $1)
				LIMIT $2
			)
		`, m.retention.Seconds(), maintenanceBatchSize)
		if err != nil {
			log.Printf("[Maintenance] Purge outcomes failed: %v", err)
			return
		}
		n, _ := result.RowsAffected()
		total += n
		if n < maintenanceBatchSize {
			break
		}
	}
	if total > 0 {
		log.Printf("[Maintenance] Purged %d outcome rows older than %s", total, m.retention)
	}
}
