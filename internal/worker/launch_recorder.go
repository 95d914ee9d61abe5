package worker

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/campaign"
)

// LaunchRecorder owns the launch lifecycle: it opens one launch per
// campaign activation, folds every dispatch outcome into its counters,
// and watches for systemic failure. Counter updates happen inside the
// store's transaction, so insights queried mid-run never see a
// half-applied outcome.
type LaunchRecorder struct {
	store *campaign.Store

	// Consecutive permanent failures per launch. When one launch eats
	// systemicThreshold permanent failures in a row the sender account
	// is almost certainly broken, not the contacts.
	systemicThreshold int

	mu          sync.Mutex
	consecutive map[uuid.UUID]int
}

// NewLaunchRecorder creates a recorder with the given systemic-failure
// threshold (minimum 2; a single bad recipient is not systemic).
func NewLaunchRecorder(store *campaign.Store, systemicThreshold int) *LaunchRecorder {
	if systemicThreshold < 2 {
		systemicThreshold = 2
	}
	return &LaunchRecorder{
		store:             store,
		systemicThreshold: systemicThreshold,
		consecutive:       make(map[uuid.UUID]int),
	}
}

// Open starts a launch for the campaign, or returns the one already
// running. Idempotent: starting an already-started campaign never
// opens a second launch.
func (r *LaunchRecorder) Open(ctx context.Context, campaignID uuid.UUID, trigger campaign.TriggerSource) (*campaign.Launch, error) {
	total, _, err := r.store.ContactCounts(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("count contacts: %w", err)
	}

	launch, err := r.store.OpenLaunch(ctx, campaignID, trigger, total)
	if err != nil {
		return nil, err
	}
	return launch, nil
}

// Record persists one outcome and applies its counter deltas
// atomically. The second return value reports systemic failure: the
// launch just crossed the consecutive-permanent-failure threshold and
// the caller must stop the campaign.
func (r *LaunchRecorder) Record(ctx context.Context, out campaign.Outcome) (systemic bool, err error) {
	if err := r.store.RecordOutcome(ctx, out); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch out.Result {
	case campaign.ResultPermanentFailure:
		r.consecutive[out.LaunchID]++
		if r.consecutive[out.LaunchID] >= r.systemicThreshold {
			log.Printf("[LaunchRecorder] Launch %s: %d consecutive permanent failures, flagging systemic error",
				out.LaunchID, r.consecutive[out.LaunchID])
			return true, nil
		}
	case campaign.ResultTransientFailure:
		// Transient failures are retried; they neither break the
		// streak nor extend it.
	default:
		delete(r.consecutive, out.LaunchID)
	}
	return false, nil
}

// Close ends the campaign's running launch with the terminal status.
// Closing an already-closed launch is a no-op.
func (r *LaunchRecorder) Close(ctx context.Context, campaignID uuid.UUID, status campaign.LaunchStatus) error {
	closed, err := r.store.CloseLaunch(ctx, campaignID, status)
	if err != nil {
		return err
	}
	if closed {
		log.Printf("[LaunchRecorder] Closed launch for campaign %s with status %s", campaignID, status)
	}
	return nil
}

// Forget clears the failure streak for a closed launch. Callers that
// know the launch id call this after Close so the map does not grow.
func (r *LaunchRecorder) Forget(launchID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.consecutive, launchID)
}
