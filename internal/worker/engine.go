package worker

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach-engine/internal/campaign"
	"github.com/ignite/outreach-engine/internal/pkg/distlock"
)

// Engine supervises one AccountWorker per enabled sender account and
// executes the campaign lifecycle commands. Commands are guarded by a
// distributed lock so two API replicas issuing "start" at once still
// open exactly one launch.
type Engine struct {
	db          *sql.DB
	redisClient *redis.Client // optional; nil falls back to PG advisory locks

	store      *campaign.Store
	limiter    *RateLimiter
	dispatcher *Dispatcher
	recorder   *LaunchRecorder

	workerOpts     AccountWorkerOptions
	rescanInterval time.Duration

	workers map[uuid.UUID]*AccountWorker

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewEngine wires the engine from its collaborators.
func NewEngine(db *sql.DB, store *campaign.Store, limiter *RateLimiter, dispatcher *Dispatcher, recorder *LaunchRecorder, workerOpts AccountWorkerOptions, rescanInterval time.Duration) *Engine {
	if rescanInterval <= 0 {
		rescanInterval = time.Minute
	}
	return &Engine{
		db:             db,
		store:          store,
		limiter:        limiter,
		dispatcher:     dispatcher,
		recorder:       recorder,
		workerOpts:     workerOpts,
		rescanInterval: rescanInterval,
		workers:        make(map[uuid.UUID]*AccountWorker),
	}
}

// SetRedisClient enables Redis-based command locks. Without it the
// engine uses PostgreSQL advisory locks.
func (e *Engine) SetRedisClient(client *redis.Client) {
	e.redisClient = client
}

// Start spins up account workers and keeps them in sync with the
// sender-account table.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.running = true
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.mu.Unlock()

	log.Printf("[Engine] Starting (rescan every %v)", e.rescanInterval)

	e.rescanAccounts()

	e.wg.Add(1)
	go e.rescanLoop()

	return nil
}

// Stop drains every account worker and waits for them.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	log.Printf("[Engine] Stopping...")
	e.cancel()
	e.wg.Wait()

	e.mu.Lock()
	workers := make([]*AccountWorker, 0, len(e.workers))
	for _, w := range e.workers {
		workers = append(workers, w)
	}
	e.workers = make(map[uuid.UUID]*AccountWorker)
	e.mu.Unlock()

	var drain sync.WaitGroup
	for _, w := range workers {
		drain.Add(1)
		go func(w *AccountWorker) {
			defer drain.Done()
			w.Stop()
		}(w)
	}
	drain.Wait()
	log.Printf("[Engine] Stopped")
}

func (e *Engine) rescanLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.rescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.rescanAccounts()
		}
	}
}

// rescanAccounts reconciles running workers against the set of enabled
// sender accounts: new accounts get a worker, disabled ones drain.
func (e *Engine) rescanAccounts() {
	ctx, cancel := context.WithTimeout(e.ctx, 10*time.Second)
	defer cancel()

	accounts, err := e.store.ListSenderAccounts(ctx)
	if err != nil {
		log.Printf("[Engine] Account scan failed: %v", err)
		return
	}

	enabled := make(map[uuid.UUID]campaign.SenderAccount, len(accounts))
	for _, acct := range accounts {
		enabled[acct.ID] = acct
	}

	e.mu.Lock()
	var toStop []*AccountWorker
	for id, w := range e.workers {
		if _, ok := enabled[id]; !ok {
			toStop = append(toStop, w)
			delete(e.workers, id)
		}
	}
	var toStart []campaign.SenderAccount
	for id, acct := range enabled {
		if _, ok := e.workers[id]; !ok {
			toStart = append(toStart, acct)
		}
	}
	e.mu.Unlock()

	for _, w := range toStop {
		log.Printf("[Engine] Draining worker for disabled account %s", w.account.ID)
		go w.Stop()
	}

	for _, acct := range toStart {
		w := NewAccountWorker(acct, e.store, e.limiter, e.dispatcher, e.recorder, e.workerOpts)
		if err := w.Start(); err != nil {
			log.Printf("[Engine] Worker start failed for account %s: %v", acct.ID, err)
			continue
		}
		e.mu.Lock()
		e.workers[acct.ID] = w
		e.mu.Unlock()
	}
}

// WorkerCount reports how many account workers are running.
func (e *Engine) WorkerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.workers)
}

// withCommandLock serializes lifecycle commands per campaign.
func (e *Engine) withCommandLock(ctx context.Context, campaignID uuid.UUID, fn func(context.Context) error) error {
	lock := distlock.NewLock(e.redisClient, e.db, fmt.Sprintf("campaign:%s", campaignID), 30*time.Second)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire command lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("campaign %s: command already in progress", campaignID)
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			log.Printf("[Engine] Release command lock for %s failed: %v", campaignID, err)
		}
	}()
	return fn(ctx)
}

// StartCampaign activates a draft or paused campaign and opens its
// launch. Issuing it twice is safe: the status transition and the
// launch open are both no-ops the second time.
func (e *Engine) StartCampaign(ctx context.Context, campaignID uuid.UUID, trigger campaign.TriggerSource) (*campaign.Launch, error) {
	var launch *campaign.Launch
	err := e.withCommandLock(ctx, campaignID, func(ctx context.Context) error {
		moved, err := e.store.TransitionStatus(ctx, campaignID,
			[]campaign.Status{campaign.StatusDraft, campaign.StatusPaused}, campaign.StatusActive)
		if err != nil {
			return err
		}
		if !moved {
			camp, err := e.store.GetCampaign(ctx, campaignID)
			if err != nil {
				return err
			}
			if camp.Status != campaign.StatusActive {
				return fmt.Errorf("campaign %s: cannot start from status %s", campaignID, camp.Status)
			}
		}

		launch, err = e.recorder.Open(ctx, campaignID, trigger)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[Engine] Campaign %s started (launch %s)", campaignID, launch.ID)
	return launch, nil
}

// PauseCampaign stops admitting new dispatches for the campaign.
// In-flight dispatches finish; claimed contacts are picked up again on
// resume. Pausing a non-active campaign is a no-op.
func (e *Engine) PauseCampaign(ctx context.Context, campaignID uuid.UUID) error {
	return e.withCommandLock(ctx, campaignID, func(ctx context.Context) error {
		moved, err := e.store.TransitionStatus(ctx, campaignID,
			[]campaign.Status{campaign.StatusActive}, campaign.StatusPaused)
		if err != nil {
			return err
		}
		if !moved {
			return nil
		}
		if err := e.recorder.Close(ctx, campaignID, campaign.LaunchPaused); err != nil {
			return err
		}
		log.Printf("[Engine] Campaign %s paused", campaignID)
		return nil
	})
}

// StopCampaign terminates the campaign permanently. The launch closes
// as stopped and the campaign lands in completed.
func (e *Engine) StopCampaign(ctx context.Context, campaignID uuid.UUID) error {
	return e.withCommandLock(ctx, campaignID, func(ctx context.Context) error {
		moved, err := e.store.TransitionStatus(ctx, campaignID,
			[]campaign.Status{campaign.StatusActive, campaign.StatusPaused}, campaign.StatusCompleted)
		if err != nil {
			return err
		}
		if !moved {
			return nil
		}
		if err := e.recorder.Close(ctx, campaignID, campaign.LaunchStopped); err != nil {
			return err
		}
		log.Printf("[Engine] Campaign %s stopped", campaignID)
		return nil
	})
}

// ArchiveCampaign retires a campaign from every listing. Only
// non-active campaigns can be archived.
func (e *Engine) ArchiveCampaign(ctx context.Context, campaignID uuid.UUID) error {
	return e.withCommandLock(ctx, campaignID, func(ctx context.Context) error {
		moved, err := e.store.TransitionStatus(ctx, campaignID,
			[]campaign.Status{campaign.StatusDraft, campaign.StatusPaused, campaign.StatusCompleted}, campaign.StatusArchived)
		if err != nil {
			return err
		}
		if !moved {
			camp, err := e.store.GetCampaign(ctx, campaignID)
			if err != nil {
				return err
			}
			if camp.Status != campaign.StatusArchived {
				return fmt.Errorf("campaign %s: cannot archive from status %s", campaignID, camp.Status)
			}
		}
		return nil
	})
}
