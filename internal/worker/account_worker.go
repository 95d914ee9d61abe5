package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/outreach-engine/internal/campaign"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/schedule"
)

// AccountWorker runs the scheduling loop for one sender account.
// Accounts are the bottleneck resource: work across different accounts
// runs in parallel, work within one account is serialized by this
// single loop so the account's own platform limits are respected.
type AccountWorker struct {
	account campaign.SenderAccount

	store      *campaign.Store
	limiter    *RateLimiter
	dispatcher *Dispatcher
	recorder   *LaunchRecorder
	machine    *Machine

	workerID     string
	pollInterval time.Duration
	claimBatch   int

	// Stats
	dispatched int64
	deferred   int64
	failures   int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// AccountWorkerOptions bundles the tunables every account worker shares.
type AccountWorkerOptions struct {
	PollInterval time.Duration
	ClaimBatch   int
	RetryCeiling int
	Seed         int64 // 0 means seed from the clock
}

// NewAccountWorker creates a worker for one sender account.
func NewAccountWorker(account campaign.SenderAccount, store *campaign.Store, limiter *RateLimiter, dispatcher *Dispatcher, recorder *LaunchRecorder, opts AccountWorkerOptions) *AccountWorker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 15 * time.Second
	}
	if opts.ClaimBatch <= 0 {
		opts.ClaimBatch = 50
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	hostname, _ := os.Hostname()
	return &AccountWorker{
		account:      account,
		store:        store,
		limiter:      limiter,
		dispatcher:   dispatcher,
		recorder:     recorder,
		machine:      NewMachine(opts.RetryCeiling, rand.New(rand.NewSource(seed))),
		workerID:     fmt.Sprintf("account-%s-%s", account.ID, hostname),
		pollInterval: opts.PollInterval,
		claimBatch:   opts.ClaimBatch,
	}
}

// Start begins the worker's polling loop.
func (w *AccountWorker) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("account worker %s already running", w.account.ID)
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.mu.Unlock()

	log.Printf("[AccountWorker] %s starting (account %q, poll %v, batch %d)",
		w.workerID, w.account.Name, w.pollInterval, w.claimBatch)

	if err := w.store.RegisterWorker(w.ctx, w.workerID, "account", hostnameOf(w.workerID)); err != nil {
		log.Printf("[AccountWorker] %s register failed: %v", w.workerID, err)
	}

	w.wg.Add(1)
	go w.heartbeatLoop()

	w.wg.Add(1)
	go w.runLoop()

	return nil
}

// Stop drains the worker: it stops pulling new due contacts and waits
// for the in-flight dispatch to finish.
func (w *AccountWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.store.DeregisterWorker(ctx, w.workerID); err != nil {
		log.Printf("[AccountWorker] %s deregister failed: %v", w.workerID, err)
	}

	log.Printf("[AccountWorker] %s stopped. Dispatched: %d, Deferred: %d, Failures: %d",
		w.workerID, atomic.LoadInt64(&w.dispatched), atomic.LoadInt64(&w.deferred), atomic.LoadInt64(&w.failures))
}

func (w *AccountWorker) runLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

func (w *AccountWorker) heartbeatLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(w.ctx, 5*time.Second)
			err := w.store.WorkerHeartbeat(ctx, w.workerID,
				atomic.LoadInt64(&w.dispatched), atomic.LoadInt64(&w.failures))
			cancel()
			if err != nil {
				log.Printf("[AccountWorker] %s heartbeat failed: %v", w.workerID, err)
			}
		}
	}
}

// tick processes every active campaign bound to this account once.
func (w *AccountWorker) tick() {
	ctx, cancel := context.WithTimeout(w.ctx, 2*time.Minute)
	defer cancel()

	campaigns, err := w.store.ListActiveForAccount(ctx, w.account.ID)
	if err != nil {
		log.Printf("[AccountWorker] %s list campaigns failed: %v", w.workerID, err)
		return
	}

	for _, camp := range campaigns {
		select {
		case <-w.ctx.Done():
			return
		default:
		}
		w.tickCampaign(ctx, camp)
	}
}

// tickCampaign claims the campaign's due contacts and walks them
// oldest-waiting-first. Claimed contacts carry a lease, so a slow tick
// overlapping the next one cannot double-schedule anybody.
func (w *AccountWorker) tickCampaign(ctx context.Context, camp *campaign.Campaign) {
	launch, err := w.store.RunningLaunch(ctx, camp.ID)
	if err != nil {
		if !errors.Is(err, campaign.ErrNotFound) {
			log.Printf("[AccountWorker] %s campaign %s: load launch failed: %v", w.workerID, camp.ID, err)
		}
		// Active campaign without a launch: the engine opens one on
		// start; until then nothing dispatches.
		return
	}

	win, err := camp.Settings.Window()
	if err != nil {
		log.Printf("[AccountWorker] %s campaign %s: invalid window: %v", w.workerID, camp.ID, err)
		return
	}

	now := time.Now().UTC()
	contacts, err := w.store.ClaimDueContacts(ctx, camp.ID, now, w.claimBatch)
	if err != nil {
		log.Printf("[AccountWorker] %s campaign %s: claim failed: %v", w.workerID, camp.ID, err)
		return
	}

	campaignLoc := schedule.InLocation("", camp.Settings.Timezone)

	for _, c := range contacts {
		// Stop pulling on shutdown; the claim lease expires and the
		// next tick picks these back up.
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		if stop := w.processContact(ctx, camp, launch, win, campaignLoc, c, now); stop {
			return
		}
	}

	w.checkCompletion(ctx, camp, launch)
}

// processContact runs one contact through window gate, admission,
// dispatch and state application. Returns true when the campaign must
// stop processing (systemic failure).
func (w *AccountWorker) processContact(ctx context.Context, camp *campaign.Campaign, launch *campaign.Launch, win schedule.Window, campaignLoc *time.Location, c *campaign.Contact, now time.Time) bool {
	// Window check in the recipient's local time, falling back to the
	// campaign timezone when the lead has none.
	loc := campaignLoc
	if c.Lead != nil && c.Lead.Timezone != "" {
		loc = schedule.InLocation(c.Lead.Timezone, camp.Settings.Timezone)
	}
	localNow := now.In(loc)

	if !win.Contains(localNow) {
		openAt := win.NextOpen(localNow)
		if openAt.IsZero() {
			// No send days at all; the campaign is effectively paused
			// by configuration. Park the contact far enough out that
			// a settings fix gets picked up.
			openAt = now.Add(24 * time.Hour)
		}
		w.deferContact(ctx, c, openAt.UTC())
		return false
	}

	res, err := w.machine.Resolve(c, camp)
	if err != nil {
		// Unresolvable step config fails this contact, not the launch.
		out := campaign.Outcome{
			LaunchID:   launch.ID,
			CampaignID: camp.ID,
			ContactID:  c.ID,
			StepOrder:  c.CurrentStepOrder,
			Result:     campaign.ResultPermanentFailure,
			Error:      err.Error(),
			OccurredAt: now,
		}
		w.machine.Apply(c, camp, Resolution{}, &out, now)
		if w.persist(ctx, c, out) {
			return w.failSystemic(ctx, camp, launch)
		}
		return false
	}

	if res.Kind == ResolveSkip {
		out := campaign.Outcome{
			LaunchID:   launch.ID,
			CampaignID: camp.ID,
			ContactID:  c.ID,
			StepOrder:  res.Step.Position,
			StepType:   res.Step.Type,
			Result:     campaign.ResultSkipped,
			Error:      res.Reason,
			OccurredAt: now,
		}
		w.machine.Apply(c, camp, res, &out, now)
		w.persist(ctx, c, out)
		return false
	}

	// Admission happens before the blocking send and is never
	// refunded: a consumed slot is consumed even when the dispatch
	// that follows fails.
	campaignNow := now.In(campaignLoc)
	adm, err := w.limiter.TryAdmit(ctx, camp.ID, w.account.ID, res.Step.Type,
		camp.Settings.DailyCap(res.Step.Type), w.account.DailyCap, campaignNow)
	if err != nil {
		log.Printf("[AccountWorker] %s campaign %s: admission failed: %v", w.workerID, camp.ID, err)
		w.deferContact(ctx, c, now.Add(w.pollInterval))
		return false
	}
	if !adm.Allowed {
		retryAt := NextAdmissionAt(campaignNow, win)
		if retryAt.IsZero() {
			retryAt = campaignNow.Add(24 * time.Hour)
		}
		w.deferContact(ctx, c, retryAt.UTC())
		return false
	}

	// The send itself runs detached from the worker's cancel signal:
	// pausing or stopping must not interrupt an in-flight dispatch.
	out := w.dispatcher.Dispatch(context.WithoutCancel(ctx), &w.account, camp, c, res.Step)
	out.LaunchID = launch.ID

	// The slot is consumed and the message is out the door, so the
	// outcome must land even when Stop() cancelled the tick mid-send.
	// Dropping it would re-dispatch the same step once the lease lapses.
	postCtx, cancelPost := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancelPost()

	w.machine.Apply(c, camp, res, &out, now)
	systemic := w.persist(postCtx, c, out)
	atomic.AddInt64(&w.dispatched, 1)

	leadEmail := ""
	if c.Lead != nil {
		leadEmail = c.Lead.Email
	}
	logger.Info("dispatch completed",
		"campaign_id", camp.ID,
		"contact_id", c.ID,
		"step_order", res.Step.Position,
		"step_type", res.Step.Type,
		"result", out.Result,
		"lead_email", leadEmail)

	if out.Result == campaign.ResultPermanentFailure {
		atomic.AddInt64(&w.failures, 1)
	}

	if systemic {
		return w.failSystemic(postCtx, camp, launch)
	}
	return false
}

// persist writes the contact's new state and records its outcome,
// reporting whether the launch just went systemic.
func (w *AccountWorker) persist(ctx context.Context, c *campaign.Contact, out campaign.Outcome) bool {
	if err := w.store.UpdateContactState(ctx, c); err != nil {
		log.Printf("[AccountWorker] %s contact %s: state update failed: %v", w.workerID, c.ID, err)
	}
	systemic, err := w.recorder.Record(ctx, out)
	if err != nil {
		log.Printf("[AccountWorker] %s contact %s: record outcome failed: %v", w.workerID, c.ID, err)
		return false
	}
	return systemic
}

// failSystemic errors the launch and auto-pauses the campaign after
// the consecutive-failure threshold is crossed. Surfaced loudly, not
// absorbed.
func (w *AccountWorker) failSystemic(ctx context.Context, camp *campaign.Campaign, launch *campaign.Launch) bool {
	log.Printf("[AccountWorker] %s campaign %s: systemic failure, pausing", w.workerID, camp.ID)
	if err := w.recorder.Close(ctx, camp.ID, campaign.LaunchError); err != nil {
		log.Printf("[AccountWorker] %s campaign %s: close launch failed: %v", w.workerID, camp.ID, err)
	}
	w.recorder.Forget(launch.ID)
	if _, err := w.store.TransitionStatus(ctx, camp.ID, []campaign.Status{campaign.StatusActive}, campaign.StatusPaused); err != nil {
		log.Printf("[AccountWorker] %s campaign %s: auto-pause failed: %v", w.workerID, camp.ID, err)
	}
	return true
}

func (w *AccountWorker) deferContact(ctx context.Context, c *campaign.Contact, until time.Time) {
	if err := w.store.DeferContact(ctx, c.ID, until); err != nil {
		log.Printf("[AccountWorker] %s contact %s: defer failed: %v", w.workerID, c.ID, err)
		return
	}
	atomic.AddInt64(&w.deferred, 1)
}

// checkCompletion closes the launch and completes the campaign once
// every enrolled contact reached a terminal status.
func (w *AccountWorker) checkCompletion(ctx context.Context, camp *campaign.Campaign, launch *campaign.Launch) {
	total, terminal, err := w.store.ContactCounts(ctx, camp.ID)
	if err != nil || total == 0 || terminal < total {
		return
	}

	if _, err := w.store.TransitionStatus(ctx, camp.ID, []campaign.Status{campaign.StatusActive}, campaign.StatusCompleted); err != nil {
		log.Printf("[AccountWorker] %s campaign %s: complete transition failed: %v", w.workerID, camp.ID, err)
		return
	}
	if err := w.recorder.Close(ctx, camp.ID, campaign.LaunchCompleted); err != nil {
		log.Printf("[AccountWorker] %s campaign %s: close launch failed: %v", w.workerID, camp.ID, err)
	}
	w.recorder.Forget(launch.ID)
	log.Printf("[AccountWorker] %s campaign %s completed (%d contacts)", w.workerID, camp.ID, total)
}

func hostnameOf(workerID string) string {
	hostname, err := os.Hostname()
	if err != nil {
		return workerID
	}
	return hostname
}
