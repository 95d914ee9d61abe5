package worker

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/campaign"
	"github.com/ignite/outreach-engine/internal/message"
)

// stopDuringSendTransport cancels the tick context while the send is
// in flight, the way Stop() does, then reports the send as delivered.
type stopDuringSendTransport struct {
	cancelTick context.CancelFunc
	calls      int
}

func (s *stopDuringSendTransport) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	s.calls++
	s.cancelTick()
	return SendResult{Status: SendSent}, nil
}

func newTickWorker(t *testing.T) (*AccountWorker, sqlmock.Sqlmock, *fakeTransport, func()) {
	t.Helper()
	db, mock, dbCleanup := setupTestDB(t)
	redisClient, redisCleanup := setupTestRedis(t)

	store := campaign.NewStore(db)
	transport := &fakeTransport{result: SendResult{Status: SendSent}}
	dispatcher := NewDispatcher(transport, nil, message.NewRenderer(), time.Second)
	account := campaign.SenderAccount{ID: uuid.New(), Name: "li-main", Kind: "linkedin", DailyCap: 100}

	w := NewAccountWorker(account, store, NewRateLimiter(redisClient), dispatcher,
		NewLaunchRecorder(store, 5), AccountWorkerOptions{Seed: 1})
	w.ctx, w.cancel = context.WithCancel(context.Background())

	return w, mock, transport, func() {
		w.cancel()
		redisCleanup()
		dbCleanup()
	}
}

func expectPersist(mock sqlmock.Sqlmock) {
	mock.ExpectExec("UPDATE outreach_contacts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO outreach_outcomes").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE outreach_launches").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

func contactColumns() []string {
	return []string{
		"id", "campaign_id", "lead_id", "status", "current_step_order",
		"last_action_at", "next_action_at", "retry_count", "reply_sentiment",
	}
}

func leadColumns() []string {
	return []string{
		"id", "first_name", "last_name", "email", "company", "title",
		"linkedin_url", "timezone", "connected", "unsubscribed",
	}
}

// An issued send's outcome must be written even when Stop() cancels
// the tick mid-send; a dropped outcome would re-dispatch the same step
// after the claim lease lapses.
func TestStopDuringSendStillPersistsOutcome(t *testing.T) {
	db, mock, dbCleanup := setupTestDB(t)
	defer dbCleanup()
	redisClient, redisCleanup := setupTestRedis(t)
	defer redisCleanup()

	store := campaign.NewStore(db)
	tickCtx, cancelTick := context.WithCancel(context.Background())
	defer cancelTick()
	transport := &stopDuringSendTransport{cancelTick: cancelTick}
	dispatcher := NewDispatcher(transport, nil, message.NewRenderer(), time.Second)
	account := campaign.SenderAccount{ID: uuid.New(), Name: "li-main", Kind: "linkedin", DailyCap: 100}

	w := NewAccountWorker(account, store, NewRateLimiter(redisClient), dispatcher,
		NewLaunchRecorder(store, 5), AccountWorkerOptions{Seed: 1})

	camp := testCampaign()
	c := testContact(camp, 1)
	launch := &campaign.Launch{ID: uuid.New(), CampaignID: camp.ID}
	win, err := camp.Settings.Window()
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	// Monday 10:00 UTC, inside the 09:00-17:00 weekday window.
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	expectPersist(mock)

	stop := w.processContact(tickCtx, camp, launch, win, time.UTC, c, now)
	if stop {
		t.Fatal("single sent outcome flagged systemic")
	}
	if transport.calls != 1 {
		t.Fatalf("transport calls = %d, want 1", transport.calls)
	}
	if c.CurrentStepOrder != 2 {
		t.Errorf("contact step = %d, want advanced to 2", c.CurrentStepOrder)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("outcome not persisted after tick cancel: %v", err)
	}
}

func TestTickCampaignDispatchesDueContact(t *testing.T) {
	w, mock, transport, cleanup := newTickWorker(t)
	defer cleanup()

	camp := testCampaign()
	// Always-open window so the gate passes whenever the test runs.
	camp.Settings.SendWindowStart = "00:00"
	camp.Settings.SendWindowEnd = "23:59"
	camp.Settings.SendDays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

	launchID := uuid.New()
	contactID := uuid.New()
	leadID := uuid.New()

	mock.ExpectQuery("FROM outreach_launches").
		WillReturnRows(launchRows(launchID, camp.ID, 1))
	mock.ExpectQuery("UPDATE outreach_contacts").
		WillReturnRows(sqlmock.NewRows(contactColumns()).
			AddRow(contactID, camp.ID, leadID, "in_progress", 1, nil, time.Now().UTC().Add(-time.Minute), 0, nil))
	mock.ExpectQuery("FROM outreach_leads").
		WillReturnRows(sqlmock.NewRows(leadColumns()).
			AddRow(leadID, "Ada", "Lovelace", "ada@example.com", "", "", "", "", false, false))
	expectPersist(mock)
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count", "terminal"}).AddRow(1, 0))

	w.tickCampaign(context.Background(), camp)

	if transport.calls != 1 {
		t.Fatalf("transport calls = %d, want 1", transport.calls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// A second tick with no elapsed time finds nothing due and issues no
// additional dispatch.
func TestTickCampaignSecondTickIsIdle(t *testing.T) {
	w, mock, transport, cleanup := newTickWorker(t)
	defer cleanup()

	camp := testCampaign()
	camp.Settings.SendWindowStart = "00:00"
	camp.Settings.SendWindowEnd = "23:59"
	camp.Settings.SendDays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

	launchID := uuid.New()
	contactID := uuid.New()
	leadID := uuid.New()

	// First tick dispatches the one due contact.
	mock.ExpectQuery("FROM outreach_launches").
		WillReturnRows(launchRows(launchID, camp.ID, 1))
	mock.ExpectQuery("UPDATE outreach_contacts").
		WillReturnRows(sqlmock.NewRows(contactColumns()).
			AddRow(contactID, camp.ID, leadID, "in_progress", 1, nil, time.Now().UTC().Add(-time.Minute), 0, nil))
	mock.ExpectQuery("FROM outreach_leads").
		WillReturnRows(sqlmock.NewRows(leadColumns()).
			AddRow(leadID, "Ada", "Lovelace", "ada@example.com", "", "", "", "", false, false))
	expectPersist(mock)
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count", "terminal"}).AddRow(1, 0))

	// Second tick: the contact's next_action_at moved into the future,
	// so the claim comes back empty and nothing dispatches.
	mock.ExpectQuery("FROM outreach_launches").
		WillReturnRows(launchRows(launchID, camp.ID, 1))
	mock.ExpectQuery("UPDATE outreach_contacts").
		WillReturnRows(sqlmock.NewRows(contactColumns()))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count", "terminal"}).AddRow(1, 0))

	w.tickCampaign(context.Background(), camp)
	w.tickCampaign(context.Background(), camp)

	if transport.calls != 1 {
		t.Fatalf("transport calls = %d, want exactly 1 across both ticks", transport.calls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// A closed send window defers the contact to the next opening instead
// of dispatching.
func TestTickCampaignDefersOutsideWindow(t *testing.T) {
	w, mock, transport, cleanup := newTickWorker(t)
	defer cleanup()

	camp := testCampaign()
	launch := &campaign.Launch{ID: uuid.New(), CampaignID: camp.ID}
	c := testContact(camp, 1)
	win, err := camp.Settings.Window()
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	// Sunday: not a send day.
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE outreach_contacts").
		WillReturnResult(sqlmock.NewResult(0, 1))

	stop := w.processContact(context.Background(), camp, launch, win, time.UTC, c, now)
	if stop {
		t.Fatal("deferral flagged systemic")
	}
	if transport.calls != 0 {
		t.Fatalf("transport calls = %d, want 0", transport.calls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
