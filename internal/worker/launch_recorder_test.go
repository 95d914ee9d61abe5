package worker

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/campaign"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return db, mock, func() { db.Close() }
}

func expectRecordOutcome(mock sqlmock.Sqlmock, out campaign.Outcome) {
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO outreach_outcomes").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE outreach_launches").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if out.Result == campaign.ResultReply {
		mock.ExpectExec("INSERT INTO outreach_replies").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()
}

func TestRecordSystemicThreshold(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	recorder := NewLaunchRecorder(campaign.NewStore(db), 3)
	ctx := context.Background()
	launchID := uuid.New()

	failure := campaign.Outcome{
		LaunchID:   launchID,
		CampaignID: uuid.New(),
		ContactID:  uuid.New(),
		StepOrder:  1,
		StepType:   campaign.StepInvitation,
		Result:     campaign.ResultPermanentFailure,
		Error:      "account credentials invalid",
		Terminal:   true,
		OccurredAt: time.Now().UTC(),
	}

	for i := 1; i <= 2; i++ {
		expectRecordOutcome(mock, failure)
		systemic, err := recorder.Record(ctx, failure)
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if systemic {
			t.Fatalf("record %d: systemic before the threshold", i)
		}
	}

	expectRecordOutcome(mock, failure)
	systemic, err := recorder.Record(ctx, failure)
	if err != nil {
		t.Fatalf("record 3: %v", err)
	}
	if !systemic {
		t.Error("three consecutive permanent failures must trip the systemic check")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRecordSuccessResetsStreak(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	recorder := NewLaunchRecorder(campaign.NewStore(db), 3)
	ctx := context.Background()
	launchID := uuid.New()

	failure := campaign.Outcome{LaunchID: launchID, Result: campaign.ResultPermanentFailure, OccurredAt: time.Now().UTC()}
	sent := campaign.Outcome{LaunchID: launchID, Result: campaign.ResultSent, StepType: campaign.StepMessage, OccurredAt: time.Now().UTC()}

	sequence := []campaign.Outcome{failure, failure, sent, failure, failure}
	for i, out := range sequence {
		expectRecordOutcome(mock, out)
		systemic, err := recorder.Record(ctx, out)
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if systemic {
			t.Fatalf("record %d: streak should have been reset by the success", i)
		}
	}
}

func TestRecordTransientKeepsStreak(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	recorder := NewLaunchRecorder(campaign.NewStore(db), 2)
	ctx := context.Background()
	launchID := uuid.New()

	failure := campaign.Outcome{LaunchID: launchID, Result: campaign.ResultPermanentFailure, OccurredAt: time.Now().UTC()}
	transient := campaign.Outcome{LaunchID: launchID, Result: campaign.ResultTransientFailure, OccurredAt: time.Now().UTC()}

	expectRecordOutcome(mock, failure)
	if systemic, _ := recorder.Record(ctx, failure); systemic {
		t.Fatal("one failure is not systemic")
	}

	// A retryable blip neither breaks nor extends the streak.
	expectRecordOutcome(mock, transient)
	if systemic, _ := recorder.Record(ctx, transient); systemic {
		t.Fatal("transient failures must not trip the threshold")
	}

	expectRecordOutcome(mock, failure)
	systemic, err := recorder.Record(ctx, failure)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !systemic {
		t.Error("second consecutive permanent failure should trip a threshold of 2")
	}
}

func TestCloseIdempotent(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	recorder := NewLaunchRecorder(campaign.NewStore(db), 5)
	ctx := context.Background()
	campaignID := uuid.New()

	mock.ExpectExec("UPDATE outreach_launches").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := recorder.Close(ctx, campaignID, campaign.LaunchPaused); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Second close finds no running launch and is a no-op.
	mock.ExpectExec("UPDATE outreach_launches").
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := recorder.Close(ctx, campaignID, campaign.LaunchPaused); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
