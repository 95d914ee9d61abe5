package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/campaign"
	"github.com/ignite/outreach-engine/internal/schedule"
)

// Weekday window with a 50-invitation cap: Saturday admits nobody, and
// Monday at open admits exactly 50 of 60 eligible contacts with the
// rest deferred to Tuesday's window, not failed.
func TestWeekdayWindowWithDailyCap(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	limiter := NewRateLimiter(client)
	ctx := context.Background()
	campaignID := uuid.New()
	accountID := uuid.New()

	win, err := schedule.NewWindow("09:00", "17:00",
		[]string{"monday", "tuesday", "wednesday", "thursday", "friday"})
	if err != nil {
		t.Fatalf("window: %v", err)
	}

	saturday := time.Date(2024, 1, 6, 10, 0, 0, 0, time.UTC)
	if win.Contains(saturday) {
		t.Fatal("Saturday 10:00 must be outside a weekday window")
	}

	monday := time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)
	if !win.Contains(monday) {
		t.Fatal("Monday 09:00 must open the window")
	}

	admitted, deferred := 0, 0
	for i := 0; i < 60; i++ {
		adm, err := limiter.TryAdmit(ctx, campaignID, accountID, campaign.StepInvitation, 50, 0, monday)
		if err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
		if adm.Allowed {
			admitted++
		} else {
			deferred++
		}
	}

	if admitted != 50 {
		t.Errorf("admitted %d invitations, want exactly 50", admitted)
	}
	if deferred != 10 {
		t.Errorf("deferred %d invitations, want 10", deferred)
	}

	retryAt := NextAdmissionAt(monday, win)
	tuesday := time.Date(2024, 1, 9, 9, 0, 0, 0, time.UTC)
	if !retryAt.Equal(tuesday) {
		t.Errorf("deferred retry at %v, want Tuesday 09:00", retryAt)
	}
}
