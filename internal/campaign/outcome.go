package campaign

import (
	"time"

	"github.com/google/uuid"
)

// OutcomeResult classifies what happened to one dispatched action.
type OutcomeResult string

const (
	// ResultSent: the transport delivered the action.
	ResultSent OutcomeResult = "sent"
	// ResultReply: the transport detected a reply from the lead.
	ResultReply OutcomeResult = "reply"
	// ResultSkipped: the step was a no-op success (already connected,
	// wait elapsed, condition evaluated).
	ResultSkipped OutcomeResult = "skipped"
	// ResultTransientFailure: retryable; does not change contact status.
	ResultTransientFailure OutcomeResult = "transient_failure"
	// ResultPermanentFailure: the contact is failed out of the launch.
	ResultPermanentFailure OutcomeResult = "permanent_failure"
	// ResultUnsubscribed: the lead opted out.
	ResultUnsubscribed OutcomeResult = "unsubscribed"
)

// Outcome is one dispatch result, attributable to a specific contact
// and step. It is the unit the launch counters are folded from.
type Outcome struct {
	LaunchID   uuid.UUID     `json:"launch_id"`
	CampaignID uuid.UUID     `json:"campaign_id"`
	ContactID  uuid.UUID     `json:"contact_id"`
	StepOrder  int           `json:"step_order"`
	StepType   StepType      `json:"step_type"`
	Result     OutcomeResult `json:"result"`
	Sentiment  Sentiment     `json:"sentiment,omitempty"`
	Keywords   []string      `json:"keywords,omitempty"`
	ReplyText  string        `json:"reply_text,omitempty"`
	Error      string        `json:"error,omitempty"`
	// Terminal marks that this outcome moved the contact into a
	// terminal status, i.e. the contact counts as processed.
	Terminal   bool      `json:"terminal"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Counters is the additive portion of a launch record.
type Counters struct {
	ContactsProcessed int `json:"contacts_processed"`
	MessagesSent      int `json:"messages_sent"`
	InvitationsSent   int `json:"invitations_sent"`
	RepliesReceived   int `json:"replies_received"`
	Errors            int `json:"errors"`
}

// Apply folds one outcome into the counters. RecordOutcome applies the
// same deltas in SQL; keeping the mapping in one visible place lets
// tests replay an outcome log and compare (launch counters are fully
// determined by their outcome sequence).
func (c *Counters) Apply(out Outcome) {
	switch out.Result {
	case ResultSent:
		switch out.StepType {
		case StepInvitation:
			c.InvitationsSent++
		case StepMessage, StepEmail:
			c.MessagesSent++
		}
	case ResultReply:
		c.RepliesReceived++
	case ResultPermanentFailure:
		c.Errors++
	}
	if out.Terminal {
		c.ContactsProcessed++
	}
}

// ReplayCounters folds a sequence of outcomes into counters from zero.
func ReplayCounters(outcomes []Outcome) Counters {
	var c Counters
	for _, out := range outcomes {
		c.Apply(out)
	}
	return c
}
