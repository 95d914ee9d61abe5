package campaign

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a campaign.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusArchived  Status = "archived"
)

// StepType identifies what a pipeline step does.
type StepType string

const (
	StepInvitation StepType = "invitation"
	StepMessage    StepType = "message"
	StepEmail      StepType = "email"
	StepWait       StepType = "wait"
	StepCondition  StepType = "condition"
)

// ContactStatus tracks a contact's progress through the pipeline.
type ContactStatus string

const (
	ContactQueued       ContactStatus = "queued"
	ContactInProgress   ContactStatus = "in_progress"
	ContactReplied      ContactStatus = "replied"
	ContactCompleted    ContactStatus = "completed"
	ContactFailed       ContactStatus = "failed"
	ContactUnsubscribed ContactStatus = "unsubscribed"
)

// Terminal reports whether no further steps will ever be scheduled for
// a contact in this status.
func (s ContactStatus) Terminal() bool {
	switch s {
	case ContactReplied, ContactCompleted, ContactFailed, ContactUnsubscribed:
		return true
	}
	return false
}

// Sentiment is the classified tone of a reply. Empty means no reply yet.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// LaunchStatus is the state of one continuous execution interval.
type LaunchStatus string

const (
	LaunchRunning   LaunchStatus = "running"
	LaunchPaused    LaunchStatus = "paused"
	LaunchCompleted LaunchStatus = "completed"
	LaunchStopped   LaunchStatus = "stopped"
	LaunchError     LaunchStatus = "error"
)

// TriggerSource records what started a launch.
type TriggerSource string

const (
	TriggerManual   TriggerSource = "manual"
	TriggerSchedule TriggerSource = "schedule"
	TriggerAuto     TriggerSource = "auto"
)

// Campaign is a configured outreach pipeline plus its settings.
// Steps are ordered by Position (1-based, strict total order).
type Campaign struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Status          Status    `json:"status"`
	SenderAccountID uuid.UUID `json:"sender_account_id"`
	Steps           []Step    `json:"steps"`
	Settings        Settings  `json:"settings"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// StepAt returns the step at the given 1-based position, or nil.
func (c *Campaign) StepAt(position int) *Step {
	for i := range c.Steps {
		if c.Steps[i].Position == position {
			return &c.Steps[i]
		}
	}
	return nil
}

// LastPosition returns the highest step position, 0 for an empty pipeline.
func (c *Campaign) LastPosition() int {
	last := 0
	for i := range c.Steps {
		if c.Steps[i].Position > last {
			last = c.Steps[i].Position
		}
	}
	return last
}

// Step is one ordered stage of a campaign pipeline. WaitDays/WaitHours
// are the delay applied before this step executes.
type Step struct {
	ID         uuid.UUID  `json:"id"`
	CampaignID uuid.UUID  `json:"campaign_id"`
	Position   int        `json:"position"`
	Type       StepType   `json:"type"`
	WaitDays   int        `json:"wait_days"`
	WaitHours  int        `json:"wait_hours"`
	Config     StepConfig `json:"config"`
}

// Wait returns the configured pre-step delay.
func (s *Step) Wait() time.Duration {
	return time.Duration(s.WaitDays)*24*time.Hour + time.Duration(s.WaitHours)*time.Hour
}

// Settings holds per-campaign sending policy.
type Settings struct {
	MaxInvitationsPerDay   int      `json:"max_invitations_per_day"`
	MaxMessagesPerDay      int      `json:"max_messages_per_day"`
	SendWindowStart        string   `json:"send_window_start"` // HH:MM
	SendWindowEnd          string   `json:"send_window_end"`   // HH:MM
	SendDays               []string `json:"send_days"`         // lower-cased weekday names
	StopOnReply            bool     `json:"stop_on_reply"`
	StopOnNegativeReply    bool     `json:"stop_on_negative_reply"`
	SkipAlreadyConnected   bool     `json:"skip_already_connected"`
	DelayBetweenActionsMin int      `json:"delay_between_actions_min"` // seconds
	DelayBetweenActionsMax int      `json:"delay_between_actions_max"` // seconds
	NotifyOnReply          bool     `json:"notify_on_reply"`
	DailySummaryEmail      bool     `json:"daily_summary_email"`
	Timezone               string   `json:"timezone"` // fallback when the lead has none
}

// DailyCap returns the daily ceiling for a step type. Zero means uncapped
// (email, wait and condition steps are not capped by the two counters).
func (s Settings) DailyCap(t StepType) int {
	switch t {
	case StepInvitation:
		return s.MaxInvitationsPerDay
	case StepMessage:
		return s.MaxMessagesPerDay
	}
	return 0
}

// Lead is the snapshot of contact-person attributes the engine needs.
type Lead struct {
	ID           uuid.UUID `json:"id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email"`
	Company      string    `json:"company"`
	Title        string    `json:"title"`
	LinkedInURL  string    `json:"linkedin_url"`
	Timezone     string    `json:"timezone"` // IANA name, may be empty
	Connected    bool      `json:"connected"`
	Unsubscribed bool      `json:"unsubscribed"`
}

// FullName joins first and last name, tolerating either being empty.
func (l *Lead) FullName() string {
	switch {
	case l.FirstName == "":
		return l.LastName
	case l.LastName == "":
		return l.FirstName
	}
	return l.FirstName + " " + l.LastName
}

// Contact is the mutable per-contact state the scheduler advances.
// CurrentStepOrder is a 1-based index into the campaign's step list;
// it only ever increases, and never exceeds the last position + 1.
type Contact struct {
	ID               uuid.UUID     `json:"id"`
	CampaignID       uuid.UUID     `json:"campaign_id"`
	LeadID           uuid.UUID     `json:"lead_id"`
	Status           ContactStatus `json:"status"`
	CurrentStepOrder int           `json:"current_step_order"`
	LastActionAt     *time.Time    `json:"last_action_at"`
	NextActionAt     *time.Time    `json:"next_action_at"`
	RetryCount       int           `json:"retry_count"`
	ReplySentiment   Sentiment     `json:"reply_sentiment,omitempty"`

	// Lead is populated on claim; not persisted with the contact row.
	Lead *Lead `json:"lead,omitempty"`
}

// ActionStatus is the state of a derived ScheduledAction.
type ActionStatus string

const (
	ActionScheduled  ActionStatus = "scheduled"
	ActionProcessing ActionStatus = "processing"
	ActionWaiting    ActionStatus = "waiting"
)

// ScheduledAction is the materialization of "this contact is due for
// step K at time T". Derived, never persisted on its own.
type ScheduledAction struct {
	ContactID  uuid.UUID    `json:"contact_id"`
	CampaignID uuid.UUID    `json:"campaign_id"`
	StepOrder  int          `json:"step_order"`
	StepType   StepType     `json:"step_type"`
	DueAt      time.Time    `json:"due_at"`
	Status     ActionStatus `json:"status"`
}

// Launch is one continuous execution interval of a campaign.
type Launch struct {
	ID          uuid.UUID     `json:"id"`
	CampaignID  uuid.UUID     `json:"campaign_id"`
	Status      LaunchStatus  `json:"status"`
	TriggeredBy TriggerSource `json:"triggered_by"`
	StartedAt   time.Time     `json:"started_at"`
	EndedAt     *time.Time    `json:"ended_at,omitempty"`

	ContactsProcessed int `json:"contacts_processed"`
	TotalContacts     int `json:"total_contacts"`
	MessagesSent      int `json:"messages_sent"`
	InvitationsSent   int `json:"invitations_sent"`
	RepliesReceived   int `json:"replies_received"`
	Errors            int `json:"errors"`
}

// SenderAccount is the bottleneck resource: one worker loop runs per account.
type SenderAccount struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Kind     string    `json:"kind"` // linkedin, email
	Status   string    `json:"status"`
	DailyCap int       `json:"daily_cap"` // account-wide ceiling, 0 = none
}

// DailyStats is a per-day counter projection for the insights view.
type DailyStats struct {
	Day             string `json:"day"` // YYYY-MM-DD
	InvitationsSent int    `json:"invitations_sent"`
	MessagesSent    int    `json:"messages_sent"`
	EmailsSent      int    `json:"emails_sent"`
	RepliesReceived int    `json:"replies_received"`
	Errors          int    `json:"errors"`
}

// StepPerformance aggregates outcomes per pipeline step.
type StepPerformance struct {
	StepOrder int      `json:"step_order"`
	StepType  StepType `json:"step_type"`
	Sent      int      `json:"sent"`
	Replied   int      `json:"replied"`
	Accepted  int      `json:"accepted"`
	ReplyRate float64  `json:"reply_rate"`
}

// KeywordCount is one entry of the reply keyword histogram.
type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

// ReplyAnalysis is the sentiment/keyword projection over campaign replies.
type ReplyAnalysis struct {
	TotalReplies int               `json:"total_replies"`
	Sentiments   map[Sentiment]int `json:"sentiments"`
	Keywords     []KeywordCount    `json:"keywords"`
}
