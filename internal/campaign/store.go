package campaign

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ClaimLease is how long a claimed contact stays invisible to other
// workers before a crashed worker's claim expires.
const ClaimLease = 5 * time.Minute

// Store is the durable postgres-backed store for campaigns, steps,
// contacts and launches. All statements assume the outreach_* schema
// from migrations/.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// =============================================================================
// CAMPAIGNS & STEPS
// =============================================================================

// CreateCampaign validates and persists a campaign with its steps in
// one transaction. Steps are owned by the campaign (cascade delete).
func (s *Store) CreateCampaign(ctx context.Context, c *Campaign) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = StatusDraft
	}

	settingsJSON, err := json.Marshal(c.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO outreach_campaigns (id, name, status, sender_account_id, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	`, c.ID, c.Name, c.Status, c.SenderAccountID, settingsJSON)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}

	for i := range c.Steps {
		st := &c.Steps[i]
		if st.ID == uuid.Nil {
			st.ID = uuid.New()
		}
		st.CampaignID = c.ID

		cfgJSON, err := EncodeStepConfig(st.Type, st.Config)
		if err != nil {
			return fmt.Errorf("step %d: %w", st.Position, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO outreach_steps (id, campaign_id, position, type, wait_days, wait_hours, config)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, st.ID, st.CampaignID, st.Position, st.Type, st.WaitDays, st.WaitHours, cfgJSON)
		if err != nil {
			return fmt.Errorf("insert step %d: %w", st.Position, err)
		}
	}

	return tx.Commit()
}

// ErrNotEditable is returned when a campaign edit is attempted while
// the campaign is in a status that the scheduler may be reading.
var ErrNotEditable = errors.New("campaign is not editable in its current status")

// UpdateCampaign validates and replaces a campaign's name, settings
// and steps in one transaction. Only draft and paused campaigns are
// editable: the scheduler must never see a half-edited pipeline, so an
// active campaign has to be paused first. Re-issuing the same edit is
// a no-op beyond the updated_at bump.
func (s *Store) UpdateCampaign(ctx context.Context, c *Campaign) error {
	if err := c.Validate(); err != nil {
		return err
	}

	settingsJSON, err := json.Marshal(c.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE outreach_campaigns
		SET name = $2, settings = $3, updated_at = NOW()
		WHERE id = $1 AND status IN ('draft', 'paused')
	`, c.ID, c.Name, settingsJSON)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var status Status
		err := tx.QueryRowContext(ctx, `SELECT status FROM outreach_campaigns WHERE id = $1`, c.ID).Scan(&status)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check campaign status: %w", err)
		}
		return fmt.Errorf("%w: %s", ErrNotEditable, status)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM outreach_steps WHERE campaign_id = $1`, c.ID); err != nil {
		return fmt.Errorf("clear steps: %w", err)
	}
	for i := range c.Steps {
		st := &c.Steps[i]
		if st.ID == uuid.Nil {
			st.ID = uuid.New()
		}
		st.CampaignID = c.ID

		cfgJSON, err := EncodeStepConfig(st.Type, st.Config)
		if err != nil {
			return fmt.Errorf("step %d: %w", st.Position, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO outreach_steps (id, campaign_id, position, type, wait_days, wait_hours, config)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, st.ID, st.CampaignID, st.Position, st.Type, st.WaitDays, st.WaitHours, cfgJSON)
		if err != nil {
			return fmt.Errorf("insert step %d: %w", st.Position, err)
		}
	}

	return tx.Commit()
}

// GetCampaign loads a campaign and its ordered steps.
func (s *Store) GetCampaign(ctx context.Context, id uuid.UUID) (*Campaign, error) {
	c := &Campaign{}
	var settingsJSON []byte

	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, status, sender_account_id, settings, created_at, updated_at
		FROM outreach_campaigns
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Status, &c.SenderAccountID, &settingsJSON, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}

	if err := json.Unmarshal(settingsJSON, &c.Settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	steps, err := s.loadSteps(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	c.Steps = steps

	return c, nil
}

func (s *Store) loadSteps(ctx context.Context, campaignID uuid.UUID) ([]Step, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, campaign_id, position, type, wait_days, wait_hours, config
		FROM outreach_steps
		WHERE campaign_id = $1
		ORDER BY position ASC
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load steps: %w", err)
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var st Step
		var cfgJSON []byte
		if err := rows.Scan(&st.ID, &st.CampaignID, &st.Position, &st.Type, &st.WaitDays, &st.WaitHours, &cfgJSON); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		cfg, err := DecodeStepConfig(st.Type, cfgJSON)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", st.Position, err)
		}
		st.Config = cfg
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

// ListActiveForAccount returns the active campaigns bound to a sender
// account, for the account's worker loop.
func (s *Store) ListActiveForAccount(ctx context.Context, accountID uuid.UUID) ([]*Campaign, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM outreach_campaigns
		WHERE sender_account_id = $1 AND status = 'active'
		ORDER BY created_at ASC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	campaigns := make([]*Campaign, 0, len(ids))
	for _, id := range ids {
		c, err := s.GetCampaign(ctx, id)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, nil
}

// TransitionStatus moves a campaign from any of the allowed statuses to
// the target status. Returns false when the campaign was not in an
// allowed status, which makes every command idempotent.
func (s *Store) TransitionStatus(ctx context.Context, id uuid.UUID, from []Status, to Status) (bool, error) {
	fromStr := make([]string, len(from))
	for i, st := range from {
		fromStr[i] = string(st)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE outreach_campaigns
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = ANY($3)
	`, id, to, pq.Array(fromStr))
	if err != nil {
		return false, fmt.Errorf("transition status: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteCampaign removes a campaign; steps and contacts cascade.
func (s *Store) DeleteCampaign(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM outreach_campaigns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// =============================================================================
// LEADS & CONTACTS
// =============================================================================

// CreateLead persists a lead record.
func (s *Store) CreateLead(ctx context.Context, l *Lead) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outreach_leads (id, first_name, last_name, email, company, title, linkedin_url, timezone, connected, unsubscribed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, l.ID, l.FirstName, l.LastName, l.Email, l.Company, l.Title, l.LinkedInURL, l.Timezone, l.Connected, l.Unsubscribed)
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

// EnrollContacts enrolls leads into a campaign at step 1, status
// queued, due immediately. Already-enrolled leads are skipped
// (ON CONFLICT), so re-issuing the command is idempotent. Returns the
// number of newly enrolled contacts.
func (s *Store) EnrollContacts(ctx context.Context, campaignID uuid.UUID, leadIDs []uuid.UUID) (int, error) {
	if len(leadIDs) == 0 {
		return 0, nil
	}

	ids := make([]string, len(leadIDs))
	for i, id := range leadIDs {
		ids[i] = id.String()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO outreach_contacts (id, campaign_id, lead_id, status, current_step_order, next_action_at, created_at, updated_at)
		SELECT gen_random_uuid(), $1, l.id, 'queued', 1, NOW(), NOW(), NOW()
		FROM outreach_leads l
		WHERE l.id = ANY($2) AND l.unsubscribed = false
		ON CONFLICT (campaign_id, lead_id) DO NOTHING
	`, campaignID, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("enroll contacts: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ClaimDueContacts atomically claims up to limit due contacts for
// processing, oldest-waiting first so long-queued contacts are not
// starved by new enrollments. Claimed rows carry a lease; crashed
// workers' claims expire after ClaimLease. The lead snapshot comes
// along with each contact.
func (s *Store) ClaimDueContacts(ctx context.Context, campaignID uuid.UUID, now time.Time, limit int) ([]*Contact, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE outreach_contacts c
		SET claimed_until = $2 + make_interval(secs => $4), updated_at = $2
		FROM (
			SELECT id FROM outreach_contacts
			WHERE campaign_id = $1
			  AND status IN ('queued', 'in_progress')
			  AND next_action_at <= $2
			  AND (claimed_until IS NULL OR claimed_until < $2)
			ORDER BY last_action_at ASC NULLS FIRST
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		) due
		WHERE c.id = due.id
		RETURNING c.id, c.campaign_id, c.lead_id, c.status, c.current_step_order,
		          c.last_action_at, c.next_action_at, c.retry_count, c.reply_sentiment
	`, campaignID, now, limit, ClaimLease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("claim due contacts: %w", err)
	}
	defer rows.Close()

	var contacts []*Contact
	for rows.Next() {
		ct, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, ct := range contacts {
		lead, err := s.getLead(ctx, ct.LeadID)
		if err != nil {
			return nil, err
		}
		ct.Lead = lead
	}
	return contacts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (*Contact, error) {
	ct := &Contact{}
	var lastAction, nextAction sql.NullTime
	var sentiment sql.NullString
	err := row.Scan(&ct.ID, &ct.CampaignID, &ct.LeadID, &ct.Status, &ct.CurrentStepOrder,
		&lastAction, &nextAction, &ct.RetryCount, &sentiment)
	if err != nil {
		return nil, fmt.Errorf("scan contact: %w", err)
	}
	if lastAction.Valid {
		ct.LastActionAt = &lastAction.Time
	}
	if nextAction.Valid {
		ct.NextActionAt = &nextAction.Time
	}
	if sentiment.Valid {
		ct.ReplySentiment = Sentiment(sentiment.String)
	}
	return ct, nil
}

func (s *Store) getLead(ctx context.Context, id uuid.UUID) (*Lead, error) {
	l := &Lead{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, email, company, title, linkedin_url, timezone, connected, unsubscribed
		FROM outreach_leads
		WHERE id = $1
	`, id).Scan(&l.ID, &l.FirstName, &l.LastName, &l.Email, &l.Company, &l.Title,
		&l.LinkedInURL, &l.Timezone, &l.Connected, &l.Unsubscribed)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	return l, nil
}

// UpdateContactState writes the contact's post-outcome state and
// releases the claim lease.
func (s *Store) UpdateContactState(ctx context.Context, ct *Contact) error {
	var sentiment any
	if ct.ReplySentiment != "" {
		sentiment = string(ct.ReplySentiment)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE outreach_contacts
		SET status = $2, current_step_order = $3, last_action_at = $4, next_action_at = $5,
		    retry_count = $6, reply_sentiment = $7, claimed_until = NULL, updated_at = NOW()
		WHERE id = $1
	`, ct.ID, ct.Status, ct.CurrentStepOrder, ct.LastActionAt, ct.NextActionAt, ct.RetryCount, sentiment)
	if err != nil {
		return fmt.Errorf("update contact state: %w", err)
	}
	return nil
}

// DeferContact re-queues a contact for a future time without touching
// its pipeline state. Used for rate-limit and window deferrals, which
// are not failures.
func (s *Store) DeferContact(ctx context.Context, id uuid.UUID, until time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outreach_contacts
		SET next_action_at = $2, claimed_until = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, until)
	if err != nil {
		return fmt.Errorf("defer contact: %w", err)
	}
	return nil
}

// ContactCounts returns (total, terminal) contact counts for a
// campaign. When they are equal and non-zero the campaign is done.
func (s *Store) ContactCounts(ctx context.Context, campaignID uuid.UUID) (total, terminal int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status IN ('replied', 'completed', 'failed', 'unsubscribed'))
		FROM outreach_contacts
		WHERE campaign_id = $1
	`, campaignID).Scan(&total, &terminal)
	if err != nil {
		return 0, 0, fmt.Errorf("contact counts: %w", err)
	}
	return total, terminal, nil
}

// PreviewDue lists the next due actions for a campaign without
// claiming anything, for the dashboard's scheduled-action projection.
func (s *Store) PreviewDue(ctx context.Context, campaignID uuid.UUID, now time.Time, limit int) ([]ScheduledAction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.campaign_id, c.current_step_order, s.type, c.next_action_at, c.claimed_until
		FROM outreach_contacts c
		JOIN outreach_steps s ON s.campaign_id = c.campaign_id AND s.position = c.current_step_order
		WHERE c.campaign_id = $1
		  AND c.status IN ('queued', 'in_progress')
		  AND c.next_action_at IS NOT NULL
		ORDER BY c.next_action_at ASC
		LIMIT $2
	`, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("preview due: %w", err)
	}
	defer rows.Close()

	var actions []ScheduledAction
	for rows.Next() {
		var a ScheduledAction
		var claimed sql.NullTime
		if err := rows.Scan(&a.ContactID, &a.CampaignID, &a.StepOrder, &a.StepType, &a.DueAt, &claimed); err != nil {
			return nil, err
		}
		switch {
		case claimed.Valid && claimed.Time.After(now):
			a.Status = ActionProcessing
		case a.DueAt.After(now):
			a.Status = ActionWaiting
		default:
			a.Status = ActionScheduled
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// =============================================================================
// LAUNCHES
// =============================================================================

// OpenLaunch opens a running launch for a campaign, or returns the one
// already running. A partial unique index on (campaign_id) WHERE
// status='running' guarantees at most one, so "start campaign X" twice
// never opens two launches.
func (s *Store) OpenLaunch(ctx context.Context, campaignID uuid.UUID, trigger TriggerSource, totalContacts int) (*Launch, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outreach_launches (id, campaign_id, status, triggered_by, started_at, total_contacts)
		VALUES ($1, $2, 'running', $3, NOW(), $4)
		ON CONFLICT (campaign_id) WHERE status = 'running' DO NOTHING
	`, uuid.New(), campaignID, trigger, totalContacts)
	if err != nil {
		return nil, fmt.Errorf("open launch: %w", err)
	}
	return s.RunningLaunch(ctx, campaignID)
}

// RunningLaunch returns the campaign's running launch, ErrNotFound if none.
func (s *Store) RunningLaunch(ctx context.Context, campaignID uuid.UUID) (*Launch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, campaign_id, status, triggered_by, started_at, ended_at,
		       contacts_processed, total_contacts, messages_sent, invitations_sent, replies_received, errors
		FROM outreach_launches
		WHERE campaign_id = $1 AND status = 'running'
	`, campaignID)
	return scanLaunch(row)
}

func scanLaunch(row rowScanner) (*Launch, error) {
	l := &Launch{}
	var ended sql.NullTime
	err := row.Scan(&l.ID, &l.CampaignID, &l.Status, &l.TriggeredBy, &l.StartedAt, &ended,
		&l.ContactsProcessed, &l.TotalContacts, &l.MessagesSent, &l.InvitationsSent, &l.RepliesReceived, &l.Errors)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan launch: %w", err)
	}
	if ended.Valid {
		l.EndedAt = &ended.Time
	}
	return l, nil
}

// CloseLaunch moves the running launch to a terminal status. Returns
// false when no launch was running (already closed: idempotent).
func (s *Store) CloseLaunch(ctx context.Context, campaignID uuid.UUID, status LaunchStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE outreach_launches
		SET status = $2, ended_at = NOW()
		WHERE campaign_id = $1 AND status = 'running'
	`, campaignID, status)
	if err != nil {
		return false, fmt.Errorf("close launch: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListLaunches returns a campaign's launch history, newest first.
func (s *Store) ListLaunches(ctx context.Context, campaignID uuid.UUID, limit int) ([]*Launch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, campaign_id, status, triggered_by, started_at, ended_at,
		       contacts_processed, total_contacts, messages_sent, invitations_sent, replies_received, errors
		FROM outreach_launches
		WHERE campaign_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("list launches: %w", err)
	}
	defer rows.Close()

	var launches []*Launch
	for rows.Next() {
		l, err := scanLaunch(rows)
		if err != nil {
			return nil, err
		}
		launches = append(launches, l)
	}
	return launches, rows.Err()
}

// RecordOutcome appends one outcome to the launch's log and bumps the
// launch counters in the same transaction, so a projection query never
// sees a half-applied outcome. Reply outcomes also feed the reply
// table for insights.
func (s *Store) RecordOutcome(ctx context.Context, out Outcome) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var sentiment any
	if out.Sentiment != "" {
		sentiment = string(out.Sentiment)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO outreach_outcomes (id, launch_id, campaign_id, contact_id, step_order, step_type, result, sentiment, error_message, terminal, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, uuid.New(), out.LaunchID, out.CampaignID, out.ContactID, out.StepOrder, out.StepType,
		out.Result, sentiment, out.Error, out.Terminal, out.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}

	var delta Counters
	delta.Apply(out)

	_, err = tx.ExecContext(ctx, `
		UPDATE outreach_launches
		SET contacts_processed = contacts_processed + $2,
		    messages_sent = messages_sent + $3,
		    invitations_sent = invitations_sent + $4,
		    replies_received = replies_received + $5,
		    errors = errors + $6
		WHERE id = $1
	`, out.LaunchID, delta.ContactsProcessed, delta.MessagesSent, delta.InvitationsSent, delta.RepliesReceived, delta.Errors)
	if err != nil {
		return fmt.Errorf("update launch counters: %w", err)
	}

	if out.Result == ResultReply {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO outreach_replies (id, campaign_id, contact_id, sentiment, keywords, replied_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.New(), out.CampaignID, out.ContactID, sentiment, pq.Array(out.Keywords), out.OccurredAt)
		if err != nil {
			return fmt.Errorf("insert reply: %w", err)
		}
	}

	return tx.Commit()
}

// =============================================================================
// SENDER ACCOUNTS & WORKER REGISTRY
// =============================================================================

// ListSenderAccounts returns the enabled sender accounts; the engine
// runs one worker loop for each.
func (s *Store) ListSenderAccounts(ctx context.Context) ([]SenderAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, kind, status, daily_cap
		FROM outreach_sender_accounts
		WHERE status = 'enabled'
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sender accounts: %w", err)
	}
	defer rows.Close()

	var accounts []SenderAccount
	for rows.Next() {
		var a SenderAccount
		if err := rows.Scan(&a.ID, &a.Name, &a.Kind, &a.Status, &a.DailyCap); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// RegisterWorker upserts a worker registry row.
func (s *Store) RegisterWorker(ctx context.Context, workerID, workerType, hostname string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outreach_workers (id, worker_type, hostname, status, started_at, last_heartbeat_at)
		VALUES ($1, $2, $3, 'running', NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			status = 'running',
			started_at = NOW(),
			last_heartbeat_at = NOW()
	`, workerID, workerType, hostname)
	return err
}

// WorkerHeartbeat refreshes a worker's liveness row and stats.
func (s *Store) WorkerHeartbeat(ctx context.Context, workerID string, processed, errors int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outreach_workers
		SET last_heartbeat_at = NOW(), total_processed = $2, total_errors = $3
		WHERE id = $1
	`, workerID, processed, errors)
	return err
}

// DeregisterWorker marks a worker stopped.
func (s *Store) DeregisterWorker(ctx context.Context, workerID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE outreach_workers SET status = 'stopped' WHERE id = $1`, workerID)
	return err
}
