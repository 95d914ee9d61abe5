package worker

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/ignite/outreach-engine/internal/campaign"
	"github.com/ignite/outreach-engine/internal/schedule"
)

// Machine advances contacts through a campaign's step pipeline. It is
// pure state logic: the account worker feeds it a due contact plus the
// dispatch outcome, and it mutates the contact in memory. Every
// transition is gated on an outcome, never on wall-clock re-entry, so
// re-running a tick without new outcomes cannot double-advance anyone.
type Machine struct {
	retryCeiling int
	rng          *rand.Rand
}

// NewMachine creates a machine. The rng drives jitter and is injected
// so tests can fix the seed; retryCeiling bounds transient retries per
// action before they convert to a permanent failure.
func NewMachine(retryCeiling int, rng *rand.Rand) *Machine {
	if retryCeiling < 1 {
		retryCeiling = 1
	}
	return &Machine{retryCeiling: retryCeiling, rng: rng}
}

// ResolutionKind says what the current step requires.
type ResolutionKind int

const (
	// ResolveDispatch hands the step to the transport.
	ResolveDispatch ResolutionKind = iota
	// ResolveSkip advances without a transport call (wait elapsed,
	// condition evaluated, invitation skipped for a connected lead).
	ResolveSkip
)

// Resolution is the machine's pre-dispatch decision for a due contact.
// Target is the step order to advance to on success; 0 means the next
// step in order.
type Resolution struct {
	Kind   ResolutionKind
	Step   *campaign.Step
	Target int
	Reason string
}

// Resolve inspects the contact's current step and decides whether the
// transport is needed. Wait and condition steps never touch the
// transport; invitations are skipped as a no-op success when the lead
// is already connected and settings ask for that.
func (m *Machine) Resolve(c *campaign.Contact, camp *campaign.Campaign) (Resolution, error) {
	step := camp.StepAt(c.CurrentStepOrder)
	if step == nil {
		return Resolution{}, fmt.Errorf("contact %s: no step at order %d", c.ID, c.CurrentStepOrder)
	}

	switch step.Type {
	case campaign.StepWait:
		// The delay already elapsed before the contact became due.
		return Resolution{Kind: ResolveSkip, Step: step, Reason: "wait_elapsed"}, nil

	case campaign.StepCondition:
		cond, ok := step.Config.(campaign.ConditionConfig)
		if !ok {
			return Resolution{}, fmt.Errorf("contact %s: condition step %d without condition config", c.ID, step.Position)
		}
		holds, err := evalPredicate(cond.Predicate, c)
		if err != nil {
			return Resolution{}, fmt.Errorf("contact %s: %w", c.ID, err)
		}
		res := Resolution{Kind: ResolveSkip, Step: step}
		if holds {
			res.Target = cond.OnTrue
			res.Reason = "condition_true"
		} else {
			res.Target = cond.OnFalse
			res.Reason = "condition_false"
		}
		return res, nil

	case campaign.StepInvitation:
		if camp.Settings.SkipAlreadyConnected && c.Lead != nil && c.Lead.Connected {
			return Resolution{Kind: ResolveSkip, Step: step, Reason: "already_connected"}, nil
		}
		return Resolution{Kind: ResolveDispatch, Step: step}, nil

	default:
		return Resolution{Kind: ResolveDispatch, Step: step}, nil
	}
}

func evalPredicate(predicate string, c *campaign.Contact) (bool, error) {
	switch predicate {
	case campaign.PredicateAlreadyConnected:
		return c.Lead != nil && c.Lead.Connected, nil
	case campaign.PredicateHasEmail:
		return c.Lead != nil && c.Lead.Email != "", nil
	case campaign.PredicateHasReplied:
		return c.ReplySentiment != "", nil
	}
	return false, fmt.Errorf("unknown predicate %q", predicate)
}

// Apply folds one dispatch outcome into the contact's state. It may
// rewrite out.Result (a transient failure past the retry ceiling
// becomes permanent) and always sets out.Terminal before returning,
// so the launch recorder sees the final classification.
func (m *Machine) Apply(c *campaign.Contact, camp *campaign.Campaign, res Resolution, out *campaign.Outcome, now time.Time) {
	switch out.Result {
	case campaign.ResultSent, campaign.ResultSkipped:
		c.RetryCount = 0
		m.advance(c, camp, res.Target, now)

	case campaign.ResultReply:
		c.ReplySentiment = out.Sentiment
		stop := camp.Settings.StopOnReply ||
			(camp.Settings.StopOnNegativeReply && out.Sentiment == campaign.SentimentNegative)
		if stop {
			c.Status = campaign.ContactReplied
			c.NextActionAt = nil
			c.LastActionAt = &now
		} else {
			c.RetryCount = 0
			m.advance(c, camp, res.Target, now)
		}

	case campaign.ResultTransientFailure:
		c.RetryCount++
		if c.RetryCount >= m.retryCeiling {
			out.Result = campaign.ResultPermanentFailure
			c.Status = campaign.ContactFailed
			c.NextActionAt = nil
			c.LastActionAt = &now
			break
		}
		// Status is untouched; only the retry clock moves.
		retryAt := now.Add(schedule.Backoff(c.RetryCount))
		c.NextActionAt = &retryAt

	case campaign.ResultPermanentFailure:
		c.Status = campaign.ContactFailed
		c.NextActionAt = nil
		c.LastActionAt = &now

	case campaign.ResultUnsubscribed:
		c.Status = campaign.ContactUnsubscribed
		c.NextActionAt = nil
		c.LastActionAt = &now
	}

	out.Terminal = c.Status.Terminal()
}

// advance moves the contact to target (or the next step in order),
// completing it past the last step, and schedules the following action
// with the next step's wait plus jitter.
func (m *Machine) advance(c *campaign.Contact, camp *campaign.Campaign, target int, now time.Time) {
	if target == 0 {
		target = c.CurrentStepOrder + 1
	}

	c.LastActionAt = &now

	if target > camp.LastPosition() {
		c.Status = campaign.ContactCompleted
		c.CurrentStepOrder = camp.LastPosition() + 1
		c.NextActionAt = nil
		return
	}

	c.Status = campaign.ContactInProgress
	c.CurrentStepOrder = target

	next := camp.StepAt(target)
	due := schedule.NextActionAt(now, next.Wait(), m.rng,
		camp.Settings.DelayBetweenActionsMin, camp.Settings.DelayBetweenActionsMax)
	c.NextActionAt = &due
}
