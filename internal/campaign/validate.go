package campaign

import (
	"errors"
	"fmt"

	"github.com/ignite/outreach-engine/internal/schedule"
)

// ErrInvalidConfig wraps every campaign-save validation failure so the
// API layer can map the whole class to a 400.
var ErrInvalidConfig = errors.New("invalid campaign configuration")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// knownPredicates mirrors the set the scheduler's condition evaluator
// resolves. A predicate outside this set never saves.
var knownPredicates = map[string]bool{
	PredicateAlreadyConnected: true,
	PredicateHasEmail:         true,
	PredicateHasReplied:       true,
}

// Validate checks campaign settings at save time. Configuration errors
// are rejected here and never reach the scheduler.
func (s Settings) Validate() error {
	if s.MaxInvitationsPerDay < 0 || s.MaxMessagesPerDay < 0 {
		return invalid("daily caps must not be negative")
	}
	if s.DelayBetweenActionsMin < 0 {
		return invalid("delay_between_actions_min must not be negative")
	}
	if s.DelayBetweenActionsMin > s.DelayBetweenActionsMax {
		return invalid("delay_between_actions_min %d exceeds max %d",
			s.DelayBetweenActionsMin, s.DelayBetweenActionsMax)
	}
	if _, err := schedule.NewWindow(s.SendWindowStart, s.SendWindowEnd, s.SendDays); err != nil {
		return invalid("%v", err)
	}
	return nil
}

// Window builds the send window from validated settings.
func (s Settings) Window() (schedule.Window, error) {
	return schedule.NewWindow(s.SendWindowStart, s.SendWindowEnd, s.SendDays)
}

// ValidateSteps checks the pipeline's structural invariants: positions
// form a strict 1..N order, step 1 carries no preceding wait, and
// condition jump targets stay inside the pipeline.
func ValidateSteps(steps []Step) error {
	if len(steps) == 0 {
		return invalid("campaign has no steps")
	}

	seen := make(map[int]bool, len(steps))
	for i := range steps {
		st := &steps[i]
		if st.Position < 1 || st.Position > len(steps) {
			return invalid("step position %d outside 1..%d", st.Position, len(steps))
		}
		if seen[st.Position] {
			return invalid("duplicate step position %d", st.Position)
		}
		seen[st.Position] = true

		if st.WaitDays < 0 || st.WaitHours < 0 {
			return invalid("step %d has a negative wait", st.Position)
		}
		if st.Position == 1 && st.Wait() > 0 {
			return invalid("step 1 must not have a preceding wait")
		}

		if st.Type == StepCondition {
			cond, ok := st.Config.(ConditionConfig)
			if !ok {
				return invalid("step %d: condition step without condition config", st.Position)
			}
			if cond.Predicate == "" {
				return invalid("step %d: condition step without predicate", st.Position)
			}
			if !knownPredicates[cond.Predicate] {
				return invalid("step %d: unknown predicate %q", st.Position, cond.Predicate)
			}
			for _, target := range []int{cond.OnTrue, cond.OnFalse} {
				// 0 means "next step in order"; jumps must move forward
				// so a contact's step order never decreases
				if target == 0 {
					continue
				}
				if target <= st.Position || target > len(steps)+1 {
					return invalid("step %d: jump target %d must be a later step", st.Position, target)
				}
			}
		}
	}
	return nil
}

// Validate checks the whole campaign definition.
func (c *Campaign) Validate() error {
	if c.Name == "" {
		return invalid("campaign name is required")
	}
	if err := c.Settings.Validate(); err != nil {
		return err
	}
	return ValidateSteps(c.Steps)
}
