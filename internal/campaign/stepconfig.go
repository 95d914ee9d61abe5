package campaign

import (
	"encoding/json"
	"fmt"
)

// StepConfig is the per-type step payload. One variant exists per step
// kind; the union is keyed by Step.Type when (de)serializing, so a step
// can never carry a payload belonging to another kind.
type StepConfig interface {
	stepConfig()
}

// InvitationConfig configures a LinkedIn connection-invitation step.
type InvitationConfig struct {
	Template          string `json:"template"`
	AIPersonalization bool   `json:"ai_personalization"`
}

// MessageConfig configures a LinkedIn direct-message step.
type MessageConfig struct {
	Template          string `json:"template"`
	AIPersonalization bool   `json:"ai_personalization"`
}

// EmailConfig configures an email step.
type EmailConfig struct {
	Subject           string `json:"subject"`
	Template          string `json:"template"`
	AIPersonalization bool   `json:"ai_personalization"`
}

// WaitConfig configures a wait step. The actual delay lives in the
// step's WaitDays/WaitHours; wait steps carry no extra payload.
type WaitConfig struct{}

// Condition predicates evaluated at dispatch time against the lead.
const (
	PredicateAlreadyConnected = "already_connected"
	PredicateHasEmail         = "has_email"
	PredicateHasReplied       = "has_replied"
)

// ConditionConfig is a two-target jump table: when the predicate holds
// the contact advances to OnTrue, otherwise to OnFalse. A zero target
// means "the next step in order".
type ConditionConfig struct {
	Predicate string `json:"predicate"`
	OnTrue    int    `json:"on_true,omitempty"`
	OnFalse   int    `json:"on_false,omitempty"`
}

func (InvitationConfig) stepConfig() {}
func (MessageConfig) stepConfig()    {}
func (EmailConfig) stepConfig()      {}
func (WaitConfig) stepConfig()       {}
func (ConditionConfig) stepConfig()  {}

// DecodeStepConfig parses a raw JSON payload into the variant matching
// the step type. An empty payload yields the zero-value variant.
func DecodeStepConfig(t StepType, raw []byte) (StepConfig, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	switch t {
	case StepInvitation:
		var c InvitationConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("invitation config: %w", err)
		}
		return c, nil
	case StepMessage:
		var c MessageConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("message config: %w", err)
		}
		return c, nil
	case StepEmail:
		var c EmailConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("email config: %w", err)
		}
		return c, nil
	case StepWait:
		var c WaitConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("wait config: %w", err)
		}
		return c, nil
	case StepCondition:
		var c ConditionConfig
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("condition config: %w", err)
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown step type %q", t)
}

// EncodeStepConfig serializes a config variant, verifying it matches
// the step type it is being stored under.
func EncodeStepConfig(t StepType, cfg StepConfig) ([]byte, error) {
	if cfg == nil {
		return []byte("{}"), nil
	}

	ok := false
	switch cfg.(type) {
	case InvitationConfig:
		ok = t == StepInvitation
	case MessageConfig:
		ok = t == StepMessage
	case EmailConfig:
		ok = t == StepEmail
	case WaitConfig:
		ok = t == StepWait
	case ConditionConfig:
		ok = t == StepCondition
	}
	if !ok {
		return nil, fmt.Errorf("config type %T does not match step type %q", cfg, t)
	}

	return json.Marshal(cfg)
}

// Template returns the body template for sendable step kinds, and the
// subject for email steps.
func (s *Step) Template() (subject, body string) {
	switch c := s.Config.(type) {
	case InvitationConfig:
		return "", c.Template
	case MessageConfig:
		return "", c.Template
	case EmailConfig:
		return c.Subject, c.Template
	}
	return "", ""
}

// UnmarshalJSON decodes a step with its typed config payload.
func (s *Step) UnmarshalJSON(data []byte) error {
	type alias Step
	aux := struct {
		*alias
		Config json.RawMessage `json:"config"`
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	cfg, err := DecodeStepConfig(s.Type, aux.Config)
	if err != nil {
		return err
	}
	s.Config = cfg
	return nil
}
