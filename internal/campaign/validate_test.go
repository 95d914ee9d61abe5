package campaign

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func validSettings() Settings {
	return Settings{
		MaxInvitationsPerDay:   50,
		MaxMessagesPerDay:      100,
		SendWindowStart:        "09:00",
		SendWindowEnd:          "17:00",
		SendDays:               []string{"monday", "tuesday", "wednesday", "thursday", "friday"},
		DelayBetweenActionsMin: 30,
		DelayBetweenActionsMax: 90,
	}
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"valid", func(s *Settings) {}, false},
		{"negative invitation cap", func(s *Settings) { s.MaxInvitationsPerDay = -1 }, true},
		{"negative message cap", func(s *Settings) { s.MaxMessagesPerDay = -1 }, true},
		{"min over max jitter", func(s *Settings) { s.DelayBetweenActionsMin = 91 }, true},
		{"negative jitter", func(s *Settings) { s.DelayBetweenActionsMin = -1 }, true},
		{"overnight window", func(s *Settings) { s.SendWindowStart = "22:00"; s.SendWindowEnd = "06:00" }, true},
		{"bad weekday", func(s *Settings) { s.SendDays = []string{"funday"} }, true},
		{"zero caps are uncapped", func(s *Settings) { s.MaxInvitationsPerDay = 0; s.MaxMessagesPerDay = 0 }, false},
		{"empty send days is legal", func(s *Settings) { s.SendDays = nil }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(&s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error %v does not wrap ErrInvalidConfig", err)
			}
		})
	}
}

func TestValidateSteps(t *testing.T) {
	invitation := func(pos int) Step {
		return Step{ID: uuid.New(), Position: pos, Type: StepInvitation, Config: InvitationConfig{Template: "Hi"}}
	}

	tests := []struct {
		name    string
		steps   []Step
		wantErr bool
	}{
		{"empty pipeline", nil, true},
		{"single step", []Step{invitation(1)}, false},
		{
			"gap in positions",
			[]Step{invitation(1), invitation(3)},
			true,
		},
		{
			"duplicate position",
			[]Step{invitation(1), invitation(1)},
			true,
		},
		{
			"step one with wait",
			[]Step{{ID: uuid.New(), Position: 1, Type: StepInvitation, WaitDays: 1, Config: InvitationConfig{}}},
			true,
		},
		{
			"negative wait",
			[]Step{invitation(1), {ID: uuid.New(), Position: 2, Type: StepMessage, WaitHours: -1, Config: MessageConfig{}}},
			true,
		},
		{
			"condition without predicate",
			[]Step{invitation(1), {ID: uuid.New(), Position: 2, Type: StepCondition, Config: ConditionConfig{}}},
			true,
		},
		{
			"condition with misspelled predicate",
			[]Step{invitation(1), {ID: uuid.New(), Position: 2, Type: StepCondition, Config: ConditionConfig{Predicate: "alredy_connected", OnTrue: 3}}},
			true,
		},
		{
			"condition with every known predicate",
			[]Step{
				invitation(1),
				{ID: uuid.New(), Position: 2, Type: StepCondition, Config: ConditionConfig{Predicate: PredicateAlreadyConnected, OnTrue: 3}},
				{ID: uuid.New(), Position: 3, Type: StepCondition, Config: ConditionConfig{Predicate: PredicateHasEmail, OnTrue: 4}},
				{ID: uuid.New(), Position: 4, Type: StepCondition, Config: ConditionConfig{Predicate: PredicateHasReplied, OnTrue: 5}},
			},
			false,
		},
		{
			"condition with backward jump",
			[]Step{
				invitation(1),
				{ID: uuid.New(), Position: 2, Type: StepCondition, Config: ConditionConfig{Predicate: PredicateHasEmail, OnTrue: 1}},
				invitation(3),
			},
			true,
		},
		{
			"condition jumping past the end is completion",
			[]Step{
				invitation(1),
				{ID: uuid.New(), Position: 2, Type: StepCondition, Config: ConditionConfig{Predicate: PredicateHasEmail, OnTrue: 4, OnFalse: 3}},
				{ID: uuid.New(), Position: 3, Type: StepEmail, Config: EmailConfig{Subject: "Hello", Template: "Hi"}},
			},
			false,
		},
		{
			"condition target outside pipeline",
			[]Step{
				invitation(1),
				{ID: uuid.New(), Position: 2, Type: StepCondition, Config: ConditionConfig{Predicate: PredicateHasEmail, OnTrue: 9}},
			},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSteps(tt.steps)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSteps() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCampaignValidate(t *testing.T) {
	camp := &Campaign{
		Name:     "Founders outreach",
		Settings: validSettings(),
		Steps:    []Step{{ID: uuid.New(), Position: 1, Type: StepInvitation, Config: InvitationConfig{Template: "Hi"}}},
	}
	if err := camp.Validate(); err != nil {
		t.Errorf("valid campaign rejected: %v", err)
	}

	camp.Name = ""
	if err := camp.Validate(); err == nil {
		t.Error("nameless campaign accepted")
	}
}
