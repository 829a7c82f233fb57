package models

import (
	"errors"
	"time"

	"github.com/robfig/cron/v3"
)

// TriggerType identifies the external event source class.
type TriggerType string

const (
	TriggerTypeCron    TriggerType = "cron"
	TriggerTypeManual  TriggerType = "manual"
	TriggerTypeWebhook TriggerType = "webhook"
	TriggerTypeEmail   TriggerType = "email"
	TriggerTypeGitHub  TriggerType = "github"
)

// ErrInvalidRegistration is returned when a trigger registration fails validation.
var ErrInvalidRegistration = errors.New("invalid trigger registration")

// cronParser accepts the standard 5-field format (minute hour dom month dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// TriggerRegistration binds a workflow's trigger node to the dispatch layer.
// Registrations are created when a workflow is activated and consulted, never
// mutated, during event dispatch (NextDueAt advancing is the one exception,
// done by the cron sweep).
type TriggerRegistration struct {
	ID         string      `json:"id"          validate:"required"`
	WorkflowID string      `json:"workflow_id" validate:"required"`
	NodeID     string      `json:"node_id"     validate:"required"`
	Type       TriggerType `json:"type"        validate:"required"`
	Enabled    bool        `json:"enabled"`

	// Cron triggers. NextDueAt is precomputed so the sweep can query the
	// store for due registrations without holding per-trigger timers.
	CronExpression string     `json:"cron_expression,omitempty"`
	NextDueAt      *time.Time `json:"next_due_at,omitempty"`

	// Manual triggers.
	RequireConfirmation bool `json:"require_confirmation,omitempty"`

	// Webhook triggers.
	WebhookPath string `json:"webhook_path,omitempty"`

	// GitHub triggers. An empty Events list matches every event type.
	InstallationID int64    `json:"installation_id,omitempty"`
	Repository     string   `json:"repository,omitempty"`
	Events         []string `json:"events,omitempty"`

	// Email triggers.
	EmailAddress string `json:"email_address,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks type-specific required fields.
func (t *TriggerRegistration) Validate() error {
	if t.ID == "" || t.WorkflowID == "" || t.NodeID == "" {
		return ErrInvalidRegistration
	}

	switch t.Type {
	case TriggerTypeCron:
		if t.CronExpression == "" {
			return ErrInvalidRegistration
		}

		_, err := cronParser.Parse(t.CronExpression)

		return err
	case TriggerTypeWebhook:
		if t.WebhookPath == "" {
			return ErrInvalidRegistration
		}
	case TriggerTypeGitHub:
		if t.InstallationID == 0 || t.Repository == "" {
			return ErrInvalidRegistration
		}
	case TriggerTypeManual, TriggerTypeEmail:
	default:
		return ErrInvalidRegistration
	}

	return nil
}

// ScheduleNext recomputes NextDueAt from the reference time. Only meaningful
// for cron registrations.
func (t *TriggerRegistration) ScheduleNext(from time.Time) error {
	schedule, err := cronParser.Parse(t.CronExpression)
	if err != nil {
		return err
	}

	next := schedule.Next(from)
	t.NextDueAt = &next
	t.UpdatedAt = time.Now().UTC()

	return nil
}

// CronDue reports whether a cron registration is due at the given time.
func (t *TriggerRegistration) CronDue(now time.Time) bool {
	return t.Enabled && t.Type == TriggerTypeCron && t.NextDueAt != nil && !t.NextDueAt.After(now)
}

// MatchesGitHub reports whether this registration matches a GitHub event with
// the given installation id, repository full name, and event type.
func (t *TriggerRegistration) MatchesGitHub(installationID int64, repository, eventType string) bool {
	if !t.Enabled || t.Type != TriggerTypeGitHub {
		return false
	}

	if t.InstallationID != installationID || t.Repository != repository {
		return false
	}

	if len(t.Events) == 0 {
		return true
	}

	for _, event := range t.Events {
		if event == eventType {
			return true
		}
	}

	return false
}
