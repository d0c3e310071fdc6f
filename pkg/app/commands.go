package app

import (
	"time"

	"github.com/argusops/argus/pkg/domain"
	"github.com/argusops/argus/pkg/domain/activity"
	"github.com/argusops/argus/pkg/domain/incident"
)

// ---------------------------------------------------------------------------
// Command model — commands are pure data; execution lives in the services
// ---------------------------------------------------------------------------

// CommandResult is the uniform outcome of every command. Command handlers
// never panic or return raw errors across their public boundary.
type CommandResult struct {
	Success     bool            `json:"success"`
	CommandType string          `json:"command_type"`
	AggregateID domain.EntityID `json:"aggregate_id,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Error       string          `json:"error,omitempty"`
	// FailedIDs reports per-item failures of bulk commands; the rest of
	// the batch succeeded.
	FailedIDs []string `json:"failed_ids,omitempty"`
}

func successResult(commandType string, id domain.EntityID) CommandResult {
	return CommandResult{
		Success:     true,
		CommandType: commandType,
		AggregateID: id,
		Timestamp:   time.Now().UTC(),
	}
}

func failureResult(commandType string, id domain.EntityID, err error) CommandResult {
	return CommandResult{
		Success:     false,
		CommandType: commandType,
		AggregateID: id,
		Timestamp:   time.Now().UTC(),
		Error:       err.Error(),
	}
}

// Auditor receives every command result for logging/notification.
// Not part of core logic; a nil auditor is skipped.
type Auditor func(CommandResult)

// ---------------------------------------------------------------------------
// Activity commands
// ---------------------------------------------------------------------------

// CreateActivityCommand submits a new observation.
type CreateActivityCommand struct {
	Type        activity.Type          `json:"type"`
	Title       string                 `json:"title"`
	Location    string                 `json:"location"`
	Building    string                 `json:"building,omitempty"`
	Zone        string                 `json:"zone,omitempty"`
	Priority    domain.Priority        `json:"priority"`
	Description string                 `json:"description,omitempty"`
	AssignedTo  string                 `json:"assigned_to,omitempty"`
	Confidence  float64                `json:"confidence,omitempty"`
	Source      domain.Source          `json:"source,omitempty"`
	External    *activity.ExternalData `json:"external,omitempty"`
	CreatedBy   string                 `json:"created_by"`
}

// UpdateActivityStatusCommand moves an activity along its state machine.
type UpdateActivityStatusCommand struct {
	ID     domain.EntityID `json:"id"`
	Status activity.Status `json:"status"`
	Actor  string          `json:"actor"`
}

// AssignActivityCommand assigns a responder.
type AssignActivityCommand struct {
	ID     domain.EntityID `json:"id"`
	UserID string          `json:"user_id"`
	Actor  string          `json:"actor"`
}

// EscalateActivityCommand raises the escalation level.
type EscalateActivityCommand struct {
	ID    domain.EntityID `json:"id"`
	Level int             `json:"level"`
	Actor string          `json:"actor"`
}

// TagActivityCommand attaches a user tag.
type TagActivityCommand struct {
	ID    domain.EntityID `json:"id"`
	Tag   domain.Tag      `json:"tag"`
	Actor string          `json:"actor"`
}

// AddEvidenceCommand attaches supporting material.
type AddEvidenceCommand struct {
	ID          domain.EntityID `json:"id"`
	Kind        string          `json:"kind"`
	Description string          `json:"description,omitempty"`
	URI         string          `json:"uri,omitempty"`
	Actor       string          `json:"actor"`
}

// ArchiveActivityCommand archives an activity (idempotent, terminal).
type ArchiveActivityCommand struct {
	ID     domain.EntityID `json:"id"`
	Reason string          `json:"reason"`
	Actor  string          `json:"actor"`
}

// AttachActivityCommand records an incident linkage on the activity.
type AttachActivityCommand struct {
	ID         domain.EntityID `json:"id"`
	IncidentID domain.EntityID `json:"incident_id"`
	Actor      string          `json:"actor"`
}

// BulkUpdateStatusCommand applies a status change to many activities.
// Items fail independently; failures are reported by id.
type BulkUpdateStatusCommand struct {
	IDs    []domain.EntityID `json:"ids"`
	Status activity.Status   `json:"status"`
	Actor  string            `json:"actor"`
}

// BulkArchiveCommand archives many activities.
type BulkArchiveCommand struct {
	IDs    []domain.EntityID `json:"ids"`
	Reason string            `json:"reason"`
	Actor  string            `json:"actor"`
}

// ---------------------------------------------------------------------------
// Incident commands
// ---------------------------------------------------------------------------

// CreateIncidentCommand opens a new incident, manually or rule-issued.
type CreateIncidentCommand struct {
	Type              string            `json:"type"`
	Title             string            `json:"title"`
	Summary           string            `json:"summary,omitempty"`
	Priority          domain.Priority   `json:"priority"`
	TriggerActivityID domain.EntityID   `json:"trigger_activity_id"`
	RelatedActivities []domain.EntityID `json:"related_activities,omitempty"`

	AutoCreated        bool            `json:"auto_created,omitempty"`
	CreationRuleID     domain.EntityID `json:"creation_rule,omitempty"`
	RequiresValidation bool            `json:"requires_validation,omitempty"`
	ValidationTimeout  time.Duration   `json:"validation_timeout,omitempty"`

	CreatedBy string `json:"created_by"`
}

// ValidateIncidentCommand confirms a pending incident.
type ValidateIncidentCommand struct {
	ID    domain.EntityID `json:"id"`
	Actor string          `json:"actor"`
}

// DismissIncidentCommand rejects an incident with a reason.
type DismissIncidentCommand struct {
	ID     domain.EntityID `json:"id"`
	Reason string          `json:"reason"`
	Actor  string          `json:"actor"`
}

// TransitionIncidentCommand moves an incident to a target lifecycle state
// (activate, investigate, resolve, defer, close).
type TransitionIncidentCommand struct {
	ID     domain.EntityID `json:"id"`
	Target incident.Status `json:"target"`
	Actor  string          `json:"actor"`
}

// EscalateIncidentCommand raises the escalation level toward a target.
type EscalateIncidentCommand struct {
	ID     domain.EntityID `json:"id"`
	Level  int             `json:"level"`
	Target string          `json:"target,omitempty"`
	Reason string          `json:"reason,omitempty"`
	Actor  string          `json:"actor"`
}

// RelateActivityCommand links another activity to an incident.
type RelateActivityCommand struct {
	ID         domain.EntityID `json:"id"`
	ActivityID domain.EntityID `json:"activity_id"`
	Actor      string          `json:"actor"`
}
