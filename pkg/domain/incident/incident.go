// Package incident defines the Incident bounded context.
// An Incident is a validated, trackable case derived from one or more
// Activities, created by the rule engine or an explicit manual command.
package incident

import (
	"fmt"
	"time"

	"github.com/argusops/argus/pkg/domain"
)

// ---------------------------------------------------------------------------
// Value objects
// ---------------------------------------------------------------------------

// Status tracks the incident lifecycle. It is a separate state machine
// from the activity one: pending incidents await human validation.
type Status string

const (
	StatusPending       Status = "pending"
	StatusActive        Status = "active"
	StatusInvestigating Status = "investigating"
	StatusEscalated     Status = "escalated"
	StatusDeferred      Status = "deferred"
	StatusResolved      Status = "resolved"
	StatusDismissed     Status = "dismissed"
	StatusClosed        Status = "closed"
)

func (s Status) String() string { return string(s) }

// Terminal reports whether the incident can no longer change state.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusDismissed || s == StatusClosed
}

// transitions is the allowed-transition table. The escalated and deferred
// side-paths can return to any non-terminal working state.
var transitions = map[Status][]Status{
	StatusPending:       {StatusActive, StatusDismissed, StatusEscalated, StatusDeferred},
	StatusActive:        {StatusInvestigating, StatusResolved, StatusEscalated, StatusDeferred},
	StatusInvestigating: {StatusResolved, StatusEscalated, StatusDeferred},
	StatusEscalated:     {StatusPending, StatusActive, StatusInvestigating, StatusDeferred, StatusResolved, StatusDismissed},
	StatusDeferred:      {StatusPending, StatusActive, StatusInvestigating, StatusEscalated, StatusResolved, StatusDismissed},
	StatusResolved:      {StatusClosed},
	StatusDismissed:     {},
	StatusClosed:        {},
}

// CanTransition reports whether s may change to target.
func (s Status) CanTransition(target Status) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// ValidationStatus tracks the human-confirmation workflow for auto-created
// incidents that require validation.
type ValidationStatus string

const (
	ValidationNone      ValidationStatus = "none"
	ValidationPending   ValidationStatus = "pending"
	ValidationConfirmed ValidationStatus = "confirmed"
	ValidationExpired   ValidationStatus = "expired"
)

// EscalationStep is one entry in the escalation audit log.
type EscalationStep struct {
	Level       int              `json:"level"`
	Target      string           `json:"target,omitempty"`
	Reason      string           `json:"reason,omitempty"`
	EscalatedBy string           `json:"escalated_by"`
	EscalatedAt domain.Timestamp `json:"escalated_at"`
}

// ---------------------------------------------------------------------------
// Incident aggregate root
// ---------------------------------------------------------------------------

// Incident is the aggregate root for tracked security cases.
type Incident struct {
	domain.AggregateRoot

	// Classification
	Type     string          `json:"type"`
	Title    string          `json:"title"`
	Summary  string          `json:"summary,omitempty"`
	Status   Status          `json:"status"`
	Priority domain.Priority `json:"priority"`

	// Relationships. RelatedActivities always contains the trigger.
	TriggerActivityID string            `json:"trigger_activity_id"`
	RelatedActivities []domain.EntityID `json:"related_activities"`

	// Provenance
	AutoCreated    bool            `json:"auto_created"`
	CreationRuleID domain.EntityID `json:"creation_rule,omitempty"`

	// Validation workflow
	IsPending        bool             `json:"is_pending"`
	PendingUntil     domain.Timestamp `json:"pending_until,omitempty"`
	ValidationStatus ValidationStatus `json:"validation_status"`
	ValidatedBy      string           `json:"validated_by,omitempty"`
	ValidatedAt      domain.Timestamp `json:"validated_at,omitempty"`
	DismissReason    string           `json:"dismiss_reason,omitempty"`

	// Escalation — latest values plus the full step log.
	EscalationLevel   int              `json:"escalation_level"`
	EscalationTarget  string           `json:"escalation_target,omitempty"`
	EscalationHistory []EscalationStep `json:"escalation_history,omitempty"`

	// Lifecycle
	AssignedTo string           `json:"assigned_to,omitempty"`
	CreatedAt  domain.Timestamp `json:"created_at"`
	CreatedBy  string           `json:"created_by"`
	UpdatedAt  domain.Timestamp `json:"updated_at"`
	UpdatedBy  string           `json:"updated_by,omitempty"`
	ResolvedAt domain.Timestamp `json:"resolved_at,omitempty"`
}

// CreateParams carries the initial fields for a new incident.
type CreateParams struct {
	Type              string
	Title             string
	Summary           string
	Priority          domain.Priority
	TriggerActivityID domain.EntityID
	RelatedActivities []domain.EntityID

	AutoCreated    bool
	CreationRuleID domain.EntityID

	// RequiresValidation starts the incident pending with a validation
	// deadline of ValidationTimeout from now.
	RequiresValidation bool
	ValidationTimeout  time.Duration

	CreatedBy string
}

// New creates a new Incident aggregate and records its creation event.
// The trigger activity is always a member of RelatedActivities.
func New(p CreateParams) (*Incident, error) {
	if p.TriggerActivityID.IsZero() {
		return nil, ErrMissingTrigger
	}
	if p.Type == "" {
		return nil, ErrMissingType
	}
	if !p.Priority.Valid() {
		return nil, ErrInvalidPriority
	}
	if p.AutoCreated && p.CreationRuleID.IsZero() {
		return nil, ErrMissingRule
	}

	now := domain.Now()
	inc := &Incident{
		Type:              p.Type,
		Title:             p.Title,
		Summary:           p.Summary,
		Priority:          p.Priority,
		TriggerActivityID: string(p.TriggerActivityID),
		AutoCreated:       p.AutoCreated,
		CreationRuleID:    p.CreationRuleID,
		ValidationStatus:  ValidationNone,
		CreatedAt:         now,
		CreatedBy:         p.CreatedBy,
		UpdatedAt:         now,
		UpdatedBy:         p.CreatedBy,
	}
	inc.SetID(domain.NewID())

	inc.RelatedActivities = []domain.EntityID{p.TriggerActivityID}
	for _, id := range p.RelatedActivities {
		inc.addRelated(id)
	}

	if p.RequiresValidation {
		inc.Status = StatusPending
		inc.IsPending = true
		inc.ValidationStatus = ValidationPending
		inc.PendingUntil = domain.TimestampFrom(now.Add(p.ValidationTimeout))
	} else {
		inc.Status = StatusActive
	}

	inc.RecordEvent(domain.NewEvent(domain.EventIncidentCreated, inc.ID(), p.CreatedBy, map[string]interface{}{
		"type":             inc.Type,
		"priority":         string(inc.Priority),
		"status":           string(inc.Status),
		"trigger_activity": inc.TriggerActivityID,
		"auto_created":     inc.AutoCreated,
		"creation_rule":    string(inc.CreationRuleID),
	}))
	return inc, nil
}

// ---------------------------------------------------------------------------
// Incident behavior
// ---------------------------------------------------------------------------

// Validate confirms a pending incident and activates it.
func (i *Incident) Validate(actor string) error {
	if i.Status != StatusPending {
		return &InvalidTransitionError{From: i.Status, To: StatusActive}
	}
	i.Status = StatusActive
	i.IsPending = false
	i.ValidationStatus = ValidationConfirmed
	i.ValidatedBy = actor
	i.ValidatedAt = domain.Now()
	i.touch(actor)
	i.RecordEvent(domain.NewEvent(domain.EventIncidentValidated, i.ID(), actor, nil))
	i.RecordEvent(domain.NewEvent(domain.EventIncidentActivated, i.ID(), actor, nil))
	return nil
}

// Dismiss rejects the incident with a reason.
func (i *Incident) Dismiss(reason, actor string) error {
	if !i.Status.CanTransition(StatusDismissed) {
		return &InvalidTransitionError{From: i.Status, To: StatusDismissed}
	}
	i.Status = StatusDismissed
	i.IsPending = false
	i.DismissReason = reason
	i.touch(actor)
	i.RecordEvent(domain.NewEvent(domain.EventIncidentDismissed, i.ID(), actor, map[string]string{
		"reason": reason,
	}))
	return nil
}

// ExpireValidation auto-dismisses a pending incident whose validation
// window has elapsed. Returns false when the window is still open or the
// incident is not pending. This is a scheduled resolution, not an error.
func (i *Incident) ExpireValidation(now time.Time) bool {
	if i.Status != StatusPending || !i.IsPending {
		return false
	}
	if now.Before(i.PendingUntil.Time) {
		return false
	}
	i.Status = StatusDismissed
	i.IsPending = false
	i.ValidationStatus = ValidationExpired
	i.DismissReason = "validation timeout"
	i.touch("system")
	i.RecordEvent(domain.NewEvent(domain.EventIncidentDismissed, i.ID(), "system", map[string]string{
		"reason": "validation timeout",
	}))
	return true
}

// Activate moves the incident into the active state.
func (i *Incident) Activate(actor string) error {
	return i.transition(StatusActive, domain.EventIncidentActivated, actor, nil)
}

// StartInvestigation moves an active incident to investigating.
func (i *Incident) StartInvestigation(actor string) error {
	return i.transition(StatusInvestigating, domain.EventIncidentInvestigating, actor, nil)
}

// Resolve closes out the incident as handled.
func (i *Incident) Resolve(actor string) error {
	if err := i.transition(StatusResolved, domain.EventIncidentResolved, actor, nil); err != nil {
		return err
	}
	i.ResolvedAt = domain.Now()
	return nil
}

// Defer parks the incident for later attention.
func (i *Incident) Defer(actor string) error {
	return i.transition(StatusDeferred, domain.EventIncidentDeferred, actor, nil)
}

// Close finalizes a resolved incident after review.
func (i *Incident) Close(actor string) error {
	return i.transition(StatusClosed, domain.EventIncidentClosed, actor, nil)
}

// EscalateTo raises the escalation level toward a target (role or person).
// Every step is appended to the escalation history.
func (i *Incident) EscalateTo(level int, target, reason, actor string) error {
	if i.Status.Terminal() {
		return &InvalidTransitionError{From: i.Status, To: StatusEscalated}
	}
	if level <= i.EscalationLevel {
		return fmt.Errorf("%w: level %d is not above current %d", ErrEscalationNotAbove, level, i.EscalationLevel)
	}
	step := EscalationStep{
		Level:       level,
		Target:      target,
		Reason:      reason,
		EscalatedBy: actor,
		EscalatedAt: domain.Now(),
	}
	i.EscalationLevel = level
	i.EscalationTarget = target
	i.EscalationHistory = append(i.EscalationHistory, step)
	if i.Status != StatusEscalated && i.Status.CanTransition(StatusEscalated) {
		i.Status = StatusEscalated
	}
	i.touch(actor)
	i.RecordEvent(domain.NewEvent(domain.EventIncidentEscalated, i.ID(), actor, step))
	return nil
}

// AssignTo assigns an owner for the incident.
func (i *Incident) AssignTo(userID, actor string) error {
	if i.Status.Terminal() {
		return ErrTerminal
	}
	if userID == "" {
		return ErrMissingAssignee
	}
	i.AssignedTo = userID
	i.touch(actor)
	return nil
}

// AddRelatedActivity links another activity to the incident.
func (i *Incident) AddRelatedActivity(activityID domain.EntityID, actor string) error {
	if i.Status.Terminal() {
		return ErrTerminal
	}
	if activityID.IsZero() {
		return ErrMissingTrigger
	}
	if !i.addRelated(activityID) {
		return nil
	}
	i.touch(actor)
	i.RecordEvent(domain.NewEvent(domain.EventIncidentRelated, i.ID(), actor, map[string]string{
		"activity_id": string(activityID),
	}))
	return nil
}

func (i *Incident) addRelated(id domain.EntityID) bool {
	for _, existing := range i.RelatedActivities {
		if existing == id {
			return false
		}
	}
	i.RelatedActivities = append(i.RelatedActivities, id)
	return true
}

func (i *Incident) transition(target Status, eventType domain.EventType, actor string, payload interface{}) error {
	if !i.Status.CanTransition(target) {
		return &InvalidTransitionError{From: i.Status, To: target}
	}
	i.Status = target
	if target != StatusPending {
		i.IsPending = false
	}
	i.touch(actor)
	i.RecordEvent(domain.NewEvent(eventType, i.ID(), actor, payload))
	return nil
}

func (i *Incident) touch(actor string) {
	i.UpdatedAt = domain.Now()
	i.UpdatedBy = actor
}

// Clone returns a deep copy. Repositories hand out clones so callers
// never mutate stored state through a shared pointer.
func (i *Incident) Clone() *Incident {
	c := *i
	c.AggregateRoot = i.AggregateRoot.WithoutEvents()
	c.RelatedActivities = append([]domain.EntityID(nil), i.RelatedActivities...)
	c.EscalationHistory = append([]EscalationStep(nil), i.EscalationHistory...)
	return &c
}

// ---------------------------------------------------------------------------
// Query model and repository interface
// ---------------------------------------------------------------------------

// Query is the structured filter for incident read operations.
type Query struct {
	Types       []string          `json:"types,omitempty"`
	Statuses    []Status          `json:"statuses,omitempty"`
	Priorities  []domain.Priority `json:"priorities,omitempty"`
	AutoCreated *bool             `json:"auto_created,omitempty"`
	AssignedTo  string            `json:"assigned_to,omitempty"`
	From        time.Time         `json:"from,omitempty"`
	To          time.Time         `json:"to,omitempty"`

	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Matches reports whether an incident satisfies every set constraint.
func (q Query) Matches(i *Incident) bool {
	if len(q.Types) > 0 && !containsString(q.Types, i.Type) {
		return false
	}
	if len(q.Statuses) > 0 && !containsStatus(q.Statuses, i.Status) {
		return false
	}
	if len(q.Priorities) > 0 && !containsPriority(q.Priorities, i.Priority) {
		return false
	}
	if q.AutoCreated != nil && i.AutoCreated != *q.AutoCreated {
		return false
	}
	if q.AssignedTo != "" && i.AssignedTo != q.AssignedTo {
		return false
	}
	if !q.From.IsZero() && i.CreatedAt.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && i.CreatedAt.After(q.To) {
		return false
	}
	return true
}

func containsString(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

func containsStatus(ss []Status, s Status) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

func containsPriority(ps []domain.Priority, p domain.Priority) bool {
	for _, x := range ps {
		if x == p {
			return true
		}
	}
	return false
}

// Repository defines persistence for Incident aggregates.
type Repository interface {
	FindByID(id domain.EntityID) (*Incident, error)
	Search(q Query) ([]*Incident, int, error)
	// FindPendingValidation returns incidents awaiting human confirmation.
	FindPendingValidation() ([]*Incident, error)
	FindByTriggerActivity(activityID domain.EntityID) ([]*Incident, error)
	Save(i *Incident) error
	FindAll() ([]*Incident, error)
}

// ---------------------------------------------------------------------------
// Domain errors
// ---------------------------------------------------------------------------

// InvalidTransitionError reports a lifecycle change outside the transition table.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid incident transition %s -> %s", e.From, e.To)
}

type IncidentError string

func (e IncidentError) Error() string { return string(e) }

const (
	ErrMissingTrigger      IncidentError = "incident requires a trigger activity"
	ErrMissingType         IncidentError = "incident type is required"
	ErrInvalidPriority     IncidentError = "incident priority is not recognized"
	ErrMissingRule         IncidentError = "auto-created incident requires a creation rule"
	ErrMissingAssignee     IncidentError = "assignee is required"
	ErrEscalationNotAbove  IncidentError = "escalation level must exceed the current level"
	ErrTerminal            IncidentError = "incident is in a terminal state"
	ErrNotFound            IncidentError = "incident not found"
	ErrBadTransitionTarget IncidentError = "unknown transition target"
)
