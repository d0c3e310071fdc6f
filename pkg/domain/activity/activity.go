// Package activity defines the Activity bounded context.
// An Activity is an aggregate root representing one observed security or
// operational event — the unit of ingestion for the dashboard.
package activity

import (
	"fmt"
	"time"

	"github.com/argusops/argus/pkg/domain"
)

// ---------------------------------------------------------------------------
// Value objects
// ---------------------------------------------------------------------------

// Type classifies what kind of event was observed. The set is open —
// external systems map their own alert types in.
type Type string

const (
	TypeMedical        Type = "medical"
	TypeSecurityBreach Type = "security-breach"
	TypePatrol         Type = "patrol"
	TypeAccessDenied   Type = "access-denied"
	TypeAlarm          Type = "alarm"
	TypeMaintenance    Type = "maintenance"
)

func (t Type) String() string { return string(t) }

// Status tracks the response lifecycle of an activity.
type Status string

const (
	StatusDetecting  Status = "detecting"
	StatusAssigned   Status = "assigned"
	StatusResponding Status = "responding"
	StatusResolved   Status = "resolved"
)

func (s Status) String() string { return string(s) }

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool { return s == StatusResolved }

// transitions is the fixed allowed-transition table. A status may only
// change along these edges.
var transitions = map[Status][]Status{
	StatusDetecting:  {StatusAssigned, StatusResolved},
	StatusAssigned:   {StatusResponding, StatusResolved},
	StatusResponding: {StatusResolved},
	StatusResolved:   {},
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

// Evidence is a single piece of supporting material attached to an activity.
type Evidence struct {
	ID          domain.EntityID  `json:"id"`
	Kind        string           `json:"kind"` // "photo", "video", "log", "note"
	Description string           `json:"description,omitempty"`
	URI         string           `json:"uri,omitempty"`
	AddedBy     string           `json:"added_by"`
	AddedAt     domain.Timestamp `json:"added_at"`
}

// ExternalData carries the raw payload of an externally ingested activity.
type ExternalData struct {
	SourceSystem        string                 `json:"source_system"`
	OriginalType        string                 `json:"original_type"`
	RawPayload          map[string]interface{} `json:"raw_payload,omitempty"`
	ProcessingTimestamp domain.Timestamp       `json:"processing_timestamp"`
	MappingUsed         string                 `json:"mapping_used,omitempty"`
	OriginalEvent       string                 `json:"original_event,omitempty"`
}

// ---------------------------------------------------------------------------
// Activity aggregate root
// ---------------------------------------------------------------------------

// Activity is the aggregate root for observed events. Identity fields
// (id, created-at, type, title, location) are immutable after creation;
// everything else changes only through aggregate methods.
type Activity struct {
	domain.AggregateRoot

	// Identity (immutable)
	Type     Type            `json:"type"`
	Title    string          `json:"title"`
	Location domain.Location `json:"location"`

	// Mutable state
	Priority        domain.Priority `json:"priority"`
	Status          Status          `json:"status"`
	AssignedTo      string          `json:"assigned_to,omitempty"`
	Description     string          `json:"description,omitempty"`
	EscalationLevel int             `json:"escalation_level"`
	UserTags        domain.Tags     `json:"user_tags,omitempty"`
	SystemTags      domain.Tags     `json:"system_tags,omitempty"`
	Evidence        []Evidence      `json:"evidence,omitempty"`

	// Incidents this activity has been attached to.
	IncidentContexts []domain.EntityID `json:"incident_contexts,omitempty"`

	// Provenance
	Source     domain.Source `json:"source"`
	Confidence float64       `json:"confidence,omitempty"`
	External   *ExternalData `json:"external,omitempty"`

	// Archival — activities are never hard-deleted.
	Archived      bool             `json:"archived"`
	ArchiveReason string           `json:"archive_reason,omitempty"`
	RetentionDate domain.Timestamp `json:"retention_date"`

	// Lifecycle
	CreatedAt domain.Timestamp `json:"created_at"`
	CreatedBy string           `json:"created_by"`
	UpdatedAt domain.Timestamp `json:"updated_at"`
	UpdatedBy string           `json:"updated_by,omitempty"`
}

// RetentionPeriod is how long an activity is retained before it becomes
// eligible for archival.
const RetentionPeriod = 30 * 24 * time.Hour

// CreateParams carries the immutable and initial fields for a new activity.
type CreateParams struct {
	Type        Type
	Title       string
	Location    domain.Location
	Priority    domain.Priority
	Description string
	AssignedTo  string
	Source      domain.Source
	Confidence  float64
	External    *ExternalData
	CreatedBy   string
	// Retention overrides the default retention period when positive.
	Retention time.Duration
}

// New creates a new Activity aggregate and records its creation event.
func New(p CreateParams) (*Activity, error) {
	if p.Type == "" {
		return nil, ErrMissingType
	}
	if p.Title == "" {
		return nil, ErrMissingTitle
	}
	if !p.Priority.Valid() {
		return nil, ErrInvalidPriority
	}
	if p.Source == "" {
		p.Source = domain.SourceManual
	}
	retention := p.Retention
	if retention <= 0 {
		retention = RetentionPeriod
	}

	now := domain.Now()
	a := &Activity{
		Type:            p.Type,
		Title:           p.Title,
		Location:        p.Location,
		Priority:        p.Priority,
		Status:          StatusDetecting,
		AssignedTo:      p.AssignedTo,
		Description:     p.Description,
		EscalationLevel: 0,
		Source:          p.Source,
		Confidence:      p.Confidence,
		External:        p.External,
		RetentionDate:   domain.TimestampFrom(now.Add(retention)),
		CreatedAt:       now,
		CreatedBy:       p.CreatedBy,
		UpdatedAt:       now,
		UpdatedBy:       p.CreatedBy,
	}
	a.SetID(domain.NewID())
	a.SystemTags = deriveSystemTags(a)
	a.RecordEvent(domain.NewEvent(domain.EventActivityCreated, a.ID(), p.CreatedBy, a.Snapshot()))
	return a, nil
}

// RequiresApproval is true whenever the activity sits in the highest
// severity tier. Enforcement belongs to the command layer, not here.
func (a *Activity) RequiresApproval() bool {
	return a.Priority == domain.PriorityCritical
}

// NormalizedConfidence returns confidence on a 0–1 scale. External feeds
// report percentages; manually entered scores are already fractional.
func (a *Activity) NormalizedConfidence() float64 {
	return NormalizeConfidence(a.Confidence)
}

// NormalizeConfidence maps a raw confidence score to 0–1.
func NormalizeConfidence(c float64) float64 {
	if c > 1 {
		return c / 100
	}
	return c
}

// ---------------------------------------------------------------------------
// Activity behavior
// ---------------------------------------------------------------------------

// UpdateStatus transitions the activity along the fixed status table.
func (a *Activity) UpdateStatus(target Status, actor string) error {
	if a.Archived {
		return ErrArchived
	}
	if !a.Status.CanTransition(target) {
		return &InvalidTransitionError{From: a.Status, To: target}
	}
	from := a.Status
	a.Status = target
	a.touch(actor)
	a.RecordEvent(domain.NewEvent(domain.EventActivityStatusChanged, a.ID(), actor, StatusChange{
		From:     from,
		To:       target,
		Snapshot: a.Snapshot(),
	}))
	return nil
}

// AssignTo assigns a responder to the activity.
func (a *Activity) AssignTo(userID, actor string) error {
	if a.Archived {
		return ErrArchived
	}
	if userID == "" {
		return ErrMissingAssignee
	}
	a.AssignedTo = userID
	a.touch(actor)
	a.RecordEvent(domain.NewEvent(domain.EventActivityAssigned, a.ID(), actor, map[string]string{
		"assigned_to": userID,
	}))
	return nil
}

// Escalate raises the escalation level. The level must strictly increase.
func (a *Activity) Escalate(level int, actor string) error {
	if a.Archived {
		return ErrArchived
	}
	if level <= a.EscalationLevel {
		return fmt.Errorf("%w: level %d is not above current %d", ErrEscalationNotAbove, level, a.EscalationLevel)
	}
	a.EscalationLevel = level
	a.touch(actor)
	a.RecordEvent(domain.NewEvent(domain.EventActivityEscalated, a.ID(), actor, map[string]int{
		"level": level,
	}))
	return nil
}

// AddUserTag attaches a free-form tag. Duplicate tags are ignored.
func (a *Activity) AddUserTag(tag domain.Tag, actor string) error {
	if a.Archived {
		return ErrArchived
	}
	if tag == "" {
		return ErrEmptyTag
	}
	if a.UserTags.Contains(tag) {
		return nil
	}
	a.UserTags = a.UserTags.Add(tag)
	a.touch(actor)
	a.RecordEvent(domain.NewEvent(domain.EventActivityTagged, a.ID(), actor, map[string]string{
		"tag": string(tag),
	}))
	return nil
}

// AddEvidence attaches supporting material.
func (a *Activity) AddEvidence(kind, description, uri, actor string) error {
	if a.Archived {
		return ErrArchived
	}
	if kind == "" {
		return ErrMissingEvidenceKind
	}
	ev := Evidence{
		ID:          domain.NewID(),
		Kind:        kind,
		Description: description,
		URI:         uri,
		AddedBy:     actor,
		AddedAt:     domain.Now(),
	}
	a.Evidence = append(a.Evidence, ev)
	a.touch(actor)
	a.RecordEvent(domain.NewEvent(domain.EventActivityEvidenceAdded, a.ID(), actor, ev))
	return nil
}

// AttachToIncident records that an incident now references this activity.
func (a *Activity) AttachToIncident(incidentID domain.EntityID, actor string) {
	for _, id := range a.IncidentContexts {
		if id == incidentID {
			return
		}
	}
	a.IncidentContexts = append(a.IncidentContexts, incidentID)
	a.touch(actor)
	a.RecordEvent(domain.NewEvent(domain.EventActivityLinked, a.ID(), actor, map[string]string{
		"incident_id": string(incidentID),
	}))
}

// Archive marks the activity archived. Idempotent and terminal.
func (a *Activity) Archive(reason, actor string) {
	if a.Archived {
		return
	}
	a.Archived = true
	a.ArchiveReason = reason
	a.touch(actor)
	a.RecordEvent(domain.NewEvent(domain.EventActivityArchived, a.ID(), actor, map[string]string{
		"reason": reason,
	}))
}

// RetentionExpired reports whether the activity has outlived its retention
// window and should be archived by the retention sweep.
func (a *Activity) RetentionExpired(now time.Time) bool {
	return !a.Archived && now.After(a.RetentionDate.Time)
}

// touch stamps the update audit fields and recomputes derived tags.
func (a *Activity) touch(actor string) {
	a.UpdatedAt = domain.Now()
	a.UpdatedBy = actor
	a.SystemTags = deriveSystemTags(a)
}

// ---------------------------------------------------------------------------
// Event payloads
// ---------------------------------------------------------------------------

// Snapshot is an immutable value copy of the fields rule evaluation and
// read models need. Events carry snapshots, never the live aggregate.
type Snapshot struct {
	ID              domain.EntityID  `json:"id"`
	Type            Type             `json:"type"`
	Title           string           `json:"title"`
	Location        domain.Location  `json:"location"`
	Priority        domain.Priority  `json:"priority"`
	Status          Status           `json:"status"`
	AssignedTo      string           `json:"assigned_to,omitempty"`
	Description     string           `json:"description,omitempty"`
	EscalationLevel int              `json:"escalation_level"`
	UserTags        domain.Tags      `json:"user_tags,omitempty"`
	SystemTags      domain.Tags      `json:"system_tags,omitempty"`
	Source          domain.Source    `json:"source"`
	Confidence      float64          `json:"confidence,omitempty"`
	CreatedAt       domain.Timestamp `json:"created_at"`
}

// Snapshot returns a value copy of the activity's evaluable state.
func (a *Activity) Snapshot() Snapshot {
	return Snapshot{
		ID:              a.ID(),
		Type:            a.Type,
		Title:           a.Title,
		Location:        a.Location,
		Priority:        a.Priority,
		Status:          a.Status,
		AssignedTo:      a.AssignedTo,
		Description:     a.Description,
		EscalationLevel: a.EscalationLevel,
		UserTags:        append(domain.Tags(nil), a.UserTags...),
		SystemTags:      append(domain.Tags(nil), a.SystemTags...),
		Source:          a.Source,
		Confidence:      a.Confidence,
		CreatedAt:       a.CreatedAt,
	}
}

// Clone returns a deep copy. Repositories hand out clones so callers
// never mutate stored state through a shared pointer.
func (a *Activity) Clone() *Activity {
	b := *a
	b.AggregateRoot = a.AggregateRoot.WithoutEvents()
	b.UserTags = append(domain.Tags(nil), a.UserTags...)
	b.SystemTags = append(domain.Tags(nil), a.SystemTags...)
	b.Evidence = append([]Evidence(nil), a.Evidence...)
	b.IncidentContexts = append([]domain.EntityID(nil), a.IncidentContexts...)
	if a.External != nil {
		ext := *a.External
		b.External = &ext
	}
	return &b
}

// StatusChange is the payload of activity.status_changed events.
type StatusChange struct {
	From     Status   `json:"from"`
	To       Status   `json:"to"`
	Snapshot Snapshot `json:"snapshot"`
}

// ---------------------------------------------------------------------------
// Domain errors
// ---------------------------------------------------------------------------

// InvalidTransitionError reports a status change outside the transition table.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

type ActivityError string

func (e ActivityError) Error() string { return string(e) }

const (
	ErrMissingType         ActivityError = "activity type is required"
	ErrMissingTitle        ActivityError = "activity title is required"
	ErrInvalidPriority     ActivityError = "activity priority is not recognized"
	ErrMissingAssignee     ActivityError = "assignee is required"
	ErrEscalationNotAbove  ActivityError = "escalation level must exceed the current level"
	ErrEmptyTag            ActivityError = "tag cannot be empty"
	ErrMissingEvidenceKind ActivityError = "evidence kind is required"
	ErrArchived            ActivityError = "activity is archived"
	ErrNotFound            ActivityError = "activity not found"
)
