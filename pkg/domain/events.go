package domain

import "time"

// ---------------------------------------------------------------------------
// Domain event system — the backbone of cross-context communication
// ---------------------------------------------------------------------------

// EventType classifies domain events for routing and filtering.
type EventType string

// EventTypeWildcard matches every event type when subscribing.
const EventTypeWildcard EventType = "*"

// Bounded context prefixes ensure global uniqueness of event names.
const (
	// Activity context events
	EventActivityCreated       EventType = "activity.created"
	EventActivityStatusChanged EventType = "activity.status_changed"
	EventActivityAssigned      EventType = "activity.assigned"
	EventActivityEscalated     EventType = "activity.escalated"
	EventActivityTagged        EventType = "activity.tagged"
	EventActivityEvidenceAdded EventType = "activity.evidence_added"
	EventActivityLinked        EventType = "activity.linked_to_incident"
	EventActivityArchived      EventType = "activity.archived"

	// Incident context events
	EventIncidentCreated       EventType = "incident.created"
	EventIncidentValidated     EventType = "incident.validated"
	EventIncidentDismissed     EventType = "incident.dismissed"
	EventIncidentActivated     EventType = "incident.activated"
	EventIncidentInvestigating EventType = "incident.investigating"
	EventIncidentResolved      EventType = "incident.resolved"
	EventIncidentEscalated     EventType = "incident.escalated"
	EventIncidentDeferred      EventType = "incident.deferred"
	EventIncidentClosed        EventType = "incident.closed"
	EventIncidentRelated       EventType = "incident.activity_related"

	// Rule context events
	EventRuleMatched EventType = "rule.matched"
	EventRuleFailed  EventType = "rule.evaluation_failed"

	// Command pipeline events
	EventCommandExecuted EventType = "command.executed"
	EventCommandFailed   EventType = "command.failed"
	EventCommandRetried  EventType = "command.retried"

	// System-level events
	EventSystemStartup  EventType = "system.startup"
	EventSystemShutdown EventType = "system.shutdown"
)

// Metadata is a generic string map carried on events for tracing context.
type Metadata map[string]string

// Event is the interface all domain events implement. Events are immutable
// once created; state changes are expressed as new events, never edits.
type Event interface {
	// EventID returns the unique identity of this event record.
	EventID() EntityID
	// EventType returns the classified event type.
	EventType() EventType
	// OccurredAt returns when the event happened.
	OccurredAt() time.Time
	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() EntityID
	// Actor returns the user responsible for the change, if any.
	Actor() string
	// EventVersion returns the schema version of the event payload.
	EventVersion() int
	// Payload returns the event-specific data.
	Payload() interface{}
	// Meta returns tracing metadata attached at creation.
	Meta() Metadata
}

// BaseEvent provides a reusable implementation of the Event interface.
type BaseEvent struct {
	ID        EntityID    `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	AggID     EntityID    `json:"aggregate_id"`
	UserID    string      `json:"user_id,omitempty"`
	Version   int         `json:"version"`
	EventData interface{} `json:"data,omitempty"`
	Metadata  Metadata    `json:"metadata,omitempty"`
}

func (e BaseEvent) EventID() EntityID     { return e.ID }
func (e BaseEvent) EventType() EventType  { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) AggregateID() EntityID { return e.AggID }
func (e BaseEvent) Actor() string         { return e.UserID }
func (e BaseEvent) EventVersion() int     { return e.Version }
func (e BaseEvent) Payload() interface{}  { return e.EventData }
func (e BaseEvent) Meta() Metadata        { return e.Metadata }

// NewEvent creates a new version-1 domain event stamped with the current time.
func NewEvent(eventType EventType, aggregateID EntityID, userID string, data interface{}) BaseEvent {
	return BaseEvent{
		ID:        NewID(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		AggID:     aggregateID,
		UserID:    userID,
		Version:   1,
		EventData: data,
	}
}

// WithMetadata returns a copy of the event carrying additional metadata.
func (e BaseEvent) WithMetadata(meta Metadata) BaseEvent {
	merged := make(Metadata, len(e.Metadata)+len(meta))
	for k, v := range e.Metadata {
		merged[k] = v
	}
	for k, v := range meta {
		merged[k] = v
	}
	e.Metadata = merged
	return e
}

// ---------------------------------------------------------------------------
// Event bus — decoupled cross-context communication
// ---------------------------------------------------------------------------

// EventHandler processes a domain event. Delivery is fire-and-forget and
// unordered across handlers, so handlers must be idempotent.
type EventHandler func(Event)

// Unsubscribe cancels a subscription. Safe to call more than once.
type Unsubscribe func()

// EventBus dispatches domain events to registered handlers.
// This is the anti-corruption layer between bounded contexts.
type EventBus interface {
	// Publish dispatches an event to all matching handlers and records it
	// in the bounded history. A no-op when the bus is disabled.
	Publish(event Event)
	// PublishBatch publishes events sequentially, preserving order.
	PublishBatch(events []Event)
	// Subscribe registers a handler for a specific event type and returns
	// an unsubscribe token. Use EventTypeWildcard to receive every event.
	Subscribe(eventType EventType, handler EventHandler) Unsubscribe
	// SubscribeAll registers a handler that receives every event.
	SubscribeAll(handler EventHandler) Unsubscribe
	// History returns a copy of the retained event history (newest last).
	History() []Event
	// AggregateHistory returns retained events for one aggregate.
	AggregateHistory(id EntityID) []Event
	// HandlerCount returns the number of handlers for a type, or all
	// handlers when given EventTypeWildcard.
	HandlerCount(eventType EventType) int
	// Enabled reports whether the bus delivers events at all.
	Enabled() bool
	// Close shuts down the event bus.
	Close()
}
