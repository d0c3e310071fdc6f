package rulengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/argusops/argus/pkg/app"
	"github.com/argusops/argus/pkg/domain"
	"github.com/argusops/argus/pkg/domain/activity"
	"github.com/argusops/argus/pkg/domain/rules"
	"github.com/argusops/argus/pkg/logger"
)

// Engine watches the activity stream and opens incidents when a creation
// rule matches. Rule evaluation failures are isolated per rule; one bad
// condition never blocks the others. A cron-scheduled sweep expires
// pending incidents whose validation window lapsed and drains the
// command retry queues.
type Engine struct {
	container *app.Container
	rules     rules.Repository
	activity  activity.Repository

	schedule string
	cron     *gronx.Gronx
	cancel   context.CancelFunc
}

// New builds an engine over the application container. schedule is a
// five-field cron expression for the sweep.
func New(container *app.Container, activityRepo activity.Repository, schedule string) *Engine {
	return &Engine{
		container: container,
		rules:     container.Rules,
		activity:  activityRepo,
		schedule:  schedule,
		cron:      gronx.New(),
	}
}

// Start subscribes to the activity stream and launches the sweep loop.
// The subscriptions live for the lifetime of the bus.
func (e *Engine) Start(ctx context.Context) {
	e.container.Bus.Subscribe(domain.EventActivityCreated, e.onActivityEvent)
	e.container.Bus.Subscribe(domain.EventActivityStatusChanged, e.onActivityEvent)

	ctx, e.cancel = context.WithCancel(ctx)
	go e.sweepLoop(ctx)

	logger.InfoCF("rules", "Rule engine started", map[string]interface{}{
		"sweep_schedule": e.schedule,
	})
}

// Stop halts the sweep loop.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

// ---------------------------------------------------------------------------
// Event-driven evaluation
// ---------------------------------------------------------------------------

func (e *Engine) onActivityEvent(ev domain.Event) {
	snap, ok := snapshotFrom(ev)
	if !ok {
		return
	}
	e.Evaluate(snap)
}

// snapshotFrom extracts the evaluable state from either trigger event.
func snapshotFrom(ev domain.Event) (activity.Snapshot, bool) {
	switch payload := ev.Payload().(type) {
	case activity.Snapshot:
		return payload, true
	case activity.StatusChange:
		return payload.Snapshot, true
	default:
		return activity.Snapshot{}, false
	}
}

// Evaluate runs every enabled rule against the snapshot and opens an
// incident per match. It returns the ids of incidents created.
func (e *Engine) Evaluate(snap activity.Snapshot) []domain.EntityID {
	enabled, err := e.rules.FindEnabled()
	if err != nil {
		logger.ErrorCF("rules", "Failed to load enabled rules", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}

	var created []domain.EntityID
	for _, rule := range enabled {
		matched, err := rule.Matches(snap)
		if err != nil {
			e.reportEvaluationFailure(rule, snap, err)
			continue
		}
		if !matched {
			continue
		}

		related, ok := e.clusterSatisfied(rule, snap)
		if !ok {
			continue
		}
		if e.alreadyTriggered(rule, snap.ID) {
			continue
		}

		id := e.openIncident(rule, snap, related)
		if !id.IsZero() {
			created = append(created, id)
		}
	}
	return created
}

// clusterSatisfied checks the rule's proximity constraint. Rules without
// a time window always pass with no related set.
func (e *Engine) clusterSatisfied(rule *rules.CreationRule, snap activity.Snapshot) ([]domain.EntityID, bool) {
	window, ok := rule.ClusterWindow()
	if !ok {
		return nil, true
	}

	nearby, err := e.activity.FindRelated(snap.ID, window)
	if err != nil {
		logger.ErrorCF("rules", "Cluster lookup failed", map[string]interface{}{
			"rule":     rule.Name,
			"activity": string(snap.ID),
			"error":    err.Error(),
		})
		return nil, false
	}

	var related []domain.EntityID
	for _, a := range nearby {
		if !typeIn(rule.TriggerActivityTypes, a.Type) {
			continue
		}
		if rule.LocationBased && !a.Location.SameArea(snap.Location) {
			continue
		}
		related = append(related, a.ID())
	}

	// The triggering activity counts toward the cluster.
	if len(related)+1 < rule.ClusterSize() {
		return nil, false
	}
	return related, true
}

func typeIn(set []activity.Type, t activity.Type) bool {
	for _, candidate := range set {
		if candidate == t {
			return true
		}
	}
	return false
}

// alreadyTriggered suppresses duplicate incidents for the same trigger
// activity and rule.
func (e *Engine) alreadyTriggered(rule *rules.CreationRule, activityID domain.EntityID) bool {
	existing, err := e.container.IncidentQueries.ByTriggerActivity(activityID)
	if err != nil {
		return false
	}
	for _, inc := range existing {
		if inc.CreationRuleID == rule.ID {
			return true
		}
	}
	return false
}

func (e *Engine) openIncident(rule *rules.CreationRule, snap activity.Snapshot, related []domain.EntityID) domain.EntityID {
	result := e.container.Incidents.Create(app.CreateIncidentCommand{
		Type:               rule.IncidentType,
		Title:              fmt.Sprintf("%s: %s", rule.Name, snap.Title),
		Summary:            rule.Description,
		Priority:           rule.IncidentPriority,
		TriggerActivityID:  snap.ID,
		RelatedActivities:  related,
		AutoCreated:        true,
		CreationRuleID:     rule.ID,
		RequiresValidation: rule.RequiresValidation,
		ValidationTimeout:  rule.ValidationTimeout(),
		CreatedBy:          "system",
	})
	if !result.Success {
		logger.ErrorCF("rules", "Rule matched but incident creation failed", map[string]interface{}{
			"rule":     rule.Name,
			"activity": string(snap.ID),
			"error":    result.Error,
		})
		return ""
	}

	e.container.Bus.Publish(domain.NewEvent(domain.EventRuleMatched, rule.ID, "system", map[string]interface{}{
		"rule":     rule.Name,
		"activity": string(snap.ID),
		"incident": string(result.AggregateID),
	}))

	logger.InfoCF("rules", "Rule opened incident", map[string]interface{}{
		"rule":     rule.Name,
		"activity": string(snap.ID),
		"incident": string(result.AggregateID),
	})
	return result.AggregateID
}

func (e *Engine) reportEvaluationFailure(rule *rules.CreationRule, snap activity.Snapshot, err error) {
	var evalErr *rules.EvaluationError
	fields := map[string]interface{}{
		"rule":     rule.Name,
		"activity": string(snap.ID),
		"error":    err.Error(),
	}
	if errors.As(err, &evalErr) {
		fields["field"] = evalErr.Cond.Field
	}
	logger.WarnCF("rules", "Rule evaluation failed", fields)

	e.container.Bus.Publish(domain.NewEvent(domain.EventRuleFailed, rule.ID, "system", map[string]interface{}{
		"rule":     rule.Name,
		"activity": string(snap.ID),
		"error":    err.Error(),
	}))
}

// ---------------------------------------------------------------------------
// Validation sweep
// ---------------------------------------------------------------------------

// sweepLoop ticks every 30 seconds and runs the sweep whenever the cron
// expression is due, so schedules down to one minute resolve correctly.
func (e *Engine) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due, err := e.cron.IsDue(e.schedule, now)
			if err != nil {
				logger.ErrorCF("rules", "Bad sweep schedule", map[string]interface{}{
					"schedule": e.schedule,
					"error":    err.Error(),
				})
				return
			}
			if due {
				e.Sweep(now)
			}
		}
	}
}

// Sweep expires lapsed pending incidents, archives activities past their
// retention window and drains the retry queues.
func (e *Engine) Sweep(now time.Time) {
	expired := e.container.Incidents.ExpireValidations(domain.TimestampFrom(now))
	if expired > 0 {
		logger.InfoCF("rules", "Expired pending incidents", map[string]interface{}{
			"count": expired,
		})
	}
	if archived := e.archiveExpiredRetention(now); archived > 0 {
		logger.InfoCF("rules", "Archived activities past retention", map[string]interface{}{
			"count": archived,
		})
	}
	e.container.RetryFailedCommands()
}

// archiveExpiredRetention archives every unarchived activity whose
// retention window lapsed, through the ordinary command path so the
// archive events and cache invalidation fire as usual.
func (e *Engine) archiveExpiredRetention(now time.Time) int {
	lapsed, err := e.activity.FindRetentionExpired(now)
	if err != nil {
		logger.ErrorCF("rules", "Retention lookup failed", map[string]interface{}{
			"error": err.Error(),
		})
		return 0
	}

	archived := 0
	for _, a := range lapsed {
		result := e.container.Activities.Archive(app.ArchiveActivityCommand{
			ID:     a.ID(),
			Reason: "retention expired",
			Actor:  "system",
		})
		if !result.Success {
			logger.WarnCF("rules", "Retention archive failed", map[string]interface{}{
				"activity": string(a.ID()),
				"error":    result.Error,
			})
			continue
		}
		archived++
	}
	return archived
}
