package app

import (
	"github.com/argusops/argus/pkg/domain"
	"github.com/argusops/argus/pkg/domain/incident"
	"github.com/argusops/argus/pkg/logger"
)

// ---------------------------------------------------------------------------
// Incident command service — the write path for the Incident aggregate
// ---------------------------------------------------------------------------

// IncidentCommandService executes incident commands through the same
// pipeline as the activity side: optimistic cache update, persist, revert
// and queue a retry on persistence failure, publish the pulled events.
// Creating an incident also links its related activities back through the
// activity write path.
type IncidentCommandService struct {
	repo       incident.Repository
	activities *ActivityCommandService
	bus        domain.EventBus
	cache      *QueryCache
	retries    *retryQueue
	audit      Auditor
}

// NewIncidentCommandService wires the incident write path.
func NewIncidentCommandService(repo incident.Repository, activities *ActivityCommandService, bus domain.EventBus, cache *QueryCache, audit Auditor) *IncidentCommandService {
	return &IncidentCommandService{
		repo:       repo,
		activities: activities,
		bus:        bus,
		cache:      cache,
		retries:    newRetryQueue(),
		audit:      audit,
	}
}

// Create opens a new incident and attaches it to its activities.
func (s *IncidentCommandService) Create(cmd CreateIncidentCommand) CommandResult {
	const commandType = "incident.create"

	inc, err := incident.New(incident.CreateParams{
		Type:               cmd.Type,
		Title:              cmd.Title,
		Summary:            cmd.Summary,
		Priority:           cmd.Priority,
		TriggerActivityID:  cmd.TriggerActivityID,
		RelatedActivities:  cmd.RelatedActivities,
		AutoCreated:        cmd.AutoCreated,
		CreationRuleID:     cmd.CreationRuleID,
		RequiresValidation: cmd.RequiresValidation,
		ValidationTimeout:  cmd.ValidationTimeout,
		CreatedBy:          cmd.CreatedBy,
	})
	if err != nil {
		return s.finish(failureResult(commandType, "", err))
	}

	s.cache.Set(PartitionIncidents, string(inc.ID()), inc, TTLEntity)

	if err := s.repo.Save(inc); err != nil {
		s.cache.Remove(PartitionIncidents, string(inc.ID()))
		s.retries.enqueue(commandType, 1, func() error {
			return s.replaySave(inc)
		})
		return s.finish(failureResult(commandType, inc.ID(), err))
	}

	s.bus.PublishBatch(inc.PullEvents())
	s.linkActivities(inc)
	return s.finish(successResult(commandType, inc.ID()))
}

// Validate confirms a pending incident.
func (s *IncidentCommandService) Validate(cmd ValidateIncidentCommand) CommandResult {
	return s.execute("incident.validate", cmd.ID, func(i *incident.Incident) error {
		return i.Validate(cmd.Actor)
	})
}

// Dismiss rejects an incident with a reason.
func (s *IncidentCommandService) Dismiss(cmd DismissIncidentCommand) CommandResult {
	return s.execute("incident.dismiss", cmd.ID, func(i *incident.Incident) error {
		return i.Dismiss(cmd.Reason, cmd.Actor)
	})
}

// Transition moves an incident to the requested lifecycle state.
func (s *IncidentCommandService) Transition(cmd TransitionIncidentCommand) CommandResult {
	const commandType = "incident.transition"
	return s.execute(commandType, cmd.ID, func(i *incident.Incident) error {
		switch cmd.Target {
		case incident.StatusActive:
			return i.Activate(cmd.Actor)
		case incident.StatusInvestigating:
			return i.StartInvestigation(cmd.Actor)
		case incident.StatusResolved:
			return i.Resolve(cmd.Actor)
		case incident.StatusDeferred:
			return i.Defer(cmd.Actor)
		case incident.StatusClosed:
			return i.Close(cmd.Actor)
		default:
			return incident.ErrBadTransitionTarget
		}
	})
}

// Escalate raises an incident's escalation level toward a target.
func (s *IncidentCommandService) Escalate(cmd EscalateIncidentCommand) CommandResult {
	return s.execute("incident.escalate", cmd.ID, func(i *incident.Incident) error {
		return i.EscalateTo(cmd.Level, cmd.Target, cmd.Reason, cmd.Actor)
	})
}

// RelateActivity links another activity to an incident and records the
// linkage on the activity itself.
func (s *IncidentCommandService) RelateActivity(cmd RelateActivityCommand) CommandResult {
	result := s.execute("incident.relate_activity", cmd.ID, func(i *incident.Incident) error {
		return i.AddRelatedActivity(cmd.ActivityID, cmd.Actor)
	})
	if result.Success && s.activities != nil {
		s.activities.AttachToIncident(AttachActivityCommand{
			ID:         cmd.ActivityID,
			IncidentID: cmd.ID,
			Actor:      cmd.Actor,
		})
	}
	return result
}

// ExpireValidations auto-dismisses pending incidents whose validation
// window has lapsed. Returns the number of incidents expired.
func (s *IncidentCommandService) ExpireValidations(now domain.Timestamp) int {
	pending, err := s.repo.FindPendingValidation()
	if err != nil {
		logger.ErrorCF("commands", "Pending validation scan failed", map[string]interface{}{
			"error": err.Error(),
		})
		return 0
	}

	expired := 0
	for _, inc := range pending {
		if !inc.ExpireValidation(now.Time) {
			continue
		}
		if err := s.repo.Save(inc); err != nil {
			logger.ErrorCF("commands", "Failed to persist expired incident", map[string]interface{}{
				"incident": string(inc.ID()),
				"error":    err.Error(),
			})
			continue
		}
		s.cache.Set(PartitionIncidents, string(inc.ID()), inc, TTLEntity)
		s.bus.PublishBatch(inc.PullEvents())
		expired++
	}
	return expired
}

// RetryFailed re-executes queued failed commands (bounded attempts).
func (s *IncidentCommandService) RetryFailed() {
	s.retries.drain()
}

// PendingRetries returns the current retry backlog size.
func (s *IncidentCommandService) PendingRetries() int {
	return s.retries.size()
}

// ---------------------------------------------------------------------------
// Pipeline internals
// ---------------------------------------------------------------------------

func (s *IncidentCommandService) execute(commandType string, id domain.EntityID, mutate func(*incident.Incident) error) CommandResult {
	if id.IsZero() {
		return s.finish(failureResult(commandType, id, ErrMissingAggregateID))
	}

	prev, hadPrev := s.cache.Get(PartitionIncidents, string(id))

	inc, err := s.repo.FindByID(id)
	if err != nil {
		if err != incident.ErrNotFound {
			s.retries.enqueue(commandType, 1, func() error {
				return s.replay(id, mutate)
			})
		}
		return s.finish(failureResult(commandType, id, err))
	}

	if err := mutate(inc); err != nil {
		return s.finish(failureResult(commandType, id, err))
	}

	s.cache.Set(PartitionIncidents, string(id), inc, TTLEntity)

	if err := s.repo.Save(inc); err != nil {
		if hadPrev {
			s.cache.Set(PartitionIncidents, string(id), prev, TTLEntity)
		} else {
			s.cache.Remove(PartitionIncidents, string(id))
		}
		s.retries.enqueue(commandType, 1, func() error {
			return s.replay(id, mutate)
		})
		return s.finish(failureResult(commandType, id, err))
	}

	s.bus.PublishBatch(inc.PullEvents())
	return s.finish(successResult(commandType, id))
}

func (s *IncidentCommandService) replay(id domain.EntityID, mutate func(*incident.Incident) error) error {
	inc, err := s.repo.FindByID(id)
	if err != nil {
		return err
	}
	if err := mutate(inc); err != nil {
		return err
	}
	if err := s.repo.Save(inc); err != nil {
		return err
	}
	s.cache.Set(PartitionIncidents, string(id), inc, TTLEntity)
	s.bus.PublishBatch(inc.PullEvents())
	return nil
}

func (s *IncidentCommandService) replaySave(inc *incident.Incident) error {
	if err := s.repo.Save(inc); err != nil {
		return err
	}
	s.cache.Set(PartitionIncidents, string(inc.ID()), inc, TTLEntity)
	s.bus.PublishBatch(inc.PullEvents())
	s.linkActivities(inc)
	return nil
}

// linkActivities records the incident linkage on every related activity.
// Linkage failures are logged, not fatal; the incident itself exists.
func (s *IncidentCommandService) linkActivities(inc *incident.Incident) {
	if s.activities == nil {
		return
	}
	for _, activityID := range inc.RelatedActivities {
		res := s.activities.AttachToIncident(AttachActivityCommand{
			ID:         activityID,
			IncidentID: inc.ID(),
			Actor:      inc.CreatedBy,
		})
		if !res.Success {
			logger.WarnCF("commands", "Failed to link activity to incident", map[string]interface{}{
				"incident": string(inc.ID()),
				"activity": string(activityID),
				"error":    res.Error,
			})
		}
	}
}

func (s *IncidentCommandService) finish(result CommandResult) CommandResult {
	if s.audit != nil {
		s.audit(result)
	}
	return result
}
