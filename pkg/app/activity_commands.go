package app

import (
	"time"

	"github.com/argusops/argus/pkg/domain"
	"github.com/argusops/argus/pkg/domain/activity"
	"github.com/argusops/argus/pkg/logger"
)

// ---------------------------------------------------------------------------
// Activity command service — the write path for the Activity aggregate
// ---------------------------------------------------------------------------

// ActivityCommandService executes activity commands: validate, apply the
// mutation through the aggregate's own methods, persist, publish the
// resulting domain events. An optimistic copy lands in the read cache
// before persistence and is reverted on failure. Persistence failures are
// queued for bounded automatic retry.
type ActivityCommandService struct {
	repo      activity.Repository
	bus       domain.EventBus
	cache     *QueryCache
	retries   *retryQueue
	audit     Auditor
	retention time.Duration
}

// NewActivityCommandService wires the activity write path.
func NewActivityCommandService(repo activity.Repository, bus domain.EventBus, cache *QueryCache, audit Auditor) *ActivityCommandService {
	return &ActivityCommandService{
		repo:      repo,
		bus:       bus,
		cache:     cache,
		retries:   newRetryQueue(),
		audit:     audit,
		retention: activity.RetentionPeriod,
	}
}

// SetRetentionPeriod overrides how long newly created activities are
// retained before the sweep archives them.
func (s *ActivityCommandService) SetRetentionPeriod(d time.Duration) {
	if d > 0 {
		s.retention = d
	}
}

// Create ingests a new activity.
func (s *ActivityCommandService) Create(cmd CreateActivityCommand) CommandResult {
	const commandType = "activity.create"

	a, err := activity.New(activity.CreateParams{
		Type:  cmd.Type,
		Title: cmd.Title,
		Location: domain.Location{
			Name:     cmd.Location,
			Building: cmd.Building,
			Zone:     cmd.Zone,
		},
		Priority:    cmd.Priority,
		Description: cmd.Description,
		AssignedTo:  cmd.AssignedTo,
		Source:      cmd.Source,
		Confidence:  cmd.Confidence,
		External:    cmd.External,
		CreatedBy:   cmd.CreatedBy,
		Retention:   s.retention,
	})
	if err != nil {
		return s.finish(failureResult(commandType, "", err))
	}

	// Optimistic: visible to reads before persistence confirms.
	s.cache.Set(PartitionActivities, string(a.ID()), a, TTLEntity)

	if err := s.repo.Save(a); err != nil {
		s.cache.Remove(PartitionActivities, string(a.ID()))
		s.retries.enqueue(commandType, 1, func() error {
			return s.replaySave(a)
		})
		return s.finish(failureResult(commandType, a.ID(), err))
	}

	s.bus.PublishBatch(a.PullEvents())
	return s.finish(successResult(commandType, a.ID()))
}

// UpdateStatus transitions an activity along its state machine.
// Resolving an approval-gated (critical) activity requires a named actor;
// the aggregate carries the flag, the command layer enforces it.
func (s *ActivityCommandService) UpdateStatus(cmd UpdateActivityStatusCommand) CommandResult {
	return s.execute("activity.update_status", cmd.ID, func(a *activity.Activity) error {
		if cmd.Status == activity.StatusResolved && a.RequiresApproval() && cmd.Actor == "" {
			return ErrApprovalActorRequired
		}
		return a.UpdateStatus(cmd.Status, cmd.Actor)
	})
}

// Assign assigns a responder to an activity.
func (s *ActivityCommandService) Assign(cmd AssignActivityCommand) CommandResult {
	return s.execute("activity.assign", cmd.ID, func(a *activity.Activity) error {
		return a.AssignTo(cmd.UserID, cmd.Actor)
	})
}

// Escalate raises an activity's escalation level.
func (s *ActivityCommandService) Escalate(cmd EscalateActivityCommand) CommandResult {
	return s.execute("activity.escalate", cmd.ID, func(a *activity.Activity) error {
		return a.Escalate(cmd.Level, cmd.Actor)
	})
}

// AddTag attaches a user tag.
func (s *ActivityCommandService) AddTag(cmd TagActivityCommand) CommandResult {
	return s.execute("activity.add_tag", cmd.ID, func(a *activity.Activity) error {
		return a.AddUserTag(cmd.Tag, cmd.Actor)
	})
}

// AddEvidence attaches supporting material.
func (s *ActivityCommandService) AddEvidence(cmd AddEvidenceCommand) CommandResult {
	return s.execute("activity.add_evidence", cmd.ID, func(a *activity.Activity) error {
		return a.AddEvidence(cmd.Kind, cmd.Description, cmd.URI, cmd.Actor)
	})
}

// AttachToIncident records an incident linkage on the activity.
func (s *ActivityCommandService) AttachToIncident(cmd AttachActivityCommand) CommandResult {
	return s.execute("activity.attach_incident", cmd.ID, func(a *activity.Activity) error {
		a.AttachToIncident(cmd.IncidentID, cmd.Actor)
		return nil
	})
}

// Archive archives an activity. Idempotent.
func (s *ActivityCommandService) Archive(cmd ArchiveActivityCommand) CommandResult {
	return s.execute("activity.archive", cmd.ID, func(a *activity.Activity) error {
		if a.RequiresApproval() && cmd.Actor == "" {
			return ErrApprovalActorRequired
		}
		a.Archive(cmd.Reason, cmd.Actor)
		return nil
	})
}

// BulkUpdateStatus applies a status change per item; failures are
// independent and reported by id. Partial success is expected.
func (s *ActivityCommandService) BulkUpdateStatus(cmd BulkUpdateStatusCommand) CommandResult {
	const commandType = "activity.bulk_update_status"
	var failed []string
	for _, id := range cmd.IDs {
		res := s.UpdateStatus(UpdateActivityStatusCommand{ID: id, Status: cmd.Status, Actor: cmd.Actor})
		if !res.Success {
			failed = append(failed, string(id))
		}
	}
	return s.bulkResult(commandType, cmd.IDs, failed)
}

// BulkArchive archives per item; failures are independent and reported by id.
func (s *ActivityCommandService) BulkArchive(cmd BulkArchiveCommand) CommandResult {
	const commandType = "activity.bulk_archive"
	var failed []string
	for _, id := range cmd.IDs {
		res := s.Archive(ArchiveActivityCommand{ID: id, Reason: cmd.Reason, Actor: cmd.Actor})
		if !res.Success {
			failed = append(failed, string(id))
		}
	}
	return s.bulkResult(commandType, cmd.IDs, failed)
}

// RetryFailed re-executes queued failed commands (bounded attempts).
func (s *ActivityCommandService) RetryFailed() {
	s.retries.drain()
}

// PendingRetries returns the current retry backlog size.
func (s *ActivityCommandService) PendingRetries() int {
	return s.retries.size()
}

// ---------------------------------------------------------------------------
// Pipeline internals
// ---------------------------------------------------------------------------

// execute runs the uniform command pipeline against an existing aggregate.
func (s *ActivityCommandService) execute(commandType string, id domain.EntityID, mutate func(*activity.Activity) error) CommandResult {
	if id.IsZero() {
		return s.finish(failureResult(commandType, id, ErrMissingAggregateID))
	}

	prev, hadPrev := s.cache.Get(PartitionActivities, string(id))

	a, err := s.repo.FindByID(id)
	if err != nil {
		if err != activity.ErrNotFound {
			s.retries.enqueue(commandType, 1, func() error {
				return s.replay(id, mutate)
			})
		}
		return s.finish(failureResult(commandType, id, err))
	}

	if err := mutate(a); err != nil {
		// Domain validation failed; deterministic, so no retry.
		return s.finish(failureResult(commandType, id, err))
	}

	// Optimistic: publish the mutated copy to readers before persisting.
	s.cache.Set(PartitionActivities, string(id), a, TTLEntity)

	if err := s.repo.Save(a); err != nil {
		if hadPrev {
			s.cache.Set(PartitionActivities, string(id), prev, TTLEntity)
		} else {
			s.cache.Remove(PartitionActivities, string(id))
		}
		s.retries.enqueue(commandType, 1, func() error {
			return s.replay(id, mutate)
		})
		return s.finish(failureResult(commandType, id, err))
	}

	s.bus.PublishBatch(a.PullEvents())
	return s.finish(successResult(commandType, id))
}

// replay re-runs load-mutate-persist-publish for the retry queue.
func (s *ActivityCommandService) replay(id domain.EntityID, mutate func(*activity.Activity) error) error {
	a, err := s.repo.FindByID(id)
	if err != nil {
		return err
	}
	if err := mutate(a); err != nil {
		return err
	}
	if err := s.repo.Save(a); err != nil {
		return err
	}
	s.cache.Set(PartitionActivities, string(id), a, TTLEntity)
	s.bus.PublishBatch(a.PullEvents())
	return nil
}

// replaySave retries persisting a fully built aggregate (creation path).
func (s *ActivityCommandService) replaySave(a *activity.Activity) error {
	if err := s.repo.Save(a); err != nil {
		return err
	}
	s.cache.Set(PartitionActivities, string(a.ID()), a, TTLEntity)
	s.bus.PublishBatch(a.PullEvents())
	return nil
}

func (s *ActivityCommandService) bulkResult(commandType string, ids []domain.EntityID, failed []string) CommandResult {
	result := successResult(commandType, "")
	if len(failed) > 0 {
		result.Success = false
		result.FailedIDs = failed
		result.Error = ErrPartialFailure.Error()
	}
	logger.InfoCF("commands", "Bulk command finished", map[string]interface{}{
		"command": commandType,
		"total":   len(ids),
		"failed":  len(failed),
	})
	return s.finish(result)
}

func (s *ActivityCommandService) finish(result CommandResult) CommandResult {
	if s.audit != nil {
		s.audit(result)
	}
	return result
}

// ---------------------------------------------------------------------------
// Command-layer errors
// ---------------------------------------------------------------------------

type CommandError string

func (e CommandError) Error() string { return string(e) }

const (
	ErrMissingAggregateID    CommandError = "command is missing the aggregate id"
	ErrApprovalActorRequired CommandError = "critical activities require a named actor"
	ErrPartialFailure        CommandError = "one or more items failed"
)
