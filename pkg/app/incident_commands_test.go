package app

import (
	"testing"
	"time"

	"github.com/argusops/argus/pkg/domain"
	"github.com/argusops/argus/pkg/domain/activity"
	"github.com/argusops/argus/pkg/domain/incident"
	"github.com/argusops/argus/pkg/infrastructure/eventbus"
	"github.com/argusops/argus/pkg/infrastructure/persistence"
)

func newIncidentFixture(t *testing.T) (*IncidentCommandService, *ActivityCommandService, *persistence.MemoryIncidentRepository) {
	t.Helper()
	incidentRepo := persistence.NewMemoryIncidentRepository()
	activityRepo := persistence.NewMemoryActivityRepository()
	cache := NewQueryCache()
	bus := eventbus.New(true)
	t.Cleanup(bus.Close)

	activities := NewActivityCommandService(activityRepo, bus, cache, nil)
	return NewIncidentCommandService(incidentRepo, activities, bus, cache, nil), activities, incidentRepo
}

func createIncident(t *testing.T, svc *IncidentCommandService, mutate func(*CreateIncidentCommand)) domain.EntityID {
	t.Helper()
	cmd := CreateIncidentCommand{
		Type:              "security-breach",
		Title:             "forced entry",
		Priority:          domain.PriorityHigh,
		TriggerActivityID: "act-1",
		CreationRuleID:    "rule-1",
		AutoCreated:       true,
		CreatedBy:         "system",
	}
	if mutate != nil {
		mutate(&cmd)
	}
	res := svc.Create(cmd)
	if !res.Success {
		t.Fatalf("Create failed: %s", res.Error)
	}
	return res.AggregateID
}

func TestIncidentCreateLinksActivities(t *testing.T) {
	svc, activities, _ := newIncidentFixture(t)

	actRes := activities.Create(CreateActivityCommand{
		Type:      activity.TypeSecurityBreach,
		Title:     "forced door",
		Priority:  domain.PriorityHigh,
		CreatedBy: "tester",
	})
	if !actRes.Success {
		t.Fatalf("activity create failed: %s", actRes.Error)
	}

	incID := createIncident(t, svc, func(cmd *CreateIncidentCommand) {
		cmd.TriggerActivityID = actRes.AggregateID
	})

	a, err := activities.repo.FindByID(actRes.AggregateID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if len(a.IncidentContexts) != 1 || a.IncidentContexts[0] != incID {
		t.Errorf("IncidentContexts = %v, want [%s]", a.IncidentContexts, incID)
	}
}

func TestIncidentValidateAndDismiss(t *testing.T) {
	svc, _, repo := newIncidentFixture(t)

	pending := createIncident(t, svc, func(cmd *CreateIncidentCommand) {
		cmd.RequiresValidation = true
		cmd.ValidationTimeout = 5 * time.Minute
	})
	res := svc.Validate(ValidateIncidentCommand{ID: pending, Actor: "op"})
	if !res.Success {
		t.Fatalf("Validate failed: %s", res.Error)
	}
	inc, _ := repo.FindByID(pending)
	if inc.Status != incident.StatusActive || inc.ValidatedBy != "op" {
		t.Errorf("after validate: status=%s validated_by=%s", inc.Status, inc.ValidatedBy)
	}

	dismissed := createIncident(t, svc, func(cmd *CreateIncidentCommand) {
		cmd.RequiresValidation = true
		cmd.ValidationTimeout = 5 * time.Minute
	})
	res = svc.Dismiss(DismissIncidentCommand{ID: dismissed, Reason: "drill", Actor: "op"})
	if !res.Success {
		t.Fatalf("Dismiss failed: %s", res.Error)
	}
	inc, _ = repo.FindByID(dismissed)
	if inc.Status != incident.StatusDismissed || inc.DismissReason != "drill" {
		t.Errorf("after dismiss: status=%s reason=%s", inc.Status, inc.DismissReason)
	}
}

func TestIncidentTransitionTargets(t *testing.T) {
	svc, _, repo := newIncidentFixture(t)
	id := createIncident(t, svc, nil) // starts active

	steps := []incident.Status{
		incident.StatusInvestigating,
		incident.StatusResolved,
		incident.StatusClosed,
	}
	for _, target := range steps {
		res := svc.Transition(TransitionIncidentCommand{ID: id, Target: target, Actor: "op"})
		if !res.Success {
			t.Fatalf("Transition to %s failed: %s", target, res.Error)
		}
	}
	inc, _ := repo.FindByID(id)
	if inc.Status != incident.StatusClosed {
		t.Errorf("Status = %s, want closed", inc.Status)
	}

	res := svc.Transition(TransitionIncidentCommand{ID: id, Target: "paused", Actor: "op"})
	if res.Success || res.Error != incident.ErrBadTransitionTarget.Error() {
		t.Fatalf("unknown target accepted: %+v", res)
	}
}

func TestIncidentEscalateRecordsHistory(t *testing.T) {
	svc, _, repo := newIncidentFixture(t)
	id := createIncident(t, svc, nil)

	res := svc.Escalate(EscalateIncidentCommand{ID: id, Level: 2, Target: "shift lead", Reason: "no response", Actor: "op"})
	if !res.Success {
		t.Fatalf("Escalate failed: %s", res.Error)
	}

	inc, _ := repo.FindByID(id)
	if inc.EscalationLevel != 2 || inc.Status != incident.StatusEscalated {
		t.Errorf("after escalate: level=%d status=%s", inc.EscalationLevel, inc.Status)
	}
	if len(inc.EscalationHistory) != 1 || inc.EscalationHistory[0].Target != "shift lead" {
		t.Errorf("EscalationHistory = %+v", inc.EscalationHistory)
	}

	// Escalation levels only move up.
	res = svc.Escalate(EscalateIncidentCommand{ID: id, Level: 1, Actor: "op"})
	if res.Success {
		t.Fatal("escalation level decreased")
	}
}

func TestIncidentRelateActivityBothSides(t *testing.T) {
	svc, activities, repo := newIncidentFixture(t)

	actRes := activities.Create(CreateActivityCommand{
		Type:      activity.TypeAlarm,
		Title:     "alarm",
		Priority:  domain.PriorityMedium,
		CreatedBy: "tester",
	})
	if !actRes.Success {
		t.Fatalf("activity create failed: %s", actRes.Error)
	}
	id := createIncident(t, svc, nil)

	res := svc.RelateActivity(RelateActivityCommand{ID: id, ActivityID: actRes.AggregateID, Actor: "op"})
	if !res.Success {
		t.Fatalf("RelateActivity failed: %s", res.Error)
	}

	inc, _ := repo.FindByID(id)
	found := false
	for _, rel := range inc.RelatedActivities {
		if rel == actRes.AggregateID {
			found = true
		}
	}
	if !found {
		t.Error("activity not in RelatedActivities")
	}

	a, err := activities.repo.FindByID(actRes.AggregateID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if len(a.IncidentContexts) != 1 || a.IncidentContexts[0] != id {
		t.Errorf("IncidentContexts = %v, want [%s]", a.IncidentContexts, id)
	}
}

func TestExpireValidationsSkipsFreshOnes(t *testing.T) {
	svc, _, repo := newIncidentFixture(t)
	start := time.Now()

	lapsed := createIncident(t, svc, func(cmd *CreateIncidentCommand) {
		cmd.RequiresValidation = true
		cmd.ValidationTimeout = time.Minute
	})
	fresh := createIncident(t, svc, func(cmd *CreateIncidentCommand) {
		cmd.TriggerActivityID = "act-2"
		cmd.RequiresValidation = true
		cmd.ValidationTimeout = time.Hour
	})

	expired := svc.ExpireValidations(domain.TimestampFrom(start.Add(10 * time.Minute)))
	if expired != 1 {
		t.Fatalf("ExpireValidations = %d, want 1", expired)
	}

	li, _ := repo.FindByID(lapsed)
	fi, _ := repo.FindByID(fresh)
	if li.Status != incident.StatusDismissed {
		t.Errorf("lapsed incident status = %s, want dismissed", li.Status)
	}
	if fi.Status != incident.StatusPending {
		t.Errorf("fresh incident status = %s, want still pending", fi.Status)
	}
}
