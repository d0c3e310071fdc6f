package incident

import (
	"testing"
	"time"

	"github.com/argusops/argus/pkg/domain"
)

func newTestIncident(t *testing.T, p CreateParams) *Incident {
	t.Helper()
	if p.Type == "" {
		p.Type = "security-breach"
	}
	if p.Title == "" {
		p.Title = "test incident"
	}
	if p.Priority == "" {
		p.Priority = domain.PriorityHigh
	}
	if p.TriggerActivityID.IsZero() {
		p.TriggerActivityID = domain.NewID()
	}
	if p.CreatedBy == "" {
		p.CreatedBy = "tester"
	}
	inc, err := New(p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	inc.PullEvents()
	return inc
}

func TestNewValidation(t *testing.T) {
	trigger := domain.NewID()

	tests := []struct {
		name    string
		params  CreateParams
		wantErr error
	}{
		{
			name:    "missing trigger",
			params:  CreateParams{Type: "x", Title: "t", Priority: domain.PriorityLow, CreatedBy: "u"},
			wantErr: ErrMissingTrigger,
		},
		{
			name:    "missing type",
			params:  CreateParams{Title: "t", Priority: domain.PriorityLow, TriggerActivityID: trigger, CreatedBy: "u"},
			wantErr: ErrMissingType,
		},
		{
			name: "auto-created without rule",
			params: CreateParams{
				Type: "x", Title: "t", Priority: domain.PriorityLow,
				TriggerActivityID: trigger, AutoCreated: true, CreatedBy: "u",
			},
			wantErr: ErrMissingRule,
		},
		{
			name: "valid",
			params: CreateParams{
				Type: "x", Title: "t", Priority: domain.PriorityLow,
				TriggerActivityID: trigger, CreatedBy: "u",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.params)
			if err != tt.wantErr {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTriggerAlwaysRelated(t *testing.T) {
	trigger := domain.NewID()
	other := domain.NewID()
	inc := newTestIncident(t, CreateParams{
		TriggerActivityID: trigger,
		RelatedActivities: []domain.EntityID{other},
	})

	found := false
	for _, id := range inc.RelatedActivities {
		if id == trigger {
			found = true
		}
	}
	if !found {
		t.Errorf("trigger %s not in related set %v", trigger, inc.RelatedActivities)
	}
}

func TestValidationLifecycle(t *testing.T) {
	inc := newTestIncident(t, CreateParams{
		RequiresValidation: true,
		ValidationTimeout:  5 * time.Minute,
	})

	if inc.Status != StatusPending {
		t.Fatalf("status = %s, want pending", inc.Status)
	}
	if inc.PendingUntil.IsZero() {
		t.Fatal("PendingUntil not set")
	}

	if err := inc.Validate("supervisor"); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if inc.Status != StatusActive {
		t.Errorf("status after validate = %s, want active", inc.Status)
	}
	if inc.ValidatedBy != "supervisor" {
		t.Errorf("ValidatedBy = %q", inc.ValidatedBy)
	}

	// A second validation is rejected.
	if err := inc.Validate("supervisor"); err == nil {
		t.Error("validating an active incident should fail")
	}
}

func TestNoValidationStartsActive(t *testing.T) {
	inc := newTestIncident(t, CreateParams{})
	if inc.Status != StatusActive {
		t.Errorf("status = %s, want active", inc.Status)
	}
	if inc.IsPending {
		t.Error("IsPending should be false")
	}
}

func TestExpireValidation(t *testing.T) {
	inc := newTestIncident(t, CreateParams{
		RequiresValidation: true,
		ValidationTimeout:  5 * time.Minute,
	})
	deadline := inc.PendingUntil.Time

	if inc.ExpireValidation(deadline.Add(-time.Second)) {
		t.Error("expired before the deadline")
	}
	if !inc.ExpireValidation(deadline.Add(time.Second)) {
		t.Fatal("did not expire after the deadline")
	}

	if inc.Status != StatusDismissed {
		t.Errorf("status = %s, want dismissed", inc.Status)
	}
	if inc.DismissReason != "validation timeout" {
		t.Errorf("reason = %q", inc.DismissReason)
	}

	events := inc.PullEvents()
	if len(events) != 1 || events[0].EventType() != domain.EventIncidentDismissed {
		t.Errorf("expected one incident.dismissed event, got %v", events)
	}
	if events[0].Actor() != "system" {
		t.Errorf("actor = %q, want system", events[0].Actor())
	}

	// Expiry is one-shot.
	if inc.ExpireValidation(deadline.Add(time.Minute)) {
		t.Error("second expiry returned true")
	}
}

func TestLifecycleTransitions(t *testing.T) {
	inc := newTestIncident(t, CreateParams{})

	if err := inc.StartInvestigation("analyst"); err != nil {
		t.Fatalf("StartInvestigation: %v", err)
	}
	if err := inc.Resolve("analyst"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := inc.Close("analyst"); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Closed is terminal.
	if err := inc.Activate("analyst"); err == nil {
		t.Error("activating a closed incident should fail")
	}
}

func TestDeferReturnsToActive(t *testing.T) {
	inc := newTestIncident(t, CreateParams{})
	if err := inc.Defer("analyst"); err != nil {
		t.Fatalf("Defer: %v", err)
	}
	if inc.Status != StatusDeferred {
		t.Fatalf("status = %s", inc.Status)
	}
	if err := inc.Activate("analyst"); err != nil {
		t.Errorf("reactivating a deferred incident: %v", err)
	}
}

func TestEscalationHistory(t *testing.T) {
	inc := newTestIncident(t, CreateParams{})

	if err := inc.EscalateTo(1, "shift-lead", "no response", "operator"); err != nil {
		t.Fatalf("EscalateTo(1): %v", err)
	}
	if err := inc.EscalateTo(3, "site-manager", "still no response", "operator"); err != nil {
		t.Fatalf("EscalateTo(3): %v", err)
	}

	if inc.Status != StatusEscalated {
		t.Errorf("status = %s, want escalated", inc.Status)
	}
	if inc.EscalationLevel != 3 || inc.EscalationTarget != "site-manager" {
		t.Errorf("level=%d target=%q", inc.EscalationLevel, inc.EscalationTarget)
	}
	if len(inc.EscalationHistory) != 2 {
		t.Fatalf("history length = %d, want 2", len(inc.EscalationHistory))
	}
	if inc.EscalationHistory[0].Level != 1 || inc.EscalationHistory[1].Level != 3 {
		t.Errorf("history levels = %d, %d", inc.EscalationHistory[0].Level, inc.EscalationHistory[1].Level)
	}

	// Level must strictly increase.
	if err := inc.EscalateTo(2, "anyone", "", "operator"); err == nil {
		t.Error("escalating below current level should fail")
	}
}

func TestAddRelatedActivityDeduplicates(t *testing.T) {
	inc := newTestIncident(t, CreateParams{})
	id := domain.NewID()

	if err := inc.AddRelatedActivity(id, "operator"); err != nil {
		t.Fatalf("AddRelatedActivity: %v", err)
	}
	if err := inc.AddRelatedActivity(id, "operator"); err != nil {
		t.Fatalf("repeat AddRelatedActivity: %v", err)
	}

	count := 0
	for _, existing := range inc.RelatedActivities {
		if existing == id {
			count++
		}
	}
	if count != 1 {
		t.Errorf("activity linked %d times", count)
	}
}

func TestTerminalStatuses(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusPending, false},
		{StatusActive, false},
		{StatusInvestigating, false},
		{StatusEscalated, false},
		{StatusDeferred, false},
		{StatusResolved, true},
		{StatusDismissed, true},
		{StatusClosed, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}
