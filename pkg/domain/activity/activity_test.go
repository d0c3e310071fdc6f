package activity

import (
	"testing"
	"time"

	"github.com/argusops/argus/pkg/domain"
)

func newTestActivity(t *testing.T, p CreateParams) *Activity {
	t.Helper()
	if p.Type == "" {
		p.Type = TypeAlarm
	}
	if p.Title == "" {
		p.Title = "test activity"
	}
	if p.Priority == "" {
		p.Priority = domain.PriorityMedium
	}
	if p.CreatedBy == "" {
		p.CreatedBy = "tester"
	}
	a, err := New(p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.PullEvents() // discard the creation event
	return a
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		params  CreateParams
		wantErr error
	}{
		{
			name:    "missing type",
			params:  CreateParams{Title: "x", Priority: domain.PriorityLow, CreatedBy: "u"},
			wantErr: ErrMissingType,
		},
		{
			name:    "missing title",
			params:  CreateParams{Type: TypeAlarm, Priority: domain.PriorityLow, CreatedBy: "u"},
			wantErr: ErrMissingTitle,
		},
		{
			name:    "bad priority",
			params:  CreateParams{Type: TypeAlarm, Title: "x", Priority: "urgent", CreatedBy: "u"},
			wantErr: ErrInvalidPriority,
		},
		{
			name:   "valid",
			params: CreateParams{Type: TypeAlarm, Title: "x", Priority: domain.PriorityLow, CreatedBy: "u"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(tt.params)
			if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if a.ID().IsZero() {
				t.Error("expected an assigned id")
			}
			if a.Status != StatusDetecting {
				t.Errorf("new activity should start detecting, got %s", a.Status)
			}
		})
	}
}

func TestStatusTransitionTable(t *testing.T) {
	all := []Status{StatusDetecting, StatusAssigned, StatusResponding, StatusResolved}
	allowed := map[Status][]Status{
		StatusDetecting:  {StatusAssigned, StatusResolved},
		StatusAssigned:   {StatusResponding, StatusResolved},
		StatusResponding: {StatusResolved},
		StatusResolved:   {},
	}

	for from, targets := range allowed {
		for _, to := range all {
			ok := false
			for _, target := range targets {
				if target == to {
					ok = true
				}
			}

			a := newTestActivity(t, CreateParams{})
			a.Status = from
			err := a.UpdateStatus(to, "operator")

			if ok && err != nil {
				t.Errorf("%s -> %s should be allowed, got %v", from, to, err)
			}
			if !ok && err == nil {
				t.Errorf("%s -> %s should be rejected", from, to)
			}
			if !ok {
				var transitionErr *InvalidTransitionError
				if err != nil {
					var isTransition bool
					transitionErr, isTransition = err.(*InvalidTransitionError)
					if !isTransition {
						t.Errorf("%s -> %s: expected InvalidTransitionError, got %T", from, to, err)
					} else if transitionErr.From != from || transitionErr.To != to {
						t.Errorf("error carries %s -> %s, want %s -> %s",
							transitionErr.From, transitionErr.To, from, to)
					}
				}
			}
		}
	}
}

func TestUpdateStatusRecordsEvent(t *testing.T) {
	a := newTestActivity(t, CreateParams{})
	if err := a.UpdateStatus(StatusAssigned, "operator"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	events := a.PullEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].EventType() != domain.EventActivityStatusChanged {
		t.Errorf("wrong event type: %s", events[0].EventType())
	}
	change, ok := events[0].Payload().(StatusChange)
	if !ok {
		t.Fatalf("payload is %T, want StatusChange", events[0].Payload())
	}
	if change.From != StatusDetecting || change.To != StatusAssigned {
		t.Errorf("payload records %s -> %s", change.From, change.To)
	}
}

func TestRequiresApproval(t *testing.T) {
	for _, p := range domain.AllPriorities() {
		a := newTestActivity(t, CreateParams{Priority: p})
		want := p == domain.PriorityCritical
		if got := a.RequiresApproval(); got != want {
			t.Errorf("priority %s: RequiresApproval = %v, want %v", p, got, want)
		}
	}
}

func TestConfidenceBanding(t *testing.T) {
	tests := []struct {
		confidence float64
		band       string
	}{
		{0.95, "high-confidence"},
		{0.8, "high-confidence"},
		{0.79, "medium-confidence"},
		{0.6, "medium-confidence"},
		{0.59, "low-confidence"},
		{0.1, "low-confidence"},
		// Percent-scale inputs normalize before banding.
		{95, "high-confidence"},
		{85, "high-confidence"},
		{65, "medium-confidence"},
		{20, "low-confidence"},
	}

	bands := []domain.Tag{"high-confidence", "medium-confidence", "low-confidence"}

	for _, tt := range tests {
		a := newTestActivity(t, CreateParams{
			Source:     domain.SourceAutomated,
			Confidence: tt.confidence,
		})

		count := 0
		for _, band := range bands {
			if a.SystemTags.Contains(band) {
				count++
			}
		}
		if count != 1 {
			t.Errorf("confidence %v: %d band tags, want exactly 1 (%v)", tt.confidence, count, a.SystemTags)
		}
		if !a.SystemTags.Contains(domain.Tag(tt.band)) {
			t.Errorf("confidence %v: want %s in %v", tt.confidence, tt.band, a.SystemTags)
		}
	}
}

func TestManualSourceSkipsBanding(t *testing.T) {
	a := newTestActivity(t, CreateParams{Source: domain.SourceManual, Confidence: 0.9})
	for _, band := range []domain.Tag{"high-confidence", "medium-confidence", "low-confidence"} {
		if a.SystemTags.Contains(band) {
			t.Errorf("manual activity should carry no band tag, found %s", band)
		}
	}
}

func TestSystemTags(t *testing.T) {
	a := newTestActivity(t, CreateParams{
		Type: TypeSecurityBreach,
		Location: domain.Location{
			Name:     "east wing",
			Building: "hq",
			Zone:     "lobby",
		},
	})

	for _, want := range []domain.Tag{"type:security-breach", "building:hq", "zone:lobby"} {
		if !a.SystemTags.Contains(want) {
			t.Errorf("missing system tag %s in %v", want, a.SystemTags)
		}
	}
}

func TestEscalationMustIncrease(t *testing.T) {
	a := newTestActivity(t, CreateParams{})
	if err := a.Escalate(2, "operator"); err != nil {
		t.Fatalf("Escalate(2): %v", err)
	}
	if err := a.Escalate(2, "operator"); err == nil {
		t.Error("re-escalating to the same level should fail")
	}
	if err := a.Escalate(1, "operator"); err == nil {
		t.Error("de-escalating should fail")
	}
	if a.EscalationLevel != 2 {
		t.Errorf("level = %d, want 2", a.EscalationLevel)
	}
}

func TestUserTagIdempotent(t *testing.T) {
	a := newTestActivity(t, CreateParams{})
	if err := a.AddUserTag("suspicious", "operator"); err != nil {
		t.Fatalf("AddUserTag: %v", err)
	}
	if err := a.AddUserTag("suspicious", "operator"); err != nil {
		t.Fatalf("repeat AddUserTag: %v", err)
	}
	if len(a.UserTags) != 1 {
		t.Errorf("tag duplicated: %v", a.UserTags)
	}
}

func TestArchiveIdempotent(t *testing.T) {
	a := newTestActivity(t, CreateParams{})
	a.Archive("resolved duplicate", "operator")
	a.PullEvents()
	a.Archive("again", "operator")

	if !a.Archived {
		t.Fatal("expected archived")
	}
	if a.ArchiveReason != "resolved duplicate" {
		t.Errorf("second archive overwrote reason: %q", a.ArchiveReason)
	}
	if len(a.PullEvents()) != 0 {
		t.Error("second archive should not record an event")
	}
}

func TestArchivedRejectsMutation(t *testing.T) {
	a := newTestActivity(t, CreateParams{})
	a.Archive("done", "operator")

	if err := a.UpdateStatus(StatusAssigned, "operator"); err != ErrArchived {
		t.Errorf("UpdateStatus on archived: %v, want ErrArchived", err)
	}
	if err := a.AssignTo("guard-7", "operator"); err != ErrArchived {
		t.Errorf("AssignTo on archived: %v, want ErrArchived", err)
	}
}

func TestPendingEventQueueBounded(t *testing.T) {
	a := newTestActivity(t, CreateParams{})
	for i := 1; i <= domain.MaxPendingEvents+5; i++ {
		if err := a.Escalate(i, "operator"); err != nil {
			t.Fatalf("Escalate(%d): %v", i, err)
		}
	}
	if n := a.PendingEventCount(); n != domain.MaxPendingEvents {
		t.Errorf("pending events = %d, want %d", n, domain.MaxPendingEvents)
	}

	// Oldest events were evicted; the first retained one is escalation 6.
	events := a.PullEvents()
	first, ok := events[0].Payload().(map[string]int)
	if !ok {
		t.Fatalf("payload is %T", events[0].Payload())
	}
	if first["level"] != 6 {
		t.Errorf("first retained escalation level = %d, want 6", first["level"])
	}
}

func TestSLAOverdue(t *testing.T) {
	tests := []struct {
		priority  domain.Priority
		threshold time.Duration
	}{
		{domain.PriorityCritical, time.Hour},
		{domain.PriorityHigh, 4 * time.Hour},
		{domain.PriorityMedium, 24 * time.Hour},
		{domain.PriorityLow, 72 * time.Hour},
	}

	for _, tt := range tests {
		a := newTestActivity(t, CreateParams{Priority: tt.priority})
		created := a.CreatedAt.Time

		if a.Overdue(created.Add(tt.threshold)) {
			t.Errorf("%s: overdue exactly at threshold", tt.priority)
		}
		if !a.Overdue(created.Add(tt.threshold + time.Second)) {
			t.Errorf("%s: not overdue past threshold", tt.priority)
		}
	}
}

func TestTerminalNeverOverdue(t *testing.T) {
	a := newTestActivity(t, CreateParams{Priority: domain.PriorityCritical})
	if err := a.UpdateStatus(StatusResolved, "operator"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if a.Overdue(a.CreatedAt.Add(100 * time.Hour)) {
		t.Error("resolved activity reported overdue")
	}

	b := newTestActivity(t, CreateParams{Priority: domain.PriorityCritical})
	b.Archive("noise", "operator")
	if b.Overdue(b.CreatedAt.Add(100 * time.Hour)) {
		t.Error("archived activity reported overdue")
	}
}

func TestQueryMatches(t *testing.T) {
	a := newTestActivity(t, CreateParams{
		Type:     TypeAlarm,
		Priority: domain.PriorityHigh,
		Location: domain.Location{Building: "hq", Zone: "lobby"},
	})

	tests := []struct {
		name  string
		query Query
		want  bool
	}{
		{"empty matches", Query{}, true},
		{"type match", Query{Types: []Type{TypeAlarm}}, true},
		{"type miss", Query{Types: []Type{TypeMedical}}, false},
		{"priority match", Query{Priorities: []domain.Priority{domain.PriorityHigh, domain.PriorityCritical}}, true},
		{"building miss", Query{Building: "annex"}, false},
		{"zone match", Query{Building: "hq", Zone: "lobby"}, true},
		{"status miss", Query{Statuses: []Status{StatusResolved}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.query.Matches(a); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQueryExcludesArchivedByDefault(t *testing.T) {
	a := newTestActivity(t, CreateParams{})
	a.Archive("noise", "operator")

	if (Query{}).Matches(a) {
		t.Error("archived activity matched default query")
	}
	if !(Query{IncludeArchived: true}).Matches(a) {
		t.Error("archived activity missed by IncludeArchived query")
	}
}

func TestRetentionDate(t *testing.T) {
	a := newTestActivity(t, CreateParams{})
	want := a.CreatedAt.Add(RetentionPeriod)
	if !a.RetentionDate.Equal(want) {
		t.Errorf("default RetentionDate = %v, want %v", a.RetentionDate, want)
	}

	b := newTestActivity(t, CreateParams{Retention: 7 * 24 * time.Hour})
	want = b.CreatedAt.Add(7 * 24 * time.Hour)
	if !b.RetentionDate.Equal(want) {
		t.Errorf("custom RetentionDate = %v, want %v", b.RetentionDate, want)
	}
}

func TestRetentionExpired(t *testing.T) {
	a := newTestActivity(t, CreateParams{})

	if a.RetentionExpired(time.Now()) {
		t.Error("fresh activity reports expired retention")
	}
	if !a.RetentionExpired(a.RetentionDate.Add(time.Minute)) {
		t.Error("activity past RetentionDate not expired")
	}

	a.Archive("cleanup", "tester")
	if a.RetentionExpired(a.RetentionDate.Add(time.Minute)) {
		t.Error("archived activity reports expired retention")
	}
}
