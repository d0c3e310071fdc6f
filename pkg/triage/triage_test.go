package triage

import (
	"testing"
	"time"

	"github.com/argusops/argus/pkg/domain"
	"github.com/argusops/argus/pkg/domain/activity"
	"github.com/argusops/argus/pkg/infrastructure/persistence"
)

func newActivity(t *testing.T, mutate func(*activity.Activity)) *activity.Activity {
	t.Helper()
	a, err := activity.New(activity.CreateParams{
		Type:      activity.TypeAlarm,
		Title:     "door alarm",
		Location:  domain.Location{Name: "lobby", Building: "hq"},
		Priority:  domain.PriorityMedium,
		Source:    domain.SourceAutomated,
		CreatedBy: "tester",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.PullEvents()
	if mutate != nil {
		mutate(a)
	}
	return a
}

func TestWindowDurations(t *testing.T) {
	cases := []struct {
		window Window
		want   time.Duration
	}{
		{WindowLive, 5 * time.Minute},
		{Window15Minutes, 15 * time.Minute},
		{WindowHour, time.Hour},
		{Window4Hours, 4 * time.Hour},
		{WindowDay, 24 * time.Hour},
		{WindowWeek, 7 * 24 * time.Hour},
		{WindowMonth, 30 * 24 * time.Hour},
	}
	for _, tc := range cases {
		got, ok := tc.window.Duration()
		if !ok || got != tc.want {
			t.Errorf("%s: Duration = %v, %v; want %v", tc.window, got, ok, tc.want)
		}
	}
	if _, ok := Window("fortnight").Duration(); ok {
		t.Error("unknown window reported a duration")
	}
}

func TestWindowApply(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	q, ok := WindowHour.Apply(activity.Query{Limit: 5}, now)
	if !ok {
		t.Fatal("Apply rejected a known window")
	}
	if !q.From.Equal(now.Add(-time.Hour)) || !q.To.Equal(now) {
		t.Errorf("range = [%v, %v], want the hour up to now", q.From, q.To)
	}
	if q.Limit != 5 {
		t.Error("Apply clobbered unrelated query fields")
	}

	orig := activity.Query{Limit: 5}
	q, ok = Window("fortnight").Apply(orig, now)
	if ok || !q.From.IsZero() {
		t.Error("unknown window modified the query")
	}
}

func TestFalsePositiveLikelihood(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*activity.Activity)
		want   float64
	}{
		{"manual source trusted", func(a *activity.Activity) {
			a.Source = domain.SourceManual
			a.Confidence = 0.1
		}, 0},
		{"inverted confidence", func(a *activity.Activity) { a.Confidence = 0.7 }, 0.3},
		{"percent scale", func(a *activity.Activity) { a.Confidence = 70 }, 0.3},
		{"false-positive tag raises", func(a *activity.Activity) {
			a.Confidence = 0.7
			a.UserTags = domain.Tags{"false-positive"}
		}, 0.8},
		{"confirmed tag lowers to floor", func(a *activity.Activity) {
			a.Confidence = 0.7
			a.UserTags = domain.Tags{"confirmed"}
		}, 0},
		{"clamped at one", func(a *activity.Activity) {
			a.Confidence = 0.1
			a.UserTags = domain.Tags{"false-positive"}
		}, 1},
	}
	for _, tc := range cases {
		a := newActivity(t, tc.mutate)
		got := FalsePositiveLikelihood(a)
		if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("%s: likelihood = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestNoisy(t *testing.T) {
	day := time.Date(2026, 8, 1, 12, 0, 0, 0, time.Local)
	night := time.Date(2026, 8, 1, 3, 0, 0, 0, time.Local)

	cases := []struct {
		name   string
		mutate func(*activity.Activity)
		want   bool
	}{
		{"clean automated detection", func(a *activity.Activity) {
			a.Confidence = 0.9
			a.CreatedAt = domain.TimestampFrom(day)
		}, false},
		{"probable false positive", func(a *activity.Activity) {
			a.Confidence = 0.05
			a.CreatedAt = domain.TimestampFrom(day)
		}, true},
		{"low confidence suppressed", func(a *activity.Activity) {
			a.Confidence = 0.25
			a.CreatedAt = domain.TimestampFrom(day)
		}, true},
		{"low confidence critical kept", func(a *activity.Activity) {
			a.Confidence = 0.25
			a.Priority = domain.PriorityCritical
			a.UserTags = domain.Tags{"confirmed"}
			a.CreatedAt = domain.TimestampFrom(day)
		}, false},
		{"low priority at night", func(a *activity.Activity) {
			a.Priority = domain.PriorityLow
			a.Confidence = 0.9
			a.CreatedAt = domain.TimestampFrom(night)
		}, true},
		{"low priority in daytime", func(a *activity.Activity) {
			a.Priority = domain.PriorityLow
			a.Confidence = 0.9
			a.CreatedAt = domain.TimestampFrom(day)
		}, false},
		{"repetitive patrol", func(a *activity.Activity) {
			a.Type = activity.TypePatrol
			a.Confidence = 0.9
			a.UserTags = domain.Tags{"repetitive"}
			a.CreatedAt = domain.TimestampFrom(day)
		}, true},
	}
	for _, tc := range cases {
		a := newActivity(t, tc.mutate)
		if got := Noisy(a); got != tc.want {
			t.Errorf("%s: Noisy = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestFilterNoise(t *testing.T) {
	day := time.Date(2026, 8, 1, 12, 0, 0, 0, time.Local)
	keep := newActivity(t, func(a *activity.Activity) {
		a.Confidence = 0.9
		a.CreatedAt = domain.TimestampFrom(day)
	})
	drop := newActivity(t, func(a *activity.Activity) {
		a.Confidence = 0.05
		a.CreatedAt = domain.TimestampFrom(day)
	})

	in := []*activity.Activity{keep, drop}
	out := FilterNoise(in)
	if len(out) != 1 || out[0] != keep {
		t.Fatalf("FilterNoise kept %d items", len(out))
	}
	if len(in) != 2 {
		t.Error("FilterNoise mutated its input")
	}
}

func TestOverdueFilter(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	late := newActivity(t, func(a *activity.Activity) {
		a.Priority = domain.PriorityHigh
		a.CreatedAt = domain.TimestampFrom(now.Add(-5 * time.Hour))
	})
	fresh := newActivity(t, func(a *activity.Activity) {
		a.Priority = domain.PriorityHigh
		a.CreatedAt = domain.TimestampFrom(now.Add(-time.Hour))
	})

	got := Overdue([]*activity.Activity{late, fresh}, now)
	if len(got) != 1 || got[0] != late {
		t.Fatalf("Overdue returned %d items", len(got))
	}
}

func TestClustererAround(t *testing.T) {
	repo := persistence.NewMemoryActivityRepository()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	ref := newActivity(t, func(a *activity.Activity) {
		a.CreatedAt = domain.TimestampFrom(base)
	})
	near := newActivity(t, func(a *activity.Activity) {
		a.CreatedAt = domain.TimestampFrom(base.Add(5 * time.Minute))
	})
	far := newActivity(t, func(a *activity.Activity) {
		a.CreatedAt = domain.TimestampFrom(base.Add(time.Hour))
	})
	for _, a := range []*activity.Activity{ref, near, far} {
		if err := repo.Save(a); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	c := NewClusterer(repo)
	cluster, err := c.Around(ref.ID(), 0) // falls back to the 15m default
	if err != nil {
		t.Fatalf("Around: %v", err)
	}
	if cluster.Window != DefaultClusterWindow {
		t.Errorf("Window = %v, want the default", cluster.Window)
	}
	if cluster.Size() != 2 || len(cluster.Members) != 1 {
		t.Fatalf("Size = %d with %d members, want the reference plus one", cluster.Size(), len(cluster.Members))
	}
	if cluster.Members[0].ID() != near.ID() {
		t.Errorf("member = %s, want %s", cluster.Members[0].ID(), near.ID())
	}
	if cluster.Reference.ID() != ref.ID() {
		t.Errorf("reference = %s, want %s", cluster.Reference.ID(), ref.ID())
	}
}
