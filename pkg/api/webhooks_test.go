package api

import (
	"testing"

	"github.com/argusops/argus/pkg/domain"
	"github.com/argusops/argus/pkg/domain/activity"
)

func TestResolveType(t *testing.T) {
	cases := []struct {
		source   string
		original string
		want     activity.Type
		mapping  string
	}{
		{"access-control", "door-forced", activity.TypeSecurityBreach, "access-control"},
		{"access-control", "badge-denied", activity.TypeAccessDenied, "access-control"},
		{"camera-analytics", "person-down", activity.TypeMedical, "camera-analytics"},
		{"bms", "hvac-fault", activity.TypeMaintenance, "bms"},
		{"bms", "security-breach", activity.TypeSecurityBreach, "native"},
		{"unknown-gateway", "alarm", activity.TypeAlarm, "native"},
		{"unknown-gateway", "mystery-event", activity.TypeAlarm, "fallback"},
	}
	for _, tc := range cases {
		got, mapping := resolveType(tc.source, tc.original)
		if got != tc.want || mapping != tc.mapping {
			t.Errorf("resolveType(%s, %s) = %s via %s, want %s via %s",
				tc.source, tc.original, got, mapping, tc.want, tc.mapping)
		}
	}
}

func TestMapWebhookDefaults(t *testing.T) {
	raw := map[string]interface{}{"type": "door-forced", "sensor_id": "d-14"}
	cmd := mapWebhook("access-control", webhookPayload{Type: "door-forced", Confidence: 92}, raw)

	if cmd.Type != activity.TypeSecurityBreach {
		t.Errorf("Type = %s, want security-breach", cmd.Type)
	}
	if cmd.Title != "access-control: door-forced" {
		t.Errorf("Title = %q, want the source/type fallback", cmd.Title)
	}
	if cmd.Priority != domain.PriorityMedium {
		t.Errorf("Priority = %s, want the medium default", cmd.Priority)
	}
	if cmd.Source != domain.SourceExternal {
		t.Errorf("Source = %s, want external", cmd.Source)
	}
	if cmd.CreatedBy != "webhook:access-control" {
		t.Errorf("CreatedBy = %q", cmd.CreatedBy)
	}
	if cmd.External == nil {
		t.Fatal("External provenance missing")
	}
	if cmd.External.MappingUsed != "access-control" || cmd.External.OriginalType != "door-forced" {
		t.Errorf("External = %+v", cmd.External)
	}
	if cmd.External.RawPayload["sensor_id"] != "d-14" {
		t.Error("raw payload not preserved")
	}
}

func TestMapWebhookHonorsExplicitFields(t *testing.T) {
	cmd := mapWebhook("bms", webhookPayload{
		Type:     "fire-alarm",
		Title:    "fire panel zone 4",
		Priority: "critical",
		Building: "hq",
	}, map[string]interface{}{"type": "fire-alarm"})

	if cmd.Title != "fire panel zone 4" {
		t.Errorf("Title = %q", cmd.Title)
	}
	if cmd.Priority != domain.PriorityCritical {
		t.Errorf("Priority = %s, want critical", cmd.Priority)
	}
	if cmd.Building != "hq" {
		t.Errorf("Building = %q", cmd.Building)
	}
}
