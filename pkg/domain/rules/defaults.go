package rules

import (
	"github.com/argusops/argus/pkg/domain"
	"github.com/argusops/argus/pkg/domain/activity"
)

// Defaults returns the built-in rule set seeded on first start. IDs are
// fixed so reseeding on restart finds the existing rows.
func Defaults() []*CreationRule {
	confidence80 := 80.0
	priorityHigh := domain.PriorityHigh

	return []*CreationRule{
		{
			ID:                   "rule-medical-emergency",
			Name:                 "medical emergency",
			Description:          "Any medical activity becomes an incident immediately.",
			Enabled:              true,
			TriggerActivityTypes: []activity.Type{activity.TypeMedical},
			IncidentType:         "medical-emergency",
			IncidentPriority:     domain.PriorityCritical,
			RequiresValidation:   false,
			Dismissible:          false,
		},
		{
			ID:                       "rule-breach-high-confidence",
			Name:                     "high-confidence security breach",
			Description:              "Automated breach detections above 80% confidence, pending validation.",
			Enabled:                  true,
			TriggerActivityTypes:     []activity.Type{activity.TypeSecurityBreach},
			ConfidenceThreshold:      &confidence80,
			IncidentType:             "security-breach",
			IncidentPriority:         domain.PriorityHigh,
			RequiresValidation:       true,
			ValidationTimeoutMinutes: 5,
			Dismissible:              true,
		},
		{
			ID:                       "rule-alarm-cluster",
			Name:                     "repeated alarm cluster",
			Description:              "Three or more alarms in the same area within 15 minutes.",
			Enabled:                  true,
			TriggerActivityTypes:     []activity.Type{activity.TypeAlarm, activity.TypeAccessDenied},
			PriorityThreshold:        &priorityHigh,
			TimeWindowMinutes:        15,
			LocationBased:            true,
			MinClusterSize:           3,
			IncidentType:             "alarm-cluster",
			IncidentPriority:         domain.PriorityHigh,
			RequiresValidation:       true,
			ValidationTimeoutMinutes: 10,
			Dismissible:              true,
		},
	}
}
