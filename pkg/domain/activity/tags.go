package activity

import (
	"github.com/argusops/argus/pkg/domain"
)

// Business hours window used for the business-hours/after-hours tag,
// in the local hour-of-day of the activity's creation time.
const (
	businessHoursStart = 6
	businessHoursEnd   = 18
)

// Confidence band boundaries (normalized 0–1 scale).
const (
	highConfidenceFloor   = 0.8
	mediumConfidenceFloor = 0.6
)

// deriveSystemTags recomputes the derived tag set from current state.
// Called on every mutation; tags are replaced wholesale, never edited.
func deriveSystemTags(a *Activity) domain.Tags {
	tags := domain.Tags{domain.Tag("type:" + string(a.Type))}

	if a.Location.Building != "" {
		tags = tags.Add(domain.Tag("building:" + a.Location.Building))
	}
	if a.Location.Zone != "" {
		tags = tags.Add(domain.Tag("zone:" + a.Location.Zone))
	}

	hour := a.CreatedAt.Local().Hour()
	if hour >= businessHoursStart && hour < businessHoursEnd {
		tags = tags.Add("business-hours")
	} else {
		tags = tags.Add("after-hours")
	}

	tags = tags.Add(domain.Tag("source:" + string(a.Source)))

	if a.Source == domain.SourceAutomated {
		tags = tags.Add(confidenceBand(a.NormalizedConfidence()))
	}

	return tags
}

// confidenceBand maps a normalized score to exactly one band tag.
func confidenceBand(c float64) domain.Tag {
	switch {
	case c >= highConfidenceFloor:
		return "high-confidence"
	case c >= mediumConfidenceFloor:
		return "medium-confidence"
	default:
		return "low-confidence"
	}
}
