package activity

import (
	"time"

	"github.com/argusops/argus/pkg/domain"
)

// SLA response thresholds by priority. An unresolved activity becomes
// overdue strictly after this long from creation.
var slaThresholds = map[domain.Priority]time.Duration{
	domain.PriorityCritical: 1 * time.Hour,
	domain.PriorityHigh:     4 * time.Hour,
	domain.PriorityMedium:   24 * time.Hour,
	domain.PriorityLow:      72 * time.Hour,
}

// SLAThreshold returns the overdue threshold for a priority. Unknown
// priorities get the most lenient window.
func SLAThreshold(p domain.Priority) time.Duration {
	if d, ok := slaThresholds[p]; ok {
		return d
	}
	return slaThresholds[domain.PriorityLow]
}

// Overdue reports whether the activity has exceeded its SLA window.
// Terminal and archived items are never overdue regardless of age.
func (a *Activity) Overdue(now time.Time) bool {
	if a.Status.Terminal() || a.Archived {
		return false
	}
	return now.Sub(a.CreatedAt.Time) > SLAThreshold(a.Priority)
}
