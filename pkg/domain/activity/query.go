package activity

import (
	"time"

	"github.com/argusops/argus/pkg/domain"
)

// ---------------------------------------------------------------------------
// Query model — structured read-side filters
// ---------------------------------------------------------------------------

// SortOrder direction for query results.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Query is the structured filter accepted by activity read operations.
// Zero values mean "no constraint".
type Query struct {
	Types           []Type            `json:"types,omitempty"`
	Statuses        []Status          `json:"statuses,omitempty"`
	Priorities      []domain.Priority `json:"priorities,omitempty"`
	Building        string            `json:"building,omitempty"`
	Zone            string            `json:"zone,omitempty"`
	AssignedTo      string            `json:"assigned_to,omitempty"`
	From            time.Time         `json:"from,omitempty"`
	To              time.Time         `json:"to,omitempty"`
	Text            string            `json:"text,omitempty"`
	IncludeArchived bool              `json:"include_archived,omitempty"`
	MinConfidence   float64           `json:"min_confidence,omitempty"`

	Limit     int       `json:"limit,omitempty"`
	Offset    int       `json:"offset,omitempty"`
	SortField string    `json:"sort_field,omitempty"` // "created_at", "updated_at", "priority"
	SortOrder SortOrder `json:"sort_order,omitempty"`
}

// Matches reports whether an activity satisfies every set constraint.
// Text matching is handled by the repository (index-dependent); Matches
// covers the structured fields only.
func (q Query) Matches(a *Activity) bool {
	if !q.IncludeArchived && a.Archived {
		return false
	}
	if len(q.Types) > 0 && !containsType(q.Types, a.Type) {
		return false
	}
	if len(q.Statuses) > 0 && !containsStatus(q.Statuses, a.Status) {
		return false
	}
	if len(q.Priorities) > 0 && !containsPriority(q.Priorities, a.Priority) {
		return false
	}
	if q.Building != "" && a.Location.Building != q.Building {
		return false
	}
	if q.Zone != "" && a.Location.Zone != q.Zone {
		return false
	}
	if q.AssignedTo != "" && a.AssignedTo != q.AssignedTo {
		return false
	}
	if !q.From.IsZero() && a.CreatedAt.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && a.CreatedAt.After(q.To) {
		return false
	}
	if q.MinConfidence > 0 && a.NormalizedConfidence() < NormalizeConfidence(q.MinConfidence) {
		return false
	}
	return true
}

func containsType(ts []Type, t Type) bool {
	for _, tt := range ts {
		if tt == t {
			return true
		}
	}
	return false
}

func containsStatus(ss []Status, s Status) bool {
	for _, st := range ss {
		if st == s {
			return true
		}
	}
	return false
}

func containsPriority(ps []domain.Priority, p domain.Priority) bool {
	for _, pp := range ps {
		if pp == p {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Statistics
// ---------------------------------------------------------------------------

// Stats aggregates distribution and timing figures over a filtered set.
type Stats struct {
	Total         int            `json:"total"`
	ByPriority    map[string]int `json:"by_priority"`
	ByStatus      map[string]int `json:"by_status"`
	ByType        map[string]int `json:"by_type"`
	AvgConfidence float64        `json:"avg_confidence"`

	// Response time (creation to resolution) percentiles over resolved items.
	ResponseP50 time.Duration `json:"response_p50"`
	ResponseP90 time.Duration `json:"response_p90"`
	ResponseP99 time.Duration `json:"response_p99"`
}

// ---------------------------------------------------------------------------
// Repository interface
// ---------------------------------------------------------------------------

// Repository defines persistence for Activity aggregates. The core depends
// only on this contract, not on any storage technology.
type Repository interface {
	FindByID(id domain.EntityID) (*Activity, error)
	FindByIDs(ids []domain.EntityID) ([]*Activity, error)
	// Search returns the matching page and the total match count.
	Search(q Query) ([]*Activity, int, error)
	Save(a *Activity) error
	GetStats(q Query) (*Stats, error)
	// FindRequiringAttention returns unresolved critical/high activities
	// and anything escalated past level zero.
	FindRequiringAttention() ([]*Activity, error)
	// FindOverdue returns unresolved activities past their SLA threshold.
	FindOverdue(now time.Time) ([]*Activity, error)
	// FindRetentionExpired returns unarchived activities whose retention
	// window has lapsed.
	FindRetentionExpired(now time.Time) ([]*Activity, error)
	// FindRelated returns activities near the given one in time (and the
	// same area when the reference has one), excluding the reference.
	FindRelated(id domain.EntityID, window time.Duration) ([]*Activity, error)
}
