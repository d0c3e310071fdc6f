package domain

// ---------------------------------------------------------------------------
// Shared value objects — used across bounded contexts
// ---------------------------------------------------------------------------

// Priority classifies the severity of activities and incidents.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// AllPriorities returns all known priorities in ascending severity order.
func AllPriorities() []Priority {
	return []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}
}

// String implements fmt.Stringer.
func (p Priority) String() string { return string(p) }

// Valid returns true if the priority is recognized.
func (p Priority) Valid() bool {
	for _, pp := range AllPriorities() {
		if pp == p {
			return true
		}
	}
	return false
}

// Rank returns the ordinal severity rank (low=0 .. critical=3).
// Unknown priorities rank below low.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityMedium:
		return 1
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	default:
		return -1
	}
}

// AtLeast reports whether p is at least as severe as other.
func (p Priority) AtLeast(other Priority) bool {
	return p.Rank() >= other.Rank()
}

// ---------------------------------------------------------------------------

// Source indicates how an activity entered the system.
type Source string

const (
	SourceManual    Source = "manual"
	SourceAutomated Source = "automated"
	SourceExternal  Source = "external"
)

func (s Source) String() string { return string(s) }

// ---------------------------------------------------------------------------

// Tag is a string label for categorization.
type Tag string

// Tags is an ordered set of tags.
type Tags []Tag

// Contains returns true if the tag set includes the given tag.
func (t Tags) Contains(tag Tag) bool {
	for _, tt := range t {
		if tt == tag {
			return true
		}
	}
	return false
}

// Add appends a tag if not already present, returning the (possibly new) set.
func (t Tags) Add(tag Tag) Tags {
	if t.Contains(tag) {
		return t
	}
	return append(t, tag)
}

// Strings returns the tags as a string slice.
func (t Tags) Strings() []string {
	out := make([]string, len(t))
	for i, tt := range t {
		out[i] = string(tt)
	}
	return out
}

// ---------------------------------------------------------------------------

// Location is a human-readable place plus optional structured refinement.
type Location struct {
	Name     string `json:"name"`
	Building string `json:"building,omitempty"`
	Zone     string `json:"zone,omitempty"`
}

// SameArea reports whether two locations share a building and, when both
// carry a zone, the same zone.
func (l Location) SameArea(other Location) bool {
	if l.Building == "" || l.Building != other.Building {
		return false
	}
	if l.Zone != "" && other.Zone != "" && l.Zone != other.Zone {
		return false
	}
	return true
}
