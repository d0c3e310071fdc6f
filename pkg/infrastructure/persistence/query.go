package persistence

import (
	"sort"
	"strings"
	"time"

	"github.com/argusops/argus/pkg/domain/activity"
	"github.com/argusops/argus/pkg/domain/incident"
)

// Shared in-memory query evaluation, used by both the memory and the
// SQLite repositories (the latter narrows the candidate set with indexed
// columns first, then applies the same semantics).

// filterActivities returns all activities matching the structured filter
// plus the free-text constraint.
func filterActivities(all []*activity.Activity, q activity.Query) []*activity.Activity {
	var matched []*activity.Activity
	for _, a := range all {
		if !q.Matches(a) {
			continue
		}
		if q.Text != "" && !textMatches(a, q.Text) {
			continue
		}
		matched = append(matched, a)
	}
	return matched
}

func textMatches(a *activity.Activity, text string) bool {
	needle := strings.ToLower(text)
	if strings.Contains(strings.ToLower(a.Title), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(a.Description), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(a.Location.Name), needle) {
		return true
	}
	for _, tag := range a.UserTags {
		if strings.Contains(strings.ToLower(string(tag)), needle) {
			return true
		}
	}
	return false
}

// searchActivities applies filter, sort, and pagination.
func searchActivities(all []*activity.Activity, q activity.Query) []*activity.Activity {
	matched := filterActivities(all, q)
	sortActivities(matched, q.SortField, q.SortOrder)
	return pageActivities(matched, q.Limit, q.Offset)
}

// totalActivities returns the unpaginated match count.
func totalActivities(all []*activity.Activity, q activity.Query) int {
	return len(filterActivities(all, q))
}

func sortActivities(items []*activity.Activity, field string, order activity.SortOrder) {
	if field == "" {
		field = "created_at"
	}
	desc := order != activity.SortAsc

	sort.SliceStable(items, func(a, b int) bool {
		var less bool
		switch field {
		case "updated_at":
			less = items[a].UpdatedAt.Before(items[b].UpdatedAt.Time)
		case "priority":
			less = items[a].Priority.Rank() < items[b].Priority.Rank()
		case "title":
			less = items[a].Title < items[b].Title
		default:
			less = items[a].CreatedAt.Before(items[b].CreatedAt.Time)
		}
		if desc {
			return !less
		}
		return less
	})
}

func pageActivities(items []*activity.Activity, limit, offset int) []*activity.Activity {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// computeStats builds the aggregate statistics over an already-filtered set.
func computeStats(items []*activity.Activity) *activity.Stats {
	stats := &activity.Stats{
		Total:      len(items),
		ByPriority: make(map[string]int),
		ByStatus:   make(map[string]int),
		ByType:     make(map[string]int),
	}

	var confidenceSum float64
	var confidenceCount int
	var responseTimes []time.Duration

	for _, a := range items {
		stats.ByPriority[string(a.Priority)]++
		stats.ByStatus[string(a.Status)]++
		stats.ByType[string(a.Type)]++

		if a.Confidence > 0 {
			confidenceSum += a.NormalizedConfidence()
			confidenceCount++
		}
		if a.Status == activity.StatusResolved {
			responseTimes = append(responseTimes, a.UpdatedAt.Sub(a.CreatedAt.Time))
		}
	}

	if confidenceCount > 0 {
		stats.AvgConfidence = confidenceSum / float64(confidenceCount)
	}
	if len(responseTimes) > 0 {
		sort.Slice(responseTimes, func(i, j int) bool { return responseTimes[i] < responseTimes[j] })
		stats.ResponseP50 = percentile(responseTimes, 50)
		stats.ResponseP90 = percentile(responseTimes, 90)
		stats.ResponseP99 = percentile(responseTimes, 99)
	}
	return stats
}

// percentile returns the nearest-rank percentile of a sorted slice.
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// requiringAttention selects unresolved critical/high items and anything
// escalated, newest first.
func requiringAttention(all []*activity.Activity) []*activity.Activity {
	var result []*activity.Activity
	for _, a := range all {
		if a.Archived || a.Status.Terminal() {
			continue
		}
		if a.Priority.Rank() >= 2 || a.EscalationLevel > 0 {
			result = append(result, a)
		}
	}
	sortActivities(result, "created_at", activity.SortDesc)
	return result
}

// overdueActivities selects unresolved items past their SLA threshold.
func overdueActivities(all []*activity.Activity, now time.Time) []*activity.Activity {
	var result []*activity.Activity
	for _, a := range all {
		if a.Overdue(now) {
			result = append(result, a)
		}
	}
	sortActivities(result, "created_at", activity.SortAsc)
	return result
}

// retentionExpiredActivities selects unarchived activities whose retention
// window has lapsed, oldest first so the sweep archives in age order.
func retentionExpiredActivities(all []*activity.Activity, now time.Time) []*activity.Activity {
	var result []*activity.Activity
	for _, a := range all {
		if a.RetentionExpired(now) {
			result = append(result, a)
		}
	}
	sortActivities(result, "created_at", activity.SortAsc)
	return result
}

// relatedActivities selects activities within the time window around the
// reference, constrained to the same area when the reference has one.
// The reference itself is excluded.
func relatedActivities(all []*activity.Activity, ref *activity.Activity, window time.Duration) []*activity.Activity {
	var result []*activity.Activity
	for _, a := range all {
		if a.ID() == ref.ID() || a.Archived {
			continue
		}
		gap := a.CreatedAt.Sub(ref.CreatedAt.Time)
		if gap < 0 {
			gap = -gap
		}
		if gap > window {
			continue
		}
		if ref.Location.Building != "" && !ref.Location.SameArea(a.Location) {
			continue
		}
		result = append(result, a)
	}
	sortActivities(result, "created_at", activity.SortAsc)
	return result
}

// ---------------------------------------------------------------------------
// Incident helpers
// ---------------------------------------------------------------------------

func filterIncidents(all []*incident.Incident, q incident.Query) []*incident.Incident {
	var matched []*incident.Incident
	for _, i := range all {
		if q.Matches(i) {
			matched = append(matched, i)
		}
	}
	sort.SliceStable(matched, func(a, b int) bool {
		return matched[a].CreatedAt.After(matched[b].CreatedAt.Time)
	})
	return matched
}

func pageIncidents(items []*incident.Incident, limit, offset int) []*incident.Incident {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
