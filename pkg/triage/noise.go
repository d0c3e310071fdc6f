package triage

import (
	"github.com/argusops/argus/pkg/domain"
	"github.com/argusops/argus/pkg/domain/activity"
)

// Noise suppression thresholds. Applied as a post-filter over query
// results; suppressed items stay in storage and in unfiltered views.
const (
	falsePositiveCutoff = 0.8
	lowConfidenceFloor  = 0.30
	daytimeStartHour    = 6
	daytimeEndHour      = 22
)

// FalsePositiveLikelihood estimates how likely an automated detection is
// spurious, on [0,1]. Manual reports are trusted; automated ones start
// from their inverted confidence and move on operator tags.
func FalsePositiveLikelihood(a *activity.Activity) float64 {
	if a.Source != domain.SourceAutomated {
		return 0
	}
	score := 1 - a.NormalizedConfidence()
	if a.UserTags.Contains("false-positive") {
		score += 0.5
	}
	if a.UserTags.Contains("confirmed") {
		score -= 0.5
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Noisy reports whether an activity should be suppressed from a
// noise-filtered view:
//   - probable false positives (likelihood above 0.8)
//   - low-confidence detections below 30%, unless critical
//   - low-priority items reported outside 06:00-22:00 local time
//   - patrol activities tagged "repetitive"
func Noisy(a *activity.Activity) bool {
	if FalsePositiveLikelihood(a) > falsePositiveCutoff {
		return true
	}
	if a.Confidence > 0 && a.NormalizedConfidence() < lowConfidenceFloor && a.Priority != domain.PriorityCritical {
		return true
	}
	if a.Priority == domain.PriorityLow {
		hour := a.CreatedAt.Local().Hour()
		if hour < daytimeStartHour || hour >= daytimeEndHour {
			return true
		}
	}
	if a.Type == activity.TypePatrol && (a.UserTags.Contains("repetitive") || a.SystemTags.Contains("repetitive")) {
		return true
	}
	return false
}

// FilterNoise drops noisy activities from a result set. The input slice
// is left untouched.
func FilterNoise(items []*activity.Activity) []*activity.Activity {
	out := make([]*activity.Activity, 0, len(items))
	for _, a := range items {
		if Noisy(a) {
			continue
		}
		out = append(out, a)
	}
	return out
}
