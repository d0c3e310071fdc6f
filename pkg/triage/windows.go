// Package triage holds the read-side use cases operators reach for
// first: symbolic time windows, response-deadline checks, noise
// suppression and proximity clustering. Nothing here mutates state.
package triage

import (
	"time"

	"github.com/argusops/argus/pkg/domain/activity"
)

// Window is a symbolic time range relative to now.
type Window string

const (
	WindowLive      Window = "live"
	Window15Minutes Window = "15m"
	WindowHour      Window = "1h"
	Window4Hours    Window = "4h"
	WindowDay       Window = "24h"
	WindowWeek      Window = "week"
	WindowMonth     Window = "month"
)

var windowDurations = map[Window]time.Duration{
	WindowLive:      5 * time.Minute,
	Window15Minutes: 15 * time.Minute,
	WindowHour:      time.Hour,
	Window4Hours:    4 * time.Hour,
	WindowDay:       24 * time.Hour,
	WindowWeek:      7 * 24 * time.Hour,
	WindowMonth:     30 * 24 * time.Hour,
}

// Duration returns the window's span. Unknown windows return false.
func (w Window) Duration() (time.Duration, bool) {
	d, ok := windowDurations[w]
	return d, ok
}

// Apply anchors the window to now and sets the query's time range.
// Unknown windows leave the query untouched.
func (w Window) Apply(q activity.Query, now time.Time) (activity.Query, bool) {
	d, ok := windowDurations[w]
	if !ok {
		return q, false
	}
	q.From = now.Add(-d)
	q.To = now
	return q, true
}

// Overdue returns the subset of activities past their response deadline.
func Overdue(items []*activity.Activity, now time.Time) []*activity.Activity {
	var out []*activity.Activity
	for _, a := range items {
		if a.Overdue(now) {
			out = append(out, a)
		}
	}
	return out
}
