// Package activity turns OS input idleness and project file edits into
// tracker activity signals.
package activity

import "time"

// Sink receives activity signals. *tracker.Tracker implements it.
type Sink interface {
	OnActivity(now time.Time)
	OnEditableDocumentChanged(now time.Time, focused bool)
}
