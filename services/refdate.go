package services

import (
	"time"

	"artpriyo-settlement/models"

	"github.com/jonboulle/clockwork"
)

// ReferenceClock reads "today" as a calendar date in one fixed offset.
type ReferenceClock struct {
	Clock clockwork.Clock
	Zone  *time.Location
}

func NewReferenceClock(clock clockwork.Clock, zone *time.Location) *ReferenceClock {
	if zone == nil {
		zone = time.UTC
	}
	return &ReferenceClock{Clock: clock, Zone: zone}
}

// Today is the current date in Zone, at midnight UTC so it compares against
// stored dates directly.
func (r *ReferenceClock) Today() time.Time {
	return civil(r.Clock.Now().In(r.Zone))
}

func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Window is where today falls against an event's date range.
type Window int

const (
	WindowBefore Window = iota // today < start
	WindowOpen                 // start <= today <= end
	WindowAfter                // today > end
)

func (r *ReferenceClock) Window(ev *models.Event) Window {
	return windowOf(r.Today(), ev)
}

func windowOf(today time.Time, ev *models.Event) Window {
	start := civil(time.Time(ev.StartDate))
	end := civil(time.Time(ev.EndDate))
	switch {
	case today.After(end):
		return WindowAfter
	case today.Before(start):
		return WindowBefore
	default:
		return WindowOpen
	}
}
