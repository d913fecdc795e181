package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// TimeWindow bounds a retrieval filter to memories created within [From, To)
type TimeWindow struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// NewTimeWindow resolves a keyword ("today", "yesterday", "this_week",
// "recent") into a concrete window relative to now.
func NewTimeWindow(keyword string, now time.Time) (TimeWindow, error) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch keyword {
	case "today":
		return TimeWindow{From: midnight, To: midnight.AddDate(0, 0, 1)}, nil
	case "yesterday":
		return TimeWindow{From: midnight.AddDate(0, 0, -1), To: midnight}, nil
	case "this_week":
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7 // treat Sunday as the last day of the week
		}
		monday := midnight.AddDate(0, 0, -(weekday - 1))
		return TimeWindow{From: monday, To: monday.AddDate(0, 0, 7)}, nil
	case "recent":
		return TimeWindow{From: now.Add(-72 * time.Hour), To: now.Add(time.Second)}, nil
	default:
		return TimeWindow{}, goerr.New("unknown time window keyword", goerr.V("keyword", keyword))
	}
}
