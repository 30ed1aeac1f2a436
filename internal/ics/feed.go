package ics

import (
	"bytes"
	"fmt"
	"time"

	"github.com/emersion/go-ical"

	"github.com/caseflowhq/caseflow/internal/db"
)

const productID = "-//CaseFlow//Calendar Feed//EN"

// Feed renders local calendar events as an iCalendar document so
// external calendar applications can subscribe to the firm's schedule.
func Feed(events []*db.CalendarEvent) ([]byte, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Props.SetText(ical.PropVersion, "2.0")

	now := time.Now().UTC()
	for _, event := range events {
		cal.Children = append(cal.Children, toComponent(event, now))
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("failed to encode calendar feed: %w", err)
	}

	return buf.Bytes(), nil
}

func toComponent(event *db.CalendarEvent, stamp time.Time) *ical.Component {
	item := ical.NewEvent()
	item.Props.SetText(ical.PropUID, event.ID+"@caseflow")
	item.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
	item.Props.SetText(ical.PropSummary, event.Title)
	item.Props.SetDateTime(ical.PropDateTimeStart, event.StartsAt.UTC())
	item.Props.SetDateTime(ical.PropDateTimeEnd, event.EndsAt.UTC())

	if event.Description != "" {
		item.Props.SetText(ical.PropDescription, event.Description)
	}
	if event.Location != "" {
		item.Props.SetText(ical.PropLocation, event.Location)
	}

	return item.Component
}
