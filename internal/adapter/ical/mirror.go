package ical

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/emersion/go-ical"

	"github.com/hostedraids/muster/internal/domain"
)

// Events without an explicit end get a nominal one-hour block.
const defaultDuration = time.Hour

var _ domain.CalendarMirror = (*Mirror)(nil)

// Mirror maintains one .ics file per event in a directory served to
// calendar subscribers. The files are a convenience view; the event store
// stays authoritative and a failed write never blocks a mutation.
type Mirror struct {
	dir string
}

// NewMirror creates a mirror rooted at dir, creating it if needed.
func NewMirror(dir string) (*Mirror, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating calendar directory: %w", err)
	}
	return &Mirror{dir: dir}, nil
}

// Upsert writes the event's calendar entry and returns its handle, the
// file name relative to the mirror directory.
func (m *Mirror) Upsert(ctx context.Context, event domain.Event) (string, error) {
	entry := ical.NewEvent()
	entry.Props.SetText(ical.PropUID, event.ID)
	entry.Props.SetText(ical.PropSummary, event.Title)
	entry.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	entry.Props.SetDateTime(ical.PropDateTimeStart, event.StartTime.UTC())
	entry.Props.SetDateTime(ical.PropDateTimeEnd, event.StartTime.UTC().Add(defaultDuration))
	entry.Props.SetText(ical.PropDescription, fmt.Sprintf("Hosted by %s", event.HostName))

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//hostedraids//muster//EN")
	cal.Children = append(cal.Children, entry.Component)

	name := event.ID + ".ics"
	path := filepath.Join(m.dir, name)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating calendar file: %w", err)
	}

	if err := ical.NewEncoder(file).Encode(cal); err != nil {
		file.Close()
		return "", fmt.Errorf("encoding calendar entry: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("closing calendar file: %w", err)
	}

	return name, nil
}

// Retire removes the event's calendar entry. A missing file is not an
// error; the entry may never have been mirrored.
func (m *Mirror) Retire(ctx context.Context, event domain.Event) error {
	if event.CalendarRef == "" {
		return nil
	}

	err := os.Remove(filepath.Join(m.dir, event.CalendarRef))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing calendar file: %w", err)
	}
	return nil
}
