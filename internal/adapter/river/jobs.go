package river

import "time"

// SweepArgs is the periodic job that scans for events whose start time has
// passed the retirement threshold. It carries no payload; the sweep reads
// its working set from the store.
type SweepArgs struct{}

// Kind returns the unique job type identifier used by River's job routing.
func (SweepArgs) Kind() string { return "event.sweep" }

// ConfirmTimeoutArgs fires when an event's confirmation window closes. The
// worker re-reads the event, so a stale job after a host response is a no-op.
type ConfirmTimeoutArgs struct {
	EventID string `json:"event_id"`
}

func (ConfirmTimeoutArgs) Kind() string { return "event.confirm_timeout" }

// NotificationArgs carries one direct message to one player. Messages are
// delivered asynchronously so a slow recipient never blocks the mutation
// that produced them.
type NotificationArgs struct {
	PlayerID string `json:"player_id"`
	Message  string `json:"message"`
}

func (NotificationArgs) Kind() string { return "notification.send" }

// hourSchedule fires sweeps at the top of every hour, wall-clock aligned,
// rather than at a fixed interval from process start.
type hourSchedule struct{}

func (hourSchedule) Next(t time.Time) time.Time {
	return t.Truncate(time.Hour).Add(time.Hour)
}
