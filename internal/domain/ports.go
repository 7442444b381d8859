package domain

import (
	"context"
	"time"
)

// EventStore defines the persistence contract for events and signups.
// It is the sole owner of durable roster state: callers re-read counts
// through it on every operation instead of caching rosters in memory.
type EventStore interface {
	CreateEvent(ctx context.Context, event Event) error
	GetEvent(ctx context.Context, id string) (Event, error)
	UpdateEvent(ctx context.Context, event Event) error
	DeleteEvent(ctx context.Context, id string) error
	ListEvents(ctx context.Context, filter ListFilter) ([]Event, error)

	InsertSignup(ctx context.Context, signup Signup) error
	// ListSignups returns signups in insertion order. A nil role returns
	// signups for all roles.
	ListSignups(ctx context.Context, eventID string, role *RoleKind) ([]Signup, error)
	// DeleteSignups removes a player's signups, scoped to one role when role
	// is non-nil, and reports how many rows were removed.
	DeleteSignups(ctx context.Context, eventID, playerID string, role *RoleKind) (int64, error)
	// DeleteMostRecentSignups removes the n newest signups for a role and
	// returns the removed rows, newest first.
	DeleteMostRecentSignups(ctx context.Context, eventID string, role RoleKind, n int) ([]Signup, error)
	DistinctSignupPlayers(ctx context.Context, eventID string) ([]string, error)
	// ListPlayerEvents returns the events within a guild that the player
	// holds at least one signup for, ordered by start time.
	ListPlayerEvents(ctx context.Context, guildID, playerID string) ([]Event, error)
}

// ListFilter holds optional criteria for listing events.
type ListFilter struct {
	GuildID    string
	Retirement *RetirementState
}

// DisplaySurface is the remotely rendered roster view tied 1:1 to an event.
// Edits are not atomic across concurrent callers; the per-event lock in the
// application layer serializes them.
type DisplaySurface interface {
	Apply(ctx context.Context, instruction RenderInstruction) error
	Render(ctx context.Context, eventID string) ([]RenderInstruction, error)
	Delete(ctx context.Context, eventID string) error
}

// Notifier delivers best-effort direct messages to players. Failures are
// non-fatal and never roll back the mutation that triggered them.
type Notifier interface {
	Notify(ctx context.Context, playerID, message string) error
}

// CalendarMirror maintains a best-effort copy of an event in an external
// calendar. The mirror is never authoritative.
type CalendarMirror interface {
	// Upsert creates or updates the calendar entry and returns its handle.
	Upsert(ctx context.Context, event Event) (string, error)
	Retire(ctx context.Context, event Event) error
}

// TransitionValidator checks whether a trigger is allowed from the current
// retirement state and returns the destination state.
type TransitionValidator interface {
	Apply(ctx context.Context, current RetirementState, trigger Trigger) (RetirementState, error)
}

// ChannelConfig looks up and stores the per-guild events channel.
type ChannelConfig interface {
	EventsChannel(ctx context.Context, guildID string) (string, error)
	SetEventsChannel(ctx context.Context, guildID, channelID string) error
}

// ConfirmationScheduler arranges for the confirmation timeout of an event in
// PendingConfirmation to fire at the stored deadline. Scheduling must
// survive process restarts.
type ConfirmationScheduler interface {
	ScheduleTimeout(ctx context.Context, eventID string, at time.Time) error
}
