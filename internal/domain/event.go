package domain

import "time"

// RoleKind is a capacity-limited signup category within an event.
type RoleKind string

const (
	RoleDPS     RoleKind = "DPS"
	RoleSupport RoleKind = "Support"
)

// Roles lists all signup roles in display order.
var Roles = []RoleKind{RoleDPS, RoleSupport}

// Valid reports whether r is a known role.
func (r RoleKind) Valid() bool {
	return r == RoleDPS || r == RoleSupport
}

// Emoji returns the emoji shown next to the role in the roster display.
func (r RoleKind) Emoji() string {
	switch r {
	case RoleDPS:
		return "⚔️"
	case RoleSupport:
		return "\U0001fa79"
	}
	return ""
}

// RetirementState tracks whether an event is subject to, currently
// undergoing, or exempted from automatic post-event cleanup.
type RetirementState string

const (
	StateActive              RetirementState = "active"
	StatePendingConfirmation RetirementState = "pending_confirmation"
	StateRetained            RetirementState = "retained"
	StateTerminated          RetirementState = "terminated"
)

// Trigger represents an action that moves an event between retirement states.
type Trigger string

const (
	// TriggerPrompt fires when the hourly sweep finds an event that started
	// long enough ago to ask the host whether it is over.
	TriggerPrompt Trigger = "prompt"
	// TriggerRetain fires when the host answers that the event should be kept.
	TriggerRetain Trigger = "retain"
	// TriggerTerminate fires on host end/cancel, host confirmation, or
	// confirmation timeout.
	TriggerTerminate Trigger = "terminate"
)

// Transition defines a valid state change: a trigger moves an event from Src to Dst.
type Transition struct {
	Trigger Trigger
	Src     RetirementState
	Dst     RetirementState
}

// Transitions defines all valid retirement state changes.
// This is domain knowledge consumed by the FSM adapter.
var Transitions = []Transition{
	{Trigger: TriggerPrompt, Src: StateActive, Dst: StatePendingConfirmation},
	{Trigger: TriggerRetain, Src: StatePendingConfirmation, Dst: StateRetained},
	{Trigger: TriggerTerminate, Src: StateActive, Dst: StateTerminated},
	{Trigger: TriggerTerminate, Src: StatePendingConfirmation, Dst: StateTerminated},
	{Trigger: TriggerTerminate, Src: StateRetained, Dst: StateTerminated},
}

// MaxTitleLength is the maximum event title length in code points.
const MaxTitleLength = 256

// RoleLimits holds the optional per-role signup caps for an event.
// A nil entry means the role is unlimited.
type RoleLimits struct {
	DPS     *int
	Support *int
}

// For returns the limit for the given role, or nil when unlimited.
func (l RoleLimits) For(role RoleKind) *int {
	switch role {
	case RoleDPS:
		return l.DPS
	case RoleSupport:
		return l.Support
	}
	return nil
}

// Set replaces the limit for the given role.
func (l *RoleLimits) Set(role RoleKind, limit *int) {
	switch role {
	case RoleDPS:
		l.DPS = limit
	case RoleSupport:
		l.Support = limit
	}
}

// Event is the core domain entity: a scheduled group activity that players
// sign up for. Its ID doubles as the key of the roster display entry.
type Event struct {
	ID              string
	GuildID         string
	HostID          string
	HostName        string
	Title           string
	StartTime       time.Time
	Limits          RoleLimits
	Retirement      RetirementState
	ConfirmDeadline *time.Time
	CalendarRef     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewEvent creates an event in the initial "active" retirement state.
func NewEvent(id, guildID, hostID, hostName, title string, startTime time.Time) Event {
	now := time.Now().UTC()
	return Event{
		ID:         id,
		GuildID:    guildID,
		HostID:     hostID,
		HostName:   hostName,
		Title:      title,
		StartTime:  startTime.UTC(),
		Retirement: StateActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Signup is one player's registration for one role on one event.
// A player may hold at most one signup per role, but may hold signups
// for several roles at once.
type Signup struct {
	EventID    string
	PlayerID   string
	PlayerName string
	Role       RoleKind
	SignedUpAt time.Time
}
