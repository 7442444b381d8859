package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrEventNotFound = errors.New("event not found")
	ErrChannelNotSet = errors.New("events channel not configured for guild")
)

// AlreadySignedUpError is returned when a player joins a role they already hold.
type AlreadySignedUpError struct {
	PlayerID string
	Role     RoleKind
}

func (e *AlreadySignedUpError) Error() string {
	return fmt.Sprintf("player %s is already signed up as %s", e.PlayerID, e.Role)
}

// CapacityError is returned when a join would exceed the role's signup limit.
type CapacityError struct {
	Role  RoleKind
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("signups for %s are limited to %d", e.Role, e.Limit)
}

// NotHostError is returned when a host-restricted operation is attempted by
// someone other than the event's host.
type NotHostError struct {
	ActorID string
	EventID string
}

func (e *NotHostError) Error() string {
	return fmt.Sprintf("user %s is not the host of event %s", e.ActorID, e.EventID)
}

// InvalidLimitError is returned when a signup limit is negative.
type InvalidLimitError struct {
	Role  RoleKind
	Limit int
}

func (e *InvalidLimitError) Error() string {
	return fmt.Sprintf("invalid %s limit %d: must be zero or greater", e.Role, e.Limit)
}

// InvalidRoleError is returned when a role name is not recognized.
type InvalidRoleError struct {
	Role string
}

func (e *InvalidRoleError) Error() string {
	return fmt.Sprintf("unknown role %q", e.Role)
}

// TitleLengthError is returned when an event title exceeds MaxTitleLength.
type TitleLengthError struct {
	Length int
}

func (e *TitleLengthError) Error() string {
	return fmt.Sprintf("title is %d characters, maximum is %d", e.Length, MaxTitleLength)
}

// TransitionError is returned when a retirement state change is not allowed.
type TransitionError struct {
	Trigger Trigger
	Current RetirementState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("trigger %q is not valid from state %q", e.Trigger, e.Current)
}
