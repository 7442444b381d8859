package domain

import (
	"fmt"
	"strings"
)

// EmptyFieldBody is the zero-width space shown when a role has no signups.
// The display surface rejects empty field bodies, so an invisible
// placeholder keeps the field present.
const EmptyFieldBody = "​"

// RenderInstruction describes how one role field of an event's roster
// display should be updated to match persisted signup state.
type RenderInstruction struct {
	EventID string
	Role    RoleKind
	Label   string
	Body    string
}

// NewRenderInstruction builds the display update for one role field from the
// current signups, which must already be in insertion order. The label shows
// the count, and the cap when the role is limited.
func NewRenderInstruction(eventID string, role RoleKind, limit *int, signups []Signup) RenderInstruction {
	var label string
	if limit != nil {
		label = fmt.Sprintf("%s %s - (%d/%d)", role, role.Emoji(), len(signups), *limit)
	} else {
		label = fmt.Sprintf("%s %s - (%d)", role, role.Emoji(), len(signups))
	}

	body := EmptyFieldBody
	if len(signups) > 0 {
		lines := make([]string, len(signups))
		for i, s := range signups {
			lines[i] = Mention(s.PlayerID)
		}
		body = strings.Join(lines, "\n")
	}

	return RenderInstruction{
		EventID: eventID,
		Role:    role,
		Label:   label,
		Body:    body,
	}
}

// Mention formats a player reference the way the display surface renders it.
func Mention(playerID string) string {
	return fmt.Sprintf("<@%s>", playerID)
}
