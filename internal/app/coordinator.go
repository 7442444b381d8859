package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hostedraids/muster/internal/domain"
)

// SignupCoordinator is the single authority for mutating an event's roster
// and deriving what the roster display should say. Every operation runs
// inside the event's critical section and re-reads counts from the store,
// so capacity checks and evictions never act on stale state.
//
// The coordinator returns render instructions; applying them to the display
// surface and dispatching notifications is the caller's job.
type SignupCoordinator struct {
	store domain.EventStore
	locks *LockTable
}

// NewSignupCoordinator creates a coordinator over the given store. The lock
// table must be shared with every other component that mutates rosters.
func NewSignupCoordinator(store domain.EventStore, locks *LockTable) *SignupCoordinator {
	return &SignupCoordinator{store: store, locks: locks}
}

// JoinRole signs a player up for one role on an event. It rejects with
// AlreadySignedUpError when the signup exists and CapacityError when the
// role is full, creating no row in either case.
func (c *SignupCoordinator) JoinRole(ctx context.Context, eventID, playerID, playerName string, role domain.RoleKind) (domain.RenderInstruction, error) {
	if !role.Valid() {
		return domain.RenderInstruction{}, &domain.InvalidRoleError{Role: string(role)}
	}

	release := c.locks.Acquire(eventID)
	defer release()

	event, err := c.store.GetEvent(ctx, eventID)
	if err != nil {
		return domain.RenderInstruction{}, err
	}

	signups, err := c.store.ListSignups(ctx, eventID, &role)
	if err != nil {
		return domain.RenderInstruction{}, fmt.Errorf("reading %s signups: %w", role, err)
	}

	for _, s := range signups {
		if s.PlayerID == playerID {
			return domain.RenderInstruction{}, &domain.AlreadySignedUpError{PlayerID: playerID, Role: role}
		}
	}

	limit := event.Limits.For(role)
	if limit != nil && len(signups) >= *limit {
		return domain.RenderInstruction{}, &domain.CapacityError{Role: role, Limit: *limit}
	}

	signup := domain.Signup{
		EventID:    eventID,
		PlayerID:   playerID,
		PlayerName: playerName,
		Role:       role,
		SignedUpAt: time.Now().UTC(),
	}
	if err := c.store.InsertSignup(ctx, signup); err != nil {
		return domain.RenderInstruction{}, fmt.Errorf("inserting signup: %w", err)
	}

	slog.InfoContext(ctx, "player signed up",
		"event_id", eventID,
		"player_id", playerID,
		"role", role,
	)

	return c.renderRole(ctx, event, role)
}

// WithdrawRole removes a player's signup for one role. Withdrawing a signup
// that does not exist is a no-op, not an error; the returned instruction
// reflects the unchanged roster in that case.
func (c *SignupCoordinator) WithdrawRole(ctx context.Context, eventID, playerID string, role domain.RoleKind) (domain.RenderInstruction, error) {
	if !role.Valid() {
		return domain.RenderInstruction{}, &domain.InvalidRoleError{Role: string(role)}
	}

	release := c.locks.Acquire(eventID)
	defer release()

	event, err := c.store.GetEvent(ctx, eventID)
	if err != nil {
		return domain.RenderInstruction{}, err
	}

	if _, err := c.store.DeleteSignups(ctx, eventID, playerID, &role); err != nil {
		return domain.RenderInstruction{}, fmt.Errorf("deleting signup: %w", err)
	}

	return c.renderRole(ctx, event, role)
}

// WithdrawAll removes every signup a player holds on an event and returns
// one instruction per role that changed.
func (c *SignupCoordinator) WithdrawAll(ctx context.Context, eventID, playerID string) ([]domain.RenderInstruction, error) {
	release := c.locks.Acquire(eventID)
	defer release()

	return c.removeAllRoles(ctx, eventID, playerID)
}

// ForceRemove withdraws another player on the host's behalf. Authorization
// is the caller's responsibility; actorID is recorded only for attribution.
// A nil role withdraws the player from every role.
func (c *SignupCoordinator) ForceRemove(ctx context.Context, eventID, actorID, playerID string, role *domain.RoleKind) ([]domain.RenderInstruction, error) {
	release := c.locks.Acquire(eventID)
	defer release()

	slog.InfoContext(ctx, "signup forcibly removed",
		"event_id", eventID,
		"actor_id", actorID,
		"player_id", playerID,
	)

	if role == nil {
		return c.removeAllRoles(ctx, eventID, playerID)
	}

	event, err := c.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if _, err := c.store.DeleteSignups(ctx, eventID, playerID, role); err != nil {
		return nil, fmt.Errorf("deleting signup: %w", err)
	}
	ins, err := c.renderRole(ctx, event, *role)
	if err != nil {
		return nil, err
	}
	return []domain.RenderInstruction{ins}, nil
}

// SetRoleLimits persists new signup limits on the event and evicts the most
// recently created signups for any role whose count now exceeds its limit.
// It returns the evicted signups, newest first, so the caller can notify the
// affected players, plus render instructions for every role field.
func (c *SignupCoordinator) SetRoleLimits(ctx context.Context, eventID string, limits domain.RoleLimits) ([]domain.Signup, []domain.RenderInstruction, error) {
	// Validate before any mutation.
	for _, role := range domain.Roles {
		if l := limits.For(role); l != nil && *l < 0 {
			return nil, nil, &domain.InvalidLimitError{Role: role, Limit: *l}
		}
	}

	release := c.locks.Acquire(eventID)
	defer release()

	event, err := c.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}

	var evicted []domain.Signup
	for _, role := range domain.Roles {
		limit := limits.For(role)
		if limit == nil {
			continue
		}

		signups, err := c.store.ListSignups(ctx, eventID, &role)
		if err != nil {
			return nil, nil, fmt.Errorf("reading %s signups: %w", role, err)
		}
		if excess := len(signups) - *limit; excess > 0 {
			removed, err := c.store.DeleteMostRecentSignups(ctx, eventID, role, excess)
			if err != nil {
				return nil, nil, fmt.Errorf("evicting %s signups: %w", role, err)
			}
			evicted = append(evicted, removed...)
		}
	}

	event.Limits = limits
	if err := c.store.UpdateEvent(ctx, event); err != nil {
		return nil, nil, fmt.Errorf("persisting limits: %w", err)
	}

	instructions := make([]domain.RenderInstruction, 0, len(domain.Roles))
	for _, role := range domain.Roles {
		ins, err := c.renderRole(ctx, event, role)
		if err != nil {
			return nil, nil, err
		}
		instructions = append(instructions, ins)
	}

	if len(evicted) > 0 {
		slog.InfoContext(ctx, "signups evicted by limit change",
			"event_id", eventID,
			"evicted", len(evicted),
		)
	}

	return evicted, instructions, nil
}

// Roster recomputes the full set of render instructions from persisted
// state. Callers use it to self-heal a display that diverged after a
// failed edit.
func (c *SignupCoordinator) Roster(ctx context.Context, eventID string) ([]domain.RenderInstruction, error) {
	release := c.locks.Acquire(eventID)
	defer release()

	event, err := c.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	instructions := make([]domain.RenderInstruction, 0, len(domain.Roles))
	for _, role := range domain.Roles {
		ins, err := c.renderRole(ctx, event, role)
		if err != nil {
			return nil, err
		}
		instructions = append(instructions, ins)
	}
	return instructions, nil
}

// removeAllRoles deletes a player's signups across roles and renders each
// role that actually changed. Caller must hold the event lock.
func (c *SignupCoordinator) removeAllRoles(ctx context.Context, eventID, playerID string) ([]domain.RenderInstruction, error) {
	event, err := c.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	var instructions []domain.RenderInstruction
	for _, role := range domain.Roles {
		n, err := c.store.DeleteSignups(ctx, eventID, playerID, &role)
		if err != nil {
			return nil, fmt.Errorf("deleting %s signup: %w", role, err)
		}
		if n == 0 {
			continue
		}
		ins, err := c.renderRole(ctx, event, role)
		if err != nil {
			return nil, err
		}
		instructions = append(instructions, ins)
	}
	return instructions, nil
}

// renderRole rebuilds one role field from current store state. Caller must
// hold the event lock so the instruction matches what was just persisted.
func (c *SignupCoordinator) renderRole(ctx context.Context, event domain.Event, role domain.RoleKind) (domain.RenderInstruction, error) {
	signups, err := c.store.ListSignups(ctx, event.ID, &role)
	if err != nil {
		return domain.RenderInstruction{}, fmt.Errorf("rendering %s field: %w", role, err)
	}
	return domain.NewRenderInstruction(event.ID, role, event.Limits.For(role), signups), nil
}
