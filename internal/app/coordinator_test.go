package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hostedraids/muster/internal/app"
	"github.com/hostedraids/muster/internal/domain"
)

func newTestCoordinator(t *testing.T) (*app.SignupCoordinator, *mockStore) {
	t.Helper()
	store := newMockStore()
	return app.NewSignupCoordinator(store, app.NewLockTable()), store
}

func seedEvent(t *testing.T, store *mockStore, id string, limits domain.RoleLimits) domain.Event {
	t.Helper()
	event := domain.NewEvent(id, "g-1", "host-1", "Mira", "Valtan Hard", time.Now().Add(2*time.Hour))
	event.Limits = limits
	if err := store.CreateEvent(context.Background(), event); err != nil {
		t.Fatalf("seeding event: %v", err)
	}
	return event
}

func seedSignup(t *testing.T, store *mockStore, eventID, playerID string, role domain.RoleKind, at time.Time) {
	t.Helper()
	err := store.InsertSignup(context.Background(), domain.Signup{
		EventID:    eventID,
		PlayerID:   playerID,
		PlayerName: playerID,
		Role:       role,
		SignedUpAt: at,
	})
	if err != nil {
		t.Fatalf("seeding signup: %v", err)
	}
}

func TestJoinRole_FirstJoin(t *testing.T) {
	coord, store := newTestCoordinator(t)
	seedEvent(t, store, "e-1", domain.RoleLimits{})
	ctx := context.Background()

	ins, err := coord.JoinRole(ctx, "e-1", "alice", "Alice", domain.RoleDPS)
	if err != nil {
		t.Fatalf("JoinRole failed: %v", err)
	}

	if got := store.signupCount("e-1", domain.RoleDPS); got != 1 {
		t.Errorf("signup count = %d, want 1", got)
	}
	if want := "DPS ⚔️ - (1)"; ins.Label != want {
		t.Errorf("label = %q, want %q", ins.Label, want)
	}
	if want := "<@alice>"; ins.Body != want {
		t.Errorf("body = %q, want %q", ins.Body, want)
	}
}

func TestJoinRole_Idempotent(t *testing.T) {
	coord, store := newTestCoordinator(t)
	seedEvent(t, store, "e-1", domain.RoleLimits{})
	ctx := context.Background()

	if _, err := coord.JoinRole(ctx, "e-1", "alice", "Alice", domain.RoleDPS); err != nil {
		t.Fatalf("first JoinRole failed: %v", err)
	}

	_, err := coord.JoinRole(ctx, "e-1", "alice", "Alice", domain.RoleDPS)
	var dupErr *domain.AlreadySignedUpError
	if !errors.As(err, &dupErr) {
		t.Fatalf("expected AlreadySignedUpError, got %v", err)
	}

	if got := store.signupCount("e-1", domain.RoleDPS); got != 1 {
		t.Errorf("signup count = %d, want exactly 1", got)
	}
}

func TestJoinRole_BothRolesAllowed(t *testing.T) {
	coord, store := newTestCoordinator(t)
	seedEvent(t, store, "e-1", domain.RoleLimits{})
	ctx := context.Background()

	if _, err := coord.JoinRole(ctx, "e-1", "alice", "Alice", domain.RoleDPS); err != nil {
		t.Fatalf("DPS join failed: %v", err)
	}
	if _, err := coord.JoinRole(ctx, "e-1", "alice", "Alice", domain.RoleSupport); err != nil {
		t.Fatalf("Support join failed: %v", err)
	}

	if got := store.signupCount("e-1", domain.RoleSupport); got != 1 {
		t.Errorf("support count = %d, want 1", got)
	}
}

func TestJoinRole_CapacityExceeded(t *testing.T) {
	two := 2
	coord, store := newTestCoordinator(t)
	seedEvent(t, store, "e-1", domain.RoleLimits{DPS: &two})
	ctx := context.Background()

	for _, player := range []string{"a", "b"} {
		if _, err := coord.JoinRole(ctx, "e-1", player, player, domain.RoleDPS); err != nil {
			t.Fatalf("join %s failed: %v", player, err)
		}
	}

	_, err := coord.JoinRole(ctx, "e-1", "c", "c", domain.RoleDPS)
	var capErr *domain.CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected CapacityError, got %v", err)
	}
	if capErr.Limit != 2 {
		t.Errorf("limit = %d, want 2", capErr.Limit)
	}
	if got := store.signupCount("e-1", domain.RoleDPS); got != 2 {
		t.Errorf("signup count = %d, want 2", got)
	}
}

func TestJoinRole_UnknownEvent(t *testing.T) {
	coord, _ := newTestCoordinator(t)

	_, err := coord.JoinRole(context.Background(), "missing", "alice", "Alice", domain.RoleDPS)
	if !errors.Is(err, domain.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}

func TestJoinRole_UnknownRole(t *testing.T) {
	coord, store := newTestCoordinator(t)
	seedEvent(t, store, "e-1", domain.RoleLimits{})

	_, err := coord.JoinRole(context.Background(), "e-1", "alice", "Alice", domain.RoleKind("Healer"))
	var roleErr *domain.InvalidRoleError
	if !errors.As(err, &roleErr) {
		t.Fatalf("expected InvalidRoleError, got %v", err)
	}
}

func TestWithdrawRole_NoopWhenAbsent(t *testing.T) {
	coord, store := newTestCoordinator(t)
	seedEvent(t, store, "e-1", domain.RoleLimits{})
	seedSignup(t, store, "e-1", "bob", domain.RoleDPS, time.Now())

	ins, err := coord.WithdrawRole(context.Background(), "e-1", "alice", domain.RoleDPS)
	if err != nil {
		t.Fatalf("WithdrawRole should not error when absent: %v", err)
	}

	// Bob's signup is untouched and the roster reflects it.
	if want := "DPS ⚔️ - (1)"; ins.Label != want {
		t.Errorf("label = %q, want %q", ins.Label, want)
	}
}

func TestWithdrawRole_EmptyFieldPlaceholder(t *testing.T) {
	coord, store := newTestCoordinator(t)
	seedEvent(t, store, "e-1", domain.RoleLimits{})
	ctx := context.Background()

	if _, err := coord.JoinRole(ctx, "e-1", "alice", "Alice", domain.RoleDPS); err != nil {
		t.Fatalf("join failed: %v", err)
	}

	ins, err := coord.WithdrawRole(ctx, "e-1", "alice", domain.RoleDPS)
	if err != nil {
		t.Fatalf("WithdrawRole failed: %v", err)
	}
	if ins.Body != domain.EmptyFieldBody {
		t.Errorf("body = %q, want zero-width placeholder", ins.Body)
	}
}

func TestWithdrawAll_OnlyChangedRoles(t *testing.T) {
	coord, store := newTestCoordinator(t)
	seedEvent(t, store, "e-1", domain.RoleLimits{})
	seedSignup(t, store, "e-1", "alice", domain.RoleDPS, time.Now())

	instructions, err := coord.WithdrawAll(context.Background(), "e-1", "alice")
	if err != nil {
		t.Fatalf("WithdrawAll failed: %v", err)
	}

	// Alice only held DPS, so only the DPS field changes.
	if len(instructions) != 1 {
		t.Fatalf("got %d instructions, want 1", len(instructions))
	}
	if instructions[0].Role != domain.RoleDPS {
		t.Errorf("role = %q, want DPS", instructions[0].Role)
	}
}

func TestSetRoleLimits_EvictionDeterminism(t *testing.T) {
	coord, store := newTestCoordinator(t)
	seedEvent(t, store, "e-1", domain.RoleLimits{})

	base := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	for i, player := range []string{"p1", "p2", "p3", "p4"} {
		seedSignup(t, store, "e-1", player, domain.RoleDPS, base.Add(time.Duration(i)*time.Minute))
	}

	two := 2
	evicted, _, err := coord.SetRoleLimits(context.Background(), "e-1", domain.RoleLimits{DPS: &two})
	if err != nil {
		t.Fatalf("SetRoleLimits failed: %v", err)
	}

	// The two most recent signups go, newest first.
	if len(evicted) != 2 {
		t.Fatalf("evicted %d signups, want 2", len(evicted))
	}
	if evicted[0].PlayerID != "p4" || evicted[1].PlayerID != "p3" {
		t.Errorf("evicted = [%s, %s], want [p4, p3]", evicted[0].PlayerID, evicted[1].PlayerID)
	}

	remaining, err := store.ListSignups(context.Background(), "e-1", nil)
	if err != nil {
		t.Fatalf("listing signups: %v", err)
	}
	if len(remaining) != 2 || remaining[0].PlayerID != "p1" || remaining[1].PlayerID != "p2" {
		t.Errorf("remaining signups = %v, want p1 and p2", remaining)
	}
}

func TestSetRoleLimits_TimestampTieBrokenByInsertionOrder(t *testing.T) {
	coord, store := newTestCoordinator(t)
	seedEvent(t, store, "e-1", domain.RoleLimits{})

	at := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	for _, player := range []string{"first", "second", "third"} {
		seedSignup(t, store, "e-1", player, domain.RoleDPS, at)
	}

	two := 2
	evicted, _, err := coord.SetRoleLimits(context.Background(), "e-1", domain.RoleLimits{DPS: &two})
	if err != nil {
		t.Fatalf("SetRoleLimits failed: %v", err)
	}

	if len(evicted) != 1 || evicted[0].PlayerID != "third" {
		t.Errorf("evicted = %v, want the last inserted signup", evicted)
	}
}

func TestSetRoleLimits_PersistsLimitsAndRenders(t *testing.T) {
	coord, store := newTestCoordinator(t)
	seedEvent(t, store, "e-1", domain.RoleLimits{})
	seedSignup(t, store, "e-1", "alice", domain.RoleDPS, time.Now())

	four := 4
	_, instructions, err := coord.SetRoleLimits(context.Background(), "e-1", domain.RoleLimits{DPS: &four})
	if err != nil {
		t.Fatalf("SetRoleLimits failed: %v", err)
	}

	event, err := store.GetEvent(context.Background(), "e-1")
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if event.Limits.DPS == nil || *event.Limits.DPS != 4 {
		t.Errorf("persisted DPS limit = %v, want 4", event.Limits.DPS)
	}

	// Both role fields are rendered, DPS showing the new cap.
	if len(instructions) != 2 {
		t.Fatalf("got %d instructions, want 2", len(instructions))
	}
	if want := "DPS ⚔️ - (1/4)"; instructions[0].Label != want {
		t.Errorf("DPS label = %q, want %q", instructions[0].Label, want)
	}
}

func TestSetRoleLimits_NegativeLimitRejectedBeforeMutation(t *testing.T) {
	coord, store := newTestCoordinator(t)
	seedEvent(t, store, "e-1", domain.RoleLimits{})
	seedSignup(t, store, "e-1", "alice", domain.RoleDPS, time.Now())

	bad := -2
	_, _, err := coord.SetRoleLimits(context.Background(), "e-1", domain.RoleLimits{DPS: &bad})
	var limErr *domain.InvalidLimitError
	if !errors.As(err, &limErr) {
		t.Fatalf("expected InvalidLimitError, got %v", err)
	}

	if got := store.signupCount("e-1", domain.RoleDPS); got != 1 {
		t.Errorf("signup count = %d, want untouched 1", got)
	}
}

func TestSetRoleLimits_ConcreteScenario(t *testing.T) {
	// Join A, join B, C rejected at the cap, then lowering the limit to 1
	// evicts B as the most recent signup.
	two := 2
	coord, store := newTestCoordinator(t)
	seedEvent(t, store, "e-1", domain.RoleLimits{DPS: &two})
	ctx := context.Background()

	insA, err := coord.JoinRole(ctx, "e-1", "A", "A", domain.RoleDPS)
	if err != nil {
		t.Fatalf("join A failed: %v", err)
	}
	if want := "DPS ⚔️ - (1/2)"; insA.Label != want {
		t.Errorf("after A, label = %q, want %q", insA.Label, want)
	}

	insB, err := coord.JoinRole(ctx, "e-1", "B", "B", domain.RoleDPS)
	if err != nil {
		t.Fatalf("join B failed: %v", err)
	}
	if want := "DPS ⚔️ - (2/2)"; insB.Label != want {
		t.Errorf("after B, label = %q, want %q", insB.Label, want)
	}

	_, err = coord.JoinRole(ctx, "e-1", "C", "C", domain.RoleDPS)
	var capErr *domain.CapacityError
	if !errors.As(err, &capErr) || capErr.Limit != 2 {
		t.Fatalf("join C: expected CapacityError with limit 2, got %v", err)
	}

	one := 1
	evicted, instructions, err := coord.SetRoleLimits(ctx, "e-1", domain.RoleLimits{DPS: &one, Support: nil})
	if err != nil {
		t.Fatalf("SetRoleLimits failed: %v", err)
	}
	if len(evicted) != 1 || evicted[0].PlayerID != "B" {
		t.Fatalf("evicted = %v, want exactly B", evicted)
	}
	if want := "DPS ⚔️ - (1/1)"; instructions[0].Label != want {
		t.Errorf("final label = %q, want %q", instructions[0].Label, want)
	}
}

func TestForceRemove_AllRoles(t *testing.T) {
	coord, store := newTestCoordinator(t)
	seedEvent(t, store, "e-1", domain.RoleLimits{})
	seedSignup(t, store, "e-1", "alice", domain.RoleDPS, time.Now())
	seedSignup(t, store, "e-1", "alice", domain.RoleSupport, time.Now())

	instructions, err := coord.ForceRemove(context.Background(), "e-1", "host-1", "alice", nil)
	if err != nil {
		t.Fatalf("ForceRemove failed: %v", err)
	}

	if len(instructions) != 2 {
		t.Errorf("got %d instructions, want 2", len(instructions))
	}
	if got := store.signupCount("e-1", domain.RoleDPS) + store.signupCount("e-1", domain.RoleSupport); got != 0 {
		t.Errorf("remaining signups = %d, want 0", got)
	}
}

func TestForceRemove_SingleRole(t *testing.T) {
	coord, store := newTestCoordinator(t)
	seedEvent(t, store, "e-1", domain.RoleLimits{})
	seedSignup(t, store, "e-1", "alice", domain.RoleDPS, time.Now())
	seedSignup(t, store, "e-1", "alice", domain.RoleSupport, time.Now())

	role := domain.RoleDPS
	instructions, err := coord.ForceRemove(context.Background(), "e-1", "host-1", "alice", &role)
	if err != nil {
		t.Fatalf("ForceRemove failed: %v", err)
	}

	if len(instructions) != 1 || instructions[0].Role != domain.RoleDPS {
		t.Errorf("instructions = %v, want single DPS field", instructions)
	}
	if got := store.signupCount("e-1", domain.RoleSupport); got != 1 {
		t.Errorf("support count = %d, want untouched 1", got)
	}
}

func TestRoster_MatchesStore(t *testing.T) {
	coord, store := newTestCoordinator(t)
	seedEvent(t, store, "e-1", domain.RoleLimits{})
	seedSignup(t, store, "e-1", "alice", domain.RoleDPS, time.Now())

	instructions, err := coord.Roster(context.Background(), "e-1")
	if err != nil {
		t.Fatalf("Roster failed: %v", err)
	}

	if len(instructions) != 2 {
		t.Fatalf("got %d instructions, want one per role", len(instructions))
	}
	if want := "DPS ⚔️ - (1)"; instructions[0].Label != want {
		t.Errorf("DPS label = %q, want %q", instructions[0].Label, want)
	}
	if want := "Support \U0001fa79 - (0)"; instructions[1].Label != want {
		t.Errorf("Support label = %q, want %q", instructions[1].Label, want)
	}
}

func TestJoinRole_ConcurrentJoinsNeverExceedLimit(t *testing.T) {
	const limit = 3
	const players = 40

	lim := limit
	coord, store := newTestCoordinator(t)
	seedEvent(t, store, "e-1", domain.RoleLimits{DPS: &lim})
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted, rejected := 0, 0

	for i := 0; i < players; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			player := fmt.Sprintf("p%02d", n)
			_, err := coord.JoinRole(ctx, "e-1", player, player, domain.RoleDPS)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			default:
				var capErr *domain.CapacityError
				if !errors.As(err, &capErr) {
					t.Errorf("unexpected error: %v", err)
					return
				}
				rejected++
			}
		}(i)
	}
	wg.Wait()

	if accepted != limit {
		t.Errorf("accepted = %d, want %d", accepted, limit)
	}
	if rejected != players-limit {
		t.Errorf("rejected = %d, want %d", rejected, players-limit)
	}
	if got := store.signupCount("e-1", domain.RoleDPS); got != limit {
		t.Errorf("persisted signups = %d, want %d", got, limit)
	}
}
