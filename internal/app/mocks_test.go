package app_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/hostedraids/muster/internal/domain"
)

// --- Mocks ---

// mockStore is an in-memory EventStore preserving signup insertion order.
type mockStore struct {
	mu      sync.Mutex
	events  map[string]domain.Event
	signups []domain.Signup
}

func newMockStore() *mockStore {
	return &mockStore{events: make(map[string]domain.Event)}
}

func (m *mockStore) CreateEvent(_ context.Context, e domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.ID] = e
	return nil
}

func (m *mockStore) GetEvent(_ context.Context, id string) (domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return domain.Event{}, domain.ErrEventNotFound
	}
	return e, nil
}

func (m *mockStore) UpdateEvent(_ context.Context, e domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[e.ID]; !ok {
		return domain.ErrEventNotFound
	}
	m.events[e.ID] = e
	return nil
}

func (m *mockStore) DeleteEvent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.events, id)
	return nil
}

func (m *mockStore) ListEvents(_ context.Context, filter domain.ListFilter) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Event
	for _, e := range m.events {
		if filter.GuildID != "" && e.GuildID != filter.GuildID {
			continue
		}
		if filter.Retirement != nil && e.Retirement != *filter.Retirement {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *mockStore) InsertSignup(_ context.Context, s domain.Signup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signups = append(m.signups, s)
	return nil
}

func (m *mockStore) ListSignups(_ context.Context, eventID string, role *domain.RoleKind) ([]domain.Signup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Signup
	for _, s := range m.signups {
		if s.EventID != eventID {
			continue
		}
		if role != nil && s.Role != *role {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *mockStore) DeleteSignups(_ context.Context, eventID, playerID string, role *domain.RoleKind) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []domain.Signup
	var removed int64
	for _, s := range m.signups {
		if s.EventID == eventID && s.PlayerID == playerID && (role == nil || s.Role == *role) {
			removed++
			continue
		}
		kept = append(kept, s)
	}
	m.signups = kept
	return removed, nil
}

func (m *mockStore) DeleteMostRecentSignups(_ context.Context, eventID string, role domain.RoleKind, n int) ([]domain.Signup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type indexed struct {
		idx    int
		signup domain.Signup
	}
	var matching []indexed
	for i, s := range m.signups {
		if s.EventID == eventID && s.Role == role {
			matching = append(matching, indexed{i, s})
		}
	}

	// Newest first; insertion order breaks timestamp ties.
	sort.SliceStable(matching, func(a, b int) bool {
		ta, tb := matching[a].signup.SignedUpAt, matching[b].signup.SignedUpAt
		if ta.Equal(tb) {
			return matching[a].idx > matching[b].idx
		}
		return ta.After(tb)
	})

	if n > len(matching) {
		n = len(matching)
	}
	victims := matching[:n]

	doomed := make(map[int]bool, len(victims))
	removed := make([]domain.Signup, 0, len(victims))
	for _, v := range victims {
		doomed[v.idx] = true
		removed = append(removed, v.signup)
	}

	var kept []domain.Signup
	for i, s := range m.signups {
		if !doomed[i] {
			kept = append(kept, s)
		}
	}
	m.signups = kept
	return removed, nil
}

func (m *mockStore) DistinctSignupPlayers(_ context.Context, eventID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, s := range m.signups {
		if s.EventID == eventID && !seen[s.PlayerID] {
			seen[s.PlayerID] = true
			out = append(out, s.PlayerID)
		}
	}
	return out, nil
}

func (m *mockStore) ListPlayerEvents(_ context.Context, guildID, playerID string) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var out []domain.Event
	for _, s := range m.signups {
		if s.PlayerID != playerID || seen[s.EventID] {
			continue
		}
		e, ok := m.events[s.EventID]
		if !ok || e.GuildID != guildID {
			continue
		}
		seen[s.EventID] = true
		out = append(out, e)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].StartTime.Before(out[b].StartTime) })
	return out, nil
}

func (m *mockStore) signupCount(eventID string, role domain.RoleKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.signups {
		if s.EventID == eventID && s.Role == role {
			n++
		}
	}
	return n
}

// mockSurface records applied instructions keyed by event and role.
type mockSurface struct {
	mu      sync.Mutex
	fields  map[string]map[domain.RoleKind]domain.RenderInstruction
	deleted []string
}

func newMockSurface() *mockSurface {
	return &mockSurface{fields: make(map[string]map[domain.RoleKind]domain.RenderInstruction)}
}

func (m *mockSurface) Apply(_ context.Context, ins domain.RenderInstruction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fields[ins.EventID] == nil {
		m.fields[ins.EventID] = make(map[domain.RoleKind]domain.RenderInstruction)
	}
	m.fields[ins.EventID][ins.Role] = ins
	return nil
}

func (m *mockSurface) Render(_ context.Context, eventID string) ([]domain.RenderInstruction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RenderInstruction
	for _, role := range domain.Roles {
		if ins, ok := m.fields[eventID][role]; ok {
			out = append(out, ins)
		}
	}
	return out, nil
}

func (m *mockSurface) Delete(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.fields, eventID)
	m.deleted = append(m.deleted, eventID)
	return nil
}

// mockNotifier records every message, optionally failing all sends.
type mockNotifier struct {
	mu       sync.Mutex
	failAll  bool
	messages map[string][]string
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{messages: make(map[string][]string)}
}

func (m *mockNotifier) Notify(_ context.Context, playerID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return context.DeadlineExceeded
	}
	m.messages[playerID] = append(m.messages[playerID], message)
	return nil
}

func (m *mockNotifier) count(playerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages[playerID])
}

// mockCalendar records upserts and retirements.
type mockCalendar struct {
	mu      sync.Mutex
	upserts []string
	retired []string
}

func (m *mockCalendar) Upsert(_ context.Context, e domain.Event) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts = append(m.upserts, e.ID)
	return "cal-" + e.ID, nil
}

func (m *mockCalendar) Retire(_ context.Context, e domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retired = append(m.retired, e.ID)
	return nil
}

// mockScheduler records scheduled confirmation timeouts.
type mockScheduler struct {
	mu        sync.Mutex
	deadlines map[string]time.Time
	failAll   bool
}

func newMockScheduler() *mockScheduler {
	return &mockScheduler{deadlines: make(map[string]time.Time)}
}

func (m *mockScheduler) ScheduleTimeout(_ context.Context, eventID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return errors.New("scheduler unavailable")
	}
	m.deadlines[eventID] = at
	return nil
}

// mockChannels is an in-memory ChannelConfig.
type mockChannels struct {
	mu       sync.Mutex
	channels map[string]string
}

func newMockChannels() *mockChannels {
	return &mockChannels{channels: make(map[string]string)}
}

func (m *mockChannels) EventsChannel(_ context.Context, guildID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[guildID]
	if !ok {
		return "", domain.ErrChannelNotSet
	}
	return ch, nil
}

func (m *mockChannels) SetEventsChannel(_ context.Context, guildID, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[guildID] = channelID
	return nil
}

// tableValidator checks transitions against the domain table, without the
// FSM adapter.
type tableValidator struct{}

func (tableValidator) Apply(_ context.Context, current domain.RetirementState, trigger domain.Trigger) (domain.RetirementState, error) {
	for _, tr := range domain.Transitions {
		if tr.Trigger == trigger && tr.Src == current {
			return tr.Dst, nil
		}
	}
	return "", &domain.TransitionError{Trigger: trigger, Current: current}
}
