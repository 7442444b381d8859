package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/hostedraids/muster/internal/domain"
)

const (
	// retireAfter is how long past an event's start time the sweep waits
	// before asking the host whether the event is over.
	retireAfter = 8 * time.Hour
	// confirmWindow is how long the host has to answer the prompt before
	// the event is terminated automatically. It is deliberately longer
	// than the sweep interval so one missed tick cannot terminate an
	// event the host never had a chance to answer for.
	confirmWindow = 16 * time.Hour
)

// LifecycleConfig carries the collaborators of an EventLifecycle.
type LifecycleConfig struct {
	Store     domain.EventStore
	Surface   domain.DisplaySurface
	Validator domain.TransitionValidator
	Notifier  domain.Notifier
	Calendar  domain.CalendarMirror
	Scheduler domain.ConfirmationScheduler
	Channels  domain.ChannelConfig
	Locks     *LockTable
	// Now is the clock used for retirement decisions; defaults to time.Now.
	Now func() time.Time
}

// EventLifecycle governs events from creation through termination: the
// hourly retirement sweep, the confirmation prompt and its timeout, and the
// host-driven end/cancel/edit operations.
type EventLifecycle struct {
	store     domain.EventStore
	surface   domain.DisplaySurface
	validator domain.TransitionValidator
	notifier  domain.Notifier
	calendar  domain.CalendarMirror
	scheduler domain.ConfirmationScheduler
	channels  domain.ChannelConfig
	locks     *LockTable
	now       func() time.Time
}

// NewEventLifecycle creates the lifecycle service.
func NewEventLifecycle(cfg LifecycleConfig) *EventLifecycle {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &EventLifecycle{
		store:     cfg.Store,
		surface:   cfg.Surface,
		validator: cfg.Validator,
		notifier:  cfg.Notifier,
		calendar:  cfg.Calendar,
		scheduler: cfg.Scheduler,
		channels:  cfg.Channels,
		locks:     cfg.Locks,
		now:       now,
	}
}

// CreateEvent persists a new event, pushes the initial empty roster to the
// display surface, and mirrors the event to the external calendar when it
// starts in the future. The guild must have an events channel configured.
func (l *EventLifecycle) CreateEvent(ctx context.Context, guildID, hostID, hostName, title string, start time.Time) (domain.Event, error) {
	if n := utf8.RuneCountInString(title); n > domain.MaxTitleLength {
		return domain.Event{}, &domain.TitleLengthError{Length: n}
	}

	if _, err := l.channels.EventsChannel(ctx, guildID); err != nil {
		return domain.Event{}, err
	}

	id, err := newEventID()
	if err != nil {
		return domain.Event{}, fmt.Errorf("generating event id: %w", err)
	}

	event := domain.NewEvent(id, guildID, hostID, hostName, title, start)

	if err := l.store.CreateEvent(ctx, event); err != nil {
		return domain.Event{}, fmt.Errorf("creating event: %w", err)
	}

	// The store row is authoritative; a surface failure leaves a display
	// gap that the next read-triggered re-render heals.
	for _, role := range domain.Roles {
		ins := domain.NewRenderInstruction(event.ID, role, nil, nil)
		if err := l.surface.Apply(ctx, ins); err != nil {
			slog.ErrorContext(ctx, "applying initial roster field failed",
				"event_id", event.ID,
				"role", role,
				"error", err,
			)
		}
	}

	if start.After(l.now()) {
		ref, err := l.calendar.Upsert(ctx, event)
		if err != nil {
			slog.WarnContext(ctx, "calendar mirror failed", "event_id", event.ID, "error", err)
		} else {
			event.CalendarRef = ref
			if err := l.store.UpdateEvent(ctx, event); err != nil {
				return domain.Event{}, fmt.Errorf("storing calendar ref: %w", err)
			}
		}
	}

	slog.InfoContext(ctx, "event created",
		"event_id", event.ID,
		"guild_id", guildID,
		"host_id", hostID,
	)

	return event, nil
}

// Event returns an event by ID.
func (l *EventLifecycle) Event(ctx context.Context, id string) (domain.Event, error) {
	return l.store.GetEvent(ctx, id)
}

// ListEvents returns events matching the filter.
func (l *EventLifecycle) ListEvents(ctx context.Context, filter domain.ListFilter) ([]domain.Event, error) {
	return l.store.ListEvents(ctx, filter)
}

// EndEvent terminates an event at the host's request without notifying the
// signed-up players.
func (l *EventLifecycle) EndEvent(ctx context.Context, eventID, actorID string) error {
	return l.hostTerminate(ctx, eventID, actorID, "")
}

// CancelEvent terminates an event at the host's request and tells every
// signed-up player that it was cancelled.
func (l *EventLifecycle) CancelEvent(ctx context.Context, eventID, actorID string) error {
	return l.hostTerminate(ctx, eventID, actorID, "cancelled")
}

func (l *EventLifecycle) hostTerminate(ctx context.Context, eventID, actorID, notice string) error {
	release := l.locks.Acquire(eventID)

	event, err := l.store.GetEvent(ctx, eventID)
	if err != nil {
		release()
		return err
	}
	if event.HostID != actorID {
		release()
		return &domain.NotHostError{ActorID: actorID, EventID: eventID}
	}

	players, err := l.terminateLocked(ctx, event)
	release()
	if err != nil {
		return err
	}

	l.afterTerminate(ctx, event, players, notice)
	return nil
}

// EditTitle renames an event and mirrors the change to the calendar.
func (l *EventLifecycle) EditTitle(ctx context.Context, eventID, actorID, title string) (domain.Event, error) {
	if n := utf8.RuneCountInString(title); n > domain.MaxTitleLength {
		return domain.Event{}, &domain.TitleLengthError{Length: n}
	}

	return l.editEvent(ctx, eventID, actorID, func(event *domain.Event) {
		event.Title = title
	})
}

// EditStartTime reschedules an event and mirrors the change to the calendar.
func (l *EventLifecycle) EditStartTime(ctx context.Context, eventID, actorID string, start time.Time) (domain.Event, error) {
	return l.editEvent(ctx, eventID, actorID, func(event *domain.Event) {
		event.StartTime = start.UTC()
	})
}

func (l *EventLifecycle) editEvent(ctx context.Context, eventID, actorID string, mutate func(*domain.Event)) (domain.Event, error) {
	release := l.locks.Acquire(eventID)
	defer release()

	event, err := l.store.GetEvent(ctx, eventID)
	if err != nil {
		return domain.Event{}, err
	}
	if event.HostID != actorID {
		return domain.Event{}, &domain.NotHostError{ActorID: actorID, EventID: eventID}
	}

	mutate(&event)

	if err := l.store.UpdateEvent(ctx, event); err != nil {
		return domain.Event{}, fmt.Errorf("updating event: %w", err)
	}

	if event.CalendarRef != "" {
		if _, err := l.calendar.Upsert(ctx, event); err != nil {
			slog.WarnContext(ctx, "calendar mirror failed", "event_id", eventID, "error", err)
		}
	}

	return event, nil
}

// Sweep examines all events and prompts the host of each one that started
// more than retireAfter ago and is still in the active retirement state. It
// also expires any pending confirmation whose stored deadline has passed,
// so an event whose timeout job was lost before it could be enqueued is
// terminated by the next tick instead of lingering forever. It runs hourly;
// the lock is taken per event so live signup traffic on unrelated events is
// never blocked for the duration of a full pass.
func (l *EventLifecycle) Sweep(ctx context.Context) error {
	events, err := l.store.ListEvents(ctx, domain.ListFilter{})
	if err != nil {
		return fmt.Errorf("listing events for sweep: %w", err)
	}

	now := l.now().UTC()
	for _, candidate := range events {
		switch candidate.Retirement {
		case domain.StateActive:
			if candidate.StartTime.Add(retireAfter).After(now) {
				continue
			}
			if err := l.promptHost(ctx, candidate.ID, now); err != nil {
				slog.ErrorContext(ctx, "retirement prompt failed",
					"event_id", candidate.ID,
					"error", err,
				)
			}
		case domain.StatePendingConfirmation:
			if candidate.ConfirmDeadline == nil || candidate.ConfirmDeadline.After(now) {
				continue
			}
			if err := l.ExpireConfirmation(ctx, candidate.ID); err != nil {
				slog.ErrorContext(ctx, "expiring overdue confirmation failed",
					"event_id", candidate.ID,
					"error", err,
				)
			}
		}
	}
	return nil
}

// promptHost moves one event to PendingConfirmation, persists the response
// deadline, schedules the timeout, and messages the host. The state change
// is persisted first so the next sweep tick does not re-prompt, and it
// stands even when the host is unreachable: non-delivery and non-response
// are treated identically.
func (l *EventLifecycle) promptHost(ctx context.Context, eventID string, now time.Time) error {
	release := l.locks.Acquire(eventID)

	event, err := l.store.GetEvent(ctx, eventID)
	if err != nil {
		release()
		return err
	}

	// Re-check under the lock: the host may have ended or answered a
	// prompt for this event since the sweep listed it.
	next, err := l.validator.Apply(ctx, event.Retirement, domain.TriggerPrompt)
	if err != nil {
		release()
		return err
	}

	deadline := now.Add(confirmWindow)
	event.Retirement = next
	event.ConfirmDeadline = &deadline

	if err := l.store.UpdateEvent(ctx, event); err != nil {
		release()
		return fmt.Errorf("persisting prompt state: %w", err)
	}
	release()

	if err := l.scheduler.ScheduleTimeout(ctx, eventID, deadline); err != nil {
		return fmt.Errorf("scheduling confirmation timeout: %w", err)
	}

	message := fmt.Sprintf(
		"Your event %q started %s. Would you like to end it? If you do not respond by %s, the event will be deleted.",
		event.Title,
		event.StartTime.Format(time.RFC1123),
		deadline.Format(time.RFC1123),
	)
	if err := l.notifier.Notify(ctx, event.HostID, message); err != nil {
		slog.WarnContext(ctx, "host prompt delivery failed",
			"event_id", eventID,
			"host_id", event.HostID,
			"error", err,
		)
	}

	slog.InfoContext(ctx, "event pending retirement confirmation",
		"event_id", eventID,
		"deadline", deadline,
	)
	return nil
}

// ResolveConfirmation records the host's answer to the retirement prompt.
// end=true terminates the event; end=false retains it, permanently
// suppressing further auto-prompts.
func (l *EventLifecycle) ResolveConfirmation(ctx context.Context, eventID, actorID string, end bool) error {
	release := l.locks.Acquire(eventID)

	event, err := l.store.GetEvent(ctx, eventID)
	if err != nil {
		release()
		return err
	}
	if event.HostID != actorID {
		release()
		return &domain.NotHostError{ActorID: actorID, EventID: eventID}
	}

	if end {
		players, err := l.terminateLocked(ctx, event)
		release()
		if err != nil {
			return err
		}
		l.afterTerminate(ctx, event, players, "")
		return nil
	}

	next, err := l.validator.Apply(ctx, event.Retirement, domain.TriggerRetain)
	if err != nil {
		release()
		return err
	}

	event.Retirement = next
	event.ConfirmDeadline = nil
	err = l.store.UpdateEvent(ctx, event)
	release()
	if err != nil {
		return fmt.Errorf("persisting retained state: %w", err)
	}

	slog.InfoContext(ctx, "event retained", "event_id", eventID)
	return nil
}

// ExpireConfirmation terminates an event whose confirmation window has
// elapsed without a host response. It recomputes "has it timed out" from the
// stored deadline and the current clock, so it is idempotent and safe to run
// from a rescheduled job after a restart: a stale call on an event that was
// answered, retained, or already deleted is a no-op.
func (l *EventLifecycle) ExpireConfirmation(ctx context.Context, eventID string) error {
	release := l.locks.Acquire(eventID)

	event, err := l.store.GetEvent(ctx, eventID)
	if err != nil {
		release()
		if errors.Is(err, domain.ErrEventNotFound) {
			return nil
		}
		return err
	}

	if event.Retirement != domain.StatePendingConfirmation || event.ConfirmDeadline == nil {
		release()
		return nil
	}
	if l.now().UTC().Before(*event.ConfirmDeadline) {
		release()
		return nil
	}

	players, err := l.terminateLocked(ctx, event)
	release()
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "event auto-terminated after confirmation timeout", "event_id", eventID)
	l.afterTerminate(ctx, event, players, "")
	return nil
}

// PlayerSignupEvents returns the events within a guild that a player is
// signed up for, ordered by start time.
func (l *EventLifecycle) PlayerSignupEvents(ctx context.Context, guildID, playerID string) ([]domain.Event, error) {
	return l.store.ListPlayerEvents(ctx, guildID, playerID)
}

// SendReminder messages every signed-up player that the event is coming up.
func (l *EventLifecycle) SendReminder(ctx context.Context, eventID, senderName string) error {
	event, err := l.store.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	players, err := l.store.DistinctSignupPlayers(ctx, eventID)
	if err != nil {
		return fmt.Errorf("listing signed-up players: %w", err)
	}

	message := fmt.Sprintf("%s is reminding you that you are signed up for %q starting %s.",
		senderName, event.Title, event.StartTime.Format(time.RFC1123))
	for _, playerID := range players {
		if err := l.notifier.Notify(ctx, playerID, message); err != nil {
			slog.WarnContext(ctx, "reminder delivery failed",
				"event_id", eventID,
				"player_id", playerID,
				"error", err,
			)
		}
	}
	return nil
}

// terminateLocked performs the store-side effects of entering Terminated:
// validate the transition, drain all signups, delete the event row, and
// delete the display entry. Caller must hold the event lock and is
// responsible for the post-lock effects via afterTerminate. The returned
// slice lists the players whose signups were drained.
func (l *EventLifecycle) terminateLocked(ctx context.Context, event domain.Event) ([]string, error) {
	if _, err := l.validator.Apply(ctx, event.Retirement, domain.TriggerTerminate); err != nil {
		return nil, err
	}

	players, err := l.store.DistinctSignupPlayers(ctx, event.ID)
	if err != nil {
		return nil, fmt.Errorf("listing signed-up players: %w", err)
	}
	for _, playerID := range players {
		if _, err := l.store.DeleteSignups(ctx, event.ID, playerID, nil); err != nil {
			return nil, fmt.Errorf("draining signups for %s: %w", playerID, err)
		}
	}

	if err := l.store.DeleteEvent(ctx, event.ID); err != nil {
		return nil, fmt.Errorf("deleting event: %w", err)
	}

	// Store deletion is authoritative. A failed surface delete leaves a
	// stale display entry but never resurrects the event.
	if err := l.surface.Delete(ctx, event.ID); err != nil {
		slog.ErrorContext(ctx, "deleting display entry failed",
			"event_id", event.ID,
			"error", err,
		)
	}

	return players, nil
}

// afterTerminate runs the slow, best-effort collaborator calls outside the
// event lock: the calendar retirement and any player notifications.
func (l *EventLifecycle) afterTerminate(ctx context.Context, event domain.Event, players []string, notice string) {
	if event.CalendarRef != "" {
		if err := l.calendar.Retire(ctx, event); err != nil {
			slog.WarnContext(ctx, "retiring calendar entry failed",
				"event_id", event.ID,
				"error", err,
			)
		}
	}

	if notice == "" {
		return
	}
	message := fmt.Sprintf("%s has %s the event %q scheduled for %s.",
		event.HostName, notice, event.Title, event.StartTime.Format(time.RFC1123))
	for _, playerID := range players {
		if err := l.notifier.Notify(ctx, playerID, message); err != nil {
			slog.WarnContext(ctx, "cancellation notice delivery failed",
				"event_id", event.ID,
				"player_id", playerID,
				"error", err,
			)
		}
	}
}
