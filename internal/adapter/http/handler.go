package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/hostedraids/muster/internal/app"
	"github.com/hostedraids/muster/internal/domain"
)

// unlimitedSentinel marks a role limit as uncapped at the API boundary.
// Internally an uncapped limit is a nil pointer.
const unlimitedSentinel = -1

// Deps bundles the application services the API routes dispatch to.
type Deps struct {
	Lifecycle   *app.EventLifecycle
	Coordinator *app.SignupCoordinator
	Surface     domain.DisplaySurface
	Notifier    domain.Notifier
	Channels    domain.ChannelConfig
}

// EventResponse is the API representation of an event.
type EventResponse struct {
	ID              string `json:"id" doc:"Unique identifier"`
	GuildID         string `json:"guild_id" doc:"Owning guild"`
	HostID          string `json:"host_id" doc:"Hosting player"`
	HostName        string `json:"host_name" doc:"Host display name"`
	Title           string `json:"title" doc:"Event title"`
	StartTime       string `json:"start_time" doc:"Scheduled start (ISO 8601)"`
	DPSLimit        int    `json:"dps_limit" doc:"DPS slot cap, -1 when unlimited"`
	SupportLimit    int    `json:"support_limit" doc:"Support slot cap, -1 when unlimited"`
	State           string `json:"state" doc:"Retirement state"`
	ConfirmDeadline string `json:"confirm_deadline,omitempty" doc:"Confirmation window close (ISO 8601)"`
	CalendarRef     string `json:"calendar_ref,omitempty" doc:"Calendar mirror handle"`
	CreatedAt       string `json:"created_at" doc:"Creation timestamp (ISO 8601)"`
	UpdatedAt       string `json:"updated_at" doc:"Last update timestamp (ISO 8601)"`
}

// FieldResponse is one rendered roster field.
type FieldResponse struct {
	Role  string `json:"role" doc:"Role key"`
	Label string `json:"label" doc:"Field heading with signup count"`
	Body  string `json:"body" doc:"Mention list or placeholder"`
}

const timeFormat = "2006-01-02T15:04:05Z"

func toEventResponse(e domain.Event) EventResponse {
	resp := EventResponse{
		ID:           e.ID,
		GuildID:      e.GuildID,
		HostID:       e.HostID,
		HostName:     e.HostName,
		Title:        e.Title,
		StartTime:    e.StartTime.UTC().Format(timeFormat),
		DPSLimit:     limitToAPI(e.Limits.DPS),
		SupportLimit: limitToAPI(e.Limits.Support),
		State:        string(e.Retirement),
		CalendarRef:  e.CalendarRef,
		CreatedAt:    e.CreatedAt.UTC().Format(timeFormat),
		UpdatedAt:    e.UpdatedAt.UTC().Format(timeFormat),
	}
	if e.ConfirmDeadline != nil {
		resp.ConfirmDeadline = e.ConfirmDeadline.UTC().Format(timeFormat)
	}
	return resp
}

func toFieldResponses(instructions []domain.RenderInstruction) []FieldResponse {
	fields := make([]FieldResponse, len(instructions))
	for i, in := range instructions {
		fields[i] = FieldResponse{Role: string(in.Role), Label: in.Label, Body: in.Body}
	}
	return fields
}

func limitToAPI(limit *int) int {
	if limit == nil {
		return unlimitedSentinel
	}
	return *limit
}

func limitFromAPI(v int) *int {
	if v == unlimitedSentinel {
		return nil
	}
	return &v
}

// --- Guild channel ---

type SetChannelInput struct {
	GuildID string `path:"guildID" doc:"Guild ID"`
	Body    struct {
		ChannelID string `json:"channel_id" minLength:"1" doc:"Channel for event postings"`
	}
}

type SetChannelOutput struct {
	Body struct {
		GuildID   string `json:"guild_id"`
		ChannelID string `json:"channel_id"`
	}
}

type GetChannelInput struct {
	GuildID string `path:"guildID" doc:"Guild ID"`
}

type GetChannelOutput struct {
	Body struct {
		GuildID   string `json:"guild_id"`
		ChannelID string `json:"channel_id"`
	}
}

// --- Events ---

type CreateEventInput struct {
	GuildID string `path:"guildID" doc:"Guild ID"`
	Body    struct {
		HostID    string    `json:"host_id" minLength:"1" doc:"Hosting player"`
		HostName  string    `json:"host_name" minLength:"1" doc:"Host display name"`
		Title     string    `json:"title" minLength:"1" doc:"Event title"`
		StartTime time.Time `json:"start_time" doc:"Scheduled start"`
	}
}

type CreateEventOutput struct {
	Body EventResponse
}

type GetEventInput struct {
	ID string `path:"id" doc:"Event ID"`
}

type GetEventOutput struct {
	Body EventResponse
}

type ListEventsInput struct {
	GuildID string `path:"guildID" doc:"Guild ID"`
	State   string `query:"state" required:"false" doc:"Filter by retirement state"`
}

type ListEventsOutput struct {
	Body []EventResponse
}

type EditEventInput struct {
	ID   string `path:"id" doc:"Event ID"`
	Body struct {
		ActorID   string     `json:"actor_id" minLength:"1" doc:"Requesting player, must be the host"`
		Title     *string    `json:"title,omitempty" doc:"New title"`
		StartTime *time.Time `json:"start_time,omitempty" doc:"New start time"`
	}
}

type EditEventOutput struct {
	Body EventResponse
}

type HostActionInput struct {
	ID   string `path:"id" doc:"Event ID"`
	Body struct {
		ActorID string `json:"actor_id" minLength:"1" doc:"Requesting player, must be the host"`
	}
}

type HostActionOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

type ConfirmationInput struct {
	ID   string `path:"id" doc:"Event ID"`
	Body struct {
		ActorID string `json:"actor_id" minLength:"1" doc:"Requesting player, must be the host"`
		End     bool   `json:"end" doc:"True ends the event, false keeps it active"`
	}
}

type ReminderInput struct {
	ID   string `path:"id" doc:"Event ID"`
	Body struct {
		SenderName string `json:"sender_name" minLength:"1" doc:"Name shown in the reminder"`
	}
}

// --- Signups ---

type JoinInput struct {
	ID   string `path:"id" doc:"Event ID"`
	Body struct {
		PlayerID   string `json:"player_id" minLength:"1" doc:"Joining player"`
		PlayerName string `json:"player_name" minLength:"1" doc:"Player display name"`
		Role       string `json:"role" enum:"DPS,Support" doc:"Role to join"`
	}
}

type JoinOutput struct {
	Body FieldResponse
}

type WithdrawInput struct {
	ID       string `path:"id" doc:"Event ID"`
	PlayerID string `path:"playerID" doc:"Player to remove"`
	Role     string `query:"role" required:"false" doc:"Role to leave, all roles when omitted"`
	ActorID  string `query:"actor_id" required:"false" doc:"Requesting player, defaults to the player being removed"`
}

type WithdrawOutput struct {
	Body struct {
		Fields []FieldResponse `json:"fields"`
	}
}

type SetLimitsInput struct {
	ID   string `path:"id" doc:"Event ID"`
	Body struct {
		ActorID      string `json:"actor_id" minLength:"1" doc:"Requesting player, must be the host"`
		DPSLimit     int    `json:"dps_limit" doc:"DPS slot cap, -1 for unlimited"`
		SupportLimit int    `json:"support_limit" doc:"Support slot cap, -1 for unlimited"`
	}
}

type SetLimitsOutput struct {
	Body struct {
		Fields  []FieldResponse `json:"fields"`
		Evicted []string        `json:"evicted" doc:"Players removed to satisfy the new caps, most recent first"`
	}
}

type RosterInput struct {
	ID string `path:"id" doc:"Event ID"`
}

type RosterOutput struct {
	Body struct {
		Fields []FieldResponse `json:"fields"`
	}
}

type PlayerEventsInput struct {
	GuildID  string `path:"guildID" doc:"Guild ID"`
	PlayerID string `path:"playerID" doc:"Player ID"`
}

type PlayerEventsOutput struct {
	Body []EventResponse
}

// Register adds all event API routes to the Huma API.
func Register(api huma.API, deps Deps) {
	huma.Register(api, huma.Operation{
		OperationID: "set-events-channel",
		Method:      http.MethodPut,
		Path:        "/api/v1/guilds/{guildID}/events-channel",
		Summary:     "Designate the guild's events channel",
		Tags:        []string{"Guilds"},
	}, func(ctx context.Context, input *SetChannelInput) (*SetChannelOutput, error) {
		if err := deps.Channels.SetEventsChannel(ctx, input.GuildID, input.Body.ChannelID); err != nil {
			return nil, toHumaError(err)
		}
		out := &SetChannelOutput{}
		out.Body.GuildID = input.GuildID
		out.Body.ChannelID = input.Body.ChannelID
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-events-channel",
		Method:      http.MethodGet,
		Path:        "/api/v1/guilds/{guildID}/events-channel",
		Summary:     "Get the guild's events channel",
		Tags:        []string{"Guilds"},
	}, func(ctx context.Context, input *GetChannelInput) (*GetChannelOutput, error) {
		channelID, err := deps.Channels.EventsChannel(ctx, input.GuildID)
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &GetChannelOutput{}
		out.Body.GuildID = input.GuildID
		out.Body.ChannelID = channelID
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-event",
		Method:      http.MethodPost,
		Path:        "/api/v1/guilds/{guildID}/events",
		Summary:     "Create a new event",
		Tags:        []string{"Events"},
	}, func(ctx context.Context, input *CreateEventInput) (*CreateEventOutput, error) {
		event, err := deps.Lifecycle.CreateEvent(ctx, input.GuildID,
			input.Body.HostID, input.Body.HostName, input.Body.Title, input.Body.StartTime)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &CreateEventOutput{Body: toEventResponse(event)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-event",
		Method:      http.MethodGet,
		Path:        "/api/v1/events/{id}",
		Summary:     "Get an event by ID",
		Tags:        []string{"Events"},
	}, func(ctx context.Context, input *GetEventInput) (*GetEventOutput, error) {
		event, err := deps.Lifecycle.Event(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GetEventOutput{Body: toEventResponse(event)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/api/v1/guilds/{guildID}/events",
		Summary:     "List a guild's events",
		Tags:        []string{"Events"},
	}, func(ctx context.Context, input *ListEventsInput) (*ListEventsOutput, error) {
		filter := domain.ListFilter{GuildID: input.GuildID}
		if input.State != "" {
			state := domain.RetirementState(input.State)
			filter.Retirement = &state
		}

		events, err := deps.Lifecycle.ListEvents(ctx, filter)
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]EventResponse, len(events))
		for i, e := range events {
			resp[i] = toEventResponse(e)
		}
		return &ListEventsOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "edit-event",
		Method:      http.MethodPatch,
		Path:        "/api/v1/events/{id}",
		Summary:     "Edit an event's title or start time",
		Tags:        []string{"Events"},
	}, func(ctx context.Context, input *EditEventInput) (*EditEventOutput, error) {
		var event domain.Event
		var err error

		switch {
		case input.Body.Title != nil:
			event, err = deps.Lifecycle.EditTitle(ctx, input.ID, input.Body.ActorID, *input.Body.Title)
			if err == nil && input.Body.StartTime != nil {
				event, err = deps.Lifecycle.EditStartTime(ctx, input.ID, input.Body.ActorID, *input.Body.StartTime)
			}
		case input.Body.StartTime != nil:
			event, err = deps.Lifecycle.EditStartTime(ctx, input.ID, input.Body.ActorID, *input.Body.StartTime)
		default:
			return nil, huma.Error422UnprocessableEntity("nothing to edit")
		}
		if err != nil {
			return nil, toHumaError(err)
		}
		return &EditEventOutput{Body: toEventResponse(event)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "end-event",
		Method:      http.MethodPost,
		Path:        "/api/v1/events/{id}/end",
		Summary:     "End an event",
		Tags:        []string{"Events"},
	}, func(ctx context.Context, input *HostActionInput) (*HostActionOutput, error) {
		if err := deps.Lifecycle.EndEvent(ctx, input.ID, input.Body.ActorID); err != nil {
			return nil, toHumaError(err)
		}
		out := &HostActionOutput{}
		out.Body.Status = "ended"
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-event",
		Method:      http.MethodPost,
		Path:        "/api/v1/events/{id}/cancel",
		Summary:     "Cancel an event and notify its signups",
		Tags:        []string{"Events"},
	}, func(ctx context.Context, input *HostActionInput) (*HostActionOutput, error) {
		if err := deps.Lifecycle.CancelEvent(ctx, input.ID, input.Body.ActorID); err != nil {
			return nil, toHumaError(err)
		}
		out := &HostActionOutput{}
		out.Body.Status = "cancelled"
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-confirmation",
		Method:      http.MethodPost,
		Path:        "/api/v1/events/{id}/confirmation",
		Summary:     "Answer a pending retirement prompt",
		Tags:        []string{"Events"},
	}, func(ctx context.Context, input *ConfirmationInput) (*HostActionOutput, error) {
		if err := deps.Lifecycle.ResolveConfirmation(ctx, input.ID, input.Body.ActorID, input.Body.End); err != nil {
			return nil, toHumaError(err)
		}
		out := &HostActionOutput{}
		if input.Body.End {
			out.Body.Status = "ended"
		} else {
			out.Body.Status = "retained"
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "send-reminder",
		Method:      http.MethodPost,
		Path:        "/api/v1/events/{id}/reminder",
		Summary:     "Send a reminder to everyone signed up",
		Tags:        []string{"Events"},
	}, func(ctx context.Context, input *ReminderInput) (*HostActionOutput, error) {
		if err := deps.Lifecycle.SendReminder(ctx, input.ID, input.Body.SenderName); err != nil {
			return nil, toHumaError(err)
		}
		out := &HostActionOutput{}
		out.Body.Status = "sent"
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "join-event",
		Method:      http.MethodPost,
		Path:        "/api/v1/events/{id}/signups",
		Summary:     "Join a role on an event",
		Tags:        []string{"Signups"},
	}, func(ctx context.Context, input *JoinInput) (*JoinOutput, error) {
		instruction, err := deps.Coordinator.JoinRole(ctx, input.ID,
			input.Body.PlayerID, input.Body.PlayerName, domain.RoleKind(input.Body.Role))
		if err != nil {
			return nil, toHumaError(err)
		}
		applyInstructions(ctx, deps.Surface, instruction)
		return &JoinOutput{Body: FieldResponse{
			Role:  string(instruction.Role),
			Label: instruction.Label,
			Body:  instruction.Body,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "withdraw-signup",
		Method:      http.MethodDelete,
		Path:        "/api/v1/events/{id}/signups/{playerID}",
		Summary:     "Withdraw a player from an event",
		Description: "Players remove themselves; the host may remove anyone by passing actor_id.",
		Tags:        []string{"Signups"},
	}, func(ctx context.Context, input *WithdrawInput) (*WithdrawOutput, error) {
		var role *domain.RoleKind
		if input.Role != "" {
			r := domain.RoleKind(input.Role)
			role = &r
		}

		actorID := input.ActorID
		if actorID == "" {
			actorID = input.PlayerID
		}

		var instructions []domain.RenderInstruction
		var err error
		if actorID == input.PlayerID {
			if role != nil {
				var instruction domain.RenderInstruction
				instruction, err = deps.Coordinator.WithdrawRole(ctx, input.ID, input.PlayerID, *role)
				instructions = []domain.RenderInstruction{instruction}
			} else {
				instructions, err = deps.Coordinator.WithdrawAll(ctx, input.ID, input.PlayerID)
			}
		} else {
			// Removing someone else requires hosting the event.
			if err := requireHost(ctx, deps.Lifecycle, input.ID, actorID); err != nil {
				return nil, toHumaError(err)
			}
			instructions, err = deps.Coordinator.ForceRemove(ctx, input.ID, actorID, input.PlayerID, role)
		}
		if err != nil {
			return nil, toHumaError(err)
		}

		applyInstructions(ctx, deps.Surface, instructions...)
		out := &WithdrawOutput{}
		out.Body.Fields = toFieldResponses(instructions)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-role-limits",
		Method:      http.MethodPut,
		Path:        "/api/v1/events/{id}/limits",
		Summary:     "Set role slot limits, evicting excess signups",
		Tags:        []string{"Signups"},
	}, func(ctx context.Context, input *SetLimitsInput) (*SetLimitsOutput, error) {
		if err := requireHost(ctx, deps.Lifecycle, input.ID, input.Body.ActorID); err != nil {
			return nil, toHumaError(err)
		}

		limits := domain.RoleLimits{
			DPS:     limitFromAPI(input.Body.DPSLimit),
			Support: limitFromAPI(input.Body.SupportLimit),
		}

		evicted, instructions, err := deps.Coordinator.SetRoleLimits(ctx, input.ID, limits)
		if err != nil {
			return nil, toHumaError(err)
		}

		applyInstructions(ctx, deps.Surface, instructions...)
		for _, signup := range evicted {
			notifyErr := deps.Notifier.Notify(ctx, signup.PlayerID,
				"You were removed from an event because its slots were reduced.")
			if notifyErr != nil {
				slog.WarnContext(ctx, "eviction notice failed",
					"event_id", input.ID, "player_id", signup.PlayerID, "error", notifyErr)
			}
		}

		out := &SetLimitsOutput{}
		out.Body.Fields = toFieldResponses(instructions)
		out.Body.Evicted = make([]string, len(evicted))
		for i, signup := range evicted {
			out.Body.Evicted[i] = signup.PlayerID
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-roster",
		Method:      http.MethodGet,
		Path:        "/api/v1/events/{id}/roster",
		Summary:     "Recompute and return the rendered roster",
		Tags:        []string{"Signups"},
	}, func(ctx context.Context, input *RosterInput) (*RosterOutput, error) {
		instructions, err := deps.Coordinator.Roster(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		// Re-applying repairs a display that drifted from the store.
		applyInstructions(ctx, deps.Surface, instructions...)

		out := &RosterOutput{}
		out.Body.Fields = toFieldResponses(instructions)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-player-events",
		Method:      http.MethodGet,
		Path:        "/api/v1/guilds/{guildID}/players/{playerID}/events",
		Summary:     "List events a player is signed up for",
		Tags:        []string{"Signups"},
	}, func(ctx context.Context, input *PlayerEventsInput) (*PlayerEventsOutput, error) {
		events, err := deps.Lifecycle.PlayerSignupEvents(ctx, input.GuildID, input.PlayerID)
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]EventResponse, len(events))
		for i, e := range events {
			resp[i] = toEventResponse(e)
		}
		return &PlayerEventsOutput{Body: resp}, nil
	})
}

// requireHost verifies the actor hosts the event.
func requireHost(ctx context.Context, lifecycle *app.EventLifecycle, eventID, actorID string) error {
	event, err := lifecycle.Event(ctx, eventID)
	if err != nil {
		return err
	}
	if event.HostID != actorID {
		return &domain.NotHostError{ActorID: actorID, EventID: eventID}
	}
	return nil
}

// applyInstructions pushes rendered fields to the display surface. The store
// already holds the truth, so a failed push is logged and not surfaced.
func applyInstructions(ctx context.Context, surface domain.DisplaySurface, instructions ...domain.RenderInstruction) {
	for _, instruction := range instructions {
		if err := surface.Apply(ctx, instruction); err != nil {
			slog.WarnContext(ctx, "display update failed",
				"event_id", instruction.EventID, "role", instruction.Role, "error", err)
		}
	}
}

// toHumaError translates domain errors to Huma HTTP errors.
func toHumaError(err error) error {
	if errors.Is(err, domain.ErrEventNotFound) {
		return huma.Error404NotFound("event not found")
	}
	if errors.Is(err, domain.ErrChannelNotSet) {
		return huma.Error409Conflict(domain.ErrChannelNotSet.Error())
	}

	var notHost *domain.NotHostError
	if errors.As(err, &notHost) {
		return huma.Error403Forbidden(notHost.Error())
	}

	var alreadySignedUp *domain.AlreadySignedUpError
	if errors.As(err, &alreadySignedUp) {
		return huma.Error409Conflict(alreadySignedUp.Error())
	}

	var capacity *domain.CapacityError
	if errors.As(err, &capacity) {
		return huma.Error409Conflict(capacity.Error())
	}

	var invalidLimit *domain.InvalidLimitError
	if errors.As(err, &invalidLimit) {
		return huma.Error422UnprocessableEntity(invalidLimit.Error())
	}

	var invalidRole *domain.InvalidRoleError
	if errors.As(err, &invalidRole) {
		return huma.Error422UnprocessableEntity(invalidRole.Error())
	}

	var titleLength *domain.TitleLengthError
	if errors.As(err, &titleLength) {
		return huma.Error422UnprocessableEntity(titleLength.Error())
	}

	var transition *domain.TransitionError
	if errors.As(err, &transition) {
		return huma.Error422UnprocessableEntity(transition.Error())
	}

	return huma.Error500InternalServerError("internal server error")
}
