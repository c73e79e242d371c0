package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/elonfeng/repscore/pkg/activity"
	"github.com/go-playground/validator/v10"
)

// Hook names accepted by Hooks.Apply.
const (
	HookEventCreated            = "event-created"
	HookReviewApproved          = "review-approved"
	HookParticipationRegistered = "participation-registered"
	HookMembershipChanged       = "membership-changed"
)

// ErrUnknownHook is returned for a hook name Hooks does not handle.
var ErrUnknownHook = errors.New("unknown hook")

// ValidationError wraps a payload that failed to decode or validate.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return "invalid payload: " + e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

// EventCreatedPayload credits an organization with an event it organized.
type EventCreatedPayload struct {
	OrgID string                 `json:"org_id" validate:"required"`
	Event activity.OrganizerRole `json:"event"`
}

// ReviewApprovedPayload credits the reviewed entity.
type ReviewApprovedPayload struct {
	Kind     activity.EntityKind `json:"kind" validate:"required,entity_kind"`
	EntityID string              `json:"entity_id" validate:"required"`
	Review   activity.Review     `json:"review"`
}

// UserPayload names the user whose sources changed.
type UserPayload struct {
	UserID string `json:"user_id" validate:"required"`
}

// Hooks decodes, validates and dispatches write-path hook payloads. It backs
// both the HTTP hook endpoints and the CLI hook command.
type Hooks struct {
	svc      *activity.Service
	validate *validator.Validate
}

// NewHooks creates a Hooks dispatcher.
func NewHooks(svc *activity.Service) *Hooks {
	v := validator.New()
	v.RegisterValidation("entity_kind", validateEntityKind)
	return &Hooks{svc: svc, validate: v}
}

// Apply runs the named hook with a JSON body. A nil record with a nil error
// means the hook was accepted but changed nothing.
func (h *Hooks) Apply(ctx context.Context, name string, body []byte) (*activity.Record, error) {
	switch name {
	case HookEventCreated:
		var p EventCreatedPayload
		if err := h.decode(body, &p); err != nil {
			return nil, err
		}
		return h.svc.OnEventCreated(ctx, p.OrgID, p.Event)

	case HookReviewApproved:
		var p ReviewApprovedPayload
		if err := h.decode(body, &p); err != nil {
			return nil, err
		}
		ref := activity.EntityRef{Kind: p.Kind, ID: p.EntityID}
		return h.svc.OnReviewApproved(ctx, ref, p.Review)

	case HookParticipationRegistered:
		var p UserPayload
		if err := h.decode(body, &p); err != nil {
			return nil, err
		}
		return h.svc.OnParticipationRegistered(ctx, p.UserID)

	case HookMembershipChanged:
		var p UserPayload
		if err := h.decode(body, &p); err != nil {
			return nil, err
		}
		return h.svc.OnTeamMembershipChanged(ctx, p.UserID)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownHook, name)
}

func (h *Hooks) decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return &ValidationError{Err: err}
	}
	if err := h.validate.Struct(out); err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}

func validateEntityKind(fl validator.FieldLevel) bool {
	return activity.EntityKind(fl.Field().String()).Valid()
}
