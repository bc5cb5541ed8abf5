// Package service implements custody workflows on top of the repositories.
// Every operation takes the caller as a domain.Actor and checks its rank
// before touching storage.
package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/custody-service/internal/domain"
	"github.com/spec-kit/custody-service/internal/events"
	apperrors "github.com/spec-kit/custody-service/pkg/util/errorutil"
)

// Clock returns the current instant. Tests substitute a simulated clock.
type Clock func() time.Time

func (c Clock) orDefault() Clock {
	if c == nil {
		return time.Now
	}
	return c
}

func requireRole(actor domain.Actor, required domain.Role) error {
	if actor.Role.Satisfies(required) {
		return nil
	}
	return apperrors.NewForbidden("insufficient role: " + string(required) + " required")
}

func eventActor(actor domain.Actor) events.Actor {
	return events.Actor{UserID: actor.UserID, Role: actor.Role}
}

// publisher fills event metadata and hands it to the dispatcher. Handler
// failures are logged and never fail the operation that already committed.
type publisher struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	clock      Clock
}

func (p publisher) publish(ctx context.Context, event events.Event) {
	if p.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.clock.orDefault()()
	}
	if err := p.dispatcher.Publish(ctx, event); err != nil && p.logger != nil {
		p.logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("event_id", event.ID),
			zap.Error(err))
	}
}

func requireText(field, value string, max int) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", apperrors.NewValidationError(field+" is required", map[string]any{"field": field})
	}
	if max > 0 && utf8.RuneCountInString(value) > max {
		return "", apperrors.NewValidationError(field+" is too long", map[string]any{"field": field, "max_length": max})
	}
	return value, nil
}

func trimPtr(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}

func nopLogger(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
