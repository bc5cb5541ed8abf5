package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/custody-service/internal/events"
)

// StatsInvalidator drops cached dashboard aggregates.
type StatsInvalidator interface {
	InvalidateStats(ctx context.Context) error
}

// NotificationService reacts to custody events: it writes the audit log
// line and invalidates cached dashboard data.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	stats      StatsInvalidator
}

// NewNotificationService creates the service. stats may be nil.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, stats StatsInvalidator) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     nopLogger(logger),
		stats:      stats,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventAssetCheckedOut, n.handleCustodyChange)
	n.dispatcher.Subscribe(events.EventAssetCheckedIn, n.handleCustodyChange)
	n.dispatcher.Subscribe(events.EventAssetReportedLost, n.handleAssetLost)
	n.dispatcher.Subscribe(events.EventReturnExtended, n.handleCustodyChange)
	n.dispatcher.Subscribe(events.EventRegistryChanged, n.handleRegistryChanged)
}

func (n *NotificationService) handleCustodyChange(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("event_id", event.ID),
		zap.String("transaction_number", event.TransactionNumber),
		zap.String("actor_id", event.Actor.UserID),
		zap.Any("payload", event.Payload))
	return n.invalidate(ctx)
}

func (n *NotificationService) handleAssetLost(ctx context.Context, event events.Event) error {
	n.logger.Warn(string(event.Type),
		zap.String("event_id", event.ID),
		zap.String("transaction_number", event.TransactionNumber),
		zap.String("actor_id", event.Actor.UserID),
		zap.Any("payload", event.Payload))
	return n.invalidate(ctx)
}

func (n *NotificationService) handleRegistryChanged(ctx context.Context, event events.Event) error {
	n.logger.Debug(string(event.Type),
		zap.String("actor_id", event.Actor.UserID),
		zap.Any("payload", event.Payload))
	return n.invalidate(ctx)
}

func (n *NotificationService) invalidate(ctx context.Context) error {
	if n.stats == nil {
		return nil
	}
	return n.stats.InvalidateStats(ctx)
}
