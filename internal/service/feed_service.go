package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/feed"
	"github.com/spec-kit/helpdesk/internal/observability"
)

// FeedService relays ticket events to the feed broker for stream subscribers.
type FeedService struct {
	dispatcher events.Dispatcher
	broker     feed.Broker
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewFeedService creates the service.
func NewFeedService(dispatcher events.Dispatcher, broker feed.Broker, logger *zap.Logger, metrics *observability.Metrics) *FeedService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedService{
		dispatcher: dispatcher,
		broker:     broker,
		logger:     logger,
		metrics:    metrics,
	}
}

// RegisterHandlers subscribes to events.
func (f *FeedService) RegisterHandlers() {
	if f.dispatcher == nil {
		return
	}
	f.dispatcher.Subscribe(events.EventTicketCreated, f.handleTicketCreated)
	f.dispatcher.Subscribe(events.EventTicketMessageAdded, f.handleTicketMessageAdded)
	f.dispatcher.Subscribe(events.EventTicketStatusChanged, f.handleTicketStatusChanged)
}

func (f *FeedService) handleTicketCreated(ctx context.Context, event events.Event) error {
	f.logger.Info("TicketCreated", zap.String("ticket_id", event.TicketID), zap.String("actor_id", event.Actor.ID))
	update := baseUpdate(event)
	if payload, ok := event.Payload.(events.TicketCreatedPayload); ok {
		update.Status = payload.Status
	}
	return f.relay(ctx, event, update)
}

func (f *FeedService) handleTicketMessageAdded(ctx context.Context, event events.Event) error {
	f.logger.Info("TicketMessageAdded", zap.String("ticket_id", event.TicketID), zap.String("actor_id", event.Actor.ID))
	return f.relay(ctx, event, baseUpdate(event))
}

func (f *FeedService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	update := baseUpdate(event)
	if payload, ok := event.Payload.(events.TicketStatusChangedPayload); ok {
		update.Status = payload.NewStatus
		update.OldStatus = payload.OldStatus
	}
	f.logger.Info("TicketStatusChanged",
		zap.String("ticket_id", event.TicketID),
		zap.String("old_status", string(update.OldStatus)),
		zap.String("new_status", string(update.Status)))
	return f.relay(ctx, event, update)
}

func (f *FeedService) relay(ctx context.Context, event events.Event, update feed.Update) error {
	f.metrics.RecordTicketEvent(string(event.Type))
	if f.broker == nil {
		return nil
	}
	if err := f.broker.Publish(ctx, event.TicketID, update); err != nil {
		f.logger.Warn("feed publish failed", zap.String("ticket_id", event.TicketID), zap.Error(err))
		return err
	}
	return nil
}

func baseUpdate(event events.Event) feed.Update {
	return feed.Update{
		Type:       string(event.Type),
		TicketID:   event.TicketID,
		ActorID:    event.Actor.ID,
		OccurredAt: event.OccurredAt,
	}
}
