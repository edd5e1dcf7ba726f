package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-dispatch/internal/config"
	"github.com/spec-kit/ticket-dispatch/internal/events"
)

// WebhookQueue accepts events for asynchronous webhook delivery.
type WebhookQueue interface {
	Enqueue(event events.Event) bool
}

// NotificationService logs dispatch events and forwards them to the webhook.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
	webhook    WebhookQueue
}

// NewNotificationService creates the service. webhook may be nil.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig, webhook WebhookQueue) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
		webhook:    webhook,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
	n.dispatcher.Subscribe(events.EventTicketAssignmentFailed, n.handleTicketAssignmentFailed)
	n.dispatcher.Subscribe(events.EventMissionAnalyzed, n.handleMissionAnalyzed)
	n.dispatcher.Subscribe(events.EventMissionAssignmentCompleted, n.handleMissionAssignmentCompleted)
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketAssigned", zap.String("mission_id", event.MissionID), zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	n.forward(event)
	return nil
}

func (n *NotificationService) handleTicketAssignmentFailed(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketAssignmentFailed", zap.String("mission_id", event.MissionID), zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	n.forward(event)
	return nil
}

func (n *NotificationService) handleMissionAnalyzed(ctx context.Context, event events.Event) error {
	n.logger.Info("MissionAnalyzed", zap.String("mission_id", event.MissionID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleMissionAssignmentCompleted(ctx context.Context, event events.Event) error {
	n.logger.Info("MissionAssignmentCompleted", zap.String("mission_id", event.MissionID), zap.Any("payload", event.Payload))
	n.forward(event)
	return nil
}

func (n *NotificationService) forward(event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" || n.webhook == nil {
		return
	}
	if !n.webhook.Enqueue(event) {
		n.logger.Warn("webhook queue full; event dropped",
			zap.String("event_type", string(event.Type)),
			zap.String("event_id", event.ID))
	}
}
