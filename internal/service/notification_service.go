package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/incident-service/internal/config"
	"github.com/spec-kit/incident-service/internal/events"
)

// NotificationService handles emitting notifications for incident events.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventIncidentCreated, n.handleIncidentCreated)
	n.dispatcher.Subscribe(events.EventIncidentDeduplicated, n.handleIncidentDeduplicated)
	n.dispatcher.Subscribe(events.EventIncidentBatchPartialFailure, n.handleBatchPartialFailure)
}

func (n *NotificationService) handleIncidentCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("IncidentCreated", zap.String("operator_id", event.Actor.OperatorID), zap.Any("payload", event.Payload))
	n.sendEmailNotificationStub(ctx, event)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

// Suppressed duplicates are only logged; stakeholders were told the first time.
func (n *NotificationService) handleIncidentDeduplicated(ctx context.Context, event events.Event) error {
	n.logger.Info("IncidentDeduplicated", zap.String("operator_id", event.Actor.OperatorID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleBatchPartialFailure(ctx context.Context, event events.Event) error {
	n.logger.Warn("IncidentBatchPartialFailure", zap.String("operator_id", event.Actor.OperatorID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) sendEmailNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)))
}
