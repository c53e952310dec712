package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/auth-gateway/internal/events"
)

// AuditService writes token lifecycle events to the audit log.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger) *AuditService {
	return &AuditService{
		dispatcher: dispatcher,
		logger:     logger.Named("audit"),
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventTokenRevoked, a.handleTokenRevoked)
	a.dispatcher.Subscribe(events.EventTokenRevocationFailed, a.handleRevocationFailed)
	a.dispatcher.Subscribe(events.EventTokenRejected, a.handleTokenRejected)
}

func (a *AuditService) handleTokenRevoked(_ context.Context, event events.Event) error {
	a.logger.Info("TokenRevoked", eventFields(event)...)
	return nil
}

func (a *AuditService) handleRevocationFailed(_ context.Context, event events.Event) error {
	a.logger.Error("TokenRevocationFailed", eventFields(event)...)
	return nil
}

func (a *AuditService) handleTokenRejected(_ context.Context, event events.Event) error {
	a.logger.Info("TokenRejected", eventFields(event)...)
	return nil
}

func eventFields(event events.Event) []zap.Field {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("token_digest", event.TokenDigest),
		zap.Time("timestamp", event.Timestamp),
	}
	if event.Subject != "" {
		fields = append(fields, zap.String("subject", event.Subject))
	}
	if event.UserID != nil {
		fields = append(fields, zap.Int64("user_id", *event.UserID))
	}
	if event.Payload != nil {
		fields = append(fields, zap.Any("payload", event.Payload))
	}
	return fields
}
