package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/chartsync/chartsync-api/internal/models"
	"github.com/chartsync/chartsync-api/internal/repository"
)

type Event struct {
	Event    models.NotificationEvent
	Severity models.NotificationSeverity
	Title    string
	Message  string
	Metadata map[string]interface{}
}

type Service interface {
	Publish(ctx context.Context, evt Event) (models.Notification, error)
	NotifyRunStarted(ctx context.Context, runID string) error
	NotifyRunCompleted(ctx context.Context, runID string, status models.RunStatus, submitted int64, reason string) error
	ListRecent(ctx context.Context, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, notificationID string) (models.Notification, error)
}

type service struct {
	repo   repository.NotificationRepository
	logger zerolog.Logger
}

func NewService(repo repository.NotificationRepository, logger zerolog.Logger) Service {
	return &service{
		repo:   repo,
		logger: logger.With().Str("component", "notification_service").Logger(),
	}
}

func (s *service) Publish(ctx context.Context, evt Event) (models.Notification, error) {
	if evt.Event == "" {
		return models.Notification{}, fmt.Errorf("event type is required")
	}
	if evt.Severity == "" {
		evt.Severity = models.NotificationSeverityInfo
	}
	title := strings.TrimSpace(evt.Title)
	if title == "" {
		title = string(evt.Event)
	}
	notif, err := s.repo.Create(ctx, repository.CreateNotificationParams{
		Event:    evt.Event,
		Severity: evt.Severity,
		Title:    title,
		Message:  strings.TrimSpace(evt.Message),
		Metadata: evt.Metadata,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", string(evt.Event)).Msg("failed to persist notification")
		return models.Notification{}, err
	}
	return notif, nil
}

func (s *service) NotifyRunStarted(ctx context.Context, runID string) error {
	_, err := s.Publish(ctx, Event{
		Event:    models.NotificationEventRunStarted,
		Severity: models.NotificationSeverityInfo,
		Title:    "Migration run started",
		Message:  fmt.Sprintf("Run %s has started.", runID),
		Metadata: map[string]interface{}{"run_id": runID},
	})
	return err
}

func (s *service) NotifyRunCompleted(ctx context.Context, runID string, status models.RunStatus, submitted int64, reason string) error {
	evt := Event{
		Metadata: map[string]interface{}{"run_id": runID, "patients_submitted": submitted},
	}
	switch status {
	case models.RunStatusSucceeded:
		evt.Event = models.NotificationEventRunSucceeded
		evt.Severity = models.NotificationSeverityInfo
		evt.Title = "Migration run succeeded"
		evt.Message = fmt.Sprintf("Run %s completed: %d patients submitted.", runID, submitted)
	case models.RunStatusPartial:
		evt.Event = models.NotificationEventRunPartial
		evt.Severity = models.NotificationSeverityWarning
		evt.Title = "Migration run partially succeeded"
		evt.Message = fmt.Sprintf("Run %s completed with failures; failed records are available for download.", runID)
	default:
		evt.Event = models.NotificationEventRunFailed
		evt.Severity = models.NotificationSeverityError
		if strings.TrimSpace(reason) == "" {
			reason = "unknown error"
		}
		evt.Title = "Migration run failed"
		evt.Message = fmt.Sprintf("Run %s failed: %s", runID, reason)
		evt.Metadata["reason"] = reason
	}
	_, err := s.Publish(ctx, evt)
	return err
}

func (s *service) ListRecent(ctx context.Context, limit int) ([]models.Notification, error) {
	return s.repo.ListRecent(ctx, limit)
}

func (s *service) MarkRead(ctx context.Context, notificationID string) (models.Notification, error) {
	return s.repo.MarkRead(ctx, notificationID)
}
