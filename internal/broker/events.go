package broker

import (
	"context"
	"fmt"
	"time"

	"enrollment-service/internal/models"

	"github.com/google/uuid"
)

// EventWriter writes a keyed event to the event bus
type EventWriter interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing enrollment lifecycle events
type EventPublisher struct {
	writer EventWriter
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(writer EventWriter) *EventPublisher {
	return &EventPublisher{writer: writer}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

func enrollmentKey(enrollmentID int64) string {
	return fmt.Sprintf("enrollment-%d", enrollmentID)
}

// PublishEnrollmentCreated publishes EnrollmentCreated event
func (ep *EventPublisher) PublishEnrollmentCreated(ctx context.Context, e *models.Enrollment, free bool) error {
	event := &models.EnrollmentCreatedEvent{
		BaseEvent:    newBaseEvent(models.EventTypeEnrollmentCreated),
		EnrollmentID: e.ID,
		StudentID:    e.StudentID,
		CourseID:     e.CourseID,
		Free:         free,
	}
	return ep.writer.PublishEvent(ctx, enrollmentKey(e.ID), event)
}

// PublishEnrollmentPaid publishes EnrollmentPaid event
func (ep *EventPublisher) PublishEnrollmentPaid(ctx context.Context, e *models.Enrollment, transactionID string) error {
	event := &models.EnrollmentPaidEvent{
		BaseEvent:     newBaseEvent(models.EventTypeEnrollmentPaid),
		EnrollmentID:  e.ID,
		StudentID:     e.StudentID,
		CourseID:      e.CourseID,
		TransactionID: transactionID,
	}
	return ep.writer.PublishEvent(ctx, enrollmentKey(e.ID), event)
}

// PublishEnrollmentCanceled publishes EnrollmentCanceled event
func (ep *EventPublisher) PublishEnrollmentCanceled(ctx context.Context, e *models.Enrollment, reason string) error {
	event := &models.EnrollmentCanceledEvent{
		BaseEvent:    newBaseEvent(models.EventTypeEnrollmentCanceled),
		EnrollmentID: e.ID,
		StudentID:    e.StudentID,
		CourseID:     e.CourseID,
		Reason:       reason,
	}
	return ep.writer.PublishEvent(ctx, enrollmentKey(e.ID), event)
}
