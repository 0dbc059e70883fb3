package models

import "time"

// Event types
const (
	EventTypeEnrollmentCreated  = "ENROLLMENT_CREATED"
	EventTypeEnrollmentPaid     = "ENROLLMENT_PAID"
	EventTypeEnrollmentCanceled = "ENROLLMENT_CANCELED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// EnrollmentCreatedEvent published when a purchase attempt starts
type EnrollmentCreatedEvent struct {
	BaseEvent
	EnrollmentID int64 `json:"enrollment_id"`
	StudentID    int64 `json:"student_id"`
	CourseID     int64 `json:"course_id"`
	Free         bool  `json:"free"`
}

// EnrollmentPaidEvent published when an enrollment becomes Paid
type EnrollmentPaidEvent struct {
	BaseEvent
	EnrollmentID  int64  `json:"enrollment_id"`
	StudentID     int64  `json:"student_id"`
	CourseID      int64  `json:"course_id"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// EnrollmentCanceledEvent published when an enrollment becomes Canceled
type EnrollmentCanceledEvent struct {
	BaseEvent
	EnrollmentID int64  `json:"enrollment_id"`
	StudentID    int64  `json:"student_id"`
	CourseID     int64  `json:"course_id"`
	Reason       string `json:"reason"`
}
