package service

import (
	"context"
	"time"

	"enrollment-service/internal/models"
	"enrollment-service/internal/paymob"
)

// EnrollmentStore persists enrollments and their payment trail
type EnrollmentStore interface {
	CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error
	GetEnrollmentByID(ctx context.Context, id int64) (*models.Enrollment, error)
	// TransitionEnrollmentStatus only moves Pending enrollments; false means nothing changed.
	TransitionEnrollmentStatus(ctx context.Context, id int64, status string) (bool, error)
	HasPaidEnrollment(ctx context.Context, studentID, courseID int64) (bool, error)
	CancelStalePendingEnrollments(ctx context.Context, cutoff time.Time) ([]models.Enrollment, error)
	CreatePayment(ctx context.Context, payment *models.Payment) error
	UpdatePaymentStatus(ctx context.Context, enrollmentID int64, status, providerTxID string) error
	GetPaymentByEnrollmentID(ctx context.Context, enrollmentID int64) (*models.Payment, error)
	SaveCallback(ctx context.Context, cb *models.PaymentCallback) error
}

// CatalogReader resolves the read-only course and student records.
// Lookups return nil without error when the record does not exist.
type CatalogReader interface {
	GetCourseByID(ctx context.Context, id int64) (*models.Course, error)
	GetStudentByID(ctx context.Context, id int64) (*models.Student, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// PaymentGateway is the hosted-checkout provider
type PaymentGateway interface {
	Authenticate(ctx context.Context) (string, error)
	RegisterOrder(ctx context.Context, token string, course *models.Course, enrollmentID int64) (*paymob.RegisteredOrder, error)
	CreatePaymentKey(ctx context.Context, token, providerOrderID string, course *models.Course, user *models.User) (string, error)
	CheckoutURL(paymentKey string) string
	HMACEnabled() bool
	VerifyCallbackHMAC(fields map[string]string, signature string) bool
}

// Coordinator provides cross-instance locks and idempotency keys
type Coordinator interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, lockKey, token string) error
	CheckIdempotencyKey(ctx context.Context, key string) (bool, error)
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// EventPublisher announces enrollment lifecycle changes
type EventPublisher interface {
	PublishEnrollmentCreated(ctx context.Context, e *models.Enrollment, free bool) error
	PublishEnrollmentPaid(ctx context.Context, e *models.Enrollment, transactionID string) error
	PublishEnrollmentCanceled(ctx context.Context, e *models.Enrollment, reason string) error
}
