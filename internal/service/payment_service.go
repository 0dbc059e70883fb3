package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"enrollment-service/internal/models"
	"enrollment-service/internal/util"

	"go.uber.org/zap"
)

const lockReleaseTimeout = 2 * time.Second

// Options tunes the payment flow
type Options struct {
	// InitiationLockTTL bounds how long a crashed initiation can block a retry
	InitiationLockTTL time.Duration
	// CallbackDedupTTL is how long processed gateway transaction ids are remembered
	CallbackDedupTTL time.Duration
}

// PaymentService orchestrates course purchases and gateway callbacks
type PaymentService struct {
	store       EnrollmentStore
	catalog     CatalogReader
	gateway     PaymentGateway
	coordinator Coordinator
	publisher   EventPublisher
	opts        Options
	logger      *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	store EnrollmentStore,
	catalog CatalogReader,
	gateway PaymentGateway,
	coordinator Coordinator,
	publisher EventPublisher,
	opts Options,
) *PaymentService {
	if opts.InitiationLockTTL <= 0 {
		opts.InitiationLockTTL = time.Minute
	}
	if opts.CallbackDedupTTL <= 0 {
		opts.CallbackDedupTTL = 24 * time.Hour
	}

	return &PaymentService{
		store:       store,
		catalog:     catalog,
		gateway:     gateway,
		coordinator: coordinator,
		publisher:   publisher,
		opts:        opts,
		logger:      util.GetLogger(),
	}
}

// InitiatePaymentRequest represents a request to buy a course
type InitiatePaymentRequest struct {
	CourseID      int64  `json:"course_id" binding:"required"`
	StudentID     int64  `json:"student_id" binding:"required"`
	PaymentMethod string `json:"payment_method"`
}

// PaymentResponse is the outcome of a payment initiation
type PaymentResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	PaymentURL    string `json:"payment_url,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	EnrollmentID  int64  `json:"enrollment_id,omitempty"`
	Code          string `json:"code,omitempty"`
}

func failure(code, message string) *PaymentResponse {
	return &PaymentResponse{Success: false, Code: code, Message: message}
}

func errorFailure(code string, err error) *PaymentResponse {
	return failure(code, fmt.Sprintf("Error: %v", err))
}

// InitiatePayment starts a purchase. Failures are reported in the response, never as an error.
func (s *PaymentService) InitiatePayment(ctx context.Context, req *InitiatePaymentRequest) *PaymentResponse {
	ctx, span := util.StartSpan(ctx, "PaymentService.InitiatePayment")
	defer span.End()

	start := time.Now()
	resp := s.initiate(ctx, req)
	util.PaymentInitiationLatency.Observe(time.Since(start).Seconds())

	outcome := "success"
	if !resp.Success {
		outcome = strings.ToLower(resp.Code)
	}
	util.PaymentInitiationsTotal.WithLabelValues(outcome).Inc()

	return resp
}

func (s *PaymentService) initiate(ctx context.Context, req *InitiatePaymentRequest) *PaymentResponse {
	course, err := s.catalog.GetCourseByID(ctx, req.CourseID)
	if err != nil {
		return errorFailure(CodeInternal, err)
	}
	if course == nil {
		return failure(CodeNotFound, "Course not found")
	}

	student, err := s.catalog.GetStudentByID(ctx, req.StudentID)
	if err != nil {
		return errorFailure(CodeInternal, err)
	}
	if student == nil {
		return failure(CodeNotFound, "Student not found")
	}

	user, err := s.catalog.GetUserByID(ctx, student.UserID)
	if err != nil {
		return errorFailure(CodeInternal, err)
	}
	if user == nil {
		return failure(CodeNotFound, "User not found")
	}

	owned, err := s.store.HasPaidEnrollment(ctx, student.ID, course.ID)
	if err != nil {
		return errorFailure(CodeInternal, err)
	}
	if owned {
		return failure(CodeAlreadyEnrolled, "Student is already enrolled in this course")
	}

	lockKey := fmt.Sprintf("initiate:%d:%d", student.ID, course.ID)
	token, acquired, err := s.coordinator.AcquireLock(ctx, lockKey, s.opts.InitiationLockTTL)
	switch {
	case err != nil:
		// Unserialized initiations at worst leave extra Pending rows for the sweeper.
		util.InitiationLockErrorsTotal.Inc()
		s.logger.Warn("Initiation lock unavailable, continuing without it",
			zap.String("lock", lockKey),
			zap.Error(err))
	case !acquired:
		return failure(CodeInProgress, "A payment for this course is already in progress")
	default:
		defer s.releaseLock(ctx, lockKey, token)
	}

	enrollment := &models.Enrollment{
		StudentID:          student.ID,
		CourseID:           course.ID,
		Status:             models.EnrollmentStatusPending,
		ProgressPercentage: 0,
	}
	if err := s.store.CreateEnrollment(ctx, enrollment); err != nil {
		return errorFailure(CodeInternal, fmt.Errorf("failed to create enrollment: %w", err))
	}

	kind := "paid"
	if course.IsFree {
		kind = "free"
	}
	util.EnrollmentsCreatedTotal.WithLabelValues(kind).Inc()
	s.logger.Info("Enrollment created",
		zap.Int64("enrollment_id", enrollment.ID),
		zap.Int64("student_id", student.ID),
		zap.Int64("course_id", course.ID),
		zap.String("payment_method", req.PaymentMethod))

	if err := s.publisher.PublishEnrollmentCreated(ctx, enrollment, course.IsFree); err != nil {
		s.logger.Error("Failed to publish EnrollmentCreated event", zap.Error(err))
	}

	if course.IsFree {
		return s.enrollFree(ctx, enrollment)
	}

	session, err := s.runCheckoutSaga(ctx, course, user, enrollment)
	if err != nil {
		s.logger.Warn("Checkout saga failed",
			zap.Int64("enrollment_id", enrollment.ID),
			zap.Error(err))
		resp := errorFailure(CodeGatewayError, err)
		resp.EnrollmentID = enrollment.ID
		return resp
	}

	return &PaymentResponse{
		Success:       true,
		Message:       "Payment initiated successfully",
		PaymentURL:    s.gateway.CheckoutURL(session.PaymentKey),
		TransactionID: session.ProviderOrderID,
		EnrollmentID:  enrollment.ID,
	}
}

// enrollFree settles a free course without touching the gateway
func (s *PaymentService) enrollFree(ctx context.Context, enrollment *models.Enrollment) *PaymentResponse {
	moved, err := s.store.TransitionEnrollmentStatus(ctx, enrollment.ID, models.EnrollmentStatusPaid)
	if err != nil {
		resp := errorFailure(CodeInternal, err)
		resp.EnrollmentID = enrollment.ID
		return resp
	}

	if moved {
		enrollment.Status = models.EnrollmentStatusPaid
		util.EnrollmentsPaidTotal.Inc()
		if err := s.publisher.PublishEnrollmentPaid(ctx, enrollment, ""); err != nil {
			s.logger.Error("Failed to publish EnrollmentPaid event", zap.Error(err))
		}
	}

	return &PaymentResponse{
		Success:      true,
		Message:      "Course enrolled successfully (Free course)",
		EnrollmentID: enrollment.ID,
	}
}

func (s *PaymentService) releaseLock(ctx context.Context, lockKey, token string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lockReleaseTimeout)
	defer cancel()

	if err := s.coordinator.ReleaseLock(ctx, lockKey, token); err != nil {
		s.logger.Warn("Failed to release initiation lock",
			zap.String("lock", lockKey),
			zap.Error(err))
	}
}

// GetEnrollment retrieves an enrollment by ID
func (s *PaymentService) GetEnrollment(ctx context.Context, id int64) (*models.Enrollment, error) {
	enrollment, err := s.store.GetEnrollmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if enrollment == nil {
		return nil, fmt.Errorf("enrollment %d: %w", id, ErrNotFound)
	}
	return enrollment, nil
}

// CancelStaleEnrollments cancels Pending enrollments older than ttl
func (s *PaymentService) CancelStaleEnrollments(ctx context.Context, ttl time.Duration) (int, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.CancelStaleEnrollments")
	defer span.End()

	canceled, err := s.store.CancelStalePendingEnrollments(ctx, time.Now().Add(-ttl))
	if err != nil {
		return 0, err
	}

	for i := range canceled {
		enrollment := &canceled[i]
		util.EnrollmentsCanceledTotal.WithLabelValues("expired").Inc()

		if err := s.store.UpdatePaymentStatus(ctx, enrollment.ID, models.PaymentStatusFailed, ""); err != nil {
			s.logger.Error("Failed to fail payment of expired enrollment",
				zap.Int64("enrollment_id", enrollment.ID),
				zap.Error(err))
		}
		if err := s.publisher.PublishEnrollmentCanceled(ctx, enrollment, "expired"); err != nil {
			s.logger.Error("Failed to publish EnrollmentCanceled event", zap.Error(err))
		}
	}

	return len(canceled), nil
}
