package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"enrollment-service/internal/models"
)

const enrollmentColumns = "id, student_id, course_id, status, progress_percentage, created_at, updated_at"

// CreateEnrollment inserts a new enrollment and fills its generated fields
func (s *Store) CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	query := `
		INSERT INTO enrollments (student_id, course_id, status, progress_percentage)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, enrollment, query,
		enrollment.StudentID, enrollment.CourseID, enrollment.Status, enrollment.ProgressPercentage)
}

// GetEnrollmentByID retrieves an enrollment by ID, nil when absent
func (s *Store) GetEnrollmentByID(ctx context.Context, id int64) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := s.db.GetContext(ctx, &enrollment,
		"SELECT "+enrollmentColumns+" FROM enrollments WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// TransitionEnrollmentStatus moves a Pending enrollment to status.
// Returns false when the enrollment was not Pending anymore.
func (s *Store) TransitionEnrollmentStatus(ctx context.Context, id int64, status string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE enrollments SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		status, id, models.EnrollmentStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to update enrollment status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// HasPaidEnrollment reports whether the student already owns the course
func (s *Store) HasPaidEnrollment(ctx context.Context, studentID, courseID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS (SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 AND status = $3)",
		studentID, courseID, models.EnrollmentStatusPaid)
	return exists, err
}

// CancelStalePendingEnrollments cancels Pending enrollments created before cutoff
func (s *Store) CancelStalePendingEnrollments(ctx context.Context, cutoff time.Time) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	err := s.db.SelectContext(ctx, &enrollments, `
		UPDATE enrollments SET status = $1, updated_at = NOW()
		WHERE status = $2 AND created_at < $3
		RETURNING `+enrollmentColumns,
		models.EnrollmentStatusCanceled, models.EnrollmentStatusPending, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel stale enrollments: %w", err)
	}
	return enrollments, nil
}
