package models

import (
	"encoding/json"
	"time"
)

// Course represents a purchasable course
type Course struct {
	ID     int64   `db:"id" json:"id"`
	Title  string  `db:"title" json:"title"`
	Price  float64 `db:"price" json:"price"`
	IsFree bool    `db:"is_free" json:"is_free"`
}

// Student represents the learner profile
type Student struct {
	ID     int64  `db:"id" json:"id"`
	UserID string `db:"user_id" json:"user_id"`
	Name   string `db:"name" json:"name"`
	Email  string `db:"email" json:"email"`
	Phone  string `db:"phone" json:"phone"`
}

// User represents the identity account behind a student
type User struct {
	ID          string `db:"id" json:"id"`
	FirstName   string `db:"first_name" json:"first_name"`
	LastName    string `db:"last_name" json:"last_name"`
	Email       string `db:"email" json:"email"`
	PhoneNumber string `db:"phone_number" json:"phone_number"`
}

// Enrollment links a student to a course purchase attempt
type Enrollment struct {
	ID                 int64     `db:"id" json:"id"`
	StudentID          int64     `db:"student_id" json:"student_id"`
	CourseID           int64     `db:"course_id" json:"course_id"`
	Status             string    `db:"status" json:"status"`
	ProgressPercentage int       `db:"progress_percentage" json:"progress_percentage"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// Payment tracks the gateway order behind a paid enrollment
type Payment struct {
	ID              int64     `db:"id" json:"id"`
	EnrollmentID    int64     `db:"enrollment_id" json:"enrollment_id"`
	ProviderOrderID string    `db:"provider_order_id" json:"provider_order_id"`
	MerchantOrderID string    `db:"merchant_order_id" json:"merchant_order_id"`
	AmountCents     int64     `db:"amount_cents" json:"amount_cents"`
	Currency        string    `db:"currency" json:"currency"`
	Status          string    `db:"status" json:"status"`
	ProviderTxID    string    `db:"provider_tx_id" json:"provider_tx_id,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// PaymentCallback is the audit record of a gateway notification
type PaymentCallback struct {
	ID              int64           `db:"id" json:"id"`
	MerchantOrderID string          `db:"merchant_order_id" json:"merchant_order_id"`
	TransactionID   string          `db:"transaction_id" json:"transaction_id"`
	Success         bool            `db:"success" json:"success"`
	Processed       bool            `db:"processed" json:"processed"`
	Payload         json.RawMessage `db:"payload" json:"payload"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// PaymentSession carries the intermediate gateway handles of one checkout.
// It is never persisted.
type PaymentSession struct {
	AuthToken       string
	ProviderOrderID string
	PaymentKey      string
	MerchantOrderID string
}

// Enrollment statuses
const (
	EnrollmentStatusPending  = "Pending"
	EnrollmentStatusPaid     = "Paid"
	EnrollmentStatusCanceled = "Canceled"
)

// Payment statuses
const (
	PaymentStatusPending = "PENDING"
	PaymentStatusSuccess = "SUCCESS"
	PaymentStatusFailed  = "FAILED"
)
