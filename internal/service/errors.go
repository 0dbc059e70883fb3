package service

import "errors"

var (
	// ErrNotFound is returned when a course, student, user or enrollment does not exist
	ErrNotFound = errors.New("not found")
	// ErrMalformedCallback is returned for callbacks that cannot be correlated or trusted
	ErrMalformedCallback = errors.New("malformed callback")
)

// Failure codes carried by PaymentResponse.Code
const (
	CodeNotFound        = "NOT_FOUND"
	CodeAlreadyEnrolled = "ALREADY_ENROLLED"
	CodeInProgress      = "IN_PROGRESS"
	CodeGatewayError    = "GATEWAY_ERROR"
	CodeInternal        = "INTERNAL"
)
