package paymob

import "fmt"

// Saga step names
const (
	StepAuthenticate     = "authenticate"
	StepRegisterOrder    = "register_order"
	StepCreatePaymentKey = "create_payment_key"
)

// GatewayError is returned by every failed gateway call.
// StatusCode is zero when no HTTP response was received.
type GatewayError struct {
	Step       string
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("paymob %s failed (status %d): %v", e.Step, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("paymob %s failed: %v", e.Step, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
