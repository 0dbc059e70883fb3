package store

import (
	"context"
	"database/sql"
	"errors"

	"enrollment-service/internal/models"
)

// CreatePayment records the gateway order of an enrollment
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (enrollment_id, provider_order_id, merchant_order_id, amount_cents, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, payment, query,
		payment.EnrollmentID, payment.ProviderOrderID, payment.MerchantOrderID,
		payment.AmountCents, payment.Currency, payment.Status)
}

// UpdatePaymentStatus updates the payment of an enrollment
func (s *Store) UpdatePaymentStatus(ctx context.Context, enrollmentID int64, status, providerTxID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE payments SET status = $1, provider_tx_id = $2, updated_at = NOW() WHERE enrollment_id = $3",
		status, providerTxID, enrollmentID)
	return err
}

// GetPaymentByEnrollmentID retrieves the payment of an enrollment, nil when absent
func (s *Store) GetPaymentByEnrollmentID(ctx context.Context, enrollmentID int64) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment, `
		SELECT id, enrollment_id, provider_order_id, merchant_order_id, amount_cents, currency,
		       status, provider_tx_id, created_at, updated_at
		FROM payments WHERE enrollment_id = $1`, enrollmentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// SaveCallback appends a gateway notification to the callback log
func (s *Store) SaveCallback(ctx context.Context, cb *models.PaymentCallback) error {
	query := `
		INSERT INTO payment_callbacks (merchant_order_id, transaction_id, success, processed, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, cb, query,
		cb.MerchantOrderID, cb.TransactionID, cb.Success, cb.Processed, []byte(cb.Payload))
}
