package service

import (
	"context"

	"enrollment-service/internal/models"
	"enrollment-service/internal/util"

	"go.uber.org/zap"
)

// runCheckoutSaga drives the gateway steps for a Pending enrollment:
// authenticate, register the order, then request the payment key.
// Each step applies its own timeout and retry policy inside the gateway client.
func (s *PaymentService) runCheckoutSaga(
	ctx context.Context,
	course *models.Course,
	user *models.User,
	enrollment *models.Enrollment,
) (*models.PaymentSession, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.CheckoutSaga")
	defer span.End()

	session := &models.PaymentSession{}

	token, err := s.gateway.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	session.AuthToken = token

	order, err := s.gateway.RegisterOrder(ctx, token, course, enrollment.ID)
	if err != nil {
		return nil, err
	}
	session.ProviderOrderID = order.ID
	session.MerchantOrderID = order.MerchantOrderID

	// The gateway order exists from here on, so it is recorded before the key step.
	payment := &models.Payment{
		EnrollmentID:    enrollment.ID,
		ProviderOrderID: order.ID,
		MerchantOrderID: order.MerchantOrderID,
		AmountCents:     order.AmountCents,
		Currency:        order.Currency,
		Status:          models.PaymentStatusPending,
	}
	if err := s.store.CreatePayment(ctx, payment); err != nil {
		s.logger.Error("Failed to record payment",
			zap.Int64("enrollment_id", enrollment.ID),
			zap.String("provider_order_id", order.ID),
			zap.Error(err))
	}

	key, err := s.gateway.CreatePaymentKey(ctx, token, order.ID, course, user)
	if err != nil {
		return nil, err
	}
	session.PaymentKey = key

	s.logger.Info("Checkout ready",
		zap.Int64("enrollment_id", enrollment.ID),
		zap.String("merchant_order_id", session.MerchantOrderID),
		zap.String("provider_order_id", session.ProviderOrderID))

	return session, nil
}
