package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"enrollment-service/internal/models"
	"enrollment-service/internal/paymob"
	"enrollment-service/internal/util"

	"go.uber.org/zap"
)

// Callback is the typed view of a gateway transaction notification
type Callback struct {
	Success         bool
	MerchantOrderID string
	TransactionID   string
	HMAC            string
	// Fields holds every value as a string, nested objects flattened with dotted keys
	Fields map[string]string
}

// ParseCallback decodes a callback payload. Any value other than boolean true or the
// string "true" in the success field counts as a failed payment.
func ParseCallback(payload []byte) (*Callback, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after payload", ErrMalformedCallback)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: payload is not an object", ErrMalformedCallback)
	}

	cb := &Callback{Fields: make(map[string]string, len(raw))}
	flatten("", raw, cb.Fields)

	switch v := raw["success"].(type) {
	case bool:
		cb.Success = v
	case string:
		cb.Success = strings.EqualFold(strings.TrimSpace(v), "true")
	}

	if v, ok := raw["merchant_order_id"].(string); ok {
		cb.MerchantOrderID = v
	}
	cb.TransactionID = cb.Fields["id"]
	cb.HMAC = cb.Fields["hmac"]

	return cb, nil
}

func flatten(prefix string, in map[string]interface{}, out map[string]string) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}

		switch val := v.(type) {
		case map[string]interface{}:
			flatten(key, val, out)
		case string:
			out[key] = val
		case json.Number:
			out[key] = val.String()
		case bool:
			if val {
				out[key] = "true"
			} else {
				out[key] = "false"
			}
		case nil:
			out[key] = ""
		default:
			b, _ := json.Marshal(val)
			out[key] = string(b)
		}
	}
}

// ValidateCallback reconciles a gateway callback into enrollment state.
// It returns false only when the callback could not be processed; a failed
// payment that was recorded still returns true.
func (s *PaymentService) ValidateCallback(ctx context.Context, payload []byte) bool {
	ctx, span := util.StartSpan(ctx, "PaymentService.ValidateCallback")
	defer span.End()

	cb, err := ParseCallback(payload)
	if err != nil {
		s.logger.Warn("Rejected callback", zap.Error(err))
		util.CallbacksTotal.WithLabelValues("malformed").Inc()
		return false
	}

	if s.gateway.HMACEnabled() && !s.gateway.VerifyCallbackHMAC(cb.Fields, cb.HMAC) {
		s.logger.Warn("Callback signature mismatch",
			zap.String("merchant_order_id", cb.MerchantOrderID),
			zap.String("transaction_id", cb.TransactionID))
		util.CallbacksTotal.WithLabelValues("invalid_signature").Inc()
		s.recordCallback(ctx, cb, payload, false)
		return false
	}

	enrollmentID, err := paymob.ParseMerchantOrderID(cb.MerchantOrderID)
	if err != nil {
		s.logger.Warn("Uncorrelated callback", zap.Error(err))
		util.CallbacksTotal.WithLabelValues("malformed").Inc()
		s.recordCallback(ctx, cb, payload, false)
		return false
	}

	dedupKey := "callback:" + cb.TransactionID
	if cb.TransactionID != "" {
		seen, err := s.coordinator.CheckIdempotencyKey(ctx, dedupKey)
		if err != nil {
			s.logger.Warn("Callback dedup check failed", zap.Error(err))
		} else if seen {
			s.logger.Info("Duplicate callback ignored",
				zap.Int64("enrollment_id", enrollmentID),
				zap.String("transaction_id", cb.TransactionID))
			util.CallbacksTotal.WithLabelValues("duplicate").Inc()
			return true
		}
	}

	enrollment, err := s.store.GetEnrollmentByID(ctx, enrollmentID)
	if err != nil {
		s.logger.Error("Failed to load enrollment for callback",
			zap.Int64("enrollment_id", enrollmentID),
			zap.Error(err))
		util.CallbacksTotal.WithLabelValues("error").Inc()
		return false
	}
	if enrollment == nil {
		s.logger.Warn("Callback for unknown enrollment", zap.Int64("enrollment_id", enrollmentID))
		util.CallbacksTotal.WithLabelValues("unknown_enrollment").Inc()
		s.recordCallback(ctx, cb, payload, false)
		return false
	}

	target := models.EnrollmentStatusCanceled
	paymentStatus := models.PaymentStatusFailed
	if cb.Success {
		target = models.EnrollmentStatusPaid
		paymentStatus = models.PaymentStatusSuccess
	}

	moved, err := s.store.TransitionEnrollmentStatus(ctx, enrollment.ID, target)
	if err != nil {
		s.logger.Error("Failed to transition enrollment",
			zap.Int64("enrollment_id", enrollment.ID),
			zap.String("target", target),
			zap.Error(err))
		util.CallbacksTotal.WithLabelValues("error").Inc()
		return false
	}

	if moved {
		enrollment.Status = target
		s.afterTransition(ctx, enrollment, cb, paymentStatus)
		util.CallbacksTotal.WithLabelValues(strings.ToLower(target)).Inc()
	} else if cb.Success && enrollment.Status != models.EnrollmentStatusPaid {
		s.recordCaptureAfterCancel(ctx, enrollment, cb)
		util.CallbacksTotal.WithLabelValues("captured_after_cancel").Inc()
	} else {
		// Terminal enrollments never move again.
		s.logger.Info("Callback for settled enrollment",
			zap.Int64("enrollment_id", enrollment.ID),
			zap.String("status", enrollment.Status),
			zap.Bool("success", cb.Success))
		util.CallbacksTotal.WithLabelValues("noop").Inc()
	}

	s.recordCallback(ctx, cb, payload, true)

	if cb.TransactionID != "" {
		if err := s.coordinator.SetIdempotencyKey(ctx, dedupKey, enrollment.ID, s.opts.CallbackDedupTTL); err != nil {
			s.logger.Warn("Failed to store callback dedup key", zap.Error(err))
		}
	}

	return true
}

func (s *PaymentService) afterTransition(ctx context.Context, enrollment *models.Enrollment, cb *Callback, paymentStatus string) {
	if err := s.store.UpdatePaymentStatus(ctx, enrollment.ID, paymentStatus, cb.TransactionID); err != nil {
		s.logger.Error("Failed to update payment status",
			zap.Int64("enrollment_id", enrollment.ID),
			zap.Error(err))
	}

	if enrollment.Status == models.EnrollmentStatusPaid {
		util.EnrollmentsPaidTotal.Inc()
		if err := s.publisher.PublishEnrollmentPaid(ctx, enrollment, cb.TransactionID); err != nil {
			s.logger.Error("Failed to publish EnrollmentPaid event", zap.Error(err))
		}
		s.logger.Info("Enrollment paid",
			zap.Int64("enrollment_id", enrollment.ID),
			zap.String("transaction_id", cb.TransactionID))
		return
	}

	util.EnrollmentsCanceledTotal.WithLabelValues("payment_failed").Inc()
	if err := s.publisher.PublishEnrollmentCanceled(ctx, enrollment, "payment_failed"); err != nil {
		s.logger.Error("Failed to publish EnrollmentCanceled event", zap.Error(err))
	}
	s.logger.Info("Enrollment canceled",
		zap.Int64("enrollment_id", enrollment.ID),
		zap.String("transaction_id", cb.TransactionID))
}

// recordCaptureAfterCancel keeps the captured transaction on the payment record of a
// canceled enrollment. The enrollment stays Canceled; the money needs a refund or manual
// enrollment.
func (s *PaymentService) recordCaptureAfterCancel(ctx context.Context, enrollment *models.Enrollment, cb *Callback) {
	util.CapturesAfterCancelTotal.Inc()

	fields := []zap.Field{
		zap.Int64("enrollment_id", enrollment.ID),
		zap.String("status", enrollment.Status),
		zap.String("transaction_id", cb.TransactionID),
	}
	previous, err := s.store.GetPaymentByEnrollmentID(ctx, enrollment.ID)
	if err != nil {
		fields = append(fields, zap.NamedError("lookup_error", err))
	} else if previous != nil {
		fields = append(fields,
			zap.String("previous_payment_status", previous.Status),
			zap.String("previous_transaction_id", previous.ProviderTxID))
	}
	s.logger.Error("Payment captured for canceled enrollment, needs reconciliation", fields...)

	if err := s.store.UpdatePaymentStatus(ctx, enrollment.ID, models.PaymentStatusSuccess, cb.TransactionID); err != nil {
		s.logger.Error("Failed to record captured payment",
			zap.Int64("enrollment_id", enrollment.ID),
			zap.Error(err))
	}
}

// recordCallback appends to the callback audit log; failures are logged only
func (s *PaymentService) recordCallback(ctx context.Context, cb *Callback, payload []byte, processed bool) {
	record := &models.PaymentCallback{
		MerchantOrderID: cb.MerchantOrderID,
		TransactionID:   cb.TransactionID,
		Success:         cb.Success,
		Processed:       processed,
		Payload:         json.RawMessage(payload),
	}
	if err := s.store.SaveCallback(ctx, record); err != nil {
		s.logger.Error("Failed to record callback",
			zap.String("merchant_order_id", cb.MerchantOrderID),
			zap.Error(err))
	}
}

// HandleCallback serializes the callback query parameters and reconciles them
func (s *PaymentService) HandleCallback(ctx context.Context, query map[string]string) bool {
	payload, err := json.Marshal(query)
	if err != nil {
		s.logger.Error("Failed to serialize callback query", zap.Error(err))
		return false
	}
	return s.ValidateCallback(ctx, payload)
}
