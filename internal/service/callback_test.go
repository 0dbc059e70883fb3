package service

import (
	"context"
	"testing"

	"enrollment-service/internal/models"
	"enrollment-service/internal/util"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func pendingFixture() *fixture {
	f := newFixture()
	f.store.put(models.Enrollment{ID: 42, StudentID: 3, CourseID: 7, Status: models.EnrollmentStatusPending})
	f.store.payments[42] = &models.Payment{EnrollmentID: 42, Status: models.PaymentStatusPending}
	return f
}

func TestParseCallbackSuccessFlag(t *testing.T) {
	tests := []struct {
		payload string
		want    bool
	}{
		{`{"success": true}`, true},
		{`{"success": "true"}`, true},
		{`{"success": " TRUE "}`, true},
		{`{"success": false}`, false},
		{`{"success": "false"}`, false},
		{`{"success": "yes"}`, false},
		{`{"success": 1}`, false},
		{`{}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			cb, err := ParseCallback([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cb.Success)
		})
	}
}

func TestParseCallbackFlattensFields(t *testing.T) {
	cb, err := ParseCallback([]byte(`{"id": 9001, "merchant_order_id": "ENROLL_42_7", "source_data": {"pan": "2346"}, "hmac": "abc", "pending": false}`))

	require.NoError(t, err)
	assert.Equal(t, "9001", cb.TransactionID)
	assert.Equal(t, "ENROLL_42_7", cb.MerchantOrderID)
	assert.Equal(t, "abc", cb.HMAC)
	assert.Equal(t, "2346", cb.Fields["source_data.pan"])
	assert.Equal(t, "false", cb.Fields["pending"])
}

func TestParseCallbackRejectsNonObject(t *testing.T) {
	for _, payload := range []string{`not json`, `[1,2]`, `null`, `"ENROLL_42_7"`, `{"success": "true"} }}garbage`, `{} {}`} {
		_, err := ParseCallback([]byte(payload))
		assert.ErrorIs(t, err, ErrMalformedCallback, payload)
	}
}

func TestValidateCallbackMarksPaid(t *testing.T) {
	f := pendingFixture()

	ok := f.svc.ValidateCallback(context.Background(), []byte(`{"merchant_order_id": "ENROLL_42_7", "success": "true", "id": "tx-1"}`))

	assert.True(t, ok)
	assert.Equal(t, models.EnrollmentStatusPaid, f.store.status(42))
	assert.Equal(t, models.PaymentStatusSuccess, f.store.payments[42].Status)
	assert.Equal(t, "tx-1", f.store.payments[42].ProviderTxID)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, models.EventTypeEnrollmentPaid, f.publisher.events[0].kind)
	require.Len(t, f.store.callbacks, 1)
	assert.True(t, f.store.callbacks[0].Processed)
}

func TestValidateCallbackMarksCanceled(t *testing.T) {
	f := pendingFixture()

	ok := f.svc.ValidateCallback(context.Background(), []byte(`{"merchant_order_id": "ENROLL_42_7", "success": "false"}`))

	assert.True(t, ok)
	assert.Equal(t, models.EnrollmentStatusCanceled, f.store.status(42))
	assert.Equal(t, models.PaymentStatusFailed, f.store.payments[42].Status)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, "payment_failed", f.publisher.events[0].detail)
}

func TestValidateCallbackMalformed(t *testing.T) {
	payloads := []string{
		`{"success": "true"}`,
		`{"merchant_order_id": "ENROLL_abc_7", "success": "true"}`,
		`{"merchant_order_id": "ENROLL_42", "success": "true"}`,
		`{"merchant_order_id": 42, "success": "true"}`,
		`garbage`,
	}

	for _, payload := range payloads {
		t.Run(payload, func(t *testing.T) {
			f := pendingFixture()

			assert.False(t, f.svc.ValidateCallback(context.Background(), []byte(payload)))
			assert.Equal(t, models.EnrollmentStatusPending, f.store.status(42))
			assert.Empty(t, f.publisher.events)
		})
	}
}

func TestValidateCallbackUnknownEnrollment(t *testing.T) {
	f := pendingFixture()

	ok := f.svc.ValidateCallback(context.Background(), []byte(`{"merchant_order_id": "ENROLL_77_7", "success": "true"}`))

	assert.False(t, ok)
	assert.Equal(t, models.EnrollmentStatusPending, f.store.status(42))
	assert.Len(t, f.store.enrollments, 1)
	assert.Empty(t, f.publisher.events)
}

func TestValidateCallbackIdempotent(t *testing.T) {
	f := pendingFixture()
	payload := []byte(`{"merchant_order_id": "ENROLL_42_7", "success": "true"}`)

	assert.True(t, f.svc.ValidateCallback(context.Background(), payload))
	assert.True(t, f.svc.ValidateCallback(context.Background(), payload))

	assert.Equal(t, models.EnrollmentStatusPaid, f.store.status(42))
	assert.Len(t, f.publisher.events, 1)
}

func TestValidateCallbackNeverReverses(t *testing.T) {
	f := pendingFixture()

	require.True(t, f.svc.ValidateCallback(context.Background(), []byte(`{"merchant_order_id": "ENROLL_42_7", "success": "true", "id": "1"}`)))
	assert.True(t, f.svc.ValidateCallback(context.Background(), []byte(`{"merchant_order_id": "ENROLL_42_7", "success": "false", "id": "2"}`)))

	assert.Equal(t, models.EnrollmentStatusPaid, f.store.status(42))
	assert.Equal(t, models.PaymentStatusSuccess, f.store.payments[42].Status)
}

func TestValidateCallbackRejectsTrailingData(t *testing.T) {
	f := pendingFixture()

	ok := f.svc.ValidateCallback(context.Background(), []byte(`{"merchant_order_id": "ENROLL_42_7", "success": "true"} }}garbage`))

	assert.False(t, ok)
	assert.Equal(t, models.EnrollmentStatusPending, f.store.status(42))
	assert.Empty(t, f.store.callbacks)
}

func TestValidateCallbackCaptureAfterCancel(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	previous := util.GetLogger()
	util.SetLogger(zap.New(core))
	t.Cleanup(func() { util.SetLogger(previous) })

	f := pendingFixture()
	before := testutil.ToFloat64(util.CapturesAfterCancelTotal)

	require.True(t, f.svc.ValidateCallback(context.Background(), []byte(`{"merchant_order_id": "ENROLL_42_7", "success": "false", "id": "1"}`)))
	require.Equal(t, models.PaymentStatusFailed, f.store.payments[42].Status)

	ok := f.svc.ValidateCallback(context.Background(), []byte(`{"merchant_order_id": "ENROLL_42_7", "success": "true", "id": "2"}`))

	assert.True(t, ok)
	assert.Equal(t, models.EnrollmentStatusCanceled, f.store.status(42))
	assert.Equal(t, models.PaymentStatusSuccess, f.store.payments[42].Status)
	assert.Equal(t, "2", f.store.payments[42].ProviderTxID)
	assert.Equal(t, before+1, testutil.ToFloat64(util.CapturesAfterCancelTotal))

	entries := logs.FilterMessage("Payment captured for canceled enrollment, needs reconciliation").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "1", entries[0].ContextMap()["previous_transaction_id"])
	assert.Equal(t, models.PaymentStatusFailed, entries[0].ContextMap()["previous_payment_status"])
}

func TestValidateCallbackDuplicateTransaction(t *testing.T) {
	f := pendingFixture()
	payload := []byte(`{"merchant_order_id": "ENROLL_42_7", "success": "true", "id": "tx-9"}`)

	require.True(t, f.svc.ValidateCallback(context.Background(), payload))
	require.True(t, f.svc.ValidateCallback(context.Background(), payload))

	assert.Contains(t, f.coordinator.keys, "callback:tx-9")
	assert.Len(t, f.store.callbacks, 1, "duplicate is short-circuited before the audit log")
}

func TestValidateCallbackSignature(t *testing.T) {
	f := pendingFixture()
	f.gateway.hmacEnabled = true
	f.gateway.validSig = "good"

	assert.False(t, f.svc.ValidateCallback(context.Background(), []byte(`{"merchant_order_id": "ENROLL_42_7", "success": "true", "hmac": "bad"}`)))
	assert.Equal(t, models.EnrollmentStatusPending, f.store.status(42))

	assert.True(t, f.svc.ValidateCallback(context.Background(), []byte(`{"merchant_order_id": "ENROLL_42_7", "success": "true", "hmac": "good"}`)))
	assert.Equal(t, models.EnrollmentStatusPaid, f.store.status(42))
}

func TestHandleCallbackForwardsQuery(t *testing.T) {
	f := pendingFixture()

	ok := f.svc.HandleCallback(context.Background(), map[string]string{
		"merchant_order_id": "ENROLL_42_7",
		"success":           "true",
		"id":                "555",
	})

	assert.True(t, ok)
	assert.Equal(t, models.EnrollmentStatusPaid, f.store.status(42))
	assert.Equal(t, "555", f.store.payments[42].ProviderTxID)
}
