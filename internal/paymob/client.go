package paymob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"enrollment-service/internal/models"
	"enrollment-service/internal/util"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const (
	defaultStepTimeout  = 10 * time.Second
	defaultRetryBackoff = 200 * time.Millisecond
	maxResponseBytes    = 1 << 20
)

// Config holds gateway credentials and call policy
type Config struct {
	BaseURL          string
	APIKey           string
	IntegrationID    int
	IframeID         string
	Currency         string
	HMACSecret       string
	PaymentKeyExpiry int
	StepTimeout      time.Duration
	MaxRetries       uint64
	RetryBackoff     time.Duration
}

// Client talks to the Paymob Accept API
type Client struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// RegisteredOrder is the gateway order created for an enrollment
type RegisteredOrder struct {
	ID              string
	MerchantOrderID string
	AmountCents     int64
	Currency        string
}

type retryPolicy struct {
	onTransport   bool
	onServerError bool
}

// 429 is always retried: the request was rejected before processing.
func (p retryPolicy) shouldRetry(status int) bool {
	switch {
	case status == http.StatusTooManyRequests:
		return true
	case status == 0:
		return p.onTransport
	case status >= 500:
		return p.onServerError
	}
	return false
}

var (
	idempotentPolicy = retryPolicy{onTransport: true, onServerError: true}
	// Order registration is not idempotent: a lost response may still have created the order.
	orderPolicy = retryPolicy{}
)

// NewClient creates a new gateway client
func NewClient(cfg Config) *Client {
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = defaultStepTimeout
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.PaymentKeyExpiry <= 0 {
		cfg.PaymentKeyExpiry = 3600
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.StepTimeout},
		logger: util.GetLogger(),
	}
}

type authRequest struct {
	APIKey string `json:"api_key"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Authenticate exchanges the API key for an auth token
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	var resp tokenResponse
	if err := c.call(ctx, StepAuthenticate, "/auth/tokens", authRequest{APIKey: c.cfg.APIKey}, &resp, idempotentPolicy); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", &GatewayError{Step: StepAuthenticate, Err: errors.New("empty auth token in response")}
	}
	return resp.Token, nil
}

type orderItem struct {
	Name        string `json:"name"`
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
}

type orderRequest struct {
	AuthToken       string      `json:"auth_token"`
	DeliveryNeeded  string      `json:"delivery_needed"`
	AmountCents     int64       `json:"amount_cents"`
	Currency        string      `json:"currency"`
	MerchantOrderID string      `json:"merchant_order_id"`
	Items           []orderItem `json:"items"`
}

type orderResponse struct {
	ID int64 `json:"id"`
}

// RegisterOrder creates the gateway order tagged with the enrollment's merchant order id
func (c *Client) RegisterOrder(ctx context.Context, token string, course *models.Course, enrollmentID int64) (*RegisteredOrder, error) {
	amount := AmountCents(course.Price)
	merchantOrderID := MerchantOrderID(enrollmentID, course.ID)

	req := orderRequest{
		AuthToken:       token,
		DeliveryNeeded:  "false",
		AmountCents:     amount,
		Currency:        c.cfg.Currency,
		MerchantOrderID: merchantOrderID,
		Items: []orderItem{{
			Name:        course.Title,
			AmountCents: amount,
			Description: "Course Payment",
			Quantity:    1,
		}},
	}

	var resp orderResponse
	if err := c.call(ctx, StepRegisterOrder, "/ecommerce/orders", req, &resp, orderPolicy); err != nil {
		return nil, err
	}
	if resp.ID == 0 {
		return nil, &GatewayError{Step: StepRegisterOrder, Err: errors.New("missing order id in response")}
	}

	return &RegisteredOrder{
		ID:              strconv.FormatInt(resp.ID, 10),
		MerchantOrderID: merchantOrderID,
		AmountCents:     amount,
		Currency:        c.cfg.Currency,
	}, nil
}

type paymentKeyRequest struct {
	AuthToken     string      `json:"auth_token"`
	AmountCents   int64       `json:"amount_cents"`
	Expiration    int         `json:"expiration"`
	OrderID       string      `json:"order_id"`
	BillingData   billingData `json:"billing_data"`
	Currency      string      `json:"currency"`
	IntegrationID int         `json:"integration_id"`
}

// CreatePaymentKey requests the payment key used by the hosted checkout
func (c *Client) CreatePaymentKey(ctx context.Context, token, providerOrderID string, course *models.Course, user *models.User) (string, error) {
	req := paymentKeyRequest{
		AuthToken:     token,
		AmountCents:   AmountCents(course.Price),
		Expiration:    c.cfg.PaymentKeyExpiry,
		OrderID:       providerOrderID,
		BillingData:   billingFor(user),
		Currency:      c.cfg.Currency,
		IntegrationID: c.cfg.IntegrationID,
	}

	var resp tokenResponse
	if err := c.call(ctx, StepCreatePaymentKey, "/acceptance/payment_keys", req, &resp, idempotentPolicy); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", &GatewayError{Step: StepCreatePaymentKey, Err: errors.New("empty payment key in response")}
	}
	return resp.Token, nil
}

// CheckoutURL builds the hosted iframe URL for a payment key
func (c *Client) CheckoutURL(paymentKey string) string {
	return fmt.Sprintf("%s/acceptance/iframes/%s?payment_token=%s",
		c.cfg.BaseURL, c.cfg.IframeID, url.QueryEscape(paymentKey))
}

// call runs one saga step: a JSON POST under the step timeout with bounded retries
func (c *Client) call(ctx context.Context, step, path string, body, out interface{}, policy retryPolicy) error {
	ctx, span := util.StartSpan(ctx, "Paymob."+step)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.StepTimeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return &GatewayError{Step: step, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	start := time.Now()
	attempt := 0
	backoff := retry.WithMaxRetries(c.cfg.MaxRetries, retry.NewExponential(c.cfg.RetryBackoff))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		status, err := c.post(ctx, path, payload, out)
		if err == nil {
			return nil
		}

		gerr := &GatewayError{Step: step, StatusCode: status, Err: err}
		if ctx.Err() == nil && policy.shouldRetry(status) {
			util.GatewayRetriesTotal.WithLabelValues(step).Inc()
			c.logger.Warn("Gateway call failed, retrying",
				zap.String("step", step),
				zap.Int("attempt", attempt),
				zap.Int("status", status),
				zap.Error(err))
			return retry.RetryableError(gerr)
		}
		return gerr
	})

	outcome := "success"
	if err != nil {
		outcome = "error"
		util.GatewayErrorsTotal.WithLabelValues(step).Inc()
	}
	util.GatewayRequestDuration.WithLabelValues(step, outcome).Observe(time.Since(start).Seconds())

	if err == nil {
		return nil
	}

	var gerr *GatewayError
	if errors.As(err, &gerr) {
		return gerr
	}
	// Context expired between attempts
	return &GatewayError{Step: step, Err: err}
}

func (c *Client) post(ctx context.Context, path string, payload []byte, out interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(respBody)))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

// AmountCents converts a price to integer minor currency units
func AmountCents(price float64) int64 {
	return int64(math.Round(price * 100))
}
