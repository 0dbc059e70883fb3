package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"enrollment-service/internal/models"
	"enrollment-service/internal/service"
	"enrollment-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// PaymentAPI is the orchestrator surface the handlers call
type PaymentAPI interface {
	InitiatePayment(ctx context.Context, req *service.InitiatePaymentRequest) *service.PaymentResponse
	HandleCallback(ctx context.Context, query map[string]string) bool
	GetEnrollment(ctx context.Context, id int64) (*models.Enrollment, error)
}

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	payments            PaymentAPI
	callbackRedirectURL string
	dependencies        map[string]Pinger
}

// NewHandler creates a new HTTP handler
func NewHandler(payments PaymentAPI, callbackRedirectURL string, dependencies map[string]Pinger) *Handler {
	return &Handler{
		payments:            payments,
		callbackRedirectURL: callbackRedirectURL,
		dependencies:        dependencies,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/payments/initiate", h.initiatePayment)
		v1.GET("/payments/callback", h.paymentCallback)
		v1.GET("/enrollments/:id", h.getEnrollment)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, dep := range h.dependencies {
		if err := dep.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// initiatePayment starts a course purchase
func (h *Handler) initiatePayment(c *gin.Context) {
	var req service.InitiatePaymentRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp := h.payments.InitiatePayment(c.Request.Context(), &req)
	c.JSON(statusFor(resp), resp)
}

// paymentCallback reconciles the gateway redirect and sends the buyer back to the front end
func (h *Handler) paymentCallback(c *gin.Context) {
	query := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			query[key] = values[0]
		}
	}

	if !h.payments.HandleCallback(c.Request.Context(), query) {
		util.GetLogger().Warn("Callback rejected", zap.String("merchant_order_id", query["merchant_order_id"]))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Payment validation failed or was unsuccessful",
		})
		return
	}

	c.Redirect(http.StatusFound, h.callbackRedirectURL)
}

// getEnrollment handles get enrollment by ID
func (h *Handler) getEnrollment(c *gin.Context) {
	idStr := c.Param("id")
	enrollmentID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid enrollment ID",
		})
		return
	}

	enrollment, err := h.payments.GetEnrollment(c.Request.Context(), enrollmentID)
	if errors.Is(err, service.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Enrollment not found",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to get enrollment",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, enrollment)
}

func statusFor(resp *service.PaymentResponse) int {
	if resp.Success {
		return http.StatusOK
	}

	switch resp.Code {
	case service.CodeNotFound:
		return http.StatusNotFound
	case service.CodeAlreadyEnrolled, service.CodeInProgress:
		return http.StatusConflict
	case service.CodeGatewayError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
