package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"intake-service/internal/providers"
)

// ConnectionChecker reports whether an optional dependency is connected
type ConnectionChecker interface {
	IsConnected() bool
}

// MailerChecker reports whether an email transport is configured
type MailerChecker interface {
	IsHealthy() bool
}

// ChainReporter lists the configured email providers in delivery order
type ChainReporter interface {
	GetProviderStatuses() []providers.ProviderStatus
}

// BreakerChecker exposes the verification circuit breaker state
type BreakerChecker interface {
	State() string
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	serviceName string
	redis       *redis.Client
	nats        ConnectionChecker
	mailer      MailerChecker
	verifier    BreakerChecker
}

// NewHealthHandler creates a new health handler. Any dependency may be nil.
func NewHealthHandler(serviceName string, redisClient *redis.Client, nats ConnectionChecker, mailer MailerChecker, verifier BreakerChecker) *HealthHandler {
	return &HealthHandler{
		serviceName: serviceName,
		redis:       redisClient,
		nats:        nats,
		mailer:      mailer,
		verifier:    verifier,
	}
}

// Health returns basic health status
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.serviceName,
	})
}

// Livez returns liveness status
func (h *HealthHandler) Livez(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}

// Readyz returns readiness status.
// Redis and the mail chain gate readiness; NATS and the breaker are informational.
func (h *HealthHandler) Readyz(c *gin.Context) {
	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	if h.mailer != nil {
		if h.mailer.IsHealthy() {
			checks["email"] = "configured"
		} else {
			checks["email"] = "no providers"
			status = "not ready"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	if chain, ok := h.mailer.(ChainReporter); ok {
		statuses := chain.GetProviderStatuses()
		names := make([]string, len(statuses))
		for i, st := range statuses {
			names[i] = st.Name
		}
		checks["email_chain"] = strings.Join(names, "->")
	}

	if h.redis != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = "error: " + err.Error()
			status = "not ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["redis"] = "connected"
		}
	}

	if h.nats != nil {
		if h.nats.IsConnected() {
			checks["nats"] = "connected"
		} else {
			checks["nats"] = "disconnected"
		}
	}

	if h.verifier != nil {
		checks["captcha_breaker"] = h.verifier.State()
	}

	c.JSON(httpStatus, gin.H{
		"status": status,
		"checks": checks,
	})
}
