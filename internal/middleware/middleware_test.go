package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intake-service/internal/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextRequestID))
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
	assert.Equal(t, w.Header().Get(HeaderRequestID), w.Body.String())
}

func TestRequestID_Propagates(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	router.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get(HeaderRequestID))
}

func TestRecovery_ReturnsGenericError(t *testing.T) {
	router := gin.New()
	router.Use(Recovery(quietLogger()))
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/panic", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Something went wrong. Please try again."}`, w.Body.String())
}

func TestCORS_Preflight(t *testing.T) {
	router := gin.New()
	router.Use(CORS([]string{"https://dharmadental.in"}))
	router.POST("/api/contact", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodOptions, "/api/contact", nil)
	req.Header.Set("Origin", "https://dharmadental.in")
	req.Header.Set("Access-Control-Request-Method", "POST")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://dharmadental.in", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSubmissionRateLimiter_LocalBucket(t *testing.T) {
	r := NewSubmissionRateLimiter(nil, SubmissionRateLimitConfig{PerMinute: 1, Burst: 2}, nil, quietLogger())

	assert.True(t, r.Allow(context.Background(), "203.0.113.7"))
	assert.True(t, r.Allow(context.Background(), "203.0.113.7"))
	assert.False(t, r.Allow(context.Background(), "203.0.113.7"))
	assert.True(t, r.Allow(context.Background(), "198.51.100.1"))
}

func TestSubmissionRateLimiter_Sweep(t *testing.T) {
	r := NewSubmissionRateLimiter(nil, SubmissionRateLimitConfig{PerMinute: 5, Burst: 5}, nil, quietLogger())
	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	r.Allow(context.Background(), "203.0.113.7")
	now = now.Add(20 * time.Minute)
	r.Allow(context.Background(), "198.51.100.1")

	assert.Equal(t, 1, r.Sweep(10*time.Minute))
}

func TestSubmissionRateLimiter_Middleware(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	limiter := NewSubmissionRateLimiter(nil, SubmissionRateLimitConfig{PerMinute: 1, Burst: 1}, m, quietLogger())

	router := gin.New()
	router.POST("/api/contact", limiter.Middleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodPost, "/api/contact", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
		if w.Code == http.StatusTooManyRequests {
			assert.JSONEq(t, `{"error":"Too many requests. Please try again later."}`, w.Body.String())
			assert.Equal(t, "60", w.Header().Get("Retry-After"))
		}
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RateLimited.WithLabelValues("/api/contact")))
}

func TestSubmissionRateLimiter_IgnoresForwardedForFromUntrustedClient(t *testing.T) {
	limiter := NewSubmissionRateLimiter(nil, SubmissionRateLimitConfig{PerMinute: 1, Burst: 1}, nil, quietLogger())

	router := gin.New()
	require.NoError(t, router.SetTrustedProxies(nil))
	router.POST("/api/contact", limiter.Middleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ip": c.ClientIP()})
	})

	codes := make([]int, 0, 2)
	for _, forwarded := range []string{"198.51.100.1", "198.51.100.2"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodPost, "/api/contact", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		req.Header.Set("X-Forwarded-For", forwarded)
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
		if w.Code == http.StatusOK {
			assert.JSONEq(t, `{"ip":"203.0.113.7"}`, w.Body.String())
		}
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestSubmissionRateLimiter_TrustedProxyForwardsClientIP(t *testing.T) {
	limiter := NewSubmissionRateLimiter(nil, SubmissionRateLimitConfig{PerMinute: 1, Burst: 1}, nil, quietLogger())

	router := gin.New()
	require.NoError(t, router.SetTrustedProxies([]string{"10.0.0.0/8"}))
	router.POST("/api/contact", limiter.Middleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ip": c.ClientIP()})
	})

	for _, forwarded := range []string{"198.51.100.1", "198.51.100.2"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodPost, "/api/contact", nil)
		req.RemoteAddr = "10.1.2.3:5555"
		req.Header.Set("X-Forwarded-For", forwarded)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"ip":"`+forwarded+`"}`, w.Body.String())
	}
}
