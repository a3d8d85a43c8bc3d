package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"intake-service/internal/models"
)

// Verifier checks a human-verification token
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (*models.VerificationResult, error)
}

// RecaptchaConfig configures the siteverify client
type RecaptchaConfig struct {
	SecretKey string
	VerifyURL string
	Timeout   time.Duration
}

// RecaptchaVerifier verifies tokens against Google reCAPTCHA siteverify.
// A rejected token is a normal result; only transport and decode failures count against the breaker.
type RecaptchaVerifier struct {
	secret     string
	verifyURL  string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Entry
}

// NewRecaptchaVerifier creates a verifier with its own circuit breaker
func NewRecaptchaVerifier(cfg RecaptchaConfig, logger *logrus.Logger) *RecaptchaVerifier {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	entry := logger.WithField("component", "recaptcha")

	settings := gobreaker.Settings{
		Name:        "recaptcha-siteverify",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5 ||
				(counts.Requests >= 10 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			entry.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from":            from.String(),
				"to":              to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &RecaptchaVerifier{
		secret:     cfg.SecretKey,
		verifyURL:  cfg.VerifyURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    gobreaker.NewCircuitBreaker(settings),
		logger:     entry,
	}
}

// Verify makes exactly one siteverify call for the token
func (v *RecaptchaVerifier) Verify(ctx context.Context, token, remoteIP string) (*models.VerificationResult, error) {
	if v.secret == "" {
		return nil, ErrMissingSecret
	}

	out, err := v.breaker.Execute(func() (interface{}, error) {
		return v.post(ctx, token, remoteIP)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return nil, err
	}

	result := out.(*models.VerificationResult)
	if !result.Success {
		v.logger.WithField("error_codes", result.ErrorCodes).Info("Token rejected")
	}
	return result, nil
}

func (v *RecaptchaVerifier) post(ctx context.Context, token, remoteIP string) (*models.VerificationResult, error) {
	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("siteverify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d", ErrVerifyResponse, resp.StatusCode)
	}

	var result models.VerificationResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerifyResponse, err)
	}
	return &result, nil
}

// State reports the breaker state for readiness checks
func (v *RecaptchaVerifier) State() string {
	return v.breaker.State().String()
}
