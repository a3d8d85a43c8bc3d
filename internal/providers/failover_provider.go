package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// FailoverEmailProvider sends through an ordered provider chain.
// With the zero FailoverConfig exactly one attempt is made against the first provider.
type FailoverEmailProvider struct {
	providers      []Provider
	enableFailover bool
	maxRetries     int
	retryDelay     time.Duration
	logger         *logrus.Entry
}

// FailoverConfig configures the failover behavior
type FailoverConfig struct {
	EnableFailover bool
	MaxRetries     int
	RetryDelay     time.Duration
}

// NewFailoverEmailProvider creates a new failover email provider.
// Providers are tried in order: first provider is primary, others are fallbacks.
func NewFailoverEmailProvider(providers []Provider, config *FailoverConfig, logger *logrus.Logger) *FailoverEmailProvider {
	if config == nil {
		config = &FailoverConfig{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	validProviders := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			validProviders = append(validProviders, p)
		}
	}

	return &FailoverEmailProvider{
		providers:      validProviders,
		enableFailover: config.EnableFailover,
		maxRetries:     config.MaxRetries,
		retryDelay:     config.RetryDelay,
		logger:         logger.WithField("component", "email_failover"),
	}
}

// Send sends an email, moving down the chain on failure when failover is enabled
func (f *FailoverEmailProvider) Send(ctx context.Context, message *Message) (*SendResult, error) {
	if len(f.providers) == 0 {
		return failed("Failover", ErrNoProviders)
	}

	startTime := time.Now()
	var lastError error
	var allErrors []string
	attempts := 0

	for i, provider := range f.providers {
		providerName := provider.GetName()
		log := f.logger.WithFields(logrus.Fields{
			"provider": providerName,
			"position": i + 1,
		})

		for attempt := 0; attempt <= f.maxRetries; attempt++ {
			if ctx.Err() != nil {
				return failed("Failover", ctx.Err())
			}
			if attempt > 0 {
				log.WithField("retry", attempt).Warn("Retrying email send")
				select {
				case <-time.After(f.retryDelay):
				case <-ctx.Done():
					return failed("Failover", ctx.Err())
				}
			}

			attempts++
			result, err := provider.Send(ctx, message)
			if err == nil && result != nil && result.Success {
				log.WithField("duration", time.Since(startTime).String()).Debug("Email sent")
				if result.ProviderData == nil {
					result.ProviderData = make(map[string]interface{})
				}
				result.ProviderData["failover_attempts"] = attempts
				result.ProviderData["failover_total_duration"] = time.Since(startTime).String()
				return result, nil
			}

			switch {
			case err != nil:
				lastError = err
				allErrors = append(allErrors, fmt.Sprintf("%s: %v", providerName, err))
			case result != nil && result.Error != nil:
				lastError = result.Error
				allErrors = append(allErrors, fmt.Sprintf("%s: %v", providerName, result.Error))
			default:
				lastError = fmt.Errorf("%s: send failed without error", providerName)
				allErrors = append(allErrors, lastError.Error())
			}
			log.WithError(lastError).WithField("attempt", attempt+1).Warn("Email provider failed")
		}

		if !f.enableFailover {
			break
		}
	}

	errorSummary := strings.Join(allErrors, "; ")
	f.logger.WithFields(logrus.Fields{
		"attempts": attempts,
		"duration": time.Since(startTime).String(),
	}).Error("All email providers failed")

	return &SendResult{
		ProviderName: "Failover",
		Success:      false,
		Error:        lastError,
		ProviderData: map[string]interface{}{
			"all_errors":     allErrors,
			"total_attempts": attempts,
			"duration":       time.Since(startTime).String(),
		},
	}, fmt.Errorf("all email providers failed: %s: %w", errorSummary, lastError)
}

// GetName returns the provider name
func (f *FailoverEmailProvider) GetName() string {
	if len(f.providers) == 0 {
		return "Failover(none)"
	}

	names := make([]string, len(f.providers))
	for i, p := range f.providers {
		names[i] = p.GetName()
	}
	return fmt.Sprintf("Failover(%s)", strings.Join(names, "->"))
}

// SupportsChannel returns the supported channel
func (f *FailoverEmailProvider) SupportsChannel() string {
	return ChannelEmail
}

// IsHealthy checks if at least one provider is available
func (f *FailoverEmailProvider) IsHealthy() bool {
	return len(f.providers) > 0
}

// ProviderStatus represents the status of a provider in the chain
type ProviderStatus struct {
	Name     string `json:"name"`
	Position int    `json:"position"`
}

// GetProviderStatuses returns the configured chain in order
func (f *FailoverEmailProvider) GetProviderStatuses() []ProviderStatus {
	statuses := make([]ProviderStatus, len(f.providers))
	for i, p := range f.providers {
		statuses[i] = ProviderStatus{Name: p.GetName(), Position: i + 1}
	}
	return statuses
}
