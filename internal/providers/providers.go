package providers

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// ChannelEmail is the only channel this service delivers on
const ChannelEmail = "EMAIL"

var (
	ErrNoProviders    = errors.New("no email providers configured")
	ErrMissingSender  = errors.New("sender address not configured")
	ErrMissingSecret  = errors.New("verification secret not configured")
	ErrCircuitOpen    = errors.New("verification provider unavailable, circuit breaker is open")
	ErrVerifyResponse = errors.New("unexpected verification response")
	ErrInvalidHeader  = errors.New("invalid email header")
)

// Provider represents an email transport
type Provider interface {
	Send(ctx context.Context, message *Message) (*SendResult, error)
	GetName() string
	SupportsChannel() string
}

// Message represents an email to be sent
type Message struct {
	To       string
	Subject  string
	Body     string
	BodyHTML string
	From     string
	FromName string
	ReplyTo  string
	CC       []string
	BCC      []string
	Headers  map[string]string
}

// SendResult represents the result of a send operation
type SendResult struct {
	ProviderID   string
	ProviderName string
	Success      bool
	Error        error
	ProviderData map[string]interface{}
}

// ProviderConfig represents provider configuration
type ProviderConfig struct {
	// Default sender, used when a message leaves From empty
	From     string
	FromName string

	// Generic SMTP (Gmail app passwords work here)
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string

	// AWS SES
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	// SendGrid
	SendGridAPIKey string
}

func failed(name string, err error) (*SendResult, error) {
	return &SendResult{
		ProviderName: name,
		Success:      false,
		Error:        err,
	}, err
}

// senderAddress resolves the RFC 5322 display form of the sender
func senderAddress(defaultFrom, defaultName string, message *Message) (addr, name string) {
	addr, name = defaultFrom, defaultName
	if message.From != "" {
		addr, name = message.From, message.FromName
	}
	return addr, name
}

// validateHeaders rejects addresses that do not parse as a single mailbox and
// any header text containing a line break.
func validateHeaders(message *Message) error {
	if message.To == "" {
		return fmt.Errorf("%w: recipient address is empty", ErrInvalidHeader)
	}
	if err := checkAddress("To", message.To); err != nil {
		return err
	}
	if message.From != "" {
		if err := checkAddress("From", message.From); err != nil {
			return err
		}
	}
	if message.ReplyTo != "" {
		if err := checkAddress("Reply-To", message.ReplyTo); err != nil {
			return err
		}
	}
	for _, cc := range message.CC {
		if err := checkAddress("Cc", cc); err != nil {
			return err
		}
	}
	for _, bcc := range message.BCC {
		if err := checkAddress("Bcc", bcc); err != nil {
			return err
		}
	}
	if hasLineBreak(message.FromName) {
		return fmt.Errorf("%w: sender name contains a line break", ErrInvalidHeader)
	}
	for key, value := range message.Headers {
		if hasLineBreak(key) || hasLineBreak(value) {
			return fmt.Errorf("%w: header %q contains a line break", ErrInvalidHeader, key)
		}
	}
	return nil
}

func checkAddress(field, value string) error {
	if hasLineBreak(value) {
		return fmt.Errorf("%w: %s contains a line break", ErrInvalidHeader, field)
	}
	if _, err := mail.ParseAddress(value); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidHeader, field, err)
	}
	return nil
}

func hasLineBreak(s string) bool {
	return strings.ContainsAny(s, "\r\n")
}
