package providers

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridProvider implements email sending via SendGrid
type SendGridProvider struct {
	from     string
	fromName string
	client   *sendgrid.Client
}

// NewSendGridProvider creates a new SendGrid email provider
func NewSendGridProvider(config *ProviderConfig) *SendGridProvider {
	return &SendGridProvider{
		from:     config.From,
		fromName: config.FromName,
		client:   sendgrid.NewSendClient(config.SendGridAPIKey),
	}
}

// buildMail converts a Message into the SendGrid v3 payload
func (p *SendGridProvider) buildMail(message *Message) (*mail.SGMailV3, error) {
	fromAddr, fromName := senderAddress(p.from, p.fromName, message)
	if fromAddr == "" {
		return nil, ErrMissingSender
	}
	if err := validateHeaders(message); err != nil {
		return nil, err
	}

	to := mail.NewEmail("", message.To)
	m := mail.NewSingleEmail(mail.NewEmail(fromName, fromAddr), message.Subject, to, message.Body, message.BodyHTML)

	for _, cc := range message.CC {
		m.Personalizations[0].AddCCs(mail.NewEmail("", cc))
	}
	for _, bcc := range message.BCC {
		m.Personalizations[0].AddBCCs(mail.NewEmail("", bcc))
	}

	if message.ReplyTo != "" {
		m.SetReplyTo(mail.NewEmail("", message.ReplyTo))
	}
	if len(message.Headers) > 0 {
		m.Headers = message.Headers
	}

	// Link rewriting breaks tel: and map links in clinic emails
	trackingSettings := mail.NewTrackingSettings()
	clickTracking := mail.NewClickTrackingSetting()
	clickTracking.SetEnable(false)
	clickTracking.SetEnableText(false)
	trackingSettings.SetClickTracking(clickTracking)
	openTracking := mail.NewOpenTrackingSetting()
	openTracking.SetEnable(false)
	trackingSettings.SetOpenTracking(openTracking)
	m.SetTrackingSettings(trackingSettings)

	return m, nil
}

// Send sends an email via SendGrid
func (p *SendGridProvider) Send(ctx context.Context, message *Message) (*SendResult, error) {
	m, err := p.buildMail(message)
	if err != nil {
		return failed("SendGrid", err)
	}

	response, err := p.client.SendWithContext(ctx, m)
	if err != nil {
		return failed("SendGrid", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		var messageID string
		if ids, ok := response.Headers["X-Message-Id"]; ok && len(ids) > 0 {
			messageID = ids[0]
		}
		return &SendResult{
			ProviderID:   messageID,
			ProviderName: "SendGrid",
			Success:      true,
			ProviderData: map[string]interface{}{
				"status_code": response.StatusCode,
				"to":          message.To,
				"subject":     message.Subject,
			},
		}, nil
	}

	return failed("SendGrid", fmt.Errorf("SendGrid API error: %d - %s", response.StatusCode, response.Body))
}

// GetName returns the provider name
func (p *SendGridProvider) GetName() string {
	return "SendGrid"
}

// SupportsChannel returns the supported channel
func (p *SendGridProvider) SupportsChannel() string {
	return ChannelEmail
}
