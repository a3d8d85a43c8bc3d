package providers

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// sesAPI is the subset of the SES client used here
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESProvider implements email sending via AWS SES
type SESProvider struct {
	client   sesAPI
	from     string
	fromName string
	region   string
}

// NewSESProvider creates a new AWS SES email provider
func NewSESProvider(cfg *ProviderConfig) (*SESProvider, error) {
	var awsOpts []func(*config.LoadOptions) error

	if cfg.AWSRegion != "" {
		awsOpts = append(awsOpts, config.WithRegion(cfg.AWSRegion))
	}

	// Explicit keys win; otherwise the default chain (env, shared config, instance role) applies
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		awsOpts = append(awsOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), awsOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESProvider{
		client:   ses.NewFromConfig(awsCfg),
		from:     cfg.From,
		fromName: cfg.FromName,
		region:   cfg.AWSRegion,
	}, nil
}

func (p *SESProvider) buildInput(message *Message) (*ses.SendEmailInput, error) {
	fromAddr, fromName := senderAddress(p.from, p.fromName, message)
	if fromAddr == "" {
		return nil, ErrMissingSender
	}
	if err := validateHeaders(message); err != nil {
		return nil, err
	}
	source := fromAddr
	if fromName != "" {
		source = (&mail.Address{Name: fromName, Address: fromAddr}).String()
	}

	destination := &types.Destination{
		ToAddresses: []string{message.To},
	}
	if len(message.CC) > 0 {
		destination.CcAddresses = message.CC
	}
	if len(message.BCC) > 0 {
		destination.BccAddresses = message.BCC
	}

	body := &types.Body{}
	if message.BodyHTML != "" {
		body.Html = &types.Content{Charset: aws.String("UTF-8"), Data: aws.String(message.BodyHTML)}
	}
	if message.Body != "" {
		body.Text = &types.Content{Charset: aws.String("UTF-8"), Data: aws.String(message.Body)}
	}

	input := &ses.SendEmailInput{
		Source:      aws.String(source),
		Destination: destination,
		Message: &types.Message{
			Subject: &types.Content{Charset: aws.String("UTF-8"), Data: aws.String(message.Subject)},
			Body:    body,
		},
	}
	if message.ReplyTo != "" {
		input.ReplyToAddresses = []string{message.ReplyTo}
	}
	return input, nil
}

// Send sends an email via AWS SES
func (p *SESProvider) Send(ctx context.Context, message *Message) (*SendResult, error) {
	input, err := p.buildInput(message)
	if err != nil {
		return failed("AWS SES", err)
	}

	result, err := p.client.SendEmail(ctx, input)
	if err != nil {
		return failed("AWS SES", fmt.Errorf("SES send failed: %w", err))
	}

	return &SendResult{
		ProviderID:   aws.ToString(result.MessageId),
		ProviderName: "AWS SES",
		Success:      true,
		ProviderData: map[string]interface{}{
			"message_id": aws.ToString(result.MessageId),
			"to":         message.To,
			"subject":    message.Subject,
			"region":     p.region,
		},
	}, nil
}

// GetName returns the provider name
func (p *SESProvider) GetName() string {
	return "AWS SES"
}

// SupportsChannel returns the supported channel
func (p *SESProvider) SupportsChannel() string {
	return ChannelEmail
}
