package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSES struct {
	input *ses.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("ses-123")}, nil
}

func TestSESProvider_Send(t *testing.T) {
	client := &fakeSES{}
	p := &SESProvider{client: client, from: "clinic@gmail.com", fromName: "Dharma Dental", region: "ap-south-1"}

	result, err := p.Send(context.Background(), &Message{
		To:       "asha@example.com",
		Subject:  "We received your request, Asha!",
		BodyHTML: "<p>hello</p>",
		ReplyTo:  "front-desk@dharmadental.in",
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "ses-123", result.ProviderID)
	assert.Equal(t, `"Dharma Dental" <clinic@gmail.com>`, aws.ToString(client.input.Source))
	assert.Equal(t, []string{"asha@example.com"}, client.input.Destination.ToAddresses)
	assert.Equal(t, []string{"front-desk@dharmadental.in"}, client.input.ReplyToAddresses)
	assert.Nil(t, client.input.Message.Body.Text)
	assert.Equal(t, "<p>hello</p>", aws.ToString(client.input.Message.Body.Html.Data))
}

func TestSESProvider_SendError(t *testing.T) {
	p := &SESProvider{client: &fakeSES{err: errors.New("throttled")}, from: "clinic@gmail.com"}

	result, err := p.Send(context.Background(), &Message{To: "a@b.c", Subject: "s", Body: "b"})

	require.Error(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, err.Error(), "throttled")
}

func TestSESProvider_RejectsHeaderInjection(t *testing.T) {
	client := &fakeSES{}
	p := &SESProvider{client: client, from: "clinic@gmail.com"}

	_, err := p.Send(context.Background(), &Message{To: "front-desk@dharmadental.in", ReplyTo: "a@b.com\r\nBcc: x@evil.test", Subject: "s", Body: "b"})

	assert.ErrorIs(t, err, ErrInvalidHeader)
	assert.Nil(t, client.input, "nothing may reach SES")
}
