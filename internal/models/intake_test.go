package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppointmentRequest_HasRequiredFields(t *testing.T) {
	tests := []struct {
		name string
		req  AppointmentRequest
		want bool
	}{
		{"complete", AppointmentRequest{Name: "Asha Rao", Phone: "9876543210", CaptchaToken: "tok"}, true},
		{"missing name", AppointmentRequest{Phone: "9876543210", CaptchaToken: "tok"}, false},
		{"missing phone", AppointmentRequest{Name: "Asha Rao", CaptchaToken: "tok"}, false},
		{"missing token", AppointmentRequest{Name: "Asha Rao", Phone: "9876543210"}, false},
		{"whitespace only", AppointmentRequest{Name: "  ", Phone: "9876543210", CaptchaToken: "tok"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			req.Normalize()
			assert.Equal(t, tt.want, req.HasRequiredFields())
		})
	}
}

func TestAppointmentRequest_FirstName(t *testing.T) {
	assert.Equal(t, "Asha", (&AppointmentRequest{Name: "Asha Rao"}).FirstName())
	assert.Equal(t, "Asha", (&AppointmentRequest{Name: "  Asha  "}).FirstName())
	assert.Equal(t, "", (&AppointmentRequest{}).FirstName())
}

func TestNewsletterSubscription_HasValidEmail(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"reader@example.com", true},
		{" reader@example.com ", true},
		{"a@b", true},
		{"not-an-email", false},
		{"", false},
		{"   ", false},
	}

	for _, tt := range tests {
		sub := NewsletterSubscription{Email: tt.email}
		sub.Normalize()
		assert.Equal(t, tt.want, sub.HasValidEmail(), tt.email)
	}
}

func TestAppointmentRequest_HasValidEmail(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"", true},
		{"asha@example.com", true},
		{"asha.example.com", false},
		{"a@b.com\r\nX-Injected: yes", false},
		{"a@b.com\nBcc: x@evil.test", false},
	}

	for _, tt := range tests {
		req := AppointmentRequest{Email: tt.email}
		req.Normalize()
		assert.Equal(t, tt.want, req.HasValidEmail(), "%q", tt.email)
	}
}

func TestNewsletterSubscription_RejectsLineBreaks(t *testing.T) {
	sub := NewsletterSubscription{Email: "reader@example.com\r\nX-Injected: yes"}
	sub.Normalize()

	assert.False(t, sub.HasValidEmail())
}

func TestAppointmentRequest_UnmarshalPhone(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{name: "string", body: `{"name":"Asha Rao","phone":"9876543210"}`, want: "9876543210"},
		{name: "number", body: `{"name":"Asha Rao","phone":9876543210}`, want: "9876543210"},
		{name: "null", body: `{"name":"Asha Rao","phone":null}`, want: ""},
		{name: "missing", body: `{"name":"Asha Rao"}`, want: ""},
		{name: "bool", body: `{"name":"Asha Rao","phone":true}`, wantErr: true},
		{name: "object", body: `{"name":"Asha Rao","phone":{}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req AppointmentRequest
			err := json.Unmarshal([]byte(tt.body), &req)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.Phone)
			assert.Equal(t, "Asha Rao", req.Name)
		})
	}
}

func TestAppointmentRequest_UnmarshalKeepsOtherFields(t *testing.T) {
	var req AppointmentRequest
	require.NoError(t, json.Unmarshal([]byte(`{"name":"Asha Rao","phone":98765,"email":"asha@example.com","captchaToken":"tok"}`), &req))

	assert.Equal(t, "asha@example.com", req.Email)
	assert.Equal(t, "tok", req.CaptchaToken)
	assert.Equal(t, "98765", req.Phone)
}
