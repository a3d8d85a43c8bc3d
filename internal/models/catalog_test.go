package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindClinic(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		wantID string
		found  bool
	}{
		{name: "by id", key: "kondapur", wantID: "kondapur", found: true},
		{name: "by form label", key: "Whitefield, Bengaluru", wantID: "whitefield", found: true},
		{name: "unknown", key: "Chennai", found: false},
		{name: "empty", key: "", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clinic, ok := FindClinic(tt.key)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.wantID, clinic.ID)
		})
	}
}

func TestCatalogShape(t *testing.T) {
	assert.Len(t, Treatments, 7)
	assert.Len(t, Clinics, 4)
	for _, c := range Clinics {
		assert.NotEmpty(t, c.Phone, c.ID)
		assert.NotEmpty(t, c.MapURL, c.ID)
	}
}

func TestAppointmentRequest_Normalize(t *testing.T) {
	req := AppointmentRequest{Name: "  Asha Rao ", Phone: " 9876543210", CaptchaToken: "\ttok "}
	req.Normalize()

	assert.Equal(t, "Asha Rao", req.Name)
	assert.Equal(t, "9876543210", req.Phone)
	assert.True(t, req.HasRequiredFields())
	assert.Equal(t, "Asha", req.FirstName())

	blank := AppointmentRequest{Name: "   ", Phone: "1", CaptchaToken: "t"}
	blank.Normalize()
	assert.False(t, blank.HasRequiredFields())
}

func TestNewsletterSubscription_HasValidEmailBasic(t *testing.T) {
	assert.True(t, (&NewsletterSubscription{Email: "a@b"}).HasValidEmail())
	assert.False(t, (&NewsletterSubscription{Email: "not-an-email"}).HasValidEmail())
	assert.False(t, (&NewsletterSubscription{}).HasValidEmail())
}
