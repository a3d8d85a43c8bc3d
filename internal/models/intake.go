package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// AppointmentRequest is the payload posted by the appointment form.
// Treatment and Location are free text; they are not checked against the catalog.
type AppointmentRequest struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Email        string `json:"email,omitempty"`
	Treatment    string `json:"treatment,omitempty"`
	Location     string `json:"location,omitempty"`
	Message      string `json:"message,omitempty"`
	CaptchaToken string `json:"captchaToken"`
}

// UnmarshalJSON accepts phone as either a JSON string or a JSON number
func (r *AppointmentRequest) UnmarshalJSON(data []byte) error {
	type plain AppointmentRequest
	aux := struct {
		*plain
		Phone json.RawMessage `json:"phone"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	raw := bytes.TrimSpace(aux.Phone)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		r.Phone = ""
	case raw[0] == '"':
		return json.Unmarshal(raw, &r.Phone)
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return fmt.Errorf("phone must be a string or number: %w", err)
		}
		r.Phone = n.String()
	}
	return nil
}

// Normalize trims surrounding whitespace from every field
func (r *AppointmentRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Email = strings.TrimSpace(r.Email)
	r.Treatment = strings.TrimSpace(r.Treatment)
	r.Location = strings.TrimSpace(r.Location)
	r.Message = strings.TrimSpace(r.Message)
	r.CaptchaToken = strings.TrimSpace(r.CaptchaToken)
}

// HasRequiredFields reports whether name, phone and captcha token are present
func (r *AppointmentRequest) HasRequiredFields() bool {
	return r.Name != "" && r.Phone != "" && r.CaptchaToken != ""
}

// HasValidEmail reports whether the optional email is usable as a reply address.
// Embedded line breaks are rejected; an empty email is valid.
func (r *AppointmentRequest) HasValidEmail() bool {
	return r.Email == "" || (strings.Contains(r.Email, "@") && !strings.ContainsAny(r.Email, "\r\n"))
}

// FirstName returns the first whitespace-separated word of the name
func (r *AppointmentRequest) FirstName() string {
	if fields := strings.Fields(r.Name); len(fields) > 0 {
		return fields[0]
	}
	return r.Name
}

// NewsletterSubscription is the payload posted by the newsletter form
type NewsletterSubscription struct {
	Email string `json:"email"`
	// Only consulted when newsletter verification is switched on
	CaptchaToken string `json:"captchaToken,omitempty"`
}

// Normalize trims surrounding whitespace
func (s *NewsletterSubscription) Normalize() {
	s.Email = strings.TrimSpace(s.Email)
	s.CaptchaToken = strings.TrimSpace(s.CaptchaToken)
}

// HasValidEmail applies the deliberately loose check used by the site: non-empty and containing '@'.
// Embedded line breaks are rejected.
func (s *NewsletterSubscription) HasValidEmail() bool {
	return s.Email != "" && strings.Contains(s.Email, "@") && !strings.ContainsAny(s.Email, "\r\n")
}

// VerificationResult is the siteverify response body
type VerificationResult struct {
	Success     bool     `json:"success"`
	ChallengeTS string   `json:"challenge_ts,omitempty"`
	Hostname    string   `json:"hostname,omitempty"`
	Score       float64  `json:"score,omitempty"`
	Action      string   `json:"action,omitempty"`
	ErrorCodes  []string `json:"error-codes,omitempty"`
}

// SubmissionMeta carries request-scoped details that are not part of the form body
type SubmissionMeta struct {
	RequestID      string
	RemoteIP       string
	IdempotencyKey string
}

// SubmissionOutcome describes a successfully handled submission
type SubmissionOutcome struct {
	EmailsSent int
	Replayed   bool
}
