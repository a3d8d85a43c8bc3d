// Package templates renders the HTML emails sent for appointment and newsletter submissions.
package templates

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"intake-service/internal/models"
)

//go:embed *.html
var templateFS embed.FS

const (
	TemplateAppointmentStaff        = "appointment_staff"
	TemplateAppointmentConfirmation = "appointment_confirmation"
	TemplateSubscriberStaff         = "subscriber_staff"
	TemplateSubscriberWelcome       = "subscriber_welcome"
)

var ErrNilRenderer = errors.New("renderer is nil")

// Renderer handles email template rendering
type Renderer struct {
	templates    map[string]*template.Template
	businessName string
	bookingPhone string
	now          func() time.Time
}

// EmailData contains data for all email templates
type EmailData struct {
	Subject      string
	Preheader    string
	Year         int
	BusinessName string
	BookingPhone string
	SubmittedAt  string

	// Appointment fields
	Name      string
	FirstName string
	Phone     string
	Email     string
	Treatment string
	Location  string
	Message   string

	// Newsletter fields
	SubscriberEmail string

	Clinics []models.Clinic
}

var funcMap = template.FuncMap{
	"telHref": telHref,
}

// NewRenderer parses the embedded templates
func NewRenderer(businessName, bookingPhone string) (*Renderer, error) {
	r := &Renderer{
		templates:    make(map[string]*template.Template),
		businessName: businessName,
		bookingPhone: bookingPhone,
		now:          time.Now,
	}

	baseContent, err := templateFS.ReadFile("base.html")
	if err != nil {
		return nil, fmt.Errorf("failed to read base template: %w", err)
	}

	templateNames := []string{
		TemplateAppointmentStaff,
		TemplateAppointmentConfirmation,
		TemplateSubscriberStaff,
		TemplateSubscriberWelcome,
	}

	for _, name := range templateNames {
		content, err := templateFS.ReadFile(name + ".html")
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}

		tmpl, err := template.New("email").Funcs(funcMap).Parse(string(baseContent))
		if err != nil {
			return nil, fmt.Errorf("failed to parse base template for %s: %w", name, err)
		}
		if _, err = tmpl.Parse(string(content)); err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}

		r.templates[name] = tmpl
	}

	return r, nil
}

// Render executes a named template against data
func (r *Renderer) Render(templateName string, data *EmailData) (string, error) {
	if r == nil {
		return "", ErrNilRenderer
	}
	tmpl, ok := r.templates[templateName]
	if !ok {
		return "", fmt.Errorf("template %s not found", templateName)
	}

	if data.Year == 0 {
		data.Year = r.now().Year()
	}
	if data.BusinessName == "" {
		data.BusinessName = r.businessName
	}
	if data.BookingPhone == "" {
		data.BookingPhone = r.bookingPhone
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", templateName, err)
	}

	return buf.String(), nil
}

// RenderAppointmentStaff renders the staff notification for an appointment request.
// Returns subject, body, and error.
func (r *Renderer) RenderAppointmentStaff(req *models.AppointmentRequest) (string, string, error) {
	if r == nil {
		return "", "", ErrNilRenderer
	}
	if req == nil {
		return "", "", errors.New("appointment request is nil")
	}
	data := &EmailData{
		Subject:     fmt.Sprintf("New Appointment Request: %s", req.Name),
		Preheader:   fmt.Sprintf("%s asked for an appointment", req.Name),
		SubmittedAt: r.timestamp(),
		Name:        req.Name,
		Phone:       req.Phone,
		Email:       req.Email,
		Treatment:   req.Treatment,
		Location:    req.Location,
		Message:     req.Message,
	}
	body, err := r.Render(TemplateAppointmentStaff, data)
	if err != nil {
		return "", "", err
	}
	return data.Subject, body, nil
}

// RenderAppointmentConfirmation renders the visitor confirmation.
// Returns subject, body, and error.
func (r *Renderer) RenderAppointmentConfirmation(req *models.AppointmentRequest) (string, string, error) {
	if r == nil {
		return "", "", ErrNilRenderer
	}
	if req == nil {
		return "", "", errors.New("appointment request is nil")
	}
	data := &EmailData{
		Preheader: "We'll call you within 2–4 hours to confirm your visit.",
		Name:      req.Name,
		FirstName: req.FirstName(),
		Phone:     req.Phone,
		Email:     req.Email,
		Treatment: req.Treatment,
		Location:  req.Location,
		Clinics:   models.Clinics,
	}
	data.Subject = fmt.Sprintf("We received your request, %s! | %s", data.FirstName, r.businessName)
	body, err := r.Render(TemplateAppointmentConfirmation, data)
	if err != nil {
		return "", "", err
	}
	return data.Subject, body, nil
}

// RenderSubscriberStaff renders the staff notice for a new newsletter subscriber.
// Returns subject, body, and error.
func (r *Renderer) RenderSubscriberStaff(email string) (string, string, error) {
	if r == nil {
		return "", "", ErrNilRenderer
	}
	data := &EmailData{
		Subject:         fmt.Sprintf("New Newsletter Subscriber: %s", email),
		Preheader:       "Someone joined the newsletter",
		SubmittedAt:     r.timestamp(),
		SubscriberEmail: email,
	}
	body, err := r.Render(TemplateSubscriberStaff, data)
	if err != nil {
		return "", "", err
	}
	return data.Subject, body, nil
}

// RenderSubscriberWelcome renders the subscriber welcome email.
// Returns subject, body, and error.
func (r *Renderer) RenderSubscriberWelcome(email string) (string, string, error) {
	if r == nil {
		return "", "", ErrNilRenderer
	}
	data := &EmailData{
		Subject:         fmt.Sprintf("Welcome to %s! 🦷", r.businessName),
		Preheader:       "Tips, offers and reminders from your dentist",
		SubscriberEmail: email,
		Clinics:         models.Clinics,
	}
	body, err := r.Render(TemplateSubscriberWelcome, data)
	if err != nil {
		return "", "", err
	}
	return data.Subject, body, nil
}

func (r *Renderer) timestamp() string {
	return r.now().Format("02 Jan 2006, 15:04 MST")
}

// telHref strips formatting so the number works in a tel: link
func telHref(phone string) string {
	var b strings.Builder
	for i, ch := range phone {
		if (ch >= '0' && ch <= '9') || (ch == '+' && i == 0) {
			b.WriteRune(ch)
		}
	}
	return b.String()
}
