package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"intake-service/internal/cache"
	"intake-service/internal/events"
	"intake-service/internal/metrics"
	"intake-service/internal/models"
	"intake-service/internal/providers"
	"intake-service/internal/templates"
	"intake-service/pkg/mask"
)

const (
	FormAppointment = "appointment"
	FormNewsletter  = "newsletter"
)

// IdempotencyStore deduplicates submissions carrying an Idempotency-Key
type IdempotencyStore interface {
	Reserve(ctx context.Context, key string) (cache.Reservation, error)
	Complete(ctx context.Context, key string)
	Release(ctx context.Context, key string)
}

// IntakeConfig holds addressing and policy for the intake flows
type IntakeConfig struct {
	ReceiverEmail     string
	From              string
	FromName          string
	StaffFromName     string
	NewsletterCaptcha bool
}

// IntakeService relays form submissions to email
type IntakeService struct {
	cfg         IntakeConfig
	verifier    providers.Verifier
	mailer      providers.Provider
	renderer    *templates.Renderer
	idempotency IdempotencyStore
	publisher   events.Publisher
	metrics     *metrics.Metrics
	logger      *logrus.Entry
}

// Option configures optional collaborators
type Option func(*IntakeService)

func WithIdempotencyStore(store IdempotencyStore) Option {
	return func(s *IntakeService) { s.idempotency = store }
}

func WithPublisher(publisher events.Publisher) Option {
	return func(s *IntakeService) { s.publisher = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *IntakeService) { s.metrics = m }
}

// NewIntakeService creates the service. verifier, mailer and renderer are required.
func NewIntakeService(cfg IntakeConfig, verifier providers.Verifier, mailer providers.Provider, renderer *templates.Renderer, logger *logrus.Logger, opts ...Option) *IntakeService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &IntakeService{
		cfg:      cfg,
		verifier: verifier,
		mailer:   mailer,
		renderer: renderer,
		logger:   logger.WithField("component", "intake_service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitAppointment validates, verifies and relays an appointment request.
// The staff email is sent first; the visitor confirmation follows when an email was given.
func (s *IntakeService) SubmitAppointment(ctx context.Context, req *models.AppointmentRequest, meta models.SubmissionMeta) (*models.SubmissionOutcome, error) {
	if req == nil {
		return nil, s.fail(FormAppointment, NewValidationError(MsgMissingFields))
	}
	req.Normalize()
	if !req.HasRequiredFields() {
		return nil, s.fail(FormAppointment, NewValidationError(MsgMissingFields))
	}
	if !req.HasValidEmail() {
		return nil, s.fail(FormAppointment, NewValidationError(MsgInvalidEmail))
	}

	log := s.logger.WithFields(logrus.Fields{
		"form":       FormAppointment,
		"request_id": meta.RequestID,
		"phone":      mask.Phone(req.Phone),
	})

	held, replayed, ierr := s.reserve(ctx, FormAppointment, meta.IdempotencyKey, log)
	if ierr != nil {
		return nil, s.fail(FormAppointment, ierr)
	}
	if replayed {
		return &models.SubmissionOutcome{Replayed: true}, nil
	}
	succeeded := false
	defer func() { held.finish(succeeded) }()

	if err := s.verify(ctx, req.CaptchaToken, meta.RemoteIP, log); err != nil {
		return nil, s.fail(FormAppointment, err)
	}

	// Once verified, a disconnecting client must not abort the sends
	dispatchCtx := context.WithoutCancel(ctx)
	sent := 0

	subject, body, err := s.renderer.RenderAppointmentStaff(req)
	if err != nil {
		return nil, s.fail(FormAppointment, NewDispatchError(err))
	}
	replyTo := req.Email
	if replyTo == "" {
		replyTo = s.cfg.From
	}
	if err := s.send(dispatchCtx, templates.TemplateAppointmentStaff, &providers.Message{
		To:       s.cfg.ReceiverEmail,
		Subject:  subject,
		BodyHTML: body,
		From:     s.cfg.From,
		FromName: s.cfg.StaffFromName,
		ReplyTo:  replyTo,
	}, log); err != nil {
		return nil, s.fail(FormAppointment, err)
	}
	sent++

	if req.Email != "" {
		subject, body, err := s.renderer.RenderAppointmentConfirmation(req)
		if err != nil {
			return nil, s.fail(FormAppointment, NewDispatchError(err))
		}
		if err := s.send(dispatchCtx, templates.TemplateAppointmentConfirmation, &providers.Message{
			To:       req.Email,
			Subject:  subject,
			BodyHTML: body,
			From:     s.cfg.From,
			FromName: s.cfg.FromName,
		}, log); err != nil {
			log.WithField("emails_sent", sent).Warn("Visitor confirmation failed after staff notification was sent")
			return nil, s.fail(FormAppointment, err)
		}
		sent++
	}

	succeeded = true
	s.metrics.RecordSubmission(FormAppointment, "success")
	log.WithField("emails_sent", sent).Info("Appointment request relayed")

	evt := events.NewIntakeEvent(events.SubjectAppointmentSubmitted)
	evt.RequestID = meta.RequestID
	evt.Treatment = req.Treatment
	evt.Location = req.Location
	evt.HasEmail = req.Email != ""
	if evt.HasEmail {
		evt.EmailMasked = mask.Email(req.Email)
	}
	evt.PhoneMasked = mask.Phone(req.Phone)
	evt.EmailsSent = sent
	s.publish(dispatchCtx, evt, log)

	return &models.SubmissionOutcome{EmailsSent: sent}, nil
}

// Subscribe relays a newsletter subscription: a staff notice, then a welcome email
func (s *IntakeService) Subscribe(ctx context.Context, sub *models.NewsletterSubscription, meta models.SubmissionMeta) (*models.SubmissionOutcome, error) {
	if sub == nil {
		return nil, s.fail(FormNewsletter, NewValidationError(MsgInvalidEmail))
	}
	sub.Normalize()
	if !sub.HasValidEmail() {
		return nil, s.fail(FormNewsletter, NewValidationError(MsgInvalidEmail))
	}
	if s.cfg.NewsletterCaptcha && sub.CaptchaToken == "" {
		return nil, s.fail(FormNewsletter, NewValidationError(MsgMissingFields))
	}

	log := s.logger.WithFields(logrus.Fields{
		"form":       FormNewsletter,
		"request_id": meta.RequestID,
		"email":      mask.Email(sub.Email),
	})

	held, replayed, ierr := s.reserve(ctx, FormNewsletter, meta.IdempotencyKey, log)
	if ierr != nil {
		return nil, s.fail(FormNewsletter, ierr)
	}
	if replayed {
		return &models.SubmissionOutcome{Replayed: true}, nil
	}
	succeeded := false
	defer func() { held.finish(succeeded) }()

	if s.cfg.NewsletterCaptcha {
		if err := s.verify(ctx, sub.CaptchaToken, meta.RemoteIP, log); err != nil {
			return nil, s.fail(FormNewsletter, err)
		}
	}

	dispatchCtx := context.WithoutCancel(ctx)

	subject, body, err := s.renderer.RenderSubscriberStaff(sub.Email)
	if err != nil {
		return nil, s.fail(FormNewsletter, NewDispatchError(err))
	}
	if err := s.send(dispatchCtx, templates.TemplateSubscriberStaff, &providers.Message{
		To:       s.cfg.ReceiverEmail,
		Subject:  subject,
		BodyHTML: body,
		From:     s.cfg.From,
		FromName: s.cfg.StaffFromName,
		ReplyTo:  sub.Email,
	}, log); err != nil {
		return nil, s.fail(FormNewsletter, err)
	}

	subject, body, err = s.renderer.RenderSubscriberWelcome(sub.Email)
	if err != nil {
		return nil, s.fail(FormNewsletter, NewDispatchError(err))
	}
	if err := s.send(dispatchCtx, templates.TemplateSubscriberWelcome, &providers.Message{
		To:       sub.Email,
		Subject:  subject,
		BodyHTML: body,
		From:     s.cfg.From,
		FromName: s.cfg.FromName,
	}, log); err != nil {
		log.Warn("Welcome email failed after staff notification was sent")
		return nil, s.fail(FormNewsletter, err)
	}

	succeeded = true
	s.metrics.RecordSubmission(FormNewsletter, "success")
	log.Info("Newsletter subscription relayed")

	evt := events.NewIntakeEvent(events.SubjectNewsletterSubscribed)
	evt.RequestID = meta.RequestID
	evt.HasEmail = true
	evt.EmailMasked = mask.Email(sub.Email)
	evt.EmailsSent = 2
	s.publish(dispatchCtx, evt, log)

	return &models.SubmissionOutcome{EmailsSent: 2}, nil
}

// verify makes the single verification call for a token
func (s *IntakeService) verify(ctx context.Context, token, remoteIP string, log *logrus.Entry) *IntakeError {
	result, err := s.verifier.Verify(ctx, token, remoteIP)
	if err != nil {
		s.metrics.RecordVerification("error")
		log.WithError(err).Error("CAPTCHA verification call failed")
		return NewUpstreamError(fmt.Errorf("verify captcha: %w", err))
	}
	if result == nil || !result.Success {
		s.metrics.RecordVerification("rejected")
		var codes []string
		if result != nil {
			codes = result.ErrorCodes
		}
		log.WithField("error_codes", codes).Info("CAPTCHA rejected")
		return NewVerificationError(codes)
	}
	s.metrics.RecordVerification("passed")
	return nil
}

func (s *IntakeService) send(ctx context.Context, template string, msg *providers.Message, log *logrus.Entry) *IntakeError {
	if msg.To == "" {
		s.metrics.RecordEmail(template, "failed")
		log.WithField("template", template).Error("No recipient configured")
		return NewDispatchError(fmt.Errorf("%s: recipient address is empty", template))
	}

	result, err := s.mailer.Send(ctx, msg)
	if err == nil && (result == nil || !result.Success) {
		err = fmt.Errorf("%s: provider reported failure", template)
		if result != nil && result.Error != nil {
			err = result.Error
		}
	}
	if err != nil {
		s.metrics.RecordEmail(template, "failed")
		log.WithError(err).WithField("template", template).Error("Email dispatch failed")
		return NewDispatchError(fmt.Errorf("send %s: %w", template, err))
	}

	s.metrics.RecordEmail(template, "sent")
	log.WithFields(logrus.Fields{
		"template": template,
		"provider": result.ProviderName,
	}).Debug("Email sent")
	return nil
}

// heldKey is an idempotency key owned by the running request
type heldKey struct {
	ctx   context.Context
	store IdempotencyStore
	key   string
}

// finish marks the key done on success and frees it otherwise
func (h *heldKey) finish(succeeded bool) {
	if h == nil {
		return
	}
	if succeeded {
		h.store.Complete(h.ctx, h.key)
		return
	}
	h.store.Release(h.ctx, h.key)
}

// reserve claims the idempotency key. A key held by a request still in
// flight is a conflict; a key whose request succeeded is a replay.
// Store errors degrade to no deduplication.
func (s *IntakeService) reserve(ctx context.Context, form, key string, log *logrus.Entry) (*heldKey, bool, *IntakeError) {
	if key == "" || s.idempotency == nil {
		return nil, false, nil
	}
	scoped := form + ":" + key
	state, err := s.idempotency.Reserve(ctx, scoped)
	if err != nil {
		log.WithError(err).Warn("Idempotency store unavailable, processing without deduplication")
		return nil, false, nil
	}
	switch state {
	case cache.Completed:
		s.metrics.RecordSubmission(form, "replayed")
		log.Info("Duplicate submission ignored")
		return nil, true, nil
	case cache.InFlight:
		log.Info("Submission with the same key still in progress")
		return nil, false, NewConflictError()
	}
	return &heldKey{ctx: context.WithoutCancel(ctx), store: s.idempotency, key: scoped}, false, nil
}

func (s *IntakeService) publish(ctx context.Context, evt *events.IntakeEvent, log *logrus.Entry) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		log.WithError(err).Warn("Failed to publish intake event")
	}
}

func (s *IntakeService) fail(form string, err *IntakeError) error {
	s.metrics.RecordSubmission(form, string(err.Kind))
	return err
}
