package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"intake-service/internal/cache"
	"intake-service/internal/middleware"
	"intake-service/internal/models"
	"intake-service/internal/providers"
	"intake-service/internal/services"
	"intake-service/internal/templates"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, token, remoteIP string) (*models.VerificationResult, error) {
	args := m.Called(ctx, token, remoteIP)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.VerificationResult), args.Error(1)
}

type MockMailer struct {
	mock.Mock
	sent []*providers.Message
}

func (m *MockMailer) Send(ctx context.Context, message *providers.Message) (*providers.SendResult, error) {
	m.sent = append(m.sent, message)
	args := m.Called(ctx, message)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*providers.SendResult), args.Error(1)
}

func (m *MockMailer) GetName() string         { return "mock" }
func (m *MockMailer) SupportsChannel() string { return providers.ChannelEmail }
func (m *MockMailer) IsHealthy() bool         { return true }

func setupTestRouter(t *testing.T) (*gin.Engine, *MockVerifier, *MockMailer) {
	t.Helper()
	renderer, err := templates.NewRenderer("Dharma Dental", "+91 91692 69369")
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	verifier := &MockVerifier{}
	mailer := &MockMailer{}
	svc := services.NewIntakeService(services.IntakeConfig{
		ReceiverEmail: "front-desk@dharmadental.in",
		From:          "clinic@gmail.com",
		FromName:      "Dharma Dental",
		StaffFromName: "Dharma Dental Website",
	}, verifier, mailer, renderer, logger, services.WithIdempotencyStore(cache.NewIdempotencyStore(nil, 10*time.Minute, logger)))

	intakeHandler := NewIntakeHandler(svc)
	catalogHandler := NewCatalogHandler()
	healthHandler := NewHealthHandler("intake-service", nil, nil, mailer, nil)

	router := gin.New()
	router.Use(middleware.RequestID())
	router.GET("/health", healthHandler.Health)
	router.GET("/readyz", healthHandler.Readyz)
	router.POST("/api/contact", intakeHandler.SubmitAppointment)
	router.POST("/api/subscribe", intakeHandler.Subscribe)
	router.GET("/api/v1/catalog/treatments", catalogHandler.Treatments)
	router.GET("/api/v1/catalog/clinics", catalogHandler.Clinics)
	router.GET("/api/v1/catalog/clinics/:id", catalogHandler.Clinic)

	return router, verifier, mailer
}

func postJSON(router *gin.Engine, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.RemoteAddr = "203.0.113.7:40000"
	router.ServeHTTP(w, req)
	return w
}

var sendOK = &providers.SendResult{ProviderName: "mock", Success: true}

func TestSubmitAppointment_ScenarioA(t *testing.T) {
	router, verifier, mailer := setupTestRouter(t)
	verifier.On("Verify", mock.Anything, "valid-token", "203.0.113.7").Return(&models.VerificationResult{Success: true}, nil).Once()
	mailer.On("Send", mock.Anything, mock.Anything).Return(sendOK, nil)

	w := postJSON(router, "/api/contact", `{"name":"Asha Rao","phone":"9876543210","captchaToken":"valid-token"}`, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())
	require.Len(t, mailer.sent, 1)
	assert.Contains(t, mailer.sent[0].BodyHTML, "Asha Rao")
	assert.Contains(t, mailer.sent[0].BodyHTML, "9876543210")
}

func TestSubmitAppointment_ScenarioB(t *testing.T) {
	router, verifier, mailer := setupTestRouter(t)
	verifier.On("Verify", mock.Anything, "stale-token", mock.Anything).
		Return(&models.VerificationResult{Success: false, ErrorCodes: []string{"timeout-or-duplicate"}}, nil).Once()

	w := postJSON(router, "/api/contact", `{"name":"Asha Rao","phone":"9876543210","captchaToken":"stale-token"}`, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"CAPTCHA verification failed.","codes":["timeout-or-duplicate"]}`, w.Body.String())
	assert.Empty(t, mailer.sent)
}

func TestSubmitAppointment_ScenarioD(t *testing.T) {
	router, verifier, mailer := setupTestRouter(t)
	verifier.On("Verify", mock.Anything, mock.Anything, mock.Anything).Return(&models.VerificationResult{Success: true}, nil)
	mailer.On("Send", mock.Anything, mock.Anything).Return(sendOK, nil).Once()
	mailer.On("Send", mock.Anything, mock.Anything).Return(nil, errors.New("550 mailbox unavailable")).Once()

	w := postJSON(router, "/api/contact", `{"name":"Asha Rao","phone":"9876543210","email":"asha@example.com","captchaToken":"t"}`, nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Something went wrong. Please try again."}`, w.Body.String())
	assert.Len(t, mailer.sent, 2)
	assert.NotContains(t, w.Body.String(), "550")
}

func TestSubmitAppointment_MissingFields(t *testing.T) {
	router, verifier, mailer := setupTestRouter(t)

	w := postJSON(router, "/api/contact", `{"name":"Asha Rao","phone":"9876543210"}`, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Missing required fields."}`, w.Body.String())
	verifier.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, mailer.sent)
}

func TestSubmitAppointment_MalformedJSON(t *testing.T) {
	router, verifier, _ := setupTestRouter(t)

	for _, body := range []string{`{"name":`, ``, `{"name": 42}`} {
		w := postJSON(router, "/api/contact", body, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.JSONEq(t, `{"error":"Invalid request payload."}`, w.Body.String())
	}
	verifier.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitAppointment_NumericPhone(t *testing.T) {
	router, verifier, mailer := setupTestRouter(t)
	verifier.On("Verify", mock.Anything, "valid-token", mock.Anything).Return(&models.VerificationResult{Success: true}, nil).Once()
	mailer.On("Send", mock.Anything, mock.Anything).Return(sendOK, nil)

	w := postJSON(router, "/api/contact", `{"name":"Asha Rao","phone":9876543210,"captchaToken":"valid-token"}`, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, mailer.sent, 1)
	assert.Contains(t, mailer.sent[0].BodyHTML, "9876543210")
}

func TestSubmitAppointment_EmailWithLineBreak(t *testing.T) {
	router, verifier, mailer := setupTestRouter(t)

	w := postJSON(router, "/api/contact", `{"name":"Asha Rao","phone":"9876543210","email":"a@b.com\r\nX-Injected: yes","captchaToken":"t"}`, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Valid email is required."}`, w.Body.String())
	verifier.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, mailer.sent)
}

func TestSubmitAppointment_UpstreamFailure(t *testing.T) {
	router, verifier, mailer := setupTestRouter(t)
	verifier.On("Verify", mock.Anything, mock.Anything, mock.Anything).Return(nil, providers.ErrCircuitOpen).Once()

	w := postJSON(router, "/api/contact", `{"name":"Asha Rao","phone":"9876543210","captchaToken":"t"}`, nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Something went wrong. Please try again."}`, w.Body.String())
	assert.Empty(t, mailer.sent)
}

func TestSubmitAppointment_IdempotentReplay(t *testing.T) {
	router, verifier, mailer := setupTestRouter(t)
	verifier.On("Verify", mock.Anything, mock.Anything, mock.Anything).Return(&models.VerificationResult{Success: true}, nil).Once()
	mailer.On("Send", mock.Anything, mock.Anything).Return(sendOK, nil)
	body := `{"name":"Asha Rao","phone":"9876543210","captchaToken":"t"}`
	headers := map[string]string{middleware.HeaderIdempotencyKey: "submit-1"}

	first := postJSON(router, "/api/contact", body, headers)
	second := postJSON(router, "/api/contact", body, headers)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Empty(t, first.Header().Get(headerReplayed))
	assert.Equal(t, "true", second.Header().Get(headerReplayed))
	assert.Len(t, mailer.sent, 1)
}

func TestSubscribe_ScenarioC(t *testing.T) {
	router, _, mailer := setupTestRouter(t)

	w := postJSON(router, "/api/subscribe", `{"email":"not-an-email"}`, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Valid email is required."}`, w.Body.String())
	assert.Empty(t, mailer.sent)
}

func TestSubscribe_Success(t *testing.T) {
	router, verifier, mailer := setupTestRouter(t)
	mailer.On("Send", mock.Anything, mock.Anything).Return(sendOK, nil)

	w := postJSON(router, "/api/subscribe", `{"email":"reader@example.com"}`, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())
	assert.Len(t, mailer.sent, 2)
	verifier.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubscribe_RepeatedSubmissionsAreNotDeduplicated(t *testing.T) {
	router, _, mailer := setupTestRouter(t)
	mailer.On("Send", mock.Anything, mock.Anything).Return(sendOK, nil)

	for i := 0; i < 2; i++ {
		w := postJSON(router, "/api/subscribe", `{"email":"reader@example.com"}`, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	assert.Len(t, mailer.sent, 4)
}

func TestCatalogEndpoints(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/catalog/clinics", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	var clinics struct {
		Clinics []models.Clinic `json:"clinics"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &clinics))
	assert.Len(t, clinics.Clinics, 4)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/v1/catalog/treatments", nil)
	router.ServeHTTP(w, req)
	assert.Contains(t, w.Body.String(), "Root Canal Therapy")

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/v1/catalog/clinics/sarjapur", nil)
	router.ServeHTTP(w, req)
	assert.Contains(t, w.Body.String(), "+91 923 695 2369")

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/v1/catalog/clinics/chennai", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthEndpoints(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/readyz", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"email":"configured"`)
}

func TestReadyz_ReportsEmailChain(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	chain := providers.NewFailoverEmailProvider([]providers.Provider{&namedMailer{name: "AWS SES"}, &namedMailer{name: "SMTP"}}, nil, logger)
	healthHandler := NewHealthHandler("intake-service", nil, nil, chain, nil)

	router := gin.New()
	router.GET("/readyz", healthHandler.Readyz)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/readyz", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "AWS SES->SMTP", body.Checks["email_chain"])
	assert.Equal(t, "configured", body.Checks["email"])
}

func TestReadyz_EmptyEmailChainIsNotReady(t *testing.T) {
	chain := providers.NewFailoverEmailProvider(nil, nil, nil)
	healthHandler := NewHealthHandler("intake-service", nil, nil, chain, nil)

	router := gin.New()
	router.GET("/readyz", healthHandler.Readyz)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/readyz", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"email":"no providers"`)
}

type namedMailer struct {
	name string
}

func (m *namedMailer) Send(ctx context.Context, message *providers.Message) (*providers.SendResult, error) {
	return &providers.SendResult{ProviderName: m.name, Success: true}, nil
}

func (m *namedMailer) GetName() string         { return m.name }
func (m *namedMailer) SupportsChannel() string { return providers.ChannelEmail }
