package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"eventpay/internal/models"
	"eventpay/internal/service"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) Initiate(ctx context.Context, req models.InitiateRequest) (*models.InitiateResponse, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*models.InitiateResponse)
	return res, args.Error(1)
}

func (m *mockService) Status(ctx context.Context, ref string) (*models.PaymentView, error) {
	args := m.Called(ctx, ref)
	view, _ := args.Get(0).(*models.PaymentView)
	return view, args.Error(1)
}

func newContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Message
}

func TestPaymentHandler_Initiate(t *testing.T) {
	svc := &mockService{}
	want := models.InitiateRequest{
		BookingID:    42,
		Amount:       250000,
		ProductName:  "Concert ticket",
		CustomerInfo: models.CustomerInfo{Name: "Sita", Email: "sita@example.com"},
	}
	svc.On("Initiate", mock.Anything, want).Return(&models.InitiateResponse{
		PaymentURL: "https://pay.khalti.com/?pidx=abc", PaymentID: 7, Pidx: "abc", Status: models.StatusInitiated,
	}, nil)

	c, rec := newContext(http.MethodPost, "/api/payment/initiate",
		`{"bookingId":42,"amount":250000,"productName":"Concert ticket","customerInfo":{"name":"Sita","email":"sita@example.com"}}`)
	require.NoError(t, NewPaymentHandler(svc, zap.NewNop()).Initiate(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	var res models.InitiateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "https://pay.khalti.com/?pidx=abc", res.PaymentURL)
	svc.AssertExpectations(t)
}

func TestPaymentHandler_InitiateErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"validation", &service.ValidationError{Field: "amount", Reason: "must be positive"}, http.StatusBadRequest},
		{"active payment", service.ErrActivePaymentExists, http.StatusConflict},
		{"gateway", &service.InitiationError{PaymentID: 1, Reason: "invalid token", Err: errors.New("401")}, http.StatusBadGateway},
		{"internal", errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{}
			svc.On("Initiate", mock.Anything, mock.Anything).Return(nil, tt.err)

			c, rec := newContext(http.MethodPost, "/api/payment/initiate", `{"bookingId":1,"amount":1000}`)
			require.NoError(t, NewPaymentHandler(svc, zap.NewNop()).Initiate(c))
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.NotEmpty(t, decodeMessage(t, rec))
		})
	}
}

func TestPaymentHandler_InitiateBadBody(t *testing.T) {
	c, rec := newContext(http.MethodPost, "/api/payment/initiate", `{"bookingId":`)
	require.NoError(t, NewPaymentHandler(&mockService{}, zap.NewNop()).Initiate(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", decodeMessage(t, rec))
}

func TestPaymentHandler_Status(t *testing.T) {
	svc := &mockService{}
	svc.On("Status", mock.Anything, "abc").Return(&models.PaymentView{ID: 7, Pidx: "abc", Status: models.StatusPending, Amount: 250000}, nil)
	svc.On("Status", mock.Anything, "nope").Return(nil, service.ErrNotFound)
	h := NewPaymentHandler(svc, zap.NewNop())

	c, rec := newContext(http.MethodGet, "/api/payment/status/abc", "")
	c.SetParamNames("ref")
	c.SetParamValues("abc")
	require.NoError(t, h.Status(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	var view models.PaymentView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, models.StatusPending, view.Status)

	c, rec = newContext(http.MethodGet, "/api/payment/status/nope", "")
	c.SetParamNames("ref")
	c.SetParamValues("nope")
	require.NoError(t, h.Status(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Payment not found", decodeMessage(t, rec))
}

type scriptedService struct {
	mu     sync.Mutex
	script []models.Status
	calls  int
}

func (s *scriptedService) Initiate(context.Context, models.InitiateRequest) (*models.InitiateResponse, error) {
	return nil, errors.New("not used")
}

func (s *scriptedService) Status(_ context.Context, ref string) (*models.PaymentView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	s.calls++
	return &models.PaymentView{ID: 7, Pidx: ref, Status: s.script[i], Amount: 250000}, nil
}

func TestPaymentHandler_TrackStreamsUntilTerminal(t *testing.T) {
	svc := &scriptedService{script: []models.Status{models.StatusPending, models.StatusPending, models.StatusPending, models.StatusCompleted}}
	h := NewPaymentHandler(svc, zap.NewNop()).WithTrackInterval(5 * time.Millisecond)

	c, rec := newContext(http.MethodGet, "/api/payment/track/abc", "")
	c.SetParamNames("ref")
	c.SetParamValues("abc")

	done := make(chan error, 1)
	go func() { done <- h.Track(c) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close on terminal status")
	}

	assert.Equal(t, "text/event-stream", rec.Header().Get(echo.HeaderContentType))
	body := rec.Body.String()
	assert.Equal(t, 2, strings.Count(body, "event: status\n"))
	assert.Contains(t, body, `"status":"pending"`)
	assert.Contains(t, body, `"status":"completed"`)
}

func TestPaymentHandler_TrackClientDisconnect(t *testing.T) {
	svc := &scriptedService{script: []models.Status{models.StatusPending}}
	h := NewPaymentHandler(svc, zap.NewNop()).WithTrackInterval(5 * time.Millisecond)

	e := echo.New()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/payment/track/abc", nil).WithContext(ctx)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("ref")
	c.SetParamValues("abc")

	done := make(chan error, 1)
	go func() { done <- h.Track(c) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close on disconnect")
	}
}

func TestPaymentHandler_TrackUnknownPayment(t *testing.T) {
	svc := &mockService{}
	svc.On("Status", mock.Anything, "nope").Return(nil, service.ErrNotFound)

	c, rec := newContext(http.MethodGet, "/api/payment/track/nope", "")
	c.SetParamNames("ref")
	c.SetParamValues("nope")
	require.NoError(t, NewPaymentHandler(svc, zap.NewNop()).Track(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
