package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"eventpay/internal/models"
	"eventpay/internal/payment"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateForBooking(ctx context.Context, p *models.Payment) (*models.Payment, error) {
	args := m.Called(ctx, p)
	active, _ := args.Get(0).(*models.Payment)
	return active, args.Error(1)
}

func (m *mockStore) FindByID(ctx context.Context, id uint) (*models.Payment, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*models.Payment)
	return p, args.Error(1)
}

func (m *mockStore) FindByPidx(ctx context.Context, pidx string) (*models.Payment, error) {
	args := m.Called(ctx, pidx)
	p, _ := args.Get(0).(*models.Payment)
	return p, args.Error(1)
}

func (m *mockStore) Update(ctx context.Context, id uint, updates map[string]interface{}) error {
	args := m.Called(ctx, id, updates)
	return args.Error(0)
}

func (m *mockStore) AdvanceStatus(ctx context.Context, id uint, from, to models.Status, updates map[string]interface{}) (bool, error) {
	args := m.Called(ctx, id, from, to, updates)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) Touch(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockStore) FindUnsettled(ctx context.Context, before time.Time, limit int) ([]models.Payment, error) {
	args := m.Called(ctx, before, limit)
	p, _ := args.Get(0).([]models.Payment)
	return p, args.Error(1)
}

func (m *mockStore) FindInitiatedBefore(ctx context.Context, before time.Time, limit int) ([]models.Payment, error) {
	args := m.Called(ctx, before, limit)
	p, _ := args.Get(0).([]models.Payment)
	return p, args.Error(1)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Name() string { return "mock" }

func (m *mockGateway) CreatePayment(ctx context.Context, req payment.CreateRequest) (*payment.PaymentResult, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*payment.PaymentResult)
	return r, args.Error(1)
}

func (m *mockGateway) LookupPayment(ctx context.Context, pidx string) (*payment.LookupResult, error) {
	args := m.Called(ctx, pidx)
	r, _ := args.Get(0).(*payment.LookupResult)
	return r, args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) PaymentSettled(ctx context.Context, p *models.Payment) {
	m.Called(ctx, p)
}
