package forecast

import (
	"context"
	"time"

	"github.com/erp/cashflow/internal/domain/forecast"
	"github.com/erp/cashflow/internal/domain/receivable"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// =============================================================================
// Mock Repositories
// =============================================================================

type MockInvoiceRepository struct {
	mock.Mock
}

func (m *MockInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*receivable.Invoice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*receivable.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]receivable.Invoice, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]receivable.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindByStatus(ctx context.Context, status receivable.InvoiceStatus) ([]receivable.Invoice, error) {
	args := m.Called(ctx, status)
	return args.Get(0).([]receivable.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindByStatusDueBetween(ctx context.Context, status receivable.InvoiceStatus, from, to time.Time) ([]receivable.Invoice, error) {
	args := m.Called(ctx, status, from, to)
	return args.Get(0).([]receivable.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) FindByCustomerAndStatus(ctx context.Context, customerID uuid.UUID, status receivable.InvoiceStatus) ([]receivable.Invoice, error) {
	args := m.Called(ctx, customerID, status)
	return args.Get(0).([]receivable.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) CountByStatus(ctx context.Context, status receivable.InvoiceStatus) (int64, error) {
	args := m.Called(ctx, status)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockInvoiceRepository) Save(ctx context.Context, invoice *receivable.Invoice) error {
	args := m.Called(ctx, invoice)
	return args.Error(0)
}

type MockCustomerRepository struct {
	mock.Mock
}

func (m *MockCustomerRepository) FindByID(ctx context.Context, id uuid.UUID) (*receivable.Customer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*receivable.Customer), args.Error(1)
}

func (m *MockCustomerRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]receivable.Customer, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]receivable.Customer), args.Error(1)
}

func (m *MockCustomerRepository) Save(ctx context.Context, customer *receivable.Customer) error {
	args := m.Called(ctx, customer)
	return args.Error(0)
}

type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) FindByCustomer(ctx context.Context, customerID uuid.UUID) ([]receivable.Payment, error) {
	args := m.Called(ctx, customerID)
	return args.Get(0).([]receivable.Payment), args.Error(1)
}

func (m *MockPaymentRepository) FindByInvoiceIDs(ctx context.Context, invoiceIDs []uuid.UUID) ([]receivable.Payment, error) {
	args := m.Called(ctx, invoiceIDs)
	return args.Get(0).([]receivable.Payment), args.Error(1)
}

func (m *MockPaymentRepository) DailyTotals(ctx context.Context) ([]receivable.DailyTotal, error) {
	args := m.Called(ctx)
	return args.Get(0).([]receivable.DailyTotal), args.Error(1)
}

func (m *MockPaymentRepository) Save(ctx context.Context, payment *receivable.Payment) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

type MockPredictionRepository struct {
	mock.Mock
}

func (m *MockPredictionRepository) Save(ctx context.Context, p *forecast.Prediction) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockPredictionRepository) SaveBatch(ctx context.Context, ps []*forecast.Prediction) error {
	args := m.Called(ctx, ps)
	return args.Error(0)
}

func (m *MockPredictionRepository) LatestByInvoiceIDs(ctx context.Context, invoiceIDs []uuid.UUID) (map[uuid.UUID]*forecast.Prediction, error) {
	args := m.Called(ctx, invoiceIDs)
	return args.Get(0).(map[uuid.UUID]*forecast.Prediction), args.Error(1)
}

func (m *MockPredictionRepository) FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]forecast.Prediction, error) {
	args := m.Called(ctx, invoiceID)
	return args.Get(0).([]forecast.Prediction), args.Error(1)
}

func (m *MockPredictionRepository) FindHighRisk(ctx context.Context, threshold float64, limit int) ([]forecast.Prediction, error) {
	args := m.Called(ctx, threshold, limit)
	return args.Get(0).([]forecast.Prediction), args.Error(1)
}

type MockModelRepository struct {
	mock.Mock
}

func (m *MockModelRepository) Save(ctx context.Context, model *forecast.TrainedModel) error {
	args := m.Called(ctx, model)
	return args.Error(0)
}

func (m *MockModelRepository) FindByID(ctx context.Context, id uuid.UUID) (*forecast.TrainedModel, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*forecast.TrainedModel), args.Error(1)
}

func (m *MockModelRepository) FindAll(ctx context.Context, purpose forecast.Purpose) ([]forecast.TrainedModel, error) {
	args := m.Called(ctx, purpose)
	return args.Get(0).([]forecast.TrainedModel), args.Error(1)
}

func (m *MockModelRepository) FindActive(ctx context.Context, purpose forecast.Purpose) (*forecast.TrainedModel, error) {
	args := m.Called(ctx, purpose)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*forecast.TrainedModel), args.Error(1)
}

func (m *MockModelRepository) Activate(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockModelRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockArtifactStore struct {
	mock.Mock
}

func (m *MockArtifactStore) Put(ctx context.Context, key string, data []byte) error {
	args := m.Called(ctx, key, data)
	return args.Error(0)
}

func (m *MockArtifactStore) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockArtifactStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishActivation(ctx context.Context, purpose forecast.Purpose, modelID uuid.UUID) error {
	args := m.Called(ctx, purpose, modelID)
	return args.Error(0)
}
