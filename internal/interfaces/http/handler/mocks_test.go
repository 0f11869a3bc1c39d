package handler

import (
	"context"

	forecastapp "github.com/erp/cashflow/internal/application/forecast"
	"github.com/erp/cashflow/internal/domain/forecast"
	"github.com/erp/cashflow/internal/infrastructure/scheduler"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockPredictionService struct {
	mock.Mock
}

func (m *MockPredictionService) Predict(ctx context.Context, invoiceID uuid.UUID) (*forecastapp.PredictionResponse, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*forecastapp.PredictionResponse), args.Error(1)
}

func (m *MockPredictionService) PredictBatch(ctx context.Context, req forecastapp.BatchPredictRequest) (*forecastapp.BatchPredictionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*forecastapp.BatchPredictionResponse), args.Error(1)
}

func (m *MockPredictionService) ForecastCashflow(ctx context.Context, q forecastapp.CashflowForecastQuery) (*forecastapp.CashflowForecastResponse, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*forecastapp.CashflowForecastResponse), args.Error(1)
}

func (m *MockPredictionService) CustomerPredictions(ctx context.Context, customerID uuid.UUID) (*forecastapp.CustomerPredictionsResponse, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*forecastapp.CustomerPredictionsResponse), args.Error(1)
}

func (m *MockPredictionService) HighRisk(ctx context.Context, q forecastapp.HighRiskQuery) (*forecastapp.HighRiskResponse, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*forecastapp.HighRiskResponse), args.Error(1)
}

func (m *MockPredictionService) PredictionHistory(ctx context.Context, invoiceID uuid.UUID) ([]forecastapp.PredictionResponse, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]forecastapp.PredictionResponse), args.Error(1)
}

func (m *MockPredictionService) ForecastTrend(ctx context.Context, q forecastapp.TrendForecastQuery) (*forecastapp.TrendForecastResponse, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*forecastapp.TrendForecastResponse), args.Error(1)
}

type MockCashflowReporter struct {
	mock.Mock
}

func (m *MockCashflowReporter) Generate(ctx context.Context, resp *forecastapp.CashflowForecastResponse) ([]byte, error) {
	args := m.Called(ctx, resp)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type MockModelManager struct {
	mock.Mock
}

func (m *MockModelManager) CheckTrainable(ctx context.Context, purpose forecast.Purpose) error {
	return m.Called(ctx, purpose).Error(0)
}

func (m *MockModelManager) Activate(ctx context.Context, id uuid.UUID) (*forecastapp.ModelResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*forecastapp.ModelResponse), args.Error(1)
}

func (m *MockModelManager) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockModelManager) List(ctx context.Context, purpose string) ([]forecastapp.ModelResponse, error) {
	args := m.Called(ctx, purpose)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]forecastapp.ModelResponse), args.Error(1)
}

func (m *MockModelManager) Get(ctx context.Context, id uuid.UUID) (*forecastapp.ModelResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*forecastapp.ModelResponse), args.Error(1)
}

func (m *MockModelManager) Active(ctx context.Context, purpose string) (*forecastapp.ModelResponse, error) {
	args := m.Called(ctx, purpose)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*forecastapp.ModelResponse), args.Error(1)
}

type MockJobSubmitter struct {
	mock.Mock
}

func (m *MockJobSubmitter) Submit(purpose forecast.Purpose, trigger scheduler.Trigger, requestedBy string) (scheduler.TrainingJob, error) {
	args := m.Called(purpose, trigger, requestedBy)
	return args.Get(0).(scheduler.TrainingJob), args.Error(1)
}

func (m *MockJobSubmitter) Get(id uuid.UUID) (scheduler.TrainingJob, error) {
	args := m.Called(id)
	return args.Get(0).(scheduler.TrainingJob), args.Error(1)
}
