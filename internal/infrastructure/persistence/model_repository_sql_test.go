package persistence

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/cashflow/internal/domain/forecast"
	"github.com/erp/cashflow/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockModelRepository creates a GormModelRepository on a mocked postgres connection
func newMockModelRepository(t *testing.T) (*GormModelRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormModelRepository(gormDB), mock, mockDB
}

func TestGormModelRepository_Activate_SQL(t *testing.T) {
	t.Run("deactivates siblings before activating", func(t *testing.T) {
		repo, mock, mockDB := newMockModelRepository(t)
		defer mockDB.Close()

		id := uuid.New()
		at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT "id","purpose" FROM "ml_models" WHERE id = \$1 ORDER BY .* LIMIT .*`).
			WithArgs(id, 1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "purpose"}).AddRow(id, "payment_predictor"))
		mock.ExpectExec(`UPDATE "ml_models" SET "is_active"=\$1,"updated_at"=\$2 WHERE purpose = \$3 AND is_active = \$4 AND id <> \$5`).
			WithArgs(false, at, forecast.PurposePaymentPredictor, true, id).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE "ml_models" SET "activated_at"=\$1,"is_active"=\$2,"updated_at"=\$3 WHERE id = \$4`).
			WithArgs(at, true, at, id).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, repo.Activate(t.Context(), id, at))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed activation rolls back", func(t *testing.T) {
		repo, mock, mockDB := newMockModelRepository(t)
		defer mockDB.Close()

		id := uuid.New()
		at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT "id","purpose" FROM "ml_models"`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "purpose"}).AddRow(id, "cashflow_forecaster"))
		mock.ExpectExec(`UPDATE "ml_models" SET "is_active"=\$1`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE "ml_models" SET "activated_at"`).
			WillReturnError(errors.New("duplicate key value violates unique constraint \"idx_ml_models_one_active\""))
		mock.ExpectRollback()

		err := repo.Activate(t.Context(), id, at)
		assert.ErrorContains(t, err, "idx_ml_models_one_active")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown model", func(t *testing.T) {
		repo, mock, mockDB := newMockModelRepository(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT "id","purpose" FROM "ml_models"`).
			WillReturnError(gorm.ErrRecordNotFound)
		mock.ExpectRollback()

		err := repo.Activate(t.Context(), uuid.New(), time.Now())
		assert.True(t, errors.Is(err, shared.ErrNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormModelRepository_FindActive_SQL(t *testing.T) {
	repo, mock, mockDB := newMockModelRepository(t)
	defer mockDB.Close()

	id := uuid.New()
	mock.ExpectQuery(`SELECT \* FROM "ml_models" WHERE purpose = \$1 AND is_active = \$2 ORDER BY .* LIMIT .*`).
		WithArgs(forecast.PurposeCashflowForecaster, true, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "purpose", "version", "model_type", "is_active", "feature_names", "metrics"}).
			AddRow(id, "cashflow_forecaster", "v_20240601_100000", "prophet_timeseries", true, `{weekly,yearly}`, `{"mae":12.5}`))

	got, err := repo.FindActive(t.Context(), forecast.PurposeCashflowForecaster)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, forecast.ModelTypeTrendTimeseries, got.Type)
	assert.Equal(t, []string{"weekly", "yearly"}, got.FeatureNames)
	assert.Equal(t, 12.5, got.Metrics["mae"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
