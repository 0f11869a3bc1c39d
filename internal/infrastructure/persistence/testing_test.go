package persistence

import (
	"fmt"
	"testing"
	"time"

	"github.com/erp/cashflow/internal/domain/receivable"
	"github.com/erp/cashflow/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// every pooled connection to :memory: would get its own empty database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func seedCustomer(t *testing.T, db *gorm.DB, code string) *receivable.Customer {
	t.Helper()
	c, err := receivable.NewCustomer(code, "Customer "+code)
	require.NoError(t, err)
	require.NoError(t, NewGormCustomerRepository(db).Save(t.Context(), c))
	return c
}

func seedInvoice(t *testing.T, db *gorm.DB, c *receivable.Customer, n int, due time.Time, amount int64) *receivable.Invoice {
	t.Helper()
	inv, err := receivable.NewInvoice(fmt.Sprintf("INV-%s-%03d", c.Code, n), c.ID, due.AddDate(0, 0, -30), due, decimal.NewFromInt(amount))
	require.NoError(t, err)
	require.NoError(t, NewGormInvoiceRepository(db).Save(t.Context(), inv))
	return inv
}

func seedPayment(t *testing.T, db *gorm.DB, inv *receivable.Invoice, paidOn time.Time) *receivable.Payment {
	t.Helper()
	p, err := receivable.NewPayment(inv, paidOn, inv.Amount)
	require.NoError(t, err)
	require.NoError(t, inv.MarkPaid())
	require.NoError(t, NewGormInvoiceRepository(db).Save(t.Context(), inv))
	require.NoError(t, NewGormPaymentRepository(db).Save(t.Context(), p))
	return p
}
