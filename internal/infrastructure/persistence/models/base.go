package models

import (
	"time"

	"github.com/erp/cashflow/internal/domain/shared"
	"github.com/google/uuid"
)

// BaseModel is the id and timestamp columns every table shares
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (m *BaseModel) ToDomain() shared.BaseEntity {
	return shared.BaseEntity{ID: m.ID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt}
}

func (m *BaseModel) FromDomainBaseEntity(e shared.BaseEntity) {
	*m = BaseModel{ID: e.ID, CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt}
}

// All lists the tables in foreign-key order for AutoMigrate in tests
func All() []any {
	return []any{
		&CustomerModel{},
		&InvoiceModel{},
		&PaymentModel{},
		&TrainedModelModel{},
		&PredictionModel{},
	}
}
