package persistence

import (
	"errors"

	"gorm.io/gorm"

	"github.com/erp/cashflow/internal/domain/shared"
)

// first loads one row, translating a miss to shared.ErrNotFound
func first[M any](q *gorm.DB, conds ...any) (*M, error) {
	var row M
	if err := q.First(&row, conds...).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

// toDomain converts a slice of rows with conv
func toDomain[M, D any](rows []M, conv func(*M) *D) []D {
	out := make([]D, len(rows))
	for i := range rows {
		out[i] = *conv(&rows[i])
	}
	return out
}
