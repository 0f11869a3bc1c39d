package forecast

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PredictionRepository stores prediction snapshots. Rows are append-only.
type PredictionRepository interface {
	Save(ctx context.Context, p *Prediction) error
	SaveBatch(ctx context.Context, ps []*Prediction) error
	// LatestByInvoiceIDs returns the newest prediction per invoice, keyed by invoice ID
	LatestByInvoiceIDs(ctx context.Context, invoiceIDs []uuid.UUID) (map[uuid.UUID]*Prediction, error)
	FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]Prediction, error)
	// FindHighRisk returns the latest prediction of each invoice whose risk is at
	// or above threshold, riskiest first
	FindHighRisk(ctx context.Context, threshold float64, limit int) ([]Prediction, error)
}

// ModelRepository stores trained model records.
type ModelRepository interface {
	Save(ctx context.Context, m *TrainedModel) error
	FindByID(ctx context.Context, id uuid.UUID) (*TrainedModel, error)
	// FindAll lists models newest first; an empty purpose lists every purpose
	FindAll(ctx context.Context, purpose Purpose) ([]TrainedModel, error)
	FindActive(ctx context.Context, purpose Purpose) (*TrainedModel, error)
	// Activate marks id active as of at and every other model of its purpose
	// inactive in one transaction.
	Activate(ctx context.Context, id uuid.UUID, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ArtifactStore saves and loads serialized model bundles by opaque key.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
