package repository

import (
	"context"

	"github.com/and161185/qty-planner/internal/model"
)

// PlanRepository stores media products and quantity-plan rows.
type PlanRepository interface {
	// MediaProducts lists products ordered by code.
	MediaProducts(ctx context.Context) ([]model.MediaProduct, error)
	// UpsertMediaProduct inserts or replaces a product.
	UpsertMediaProduct(ctx context.Context, p model.MediaProduct) error
	// DetailRows returns the rows of a product/date, optionally narrowed to a phase.
	DetailRows(ctx context.Context, productCode, publicationDate, phaseNo string) ([]model.DetailRow, error)
	// UpsertDetailRow inserts or replaces a full row, descriptive fields included.
	UpsertDetailRow(ctx context.Context, r model.DetailRow) error
	// SaveRows writes edited rows in one transaction. Existing descriptive fields
	// (agent name, status) are kept; the last write wins.
	SaveRows(ctx context.Context, rows []model.WriteRow) error
}
