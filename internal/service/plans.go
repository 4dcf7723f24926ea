package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/qty-planner/internal/errs"
	"github.com/and161185/qty-planner/internal/model"
	"github.com/and161185/qty-planner/internal/quantityplan"
	"github.com/and161185/qty-planner/internal/repository"
)

// PlanService serves master data, detail views and saves.
type PlanService interface {
	// MediaProducts lists the product master data.
	MediaProducts(ctx context.Context) ([]model.MediaProduct, error)
	// DetailView returns the rows of a product/date (and phase when given).
	DetailView(ctx context.Context, productCode, publicationDate, phaseNo string) ([]model.DetailRow, error)
	// Save validates and stores edited rows on behalf of userID.
	Save(ctx context.Context, userID uuid.UUID, publicationDate string, rows []model.WriteRow) error
}

type PlanServiceImpl struct {
	repo     repository.PlanRepository
	maxBatch int
}

// NewPlanService constructs PlanService with batch limits.
func NewPlanService(repo repository.PlanRepository, maxBatch int) *PlanServiceImpl {
	if maxBatch <= 0 {
		maxBatch = 500
	}
	return &PlanServiceImpl{repo: repo, maxBatch: maxBatch}
}

func (s *PlanServiceImpl) MediaProducts(ctx context.Context) ([]model.MediaProduct, error) {
	list, err := s.repo.MediaProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list media products: %w", err)
	}
	return list, nil
}

func (s *PlanServiceImpl) DetailView(ctx context.Context, productCode, publicationDate, phaseNo string) ([]model.DetailRow, error) {
	productCode, publicationDate = strings.TrimSpace(productCode), strings.TrimSpace(publicationDate)
	if productCode == "" || publicationDate == "" {
		return nil, errs.Validation("product_code and publication_date are required")
	}
	rows, err := s.repo.DetailRows(ctx, productCode, publicationDate, strings.TrimSpace(phaseNo))
	if err != nil {
		return nil, fmt.Errorf("detail view: %w", err)
	}
	return rows, nil
}

// Save rules: 1..maxBatch rows, all for publicationDate, each passing the write-row validation.
// An empty updated_by is filled with userID.
func (s *PlanServiceImpl) Save(ctx context.Context, userID uuid.UUID, publicationDate string, rows []model.WriteRow) error {
	if len(rows) == 0 {
		return errs.Validation("detail_rows must not be empty")
	}
	if len(rows) > s.maxBatch {
		return errs.Validation("at most %d detail_rows per request", s.maxBatch)
	}
	publicationDate = strings.TrimSpace(publicationDate)
	for i := range rows {
		r := &rows[i]
		if r.UpdatedBy == "" && userID != uuid.Nil {
			r.UpdatedBy = userID.String()
		}
		if publicationDate != "" && r.PublicationDate != publicationDate {
			return errs.Validation("detail_rows[%d]: publication_date %q does not match %q", i, r.PublicationDate, publicationDate)
		}
		if err := quantityplan.ValidateWriteRow(*r); err != nil {
			return fmt.Errorf("detail_rows[%d]: %w", i, err)
		}
	}
	if err := s.repo.SaveRows(ctx, rows); err != nil {
		return fmt.Errorf("save rows: %w", err)
	}
	return nil
}
