// Package memory provides in-process repositories for development runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/qty-planner/internal/errs"
	"github.com/and161185/qty-planner/internal/model"
)

// UserRepo is a map-backed UserRepository.
type UserRepo struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]model.User
	byEmail map[string]uuid.UUID
}

// NewUserRepo returns an empty user repository.
func NewUserRepo() *UserRepo {
	return &UserRepo{byID: map[uuid.UUID]model.User{}, byEmail: map[string]uuid.UUID{}}
}

func (r *UserRepo) Create(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byEmail[u.Email]; taken {
		return errs.ErrAlreadyExists
	}
	r.byID[u.ID] = *u
	r.byEmail[u.Email] = u.ID
	return nil
}

func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, errs.ErrNotFound
	}
	u := r.byID[id]
	return &u, nil
}

type rowKey struct{ product, date, contract, item string }

// PlanRepo is a map-backed PlanRepository keyed like the plan_rows table.
type PlanRepo struct {
	mu       sync.RWMutex
	products map[string]model.MediaProduct
	rows     map[rowKey]model.DetailRow
}

// NewPlanRepo returns an empty plan repository.
func NewPlanRepo() *PlanRepo {
	return &PlanRepo{products: map[string]model.MediaProduct{}, rows: map[rowKey]model.DetailRow{}}
}

func (r *PlanRepo) MediaProducts(context.Context) ([]model.MediaProduct, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.MediaProduct, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductCode < out[j].ProductCode })
	return out, nil
}

func (r *PlanRepo) UpsertMediaProduct(_ context.Context, p model.MediaProduct) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ProductCode] = p
	return nil
}

func (r *PlanRepo) DetailRows(_ context.Context, productCode, publicationDate, phaseNo string) ([]model.DetailRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.DetailRow
	for k, d := range r.rows {
		if k.product != productCode || k.date != publicationDate {
			continue
		}
		if phaseNo != "" && d.PhaseNo != phaseNo {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ContractNo != out[j].ContractNo {
			return out[i].ContractNo < out[j].ContractNo
		}
		return out[i].ItemNo < out[j].ItemNo
	})
	return out, nil
}

func (r *PlanRepo) UpsertDetailRow(_ context.Context, d model.DetailRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d.Raw = nil
	r.rows[rowKey{d.ProductCode, d.PublicationDate, d.ContractNo, d.ItemNo}] = d
	return nil
}

// SaveRows applies all rows under one lock; agent name and status of existing rows are kept.
func (r *PlanRepo) SaveRows(_ context.Context, rows []model.WriteRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range rows {
		k := rowKey{w.ProductCode, w.PublicationDate, w.ContractNo, w.ItemNo}
		prev := r.rows[k]
		r.rows[k] = model.DetailRow{
			ProductCode:         w.ProductCode,
			PublicationDate:     w.PublicationDate,
			PhaseNo:             w.PhaseNo,
			ContractNo:          w.ContractNo,
			ItemNo:              w.ItemNo,
			BusinessPartner:     w.BusinessPartner,
			BusinessPartnerName: prev.BusinessPartnerName,
			ItemCategory:        w.ItemCategory,
			ShipToParty:         w.ShipToParty,
			SalesOrg:            w.SalesOrg,
			DistributionChannel: w.DistributionChannel,
			Division:            w.Division,
			SalesUnit:           w.SalesUnit,
			SalesOffice:         w.SalesOffice,
			SalesGroup:          w.SalesGroup,
			SalesDistrict:       w.SalesDistrict,
			Quantity:            w.Quantity,
			Quantity1:           w.Quantity1,
			Quantity2:           w.Quantity2,
			Quantity3:           w.Quantity3,
			Quantity4:           w.Quantity4,
			Quantity5:           w.Quantity5,
			Quantity6:           w.Quantity6,
			Quantity7:           w.Quantity7,
			Quantity8:           w.Quantity8,
			Quantity9:           w.Quantity9,
			FixedIndicator:      w.FixedIndicator,
			MediaIssueStatus:    prev.MediaIssueStatus,
			UpdatedBy:           w.UpdatedBy,
		}
	}
	return nil
}
