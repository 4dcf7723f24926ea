package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/qty-planner/internal/errs"
	"github.com/and161185/qty-planner/internal/model"
	"github.com/and161185/qty-planner/internal/repository"
)

// Demo account and data created by SeedDemo.
const (
	DemoEmail       = "trainee@astiro-systems.com"
	DemoPassword    = "Astiro@2025"
	DemoProduct     = "DAILY01"
	DemoPublication = "2025-09-24"
)

// SeedDemo registers the demo user and a small product/agent data set. It is idempotent.
func SeedDemo(ctx context.Context, auth AuthService, plans repository.PlanRepository) error {
	_, err := auth.Register(ctx, Registration{Email: DemoEmail, Password: DemoPassword, FirstName: "Demo", LastName: "Trainee"})
	if err != nil && !errors.Is(err, errs.ErrAlreadyExists) {
		return fmt.Errorf("seed demo user: %w", err)
	}
	for _, p := range []model.MediaProduct{
		{ProductCode: DemoProduct, ProductDesc: "Daily Courier"},
		{ProductCode: "WEEKLY01", ProductDesc: "Weekend Magazine"},
		{ProductCode: "ARCHIVE", ProductDesc: "Archived title", IsLocked: true},
	} {
		if err := plans.UpsertMediaProduct(ctx, p); err != nil {
			return fmt.Errorf("seed product %s: %w", p.ProductCode, err)
		}
	}
	agents := []struct{ contract, item, partner, name string }{
		{"4000001", "10", "BP1001", "Central Station Kiosk"},
		{"4000002", "10", "BP1002", "Harbour News"},
		{"4000003", "20", "BP1003", "Airport Press Shop"},
	}
	for i, a := range agents {
		row := model.DetailRow{
			ProductCode:         DemoProduct,
			PublicationDate:     DemoPublication,
			PhaseNo:             "10",
			ContractNo:          a.contract,
			ItemNo:              a.item,
			BusinessPartner:     a.partner,
			BusinessPartnerName: a.name,
			ItemCategory:        "KMN",
			ShipToParty:         a.partner,
			SalesOrg:            "1000",
			DistributionChannel: "10",
			Division:            "10",
			Quantity:            int64(20 + 10*i),
			Quantity1:           int64(20 + 10*i),
			MediaIssueStatus:    "pre freeze print order",
			UpdatedBy:           "seed",
		}
		if err := plans.UpsertDetailRow(ctx, row); err != nil {
			return fmt.Errorf("seed row %s/%s: %w", a.contract, a.item, err)
		}
	}
	return nil
}
