package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/qty-planner/internal/model"
)

// PlanRepo implements PlanRepository using PostgreSQL.
type PlanRepo struct{ db *DB }

// NewPlanRepo constructs a plan repository.
func NewPlanRepo(db *DB) *PlanRepo { return &PlanRepo{db: db} }

// MediaProducts lists all products.
func (r *PlanRepo) MediaProducts(ctx context.Context) ([]model.MediaProduct, error) {
	const q = `SELECT product_code, product_desc, is_locked FROM media_products ORDER BY product_code`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MediaProduct
	for rows.Next() {
		var p model.MediaProduct
		if err := rows.Scan(&p.ProductCode, &p.ProductDesc, &p.IsLocked); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertMediaProduct inserts or replaces a product.
func (r *PlanRepo) UpsertMediaProduct(ctx context.Context, p model.MediaProduct) error {
	const q = `
INSERT INTO media_products (product_code, product_desc, is_locked)
VALUES ($1, $2, $3)
ON CONFLICT (product_code) DO UPDATE SET product_desc=EXCLUDED.product_desc, is_locked=EXCLUDED.is_locked`
	_, err := r.db.Pool.Exec(ctx, q, p.ProductCode, p.ProductDesc, p.IsLocked)
	return err
}

const rowColumns = `product_code, publication_date, phase_no, contract_no, item_no,
 business_partner, business_partner_name, item_category, ship_to_party,
 sales_org, distribution_channel, division, sales_unit, sales_office, sales_group, sales_district,
 quantity, quantity1, quantity2, quantity3, quantity4, quantity5, quantity6, quantity7, quantity8, quantity9,
 fixed_indicator, media_issue_status, updated_by`

// DetailRows returns rows ordered by contract and item.
func (r *PlanRepo) DetailRows(ctx context.Context, productCode, publicationDate, phaseNo string) ([]model.DetailRow, error) {
	const q = `SELECT ` + rowColumns + `
FROM plan_rows
WHERE product_code=$1 AND publication_date=$2 AND ($3 = '' OR phase_no=$3)
ORDER BY contract_no, item_no`
	rows, err := r.db.Pool.Query(ctx, q, productCode, publicationDate, phaseNo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DetailRow
	for rows.Next() {
		var d model.DetailRow
		if err := rows.Scan(
			&d.ProductCode, &d.PublicationDate, &d.PhaseNo, &d.ContractNo, &d.ItemNo,
			&d.BusinessPartner, &d.BusinessPartnerName, &d.ItemCategory, &d.ShipToParty,
			&d.SalesOrg, &d.DistributionChannel, &d.Division, &d.SalesUnit, &d.SalesOffice, &d.SalesGroup, &d.SalesDistrict,
			&d.Quantity, &d.Quantity1, &d.Quantity2, &d.Quantity3, &d.Quantity4,
			&d.Quantity5, &d.Quantity6, &d.Quantity7, &d.Quantity8, &d.Quantity9,
			&d.FixedIndicator, &d.MediaIssueStatus, &d.UpdatedBy,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpsertDetailRow inserts or fully replaces a row.
func (r *PlanRepo) UpsertDetailRow(ctx context.Context, d model.DetailRow) error {
	const q = `INSERT INTO plan_rows (` + rowColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29)
ON CONFLICT (product_code, publication_date, contract_no, item_no) DO UPDATE SET
 phase_no=EXCLUDED.phase_no, business_partner=EXCLUDED.business_partner,
 business_partner_name=EXCLUDED.business_partner_name, item_category=EXCLUDED.item_category,
 ship_to_party=EXCLUDED.ship_to_party, sales_org=EXCLUDED.sales_org,
 distribution_channel=EXCLUDED.distribution_channel, division=EXCLUDED.division,
 sales_unit=EXCLUDED.sales_unit, sales_office=EXCLUDED.sales_office, sales_group=EXCLUDED.sales_group,
 sales_district=EXCLUDED.sales_district, quantity=EXCLUDED.quantity, quantity1=EXCLUDED.quantity1,
 quantity2=EXCLUDED.quantity2, quantity3=EXCLUDED.quantity3, quantity4=EXCLUDED.quantity4,
 quantity5=EXCLUDED.quantity5, quantity6=EXCLUDED.quantity6, quantity7=EXCLUDED.quantity7,
 quantity8=EXCLUDED.quantity8, quantity9=EXCLUDED.quantity9, fixed_indicator=EXCLUDED.fixed_indicator,
 media_issue_status=EXCLUDED.media_issue_status, updated_by=EXCLUDED.updated_by, updated_at=now()`
	_, err := r.db.Pool.Exec(ctx, q,
		d.ProductCode, d.PublicationDate, d.PhaseNo, d.ContractNo, d.ItemNo,
		d.BusinessPartner, d.BusinessPartnerName, d.ItemCategory, d.ShipToParty,
		d.SalesOrg, d.DistributionChannel, d.Division, d.SalesUnit, d.SalesOffice, d.SalesGroup, d.SalesDistrict,
		d.Quantity, d.Quantity1, d.Quantity2, d.Quantity3, d.Quantity4,
		d.Quantity5, d.Quantity6, d.Quantity7, d.Quantity8, d.Quantity9,
		d.FixedIndicator, d.MediaIssueStatus, d.UpdatedBy)
	return err
}

// SaveRows upserts edited rows without touching business_partner_name or media_issue_status.
func (r *PlanRepo) SaveRows(ctx context.Context, rows []model.WriteRow) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const q = `INSERT INTO plan_rows (product_code, publication_date, phase_no, contract_no, item_no,
 business_partner, item_category, ship_to_party,
 sales_org, distribution_channel, division, sales_unit, sales_office, sales_group, sales_district,
 quantity, quantity1, quantity2, quantity3, quantity4, quantity5, quantity6, quantity7, quantity8, quantity9,
 fixed_indicator, updated_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27)
ON CONFLICT (product_code, publication_date, contract_no, item_no) DO UPDATE SET
 phase_no=EXCLUDED.phase_no, business_partner=EXCLUDED.business_partner, item_category=EXCLUDED.item_category,
 ship_to_party=EXCLUDED.ship_to_party, sales_org=EXCLUDED.sales_org,
 distribution_channel=EXCLUDED.distribution_channel, division=EXCLUDED.division,
 sales_unit=EXCLUDED.sales_unit, sales_office=EXCLUDED.sales_office, sales_group=EXCLUDED.sales_group,
 sales_district=EXCLUDED.sales_district, quantity=EXCLUDED.quantity, quantity1=EXCLUDED.quantity1,
 quantity2=EXCLUDED.quantity2, quantity3=EXCLUDED.quantity3, quantity4=EXCLUDED.quantity4,
 quantity5=EXCLUDED.quantity5, quantity6=EXCLUDED.quantity6, quantity7=EXCLUDED.quantity7,
 quantity8=EXCLUDED.quantity8, quantity9=EXCLUDED.quantity9, fixed_indicator=EXCLUDED.fixed_indicator,
 updated_by=EXCLUDED.updated_by, updated_at=now()`

	for i, w := range rows {
		if _, err = tx.Exec(ctx, q,
			w.ProductCode, w.PublicationDate, w.PhaseNo, w.ContractNo, w.ItemNo,
			w.BusinessPartner, w.ItemCategory, w.ShipToParty,
			w.SalesOrg, w.DistributionChannel, w.Division, w.SalesUnit, w.SalesOffice, w.SalesGroup, w.SalesDistrict,
			w.Quantity, w.Quantity1, w.Quantity2, w.Quantity3, w.Quantity4,
			w.Quantity5, w.Quantity6, w.Quantity7, w.Quantity8, w.Quantity9,
			w.FixedIndicator, w.UpdatedBy,
		); err != nil {
			return fmt.Errorf("row[%d]: %w", i, err)
		}
	}
	return nil
}
