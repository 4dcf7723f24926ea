package quantityplan

import (
	"fmt"
	"strings"

	"github.com/and161185/qty-planner/internal/fields"
	"github.com/and161185/qty-planner/internal/model"
)

// Key fallbacks per detail-row field, most specific first.
var (
	keysProductCode     = []string{"product_code", "productCode"}
	keysPublicationDate = []string{"publication_date", "publicationDate"}
	keysPhaseNo         = []string{"phase_no", "phaseNo", "phase"}
	keysContractNo      = []string{"contract_no", "contractNo", "contract"}
	keysItemNo          = []string{"item_no", "itemNo", "item"}
	keysPartner         = []string{"business_partner", "businessPartner", "agent_no"}
	keysPartnerName     = []string{"business_partner_name", "agent_name", "bp_name", "name"}
	keysQuantity        = []string{"quantity", "delivery_qty", "delivery_quantity"}
	keysBaseSupply      = []string{"quantity1", "base_supply"}
	keysNightCorr       = []string{"quantity2", "night_corrections"}
	keysDaysFigure      = []string{"quantity3", "days_figure"}
	keysExtraQuantity   = []string{"quantity4", "extra_quantity"}
	keysFixed           = []string{"fixed_indicator", "fixed_qty", "is_fixed"}
	keysStatus          = []string{"media_issue_status", "status"}

	// The form prefers the delivery-specific keys over the generic quantity.
	keysDelivery = []string{"delivery_qty", "delivery_quantity", "quantity"}
)

// ParseDetailRows decodes a detail-view response. The rows may be the top-level
// array, the "data" array, or "data.detail_rows".
func ParseDetailRows(body []byte) ([]model.DetailRow, error) {
	var top any
	if err := fields.Decode(body, &top); err != nil {
		return nil, fmt.Errorf("decode detail view: %w", err)
	}
	list, ok := rowList(top)
	if !ok {
		return nil, fmt.Errorf("detail view: no row list in response")
	}
	rows := make([]model.DetailRow, 0, len(list))
	for _, item := range list {
		o, ok := item.(fields.Object)
		if !ok {
			continue
		}
		rows = append(rows, ParseDetailRow(o))
	}
	return rows, nil
}

func rowList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case fields.Object:
		if d, ok := t["data"]; ok {
			return rowList(d)
		}
		if d, ok := t["detail_rows"]; ok {
			return rowList(d)
		}
	}
	return nil, false
}

// ParseDetailRow maps one loosely-shaped server object onto a DetailRow.
func ParseDetailRow(o fields.Object) model.DetailRow {
	r := model.DetailRow{
		ProductCode:         fields.String(o, keysProductCode...),
		PublicationDate:     fields.String(o, keysPublicationDate...),
		PhaseNo:             fields.String(o, keysPhaseNo...),
		ContractNo:          fields.String(o, keysContractNo...),
		ItemNo:              fields.String(o, keysItemNo...),
		BusinessPartner:     fields.String(o, keysPartner...),
		BusinessPartnerName: fields.String(o, keysPartnerName...),
		ItemCategory:        fields.String(o, "item_category", "itemCategory"),
		ShipToParty:         fields.String(o, "ship_to_party", "shipToParty"),
		SalesOrg:            fields.String(o, "sales_org"),
		DistributionChannel: fields.String(o, "distribution_channel"),
		Division:            fields.String(o, "division"),
		SalesUnit:           fields.String(o, "sales_unit"),
		SalesOffice:         fields.String(o, "sales_office"),
		SalesGroup:          fields.String(o, "sales_group"),
		SalesDistrict:       fields.String(o, "sales_district"),
		MediaIssueStatus:    fields.String(o, keysStatus...),
		UpdatedBy:           fields.String(o, "updated_by"),
		Raw:                 o,
	}
	r.Quantity, _ = fields.Int(o, keysQuantity...)
	r.Quantity1, _ = fields.Int(o, keysBaseSupply...)
	r.Quantity2, _ = fields.Int(o, keysNightCorr...)
	r.Quantity3, _ = fields.Int(o, keysDaysFigure...)
	r.Quantity4, _ = fields.Int(o, keysExtraQuantity...)
	r.Quantity5, _ = fields.Int(o, "quantity5")
	r.Quantity6, _ = fields.Int(o, "quantity6")
	r.Quantity7, _ = fields.Int(o, "quantity7")
	r.Quantity8, _ = fields.Int(o, "quantity8")
	r.Quantity9, _ = fields.Int(o, "quantity9")
	if fixed, ok := fields.Bool(o, keysFixed...); ok && fixed {
		r.FixedIndicator = 1
	}
	return r
}

// ParseMediaProducts decodes a master-data response holding the MediaProduct list.
func ParseMediaProducts(body []byte) ([]model.MediaProduct, error) {
	var top fields.Object
	if err := fields.Decode(body, &top); err != nil {
		return nil, fmt.Errorf("decode master data: %w", err)
	}
	data, _ := top["data"].(fields.Object)
	list, ok := data["MediaProduct"].([]any)
	if !ok {
		return nil, fmt.Errorf("master data: MediaProduct list missing")
	}
	out := make([]model.MediaProduct, 0, len(list))
	for _, item := range list {
		o, ok := item.(fields.Object)
		if !ok {
			continue
		}
		p := model.MediaProduct{
			ProductCode: fields.String(o, keysProductCode...),
			ProductDesc: fields.String(o, "product_desc", "productDesc", "description"),
		}
		p.IsLocked, _ = fields.Bool(o, "is_locked", "isLocked")
		if p.ProductCode == "" {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Normalize trims s and strips leading zeros from all-digit values, so "0002" equals "2".
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return s
	}
	s = strings.TrimLeft(s, "0")
	if s == "" {
		return "0"
	}
	return s
}
