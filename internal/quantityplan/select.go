package quantityplan

import (
	"fmt"
	"strconv"

	"github.com/and161185/qty-planner/internal/errs"
	"github.com/and161185/qty-planner/internal/fields"
	"github.com/and161185/qty-planner/internal/model"
)

// SelectRow returns the row whose contract and item match. Without a match it returns
// the first row with matched=false, or errs.ErrNoMatch when strict is set.
func SelectRow(rows []model.DetailRow, contractNo, itemNo string, strict bool) (model.DetailRow, bool, error) {
	if len(rows) == 0 {
		return model.DetailRow{}, false, fmt.Errorf("%w: detail view returned no rows", errs.ErrNotFound)
	}
	for _, r := range rows {
		if SameRecord(r, contractNo, itemNo) {
			return r, true, nil
		}
	}
	if strict {
		return model.DetailRow{}, false, fmt.Errorf("%w: contract %q item %q", errs.ErrNoMatch, contractNo, itemNo)
	}
	return rows[0], false, nil
}

// SameRecord reports whether row belongs to the given contract and item.
func SameRecord(row model.DetailRow, contractNo, itemNo string) bool {
	return Normalize(row.ContractNo) == Normalize(contractNo) && Normalize(row.ItemNo) == Normalize(itemNo)
}

// FormFromRow maps a detail row into editable form fields.
func FormFromRow(row model.DetailRow) model.FormState {
	itoa := func(n int64) string { return strconv.FormatInt(n, 10) }
	return model.FormState{
		BaseSupply:       pick(row.Raw, itoa(row.Quantity1), keysBaseSupply...),
		NightCorrections: pick(row.Raw, itoa(row.Quantity2), keysNightCorr...),
		DaysFigure:       pick(row.Raw, itoa(row.Quantity3), keysDaysFigure...),
		ExtraQuantity:    pick(row.Raw, itoa(row.Quantity4), keysExtraQuantity...),
		DeliveryQuantity: pick(row.Raw, itoa(row.Quantity), keysDelivery...),
		FixedQty:         row.FixedIndicator == 1,
		AgentName:        row.BusinessPartnerName,
		Status:           row.MediaIssueStatus,
	}
}

func pick(raw fields.Object, typed string, keys ...string) string {
	if s := fields.String(raw, keys...); s != "" {
		return s
	}
	return typed
}

// AgentFromRow is the agent-list projection of a detail row.
func AgentFromRow(row model.DetailRow) model.Agent {
	delivery, _ := fields.Int(row.Raw, keysDelivery...)
	if row.Raw == nil {
		delivery = row.Quantity
	}
	return model.Agent{
		Name:             row.BusinessPartnerName,
		ContractNo:       row.ContractNo,
		ItemNo:           row.ItemNo,
		ItemCategory:     row.ItemCategory,
		DeliveryQuantity: delivery,
		Status:           row.MediaIssueStatus,
	}
}
