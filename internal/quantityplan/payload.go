package quantityplan

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/and161185/qty-planner/internal/errs"
	"github.com/and161185/qty-planner/internal/model"
)

// Fallbacks used when no matching detail row was fetched.
const (
	DefaultPhase               = "10"
	DefaultSalesOrg            = "1000"
	DefaultDistributionChannel = "10"
	DefaultDivision            = "10"
	DefaultItemCategory        = "KMN"
	DefaultUpdatedBy           = "mobapp"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

var labels = map[string]string{
	"ProductCode":      "product_code",
	"PublicationDate":  "publication_date",
	"ContractNo":       "contract_no",
	"ItemNo":           "item_no",
	"BaseSupply":       "base supply",
	"DaysFigure":       "days figure",
	"ExtraQuantity":    "extra quantity",
	"DeliveryQuantity": "delivery quantity",
	"UpdatedBy":        "updated_by",
	"FixedIndicator":   "fixed_indicator",
}

// BuildWritePayload assembles the save row. Identifiers come from sel, quantities from
// form, everything else from row when it belongs to sel, else from the defaults above.
// It never touches the network; failures wrap errs.ErrValidation.
func BuildWritePayload(form model.FormState, row *model.DetailRow, sel model.Selection, user *model.UserIdentity) (model.WriteRow, error) {
	sel = trimSelection(sel)
	if err := check(sel); err != nil {
		return model.WriteRow{}, err
	}
	form = trimForm(form)
	if err := check(form); err != nil {
		return model.WriteRow{}, err
	}
	var base, night, days, extra, delivery int64
	for _, q := range []struct {
		dst   *int64
		text  string
		label string
	}{
		{&base, form.BaseSupply, "base supply"},
		{&night, form.NightCorrections, "night corrections"},
		{&days, form.DaysFigure, "days figure"},
		{&extra, form.ExtraQuantity, "extra quantity"},
		{&delivery, form.DeliveryQuantity, "delivery quantity"},
	} {
		n, err := parseQty(q.text, q.label)
		if err != nil {
			return model.WriteRow{}, err
		}
		*q.dst = n
	}

	// a fallback row belongs to another agent and must not leak into the payload
	if row != nil && !SameRecord(*row, sel.ContractNo, sel.ItemNo) {
		row = nil
	}
	var src model.DetailRow
	if row != nil {
		src = *row
	}

	out := model.WriteRow{
		ProductCode:         sel.ProductCode,
		PublicationDate:     sel.PublicationDate,
		PhaseNo:             firstOf(sel.PhaseNo, src.PhaseNo, DefaultPhase),
		ContractNo:          sel.ContractNo,
		ItemNo:              sel.ItemNo,
		BusinessPartner:     src.BusinessPartner,
		ItemCategory:        firstOf(src.ItemCategory, DefaultItemCategory),
		ShipToParty:         firstOf(src.ShipToParty, src.BusinessPartner),
		SalesOrg:            firstOf(src.SalesOrg, DefaultSalesOrg),
		DistributionChannel: firstOf(src.DistributionChannel, DefaultDistributionChannel),
		Division:            firstOf(src.Division, DefaultDivision),
		SalesUnit:           src.SalesUnit,
		SalesOffice:         src.SalesOffice,
		SalesGroup:          src.SalesGroup,
		SalesDistrict:       src.SalesDistrict,
		Quantity:            delivery,
		Quantity1:           base,
		Quantity2:           night,
		Quantity3:           days,
		Quantity4:           extra,
		Quantity5:           src.Quantity5,
		Quantity6:           src.Quantity6,
		Quantity7:           src.Quantity7,
		Quantity8:           src.Quantity8,
		Quantity9:           src.Quantity9,
		UpdatedBy:           DefaultUpdatedBy,
	}
	if form.FixedQty {
		out.FixedIndicator = 1
	}
	if user != nil && strings.TrimSpace(user.ID) != "" {
		out.UpdatedBy = strings.TrimSpace(user.ID)
	} else if src.UpdatedBy != "" {
		out.UpdatedBy = src.UpdatedBy
	}
	if err := check(out); err != nil {
		return model.WriteRow{}, err
	}
	return out, nil
}

// ValidateWriteRow checks a row built elsewhere (the server validates incoming rows with it).
func ValidateWriteRow(row model.WriteRow) error { return check(row) }

func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) || len(ves) == 0 {
		return errs.Validation("%v", err)
	}
	fe := ves[0]
	label := labels[fe.StructField()]
	if label == "" {
		label = fe.Field()
	}
	switch fe.Tag() {
	case "required":
		return errs.Validation("%s is required", label)
	default:
		return errs.Validation("%s is invalid", label)
	}
}

func parseQty(s, label string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errs.Validation("%s must be a whole number", label)
	}
	return n, nil
}

func trimSelection(s model.Selection) model.Selection {
	s.ProductCode = strings.TrimSpace(s.ProductCode)
	s.PublicationDate = strings.TrimSpace(s.PublicationDate)
	s.PhaseNo = strings.TrimSpace(s.PhaseNo)
	s.ContractNo = strings.TrimSpace(s.ContractNo)
	s.ItemNo = strings.TrimSpace(s.ItemNo)
	return s
}

func trimForm(f model.FormState) model.FormState {
	f.BaseSupply = strings.TrimSpace(f.BaseSupply)
	f.NightCorrections = strings.TrimSpace(f.NightCorrections)
	f.DaysFigure = strings.TrimSpace(f.DaysFigure)
	f.ExtraQuantity = strings.TrimSpace(f.ExtraQuantity)
	f.DeliveryQuantity = strings.TrimSpace(f.DeliveryQuantity)
	return f
}

func firstOf(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
