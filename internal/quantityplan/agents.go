package quantityplan

import (
	"strings"

	"github.com/and161185/qty-planner/internal/errs"
	"github.com/and161185/qty-planner/internal/model"
)

const preFreeze = "pre freeze"

// FilterAgents keeps agents whose name contains query, case-insensitively.
func FilterAgents(list []model.Agent, query string) []model.Agent {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return list
	}
	var out []model.Agent
	for _, a := range list {
		if strings.Contains(strings.ToLower(a.Name), q) {
			out = append(out, a)
		}
	}
	return out
}

// Editable reports whether the supply fields may still change. An unknown status is editable.
func Editable(status string) bool {
	s := strings.ToLower(strings.TrimSpace(status))
	return s == "" || strings.HasPrefix(s, preFreeze)
}

// Edit is a set of form changes; nil fields are left as they are.
type Edit struct {
	BaseSupply       *string
	NightCorrections *string
	DaysFigure       *string
	ExtraQuantity    *string
	DeliveryQuantity *string
	FixedQty         *bool
}

// Apply returns form with e applied. Supply fields are locked once the status is past pre-freeze;
// delivery quantity and the fixed flag stay editable.
func (e Edit) Apply(form model.FormState) (model.FormState, error) {
	orig := form
	locked := !Editable(form.Status)
	for _, f := range []struct {
		src   *string
		dst   *string
		label string
	}{
		{e.BaseSupply, &form.BaseSupply, "base supply"},
		{e.NightCorrections, &form.NightCorrections, "night corrections"},
		{e.DaysFigure, &form.DaysFigure, "days figure"},
		{e.ExtraQuantity, &form.ExtraQuantity, "extra quantity"},
	} {
		if f.src == nil {
			continue
		}
		if locked {
			return orig, errs.Validation("%s is locked while status is %q", f.label, form.Status)
		}
		*f.dst = *f.src
	}
	if e.DeliveryQuantity != nil {
		form.DeliveryQuantity = *e.DeliveryQuantity
	}
	if e.FixedQty != nil {
		form.FixedQty = *e.FixedQty
	}
	return form, nil
}
