// Package quantityplan loads, reconciles and saves per-agent quantity-plan records.
package quantityplan

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/and161185/qty-planner/internal/errs"
	"github.com/and161185/qty-planner/internal/fields"
	"github.com/and161185/qty-planner/internal/model"
)

// Endpoint paths.
const (
	PathMasterData = "/fetch-master-data"
	PathDetailView = "/mobapp_get_detail_view"
	PathSave       = "/save_quantity_plan_media_issue"
)

// SaveSuccessCode is the status_code the save endpoint reports on success.
const SaveSuccessCode = 200

// Doer sends authenticated JSON calls; *gateway.Gateway satisfies it.
type Doer interface {
	DoJSON(ctx context.Context, method, path string, in, out any) error
}

// Detail is the outcome of LoadDetail.
type Detail struct {
	Form model.FormState
	// Row is the selected server row, kept for save defaulting and the details view.
	Row *model.DetailRow
	// Matched is false when Row is a fallback that does not belong to the requested contract/item.
	Matched bool
}

// Service is the quantity-plan reconciler.
type Service struct {
	gw     Doer
	log    *zap.Logger
	strict bool
}

// Option configures a Service.
type Option func(*Service)

// WithStrictMatch makes LoadDetail fail with errs.ErrNoMatch instead of falling back to the first row.
func WithStrictMatch(strict bool) Option { return func(s *Service) { s.strict = strict } }

// NewService wires the reconciler to an authenticated gateway.
func NewService(gw Doer, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{gw: gw, log: log}
	for _, o := range opts {
		o(s)
	}
	return s
}

// MediaProducts lists the products for the product picker.
func (s *Service) MediaProducts(ctx context.Context) ([]model.MediaProduct, error) {
	var raw json.RawMessage
	body := map[string][]string{"masters": {"MediaProduct"}}
	if err := s.gw.DoJSON(ctx, http.MethodPost, PathMasterData, body, &raw); err != nil {
		return nil, fmt.Errorf("fetch media products: %w", err)
	}
	return ParseMediaProducts(raw)
}

// DetailRows returns every row of a product/date (and phase, when set).
func (s *Service) DetailRows(ctx context.Context, productCode, publicationDate, phaseNo string) ([]model.DetailRow, error) {
	if productCode == "" || publicationDate == "" {
		return nil, errs.Validation("product_code and publication_date are required")
	}
	body := map[string]string{"product_code": productCode, "publication_date": publicationDate}
	if phaseNo != "" {
		body["phase_no"] = phaseNo
	}
	var raw json.RawMessage
	if err := s.gw.DoJSON(ctx, http.MethodPost, PathDetailView, body, &raw); err != nil {
		return nil, fmt.Errorf("fetch detail view: %w", err)
	}
	return ParseDetailRows(raw)
}

// Agents lists the agents of a product/date selection.
func (s *Service) Agents(ctx context.Context, productCode, publicationDate, phaseNo string) ([]model.Agent, error) {
	rows, err := s.DetailRows(ctx, productCode, publicationDate, phaseNo)
	if err != nil {
		return nil, err
	}
	out := make([]model.Agent, 0, len(rows))
	for _, r := range rows {
		out = append(out, AgentFromRow(r))
	}
	return out, nil
}

// LoadDetail fetches the rows of sel's product/date and selects sel's contract/item.
// On any failure the returned form is prior, so callers can always render it; the
// error is returned for information only.
func (s *Service) LoadDetail(ctx context.Context, sel model.Selection, prior model.FormState) (Detail, error) {
	sel = trimSelection(sel)
	rows, err := s.DetailRows(ctx, sel.ProductCode, sel.PublicationDate, sel.PhaseNo)
	if err != nil {
		s.log.Warn("load detail failed", zap.String("product_code", sel.ProductCode),
			zap.String("publication_date", sel.PublicationDate), zap.Error(err))
		return Detail{Form: prior}, err
	}
	row, matched, err := SelectRow(rows, sel.ContractNo, sel.ItemNo, s.strict)
	if err != nil {
		s.log.Warn("no detail row for selection", zap.String("contract_no", sel.ContractNo),
			zap.String("item_no", sel.ItemNo), zap.Int("rows", len(rows)), zap.Error(err))
		return Detail{Form: prior}, err
	}
	if !matched {
		s.log.Warn("no detail row matches selection, showing first row",
			zap.String("contract_no", sel.ContractNo), zap.String("item_no", sel.ItemNo),
			zap.String("fallback_contract_no", row.ContractNo), zap.String("fallback_item_no", row.ItemNo))
	}
	return Detail{Form: FormFromRow(row), Row: &row, Matched: matched}, nil
}

// Save posts one row. Success is a status_code of SaveSuccessCode; anything else is
// a *errs.RemoteError carrying the server message. Saves are never retried.
func (s *Service) Save(ctx context.Context, row model.WriteRow) error {
	if err := ValidateWriteRow(row); err != nil {
		return err
	}
	body := struct {
		PublicationDate string           `json:"publication_date"`
		DetailRows      []model.WriteRow `json:"detail_rows"`
	}{row.PublicationDate, []model.WriteRow{row}}

	var raw json.RawMessage
	if err := s.gw.DoJSON(ctx, http.MethodPost, PathSave, body, &raw); err != nil {
		return fmt.Errorf("save quantity plan: %w", err)
	}
	var resp fields.Object
	if err := fields.Decode(raw, &resp); err != nil {
		return &errs.RemoteError{Message: "Save failed: unreadable response"}
	}
	code, ok := fields.Int(resp, "status_code", "statusCode")
	if !ok || code != SaveSuccessCode {
		return &errs.RemoteError{Status: int(code), Message: fields.StringOr(resp, "Save failed", "message", "error")}
	}
	s.log.Info("quantity plan saved", zap.String("product_code", row.ProductCode),
		zap.String("contract_no", row.ContractNo), zap.String("item_no", row.ItemNo))
	return nil
}
