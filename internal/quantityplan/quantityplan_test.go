package quantityplan

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/qty-planner/internal/errs"
	"github.com/and161185/qty-planner/internal/model"
)

type call struct {
	method string
	path   string
	body   []byte
}

type fakeDoer struct {
	responses map[string]string
	err       error
	calls     []call
}

var _ Doer = (*fakeDoer)(nil)

func (f *fakeDoer) DoJSON(_ context.Context, method, path string, in, out any) error {
	b, _ := json.Marshal(in)
	f.calls = append(f.calls, call{method: method, path: path, body: b})
	if f.err != nil {
		return f.err
	}
	resp, ok := f.responses[path]
	if !ok {
		return &errs.RemoteError{Status: http.StatusNotFound, Message: "not found"}
	}
	return json.Unmarshal([]byte(resp), out)
}

const detailABC = `{"data":[
 {"product_code":"P1","publication_date":"2025-09-24","phase_no":"10","contract_no":"A","item_no":"1",
  "business_partner":"BP-A","business_partner_name":"Alpha News","quantity":"5","quantity1":3,"quantity2":"-1",
  "quantity3":2,"quantity4":1,"quantity5":7,"fixed_indicator":"X","media_issue_status":"pre freeze print order",
  "sales_org":"2000","updated_by":"someone"},
 {"product_code":"P1","publication_date":"2025-09-24","contract_no":"B","itemNo":"0002",
  "agent_name":"Beta Kiosk","delivery_qty":"42","quantity":40,"base_supply":"30","quantity5":9,"quantity9":1,
  "fixed_indicator":0,"status":"pre freeze print order","sales_office":"S1"},
 {"product_code":"P1","publication_date":"2025-09-24","contractNo":"C","item_no":"3",
  "business_partner_name":"Gamma Stand","quantity":11,"media_issue_status":"frozen"}
]}`

func newService(t *testing.T, responses map[string]string, opts ...Option) (*Service, *fakeDoer) {
	t.Helper()
	d := &fakeDoer{responses: responses}
	return NewService(d, zaptest.NewLogger(t), opts...), d
}

func sel(contract, item string) model.Selection {
	return model.Selection{ProductCode: "P1", PublicationDate: "2025-09-24", ContractNo: contract, ItemNo: item}
}

func TestParseDetailRows_FieldFallbacks(t *testing.T) {
	rows, err := ParseDetailRows([]byte(detailABC))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	a := rows[0]
	require.Equal(t, "Alpha News", a.BusinessPartnerName)
	require.EqualValues(t, 5, a.Quantity)
	require.EqualValues(t, -1, a.Quantity2)
	require.EqualValues(t, 7, a.Quantity5)
	require.Equal(t, 1, a.FixedIndicator)

	b := rows[1]
	require.Equal(t, "0002", b.ItemNo)
	require.Equal(t, "Beta Kiosk", b.BusinessPartnerName)
	require.EqualValues(t, 40, b.Quantity)
	require.EqualValues(t, 30, b.Quantity1)
	require.Equal(t, "pre freeze print order", b.MediaIssueStatus)

	require.Equal(t, "C", rows[2].ContractNo)
}

func TestParseDetailRows_Shapes(t *testing.T) {
	for name, body := range map[string]string{
		"bare array":  `[{"contract_no":"A","item_no":"1"}]`,
		"nested rows": `{"data":{"detail_rows":[{"contract_no":"A","item_no":"1"}]}}`,
	} {
		t.Run(name, func(t *testing.T) {
			rows, err := ParseDetailRows([]byte(body))
			require.NoError(t, err)
			require.Len(t, rows, 1)
			require.Equal(t, "A", rows[0].ContractNo)
		})
	}

	_, err := ParseDetailRows([]byte(`{"data":"nope"}`))
	require.Error(t, err)
	_, err = ParseDetailRows([]byte(`not json`))
	require.Error(t, err)
}

func TestNormalize(t *testing.T) {
	require.Equal(t, "2", Normalize(" 0002 "))
	require.Equal(t, "0", Normalize("000"))
	require.Equal(t, "B", Normalize("B"))
	require.Equal(t, "0B", Normalize("0B"))
	require.Equal(t, "", Normalize("  "))
}

func TestLoadDetail_SelectsExactMatch(t *testing.T) {
	s, d := newService(t, map[string]string{PathDetailView: detailABC})

	det, err := s.LoadDetail(context.Background(), sel("B", "2"), model.FormState{})
	require.NoError(t, err)
	require.True(t, det.Matched)
	require.NotNil(t, det.Row)
	require.Equal(t, "B", det.Row.ContractNo)
	require.Equal(t, "Beta Kiosk", det.Form.AgentName)
	require.Equal(t, "42", det.Form.DeliveryQuantity)
	require.Equal(t, "30", det.Form.BaseSupply)
	require.False(t, det.Form.FixedQty)

	require.Len(t, d.calls, 1)
	require.Equal(t, http.MethodPost, d.calls[0].method)
	require.JSONEq(t, `{"product_code":"P1","publication_date":"2025-09-24"}`, string(d.calls[0].body))
}

func TestLoadDetail_FallsBackToFirstRow(t *testing.T) {
	s, _ := newService(t, map[string]string{PathDetailView: detailABC})

	det, err := s.LoadDetail(context.Background(), sel("D", "9"), model.FormState{})
	require.NoError(t, err)
	require.False(t, det.Matched)
	require.Equal(t, "A", det.Row.ContractNo)
	require.Equal(t, "Alpha News", det.Form.AgentName)
	require.True(t, det.Form.FixedQty)
}

func TestLoadDetail_StrictMatch(t *testing.T) {
	s, _ := newService(t, map[string]string{PathDetailView: detailABC}, WithStrictMatch(true))
	prior := model.FormState{DeliveryQuantity: "7"}

	det, err := s.LoadDetail(context.Background(), sel("D", "9"), prior)
	require.ErrorIs(t, err, errs.ErrNoMatch)
	require.Nil(t, det.Row)
	require.Equal(t, prior, det.Form)
}

func TestLoadDetail_FailureKeepsPriorForm(t *testing.T) {
	prior := model.FormState{DeliveryQuantity: "3", AgentName: "kept"}
	d := &fakeDoer{err: errors.Join(errs.ErrTransport, errors.New("dial"))}
	s := NewService(d, zaptest.NewLogger(t))

	det, err := s.LoadDetail(context.Background(), sel("A", "1"), prior)
	require.ErrorIs(t, err, errs.ErrTransport)
	require.Equal(t, prior, det.Form)
	require.Nil(t, det.Row)

	s2, _ := newService(t, map[string]string{PathDetailView: `{"data":[]}`})
	det, err = s2.LoadDetail(context.Background(), sel("A", "1"), prior)
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.Equal(t, prior, det.Form)
}

func TestFormFromRow_DeliveryDefaultsToZero(t *testing.T) {
	f := FormFromRow(model.DetailRow{})
	require.Equal(t, "0", f.DeliveryQuantity)
}

func TestBuildWritePayload_NoRowStillFillsMandatoryFields(t *testing.T) {
	form := model.FormState{DeliveryQuantity: "0"}
	out, err := BuildWritePayload(form, nil, sel("A", "1"), nil)
	require.NoError(t, err)

	b, err := json.Marshal(out)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	for _, k := range []string{
		"product_code", "publication_date", "contract_no", "item_no", "phase_no",
		"quantity5", "quantity6", "quantity7", "quantity8", "quantity9", "updated_by",
		"sales_org", "distribution_channel", "division", "item_category",
	} {
		v, ok := m[k]
		require.True(t, ok, k)
		require.NotNil(t, v, k)
	}
	require.Equal(t, DefaultPhase, out.PhaseNo)
	require.Equal(t, DefaultSalesOrg, out.SalesOrg)
	require.Equal(t, DefaultItemCategory, out.ItemCategory)
	require.Equal(t, DefaultUpdatedBy, out.UpdatedBy)
	require.Zero(t, out.Quantity)
}

func TestBuildWritePayload_DefaultsFromMatchingRow(t *testing.T) {
	rows, err := ParseDetailRows([]byte(detailABC))
	require.NoError(t, err)
	row := rows[0]
	form := model.FormState{BaseSupply: "4", NightCorrections: "-2", DaysFigure: "", ExtraQuantity: "1", DeliveryQuantity: " 12 ", FixedQty: true}
	user := &model.UserIdentity{ID: "u-7"}

	out, err := BuildWritePayload(form, &row, sel("A", "1"), user)
	require.NoError(t, err)
	require.Equal(t, "10", out.PhaseNo)
	require.Equal(t, "BP-A", out.BusinessPartner)
	require.Equal(t, "2000", out.SalesOrg)
	require.EqualValues(t, 12, out.Quantity)
	require.EqualValues(t, 4, out.Quantity1)
	require.EqualValues(t, -2, out.Quantity2)
	require.EqualValues(t, 0, out.Quantity3)
	require.EqualValues(t, 7, out.Quantity5)
	require.Equal(t, 1, out.FixedIndicator)
	require.Equal(t, "u-7", out.UpdatedBy)

	out, err = BuildWritePayload(form, &row, sel("A", "1"), nil)
	require.NoError(t, err)
	require.Equal(t, "someone", out.UpdatedBy)
}

func TestBuildWritePayload_IgnoresUnmatchedRow(t *testing.T) {
	rows, err := ParseDetailRows([]byte(detailABC))
	require.NoError(t, err)
	fallback := rows[0]

	out, err := BuildWritePayload(model.FormState{DeliveryQuantity: "1"}, &fallback, sel("D", "9"), nil)
	require.NoError(t, err)
	require.Equal(t, "D", out.ContractNo)
	require.Empty(t, out.BusinessPartner)
	require.Equal(t, DefaultSalesOrg, out.SalesOrg)
	require.Zero(t, out.Quantity5)
}

func TestBuildWritePayload_NegativeQuantities(t *testing.T) {
	form := model.FormState{BaseSupply: "-3", ExtraQuantity: "-1", DaysFigure: "-2", DeliveryQuantity: "-5"}
	out, err := BuildWritePayload(form, nil, sel("A", "1"), nil)
	require.NoError(t, err)
	require.EqualValues(t, -3, out.Quantity1)
	require.EqualValues(t, -2, out.Quantity3)
	require.EqualValues(t, -1, out.Quantity4)
	require.EqualValues(t, -5, out.Quantity)

	// a fetched negative base supply must not block saving a changed delivery quantity
	row := model.DetailRow{ProductCode: "P1", PublicationDate: "2025-09-24", ContractNo: "A", ItemNo: "1", Quantity1: -4}
	form = FormFromRow(row)
	require.Equal(t, "-4", form.BaseSupply)
	form.DeliveryQuantity = "8"
	out, err = BuildWritePayload(form, &row, sel("A", "1"), nil)
	require.NoError(t, err)
	require.EqualValues(t, -4, out.Quantity1)
	require.EqualValues(t, 8, out.Quantity)
	require.NoError(t, ValidateWriteRow(out))
}

func TestBuildWritePayload_Validation(t *testing.T) {
	ok := model.FormState{DeliveryQuantity: "0"}
	cases := []struct {
		name string
		form model.FormState
		sel  model.Selection
		want string
	}{
		{"missing contract", ok, sel("", "1"), "contract_no is required"},
		{"missing item", ok, sel("A", " "), "item_no is required"},
		{"missing product", ok, model.Selection{PublicationDate: "2025-09-24", ContractNo: "A", ItemNo: "1"}, "product_code is required"},
		{"missing date", ok, model.Selection{ProductCode: "P1", ContractNo: "A", ItemNo: "1"}, "publication_date is required"},
		{"empty delivery", model.FormState{}, sel("A", "1"), "delivery quantity is required"},
		{"non-integer delivery", model.FormState{DeliveryQuantity: "1.5"}, sel("A", "1"), "delivery quantity must be a whole number"},
		{"non-integer base", model.FormState{DeliveryQuantity: "1", BaseSupply: "abc"}, sel("A", "1"), "base supply must be a whole number"},
		{"non-integer corrections", model.FormState{DeliveryQuantity: "1", NightCorrections: "x"}, sel("A", "1"), "night corrections must be a whole number"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BuildWritePayload(tc.form, nil, tc.sel, nil)
			require.ErrorIs(t, err, errs.ErrValidation)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestSave(t *testing.T) {
	row, err := BuildWritePayload(model.FormState{DeliveryQuantity: "9"}, nil, sel("A", "1"), &model.UserIdentity{ID: "u-1"})
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		s, d := newService(t, map[string]string{PathSave: `{"status_code":200}`})
		require.NoError(t, s.Save(context.Background(), row))
		require.Len(t, d.calls, 1)
		var body struct {
			PublicationDate string           `json:"publication_date"`
			DetailRows      []map[string]any `json:"detail_rows"`
		}
		require.NoError(t, json.Unmarshal(d.calls[0].body, &body))
		require.Equal(t, "2025-09-24", body.PublicationDate)
		require.Len(t, body.DetailRows, 1)
		require.EqualValues(t, 9, body.DetailRows[0]["quantity"])
	})

	t.Run("string status code", func(t *testing.T) {
		s, _ := newService(t, map[string]string{PathSave: `{"status_code":"200"}`})
		require.NoError(t, s.Save(context.Background(), row))
	})

	t.Run("server failure message", func(t *testing.T) {
		s, _ := newService(t, map[string]string{PathSave: `{"status_code":500,"message":"Plan is frozen"}`})
		err := s.Save(context.Background(), row)
		var re *errs.RemoteError
		require.ErrorAs(t, err, &re)
		require.Equal(t, "Plan is frozen", re.Message)
		require.Equal(t, "Plan is frozen", errs.UserMessage(err))
	})

	t.Run("invalid row is never sent", func(t *testing.T) {
		s, d := newService(t, nil)
		err := s.Save(context.Background(), model.WriteRow{})
		require.ErrorIs(t, err, errs.ErrValidation)
		require.Empty(t, d.calls)
	})
}

func TestMediaProducts(t *testing.T) {
	s, d := newService(t, map[string]string{PathMasterData: `{"data":{"MediaProduct":[
		{"product_code":"P1","product_desc":"Daily"},
		{"product_code":"P2","product_desc":"Weekly","is_locked":true},
		{"product_desc":"no code"}]}}`})

	list, err := s.MediaProducts(context.Background())
	require.NoError(t, err)
	require.Equal(t, []model.MediaProduct{
		{ProductCode: "P1", ProductDesc: "Daily"},
		{ProductCode: "P2", ProductDesc: "Weekly", IsLocked: true},
	}, list)
	require.JSONEq(t, `{"masters":["MediaProduct"]}`, string(d.calls[0].body))
}

func TestAgentsAndFilter(t *testing.T) {
	s, d := newService(t, map[string]string{PathDetailView: detailABC})

	list, err := s.Agents(context.Background(), "P1", "2025-09-24", "10")
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, model.Agent{
		Name: "Beta Kiosk", ContractNo: "B", ItemNo: "0002", DeliveryQuantity: 42, Status: "pre freeze print order",
	}, list[1])
	require.JSONEq(t, `{"product_code":"P1","publication_date":"2025-09-24","phase_no":"10"}`, string(d.calls[0].body))

	require.Len(t, FilterAgents(list, ""), 3)
	got := FilterAgents(list, " KIOSK ")
	require.Len(t, got, 1)
	require.Equal(t, "B", got[0].ContractNo)
	require.Empty(t, FilterAgents(list, "delta"))
}

func TestEditable(t *testing.T) {
	require.True(t, Editable("Pre freeze print order"))
	require.True(t, Editable(""))
	require.False(t, Editable("frozen"))
}

func TestEdit_Apply(t *testing.T) {
	str := func(s string) *string { return &s }
	yes := true

	form := model.FormState{BaseSupply: "1", DeliveryQuantity: "2", Status: "pre freeze"}
	out, err := Edit{BaseSupply: str("5"), FixedQty: &yes}.Apply(form)
	require.NoError(t, err)
	require.Equal(t, "5", out.BaseSupply)
	require.Equal(t, "2", out.DeliveryQuantity)
	require.True(t, out.FixedQty)

	frozen := model.FormState{BaseSupply: "1", Status: "frozen"}
	_, err = Edit{DaysFigure: str("3")}.Apply(frozen)
	require.ErrorIs(t, err, errs.ErrValidation)

	out, err = Edit{DeliveryQuantity: str("8")}.Apply(frozen)
	require.NoError(t, err)
	require.Equal(t, "8", out.DeliveryQuantity)
}
