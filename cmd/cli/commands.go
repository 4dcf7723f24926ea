package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/and161185/qty-planner/internal/errs"
	"github.com/and161185/qty-planner/internal/model"
	"github.com/and161185/qty-planner/internal/quantityplan"
	"github.com/and161185/qty-planner/internal/session"
)

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %s: %v", errUsage, fs.Name(), err)
	}
	return nil
}

// selectionFlags registers the flags identifying a product/date and, with record, a contract/item.
func selectionFlags(fs *flag.FlagSet, sel *model.Selection, record bool) {
	fs.StringVar(&sel.ProductCode, "product", "", "product code")
	fs.StringVar(&sel.PublicationDate, "date", "", "publication date (YYYY-MM-DD)")
	fs.StringVar(&sel.PhaseNo, "phase", "", "phase number")
	if record {
		fs.StringVar(&sel.ContractNo, "contract", "", "contract number")
		fs.StringVar(&sel.ItemNo, "item", "", "item number")
	}
}

// requireSession fails without a session unless fallback credentials can sign one in.
func (a *app) requireSession(ctx context.Context) error {
	if a.sess.State() != session.StateUnauthenticated {
		return nil
	}
	if a.cfg.FallbackEmail == "" || a.cfg.FallbackPassword == "" {
		return errs.ErrNoToken
	}
	if _, err := a.sess.EnsureValidToken(ctx); err != nil {
		return err
	}
	return nil
}

func (a *app) cmdLogin(ctx context.Context, args []string) error {
	fs := a.flags("login")
	email := fs.String("email", a.cfg.FallbackEmail, "email")
	password := fs.String("password", "", "password")
	if err := parse(fs, args); err != nil {
		return err
	}
	if strings.TrimSpace(*email) == "" {
		return errs.Validation("email is required")
	}
	if *password == "" && a.interactive.Load() {
		return errs.Validation("-password is required in the shell")
	}
	if *password == "" {
		fmt.Fprint(a.errOut, "password: ")
		line, err := bufio.NewReader(a.in).ReadString('\n')
		if err != nil && line == "" {
			return errs.Validation("password is required")
		}
		*password = strings.TrimRight(line, "\r\n")
	}

	res := a.sess.SignIn(ctx, strings.TrimSpace(*email), *password)
	if !res.Success {
		return &errs.RemoteError{Message: res.Message}
	}
	name := ""
	if u := a.sess.User(); u != nil {
		name = u.DisplayName()
	}
	fmt.Fprintf(a.out, "signed in as %s\n", name)
	return nil
}

func (a *app) cmdLogout(ctx context.Context) error {
	a.sess.SignOut(ctx)
	if !a.interactive.Load() {
		fmt.Fprintln(a.out, "signed out")
	}
	return nil
}

type whoami struct {
	User      *model.UserIdentity `json:"user,omitempty"`
	State     string              `json:"state"`
	ExpiresAt string              `json:"expires_at,omitempty"`
}

func (a *app) cmdWhoami(ctx context.Context) error {
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	s := a.sess.Snapshot()
	w := whoami{User: s.User, State: a.sess.State().String()}
	if !s.ExpiresAt.IsZero() {
		w.ExpiresAt = s.ExpiresAt.Format("2006-01-02T15:04:05Z07:00")
	}
	if a.json {
		return printJSON(a.out, w)
	}
	name := "(unknown user)"
	if s.User != nil {
		name = s.User.DisplayName() + " <" + s.User.Email + ">"
	}
	fmt.Fprintf(a.out, "%s\nstate: %s\nexpires: %s\n", name, w.State, w.ExpiresAt)
	return nil
}

func (a *app) cmdProducts(ctx context.Context) error {
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	list, err := a.qp.MediaProducts(ctx)
	if err != nil {
		return err
	}
	if a.json {
		return printJSON(a.out, list)
	}
	rows := make([][]string, 0, len(list))
	for _, p := range list {
		rows = append(rows, []string{p.ProductCode, p.ProductDesc, yesNo(p.IsLocked)})
	}
	return printTable(a.out, []string{"CODE", "DESCRIPTION", "LOCKED"}, rows)
}

func (a *app) cmdAgents(ctx context.Context, args []string) error {
	fs := a.flags("agents")
	var sel model.Selection
	selectionFlags(fs, &sel, false)
	search := fs.String("search", "", "filter by agent name")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	list, err := a.qp.Agents(ctx, strings.TrimSpace(sel.ProductCode), strings.TrimSpace(sel.PublicationDate), strings.TrimSpace(sel.PhaseNo))
	if err != nil {
		return err
	}
	list = quantityplan.FilterAgents(list, *search)
	if a.json {
		return printJSON(a.out, list)
	}
	rows := make([][]string, 0, len(list))
	for _, ag := range list {
		rows = append(rows, []string{ag.Name, ag.ContractNo, ag.ItemNo, ag.ItemCategory,
			strconv.FormatInt(ag.DeliveryQuantity, 10), ag.Status})
	}
	return printTable(a.out, []string{"AGENT", "CONTRACT", "ITEM", "CATEGORY", "DELIVERY", "STATUS"}, rows)
}

type shown struct {
	Form     model.FormState `json:"form"`
	Matched  bool            `json:"matched"`
	Editable bool            `json:"editable"`
	Raw      map[string]any  `json:"raw,omitempty"`
}

func (a *app) cmdShow(ctx context.Context, args []string) error {
	fs := a.flags("show")
	var sel model.Selection
	selectionFlags(fs, &sel, true)
	raw := fs.Bool("raw", false, "include the server row as received")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	d, err := a.qp.LoadDetail(ctx, sel, model.FormState{})
	if err != nil {
		return err
	}
	out := shown{Form: d.Form, Matched: d.Matched, Editable: quantityplan.Editable(d.Form.Status)}
	if *raw && d.Row != nil {
		out.Raw = d.Row.Raw
	}
	if a.json {
		return printJSON(a.out, out)
	}
	if !d.Matched {
		fmt.Fprintf(a.errOut, "warning: no row for contract %s item %s, showing contract %s item %s\n",
			sel.ContractNo, sel.ItemNo, d.Row.ContractNo, d.Row.ItemNo)
	}
	printForm(a.out, d.Form, out.Editable)
	if out.Raw != nil {
		return printJSON(a.out, out.Raw)
	}
	return nil
}

// cmdUpdate loads the record, applies the flags that were set and saves it.
// Unmatched records are refused: editing a fallback row would write another agent's figures.
func (a *app) cmdUpdate(ctx context.Context, args []string) error {
	fs := a.flags("update")
	var sel model.Selection
	selectionFlags(fs, &sel, true)
	base := fs.String("base", "", "base supply")
	night := fs.String("night", "", "night corrections")
	days := fs.String("days", "", "days figure")
	extra := fs.String("extra", "", "extra quantity")
	delivery := fs.String("delivery", "", "delivery quantity")
	fixed := fs.Bool("fixed", false, "fixed quantity")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := a.requireSession(ctx); err != nil {
		return err
	}

	var edit quantityplan.Edit
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "base":
			edit.BaseSupply = base
		case "night":
			edit.NightCorrections = night
		case "days":
			edit.DaysFigure = days
		case "extra":
			edit.ExtraQuantity = extra
		case "delivery":
			edit.DeliveryQuantity = delivery
		case "fixed":
			edit.FixedQty = fixed
		}
	})
	if edit == (quantityplan.Edit{}) {
		return errs.Validation("nothing to update: set at least one of -base -night -days -extra -delivery -fixed")
	}

	d, err := a.qp.LoadDetail(ctx, sel, model.FormState{})
	if err != nil {
		return err
	}
	if !d.Matched {
		return fmt.Errorf("%w: contract %q item %q", errs.ErrNoMatch, sel.ContractNo, sel.ItemNo)
	}
	form, err := edit.Apply(d.Form)
	if err != nil {
		return err
	}
	row, err := quantityplan.BuildWritePayload(form, d.Row, sel, a.sess.User())
	if err != nil {
		return err
	}
	if err := a.qp.Save(ctx, row); err != nil {
		return err
	}
	if a.json {
		return printJSON(a.out, row)
	}
	fmt.Fprintln(a.out, "saved")
	printForm(a.out, form, quantityplan.Editable(form.Status))
	return nil
}
