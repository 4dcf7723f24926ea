package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/and161185/qty-planner/internal/model"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTable(w io.Writer, header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	return tw.Flush()
}

func printForm(w io.Writer, f model.FormState, editable bool) {
	lock := ""
	if !editable {
		lock = " (locked)"
	}
	fmt.Fprintf(w, "agent:             %s\n", f.AgentName)
	fmt.Fprintf(w, "status:            %s\n", f.Status)
	fmt.Fprintf(w, "base supply:       %s%s\n", f.BaseSupply, lock)
	fmt.Fprintf(w, "night corrections: %s%s\n", f.NightCorrections, lock)
	fmt.Fprintf(w, "days figure:       %s%s\n", f.DaysFigure, lock)
	fmt.Fprintf(w, "extra quantity:    %s%s\n", f.ExtraQuantity, lock)
	fmt.Fprintf(w, "delivery quantity: %s\n", f.DeliveryQuantity)
	fmt.Fprintf(w, "fixed:             %s\n", yesNo(f.FixedQty))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// splitArgs splits a shell line on whitespace, honoring double quotes.
func splitArgs(line string) ([]string, error) {
	var (
		out   []string
		cur   strings.Builder
		quote bool
		has   bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			quote = !quote
			has = true
		case !quote && (r == ' ' || r == '\t'):
			if has {
				out = append(out, cur.String())
				cur.Reset()
				has = false
			}
		default:
			cur.WriteRune(r)
			has = true
		}
	}
	if quote {
		return nil, fmt.Errorf("%w: unterminated quote", errUsage)
	}
	if has {
		out = append(out, cur.String())
	}
	return out, nil
}
