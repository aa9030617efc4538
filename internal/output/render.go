// Package output renders result rows for the CLI: column-aligned tables
// or JSONL with stable column order, plus the structured error surface.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/vprism/vprism/internal/errs"
)

// Format selects the row renderer.
type Format string

const (
	FormatTable Format = "table"
	FormatJSONL Format = "jsonl"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSONL:
		return FormatJSONL, nil
	}
	return "", errs.Validation("output", "format must be table or jsonl",
		map[string]any{"format": s})
}

// Table is an ordered set of columns with string-rendered cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Render writes the table in the requested format.
func Render(w io.Writer, tbl Table, format Format, useColor bool) error {
	switch format {
	case FormatJSONL:
		return renderJSONL(w, tbl)
	default:
		return renderTable(w, tbl, useColor)
	}
}

func renderTable(w io.Writer, tbl Table, useColor bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	header := make([]string, len(tbl.Columns))
	for i, col := range tbl.Columns {
		if useColor {
			header[i] = color.New(color.Bold).Sprint(col)
		} else {
			header[i] = col
		}
	}
	if _, err := fmt.Fprintln(tw, strings.Join(header, "\t")); err != nil {
		return err
	}
	for _, row := range tbl.Rows {
		if _, err := fmt.Fprintln(tw, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// renderJSONL emits one object per row. Objects are built by hand so key
// order follows the column order instead of Go map iteration.
func renderJSONL(w io.Writer, tbl Table) error {
	for _, row := range tbl.Rows {
		var b strings.Builder
		b.WriteByte('{')
		for i, col := range tbl.Columns {
			if i > 0 {
				b.WriteByte(',')
			}
			key, err := json.Marshal(col)
			if err != nil {
				return err
			}
			val, err := json.Marshal(cell(row, i))
			if err != nil {
				return err
			}
			b.Write(key)
			b.WriteByte(':')
			b.Write(val)
		}
		b.WriteByte('}')
		if _, err := fmt.Fprintln(w, b.String()); err != nil {
			return err
		}
	}
	return nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// errorBody is the stable error surface: code, message, details.
type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// WriteError emits one JSON object describing the failure. Sensitive
// context keys are redacted before emission.
func WriteError(w io.Writer, err error) {
	body := errorBody{Code: string(errs.CodeSystem), Message: err.Error()}
	if e, ok := errs.As(err); ok {
		red := e.Redacted()
		body.Code = string(red.Code)
		body.Message = red.Message
		if len(red.Context) > 0 {
			body.Details = red.Context
		}
	}
	raw, marshalErr := json.Marshal(body)
	if marshalErr != nil {
		fmt.Fprintf(w, `{"code":"SYSTEM","message":%q}`+"\n", err.Error())
		return
	}
	fmt.Fprintln(w, string(raw))
}
