// internal/dataset/table.go
package dataset

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ValueKind discriminates the typed cell values a Table can hold.
type ValueKind string

const (
	ValueNumber ValueKind = "number"
	ValueDate   ValueKind = "date"
	ValueString ValueKind = "string"
)

// Value is one typed table cell.
type Value struct {
	Kind   ValueKind
	Number decimal.Decimal
	Date   time.Time
	Str    string
}

// NumberValue wraps a decimal into a cell value.
func NumberValue(d decimal.Decimal) Value {
	return Value{Kind: ValueNumber, Number: d}
}

// DateValue wraps a timestamp into a cell value.
func DateValue(t time.Time) Value {
	return Value{Kind: ValueDate, Date: t}
}

// StringValue wraps a string into a cell value.
func StringValue(s string) Value {
	return Value{Kind: ValueString, Str: s}
}

// Row maps normalized column names to typed values.
type Row map[string]Value

// Table is a normalized tabular data source. Column names are already
// canonical by the time any consumer sees them.
type Table struct {
	SourceID string
	Columns  []string
	Rows     []Row
}

// HasColumn reports whether the table carries the given normalized column.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// SourceInfo describes one catalog entry: a loadable source and its schema.
type SourceInfo struct {
	ID       string   `json:"id"`
	Columns  []string `json:"columns"`
	RowCount int      `json:"rowCount"`
	Tags     []string `json:"tags"`
}

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
var spaces = regexp.MustCompile(`\s+`)

// NormalizeColumn canonicalizes a raw header: trim, casefold, collapse
// whitespace, strip punctuation, then map common financial headers onto a
// fixed vocabulary so heterogeneous sources agree on column names.
func NormalizeColumn(raw string) string {
	cleaned := nonWord.ReplaceAllString(strings.TrimSpace(raw), "")
	cleaned = spaces.ReplaceAllString(cleaned, "_")
	cleaned = strings.ToLower(cleaned)

	switch {
	case strings.Contains(cleaned, "monto"):
		return "monto"
	case strings.Contains(cleaned, "fecha"):
		return "fecha"
	case strings.Contains(cleaned, "cliente") || strings.Contains(cleaned, "proveedor"):
		return "cliente"
	case strings.Contains(cleaned, "saldo"):
		return "saldo"
	case strings.Contains(cleaned, "descripcion"):
		return "descripcion"
	case strings.Contains(cleaned, "rubro") || strings.Contains(cleaned, "gasto"):
		return "rubro"
	case cleaned == "tipo":
		return "tipo"
	}
	return cleaned
}

// detectTags infers source archetypes from the normalized schema. The
// selector's static fallback table keys off these tags.
func detectTags(columns []string) []string {
	has := make(map[string]bool, len(columns))
	for _, c := range columns {
		has[c] = true
	}

	var tags []string
	if has["tipo"] && has["monto"] {
		tags = append(tags, "invoices")
	}
	if has["rubro"] {
		tags = append(tags, "expenses")
	}
	if has["saldo"] || (has["descripcion"] && has["monto"]) {
		tags = append(tags, "bank")
	}
	if has["monto"] {
		tags = append(tags, "monetary")
	}
	return tags
}
