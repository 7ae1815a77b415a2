package store

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cwbudde/surfaces/internal/surface"
)

// ScoreColumn is the name of the value column of every sample table.
const ScoreColumn = "score"

// ColumnKind is the SQL storage class of a parameter column.
type ColumnKind string

const (
	Real    ColumnKind = "REAL"
	Integer ColumnKind = "INTEGER"
	Text    ColumnKind = "TEXT"
)

// Column is one parameter column of a sample table.
type Column struct {
	Name string     `json:"name"`
	Kind ColumnKind `json:"kind"`
}

// ColumnsFor maps a function schema onto table columns.
func ColumnsFor(schema surface.Schema) []Column {
	cols := make([]Column, len(schema))
	for i, f := range schema {
		kind := Real
		switch f.Kind {
		case surface.KindInt:
			kind = Integer
		case surface.KindString:
			kind = Text
		}
		cols[i] = Column{Name: f.Name, Kind: kind}
	}
	return cols
}

// Row is one collected sample: parameter values in column order plus the
// score. A NaN score marks a failed evaluation.
type Row struct {
	Values []any   `json:"values"`
	Score  float64 `json:"score"`
}

type jsonRow struct {
	Values []any    `json:"values"`
	Score  *float64 `json:"score"`
}

// MarshalJSON encodes a NaN score as null.
func (r Row) MarshalJSON() ([]byte, error) {
	jr := jsonRow{Values: r.Values}
	if !math.IsNaN(r.Score) && !math.IsInf(r.Score, 0) {
		score := r.Score
		jr.Score = &score
	}
	return json.Marshal(jr)
}

// UnmarshalJSON decodes a null score as NaN.
func (r *Row) UnmarshalJSON(data []byte) error {
	var jr jsonRow
	if err := json.Unmarshal(data, &jr); err != nil {
		return err
	}
	r.Values = jr.Values
	r.Score = math.NaN()
	if jr.Score != nil {
		r.Score = *jr.Score
	}
	return nil
}

// Table holds collected samples of one function, deduplicated by parameter
// values.
type Table struct {
	Columns []Column `json:"columns"`
	Rows    []Row    `json:"rows"`

	index map[string]int
}

// NewTable returns an empty table with the given parameter columns.
func NewTable(cols []Column) *Table {
	return &Table{Columns: append([]Column(nil), cols...), index: map[string]int{}}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Key returns the deduplication key of a parameter tuple.
func Key(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		switch x := v.(type) {
		case float64:
			parts[i] = "f" + strconv.FormatFloat(x, 'g', -1, 64)
		case int:
			parts[i] = "i" + strconv.Itoa(x)
		case int64:
			parts[i] = "i" + strconv.FormatInt(x, 10)
		case string:
			parts[i] = "s" + x
		default:
			parts[i] = fmt.Sprintf("?%v", x)
		}
	}
	return strings.Join(parts, "\x1f")
}

// ensureIndex rebuilds the key index when it is out of step with Rows.
// Rows repeating an earlier key are dropped while rebuilding.
func (t *Table) ensureIndex() {
	if t.index != nil && len(t.index) == len(t.Rows) {
		return
	}
	t.index = make(map[string]int, len(t.Rows))
	rows := t.Rows[:0]
	for _, r := range t.Rows {
		k := Key(r.Values)
		if _, dup := t.index[k]; dup {
			continue
		}
		t.index[k] = len(rows)
		rows = append(rows, r)
	}
	t.Rows = rows
}

// normalize converts values to the Go types of the column kinds so that
// equal tuples share a key. Values that do not fit are kept as they are and
// rejected later by Validate.
func (t *Table) normalize(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
		if i < len(t.Columns) {
			if nv, err := normalizeValue(t.Columns[i].Kind, v); err == nil {
				out[i] = nv
			}
		}
	}
	return out
}

// normalizeRows converts decoded rows in place and rebuilds the index,
// keeping the first of any rows with equal values.
func (t *Table) normalizeRows() {
	for i := range t.Rows {
		t.Rows[i].Values = t.normalize(t.Rows[i].Values)
	}
	t.index = nil
	t.ensureIndex()
}

// Has reports whether a row with these parameter values exists.
func (t *Table) Has(values []any) bool {
	t.ensureIndex()
	_, ok := t.index[Key(t.normalize(values))]
	return ok
}

// Lookup returns the row with these parameter values.
func (t *Table) Lookup(values []any) (Row, bool) {
	t.ensureIndex()
	i, ok := t.index[Key(t.normalize(values))]
	if !ok {
		return Row{}, false
	}
	return t.Rows[i], true
}

// Add appends a row unless one with the same parameter values exists. It
// reports whether the row was added.
func (t *Table) Add(values []any, score float64) bool {
	t.ensureIndex()
	values = t.normalize(values)
	k := Key(values)
	if _, ok := t.index[k]; ok {
		return false
	}
	t.index[k] = len(t.Rows)
	t.Rows = append(t.Rows, Row{Values: values, Score: score})
	return true
}

// Merge adds every row of o that is not yet present and returns the number
// of rows added. Columns must match.
func (t *Table) Merge(o *Table) (int, error) {
	if !SameColumns(t.Columns, o.Columns) {
		return 0, &CompatibilityError{Field: "columns", Expected: FormatColumns(t.Columns), Actual: FormatColumns(o.Columns)}
	}
	n := 0
	for _, r := range o.Rows {
		if t.Add(r.Values, r.Score) {
			n++
		}
	}
	return n, nil
}

// Params returns row i as a parameter dictionary.
func (t *Table) Params(i int) surface.Params {
	p := make(surface.Params, len(t.Columns))
	for j, c := range t.Columns {
		p[c.Name] = t.Rows[i].Values[j]
	}
	return p
}

// ValuesOf orders p by the table columns.
func (t *Table) ValuesOf(p surface.Params) []any {
	values := make([]any, len(t.Columns))
	for j, c := range t.Columns {
		values[j] = p[c.Name]
	}
	return values
}

var identRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidName reports whether name can be used as a table or column name.
func ValidName(name string) bool {
	return identRegex.MatchString(name)
}

// Validate checks the table layout and row shapes.
func (t *Table) Validate() error {
	if len(t.Columns) == 0 {
		return &ValidationError{Field: "Columns", Reason: "cannot be empty"}
	}
	seen := map[string]bool{ScoreColumn: true}
	for _, c := range t.Columns {
		if !ValidName(c.Name) {
			return &ValidationError{Field: "Columns", Reason: fmt.Sprintf("invalid column name %q", c.Name)}
		}
		if seen[c.Name] {
			return &ValidationError{Field: "Columns", Reason: fmt.Sprintf("duplicate or reserved column %q", c.Name)}
		}
		seen[c.Name] = true
		switch c.Kind {
		case Real, Integer, Text:
		default:
			return &ValidationError{Field: "Columns", Reason: fmt.Sprintf("unknown kind %q for %q", c.Kind, c.Name)}
		}
	}
	for i, r := range t.Rows {
		if len(r.Values) != len(t.Columns) {
			return &ValidationError{Field: "Rows", Reason: fmt.Sprintf("row %d has %d values, want %d", i, len(r.Values), len(t.Columns))}
		}
		for j, c := range t.Columns {
			if _, err := normalizeValue(c.Kind, r.Values[j]); err != nil {
				return &ValidationError{Field: "Rows", Reason: fmt.Sprintf("row %d column %q: %v", i, c.Name, err)}
			}
		}
	}
	return nil
}

// normalizeValue converts a stored or decoded value to the Go type of kind.
func normalizeValue(kind ColumnKind, v any) (any, error) {
	switch kind {
	case Real:
		switch x := v.(type) {
		case float64:
			return x, nil
		case int:
			return float64(x), nil
		case int64:
			return float64(x), nil
		}
	case Integer:
		switch x := v.(type) {
		case int:
			return x, nil
		case int64:
			return int(x), nil
		case float64:
			if n, ok := surface.IntFromFloat(x); ok {
				return n, nil
			}
		}
	case Text:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		}
	}
	return nil, fmt.Errorf("cannot store %T as %s", v, kind)
}

// SameColumns reports whether two column layouts are identical.
func SameColumns(a, b []Column) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// FormatColumns renders a layout as "name:KIND,...".
func FormatColumns(cols []Column) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c.Name + ":" + string(c.Kind)
	}
	return strings.Join(parts, ",")
}

// ParseColumns is the inverse of FormatColumns.
func ParseColumns(s string) ([]Column, error) {
	if s == "" {
		return nil, nil
	}
	var cols []Column
	for _, part := range strings.Split(s, ",") {
		name, kind, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("malformed column %q", part)
		}
		cols = append(cols, Column{Name: name, Kind: ColumnKind(kind)})
	}
	return cols, nil
}

// Mode selects how Save treats an existing table.
type Mode string

const (
	// Append keeps existing rows and adds rows with new parameter values.
	Append Mode = "append"
	// Replace drops the existing table first.
	Replace Mode = "replace"
)

// ParseMode validates a mode name. The empty string selects Append.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return Append, nil
	case Append, Replace:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q (want %q or %q)", s, Append, Replace)
}

// TableInfo describes a stored table without its rows.
type TableInfo struct {
	Name      string    `json:"name"`
	Columns   []Column  `json:"columns"`
	Rows      int       `json:"rows"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ValidationError represents a table validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// CompatibilityError is returned when appending rows whose layout differs
// from the stored table.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
