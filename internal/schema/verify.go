package schema

import "strings"

// Drift lists the differences between a derived schema and a live table.
type Drift struct {
	Table   string   `json:"table"`
	Missing []string `json:"missing,omitempty"` // mapped columns the live table lacks
	Extra   []string `json:"extra,omitempty"`   // live columns no field maps to
}

// Empty reports whether the live table matches the schema.
func (d Drift) Empty() bool {
	return len(d.Missing) == 0 && len(d.Extra) == 0
}

// Verify compares ts against the column names of the live table. Names are
// compared case-insensitively since most servers fold unquoted identifiers.
func Verify(ts *TableSchema, live []string) Drift {
	d := Drift{Table: ts.Table.FullName()}

	seen := make(map[string]bool, len(live))
	for _, c := range live {
		seen[strings.ToLower(c)] = true
	}
	mapped := make(map[string]bool, len(ts.Columns))
	for _, c := range ts.Columns {
		key := strings.ToLower(c.ColumnName)
		mapped[key] = true
		if !seen[key] {
			d.Missing = append(d.Missing, c.ColumnName)
		}
	}
	for _, c := range live {
		if !mapped[strings.ToLower(c)] {
			d.Extra = append(d.Extra, c)
		}
	}
	return d
}
