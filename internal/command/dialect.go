package command

import (
	"strings"

	"github.com/lib/pq"

	"github.com/koustreak/datastore/internal/errs"
	"github.com/koustreak/datastore/internal/schema"
)

// Dialect controls identifier quoting and table-name qualification. All
// dialects share the statement assembly in Builder.
type Dialect struct {
	name    string
	quote   func(string) string
	qualify bool
}

// Name returns the dialect name accepted by DialectFor.
func (d Dialect) Name() string { return d.name }

// Quote quotes one identifier.
func (d Dialect) Quote(ident string) string {
	if d.quote == nil {
		return ident
	}
	return d.quote(ident)
}

// Table renders a table name, schema-qualified when the dialect qualifies
// names and the table has a schema.
func (d Dialect) Table(t schema.TableName) string {
	if d.qualify && t.Schema != "" {
		return d.Quote(t.Schema) + "." + d.Quote(t.Name)
	}
	return d.Quote(t.Name)
}

var (
	// ANSI leaves identifiers unquoted and tables unqualified.
	ANSI = Dialect{name: "ansi"}

	// SQLServer bracket-quotes identifiers and qualifies tables.
	SQLServer = Dialect{name: "sqlserver", qualify: true, quote: func(s string) string {
		return "[" + strings.ReplaceAll(s, "]", "]]") + "]"
	}}

	// Postgres double-quotes identifiers and qualifies tables.
	Postgres = Dialect{name: "postgres", qualify: true, quote: pq.QuoteIdentifier}

	// MySQL backtick-quotes identifiers and qualifies tables with the database.
	MySQL = Dialect{name: "mysql", qualify: true, quote: func(s string) string {
		return "`" + strings.ReplaceAll(s, "`", "``") + "`"
	}}

	// SQLite double-quotes identifiers; it has no schemas to qualify with.
	SQLite = Dialect{name: "sqlite", quote: func(s string) string {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}}
)

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "ansi":
		return ANSI, nil
	case "sqlserver", "mssql":
		return SQLServer, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return Dialect{}, errs.Newf(errs.ErrKindInvalidInput, "unknown SQL dialect %q", name)
}
