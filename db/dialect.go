package db

import (
	"strconv"
	"strings"
)

// Driver names registered with database/sql.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Dialect captures the SQL differences between the supported stores.
type Dialect struct {
	Name   string // "sqlite" or "postgres"
	Driver string // database/sql driver name
}

var (
	// SQLite is the default dialect for file-backed stores.
	SQLite = Dialect{Name: "sqlite", Driver: DriverSQLite}
	// Postgres is used for postgres:// DSNs.
	Postgres = Dialect{Name: "postgres", Driver: DriverPostgres}
)

// DialectForDriver returns the dialect for a configured driver name.
// Unknown names fall back to SQLite.
func DialectForDriver(driver string) Dialect {
	switch strings.ToLower(driver) {
	case "pgx", "postgres", "postgresql":
		return Postgres
	default:
		return SQLite
	}
}

// DetectDialect picks a dialect from the shape of a DSN.
func DetectDialect(dsn string) Dialect {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return Postgres
	}
	return SQLite
}

// Rebind rewrites '?' placeholders into the dialect's bind syntax.
func (d Dialect) Rebind(query string) string {
	if d.Name != Postgres.Name {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inString := false
	for _, r := range query {
		switch {
		case r == '\'':
			inString = !inString
			b.WriteRune(r)
		case r == '?' && !inString:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Quote quotes an identifier.
func (d Dialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// Placeholders returns n comma-separated '?' placeholders.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// KeyColumnDDL is the DDL for a generated 64-bit primary key column.
func (d Dialect) KeyColumnDDL(name string) string {
	if d.Name == Postgres.Name {
		return d.Quote(name) + " BIGSERIAL PRIMARY KEY"
	}
	return d.Quote(name) + " INTEGER PRIMARY KEY AUTOINCREMENT"
}

// ColumnType maps a schema value type onto a column type.
func (d Dialect) ColumnType(valueType string) string {
	switch valueType {
	case "integer", "instance":
		if d.Name == Postgres.Name {
			return "BIGINT"
		}
		return "INTEGER"
	case "float":
		if d.Name == Postgres.Name {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	case "boolean":
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// ReturningKey reports whether generated keys come back through RETURNING
// instead of LastInsertId.
func (d Dialect) ReturningKey() bool {
	return d.Name == Postgres.Name
}

// SupportsTransactions reports whether the store can roll back a slice commit.
func (d Dialect) SupportsTransactions() bool {
	return true
}
