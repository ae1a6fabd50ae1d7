// Package dialect holds the small differences between the SQL databases
// policyd can run against.
package dialect

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect names a database/sql driver
type Dialect string

const (
	// SQLite is the modernc.org/sqlite driver
	SQLite Dialect = "sqlite"
	// Postgres is the pgx stdlib driver
	Postgres Dialect = "pgx"
)

// Parse maps a configured driver name to a Dialect
func Parse(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sqlite", "sqlite3":
		return SQLite, nil
	case "pgx", "postgres", "postgresql":
		return Postgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", name)
	}
}

// DriverName returns the name the driver registers with database/sql
func (d Dialect) DriverName() string {
	return string(d)
}

// Rebind rewrites ? placeholders into the dialect's bind style.
// Question marks inside single-quoted literals are left alone.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	quoted := false
	for _, r := range query {
		switch {
		case r == '\'':
			quoted = !quoted
			b.WriteRune(r)
		case r == '?' && !quoted:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (d Dialect) String() string {
	return string(d)
}
