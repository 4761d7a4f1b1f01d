package sqlstore

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects placeholder style and column types.
type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
	SQLite   Dialect = "sqlite"
)

// ParseDialect maps a configured driver name to a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return "", fmt.Errorf("unsupported database driver: %q", name)
}

// Rebind rewrites ? placeholders into $n for Postgres. Queries in this
// package never contain literal question marks.
func (d Dialect) Rebind(q string) string {
	if d != Postgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 16)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ddl expands the type tokens used by the schema.
func (d Dialect) ddl(stmt string) string {
	ts, text := "DATETIME", "TEXT"
	switch d {
	case Postgres:
		ts = "TIMESTAMPTZ"
	case MySQL:
		ts, text = "DATETIME(6)", "LONGTEXT"
	}
	r := strings.NewReplacer("{{TS}}", ts, "{{TEXT}}", text)
	return r.Replace(stmt)
}
