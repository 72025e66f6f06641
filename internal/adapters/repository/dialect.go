package repository

import (
	"database/sql"
	"strconv"
	"strings"
)

// Supported drivers, named as registered with database/sql.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Dialect papers over the SQL differences between the supported drivers.
type Dialect struct {
	name string
}

// Name returns the driver name.
func (d Dialect) Name() string { return d.name }

// Rebind rewrites ? placeholders into $n for postgres.
func (d Dialect) Rebind(query string) string {
	if d.name != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// ForUpdate returns the row lock clause; SQLite serialises writers instead.
func (d Dialect) ForUpdate() string {
	if d.name == DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

// SwapTxOptions returns the isolation used by trade swaps.
func (d Dialect) SwapTxOptions() *sql.TxOptions {
	if d.name == DriverPostgres {
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return nil
}

// Like returns the case-insensitive match operator.
func (d Dialect) Like() string {
	if d.name == DriverPostgres {
		return "ILIKE"
	}
	return "LIKE"
}
