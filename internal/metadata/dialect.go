package metadata

import (
	"fmt"
	"strconv"
	"strings"
)

// dialect holds the SQL that differs between database engines.
type dialect struct {
	name        string
	quoteIdent  func(string) string
	createTable string
	upsert      string
	positional  bool // $1, $2 ... instead of ?
}

var dialects = map[string]*dialect{
	"sqlite": {
		name:       "sqlite",
		quoteIdent: doubleQuote,
		createTable: `CREATE TABLE IF NOT EXISTS apikeys (
			service TEXT NOT NULL,
			key_name TEXT NOT NULL,
			added TEXT NOT NULL,
			"key" TEXT NOT NULL,
			status TEXT NOT NULL,
			revoked_on TEXT,
			PRIMARY KEY (service, key_name)
		)`,
		upsert: `INSERT OR REPLACE INTO apikeys (service, key_name, added, "key", status, revoked_on) VALUES (?, ?, ?, ?, ?, ?)`,
	},
	"postgres": {
		name:       "postgres",
		quoteIdent: doubleQuote,
		createTable: `CREATE TABLE IF NOT EXISTS apikeys (
			service TEXT NOT NULL,
			key_name TEXT NOT NULL,
			added TEXT NOT NULL,
			"key" TEXT NOT NULL,
			status TEXT NOT NULL,
			revoked_on TEXT,
			PRIMARY KEY (service, key_name)
		)`,
		upsert: `INSERT INTO apikeys (service, key_name, added, "key", status, revoked_on) VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (service, key_name) DO UPDATE SET
			added = EXCLUDED.added, "key" = EXCLUDED."key", status = EXCLUDED.status, revoked_on = EXCLUDED.revoked_on`,
		positional: true,
	},
	"mysql": {
		name:       "mysql",
		quoteIdent: backtick,
		createTable: "CREATE TABLE IF NOT EXISTS apikeys (" +
			"service VARCHAR(255) NOT NULL, " +
			"key_name VARCHAR(255) NOT NULL, " +
			"added VARCHAR(40) NOT NULL, " +
			"`key` TEXT NOT NULL, " +
			"status VARCHAR(64) NOT NULL, " +
			"revoked_on VARCHAR(40) NULL, " +
			"PRIMARY KEY (service, key_name))",
		upsert: "REPLACE INTO apikeys (service, key_name, added, `key`, status, revoked_on) VALUES (?, ?, ?, ?, ?, ?)",
	},
}

// driverAliases maps accepted driver names to a dialect.
var driverAliases = map[string]string{
	"sqlite":     "sqlite",
	"sqlite3":    "sqlite",
	"postgres":   "postgres",
	"postgresql": "postgres",
	"mysql":      "mysql",
	"mariadb":    "mysql",
}

func dialectFor(driver string) (*dialect, error) {
	name, ok := driverAliases[strings.ToLower(driver)]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	return dialects[name], nil
}

func doubleQuote(ident string) string {
	return `"` + ident + `"`
}

func backtick(ident string) string {
	return "`" + ident + "`"
}

// columns is the select list in Record field order.
func (d *dialect) columns() string {
	return "service, key_name, added, " + d.quoteIdent("key") + ", status, revoked_on"
}

// rebind rewrites ? placeholders for engines that use positional ones.
func (d *dialect) rebind(query string) string {
	if !d.positional {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
