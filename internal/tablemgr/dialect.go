package tablemgr

import (
	"strconv"
	"strings"
)

// Dialect captures the rendering differences between engines.
type Dialect interface {
	Name() string

	// DefaultSchema is used for tables declared without a schema.
	DefaultSchema() string

	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder(n int) string
}

// Postgres renders $1, $2, ... placeholders.
type Postgres struct{}

func (Postgres) Name() string             { return "postgres" }
func (Postgres) DefaultSchema() string    { return "public" }
func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

// SQLite renders ?1, ?2, ... placeholders.
type SQLite struct{}

func (SQLite) Name() string             { return "sqlite" }
func (SQLite) DefaultSchema() string    { return "main" }
func (SQLite) Placeholder(n int) string { return "?" + strconv.Itoa(n) }

// quoteIdent quotes a SQL identifier to prevent injection.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteIdents quotes each name and joins them with ", ".
func quoteIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

// Rebind rewrites '?' markers in pred to the dialect's numbered
// placeholders, starting at firstArg. Markers inside single-quoted
// literals or double-quoted identifiers are left alone. Comments are not
// recognized, so a '?' inside one is rewritten too.
func Rebind(d Dialect, pred string, firstArg int) string {
	if !strings.Contains(pred, "?") {
		return pred
	}

	var b strings.Builder
	b.Grow(len(pred) + 8)

	n := firstArg
	var quote rune
	for _, r := range pred {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
			b.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
			b.WriteRune(r)
		case r == '?':
			b.WriteString(d.Placeholder(n))
			n++
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
