package migrations

import (
	"context"
	"fmt"
	"strings"
)

// ClickhouseDB is the subset of a ClickHouse connection used to apply migrations.
type ClickhouseDB interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// ApplyClickhouse applies all embedded ClickHouse migrations. Statements must be
// idempotent (IF NOT EXISTS) since ClickHouse keeps no migration ledger here.
func ApplyClickhouse(ctx context.Context, db ClickhouseDB) error {
	files, err := load(ClickhouseFS, "clickhouse")
	if err != nil {
		return err
	}

	for _, m := range files {
		if err := validateNoSemicolonInStrings(m.SQL); err != nil {
			return fmt.Errorf("validate migration %s: %w", m.Version, err)
		}
		// The driver does not support multi-statement Exec.
		for _, stmt := range splitStatements(m.SQL) {
			if err := db.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s: %w", m.Version, err)
			}
		}
	}
	return nil
}

// splitStatements splits SQL content into statements by semicolon after dropping
// blank lines and -- comments. Semicolons inside string literals and /* */ comments
// are not supported.
func splitStatements(input string) []string {
	var filtered []string
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		filtered = append(filtered, line)
	}
	joined := strings.Join(filtered, "\n")

	var stmts []string
	for _, part := range strings.Split(joined, ";") {
		stmt := strings.TrimSpace(part)
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// validateNoSemicolonInStrings rejects SQL with a semicolon inside a single-quoted
// literal, which splitStatements would cut in half.
func validateNoSemicolonInStrings(sql string) error {
	inString := false
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		if ch == '\'' {
			if i+1 < len(sql) && sql[i+1] == '\'' {
				i++
				continue
			}
			inString = !inString
		} else if ch == ';' && inString {
			return fmt.Errorf("semicolon inside string literal at offset %d", i)
		}
	}
	return nil
}
