package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/lumacare/backoffice/database"
)

// Bootstrap applies the application DDL in a single transaction, in this
// order:
//  1. schema/agency_settings.sql
//  2. schema/signature_requests.sql
//
// SQL is embedded at build time so binaries stay self-contained. The helper is
// idempotent and intended for deploy bootstrap and tests.
func Bootstrap(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("bootstrap: pool is required")
	}

	var statements []string
	statements = append(statements, splitStatements(sqlassets.AgencySettingsSQL)...)
	statements = append(statements, splitStatements(sqlassets.SignatureRequestsSQL)...)

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply ddl: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// splitStatements splits embedded DDL into individual statements. The schema
// files only use semicolons as statement terminators.
func splitStatements(sql string) []string {
	parts := strings.Split(sql, ";")
	statements := make([]string, 0, len(parts))
	for _, part := range parts {
		stmt := strings.TrimSpace(part)
		if stmt == "" {
			continue
		}
		statements = append(statements, stmt)
	}
	return statements
}
