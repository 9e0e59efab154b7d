// Package db bootstraps the Postgres schema. Statements are idempotent
// and run one at a time because pgx's extended protocol rejects
// multi-statement strings.
package db

import (
	"context"
	"fmt"

	"github.com/hasmatt1066/drawnofwar6-sub007/internal/infra"
	"github.com/hasmatt1066/drawnofwar6-sub007/internal/sqlinline"
)

// Migrate applies the schema. Both binaries call it on boot; whichever
// gets there first does the work.
func Migrate(ctx context.Context, db infra.SQLExecutor) error {
	for _, stmt := range sqlinline.Schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
