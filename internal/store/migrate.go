package store

import (
	"context"
	"fmt"

	"interactive-gym/migrations"
)

// Migrate applies the embedded up migrations. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	stmts, err := migrations.Up()
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	for i, sql := range stmts {
		if _, err := s.Pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
