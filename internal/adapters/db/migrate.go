package db

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schema string

// ApplySchema creates the tables the service needs if they are missing
func (client *Connection) ApplySchema(ctx context.Context) error {
	if _, err := client.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	client.logger.Info().Msg("Database schema applied")
	return nil
}
