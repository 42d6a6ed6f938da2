package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"auction-lifecycle-service/internal/config"
	"auction-lifecycle-service/internal/domain/shared"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

// Postgres error codes that are safe to retry as a whole transaction
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// Connection represents a database connection
type Connection struct {
	db         *sql.DB
	maxRetries int
	logger     zerolog.Logger
}

// NewConnection creates a new database connection
func NewConnection(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Connection, error) {
	db, err := sql.Open("postgres", cfg.Database.GetConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return NewConnectionFromDB(db, cfg.Database.BidTxMaxRetries, logger), nil
}

// NewConnectionFromDB wraps an already opened pool
func NewConnectionFromDB(db *sql.DB, maxRetries int, logger zerolog.Logger) *Connection {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Connection{
		db:         db,
		maxRetries: maxRetries,
		logger:     logger.With().Str("component", "db_connection").Logger(),
	}
}

// GetDB returns the underlying sql.DB instance
func (client *Connection) GetDB() *sql.DB {
	return client.db
}

// Close closes the database connection
func (client *Connection) Close() error {
	return client.db.Close()
}

// Ping checks the database is reachable
func (client *Connection) Ping(ctx context.Context) error {
	return client.db.PingContext(ctx)
}

// ExecuteTransaction runs fn in a read-committed transaction. The whole
// transaction is retried with backoff on serialization failures and
// deadlocks; any other error from fn rolls back and is returned as is.
func (client *Connection) ExecuteTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 200 * time.Millisecond

	attempt := 0
	operation := func() error {
		attempt++
		err := client.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return backoff.Permanent(err)
		}
		client.logger.Warn().Err(err).Int("attempt", attempt).Msg("Transaction conflict, retrying")
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(client.maxRetries)),
		ctx,
	))
	if err != nil && isRetryable(err) {
		return shared.Persistence(fmt.Errorf("transaction gave up after %d attempts: %w", attempt, err))
	}
	return err
}

func (client *Connection) runOnce(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := client.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return shared.Persistence(fmt.Errorf("failed to begin transaction: %w", err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("tx failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return shared.Persistence(fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}

func isRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == codeSerializationFailure || pqErr.Code == codeDeadlockDetected
}
