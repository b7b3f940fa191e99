package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	_ "github.com/lib/pq"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db        *sql.DB
	tableName string
}

// NewPostgresStore creates a PostgreSQL-backed store and ensures the
// processed-stakes table exists.
func NewPostgresStore(connectionString, tableName string) (*PostgresStore, error) {
	if tableName == "" {
		tableName = "processed_stakes"
	}
	if !validTableName.MatchString(tableName) {
		return nil, fmt.Errorf("invalid table name: %s", tableName)
	}

	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		// The Close error during failed initialization is not actionable.
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresStore{db: db, tableName: tableName}
	if err := store.createTable(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// createTable creates the processed-stakes table if it doesn't exist.
func (s *PostgresStore) createTable() error {
	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			signature TEXT PRIMARY KEY,
			wallet TEXT NOT NULL,
			lamports BIGINT NOT NULL,
			mint_signature TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			metadata JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_%s_created_at ON %s (created_at);
		CREATE INDEX IF NOT EXISTS idx_%s_wallet ON %s (wallet);
	`, s.tableName, s.tableName, s.tableName, s.tableName, s.tableName)

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create table %s: %w", s.tableName, err)
	}
	return nil
}

// RecordStake saves a processed stake.
// The primary key on signature makes concurrent replays lose the insert race.
func (s *PostgresStore) RecordStake(ctx context.Context, stake ProcessedStake) error {
	if err := validateStake(&stake); err != nil {
		return err
	}

	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	metadataJSON, err := json.Marshal(stake.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (signature, wallet, lamports, mint_signature, created_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (signature) DO NOTHING
	`, s.tableName)

	result, err := s.db.ExecContext(ctx, query,
		stake.Signature,
		stake.Wallet,
		int64(stake.Lamports),
		stake.MintSignature,
		stake.CreatedAt.UTC(),
		metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("insert stake: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDuplicateSignature
	}
	return nil
}

// HasStakeBeenProcessed checks if a deposit signature has ever been handled.
func (s *PostgresStore) HasStakeBeenProcessed(ctx context.Context, signature string) (bool, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE signature = $1)`, s.tableName)

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, signature).Scan(&exists); err != nil {
		return false, fmt.Errorf("query stake: %w", err)
	}
	return exists, nil
}

// GetStake retrieves a processed stake by deposit signature.
func (s *PostgresStore) GetStake(ctx context.Context, signature string) (ProcessedStake, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT signature, wallet, lamports, mint_signature, created_at, metadata
		FROM %s WHERE signature = $1
	`, s.tableName)

	var stake ProcessedStake
	var lamports int64
	var metadataJSON []byte
	err := s.db.QueryRowContext(ctx, query, signature).Scan(
		&stake.Signature,
		&stake.Wallet,
		&lamports,
		&stake.MintSignature,
		&stake.CreatedAt,
		&metadataJSON,
	)
	if err == sql.ErrNoRows {
		return ProcessedStake{}, ErrNotFound
	}
	if err != nil {
		return ProcessedStake{}, fmt.Errorf("query stake: %w", err)
	}

	stake.Lamports = uint64(lamports)
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &stake.Metadata); err != nil {
			return ProcessedStake{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return stake, nil
}

// PruneOldStakes deletes records older than the specified time.
func (s *PostgresStore) PruneOldStakes(ctx context.Context, olderThan time.Time) (int64, error) {
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(`DELETE FROM %s WHERE created_at < $1`, s.tableName)

	result, err := s.db.ExecContext(ctx, query, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune stakes: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
