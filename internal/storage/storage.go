package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned when a requested entity is missing from the store.
var ErrNotFound = errors.New("storage: not found")

// ErrDuplicateSignature is returned when a stake signature has already been recorded.
// Callers use this to distinguish a replayed notification from a storage failure.
var ErrDuplicateSignature = errors.New("storage: signature already recorded")

// ProcessedStake records a staking deposit whose reward tokens were minted.
// The source transaction signature is the sole key: a notification carrying a
// signature that is already recorded must never trigger a second mint.
type ProcessedStake struct {
	Signature     string            `json:"signature"`               // Staking deposit transaction signature (globally unique)
	Wallet        string            `json:"wallet"`                  // Staker wallet that sent the deposit
	Lamports      uint64            `json:"lamports"`                // Deposited amount in lamports
	MintSignature string            `json:"mintSignature,omitempty"` // Signature of the reward mint transaction
	CreatedAt     time.Time         `json:"createdAt"`               // When the stake was processed
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Store captures the persistence requirements for stake replay protection.
type Store interface {
	// RecordStake saves a processed stake. The signature must be globally
	// unique; recording a signature twice returns ErrDuplicateSignature.
	RecordStake(ctx context.Context, stake ProcessedStake) error

	// HasStakeBeenProcessed checks if a deposit signature has EVER been handled.
	HasStakeBeenProcessed(ctx context.Context, signature string) (bool, error)

	// GetStake retrieves a processed stake by deposit signature.
	GetStake(ctx context.Context, signature string) (ProcessedStake, error)

	// PruneOldStakes deletes records older than the given time to prevent
	// unbounded growth. Returns the count of deleted records.
	PruneOldStakes(ctx context.Context, olderThan time.Time) (int64, error)

	Close() error
}

// StoreConfig holds storage backend configuration.
type StoreConfig struct {
	Backend           string // "memory", "postgres", "mongodb", or "file"
	PostgresURL       string
	PostgresTableName string
	MongoDBURL        string
	MongoDBDatabase   string
	MongoDBCollection string
	FilePath          string
	RetentionPeriod   time.Duration // How long processed signatures are kept
	CleanupInterval   time.Duration // How often old records are pruned
}

// NewStore creates a Store instance based on the provided configuration.
func NewStore(cfg StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "memory", "":
		// Memory backend loses replay protection on restart; fine for
		// devnet and tests, not for a production deployment.
		return NewMemoryStore(cfg.RetentionPeriod, cfg.CleanupInterval), nil
	case "postgres":
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("postgres backend requires postgres_url")
		}
		return NewPostgresStore(cfg.PostgresURL, cfg.PostgresTableName)
	case "mongodb":
		if cfg.MongoDBURL == "" {
			return nil, fmt.Errorf("mongodb backend requires mongodb_url")
		}
		if cfg.MongoDBDatabase == "" {
			return nil, fmt.Errorf("mongodb backend requires mongodb_database")
		}
		return NewMongoDBStore(cfg.MongoDBURL, cfg.MongoDBDatabase, cfg.MongoDBCollection)
	case "file":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("file backend requires file_path")
		}
		return NewFileStore(cfg.FilePath)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

// validateStake checks required fields before a stake is persisted.
func validateStake(stake *ProcessedStake) error {
	if strings.TrimSpace(stake.Signature) == "" {
		return fmt.Errorf("stake signature is required")
	}
	if strings.TrimSpace(stake.Wallet) == "" {
		return fmt.Errorf("stake wallet is required")
	}
	if stake.CreatedAt.IsZero() {
		stake.CreatedAt = time.Now().UTC()
	}
	return nil
}

// MemoryStore is an in-memory Store implementation suitable for tests and
// single-instance devnet deployments.
type MemoryStore struct {
	mu        sync.RWMutex
	stakes    map[string]ProcessedStake // signature -> stake (globally unique)
	retention time.Duration

	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

// NewMemoryStore constructs a MemoryStore and starts background pruning.
func NewMemoryStore(retention, cleanupInterval time.Duration) *MemoryStore {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 1 * time.Hour
	}

	m := &MemoryStore{
		stakes:      make(map[string]ProcessedStake),
		retention:   retention,
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	go m.cleanupLoop(cleanupInterval)
	return m
}

// cleanupLoop runs periodically and removes records past the retention period.
func (m *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(m.cleanupDone)

	for {
		select {
		case <-m.stopCleanup:
			return
		case <-ticker.C:
			_, _ = m.PruneOldStakes(context.Background(), time.Now().Add(-m.retention))
		}
	}
}

// RecordStake saves a processed stake.
// Returns ErrDuplicateSignature if the signature already exists.
func (m *MemoryStore) RecordStake(_ context.Context, stake ProcessedStake) error {
	if err := validateStake(&stake); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.stakes[stake.Signature]; exists {
		return ErrDuplicateSignature
	}

	m.stakes[stake.Signature] = stake
	return nil
}

// HasStakeBeenProcessed checks if a deposit signature has ever been handled.
func (m *MemoryStore) HasStakeBeenProcessed(_ context.Context, signature string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.stakes[signature]
	return exists, nil
}

// GetStake retrieves a processed stake by deposit signature.
func (m *MemoryStore) GetStake(_ context.Context, signature string) (ProcessedStake, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stake, ok := m.stakes[signature]
	if !ok {
		return ProcessedStake{}, ErrNotFound
	}
	return stake, nil
}

// PruneOldStakes deletes records older than the specified time.
func (m *MemoryStore) PruneOldStakes(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := int64(0)
	for sig, stake := range m.stakes {
		if stake.CreatedAt.Before(olderThan) {
			delete(m.stakes, sig)
			count++
		}
	}
	return count, nil
}

// Close stops the cleanup goroutine.
func (m *MemoryStore) Close() error {
	close(m.stopCleanup)
	<-m.cleanupDone
	return nil
}
