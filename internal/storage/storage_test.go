package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testStake(signature string) ProcessedStake {
	return ProcessedStake{
		Signature:     signature,
		Wallet:        "7Np41oeYqPefeNQEHSv1UDhYrehxin3NStELsSKCT4K2",
		Lamports:      2_000_000_000,
		MintSignature: "mint-" + signature,
		CreatedAt:     time.Now().UTC(),
	}
}

// storeFactories returns the backends that can be exercised without external
// infrastructure.
func storeFactories(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore(time.Hour, time.Hour)
		},
		"file": func(t *testing.T) Store {
			s, err := NewFileStore(filepath.Join(t.TempDir(), "stakes.json"))
			if err != nil {
				t.Fatalf("create file store: %v", err)
			}
			return s
		},
	}
}

func TestRecordAndGetStake(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()
			ctx := context.Background()

			stake := testStake("sig-record-1")
			if err := store.RecordStake(ctx, stake); err != nil {
				t.Fatalf("record stake: %v", err)
			}

			got, err := store.GetStake(ctx, stake.Signature)
			if err != nil {
				t.Fatalf("get stake: %v", err)
			}
			if got.Wallet != stake.Wallet {
				t.Errorf("expected wallet %s, got %s", stake.Wallet, got.Wallet)
			}
			if got.Lamports != stake.Lamports {
				t.Errorf("expected %d lamports, got %d", stake.Lamports, got.Lamports)
			}
			if got.MintSignature != stake.MintSignature {
				t.Errorf("expected mint signature %s, got %s", stake.MintSignature, got.MintSignature)
			}
		})
	}
}

func TestRecordStakeRejectsDuplicateSignature(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()
			ctx := context.Background()

			stake := testStake("sig-dup-1")
			if err := store.RecordStake(ctx, stake); err != nil {
				t.Fatalf("first record: %v", err)
			}

			err := store.RecordStake(ctx, stake)
			if !errors.Is(err, ErrDuplicateSignature) {
				t.Errorf("expected ErrDuplicateSignature, got %v", err)
			}
		})
	}
}

func TestHasStakeBeenProcessed(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()
			ctx := context.Background()

			processed, err := store.HasStakeBeenProcessed(ctx, "sig-unknown")
			if err != nil {
				t.Fatalf("check unknown: %v", err)
			}
			if processed {
				t.Error("unknown signature should not be processed")
			}

			if err := store.RecordStake(ctx, testStake("sig-known")); err != nil {
				t.Fatalf("record stake: %v", err)
			}

			processed, err = store.HasStakeBeenProcessed(ctx, "sig-known")
			if err != nil {
				t.Fatalf("check known: %v", err)
			}
			if !processed {
				t.Error("recorded signature should be processed")
			}
		})
	}
}

func TestGetStakeNotFound(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()

			_, err := store.GetStake(context.Background(), "sig-missing")
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestPruneOldStakes(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			defer store.Close()
			ctx := context.Background()

			old := testStake("sig-old")
			old.CreatedAt = time.Now().Add(-48 * time.Hour)
			if err := store.RecordStake(ctx, old); err != nil {
				t.Fatalf("record old stake: %v", err)
			}

			fresh := testStake("sig-fresh")
			if err := store.RecordStake(ctx, fresh); err != nil {
				t.Fatalf("record fresh stake: %v", err)
			}

			pruned, err := store.PruneOldStakes(ctx, time.Now().Add(-24*time.Hour))
			if err != nil {
				t.Fatalf("prune: %v", err)
			}
			if pruned != 1 {
				t.Errorf("expected 1 pruned record, got %d", pruned)
			}

			if _, err := store.GetStake(ctx, "sig-old"); !errors.Is(err, ErrNotFound) {
				t.Errorf("old stake should be pruned, got %v", err)
			}
			if _, err := store.GetStake(ctx, "sig-fresh"); err != nil {
				t.Errorf("fresh stake should survive pruning: %v", err)
			}
		})
	}
}

func TestRecordStakeValidation(t *testing.T) {
	store := NewMemoryStore(time.Hour, time.Hour)
	defer store.Close()
	ctx := context.Background()

	tests := []struct {
		name  string
		stake ProcessedStake
	}{
		{
			name:  "missing signature",
			stake: ProcessedStake{Wallet: "7Np41oeYqPefeNQEHSv1UDhYrehxin3NStELsSKCT4K2"},
		},
		{
			name:  "missing wallet",
			stake: ProcessedStake{Signature: "sig-no-wallet"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := store.RecordStake(ctx, tt.stake); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stakes.json")
	ctx := context.Background()

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	if err := store.RecordStake(ctx, testStake("sig-persist")); err != nil {
		t.Fatalf("record stake: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()

	processed, err := reopened.HasStakeBeenProcessed(ctx, "sig-persist")
	if err != nil {
		t.Fatalf("check after reopen: %v", err)
	}
	if !processed {
		t.Error("replay protection must survive a restart of the file store")
	}
}

func TestFileStoreFlushSurfacesWriteError(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	store, err := NewFileStore(filepath.Join(dir, "stakes.json"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	defer store.Close()

	if err := store.RecordStake(context.Background(), testStake("sig-flush")); err != nil {
		t.Fatalf("record stake: %v", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("remove data dir: %v", err)
	}

	if err := store.flushIfDirty(); err == nil {
		t.Fatal("expected flush to report the write failure")
	}

	// The records stay dirty, so restoring the directory lets the next
	// flush succeed.
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("restore data dir: %v", err)
	}
	if err := store.flushIfDirty(); err != nil {
		t.Fatalf("flush after restoring directory: %v", err)
	}
}

func TestNewStoreFactory(t *testing.T) {
	tests := []struct {
		name    string
		cfg     StoreConfig
		wantErr bool
	}{
		{
			name: "memory backend",
			cfg:  StoreConfig{Backend: "memory"},
		},
		{
			name: "empty backend defaults to memory",
			cfg:  StoreConfig{},
		},
		{
			name:    "postgres without url",
			cfg:     StoreConfig{Backend: "postgres"},
			wantErr: true,
		},
		{
			name:    "mongodb without url",
			cfg:     StoreConfig{Backend: "mongodb"},
			wantErr: true,
		},
		{
			name:    "mongodb without database",
			cfg:     StoreConfig{Backend: "mongodb", MongoDBURL: "mongodb://localhost:27017"},
			wantErr: true,
		},
		{
			name:    "file without path",
			cfg:     StoreConfig{Backend: "file"},
			wantErr: true,
		},
		{
			name:    "unknown backend",
			cfg:     StoreConfig{Backend: "redis"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewStore(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			store.Close()
		})
	}
}
