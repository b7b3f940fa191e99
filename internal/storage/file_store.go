package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const flushInterval = 5 * time.Second

// FileStore implements Store using JSON file storage. Intended for local
// development; a multi-instance deployment needs Postgres or MongoDB.
type FileStore struct {
	filePath string

	mu     sync.RWMutex
	stakes map[string]ProcessedStake
	dirty  bool

	flushTicker *time.Ticker
	stopFlush   chan struct{}
	flushDone   chan struct{}
}

// fileData is the JSON structure stored on disk.
type fileData struct {
	ProcessedStakes map[string]ProcessedStake `json:"processed_stakes"`
}

// NewFileStore creates a file-backed store, loading any existing records.
func NewFileStore(filePath string) (*FileStore, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	s := &FileStore{
		filePath:    filePath,
		stakes:      make(map[string]ProcessedStake),
		flushTicker: time.NewTicker(flushInterval),
		stopFlush:   make(chan struct{}),
		flushDone:   make(chan struct{}),
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	go s.periodicFlush()

	return s, nil
}

// load reads records from disk. A missing or empty file is a fresh store.
func (s *FileStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.filePath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var fd fileData
	if err := json.Unmarshal(data, &fd); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if fd.ProcessedStakes != nil {
		s.stakes = fd.ProcessedStakes
	}
	return nil
}

// saveData writes the given records to disk atomically via a temp file.
func (s *FileStore) saveData(stakes map[string]ProcessedStake) error {
	jsonData, err := json.MarshalIndent(fileData{ProcessedStakes: stakes}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	tmpPath := s.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, jsonData, 0600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename file: %w", err)
	}
	_ = os.Chmod(s.filePath, 0600)

	return nil
}

// periodicFlush flushes dirty data to disk on a ticker.
func (s *FileStore) periodicFlush() {
	defer close(s.flushDone)

	for {
		select {
		case <-s.stopFlush:
			return
		case <-s.flushTicker.C:
			if err := s.flushIfDirty(); err != nil {
				log.Error().
					Err(err).
					Str("path", s.filePath).
					Msg("storage.file_flush_failed")
			}
		}
	}
}

// flushIfDirty writes pending records to disk. The records stay marked dirty
// on failure so the next tick retries the write.
func (s *FileStore) flushIfDirty() error {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	snapshot := make(map[string]ProcessedStake, len(s.stakes))
	for k, v := range s.stakes {
		snapshot[k] = v
	}
	s.dirty = false
	s.mu.Unlock()

	// I/O happens outside the lock so reads keep flowing.
	if err := s.saveData(snapshot); err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return err
	}
	return nil
}

// RecordStake saves a processed stake.
// Returns ErrDuplicateSignature if the signature already exists.
func (s *FileStore) RecordStake(_ context.Context, stake ProcessedStake) error {
	if err := validateStake(&stake); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.stakes[stake.Signature]; exists {
		return ErrDuplicateSignature
	}

	s.stakes[stake.Signature] = stake
	s.dirty = true
	return nil
}

// HasStakeBeenProcessed checks if a deposit signature has ever been handled.
func (s *FileStore) HasStakeBeenProcessed(_ context.Context, signature string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.stakes[signature]
	return exists, nil
}

// GetStake retrieves a processed stake by deposit signature.
func (s *FileStore) GetStake(_ context.Context, signature string) (ProcessedStake, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stake, ok := s.stakes[signature]
	if !ok {
		return ProcessedStake{}, ErrNotFound
	}
	return stake, nil
}

// PruneOldStakes deletes records older than the specified time.
func (s *FileStore) PruneOldStakes(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := int64(0)
	for sig, stake := range s.stakes {
		if stake.CreatedAt.Before(olderThan) {
			delete(s.stakes, sig)
			count++
		}
	}
	if count > 0 {
		s.dirty = true
	}
	return count, nil
}

// Close stops the flush goroutine and writes any pending data.
func (s *FileStore) Close() error {
	close(s.stopFlush)
	s.flushTicker.Stop()
	<-s.flushDone

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dirty {
		return s.saveData(s.stakes)
	}
	return nil
}
