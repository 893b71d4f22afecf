// Package state persists the portfolio between runs as a JSON file.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	tradeerrors "stockpilot/internal/errors"
	"stockpilot/internal/logger"
	"stockpilot/internal/portfolio"
)

// stateVersion tags the on-disk format.
const stateVersion = "1.0.0"

// stateFile is the on-disk envelope around the portfolio.
type stateFile struct {
	Version     string           `json:"version"`
	LastUpdated time.Time        `json:"last_updated"`
	Portfolio   *portfolio.State `json:"portfolio"`
}

// Store manages saving and loading of portfolio state. Saves are atomic:
// the previous file is kept as a backup and the new one is written to a
// temp file and renamed into place.
type Store struct {
	mu           sync.Mutex
	path         string
	startingCash float64
	log          *logger.Logger
}

// NewStore creates a store writing to path. startingCash seeds the
// portfolio when no state file exists yet.
func NewStore(path string, startingCash float64, log *logger.Logger) *Store {
	return &Store{path: path, startingCash: startingCash, log: log}
}

// Load reads the persisted portfolio, or returns a fresh one seeded with
// the starting cash when no file exists.
func (s *Store) Load() (*portfolio.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.log.Info("No existing state at %s, starting with $%.2f cash", s.path, s.startingCash)
		return portfolio.NewState(s.startingCash), nil
	}
	if err != nil {
		return nil, tradeerrors.NewPersistenceError("state", "load", err)
	}

	var envelope stateFile
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, tradeerrors.NewPersistenceError("state", "load",
			fmt.Errorf("corrupt state file %s: %w", s.path, err))
	}
	if envelope.Portfolio == nil {
		return nil, tradeerrors.NewPersistenceError("state", "load",
			fmt.Errorf("state file %s has no portfolio", s.path))
	}
	if envelope.Portfolio.Positions == nil {
		envelope.Portfolio.Positions = make(map[string]*portfolio.Position)
	}

	s.log.Info("Loaded state from %s: $%.2f cash, %d positions",
		s.path, envelope.Portfolio.Cash, len(envelope.Portfolio.Positions))
	return envelope.Portfolio, nil
}

// Save writes the portfolio to disk atomically.
func (s *Store) Save(p *portfolio.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return tradeerrors.NewPersistenceError("state", "save", err)
	}

	// Keep the previous file as a backup before overwriting.
	if _, err := os.Stat(s.path); err == nil {
		if err := copyFile(s.path, s.path+".bak"); err != nil {
			s.log.LogWarning("State", "failed to back up %s: %v", s.path, err)
		}
	}

	envelope := stateFile{
		Version:     stateVersion,
		LastUpdated: time.Now(),
		Portfolio:   p,
	}
	data, err := json.MarshalIndent(&envelope, "", "  ")
	if err != nil {
		return tradeerrors.NewPersistenceError("state", "save", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return tradeerrors.NewPersistenceError("state", "save", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return tradeerrors.NewPersistenceError("state", "save", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}
