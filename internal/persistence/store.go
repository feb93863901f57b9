// Package persistence implements the atomic catalog writer and shadow-backup
// recovery protocol (spec §4.2). Each Store owns one JSON catalog file (a
// top-level array) plus its `.bak` shadow. Writes are atomic (write to a temp
// file, rename over the primary); a write that would replace a non-empty
// catalog with an empty one backs up the current contents first so a later
// cold start can recover them.
package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/configwatch"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/telemetry"
)

// ErrNotFound is returned by a SideChannel when the requested key has no
// known snapshot.
var ErrNotFound = errors.New("persistence: side channel key not found")

// SideChannel is the index-server recovery path consulted when both the
// primary file and its backup are unusable (spec §4.2 step 3). Redis and
// Mongo backends implement this in internal/sidechannel.
type SideChannel interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, data []byte) error
}

// Store manages one catalog file and its shadow backup.
type Store struct {
	path    string
	bakPath string
	lockPath string

	sideChannel    SideChannel
	sideChannelKey string

	watcher *configwatch.Watcher
	tel     telemetry.Bundle
}

// Option configures a Store.
type Option func(*Store)

// WithSideChannel attaches the index-server recovery path and the well-known
// key this catalog is snapshotted under.
func WithSideChannel(sc SideChannel, key string) Option {
	return func(s *Store) {
		s.sideChannel = sc
		s.sideChannelKey = key
	}
}

// WithWatcher attaches the ConfigWatcher guarding this file, so Save can
// announce its own writes and avoid a self-triggered hot reload.
func WithWatcher(w *configwatch.Watcher) Option {
	return func(s *Store) { s.watcher = w }
}

// WithTelemetry attaches a logging/metrics/tracing bundle.
func WithTelemetry(tel telemetry.Bundle) Option {
	return func(s *Store) { s.tel = tel }
}

// NewStore returns a Store rooted at path. The directory containing path
// must already exist.
func NewStore(path string, opts ...Option) *Store {
	s := &Store{
		path:     path,
		bakPath:  path + ".bak",
		lockPath: path + ".lock",
		tel:      telemetry.NewNoop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the primary catalog file path.
func (s *Store) Path() string { return s.path }

func (s *Store) lock() (*flock.Flock, error) {
	fl := flock.New(s.lockPath)
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("persistence: acquire lock %s: %w", s.lockPath, err)
	}
	return fl, nil
}

// Load implements the recovery algorithm (spec §4.2):
//  1. If the primary file is missing but .bak exists, restore .bak -> primary.
//  2. Parse primary. If parse fails or the array is empty while .bak is
//     non-empty, prefer .bak and re-persist.
//  3. If all on-disk copies are unusable and a SideChannel is configured,
//     fetch the last-known snapshot by well-known key and re-persist locally.
//
// A genuinely empty catalog with no backup (first boot) is not an error;
// Load returns an empty array.
func (s *Store) Load(ctx context.Context) ([]byte, error) {
	fl, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer fl.Unlock()

	primaryExists := fileExists(s.path)
	bakBytes, bakExists := s.readBackup()

	if !primaryExists && bakExists {
		s.tel.Logger.Warn(ctx, "persistence: primary missing, restoring from backup", "path", s.path)
		if err := atomicWrite(s.path, bakBytes); err != nil {
			return nil, fmt.Errorf("persistence: restore backup: %w", err)
		}
		return bakBytes, nil
	}

	primaryBytes, primaryErr := os.ReadFile(s.path)
	if primaryErr == nil && isUsableArray(primaryBytes) && !(isEmptyArray(primaryBytes) && bakExists && isUsableArray(bakBytes) && !isEmptyArray(bakBytes)) {
		return primaryBytes, nil
	}

	// Primary is missing, unparseable, or empty while backup holds data.
	if bakExists && isUsableArray(bakBytes) {
		s.tel.Logger.Warn(ctx, "persistence: primary unusable, recovering from backup", "path", s.path)
		if err := atomicWrite(s.path, bakBytes); err != nil {
			return nil, fmt.Errorf("persistence: re-persist from backup: %w", err)
		}
		return bakBytes, nil
	}

	if s.sideChannel != nil {
		data, err := s.sideChannel.Fetch(ctx, s.sideChannelKey)
		if err == nil && isUsableArray(data) {
			s.tel.Logger.Warn(ctx, "persistence: recovered from side channel", "key", s.sideChannelKey)
			if err := atomicWrite(s.path, data); err != nil {
				return nil, fmt.Errorf("persistence: re-persist from side channel: %w", err)
			}
			return data, nil
		}
	}

	if primaryErr != nil && !os.IsNotExist(primaryErr) {
		return nil, fmt.Errorf("persistence: read %s: %w", s.path, primaryErr)
	}
	if primaryExists && !isUsableArray(primaryBytes) {
		return nil, fmt.Errorf("persistence: %s is corrupt and no backup or side channel could recover it", s.path)
	}
	// First boot: nothing on disk yet, nothing to recover.
	return []byte("[]"), nil
}

// Save atomically replaces the primary file with data, backing up the
// current contents first if data would empty a non-empty catalog.
func (s *Store) Save(ctx context.Context, data []byte) error {
	fl, err := s.lock()
	if err != nil {
		return err
	}
	defer fl.Unlock()

	if isEmptyArray(data) {
		if current, err := os.ReadFile(s.path); err == nil && isUsableArray(current) && !isEmptyArray(current) {
			if err := atomicWrite(s.bakPath, current); err != nil {
				return fmt.Errorf("persistence: write shadow backup: %w", err)
			}
		}
	}

	if s.watcher != nil {
		s.watcher.MarkSelfWrite()
	}
	if err := atomicWrite(s.path, data); err != nil {
		return fmt.Errorf("persistence: write %s: %w", s.path, err)
	}

	if s.sideChannel != nil {
		if err := s.sideChannel.Store(ctx, s.sideChannelKey, data); err != nil {
			s.tel.Logger.Warn(ctx, "persistence: side channel dual-write failed", "key", s.sideChannelKey, "error", err)
		}
	}
	return nil
}

func (s *Store) readBackup() ([]byte, bool) {
	data, err := os.ReadFile(s.bakPath)
	if err != nil {
		return nil, false
	}
	return data, true
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isUsableArray(data []byte) bool {
	if len(bytes.TrimSpace(data)) == 0 {
		return false
	}
	return json.Valid(data)
}

func isEmptyArray(data []byte) bool {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return false
	}
	return len(raw) == 0
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
