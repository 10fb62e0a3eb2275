// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-walletcore.
//
// go-walletcore is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	// Default directory permissions (owner rwx only)
	defaultDirPerms = 0700

	// Vault files are owner rw only
	vaultFilePerms = 0600
)

// FileStore persists a single vault at a canonical path. Writes go to a
// temporary file in the same directory which is synced and then renamed
// over the canonical path, so readers see either the old or the new vault.
type FileStore struct {
	mu   sync.Mutex
	path string

	// BeforeRename, when set, runs after the temporary file is synced and
	// before it replaces the canonical file. Returning an error aborts the
	// commit. Tests use it to simulate a crash at that point.
	BeforeRename func(tmpPath string) error
}

// NewFileStore creates a store for the vault at path. The parent directory
// is created with 0700 permissions if it doesn't exist.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("vault: store path cannot be empty")
	}
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), defaultDirPerms); err != nil {
		return nil, fmt.Errorf("vault: failed to create directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Path returns the canonical vault location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the vault. Returns ErrNotFound if none has been committed.
func (s *FileStore) Load() (*SecretVault, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("vault: failed to read %s: %w", s.path, err)
	}
	return Unmarshal(data)
}

// Exists reports whether a vault has been committed.
func (s *FileStore) Exists() (bool, error) {
	_, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("vault: failed to stat %s: %w", s.path, err)
	}
	return true, nil
}

// Commit atomically replaces the stored vault with v. On any failure the
// temporary file is removed and the previous vault is left untouched.
func (s *FileStore) Commit(v *SecretVault) (err error) {
	data, err := Marshal(v)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("vault: failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err = tmp.Chmod(vaultFilePerms); err != nil {
		return fmt.Errorf("vault: failed to chmod temp file: %w", err)
	}
	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("vault: failed to write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("vault: failed to sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("vault: failed to close temp file: %w", err)
	}
	if s.BeforeRename != nil {
		if err = s.BeforeRename(tmpPath); err != nil {
			return fmt.Errorf("vault: commit aborted: %w", err)
		}
	}
	if err = os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("vault: failed to rename temp file: %w", err)
	}

	syncDir(dir)
	return nil
}

// syncDir flushes the directory entry for the rename. Not every platform
// supports fsync on directories, so failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
