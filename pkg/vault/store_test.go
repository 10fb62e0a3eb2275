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
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "wallet", "vault.json"))
	require.NoError(t, err)
	return store
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestNewFileStore(t *testing.T) {
	_, err := NewFileStore("")
	assert.Error(t, err)

	store := newTestStore(t)
	info, err := os.Stat(filepath.Dir(store.Path()))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestFileStore_LoadMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNotFound)

	exists, err := store.Exists()
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFileStore_CommitAndLoad(t *testing.T) {
	store := newTestStore(t)
	codec := newTestCodec(t)

	v, err := codec.Encode(testMnemonic, testPassphrase)
	require.NoError(t, err)
	require.NoError(t, store.Commit(v))

	exists, err := store.Exists()
	require.NoError(t, err)
	assert.True(t, exists)

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, v.ID, loaded.ID)
	assert.Equal(t, v.IntegrityTag, loaded.IntegrityTag)

	out, err := codec.Decode(loaded, testPassphrase)
	require.NoError(t, err)
	assert.Equal(t, testMnemonic, out)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(store.Path())
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	assert.Equal(t, []string{"vault.json"}, dirEntries(t, filepath.Dir(store.Path())))
}

func TestFileStore_CommitReplaces(t *testing.T) {
	store := newTestStore(t)
	codec := newTestCodec(t)

	first, err := codec.Encode([]byte("first"), testPassphrase)
	require.NoError(t, err)
	second, err := codec.Encode([]byte("second"), testPassphrase)
	require.NoError(t, err)

	require.NoError(t, store.Commit(first))
	require.NoError(t, store.Commit(second))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, second.ID, loaded.ID)
}

func TestFileStore_RejectsUntaggedVault(t *testing.T) {
	store := newTestStore(t)
	v, err := newTestCodec(t).Encode(testMnemonic, testPassphrase)
	require.NoError(t, err)
	v.IntegrityTag = nil

	err = store.Commit(v)
	assert.ErrorIs(t, err, ErrMissingTag)
	assert.Empty(t, dirEntries(t, filepath.Dir(store.Path())))
}

func TestFileStore_CrashBeforeRename(t *testing.T) {
	store := newTestStore(t)
	codec := newTestCodec(t)

	original, err := codec.Encode([]byte("original"), testPassphrase)
	require.NoError(t, err)
	require.NoError(t, store.Commit(original))
	before, err := os.ReadFile(store.Path())
	require.NoError(t, err)

	replacement, err := codec.Encode([]byte("replacement"), testPassphrase)
	require.NoError(t, err)

	crash := errors.New("simulated power loss")
	var sawTemp string
	store.BeforeRename = func(tmpPath string) error {
		sawTemp = tmpPath
		_, statErr := os.Stat(tmpPath)
		require.NoError(t, statErr, "temp file must be fully written before the hook")
		return crash
	}

	err = store.Commit(replacement)
	require.ErrorIs(t, err, crash)
	assert.NotEmpty(t, sawTemp)

	after, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after, "canonical vault must be byte-identical")

	_, err = os.Stat(sawTemp)
	assert.True(t, os.IsNotExist(err), "temp file must be removed")
	assert.Equal(t, []string{"vault.json"}, dirEntries(t, filepath.Dir(store.Path())))
}

func TestFileStore_CrashOnFirstCommitLeavesNothing(t *testing.T) {
	store := newTestStore(t)
	store.BeforeRename = func(string) error { return errors.New("crash") }

	v, err := newTestCodec(t).Encode(testMnemonic, testPassphrase)
	require.NoError(t, err)

	require.Error(t, store.Commit(v))
	_, err = store.Load()
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, dirEntries(t, filepath.Dir(store.Path())))
}

func TestFileStore_LoadCorrupt(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.WriteFile(store.Path(), []byte("garbage"), 0600))

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrInvalidVault)
}
