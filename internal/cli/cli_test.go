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

package cli

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jeremyhahn/go-walletcore/pkg/device"
	"github.com/jeremyhahn/go-walletcore/pkg/exchange"
	"github.com/jeremyhahn/go-walletcore/pkg/migration"
	"github.com/jeremyhahn/go-walletcore/pkg/migration/migrationtest"
	"github.com/jeremyhahn/go-walletcore/pkg/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type result struct {
	stdout string
	stderr string
	err    error
}

// run executes walletctl with a vault under a fresh temp dir.
func run(t *testing.T, in string, args ...string) result {
	t.Helper()
	cfg := NewConfig()
	if in != "" {
		cfg.In = strings.NewReader(in)
	}
	cmd := NewRootCommand(cfg)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func vaultPath(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vault", "vault.json")
	t.Setenv("WALLET_VAULT_PATH", path)
	return path
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, "text", cfg.OutputFormat)
	assert.Empty(t, cfg.ConfigFile)
	assert.False(t, cfg.Verbose)
	assert.False(t, cfg.Emulator)
}

func TestVersion(t *testing.T) {
	r := run(t, "", "version")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "walletctl version dev")

	r = run(t, "", "version", "-o", "json")
	require.NoError(t, r.err)
	var out map[string]string
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &out))
	assert.Equal(t, Version, out["version"])
}

func TestDeviceInit_Emulator(t *testing.T) {
	vaultPath(t)

	r := run(t, "", "--emulator", "device", "init", "--kind", "ledger-x", "-o", "json")
	require.NoError(t, r.err, r.stderr)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &out))
	assert.Equal(t, device.LedgerX.String(), out["kind"])
	assert.Equal(t, device.StateReady.String(), out["state"])
	assert.NotEmpty(t, out["session_id"])
	assert.NotEmpty(t, out["public_key"])
}

func TestDeviceInit_NotFound(t *testing.T) {
	vaultPath(t)
	t.Setenv("WALLET_DEVICE_DISCOVERY_TIMEOUT", "100ms")
	t.Setenv("WALLET_DEVICE_POLL_INTERVAL", "20ms")

	r := run(t, "", "device", "init", "--kind", "TrezorT")
	assert.ErrorIs(t, r.err, device.ErrNotFound)

	r = run(t, "", "--emulator", "device", "init", "--kind", "Keystone")
	assert.ErrorIs(t, r.err, device.ErrUnknownKind)
}

func TestDeviceSign_Emulator(t *testing.T) {
	vaultPath(t)
	digest := strings.Repeat("ab", 32)

	r := run(t, "", "--emulator", "device", "sign", "--kind", "TrezorOne", "--digest", digest)
	require.NoError(t, r.err, r.stderr)

	sig, err := hex.DecodeString(strings.TrimSpace(r.stdout))
	require.NoError(t, err)
	assert.Equal(t, byte(0x30), sig[0], "DER sequence")
}

func TestDeviceSign_BadDigest(t *testing.T) {
	vaultPath(t)

	r := run(t, "", "--emulator", "device", "sign", "--kind", "TrezorOne", "--digest", "zz")
	assert.ErrorContains(t, r.err, "invalid digest")

	r = run(t, "", "--emulator", "device", "sign", "--kind", "TrezorOne", "--digest", "abcd")
	assert.ErrorIs(t, r.err, device.ErrInvalidDigest)
}

func TestImport(t *testing.T) {
	path := vaultPath(t)
	t.Setenv("WALLET_MIGRATION_ATTEMPT_INTERVAL", "10ms")
	seed := bytes.Repeat([]byte{0x42}, 32)
	export := migrationtest.WriteExport(t, t.TempDir(), migration.FormatPBKDF2, seed, []byte("extension-pass"))

	r := run(t, "wrong\nextension-pass\n", "import", "--path", export, "-o", "json")
	require.NoError(t, r.err, r.stderr)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &out))
	assert.Equal(t, migration.Imported.String(), out["outcome"])
	assert.EqualValues(t, 2, out["attempts"])
	assert.Contains(t, r.stderr, "Extension passphrase (attempt 2): ")

	store, err := vault.NewFileStore(path)
	require.NoError(t, err)
	v, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, out["vault_id"], v.ID)

	r = run(t, "extension-pass\n", "import", "--path", export)
	assert.ErrorIs(t, r.err, migration.ErrVaultExists)

	r = run(t, "extension-pass\nnew-pass\n", "import", "--path", export, "--replace", "--new-passphrase")
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stdout, "Vault imported")
	assert.Contains(t, r.stderr, "New vault passphrase: ")
}

func TestImport_NothingToImport(t *testing.T) {
	vaultPath(t)

	r := run(t, "", "import", "--path", filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "Nothing to import")
}

func TestImport_PromptAborted(t *testing.T) {
	vaultPath(t)
	export := migrationtest.WriteExport(t, t.TempDir(), migration.FormatScrypt, bytes.Repeat([]byte{1}, 16), []byte("pw"))

	r := run(t, "\n", "import", "--path", export)
	assert.ErrorIs(t, r.err, migration.ErrPromptAborted)
}

func TestLink(t *testing.T) {
	vaultPath(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"linked": true}`))
	}))
	defer srv.Close()
	t.Setenv("WALLET_EXCHANGE_BASE_URL", srv.URL)

	r := run(t, "", "link", "--api-key", "good-key")
	require.NoError(t, r.err, r.stderr)
	assert.Contains(t, r.stdout, "Exchange account linked")

	r = run(t, "", "link", "--api-key", "bad-key")
	assert.ErrorIs(t, r.err, exchange.ErrLinkRejected)

	t.Setenv(apiKeyEnv, "good-key")
	r = run(t, "", "link")
	require.NoError(t, r.err)

	t.Setenv(apiKeyEnv, "")
	r = run(t, "", "link")
	assert.ErrorIs(t, r.err, exchange.ErrEmptyAPIKey)
}

func TestLink_NotConfigured(t *testing.T) {
	vaultPath(t)
	r := run(t, "", "link", "--api-key", "k")
	assert.Error(t, r.err)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "walletctl.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("logging:\n  level: nope\n"), 0600))

	r := run(t, "", "--config", cfgPath, "version")
	require.NoError(t, r.err, "version does not load configuration")

	r = run(t, "", "--config", cfgPath, "link", "--api-key", "k")
	assert.Error(t, r.err)
}

func TestStatus(t *testing.T) {
	path := vaultPath(t)

	r := run(t, "", "--emulator", "status", "--device-window", "500ms", "-o", "json")
	require.NoError(t, r.err, r.stderr)

	var out struct {
		Status string                   `json:"status"`
		Checks []map[string]interface{} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &out))
	assert.Equal(t, "degraded", out.Status, "no vault and no exchange yet")
	require.Len(t, out.Checks, 2+len(device.Kinds()))
	for _, c := range out.Checks {
		if strings.HasPrefix(c["name"].(string), "device.") {
			assert.Equal(t, "healthy", c["status"], c["name"])
		}
	}

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
	require.NoError(t, os.WriteFile(path, []byte("not a vault"), 0600))
	r = run(t, "", "--emulator", "status", "--device-window", "500ms")
	assert.ErrorIs(t, r.err, ErrUnhealthy)
	assert.Contains(t, r.stdout, "Status: unhealthy")
}

func TestHandleError(t *testing.T) {
	var buf bytes.Buffer
	cfg := NewConfig()
	cfg.OutputFormat = "json"
	handleError(cfg, &buf, device.ErrNotFound)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "error", out["status"])
	assert.Equal(t, false, out["fatal"])

	buf.Reset()
	cfg.OutputFormat = "yaml"
	handleError(cfg, &buf, device.ErrNotFound)
	assert.Contains(t, buf.String(), "Error: device: not found")
}
