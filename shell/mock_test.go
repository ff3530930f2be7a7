//go:build !windows

package shell

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// mockCLI emulates an interactive vault shell. It echoes every command
// like a terminal would, then prints the response and a prompt.
const mockCLI = `#!/bin/bash
log="${MOCK_LOG:-/dev/null}"
prompt="${MOCK_PROMPT:-My Vault> }"

case "$MOCK_MODE" in
  noprompt)
    echo "Keeper Commander, version 16.11.0"
    sleep 30
    exit 0 ;;
  exit)
    echo "Keeper Commander, version 16.11.0"
    echo "fatal: config unreadable"
    exit 4 ;;
  login)
    echo "Keeper Commander, version 16.11.0"
    printf 'User(Email): '
    sleep 30
    exit 0 ;;
  banners)
    echo "Successfully authenticated with Persistent Login"
    echo "Decrypted [3] record(s)"
    sleep "${MOCK_PROMPT_DELAY:-0}" ;;
  *)
    echo "Keeper Commander, version 16.11.0"
    echo "Syncing..."
    echo "Successfully authenticated with Persistent Login"
    echo "Decrypted [3] record(s)" ;;
esac
printf '%s' "$prompt"

while IFS= read -r line; do
  echo "$line" >> "$log"
  echo "$line"
  case "$line" in
    quit) exit 0 ;;
    "say "*) echo "${line#say }" ;;
    "work "*) sleep 0.05; echo "done ${line#work }" ;;
    "slow "*) sleep "${line#slow }"; echo "late output" ;;
    hang) sleep 30 ;;
    list)
      echo 'Decrypted [1] record(s)'
      echo '[{"record_uid":"u1","title":"one"}]' ;;
    crash) echo "segfault"; exit 9 ;;
    expire)
      echo "Session token expired"
      printf 'Not logged in> '
      continue ;;
    relogin)
      echo "Session token expired"
      printf 'Password: '
      sleep 30 ;;
    record)
      echo "Title: GitHub"
      echo "Password:"
      sleep 0.1
      echo "hunter2" ;;
    fail)
      echo "Traceback (most recent call last):"
      echo "ValueError: bad" ;;
    *) echo "Unknown command: $line" ;;
  esac
  printf '%s' "$prompt"
done
`

func requireBash(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
}

func writeMockCLI(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mock_keeper.sh")
	require.NoError(t, os.WriteFile(path, []byte(mockCLI), 0o755))
	return path
}

// testConfig returns a config that drives the mock CLI with short timeouts.
func testConfig(t *testing.T, env map[string]string) Config {
	t.Helper()
	requireBash(t)

	cfg := DefaultConfig()
	cfg.Binary = writeMockCLI(t)
	cfg.Args = nil
	cfg.Env = env
	cfg.StartupTimeout = 5 * time.Second
	cfg.CommandTimeout = 5 * time.Second
	cfg.DrainTimeout = 3 * time.Second
	cfg.ReadySettle = time.Second
	cfg.ShutdownGrace = time.Second
	cfg.Logger = discardTestLogger()
	return cfg
}

func newTestShell(t *testing.T, cfg Config, opts ...Option) *Shell {
	t.Helper()
	sh, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sh.Close() })
	return sh
}

// readLog returns the commands the mock CLI received.
func readLog(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
