//go:build !windows

package cli

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mockVault = `#!/bin/bash
echo "Keeper Commander, version 16.11.0"
printf 'My Vault> '
while IFS= read -r line; do
  echo "$line"
  case "$line" in
    quit) exit 0 ;;
    "list --format=json")
      echo 'Decrypted [1] record(s)'
      echo '[{"record_uid":"u1","title":"GitHub"}]' ;;
    *) echo "ran: $line" ;;
  esac
  printf 'My Vault> '
done
`

const mockLogin = `#!/bin/bash
echo "Keeper Commander, version 16.11.0"
printf 'User(Email): '
sleep 30
`

func writeMockVault(t *testing.T) string {
	t.Helper()
	return writeScript(t, mockVault)
}

func writeScript(t *testing.T, script string) string {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
	path := filepath.Join(t.TempDir(), "keeper")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestExecCommand(t *testing.T) {
	bin := writeMockVault(t)

	out, err := runCLI(t, "exec", "--binary", bin, "--", "this-device")
	require.NoError(t, err)
	assert.Equal(t, "ran: this-device\n", out)
}

func TestExecCommand_JSON(t *testing.T) {
	bin := writeMockVault(t)

	out, err := runCLI(t, "exec", "--binary", bin, "--json", "array", "--", "list", "--format=json")
	require.NoError(t, err)
	assert.Contains(t, out, `"record_uid": "u1"`)
	assert.NotContains(t, out, "Decrypted")
}

func TestExecCommand_NoJSON(t *testing.T) {
	bin := writeMockVault(t)

	_, err := runCLI(t, "exec", "--binary", bin, "--json", "object", "whoami")
	assert.Error(t, err)
}

func TestCheckCommand(t *testing.T) {
	bin := writeMockVault(t)

	out, err := runCLI(t, "check", "--binary", bin)
	require.NoError(t, err)
	assert.Contains(t, out, "state:   ready")
}

func TestCheckCommand_NotInstalled(t *testing.T) {
	out, err := runCLI(t, "check", "--binary", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Contains(t, out, "state:   not_started")
}

func TestCheckCommand_LoginRequired(t *testing.T) {
	bin := writeScript(t, mockLogin)

	out, err := runCLI(t, "check", "--binary", bin)
	require.Error(t, err)
	assert.Contains(t, out, "state:   not_started")
	assert.Contains(t, out, "hint:    log in once")
}
