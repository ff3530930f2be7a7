package classify

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsReady(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"prompt at tail", "Keeper Commander\nMy Vault> ", true},
		{"alternate prompt", "Keeper> ", true},
		{"banner pair", "Successfully authenticated with Persistent Login\nSyncing...\nDecrypted [12] record(s)\n", true},
		{"auth success alone", "Successfully authenticated\n", false},
		{"decrypted alone", "Decrypted [3] record(s)\n", false},
		{"generic angle bracket", "loading modules >", false},
		{"prompt followed by text", "My Vault> \nSyncing...", false},
		{"login requested", "Keeper Commander\nUser(Email): ", false},
		{"not logged in prompt", "Not logged in> ", false},
		{"empty", "", false},
		{"ansi colored prompt", "\x1b[32mMy Vault>\x1b[0m ", true},
	}

	c := MustNew(DefaultTable())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.IsReady(tt.text))
		})
	}
}

func TestIsComplete(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"prompt with trailing space", "result\nMy Vault> ", true},
		{"prompt with crlf output", "result\r\nMy Vault> ", true},
		{"prompt without newline before it", "resultMy Vault>", true},
		{"prompt mid output", "My Vault> \nstill working", false},
		{"prompt text inside data", `[{"title":"My Vault> backup"}]`, false},
		{"not logged in prompt", "Session token expired\nNot logged in> ", true},
		{"no prompt", "Syncing...\n", false},
	}

	c := MustNew(DefaultTable())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.IsComplete(tt.text))
		})
	}
}

func TestIsAuthExpired(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Session token expired\nNot logged in> ", true},
		{"Keeper Commander\nUser(Email): ", true},
		{"Password: ", true},
		{"Password: hunter2", false},
		{`{"login": "me@example.com", "password": "x"}`, false},
		{"My Vault> ", false},
	}

	c := MustNew(DefaultTable())
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, c.IsAuthExpired(tt.text))
		})
	}
}

func TestIsAuthExpiredAtTail(t *testing.T) {
	c := MustNew(DefaultTable())

	assert.True(t, c.IsAuthExpiredAtTail("R1\nR2\nSession token expired\nNot logged in> "))
	assert.True(t, c.IsAuthExpiredAtTail("data\nPassword: "))
	assert.False(t, c.IsAuthExpiredAtTail("Title: db\nPassword:\nNotes: none\nURL: x\nMy Vault> "))
	assert.False(t, c.IsAuthExpiredAtTail(""))
}

func TestHasRealError(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"benign banners only", "Syncing...\nDecrypted [3] record(s)\n", false},
		{"traceback", "Syncing...\nTraceback: ValueError\n", true},
		{"python exception line", "ValueError: record title is required", true},
		{"warning line", "Warning: your master password expires in 3 days", false},
		{"version notice", "A new version of Commander is available\nVersion 16.11.0", false},
		{"json payload mentioning error", "[\n{\"title\": \"error log credentials\"}\n]", false},
		{"plain error", "Error: record abc not found", true},
		{"failed keyword", "sync-down failed", true},
		{"unknown command", "Unknown command: lsit", true},
		{"prompt echo", "My Vault> get error-report", false},
		{"empty", "", false},
	}

	c := MustNew(DefaultTable())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.HasRealError(tt.text))
		})
	}
}

func TestErrorLines(t *testing.T) {
	c := MustNew(DefaultTable())
	lines := c.ErrorLines("Syncing...\r\n  Traceback (most recent call last):\r\nValueError: bad\r\nDecrypted [1] record(s)\r\n")
	assert.Equal(t, []string{"Traceback (most recent call last):", "ValueError: bad"}, lines)
}

func TestResponse(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		command string
		want    string
	}{
		{"echo and prompt stripped", "list\nR1\nR2\nMy Vault> ", "list", "R1\nR2"},
		{"prompt prefixed echo", "My Vault> list\nR1\nMy Vault> ", "list", "R1"},
		{"no echo", "R1\r\nR2\r\nMy Vault> ", "list", "R1\nR2"},
		{"echo only", "sync-down\nMy Vault> ", "sync-down", ""},
		{"no prompt", "list\npartial", "list", "partial"},
		{"first line is data not echo", "listing\nMy Vault> ", "list", "listing"},
		{"output ends without newline", "list\nR1My Vault> ", "list", "R1"},
	}

	c := MustNew(DefaultTable())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Response(tt.text, tt.command))
		})
	}
}

func TestPackageFunctions(t *testing.T) {
	assert.True(t, IsReady("My Vault> "))
	assert.True(t, IsComplete("x\nKeeper> "))
	assert.True(t, HasRealError("failed to decrypt"))
	assert.Same(t, Default(), Default())
}

func TestNew_InvalidTable(t *testing.T) {
	tests := []struct {
		name  string
		table Table
		want  string
	}{
		{"empty pattern", Table{Markers: []Marker{{Meaning: MeaningPrompt}}}, "pattern is required"},
		{"unknown meaning", Table{Markers: []Marker{{Pattern: "x", Meaning: "nope"}}}, "unknown meaning"},
		{"bad regex", Table{Markers: []Marker{{Pattern: "(", Meaning: MeaningPrompt, Regex: true}}}, "marker 0"},
		{"no prompts", Table{Markers: []Marker{{Pattern: "error", Meaning: MeaningError}}}, "no prompt markers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.table)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSetTable(t *testing.T) {
	c := MustNew(DefaultTable())
	require.False(t, c.IsComplete("vault$ "))

	custom := Table{Markers: []Marker{{Pattern: "vault$", Meaning: MeaningPrompt}}}
	require.NoError(t, c.SetTable(custom))
	assert.True(t, c.IsComplete("vault$ "))
	assert.False(t, c.IsComplete("My Vault> "))

	// A broken table leaves the active one in place.
	require.Error(t, c.SetTable(Table{}))
	assert.True(t, c.IsComplete("vault$ "))
	assert.Equal(t, custom, c.Table())
}

func TestLoadTable(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "markers.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`markers:
  - pattern: "vault>"
    meaning: prompt
    case_sensitive: true
  - pattern: 'Unlocked \d+ entries'
    meaning: decrypted
    regex: true
  - pattern: "boom"
    meaning: error
`), 0o600))

	tomlPath := filepath.Join(dir, "markers.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(`
[[markers]]
pattern = "vault>"
meaning = "prompt"
case_sensitive = true

[[markers]]
pattern = 'Unlocked \d+ entries'
meaning = "decrypted"
regex = true

[[markers]]
pattern = "boom"
meaning = "error"
`), 0o600))

	for _, path := range []string{yamlPath, tomlPath} {
		t.Run(filepath.Ext(path), func(t *testing.T) {
			table, err := LoadTable(path)
			require.NoError(t, err)
			require.Len(t, table.Markers, 3)
			assert.Equal(t, MeaningDecrypted, table.Markers[1].Meaning)
			assert.True(t, table.Markers[1].Regex)

			c, err := New(table)
			require.NoError(t, err)
			assert.True(t, c.IsComplete("out\nvault> "))
			assert.True(t, c.HasRealError("BOOM"))
		})
	}
}

func TestLoadTable_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("markers:\n  - pattern: x\n    meaning: sometimes\n"), 0o600))

	_, err := LoadTable(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown meaning")
}

func TestWatch_ReloadsTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("markers:\n  - pattern: \"first>\"\n    meaning: prompt\n"), 0o600))

	table, err := LoadTable(path)
	require.NoError(t, err)
	c := MustNew(table)

	var (
		mu      sync.Mutex
		reloads int
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Watch(ctx, path, func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			reloads++
		}
	}))

	require.NoError(t, os.WriteFile(path, []byte("markers:\n  - pattern: \"second>\"\n    meaning: prompt\n"), 0o600))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reloads > 0 && c.IsComplete("second> ")
	}, 5*time.Second, 20*time.Millisecond)
	assert.False(t, c.IsComplete("first> "))
}

func TestWatch_KeepsTableOnBadReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("markers:\n  - pattern: \"first>\"\n    meaning: prompt\n"), 0o600))

	table, err := LoadTable(path)
	require.NoError(t, err)
	c := MustNew(table)

	errs := make(chan error, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Watch(ctx, path, func(err error) {
		select {
		case errs <- err:
		default:
		}
	}))

	require.NoError(t, os.WriteFile(path, []byte("markers: [\n"), 0o600))

	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload attempt observed")
	}
	assert.True(t, c.IsComplete("first> "))
}

func TestWatch_MissingDirectory(t *testing.T) {
	c := MustNew(DefaultTable())
	err := c.Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "markers.yaml"), nil)
	assert.Error(t, err)
}
