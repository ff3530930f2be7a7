package shell

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/kelseyhightower/envconfig"

	"github.com/randalmurphal/vaultshell/internal/fileconf"
)

// Config holds configuration for a Shell.
// Zero values use sensible defaults where noted.
type Config struct {
	// --- Process ---

	// Binary is the vault CLI executable, as a path or a name on PATH.
	// Default: "keeper".
	Binary string `json:"binary" yaml:"binary" toml:"binary" envconfig:"VAULTSHELL_BINARY" jsonschema:"description=Vault CLI executable path or name on PATH,default=keeper"`

	// Args are passed to Binary to enter its interactive shell.
	// Default: ["shell"].
	Args []string `json:"args,omitempty" yaml:"args,omitempty" toml:"args,omitempty" envconfig:"VAULTSHELL_ARGS" jsonschema:"description=Arguments that start the interactive shell"`

	// WorkDir is the working directory for the CLI process.
	// Default: current directory.
	WorkDir string `json:"work_dir,omitempty" yaml:"work_dir,omitempty" toml:"work_dir,omitempty" envconfig:"VAULTSHELL_WORK_DIR"`

	// Env provides additional environment variables for the CLI.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty" toml:"env,omitempty" ignored:"true"`

	// QuitCommand is written to the CLI on Stop.
	// Default: "quit".
	QuitCommand string `json:"quit_command,omitempty" yaml:"quit_command,omitempty" toml:"quit_command,omitempty" envconfig:"VAULTSHELL_QUIT_COMMAND"`

	// --- Timing ---

	// StartupTimeout bounds how long Start waits for the CLI to be ready.
	// Default: DefaultStartupTimeout().
	StartupTimeout time.Duration `json:"startup_timeout,omitempty" yaml:"startup_timeout,omitempty" toml:"startup_timeout,omitempty" envconfig:"VAULTSHELL_STARTUP_TIMEOUT" jsonschema:"minimum=0"`

	// CommandTimeout is used by Execute when the caller passes no timeout.
	// Default: 30 seconds.
	CommandTimeout time.Duration `json:"command_timeout,omitempty" yaml:"command_timeout,omitempty" toml:"command_timeout,omitempty" envconfig:"VAULTSHELL_COMMAND_TIMEOUT" jsonschema:"minimum=0"`

	// DrainTimeout bounds how long a command waits for the prompt of an
	// earlier, timed-out command before the session is recycled.
	// Default: 10 seconds.
	DrainTimeout time.Duration `json:"drain_timeout,omitempty" yaml:"drain_timeout,omitempty" toml:"drain_timeout,omitempty" envconfig:"VAULTSHELL_DRAIN_TIMEOUT" jsonschema:"minimum=0"`

	// ReadySettle is how long Start waits for the first prompt after the
	// startup banners alone have signalled readiness. A prompt arriving
	// later is drained by the first command.
	// Default: 2 seconds.
	ReadySettle time.Duration `json:"ready_settle,omitempty" yaml:"ready_settle,omitempty" toml:"ready_settle,omitempty" envconfig:"VAULTSHELL_READY_SETTLE" jsonschema:"minimum=0"`

	// ShutdownGrace is how long Stop waits for the CLI to exit after the
	// quit command before killing it.
	// Default: 3 seconds.
	ShutdownGrace time.Duration `json:"shutdown_grace,omitempty" yaml:"shutdown_grace,omitempty" toml:"shutdown_grace,omitempty" envconfig:"VAULTSHELL_SHUTDOWN_GRACE" jsonschema:"minimum=0"`

	// --- Output ---

	// MaxOutputBytes caps the buffered output of one command. Older output
	// is discarded once the cap is reached.
	// Default: 16 MiB.
	MaxOutputBytes int `json:"max_output_bytes,omitempty" yaml:"max_output_bytes,omitempty" toml:"max_output_bytes,omitempty" envconfig:"VAULTSHELL_MAX_OUTPUT_BYTES" jsonschema:"minimum=0"`

	// MarkersFile is a YAML, TOML or JSON marker table replacing the
	// built-in vocabulary.
	// Optional.
	MarkersFile string `json:"markers_file,omitempty" yaml:"markers_file,omitempty" toml:"markers_file,omitempty" envconfig:"VAULTSHELL_MARKERS_FILE"`

	// WatchMarkers reloads MarkersFile whenever it changes.
	WatchMarkers bool `json:"watch_markers,omitempty" yaml:"watch_markers,omitempty" toml:"watch_markers,omitempty" envconfig:"VAULTSHELL_WATCH_MARKERS"`

	// --- Coordination ---

	// LockFile, when set, is locked for the life of each session so that
	// only one process drives the CLI at a time.
	// Optional.
	LockFile string `json:"lock_file,omitempty" yaml:"lock_file,omitempty" toml:"lock_file,omitempty" envconfig:"VAULTSHELL_LOCK_FILE"`

	// Logger receives structured logs.
	// Default: slog.Default().
	Logger *slog.Logger `json:"-" yaml:"-" toml:"-" ignored:"true"`
}

// DefaultStartupTimeout returns the startup timeout for the running OS.
// The CLI starts noticeably slower on Windows.
func DefaultStartupTimeout() time.Duration {
	if runtime.GOOS == "windows" {
		return 60 * time.Second
	}
	return 30 * time.Second
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Binary:         "keeper",
		Args:           []string{"shell"},
		QuitCommand:    "quit",
		StartupTimeout: DefaultStartupTimeout(),
		CommandTimeout: 30 * time.Second,
		DrainTimeout:   10 * time.Second,
		ReadySettle:    2 * time.Second,
		ShutdownGrace:  3 * time.Second,
		MaxOutputBytes: 16 << 20,
	}
}

// WithDefaults returns a copy of the config with defaults applied for unset fields.
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()

	if c.Binary == "" {
		c.Binary = defaults.Binary
		if c.Args == nil {
			c.Args = defaults.Args
		}
	}
	if c.QuitCommand == "" {
		c.QuitCommand = defaults.QuitCommand
	}
	if c.StartupTimeout == 0 {
		c.StartupTimeout = defaults.StartupTimeout
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = defaults.CommandTimeout
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = defaults.DrainTimeout
	}
	if c.ReadySettle == 0 {
		c.ReadySettle = defaults.ReadySettle
	}
	if c.ShutdownGrace == 0 {
		c.ShutdownGrace = defaults.ShutdownGrace
	}
	if c.MaxOutputBytes == 0 {
		c.MaxOutputBytes = defaults.MaxOutputBytes
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	return c
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Binary == "" {
		return fmt.Errorf("binary is required")
	}
	if c.StartupTimeout < 0 {
		return fmt.Errorf("startup_timeout must be >= 0")
	}
	if c.CommandTimeout < 0 {
		return fmt.Errorf("command_timeout must be >= 0")
	}
	if c.DrainTimeout < 0 {
		return fmt.Errorf("drain_timeout must be >= 0")
	}
	if c.ReadySettle < 0 {
		return fmt.Errorf("ready_settle must be >= 0")
	}
	if c.ShutdownGrace < 0 {
		return fmt.Errorf("shutdown_grace must be >= 0")
	}
	if c.MaxOutputBytes < 0 {
		return fmt.Errorf("max_output_bytes must be >= 0")
	}
	if c.WatchMarkers && c.MarkersFile == "" {
		return fmt.Errorf("watch_markers requires markers_file")
	}
	return nil
}

// LoadFromEnv overlays VAULTSHELL_* environment variables onto the config.
// Unset variables leave the corresponding fields untouched.
//
// Supported variables:
//   - VAULTSHELL_BINARY, VAULTSHELL_ARGS (comma separated), VAULTSHELL_WORK_DIR
//   - VAULTSHELL_QUIT_COMMAND
//   - VAULTSHELL_STARTUP_TIMEOUT, VAULTSHELL_COMMAND_TIMEOUT,
//     VAULTSHELL_DRAIN_TIMEOUT, VAULTSHELL_READY_SETTLE,
//     VAULTSHELL_SHUTDOWN_GRACE (Go durations such as "45s")
//   - VAULTSHELL_MAX_OUTPUT_BYTES
//   - VAULTSHELL_MARKERS_FILE, VAULTSHELL_WATCH_MARKERS
//   - VAULTSHELL_LOCK_FILE
func (c *Config) LoadFromEnv() error {
	if err := envconfig.Process("", c); err != nil {
		return fmt.Errorf("load config from environment: %w", err)
	}
	return nil
}

// LoadConfigFile reads a Config from a .yaml, .yml, .toml or .json file.
// Durations are written as strings ("45s") in YAML and TOML, and as
// nanoseconds in JSON. Unset fields stay zero; call WithDefaults to fill
// them.
func LoadConfigFile(path string) (Config, error) {
	var cfg Config
	if err := fileconf.Decode(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// ConfigSchema returns a JSON Schema describing the config file format.
func ConfigSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(&Config{})
	s.Title = "vaultshell configuration"
	return s
}
