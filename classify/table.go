package classify

import (
	"fmt"
	"regexp"

	"github.com/randalmurphal/vaultshell/internal/fileconf"
)

// Meaning is what a marker signals when it appears in CLI output.
type Meaning string

// Marker meanings.
const (
	// MeaningPrompt marks an idle prompt. A prompt at the tail of the output
	// means the CLI is waiting for the next command.
	MeaningPrompt Meaning = "prompt"

	// MeaningAuthSuccess marks a successful login banner.
	MeaningAuthSuccess Meaning = "auth_success"

	// MeaningDecrypted marks the banner printed once the vault is decrypted.
	MeaningDecrypted Meaning = "decrypted"

	// MeaningAuthExpired marks a login request or an expired session.
	MeaningAuthExpired Meaning = "auth_expired"

	// MeaningBenign marks informational lines that are never failures.
	MeaningBenign Meaning = "benign"

	// MeaningError marks keywords that indicate a real failure.
	MeaningError Meaning = "error"
)

var meanings = map[Meaning]bool{
	MeaningPrompt:      true,
	MeaningAuthSuccess: true,
	MeaningDecrypted:   true,
	MeaningAuthExpired: true,
	MeaningBenign:      true,
	MeaningError:       true,
}

// Marker is a single recognized string in CLI output.
type Marker struct {
	// Pattern is matched literally unless Regex is set.
	Pattern string `json:"pattern" yaml:"pattern" toml:"pattern"`

	// Meaning is what the marker signals.
	Meaning Meaning `json:"meaning" yaml:"meaning" toml:"meaning"`

	// Regex treats Pattern as a Go regular expression.
	Regex bool `json:"regex,omitempty" yaml:"regex,omitempty" toml:"regex,omitempty"`

	// CaseSensitive disables case folding. Prompts are usually case
	// sensitive, keywords usually are not.
	CaseSensitive bool `json:"case_sensitive,omitempty" yaml:"case_sensitive,omitempty" toml:"case_sensitive,omitempty"`
}

// Table is the full marker vocabulary used by a Classifier.
type Table struct {
	Markers []Marker `json:"markers" yaml:"markers" toml:"markers"`
}

// DefaultTable returns the vocabulary of the Keeper Commander shell.
func DefaultTable() Table {
	return Table{Markers: []Marker{
		// Prompts
		{Pattern: "My Vault>", Meaning: MeaningPrompt, CaseSensitive: true},
		{Pattern: "Keeper>", Meaning: MeaningPrompt, CaseSensitive: true},
		{Pattern: "Not logged in>", Meaning: MeaningPrompt, CaseSensitive: true},

		// Startup banners
		{Pattern: "Successfully authenticated", Meaning: MeaningAuthSuccess},
		{Pattern: "Logged in as", Meaning: MeaningAuthSuccess},
		{Pattern: `Decrypted \[\d+\] record\(s\)`, Meaning: MeaningDecrypted, Regex: true},

		// Authentication problems
		{Pattern: "Not logged in", Meaning: MeaningAuthExpired},
		{Pattern: "session token expired", Meaning: MeaningAuthExpired},
		{Pattern: "session expired", Meaning: MeaningAuthExpired},
		{Pattern: "please log in", Meaning: MeaningAuthExpired},
		{Pattern: `(?m)^\s*(?:User\(Email\)|Email|Password|Master Password)\s*:\s*$`, Meaning: MeaningAuthExpired, Regex: true},

		// Informational noise
		{Pattern: `^\s*Syncing`, Meaning: MeaningBenign, Regex: true},
		{Pattern: "Keeper Commander", Meaning: MeaningBenign},
		{Pattern: `(?:new|latest|current) version`, Meaning: MeaningBenign, Regex: true},
		{Pattern: `^\s*version\b`, Meaning: MeaningBenign, Regex: true},
		{Pattern: "persistent login", Meaning: MeaningBenign},
		{Pattern: "breachwatch", Meaning: MeaningBenign},
		{Pattern: `^\s*warning\b`, Meaning: MeaningBenign, Regex: true},
		{Pattern: `^\s*(?:loading|done)\b`, Meaning: MeaningBenign, Regex: true},

		// Failures
		{Pattern: `\berror\b`, Meaning: MeaningError, Regex: true},
		{Pattern: `\bfailed\b`, Meaning: MeaningError, Regex: true},
		{Pattern: `\bfailure\b`, Meaning: MeaningError, Regex: true},
		{Pattern: "traceback", Meaning: MeaningError},
		{Pattern: `\w*exception\b`, Meaning: MeaningError, Regex: true},
		{Pattern: `\b[A-Z]\w*Error\b`, Meaning: MeaningError, Regex: true, CaseSensitive: true},
		{Pattern: `\binvalid\b`, Meaning: MeaningError, Regex: true},
		{Pattern: "permission denied", Meaning: MeaningError},
		{Pattern: "access denied", Meaning: MeaningError},
		{Pattern: "unknown command", Meaning: MeaningError},
		{Pattern: `\bnot found\b`, Meaning: MeaningError, Regex: true},
	}}
}

// LoadTable reads a marker table from a .yaml, .yml, .toml or .json file.
func LoadTable(path string) (Table, error) {
	var t Table
	if err := fileconf.Decode(path, &t); err != nil {
		return Table{}, fmt.Errorf("load marker table: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Table{}, fmt.Errorf("load marker table %s: %w", path, err)
	}
	return t, nil
}

// Validate checks that every marker has a known meaning and a pattern that
// compiles, and that the table can detect prompts.
func (t Table) Validate() error {
	_, err := compile(t)
	return err
}

// rule is a compiled marker.
type rule struct {
	marker Marker
	re     *regexp.Regexp
}

// ruleSet is a compiled Table grouped by meaning.
type ruleSet struct {
	byMeaning map[Meaning][]rule
}

func compile(t Table) (*ruleSet, error) {
	rs := &ruleSet{byMeaning: make(map[Meaning][]rule)}

	for i, m := range t.Markers {
		if m.Pattern == "" {
			return nil, fmt.Errorf("marker %d: pattern is required", i)
		}
		if !meanings[m.Meaning] {
			return nil, fmt.Errorf("marker %d (%q): unknown meaning %q", i, m.Pattern, m.Meaning)
		}

		expr := m.Pattern
		if !m.Regex {
			expr = regexp.QuoteMeta(expr)
		}
		if !m.CaseSensitive {
			expr = "(?i)" + expr
		}

		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("marker %d (%q): %w", i, m.Pattern, err)
		}
		rs.byMeaning[m.Meaning] = append(rs.byMeaning[m.Meaning], rule{marker: m, re: re})
	}

	if len(rs.byMeaning[MeaningPrompt]) == 0 {
		return nil, fmt.Errorf("table has no %s markers", MeaningPrompt)
	}
	return rs, nil
}

// matchAny reports whether any marker of meaning m matches s.
func (rs *ruleSet) matchAny(m Meaning, s string) bool {
	for _, r := range rs.byMeaning[m] {
		if r.re.MatchString(s) {
			return true
		}
	}
	return false
}
