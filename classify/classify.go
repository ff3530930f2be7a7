package classify

import (
	"regexp"
	"strings"
	"sync"
)

// ansiEscape matches CSI sequences (colors, cursor movement).
var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

// Classifier interprets CLI output using a marker Table.
// It is safe for concurrent use; SetTable swaps the table atomically with
// respect to in-progress classifications.
type Classifier struct {
	mu    sync.RWMutex
	table Table
	rules *ruleSet
}

// New compiles t into a Classifier.
func New(t Table) (*Classifier, error) {
	rs, err := compile(t)
	if err != nil {
		return nil, err
	}
	return &Classifier{table: cloneTable(t), rules: rs}, nil
}

// MustNew is like New but panics if t does not compile.
func MustNew(t Table) *Classifier {
	c, err := New(t)
	if err != nil {
		panic("classify: " + err.Error())
	}
	return c
}

// SetTable replaces the marker table. The current table is kept if t does
// not compile.
func (c *Classifier) SetTable(t Table) error {
	rs, err := compile(t)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.table = cloneTable(t)
	c.rules = rs
	c.mu.Unlock()
	return nil
}

// Table returns a copy of the active marker table.
func (c *Classifier) Table() Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneTable(c.table)
}

func (c *Classifier) ruleSet() *ruleSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rules
}

// IsReady reports whether the CLI has finished starting up. Either a prompt
// sits at the tail of the output, or both an auth-success banner and a
// decrypted-records banner have been printed. Output that asks for
// credentials is never ready.
func (c *Classifier) IsReady(text string) bool {
	rs := c.ruleSet()
	text = normalize(text)
	if rs.matchAny(MeaningAuthExpired, text) {
		return false
	}
	if rs.tailPrompt(trimTail(text)) >= 0 {
		return true
	}
	return rs.matchAny(MeaningAuthSuccess, text) && rs.matchAny(MeaningDecrypted, text)
}

// IsComplete reports whether a prompt sits at the tail of the output, which
// means the CLI has finished the last command and is waiting for input.
// A prompt followed by further text does not count.
func (c *Classifier) IsComplete(text string) bool {
	return c.ruleSet().tailPrompt(trimTail(normalize(text))) >= 0
}

// IsAuthExpired reports whether the output asks for credentials or says the
// session has expired.
func (c *Classifier) IsAuthExpired(text string) bool {
	return c.ruleSet().matchAny(MeaningAuthExpired, normalize(text))
}

// IsAuthExpiredAtTail is like IsAuthExpired but only inspects the last two
// non-empty lines, where a login prompt appears when a session expires
// mid-command. Record data earlier in the output is ignored.
func (c *Classifier) IsAuthExpiredAtTail(text string) bool {
	lines := strings.Split(trimTail(normalize(text)), "\n")
	var tail []string
	for i := len(lines) - 1; i >= 0 && len(tail) < 2; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			tail = append([]string{lines[i]}, tail...)
		}
	}
	return c.ruleSet().matchAny(MeaningAuthExpired, strings.Join(tail, "\n"))
}

// HasRealError reports whether the output contains a failure after benign
// banners, prompts and JSON payload lines have been discarded.
func (c *Classifier) HasRealError(text string) bool {
	return len(c.ErrorLines(text)) > 0
}

// ErrorLines returns the lines that make HasRealError true, trimmed.
func (c *Classifier) ErrorLines(text string) []string {
	rs := c.ruleSet()

	var lines []string
	for _, line := range strings.Split(normalize(text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || looksLikeJSON(line) {
			continue
		}
		if rs.matchAny(MeaningBenign, line) ||
			rs.matchAny(MeaningPrompt, line) ||
			rs.matchAny(MeaningAuthSuccess, line) ||
			rs.matchAny(MeaningDecrypted, line) {
			continue
		}
		if rs.matchAny(MeaningError, line) {
			lines = append(lines, line)
		}
	}
	return lines
}

// Response extracts the response to command from raw output: the trailing
// prompt is cut, a leading echo of the command is dropped, and surrounding
// newlines are trimmed.
func (c *Classifier) Response(text, command string) string {
	rs := c.ruleSet()

	out := normalize(text)
	tail := trimTail(out)
	if i := rs.tailPrompt(tail); i >= 0 {
		out = tail[:i]
	}
	out = rs.stripEcho(out, command)
	return strings.Trim(out, "\r\n")
}

// tailPrompt returns the offset of the prompt that ends text, or -1.
func (rs *ruleSet) tailPrompt(text string) int {
	lastLine := text
	offset := 0
	if i := strings.LastIndexByte(text, '\n'); i >= 0 {
		lastLine = text[i+1:]
		offset = i + 1
	}

	best := -1
	for _, r := range rs.byMeaning[MeaningPrompt] {
		locs := r.re.FindAllStringIndex(lastLine, -1)
		if len(locs) == 0 {
			continue
		}
		loc := locs[len(locs)-1]
		if loc[1] != len(lastLine) {
			continue
		}
		if best < 0 || loc[0] < best {
			best = loc[0]
		}
	}
	if best < 0 {
		return -1
	}
	return offset + best
}

// stripEcho drops the first line if it is the echoed command, optionally
// preceded by a prompt.
func (rs *ruleSet) stripEcho(out, command string) string {
	cmd := strings.TrimSpace(command)
	if cmd == "" {
		return out
	}

	line, rest, _ := strings.Cut(strings.TrimLeft(out, "\n"), "\n")
	line = strings.TrimSpace(line)
	if line == cmd {
		return rest
	}
	if prefix, ok := strings.CutSuffix(line, cmd); ok && rs.matchAny(MeaningPrompt, prefix) {
		return rest
	}
	return out
}

// normalize removes terminal escapes and converts line endings to "\n".
func normalize(text string) string {
	if strings.IndexByte(text, 0x1b) >= 0 {
		text = ansiEscape.ReplaceAllString(text, "")
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

func trimTail(text string) string {
	return strings.TrimRight(text, " \t\n")
}

// looksLikeJSON reports whether a trimmed line is part of a JSON payload.
func looksLikeJSON(line string) bool {
	switch line[0] {
	case '{', '}', '[', ']', '"':
		return true
	}
	return false
}

func cloneTable(t Table) Table {
	return Table{Markers: append([]Marker(nil), t.Markers...)}
}

var defaultClassifier = MustNew(DefaultTable())

// Default returns a shared Classifier built from DefaultTable.
// Callers that intend to call SetTable should build their own with New.
func Default() *Classifier { return defaultClassifier }

// IsReady calls Default().IsReady.
func IsReady(text string) bool { return defaultClassifier.IsReady(text) }

// IsComplete calls Default().IsComplete.
func IsComplete(text string) bool { return defaultClassifier.IsComplete(text) }

// HasRealError calls Default().HasRealError.
func HasRealError(text string) bool { return defaultClassifier.HasRealError(text) }
