package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/randalmurphal/vaultshell/parser"
	"github.com/randalmurphal/vaultshell/retry"
	"github.com/randalmurphal/vaultshell/shell"
)

// Shell is the part of *shell.Shell the client needs.
type Shell interface {
	shell.Executor
	Stop() error
}

// Default command lines.
const (
	cmdListRecords = "list --format=json"
	cmdListFolders = "ls -f --format=json"
	cmdSync        = "sync-down"
)

// Client runs vault commands through a shell with retries.
type Client struct {
	shell   Shell
	retry   *retry.Executor
	policy  retry.Policy
	logger  *slog.Logger
	metrics *shell.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithPolicy sets the policy for read commands. Its Validator is replaced
// per command.
func WithPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithMetrics counts retries in m.
func WithMetrics(m *shell.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a Client over sh.
func New(sh Shell, opts ...Option) *Client {
	c := &Client{
		shell:  sh,
		policy: retry.DefaultPolicy(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.retry = retry.New(sh,
		retry.WithLogger(c.logger),
		retry.WithMetrics(c.metrics),
	)
	return c
}

// Exec runs command once with the shell's command timeout and returns its
// response unjudged.
func (c *Client) Exec(ctx context.Context, command string) (string, error) {
	return c.shell.Execute(ctx, command, 0)
}

// ExecWithRetry runs command under p.
func (c *Client) ExecWithRetry(ctx context.Context, command string, p retry.Policy) (string, error) {
	return c.retry.Execute(ctx, command, p)
}

// ExecJSON runs command with the client's policy, requiring a JSON value of
// the given kind, and decodes it into v.
func (c *Client) ExecJSON(ctx context.Context, command string, kind parser.Kind, v any, extra ...retry.Validator) error {
	p := c.policy
	p.Validator = retry.All(append([]retry.Validator{retry.ExpectJSON(kind)}, extra...)...)

	out, err := c.retry.Execute(ctx, command, p)
	if err != nil {
		return err
	}
	if err := parser.ExtractInto(out, kind, v); err != nil {
		return fmt.Errorf("decode %s output: %w", shell.CommandName(command), err)
	}
	return nil
}

// ListRecords returns every record in the vault.
func (c *Client) ListRecords(ctx context.Context) ([]Record, error) {
	var raws []json.RawMessage
	if err := c.ExecJSON(ctx, cmdListRecords, parser.KindArray, &raws); err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(raws))
	for _, raw := range raws {
		r, err := decodeRecord(raw)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	c.logger.Debug("listed records", slog.Int("count", len(records)))
	return records, nil
}

// GetRecord returns one record by UID.
func (c *Client) GetRecord(ctx context.Context, uid string) (Record, error) {
	if err := checkArg("uid", uid); err != nil {
		return Record{}, err
	}

	var raw json.RawMessage
	command := "get " + quote(uid) + " --format=json"
	if err := c.ExecJSON(ctx, command, parser.KindObject, &raw, retry.Require(uid)); err != nil {
		return Record{}, err
	}
	return decodeRecord(raw)
}

// ListFolders returns the vault's folders.
func (c *Client) ListFolders(ctx context.Context) ([]Folder, error) {
	var folders []Folder
	if err := c.ExecJSON(ctx, cmdListFolders, parser.KindArray, &folders); err != nil {
		return nil, err
	}
	return folders, nil
}

// GeneratePassword returns a new random password of the given length.
// A length of zero uses the CLI's default.
func (c *Client) GeneratePassword(ctx context.Context, length int) (string, error) {
	if length < 0 {
		return "", shell.NewError("generate", "generate", fmt.Errorf("%w: negative length %d", shell.ErrInvalidCommand, length), false)
	}

	command := "generate --format=json"
	if length > 0 {
		command = fmt.Sprintf("generate --length=%d --format=json", length)
	}

	// A late record listing can also parse as an array, so reject it.
	var out []generated
	if err := c.ExecJSON(ctx, command, parser.KindArray, &out, retry.Reject(`"record_uid"`)); err != nil {
		return "", err
	}
	if len(out) == 0 || out[0].Password == "" {
		return "", &retry.ValidationError{
			Command: "generate",
			Err:     errors.New("generator returned no password"),
		}
	}
	return out[0].Password, nil
}

// Sync pulls the latest vault state from the server.
func (c *Client) Sync(ctx context.Context) error {
	p := c.policy
	p.Validator = nil
	_, err := c.retry.Execute(ctx, cmdSync, p)
	return err
}

// AddRecord creates a record and returns its UID. It is dispatched exactly
// once.
func (c *Client) AddRecord(ctx context.Context, rec NewRecord) (string, error) {
	command, err := addRecordCommand(rec)
	if err != nil {
		return "", err
	}

	p := retry.SingleAttempt(c.policy.Timeout)
	p.Validator = retry.NotEmpty()
	out, err := c.retry.Execute(ctx, command, p)
	if err != nil {
		return "", err
	}

	uid := lastLine(out)
	c.logger.Info("record added", slog.String("record_uid", uid))
	return uid, nil
}

// Close stops the shell.
func (c *Client) Close() error {
	return c.shell.Stop()
}

func decodeRecord(raw json.RawMessage) (Record, error) {
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	r.Raw = raw
	return r, nil
}

func addRecordCommand(rec NewRecord) (string, error) {
	if rec.Title == "" {
		return "", shell.NewError("record-add", "record-add", fmt.Errorf("%w: title is required", shell.ErrInvalidCommand), false)
	}
	recordType := rec.Type
	if recordType == "" {
		recordType = "login"
	}

	args := []struct{ name, value string }{
		{"title", rec.Title},
		{"record-type", recordType},
		{"folder", rec.Folder},
		{"notes", rec.Notes},
	}
	fields := []struct{ name, value string }{
		{"login", rec.Login},
		{"password", rec.Password},
		{"url", rec.URL},
	}

	var b strings.Builder
	b.WriteString("record-add")
	for _, a := range args {
		if a.value == "" {
			continue
		}
		if err := checkArg(a.name, a.value); err != nil {
			return "", err
		}
		fmt.Fprintf(&b, " --%s=%s", a.name, quote(a.value))
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if err := checkArg(f.name, f.value); err != nil {
			return "", err
		}
		fmt.Fprintf(&b, " %s", quote(f.name+"="+f.value))
	}
	return b.String(), nil
}

// checkArg rejects values that would split the command across lines.
func checkArg(name, value string) error {
	if value == "" {
		return shell.NewError("build", "", fmt.Errorf("%w: %s is empty", shell.ErrInvalidCommand, name), false)
	}
	if strings.ContainsAny(value, "\r\n") {
		return shell.NewError("build", "", fmt.Errorf("%w: %s contains a line break", shell.ErrInvalidCommand, name), false)
	}
	return nil
}

// quote wraps s in double quotes for the CLI's shell-style tokenizer.
func quote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\"'\\$`") {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
