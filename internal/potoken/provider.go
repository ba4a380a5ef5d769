// Package potoken obtains proof-of-origin tokens from an external helper.
//
// The helper is any command that prints a JSON object with the visitor
// data and token on stdout, e.g. the output of youtube-po-token-generator:
//
//	{"visitorData": "Cgt...", "poToken": "MnQ..."}
package potoken

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/iconidentify/vidrelay/internal/config"
	"github.com/iconidentify/vidrelay/internal/domain"
)

const (
	toolName  = "potoken helper"
	waitDelay = 5 * time.Second
)

// Provider runs the token helper on demand.
type Provider struct {
	argv    []string
	timeout time.Duration
	client  string
	logger  *slog.Logger
}

// NewProvider creates a provider. It returns nil when no command is
// configured; a nil *Provider is valid and yields no token.
func NewProvider(cfg config.PoTokenConfig, logger *slog.Logger) *Provider {
	argv := strings.Fields(cfg.Command)
	if len(argv) == 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		argv:    argv,
		timeout: cfg.Timeout,
		client:  cfg.Client,
		logger:  logger,
	}
}

type helperOutput struct {
	VisitorData      string `json:"visitorData"`
	PoToken          string `json:"poToken"`
	VisitorDataSnake string `json:"visitor_data"`
	PoTokenSnake     string `json:"po_token"`
}

// Token runs the helper and parses its output.
func (p *Provider) Token(ctx context.Context) (*domain.PoToken, error) {
	if p == nil {
		return nil, nil
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.argv[0], p.argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Children (ffmpeg, browsers) may keep the pipes open after a kill.
	cmd.WaitDelay = waitDelay

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", toolName, ctxErr)
		}
		toolErr := &domain.ToolError{Tool: toolName, Stderr: stderr.String(), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			toolErr.ExitCode = exitErr.ExitCode()
		}
		return nil, toolErr
	}

	token, err := parse(stdout.Bytes())
	if err != nil {
		return nil, err
	}
	token.Client = p.client

	p.logger.Debug("po token generated", "duration", time.Since(start))
	return token, nil
}

func parse(out []byte) (*domain.PoToken, error) {
	// Helpers may log before the JSON line; decode from the first '{'.
	if i := bytes.IndexByte(out, '{'); i > 0 {
		out = out[i:]
	}

	var raw helperOutput
	if err := json.NewDecoder(bytes.NewReader(out)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: token helper: %v", domain.ErrInvalidOutput, err)
	}

	token := &domain.PoToken{
		VisitorData: firstNonEmpty(raw.VisitorData, raw.VisitorDataSnake),
		Token:       firstNonEmpty(raw.PoToken, raw.PoTokenSnake),
	}
	if token.Token == "" {
		return nil, fmt.Errorf("%w: token helper returned no token", domain.ErrInvalidOutput)
	}
	return token, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
