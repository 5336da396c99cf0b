package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/Agfare/comet-watcher/internal/logging"
)

// CommandConfig configures a CommandScorer.
type CommandConfig struct {
	Argv    []string
	Model   string
	Timeout time.Duration // 0 = no timeout
}

// CommandScorer runs a local program per call. The program reads a Request
// as JSON on stdin and writes a Response as JSON on stdout.
type CommandScorer struct {
	argv    []string
	model   string
	timeout time.Duration
}

// NewCommandScorer validates cfg and returns a command scorer.
func NewCommandScorer(cfg CommandConfig) (*CommandScorer, error) {
	if len(cfg.Argv) == 0 || strings.TrimSpace(cfg.Argv[0]) == "" {
		return nil, errors.New("scorer command is empty")
	}
	argv := make([]string, len(cfg.Argv))
	copy(argv, cfg.Argv)
	return &CommandScorer{argv: argv, model: cfg.Model, timeout: cfg.Timeout}, nil
}

// Name identifies the backend.
func (s *CommandScorer) Name() string { return "command" }

// Score runs the command once with data on stdin.
func (s *CommandScorer) Score(ctx context.Context, data []Triple) (float64, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(Request{Model: s.model, Data: data})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.argv[0], s.argv[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	startTime := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("scorer command %s: %w", s.argv[0], ctx.Err())
		}
		return 0, fmt.Errorf("scorer command %s failed: %w: %s", s.argv[0], err, strings.TrimSpace(stderr.String()))
	}

	var out Response
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &out); err != nil {
		return 0, fmt.Errorf("failed to parse scorer output: %w", err)
	}
	score, err := out.SystemValue()
	if err != nil {
		return 0, err
	}
	logging.ScorerDebug("command scorer finished in %v: %.4f", time.Since(startTime), score)
	return score, nil
}
