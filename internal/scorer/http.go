package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Agfare/comet-watcher/internal/logging"
)

// HTTPConfig configures an HTTPScorer.
type HTTPConfig struct {
	BaseURL    string
	Model      string
	Timeout    time.Duration // 0 = no timeout
	MaxRetries int
	// Backoff is the first retry delay; it doubles per attempt. Defaults to 1s.
	Backoff time.Duration
}

// HTTPScorer posts triples to a COMET serving endpoint at {BaseURL}/predict.
type HTTPScorer struct {
	baseURL    string
	model      string
	maxRetries int
	backoff    time.Duration
	httpClient *http.Client
}

// NewHTTPScorer creates an HTTP scorer.
func NewHTTPScorer(cfg HTTPConfig) *HTTPScorer {
	if cfg.Timeout < 0 {
		cfg.Timeout = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	return &HTTPScorer{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Name identifies the backend.
func (s *HTTPScorer) Name() string { return "http" }

// Score sends data to the model and returns its system score.
// Rate limits (429) and server errors (5xx) are retried with exponential
// backoff; any other failure is returned immediately.
func (s *HTTPScorer) Score(ctx context.Context, data []Triple) (float64, error) {
	startTime := time.Now()

	payload, err := json.Marshal(Request{Model: s.model, Data: data})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for i := 0; i <= s.maxRetries; i++ {
		if i > 0 {
			delay := s.backoff * time.Duration(1<<uint(i-1))
			logging.Get(logging.CategoryScorer).
				With("url", s.baseURL+"/predict", "attempt", i+1).
				Warn("retrying in %v: %v", delay, lastErr)
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(delay):
			}
		}

		score, retry, err := s.do(ctx, payload)
		if err == nil {
			logging.ScorerDebug("scored %d item(s) in %v: %.4f", len(data), time.Since(startTime), score)
			return score, nil
		}
		if !retry {
			return 0, err
		}
		lastErr = err
	}

	return 0, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// do performs one request. retry reports whether the failure is transient.
func (s *HTTPScorer) do(ctx context.Context, payload []byte) (score float64, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/predict", bytes.NewReader(payload))
	if err != nil {
		return 0, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, false, ctx.Err()
		}
		return 0, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, true, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return 0, true, fmt.Errorf("scorer returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if resp.StatusCode != http.StatusOK {
		return 0, false, fmt.Errorf("scorer request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, false, fmt.Errorf("failed to parse response: %w", err)
	}
	score, err = out.SystemValue()
	return score, false, err
}
