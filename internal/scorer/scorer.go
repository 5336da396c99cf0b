// Package scorer reaches the external COMET quality-estimation model.
// The model is opaque: it takes (source, hypothesis, reference) triples and
// returns a system score.
package scorer

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/Agfare/comet-watcher/internal/config"
)

// ErrInvalidScore is returned when the model answers without a usable score.
var ErrInvalidScore = errors.New("scorer returned an invalid score")

// Triple is one item sent to the model. Reference is nil when absent.
type Triple struct {
	Source    string  `json:"src"`
	MT        string  `json:"mt"`
	Reference *string `json:"ref"`
}

// Scorer scores triples and returns an aggregate (system) score.
type Scorer interface {
	Score(ctx context.Context, data []Triple) (float64, error)
	Name() string
}

// Request is the wire request shared by all backends.
type Request struct {
	Model string   `json:"model"`
	Data  []Triple `json:"data"`
}

// Response mirrors COMET's prediction output.
type Response struct {
	Scores      []float64 `json:"scores"`
	SystemScore *float64  `json:"system_score"`
	Error       string    `json:"error,omitempty"`
}

// SystemValue returns the system score, falling back to the mean of the
// per-item scores when the backend omits it.
func (r Response) SystemValue() (float64, error) {
	if r.Error != "" {
		return 0, fmt.Errorf("model error: %s", r.Error)
	}
	var score float64
	switch {
	case r.SystemScore != nil:
		score = *r.SystemScore
	case len(r.Scores) > 0:
		for _, s := range r.Scores {
			score += s
		}
		score /= float64(len(r.Scores))
	default:
		return 0, fmt.Errorf("%w: response has neither system_score nor scores", ErrInvalidScore)
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidScore, score)
	}
	return score, nil
}

// Func adapts a plain function to Scorer.
type Func func(ctx context.Context, data []Triple) (float64, error)

// Score calls f.
func (f Func) Score(ctx context.Context, data []Triple) (float64, error) {
	return f(ctx, data)
}

// Name identifies the adapter.
func (f Func) Name() string { return "func" }

// New builds the backend selected by cfg for the given model.
func New(cfg config.ScorerConfig, model string) (Scorer, error) {
	switch cfg.Backend {
	case config.BackendHTTP:
		return NewHTTPScorer(HTTPConfig{
			BaseURL:    cfg.BaseURL,
			Model:      model,
			Timeout:    cfg.GetTimeout(),
			MaxRetries: cfg.MaxRetries,
		}), nil
	case config.BackendCommand:
		return NewCommandScorer(CommandConfig{
			Argv:    cfg.Command,
			Model:   model,
			Timeout: cfg.GetTimeout(),
		})
	default:
		return nil, fmt.Errorf("unknown scorer backend %q", cfg.Backend)
	}
}
