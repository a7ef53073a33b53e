// Package scorer builds the configured scoring.Scorer and paces remote ones.
package scorer

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/panelscore/internal/adapters/scorer/gemini"
	"github.com/okian/panelscore/internal/adapters/scorer/httpscorer"
	"github.com/okian/panelscore/internal/config"
	"github.com/okian/panelscore/internal/domain/scoring"
)

// New returns the scorer selected by cfg.Mode. Remote scorers are wrapped in
// a token bucket when RatePerSec is positive.
func New(ctx context.Context, cfg config.Scorer) (scoring.Scorer, error) {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond

	var s scoring.Scorer
	switch cfg.Mode {
	case config.ScorerLocal, "":
		return scoring.NewLocalScorer(
			scoring.WithLatencyRange(
				time.Duration(cfg.LatencyMinMS)*time.Millisecond,
				time.Duration(cfg.LatencyMaxMS)*time.Millisecond),
			scoring.WithFuzzyDistance(cfg.FuzzyDistance),
			scoring.WithDefaultSkillWeight(cfg.DefaultSkillWeight),
		), nil
	case config.ScorerHTTP:
		s = httpscorer.New(cfg.URL, httpscorer.WithTimeout(timeout))
	case config.ScorerGemini:
		g, err := gemini.New(ctx, cfg.GeminiAPIKey, gemini.WithModel(cfg.GeminiModel), gemini.WithTimeout(timeout))
		if err != nil {
			return nil, err
		}
		s = g
	default:
		return nil, fmt.Errorf("unknown scorer mode %q", cfg.Mode)
	}

	if cfg.RatePerSec > 0 {
		s = RateLimited(s, rate.Limit(cfg.RatePerSec), max(cfg.Burst, 1), timeout)
	}
	return s, nil
}

// rateLimited waits for a token before each call.
type rateLimited struct {
	next    scoring.Scorer
	limiter *rate.Limiter
	timeout time.Duration
}

// RateLimited paces calls to next with a token bucket of limit per second.
// A positive timeout bounds how long a call may wait for its token.
func RateLimited(next scoring.Scorer, limit rate.Limit, burst int, timeout time.Duration) scoring.Scorer {
	return &rateLimited{next: next, limiter: rate.NewLimiter(limit, burst), timeout: timeout}
}

// Score waits for a token, then delegates. A wait cut short by ctx or by the
// timeout counts as an unavailable score.
func (r *rateLimited) Score(ctx context.Context, req scoring.Request) (scoring.Result, error) {
	if err := r.wait(ctx); err != nil {
		return scoring.Result{}, fmt.Errorf("%w: rate limit: %w", scoring.ErrScoreUnavailable, err)
	}
	return r.next.Score(ctx, req)
}

func (r *rateLimited) wait(ctx context.Context) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.limiter.Wait(ctx)
}
