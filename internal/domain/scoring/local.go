package scoring

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"

	"github.com/okian/panelscore/internal/domain/model"
)

// Default local scoring configuration constants.
const (
	defaultSkillWeight   = 1.0
	defaultFuzzyDistance = 1
	defaultRandomSeed    = 42
	maxScoreValue        = 100
	// names shorter than this only match exactly
	minFuzzyLength = 4
)

// LocalOption applies a configuration option to the LocalScorer.
type LocalOption func(*LocalScorer)

// WithLatencyRange simulates remote latency drawn from [minLatency, maxLatency).
func WithLatencyRange(minLatency, maxLatency time.Duration) LocalOption {
	return func(s *LocalScorer) {
		if minLatency >= 0 && maxLatency > minLatency {
			s.minLatency = minLatency
			s.maxLatency = maxLatency
		}
	}
}

// WithFuzzyDistance sets the maximum edit distance for two skill names to match.
func WithFuzzyDistance(d int) LocalOption {
	return func(s *LocalScorer) {
		if d >= 0 {
			s.fuzzyDistance = d
		}
	}
}

// WithDefaultSkillWeight sets the weight used for skills without one.
func WithDefaultSkillWeight(w float64) LocalOption {
	return func(s *LocalScorer) {
		if w > 0 {
			s.defaultWeight = w
		}
	}
}

// LocalScorer is an in-process Scorer. Relevancy is the weighted share of a
// subject's recommended skills covered by the scored profile. Profile score is
// the share of the applicants' distinct skills the expert covers.
type LocalScorer struct {
	defaultWeight float64
	fuzzyDistance int
	minLatency    time.Duration
	maxLatency    time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewLocalScorer creates a local scorer with configuration options.
func NewLocalScorer(opts ...LocalOption) *LocalScorer {
	s := &LocalScorer{
		defaultWeight: defaultSkillWeight,
		fuzzyDistance: defaultFuzzyDistance,
		rng:           rand.New(rand.NewSource(defaultRandomSeed)), //nolint:gosec // deterministic seed for reproducible testing
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score implements Scorer.
func (s *LocalScorer) Score(ctx context.Context, req Request) (Result, error) {
	if err := s.wait(ctx); err != nil {
		return Result{}, err
	}

	if req.ExpertData == nil {
		if len(req.CandidateData) == 0 {
			return Result{}, fmt.Errorf("%w: no profile to score", ErrScoreUnavailable)
		}
		rel := s.relevancy(req.CandidateData[0].Skills, req.SubjectData.RecommendedSkills)
		return Result{RelevancyScore: &rel}, nil
	}

	rel := s.relevancy(req.ExpertData.Skills, req.SubjectData.RecommendedSkills)
	prof := s.profile(req.ExpertData.Skills, req.CandidateData)
	return Result{ProfileScore: &prof, RelevancyScore: &rel}, nil
}

func (s *LocalScorer) wait(ctx context.Context) error {
	if s.maxLatency <= 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrScoreUnavailable, err)
		}
		return nil
	}
	s.mu.Lock()
	latency := s.minLatency + time.Duration(s.rng.Int63n(int64(s.maxLatency-s.minLatency)))
	s.mu.Unlock()

	t := time.NewTimer(latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrScoreUnavailable, ctx.Err())
	case <-t.C:
		return nil
	}
}

// relevancy returns the weighted coverage of recommended by have, scaled to 0-100.
func (s *LocalScorer) relevancy(have, recommended []model.Skill) float64 {
	if len(recommended) == 0 {
		return 0
	}
	names := normalizeAll(have)
	var total, hit float64
	for _, r := range recommended {
		w := s.weight(r)
		total += w
		if s.matchAny(normalize(r.Name), names) {
			hit += w
		}
	}
	if total == 0 {
		return 0
	}
	return clamp(hit / total * maxScoreValue)
}

// profile returns the share of the applicants' distinct skills the expert covers.
// No applicants yields zero.
func (s *LocalScorer) profile(expert []model.Skill, candidates []Profile) float64 {
	seen := make(map[string]struct{})
	for _, c := range candidates {
		for _, sk := range c.Skills {
			if n := normalize(sk.Name); n != "" {
				seen[n] = struct{}{}
			}
		}
	}
	if len(seen) == 0 {
		return 0
	}
	names := normalizeAll(expert)
	hit := 0
	for n := range seen {
		if s.matchAny(n, names) {
			hit++
		}
	}
	return clamp(float64(hit) / float64(len(seen)) * maxScoreValue)
}

func (s *LocalScorer) weight(sk model.Skill) float64 {
	if sk.Weight != nil && *sk.Weight > 0 {
		return *sk.Weight
	}
	return s.defaultWeight
}

func (s *LocalScorer) matchAny(name string, names []string) bool {
	if name == "" {
		return false
	}
	for _, n := range names {
		if n == name {
			return true
		}
		if s.fuzzyDistance > 0 && len(n) >= minFuzzyLength && len(name) >= minFuzzyLength &&
			levenshtein.ComputeDistance(n, name) <= s.fuzzyDistance {
			return true
		}
	}
	return false
}

func normalizeAll(skills []model.Skill) []string {
	out := make([]string, 0, len(skills))
	for _, sk := range skills {
		if n := normalize(sk.Name); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// normalize case-folds and collapses whitespace so "Machine  Learning" equals "machine learning".
func normalize(name string) string {
	return cases.Fold().String(strings.Join(strings.Fields(name), " "))
}

func clamp(v float64) float64 {
	return math.Round(math.Max(0, math.Min(maxScoreValue, v))*100) / 100
}
