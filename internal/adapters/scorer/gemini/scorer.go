// Package gemini scores profile triples by prompting a Gemini model for a
// JSON verdict.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/okian/panelscore/internal/domain/scoring"
)

const (
	defaultModel   = "gemini-2.5-flash"
	defaultTimeout = 3 * time.Second
)

// contentGenerator is the part of the genai client the scorer needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Scorer implements scoring.Scorer on top of Gemini.
type Scorer struct {
	models  contentGenerator
	model   string
	timeout time.Duration
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithModel overrides the model name.
func WithModel(model string) Option {
	return func(s *Scorer) {
		if model = strings.TrimSpace(model); model != "" {
			s.model = model
		}
	}
}

// WithTimeout sets the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(s *Scorer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New creates a scorer backed by the Gemini API.
func New(ctx context.Context, apiKey string, opts ...Option) (*Scorer, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newScorer(client.Models, opts...), nil
}

func newScorer(models contentGenerator, opts ...Option) *Scorer {
	s := &Scorer{models: models, model: defaultModel, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score implements scoring.Scorer.
func (s *Scorer) Score(ctx context.Context, req scoring.Request) (scoring.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	prompt, err := buildPrompt(req)
	if err != nil {
		return scoring.Result{}, fmt.Errorf("%w: build prompt: %w", scoring.ErrScoreUnavailable, err)
	}
	resp, err := s.models.GenerateContent(ctx, s.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(0)),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return scoring.Result{}, fmt.Errorf("%w: generate content: %w", scoring.ErrScoreUnavailable, err)
	}

	res, err := parseResult(responseText(resp))
	if err != nil {
		return scoring.Result{}, fmt.Errorf("%w: %w", scoring.ErrScoreUnavailable, err)
	}
	if req.ExpertData == nil {
		res.ProfileScore = nil
	}
	return res, nil
}

func buildPrompt(req scoring.Request) (string, error) {
	payload, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("You score interview panel fit on a 0 to 100 scale.\n")
	if req.ExpertData != nil {
		b.WriteString("relevancyScore: how well the expert's skills cover the subject's recommended skills.\n")
		b.WriteString("profileScore: how well the expert can assess the applicants' skills.\n")
		b.WriteString(`Answer with JSON only: {"profileScore": <number>, "relevancyScore": <number>}`)
	} else {
		b.WriteString("relevancyScore: how well the candidate's skills match the subject's recommended skills.\n")
		b.WriteString(`Answer with JSON only: {"relevancyScore": <number>}`)
	}
	b.WriteString("\n\nInput:\n")
	b.Write(payload)
	return b.String(), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || strings.TrimSpace(part.Text) == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(strings.TrimSpace(part.Text))
		}
	}
	return strings.TrimSpace(b.String())
}

// parseResult extracts the first JSON object from text, tolerating code
// fences and numbers sent as strings.
func parseResult(text string) (scoring.Result, error) {
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return scoring.Result{}, fmt.Errorf("no JSON object in model output %q", text)
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return scoring.Result{}, fmt.Errorf("decode model output: %w", err)
	}

	var res scoring.Result
	var err error
	if res.ProfileScore, err = number(raw, "profileScore"); err != nil {
		return scoring.Result{}, err
	}
	if res.RelevancyScore, err = number(raw, "relevancyScore"); err != nil {
		return scoring.Result{}, err
	}
	if res.RelevancyScore == nil {
		return scoring.Result{}, errors.New("model output without relevancyScore")
	}
	return res, nil
}

func number(raw map[string]any, key string) (*float64, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch n := v.(type) {
	case float64:
		return &n, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		return &f, nil
	default:
		return nil, fmt.Errorf("%s: unexpected type %T", key, v)
	}
}
