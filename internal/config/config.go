// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - New() returns a Config populated with defaults.
//   - Load layers a YAML file and environment variables on top of the defaults.
//   - Nested sections use koanf dotted keys (store.uri, scorer.mode).
package config

import (
	"runtime"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"
)

// Scorer modes.
const (
	ScorerLocal  = "local"
	ScorerHTTP   = "http"
	ScorerGemini = "gemini"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format" validate:"omitempty,oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required"`

	// QueueSize bounds the in-memory recompute job queue.
	QueueSize int `koanf:"queue_size" validate:"gt=0"`

	// WorkerCount sets the number of recompute workers.
	WorkerCount int `koanf:"worker_count" validate:"gt=0"`

	// DedupeSize caps how many pending job keys are tracked for coalescing.
	DedupeSize int `koanf:"dedupe_size" validate:"gte=0"`

	// JobTimeoutMS bounds a single recompute job.
	JobTimeoutMS int `koanf:"job_timeout_ms" validate:"gt=0"`

	// FanoutConcurrency bounds concurrent scorer calls within one fan-out.
	FanoutConcurrency int `koanf:"fanout_concurrency" validate:"gt=0"`

	// ConflictRetries is how many times a subject patch is re-applied after a version conflict.
	ConflictRetries int `koanf:"conflict_retries" validate:"gte=0"`

	// MaxPanelLimit caps GET /subjects/{id}/experts?limit.
	MaxPanelLimit int `koanf:"max_panel_limit" validate:"gt=0"`

	Store  Store  `koanf:"store"`
	Scorer Scorer `koanf:"scorer"`
}

// Store selects and configures the entity store.
type Store struct {
	Driver   string `koanf:"driver" validate:"oneof=memory mongo"`
	URI      string `koanf:"uri" validate:"required_if=Driver mongo"`
	Database string `koanf:"database" validate:"required_if=Driver mongo"`
}

// Scorer selects and configures the external scorer.
type Scorer struct {
	Mode      string `koanf:"mode" validate:"oneof=local http gemini"`
	URL       string `koanf:"url" validate:"required_if=Mode http,omitempty,url"`
	TimeoutMS int    `koanf:"timeout_ms" validate:"gt=0"`

	// RatePerSec and Burst pace remote scorer calls. Zero disables pacing.
	RatePerSec float64 `koanf:"rate_per_sec" validate:"gte=0"`
	Burst      int     `koanf:"burst" validate:"gte=0"`

	GeminiAPIKey string `koanf:"gemini_api_key" validate:"required_if=Mode gemini"`
	GeminiModel  string `koanf:"gemini_model"`

	// LatencyMinMS and LatencyMaxMS simulate remote latency in local mode.
	LatencyMinMS int `koanf:"latency_min_ms" validate:"gte=0"`
	LatencyMaxMS int `koanf:"latency_max_ms" validate:"gtefield=LatencyMinMS"`

	// FuzzyDistance is the maximum edit distance for two skill names to match in local mode.
	FuzzyDistance int `koanf:"fuzzy_distance" validate:"gte=0"`

	// DefaultSkillWeight is used for skills without an explicit weight.
	DefaultSkillWeight float64 `koanf:"default_skill_weight" validate:"gt=0"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		QueueSize:         10_000,
		WorkerCount:       runtime.NumCPU() * 2,
		DedupeSize:        50_000,
		JobTimeoutMS:      60_000,
		FanoutConcurrency: 8,
		ConflictRetries:   3,
		MaxPanelLimit:     100,
		Store: Store{
			Driver:   StoreMemory,
			Database: "panelscore",
		},
		Scorer: Scorer{
			Mode:               ScorerLocal,
			TimeoutMS:          3_000,
			RatePerSec:         20,
			Burst:              5,
			GeminiModel:        "gemini-2.5-flash",
			LatencyMinMS:       0,
			LatencyMaxMS:       0,
			FuzzyDistance:      1,
			DefaultSkillWeight: 1.0,
		},
	}
}
