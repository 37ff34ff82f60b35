// Package risk implements the symmetric input/output safety gate.
//
// Two independent detectors run on every classification: a deterministic
// regex heuristic for prompt-injection and instruction-override attempts,
// and a harmful-content detector built from category recognizers with an
// optional external moderation backend. Either detector tripping blocks
// the text. Classification is side-effect-free beyond logging, so the same
// Classifier instance safely gates both the raw user message and the
// generated answer.
package risk

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	botel "github.com/DawoodTahir/MCP-Chatbot/internal/otel"
)

var tracer = botel.Tracer("github.com/DawoodTahir/MCP-Chatbot/internal/risk")

// Verdict is the result of classifying one piece of text.
// Invariant: Allowed == !(HeuristicFlag || HarmfulFlag). Verdicts are
// constructed only by verdict() and never mutated after creation.
type Verdict struct {
	Allowed       bool     `json:"allowed"`
	HeuristicFlag bool     `json:"heuristic_flag"`
	HarmfulFlag   bool     `json:"harmful_flag"`
	Categories    []string `json:"categories"`
}

// HarmfulBackend is an optional external harmful-content detector (e.g. a
// moderation API). It augments the built-in category recognizers: a backend
// error degrades to pattern-only detection (fail-open), logged at warn.
type HarmfulBackend interface {
	// Moderate returns the harmful categories detected in text, empty when clean.
	Moderate(ctx context.Context, text string) ([]string, error)
}

// Classifier combines the heuristic and harmful-content detectors.
// Stateless after construction; safe for concurrent use.
type Classifier struct {
	injection []Pattern
	harmful   []Pattern
	backend   HarmfulBackend
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithHarmfulBackend attaches an external moderation backend. The embedded
// category recognizers still run as the deterministic floor.
func WithHarmfulBackend(b HarmfulBackend) Option {
	return func(c *Classifier) { c.backend = b }
}

// NewClassifier creates a risk classifier from the embedded recognizer sets.
func NewClassifier(opts ...Option) (*Classifier, error) {
	injection, err := defaultInjectionPatterns()
	if err != nil {
		return nil, fmt.Errorf("loading injection recognizers: %w", err)
	}
	harmful, err := defaultHarmfulPatterns()
	if err != nil {
		return nil, fmt.Errorf("loading harmful recognizers: %w", err)
	}
	c := &Classifier{injection: injection, harmful: harmful}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// MustNewClassifier is like NewClassifier but panics on error. The embedded
// defaults are expected to always compile.
func MustNewClassifier(opts ...Option) *Classifier {
	c, err := NewClassifier(opts...)
	if err != nil {
		panic(fmt.Sprintf("risk.NewClassifier: %v", err))
	}
	return c
}

// Classify runs both detectors on text and returns a fresh Verdict.
func (c *Classifier) Classify(ctx context.Context, text string) *Verdict {
	ctx, span := tracer.Start(ctx, "risk.classify")
	defer span.End()

	categories := make(map[string]bool)

	heuristic := matchAny(c.injection, text, categories)
	harmful := matchAny(c.harmful, text, categories)

	if c.backend != nil {
		backendCats, err := c.backend.Moderate(ctx, text)
		if err != nil {
			// Fail-open: the deterministic recognizers above remain the floor.
			log.Warn().Err(err).Msg("moderation_backend_unavailable")
		} else if len(backendCats) > 0 {
			harmful = true
			for _, cat := range backendCats {
				categories[cat] = true
			}
		}
	}

	v := verdict(heuristic, harmful, categories)

	span.SetAttributes(
		attribute.Bool("risk.allowed", v.Allowed),
		attribute.Bool("risk.heuristic_flag", v.HeuristicFlag),
		attribute.Bool("risk.harmful_flag", v.HarmfulFlag),
		attribute.StringSlice("risk.categories", v.Categories),
	)
	return v
}

// verdict is the single construction point for Verdict values, keeping the
// allowed/flag invariant in one place. Any category blocks.
func verdict(heuristic, harmful bool, categories map[string]bool) *Verdict {
	cats := make([]string, 0, len(categories))
	for cat := range categories {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	return &Verdict{
		Allowed:       !(heuristic || harmful),
		HeuristicFlag: heuristic,
		HarmfulFlag:   harmful,
		Categories:    cats,
	}
}

func matchAny(patterns []Pattern, text string, categories map[string]bool) bool {
	tripped := false
	for _, p := range patterns {
		if p.Pattern.MatchString(text) {
			categories[p.Category] = true
			tripped = true
		}
	}
	return tripped
}
