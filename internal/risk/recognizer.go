package risk

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/DawoodTahir/MCP-Chatbot/patterns"
)

// RecognizerFile is the top-level YAML structure for a recognizer config file.
// Mirrors Presidio's recognizer registry YAML format.
type RecognizerFile struct {
	Recognizers []RecognizerConfig `yaml:"recognizers"`
}

// RecognizerConfig is a single named recognizer with one or more regex patterns.
type RecognizerConfig struct {
	Name            string          `yaml:"name" json:"name"`
	SupportedEntity string          `yaml:"supported_entity" json:"supported_entity"`
	Enabled         *bool           `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Patterns        []PatternConfig `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	Severity        int             `yaml:"severity,omitempty" json:"severity,omitempty"`
}

// PatternConfig is a single regex pattern within a recognizer.
type PatternConfig struct {
	Name  string  `yaml:"name" json:"name"`
	Regex string  `yaml:"regex" json:"regex"`
	Score float64 `yaml:"score" json:"score"`
}

func (r *RecognizerConfig) isEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

// Pattern is a compiled, ready-to-use detection pattern.
type Pattern struct {
	Name     string
	Category string
	Pattern  *regexp.Regexp
	Score    float64
	Severity int
}

// ParseRecognizerFile parses recognizer YAML bytes into a RecognizerFile.
func ParseRecognizerFile(data []byte) (*RecognizerFile, error) {
	var rf RecognizerFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing recognizer YAML: %w", err)
	}
	return &rf, nil
}

// CompilePatterns converts recognizer configs into the compiled []Pattern
// slice used by the Classifier at runtime. Disabled recognizers are skipped.
// The entity name is normalized to the lower_snake_case category string used
// in verdicts (e.g. "SELF_HARM" -> "self_harm").
func CompilePatterns(recognizers []RecognizerConfig) ([]Pattern, error) {
	var compiled []Pattern
	for _, rec := range recognizers {
		if !rec.isEnabled() {
			continue
		}
		for _, p := range rec.Patterns {
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, fmt.Errorf("compiling pattern %q in recognizer %q: %w", p.Name, rec.Name, err)
			}
			compiled = append(compiled, Pattern{
				Name:     rec.Name,
				Category: strings.ToLower(rec.SupportedEntity),
				Pattern:  re,
				Score:    p.Score,
				Severity: rec.Severity,
			})
		}
	}
	return compiled, nil
}

// defaultInjectionPatterns compiles the embedded prompt-injection recognizers.
func defaultInjectionPatterns() ([]Pattern, error) {
	rf, err := ParseRecognizerFile(patterns.InjectionYAML())
	if err != nil {
		return nil, fmt.Errorf("parsing embedded injection patterns: %w", err)
	}
	return CompilePatterns(rf.Recognizers)
}

// defaultHarmfulPatterns compiles the embedded harmful-content recognizers.
func defaultHarmfulPatterns() ([]Pattern, error) {
	rf, err := ParseRecognizerFile(patterns.HarmfulYAML())
	if err != nil {
		return nil, fmt.Errorf("parsing embedded harmful patterns: %w", err)
	}
	return CompilePatterns(rf.Recognizers)
}
