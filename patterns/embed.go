// Package patterns provides embedded default recognizer definitions for the
// risk classifier. YAML files in this directory use a Presidio-compatible
// recognizer format with a severity extension.
package patterns

import _ "embed"

//go:embed injection.yaml
var injectionYAML []byte

//go:embed harmful.yaml
var harmfulYAML []byte

// InjectionYAML returns the embedded prompt-injection recognizer definitions.
func InjectionYAML() []byte { return injectionYAML }

// HarmfulYAML returns the embedded harmful-content recognizer definitions.
func HarmfulYAML() []byte { return harmfulYAML }
