// Package patterns provides the embedded detection tables: one pattern
// definition per regex-driven PII category and the bundled first/last name
// lists used by the name matcher.
package patterns

import _ "embed"

//go:embed pii.yaml
var piiYAML []byte

//go:embed names.yaml
var namesYAML []byte

// PIIYAML returns the embedded default pattern definitions.
func PIIYAML() []byte { return piiYAML }

// NamesYAML returns the embedded first/last name lists.
func NamesYAML() []byte { return namesYAML }
