// Package schema validates generator descriptor configuration.
//
// Generators contribute custom validation tags and struct-level rules to a
// Registry during startup. Build freezes the registry into a single
// Validator that the tree builder uses for every descriptor.
package schema

import (
	"fmt"
	"strings"
)

// ValidationError describes one invalid configuration field. Field is the
// descriptor ID followed by the config key, e.g. "app/api.module".
type ValidationError struct {
	Field      string
	Message    string
	Suggestion string
}

func (e *ValidationError) Error() string {
	if e.Suggestion == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Field, e.Message, e.Suggestion)
}

// ValidationErrors aggregates every problem found in one pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return "invalid configuration"
	case 1:
		return "invalid configuration: " + e[0].Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "invalid configuration (%d problems):", len(e))
	for _, err := range e {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

// Fields returns the field path of every error in order.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, len(e))
	for i, err := range e {
		fields[i] = err.Field
	}
	return fields
}
