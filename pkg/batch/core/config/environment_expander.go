package config

import (
	"os"
	"regexp"
)

// EnvironmentExpander replaces ${VAR} placeholders in a configuration document.
type EnvironmentExpander interface {
	Expand(input []byte) ([]byte, error)
}

// OsEnvironmentExpander resolves placeholders from the process environment.
// It understands ${VAR} and ${VAR:-default}; a bare $ is left alone so that
// passwords containing '$' survive.
type OsEnvironmentExpander struct{}

// NewOsEnvironmentExpander returns an OsEnvironmentExpander.
func NewOsEnvironmentExpander() *OsEnvironmentExpander {
	return &OsEnvironmentExpander{}
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// Expand substitutes every placeholder. Unset variables without a default become empty.
func (e *OsEnvironmentExpander) Expand(input []byte) ([]byte, error) {
	return placeholder.ReplaceAllFunc(input, func(m []byte) []byte {
		groups := placeholder.FindSubmatch(m)
		if v, ok := os.LookupEnv(string(groups[1])); ok && v != "" {
			return []byte(v)
		}
		if len(groups[2]) > 0 {
			return groups[3]
		}
		return nil
	}), nil
}
