// Package config holds helpers shared by configuration loaders.
package config

import (
	"os"
	"regexp"
	"strings"
)

// envVarPattern matches ${VAR} or ${VAR:-default}
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

type envRef struct {
	name       string
	def        string
	hasDefault bool
}

func parseRef(match []string) envRef {
	ref := envRef{name: match[1]}
	if len(match) >= 4 && match[2] != "" {
		ref.hasDefault = true
		ref.def = match[3]
	}
	return ref
}

// ExpandEnv replaces ${VAR} and ${VAR:-default} references in input.
// An unset or empty variable without a default expands to "".
//
//	ExpandEnv("upstream: ${CMS_URL:-http://localhost:8090}")
func ExpandEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(m string) string {
		ref := parseRef(envVarPattern.FindStringSubmatch(m))
		if v, ok := os.LookupEnv(ref.name); ok && v != "" {
			return v
		}
		return ref.def
	})
}

// ExpandEnvBytes is ExpandEnv for file contents read before unmarshaling.
func ExpandEnvBytes(input []byte) []byte {
	return []byte(ExpandEnv(string(input)))
}

// MissingEnvVars lists variables referenced without a default that are unset
// or empty, in order of first appearance.
func MissingEnvVars(input string) []string {
	seen := make(map[string]bool)
	var missing []string
	for _, m := range envVarPattern.FindAllStringSubmatch(input, -1) {
		ref := parseRef(m)
		if seen[ref.name] || ref.hasDefault {
			continue
		}
		seen[ref.name] = true
		if os.Getenv(ref.name) == "" {
			missing = append(missing, ref.name)
		}
	}
	return missing
}

// IsSensitiveName reports whether a variable or field name suggests a secret.
func IsSensitiveName(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range []string{"password", "secret", "key", "token", "auth", "credential", "private"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Mask hides all but the last two characters of a secret for display.
func Mask(secret string) string {
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", len(secret)-2) + secret[len(secret)-2:]
}
