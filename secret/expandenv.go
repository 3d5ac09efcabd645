package secret

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
)

// envVarPattern matches ${VAR}, ${VAR:-default} and bare $VAR.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-[^}]*)?\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// ExpandEnvStrict expands environment variables in s.
//
// Semantics:
//   - `${VAR}` must be set; every missing name is reported in one error
//     wrapping ErrMissingEnv.
//   - `${VAR:-default}` falls back to default when VAR is unset.
//   - bare `$VAR` expands to the empty string when unset.
//   - `$$` emits a literal `$`.
//
// Expanded values are not expanded again.
func ExpandEnvStrict(s string) (string, error) {
	return ExpandWith(s, os.LookupEnv)
}

// ExpandWith is ExpandEnvStrict over an arbitrary lookup function.
func ExpandWith(s string, lookup func(string) (string, bool)) (string, error) {
	if !strings.Contains(s, "$") {
		return s, nil
	}

	var (
		b       strings.Builder
		missing []string
	)
	chunks := strings.Split(s, "$$")
	for i, chunk := range chunks {
		if i > 0 {
			b.WriteByte('$')
		}
		b.WriteString(envVarPattern.ReplaceAllStringFunc(chunk, func(m string) string {
			sub := envVarPattern.FindStringSubmatch(m)
			if sub[3] != "" {
				v, _ := lookup(sub[3])
				return v
			}
			if v, ok := lookup(sub[1]); ok {
				return v
			}
			if sub[2] != "" {
				return strings.TrimPrefix(sub[2], ":-")
			}
			missing = append(missing, sub[1])
			return m
		}))
	}

	if len(missing) > 0 {
		slices.Sort(missing)
		missing = slices.Compact(missing)
		return "", fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(missing, ", "))
	}
	return b.String(), nil
}
