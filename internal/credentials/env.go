package credentials

import (
	"fmt"
	"os"
	"strings"
)

// ResolveEnvReference expands "{env:NAME}" and "$env:NAME" (prefix matched
// case-insensitively) to the value of NAME. Any other input is returned as is.
func ResolveEnvReference(input string) (string, error) {
	lower := strings.ToLower(input)

	var name string
	switch {
	case strings.HasPrefix(lower, "{env:") && strings.HasSuffix(lower, "}"):
		name = input[len("{env:") : len(input)-1]
	case strings.HasPrefix(lower, "$env:"):
		name = input[len("$env:"):]
	default:
		return input, nil
	}

	v, ok := os.LookupEnv(name)
	if !ok {
		return "", fmt.Errorf("environment variable %q not found", name)
	}
	return v, nil
}

// IsEnvReference reports whether input uses the env indirection syntax.
func IsEnvReference(input string) bool {
	lower := strings.ToLower(input)
	return (strings.HasPrefix(lower, "{env:") && strings.HasSuffix(lower, "}")) ||
		strings.HasPrefix(lower, "$env:")
}
