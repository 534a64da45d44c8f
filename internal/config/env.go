package config

import (
	"fmt"
	"os"
	"strings"
)

// RequireEnv reads the named environment variable and fails hard if it is
// unset or empty. Used for secrets that the gateway cannot run without
// (bot tokens, signing secrets).
func RequireEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("environment variable %s is not set", name)
	}
	return value, nil
}

// ResolveEnv reads the named environment variable, returning "" (no error)
// when it is unset or empty. Used for optional secrets.
func ResolveEnv(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}
