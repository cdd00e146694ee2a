package env

import "os"

// Get reads key from the process environment, falling back when the variable
// is unset or empty. Empty counts as unset so a blank override in a compose
// file does not wipe the default.
func Get(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
