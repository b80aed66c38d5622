// Package environment reads configuration overrides from environment
// variables.
//
// Variables are looked up under a fixed prefix (for Kioku, "KIOKU_"), so
// callers name the setting ("DATA_DIR") and the prefix is applied once.
// Unparseable values fall back to the supplied default rather than failing:
// the file-based configuration stays authoritative.
package environment

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Env resolves settings under a common variable prefix.
type Env struct {
	prefix string
}

// New returns an Env that prepends prefix to every lookup.
func New(prefix string) Env {
	return Env{prefix: prefix}
}

// Name returns the full variable name for setting.
func (e Env) Name(setting string) string {
	return e.prefix + setting
}

// Lookup returns the raw value and whether the variable was set and
// non-empty.
func (e Env) Lookup(setting string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(e.Name(setting)))
	return v, v != ""
}

// StringOr returns the variable value, or def when unset or empty.
func (e Env) StringOr(setting, def string) string {
	if v, ok := e.Lookup(setting); ok {
		return v
	}
	return def
}

// IntOr parses the variable as a decimal integer.
func (e Env) IntOr(setting string, def int) int {
	v, ok := e.Lookup(setting)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// BoolOr parses the variable with strconv.ParseBool.
func (e Env) BoolOr(setting string, def bool) bool {
	v, ok := e.Lookup(setting)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// DurationOr parses the variable as a time.Duration ("90s", "1h").
func (e Env) DurationOr(setting string, def time.Duration) time.Duration {
	v, ok := e.Lookup(setting)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
