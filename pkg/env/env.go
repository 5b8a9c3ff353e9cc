// Package env reads gateway settings from the process environment. A .env
// file in the working directory is loaded on import.
package env

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

// ErrUnset is returned when a variable is missing or blank.
var ErrUnset = errors.New("environment variable is not set")

// GetEnvString returns the trimmed value of name, or ErrUnset.
func GetEnvString(name string) (string, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return "", ErrUnset
	}
	return v, nil
}

func GetEnvBool(name string) (bool, error) {
	v, err := GetEnvString(name)
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(v)
}

// GetEnvInt accepts decimal, 0x hex and 0o octal forms.
func GetEnvInt(name string) (int, error) {
	v, err := GetEnvString(name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 0, 0)
	return int(n), err
}

func GetEnvStringOrDefault(name, def string) string {
	if v, err := GetEnvString(name); err == nil {
		return v
	}
	return def
}

func GetEnvBoolOrDefault(name string, def bool) bool {
	if v, err := GetEnvBool(name); err == nil {
		return v
	}
	return def
}

func GetEnvIntOrDefault(name string, def int) int {
	if v, err := GetEnvInt(name); err == nil {
		return v
	}
	return def
}

// GetEnvDurationOrDefault parses values like "90s" or "5m". Unparseable
// values fall back to def.
func GetEnvDurationOrDefault(name string, def time.Duration) time.Duration {
	v, err := GetEnvString(name)
	if err != nil {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
