// Package config holds the settings for the API under test. Settings come
// from a .env-style template file, with process environment variables taking
// precedence, so a pipeline can ship a checked-in template and override the
// token at runtime.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Env var names recognized by Load.
const (
	EnvAPIURL       = "API_URL"
	EnvAPITimeout   = "API_TIMEOUT"
	EnvXChallenger  = "API_X_CHALLENGER"
	EnvLogLevel     = "LOG_LEVEL"
	DefaultTimeout  = 10 * time.Second
	DefaultLogLevel = "DEBUG"
)

// Settings configures the target API: base URL, request timeout, the
// X-Challenger session token, and the log level.
type Settings struct {
	APIURL      string
	Timeout     time.Duration
	XChallenger string
	LogLevel    string
}

// Load reads the env template at path (optional; empty path or a missing
// file is fine), overlays process environment variables, applies defaults
// and validates the result.
func Load(path string) (*Settings, error) {
	vars := map[string]string{}
	if path != "" {
		fileVars, err := ParseEnvFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		for k, v := range fileVars {
			vars[k] = v
		}
	}
	for _, key := range []string{EnvAPIURL, EnvAPITimeout, EnvXChallenger, EnvLogLevel} {
		if v, ok := os.LookupEnv(key); ok {
			vars[key] = v
		}
	}
	return fromVars(vars)
}

func fromVars(vars map[string]string) (*Settings, error) {
	s := &Settings{
		APIURL:      vars[EnvAPIURL],
		Timeout:     DefaultTimeout,
		XChallenger: vars[EnvXChallenger],
		LogLevel:    vars[EnvLogLevel],
	}
	if raw := vars[EnvAPITimeout]; raw != "" {
		secs, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("config: parse %s %q: %w", EnvAPITimeout, raw, err)
		}
		s.Timeout = time.Duration(secs * float64(time.Second))
	}
	if s.LogLevel == "" {
		s.LogLevel = DefaultLogLevel
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks that the settings are usable: a well-formed http(s)
// API URL, a positive timeout, a non-blank token.
func (s *Settings) Validate() error {
	if s.APIURL == "" {
		return fmt.Errorf("config: %s is required", EnvAPIURL)
	}
	u, err := url.Parse(s.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: %s %q is not a valid http(s) URL", EnvAPIURL, s.APIURL)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("config: %s must be positive", EnvAPITimeout)
	}
	if strings.TrimSpace(s.XChallenger) == "" {
		return fmt.Errorf("config: %s cannot be empty", EnvXChallenger)
	}
	return nil
}

// ParseEnvFile reads KEY=VALUE lines from path. Blank lines and lines
// starting with '#' are skipped; values may be single- or double-quoted.
func ParseEnvFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	vars := map[string]string{}
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("config: %s:%d: not a KEY=VALUE line", path, i+1)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		vars[key] = value
	}
	return vars, nil
}
