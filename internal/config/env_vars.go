package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	portEnvVar      = "PORT"
	appNameVar      = "APP_NAME"
	envVar          = "ENV"
	apiBaseURLVar   = "API_BASE_URL"
	logLevelEnvVar  = "LOG_LEVEL"
	logFormatEnvVar = "LOG_FORMAT"
)

// source resolves a setting from the environment first and then from the
// values loaded from a config file.
type source struct {
	values map[string]string
}

func (s *source) get(name, defaultValue string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	if s != nil {
		if value, ok := s.values[name]; ok && value != "" {
			return value
		}
	}
	return defaultValue
}

func (s *source) duration(name string, defaultValue time.Duration) time.Duration {
	d, err := parseDuration(s.get(name, ""))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func (s *source) int(name string, defaultValue int) int {
	n, err := strconv.Atoi(s.get(name, ""))
	if err != nil {
		return defaultValue
	}
	return n
}

// parseDuration accepts either a Go duration ("90s", "1h") or a bare number
// of seconds ("3600"), the form the backend uses for ACCESS_TOKEN_TTL.
func parseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	return time.ParseDuration(value)
}

type EnvVars struct {
	src *source
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.src.get(portEnvVar, "8000")
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.src.get(appNameVar, "School API")
}

func (e EnvVars) GetEnv() string {
	return e.src.get(envVar, "DEV")
}

// GetAPIBaseURL returns the backend base URL without a trailing slash.
// An empty value means same-origin requests.
func (e EnvVars) GetAPIBaseURL() string {
	return strings.TrimRight(e.src.get(apiBaseURLVar, "http://localhost:8000"), "/")
}

func (e EnvVars) GetLogLevel() string {
	return e.src.get(logLevelEnvVar, "info")
}

// GetLogFormat is "console" for human readable output or "json".
func (e EnvVars) GetLogFormat() string {
	return e.src.get(logFormatEnvVar, "console")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
