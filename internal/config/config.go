package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jrsteele09/go-school-session/internal/utils"
)

type Config interface {
	EnvConfig
	CorsConfig
	SessionConfig
	StoreConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetAPIBaseURL() string
	GetLogLevel() string
	GetLogFormat() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Session
	Store
}

// New returns a Config backed by environment variables only.
func New() Config {
	return newMainConfig(&source{})
}

// Load returns a Config backed by environment variables, falling back to the
// values of the YAML file at path. A missing file is not an error; the
// environment and built-in defaults still apply.
func Load(path string) (Config, error) {
	src := &source{}
	if path == "" {
		return newMainConfig(src), nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return newMainConfig(src), nil
	}
	if err != nil {
		return nil, fmt.Errorf("[config Load] read %s: %w", path, err)
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("[config Load] parse %s: %w", path, err)
	}

	src.values = make(map[string]string, len(raw))
	for k, v := range raw {
		switch value := v.(type) {
		case nil:
			continue
		case []any:
			src.values[strings.ToUpper(k)] = strings.Join(utils.ToStringSlice(value), ",")
		default:
			src.values[strings.ToUpper(k)] = fmt.Sprint(value)
		}
	}
	return newMainConfig(src), nil
}

func newMainConfig(src *source) Config {
	return mainConfig{
		EnvVars: EnvVars{src: src},
		Cors:    Cors{src: src},
		Session: Session{src: src},
		Store:   Store{src: src},
	}
}
