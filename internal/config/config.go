// Package config resolves the runtime configuration of the agent client.
//
// Values come from three layers, highest precedence first:
//
//   - an injected configuration document (YAML or JSON) deployed next to
//     the binary, mirroring the runtime config object of the dashboard
//   - build/deploy environment values (process env and dotenv files)
//   - hardcoded defaults
//
// Resolution never fails: missing or blank values fall through to the next
// layer.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults applied when neither the injected document nor the environment
// provide a value.
const (
	DefaultBaseURL                = "http://localhost:8000"
	DefaultAppVersion             = "0.0.0-LOCAL"
	DefaultRefreshEndpoint        = "/api/auth/refresh"
	DefaultFeatureFlagsEndpoint   = "/api/feature-flags"
	DefaultFrontendHealthEndpoint = "/health-frontend.json"
)

// Environment keys. The injected document uses the same names.
const (
	KeyAPIBase                = "VITE_API_BASE"
	KeyAPIKey                 = "VITE_API_KEY"
	KeyAppVersion             = "APP_VERSION"
	KeyRefreshEndpoint        = "REFRESH_ENDPOINT"
	KeyTelemetryEndpoint      = "TELEMETRY_ENDPOINT"
	KeyFeatureFlagsEndpoint   = "FEATURE_FLAGS_ENDPOINT"
	KeyFrontendHealthEndpoint = "FRONTEND_HEALTH_ENDPOINT"
)

// Runtime is the resolved, immutable client configuration.
type Runtime struct {
	BaseURL                string
	APIKey                 string // empty means no key is sent
	AppVersion             string
	RefreshEndpoint        string
	TelemetryEndpoint      string // empty disables beacon delivery
	FeatureFlagsEndpoint   string
	FrontendHealthEndpoint string
}

// Injected is the externally deployed configuration document.
type Injected struct {
	APIBase                string `yaml:"VITE_API_BASE" json:"VITE_API_BASE"`
	APIKey                 string `yaml:"VITE_API_KEY" json:"VITE_API_KEY"`
	AppVersion             string `yaml:"APP_VERSION" json:"APP_VERSION"`
	RefreshEndpoint        string `yaml:"REFRESH_ENDPOINT" json:"REFRESH_ENDPOINT"`
	TelemetryEndpoint      string `yaml:"TELEMETRY_ENDPOINT" json:"TELEMETRY_ENDPOINT"`
	FeatureFlagsEndpoint   string `yaml:"FEATURE_FLAGS_ENDPOINT" json:"FEATURE_FLAGS_ENDPOINT"`
	FrontendHealthEndpoint string `yaml:"FRONTEND_HEALTH_ENDPOINT" json:"FRONTEND_HEALTH_ENDPOINT"`
}

// Env looks up a build/deploy environment value. An empty result means
// the key is not set.
type Env func(key string) string

// Default returns the configuration with every field at its default.
func Default() Runtime {
	return Resolve(nil, nil)
}

// Resolve merges the injected document, the environment and the defaults.
// Both sources may be nil.
func Resolve(injected *Injected, env Env) Runtime {
	if injected == nil {
		injected = &Injected{}
	}
	if env == nil {
		env = func(string) string { return "" }
	}

	pick := func(injectedValue, key, fallback string) string {
		if v := strings.TrimSpace(injectedValue); v != "" {
			return v
		}
		if v := strings.TrimSpace(env(key)); v != "" {
			return v
		}
		return fallback
	}

	return Runtime{
		BaseURL:                strings.TrimRight(pick(injected.APIBase, KeyAPIBase, DefaultBaseURL), "/"),
		APIKey:                 pick(injected.APIKey, KeyAPIKey, ""),
		AppVersion:             pick(injected.AppVersion, KeyAppVersion, DefaultAppVersion),
		RefreshEndpoint:        pick(injected.RefreshEndpoint, KeyRefreshEndpoint, DefaultRefreshEndpoint),
		TelemetryEndpoint:      pick(injected.TelemetryEndpoint, KeyTelemetryEndpoint, ""),
		FeatureFlagsEndpoint:   pick(injected.FeatureFlagsEndpoint, KeyFeatureFlagsEndpoint, DefaultFeatureFlagsEndpoint),
		FrontendHealthEndpoint: pick(injected.FrontendHealthEndpoint, KeyFrontendHealthEndpoint, DefaultFrontendHealthEndpoint),
	}
}

// LoadInjected reads an injected configuration document. YAML is a
// superset of JSON, so both formats are accepted.
func LoadInjected(path string) (*Injected, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read injected config: %w", err)
	}
	return ParseInjected(data)
}

// ParseInjected decodes an injected configuration document.
func ParseInjected(data []byte) (*Injected, error) {
	var injected Injected
	if err := yaml.Unmarshal(data, &injected); err != nil {
		return nil, fmt.Errorf("parse injected config: %w", err)
	}
	return &injected, nil
}

// EnvFromFiles returns an Env backed by the process environment with the
// given dotenv files as fallback. Files that cannot be read are skipped.
func EnvFromFiles(files ...string) Env {
	merged := map[string]string{}
	for _, file := range files {
		values, err := godotenv.Read(file)
		if err != nil {
			continue
		}
		for k, v := range values {
			// first file wins, like godotenv.Load
			if _, exists := merged[k]; !exists {
				merged[k] = v
			}
		}
	}
	return func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return merged[key]
	}
}

// MapEnv returns an Env backed by a static map.
func MapEnv(values map[string]string) Env {
	return func(key string) string {
		return values[key]
	}
}
