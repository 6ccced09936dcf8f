package agentclient

import (
	"github.com/Joylan9/agentclient/internal/config"
)

// RuntimeConfig is the resolved client configuration.
type RuntimeConfig = config.Runtime

// InjectedConfig is the externally deployed configuration document.
type InjectedConfig = config.Injected

// ResolveConfig merges an injected document, an environment lookup and
// the defaults. Both sources may be nil; it never fails.
func ResolveConfig(injected *InjectedConfig, env func(key string) string) RuntimeConfig {
	return config.Resolve(injected, env)
}

// LoadConfig resolves the configuration from an optional injected
// document on disk and optional dotenv files layered under the process
// environment. An unreadable document is ignored and reported through
// the returned error, while the configuration is still usable.
func LoadConfig(injectedPath string, envFiles ...string) (RuntimeConfig, error) {
	var (
		injected *config.Injected
		loadErr  error
	)
	if injectedPath != "" {
		injected, loadErr = config.LoadInjected(injectedPath)
	}
	return config.Resolve(injected, config.EnvFromFiles(envFiles...)), loadErr
}
