package am

import (
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/Diomandeee/learnnko-sub000/errors"
)

// EnvPrefix is the prefix for environment overrides (NKO_BUDGET_MAX_DAILY_USD, ...)
const EnvPrefix = "NKO"

// LoadFromFile reads and validates the configuration at configPath.
// An empty path yields defaults plus environment overrides.
func LoadFromFile(configPath string) (*Config, error) {
	v := newViper()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
		}
	}

	cfg, err := LoadWithViper(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", configPath)
	}
	return cfg, nil
}

// LoadWithViper loads configuration using a provided Viper instance.
// It does not validate; callers decide whether a snapshot is usable.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// Defaults returns the validated default configuration
func Defaults() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	if err != nil {
		// defaults are static; a failure here is a programming error
		panic(err)
	}
	return cfg
}

// newViper initializes Viper with defaults and environment binding
func newViper() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	BindSensitiveEnvVars(v)
	SetDefaults(v)

	return v
}

// ResolveConfigPath returns the config file to use: the explicit flag value,
// else $NKO_CONFIG, else ./nkosched.toml when it exists, else "" (defaults).
func ResolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(EnvPrefix + "_CONFIG"); env != "" {
		return env
	}
	for _, candidate := range []string{"nkosched.toml", "nkosched.yaml", "nkosched.yml"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// Settings returns the merged settings (defaults, file, environment) as a
// nested map keyed like the config file. Secrets are masked.
func Settings(configPath string) (map[string]interface{}, error) {
	v := newViper()
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
		}
	}
	settings := v.AllSettings()
	for _, key := range sensitiveKeys {
		if v.GetString(key) != "" {
			setNested(settings, strings.Split(key, "."), "********")
		}
	}
	return settings, nil
}

// sensitiveKeys are masked by Settings
var sensitiveKeys = []string{"orchestrator.api_key", "metrics.redis_url"}

func setNested(m map[string]interface{}, path []string, value interface{}) {
	for _, p := range path[:len(path)-1] {
		next, ok := m[p].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			m[p] = next
		}
		m = next
	}
	m[path[len(path)-1]] = value
}
