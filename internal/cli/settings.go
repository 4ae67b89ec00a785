package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	applog "github.com/wesleyorama2/dbping/internal/log"
)

// EnvPrefix prefixes the environment variables read as settings,
// e.g. DBPING_LOG_LEVEL or DBPING_METRICS_ADDR.
const EnvPrefix = "DBPING"

// Settings are the application options that are not part of task files.
type Settings struct {
	Log     applog.Conf     `mapstructure:"log"`
	Metrics MetricsSettings `mapstructure:"metrics"`
}

// MetricsSettings configures the Prometheus endpoint.
type MetricsSettings struct {
	Addr string `mapstructure:"addr"`
	Path string `mapstructure:"path"`
}

// flagKeys maps command line flags to setting keys.
var flagKeys = map[string]string{
	"log-level":    "log.level",
	"log-output":   "log.output",
	"log-path":     "log.path",
	"log-format":   "log.format",
	"metrics-addr": "metrics.addr",
}

// setDefaults registers every setting key, which also makes them visible to
// AutomaticEnv during Unmarshal.
func setDefaults(v *viper.Viper) {
	defaults := applog.SetDefaults()
	v.SetDefault("log.output", defaults.Output)
	v.SetDefault("log.path", defaults.Path)
	v.SetDefault("log.filename", defaults.Filename)
	v.SetDefault("log.level", defaults.Level)
	v.SetDefault("log.format", defaults.Format)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.path", "/metrics")
}

// loadEnvFile loads a .env file into the process environment. An explicit
// path must exist; otherwise ./.env is loaded when present.
func loadEnvFile(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("loading env file %s: %w", path, err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return fmt.Errorf("loading .env: %w", err)
		}
	}
	return nil
}

// loadSettings resolves Settings from, in increasing precedence, defaults,
// the settings file, DBPING_* environment variables and flags.
func loadSettings(settingsFile string, flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if settingsFile != "" {
		v.SetConfigFile(settingsFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read settings file %s: %w", settingsFile, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return &settings, nil
}
