package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/wesleyorama2/ws/internal/logging"
	"github.com/wesleyorama2/ws/ws"
)

// DefaultEnvPrefix is the prefix of environment variables read by Load.
const DefaultEnvPrefix = "WS_"

// Config is the complete configuration of the command line tool.
type Config struct {
	// LogLevel is a zap level name (debug, info, warn, error)
	LogLevel string `conf:"log_level"`

	// LogFormat is either "production" (JSON) or "development" (console)
	LogFormat string `conf:"log_format"`

	// Headers are sent with every request unless the request sets them
	Headers map[string]string `conf:"headers"`

	// Client configures the HTTP client and its connection pool
	Client ws.Config `conf:"client"`
}

// LoadOptions select the sources Load reads.
type LoadOptions struct {
	// FileName is an optional .json or .env file
	FileName string

	// Flags are the parsed command line flags; only changed flags are used
	Flags *pflag.FlagSet

	// FlagMap maps flag names to config keys. Unmapped flags use their
	// name with dashes replaced by underscores.
	FlagMap map[string]string

	// EnvPrefix defaults to DefaultEnvPrefix
	EnvPrefix string

	// Log defaults to a no-op logger
	Log *zap.Logger
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: logging.FormatProduction,
		Client:    ws.DefaultConfig(),
	}
}

func defaultMap() map[string]any {
	d := Defaults()
	return map[string]any{
		"log_level":                       d.LogLevel,
		"log_format":                      d.LogFormat,
		"client.timeout":                  d.Client.Timeout,
		"client.connect_timeout":          d.Client.ConnectTimeout,
		"client.max_connections":          d.Client.MaxConnections,
		"client.max_connections_per_host": d.Client.MaxConnectionsPerHost,
		"client.idle_timeout":             d.Client.IdleTimeout,
		"client.user_agent":               d.Client.UserAgent,
		"client.follow_redirects":         d.Client.FollowRedirects,
		"client.max_redirects":            d.Client.MaxRedirects,
	}
}

// Load merges defaults, file, environment and flags, in that order, and
// validates the result.
func Load(opt LoadOptions) (Config, error) {
	log := opt.Log
	if log == nil {
		log = zap.NewNop()
	}

	prefix := opt.EnvPrefix
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}

	var config Config
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultMap(), "."), nil); err != nil {
		return config, fmt.Errorf("error loading defaults: %w", err)
	}

	if opt.FileName != "" {
		if err := loadFile(k, opt.FileName, prefix); err != nil {
			log.Error("error parsing file",
				zap.Error(err),
				zap.String("file", opt.FileName),
			)
			return config, fmt.Errorf("error loading config file %s: %w", opt.FileName, err)
		}
	}

	transformPrefixedEnv := func(s string) string {
		return transformEnv(s, prefix)
	}
	if err := k.Load(env.Provider(prefix, ".", transformPrefixedEnv), nil); err != nil {
		log.Error("error parsing env vars", zap.Error(err))
		return config, err
	}

	if opt.Flags != nil {
		if err := k.Load(flagProvider(opt.Flags, opt.FlagMap), nil); err != nil {
			log.Error("error parsing cli flags", zap.Error(err))
			return config, err
		}
	}

	if err := k.UnmarshalWithConf("", &config, koanf.UnmarshalConf{Tag: "conf"}); err != nil {
		log.Error("error unmarshalling config", zap.Error(err))
		return config, err
	}

	if errs := Validate(&config); len(errs) > 0 {
		joined := make([]error, len(errs))
		for i, e := range errs {
			joined[i] = e
		}
		return config, errors.Join(joined...)
	}

	return config, nil
}

func loadFile(k *koanf.Koanf, name, prefix string) error {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return k.Load(file.Provider(name), json.Parser())
	case ".env":
		// dotenv keys may be written like env vars (WS_CLIENT__TIMEOUT)
		// or like config keys (client.timeout)
		b, err := file.Provider(name).ReadBytes()
		if err != nil {
			return err
		}
		mp, err := dotenv.Parser().Unmarshal(b)
		if err != nil {
			return err
		}
		flat := make(map[string]any, len(mp))
		for key, value := range mp {
			flat[transformEnv(key, prefix)] = value
		}
		return k.Load(confmap.Provider(flat, "."), nil)
	}
	return fmt.Errorf("unsupported config file type: %s", name)
}

// flagProvider exposes the flags changed on the command line. Keys come
// from flagMap, or from the flag name with dashes replaced by underscores.
func flagProvider(fs *pflag.FlagSet, flagMap map[string]string) *posflag.Posflag {
	return posflag.ProviderWithFlag(fs, ".", nil, func(f *pflag.Flag) (string, interface{}) {
		if !f.Changed {
			return "", nil
		}
		key, ok := flagMap[f.Name]
		if !ok {
			key = strings.ReplaceAll(strings.ToLower(f.Name), "-", "_")
		}
		return key, posflag.FlagVal(fs, f)
	})
}

func transformEnv(s, prefix string) string {
	s = strings.TrimPrefix(s, prefix)
	// allow specifying nested env vars w/ __
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}
