package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"taostats/internal/chain"
)

// DefaultRPCURL is the taostats archive endpoint; {API_KEY} is substituted.
const DefaultRPCURL = "wss://api.taostats.io/api/v1/rpc/ws/finney_archive?authorization={API_KEY}"

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL         string
	APIKey         string
	BaseURL        string
	Seed           string
	PrivateKey     string
	ProxySeed      string
	KeyScheme      string
	Timeout        time.Duration
	Retries        int
	LogLevel       string
	BlockCacheSize int
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	Journal        string
	PGDSN          string
	MetricsAddr    string
	// Calls overrides pallet call indexes, keyed "Module.call" with "pallet:call" values.
	Calls map[string]string
}

// envAliases are the SDK's unprefixed environment variables.
var envAliases = map[string]string{
	"seed":        "TAO_ACCOUNT_SEED",
	"private-key": "TAO_ACCOUNT_PRIVATE_KEY",
	"rpc-url":     "RPC_URL",
	"api-key":     "TAOSTATS_API_KEY",
	"proxy-seed":  "TAO_TRANSFER_PROXY_SEED",
}

// Load merges a .env file, config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("TAOSTATS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, env := range envAliases {
		if err := v.BindEnv(key, "TAOSTATS_"+strings.ToUpper(strings.ReplaceAll(key, "-", "_")), env); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	v.SetDefault("base-url", "https://api.taostats.io")
	v.SetDefault("key-scheme", "sr25519")
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("retries", 3)
	v.SetDefault("log-level", "info")
	v.SetDefault("block-cache-size", chain.DefaultBlockViewCapacity)
	v.SetDefault("confirm-timeout", 2*time.Minute)
	v.SetDefault("poll-interval", 2*time.Second)
	v.SetDefault("journal", "./data/outcomes.jsonl")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("taostats")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:         v.GetString("rpc-url"),
		APIKey:         v.GetString("api-key"),
		BaseURL:        v.GetString("base-url"),
		Seed:           v.GetString("seed"),
		PrivateKey:     v.GetString("private-key"),
		ProxySeed:      v.GetString("proxy-seed"),
		KeyScheme:      v.GetString("key-scheme"),
		Timeout:        v.GetDuration("timeout"),
		Retries:        v.GetInt("retries"),
		LogLevel:       v.GetString("log-level"),
		BlockCacheSize: v.GetInt("block-cache-size"),
		ConfirmTimeout: v.GetDuration("confirm-timeout"),
		PollInterval:   v.GetDuration("poll-interval"),
		Journal:        v.GetString("journal"),
		PGDSN:          v.GetString("pg-dsn"),
		MetricsAddr:    v.GetString("metrics-addr"),
	}

	calls, err := parseCalls(getStringSlice(v, "calls"))
	if err != nil {
		return Config{}, err
	}
	cfg.Calls = calls

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations with nothing to talk to.
func (c Config) Validate() error {
	if c.RPCURL == "" && c.APIKey == "" {
		return fmt.Errorf("either rpc-url or api-key is required")
	}
	if c.Seed != "" && c.PrivateKey != "" {
		return fmt.Errorf("seed and private-key are mutually exclusive")
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must be >= 0")
	}
	return nil
}

// ChainURL is the RPC endpoint, falling back to the taostats archive node.
func (c Config) ChainURL() string {
	if c.RPCURL != "" {
		return c.RPCURL
	}
	return strings.ReplaceAll(DefaultRPCURL, "{API_KEY}", c.APIKey)
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// parseCalls reads "Module.call=pallet:call" entries.
func parseCalls(entries []string) (map[string]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(entries))
	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("calls entry %q: want Module.call=pallet:call", entry)
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return out, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
