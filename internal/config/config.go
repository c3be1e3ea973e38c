package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"

	infuraWSFormat = "wss://mainnet.infura.io/ws/v3/%s"
	dotEnvFile     = ".env"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL            string
	Addresses         []string
	Store             string
	DBPath            string
	PGDSN             string
	FromBlock         uint64
	PollInterval      time.Duration
	MaxWindow         uint64
	Confirmations     uint64
	RetryBackoff      time.Duration
	MaxBackoff        time.Duration
	RateLimitBackoff  time.Duration
	DecodeWorkers     int
	Checkpoint        string
	CheckpointEnabled bool
	ErrorsOut         string
	MetricsAddr       string
	LogLevel          string
}

// Load merges config file, environment variables, and flags into Config.
// Env vars use the SWAPMON_ prefix; POOL_ADDRESS, DB_PATH and INFURA_KEY are
// read as fallbacks. A ./.env file, when present, fills unset env vars.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	if err := loadDotEnv(dotEnvFile); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("SWAPMON")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("address", "SWAPMON_ADDRESS", "POOL_ADDRESS"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}
	if err := v.BindEnv("db-path", "SWAPMON_DB_PATH", "DB_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}
	if err := v.BindEnv("infura-key", "SWAPMON_INFURA_KEY", "INFURA_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	v.SetDefault("store", StoreSQLite)
	v.SetDefault("db-path", "./data/swaps.db")
	v.SetDefault("poll-interval", 12*time.Second)
	v.SetDefault("max-window", uint64(2000))
	v.SetDefault("confirmations", uint64(0))
	v.SetDefault("retry-backoff", time.Second)
	v.SetDefault("max-backoff", 2*time.Minute)
	v.SetDefault("rate-limit-backoff", 5*time.Second)
	v.SetDefault("decode-workers", 1)
	v.SetDefault("checkpoint", "./data/checkpoint.json")
	v.SetDefault("checkpoint-enabled", true)
	v.SetDefault("log-level", "info")

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
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	rpcURL := strings.TrimSpace(v.GetString("rpc"))
	if rpcURL == "" {
		if key := strings.TrimSpace(v.GetString("infura-key")); key != "" {
			rpcURL = fmt.Sprintf(infuraWSFormat, key)
		}
	}

	cfg := Config{
		RPCURL:            rpcURL,
		Addresses:         getStringSlice(v, "address"),
		Store:             strings.ToLower(strings.TrimSpace(v.GetString("store"))),
		DBPath:            v.GetString("db-path"),
		PGDSN:             v.GetString("pg-dsn"),
		FromBlock:         v.GetUint64("from"),
		PollInterval:      v.GetDuration("poll-interval"),
		MaxWindow:         v.GetUint64("max-window"),
		Confirmations:     v.GetUint64("confirmations"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		MaxBackoff:        v.GetDuration("max-backoff"),
		RateLimitBackoff:  v.GetDuration("rate-limit-backoff"),
		DecodeWorkers:     v.GetInt("decode-workers"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		ErrorsOut:         v.GetString("errors-out"),
		MetricsAddr:       v.GetString("metrics-addr"),
		LogLevel:          v.GetString("log-level"),
	}

	return cfg, nil
}

// loadDotEnv exports the variables of an optional dotenv file. Variables
// already present in the environment win.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}

	env := viper.New()
	env.SetConfigFile(path)
	env.SetConfigType("env")
	if err := env.ReadInConfig(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	for _, key := range env.AllKeys() {
		name := strings.ToUpper(key)
		if _, ok := os.LookupEnv(name); ok {
			continue
		}
		if err := os.Setenv(name, env.GetString(key)); err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
	}
	return nil
}

// Validate reports the first setting that would prevent the monitor from
// starting.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required (set --rpc, SWAPMON_RPC or INFURA_KEY)")
	}
	addresses, err := c.PoolAddresses()
	if err != nil {
		return err
	}
	if len(addresses) == 0 {
		return fmt.Errorf("address is required (set --address, SWAPMON_ADDRESS or POOL_ADDRESS)")
	}

	if err := c.ValidateStore(); err != nil {
		return err
	}

	if c.MaxWindow == 0 {
		return fmt.Errorf("max-window must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll-interval must be positive")
	}
	if c.RetryBackoff <= 0 || c.RateLimitBackoff <= 0 || c.MaxBackoff <= 0 {
		return fmt.Errorf("backoff durations must be positive")
	}
	if c.DecodeWorkers < 1 {
		return fmt.Errorf("decode-workers must be at least 1")
	}
	return nil
}

// PoolAddresses converts the configured addresses into common.Address,
// ignoring blank entries.
func (c Config) PoolAddresses() ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(c.Addresses))
	for _, input := range c.Addresses {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !common.IsHexAddress(input) {
			return nil, fmt.Errorf("invalid address: %s", input)
		}
		addresses = append(addresses, common.HexToAddress(input))
	}
	return addresses, nil
}

// ValidateStore checks only the storage settings, which is all the schema
// command needs.
func (c Config) ValidateStore() error {
	switch c.Store {
	case StoreSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("db path is required for the sqlite store")
		}
	case StorePostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("pg dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store %q (want %s or %s)", c.Store, StoreSQLite, StorePostgres)
	}
	return nil
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
