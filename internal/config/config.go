package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/joho/godotenv"

	yaml "gopkg.in/yaml.v2"
)

const (
	DefaultRPCURL       = "https://forno.celo.org"
	DefaultAddress      = "0xA5Eb84773633f33d442ECDaC48212B0dEBf3C84A"
	DefaultTopic        = "0x7d84a6263ae0d98d3329bd7b46bb4e8d6f98cd35a7adb45c274c8b7fd5ebd5e0"
	DefaultGenesisBlock = 10609767
	DefaultStatePath    = "data/proposals.json"

	StorageJSON   = "json"
	StorageSQLite = "sqlite"
	StorageMySQL  = "mysql"
)

// ContractConfig identifies the governance contract and the event tracked on it.
type ContractConfig struct {
	Name         string `yaml:"name"`
	Address      string `yaml:"address"`
	Topic        string `yaml:"topic"`
	GenesisBlock uint64 `yaml:"genesis_block"`
}

type StorageConfig struct {
	Type string `yaml:"type"`
	JSON struct {
		Path string `yaml:"path"`
	} `yaml:"json"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	MySQL struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`
}

type RetryConfig struct {
	Attempts int `yaml:"attempts"`
	DelayMS  int `yaml:"delay_ms"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type APIConfig struct {
	Addr string `yaml:"addr"`
}

type Config struct {
	RPCURL   string         `yaml:"rpc_url"`
	Contract ContractConfig `yaml:"contract"`
	Storage  StorageConfig  `yaml:"storage"`
	Retry    RetryConfig    `yaml:"retry"`

	// ChunkSize splits the log query into windows of this many blocks.
	// Zero queries the whole range at once.
	ChunkSize uint64 `yaml:"chunk_size"`
	// Workers bounds concurrent window requests. Defaults to NumCPU.
	Workers int `yaml:"workers"`

	Log LogConfig `yaml:"log"`
	API APIConfig `yaml:"api"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{
		RPCURL: DefaultRPCURL,
		Contract: ContractConfig{
			Name:         "GovernorAlpha",
			Address:      DefaultAddress,
			Topic:        DefaultTopic,
			GenesisBlock: DefaultGenesisBlock,
		},
		Log: LogConfig{Level: "info"},
		API: APIConfig{Addr: ":8080"},
	}
	cfg.Storage.Type = StorageJSON
	cfg.Storage.JSON.Path = DefaultStatePath
	return cfg
}

// Load builds the configuration from defaults, the optional YAML file at
// path, a .env file in the working directory and the process environment,
// in increasing order of precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			return nil, err
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("RPC_URL", &cfg.RPCURL)
	str("CONTRACT_ADDRESS", &cfg.Contract.Address)
	str("STORAGE_TYPE", &cfg.Storage.Type)
	str("STATE_PATH", &cfg.Storage.JSON.Path)
	str("SQLITE_PATH", &cfg.Storage.SQLite.Path)
	str("DB_DSN", &cfg.Storage.MySQL.DSN)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FILE", &cfg.Log.File)
	str("API_ADDR", &cfg.API.Addr)

	if v, ok := lookup("CHUNK_SIZE"); ok && v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid CHUNK_SIZE: %w", err)
		}
		cfg.ChunkSize = n
	}
	if v, ok := lookup("WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid WORKERS: %w", err)
		}
		cfg.Workers = n
	}
	return nil
}

// Validate checks the settings that cannot be defaulted. The contract address
// is checked by the sync engine itself.
func (cfg *Config) Validate() error {
	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc_url is required")
	}

	topic, err := hexutil.Decode(cfg.Contract.Topic)
	if err != nil || len(topic) != 32 {
		return fmt.Errorf("contract.topic must be a 32-byte hex hash, got %q", cfg.Contract.Topic)
	}

	switch cfg.Storage.Type {
	case StorageJSON:
		if cfg.Storage.JSON.Path == "" {
			return fmt.Errorf("storage.json.path is required when storage type is json")
		}
	case StorageSQLite:
		if cfg.Storage.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path is required when storage type is sqlite")
		}
	case StorageMySQL:
		if cfg.Storage.MySQL.DSN == "" {
			return fmt.Errorf("storage.mysql.dsn is required when storage type is mysql")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
	return nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Retry.Attempts == 0 {
		cfg.Retry.Attempts = 3
	}
	if cfg.Retry.DelayMS == 0 {
		cfg.Retry.DelayMS = 1500
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.File != "" {
		if cfg.Log.MaxSizeMB <= 0 {
			cfg.Log.MaxSizeMB = 100
		}
		if cfg.Log.MaxBackups <= 0 {
			cfg.Log.MaxBackups = 3
		}
	}
}
