package util

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Db         DbConfig         `yaml:"db"`
	Alpaca     AlpacaConfig     `yaml:"alpaca"`
	Jwt        string           `yaml:"jwt"`
	Prices     PricesConfig     `yaml:"prices"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Port       int              `yaml:"port"`
}

type DbConfig struct {
	Host      string `yaml:"host"`
	User      string `yaml:"user"`
	Port      string `yaml:"port"`
	Password  string `yaml:"password"`
	Database  string `yaml:"database"`
	EnableSsl bool   `yaml:"enableSsl"`
	// Url wins over the individual fields when set.
	Url string `yaml:"url"`
}

func (t DbConfig) ToConnectionStr() string {
	if t.Url != "" {
		return t.Url
	}
	x := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s",
		t.Host, t.Port, t.User, t.Password, t.Database)
	if !t.EnableSsl {
		x += " sslmode=disable"
	}
	return x
}

type AlpacaConfig struct {
	ApiKey    string `yaml:"apiKey"`
	ApiSecret string `yaml:"apiSecret"`
	Endpoint  string `yaml:"endpoint"`
}

type PriceSource string

const (
	PriceSourcePostgres PriceSource = "postgres"
	PriceSourceAlpaca   PriceSource = "alpaca"
	PriceSourceYahoo    PriceSource = "yahoo"
	PriceSourceCsv      PriceSource = "csv"
)

type PricesConfig struct {
	Source  PriceSource `yaml:"source"`
	CsvPath string      `yaml:"csvPath"`
	// HistoryDepth caps how many closes feed the smoothed indicators.
	HistoryDepth int `yaml:"historyDepth"`
}

type EvaluationConfig struct {
	Parallelism int `yaml:"parallelism"`
	Precision   int `yaml:"precision"`
	NumWorkers  int `yaml:"numWorkers"`
}

const (
	DefaultHistoryDepth = 250
	DefaultPrecision    = 6
	DefaultNumWorkers   = 10
	DefaultPort         = 3009
)

// ConfigPath picks the config file for the current SYMPHONY_ENV unless
// SYMPHONY_CONFIG names one explicitly.
func ConfigPath() string {
	if p := os.Getenv("SYMPHONY_CONFIG"); p != "" {
		return p
	}
	switch strings.ToLower(os.Getenv("SYMPHONY_ENV")) {
	case "dev":
		return "config-dev.yaml"
	case "test":
		return "config-test.yaml"
	}
	return "config.yaml"
}

// LoadConfig reads .env (if present), then the yaml config, then applies env
// overrides and defaults. A missing config file is not an error.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return LoadConfigFile(ConfigPath())
}

func LoadConfigFile(path string) (*Config, error) {
	cfg := &Config{}

	f, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("could not open %s: %w", path, err)
	}
	if len(f) > 0 {
		if err := yaml.Unmarshal(f, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	if err := applyDefaults(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Db.Url = v
	}
	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.ApiKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.ApiSecret = v
	}
	if v := os.Getenv("ALPACA_ENDPOINT"); v != "" {
		cfg.Alpaca.Endpoint = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Jwt = v
	}
	if v := os.Getenv("PRICE_SOURCE"); v != "" {
		cfg.Prices.Source = PriceSource(strings.ToLower(v))
	}
	if v := os.Getenv("PRICE_CSV_PATH"); v != "" {
		cfg.Prices.CsvPath = v
	}
	if v, err := strconv.Atoi(os.Getenv("EVALUATION_PARALLELISM")); err == nil {
		cfg.Evaluation.Parallelism = v
	}
	if v, err := strconv.Atoi(os.Getenv("PORT")); err == nil {
		cfg.Port = v
	}
}

func applyDefaults(cfg *Config) error {
	if cfg.Prices.Source == "" {
		cfg.Prices.Source = PriceSourcePostgres
		if cfg.Prices.CsvPath != "" {
			cfg.Prices.Source = PriceSourceCsv
		}
	}
	switch cfg.Prices.Source {
	case PriceSourcePostgres, PriceSourceAlpaca, PriceSourceYahoo, PriceSourceCsv:
	default:
		return fmt.Errorf("unknown price source %q", cfg.Prices.Source)
	}
	if cfg.Prices.Source == PriceSourceCsv && cfg.Prices.CsvPath == "" {
		return fmt.Errorf("price source csv needs prices.csvPath")
	}
	if cfg.Prices.HistoryDepth == 0 {
		cfg.Prices.HistoryDepth = DefaultHistoryDepth
	}
	if cfg.Evaluation.Precision == 0 {
		cfg.Evaluation.Precision = DefaultPrecision
	}
	if cfg.Evaluation.NumWorkers == 0 {
		cfg.Evaluation.NumWorkers = DefaultNumWorkers
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	return nil
}
