package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ndewijer/Statement-Ledger-Backend/internal/validation"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	CORS     CORSConfig
	Log      LogConfig
	Tracing  TracingConfig
	Import   ImportConfig
	IBKR     IBKRConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port string
	Host string
	Addr string // Combined host:port for convenience
}

// DatabaseConfig holds database-specific configuration
type DatabaseConfig struct {
	Path string
	// AllowReset enables the destructive reset endpoint.
	AllowReset bool
}

// CORSConfig holds CORS-specific configuration
type CORSConfig struct {
	AllowedOrigins []string
}

// LogConfig selects the log level and output format ("json" or "console").
type LogConfig struct {
	Level  string
	Format string
}

// TracingConfig controls the OpenTelemetry exporter.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
}

// ImportConfig holds ingestion settings.
type ImportConfig struct {
	ChunkSize      int
	InboxDir       string
	Schedule       string
	RulesFile      string
	DefaultAccount string
	// RawDataKey is a base64 Fernet key; when set, raw source rows are stored encrypted.
	RawDataKey string
}

// IBKRConfig holds the Flex web service credentials. Download is disabled without a token.
type IBKRConfig struct {
	FlexToken   string
	FlexQueryID string
	BaseURL     string
}

// Enabled reports whether Flex statements can be downloaded.
func (c IBKRConfig) Enabled() bool {
	return c.FlexToken != "" && c.FlexQueryID != ""
}

// Load reads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	chunkSize, err := getEnvInt("IMPORT_CHUNK_SIZE", 500)
	if err != nil {
		return nil, err
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("IMPORT_CHUNK_SIZE must be positive, got %d", chunkSize)
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "5001"),
			Host: getEnv("SERVER_HOST", "localhost"),
		},
		Database: DatabaseConfig{
			Path:       getEnv("DB_PATH", "./data/statement_ledger.db"),
			AllowReset: getEnvBool("ALLOW_RESET", false),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvList("CORS_ORIGINS", []string{
				"http://localhost:3000",
				"http://localhost",
			}),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvBool("TRACING_ENABLED", false),
			ServiceName: getEnv("TRACING_SERVICE_NAME", "statement-ledger"),
		},
		Import: ImportConfig{
			ChunkSize:      chunkSize,
			InboxDir:       getEnv("IMPORT_INBOX_DIR", ""),
			Schedule:       getEnv("IMPORT_SCHEDULE", "@every 15m"),
			RulesFile:      getEnv("IMPORT_RULES_FILE", ""),
			DefaultAccount: getEnv("IMPORT_DEFAULT_ACCOUNT", ""),
			RawDataKey:     getEnv("RAW_DATA_KEY", ""),
		},
		IBKR: IBKRConfig{
			FlexToken:   getEnv("IBKR_FLEX_TOKEN", ""),
			FlexQueryID: getEnv("IBKR_FLEX_QUERY_ID", ""),
			BaseURL:     getEnv("IBKR_FLEX_BASE_URL", "https://ndcdyn.interactivebrokers.com/AccountManagement/FlexWebService"),
		},
	}

	// Combine host and port
	config.Server.Addr = fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port)

	return config, nil
}

// Rules is the optional YAML rules file that tunes ingestion.
//
//	unit_corrections:
//	  SPY: 100
//	validation:
//	  large_quantity: 5000
type Rules struct {
	UnitCorrections map[string]float64 `yaml:"unit_corrections"`
	Validation      validation.Rules   `yaml:"validation"`
}

// LoadRules reads the rules file at path. An empty path yields the defaults.
func LoadRules(path string) (Rules, error) {
	rules := Rules{Validation: validation.DefaultRules()}
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return rules, fmt.Errorf("rules file %s does not exist: %w", path, err)
		}
		return rules, fmt.Errorf("failed to read rules file: %w", err)
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return rules, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}
	for symbol, divisor := range rules.UnitCorrections {
		if divisor <= 0 {
			return rules, fmt.Errorf("unit correction for %s must be positive, got %g", symbol, divisor)
		}
	}
	return rules, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
