// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Database types
const (
	MongoDatabase  = "mongodb"
	SQLiteDatabase = "sqlite"
)

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`

	// Static files
	PublicDirectory       string `mapstructure:"publicdir"`
	PublicAssetsUrlPrefix string `mapstructure:"publicassetsurlprefix"`
	PublicBaseURL         string `mapstructure:"publicbaseurl"` // Origin baked into the collector script

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseType                 string `mapstructure:"dbtype"`
	MongoURI                     string `mapstructure:"mongodburi"`
	MongoDatabaseName            string `mapstructure:"mongodbname"`
	DatabasePath                 string `mapstructure:"storagepath"`
	DatabaseName                 string `mapstructure:"-"` // Derived from other settings
	DatabaseConnectTimeoutSecs   int    `mapstructure:"dbconnecttimeoutseconds"`
	DatabaseSelectionTimeoutSecs int    `mapstructure:"dbselectiontimeoutseconds"`
	DatabaseOpTimeoutSecs        int    `mapstructure:"dboptimeoutseconds"`
	DatabaseMaxOpenConns         int    `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns         int    `mapstructure:"dbmaxidleconns"`
	MigrateOnStart               bool   `mapstructure:"migrateonstart"`

	// Generation service
	GoogleAPIKey             string `mapstructure:"googleapikey"`
	GeminiModel              string `mapstructure:"geminimodel"`
	GenerationTimeoutSeconds int    `mapstructure:"generationtimeoutseconds"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration. Invalid configuration is
// fatal: the process cannot serve any request without a store and a model.
func GetConfig() *Config {
	once.Do(func() {
		loaded, err := Load()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		cfg = loaded
	})
	return cfg
}

// Load reads the configuration from the environment without caching it.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("appname", "heatmap")
	v.SetDefault("appport", "8888")
	v.SetDefault("environment", Development)
	v.SetDefault("loglevel", string(LogLevelInfo))
	v.SetDefault("publicdir", "public")
	v.SetDefault("publicassetsurlprefix", "/")
	v.SetDefault("publicbaseurl", "")
	v.SetDefault("logsdir", "logs")
	v.SetDefault("logsmaxsizeinmb", 20)
	v.SetDefault("logsmaxbackups", 10)
	v.SetDefault("logsmaxageindays", 30)
	v.SetDefault("dbtype", MongoDatabase)
	v.SetDefault("mongodbname", "heatmap_saas")
	v.SetDefault("storagepath", "storage")
	v.SetDefault("dbconnecttimeoutseconds", 10)
	v.SetDefault("dbselectiontimeoutseconds", 5)
	v.SetDefault("dboptimeoutseconds", 15)
	v.SetDefault("dbmaxopenconns", 0)
	v.SetDefault("dbmaxidleconns", 0)
	v.SetDefault("migrateonstart", true)
	v.SetDefault("geminimodel", "gemini-2.5-flash")
	v.SetDefault("generationtimeoutseconds", 60)

	v.BindEnv("appname", "HEATMAP_APP_NAME")
	v.BindEnv("appport", "HEATMAP_APP_PORT")
	v.BindEnv("environment", "HEATMAP_ENV")
	v.BindEnv("loglevel", "HEATMAP_LOG_LEVEL")
	v.BindEnv("publicdir", "HEATMAP_PUBLIC_DIR")
	v.BindEnv("publicassetsurlprefix", "HEATMAP_PUBLIC_ASSETS_URL_PREFIX")
	v.BindEnv("publicbaseurl", "HEATMAP_PUBLIC_BASE_URL")
	v.BindEnv("logsdir", "HEATMAP_LOGS_DIR")
	v.BindEnv("logsmaxsizeinmb", "HEATMAP_LOGS_MAX_SIZE_IN_MB")
	v.BindEnv("logsmaxbackups", "HEATMAP_LOGS_MAX_BACKUPS")
	v.BindEnv("logsmaxageindays", "HEATMAP_LOGS_MAX_AGE_IN_DAYS")
	v.BindEnv("dbtype", "HEATMAP_DB_TYPE")
	v.BindEnv("mongodburi", "MONGODB_URI")
	v.BindEnv("mongodbname", "HEATMAP_MONGODB_NAME")
	v.BindEnv("storagepath", "HEATMAP_STORAGE_PATH")
	v.BindEnv("dbconnecttimeoutseconds", "HEATMAP_DB_CONNECT_TIMEOUT_SECONDS")
	v.BindEnv("dbselectiontimeoutseconds", "HEATMAP_DB_SELECTION_TIMEOUT_SECONDS")
	v.BindEnv("dboptimeoutseconds", "HEATMAP_DB_OP_TIMEOUT_SECONDS")
	v.BindEnv("dbmaxopenconns", "HEATMAP_DB_MAX_OPEN_CONNS")
	v.BindEnv("dbmaxidleconns", "HEATMAP_DB_MAX_IDLE_CONNS")
	v.BindEnv("migrateonstart", "HEATMAP_MIGRATE_ON_START")
	v.BindEnv("googleapikey", "GOOGLE_API_KEY")
	v.BindEnv("geminimodel", "HEATMAP_GEMINI_MODEL")
	v.BindEnv("generationtimeoutseconds", "HEATMAP_GENERATION_TIMEOUT_SECONDS")

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c.DatabaseName = c.GetDatabasePath()
	return c, nil
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	switch c.DatabaseType {
	case MongoDatabase:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required when dbtype is %s", MongoDatabase)
		}
	case SQLiteDatabase:
	default:
		return fmt.Errorf("invalid database type: %s", c.DatabaseType)
	}

	if c.PublicBaseURL != "" {
		u, err := url.Parse(c.PublicBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid public base URL: %s", c.PublicBaseURL)
		}
	}

	if c.GoogleAPIKey == "" {
		return fmt.Errorf("GOOGLE_API_KEY is required")
	}
	if c.GeminiModel == "" {
		return fmt.Errorf("gemini model must not be empty")
	}

	return nil
}

// GetDatabasePath returns the sqlite file path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort returns the HTTP server port (implements cartridge.Config interface).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets (implements cartridge.Config interface).
func (c *Config) GetPublicDirectory() string {
	return c.PublicDirectory
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config interface).
func (c *Config) GetAssetsPrefix() string {
	return c.PublicAssetsUrlPrefix
}

// GetAppName returns the application name.
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the connection string for the configured backend.
func (c *Config) DatabaseDSN() string {
	if c.DatabaseType == SQLiteDatabase {
		return c.GetDatabasePath()
	}
	return c.MongoURI
}

// ConnectTimeout bounds establishing a store connection.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.DatabaseConnectTimeoutSecs) * time.Second
}

// SelectionTimeout bounds MongoDB server selection.
func (c *Config) SelectionTimeout() time.Duration {
	return time.Duration(c.DatabaseSelectionTimeoutSecs) * time.Second
}

// OperationTimeout bounds a single insert or aggregate round-trip.
func (c *Config) OperationTimeout() time.Duration {
	return time.Duration(c.DatabaseOpTimeoutSecs) * time.Second
}

// GenerationTimeout bounds a single call to the generation service.
func (c *Config) GenerationTimeout() time.Duration {
	return time.Duration(c.GenerationTimeoutSeconds) * time.Second
}

// GetMaxOpenConns returns the connection pool ceiling. If explicitly set via
// env var, uses that value. Otherwise 1 in tests and 10 elsewhere.
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns how many pooled connections are kept warm. If
// explicitly set via env var, uses that value. Otherwise 1 in tests and 5
// elsewhere.
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
