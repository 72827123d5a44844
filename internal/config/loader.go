package config

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/rpattn/resultgrid/internal/db"
	"github.com/rpattn/resultgrid/internal/table"

	"github.com/spf13/viper"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// AppConfig is everything the server reads at startup.
type AppConfig struct {
	Addr           string
	AllowedOrigins []string
	Storage        string
	Database       db.Config
	Profiler       table.ProfilerConfig
}

// Default returns the configuration used when nothing overrides it.
func Default() AppConfig {
	return AppConfig{
		Addr:           ":8080",
		AllowedOrigins: []string{"http://localhost:3000"},
		Storage:        StorageMemory,
		Database:       db.DefaultConfig(),
		Profiler:       table.DefaultProfilerConfig(),
	}
}

// Load reads config.yaml from configPath, if present, and applies
// RESULTGRID_* environment overrides on top of the defaults, e.g.
// RESULTGRID_DATABASE_HOST or RESULTGRID_STORAGE_DRIVER.
func Load(configPath string) (AppConfig, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.SetEnvPrefix("RESULTGRID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range []string{
		"server.addr",
		"server.allowed_origins",
		"storage.driver",
		"database.host",
		"database.port",
		"database.user",
		"database.password",
		"database.dbname",
		"database.sslmode",
		"database.max_conns",
		"profile.cache_size",
		"profile.workers",
		"frequency.top_k",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		log.Println("No config.yaml found, using defaults and env vars")
	} else {
		log.Printf("Loaded %s", v.ConfigFileUsed())
	}

	if v.IsSet("server.addr") {
		cfg.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}
	if v.IsSet("storage.driver") {
		cfg.Storage = strings.ToLower(strings.TrimSpace(v.GetString("storage.driver")))
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("database.max_conns") {
		cfg.Database.MaxConns = v.GetInt32("database.max_conns")
	}

	if v.IsSet("profile.cache_size") {
		cfg.Profiler.CacheSize = v.GetInt("profile.cache_size")
	}
	if v.IsSet("profile.workers") {
		cfg.Profiler.Workers = v.GetInt("profile.workers")
	}
	if v.IsSet("frequency.top_k") {
		cfg.Profiler.TopK = v.GetInt("frequency.top_k")
	}

	switch cfg.Storage {
	case StorageMemory, StoragePostgres:
	default:
		return cfg, fmt.Errorf("unknown storage driver %q", cfg.Storage)
	}
	return cfg, nil
}
