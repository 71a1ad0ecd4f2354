package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                      string
	AllowedOrigin             string
	StorageDriver             string
	DataDir                   string
	DatabaseURL               string
	RedisAddr                 string
	RedisPassword             string
	RedisDB                   int
	PopularityCacheTTLSeconds int
	AuthSecret                string
	AccessTokenTTLMinutes     int
	SeedAdminPassword         string
	LogLevel                  string
	LogFormat                 string
	Timezone                  string
}

// Load reads configuration from the process environment. Values from a .env
// file are visible here once the caller has loaded it into the environment.
func Load() Config {
	v := viper.New()
	v.SetDefault("port", "8080")
	v.SetDefault("allowed_origin", "http://127.0.0.1:3000")
	v.SetDefault("storage_driver", "file")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("redis_db", 0)
	v.SetDefault("popularity_cache_ttl_seconds", 30)
	v.SetDefault("access_token_ttl_minutes", 480)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("timezone", "UTC")
	v.AutomaticEnv()

	cacheTTL := v.GetInt("popularity_cache_ttl_seconds")
	if cacheTTL < 1 {
		cacheTTL = 30
	}
	tokenTTL := v.GetInt("access_token_ttl_minutes")
	if tokenTTL < 1 {
		tokenTTL = 480
	}

	return Config{
		Port:                      v.GetString("port"),
		AllowedOrigin:             v.GetString("allowed_origin"),
		StorageDriver:             strings.ToLower(strings.TrimSpace(v.GetString("storage_driver"))),
		DataDir:                   v.GetString("data_dir"),
		DatabaseURL:               v.GetString("database_url"),
		RedisAddr:                 v.GetString("redis_addr"),
		RedisPassword:             v.GetString("redis_password"),
		RedisDB:                   v.GetInt("redis_db"),
		PopularityCacheTTLSeconds: cacheTTL,
		AuthSecret:                strings.TrimSpace(v.GetString("auth_secret")),
		AccessTokenTTLMinutes:     tokenTTL,
		SeedAdminPassword:         strings.TrimSpace(v.GetString("seed_admin_password")),
		LogLevel:                  v.GetString("log_level"),
		LogFormat:                 v.GetString("log_format"),
		Timezone:                  v.GetString("timezone"),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) PopularityCacheTTL() time.Duration {
	return time.Duration(c.PopularityCacheTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

// Location resolves Timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
