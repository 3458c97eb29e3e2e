// Package core holds the shared configuration types for the coverhound
// service.
package core

import (
	"time"
)

const (
	// DefaultServerPort is the HTTP API listen port.
	DefaultServerPort = 8080
	// DefaultSearchTimeoutSecs bounds one aggregated search.
	DefaultSearchTimeoutSecs = 15
	// DefaultSearchLimit is the per-provider search result limit.
	DefaultSearchLimit = 10
	// DefaultCacheEntries is the capacity of the result cache.
	DefaultCacheEntries = 1024
	// DefaultCacheTTLSecs is how long cached results stay fresh.
	DefaultCacheTTLSecs = 3600
	// DefaultRateLimitPerMinute is the per-client search budget.
	DefaultRateLimitPerMinute = 30
)

type Config struct {
	Tidal   TidalConfig
	Spotify SpotifyConfig
	Deezer  DeezerConfig
	Cache   CacheConfig
	History HistoryConfig
	Server  ServerConfig
	Log     LogConfig
	App     AppConfig
}

type TidalConfig struct {
	Enabled     bool
	CountryCode string
	TokenPath   string
	SearchLimit int
}

type SpotifyConfig struct {
	Enabled      bool
	ClientID     string
	ClientSecret string
}

type DeezerConfig struct {
	Enabled bool
}

type CacheConfig struct {
	MaxEntries        int
	FalsePositiveRate float64
	TTLSecs           int
}

type HistoryConfig struct {
	Path string
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type AppConfig struct {
	SearchTimeoutSecs  int
	RateLimitPerMinute int
}

func DefaultConfig() *Config {
	return &Config{
		Tidal: TidalConfig{
			Enabled:     true,
			CountryCode: "US",
			TokenPath:   "./tidal_token.json",
			SearchLimit: DefaultSearchLimit,
		},
		Spotify: SpotifyConfig{
			Enabled: true,
		},
		Deezer: DeezerConfig{
			Enabled: true,
		},
		Cache: CacheConfig{
			MaxEntries:        DefaultCacheEntries,
			FalsePositiveRate: 0.001,
			TTLSecs:           DefaultCacheTTLSecs,
		},
		History: HistoryConfig{
			Path: "./coverhound_history.db",
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         DefaultServerPort,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		App: AppConfig{
			SearchTimeoutSecs:  DefaultSearchTimeoutSecs,
			RateLimitPerMinute: DefaultRateLimitPerMinute,
		},
	}
}

// SearchTimeout returns the aggregated search deadline as a duration.
func (c *Config) SearchTimeout() time.Duration {
	secs := c.App.SearchTimeoutSecs
	if secs <= 0 {
		secs = DefaultSearchTimeoutSecs
	}
	return time.Duration(secs) * time.Second
}

// CacheTTL returns the cache entry lifetime as a duration.
func (c *Config) CacheTTL() time.Duration {
	secs := c.Cache.TTLSecs
	if secs <= 0 {
		secs = DefaultCacheTTLSecs
	}
	return time.Duration(secs) * time.Second
}
