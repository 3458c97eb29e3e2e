package core

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Server.Port != DefaultServerPort {
		t.Errorf("Expected default port %d, got %d", DefaultServerPort, config.Server.Port)
	}

	if !config.Tidal.Enabled || !config.Spotify.Enabled || !config.Deezer.Enabled {
		t.Error("Expected all providers enabled by default")
	}

	if config.Spotify.ClientID != "" {
		t.Errorf("Expected Spotify credentials to require explicit configuration, got %s", config.Spotify.ClientID)
	}

	if config.Tidal.CountryCode != "US" {
		t.Errorf("Expected default country code US, got %s", config.Tidal.CountryCode)
	}

	if config.Cache.MaxEntries != DefaultCacheEntries {
		t.Errorf("Expected default cache size %d, got %d", DefaultCacheEntries, config.Cache.MaxEntries)
	}
}

func TestSearchTimeout(t *testing.T) {
	config := DefaultConfig()

	if config.SearchTimeout() != time.Duration(DefaultSearchTimeoutSecs)*time.Second {
		t.Errorf("SearchTimeout() = %v, want %ds", config.SearchTimeout(), DefaultSearchTimeoutSecs)
	}

	// A nonsense value falls back to the default.
	config.App.SearchTimeoutSecs = -1
	if config.SearchTimeout() != time.Duration(DefaultSearchTimeoutSecs)*time.Second {
		t.Errorf("SearchTimeout() with negative config = %v, want default", config.SearchTimeout())
	}
}

func TestConfigConstants(t *testing.T) {
	if DefaultServerPort <= 0 || DefaultServerPort > 65535 {
		t.Error("DefaultServerPort should be a valid port number")
	}

	if DefaultSearchTimeoutSecs <= 0 {
		t.Error("DefaultSearchTimeoutSecs should be positive")
	}

	if DefaultCacheTTLSecs <= 0 {
		t.Error("DefaultCacheTTLSecs should be positive")
	}
}
