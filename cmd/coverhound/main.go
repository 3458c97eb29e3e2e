// Package main provides the coverhound service entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"coverhound/internal/core"
	"coverhound/internal/flood"
	httpserver "coverhound/internal/http"
	"coverhound/internal/session"
	"coverhound/internal/store"
	"coverhound/pkg/covers"
)

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "coverhound",
	Short: "Coverhound - aggregated album cover art search",
	Long: `Coverhound is a service that searches Tidal, Spotify and Deezer for album
cover art, merges and ranks the results, and serves them over an HTTP API
with caching and a search history.`,
	RunE: runCoverhound,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("tidal-enabled", true, "enable the Tidal provider")
	rootCmd.PersistentFlags().String("tidal-country-code", "US", "Tidal country code")
	rootCmd.PersistentFlags().String("tidal-token-path", "./tidal_token.json", "path to the persisted Tidal token")
	rootCmd.PersistentFlags().Bool("spotify-enabled", true, "enable the Spotify provider")
	rootCmd.PersistentFlags().String("spotify-client-id", "", "Spotify client ID")
	rootCmd.PersistentFlags().String("spotify-client-secret", "", "Spotify client secret")
	rootCmd.PersistentFlags().Bool("deezer-enabled", true, "enable the Deezer provider")
	rootCmd.PersistentFlags().String("history-path", "./coverhound_history.db", "path to the search history database")
	rootCmd.PersistentFlags().Int("server-port", core.DefaultServerPort, "HTTP server port")
	rootCmd.PersistentFlags().Int("search-timeout", core.DefaultSearchTimeoutSecs, "aggregated search timeout in seconds")
	rootCmd.PersistentFlags().Int("cache-entries", core.DefaultCacheEntries, "result cache capacity")
	rootCmd.PersistentFlags().Int("cache-ttl", core.DefaultCacheTTLSecs, "result cache TTL in seconds")
	rootCmd.PersistentFlags().Int("rate-limit", core.DefaultRateLimitPerMinute, "per-client searches per minute")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(".env")
		viper.SetConfigType("env")
	}

	viper.SetEnvPrefix("COVERHOUND")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
			os.Exit(1)
		}
	}

	config = buildConfig()
	logger = buildLogger(config.Log.Level)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	cfg.Tidal.Enabled = viper.GetBool("tidal-enabled")
	cfg.Tidal.CountryCode = viper.GetString("tidal-country-code")
	if cfg.Tidal.CountryCode == "" {
		cfg.Tidal.CountryCode = "US"
	}
	cfg.Tidal.TokenPath = viper.GetString("tidal-token-path")
	if cfg.Tidal.TokenPath == "" {
		cfg.Tidal.TokenPath = "./tidal_token.json"
	}

	cfg.Spotify.Enabled = viper.GetBool("spotify-enabled")
	cfg.Spotify.ClientID = viper.GetString("spotify-client-id")
	cfg.Spotify.ClientSecret = viper.GetString("spotify-client-secret")

	cfg.Deezer.Enabled = viper.GetBool("deezer-enabled")

	cfg.History.Path = viper.GetString("history-path")
	if cfg.History.Path == "" {
		cfg.History.Path = "./coverhound_history.db"
	}

	cfg.Server.Host = viper.GetString("server-host")
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if port := viper.GetInt("server-port"); port != 0 {
		cfg.Server.Port = port
	}

	if secs := viper.GetInt("search-timeout"); secs != 0 {
		cfg.App.SearchTimeoutSecs = secs
	}
	if limit := viper.GetInt("rate-limit"); limit != 0 {
		cfg.App.RateLimitPerMinute = limit
	}

	if entries := viper.GetInt("cache-entries"); entries != 0 {
		cfg.Cache.MaxEntries = entries
	}
	if ttl := viper.GetInt("cache-ttl"); ttl != 0 {
		cfg.Cache.TTLSecs = ttl
	}

	cfg.Log.Level = viper.GetString("log-level")

	return cfg
}

func buildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

func runCoverhound(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting coverhound",
		zap.String("version", "1.0.0"),
		zap.Bool("tidal", config.Tidal.Enabled),
		zap.Bool("spotify", config.Spotify.Enabled),
		zap.Bool("deezer", config.Deezer.Enabled))

	if err := validateConfig(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	fetcher := covers.NewFetcher(config.SearchTimeout(), logger.Named("fetcher"))
	defer fetcher.Close()

	if config.Tidal.Enabled {
		tidalSession := session.NewTidal(config.Tidal.TokenPath, config.Tidal.CountryCode,
			config.Tidal.SearchLimit, logger.Named("tidal_session"))
		if err := tidalSession.LoadToken(); err != nil {
			logger.Warn("No usable Tidal token, provider stays unauthenticated", zap.Error(err))
		}
		fetcher.Register(covers.NewTidalProvider(tidalSession, nil, fetcher.SearchFinished, logger.Named("tidal")))
	}

	if config.Spotify.Enabled {
		spotifySession := session.NewSpotify(config.Spotify.ClientID, config.Spotify.ClientSecret,
			logger.Named("spotify_session"))
		fetcher.Register(covers.NewSpotifyProvider(spotifySession, nil, fetcher.SearchFinished, logger.Named("spotify")))
	}

	if config.Deezer.Enabled {
		fetcher.Register(covers.NewDeezerProvider(nil, fetcher.SearchFinished, logger.Named("deezer")))
	}

	if len(fetcher.Providers()) == 0 {
		return fmt.Errorf("no cover providers enabled")
	}

	cache := store.NewCache(config.Cache.MaxEntries, config.Cache.FalsePositiveRate, config.CacheTTL())

	history, err := store.NewHistory(config.History.Path, logger.Named("history"))
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer history.Close()

	gate := flood.New(config.App.RateLimitPerMinute)
	defer gate.Stop()

	httpServer := httpserver.NewServer(&config.Server, logger.Named("http"), fetcher, cache, history, gate)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return httpServer.Start(gCtx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				hits, misses := cache.Stats()
				gateStats := gate.Stats()
				logger.Debug("Service stats",
					zap.Int("cache_entries", cache.Len()),
					zap.Uint64("cache_hits", hits),
					zap.Uint64("cache_misses", misses),
					zap.Int("active_clients", gateStats.ActiveClients))
			}
		}
	})

	logger.Info("Coverhound started successfully",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)),
		zap.Int("providers", len(fetcher.Providers())))

	if err := g.Wait(); err != nil {
		logger.Error("Coverhound stopped with error", zap.Error(err))
		return err
	}

	logger.Info("Coverhound stopped gracefully")
	return nil
}

func validateConfig() error {
	if !config.Tidal.Enabled && !config.Spotify.Enabled && !config.Deezer.Enabled {
		return fmt.Errorf("at least one provider must be enabled")
	}

	if config.Spotify.Enabled {
		if config.Spotify.ClientID == "" || config.Spotify.ClientSecret == "" {
			return fmt.Errorf("spotify client ID and secret are required when the Spotify provider is enabled")
		}
	}

	return nil
}
