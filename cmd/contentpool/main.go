// Package main provides the entry point for the content view pool service.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof" // Import for side effects - registers pprof handlers
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fluent-reader/contentpool/internal/bridge"
	"github.com/fluent-reader/contentpool/internal/browser"
	"github.com/fluent-reader/contentpool/internal/config"
	"github.com/fluent-reader/contentpool/internal/middleware"
	"github.com/fluent-reader/contentpool/internal/pool"
	"github.com/fluent-reader/contentpool/internal/translate"
	"github.com/fluent-reader/contentpool/pkg/version"
)

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("contentpool %s\n", version.Full())
		return
	}

	cfg := config.Load()

	setupLogging(cfg.LogLevel)

	cfg.Validate()

	printBanner()

	log.Info().Msg("Launching browser...")
	br, err := browser.Launch(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to launch browser")
	}

	brg := bridge.New()
	p := pool.New(cfg, br, brg)
	brg.AttachPool(p)

	var translationSvc *translate.Service
	if cfg.TranslationEnabled {
		translationSvc = buildTranslationService(cfg)
		p.SetTranslationService(translationSvc)
	}

	var finalHandler http.Handler = http.HandlerFunc(brg.ServeCommand)

	finalHandler = middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})(finalHandler)

	finalHandler = middleware.SecurityHeaders(finalHandler)

	if cfg.APIKeyEnabled {
		log.Info().Msg("API key authentication enabled")
		finalHandler = middleware.APIKey(cfg)(finalHandler)
	}

	var rateLimiter *middleware.RateLimiterMiddleware
	if cfg.RateLimitEnabled {
		log.Info().
			Int("requests_per_minute", cfg.RateLimitRPM).
			Bool("trust_proxy", cfg.TrustProxy).
			Msg("Rate limiting enabled")
		rateLimiter = middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.TrustProxy)
		finalHandler = rateLimiter.Handler()(finalHandler)
	}

	finalHandler = middleware.Logging(finalHandler)
	finalHandler = middleware.Recovery(finalHandler)

	mux := http.NewServeMux()
	mux.Handle("/", finalHandler)
	mux.HandleFunc("/events", brg.ServeEvents)
	mux.HandleFunc("/health", brg.ServeHealth)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var pprofServer *http.Server
	if cfg.PProfEnabled {
		pprofAddr := fmt.Sprintf("%s:%d", cfg.PProfBindAddr, cfg.PProfPort)
		pprofServer = &http.Server{
			Addr:         pprofAddr,
			Handler:      http.DefaultServeMux,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 60 * time.Second,
		}

		go func() {
			log.Warn().
				Str("addr", pprofAddr).
				Msg("WARNING: pprof profiling server started - exposes runtime internals, use for debugging only")

			if err := pprofServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("pprof server failed")
			}
		}()
	}

	go func() {
		log.Info().
			Str("address", addr).
			Int("pool_size", cfg.PoolSize).
			Bool("rate_limit_enabled", cfg.RateLimitEnabled).
			Msg("content pool is ready to accept requests")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	signal.Stop(quit)

	log.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	if pprofServer != nil {
		if err := pprofServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("pprof server shutdown error")
		}
	}

	if rateLimiter != nil {
		rateLimiter.Close()
	}

	if translationSvc != nil {
		if err := translationSvc.Close(); err != nil {
			log.Error().Err(err).Msg("translation service close error")
		}
	}

	if err := p.Close(ctx); err != nil {
		log.Error().Err(err).Msg("pool close error")
	}

	log.Info().Msg("Shutdown complete")
}

func buildTranslationService(cfg *config.Config) *translate.Service {
	var providers []translate.Provider

	if cfg.ProvidersPath != "" {
		mgr, err := translate.NewConfigManager(cfg.ProvidersPath, cfg.ProvidersHotReload)
		if err != nil {
			log.Warn().Err(err).Msg("failed to load translation provider config, falling back to env-configured provider")
		} else if built := mgr.BuildProviders(); len(built) > 0 {
			providers = built
		}
	}

	if len(providers) == 0 {
		switch {
		case cfg.TranslationPrimaryProvider == "webscrape" || cfg.TranslationSelfHostedURL == "":
			providers = []translate.Provider{translate.NewWebScrapeProvider(translate.WebScrapeConfig{
				Timeout: cfg.TranslationRequestTimeout,
			})}
		default:
			providers = []translate.Provider{translate.NewSelfHostedProvider(translate.SelfHostedConfig{
				Name:     "selfhosted",
				Endpoint: cfg.TranslationSelfHostedURL,
				APIKey:   cfg.TranslationSelfHostedKey,
				Timeout:  cfg.TranslationRequestTimeout,
			})}
		}
	}

	log.Info().Int("providers", len(providers)).Msg("translation service enabled")

	return translate.NewService(translate.Config{
		Providers: providers,
		CacheSize: cfg.TranslationCacheSize,
		BaseDelay: cfg.TranslationBaseDelay,
		MaxDelay:  cfg.TranslationMaxDelay,
		Cooldown:  cfg.TranslationCooldown,
	})
}

// setupLogging configures zerolog based on the log level.
func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// printBanner prints the startup banner.
func printBanner() {
	banner := `
  ___            _             _   __     ___
 / __|___ _ _ __| |_ ___ _ _  | |_ \ \   / (_)_____ __
| (__/ _ \ ' \  _|  _/ -_) ' \ |  _| \ \ / /| / -_) V /
 \___\___/_||_\__|\__\___|_||_| \__|  \_/\_/ |_\___\_/\_/
                                                  Pool
`
	fmt.Println(banner)
	log.Info().
		Str("version", version.Full()).
		Str("go_version", version.GoVersion()).
		Msg("Starting content view pool")
}
