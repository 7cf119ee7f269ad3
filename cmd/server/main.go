// cmd/server/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/crusty/internal/auth"
	"github.com/jason-s-yu/crusty/internal/broker"
	"github.com/jason-s-yu/crusty/internal/catalog"
	"github.com/jason-s-yu/crusty/internal/config"
	"github.com/jason-s-yu/crusty/internal/database"
	"github.com/jason-s-yu/crusty/internal/events"
	"github.com/jason-s-yu/crusty/internal/game"
	"github.com/jason-s-yu/crusty/internal/handlers"
	"github.com/jason-s-yu/crusty/internal/middleware"
	"github.com/jason-s-yu/crusty/internal/tracing"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	serviceName     = "crusty-game"
	tokenTTL        = 24 * time.Hour
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}
	logger := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatalf("server exited: %v", err)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	shutdownTracing, err := tracing.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warnf("tracing shutdown: %v", err)
		}
	}()

	keys, err := loadKeys(cfg, logger)
	if err != nil {
		return err
	}

	rdb, err := broker.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer rdb.Close()
	eventBroker := broker.NewRedisBroker(rdb, cfg.EventQueueName, cfg.EventChannelPrefix)

	var source catalog.Source
	if cfg.DatabaseURL != "" {
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		source = &catalog.PostgresSource{DB: pool}
	} else {
		logger.Infof("DATABASE_URL not set, reading card packs from %s", cfg.CatalogFile)
		source = &catalog.FileSource{Path: cfg.CatalogFile}
	}
	cards := catalog.New(source, logger)
	if err := cards.Reload(ctx); err != nil {
		return err
	}

	publisher := events.NewPublisher(eventBroker, cfg.PublisherOptions(), logger)
	registry := game.NewRegistry(publisher, cfg.IdleTimeout, logger)
	gs := handlers.NewGameServer(registry, cards, keys, eventBroker, cfg.Rules(), cfg.DefaultPacks, logger)

	mux := http.NewServeMux()
	gs.Routes(mux)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":            "ok",
			"sessions":          registry.Len(),
			"catalog_loaded_at": cards.LoadedAt(),
		})
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           middleware.LogMiddleware(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
		// WebSocket handlers inherit ctx so they unwind on shutdown.
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	// The publisher outlives the other workers so the abandonment events
	// written by registry.Shutdown still get delivered.
	pubCtx, stopPublisher := context.WithCancel(context.Background())
	defer stopPublisher()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return registry.RunSweeper(gctx, cfg.SweepInterval) })
	g.Go(func() error { return cards.RunRefresher(gctx, cfg.CatalogRefresh) })
	g.Go(func() error { return publisher.Run(pubCtx) })
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case f := <-publisher.Failures():
				logger.WithFields(logrus.Fields{
					"game_id":  f.Event.GameID,
					"sequence": f.Event.Sequence,
					"kind":     f.Event.Kind,
				}).Errorf("event dropped: %v", f.Err)
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("http shutdown: %v", err)
		}
		registry.Shutdown()
		stopPublisher()
		return nil
	})
	return g.Wait()
}

// loadKeys reads the token keys from disk, or generates a throwaway pair for
// local runs when no public key is configured.
func loadKeys(cfg config.Config, logger *logrus.Logger) (*auth.Keys, error) {
	if cfg.JWTPublicKeyPath != "" {
		return auth.LoadKeys(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, tokenTTL)
	}
	logger.Warn("JWT_PUBLIC_KEY_PATH not set, using ephemeral keys; tokens will not survive a restart")
	return auth.GenerateKeys(tokenTTL)
}
