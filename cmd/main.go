package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/clients"
	"github.com/fjod/go_cart/storefront/internal/config"
	"github.com/fjod/go_cart/storefront/internal/kv"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/sync/errgroup"

	h "github.com/fjod/go_cart/storefront/internal/http"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.Options{Service: "storefront", Level: cfg.LogLevel, Format: cfg.LogFormat})

	// Propagate trace context to the upstream services
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("storefront stopped with error")
	}
	log.Info("server stopped")
}

func run(cfg config.Config, log *logrus.Entry) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := openKV(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open kv store: %w", err)
	}
	defer func() {
		if err := backend.close(); err != nil {
			log.WithError(err).Warn("kv close failed")
		}
	}()
	log.WithField("driver", cfg.KVDriver).Info("kv store ready")

	upstream := clients.NewHTTPClient(cfg.UpstreamTimeout)
	checkoutHTTP := clients.NewHTTPClient(cfg.CheckoutTimeout)

	catalogClient := clients.NewCatalogClient(clients.NewClient("catalog", cfg.CatalogURL, upstream, log))
	authClient := clients.NewAuthClient(clients.NewClient("auth", cfg.AuthURL, upstream, log))
	orderClient := clients.NewOrderClient(clients.NewClient("orders", cfg.OrderURL, checkoutHTTP, log))
	invoiceClient := clients.NewInvoiceClient(clients.NewClient("invoice", cfg.InvoiceURL, upstream, log))
	adminClient := clients.NewAdminClient(clients.NewClient("admin", cfg.OrderURL, upstream, log))

	catalogSvc := catalog.NewService(catalogClient, backend.store, cfg.CatalogTTL, log)
	warmCtx, cancelWarm := context.WithTimeout(ctx, cfg.UpstreamTimeout)
	if err := catalogSvc.Warm(warmCtx); err != nil {
		// the catalog is fetched lazily on the first request instead
		log.WithError(err).Warn("catalog warm-up failed")
	}
	cancelWarm()

	registry := store.NewRegistry(func(sessionKV kv.Store) *store.Store {
		return store.New(authClient, orderClient, sessionKV, log, store.Options{
			Timeout:     cfg.CheckoutTimeout,
			AuthTimeout: cfg.UpstreamTimeout,
			SessionTTL:  cfg.SessionTTL,
		})
	}, backend.store, log, store.RegistryOptions{
		IdleTimeout:     cfg.SessionIdleTimeout,
		CleanupInterval: cfg.CleanupInterval,
		MaxSessions:     cfg.MaxSessions,
	})
	defer registry.Close()

	router := h.NewRouter(h.Deps{
		Logger:         log,
		Sessions:       registry,
		Catalog:        catalogSvc,
		Receipts:       invoiceClient,
		Admin:          adminClient,
		Currency:       cfg.Currency,
		RequestTimeout: cfg.RequestTimeout,
		Cookie: h.CookieOptions{
			MaxAge: cfg.SessionTTL,
			Secure: cfg.CookieSecure,
		},
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "storefront"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infof("storefront starting on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if backend.purge != nil {
		g.Go(func() error {
			purgeLoop(gctx, backend.purge, cfg.CleanupInterval, log)
			return nil
		})
	}

	return g.Wait()
}

type kvBackend struct {
	store kv.Store
	close func() error
	// purge drops expired rows for backends without native expiry
	purge func(ctx context.Context) (int64, error)
}

func openKV(ctx context.Context, cfg config.Config) (kvBackend, error) {
	switch cfg.KVDriver {
	case "memory", "":
		return kvBackend{store: kv.NewMemoryStore(), close: func() error { return nil }}, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return kvBackend{}, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return kvBackend{store: kv.NewRedisStore(client), close: client.Close}, nil

	case "sqlite":
		s, err := kv.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return kvBackend{}, err
		}
		return kvBackend{store: s, close: s.Close, purge: s.PurgeExpired}, nil

	default:
		return kvBackend{}, fmt.Errorf("unknown KV_DRIVER %q", cfg.KVDriver)
	}
}

func purgeLoop(ctx context.Context, purge func(context.Context) (int64, error), interval time.Duration, log *logrus.Entry) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := purge(ctx)
			if err != nil {
				log.WithError(err).Warn("kv purge failed")
				continue
			}
			if n > 0 {
				log.WithField("rows", n).Debug("purged expired kv rows")
			}
		case <-ctx.Done():
			return
		}
	}
}
