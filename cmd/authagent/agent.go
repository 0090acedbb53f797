package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"storefront/internal/api"
	"storefront/internal/auth"
	"storefront/internal/broadcast"
	"storefront/internal/config"
	"storefront/internal/platform/cache"
	"storefront/internal/platform/database"
	"storefront/internal/platform/migrate"
	"storefront/internal/session"
	"storefront/internal/storage"
)

// agent bundles the collaborators every command needs.
type agent struct {
	store    *session.Store
	jar      *session.Jar
	client   *api.Client
	verifier *auth.Verifier
	manager  *auth.Manager
	cleanup  []func()
}

func (a *agent) Close() {
	if a.manager != nil {
		a.manager.Close()
	}
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
}

func buildAgent(ctx context.Context, cfg config.Config, logger *slog.Logger) (*agent, error) {
	a := &agent{}

	durable, channel, err := buildStorage(ctx, cfg, logger, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.jar = session.NewJar()
	a.store = session.NewStore(durable, storage.NewMemory(), a.jar, channel, logger.With("component", "session"))

	// The manager is the token source, so the client is built against a forwarding closure.
	var manager *auth.Manager
	tokens := func(ctx context.Context) string {
		if manager == nil {
			return ""
		}
		return manager.Token(ctx)
	}
	a.client, err = api.NewClient(cfg.APIBaseURL, a.jar, tokens,
		api.WithTimeout(cfg.HTTPClientTimeout),
		api.WithLogger(logger.With("component", "api")),
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.verifier = auth.NewVerifier(a.client)
	manager = auth.NewManager(a.store, a.verifier, a.client, auth.Options{
		RefreshInterval:  cfg.RefreshInterval,
		RefreshThreshold: cfg.RefreshThreshold,
	}, logger.With("component", "auth"))
	a.manager = manager
	return a, nil
}

func buildStorage(ctx context.Context, cfg config.Config, logger *slog.Logger, a *agent) (storage.Storage, broadcast.Channel, error) {
	switch cfg.StorageBackend {
	case config.StorageMemory:
		logger.Info("using in-memory client storage")
		return storage.NewMemory(), localChannel(a), nil

	case config.StorageFile:
		logger.Info("using file client storage", "path", cfg.StoragePath)
		return storage.NewFile(cfg.StoragePath), localChannel(a), nil

	case config.StoragePostgres:
		db, err := database.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		a.cleanup = append(a.cleanup, func() { _ = db.Close() })
		if err := migrate.Apply(ctx, db, logger); err != nil {
			return nil, nil, err
		}
		channel := broadcast.NewPostgres(db, cfg.DatabaseURL, cfg.StorageNamespace, logger.With("component", "broadcast"))
		a.cleanup = append(a.cleanup, func() { _ = channel.Close() })
		logger.Info("connected to postgres", "namespace", cfg.StorageNamespace, "topic", channel.Topic())
		return storage.NewPostgres(db, cfg.StorageNamespace), channel, nil

	case config.StorageRedis:
		client, err := cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		a.cleanup = append(a.cleanup, func() { _ = client.Close() })
		channel := broadcast.NewRedis(client, cfg.StorageNamespace, logger.With("component", "broadcast"))
		a.cleanup = append(a.cleanup, func() { _ = channel.Close() })
		logger.Info("connected to redis", "namespace", cfg.StorageNamespace, "topic", channel.Topic())
		return storage.NewRedis(client, cfg.StorageNamespace), channel, nil
	}
	return nil, nil, fmt.Errorf("unsupported storage backend %q", cfg.StorageBackend)
}

func localChannel(a *agent) broadcast.Channel {
	channel := broadcast.NewLocal()
	a.cleanup = append(a.cleanup, func() { _ = channel.Close() })
	return channel
}

// errNotSignedIn is reported by commands that need a session.
var errNotSignedIn = errors.New("not signed in")
