package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"storefront/internal/config"
	transporthttp "storefront/internal/http"
	"storefront/internal/oauth"
)

func runServe(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	a, err := buildAgent(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	deps := oauth.Deps{
		API:          a.client,
		Verifier:     a.verifier,
		Sessions:     a.manager,
		Logger:       logger,
		SuccessDelay: cfg.SuccessRedirectDelay,
		ErrorDelay:   cfg.ErrorRedirectDelay,
	}
	callbacks := transporthttp.Callbacks{
		GoogleCallback:   oauth.GoogleAuthCallback(deps),
		GoogleBackend:    oauth.GoogleAuthBackend(deps),
		FacebookCallback: oauth.FacebookAuthCallback(deps),
	}

	var direct *oauth.GoogleDirect
	if cfg.DirectGoogleEnabled() {
		direct, err = oauth.NewGoogleDirect(ctx, cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleCallbackURL(), a.store.Scoped())
		if err != nil {
			return err
		}
		callbacks.GoogleDirect = oauth.GoogleAuthDirect(deps, direct)
		logger.Info("direct Google sign-in enabled", "redirect_url", cfg.GoogleCallbackURL())
	}

	// A nil *GoogleDirect must not reach the handler as a non-nil interface.
	var oauthHandler *transporthttp.OAuthHandler
	if direct != nil {
		oauthHandler = transporthttp.NewOAuthHandler(cfg.APIBaseURL, cfg.FrontendURL, direct, logger)
	} else {
		oauthHandler = transporthttp.NewOAuthHandler(cfg.APIBaseURL, cfg.FrontendURL, nil, logger)
	}
	router := transporthttp.NewRouter(cfg, a.manager, oauthHandler, callbacks, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    http.DefaultMaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("auth agent listening", "addr", srv.Addr, "storage", cfg.StorageBackend, "api", cfg.APIBaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return a.manager.Init(gctx)
	})

	g.Go(func() error {
		return a.manager.Watch(gctx)
	})

	g.Go(func() error {
		for state := range a.manager.Subscribe(gctx) {
			if state.Loading {
				continue
			}
			if state.User != nil {
				logger.Debug("session state", "authenticated", true, "user_id", state.User.ID, "role", state.User.Role)
			} else {
				logger.Debug("session state", "authenticated", false)
			}
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
		return nil
	})

	return g.Wait()
}
