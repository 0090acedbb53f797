package main

import (
	"context"
	"log/slog"

	"storefront/internal/config"
)

func runStatus(ctx context.Context, cfg config.Config, logger *slog.Logger, out *printer) error {
	a, err := buildAgent(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.manager.Init(ctx); err != nil {
		return err
	}

	state := a.manager.State()
	report := statusReport{Authenticated: state.Authenticated, User: state.User}
	if state.Authenticated {
		status, err := a.manager.UserStatus(ctx)
		if err != nil {
			logger.Warn("account status unavailable", "error", err)
		} else {
			report.Account = &status
		}
	}
	return out.status(report)
}

func runLogout(ctx context.Context, cfg config.Config, logger *slog.Logger, out *printer) error {
	a, err := buildAgent(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.manager.Init(ctx); err != nil {
		return err
	}
	if !a.manager.IsAuthenticated() {
		return out.message(errNotSignedIn.Error())
	}
	if err := a.manager.Logout(ctx); err != nil {
		return err
	}
	return out.message("signed out")
}
