package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"storefront/internal/api"
	"storefront/internal/token"
)

type refreshAPI interface {
	RefreshToken(ctx context.Context, token string) (string, error)
}

// tokenHolder owns the live token the refresher polls.
type tokenHolder interface {
	Token(ctx context.Context) string
	replaceToken(ctx context.Context, previous, fresh string) (bool, error)
	expire(ctx context.Context)
}

// Refresher renews the bearer token shortly before it expires.
type Refresher struct {
	api       refreshAPI
	holder    tokenHolder
	interval  time.Duration
	threshold time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu         sync.Mutex
	refreshing bool
}

func newRefresher(client refreshAPI, holder tokenHolder, interval, threshold time.Duration, logger *slog.Logger) *Refresher {
	return &Refresher{
		api:       client,
		holder:    holder,
		interval:  interval,
		threshold: threshold,
		logger:    logger,
		now:       time.Now,
	}
}

// Run polls every interval until ctx is done.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = r.Tick(ctx)
		}
	}
}

// Tick runs a single poll. It refreshes only when the token expires within the threshold
// and has not expired yet. A poll that overlaps a running one does nothing.
func (r *Refresher) Tick(ctx context.Context) (bool, error) {
	r.mu.Lock()
	if r.refreshing {
		r.mu.Unlock()
		return false, nil
	}
	r.refreshing = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.refreshing = false
		r.mu.Unlock()
	}()

	current := r.holder.Token(ctx)
	if current == "" {
		return false, nil
	}
	remaining, ok := token.TimeUntilExpiry(current, r.now())
	if !ok || remaining <= 0 || remaining > r.threshold {
		return false, nil
	}

	fresh, err := r.api.RefreshToken(ctx, current)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			r.logger.Warn("token refresh rejected, signing out", "error", err)
			r.holder.expire(ctx)
			return false, err
		}
		r.logger.Warn("token refresh failed", "error", err, "expires_in", remaining.Round(time.Second).String())
		return false, err
	}

	replaced, err := r.holder.replaceToken(ctx, current, fresh)
	if err != nil {
		r.logger.Error("store refreshed token", "error", err)
		return false, err
	}
	if !replaced {
		r.logger.Info("session changed during refresh, discarding refreshed token")
		return false, nil
	}
	r.logger.Info("token refreshed")
	return true, nil
}
