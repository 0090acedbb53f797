package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	listenerMinReconnect = 10 * time.Second
	listenerMaxReconnect = time.Minute
)

// Postgres carries events over LISTEN/NOTIFY for agents sharing the Postgres storage.
type Postgres struct {
	db      *sqlx.DB
	dsn     string
	channel string
	logger  *slog.Logger
}

// NewPostgres creates a channel named after namespace. dsn is needed because every
// subscriber holds its own listening connection outside the pool.
func NewPostgres(db *sqlx.DB, dsn, namespace string, logger *slog.Logger) *Postgres {
	return &Postgres{
		db:      db,
		dsn:     dsn,
		channel: "storefront_session_" + namespace,
		logger:  logger,
	}
}

// Topic returns the notification channel name.
func (p *Postgres) Topic() string {
	return p.channel
}

func (p *Postgres) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("broadcast: encode event: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, p.channel, string(payload)); err != nil {
		return fmt.Errorf("broadcast: notify: %w", err)
	}
	return nil
}

func (p *Postgres) Subscribe(ctx context.Context) (<-chan Event, error) {
	listener := pq.NewListener(p.dsn, listenerMinReconnect, listenerMaxReconnect, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			p.logger.Warn("broadcast: listener event", "channel", p.channel, "event", ev, "error", err)
		}
	})
	if err := listener.Listen(p.channel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("broadcast: listen %s: %w", p.channel, err)
	}

	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		defer listener.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-listener.Notify:
				if !ok {
					return
				}
				// A nil notification follows a reconnect; events sent meanwhile are lost.
				if n == nil {
					continue
				}
				var event Event
				if err := json.Unmarshal([]byte(n.Extra), &event); err != nil {
					p.logger.Warn("broadcast: dropping malformed event", "channel", p.channel, "error", err)
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close is a no-op: the pool is owned by the caller and listeners close with their context.
func (p *Postgres) Close() error {
	return nil
}
