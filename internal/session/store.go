// Package session persists the client session {token, user} to durable client storage and
// announces changes to sibling agents.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"storefront/internal/broadcast"
	"storefront/internal/identity"
	"storefront/internal/storage"
)

// Storage keys shared with the storefront frontend.
const (
	TokenKey = "token"
	UserKey  = "user"
)

// Session is the persisted auth state. User is non-nil iff the session is authenticated;
// Token is empty for cookie-only sessions.
type Session struct {
	Token string
	User  *identity.User
}

// Authenticated reports whether the session names a user.
func (s Session) Authenticated() bool {
	return s.User != nil
}

// Store reads and writes the session. Durable storage survives restarts; session storage
// and the cookie jar only live as long as the process.
type Store struct {
	durable storage.Storage
	scoped  storage.Storage
	jar     *Jar
	channel broadcast.Channel
	origin  uuid.UUID
	logger  *slog.Logger
}

// NewStore wires a Store. channel may be nil when no sibling agents exist.
func NewStore(durable, scoped storage.Storage, jar *Jar, channel broadcast.Channel, logger *slog.Logger) *Store {
	return &Store{
		durable: durable,
		scoped:  scoped,
		jar:     jar,
		channel: channel,
		origin:  uuid.New(),
		logger:  logger,
	}
}

// Origin identifies this agent on the broadcast channel.
func (s *Store) Origin() uuid.UUID {
	return s.origin
}

// Scoped exposes the session-scoped storage (OAuth state, PKCE verifiers).
func (s *Store) Scoped() storage.Storage {
	return s.scoped
}

// Load returns the persisted session. A stored user yields a tentative session even when the
// token is missing or expired; trusting it is the verifier's call.
func (s *Store) Load(ctx context.Context) (Session, error) {
	token, _, err := s.durable.Get(ctx, TokenKey)
	if err != nil {
		return Session{}, fmt.Errorf("session: load token: %w", err)
	}

	rawUser, ok, err := s.durable.Get(ctx, UserKey)
	if err != nil {
		return Session{}, fmt.Errorf("session: load user: %w", err)
	}
	if !ok || rawUser == "" {
		return Session{Token: token}, nil
	}

	user, err := identity.DecodeUser([]byte(rawUser))
	if err != nil {
		s.logger.Warn("session: ignoring unreadable stored user", "error", err)
		return Session{Token: token}, nil
	}
	return Session{Token: token, User: &user}, nil
}

// Save writes both keys. An empty token removes the token key while the user is still
// written, which is how cookie-only sessions are stored.
func (s *Store) Save(ctx context.Context, token string, user identity.User) error {
	encoded, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("session: encode user: %w", err)
	}

	if token == "" {
		if err := s.durable.Remove(ctx, TokenKey); err != nil {
			return fmt.Errorf("session: remove token: %w", err)
		}
	} else if err := s.durable.Set(ctx, TokenKey, token); err != nil {
		return fmt.Errorf("session: save token: %w", err)
	}

	if err := s.durable.Set(ctx, UserKey, string(encoded)); err != nil {
		return fmt.Errorf("session: save user: %w", err)
	}

	s.publish(ctx, broadcast.KindSessionSaved)
	return nil
}

// SaveToken replaces the token and leaves the stored user untouched.
func (s *Store) SaveToken(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("session: refusing to save empty token")
	}
	if err := s.durable.Set(ctx, TokenKey, token); err != nil {
		return fmt.Errorf("session: save token: %w", err)
	}
	s.publish(ctx, broadcast.KindSessionSaved)
	return nil
}

// Clear wipes durable storage, session storage and every cookie the agent holds. All three
// are attempted even if one fails.
func (s *Store) Clear(ctx context.Context) error {
	var errs []error
	if err := s.durable.Clear(ctx); err != nil {
		errs = append(errs, fmt.Errorf("session: clear durable storage: %w", err))
	}
	if s.scoped != nil {
		if err := s.scoped.Clear(ctx); err != nil {
			errs = append(errs, fmt.Errorf("session: clear session storage: %w", err))
		}
	}
	if s.jar != nil {
		s.jar.Reset()
	}

	s.publish(ctx, broadcast.KindSessionCleared)
	return errors.Join(errs...)
}

// Events subscribes to session changes made by other agents.
func (s *Store) Events(ctx context.Context) (<-chan broadcast.Event, error) {
	if s.channel == nil {
		return nil, nil
	}
	in, err := s.channel.Subscribe(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan broadcast.Event)
	go func() {
		defer close(out)
		for event := range in {
			if event.Origin == s.origin {
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *Store) publish(ctx context.Context, kind broadcast.Kind) {
	if s.channel == nil {
		return
	}
	if err := s.channel.Publish(ctx, broadcast.NewEvent(s.origin, kind)); err != nil {
		s.logger.Warn("session: broadcast failed", "kind", kind, "error", err)
	}
}
