package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"storefront/internal/api"
	"storefront/internal/broadcast"
	"storefront/internal/identity"
	"storefront/internal/session"
	"storefront/internal/token"
)

// ErrEmptyLogin is returned when Login receives neither a token nor a user.
var ErrEmptyLogin = errors.New("auth: login requires a token or a user")

const defaultLogoutTimeout = 5 * time.Second

// Client is the slice of the storefront API the auth context depends on.
type Client interface {
	Me(ctx context.Context, bearer string) (identity.User, error)
	RefreshToken(ctx context.Context, token string) (string, error)
	Logout(ctx context.Context) error
	User(ctx context.Context, id string) (identity.User, error)
	UserStatus(ctx context.Context) (api.UserStatus, error)
}

// Options tunes the auth context.
type Options struct {
	RefreshInterval  time.Duration
	RefreshThreshold time.Duration
	LogoutTimeout    time.Duration
}

// State is a snapshot of the auth context.
type State struct {
	Authenticated bool           `json:"authenticated"`
	Loading       bool           `json:"loading"`
	User          *identity.User `json:"user"`
}

// Manager is the auth context: it owns the in-memory session, keeps it in step with the
// store, and drives the refresher while a token is held.
type Manager struct {
	store     *session.Store
	verifier  *Verifier
	client    Client
	refresher *Refresher
	logger    *slog.Logger
	logoutTTL time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// writeMu orders store writes with the in-memory swap that follows them.
	writeMu sync.Mutex

	mu            sync.RWMutex
	sess          session.Session
	loading       bool
	stopRefresher context.CancelFunc

	subsMu sync.Mutex
	subs   map[chan State]struct{}
}

// NewManager wires the auth context. It starts in the loading state until Init completes.
func NewManager(store *session.Store, verifier *Verifier, client Client, opts Options, logger *slog.Logger) *Manager {
	if opts.LogoutTimeout <= 0 {
		opts.LogoutTimeout = defaultLogoutTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		store:     store,
		verifier:  verifier,
		client:    client,
		logger:    logger,
		logoutTTL: opts.LogoutTimeout,
		ctx:       ctx,
		cancel:    cancel,
		loading:   true,
		subs:      make(map[chan State]struct{}),
	}
	m.refresher = newRefresher(client, m, opts.RefreshInterval, opts.RefreshThreshold, logger.With("component", "refresher"))
	return m
}

// Init restores the persisted session and verifies it. A session the API rejects is
// cleared; a session that could not be checked because the API is unreachable is kept.
func (m *Manager) Init(ctx context.Context) error {
	m.setLoading(true)
	defer m.setLoading(false)

	stored, err := m.store.Load(ctx)
	if err != nil {
		return err
	}
	if stored.Token == "" && stored.User == nil {
		m.writeMu.Lock()
		m.apply(session.Session{})
		m.writeMu.Unlock()
		return nil
	}

	user, err := m.verifier.Verify(ctx, stored.Token, stored.User)

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	// A login or logout that finished while verifying has already applied newer state.
	if latest, loadErr := m.store.Load(ctx); loadErr == nil && !sameSession(latest, stored) {
		m.logger.Debug("session changed during verification, keeping the newer one")
		return nil
	}

	switch {
	case err == nil:
		tok := stored.Token
		if !token.IsValid(tok, time.Now()) {
			tok = ""
		}
		if err := m.store.Save(ctx, tok, user); err != nil {
			return err
		}
		m.apply(session.Session{Token: tok, User: &user})
		m.logger.Info("session restored", "user_id", user.ID, "role", user.Role)
		return nil

	case api.IsUnavailable(err):
		m.logger.Warn("session verification skipped, API unreachable", "error", err)
		m.apply(stored)
		return nil

	case errors.Is(err, ErrVerificationFailed):
		m.logger.Info("stored session rejected", "error", err)
		if err := m.store.Clear(ctx); err != nil {
			m.logger.Error("clear rejected session", "error", err)
		}
		m.apply(session.Session{})
		return nil

	default:
		return err
	}
}

// Login stores a session. A token without a user is resolved through the verifier. With
// neither, nothing changes and ErrEmptyLogin is returned.
func (m *Manager) Login(ctx context.Context, rawToken string, user *identity.User) error {
	if rawToken == "" && user == nil {
		m.logger.Error("login called without token or user")
		return ErrEmptyLogin
	}

	if user == nil {
		resolved, err := m.verifier.Verify(ctx, rawToken, nil)
		if err != nil {
			return fmt.Errorf("auth: resolve user: %w", err)
		}
		user = &resolved
	}

	u := *user
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := m.store.Save(ctx, rawToken, u); err != nil {
		return err
	}
	m.apply(session.Session{Token: rawToken, User: &u})
	m.logger.Info("signed in", "user_id", u.ID, "role", u.Role, "cookie_only", rawToken == "")
	return nil
}

// Logout ends the session on the API (best effort, bounded) and wipes every local trace.
func (m *Manager) Logout(ctx context.Context) error {
	m.haltRefresher()

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.logoutTTL)
	if err := m.client.Logout(callCtx); err != nil {
		m.logger.Warn("API logout failed", "error", err)
	}
	cancel()

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	err := m.store.Clear(ctx)
	m.apply(session.Session{})
	m.logger.Info("signed out")
	return err
}

// IsAuthenticated reports whether a user is signed in.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sess.User != nil
}

// IsLoading is true until the first Init completes and while a re-init runs.
func (m *Manager) IsLoading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading
}

// User returns a copy of the signed-in user, or nil.
func (m *Manager) User() *identity.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.sess.User == nil {
		return nil
	}
	u := *m.sess.User
	return &u
}

// Token returns the current bearer token. It doubles as the API client's token source.
func (m *Manager) Token(context.Context) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sess.Token
}

// State returns a snapshot.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// FetchUserData loads any user record by id.
func (m *Manager) FetchUserData(ctx context.Context, id string) (identity.User, error) {
	return m.client.User(ctx, id)
}

// UserStatus returns the signed-in user's account status.
func (m *Manager) UserStatus(ctx context.Context) (api.UserStatus, error) {
	return m.client.UserStatus(ctx)
}

// Refresh runs one refresher poll on demand.
func (m *Manager) Refresh(ctx context.Context) (bool, error) {
	return m.refresher.Tick(ctx)
}

// Subscribe delivers the latest state after every change until ctx is done. Slow readers
// only see the newest snapshot.
func (m *Manager) Subscribe(ctx context.Context) <-chan State {
	ch := make(chan State, 1)
	m.subsMu.Lock()
	m.subs[ch] = struct{}{}
	m.subsMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-m.ctx.Done():
		}
		m.subsMu.Lock()
		delete(m.subs, ch)
		close(ch)
		m.subsMu.Unlock()
	}()
	return ch
}

// Watch follows session changes made by sibling agents until ctx is done.
func (m *Manager) Watch(ctx context.Context) error {
	events, err := m.store.Events(ctx)
	if err != nil {
		return fmt.Errorf("auth: subscribe to session events: %w", err)
	}
	if events == nil {
		<-ctx.Done()
		return nil
	}

	for event := range events {
		switch event.Kind {
		case broadcast.KindSessionCleared:
			m.logger.Info("session cleared by another agent")
			m.writeMu.Lock()
			m.apply(session.Session{})
			m.writeMu.Unlock()
		case broadcast.KindSessionSaved:
			stored, err := m.store.Load(ctx)
			if err != nil {
				m.logger.Warn("read session after sibling save", "error", err)
				continue
			}
			if m.holds(stored) {
				continue
			}
			m.logger.Info("session saved by another agent, re-initialising")
			if err := m.Init(ctx); err != nil && ctx.Err() == nil {
				m.logger.Error("re-initialise session", "error", err)
			}
		}
	}
	return nil
}

// Close stops background work.
func (m *Manager) Close() {
	m.haltRefresher()
	m.cancel()
	m.wg.Wait()
}

// replaceToken stores fresh only while the session still holds previous. A login or logout
// that landed during the refresh call wins and the refreshed token is dropped.
func (m *Manager) replaceToken(ctx context.Context, previous, fresh string) (bool, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.RLock()
	current := m.sess
	m.mu.RUnlock()
	if current.User == nil || current.Token != previous {
		return false, nil
	}

	if err := m.store.SaveToken(ctx, fresh); err != nil {
		return false, err
	}
	m.mu.Lock()
	m.sess.Token = fresh
	state := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(state)
	return true, nil
}

// holds reports whether the in-memory session already matches stored.
func (m *Manager) holds(stored session.Session) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sess.User != nil && sameSession(m.sess, stored)
}

func sameSession(a, b session.Session) bool {
	if a.Token != b.Token || (a.User == nil) != (b.User == nil) {
		return false
	}
	return a.User == nil || a.User.ID == b.User.ID
}

func (m *Manager) expire(ctx context.Context) {
	if err := m.Logout(context.WithoutCancel(ctx)); err != nil {
		m.logger.Error("forced logout", "error", err)
	}
}

// apply swaps in a new session and restarts the refresher when it carries a token.
func (m *Manager) apply(next session.Session) {
	m.mu.Lock()
	if m.stopRefresher != nil {
		m.stopRefresher()
		m.stopRefresher = nil
	}
	m.sess = next
	if next.Token != "" && next.User != nil && m.ctx.Err() == nil {
		ctx, cancel := context.WithCancel(m.ctx)
		m.stopRefresher = cancel
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.refresher.Run(ctx)
		}()
	}
	state := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(state)
}

func (m *Manager) haltRefresher() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopRefresher != nil {
		m.stopRefresher()
		m.stopRefresher = nil
	}
}

func (m *Manager) setLoading(loading bool) {
	m.mu.Lock()
	m.loading = loading
	state := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(state)
}

func (m *Manager) snapshotLocked() State {
	state := State{Authenticated: m.sess.User != nil, Loading: m.loading}
	if m.sess.User != nil {
		u := *m.sess.User
		state.User = &u
	}
	return state
}

func (m *Manager) notify(state State) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- state
	}
}
