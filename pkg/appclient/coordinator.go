package appclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/oceanpad/atlasdata/pkg/transport"
)

// authState tracks whether requests may proceed immediately or must wait.
type authState int

const (
	stateLoggedOut authState = iota
	stateLoggingIn
	stateLoggedIn
	stateRefreshing
)

func (s authState) String() string {
	switch s {
	case stateLoggedOut:
		return "logged-out"
	case stateLoggingIn:
		return "logging-in"
	case stateLoggedIn:
		return "logged-in"
	case stateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// authCoordinator owns the login/refresh/logout state machine. It is the
// only writer of the token store, and it guarantees at most one in-flight
// login and one in-flight refresh at a time: concurrent callers attach to
// the existing operation and observe its outcome.
type authCoordinator struct {
	mu    sync.Mutex
	state authState
	user  *User
	// expired distinguishes "session died unrecoverably" from "never logged
	// in" so callers get ErrAuthenticationExpired instead of
	// ErrNotAuthenticated until the next login.
	expired bool

	store   *tokenStore
	api     *authAPI
	group   singleflight.Group
	logger  *slog.Logger
	metrics Metrics
}

func newAuthCoordinator(store *tokenStore, api *authAPI, logger *slog.Logger, metrics Metrics) *authCoordinator {
	return &authCoordinator{
		store:   store,
		api:     api,
		logger:  logger,
		metrics: metrics,
	}
}

// restore adopts a session persisted by a previous run.
func (c *authCoordinator) restore(ctx context.Context) {
	state := c.store.restore(ctx)
	if state == nil {
		return
	}

	c.mu.Lock()
	c.user = &User{
		ID:         state.Session.UserID,
		Identities: state.Identities,
		Profile:    state.Profile,
		store:      c.store,
	}
	c.state = stateLoggedIn
	c.mu.Unlock()

	c.logger.Debug("restored persisted session", "user_id", state.Session.UserID)
}

// Login authenticates with the given credentials. Concurrent callers while a
// login is already in flight attach to that operation and receive its
// outcome; their own credentials are not used. The network call runs to
// completion even if every waiter abandons its context.
func (c *authCoordinator) Login(ctx context.Context, creds Credentials) (*User, error) {
	ch := c.group.DoChan("login", func() (any, error) {
		return c.doLogin(context.WithoutCancel(ctx), creds)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*User), nil
	}
}

func (c *authCoordinator) doLogin(ctx context.Context, creds Credentials) (*User, error) {
	user, err := c.loginAttempt(ctx, creds)
	if c.metrics != nil {
		c.metrics.LoginFinished(creds.Provider(), err)
	}
	return user, err
}

func (c *authCoordinator) loginAttempt(ctx context.Context, creds Credentials) (*User, error) {
	payload, err := creds.payload()
	if err != nil {
		return nil, err
	}

	// Reuse the device id from any previous session so the backend keeps a
	// single device record per installation.
	deviceID := ""
	if sess, ok := c.store.get(); ok {
		deviceID = sess.DeviceID
	}
	if deviceID == "" {
		deviceID = uuid.NewString()
	}

	// Logging in over an existing session replaces it: drop the local copy
	// first so a failed attempt cannot leave a half-switched user behind.
	c.mu.Lock()
	if c.state == stateLoggedIn {
		c.store.clear(ctx)
		c.user = nil
	}
	c.state = stateLoggingIn
	c.mu.Unlock()

	resp, err := c.api.login(ctx, creds.Provider(), payload, deviceID)
	if err != nil {
		c.loginFailed(err)
		return nil, err
	}

	prof, err := c.api.profile(ctx, resp.AccessToken)
	if err != nil {
		c.loginFailed(err)
		return nil, err
	}

	if resp.DeviceID != "" {
		deviceID = resp.DeviceID
	}
	c.store.set(ctx, persistedState{
		Session: Session{
			AccessToken:  resp.AccessToken,
			RefreshToken: resp.RefreshToken,
			UserID:       resp.UserID,
			DeviceID:     deviceID,
		},
		Identities: prof.Identities,
		Profile:    prof.Data,
	})

	user := &User{
		ID:         resp.UserID,
		Identities: prof.Identities,
		Profile:    prof.Data,
		store:      c.store,
	}

	c.mu.Lock()
	c.state = stateLoggedIn
	c.user = user
	c.expired = false
	c.mu.Unlock()

	c.logger.Debug("login succeeded", "provider", creds.Provider(), "user_id", user.ID)
	return user, nil
}

func (c *authCoordinator) loginFailed(err error) {
	c.mu.Lock()
	c.state = stateLoggedOut
	c.user = nil
	c.mu.Unlock()

	c.logger.Debug("login failed", "error", err)
}

// Refresh exchanges the refresh token for a new access token. Concurrent
// callers attach to the in-flight refresh, so a burst of requests hitting an
// expired token issues exactly one network refresh.
func (c *authCoordinator) Refresh(ctx context.Context) error {
	ch := c.group.DoChan("refresh", func() (any, error) {
		return nil, c.doRefresh(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (c *authCoordinator) doRefresh(ctx context.Context) error {
	err := c.refreshAttempt(ctx)
	if c.metrics != nil {
		c.metrics.RefreshFinished(err)
	}
	return err
}

func (c *authCoordinator) refreshAttempt(ctx context.Context) error {
	c.mu.Lock()
	if c.state != stateLoggedIn {
		expired := c.expired
		c.mu.Unlock()
		if expired {
			return ErrAuthenticationExpired
		}
		return ErrNotAuthenticated
	}
	c.state = stateRefreshing
	c.mu.Unlock()

	sess, ok := c.store.get()
	if !ok {
		c.mu.Lock()
		c.state = stateLoggedOut
		c.user = nil
		c.mu.Unlock()
		return ErrNotAuthenticated
	}

	resp, err := c.api.refresh(ctx, sess.RefreshToken)
	if err != nil {
		return c.refreshFailed(ctx, err)
	}

	// A logout or a re-login may have raced the network call; the tokens
	// apply only while this refresh still owns the session, under the same
	// lock that would hand it over. Never resurrect a logged-out state and
	// never clobber a newer login's session.
	c.mu.Lock()
	if c.state == stateRefreshing {
		c.store.replaceTokens(ctx, resp.AccessToken, resp.RefreshToken)
		c.state = stateLoggedIn
	}
	c.mu.Unlock()

	c.logger.Debug("session refreshed")
	return nil
}

// refreshFailed classifies the failure. Transport errors and 5xx responses
// are transient: the old session is retained and the error surfaces
// verbatim. 4xx responses mean the refresh token is invalid or revoked, and
// a malformed response means the session contract is broken; both are
// unrecoverable and evict the session.
func (c *authCoordinator) refreshFailed(ctx context.Context, err error) error {
	var terr *transport.Error
	var serr *ServerError

	transient := errors.As(err, &terr) ||
		(errors.As(err, &serr) && serr.StatusCode >= 500)

	if transient {
		c.mu.Lock()
		if c.state == stateRefreshing {
			c.state = stateLoggedIn
		}
		c.mu.Unlock()

		c.logger.Debug("transient refresh failure, session retained", "error", err)
		return err
	}

	c.mu.Lock()
	evict := c.state == stateRefreshing
	if evict {
		c.state = stateLoggedOut
		c.user = nil
		c.expired = true
	}
	c.mu.Unlock()

	if evict {
		c.store.clear(ctx)
		c.logger.Warn("refresh rejected, session cleared", "error", err)
	}
	return fmt.Errorf("%w: %w", ErrAuthenticationExpired, err)
}

// Logout clears the local session and best-effort invalidates it server
// side. Logging out while already logged out is a no-op, not an error.
func (c *authCoordinator) Logout(ctx context.Context) error {
	c.mu.Lock()
	if c.state == stateLoggedOut {
		c.mu.Unlock()
		return nil
	}
	c.state = stateLoggedOut
	c.user = nil
	c.expired = false
	c.mu.Unlock()

	sess, ok := c.store.get()
	c.store.clear(ctx)

	if ok && sess.RefreshToken != "" {
		if err := c.api.deleteSession(ctx, sess.RefreshToken); err != nil {
			c.logger.Warn("server-side session invalidation failed", "error", err)
		}
	}
	return nil
}

// CurrentUser returns the logged-in user, if any.
func (c *authCoordinator) CurrentUser() (*User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.user == nil {
		return nil, false
	}
	return c.user, true
}

// status reports the current state and whether the last session ended
// unrecoverably.
func (c *authCoordinator) status() (authState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.expired
}
