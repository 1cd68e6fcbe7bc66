// Package auth implements the gateway's two-round login protocol and the
// session lifecycle layered on it, including the transparent single-retry
// re-authentication policy for expired sessions.
package auth

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"hemlock/internal/gateway"
	"hemlock/internal/wire"
)

const authService = "open-ils.auth"

// State tracks where a session is in its lifecycle.
type State int

const (
	StateAnonymous State = iota
	StateNonceRequested
	StateTokenObtained
	StateSessionValidated
	StateExpired
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateNonceRequested:
		return "nonce-requested"
	case StateTokenObtained:
		return "token-obtained"
	case StateSessionValidated:
		return "session-validated"
	case StateExpired:
		return "expired"
	case StateLoggedOut:
		return "logged-out"
	}
	return "unknown"
}

// Credential is a username/password pair. It lives in memory for the
// duration of a session; persistence is the credential store's business.
type Credential struct {
	Username string
	Password string
}

// LoginFailedError is a credential rejected by the server during the
// auth sub-protocol. It is distinct from a session expiry: the UI shows
// the server's message verbatim and does not retry.
type LoginFailedError struct {
	Message string
}

func (e *LoginFailedError) Error() string {
	if e.Message == "" {
		return "login failed"
	}
	return "login failed: " + e.Message
}

// ErrLoggedOut marks an operation attempted after an explicit logout.
var ErrLoggedOut = errors.New("logged out")

// PasswordHash computes the challenge response: md5(nonce + md5(password)).
func PasswordHash(nonce, password string) string {
	inner := md5.Sum([]byte(password))
	outer := md5.Sum([]byte(nonce + hex.EncodeToString(inner[:])))
	return hex.EncodeToString(outer[:])
}

// Session owns the auth token for one account and coalesces concurrent
// re-authentication attempts into a single round-trip.
type Session struct {
	gw *gateway.Client

	mu      sync.Mutex
	state   State
	cred    Credential
	token   string
	userID  int
	userObj *wire.Object

	// non-nil while a re-auth round-trip is in flight; closed when done
	reauth    chan struct{}
	reauthErr error
}

func NewSession(gw *gateway.Client) *Session {
	return &Session{gw: gw, state: StateAnonymous}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Session) UserID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cred.Username
}

// User returns the validated patron object, nil before validation.
func (s *Session) User() *wire.Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userObj
}

// Login runs the full three-step protocol: nonce, challenge response,
// session validation. On success the session holds a validated token and
// the original credential for later re-authentication.
func (s *Session) Login(ctx context.Context, cred Credential) error {
	token, userID, userObj, err := s.authenticate(ctx, cred)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateAnonymous
		s.token = ""
		s.userObj = nil
		return err
	}
	s.state = StateSessionValidated
	s.cred = cred
	s.token = token
	s.userID = userID
	s.userObj = userObj
	return nil
}

// authenticate performs the protocol without touching session state, so
// Login and the re-auth path share it.
func (s *Session) authenticate(ctx context.Context, cred Credential) (string, int, *wire.Object, error) {
	nonce, err := s.requestNonce(ctx, cred.Username)
	if err != nil {
		return "", 0, nil, err
	}
	token, err := s.completeLogin(ctx, cred, nonce)
	if err != nil {
		return "", 0, nil, err
	}
	userObj, err := s.retrieveSession(ctx, token)
	if err != nil {
		// The token was rejected immediately after issuance; fatal for
		// this attempt, never silently retried.
		return "", 0, nil, fmt.Errorf("validate new session: %w", err)
	}
	userID, ok := userObj.GetInt("id")
	if !ok {
		return "", 0, nil, &gateway.ShapeError{Expected: "user object with id"}
	}
	return token, userID, userObj, nil
}

func (s *Session) requestNonce(ctx context.Context, username string) (string, error) {
	s.setState(StateNonceRequested)
	resp, err := s.gw.Request(ctx, authService, "open-ils.auth.authenticate.init", username)
	if err != nil {
		return "", err
	}
	nonce, err := resp.String()
	if err != nil {
		return "", fmt.Errorf("unexpected response to auth init: %w", err)
	}
	return nonce, nil
}

func (s *Session) completeLogin(ctx context.Context, cred Credential, nonce string) (string, error) {
	args := wire.NewObject()
	args.Set("type", wire.String("persist"))
	args.Set("username", wire.String(cred.Username))
	args.Set("password", wire.String(PasswordHash(nonce, cred.Password)))

	resp, err := s.gw.Request(ctx, authService, "open-ils.auth.authenticate.complete", args)
	if err != nil {
		return "", err
	}
	obj, err := resp.Object()
	if err != nil {
		var ge *gateway.GatewayError
		if errors.As(err, &ge) {
			return "", &LoginFailedError{Message: ge.Message}
		}
		return "", err
	}
	if ev := gateway.EventOf(obj); ev.Failed() {
		return "", &LoginFailedError{Message: ev.Desc}
	}
	token := obj.GetObject("payload").GetString("authtoken")
	if token == "" {
		return "", &LoginFailedError{Message: "no auth token in response"}
	}
	s.setState(StateTokenObtained)
	return token, nil
}

func (s *Session) retrieveSession(ctx context.Context, token string) (*wire.Object, error) {
	resp, err := s.gw.Request(ctx, authService, "open-ils.auth.session.retrieve", token)
	if err != nil {
		return nil, err
	}
	return resp.Object()
}

// Logout clears the token and drops the session; stored credentials are
// untouched. Reachable from any state.
func (s *Session) Logout(ctx context.Context) {
	s.mu.Lock()
	token := s.token
	s.token = ""
	s.userID = 0
	s.userObj = nil
	s.state = StateLoggedOut
	s.mu.Unlock()

	if token != "" {
		// Best effort; the server expires abandoned sessions anyway.
		_, _ = s.gw.Request(ctx, authService, "open-ils.auth.session.delete", token)
	}
}

// WithRetry runs fn with the current token. If fn reports a session
// expiry, the session re-authenticates (coalesced across concurrent
// callers) and fn runs once more with the fresh token. A second expiry
// in the same call propagates; there is no loop.
func (s *Session) WithRetry(ctx context.Context, fn func(ctx context.Context, authtoken string) error) error {
	token := s.Token()
	err := fn(ctx, token)
	if !errors.Is(err, gateway.ErrSessionExpired) {
		return err
	}
	if rerr := s.reauthenticate(ctx, token); rerr != nil {
		return rerr
	}
	return fn(ctx, s.Token())
}

// reauthenticate replays the login protocol with the stored credential.
// staleToken is the token the failed call used; if the session has
// already been refreshed past it, the work is done. At most one re-auth
// round-trip is in flight at a time; late arrivals wait for its outcome.
func (s *Session) reauthenticate(ctx context.Context, staleToken string) error {
	s.mu.Lock()
	if s.state == StateLoggedOut {
		// An explicit logout is terminal; only a fresh Login revives the
		// session.
		s.mu.Unlock()
		return ErrLoggedOut
	}
	if s.state == StateSessionValidated && s.token != "" && s.token != staleToken {
		s.mu.Unlock()
		return nil
	}
	if s.reauth != nil {
		done := s.reauth
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.reauthErr
	}
	s.state = StateExpired
	done := make(chan struct{})
	s.reauth = done
	cred := s.cred
	s.mu.Unlock()

	token, userID, userObj, err := s.authenticate(ctx, cred)

	s.mu.Lock()
	if err == nil {
		s.state = StateSessionValidated
		s.token = token
		s.userID = userID
		s.userObj = userObj
	} else {
		s.state = StateAnonymous
		s.token = ""
		s.userObj = nil
	}
	s.reauthErr = err
	s.reauth = nil
	s.mu.Unlock()
	close(done)
	return err
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}
