package auth_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"

	"hemlock/internal/auth"
	"hemlock/internal/gateway"
	"hemlock/internal/idl"
	"hemlock/internal/mockosrf"
	"hemlock/internal/wire"
)

type testEnv struct {
	sim  *mockosrf.Server
	gw   *gateway.Client
	sess *auth.Session
	cred auth.Credential
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	sim := mockosrf.New()
	sim.AddUser(mockosrf.User{ID: 42, Username: "demo", Password: "demo1234"})
	srv := httptest.NewServer(sim.Handler())
	t.Cleanup(srv.Close)

	reg := wire.NewRegistry()
	idl.Register(reg)
	gw := gateway.NewClient(srv.URL, reg)
	return &testEnv{
		sim:  sim,
		gw:   gw,
		sess: auth.NewSession(gw),
		cred: auth.Credential{Username: "demo", Password: "demo1234"},
	}
}

// ping makes one authenticated call and surfaces its classified error,
// so tests can observe session expiry.
func (e *testEnv) ping(ctx context.Context, token string) error {
	resp, err := e.gw.Request(ctx, "open-ils.actor", "open-ils.actor.user.checked_out", token, 42)
	if err != nil {
		return err
	}
	return resp.Err
}

func TestPasswordHash(t *testing.T) {
	// md5("nonce-1" + md5("demo1234")), precomputed
	if got := auth.PasswordHash("nonce-1", "demo1234"); got != "965e07c2a89f234449b1800e8bc9f28b" {
		t.Errorf("PasswordHash = %s", got)
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.sess.Login(ctx, env.cred); err != nil {
		t.Fatal(err)
	}
	if env.sess.State() != auth.StateSessionValidated {
		t.Errorf("state = %v", env.sess.State())
	}
	if env.sess.Token() == "" {
		t.Error("no token after login")
	}
	if env.sess.UserID() != 42 {
		t.Errorf("user id = %d", env.sess.UserID())
	}
	if env.sess.User().GetString("usrname") != "demo" {
		t.Errorf("usrname = %q", env.sess.User().GetString("usrname"))
	}
}

func TestLoginBadPassword(t *testing.T) {
	env := newTestEnv(t)
	err := env.sess.Login(context.Background(), auth.Credential{Username: "demo", Password: "wrong"})
	var lf *auth.LoginFailedError
	if !errors.As(err, &lf) {
		t.Fatalf("err = %v", err)
	}
	if env.sess.State() != auth.StateAnonymous {
		t.Errorf("state = %v", env.sess.State())
	}
	if env.sess.Token() != "" {
		t.Error("token set after failed login")
	}
}

func TestLoginUnknownUser(t *testing.T) {
	env := newTestEnv(t)
	err := env.sess.Login(context.Background(), auth.Credential{Username: "nobody", Password: "x"})
	var lf *auth.LoginFailedError
	if !errors.As(err, &lf) {
		t.Fatalf("err = %v", err)
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.sess.Login(ctx, env.cred); err != nil {
		t.Fatal(err)
	}
	token := env.sess.Token()
	env.sess.Logout(ctx)
	if env.sess.State() != auth.StateLoggedOut {
		t.Errorf("state = %v", env.sess.State())
	}
	if env.sess.Token() != "" {
		t.Error("token survived logout")
	}
	// The server dropped the session too.
	if err := env.ping(ctx, token); !errors.Is(err, gateway.ErrSessionExpired) {
		t.Errorf("old token still valid: %v", err)
	}
}

func TestWithRetryReauthenticatesOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.sess.Login(ctx, env.cred); err != nil {
		t.Fatal(err)
	}
	oldToken := env.sess.Token()
	env.sim.RevokeTokens()

	err := env.sess.WithRetry(ctx, env.ping)
	if err != nil {
		t.Fatalf("WithRetry after revocation: %v", err)
	}
	if env.sess.Token() == oldToken {
		t.Error("token not refreshed")
	}
	if got := env.sim.AuthInitCount(); got != 2 {
		t.Errorf("auth init count = %d, want 2", got)
	}
	if env.sess.State() != auth.StateSessionValidated {
		t.Errorf("state = %v", env.sess.State())
	}
}

func TestWithRetryPassesThroughOtherErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.sess.Login(ctx, env.cred); err != nil {
		t.Fatal(err)
	}
	before := env.sim.AuthInitCount()
	sentinel := errors.New("boom")
	err := env.sess.WithRetry(ctx, func(ctx context.Context, token string) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("err = %v", err)
	}
	if env.sim.AuthInitCount() != before {
		t.Error("re-auth triggered for a non-expiry error")
	}
}

func TestWithRetryNoSecondRetry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.sess.Login(ctx, env.cred); err != nil {
		t.Fatal(err)
	}
	calls := 0
	err := env.sess.WithRetry(ctx, func(ctx context.Context, token string) error {
		calls++
		return gateway.ErrSessionExpired
	})
	if !errors.Is(err, gateway.ErrSessionExpired) {
		t.Errorf("err = %v", err)
	}
	if calls != 2 {
		t.Errorf("fn ran %d times, want 2", calls)
	}
}

func TestConcurrentExpiryCoalesces(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.sess.Login(ctx, env.cred); err != nil {
		t.Fatal(err)
	}
	env.sim.RevokeTokens()

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = env.sess.WithRetry(ctx, env.ping)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("worker %d: %v", i, err)
		}
	}
	// One init for the original login, one for the single coalesced
	// re-auth; concurrent workers must not each log in.
	if got := env.sim.AuthInitCount(); got != 2 {
		t.Errorf("auth init count = %d, want 2", got)
	}
}
