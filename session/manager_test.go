package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dropDatabas3/hellodoc/auth"
	"github.com/dropDatabas3/hellodoc/auth/local"
	"github.com/dropDatabas3/hellodoc/errs"
	"github.com/dropDatabas3/hellodoc/internal/email"
	"github.com/dropDatabas3/hellodoc/internal/password"
	"github.com/dropDatabas3/hellodoc/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// countingBackend cuenta las llamadas federadas.
type countingBackend struct {
	auth.Backend
	idp atomic.Int32
}

func (c *countingBackend) SignInWithIdP(ctx context.Context, a auth.IdPAssertion) (*auth.Credential, error) {
	c.idp.Add(1)
	return c.Backend.SignInWithIdP(ctx, a)
}

type fixture struct {
	m       *Manager
	backend *countingBackend
	outbox  *email.Outbox
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	out := &email.Outbox{}
	lb, err := local.New(local.Config{
		ProjectID:  "demo",
		SigningKey: []byte("k"),
		Hash:       password.Fast,
		Mailer:     out,
		Enumerable: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = lb.Close() })
	cb := &countingBackend{Backend: lb}
	return &fixture{m: New(auth.NewHandle(cb), opts...), backend: cb, outbox: out}
}

func next(t *testing.T, s *Subscription) Event {
	t.Helper()
	select {
	case e, ok := <-s.Events():
		require.True(t, ok, "subscription closed")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
		return Event{}
	}
}

func noEvent(t *testing.T, s *Subscription) {
	t.Helper()
	select {
	case e, ok := <-s.Events():
		if ok {
			t.Fatalf("unexpected event %s", e.Kind)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRegisterLoginLogout_Transitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.m.Subscribe(ctx)
	defer sub.Cancel()

	e := next(t, sub)
	assert.Equal(t, Initial, e.Kind)
	assert.Nil(t, e.User)

	u, err := f.m.RegisterWithEmail(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	e = next(t, sub)
	assert.Equal(t, SignedIn, e.Kind)
	assert.Equal(t, u.UID, e.User.UID)

	cur, ok := f.m.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, u.UID, cur.UID)

	require.NoError(t, f.m.Logout(ctx))
	e = next(t, sub)
	assert.Equal(t, SignedOut, e.Kind)
	assert.Nil(t, e.User)

	// idempotente: sin evento
	require.NoError(t, f.m.Logout(ctx))
	noEvent(t, sub)

	_, ok = f.m.CurrentUser()
	assert.False(t, ok)
}

func TestLoginWhileSignedIn_ReplacesIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.m.RegisterWithEmail(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	_, err = f.m.RegisterWithEmail(ctx, "b@example.com", "secret1")
	require.NoError(t, err)

	sub := f.m.Subscribe(ctx)
	defer sub.Cancel()
	assert.Equal(t, Initial, next(t, sub).Kind)

	u, err := f.m.LoginWithEmail(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, a.UID, u.UID)

	e := next(t, sub)
	assert.Equal(t, SignedIn, e.Kind)
	assert.Equal(t, a.UID, e.User.UID)
	noEvent(t, sub)
}

func TestFailedLoginLeavesStateAndMapsError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.m.RegisterWithEmail(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	before, _ := f.m.CurrentUser()

	_, err = f.m.LoginWithEmail(ctx, "a@example.com", "wrong-one")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindAuth))
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "Invalid password", e.Message)
	assert.Equal(t, "session.LoginWithEmail", e.Op)

	after, ok := f.m.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, before.UID, after.UID)

	_, err = f.m.RegisterWithEmail(ctx, "a@example.com", "secret1")
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "This email is already registered", e.Message)

	_, err = f.m.RegisterWithEmail(ctx, "bad-email", "secret1")
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "Invalid email format", e.Message)

	_, err = f.m.RegisterWithEmail(ctx, "c@example.com", "123")
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "Password is too weak", e.Message)

	_, err = f.m.LoginWithEmail(ctx, "ghost@example.com", "secret1")
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "User not found", e.Message)
}

func TestOperationsWithoutSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	name := "x"
	for _, err := range []error{
		f.m.SendVerificationEmail(ctx),
		f.m.UpdateProfile(ctx, Profile{DisplayName: &name}),
		f.m.UpdateEmail(ctx, "b@example.com"),
		f.m.UpdatePassword(ctx, "secret2"),
		f.m.DeleteAccount(ctx),
		func() error { _, err := f.m.IDToken(ctx); return err }(),
	} {
		assert.True(t, errs.IsKind(err, errs.KindNoSession), "%v", err)
	}
}

func TestUnsupportedProvider_NoBackendCall(t *testing.T) {
	f := newFixture(t, WithProviders(providers.NewRegistry(providers.Config{
		GitHub: providers.Credentials{ClientID: "gh"},
	})))
	ctx := context.Background()

	for _, p := range []string{"myspace", "", "google"} {
		_, err := f.m.LoginWithProvider(ctx, p)
		assert.True(t, errs.IsKind(err, errs.KindUnsupportedProvider), "%q: %v", p, err)
	}
	assert.Zero(t, f.backend.idp.Load())
	_, ok := f.m.CurrentUser()
	assert.False(t, ok)
}

func TestLoginWithProvider_NoAuthorizer(t *testing.T) {
	f := newFixture(t, WithProviders(providers.NewRegistry(providers.Config{
		GitHub: providers.Credentials{ClientID: "gh"},
	})))
	_, err := f.m.LoginWithProvider(context.Background(), "github")
	assert.True(t, errs.IsKind(err, errs.KindConfiguration))
	assert.Zero(t, f.backend.idp.Load())
}

// fakeGitHub sirve token + /user.
func fakeGitHub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "ok-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "gho", "token_type": "bearer"})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 7, "login": "octo", "name": "Octo Cat", "email": "octo@example.com"})
	})
	mux.HandleFunc("/emails", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{{"email": "octo@example.com", "primary": true, "verified": true}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLoginWithProvider(t *testing.T) {
	srv := fakeGitHub(t)
	reg := providers.NewRegistry(providers.Config{
		GitHub: providers.Credentials{ClientID: "gh", ClientSecret: "s"},
		Options: map[providers.ID][]providers.StrategyOption{
			providers.GitHub: {
				providers.WithEndpoint(oauth2.Endpoint{AuthURL: srv.URL + "/authorize", TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams}),
				providers.WithProfileURL(srv.URL + "/user"),
				providers.WithEmailsURL(srv.URL + "/emails"),
			},
		},
	})
	approve := providers.AuthorizerFunc(func(_ context.Context, buildURL func(string) string, state string) (string, string, error) {
		u, err := url.Parse(buildURL("http://127.0.0.1:1/callback"))
		if err != nil {
			return "", "", err
		}
		if u.Query().Get("state") != state {
			return "", "", &providers.Error{Code: providers.CodeInvalidCredential, Message: "state mismatch"}
		}
		return "ok-code", "http://127.0.0.1:1/callback", nil
	})
	f := newFixture(t, WithProviders(reg), WithAuthorizer(approve))

	u, err := f.m.LoginWithProvider(context.Background(), "GitHub")
	require.NoError(t, err)
	assert.Equal(t, "github.com", u.ProviderID)
	assert.Equal(t, "octo@example.com", u.Email)
	assert.Equal(t, int32(1), f.backend.idp.Load())

	cur, ok := f.m.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, u.UID, cur.UID)
}

func TestLoginWithProvider_Cancelled(t *testing.T) {
	reg := providers.NewRegistry(providers.Config{Google: providers.Credentials{ClientID: "g"}})
	cancelled := providers.AuthorizerFunc(func(context.Context, func(string) string, string) (string, string, error) {
		return "", "", &providers.Error{Code: providers.CodePopupClosed, Message: "closed"}
	})
	f := newFixture(t, WithProviders(reg), WithAuthorizer(cancelled))

	_, err := f.m.LoginWithProvider(context.Background(), "google")
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errs.KindAuth, e.Kind)
	assert.Equal(t, "Sign-in was cancelled", e.Message)
	assert.Zero(t, f.backend.idp.Load())
}

func TestPasswordResetFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.m.RegisterWithEmail(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, f.m.Logout(ctx))

	require.NoError(t, f.m.ResetPassword(ctx, "a@example.com"))
	msg, ok := f.outbox.Last("a@example.com")
	require.True(t, ok)
	code := strings.TrimSpace(msg.Text[strings.Index(msg.Text, "Code: ")+len("Code: "):])

	require.NoError(t, f.m.ConfirmPasswordReset(ctx, code, "secret2"))
	_, err = f.m.LoginWithEmail(ctx, "a@example.com", "secret2")
	require.NoError(t, err)

	err = f.m.ConfirmPasswordReset(ctx, code, "secret3")
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "This link is invalid or was already used", e.Message)
}

func TestVerifyEmailUpdatesCurrentUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.m.RegisterWithEmail(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, f.m.SendVerificationEmail(ctx))

	msg, ok := f.outbox.Last("a@example.com")
	require.True(t, ok)
	code := strings.TrimSpace(msg.Text[strings.Index(msg.Text, "Code: ")+len("Code: "):])

	sub := f.m.Subscribe(ctx)
	defer sub.Cancel()
	assert.False(t, next(t, sub).User.EmailVerified)

	require.NoError(t, f.m.ApplyActionCode(ctx, code))
	e := next(t, sub)
	assert.Equal(t, UserUpdated, e.Kind)
	assert.True(t, e.User.EmailVerified)
}

func TestProfileAndCredentialUpdates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.m.RegisterWithEmail(ctx, "a@example.com", "secret1")
	require.NoError(t, err)

	name := "Ana"
	require.NoError(t, f.m.UpdateProfile(ctx, Profile{DisplayName: &name}))
	u, _ := f.m.CurrentUser()
	assert.Equal(t, "Ana", u.DisplayName)

	require.NoError(t, f.m.UpdateEmail(ctx, "ana@example.com"))
	u, _ = f.m.CurrentUser()
	assert.Equal(t, "ana@example.com", u.Email)

	// la sesión sigue siendo válida tras el cambio de contraseña
	require.NoError(t, f.m.UpdatePassword(ctx, "secret2"))
	_, err = f.m.IDToken(ctx)
	require.NoError(t, err)
	require.NoError(t, f.m.SendVerificationEmail(ctx))
}

func TestDeleteAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.m.RegisterWithEmail(ctx, "a@example.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, f.m.DeleteAccount(ctx))
	_, ok := f.m.CurrentUser()
	assert.False(t, ok)
	_, err = f.m.LoginWithEmail(ctx, "a@example.com", "secret1")
	assert.True(t, errs.IsKind(err, errs.KindAuth))
}

func TestSubscribers_IndependentCancellation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.m.Subscribe(ctx)
	b := f.m.Subscribe(ctx)
	defer b.Cancel()
	next(t, a)
	next(t, b)

	a.Cancel()
	a.Cancel()
	_, open := <-a.Events()
	assert.False(t, open)

	_, err := f.m.RegisterWithEmail(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, SignedIn, next(t, b).Kind)
}

func TestSubscriber_ContextCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	s := f.m.Subscribe(ctx)
	next(t, s)
	cancel()

	select {
	case _, open := <-s.Events():
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed after context cancel")
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slow := f.m.Subscribe(ctx) // nunca se lee hasta el final
	defer slow.Cancel()

	_, err := f.m.RegisterWithEmail(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	const rounds = 20
	for i := 0; i < rounds; i++ {
		require.NoError(t, f.m.Logout(ctx))
		_, err := f.m.LoginWithEmail(ctx, "a@example.com", "secret1")
		require.NoError(t, err)
	}

	// todos los eventos llegan en orden de transición
	want := []EventKind{Initial, SignedIn}
	for i := 0; i < rounds; i++ {
		want = append(want, SignedOut, SignedIn)
	}
	for i, k := range want {
		assert.Equal(t, k, next(t, slow).Kind, "event %d", i)
	}
}

func TestOnSessionChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var (
		mu   sync.Mutex
		seen []string
	)
	got := make(chan struct{}, 16)
	unsubscribe := f.m.OnSessionChange(func(u *auth.User) {
		mu.Lock()
		if u == nil {
			seen = append(seen, "<nil>")
		} else {
			seen = append(seen, u.Email)
		}
		mu.Unlock()
		got <- struct{}{}
	})

	wait := func() {
		select {
		case <-got:
		case <-time.After(2 * time.Second):
			t.Fatal("callback not invoked")
		}
	}
	wait() // estado inicial
	_, err := f.m.RegisterWithEmail(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	wait()
	require.NoError(t, f.m.Logout(ctx))
	wait()

	unsubscribe()
	_, err = f.m.LoginWithEmail(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	select {
	case <-got:
		t.Fatal("callback after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"<nil>", "a@example.com", "<nil>"}, seen)
}
