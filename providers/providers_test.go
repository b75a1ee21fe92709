package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/dropDatabas3/hellodoc/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

func TestParse(t *testing.T) {
	for _, in := range []string{"google", "facebook", "github", "twitter", " GitHub "} {
		_, err := Parse(in)
		assert.NoError(t, err, in)
	}
	for _, in := range []string{"", "linkedin", "apple", "google.com"} {
		_, err := Parse(in)
		assert.True(t, errs.IsKind(err, errs.KindUnsupportedProvider), "input %q: %v", in, err)
	}
	assert.Equal(t, "github.com", GitHub.ProviderID())
}

func TestRegistry_LookupAndConfigured(t *testing.T) {
	r := NewRegistry(Config{GitHub: Credentials{ClientID: "gh"}, Google: Credentials{ClientID: "g"}})

	s, err := r.Resolve("github")
	require.NoError(t, err)
	assert.Equal(t, GitHub, s.ID())
	assert.Equal(t, []string{"read:user", "user:email"}, s.OAuth2().Scopes)

	_, err = r.Lookup(Twitter)
	assert.True(t, errs.IsKind(err, errs.KindUnsupportedProvider))
	_, err = r.Lookup(ID("myspace"))
	assert.True(t, errs.IsKind(err, errs.KindUnsupportedProvider))
	_, err = r.Resolve("myspace")
	assert.True(t, errs.IsKind(err, errs.KindUnsupportedProvider))

	assert.Equal(t, []ID{Google, GitHub}, r.Configured())
}

// fakeProvider levanta token + userinfo endpoints.
func fakeProvider(t *testing.T, profile any, emails any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.Form.Get("code") != "the-code" || r.Form.Get("code_verifier") == "" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-123", "token_type": "bearer", "expires_in": 3600, "id_token": "idt-xyz",
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-123" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(profile)
	})
	mux.HandleFunc("/emails", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(emails)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testStrategy(id ID, srv *httptest.Server) *Strategy {
	return NewStrategy(id, Credentials{ClientID: "cid", ClientSecret: "secret"},
		WithEndpoint(oauth2.Endpoint{AuthURL: srv.URL + "/authorize", TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams}),
		WithProfileURL(srv.URL+"/userinfo"),
		WithEmailsURL(srv.URL+"/emails"),
	)
}

// headless simula al usuario aprobando en el proveedor.
func headless(t *testing.T) Authorizer {
	return AuthorizerFunc(func(_ context.Context, buildURL func(string) string, state string) (string, string, error) {
		u, err := url.Parse(buildURL("http://127.0.0.1:9999/callback"))
		require.NoError(t, err)
		q := u.Query()
		assert.Equal(t, "S256", q.Get("code_challenge_method"))
		assert.NotEmpty(t, q.Get("code_challenge"))
		assert.Equal(t, state, q.Get("state"))
		assert.Equal(t, "http://127.0.0.1:9999/callback", q.Get("redirect_uri"))
		return "the-code", q.Get("redirect_uri"), nil
	})
}

func TestAuthenticate_Google(t *testing.T) {
	srv := fakeProvider(t, map[string]any{
		"sub": "g-1", "email": "ana@example.com", "email_verified": true, "name": "Ana", "picture": "https://pic",
	}, nil)

	id, err := testStrategy(Google, srv).Authenticate(context.Background(), headless(t))
	require.NoError(t, err)
	assert.Equal(t, Google, id.Provider)
	assert.Equal(t, "at-123", id.Token.AccessToken)
	assert.Equal(t, "idt-xyz", id.IDToken)
	assert.Equal(t, &Profile{
		Subject: "g-1", Email: "ana@example.com", EmailVerified: true, Name: "Ana", PictureURL: "https://pic",
		Raw: id.Profile.Raw,
	}, id.Profile)
}

func TestAuthenticate_GitHubEmailFallback(t *testing.T) {
	srv := fakeProvider(t,
		map[string]any{"id": 42, "login": "octo", "avatar_url": "https://a"},
		[]map[string]any{
			{"email": "other@example.com", "primary": false, "verified": true},
			{"email": "octo@example.com", "primary": true, "verified": true},
		})

	id, err := testStrategy(GitHub, srv).Authenticate(context.Background(), headless(t))
	require.NoError(t, err)
	assert.Equal(t, "42", id.Profile.Subject)
	assert.Equal(t, "octo", id.Profile.Name)
	assert.Equal(t, "octo@example.com", id.Profile.Email)
	assert.True(t, id.Profile.EmailVerified)
}

func TestAuthenticate_ExchangeFailure(t *testing.T) {
	srv := fakeProvider(t, map[string]any{"sub": "x"}, nil)
	bad := AuthorizerFunc(func(_ context.Context, buildURL func(string) string, _ string) (string, string, error) {
		return "wrong-code", "http://127.0.0.1:9999/callback", nil
	})
	_, err := testStrategy(Google, srv).Authenticate(context.Background(), bad)
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CodeInvalidCredential, pe.ErrorCode())
	assert.Equal(t, "Invalid credentials", errs.Message(pe.ErrorCode(), ""))
}

func TestParseProfile_FacebookTwitter(t *testing.T) {
	fb := parseProfile(Facebook, map[string]any{
		"id": "fb-1", "name": "Bo", "email": "bo@example.com",
		"picture": map[string]any{"data": map[string]any{"url": "https://fb/pic"}},
	})
	assert.Equal(t, "fb-1", fb.Subject)
	assert.Equal(t, "https://fb/pic", fb.PictureURL)
	assert.True(t, fb.EmailVerified)

	tw := parseProfile(Twitter, map[string]any{"data": map[string]any{"id": "tw-1", "name": "Cy", "profile_image_url": "https://tw"}})
	assert.Equal(t, "tw-1", tw.Subject)
	assert.Empty(t, tw.Email)
}

func callbackFrom(t *testing.T, authURL string, mutate func(q url.Values)) int {
	u, err := url.Parse(authURL)
	if !assert.NoError(t, err) {
		return 0
	}
	cb, err := url.Parse(u.Query().Get("redirect_uri"))
	if !assert.NoError(t, err) {
		return 0
	}
	q := url.Values{"state": {u.Query().Get("state")}, "code": {"loop-code"}}
	if mutate != nil {
		mutate(q)
	}
	cb.RawQuery = q.Encode()
	resp, err := http.Get(cb.String())
	if !assert.NoError(t, err) {
		return 0
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestLoopbackAuthorizer_Success(t *testing.T) {
	s := NewStrategy(Google, Credentials{ClientID: "cid"})
	a := &LoopbackAuthorizer{Log: zap.NewNop()}
	a.Open = func(u string) error {
		go callbackFrom(t, u, nil)
		return nil
	}
	code, redirect, err := a.Authorize(context.Background(), func(r string) string {
		return s.AuthCodeURL("st-1", oauth2.GenerateVerifier(), r)
	}, "st-1")
	require.NoError(t, err)
	assert.Equal(t, "loop-code", code)
	assert.Contains(t, redirect, "http://127.0.0.1:")
}

func TestLoopbackAuthorizer_Denied(t *testing.T) {
	s := NewStrategy(Google, Credentials{ClientID: "cid"})
	a := &LoopbackAuthorizer{Log: zap.NewNop()}
	a.Open = func(u string) error {
		go callbackFrom(t, u, func(q url.Values) { q.Del("code"); q.Set("error", "access_denied") })
		return nil
	}
	_, _, err := a.Authorize(context.Background(), func(r string) string {
		return s.AuthCodeURL("st-1", oauth2.GenerateVerifier(), r)
	}, "st-1")
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CodeCancelled, pe.Code)
}

func TestLoopbackAuthorizer_ForgedStateDoesNotEndLogin(t *testing.T) {
	s := NewStrategy(Google, Credentials{ClientID: "cid"})
	a := &LoopbackAuthorizer{Log: zap.NewNop()}
	sent := make(chan struct{})
	a.Open = func(u string) error {
		go func() {
			defer close(sent)
			assert.Equal(t, http.StatusBadRequest, callbackFrom(t, u, func(q url.Values) { q.Set("state", "forged") }))
			assert.Equal(t, http.StatusBadRequest, callbackFrom(t, u, func(q url.Values) {
				q.Set("state", "forged")
				q.Set("error", "access_denied")
			}))
			assert.Equal(t, http.StatusOK, callbackFrom(t, u, nil))
		}()
		return nil
	}
	code, _, err := a.Authorize(context.Background(), func(r string) string {
		return s.AuthCodeURL("st-1", oauth2.GenerateVerifier(), r)
	}, "st-1")
	require.NoError(t, err)
	assert.Equal(t, "loop-code", code)
	<-sent
}

func TestLoopbackAuthorizer_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	a := &LoopbackAuthorizer{Log: zap.NewNop(), Open: func(string) error { return nil }}
	_, _, err := a.Authorize(ctx, func(r string) string { return "http://example.invalid/?redirect_uri=" + r }, "s")
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CodePopupClosed, pe.Code)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
