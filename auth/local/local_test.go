package local

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dropDatabas3/hellodoc/auth"
	"github.com/dropDatabas3/hellodoc/errs"
	"github.com/dropDatabas3/hellodoc/internal/email"
	"github.com/dropDatabas3/hellodoc/internal/password"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newBackend(t *testing.T, mutate ...func(*Config)) (*Backend, *email.Outbox, *clock) {
	t.Helper()
	out := &email.Outbox{}
	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	cfg := Config{
		ProjectID:  "demo",
		SigningKey: []byte("test-signing-key"),
		Hash:       password.Fast,
		Mailer:     out,
		Clock:      clk.Now,
		ActionURL:  "https://demo.example.com/__/auth/action",
	}
	for _, m := range mutate {
		m(&cfg)
	}
	b, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b, out, clk
}

func codeOf(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	return errs.CodeOf(errs.Normalize("test", err))
}

// actionCodeFrom extrae el código del cuerpo de texto del correo.
func actionCodeFrom(t *testing.T, m email.Message) string {
	t.Helper()
	i := strings.Index(m.Text, "Code: ")
	require.GreaterOrEqual(t, i, 0, "no code in %q", m.Text)
	return strings.TrimSpace(m.Text[i+len("Code: "):])
}

func TestSignUpAndSignIn(t *testing.T) {
	b, _, _ := newBackend(t)
	ctx := context.Background()

	cred, err := b.SignUp(ctx, "Ana@Example.com", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, cred.User.UID)
	assert.Equal(t, "password", cred.User.ProviderID)
	assert.False(t, cred.User.EmailVerified)
	assert.NotEmpty(t, cred.IDToken)
	assert.NotEmpty(t, cred.RefreshToken)
	assert.WithinDuration(t, cred.ExpiresAt, auth.ExpiryFromIDToken(cred.IDToken), 0)

	again, err := b.SignInWithPassword(ctx, "ana@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, cred.User.UID, again.User.UID)

	u, err := b.Lookup(ctx, again.IDToken)
	require.NoError(t, err)
	assert.Equal(t, "Ana@Example.com", u.Email)
}

func TestSignUpErrors(t *testing.T) {
	b, _, _ := newBackend(t)
	ctx := context.Background()
	_, err := b.SignUp(ctx, "a@example.com", "secret1")
	require.NoError(t, err)

	_, err = b.SignUp(ctx, "A@example.com", "secret1")
	assert.Equal(t, auth.CodeEmailExists, codeOf(t, err))

	_, err = b.SignUp(ctx, "not-an-email", "secret1")
	assert.Equal(t, auth.CodeInvalidEmail, codeOf(t, err))

	_, err = b.SignUp(ctx, "b@example.com", "123")
	assert.Equal(t, auth.CodeWeakPassword, codeOf(t, err))
	var we *password.WeakError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, []password.Requirement{password.TooShort}, we.Missing)
	assert.Contains(t, err.Error(), "Password should be at least 6 characters")
}

func TestSignInErrors_Enumerable(t *testing.T) {
	b, _, _ := newBackend(t, func(c *Config) { c.Enumerable = true })
	ctx := context.Background()
	_, err := b.SignUp(ctx, "a@example.com", "secret1")
	require.NoError(t, err)

	_, err = b.SignInWithPassword(ctx, "a@example.com", "wrong-pass")
	assert.Equal(t, auth.CodeWrongPassword, codeOf(t, err))

	_, err = b.SignInWithPassword(ctx, "ghost@example.com", "secret1")
	assert.Equal(t, auth.CodeUserNotFound, codeOf(t, err))
}

func TestSignInErrors_EnumerationProtected(t *testing.T) {
	b, _, _ := newBackend(t)
	ctx := context.Background()
	_, err := b.SignUp(ctx, "a@example.com", "secret1")
	require.NoError(t, err)

	_, err = b.SignInWithPassword(ctx, "a@example.com", "wrong-pass")
	assert.Equal(t, auth.CodeInvalidCredential, codeOf(t, err))
	_, err = b.SignInWithPassword(ctx, "ghost@example.com", "secret1")
	assert.Equal(t, auth.CodeInvalidCredential, codeOf(t, err))
}

func TestDisabledUser(t *testing.T) {
	b, _, _ := newBackend(t)
	ctx := context.Background()
	cred, err := b.SignUp(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, b.SetDisabled(cred.User.UID, true))

	_, err = b.SignInWithPassword(ctx, "a@example.com", "secret1")
	assert.Equal(t, auth.CodeUserDisabled, codeOf(t, err))
	_, err = b.Refresh(ctx, cred.RefreshToken)
	assert.Equal(t, auth.CodeUserDisabled, codeOf(t, err))
}

func TestMethodDisabled(t *testing.T) {
	b, _, _ := newBackend(t, func(c *Config) {
		c.MethodOK = func(m string) bool { return m == "google" }
	})
	_, err := b.SignUp(context.Background(), "a@example.com", "secret1")
	assert.Equal(t, auth.CodeOperationNotAllow, codeOf(t, err))

	_, err = b.SignInWithIdP(context.Background(), auth.IdPAssertion{ProviderID: "github.com", Subject: "1"})
	assert.Equal(t, auth.CodeOperationNotAllow, codeOf(t, err))

	_, err = b.SignInWithIdP(context.Background(), auth.IdPAssertion{ProviderID: "google.com", Subject: "1"})
	assert.NoError(t, err)
}

func TestRefresh(t *testing.T) {
	b, _, clk := newBackend(t, func(c *Config) { c.IDTokenTTL = 10 * time.Minute })
	ctx := context.Background()
	cred, err := b.SignUp(ctx, "a@example.com", "secret1")
	require.NoError(t, err)

	clk.Advance(11 * time.Minute)
	_, err = b.Lookup(ctx, cred.IDToken)
	assert.Equal(t, auth.CodeTokenExpired, codeOf(t, err))

	fresh, err := b.Refresh(ctx, cred.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, cred.RefreshToken, fresh.RefreshToken)
	assert.True(t, fresh.ExpiresAt.After(cred.ExpiresAt))
	_, err = b.Lookup(ctx, fresh.IDToken)
	require.NoError(t, err)

	_, err = b.Refresh(ctx, "bogus")
	assert.Equal(t, auth.CodeTokenExpired, codeOf(t, err))
}

func TestLookup_RejectsForeignToken(t *testing.T) {
	b1, _, _ := newBackend(t)
	b2, _, _ := newBackend(t, func(c *Config) { c.SigningKey = []byte("other") })
	cred, err := b1.SignUp(context.Background(), "a@example.com", "secret1")
	require.NoError(t, err)
	_, err = b2.Lookup(context.Background(), cred.IDToken)
	assert.Equal(t, auth.CodeInvalidCredential, codeOf(t, err))
}

func TestUpdatePassword_InvalidatesOldTokens(t *testing.T) {
	b, _, _ := newBackend(t)
	ctx := context.Background()
	cred, err := b.SignUp(ctx, "a@example.com", "secret1")
	require.NoError(t, err)

	_, err = b.UpdatePassword(ctx, cred.IDToken, "1")
	assert.Equal(t, auth.CodeWeakPassword, codeOf(t, err))

	next, err := b.UpdatePassword(ctx, cred.IDToken, "secret2")
	require.NoError(t, err)

	_, err = b.Lookup(ctx, cred.IDToken)
	assert.Equal(t, auth.CodeTokenExpired, codeOf(t, err))
	_, err = b.Refresh(ctx, cred.RefreshToken)
	assert.Equal(t, auth.CodeTokenExpired, codeOf(t, err))
	_, err = b.Lookup(ctx, next.IDToken)
	assert.NoError(t, err)

	_, err = b.SignInWithPassword(ctx, "a@example.com", "secret2")
	assert.NoError(t, err)
}

func TestSensitiveOpsRequireRecentLogin(t *testing.T) {
	b, _, clk := newBackend(t, func(c *Config) { c.IDTokenTTL = time.Hour })
	ctx := context.Background()
	cred, err := b.SignUp(ctx, "a@example.com", "secret1")
	require.NoError(t, err)

	clk.Advance(10 * time.Minute)
	_, err = b.UpdatePassword(ctx, cred.IDToken, "secret2")
	assert.Equal(t, auth.CodeRequiresRecent, codeOf(t, err))
	_, err = b.UpdateEmail(ctx, cred.IDToken, "b@example.com")
	assert.Equal(t, auth.CodeRequiresRecent, codeOf(t, err))
	err = b.DeleteAccount(ctx, cred.IDToken)
	assert.Equal(t, auth.CodeRequiresRecent, codeOf(t, err))

	// un refresh no renueva auth_time
	fresh, err := b.Refresh(ctx, cred.RefreshToken)
	require.NoError(t, err)
	_, err = b.UpdatePassword(ctx, fresh.IDToken, "secret2")
	assert.Equal(t, auth.CodeRequiresRecent, codeOf(t, err))

	relog, err := b.SignInWithPassword(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	_, err = b.UpdatePassword(ctx, relog.IDToken, "secret2")
	assert.NoError(t, err)
}

func TestUpdateProfile(t *testing.T) {
	b, _, _ := newBackend(t)
	ctx := context.Background()
	cred, err := b.SignUp(ctx, "a@example.com", "secret1")
	require.NoError(t, err)

	name := "Ana"
	u, err := b.UpdateProfile(ctx, cred.IDToken, auth.ProfileUpdate{DisplayName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Ana", u.DisplayName)
	assert.Empty(t, u.PhotoURL)

	empty := ""
	u, err = b.UpdateProfile(ctx, cred.IDToken, auth.ProfileUpdate{DisplayName: &empty})
	require.NoError(t, err)
	assert.Empty(t, u.DisplayName)
}

func TestUpdateEmail(t *testing.T) {
	b, out, _ := newBackend(t)
	ctx := context.Background()
	cred, err := b.SignUp(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	_, err = b.SignUp(ctx, "taken@example.com", "secret1")
	require.NoError(t, err)

	_, err = b.UpdateEmail(ctx, cred.IDToken, "taken@example.com")
	assert.Equal(t, auth.CodeEmailExists, codeOf(t, err))
	_, err = b.UpdateEmail(ctx, cred.IDToken, "nope")
	assert.Equal(t, auth.CodeInvalidEmail, codeOf(t, err))

	next, err := b.UpdateEmail(ctx, cred.IDToken, "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", next.User.Email)
	assert.False(t, next.User.EmailVerified)

	_, ok := b.UserByEmail("a@example.com")
	assert.False(t, ok)
	_, ok = b.UserByEmail("NEW@example.com")
	assert.True(t, ok)

	notice, ok := out.Last("a@example.com")
	require.True(t, ok)
	assert.Contains(t, notice.Text, "new@example.com")
}

func TestVerifyEmailFlow(t *testing.T) {
	b, out, _ := newBackend(t)
	ctx := context.Background()
	cred, err := b.SignUp(ctx, "a@example.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, b.SendOobCode(ctx, auth.OobVerifyEmail, "", cred.IDToken))
	msg, ok := out.Last("a@example.com")
	require.True(t, ok)
	assert.Contains(t, msg.Text, "mode=verifyEmail")
	code := actionCodeFrom(t, msg)

	// un código de verificación no sirve para reset
	_, err = b.ConfirmPasswordReset(ctx, code, "secret2")
	assert.Equal(t, auth.CodeInvalidActionCode, codeOf(t, err))

	require.NoError(t, b.ApplyActionCode(ctx, code))
	u, _ := b.UserByEmail("a@example.com")
	assert.True(t, u.EmailVerified)

	// consumido
	err = b.ApplyActionCode(ctx, code)
	assert.Equal(t, auth.CodeInvalidActionCode, codeOf(t, err))
}

func TestPasswordResetFlow(t *testing.T) {
	b, out, clk := newBackend(t)
	ctx := context.Background()
	cred, err := b.SignUp(ctx, "a@example.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, b.SendOobCode(ctx, auth.OobPasswordReset, "a@example.com", ""))
	code := actionCodeFrom(t, mustLast(t, out, "a@example.com"))

	emailAddr, err := b.ConfirmPasswordReset(ctx, code, "secret2")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", emailAddr)

	// sesiones viejas invalidadas
	_, err = b.Refresh(ctx, cred.RefreshToken)
	assert.Equal(t, auth.CodeTokenExpired, codeOf(t, err))
	_, err = b.SignInWithPassword(ctx, "a@example.com", "secret2")
	assert.NoError(t, err)

	// código vencido
	require.NoError(t, b.SendOobCode(ctx, auth.OobPasswordReset, "a@example.com", ""))
	code = actionCodeFrom(t, mustLast(t, out, "a@example.com"))
	clk.Advance(2 * time.Hour)
	_, err = b.ConfirmPasswordReset(ctx, code, "secret3")
	assert.Equal(t, auth.CodeExpiredActionCode, codeOf(t, err))
}

func mustLast(t *testing.T, out *email.Outbox, to string) email.Message {
	t.Helper()
	m, ok := out.Last(to)
	require.True(t, ok, "no mail to %s", to)
	return m
}

func TestPasswordReset_UnknownEmail(t *testing.T) {
	ctx := context.Background()

	protected, out, _ := newBackend(t)
	assert.NoError(t, protected.SendOobCode(ctx, auth.OobPasswordReset, "ghost@example.com", ""))
	assert.Empty(t, out.Messages())

	open, _, _ := newBackend(t, func(c *Config) { c.Enumerable = true })
	err := open.SendOobCode(ctx, auth.OobPasswordReset, "ghost@example.com", "")
	assert.Equal(t, auth.CodeUserNotFound, codeOf(t, err))

	err = open.SendOobCode(ctx, auth.OobPasswordReset, "bad", "")
	assert.Equal(t, auth.CodeInvalidEmail, codeOf(t, err))
}

func TestSignInWithIdP(t *testing.T) {
	b, _, _ := newBackend(t)
	ctx := context.Background()

	a := auth.IdPAssertion{ProviderID: "github.com", Subject: "42", Email: "gh@example.com", EmailVerified: true, DisplayName: "GH"}
	first, err := b.SignInWithIdP(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "github.com", first.User.ProviderID)
	assert.True(t, first.User.EmailVerified)

	second, err := b.SignInWithIdP(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, first.User.UID, second.User.UID)

	_, err = b.SignInWithIdP(ctx, auth.IdPAssertion{ProviderID: "github.com"})
	assert.Equal(t, auth.CodeInvalidCredential, codeOf(t, err))
}

func TestSignInWithIdP_ExistingEmail(t *testing.T) {
	b, _, _ := newBackend(t)
	ctx := context.Background()
	pw, err := b.SignUp(ctx, "a@example.com", "secret1")
	require.NoError(t, err)

	_, err = b.SignInWithIdP(ctx, auth.IdPAssertion{ProviderID: "facebook.com", Subject: "fb1", Email: "a@example.com"})
	assert.Equal(t, auth.CodeAccountExistsOther, codeOf(t, err))

	linked, err := b.SignInWithIdP(ctx, auth.IdPAssertion{ProviderID: "google.com", Subject: "g1", Email: "a@example.com", EmailVerified: true})
	require.NoError(t, err)
	assert.Equal(t, pw.User.UID, linked.User.UID)

	// la contraseña sigue funcionando
	_, err = b.SignInWithPassword(ctx, "a@example.com", "secret1")
	assert.NoError(t, err)
}

func TestDeleteAccount(t *testing.T) {
	b, _, _ := newBackend(t)
	ctx := context.Background()
	cred, err := b.SignUp(ctx, "a@example.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, b.DeleteAccount(ctx, cred.IDToken))
	_, ok := b.UserByEmail("a@example.com")
	assert.False(t, ok)
	_, err = b.Refresh(ctx, cred.RefreshToken)
	assert.Equal(t, auth.CodeUserNotFound, codeOf(t, err))

	// el email queda libre
	_, err = b.SignUp(ctx, "a@example.com", "secret1")
	assert.NoError(t, err)
}

func TestValidEmail(t *testing.T) {
	for in, want := range map[string]bool{
		"a@example.com":         true,
		"a.b+c@sub.example.org": true,
		"":                      false,
		"a@b":                   false,
		"Ana <a@example.com>":   false,
		"no-at.example.com":     false,
	} {
		assert.Equal(t, want, validEmail(in), in)
	}
}
