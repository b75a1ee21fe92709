// Package session expone las operaciones de sesión de la aplicación (registro,
// login con email o proveedor, logout, reset, perfil) sobre un auth.Handle, y la
// suscripción a cambios de sesión.
package session

import (
	"context"
	"time"

	"github.com/dropDatabas3/hellodoc/auth"
	"github.com/dropDatabas3/hellodoc/errs"
	"github.com/dropDatabas3/hellodoc/internal/logger"
	"github.com/dropDatabas3/hellodoc/providers"
	"github.com/dropDatabas3/hellodoc/telemetry"
	"go.uber.org/zap"
)

// Profile: nil = no tocar, puntero a "" = borrar.
type Profile struct {
	DisplayName *string
	PhotoURL    *string
}

// Manager implementa las operaciones de sesión. Seguro para uso concurrente.
type Manager struct {
	handle     *auth.Handle
	backend    auth.Backend
	providers  *providers.Registry
	authorizer providers.Authorizer
	tel        *telemetry.Telemetry
	log        *zap.Logger
	now        func() time.Time
}

type Option func(*Manager)

func WithLogger(l *zap.Logger) Option              { return func(m *Manager) { m.log = l } }
func WithTelemetry(t *telemetry.Telemetry) Option  { return func(m *Manager) { m.tel = t } }
func WithProviders(r *providers.Registry) Option   { return func(m *Manager) { m.providers = r } }
func WithAuthorizer(a providers.Authorizer) Option { return func(m *Manager) { m.authorizer = a } }
func WithClock(now func() time.Time) Option        { return func(m *Manager) { m.now = now } }

// New crea el Manager sobre h.
func New(h *auth.Handle, opts ...Option) *Manager {
	m := &Manager{handle: h, backend: h.Backend(), now: time.Now}
	for _, o := range opts {
		o(m)
	}
	m.log = logger.Or(m.log, "session")
	if m.providers == nil {
		m.providers = providers.NewRegistry(providers.Config{})
	}
	h.Listen(func(k auth.ChangeKind, u *auth.User) {
		m.tel.SessionTransition(string(k), u != nil)
		if u != nil {
			m.log.Debug("session change", logger.Event(string(k)), logger.UserID(u.UID))
		} else {
			m.log.Debug("session change", logger.Event(string(k)))
		}
	})
	return m
}

// Handle devuelve el auth.Handle subyacente.
func (m *Manager) Handle() *auth.Handle { return m.handle }

func (m *Manager) fail(op string, err error) error {
	n := errs.Normalize(op, err)
	m.tel.ObserveAuth(op, telemetry.ResultError, errs.CodeOf(n))
	m.log.Info("session operation failed", logger.Op(op), logger.Code(errs.CodeOf(n)), logger.Err(err))
	return n
}

func (m *Manager) ok(op string) { m.tel.ObserveAuth(op, telemetry.ResultOK, "") }

// token devuelve un ID token vigente o NoSession.
func (m *Manager) token(ctx context.Context, op string) (string, error) {
	tok, err := m.handle.IDToken(ctx)
	if err != nil {
		if errs.IsKind(err, errs.KindNoSession) {
			return "", errs.ErrNoSession.WithOp(op).WithMessage("no user is signed in")
		}
		return "", err
	}
	return tok, nil
}

// RegisterWithEmail crea la cuenta y deja la sesión iniciada.
func (m *Manager) RegisterWithEmail(ctx context.Context, email, password string) (*auth.User, error) {
	const op = "session.RegisterWithEmail"
	cred, err := m.backend.SignUp(ctx, email, password)
	if err != nil {
		return nil, m.fail(op, err)
	}
	m.handle.SignIn(cred)
	m.ok(op)
	m.log.Info("user registered", logger.UserID(cred.User.UID), logger.Email(email))
	return cred.User.Clone(), nil
}

// LoginWithEmail inicia sesión con email y contraseña. Reemplaza la sesión previa.
func (m *Manager) LoginWithEmail(ctx context.Context, email, password string) (*auth.User, error) {
	const op = "session.LoginWithEmail"
	cred, err := m.backend.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, m.fail(op, err)
	}
	m.handle.SignIn(cred)
	m.ok(op)
	return cred.User.Clone(), nil
}

// LoginWithProvider corre el flujo federado del proveedor indicado. Un proveedor
// desconocido o sin credenciales falla antes de cualquier llamada externa.
func (m *Manager) LoginWithProvider(ctx context.Context, providerID string) (*auth.User, error) {
	const op = "session.LoginWithProvider"
	strategy, err := m.providers.Resolve(providerID)
	if err != nil {
		return nil, m.fail(op, err)
	}
	if m.authorizer == nil {
		return nil, m.fail(op, errs.Configuration(op, "authorizer"))
	}
	id, err := strategy.Authenticate(ctx, m.authorizer)
	if err != nil {
		return nil, m.fail(op, err)
	}
	a := auth.IdPAssertion{
		ProviderID:    strategy.ID().ProviderID(),
		Subject:       id.Profile.Subject,
		Email:         id.Profile.Email,
		EmailVerified: id.Profile.EmailVerified,
		DisplayName:   id.Profile.Name,
		PhotoURL:      id.Profile.PictureURL,
		IDToken:       id.IDToken,
	}
	if id.Token != nil {
		a.AccessToken = id.Token.AccessToken
	}
	cred, err := m.backend.SignInWithIdP(ctx, a)
	if err != nil {
		return nil, m.fail(op, err)
	}
	m.handle.SignIn(cred)
	m.ok(op)
	m.log.Info("federated login", logger.UserID(cred.User.UID), logger.Provider(a.ProviderID))
	return cred.User.Clone(), nil
}

// Logout cierra la sesión. Sin sesión no hace nada.
func (m *Manager) Logout(_ context.Context) error {
	if m.handle.SignOut() {
		m.ok("session.Logout")
	}
	return nil
}

// SendVerificationEmail envía el correo de verificación al usuario actual.
func (m *Manager) SendVerificationEmail(ctx context.Context) error {
	const op = "session.SendVerificationEmail"
	tok, err := m.token(ctx, op)
	if err != nil {
		return m.fail(op, err)
	}
	if err := m.backend.SendOobCode(ctx, auth.OobVerifyEmail, "", tok); err != nil {
		return m.fail(op, err)
	}
	m.ok(op)
	return nil
}

// ResetPassword envía el correo de reseteo. No requiere sesión.
func (m *Manager) ResetPassword(ctx context.Context, email string) error {
	const op = "session.ResetPassword"
	if err := m.backend.SendOobCode(ctx, auth.OobPasswordReset, email, ""); err != nil {
		return m.fail(op, err)
	}
	m.ok(op)
	return nil
}

// ConfirmPasswordReset aplica el código recibido por correo.
func (m *Manager) ConfirmPasswordReset(ctx context.Context, code, newPassword string) error {
	const op = "session.ConfirmPasswordReset"
	if _, err := m.backend.ConfirmPasswordReset(ctx, code, newPassword); err != nil {
		return m.fail(op, err)
	}
	m.ok(op)
	return nil
}

// ApplyActionCode consume un código de verificación de email. Si hay sesión
// se relee el perfil para reflejar emailVerified.
func (m *Manager) ApplyActionCode(ctx context.Context, code string) error {
	const op = "session.ApplyActionCode"
	if err := m.backend.ApplyActionCode(ctx, code); err != nil {
		return m.fail(op, err)
	}
	m.ok(op)
	if tok, err := m.handle.IDToken(ctx); err == nil {
		if u, err := m.backend.Lookup(ctx, tok); err == nil {
			m.handle.UpdateUser(u)
		} else {
			m.log.Warn("profile reload failed", logger.Op(op), logger.Err(err))
		}
	}
	return nil
}

// UpdateProfile cambia nombre y/o foto del usuario actual.
func (m *Manager) UpdateProfile(ctx context.Context, p Profile) error {
	const op = "session.UpdateProfile"
	tok, err := m.token(ctx, op)
	if err != nil {
		return m.fail(op, err)
	}
	u, err := m.backend.UpdateProfile(ctx, tok, auth.ProfileUpdate{DisplayName: p.DisplayName, PhotoURL: p.PhotoURL})
	if err != nil {
		return m.fail(op, err)
	}
	m.handle.UpdateUser(u)
	m.ok(op)
	return nil
}

// UpdateEmail cambia el email del usuario actual.
func (m *Manager) UpdateEmail(ctx context.Context, email string) error {
	const op = "session.UpdateEmail"
	tok, err := m.token(ctx, op)
	if err != nil {
		return m.fail(op, err)
	}
	cred, err := m.backend.UpdateEmail(ctx, tok, email)
	if err != nil {
		return m.fail(op, err)
	}
	m.handle.Replace(cred)
	m.ok(op)
	return nil
}

// UpdatePassword cambia la contraseña del usuario actual.
func (m *Manager) UpdatePassword(ctx context.Context, password string) error {
	const op = "session.UpdatePassword"
	tok, err := m.token(ctx, op)
	if err != nil {
		return m.fail(op, err)
	}
	cred, err := m.backend.UpdatePassword(ctx, tok, password)
	if err != nil {
		return m.fail(op, err)
	}
	m.handle.Replace(cred)
	m.ok(op)
	return nil
}

// DeleteAccount borra la cuenta actual y cierra la sesión.
func (m *Manager) DeleteAccount(ctx context.Context) error {
	const op = "session.DeleteAccount"
	tok, err := m.token(ctx, op)
	if err != nil {
		return m.fail(op, err)
	}
	if err := m.backend.DeleteAccount(ctx, tok); err != nil {
		return m.fail(op, err)
	}
	m.handle.SignOut()
	m.ok(op)
	return nil
}

// IDToken devuelve un ID token vigente del usuario actual.
func (m *Manager) IDToken(ctx context.Context) (string, error) {
	const op = "session.IDToken"
	tok, err := m.token(ctx, op)
	if err != nil {
		return "", m.fail(op, err)
	}
	return tok, nil
}

// CurrentUser es una foto sincrónica de la sesión.
func (m *Manager) CurrentUser() (*auth.User, bool) { return m.handle.CurrentUser() }

// Subscribe registra un suscriptor. El primer evento es Initial con el estado
// actual; luego uno por transición, en orden. Se cancela con Cancel o con ctx.
func (m *Manager) Subscribe(ctx context.Context) *Subscription {
	s := newSubscription()
	s.detach = m.handle.ListenWithCurrent(
		func(k auth.ChangeKind, u *auth.User) {
			s.push(Event{Kind: EventKind(k), User: u.Clone(), At: m.now()})
		},
		func(u *auth.User) {
			s.push(Event{Kind: Initial, User: u, At: m.now()})
		},
	)
	m.tel.SubscriberDelta(1)
	s.onCancel = func() { m.tel.SubscriberDelta(-1) }
	s.bind(ctx)
	return s
}

// OnSessionChange invoca cb con el usuario actual (nil si no hay sesión) y luego
// en cada cambio. cb corre en una goroutine propia y no debe bloquear para siempre.
func (m *Manager) OnSessionChange(cb func(*auth.User)) (unsubscribe func()) {
	s := m.Subscribe(context.Background())
	go func() {
		for e := range s.Events() {
			cb(e.User)
		}
	}()
	return s.Cancel
}
