// Package local es un backend de identidad en proceso: cuentas email/password,
// cuentas federadas, ID tokens JWT (HS256), refresh tokens opacos y códigos de acción
// enviados por correo. Sirve para desarrollo, tests y despliegues single-node.
package local

import (
	"context"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/hellodoc/auth"
	"github.com/dropDatabas3/hellodoc/internal/email"
	"github.com/dropDatabas3/hellodoc/internal/logger"
	"github.com/dropDatabas3/hellodoc/internal/password"
	"github.com/dropDatabas3/hellodoc/internal/tokens"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Config del backend local.
type Config struct {
	ProjectID  string
	AppName    string
	SigningKey []byte // HS256; vacío => clave aleatoria por proceso

	IDTokenTTL      time.Duration
	RefreshTokenTTL time.Duration
	VerifyTTL       time.Duration
	ResetTTL        time.Duration
	// RecentLogin: ventana en la que se permiten operaciones sensibles sin re-login.
	RecentLogin time.Duration

	Policy     password.Policy
	Hash       password.Params
	MethodOK   func(method string) bool // nil => todos habilitados
	Enumerable bool                     // false => protección contra enumeración de emails

	Mailer    email.Sender
	ActionURL string // base de los links de acción

	Clock  func() time.Time
	Logger *zap.Logger
}

type account struct {
	user   auth.User
	pwHash string
	gen    int // se incrementa al cambiar credenciales: invalida tokens viejos
	idps   map[string]string
}

// Backend implementa auth.Backend.
type Backend struct {
	cfg Config
	log *zap.Logger

	mu      sync.RWMutex
	users   map[string]*account // uid -> account
	byEmail map[string]string   // email normalizado -> uid
	byIdP   map[string]string   // provider|subject -> uid

	refresh *gocache.Cache // hash(refresh token) -> refreshEntry
	codes   *gocache.Cache // hash(oob code) -> actionCode
}

var _ auth.Backend = (*Backend)(nil)

// New crea el backend con defaults razonables.
func New(cfg Config) (*Backend, error) {
	if cfg.IDTokenTTL == 0 {
		cfg.IDTokenTTL = time.Hour
	}
	if cfg.RefreshTokenTTL == 0 {
		cfg.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if cfg.VerifyTTL == 0 {
		cfg.VerifyTTL = 72 * time.Hour
	}
	if cfg.ResetTTL == 0 {
		cfg.ResetTTL = time.Hour
	}
	if cfg.RecentLogin == 0 {
		cfg.RecentLogin = 5 * time.Minute
	}
	if cfg.Policy == (password.Policy{}) {
		cfg.Policy = password.DefaultPolicy
	}
	if cfg.Hash == (password.Params{}) {
		cfg.Hash = password.Default
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.AppName == "" {
		cfg.AppName = cfg.ProjectID
	}
	if len(cfg.SigningKey) == 0 {
		k, err := tokens.Opaque(32)
		if err != nil {
			return nil, err
		}
		cfg.SigningKey = []byte(k)
	}
	log := logger.Or(cfg.Logger, "auth.local")
	if cfg.Mailer == nil {
		cfg.Mailer = email.LogSender{Log: log}
	}
	return &Backend{
		cfg:     cfg,
		log:     log,
		users:   map[string]*account{},
		byEmail: map[string]string{},
		byIdP:   map[string]string{},
		refresh: gocache.New(cfg.RefreshTokenTTL, 10*time.Minute),
		codes:   gocache.New(cfg.ResetTTL, 10*time.Minute),
	}, nil
}

func (b *Backend) now() time.Time { return b.cfg.Clock() }

func (b *Backend) methodOK(method string) bool {
	return b.cfg.MethodOK == nil || b.cfg.MethodOK(method)
}

func normEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

func validEmail(e string) bool {
	if e == "" || strings.ContainsAny(e, " <>") {
		return false
	}
	addr, err := mail.ParseAddress(e)
	return err == nil && addr.Address == e && strings.Contains(e[strings.LastIndex(e, "@"):], ".")
}

func (b *Backend) checkPassword(pw string) error {
	if err := b.cfg.Policy.Check(pw); err != nil {
		return &auth.BackendError{Code: auth.CodeWeakPassword, Message: err.Error(), Err: err}
	}
	return nil
}

// SignUp crea una cuenta email/password y devuelve la sesión.
func (b *Backend) SignUp(_ context.Context, emailAddr, pw string) (*auth.Credential, error) {
	if !b.methodOK("password") {
		return nil, auth.NewError(auth.CodeOperationNotAllow, "password sign-in is disabled")
	}
	if !validEmail(emailAddr) {
		return nil, auth.NewError(auth.CodeInvalidEmail, "INVALID_EMAIL")
	}
	if err := b.checkPassword(pw); err != nil {
		return nil, err
	}
	hash, err := password.Hash(b.cfg.Hash, pw)
	if err != nil {
		return nil, &auth.BackendError{Code: auth.CodeInternal, Message: "hash password", Err: err}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	key := normEmail(emailAddr)
	if _, exists := b.byEmail[key]; exists {
		return nil, auth.NewError(auth.CodeEmailExists, "EMAIL_EXISTS")
	}
	now := b.now()
	acc := &account{
		user: auth.User{
			UID:         uuid.NewString(),
			Email:       emailAddr,
			ProviderID:  "password",
			CreatedAt:   now,
			LastLoginAt: now,
		},
		pwHash: hash,
		idps:   map[string]string{},
	}
	b.users[acc.user.UID] = acc
	b.byEmail[key] = acc.user.UID
	b.log.Info("account created", logger.UserID(acc.user.UID), logger.Email(emailAddr))
	return b.issueLocked(acc, now)
}

// SignInWithPassword valida credenciales.
func (b *Backend) SignInWithPassword(_ context.Context, emailAddr, pw string) (*auth.Credential, error) {
	if !b.methodOK("password") {
		return nil, auth.NewError(auth.CodeOperationNotAllow, "password sign-in is disabled")
	}
	if !validEmail(emailAddr) {
		return nil, auth.NewError(auth.CodeInvalidEmail, "INVALID_EMAIL")
	}

	b.mu.RLock()
	uid, ok := b.byEmail[normEmail(emailAddr)]
	var acc *account
	if ok {
		acc = b.users[uid]
	}
	var hash string
	if acc != nil {
		hash = acc.pwHash
	}
	b.mu.RUnlock()

	if acc == nil {
		if !b.cfg.Enumerable {
			return nil, auth.NewError(auth.CodeInvalidCredential, "INVALID_LOGIN_CREDENTIALS")
		}
		return nil, auth.NewError(auth.CodeUserNotFound, "EMAIL_NOT_FOUND")
	}
	// argon2 fuera del lock
	if hash == "" || !password.Verify(pw, hash) {
		if !b.cfg.Enumerable {
			return nil, auth.NewError(auth.CodeInvalidCredential, "INVALID_LOGIN_CREDENTIALS")
		}
		return nil, auth.NewError(auth.CodeWrongPassword, "INVALID_PASSWORD")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok = b.users[uid]
	if !ok {
		return nil, auth.NewError(auth.CodeUserNotFound, "EMAIL_NOT_FOUND")
	}
	if acc.user.Disabled {
		return nil, auth.NewError(auth.CodeUserDisabled, "USER_DISABLED")
	}
	now := b.now()
	acc.user.LastLoginAt = now
	return b.issueLocked(acc, now)
}

// SignInWithIdP crea o recupera la cuenta federada.
func (b *Backend) SignInWithIdP(_ context.Context, a auth.IdPAssertion) (*auth.Credential, error) {
	method := strings.TrimSuffix(a.ProviderID, ".com")
	if !b.methodOK(method) {
		return nil, auth.NewError(auth.CodeOperationNotAllow, a.ProviderID+" sign-in is disabled")
	}
	if a.ProviderID == "" || a.Subject == "" {
		return nil, auth.NewError(auth.CodeInvalidCredential, "INVALID_IDP_RESPONSE")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	idpKey := a.ProviderID + "|" + a.Subject

	if uid, ok := b.byIdP[idpKey]; ok {
		acc := b.users[uid]
		if acc.user.Disabled {
			return nil, auth.NewError(auth.CodeUserDisabled, "USER_DISABLED")
		}
		acc.user.LastLoginAt = now
		return b.issueLocked(acc, now)
	}

	if a.Email != "" {
		if uid, ok := b.byEmail[normEmail(a.Email)]; ok {
			acc := b.users[uid]
			// sólo se vincula automáticamente con un email verificado por el proveedor
			if !a.EmailVerified {
				return nil, auth.NewError(auth.CodeAccountExistsOther, "FEDERATED_USER_ID_ALREADY_LINKED")
			}
			if acc.user.Disabled {
				return nil, auth.NewError(auth.CodeUserDisabled, "USER_DISABLED")
			}
			acc.idps[a.ProviderID] = a.Subject
			b.byIdP[idpKey] = uid
			acc.user.EmailVerified = true
			acc.user.ProviderID = a.ProviderID
			acc.user.LastLoginAt = now
			return b.issueLocked(acc, now)
		}
	}

	acc := &account{
		user: auth.User{
			UID:           uuid.NewString(),
			Email:         a.Email,
			DisplayName:   a.DisplayName,
			PhotoURL:      a.PhotoURL,
			EmailVerified: a.EmailVerified,
			ProviderID:    a.ProviderID,
			CreatedAt:     now,
			LastLoginAt:   now,
		},
		idps: map[string]string{a.ProviderID: a.Subject},
	}
	b.users[acc.user.UID] = acc
	b.byIdP[idpKey] = acc.user.UID
	if a.Email != "" {
		b.byEmail[normEmail(a.Email)] = acc.user.UID
	}
	b.log.Info("federated account created", logger.UserID(acc.user.UID), logger.Provider(a.ProviderID))
	return b.issueLocked(acc, now)
}

// Lookup devuelve el usuario del token.
func (b *Backend) Lookup(_ context.Context, idToken string) (*auth.User, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	acc, _, err := b.verifyLocked(idToken)
	if err != nil {
		return nil, err
	}
	return acc.user.Clone(), nil
}

// UpdateProfile cambia nombre y/o foto.
func (b *Backend) UpdateProfile(_ context.Context, idToken string, u auth.ProfileUpdate) (*auth.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, _, err := b.verifyLocked(idToken)
	if err != nil {
		return nil, err
	}
	if u.DisplayName != nil {
		acc.user.DisplayName = *u.DisplayName
	}
	if u.PhotoURL != nil {
		acc.user.PhotoURL = *u.PhotoURL
	}
	return acc.user.Clone(), nil
}

// UpdateEmail cambia el email (queda sin verificar) y avisa a la dirección anterior.
func (b *Backend) UpdateEmail(ctx context.Context, idToken, newEmail string) (*auth.Credential, error) {
	if !validEmail(newEmail) {
		return nil, auth.NewError(auth.CodeInvalidEmail, "INVALID_EMAIL")
	}
	b.mu.Lock()
	acc, claims, err := b.verifyLocked(idToken)
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}
	if err := b.requireRecentLocked(claims); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	key := normEmail(newEmail)
	if uid, exists := b.byEmail[key]; exists && uid != acc.user.UID {
		b.mu.Unlock()
		return nil, auth.NewError(auth.CodeEmailExists, "EMAIL_EXISTS")
	}
	old := acc.user.Email
	if old != "" {
		delete(b.byEmail, normEmail(old))
	}
	b.byEmail[key] = acc.user.UID
	acc.user.Email = newEmail
	acc.user.EmailVerified = false
	acc.gen++
	cred, err := b.issueLocked(acc, claims.authTime())
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if old != "" && normEmail(old) != key {
		msg, rerr := email.Render(email.KindEmailChanged, old, email.ActionData{AppName: b.cfg.AppName, Email: newEmail})
		if rerr == nil {
			if serr := b.cfg.Mailer.Send(ctx, msg); serr != nil {
				b.log.Warn("email change notice not delivered", logger.UserID(acc.user.UID), logger.Err(serr))
			}
		}
	}
	return cred, nil
}

// UpdatePassword cambia la contraseña e invalida los tokens previos.
func (b *Backend) UpdatePassword(_ context.Context, idToken, pw string) (*auth.Credential, error) {
	if err := b.checkPassword(pw); err != nil {
		return nil, err
	}
	hash, err := password.Hash(b.cfg.Hash, pw)
	if err != nil {
		return nil, &auth.BackendError{Code: auth.CodeInternal, Message: "hash password", Err: err}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, claims, err := b.verifyLocked(idToken)
	if err != nil {
		return nil, err
	}
	if err := b.requireRecentLocked(claims); err != nil {
		return nil, err
	}
	acc.pwHash = hash
	acc.gen++
	return b.issueLocked(acc, claims.authTime())
}

// DeleteAccount borra la cuenta del token.
func (b *Backend) DeleteAccount(_ context.Context, idToken string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, claims, err := b.verifyLocked(idToken)
	if err != nil {
		return err
	}
	if err := b.requireRecentLocked(claims); err != nil {
		return err
	}
	b.removeLocked(acc)
	b.log.Info("account deleted", logger.UserID(acc.user.UID))
	return nil
}

func (b *Backend) removeLocked(acc *account) {
	delete(b.users, acc.user.UID)
	if acc.user.Email != "" {
		delete(b.byEmail, normEmail(acc.user.Email))
	}
	for p, sub := range acc.idps {
		delete(b.byIdP, p+"|"+sub)
	}
}

// SetDisabled habilita/deshabilita una cuenta (operación administrativa).
func (b *Backend) SetDisabled(uid string, disabled bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.users[uid]
	if !ok {
		return auth.NewError(auth.CodeUserNotFound, "USER_NOT_FOUND")
	}
	acc.user.Disabled = disabled
	if disabled {
		acc.gen++
	}
	return nil
}

// UserByEmail es una consulta administrativa.
func (b *Backend) UserByEmail(emailAddr string) (*auth.User, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	uid, ok := b.byEmail[normEmail(emailAddr)]
	if !ok {
		return nil, false
	}
	return b.users[uid].user.Clone(), true
}

// Close libera los caches.
func (b *Backend) Close() error {
	b.refresh.Flush()
	b.codes.Flush()
	return nil
}
