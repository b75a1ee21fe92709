package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dropDatabas3/hellodoc/errs"
	"github.com/dropDatabas3/hellodoc/internal/logger"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ChangeKind de la sesión.
type ChangeKind string

const (
	SignedIn       ChangeKind = "signed_in"
	SignedOut      ChangeKind = "signed_out"
	TokenRefreshed ChangeKind = "token_refreshed"
	UserUpdated    ChangeKind = "user_updated"
)

// Listener recibe cada cambio. Se invoca con el lock del Handle tomado, en el
// orden exacto de las transiciones: no debe bloquear ni llamar al Handle.
type Listener func(kind ChangeKind, u *User)

// refreshSkew: se refresca el ID token si vence dentro de este margen.
const refreshSkew = time.Minute

// Handle es la sesión autenticada actual sobre un Backend.
type Handle struct {
	backend Backend
	log     *zap.Logger
	now     func() time.Time

	mu        sync.RWMutex
	cred      *Credential
	listeners map[uint64]Listener
	nextID    uint64

	sf singleflight.Group
}

type HandleOption func(*Handle)

func WithHandleLogger(l *zap.Logger) HandleOption { return func(h *Handle) { h.log = l } }

// WithClock reemplaza time.Now (tests).
func WithClock(now func() time.Time) HandleOption { return func(h *Handle) { h.now = now } }

func NewHandle(b Backend, opts ...HandleOption) *Handle {
	h := &Handle{backend: b, now: time.Now, listeners: map[uint64]Listener{}}
	for _, o := range opts {
		o(h)
	}
	h.log = logger.Or(h.log, "auth")
	return h
}

func (h *Handle) Backend() Backend { return h.backend }

// CurrentUser devuelve una copia del usuario actual.
func (h *Handle) CurrentUser() (*User, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.cred == nil {
		return nil, false
	}
	return h.cred.User.Clone(), true
}

// Listen registra un listener. Devuelve la función para quitarlo (idempotente).
func (h *Handle) Listen(fn Listener) (remove func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	h.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.listeners, id)
			h.mu.Unlock()
		})
	}
}

// ListenWithCurrent registra fn y le entrega el estado actual de forma atómica:
// ninguna transición puede colarse entre el snapshot y el registro.
func (h *Handle) ListenWithCurrent(fn Listener, initial func(u *User)) (remove func()) {
	h.mu.Lock()
	var u *User
	if h.cred != nil {
		u = h.cred.User.Clone()
	}
	initial(u)
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	h.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.listeners, id)
			h.mu.Unlock()
		})
	}
}

// SignIn instala una credencial nueva (reemplaza la anterior) y notifica SignedIn.
func (h *Handle) SignIn(c *Credential) {
	h.set(c, SignedIn)
}

// SignOut borra la sesión. Devuelve false si no había sesión (no notifica).
func (h *Handle) SignOut() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cred == nil {
		return false
	}
	h.cred = nil
	h.notifyLocked(SignedOut, nil)
	return true
}

// Replace instala una credencial renovada (cambio de email/password) y notifica UserUpdated.
func (h *Handle) Replace(c *Credential) {
	h.set(c, UserUpdated)
}

// UpdateUser reemplaza el perfil conservando los tokens.
func (h *Handle) UpdateUser(u *User) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cred == nil || u == nil || h.cred.User.UID != u.UID {
		return
	}
	// copy-on-write: IDToken lee la credencial fuera del lock
	cc := *h.cred
	cc.User = *u
	h.cred = &cc
	h.notifyLocked(UserUpdated, u.Clone())
}

func (h *Handle) set(c *Credential, kind ChangeKind) {
	cc := *c
	if cc.ExpiresAt.IsZero() {
		cc.ExpiresAt = ExpiryFromIDToken(cc.IDToken)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cred = &cc
	h.notifyLocked(kind, cc.User.Clone())
}

func (h *Handle) notifyLocked(kind ChangeKind, u *User) {
	for _, l := range h.listeners {
		l(kind, u)
	}
}

// IDToken devuelve un ID token vigente, refrescándolo si está por vencer.
// Refreshes concurrentes se colapsan en uno solo.
func (h *Handle) IDToken(ctx context.Context) (string, error) {
	h.mu.RLock()
	cred := h.cred
	h.mu.RUnlock()
	if cred == nil {
		return "", errs.ErrNoSession.WithOp("auth.IDToken")
	}
	if cred.ExpiresAt.IsZero() || h.now().Add(refreshSkew).Before(cred.ExpiresAt) {
		return cred.IDToken, nil
	}

	v, err, _ := h.sf.Do(cred.RefreshToken, func() (any, error) {
		fresh, err := h.backend.Refresh(ctx, cred.RefreshToken)
		if err != nil {
			return nil, err
		}
		return fresh, nil
	})
	if err != nil {
		h.log.Warn("token refresh failed", logger.UserID(cred.User.UID), logger.Err(err))
		if isTerminal(err) {
			h.mu.Lock()
			if h.holdsLocked(cred) {
				h.cred = nil
				h.notifyLocked(SignedOut, nil)
			}
			h.mu.Unlock()
		}
		return "", err
	}
	fresh := v.(*Credential)
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.holdsLocked(cred) {
		// otro waiter ya instaló el resultado, o la sesión cambió mientras refrescábamos
		if h.cred == nil {
			return "", errs.ErrNoSession.WithOp("auth.IDToken")
		}
		return h.cred.IDToken, nil
	}
	cc := *fresh
	if cc.ExpiresAt.IsZero() {
		cc.ExpiresAt = ExpiryFromIDToken(cc.IDToken)
	}
	h.cred = &cc
	h.notifyLocked(TokenRefreshed, cc.User.Clone())
	return cc.IDToken, nil
}

// holdsLocked indica si la sesión actual sigue usando los tokens de cred.
// Un UpdateUser reemplaza el puntero pero conserva los tokens.
func (h *Handle) holdsLocked(cred *Credential) bool {
	return h.cred != nil && h.cred.RefreshToken == cred.RefreshToken && h.cred.IDToken == cred.IDToken
}

// isTerminal: el refresh token ya no sirve, la sesión debe cerrarse.
func isTerminal(err error) bool {
	var be *BackendError
	if !errors.As(err, &be) {
		return false
	}
	switch be.Code {
	case CodeTokenExpired, CodeUserDisabled, CodeUserNotFound, CodeInvalidCredential:
		return true
	}
	return false
}

// ExpiryFromIDToken lee el claim exp sin verificar la firma (el token lo verifica el backend).
func ExpiryFromIDToken(token string) time.Time {
	if token == "" {
		return time.Time{}
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
