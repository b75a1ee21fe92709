// Package auth define el contrato con el backend de identidad y el Handle que
// mantiene la sesión actual (credencial, refresh de tokens, notificación de cambios).
package auth

import (
	"context"
	"time"
)

// User es el perfil visible del usuario autenticado.
type User struct {
	UID           string    `json:"uid"`
	Email         string    `json:"email,omitempty"`
	DisplayName   string    `json:"displayName,omitempty"`
	PhotoURL      string    `json:"photoURL,omitempty"`
	EmailVerified bool      `json:"emailVerified"`
	ProviderID    string    `json:"providerId"` // "password", "google.com", ...
	Disabled      bool      `json:"disabled,omitempty"`
	CreatedAt     time.Time `json:"createdAt,omitempty"`
	LastLoginAt   time.Time `json:"lastLoginAt,omitempty"`
}

// Clone devuelve una copia (nil-safe).
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// Credential es lo que devuelve el backend en un sign-in exitoso.
type Credential struct {
	User         User
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
}

// IdPAssertion es la prueba de identidad federada que se presenta al backend.
type IdPAssertion struct {
	ProviderID    string // "google.com", "github.com"...
	Subject       string
	Email         string
	EmailVerified bool
	DisplayName   string
	PhotoURL      string
	AccessToken   string
	IDToken       string
}

// ProfileUpdate: nil = no tocar, puntero a "" = borrar.
type ProfileUpdate struct {
	DisplayName *string
	PhotoURL    *string
}

// OobKind es el tipo de código out-of-band (correo de acción).
type OobKind string

const (
	OobVerifyEmail   OobKind = "VERIFY_EMAIL"
	OobPasswordReset OobKind = "PASSWORD_RESET"
)

// Backend es el servicio de identidad remoto. Los errores deben implementar
// ErrorCode() string con códigos auth/* (ver BackendError).
type Backend interface {
	SignUp(ctx context.Context, email, password string) (*Credential, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Credential, error)
	SignInWithIdP(ctx context.Context, a IdPAssertion) (*Credential, error)
	Refresh(ctx context.Context, refreshToken string) (*Credential, error)
	Lookup(ctx context.Context, idToken string) (*User, error)

	// SendOobCode: idToken requerido para VERIFY_EMAIL, email para PASSWORD_RESET.
	SendOobCode(ctx context.Context, kind OobKind, email, idToken string) error
	ConfirmPasswordReset(ctx context.Context, code, newPassword string) (email string, err error)
	ApplyActionCode(ctx context.Context, code string) error

	UpdateProfile(ctx context.Context, idToken string, u ProfileUpdate) (*User, error)
	// UpdateEmail / UpdatePassword devuelven credencial nueva (los tokens viejos se invalidan).
	UpdateEmail(ctx context.Context, idToken, email string) (*Credential, error)
	UpdatePassword(ctx context.Context, idToken, password string) (*Credential, error)
	DeleteAccount(ctx context.Context, idToken string) error

	Close() error
}

// Códigos de error de backend.
const (
	CodeEmailExists        = "auth/email-already-in-use"
	CodeInvalidEmail       = "auth/invalid-email"
	CodeOperationNotAllow  = "auth/operation-not-allowed"
	CodeWeakPassword       = "auth/weak-password"
	CodeUserDisabled       = "auth/user-disabled"
	CodeUserNotFound       = "auth/user-not-found"
	CodeWrongPassword      = "auth/wrong-password"
	CodeInvalidCredential  = "auth/invalid-credential"
	CodeTooManyRequests    = "auth/too-many-requests"
	CodeTokenExpired       = "auth/user-token-expired"
	CodeRequiresRecent     = "auth/requires-recent-login"
	CodeExpiredActionCode  = "auth/expired-action-code"
	CodeInvalidActionCode  = "auth/invalid-action-code"
	CodeAccountExistsOther = "auth/account-exists-with-different-credential"
	CodeNetwork            = "auth/network-request-failed"
	CodeInternal           = "auth/internal-error"
)

// BackendError es el error tipado que devuelven los backends.
type BackendError struct {
	Code    string
	Message string
	Err     error
}

func NewError(code, msg string) *BackendError { return &BackendError{Code: code, Message: msg} }

func (e *BackendError) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}
func (e *BackendError) Unwrap() error        { return e.Err }
func (e *BackendError) ErrorCode() string    { return e.Code }
func (e *BackendError) ErrorMessage() string { return e.Message }
