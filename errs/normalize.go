package errs

import "errors"

// coder lo implementan los errores de backend que exponen un código (auth/*).
type coder interface {
	ErrorCode() string
}

// messager permite al backend exponer su mensaje crudo sin el código.
type messager interface {
	ErrorMessage() string
}

var messages = map[string]string{
	"auth/email-already-in-use":                     "This email is already registered",
	"auth/invalid-email":                            "Invalid email format",
	"auth/operation-not-allowed":                    "Operation not allowed",
	"auth/weak-password":                            "Password is too weak",
	"auth/user-disabled":                            "This user account has been disabled",
	"auth/user-not-found":                           "User not found",
	"auth/wrong-password":                           "Invalid password",
	"auth/invalid-credential":                       "Invalid credentials",
	"auth/too-many-requests":                        "Too many attempts, try again later",
	"auth/network-request-failed":                   "Network error, check your connection",
	"auth/requires-recent-login":                    "Please sign in again to continue",
	"auth/popup-closed-by-user":                     "Sign-in was cancelled",
	"auth/cancelled-popup-request":                  "Sign-in was cancelled",
	"auth/account-exists-with-different-credential": "An account already exists with a different sign-in method",
	"auth/expired-action-code":                      "This link has expired",
	"auth/invalid-action-code":                      "This link is invalid or was already used",
	"auth/user-token-expired":                       "Your session has expired, please sign in again",
}

// Message devuelve el mensaje estable para code, o fallback si el código no está mapeado.
func Message(code, fallback string) string {
	if m, ok := messages[code]; ok {
		return m
	}
	return fallback
}

// Normalize traduce un fallo del backend de identidad a un *Error de kind auth
// con mensaje estable. Los *Error ya tipados (no_session, unsupported_provider...)
// pasan sin cambios salvo el Op si faltaba.
func Normalize(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) && e.Kind != KindAuth {
		if e.Op == "" {
			return e.WithOp(op)
		}
		return err
	}

	raw := err.Error()
	var m messager
	if errors.As(err, &m) {
		raw = m.ErrorMessage()
	}
	code := ""
	var c coder
	if errors.As(err, &c) {
		code = c.ErrorCode()
	}
	if e != nil && e.Code != "" {
		code = e.Code
		raw = e.Message
	}
	return &Error{
		Kind:    KindAuth,
		Op:      op,
		Code:    code,
		Message: Message(code, raw),
		Err:     err,
	}
}
