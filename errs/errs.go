// Package errs define la taxonomía de errores de hellodoc.
//
// Todas las operaciones públicas devuelven *Error (o lo envuelven), de modo que el
// caller puede ramificar por Kind con KindOf / errors.Is sin parsear strings.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind clasifica un fallo.
type Kind string

const (
	KindConfiguration       Kind = "configuration"
	KindRead                Kind = "read"
	KindWrite               Kind = "write"
	KindNotFound            Kind = "not_found"
	KindAuth                Kind = "auth"
	KindUnsupportedProvider Kind = "unsupported_provider"
	KindNoSession           Kind = "no_session"
	KindValidation          Kind = "validation"
)

// Error es el error estándar de la librería.
type Error struct {
	Kind    Kind
	Op      string // operación que falló, ej: "docs.Create"
	Target  string // colección/id, provider, email... lo que aplique
	Code    string // código del backend (auth/*) si existe
	Message string
	Err     error // causa original
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Target != "" {
		fmt.Fprintf(&b, " [%s]", e.Target)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil && (e.Message == "" || !strings.Contains(e.Message, e.Err.Error())) {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matchea por Kind (y por Code si el target lo define).
// Permite errors.Is(err, errs.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// WithOp devuelve una COPIA con la operación.
func (e *Error) WithOp(op string) *Error {
	n := *e
	n.Op = op
	return &n
}

// WithTarget devuelve una COPIA con el target.
func (e *Error) WithTarget(target string) *Error {
	n := *e
	n.Target = target
	return &n
}

// WithMessage devuelve una COPIA con otro mensaje.
func (e *Error) WithMessage(msg string) *Error {
	n := *e
	n.Message = msg
	return &n
}

// WithCause devuelve una COPIA con la causa.
func (e *Error) WithCause(err error) *Error {
	n := *e
	n.Err = err
	return &n
}

// Sentinels. No mutar: usar los With* que copian.
var (
	ErrConfiguration       = &Error{Kind: KindConfiguration, Message: "invalid configuration"}
	ErrRead                = &Error{Kind: KindRead, Message: "read failed"}
	ErrWrite               = &Error{Kind: KindWrite, Message: "write failed"}
	ErrNotFound            = &Error{Kind: KindNotFound, Message: "document not found"}
	ErrAuth                = &Error{Kind: KindAuth, Message: "authentication failed"}
	ErrUnsupportedProvider = &Error{Kind: KindUnsupportedProvider, Message: "unsupported provider"}
	ErrNoSession           = &Error{Kind: KindNoSession, Message: "no user is signed in"}
	ErrValidation          = &Error{Kind: KindValidation, Message: "validation failed"}
)

// E construye un error del kind dado envolviendo la causa.
func E(kind Kind, op, target string, cause error) *Error {
	e := &Error{Kind: kind, Op: op, Target: target, Err: cause}
	if cause != nil {
		e.Message = cause.Error()
	}
	return e
}

// Configuration crea un error de configuración con los campos faltantes.
func Configuration(op string, missing ...string) *Error {
	e := &Error{Kind: KindConfiguration, Op: op, Message: "invalid configuration"}
	if len(missing) > 0 {
		e.Message = "missing required fields: " + strings.Join(missing, ", ")
	}
	return e
}

// KindOf devuelve el Kind del primer *Error de la cadena, o "" si no hay.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind es un shortcut para KindOf(err) == k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// CodeOf devuelve el código de backend asociado al error, si lo hay.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	var c coder
	if errors.As(err, &c) {
		return c.ErrorCode()
	}
	return ""
}
