package session

import (
	"time"

	"github.com/dropDatabas3/hellodoc/auth"
)

// EventKind de un cambio de sesión.
type EventKind string

const (
	// Initial es el primer evento de toda suscripción: trae el usuario actual (o nil).
	Initial        EventKind = "initial"
	SignedIn       EventKind = EventKind(auth.SignedIn)
	SignedOut      EventKind = EventKind(auth.SignedOut)
	TokenRefreshed EventKind = EventKind(auth.TokenRefreshed)
	UserUpdated    EventKind = EventKind(auth.UserUpdated)
)

// Event entregado a los suscriptores. User es nil si no hay sesión.
type Event struct {
	Kind EventKind
	User *auth.User
	At   time.Time
}
