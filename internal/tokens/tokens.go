// Package tokens genera los secretos opacos de la sesión: refresh tokens,
// action codes de email y el state de OAuth. En memoria sólo se guarda Key.
package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// Kind de token. Fija la entropía y separa las claves de cache entre tipos.
type Kind string

const (
	Refresh Kind = "rt"
	Action  Kind = "oob"
	State   Kind = "st"
)

var sizes = map[Kind]int{
	Refresh: 32,
	Action:  24,
	State:   24,
}

// New genera un token de kind k.
func New(k Kind) (string, error) {
	n, ok := sizes[k]
	if !ok {
		n = 32
	}
	return Opaque(n)
}

// Opaque genera nBytes aleatorios en base64url sin padding.
func Opaque(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Key es la clave de cache de token: "<kind>:" + sha256 en base64url.
// Un mismo string da claves distintas según el kind.
func Key(k Kind, token string) string {
	sum := sha256.Sum256([]byte(token))
	return string(k) + ":" + base64.RawURLEncoding.EncodeToString(sum[:])
}
