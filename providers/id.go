// Package providers implementa el registro cerrado de proveedores de identidad
// federada (google, facebook, github, twitter) y el flujo OAuth2 + PKCE de cada uno.
package providers

import (
	"strings"

	"github.com/dropDatabas3/hellodoc/errs"
)

// ID de proveedor. El conjunto es cerrado: Parse rechaza cualquier otro valor.
type ID string

const (
	Google   ID = "google"
	Facebook ID = "facebook"
	GitHub   ID = "github"
	Twitter  ID = "twitter"
)

// All devuelve los proveedores soportados en orden estable.
func All() []ID { return []ID{Google, Facebook, GitHub, Twitter} }

func (id ID) String() string { return string(id) }

// ProviderID es el identificador "de backend" (google.com, github.com...).
func (id ID) ProviderID() string {
	switch id {
	case Google:
		return "google.com"
	case Facebook:
		return "facebook.com"
	case GitHub:
		return "github.com"
	case Twitter:
		return "twitter.com"
	}
	return ""
}

// Parse valida un identificador. Cualquier valor fuera del conjunto devuelve
// un error de kind unsupported_provider.
func Parse(s string) (ID, error) {
	switch id := ID(strings.ToLower(strings.TrimSpace(s))); id {
	case Google, Facebook, GitHub, Twitter:
		return id, nil
	}
	return "", errs.ErrUnsupportedProvider.WithOp("providers.Parse").WithTarget(s).
		WithMessage("unsupported provider: " + s)
}
