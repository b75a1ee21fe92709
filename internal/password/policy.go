package password

import (
	"fmt"
	"strings"
	"unicode"
)

// WeakPasswordCode es el código de backend para una password que no cumple la política.
const WeakPasswordCode = "auth/weak-password"

// Policy de fortaleza. Cero value = sólo MinLength 0, o sea acepta todo.
type Policy struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// DefaultPolicy replica el mínimo habitual de los proveedores hosteados (6 chars).
var DefaultPolicy = Policy{MinLength: 6}

// Requirement incumplido por una password.
type Requirement string

const (
	TooShort      Requirement = "too_short"
	MissingUpper  Requirement = "missing_upper"
	MissingLower  Requirement = "missing_lower"
	MissingDigit  Requirement = "missing_digit"
	MissingSymbol Requirement = "missing_symbol"
)

// WeakError lista lo que falta. Su ErrorCode es WeakPasswordCode.
type WeakError struct {
	MinLength int
	Missing   []Requirement
}

func (e *WeakError) ErrorCode() string { return WeakPasswordCode }

// Error arma el mensaje para el usuario, p.ej. "Password should be at least 8
// characters and contain an uppercase letter".
func (e *WeakError) Error() string {
	var parts []string
	var needs []string
	for _, r := range e.Missing {
		switch r {
		case TooShort:
			parts = append(parts, fmt.Sprintf("be at least %d characters", e.MinLength))
		case MissingUpper:
			needs = append(needs, "an uppercase letter")
		case MissingLower:
			needs = append(needs, "a lowercase letter")
		case MissingDigit:
			needs = append(needs, "a digit")
		case MissingSymbol:
			needs = append(needs, "a symbol")
		}
	}
	if len(needs) > 0 {
		parts = append(parts, "contain "+strings.Join(needs, ", "))
	}
	return "Password should " + strings.Join(parts, " and ")
}

// Check devuelve nil o un *WeakError con los requisitos incumplidos, en orden fijo.
func (p Policy) Check(s string) error {
	var missing []Requirement
	if len([]rune(s)) < p.MinLength {
		missing = append(missing, TooShort)
	}
	var hasU, hasL, hasD, hasS bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			hasU = true
		case unicode.IsLower(r):
			hasL = true
		case unicode.IsDigit(r):
			hasD = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasS = true
		}
	}
	for _, c := range []struct {
		on, has bool
		req     Requirement
	}{
		{p.RequireUpper, hasU, MissingUpper},
		{p.RequireLower, hasL, MissingLower},
		{p.RequireDigit, hasD, MissingDigit},
		{p.RequireSymbol, hasS, MissingSymbol},
	} {
		if c.on && !c.has {
			missing = append(missing, c.req)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &WeakError{MinLength: p.MinLength, Missing: missing}
}
