package local

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/hellodoc/auth"
	"github.com/dropDatabas3/hellodoc/internal/tokens"
	"github.com/golang-jwt/jwt/v5"
)

// idClaims del ID token emitido por el backend local.
type idClaims struct {
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name,omitempty"`
	Picture       string `json:"picture,omitempty"`
	Provider      string `json:"provider,omitempty"`
	AuthTime      int64  `json:"auth_time"`
	Gen           int    `json:"gen"`
	jwt.RegisteredClaims
}

func (c *idClaims) authTime() time.Time { return time.Unix(c.AuthTime, 0) }

type refreshEntry struct {
	uid      string
	gen      int
	authTime time.Time
}

func (b *Backend) issuer() string { return "https://securetoken.hellodoc.local/" + b.cfg.ProjectID }

// issueLocked emite ID token + refresh token para acc. Requiere b.mu tomado.
func (b *Backend) issueLocked(acc *account, authTime time.Time) (*auth.Credential, error) {
	now := b.now()
	idTok, exp, err := b.signLocked(acc, now, authTime)
	if err != nil {
		return nil, err
	}
	rt, err := tokens.New(tokens.Refresh)
	if err != nil {
		return nil, &auth.BackendError{Code: auth.CodeInternal, Message: "generate refresh token", Err: err}
	}
	b.refresh.Set(tokens.Key(tokens.Refresh, rt), refreshEntry{uid: acc.user.UID, gen: acc.gen, authTime: authTime}, b.cfg.RefreshTokenTTL)
	return &auth.Credential{User: acc.user, IDToken: idTok, RefreshToken: rt, ExpiresAt: exp}, nil
}

func (b *Backend) signLocked(acc *account, now, authTime time.Time) (string, time.Time, error) {
	exp := now.Add(b.cfg.IDTokenTTL)
	claims := idClaims{
		Email:         acc.user.Email,
		EmailVerified: acc.user.EmailVerified,
		Name:          acc.user.DisplayName,
		Picture:       acc.user.PhotoURL,
		Provider:      acc.user.ProviderID,
		AuthTime:      authTime.Unix(),
		Gen:           acc.gen,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    b.issuer(),
			Subject:   acc.user.UID,
			Audience:  jwt.ClaimStrings{b.cfg.ProjectID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.cfg.SigningKey)
	if err != nil {
		return "", time.Time{}, &auth.BackendError{Code: auth.CodeInternal, Message: "sign id token", Err: err}
	}
	return s, exp.Truncate(time.Second), nil
}

// verifyLocked valida firma, vencimiento y generación del ID token.
func (b *Backend) verifyLocked(idToken string) (*account, *idClaims, error) {
	claims := &idClaims{}
	_, err := jwt.ParseWithClaims(idToken, claims, func(t *jwt.Token) (any, error) {
		return b.cfg.SigningKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(b.issuer()),
		jwt.WithAudience(b.cfg.ProjectID),
		jwt.WithTimeFunc(b.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, nil, auth.NewError(auth.CodeTokenExpired, "TOKEN_EXPIRED")
		}
		return nil, nil, &auth.BackendError{Code: auth.CodeInvalidCredential, Message: "INVALID_ID_TOKEN", Err: err}
	}
	acc, ok := b.users[claims.Subject]
	if !ok {
		return nil, nil, auth.NewError(auth.CodeUserNotFound, "USER_NOT_FOUND")
	}
	if acc.user.Disabled {
		return nil, nil, auth.NewError(auth.CodeUserDisabled, "USER_DISABLED")
	}
	if claims.Gen != acc.gen {
		return nil, nil, auth.NewError(auth.CodeTokenExpired, "TOKEN_EXPIRED")
	}
	return acc, claims, nil
}

func (b *Backend) requireRecentLocked(c *idClaims) error {
	if b.now().Sub(c.authTime()) > b.cfg.RecentLogin {
		return auth.NewError(auth.CodeRequiresRecent, "CREDENTIAL_TOO_OLD_LOGIN_AGAIN")
	}
	return nil
}

// Refresh canjea un refresh token por un ID token nuevo. El refresh token no rota.
func (b *Backend) Refresh(_ context.Context, refreshToken string) (*auth.Credential, error) {
	v, ok := b.refresh.Get(tokens.Key(tokens.Refresh, refreshToken))
	if !ok {
		return nil, auth.NewError(auth.CodeTokenExpired, "INVALID_REFRESH_TOKEN")
	}
	e := v.(refreshEntry)

	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.users[e.uid]
	if !ok {
		b.refresh.Delete(tokens.Key(tokens.Refresh, refreshToken))
		return nil, auth.NewError(auth.CodeUserNotFound, "USER_NOT_FOUND")
	}
	if acc.user.Disabled {
		return nil, auth.NewError(auth.CodeUserDisabled, "USER_DISABLED")
	}
	if acc.gen != e.gen {
		b.refresh.Delete(tokens.Key(tokens.Refresh, refreshToken))
		return nil, auth.NewError(auth.CodeTokenExpired, "TOKEN_EXPIRED")
	}
	idTok, exp, err := b.signLocked(acc, b.now(), e.authTime)
	if err != nil {
		return nil, err
	}
	return &auth.Credential{User: acc.user, IDToken: idTok, RefreshToken: refreshToken, ExpiresAt: exp}, nil
}
