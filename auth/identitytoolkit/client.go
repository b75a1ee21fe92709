// Package identitytoolkit implementa auth.Backend sobre la API REST de Identity
// Toolkit (accounts:*) y el endpoint de Secure Token para refrescar sesiones.
package identitytoolkit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/hellodoc/auth"
	"github.com/dropDatabas3/hellodoc/internal/logger"
	"go.uber.org/zap"
)

const (
	DefaultEndpoint      = "https://identitytoolkit.googleapis.com/v1"
	DefaultTokenEndpoint = "https://securetoken.googleapis.com/v1/token"
)

// Config del cliente REST.
type Config struct {
	APIKey        string
	Endpoint      string
	TokenEndpoint string
	// RequestURI se informa en signInWithIdp; debe estar autorizado en el proyecto.
	RequestURI string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client implementa auth.Backend.
type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger
}

var _ auth.Backend = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("identitytoolkit: api key required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.TokenEndpoint == "" {
		cfg.TokenEndpoint = DefaultTokenEndpoint
	}
	if cfg.RequestURI == "" {
		cfg.RequestURI = "http://localhost"
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		cfg:  cfg,
		http: hc,
		log:  logger.Or(cfg.Logger, "auth.identitytoolkit"),
	}, nil
}

// ───────────────────── wire types ─────────────────────

type tokenResponse struct {
	LocalID       string `json:"localId"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
	DisplayName   string `json:"displayName"`
	PhotoURL      string `json:"photoUrl"`
	ProviderID    string `json:"providerId"`
	IDToken       string `json:"idToken"`
	RefreshToken  string `json:"refreshToken"`
	ExpiresIn     string `json:"expiresIn"`
	ErrorMessage  string `json:"errorMessage"` // signInWithIdp: p.ej. FEDERATED_USER_ID_ALREADY_LINKED
	NeedConfirm   bool   `json:"needConfirmation"`
}

type apiUser struct {
	LocalID          string `json:"localId"`
	Email            string `json:"email"`
	EmailVerified    bool   `json:"emailVerified"`
	DisplayName      string `json:"displayName"`
	PhotoURL         string `json:"photoUrl"`
	Disabled         bool   `json:"disabled"`
	CreatedAt        string `json:"createdAt"`   // ms epoch
	LastLoginAt      string `json:"lastLoginAt"` // ms epoch
	PasswordHash     string `json:"passwordHash"`
	ProviderUserInfo []struct {
		ProviderID string `json:"providerId"`
	} `json:"providerUserInfo"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) now() time.Time { return time.Now() }

func (c *Client) credential(r tokenResponse, providerID string) *auth.Credential {
	if r.ProviderID != "" {
		providerID = r.ProviderID
	}
	cred := &auth.Credential{
		User: auth.User{
			UID:           r.LocalID,
			Email:         r.Email,
			EmailVerified: r.EmailVerified,
			DisplayName:   r.DisplayName,
			PhotoURL:      r.PhotoURL,
			ProviderID:    providerID,
		},
		IDToken:      r.IDToken,
		RefreshToken: r.RefreshToken,
	}
	if secs, err := strconv.Atoi(r.ExpiresIn); err == nil && secs > 0 {
		cred.ExpiresAt = c.now().Add(time.Duration(secs) * time.Second)
	}
	return cred
}

func (u apiUser) toUser() *auth.User {
	out := &auth.User{
		UID:           u.LocalID,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		DisplayName:   u.DisplayName,
		PhotoURL:      u.PhotoURL,
		Disabled:      u.Disabled,
		CreatedAt:     msEpoch(u.CreatedAt),
		LastLoginAt:   msEpoch(u.LastLoginAt),
		ProviderID:    "password",
	}
	if len(u.ProviderUserInfo) > 0 {
		out.ProviderID = u.ProviderUserInfo[0].ProviderID
	}
	return out
}

func msEpoch(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// ───────────────────── transporte ─────────────────────

func (c *Client) call(ctx context.Context, method string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return &auth.BackendError{Code: auth.CodeInternal, Message: "encode request", Err: err}
	}
	u := c.cfg.Endpoint + "/accounts:" + method + "?key=" + url.QueryEscape(c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(raw))
	if err != nil {
		return &auth.BackendError{Code: auth.CodeInternal, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, "accounts:"+method, out)
}

func (c *Client) do(req *http.Request, op string, out any) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("identity toolkit unreachable", logger.Op(op), logger.Err(err))
		return &auth.BackendError{Code: auth.CodeNetwork, Message: "network request failed", Err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &auth.BackendError{Code: auth.CodeNetwork, Message: "read response", Err: err}
	}
	c.log.Debug("identity toolkit call", logger.Op(op), zap.Int("status", resp.StatusCode), logger.Duration(time.Since(start)))

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &auth.BackendError{Code: auth.CodeInternal, Message: "decode response", Err: err}
	}
	return nil
}

func decodeError(status int, data []byte) error {
	var ae apiError
	if err := json.Unmarshal(data, &ae); err != nil || ae.Error.Message == "" {
		return &auth.BackendError{Code: auth.CodeInternal, Message: fmt.Sprintf("unexpected status %d", status)}
	}
	return Translate(ae.Error.Message)
}

// ───────────────────── auth.Backend ─────────────────────

func (c *Client) SignUp(ctx context.Context, email, password string) (*auth.Credential, error) {
	var r tokenResponse
	err := c.call(ctx, "signUp", map[string]any{
		"email": email, "password": password, "returnSecureToken": true,
	}, &r)
	if err != nil {
		return nil, err
	}
	return c.credential(r, "password"), nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*auth.Credential, error) {
	var r tokenResponse
	err := c.call(ctx, "signInWithPassword", map[string]any{
		"email": email, "password": password, "returnSecureToken": true,
	}, &r)
	if err != nil {
		return nil, err
	}
	return c.credential(r, "password"), nil
}

func (c *Client) SignInWithIdP(ctx context.Context, a auth.IdPAssertion) (*auth.Credential, error) {
	post := url.Values{"providerId": {a.ProviderID}}
	switch {
	case a.IDToken != "":
		post.Set("id_token", a.IDToken)
	case a.AccessToken != "":
		post.Set("access_token", a.AccessToken)
	default:
		return nil, auth.NewError(auth.CodeInvalidCredential, "INVALID_IDP_RESPONSE")
	}
	var r tokenResponse
	err := c.call(ctx, "signInWithIdp", map[string]any{
		"postBody":            post.Encode(),
		"requestUri":          c.cfg.RequestURI,
		"returnSecureToken":   true,
		"returnIdpCredential": true,
	}, &r)
	if err != nil {
		return nil, err
	}
	if r.NeedConfirm || r.ErrorMessage != "" {
		return nil, auth.NewError(auth.CodeAccountExistsOther, firstNonEmpty(r.ErrorMessage, "NEED_CONFIRMATION"))
	}
	cred := c.credential(r, a.ProviderID)
	if cred.User.DisplayName == "" {
		cred.User.DisplayName = a.DisplayName
	}
	if cred.User.PhotoURL == "" {
		cred.User.PhotoURL = a.PhotoURL
	}
	return cred, nil
}

// Refresh usa el endpoint de Secure Token (form-encoded, respuesta snake_case).
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*auth.Credential, error) {
	form := url.Values{"grant_type": {"refresh_token"}, "refresh_token": {refreshToken}}
	u := c.cfg.TokenEndpoint + "?key=" + url.QueryEscape(c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &auth.BackendError{Code: auth.CodeInternal, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	var r struct {
		IDToken      string `json:"id_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    string `json:"expires_in"`
		UserID       string `json:"user_id"`
	}
	if err := c.do(req, "token", &r); err != nil {
		return nil, err
	}
	// el token endpoint no devuelve perfil
	u2, err := c.Lookup(ctx, r.IDToken)
	if err != nil {
		return nil, err
	}
	cred := &auth.Credential{User: *u2, IDToken: r.IDToken, RefreshToken: r.RefreshToken}
	if secs, err := strconv.Atoi(r.ExpiresIn); err == nil && secs > 0 {
		cred.ExpiresAt = c.now().Add(time.Duration(secs) * time.Second)
	}
	return cred, nil
}

func (c *Client) Lookup(ctx context.Context, idToken string) (*auth.User, error) {
	var r struct {
		Users []apiUser `json:"users"`
	}
	if err := c.call(ctx, "lookup", map[string]any{"idToken": idToken}, &r); err != nil {
		return nil, err
	}
	if len(r.Users) == 0 {
		return nil, auth.NewError(auth.CodeUserNotFound, "USER_NOT_FOUND")
	}
	return r.Users[0].toUser(), nil
}

func (c *Client) SendOobCode(ctx context.Context, kind auth.OobKind, email, idToken string) error {
	body := map[string]any{"requestType": string(kind)}
	switch kind {
	case auth.OobVerifyEmail:
		body["idToken"] = idToken
	case auth.OobPasswordReset:
		body["email"] = email
	default:
		return auth.NewError(auth.CodeOperationNotAllow, "unsupported request type "+string(kind))
	}
	return c.call(ctx, "sendOobCode", body, nil)
}

func (c *Client) ConfirmPasswordReset(ctx context.Context, code, newPassword string) (string, error) {
	var r struct {
		Email string `json:"email"`
	}
	err := c.call(ctx, "resetPassword", map[string]any{"oobCode": code, "newPassword": newPassword}, &r)
	return r.Email, err
}

func (c *Client) ApplyActionCode(ctx context.Context, code string) error {
	return c.call(ctx, "update", map[string]any{"oobCode": code}, nil)
}

func (c *Client) UpdateProfile(ctx context.Context, idToken string, p auth.ProfileUpdate) (*auth.User, error) {
	body := map[string]any{"idToken": idToken, "returnSecureToken": false}
	var del []string
	if p.DisplayName != nil {
		if *p.DisplayName == "" {
			del = append(del, "DISPLAY_NAME")
		} else {
			body["displayName"] = *p.DisplayName
		}
	}
	if p.PhotoURL != nil {
		if *p.PhotoURL == "" {
			del = append(del, "PHOTO_URL")
		} else {
			body["photoUrl"] = *p.PhotoURL
		}
	}
	if len(del) > 0 {
		body["deleteAttribute"] = del
	}
	if err := c.call(ctx, "update", body, nil); err != nil {
		return nil, err
	}
	return c.Lookup(ctx, idToken)
}

func (c *Client) UpdateEmail(ctx context.Context, idToken, email string) (*auth.Credential, error) {
	return c.updateSecure(ctx, map[string]any{"idToken": idToken, "email": email, "returnSecureToken": true})
}

func (c *Client) UpdatePassword(ctx context.Context, idToken, password string) (*auth.Credential, error) {
	return c.updateSecure(ctx, map[string]any{"idToken": idToken, "password": password, "returnSecureToken": true})
}

func (c *Client) updateSecure(ctx context.Context, body map[string]any) (*auth.Credential, error) {
	var r tokenResponse
	if err := c.call(ctx, "update", body, &r); err != nil {
		return nil, err
	}
	cred := c.credential(r, "")
	u, err := c.Lookup(ctx, cred.IDToken)
	if err != nil {
		return nil, err
	}
	cred.User = *u
	return cred, nil
}

func (c *Client) DeleteAccount(ctx context.Context, idToken string) error {
	return c.call(ctx, "delete", map[string]any{"idToken": idToken}, nil)
}

func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func firstNonEmpty(v ...string) string {
	for _, s := range v {
		if s != "" {
			return s
		}
	}
	return ""
}
