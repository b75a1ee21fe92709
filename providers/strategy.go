package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

// TwitterEndpoint es OAuth 2.0 de X/Twitter (x/oauth2 no lo trae).
var TwitterEndpoint = oauth2.Endpoint{
	AuthURL:   "https://twitter.com/i/oauth2/authorize",
	TokenURL:  "https://api.twitter.com/2/oauth2/token",
	AuthStyle: oauth2.AuthStyleInHeader,
}

var defaults = map[ID]struct {
	endpoint   oauth2.Endpoint
	profileURL string
	scopes     []string
}{
	Google:   {google.Endpoint, "https://openidconnect.googleapis.com/v1/userinfo", []string{"openid", "email", "profile"}},
	Facebook: {facebook.Endpoint, "https://graph.facebook.com/me?fields=id,name,email,picture.type(large)", []string{"email", "public_profile"}},
	GitHub:   {github.Endpoint, "https://api.github.com/user", []string{"read:user", "user:email"}},
	Twitter:  {TwitterEndpoint, "https://api.twitter.com/2/users/me?user.fields=profile_image_url", []string{"users.read", "tweet.read"}},
}

// Credentials de la app registrada en el proveedor.
type Credentials struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Profile normalizado de cualquier proveedor.
type Profile struct {
	Subject       string // id único en el proveedor
	Email         string
	EmailVerified bool
	Name          string
	PictureURL    string
	Raw           map[string]any
}

// Identity es el resultado de un login federado completo.
type Identity struct {
	Provider ID
	Token    *oauth2.Token
	IDToken  string // sólo OIDC (google)
	Profile  *Profile
}

// Strategy implementa el flujo de un proveedor.
type Strategy struct {
	id         ID
	cfg        oauth2.Config
	profileURL string
	emailsURL  string // sólo github
	httpClient *http.Client
}

// StrategyOption ajusta endpoints (tests, proxies, GitHub Enterprise).
type StrategyOption func(*Strategy)

func WithEndpoint(ep oauth2.Endpoint) StrategyOption {
	return func(s *Strategy) { s.cfg.Endpoint = ep }
}
func WithProfileURL(u string) StrategyOption       { return func(s *Strategy) { s.profileURL = u } }
func WithEmailsURL(u string) StrategyOption        { return func(s *Strategy) { s.emailsURL = u } }
func WithHTTPClient(c *http.Client) StrategyOption { return func(s *Strategy) { s.httpClient = c } }

// NewStrategy arma la estrategia del proveedor id.
func NewStrategy(id ID, creds Credentials, opts ...StrategyOption) *Strategy {
	d := defaults[id]
	scopes := creds.Scopes
	if len(scopes) == 0 {
		scopes = d.scopes
	}
	s := &Strategy{
		id: id,
		cfg: oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint:     d.endpoint,
			Scopes:       scopes,
		},
		profileURL: d.profileURL,
	}
	if id == GitHub {
		s.emailsURL = "https://api.github.com/user/emails"
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Strategy) ID() ID { return s.id }

// OAuth2 devuelve una copia de la config (sin RedirectURL).
func (s *Strategy) OAuth2() oauth2.Config { return s.cfg }

func (s *Strategy) config(redirectURL string) *oauth2.Config {
	c := s.cfg
	c.RedirectURL = redirectURL
	return &c
}

func (s *Strategy) ctx(ctx context.Context) context.Context {
	if s.httpClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	}
	return ctx
}

// AuthCodeURL arma la URL de autorización con PKCE S256.
func (s *Strategy) AuthCodeURL(state, verifier, redirectURL string) string {
	opts := []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(verifier)}
	if s.id == Google {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", "select_account"))
	}
	return s.config(redirectURL).AuthCodeURL(state, opts...)
}

// Exchange canjea el code por tokens.
func (s *Strategy) Exchange(ctx context.Context, code, verifier, redirectURL string) (*oauth2.Token, error) {
	tok, err := s.config(redirectURL).Exchange(s.ctx(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, &Error{Code: CodeInvalidCredential, Message: fmt.Sprintf("%s: code exchange failed", s.id), Err: err}
	}
	return tok, nil
}

// Profile consulta el userinfo del proveedor.
func (s *Strategy) Profile(ctx context.Context, tok *oauth2.Token) (*Profile, error) {
	client := s.config("").Client(s.ctx(ctx), tok)

	raw := map[string]any{}
	if err := getJSON(ctx, client, s.profileURL, &raw); err != nil {
		return nil, &Error{Code: CodeNetwork, Message: fmt.Sprintf("%s: fetch profile", s.id), Err: err}
	}
	p := parseProfile(s.id, raw)

	if s.id == GitHub && (p.Email == "" || !p.EmailVerified) && s.emailsURL != "" {
		var emails []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		if err := getJSON(ctx, client, s.emailsURL, &emails); err == nil {
			for _, e := range emails {
				if e.Primary {
					p.Email, p.EmailVerified = e.Email, e.Verified
					break
				}
			}
		}
	}
	if p.Subject == "" {
		return nil, &Error{Code: CodeInvalidCredential, Message: fmt.Sprintf("%s: profile without subject", s.id)}
	}
	return p, nil
}

// Authenticate corre el flujo completo: autorización interactiva, canje y perfil.
func (s *Strategy) Authenticate(ctx context.Context, a Authorizer) (*Identity, error) {
	state, err := randomState()
	if err != nil {
		return nil, err
	}
	verifier := oauth2.GenerateVerifier()

	code, redirectURL, err := a.Authorize(ctx, func(redirectURL string) string {
		return s.AuthCodeURL(state, verifier, redirectURL)
	}, state)
	if err != nil {
		return nil, err
	}
	tok, err := s.Exchange(ctx, code, verifier, redirectURL)
	if err != nil {
		return nil, err
	}
	prof, err := s.Profile(ctx, tok)
	if err != nil {
		return nil, err
	}
	id := &Identity{Provider: s.id, Token: tok, Profile: prof}
	if v, ok := tok.Extra("id_token").(string); ok {
		id.IDToken = v
	}
	return id, nil
}

func getJSON(ctx context.Context, c *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: status %d: %s", url, resp.StatusCode, b)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func parseProfile(id ID, raw map[string]any) *Profile {
	p := &Profile{Raw: raw}
	switch id {
	case Google:
		p.Subject = str(raw["sub"])
		p.Email = str(raw["email"])
		p.EmailVerified, _ = raw["email_verified"].(bool)
		p.Name = str(raw["name"])
		p.PictureURL = str(raw["picture"])
	case GitHub:
		p.Subject = str(raw["id"])
		p.Email = str(raw["email"])
		p.Name = str(raw["name"])
		if p.Name == "" {
			p.Name = str(raw["login"])
		}
		p.PictureURL = str(raw["avatar_url"])
	case Facebook:
		p.Subject = str(raw["id"])
		p.Email = str(raw["email"])
		// facebook sólo entrega emails confirmados
		p.EmailVerified = p.Email != ""
		p.Name = str(raw["name"])
		if pic, ok := raw["picture"].(map[string]any); ok {
			if data, ok := pic["data"].(map[string]any); ok {
				p.PictureURL = str(data["url"])
			}
		}
	case Twitter:
		data, _ := raw["data"].(map[string]any)
		p.Subject = str(data["id"])
		p.Name = str(data["name"])
		p.PictureURL = str(data["profile_image_url"])
	}
	return p
}

func str(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return ""
}
