package providers

import (
	"github.com/dropDatabas3/hellodoc/errs"
	"github.com/dropDatabas3/hellodoc/internal/tokens"
)

// Registry es inmutable después de NewRegistry. Un proveedor sin client id
// configurado se considera no soportado.
type Registry struct {
	google   *Strategy
	facebook *Strategy
	github   *Strategy
	twitter  *Strategy
}

// Config de credenciales por proveedor.
type Config struct {
	Google   Credentials
	Facebook Credentials
	GitHub   Credentials
	Twitter  Credentials

	// Options por proveedor (endpoints de test, http client).
	Options map[ID][]StrategyOption
}

// NewRegistry crea una estrategia por cada proveedor con credenciales.
func NewRegistry(cfg Config) *Registry {
	build := func(id ID, c Credentials) *Strategy {
		if c.ClientID == "" {
			return nil
		}
		return NewStrategy(id, c, cfg.Options[id]...)
	}
	return &Registry{
		google:   build(Google, cfg.Google),
		facebook: build(Facebook, cfg.Facebook),
		github:   build(GitHub, cfg.GitHub),
		twitter:  build(Twitter, cfg.Twitter),
	}
}

// Lookup devuelve la estrategia de id.
func (r *Registry) Lookup(id ID) (*Strategy, error) {
	var s *Strategy
	switch id {
	case Google:
		s = r.google
	case Facebook:
		s = r.facebook
	case GitHub:
		s = r.github
	case Twitter:
		s = r.twitter
	default:
		return nil, errs.ErrUnsupportedProvider.WithOp("providers.Lookup").WithTarget(string(id)).
			WithMessage("unsupported provider: " + string(id))
	}
	if s == nil {
		return nil, errs.ErrUnsupportedProvider.WithOp("providers.Lookup").WithTarget(string(id)).
			WithMessage("provider not configured: " + string(id))
	}
	return s, nil
}

// Resolve = Parse + Lookup.
func (r *Registry) Resolve(name string) (*Strategy, error) {
	id, err := Parse(name)
	if err != nil {
		return nil, err
	}
	return r.Lookup(id)
}

// Configured lista los proveedores con credenciales.
func (r *Registry) Configured() []ID {
	var out []ID
	for _, id := range All() {
		if _, err := r.Lookup(id); err == nil {
			out = append(out, id)
		}
	}
	return out
}

func randomState() (string, error) {
	return tokens.New(tokens.State)
}
