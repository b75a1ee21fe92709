// Package hellodoc arma, a partir de una config.Config, los handles de una app:
// documentos (docs), sesión (session), bucket de objetos (storage) y métricas.
//
// El camino principal es New (inyección explícita). Initialize/Instance exponen
// además una instancia única por proceso.
package hellodoc

import (
	"context"
	"errors"

	"github.com/dropDatabas3/hellodoc/auth"
	"github.com/dropDatabas3/hellodoc/auth/identitytoolkit"
	"github.com/dropDatabas3/hellodoc/auth/local"
	"github.com/dropDatabas3/hellodoc/config"
	"github.com/dropDatabas3/hellodoc/docs"
	"github.com/dropDatabas3/hellodoc/docstore"
	"github.com/dropDatabas3/hellodoc/errs"
	"github.com/dropDatabas3/hellodoc/internal/email"
	"github.com/dropDatabas3/hellodoc/internal/logger"
	"github.com/dropDatabas3/hellodoc/internal/password"
	"github.com/dropDatabas3/hellodoc/providers"
	"github.com/dropDatabas3/hellodoc/session"
	"github.com/dropDatabas3/hellodoc/storage"
	"github.com/dropDatabas3/hellodoc/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	// drivers de docstore
	_ "github.com/dropDatabas3/hellodoc/docstore/memory"
	_ "github.com/dropDatabas3/hellodoc/docstore/postgres"
	_ "github.com/dropDatabas3/hellodoc/docstore/redis"
)

// App agrupa los handles. Seguro para uso concurrente.
type App struct {
	cfg *config.Config
	log *zap.Logger

	store    docstore.Store
	docs     *docs.Client
	backend  auth.Backend
	handle   *auth.Handle
	sessions *session.Manager
	bucket   *storage.Bucket
	tel      *telemetry.Telemetry
}

type options struct {
	log        *zap.Logger
	store      docstore.Store
	backend    auth.Backend
	mailer     email.Sender
	authorizer providers.Authorizer
	provOpts   map[providers.ID][]providers.StrategyOption
	hash       *password.Params
}

// Option de New.
type Option func(*options)

// WithLogger evita inicializar el logger global desde cfg.Log.
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.log = l } }

// WithStore usa un Store ya abierto en lugar de store.driver. App.Close lo cierra.
func WithStore(s docstore.Store) Option { return func(o *options) { o.store = s } }

// WithAuthBackend usa un backend ya construido en lugar de auth.driver.
func WithAuthBackend(b auth.Backend) Option { return func(o *options) { o.backend = b } }

// WithMailer reemplaza el envío de correos del backend local.
func WithMailer(m email.Sender) Option { return func(o *options) { o.mailer = m } }

// WithAuthorizer reemplaza el LoopbackAuthorizer de los logins federados.
func WithAuthorizer(a providers.Authorizer) Option { return func(o *options) { o.authorizer = a } }

// WithProviderOptions agrega opciones de estrategia (endpoints, http client) por proveedor.
func WithProviderOptions(id providers.ID, opts ...providers.StrategyOption) Option {
	return func(o *options) {
		if o.provOpts == nil {
			o.provOpts = map[providers.ID][]providers.StrategyOption{}
		}
		o.provOpts[id] = append(o.provOpts[id], opts...)
	}
}

// withPasswordParams sólo para tests (argon2 liviano).
func withPasswordParams(p password.Params) Option { return func(o *options) { o.hash = &p } }

// New valida cfg y abre los handles. Store, backend de auth y bucket se abren
// en paralelo; si alguno falla se cierran los que sí abrieron.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	const op = "hellodoc.New"
	if cfg == nil {
		return nil, errs.Configuration(op).WithMessage("configuration is required")
	}
	cfg.ApplyDefaults()
	if err := cfg.OpenSecrets(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	log := o.log
	if log == nil {
		logger.Init(logger.Config{Env: cfg.Log.Env, Level: cfg.Log.Level, AppID: cfg.AppID})
		log = logger.L()
	}
	log = log.Named("hellodoc")

	var tel *telemetry.Telemetry
	if cfg.TelemetryEnabled() {
		t, err := telemetry.New(telemetry.Config{
			Namespace:     cfg.Telemetry.Namespace,
			AppID:         cfg.AppID,
			MeasurementID: cfg.MeasurementID,
		})
		if err != nil {
			return nil, errs.E(errs.KindConfiguration, op, "telemetry", err)
		}
		tel = t
	}

	app := &App{cfg: cfg, log: log, tel: tel, store: o.store, backend: o.backend}

	g, gctx := errgroup.WithContext(ctx)
	if app.store == nil {
		g.Go(func() error {
			s, err := openStore(gctx, cfg, log)
			if err != nil {
				return err
			}
			app.store = s
			return nil
		})
	}
	if app.backend == nil {
		g.Go(func() error {
			b, err := openBackend(cfg, o, log)
			if err != nil {
				return err
			}
			app.backend = b
			return nil
		})
	}
	g.Go(func() error {
		b, err := storage.Open(gctx, storage.Config{
			Bucket:     cfg.StorageBucket,
			Endpoint:   cfg.Storage.Endpoint,
			Region:     cfg.Storage.Region,
			AccessKey:  cfg.Storage.AccessKey,
			SecretKey:  cfg.Storage.SecretKey,
			PresignTTL: cfg.Storage.PresignTTL,
			Logger:     log.Named("storage"),
		})
		if err != nil {
			return err
		}
		app.bucket = b
		return nil
	})
	if err := g.Wait(); err != nil {
		_ = app.Close()
		log.Error("app init failed", logger.Err(err))
		return nil, err
	}

	app.docs = docs.NewClient(app.store, docs.WithLogger(log.Named("docs")), docs.WithTelemetry(tel))
	app.handle = auth.NewHandle(app.backend, auth.WithHandleLogger(log.Named("auth")))

	authorizer := o.authorizer
	if authorizer == nil {
		authorizer = &providers.LoopbackAuthorizer{Addr: cfg.Providers.CallbackAddr, Log: log.Named("providers")}
	}
	app.sessions = session.New(app.handle,
		session.WithLogger(log.Named("session")),
		session.WithTelemetry(tel),
		session.WithProviders(providers.NewRegistry(providerConfig(cfg, o.provOpts))),
		session.WithAuthorizer(authorizer),
	)

	log.Info("app ready",
		logger.Driver(cfg.Store.Driver),
		zap.String("auth_driver", cfg.Auth.Driver),
		zap.String("project_id", cfg.ProjectID),
		zap.Bool("telemetry", tel != nil),
	)
	return app, nil
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (docstore.Store, error) {
	s, err := docstore.Open(ctx, docstore.Config{
		Driver:   cfg.Store.Driver,
		DSN:      cfg.Store.DSN,
		MaxConns: cfg.Store.Postgres.MaxConns,
		Table:    cfg.Store.Postgres.Table,
		Migrate:  cfg.Store.Postgres.Migrate,
		Addr:     cfg.Store.Redis.Addr,
		DB:       cfg.Store.Redis.DB,
		Password: cfg.Store.Redis.Password,
		Prefix:   cfg.Store.Redis.Prefix,
		Logger:   log.Named("docstore"),
	})
	if err != nil {
		return nil, errs.E(errs.KindConfiguration, "hellodoc.New", "store", err)
	}
	return s, nil
}

func openBackend(cfg *config.Config, o options, log *zap.Logger) (auth.Backend, error) {
	switch cfg.Auth.Driver {
	case "identitytoolkit":
		c, err := identitytoolkit.New(identitytoolkit.Config{
			APIKey:        cfg.APIKey,
			Endpoint:      cfg.Auth.Endpoint,
			TokenEndpoint: cfg.Auth.TokenEndpoint,
			RequestURI:    "https://" + cfg.AuthDomain,
			Logger:        log.Named("auth"),
		})
		if err != nil {
			return nil, errs.E(errs.KindConfiguration, "hellodoc.New", "auth", err)
		}
		return c, nil
	default:
		mailer := o.mailer
		if mailer == nil && cfg.SMTP.Host != "" {
			mailer = email.NewSMTPSender(email.SMTPConfig{
				Host:     cfg.SMTP.Host,
				Port:     cfg.SMTP.Port,
				Username: cfg.SMTP.Username,
				Password: cfg.SMTP.Password,
				From:     cfg.SMTP.From,
				TLSMode:  cfg.SMTP.TLS,
			}, log.Named("email"))
		}
		pp := cfg.Auth.PasswordPolicy
		lc := local.Config{
			ProjectID:       cfg.ProjectID,
			AppName:         cfg.ProjectID,
			SigningKey:      []byte(cfg.Auth.SigningKey),
			IDTokenTTL:      cfg.Auth.IDTokenTTL,
			RefreshTokenTTL: cfg.Auth.RefreshTokenTTL,
			VerifyTTL:       cfg.Auth.VerifyTTL,
			ResetTTL:        cfg.Auth.ResetTTL,
			Policy: password.Policy{
				MinLength:     pp.MinLength,
				RequireUpper:  pp.RequireUpper,
				RequireLower:  pp.RequireLower,
				RequireDigit:  pp.RequireDigit,
				RequireSymbol: pp.RequireSymbol,
			},
			MethodOK:   cfg.Auth.MethodEnabled,
			Enumerable: !cfg.Auth.EmailEnumerationProtection,
			Mailer:     mailer,
			ActionURL:  "https://" + cfg.AuthDomain + "/__/auth/action",
			Logger:     log.Named("auth"),
		}
		if o.hash != nil {
			lc.Hash = *o.hash
		}
		b, err := local.New(lc)
		if err != nil {
			return nil, errs.E(errs.KindConfiguration, "hellodoc.New", "auth", err)
		}
		return b, nil
	}
}

func providerConfig(cfg *config.Config, opts map[providers.ID][]providers.StrategyOption) providers.Config {
	conv := func(p config.ProviderCredentials) providers.Credentials {
		return providers.Credentials{ClientID: p.ClientID, ClientSecret: p.ClientSecret, Scopes: p.Scopes}
	}
	return providers.Config{
		Google:   conv(cfg.Providers.Google),
		Facebook: conv(cfg.Providers.Facebook),
		GitHub:   conv(cfg.Providers.GitHub),
		Twitter:  conv(cfg.Providers.Twitter),
		Options:  opts,
	}
}

func (a *App) Config() *config.Config          { return a.cfg }
func (a *App) Docs() *docs.Client              { return a.docs }
func (a *App) Sessions() *session.Manager      { return a.sessions }
func (a *App) Store() docstore.Store           { return a.store }
func (a *App) Auth() auth.Backend              { return a.backend }
func (a *App) Storage() *storage.Bucket        { return a.bucket }
func (a *App) Telemetry() *telemetry.Telemetry { return a.tel }
func (a *App) Logger() *zap.Logger             { return a.log }

// Close cierra store y backend de auth.
func (a *App) Close() error {
	var out []error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			out = append(out, err)
		}
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			out = append(out, err)
		}
	}
	return errors.Join(out...)
}

// Collection devuelve una colección tipada con esquema JSON por defecto.
func Collection[T any](a *App, name string, opts ...docs.SchemaOption) *docs.Collection[T] {
	return docs.NewCollection[T](a.docs, name, docs.JSONSchema[T](opts...))
}
