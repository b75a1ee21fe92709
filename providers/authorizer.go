package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/dropDatabas3/hellodoc/internal/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Authorizer ejecuta el paso interactivo: lleva al usuario a la URL de
// autorización y devuelve el code que el proveedor entrega en el redirect.
// buildURL recibe la redirect URL que el authorizer va a escuchar.
type Authorizer interface {
	Authorize(ctx context.Context, buildURL func(redirectURL string) string, state string) (code, redirectURL string, err error)
}

// AuthorizerFunc adapta una función (tests, flujos headless).
type AuthorizerFunc func(ctx context.Context, buildURL func(string) string, state string) (string, string, error)

func (f AuthorizerFunc) Authorize(ctx context.Context, buildURL func(string) string, state string) (string, string, error) {
	return f(ctx, buildURL, state)
}

// LoopbackAuthorizer recibe el redirect en un listener local (RFC 8252).
type LoopbackAuthorizer struct {
	// Addr del listener; default 127.0.0.1:0 (puerto libre).
	Addr string
	// Open abre la URL (navegador). Si es nil sólo se loguea.
	Open func(url string) error
	Log  *zap.Logger
}

type callbackResult struct {
	code string
	err  error
}

func (a *LoopbackAuthorizer) Authorize(ctx context.Context, buildURL func(string) string, state string) (string, string, error) {
	log := logger.Or(a.Log, "providers.loopback")
	addr := a.Addr
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", "", &Error{Code: CodeNetwork, Message: "loopback listener", Err: err}
	}
	redirectURL := "http://" + ln.Addr().String() + "/callback"

	results := make(chan callbackResult, 1)
	srv := &http.Server{Handler: a.router(log, state, results), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("loopback server stopped", logger.Err(err))
		}
	}()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	url := buildURL(redirectURL)
	if a.Open != nil {
		if err := a.Open(url); err != nil {
			return "", "", &Error{Code: CodeCancelled, Message: "could not open authorization url", Err: err}
		}
	} else {
		log.Info("open this URL to continue sign-in", zap.String("url", url))
	}

	select {
	case r := <-results:
		return r.code, redirectURL, r.err
	case <-ctx.Done():
		return "", "", &Error{Code: CodePopupClosed, Message: "sign-in was not completed", Err: ctx.Err()}
	}
}

func (a *LoopbackAuthorizer) router(log *zap.Logger, state string, results chan<- callbackResult) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/callback", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		if q.Get("state") != state {
			// no es nuestro redirect: no termina el login en curso
			log.Warn("loopback callback with unexpected state", zap.String("remote", req.RemoteAddr))
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		var res callbackResult
		switch {
		case q.Get("error") != "":
			code := CodeCancelled
			if q.Get("error") != "access_denied" {
				code = CodeInvalidCredential
			}
			res.err = &Error{Code: code, Message: fmt.Sprintf("provider returned %s: %s", q.Get("error"), q.Get("error_description"))}
		case q.Get("code") == "":
			res.err = &Error{Code: CodeInvalidCredential, Message: "missing authorization code"}
		default:
			res.code = q.Get("code")
		}

		select {
		case results <- res:
		default:
			// ya hubo un callback; ignorar repetidos
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if res.err != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, "<p>Sign-in failed. You can close this window.</p>")
			return
		}
		fmt.Fprint(w, "<p>Signed in. You can close this window.</p>")
	})
	return r
}
