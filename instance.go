package hellodoc

import (
	"context"
	"sync"

	"github.com/dropDatabas3/hellodoc/config"
	"github.com/dropDatabas3/hellodoc/errs"
)

var (
	instMu sync.Mutex
	inst   *App
)

// Initialize construye la instancia del proceso en la primera llamada y la
// devuelve en las siguientes, ignorando cfg. Si la primera construcción falla
// (p.ej. cfg nil) no queda nada guardado y se puede reintentar.
func Initialize(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	instMu.Lock()
	defer instMu.Unlock()
	if inst != nil {
		return inst, nil
	}
	if cfg == nil {
		return nil, errs.Configuration("hellodoc.Initialize").WithMessage("configuration is required on first initialization")
	}
	a, err := New(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	inst = a
	return inst, nil
}

// Instance devuelve la instancia ya inicializada.
func Instance() (*App, bool) {
	instMu.Lock()
	defer instMu.Unlock()
	return inst, inst != nil
}

// resetInstance cierra y olvida la instancia (tests).
func resetInstance() {
	instMu.Lock()
	defer instMu.Unlock()
	if inst != nil {
		_ = inst.Close()
		inst = nil
	}
}
