package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Config para abrir un Store por nombre de driver.
type Config struct {
	Driver string
	DSN    string

	// Postgres
	MaxConns int
	Table    string
	Migrate  bool

	// Redis
	Addr     string
	DB       int
	Password string
	Prefix   string

	Logger *zap.Logger
}

// OpenFunc abre una conexión del driver.
type OpenFunc func(ctx context.Context, cfg Config) (Store, error)

var (
	driversMu sync.RWMutex
	drivers   = map[string]OpenFunc{}
)

// Register registra un driver. Llamar desde init(); registrar dos veces el mismo nombre es un bug.
func Register(name string, open OpenFunc) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if open == nil {
		panic("docstore: Register open func is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("docstore: Register called twice for driver " + name)
	}
	drivers[name] = open
}

// Drivers lista los drivers registrados, ordenados.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	out := make([]string, 0, len(drivers))
	for n := range drivers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Open abre el Store del driver configurado.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driversMu.RLock()
	open, ok := drivers[cfg.Driver]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("docstore: unknown driver %q (forgotten import?)", cfg.Driver)
	}
	return open(ctx, cfg)
}
