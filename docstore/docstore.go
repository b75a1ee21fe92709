// Package docstore define el contrato del Store Handle: el backend remoto de
// documentos que los clientes de hellodoc usan para CRUD y queries.
//
// Los drivers (memory, postgres, redis) se registran con Register en su init(),
// y se abren por nombre con Open. Importarlos con blank import:
//
//	import _ "github.com/dropDatabas3/hellodoc/docstore/postgres"
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("docstore: document not found")
	ErrInvalidQuery = errors.New("docstore: invalid query")
	ErrInvalidName  = errors.New("docstore: invalid collection or document id")
	ErrClosed       = errors.New("docstore: store closed")
)

// Document es un registro de una colección. Data es JSON-shaped:
// string, float64, bool, nil, []any, map[string]any.
type Document struct {
	ID   string
	Data map[string]any
}

// Store es el handle al backend de documentos. Implementaciones deben ser
// seguras para uso concurrente.
type Store interface {
	// Name del driver.
	Name() string

	// Get devuelve ErrNotFound si el documento no existe.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Set crea o reemplaza el documento completo.
	Set(ctx context.Context, collection, id string, data map[string]any) error

	// Update mergea patch a nivel de campo (claves con puntos = campos anidados).
	// Devuelve ErrNotFound si el documento no existe.
	Update(ctx context.Context, collection, id string, patch map[string]any) error

	// Delete es idempotente.
	Delete(ctx context.Context, collection, id string) error

	// Query con q vacío devuelve toda la colección.
	Query(ctx context.Context, collection string, q Query) ([]Document, error)

	Ping(ctx context.Context) error
	Close() error
}

// NewID genera un identificador aleatorio para documentos sin id explícito.
func NewID() string {
	return uuid.NewString()
}

// ValidateName chequea colección o id: no vacío, sin '/' ni espacios al borde.
func ValidateName(kind, name string) error {
	if name == "" || strings.TrimSpace(name) != name || strings.Contains(name, "/") {
		return fmt.Errorf("%w: %s %q", ErrInvalidName, kind, name)
	}
	return nil
}

// ValidateKey valida colección + id juntos.
func ValidateKey(collection, id string) error {
	if err := ValidateName("collection", collection); err != nil {
		return err
	}
	return ValidateName("id", id)
}

// Normalize convierte un valor Go arbitrario a su forma JSON-shaped
// (ints -> float64, structs -> map, []string -> []any).
func Normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// NormalizeMap es Normalize para un map de datos. nil => map vacío.
func NormalizeMap(m map[string]any) (map[string]any, error) {
	if m == nil {
		return map[string]any{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
