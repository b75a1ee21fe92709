package docs

import (
	"context"

	"github.com/dropDatabas3/hellodoc/docstore"
)

// Collection ata un Client a una colección y a un tipo de registro.
type Collection[T any] struct {
	client *Client
	name   string
	schema Schema[T]
}

// NewCollection crea la vista tipada. schema nil => JSONSchema[T]().
func NewCollection[T any](client *Client, name string, schema Schema[T]) *Collection[T] {
	if schema == nil {
		schema = JSONSchema[T]()
	}
	return &Collection[T]{client: client, name: name, schema: schema}
}

func (c *Collection[T]) Name() string { return c.name }

func (c *Collection[T]) Create(ctx context.Context, v T, opts ...CreateOption) (T, error) {
	return CreateAs(ctx, c.client, c.schema, c.name, v, opts...)
}

func (c *Collection[T]) Read(ctx context.Context, id string) (T, bool, error) {
	return ReadAs(ctx, c.client, c.schema, c.name, id)
}

func (c *Collection[T]) Update(ctx context.Context, id string, patch map[string]any) (T, error) {
	return UpdateAs(ctx, c.client, c.schema, c.name, id, patch)
}

func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	return c.client.Delete(ctx, c.name, id)
}

func (c *Collection[T]) GetAll(ctx context.Context) ([]T, error) {
	return GetAllAs(ctx, c.client, c.schema, c.name)
}

func (c *Collection[T]) Query(ctx context.Context, constraints ...docstore.Constraint) ([]T, error) {
	return QueryAs(ctx, c.client, c.schema, c.name, constraints...)
}
