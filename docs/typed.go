package docs

import (
	"context"

	"github.com/dropDatabas3/hellodoc/docstore"
	"github.com/dropDatabas3/hellodoc/errs"
)

// CreateAs codifica v con schema y lo crea. Devuelve v con el id asignado.
func CreateAs[T any](ctx context.Context, c *Client, schema Schema[T], collection string, v T, opts ...CreateOption) (T, error) {
	var zero T
	data, err := schema.Encode(v)
	if err != nil {
		return zero, errs.E(errs.KindValidation, "docs.Create", collection, err)
	}
	doc, err := c.Create(ctx, collection, data, opts...)
	if err != nil {
		return zero, err
	}
	return decodeDoc(schema, "docs.Create", collection, doc)
}

// ReadAs lee y decodifica. found=false si no existe.
func ReadAs[T any](ctx context.Context, c *Client, schema Schema[T], collection, id string) (T, bool, error) {
	var zero T
	doc, found, err := c.Read(ctx, collection, id)
	if err != nil || !found {
		return zero, found, err
	}
	v, err := decodeDoc(schema, "docs.Read", collection, doc)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// UpdateAs aplica patch y devuelve el documento completo decodificado.
func UpdateAs[T any](ctx context.Context, c *Client, schema Schema[T], collection, id string, patch map[string]any) (T, error) {
	var zero T
	doc, err := c.Update(ctx, collection, id, patch)
	if err != nil {
		return zero, err
	}
	return decodeDoc(schema, "docs.Update", collection, doc)
}

// GetAllAs decodifica toda la colección. Un solo documento malformado hace fallar la llamada.
func GetAllAs[T any](ctx context.Context, c *Client, schema Schema[T], collection string) ([]T, error) {
	docs, err := c.GetAll(ctx, collection)
	if err != nil {
		return nil, err
	}
	return decodeAll(schema, "docs.GetAll", collection, docs)
}

// QueryAs es Query + decode.
func QueryAs[T any](ctx context.Context, c *Client, schema Schema[T], collection string, constraints ...docstore.Constraint) ([]T, error) {
	docs, err := c.Query(ctx, collection, constraints...)
	if err != nil {
		return nil, err
	}
	return decodeAll(schema, "docs.Query", collection, docs)
}

func decodeDoc[T any](schema Schema[T], op, collection string, doc docstore.Document) (T, error) {
	v, err := schema.Decode(doc.ID, doc.Data)
	if err != nil {
		var zero T
		return zero, errs.E(errs.KindValidation, op, target(collection, doc.ID), err)
	}
	return v, nil
}

func decodeAll[T any](schema Schema[T], op, collection string, docs []docstore.Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		v, err := decodeDoc(schema, op, collection, d)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
