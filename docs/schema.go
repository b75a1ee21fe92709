package docs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Schema convierte entre T y los datos crudos del documento. Decode debe
// fallar ante un payload que no corresponde a T en lugar de devolver un valor mal tipado.
type Schema[T any] interface {
	Encode(v T) (map[string]any, error)
	Decode(id string, data map[string]any) (T, error)
}

// Validator lo implementan los tipos que validan sus propios invariantes.
type Validator interface {
	Validate() error
}

// ErrIdentifierSet se devuelve al crear un registro que ya trae identificador.
var ErrIdentifierSet = errors.New("docs: record already carries an identifier")

type jsonSchema[T any] struct {
	idField string
	strict  bool
}

// SchemaOption ajusta JSONSchema.
type SchemaOption func(*schemaOpts)

type schemaOpts struct {
	idField string
	strict  bool
}

// WithIDField cambia el campo JSON donde se inyecta el id (default "id").
func WithIDField(name string) SchemaOption { return func(o *schemaOpts) { o.idField = name } }

// Strict rechaza campos desconocidos al decodificar.
func Strict() SchemaOption { return func(o *schemaOpts) { o.strict = true } }

// JSONSchema usa los tags json de T. El id se inyecta en el campo idField al
// decodificar y se quita al codificar.
func JSONSchema[T any](opts ...SchemaOption) Schema[T] {
	o := schemaOpts{idField: IDField}
	for _, fn := range opts {
		fn(&o)
	}
	return jsonSchema[T]{idField: o.idField, strict: o.strict}
}

func (s jsonSchema[T]) Encode(v T) (map[string]any, error) {
	if err := validate(v); err != nil {
		return nil, err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	data := map[string]any{}
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("encode: %T is not an object: %w", v, err)
	}
	if id, ok := data[s.idField]; ok {
		if id != nil && id != "" {
			return nil, ErrIdentifierSet
		}
		delete(data, s.idField)
	}
	return data, nil
}

func (s jsonSchema[T]) Decode(id string, data map[string]any) (T, error) {
	var zero T
	withID := make(map[string]any, len(data)+1)
	for k, v := range data {
		withID[k] = v
	}
	withID[s.idField] = id

	b, err := json.Marshal(withID)
	if err != nil {
		return zero, fmt.Errorf("decode: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	if s.strict {
		dec.DisallowUnknownFields()
	}
	var out T
	if err := dec.Decode(&out); err != nil {
		return zero, fmt.Errorf("decode %s: %w", id, err)
	}
	if err := validate(out); err != nil {
		return zero, err
	}
	return out, nil
}

func validate(v any) error {
	if val, ok := v.(Validator); ok {
		if err := val.Validate(); err != nil {
			return fmt.Errorf("validate: %w", err)
		}
	}
	return nil
}
