// Package docs es la fachada CRUD sobre un docstore.Store.
//
// Client expone operaciones sin tipo (map[string]any). Las funciones genéricas
// (CreateAs, ReadAs...) y Collection[T] agregan tipado a través de un Schema[T].
package docs

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/hellodoc/docstore"
	"github.com/dropDatabas3/hellodoc/errs"
	"github.com/dropDatabas3/hellodoc/internal/logger"
	"github.com/dropDatabas3/hellodoc/telemetry"
	"go.uber.org/zap"
)

// IDField es el nombre reservado del identificador en los datos del documento.
const IDField = "id"

// Client ejecuta operaciones de documentos. Seguro para uso concurrente.
type Client struct {
	store docstore.Store
	log   *zap.Logger
	tel   *telemetry.Telemetry
}

type Option func(*Client)

func WithLogger(l *zap.Logger) Option             { return func(c *Client) { c.log = l } }
func WithTelemetry(t *telemetry.Telemetry) Option { return func(c *Client) { c.tel = t } }

// NewClient crea un Client sobre store.
func NewClient(store docstore.Store, opts ...Option) *Client {
	c := &Client{store: store}
	for _, o := range opts {
		o(c)
	}
	c.log = logger.Or(c.log, "docs")
	return c
}

// Store devuelve el handle subyacente.
func (c *Client) Store() docstore.Store { return c.store }

type createOpts struct{ id string }

// CreateOption ajusta Create.
type CreateOption func(*createOpts)

// WithID usa un identificador explícito; si ya existe, el documento se reemplaza.
func WithID(id string) CreateOption { return func(o *createOpts) { o.id = id } }

// Create guarda data como un documento nuevo y lo devuelve con su id.
func (c *Client) Create(ctx context.Context, collection string, data map[string]any, opts ...CreateOption) (doc docstore.Document, err error) {
	const op = "docs.Create"
	var o createOpts
	for _, fn := range opts {
		fn(&o)
	}
	id := o.id
	if id == "" {
		id = docstore.NewID()
	}
	defer c.observe(ctx, op, collection, id, time.Now(), &err)

	if _, has := data[IDField]; has {
		return docstore.Document{}, errs.ErrValidation.WithOp(op).WithTarget(collection).
			WithMessage("data must not contain the identifier field \"" + IDField + "\"")
	}
	norm, err := docstore.NormalizeMap(data)
	if err != nil {
		return docstore.Document{}, errs.E(errs.KindWrite, op, target(collection, id), err)
	}
	if err := c.store.Set(ctx, collection, id, norm); err != nil {
		return docstore.Document{}, c.wrap(op, collection, id, errs.KindWrite, err)
	}
	return docstore.Document{ID: id, Data: norm}, nil
}

// Read devuelve (doc, true, nil), o (zero, false, nil) si no existe.
func (c *Client) Read(ctx context.Context, collection, id string) (doc docstore.Document, found bool, err error) {
	const op = "docs.Read"
	defer c.observe(ctx, op, collection, id, time.Now(), &err)

	d, err := c.store.Get(ctx, collection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return docstore.Document{}, false, nil
	}
	if err != nil {
		return docstore.Document{}, false, c.wrap(op, collection, id, errs.KindRead, err)
	}
	return d, true, nil
}

// Update mergea patch (claves con puntos = campos anidados) y devuelve el documento completo.
// Si el documento no existe falla con kind not_found; nunca lo crea.
func (c *Client) Update(ctx context.Context, collection, id string, patch map[string]any) (doc docstore.Document, err error) {
	const op = "docs.Update"
	defer c.observe(ctx, op, collection, id, time.Now(), &err)

	if _, has := patch[IDField]; has {
		return docstore.Document{}, errs.ErrValidation.WithOp(op).WithTarget(target(collection, id)).
			WithMessage("the identifier field cannot be updated")
	}
	if err := c.store.Update(ctx, collection, id, patch); err != nil {
		return docstore.Document{}, c.wrap(op, collection, id, errs.KindWrite, err)
	}
	d, err := c.store.Get(ctx, collection, id)
	if err != nil {
		// borrado entre el update y la relectura
		return docstore.Document{}, c.wrap(op, collection, id, errs.KindRead, err)
	}
	return d, nil
}

// Delete es idempotente.
func (c *Client) Delete(ctx context.Context, collection, id string) (err error) {
	const op = "docs.Delete"
	defer c.observe(ctx, op, collection, id, time.Now(), &err)

	if err := c.store.Delete(ctx, collection, id); err != nil {
		return c.wrap(op, collection, id, errs.KindWrite, err)
	}
	return nil
}

// GetAll devuelve todos los documentos de la colección.
func (c *Client) GetAll(ctx context.Context, collection string) ([]docstore.Document, error) {
	return c.query(ctx, "docs.GetAll", collection, nil)
}

// Query devuelve los documentos que cumplen todas las constraints.
// Sin constraints equivale a GetAll.
func (c *Client) Query(ctx context.Context, collection string, constraints ...docstore.Constraint) ([]docstore.Document, error) {
	return c.query(ctx, "docs.Query", collection, constraints)
}

func (c *Client) query(ctx context.Context, op, collection string, cs []docstore.Constraint) (docs []docstore.Document, err error) {
	defer c.observe(ctx, op, collection, "", time.Now(), &err)

	q, err := docstore.Build(cs...).Validate()
	if err != nil {
		return nil, errs.E(errs.KindRead, op, collection, err)
	}
	docs, err = c.store.Query(ctx, collection, q)
	if err != nil {
		return nil, c.wrap(op, collection, "", errs.KindRead, err)
	}
	if docs == nil {
		docs = []docstore.Document{}
	}
	return docs, nil
}

// wrap traduce errores del store: not found conserva su kind, el resto
// (nombres o paths inválidos incluidos) queda como read o write según el op.
func (c *Client) wrap(op, collection, id string, kind errs.Kind, err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		kind = errs.KindNotFound
	}
	return errs.E(kind, op, target(collection, id), err)
}

func (c *Client) observe(ctx context.Context, op, collection, id string, start time.Time, errp *error) {
	d := time.Since(start)
	result := telemetry.ResultOK
	log := logger.From(ctx, c.log)
	if err := *errp; err != nil {
		result = telemetry.ResultError
		if errs.IsKind(err, errs.KindNotFound) {
			result = telemetry.ResultNotFound
		}
		log.Debug("operation failed", logger.Op(op), logger.Collection(collection), logger.DocID(id), logger.Err(err))
	} else {
		log.Debug("operation ok", logger.Op(op), logger.Collection(collection), logger.DocID(id), logger.Duration(d))
	}
	c.tel.ObserveDoc(op, collection, result, d)
}

func target(collection, id string) string {
	if id == "" {
		return collection
	}
	return collection + "/" + id
}
