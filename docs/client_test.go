package docs

import (
	"context"
	"errors"
	"testing"

	"github.com/dropDatabas3/hellodoc/docstore"
	"github.com/dropDatabas3/hellodoc/docstore/memory"
	"github.com/dropDatabas3/hellodoc/errs"
	"github.com/dropDatabas3/hellodoc/telemetry"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newClient(t *testing.T) *Client {
	t.Helper()
	return NewClient(memory.New(), WithLogger(zap.NewNop()))
}

// brokenStore falla todas las operaciones.
type brokenStore struct{ docstore.Store }

var errBackend = errors.New("backend unavailable")

func (brokenStore) Get(context.Context, string, string) (docstore.Document, error) {
	return docstore.Document{}, errBackend
}
func (brokenStore) Set(context.Context, string, string, map[string]any) error    { return errBackend }
func (brokenStore) Update(context.Context, string, string, map[string]any) error { return errBackend }
func (brokenStore) Delete(context.Context, string, string) error                 { return errBackend }
func (brokenStore) Query(context.Context, string, docstore.Query) ([]docstore.Document, error) {
	return nil, errBackend
}

func TestCreateRead_RoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	doc, err := c.Create(ctx, "users", map[string]any{"name": "Ana", "age": 30})
	require.NoError(t, err)
	require.NotEmpty(t, doc.ID)

	got, found, err := c.Read(ctx, "users", doc.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, map[string]any{"name": "Ana", "age": 30.0}, got.Data)
}

func TestCreate_CustomIDReplaces(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	_, err := c.Create(ctx, "users", map[string]any{"v": 1}, WithID("fixed"))
	require.NoError(t, err)
	doc, err := c.Create(ctx, "users", map[string]any{"v": 2}, WithID("fixed"))
	require.NoError(t, err)
	assert.Equal(t, "fixed", doc.ID)

	all, err := c.GetAll(ctx, "users")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 2.0, all[0].Data["v"])
}

func TestCreate_RejectsIdentifierField(t *testing.T) {
	_, err := newClient(t).Create(context.Background(), "users", map[string]any{"id": "x", "name": "Ana"})
	assert.True(t, errs.IsKind(err, errs.KindValidation), "got %v", err)
}

func TestMalformedNames_KeepReadWriteKinds(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	_, err := c.Create(ctx, "a/b", map[string]any{"v": 1})
	assert.True(t, errs.IsKind(err, errs.KindWrite), "got %v", err)
	assert.ErrorIs(t, err, docstore.ErrInvalidName)
	_, err = c.Create(ctx, "users", map[string]any{"v": 1}, WithID("bad/id"))
	assert.True(t, errs.IsKind(err, errs.KindWrite), "got %v", err)
	err = c.Delete(ctx, "users", "")
	assert.True(t, errs.IsKind(err, errs.KindWrite), "got %v", err)

	doc, err := c.Create(ctx, "users", map[string]any{"v": 1})
	require.NoError(t, err)
	_, err = c.Update(ctx, "users", doc.ID, map[string]any{"a..b": 1})
	assert.True(t, errs.IsKind(err, errs.KindWrite), "got %v", err)

	_, _, err = c.Read(ctx, "users", "")
	assert.True(t, errs.IsKind(err, errs.KindRead), "got %v", err)
	_, err = c.GetAll(ctx, "a/b")
	assert.True(t, errs.IsKind(err, errs.KindRead), "got %v", err)
}

func TestRead_Absent(t *testing.T) {
	doc, found, err := newClient(t).Read(context.Background(), "users", "missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, doc.ID)
}

func TestDeleteThenRead(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	doc, err := c.Create(ctx, "users", map[string]any{"a": 1})
	require.NoError(t, err)

	require.NoError(t, c.Delete(ctx, "users", doc.ID))
	require.NoError(t, c.Delete(ctx, "users", doc.ID))
	_, found, err := c.Read(ctx, "users", doc.ID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestUpdate_PartialAndNested(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	doc, err := c.Create(ctx, "users", map[string]any{"name": "Ana", "age": 30, "address": map[string]any{"city": "Lima", "zip": "1"}})
	require.NoError(t, err)

	got, err := c.Update(ctx, "users", doc.ID, map[string]any{"age": 31, "address.city": "Cusco"})
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.Data["name"])
	assert.Equal(t, 31.0, got.Data["age"])
	assert.Equal(t, map[string]any{"city": "Cusco", "zip": "1"}, got.Data["address"])
}

func TestUpdate_MissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	_, err := c.Update(ctx, "users", "ghost", map[string]any{"a": 1})
	assert.True(t, errs.IsKind(err, errs.KindNotFound), "got %v", err)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, found, _ := c.Read(ctx, "users", "ghost")
	assert.False(t, found, "update must not create")
}

func TestUpdate_RejectsIdentifierField(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	doc, err := c.Create(ctx, "users", map[string]any{"a": 1})
	require.NoError(t, err)
	_, err = c.Update(ctx, "users", doc.ID, map[string]any{"id": "other"})
	assert.True(t, errs.IsKind(err, errs.KindValidation))
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	for _, age := range []int{20, 30, 40} {
		_, err := c.Create(ctx, "users", map[string]any{"age": age})
		require.NoError(t, err)
	}

	all, err := c.Query(ctx, "users")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	adults, err := c.Query(ctx, "users", docstore.Where("age", docstore.OpGte, 30), docstore.OrderBy("age", docstore.Asc))
	require.NoError(t, err)
	require.Len(t, adults, 2)
	assert.Equal(t, 30.0, adults[0].Data["age"])

	none, err := c.Query(ctx, "empty")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestQuery_MalformedIsReadError(t *testing.T) {
	_, err := newClient(t).Query(context.Background(), "users", docstore.Where("age", docstore.Op("between"), 1))
	assert.True(t, errs.IsKind(err, errs.KindRead), "got %v", err)
}

func TestBackendFaults(t *testing.T) {
	ctx := context.Background()
	c := NewClient(brokenStore{}, WithLogger(zap.NewNop()))

	_, err := c.Create(ctx, "users", map[string]any{"a": 1})
	assert.True(t, errs.IsKind(err, errs.KindWrite))
	assert.ErrorIs(t, err, errBackend)

	_, _, err = c.Read(ctx, "users", "x")
	assert.True(t, errs.IsKind(err, errs.KindRead))

	_, err = c.Update(ctx, "users", "x", map[string]any{"a": 1})
	assert.True(t, errs.IsKind(err, errs.KindWrite))

	assert.True(t, errs.IsKind(c.Delete(ctx, "users", "x"), errs.KindWrite))

	_, err = c.GetAll(ctx, "users")
	assert.True(t, errs.IsKind(err, errs.KindRead))

	_, err = c.Query(ctx, "users", docstore.Where("a", docstore.OpEq, 1))
	assert.True(t, errs.IsKind(err, errs.KindRead))
}

func TestTelemetryRecorded(t *testing.T) {
	tel, err := telemetry.New(telemetry.Config{})
	require.NoError(t, err)
	c := NewClient(memory.New(), WithLogger(zap.NewNop()), WithTelemetry(tel))
	ctx := context.Background()

	_, _, err = c.Read(ctx, "users", "x")
	require.NoError(t, err)
	_, err = c.Update(ctx, "users", "x", map[string]any{"a": 1})
	require.Error(t, err)

	n, err := testutil.GatherAndCount(tel.Registry(), "hellodoc_docs_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
