package docstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryValidate(t *testing.T) {
	_, err := Build(Where("age", Op("~="), 1)).Validate()
	assert.True(t, errors.Is(err, ErrInvalidQuery))

	_, err = Build(Where("", OpEq, 1)).Validate()
	assert.True(t, errors.Is(err, ErrInvalidQuery))

	_, err = Build(Where("tags", OpIn, "not-a-list")).Validate()
	assert.True(t, errors.Is(err, ErrInvalidQuery))

	_, err = Build(Limit(-1)).Validate()
	assert.True(t, errors.Is(err, ErrInvalidQuery))

	q, err := Build(Where("age", OpGt, 3), OrderBy("age", "")).Validate()
	require.NoError(t, err)
	assert.Equal(t, 3.0, q.Filters[0].Value)
	assert.Equal(t, Asc, q.Orders[0].Dir)
	assert.True(t, Query{}.Empty())
}

func TestMatch_MissingFieldNeverMatches(t *testing.T) {
	data := map[string]any{"a": 1.0}
	assert.False(t, Match(data, []Filter{{Field: "b", Op: OpNe, Value: 1.0}}))
	assert.False(t, Match(data, []Filter{{Field: "b", Op: OpNotIn, Value: []any{1.0}}}))
	assert.True(t, Match(data, nil))
}

func TestMatch_TypeMismatch(t *testing.T) {
	data := map[string]any{"age": "30"}
	assert.False(t, Match(data, []Filter{{Field: "age", Op: OpGt, Value: 10.0}}))
	assert.False(t, Match(data, []Filter{{Field: "age", Op: OpEq, Value: 30.0}}))
}

func TestApplyPatch(t *testing.T) {
	base := map[string]any{"a": 1.0, "n": map[string]any{"x": 1.0, "y": 2.0}, "s": "str"}
	out, err := ApplyPatch(base, map[string]any{"n.x": 9.0, "s.deep": true, "new": nil})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"x": 9.0, "y": 2.0}, out["n"])
	assert.Equal(t, map[string]any{"deep": true}, out["s"])
	assert.Contains(t, out, "new")
	// base intacto
	assert.Equal(t, 1.0, base["n"].(map[string]any)["x"])

	_, err = ApplyPatch(base, map[string]any{"a..b": 1})
	assert.Error(t, err)
}

func TestSort_MixedTypesAndTieBreak(t *testing.T) {
	docs := []Document{
		{ID: "c", Data: map[string]any{"v": "z"}},
		{ID: "b", Data: map[string]any{"v": 2.0}},
		{ID: "a", Data: map[string]any{}},
		{ID: "d", Data: map[string]any{"v": 2.0}},
	}
	Sort(docs, []Order{{Field: "v", Dir: Asc}})
	got := []string{docs[0].ID, docs[1].ID, docs[2].ID, docs[3].ID}
	assert.Equal(t, []string{"a", "b", "d", "c"}, got)
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateKey("users", "abc-123"))
	assert.Error(t, ValidateKey("", "x"))
	assert.Error(t, ValidateKey("users", " x"))
	assert.Error(t, ValidateKey("users", "a/b"))
	assert.NotEqual(t, NewID(), NewID())
}

func TestRegistry(t *testing.T) {
	Register("test-driver", func(_ context.Context, _ Config) (Store, error) { return nil, errors.New("boom") })
	assert.Contains(t, Drivers(), "test-driver")
	_, err := Open(context.Background(), Config{Driver: "test-driver"})
	assert.EqualError(t, err, "boom")
	_, err = Open(context.Background(), Config{Driver: "nope"})
	assert.Error(t, err)
}
