// Package storetest es la suite de conformidad que todo driver de docstore debe pasar.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dropDatabas3/hellodoc/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run corre la suite. open debe devolver un store vacío (o con colecciones únicas por test).
func Run(t *testing.T, open func(t *testing.T) docstore.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("SetGetRoundTrip", func(t *testing.T) {
		s := open(t)
		data := map[string]any{"name": "Ana", "age": 30, "tags": []string{"a", "b"}, "address": map[string]any{"city": "Lima"}}
		require.NoError(t, s.Set(ctx, "users", "u1", data))

		got, err := s.Get(ctx, "users", "u1")
		require.NoError(t, err)
		assert.Equal(t, "u1", got.ID)
		assert.Equal(t, "Ana", got.Data["name"])
		assert.Equal(t, 30.0, got.Data["age"])
		assert.Equal(t, []any{"a", "b"}, got.Data["tags"])
		assert.Equal(t, map[string]any{"city": "Lima"}, got.Data["address"])
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := open(t)
		_, err := s.Get(ctx, "users", "nope")
		assert.True(t, errors.Is(err, docstore.ErrNotFound), "got %v", err)
	})

	t.Run("SetOverwrites", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Set(ctx, "users", "u1", map[string]any{"a": 1, "b": 2}))
		require.NoError(t, s.Set(ctx, "users", "u1", map[string]any{"c": 3}))
		got, err := s.Get(ctx, "users", "u1")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"c": 3.0}, got.Data)
	})

	t.Run("UpdateMergesFields", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Set(ctx, "users", "u1", map[string]any{
			"name": "Ana", "age": 30, "address": map[string]any{"city": "Lima", "zip": "15001"},
		}))
		require.NoError(t, s.Update(ctx, "users", "u1", map[string]any{"age": 31, "address.city": "Cusco"}))

		got, err := s.Get(ctx, "users", "u1")
		require.NoError(t, err)
		assert.Equal(t, "Ana", got.Data["name"])
		assert.Equal(t, 31.0, got.Data["age"])
		assert.Equal(t, map[string]any{"city": "Cusco", "zip": "15001"}, got.Data["address"])
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		s := open(t)
		err := s.Update(ctx, "users", "ghost", map[string]any{"a": 1})
		assert.True(t, errors.Is(err, docstore.ErrNotFound), "got %v", err)
		_, err = s.Get(ctx, "users", "ghost")
		assert.True(t, errors.Is(err, docstore.ErrNotFound))
	})

	t.Run("DeleteIdempotent", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Set(ctx, "users", "u1", map[string]any{"a": 1}))
		require.NoError(t, s.Delete(ctx, "users", "u1"))
		require.NoError(t, s.Delete(ctx, "users", "u1"))
		require.NoError(t, s.Delete(ctx, "users", "never-existed"))
		_, err := s.Get(ctx, "users", "u1")
		assert.True(t, errors.Is(err, docstore.ErrNotFound))
	})

	t.Run("QueryAllAndFilters", func(t *testing.T) {
		s := open(t)
		seed := []map[string]any{
			{"name": "ana", "age": 30, "tags": []string{"admin", "dev"}, "address": map[string]any{"city": "Lima"}},
			{"name": "bob", "age": 25, "tags": []string{"dev"}, "address": map[string]any{"city": "Quito"}},
			{"name": "cai", "age": 41, "tags": []string{"ops"}},
		}
		for i, d := range seed {
			require.NoError(t, s.Set(ctx, "people", fmt.Sprintf("p%d", i), d))
		}
		// ruido en otra colección
		require.NoError(t, s.Set(ctx, "other", "x", map[string]any{"name": "ana"}))

		all, err := s.Query(ctx, "people", docstore.Query{})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"p0", "p1", "p2"}, ids(all))

		cases := []struct {
			name string
			q    docstore.Query
			want []string
		}{
			{"eq", docstore.Build(docstore.Where("name", docstore.OpEq, "ana")), []string{"p0"}},
			{"ne", docstore.Build(docstore.Where("name", docstore.OpNe, "ana")), []string{"p1", "p2"}},
			{"gte", docstore.Build(docstore.Where("age", docstore.OpGte, 30)), []string{"p0", "p2"}},
			{"lt+eq", docstore.Build(docstore.Where("age", docstore.OpLt, 40), docstore.Where("tags", docstore.OpArrayContains, "dev")), []string{"p0", "p1"}},
			{"in", docstore.Build(docstore.Where("name", docstore.OpIn, []string{"bob", "cai"})), []string{"p1", "p2"}},
			{"not-in", docstore.Build(docstore.Where("name", docstore.OpNotIn, []string{"bob"})), []string{"p0", "p2"}},
			{"contains-any", docstore.Build(docstore.Where("tags", docstore.OpArrayContainsAny, []string{"ops", "admin"})), []string{"p0", "p2"}},
			{"nested", docstore.Build(docstore.Where("address.city", docstore.OpEq, "Quito")), []string{"p1"}},
		}
		for _, c := range cases {
			q, err := c.q.Validate()
			require.NoError(t, err, c.name)
			got, err := s.Query(ctx, "people", q)
			require.NoError(t, err, c.name)
			assert.ElementsMatch(t, c.want, ids(got), c.name)
		}

		q, err := docstore.Build(docstore.OrderBy("age", docstore.Desc), docstore.Limit(2)).Validate()
		require.NoError(t, err)
		got, err := s.Query(ctx, "people", q)
		require.NoError(t, err)
		assert.Equal(t, []string{"p2", "p0"}, ids(got))
	})

	t.Run("ConcurrentWrites", func(t *testing.T) {
		s := open(t)
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, s.Set(ctx, "load", fmt.Sprintf("d%02d", i), map[string]any{"i": i}))
			}(i)
		}
		wg.Wait()
		all, err := s.Query(ctx, "load", docstore.Query{})
		require.NoError(t, err)
		assert.Len(t, all, 20)
	})

	t.Run("OrderMixedTypes", func(t *testing.T) {
		s := open(t)
		seed := map[string]any{
			"a-str-b":  "b",
			"b-num-10": 10,
			"c-obj":    map[string]any{"x": 1},
			"d-null":   nil,
			"e-bool":   true,
			"f-str-B":  "B",
			"g-num-2":  2,
		}
		for id, v := range seed {
			require.NoError(t, s.Set(ctx, "mixed", id, map[string]any{"k": v}))
		}
		require.NoError(t, s.Set(ctx, "mixed", "h-absent", map[string]any{"other": 1}))

		q, err := docstore.Build(docstore.OrderBy("k", docstore.Asc)).Validate()
		require.NoError(t, err)
		docs, err := s.Query(ctx, "mixed", q)
		require.NoError(t, err)
		assert.Equal(t, []string{"d-null", "h-absent", "e-bool", "g-num-2", "b-num-10", "f-str-B", "a-str-b", "c-obj"}, ids(docs))

		q, err = docstore.Build(docstore.OrderBy("k", docstore.Desc)).Validate()
		require.NoError(t, err)
		docs, err = s.Query(ctx, "mixed", q)
		require.NoError(t, err)
		assert.Equal(t, []string{"c-obj", "a-str-b", "f-str-B", "b-num-10", "g-num-2", "e-bool", "d-null", "h-absent"}, ids(docs))
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, open(t).Ping(ctx))
	})
}

func ids(docs []docstore.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}
