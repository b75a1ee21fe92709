// Package redis implementa docstore.Store con un hash por colección.
//
// Layout: <prefix>:docs:<collection> -> { <id>: <json> }.
// Las queries traen el hash completo y filtran en proceso. Update hace
// compare-and-set por documento con un script Lua.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dropDatabas3/hellodoc/docstore"
	"github.com/dropDatabas3/hellodoc/internal/logger"
	rdb "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func init() {
	docstore.Register("redis", func(ctx context.Context, cfg docstore.Config) (docstore.Store, error) {
		return Open(ctx, cfg)
	})
}

// maxCASRetries para Update cuando otro cliente escribe el mismo documento entre
// la lectura y el compare-and-set.
const maxCASRetries = 16

const (
	casMissing = -1
	casOK      = 1
)

// casField escribe el campo sólo si sigue valiendo lo leído. El chequeo es por
// documento: escrituras a otros ids de la colección no lo invalidan.
var casField = rdb.NewScript(`
local cur = redis.call('HGET', KEYS[1], ARGV[1])
if not cur then return -1 end
if cur ~= ARGV[2] then return 0 end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[3])
return 1
`)

// Store sobre Redis.
type Store struct {
	c      *rdb.Client
	prefix string
	log    *zap.Logger
}

// Open conecta por Addr, o por DSN (redis://...) si Addr está vacío.
func Open(ctx context.Context, cfg docstore.Config) (*Store, error) {
	var opts *rdb.Options
	if cfg.Addr == "" && cfg.DSN != "" {
		o, err := rdb.ParseURL(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("redis: parse url: %w", err)
		}
		opts = o
	} else {
		opts = &rdb.Options{Addr: cfg.Addr, DB: cfg.DB, Password: cfg.Password}
	}
	s := New(rdb.NewClient(opts), cfg.Prefix, cfg.Logger)
	if err := s.Ping(ctx); err != nil {
		_ = s.c.Close()
		return nil, err
	}
	return s, nil
}

// New envuelve un cliente existente.
func New(c *rdb.Client, prefix string, log *zap.Logger) *Store {
	if prefix == "" {
		prefix = "hellodoc"
	}
	return &Store{c: c, prefix: prefix, log: logger.Or(log, "docstore.redis")}
}

func (s *Store) Name() string { return "redis" }

func (s *Store) key(collection string) string {
	return s.prefix + ":docs:" + collection
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if err := docstore.ValidateKey(collection, id); err != nil {
		return docstore.Document{}, err
	}
	raw, err := s.c.HGet(ctx, s.key(collection), id).Bytes()
	if errors.Is(err, rdb.Nil) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("redis: hget %s/%s: %w", collection, id, err)
	}
	return decode(id, raw)
}

func (s *Store) Set(ctx context.Context, collection, id string, data map[string]any) error {
	if err := docstore.ValidateKey(collection, id); err != nil {
		return err
	}
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("redis: encode: %w", err)
	}
	if err := s.c.HSet(ctx, s.key(collection), id, raw).Err(); err != nil {
		return fmt.Errorf("redis: hset %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	if err := docstore.ValidateKey(collection, id); err != nil {
		return err
	}
	norm, err := docstore.NormalizeMap(patch)
	if err != nil {
		return fmt.Errorf("redis: encode patch: %w", err)
	}
	key := s.key(collection)

	for i := 0; i < maxCASRetries; i++ {
		raw, err := s.c.HGet(ctx, key, id).Result()
		if errors.Is(err, rdb.Nil) {
			return docstore.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("redis: hget %s/%s: %w", collection, id, err)
		}
		cur, err := decode(id, []byte(raw))
		if err != nil {
			return err
		}
		merged, err := docstore.ApplyPatch(cur.Data, norm)
		if err != nil {
			return err
		}
		out, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("redis: encode: %w", err)
		}
		res, err := casField.Run(ctx, s.c, []string{key}, id, raw, out).Int()
		if err != nil {
			return fmt.Errorf("redis: update %s/%s: %w", collection, id, err)
		}
		switch res {
		case casOK:
			return nil
		case casMissing:
			return docstore.ErrNotFound
		}
		s.log.Debug("update retry", logger.Collection(collection), logger.DocID(id), zap.Int("attempt", i+1))
	}
	return fmt.Errorf("redis: update %s/%s: too much contention", collection, id)
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := docstore.ValidateKey(collection, id); err != nil {
		return err
	}
	if err := s.c.HDel(ctx, s.key(collection), id).Err(); err != nil {
		return fmt.Errorf("redis: hdel %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	if err := docstore.ValidateName("collection", collection); err != nil {
		return nil, err
	}
	all, err := s.c.HGetAll(ctx, s.key(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: hgetall %s: %w", collection, err)
	}
	docs := make([]docstore.Document, 0, len(all))
	for id, raw := range all {
		d, err := decode(id, []byte(raw))
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docstore.Apply(docs, q), nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.c.Close() }

// flush borra todas las colecciones del prefix (tests).
func (s *Store) flush(ctx context.Context) error {
	iter := s.c.Scan(ctx, 0, s.prefix+":docs:*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.c.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func decode(id string, raw []byte) (docstore.Document, error) {
	data := map[string]any{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return docstore.Document{}, fmt.Errorf("redis: decode %s: %w", id, err)
	}
	return docstore.Document{ID: id, Data: data}, nil
}
