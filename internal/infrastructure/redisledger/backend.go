// Package redisledger stores the ledger in Redis. Keys live in a
// lexicographically ordered sorted set, values and versions in plain
// strings, and history in one list per key. Commits use WATCH/MULTI.
package redisledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"greencredits-ledger/internal/ledger"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces ledger keys when none is configured.
const DefaultPrefix = "ledger"

// Backend implements ledger.Backend on a Redis client. The prefix is used as
// a hash tag so every ledger key maps to one cluster slot.
type Backend struct {
	rdb    *redis.Client
	prefix string
}

var _ ledger.Backend = (*Backend)(nil)

func New(rdb *redis.Client, prefix string) *Backend {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Backend{rdb: rdb, prefix: prefix}
}

func (b *Backend) keysKey() string           { return fmt.Sprintf("{%s}:keys", b.prefix) }
func (b *Backend) dataKey(key string) string { return fmt.Sprintf("{%s}:data:%s", b.prefix, key) }
func (b *Backend) verKey(key string) string  { return fmt.Sprintf("{%s}:ver:%s", b.prefix, key) }
func (b *Backend) histKey(key string) string { return fmt.Sprintf("{%s}:hist:%s", b.prefix, key) }

func (b *Backend) Get(ctx context.Context, key string) (ledger.Versioned, error) {
	entries, err := b.load(ctx, b.rdb, []string{key})
	if err != nil {
		return ledger.Versioned{}, err
	}
	return entries[0], nil
}

func (b *Backend) Range(ctx context.Context, startKey, endKey string) ([]ledger.Versioned, error) {
	by := &redis.ZRangeBy{Min: "[" + startKey, Max: "+"}
	if startKey == "" {
		by.Min = "-"
	}
	if endKey != "" {
		by.Max = "(" + endKey
	}
	keys, err := b.rdb.ZRangeByLex(ctx, b.keysKey(), by).Result()
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []ledger.Versioned{}, nil
	}
	entries, err := b.load(ctx, b.rdb, keys)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.Versioned, 0, len(entries))
	for _, e := range entries {
		// deleted between ZRANGEBYLEX and GET
		if e.Exists {
			out = append(out, e)
		}
	}
	return out, nil
}

// load reads value and version of each key in one round trip.
func (b *Backend) load(ctx context.Context, c redis.Cmdable, keys []string) ([]ledger.Versioned, error) {
	pipe := c.Pipeline()
	values := make([]*redis.StringCmd, len(keys))
	versions := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		values[i] = pipe.Get(ctx, b.dataKey(key))
		versions[i] = pipe.Get(ctx, b.verKey(key))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	out := make([]ledger.Versioned, 0, len(keys))
	for i, key := range keys {
		v := ledger.Versioned{Key: key}
		version, err := versions[i].Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, err
		}
		v.Version = version
		value, err := values[i].Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return nil, err
		default:
			v.Value = value
			v.Exists = true
		}
		out = append(out, v)
	}
	return out, nil
}

func (b *Backend) History(ctx context.Context, key string) ([]ledger.KeyModification, error) {
	raw, err := b.rdb.LRange(ctx, b.histKey(key), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]ledger.KeyModification, 0, len(raw))
	for _, s := range raw {
		var m ledger.KeyModification
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return nil, fmt.Errorf("decode history of %q: %w", key, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// Commit watches the version and history of every touched key, validates
// the read set and applies all writes in one MULTI/EXEC.
func (b *Backend) Commit(ctx context.Context, c ledger.Commit) error {
	touched := make(map[string]bool, len(c.Reads)+len(c.Writes))
	for key := range c.Reads {
		touched[key] = true
	}
	for _, w := range c.Writes {
		touched[w.Key] = true
	}
	watch := make([]string, 0, 2*len(touched))
	for key := range touched {
		watch = append(watch, b.verKey(key), b.histKey(key))
	}
	sort.Strings(watch)

	err := b.rdb.Watch(ctx, func(tx *redis.Tx) error {
		for key, seen := range c.Reads {
			current, err := tx.Get(ctx, b.verKey(key)).Uint64()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if current != seen {
				return fmt.Errorf("%w: key %q at version %d, read %d", ledger.ErrConflict, key, current, seen)
			}
		}

		entries := make([][]byte, len(c.Writes))
		for i, w := range c.Writes {
			prevHash := ""
			last, err := tx.LIndex(ctx, b.histKey(w.Key), -1).Result()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return err
			default:
				var prev ledger.KeyModification
				if err := json.Unmarshal([]byte(last), &prev); err != nil {
					return fmt.Errorf("decode history of %q: %w", w.Key, err)
				}
				if !c.Timestamp.After(prev.Timestamp) {
					return fmt.Errorf("%w: key %q has a newer write", ledger.ErrConflict, w.Key)
				}
				prevHash = prev.Hash
			}
			mod := ledger.KeyModification{TxID: c.TxID, Timestamp: c.Timestamp, IsDelete: w.IsDelete}
			if !w.IsDelete {
				mod.Value = w.Value
			}
			mod.Hash = ledger.ChainHash(prevHash, mod)
			entry, err := json.Marshal(mod)
			if err != nil {
				return err
			}
			entries[i] = entry
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, w := range c.Writes {
				if w.IsDelete {
					pipe.Del(ctx, b.dataKey(w.Key))
					pipe.ZRem(ctx, b.keysKey(), w.Key)
				} else {
					pipe.Set(ctx, b.dataKey(w.Key), w.Value, 0)
					pipe.ZAdd(ctx, b.keysKey(), redis.Z{Score: 0, Member: w.Key})
				}
				pipe.Incr(ctx, b.verKey(w.Key))
				pipe.RPush(ctx, b.histKey(w.Key), entries[i])
			}
			return nil
		})
		return err
	}, watch...)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: %v", ledger.ErrConflict, err)
	}
	return err
}

func (b *Backend) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

// Close is a no-op; the client belongs to the caller.
func (b *Backend) Close() error {
	return nil
}
