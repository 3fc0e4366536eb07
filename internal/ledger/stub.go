package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"
)

// txStub records the read set and buffers the write set of one transaction.
type txStub struct {
	ctx      context.Context
	backend  Backend
	txID     string
	ts       time.Time
	readOnly bool
	reads    map[string]uint64
	writes   map[string]Write
}

func newTxStub(ctx context.Context, b Backend, txID string, ts time.Time, readOnly bool) *txStub {
	return &txStub{
		ctx:      ctx,
		backend:  b,
		txID:     txID,
		ts:       ts,
		readOnly: readOnly,
		reads:    make(map[string]uint64),
		writes:   make(map[string]Write),
	}
}

func (s *txStub) TxID() string           { return s.txID }
func (s *txStub) TxTimestamp() time.Time { return s.ts }

func (s *txStub) GetState(key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	v, err := s.backend.Get(s.ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get state %q: %w", key, err)
	}
	s.recordRead(key, v.Version)
	if !v.Exists {
		return nil, nil
	}
	if v.Value == nil {
		return []byte{}, nil
	}
	return v.Value, nil
}

func (s *txStub) PutState(key string, value []byte) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if err := checkKey(key); err != nil {
		return err
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	s.writes[key] = Write{Key: key, Value: buf}
	return nil
}

func (s *txStub) DelState(key string) error {
	if s.readOnly {
		return ErrReadOnly
	}
	if err := checkKey(key); err != nil {
		return err
	}
	s.writes[key] = Write{Key: key, IsDelete: true}
	return nil
}

func (s *txStub) GetStateByRange(startKey, endKey string) ([]KV, error) {
	if endKey != "" && endKey <= startKey {
		return []KV{}, nil
	}
	entries, err := s.backend.Range(s.ctx, startKey, endKey)
	if err != nil {
		return nil, fmt.Errorf("range [%q, %q): %w", startKey, endKey, err)
	}
	out := make([]KV, 0, len(entries))
	for _, e := range entries {
		s.recordRead(e.Key, e.Version)
		value := e.Value
		if value == nil {
			value = []byte{}
		}
		out = append(out, KV{Key: e.Key, Value: value})
	}
	return out, nil
}

func (s *txStub) GetStateByPartialCompositeKey(objectType string, attributes []string) ([]KV, error) {
	prefix, err := CreateCompositeKey(objectType, attributes)
	if err != nil {
		return nil, err
	}
	start, end := prefixRange(prefix)
	return s.GetStateByRange(start, end)
}

func (s *txStub) GetQueryResult(selector map[string]string) ([]KV, error) {
	var entries []Versioned
	var err error
	if q, ok := s.backend.(DocumentQuerier); ok {
		entries, err = q.QueryDocuments(s.ctx, selector)
	} else {
		entries, err = scanDocuments(s.ctx, s.backend, selector)
	}
	if err != nil {
		return nil, fmt.Errorf("query %v: %w", selector, err)
	}
	out := make([]KV, 0, len(entries))
	for _, e := range entries {
		s.recordRead(e.Key, e.Version)
		out = append(out, KV{Key: e.Key, Value: e.Value})
	}
	return out, nil
}

func (s *txStub) GetHistoryForKey(key string) ([]KeyModification, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	mods, err := s.backend.History(s.ctx, key)
	if err != nil {
		return nil, fmt.Errorf("history %q: %w", key, err)
	}
	return mods, nil
}

func (s *txStub) recordRead(key string, version uint64) {
	if _, seen := s.reads[key]; !seen {
		s.reads[key] = version
	}
}

func (s *txStub) commit() Commit {
	keys := make([]string, 0, len(s.writes))
	for k := range s.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	writes := make([]Write, 0, len(keys))
	for _, k := range keys {
		writes = append(writes, s.writes[k])
	}
	return Commit{TxID: s.txID, Timestamp: s.ts, Reads: s.reads, Writes: writes}
}

func checkKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if !utf8.ValidString(key) {
		return fmt.Errorf("%w: key %q is not valid utf-8", ErrInvalidKeyComponent, key)
	}
	return nil
}
