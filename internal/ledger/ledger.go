// Package ledger is the ordered key-value world state the certificate engine
// runs against: point reads, range and composite-key scans, per-key history
// and atomic optimistic commits.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrConflict is returned when a commit's read set was invalidated by a
	// concurrent writer. The whole invocation should be resubmitted.
	ErrConflict = errors.New("ledger: read conflict")
	// ErrReadOnly is returned when an evaluation tries to write.
	ErrReadOnly = errors.New("ledger: write in read-only transaction")
	// ErrEmptyKey is returned for empty state keys.
	ErrEmptyKey = errors.New("ledger: empty key")
)

// KV is one live entry returned by a scan.
type KV struct {
	Key   string
	Value []byte
}

// KeyModification is one committed write to a key.
type KeyModification struct {
	TxID      string    `json:"txId"`
	Timestamp time.Time `json:"timestamp"`
	IsDelete  bool      `json:"isDelete"`
	Value     []byte    `json:"value,omitempty"`
	Hash      string    `json:"hash"`
}

// Stub is the transaction handle passed to contract code.
// Reads observe committed state only; writes are buffered until commit.
type Stub interface {
	TxID() string
	TxTimestamp() time.Time
	GetState(key string) ([]byte, error)
	PutState(key string, value []byte) error
	DelState(key string) error
	// GetStateByRange returns live keys in [startKey, endKey). An empty
	// endKey means no upper bound.
	GetStateByRange(startKey, endKey string) ([]KV, error)
	GetStateByPartialCompositeKey(objectType string, attributes []string) ([]KV, error)
	// GetQueryResult returns live JSON documents whose top-level string
	// fields equal every selector entry, in key order.
	GetQueryResult(selector map[string]string) ([]KV, error)
	GetHistoryForKey(key string) ([]KeyModification, error)
}

// Store runs contract functions as atomic transactions.
type Store interface {
	Submit(ctx context.Context, fn func(Stub) error) error
	Evaluate(ctx context.Context, fn func(Stub) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Versioned is a backend read result. Version is 0 for keys never written;
// deleted keys keep their version with Exists false.
type Versioned struct {
	Key     string
	Value   []byte
	Version uint64
	Exists  bool
}

// Write is one buffered mutation.
type Write struct {
	Key      string
	Value    []byte
	IsDelete bool
}

// Commit is the validated unit handed to a backend.
type Commit struct {
	TxID      string
	Timestamp time.Time
	// Reads maps each key read during the transaction to the version seen.
	Reads map[string]uint64
	// Writes are sorted by key.
	Writes []Write
}

// Backend is a storage engine. Commit must validate every read version and
// that Timestamp is after the last history entry of each written key, then
// apply all writes atomically or return ErrConflict.
type Backend interface {
	Get(ctx context.Context, key string) (Versioned, error)
	Range(ctx context.Context, startKey, endKey string) ([]Versioned, error)
	History(ctx context.Context, key string) ([]KeyModification, error)
	Commit(ctx context.Context, c Commit) error
	Ping(ctx context.Context) error
	Close() error
}

// DocumentQuerier is implemented by backends that can match JSON fields
// natively. Other backends are scanned.
type DocumentQuerier interface {
	QueryDocuments(ctx context.Context, selector map[string]string) ([]Versioned, error)
}

// Ledger implements Store over a Backend.
type Ledger struct {
	backend Backend
	clock   *Clock
	newTxID func() string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the transaction clock.
func WithClock(c *Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

// WithTxIDs overrides transaction id generation.
func WithTxIDs(fn func() string) Option {
	return func(l *Ledger) { l.newTxID = fn }
}

// New wraps a backend.
func New(b Backend, opts ...Option) *Ledger {
	l := &Ledger{
		backend: b,
		clock:   NewClock(nil),
		newTxID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Submit runs fn and commits its writes. Nothing is written when fn fails.
func (l *Ledger) Submit(ctx context.Context, fn func(Stub) error) error {
	stub := newTxStub(ctx, l.backend, l.newTxID(), l.clock.Now(), false)
	if err := fn(stub); err != nil {
		return err
	}
	if len(stub.writes) == 0 {
		return nil
	}
	return l.backend.Commit(ctx, stub.commit())
}

// Evaluate runs fn against committed state without committing anything.
func (l *Ledger) Evaluate(ctx context.Context, fn func(Stub) error) error {
	stub := newTxStub(ctx, l.backend, l.newTxID(), l.clock.Now(), true)
	return fn(stub)
}

func (l *Ledger) Ping(ctx context.Context) error {
	return l.backend.Ping(ctx)
}

func (l *Ledger) Close() error {
	return l.backend.Close()
}
