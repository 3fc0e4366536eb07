package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"greencredits-ledger/internal/ledger"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WorldState is the current value of one ledger key. Deleted rows are kept
// as tombstones so the version keeps counting.
type WorldState struct {
	StateKey []byte `gorm:"column:state_key;primaryKey"`
	Value    []byte `gorm:"column:value"`
	// Document mirrors Value when it is a JSON object, for field queries.
	Document  datatypes.JSON `gorm:"column:document;type:json"`
	Version   uint64         `gorm:"column:version;not null"`
	Deleted   bool           `gorm:"column:deleted;not null;default:false"`
	UpdatedAt time.Time      `gorm:"column:updated_at"`
}

func (WorldState) TableName() string {
	return "ledger_world_state"
}

// KeyHistory is one committed write, chained to the previous write of the
// same key by Hash.
type KeyHistory struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	StateKey  []byte    `gorm:"column:state_key;not null;index"`
	TxID      string    `gorm:"column:tx_id;size:64;not null"`
	Timestamp time.Time `gorm:"column:timestamp;not null"`
	IsDelete  bool      `gorm:"column:is_delete;not null;default:false"`
	Value     []byte    `gorm:"column:value"`
	Hash      string    `gorm:"column:hash;size:64;not null"`
}

func (KeyHistory) TableName() string {
	return "ledger_key_history"
}

// LedgerBackend stores the ledger in Postgres or SQLite through GORM.
type LedgerBackend struct {
	DB *gorm.DB
}

var _ ledger.Backend = (*LedgerBackend)(nil)
var _ ledger.DocumentQuerier = (*LedgerBackend)(nil)

func (b *LedgerBackend) Get(ctx context.Context, key string) (ledger.Versioned, error) {
	var row WorldState
	err := b.DB.WithContext(ctx).Where("state_key = ?", []byte(key)).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Versioned{Key: key}, nil
	}
	if err != nil {
		return ledger.Versioned{}, err
	}
	return toVersioned(row), nil
}

func (b *LedgerBackend) Range(ctx context.Context, startKey, endKey string) ([]ledger.Versioned, error) {
	q := b.DB.WithContext(ctx).Where("deleted = ?", false).Where("state_key >= ?", []byte(startKey))
	if endKey != "" {
		q = q.Where("state_key < ?", []byte(endKey))
	}
	var rows []WorldState
	if err := q.Order("state_key ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toVersionedList(rows), nil
}

// QueryDocuments matches top-level string fields of JSON values in SQL.
func (b *LedgerBackend) QueryDocuments(ctx context.Context, selector map[string]string) ([]ledger.Versioned, error) {
	fields := make([]string, 0, len(selector))
	for field := range selector {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	q := b.DB.WithContext(ctx).Where("deleted = ?", false).Where("document IS NOT NULL")
	for _, field := range fields {
		q = q.Where(datatypes.JSONQuery("document").Equals(selector[field], field))
	}
	var rows []WorldState
	if err := q.Order("state_key ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ledger.Versioned, 0, len(rows))
	for _, row := range rows {
		v := toVersioned(row)
		if ledger.IsCompositeKey(v.Key) || !ledger.MatchDocument(v.Value, selector) {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (b *LedgerBackend) History(ctx context.Context, key string) ([]ledger.KeyModification, error) {
	var rows []KeyHistory
	err := b.DB.WithContext(ctx).Where("state_key = ?", []byte(key)).Order("id ASC").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]ledger.KeyModification, 0, len(rows))
	for _, row := range rows {
		out = append(out, toModification(row))
	}
	return out, nil
}

// Commit validates and applies c in one SQL transaction. Keys read before
// being written are updated conditionally on their version, so a concurrent
// writer turns into zero affected rows.
func (b *LedgerBackend) Commit(ctx context.Context, c ledger.Commit) error {
	err := b.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		writing := make(map[string]bool, len(c.Writes))
		for _, w := range c.Writes {
			writing[w.Key] = true
		}
		readKeys := make([]string, 0, len(c.Reads))
		for key := range c.Reads {
			if !writing[key] {
				readKeys = append(readKeys, key)
			}
		}
		sort.Strings(readKeys)
		for _, key := range readKeys {
			current, err := b.lockedVersion(tx, key)
			if err != nil {
				return err
			}
			if current != c.Reads[key] {
				return fmt.Errorf("%w: key %q at version %d, read %d", ledger.ErrConflict, key, current, c.Reads[key])
			}
		}
		for _, w := range c.Writes {
			if err := b.applyWrite(tx, c, w); err != nil {
				return err
			}
		}
		return nil
	})
	return err
}

func (b *LedgerBackend) applyWrite(tx *gorm.DB, c ledger.Commit, w ledger.Write) error {
	key := []byte(w.Key)
	var value []byte
	var document datatypes.JSON
	if !w.IsDelete {
		value = w.Value
		if value == nil {
			value = []byte{}
		}
		if len(value) > 0 && value[0] == '{' && json.Valid(value) {
			document = datatypes.JSON(value)
		}
	}

	seen, wasRead := c.Reads[w.Key]
	switch {
	case wasRead && seen == 0:
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&WorldState{
			StateKey: key, Value: value, Document: document, Version: 1, Deleted: w.IsDelete, UpdatedAt: c.Timestamp,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("%w: key %q created concurrently", ledger.ErrConflict, w.Key)
		}
	case wasRead:
		res := tx.Model(&WorldState{}).
			Where("state_key = ? AND version = ?", key, seen).
			Updates(map[string]any{
				"value":      value,
				"document":   document,
				"version":    seen + 1,
				"deleted":    w.IsDelete,
				"updated_at": c.Timestamp,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("%w: key %q changed since read at version %d", ledger.ErrConflict, w.Key, seen)
		}
	default:
		res := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "state_key"}},
			DoUpdates: clause.Assignments(map[string]any{
				"value":      value,
				"document":   document,
				"version":    gorm.Expr("ledger_world_state.version + 1"),
				"deleted":    w.IsDelete,
				"updated_at": c.Timestamp,
			}),
		}).Create(&WorldState{
			StateKey: key, Value: value, Document: document, Version: 1, Deleted: w.IsDelete, UpdatedAt: c.Timestamp,
		})
		if res.Error != nil {
			return res.Error
		}
	}

	// The state row is locked by now, so the chain head cannot move under us.
	var last KeyHistory
	res := tx.Where("state_key = ?", key).Order("id DESC").Limit(1).Find(&last)
	if res.Error != nil {
		return res.Error
	}
	prevHash := ""
	if res.RowsAffected > 0 {
		if !c.Timestamp.After(last.Timestamp) {
			return fmt.Errorf("%w: key %q has a newer write", ledger.ErrConflict, w.Key)
		}
		prevHash = last.Hash
	}
	mod := ledger.KeyModification{TxID: c.TxID, Timestamp: c.Timestamp, IsDelete: w.IsDelete, Value: value}
	if w.IsDelete {
		mod.Value = nil
	}
	mod.Hash = ledger.ChainHash(prevHash, mod)
	return tx.Create(&KeyHistory{
		StateKey:  key,
		TxID:      mod.TxID,
		Timestamp: mod.Timestamp,
		IsDelete:  mod.IsDelete,
		Value:     mod.Value,
		Hash:      mod.Hash,
	}).Error
}

// lockedVersion reads the version of key, share-locking the row on Postgres.
func (b *LedgerBackend) lockedVersion(tx *gorm.DB, key string) (uint64, error) {
	q := tx.Model(&WorldState{}).Select("version").Where("state_key = ?", []byte(key))
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "SHARE"})
	}
	var versions []uint64
	if err := q.Pluck("version", &versions).Error; err != nil {
		return 0, err
	}
	if len(versions) == 0 {
		return 0, nil
	}
	return versions[0], nil
}

func (b *LedgerBackend) Ping(ctx context.Context) error {
	sqlDB, err := b.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close is a no-op; the DB handle belongs to the caller.
func (b *LedgerBackend) Close() error {
	return nil
}

func toVersioned(row WorldState) ledger.Versioned {
	return ledger.Versioned{
		Key:     string(row.StateKey),
		Value:   row.Value,
		Version: row.Version,
		Exists:  !row.Deleted,
	}
}

func toVersionedList(rows []WorldState) []ledger.Versioned {
	out := make([]ledger.Versioned, 0, len(rows))
	for _, row := range rows {
		out = append(out, toVersioned(row))
	}
	return out
}

func toModification(row KeyHistory) ledger.KeyModification {
	m := ledger.KeyModification{
		TxID:      row.TxID,
		Timestamp: row.Timestamp.UTC(),
		IsDelete:  row.IsDelete,
		Value:     row.Value,
		Hash:      row.Hash,
	}
	if !m.IsDelete && m.Value == nil {
		m.Value = []byte{}
	}
	return m
}
