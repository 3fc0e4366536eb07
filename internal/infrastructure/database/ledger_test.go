package database

import (
	"context"
	"testing"

	"greencredits-ledger/internal/ledger"
	"greencredits-ledger/internal/ledger/ledgertest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteBackend(t *testing.T) ledger.Backend {
	t.Helper()
	db, err := Open("sqlite::memory:")
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	return &LedgerBackend{DB: db}
}

func TestLedgerBackend_SQLite(t *testing.T) {
	ledgertest.RunBackendSuite(t, newSQLiteBackend)
}

func TestLedgerBackend_TombstoneKeepsVersion(t *testing.T) {
	b := newSQLiteBackend(t).(*LedgerBackend)
	l := ledger.New(b)
	ctx := context.Background()

	require.NoError(t, l.Submit(ctx, func(stub ledger.Stub) error { return stub.PutState("k", []byte(`{"a":"1"}`)) }))
	require.NoError(t, l.Submit(ctx, func(stub ledger.Stub) error { return stub.DelState("k") }))

	v, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, v.Exists)
	assert.Equal(t, uint64(2), v.Version)

	var row WorldState
	require.NoError(t, b.DB.Where("state_key = ?", []byte("k")).Take(&row).Error)
	assert.True(t, row.Deleted)
	assert.Contains(t, []string{"", "null"}, string(row.Document))

	require.NoError(t, l.Submit(ctx, func(stub ledger.Stub) error {
		prev, err := stub.GetState("k")
		if err != nil {
			return err
		}
		assert.Nil(t, prev)
		return stub.PutState("k", []byte(`{"a":"2"}`))
	}))
	v, err = b.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, v.Exists)
	assert.Equal(t, uint64(3), v.Version)
}

func TestLedgerBackend_DocumentMirror(t *testing.T) {
	b := newSQLiteBackend(t).(*LedgerBackend)
	l := ledger.New(b)
	ctx := context.Background()

	require.NoError(t, l.Submit(ctx, func(stub ledger.Stub) error {
		if err := stub.PutState("doc", []byte(`{"owner":"alice"}`)); err != nil {
			return err
		}
		return stub.PutState("raw", []byte("plain bytes"))
	}))

	var rows []WorldState
	require.NoError(t, b.DB.Order("state_key ASC").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.JSONEq(t, `{"owner":"alice"}`, string(rows[0].Document))
	assert.Contains(t, []string{"", "null"}, string(rows[1].Document))

	found, err := b.QueryDocuments(ctx, map[string]string{"owner": "alice"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "doc", found[0].Key)
}
