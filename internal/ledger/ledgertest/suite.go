// Package ledgertest holds the behaviour every ledger backend must share.
package ledgertest

import (
	"context"
	"errors"
	"testing"

	"greencredits-ledger/internal/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBackendSuite exercises a backend through ledger.New.
func RunBackendSuite(t *testing.T, newBackend func(t *testing.T) ledger.Backend) {
	t.Run("PutGet", func(t *testing.T) { testPutGet(t, ledger.New(newBackend(t))) })
	t.Run("ReadsIgnoreOwnWrites", func(t *testing.T) { testReadsIgnoreOwnWrites(t, ledger.New(newBackend(t))) })
	t.Run("FailedFunctionWritesNothing", func(t *testing.T) { testFailedFunctionWritesNothing(t, ledger.New(newBackend(t))) })
	t.Run("EvaluateIsReadOnly", func(t *testing.T) { testEvaluateIsReadOnly(t, ledger.New(newBackend(t))) })
	t.Run("RangeOrder", func(t *testing.T) { testRangeOrder(t, ledger.New(newBackend(t))) })
	t.Run("PartialCompositeKey", func(t *testing.T) { testPartialCompositeKey(t, ledger.New(newBackend(t))) })
	t.Run("QueryResult", func(t *testing.T) { testQueryResult(t, ledger.New(newBackend(t))) })
	t.Run("History", func(t *testing.T) { testHistory(t, ledger.New(newBackend(t))) })
	t.Run("Conflict", func(t *testing.T) { testConflict(t, ledger.New(newBackend(t))) })
	t.Run("ConflictOnAbsentKey", func(t *testing.T) { testConflictOnAbsentKey(t, ledger.New(newBackend(t))) })
	t.Run("Ping", func(t *testing.T) { require.NoError(t, ledger.New(newBackend(t)).Ping(context.Background())) })
}

func put(t *testing.T, l *ledger.Ledger, kvs ...string) {
	t.Helper()
	require.NoError(t, l.Submit(context.Background(), func(stub ledger.Stub) error {
		for i := 0; i+1 < len(kvs); i += 2 {
			if err := stub.PutState(kvs[i], []byte(kvs[i+1])); err != nil {
				return err
			}
		}
		return nil
	}))
}

func get(t *testing.T, l *ledger.Ledger, key string) []byte {
	t.Helper()
	var out []byte
	require.NoError(t, l.Evaluate(context.Background(), func(stub ledger.Stub) error {
		var err error
		out, err = stub.GetState(key)
		return err
	}))
	return out
}

func keys(kvs []ledger.KV) []string {
	out := make([]string, 0, len(kvs))
	for _, kv := range kvs {
		out = append(out, kv.Key)
	}
	return out
}

func testPutGet(t *testing.T, l *ledger.Ledger) {
	assert.Nil(t, get(t, l, "missing"))

	put(t, l, "a", `{"n":1}`, "marker", "")
	assert.Equal(t, []byte(`{"n":1}`), get(t, l, "a"))

	marker := get(t, l, "marker")
	require.NotNil(t, marker)
	assert.Len(t, marker, 0)

	put(t, l, "a", `{"n":2}`)
	assert.Equal(t, []byte(`{"n":2}`), get(t, l, "a"))

	require.NoError(t, l.Submit(context.Background(), func(stub ledger.Stub) error {
		return stub.DelState("a")
	}))
	assert.Nil(t, get(t, l, "a"))
}

func testReadsIgnoreOwnWrites(t *testing.T, l *ledger.Ledger) {
	put(t, l, "k", "old")
	require.NoError(t, l.Submit(context.Background(), func(stub ledger.Stub) error {
		require.NoError(t, stub.PutState("k", []byte("new")))
		v, err := stub.GetState("k")
		require.NoError(t, err)
		assert.Equal(t, []byte("old"), v)
		return nil
	}))
	assert.Equal(t, []byte("new"), get(t, l, "k"))
}

func testFailedFunctionWritesNothing(t *testing.T, l *ledger.Ledger) {
	boom := errors.New("boom")
	err := l.Submit(context.Background(), func(stub ledger.Stub) error {
		require.NoError(t, stub.PutState("k", []byte("v")))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, get(t, l, "k"))
}

func testEvaluateIsReadOnly(t *testing.T, l *ledger.Ledger) {
	err := l.Evaluate(context.Background(), func(stub ledger.Stub) error {
		return stub.PutState("k", []byte("v"))
	})
	assert.ErrorIs(t, err, ledger.ErrReadOnly)
	assert.Nil(t, get(t, l, "k"))
}

func testRangeOrder(t *testing.T, l *ledger.Ledger) {
	put(t, l, "c", "3", "a", "1", "b", "2", "d", "4")
	require.NoError(t, l.Submit(context.Background(), func(stub ledger.Stub) error {
		return stub.DelState("d")
	}))

	require.NoError(t, l.Evaluate(context.Background(), func(stub ledger.Stub) error {
		all, err := stub.GetStateByRange("", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, keys(all))

		bounded, err := stub.GetStateByRange("b", "c")
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, keys(bounded))

		empty, err := stub.GetStateByRange("c", "a")
		require.NoError(t, err)
		assert.Empty(t, empty)
		return nil
	}))
}

func testPartialCompositeKey(t *testing.T, l *ledger.Ledger) {
	k1, err := ledger.CreateCompositeKey("owner", []string{"alice", "CERT-2"})
	require.NoError(t, err)
	k2, err := ledger.CreateCompositeKey("owner", []string{"alice", "CERT-1"})
	require.NoError(t, err)
	k3, err := ledger.CreateCompositeKey("owner", []string{"alicia", "CERT-3"})
	require.NoError(t, err)
	put(t, l, k1, "", k2, "", k3, "", "CERT-1", "{}")

	require.NoError(t, l.Evaluate(context.Background(), func(stub ledger.Stub) error {
		kvs, err := stub.GetStateByPartialCompositeKey("owner", []string{"alice"})
		require.NoError(t, err)
		require.Len(t, kvs, 2)
		_, attrs, err := ledger.SplitCompositeKey(kvs[0].Key)
		require.NoError(t, err)
		assert.Equal(t, []string{"alice", "CERT-1"}, attrs)
		_, attrs, err = ledger.SplitCompositeKey(kvs[1].Key)
		require.NoError(t, err)
		assert.Equal(t, []string{"alice", "CERT-2"}, attrs)

		everyone, err := stub.GetStateByPartialCompositeKey("owner", nil)
		require.NoError(t, err)
		assert.Len(t, everyone, 3)
		return nil
	}))
}

func testQueryResult(t *testing.T, l *ledger.Ledger) {
	marker, err := ledger.CreateCompositeKey("owner", []string{"alice", "d1"})
	require.NoError(t, err)
	put(t, l,
		"d2", `{"docType":"carbonCredit","fileHash":"aa","owner":"bob"}`,
		"d1", `{"docType":"carbonCredit","fileHash":"aa","owner":"alice"}`,
		"d3", `{"docType":"carbonCredit","fileHash":"bb"}`,
		"d4", `{"docType":"other","fileHash":"aa"}`,
		"plain", "not json",
		marker, "",
	)
	require.NoError(t, l.Submit(context.Background(), func(stub ledger.Stub) error {
		return stub.DelState("d2")
	}))

	require.NoError(t, l.Evaluate(context.Background(), func(stub ledger.Stub) error {
		kvs, err := stub.GetQueryResult(map[string]string{"docType": "carbonCredit", "fileHash": "aa"})
		require.NoError(t, err)
		assert.Equal(t, []string{"d1"}, keys(kvs))

		kvs, err = stub.GetQueryResult(map[string]string{"fileHash": "aa"})
		require.NoError(t, err)
		assert.Equal(t, []string{"d1", "d4"}, keys(kvs))
		return nil
	}))
}

func testHistory(t *testing.T, l *ledger.Ledger) {
	put(t, l, "h", "v1")
	put(t, l, "h", "v2")
	require.NoError(t, l.Submit(context.Background(), func(stub ledger.Stub) error {
		return stub.DelState("h")
	}))
	put(t, l, "h", "v3")

	var mods []ledger.KeyModification
	require.NoError(t, l.Evaluate(context.Background(), func(stub ledger.Stub) error {
		var err error
		mods, err = stub.GetHistoryForKey("h")
		return err
	}))
	require.Len(t, mods, 4)
	assert.Equal(t, []byte("v1"), mods[0].Value)
	assert.Equal(t, []byte("v2"), mods[1].Value)
	assert.True(t, mods[2].IsDelete)
	assert.Empty(t, mods[2].Value)
	assert.Equal(t, []byte("v3"), mods[3].Value)
	for i := 1; i < len(mods); i++ {
		assert.True(t, mods[i].Timestamp.After(mods[i-1].Timestamp))
		assert.NotEqual(t, mods[i].TxID, mods[i-1].TxID)
	}
	assert.Equal(t, -1, ledger.VerifyChain(mods))
}

func testConflict(t *testing.T, l *ledger.Ledger) {
	ctx := context.Background()
	put(t, l, "k", "0")
	err := l.Submit(ctx, func(stub ledger.Stub) error {
		if _, err := stub.GetState("k"); err != nil {
			return err
		}
		put(t, l, "k", "other")
		return stub.PutState("k", []byte("mine"))
	})
	assert.ErrorIs(t, err, ledger.ErrConflict)
	assert.Equal(t, []byte("other"), get(t, l, "k"))
}

func testConflictOnAbsentKey(t *testing.T, l *ledger.Ledger) {
	ctx := context.Background()
	err := l.Submit(ctx, func(stub ledger.Stub) error {
		v, err := stub.GetState("fresh")
		if err != nil {
			return err
		}
		assert.Nil(t, v)
		put(t, l, "fresh", "winner")
		return stub.PutState("fresh", []byte("loser"))
	})
	assert.ErrorIs(t, err, ledger.ErrConflict)
	assert.Equal(t, []byte("winner"), get(t, l, "fresh"))
}
