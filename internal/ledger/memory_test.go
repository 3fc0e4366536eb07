package ledger_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"greencredits-ledger/internal/ledger"
	"greencredits-ledger/internal/ledger/ledgertest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackend(t *testing.T) {
	ledgertest.RunBackendSuite(t, func(t *testing.T) ledger.Backend {
		return ledger.NewMemoryBackend()
	})
}

func TestMemory_ConcurrentWritersOneWinsPerRound(t *testing.T) {
	l := ledger.NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	var ok, conflicts int64
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Submit(ctx, func(stub ledger.Stub) error {
				v, err := stub.GetState("counter")
				if err != nil {
					return err
				}
				return stub.PutState("counter", append(v, 'x'))
			})
			if err == nil {
				atomic.AddInt64(&ok, 1)
			} else {
				assert.ErrorIs(t, err, ledger.ErrConflict)
				atomic.AddInt64(&conflicts, 1)
			}
		}()
	}
	wg.Wait()

	var final []byte
	require.NoError(t, l.Evaluate(ctx, func(stub ledger.Stub) error {
		var err error
		final, err = stub.GetState("counter")
		return err
	}))
	assert.Equal(t, int64(20), ok+conflicts)
	assert.Len(t, final, int(ok))
}
