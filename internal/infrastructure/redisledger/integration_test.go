//go:build integration
// +build integration

package redisledger

import (
	"context"
	"fmt"
	"os"
	"testing"

	"greencredits-ledger/internal/ledger"
	"greencredits-ledger/internal/ledger/ledgertest"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// TestBackend_RealRedis runs the backend suite against real Redis when REDIS_URL is set.
// Run with: go test -tags=integration ./internal/infrastructure/redisledger/... -v
func TestBackend_RealRedis(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set, skipping integration test")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)

	ledgertest.RunBackendSuite(t, func(t *testing.T) ledger.Backend {
		rdb := redis.NewClient(opt)
		prefix := fmt.Sprintf("it-%s", uuid.NewString())
		t.Cleanup(func() {
			ctx := context.Background()
			keys, _ := rdb.Keys(ctx, fmt.Sprintf("{%s}:*", prefix)).Result()
			if len(keys) > 0 {
				_ = rdb.Del(ctx, keys...).Err()
			}
			_ = rdb.Close()
		})
		return New(rdb, prefix)
	})
}
