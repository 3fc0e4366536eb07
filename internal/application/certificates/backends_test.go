package certificates

import (
	"context"
	"testing"

	"greencredits-ledger/internal/domain"
	"greencredits-ledger/internal/infrastructure/database"
	"greencredits-ledger/internal/infrastructure/redisledger"
	"greencredits-ledger/internal/ledger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends returns one fresh service per ledger storage backend.
func backends(t *testing.T) map[string]*Service {
	t.Helper()

	db, err := database.Open("sqlite::memory:")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return map[string]*Service{
		"memory": {Ledger: ledger.NewMemory()},
		"sqlite": {Ledger: ledger.New(&database.LedgerBackend{DB: db})},
		"redis":  {Ledger: ledger.New(redisledger.New(rdb, "certs"))},
	}
}

func TestLifecycle_AllBackends(t *testing.T) {
	for name, svc := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := svc.CreateCertificate(ctx, input("CERT-1", "alice"))
			require.NoError(t, err)
			other := input("CERT-2", "bob")
			other.FileHash = "ff00"
			_, err = svc.CreateCertificate(ctx, other)
			require.NoError(t, err)

			_, err = svc.UpdateAuthStatus(ctx, "CERT-1", "authenticated")
			require.NoError(t, err)
			listed, err := svc.ListCertificateOnMarketplace(ctx, "CERT-1", decimal.RequireFromString("12.5"), "mangroves")
			require.NoError(t, err)
			assert.True(t, listed.Marketplace.TotalValue.Equal(decimal.NewFromInt(1250)))

			listings, err := svc.GetMarketplaceListings(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"CERT-1"}, ids(listings))

			byHash, err := svc.GetCertificatesByFileHash(ctx, "ab12cd")
			require.NoError(t, err)
			assert.Equal(t, []string{"CERT-1"}, ids(byHash))

			_, err = svc.UnlistCertificateFromMarketplace(ctx, "CERT-1")
			require.NoError(t, err)
			_, err = svc.RetireCertificate(ctx, "CERT-1")
			require.NoError(t, err)
			_, err = svc.RetireCertificate(ctx, "CERT-1")
			assert.Equal(t, domain.KindFailedPrecondition, domain.KindOf(err))

			retired, err := svc.GetCertificatesByLifecycleStatus(ctx, "retired")
			require.NoError(t, err)
			assert.Equal(t, []string{"CERT-1"}, ids(retired))
			active, err := svc.GetCertificatesByLifecycleStatus(ctx, "active")
			require.NoError(t, err)
			assert.Equal(t, []string{"CERT-2"}, ids(active))
			listings, err = svc.GetMarketplaceListings(ctx)
			require.NoError(t, err)
			assert.Empty(t, listings)

			all, err := svc.GetAllCertificates(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"CERT-1", "CERT-2"}, ids(all))

			history, err := svc.GetCertificateHistory(ctx, "CERT-1")
			require.NoError(t, err)
			require.Len(t, history, 5)
			assert.Equal(t, domain.AuthStatusPending, history[0].Data.AuthStatus)
			assert.Equal(t, domain.LifecycleStatusRetired, history[4].Data.LifecycleStatus)

			report, err := svc.VerifyCertificateHistory(ctx, "CERT-1")
			require.NoError(t, err)
			assert.True(t, report.Intact)
		})
	}
}

func TestGetCertificatesByFileHash(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.CreateCertificate(ctx, input("CERT-1", "alice"))
	require.NoError(t, err)
	_, err = svc.CreateCertificate(ctx, input("CERT-2", "bob"))
	require.NoError(t, err)

	found, err := svc.GetCertificatesByFileHash(ctx, "ab12cd")
	require.NoError(t, err)
	assert.Equal(t, []string{"CERT-1", "CERT-2"}, ids(found))

	found, err = svc.GetCertificatesByFileHash(ctx, "unknown")
	require.NoError(t, err)
	assert.NotNil(t, found)
	assert.Empty(t, found)

	_, err = svc.GetCertificatesByFileHash(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	out, err := svc.Invoke(ctx, "GetCertificatesByFileHash", []string{"ab12cd"})
	require.NoError(t, err)
	assert.Len(t, out.([]*domain.Certificate), 2)
}
