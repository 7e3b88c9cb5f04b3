package database_test

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/custupload/internal/core"
	"github.com/JonMunkholm/custupload/internal/database"
)

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, database.Migrate(ctx, pool))
	_, err = pool.Exec(ctx, "DELETE FROM customers")
	require.NoError(t, err)
	return pool
}

func TestCustomerRepositoryIntegration(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := database.NewCustomerRepository(pool)

	_, err := repo.FindByNaturalKey(ctx, "a@x.io")
	require.ErrorIs(t, err, core.ErrNotFound)

	c := &core.Customer{NaturalKey: "a@x.io", Profile: core.Profile{Email: "a@x.io", Name: "Ann"}}
	require.NoError(t, repo.Create(ctx, c))
	assert.Equal(t, int64(1), c.Version)

	dup := &core.Customer{NaturalKey: "a@x.io", Profile: core.Profile{Name: "Other"}}
	assert.ErrorIs(t, repo.Create(ctx, dup), core.ErrDuplicateKey)

	got, err := repo.FindByNaturalKey(ctx, "a@x.io")
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.Empty(t, got.Phone)

	got.Name = "Anne"
	require.NoError(t, repo.Update(ctx, &got, 1))
	assert.Equal(t, int64(2), got.Version)
	assert.ErrorIs(t, repo.Update(ctx, &got, 1), core.ErrStaleVersion)

	total, err := repo.CountCustomers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	list, err := repo.ListCustomers(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Anne", list[0].Name)
}

func TestConcurrentUploadsIntegration(t *testing.T) {
	pool := testPool(t)
	repo := database.NewCustomerRepository(pool)
	svc := core.NewService(repo, nil, nil, core.ServiceConfig{MaxConcurrent: 4})

	file := "name,email\nAnn,a@x.io\nBob,b@x.io\nCid,c@x.io\n"

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rep, err := svc.IngestUpload(context.Background(), strings.NewReader(file), core.UploadOptions{FileName: "c.csv"})
			if assert.NoError(t, err) {
				assert.Equal(t, core.StatusCompleted, rep.Status)
				assert.Zero(t, rep.Counts.Failed)
			}
		}()
	}
	wg.Wait()

	total, err := repo.CountCustomers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}
