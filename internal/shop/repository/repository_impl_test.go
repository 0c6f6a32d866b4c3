package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/flashsale/internal/shop/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.AutoMigrate(&domain.Shop{}))
	return conn
}

func TestRepository_InsertFindUpdate(t *testing.T) {
	db := setupDB(t)
	repo := Provide()
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	shop := &domain.Shop{ID: 11, Name: "Dumplings", Area: "Harbor", AvgPrice: 80, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.Insert(ctx, db, shop))

	got, err := repo.FindByID(ctx, db, 11)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Dumplings", got.Name)
	assert.Equal(t, int64(80), got.AvgPrice)

	got.Name = "Dumpling House"
	ok, err := repo.Update(ctx, db, got)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = repo.FindByID(ctx, db, 11)
	require.NoError(t, err)
	assert.Equal(t, "Dumpling House", got.Name)
}

func TestRepository_Missing(t *testing.T) {
	db := setupDB(t)
	repo := Provide()
	ctx := context.Background()

	got, err := repo.FindByID(ctx, db, 12)
	require.NoError(t, err)
	assert.Nil(t, got)

	ok, err := repo.Update(ctx, db, &domain.Shop{ID: 12, Name: "none"})
	require.NoError(t, err)
	assert.False(t, ok)
}
