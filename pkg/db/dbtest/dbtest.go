// Package dbtest opens throwaway sqlite databases migrated with the service models.
package dbtest

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/Lavavarshney/Library-Management-System/pkg/db/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open returns an isolated in-memory database with all models migrated.
// A single pooled connection keeps concurrent test writers from tripping
// shared-cache table locks.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:lib_" + uuid.NewString() + "?mode=memory&cache=shared"
	silent := gormlogger.New(
		log.New(io.Discard, "", log.LstdFlags),
		gormlogger.Config{LogLevel: gormlogger.Silent},
	)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 silent,
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, conn.AutoMigrate(models.All()...))
	return conn
}
