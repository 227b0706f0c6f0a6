package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/BaSui01/agentfed/config"
	"github.com/BaSui01/agentfed/internal/database"
	"github.com/BaSui01/agentfed/internal/migration"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// NewSQLitePool 创建已迁移到最新版本的临时 SQLite 库
func NewSQLitePool(t *testing.T) *database.PoolManager {
	t.Helper()

	path := filepath.Join(t.TempDir(), "agentfed.db")

	m, err := migration.NewMigratorFromURL("sqlite", migration.BuildDatabaseURL(migration.DatabaseTypeSQLite, "", 0, path, "", "", ""))
	require.NoError(t, err)
	require.NoError(t, m.Up(context.Background()))
	require.NoError(t, m.Close())

	pm, err := database.Open(config.DatabaseConfig{
		Driver:       "sqlite",
		Name:         "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		MaxOpenConns: 1,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pm.Close() })

	return pm
}
