package users

import (
	"context"
	"database/sql"
	"embed"

	"github.com/nao1215/edgegate/pkg/migration"
	"go.uber.org/zap"
)

// migrations はusersテーブルのマイグレーションファイル。
//
//go:embed migrations/*.sql
var migrations embed.FS

// openDB はSQLiteデータベースを開き、usersテーブルを作成する。
func openDB(ctx context.Context, path string, logger *zap.Logger) (*sql.DB, error) {
	return migration.OpenSQLite(ctx, path, migrations, "migrations", logger)
}
