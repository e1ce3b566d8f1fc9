package orders

import (
	"context"
	"database/sql"
	"embed"

	"github.com/nao1215/edgegate/pkg/migration"
	"go.uber.org/zap"
)

// migrations はordersテーブルとorder_eventsテーブルのマイグレーションファイル。
//
//go:embed migrations/*.sql
var migrations embed.FS

// openDB はSQLiteデータベースを開き、ordersテーブルとorder_eventsテーブルを作成する。
func openDB(ctx context.Context, path string, logger *zap.Logger) (*sql.DB, error) {
	return migration.OpenSQLite(ctx, path, migrations, "migrations", logger)
}
