// Package migration はサービスごとのSQLiteデータベースを開き、スキーマを最新にする。
// SQLファイルはembed.FSで各サービスに埋め込み、schema_migrationsテーブルで適用状態を追跡する。
package migration

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // database/sqlに"sqlite"ドライバを登録する
)

// upSuffix は適用対象のマイグレーションファイルの接尾辞。
const upSuffix = ".up.sql"

// OpenSQLite はpathのSQLiteデータベースを開き、dir配下のマイグレーションを適用する。
// pathに ":memory:" を含む場合はインメモリDBとして1接続に固定する。
func OpenSQLite(ctx context.Context, dbPath string, fsys fs.FS, dir string, logger *zap.Logger) (*sql.DB, error) {
	memory := strings.Contains(dbPath, ":memory:")
	dsn := dbPath
	if !memory {
		dsn = "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	if memory {
		// インメモリDBは接続ごとに別のDBになる
		db.SetMaxOpenConns(1)
	}

	if err := Run(ctx, db, fsys, dir, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return db, nil
}

// Run はdir配下の未適用のマイグレーションをバージョン順に適用する。
// ファイル名は "000001_description.up.sql" 形式。同じバージョンが複数ある場合はエラーにする。
func Run(ctx context.Context, db *sql.DB, fsys fs.FS, dir string, logger *zap.Logger) error {
	pending, err := collect(fsys, dir)
	if err != nil {
		return fmt.Errorf("マイグレーションファイルの収集に失敗: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL DEFAULT '',
			applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("マイグレーション管理テーブルの作成に失敗: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return fmt.Errorf("適用済みバージョンの取得に失敗: %w", err)
	}

	for _, s := range pending {
		if _, ok := applied[s.version]; ok {
			continue
		}
		if err := s.apply(ctx, db, fsys); err != nil {
			return fmt.Errorf("マイグレーション %06d_%s の適用に失敗: %w", s.version, s.name, err)
		}
		logger.Info("マイグレーションを適用しました",
			zap.Int64("version", s.version),
			zap.String("name", s.name),
		)
	}
	return nil
}

// step は1つのマイグレーションファイル。
type step struct {
	version int64
	name    string
	file    string
}

// collect はdir直下の*.up.sqlをバージョン順に並べて返す。
func collect(fsys fs.FS, dir string) ([]step, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var steps []step
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), upSuffix) {
			continue
		}
		s, err := parseStep(e.Name())
		if err != nil {
			return nil, err
		}
		s.file = path.Join(dir, e.Name())
		steps = append(steps, s)
	}

	slices.SortFunc(steps, func(a, b step) int { return cmp.Compare(a.version, b.version) })
	for i := 1; i < len(steps); i++ {
		if steps[i].version == steps[i-1].version {
			return nil, fmt.Errorf("バージョン %06d が重複している: %s, %s", steps[i].version, steps[i-1].file, steps[i].file)
		}
	}
	return steps, nil
}

// parseStep は "000001_description.up.sql" からバージョンと名前を取り出す。
func parseStep(filename string) (step, error) {
	prefix, name, ok := strings.Cut(strings.TrimSuffix(filename, upSuffix), "_")
	if !ok || name == "" {
		return step{}, fmt.Errorf("ファイル名の形式が不正: %s", filename)
	}
	version, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil || version <= 0 {
		return step{}, fmt.Errorf("バージョンが不正: %s", filename)
	}
	return step{version: version, name: name}, nil
}

// appliedVersions は適用済みのバージョンの集合を返す。
func appliedVersions(ctx context.Context, db *sql.DB) (map[int64]struct{}, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[int64]struct{})
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = struct{}{}
	}
	return applied, rows.Err()
}

// apply はSQLの実行とバージョンの記録を1つのトランザクションで行う。
func (s step) apply(ctx context.Context, db *sql.DB, fsys fs.FS) error {
	script, err := fs.ReadFile(fsys, s.file)
	if err != nil {
		return fmt.Errorf("ファイル読み込みに失敗: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, string(script)); err != nil {
		return fmt.Errorf("SQL実行に失敗: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name) VALUES (?, ?)", s.version, s.name,
	); err != nil {
		return fmt.Errorf("バージョン記録に失敗: %w", err)
	}
	return tx.Commit()
}
