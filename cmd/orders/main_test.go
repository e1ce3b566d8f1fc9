package main

import (
	"path/filepath"
	"testing"
)

// TestRun は起動失敗時に終了コードを返すことのテスト。環境変数を変更するため並列実行しない。
func TestRun(t *testing.T) {
	t.Run("データベースを開けない場合は終了コード1を返す", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "error")
		t.Setenv("DATABASE_PATH", filepath.Join(t.TempDir(), "missing", "app.db"))

		if got := run(); got != 1 {
			t.Errorf("終了コード: got %d, want 1", got)
		}
	})
}
