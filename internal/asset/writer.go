package asset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DirWriter はローカルファイルシステムへ書き込む publisher.OutputWriter の
// 実装です。contentType はローカル保存では使いません。
type DirWriter struct{}

// Write はパスの親ディレクトリを作成してからアトミックに書き込みます。
func (DirWriter) Write(ctx context.Context, path string, data []byte, contentType string) error {
	if strings.HasPrefix(strings.ToLower(path), "gs://") {
		return fmt.Errorf("このライターは gs:// に書き込めません: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("保存先の作成に失敗しました: %w", err)
	}
	return writeFileAtomic(path, data, 0o644)
}
