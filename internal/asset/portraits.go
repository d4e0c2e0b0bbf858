package asset

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/patrickmn/go-cache"
)

// SavePortrait は生成済みポートレートをアセットディレクトリ配下へ保存し、
// プレビュー用の相対パスを返します。次回起動時には LoadInto が同じ画像を
// エンティティとして再登録します。
func (l *Library) SavePortrait(ctx context.Context, name, mimeType string, data []byte) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("ポートレート名は必須です")
	}
	if len(data) == 0 {
		return "", fmt.Errorf("ポートレートの画像データが空です")
	}

	dir := filepath.Join(l.dir, portraitsDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("保存先の作成に失敗しました: %w", err)
	}

	fileName := sanitizeFileName(name) + extensionForMIME(mimeType)
	fullPath := filepath.Join(dir, fileName)
	if err := writeFileAtomic(fullPath, data, 0o644); err != nil {
		return "", err
	}

	// 再読込時に古いバイト列を返さないようキャッシュを差し替える
	l.imgCache.Set(fullPath, data, cache.DefaultExpiration)

	relPath := filepath.Join(portraitsDirName, fileName)
	slog.InfoContext(ctx, "ポートレートを保存しました", "path", relPath, "bytes", len(data))
	return relPath, nil
}

// sanitizeFileName は名前をファイル名に使える形へ変換します。
func sanitizeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		default:
			return r
		}
	}, strings.TrimSpace(name))
}

// extensionForMIME は画像MIMEタイプに対応する拡張子を返します。
func extensionForMIME(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}

// writeFileAtomic は一時ファイル経由で書き込み、最後に rename で置き換えます。
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗しました: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("書き込みに失敗しました: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("権限の設定に失敗しました: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("一時ファイルのクローズに失敗しました: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("ファイルの置き換えに失敗しました: %w", err)
	}
	return nil
}
