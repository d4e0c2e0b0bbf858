// Package asset はナレッジベース（@メンションで参照できる画像群）の
// 読み込みと、生成済みポートレートの保存先を提供します。
//
// アセットディレクトリのレイアウト:
//
//	<assets>/entities.json   画像と名前の対応表（任意）
//	<assets>/*.png 等        対応表に無い画像はファイル名で自動登録
//	<assets>/portraits/      生成済みポートレート（次回起動時に再登録）
package asset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/shouni/go-banana-kit/pkg/catalog"
	"github.com/shouni/go-banana-kit/pkg/domain"
)

const (
	manifestFileName = "entities.json"
	portraitsDirName = "portraits"

	defaultCacheExpiration = 30 * time.Minute
	cacheCleanupInterval   = 1 * time.Hour
)

// manifestEntry は対応表の1行で、表示名と画像ファイルを結びつけます。
type manifestEntry struct {
	Name string `json:"name"`
	File string `json:"file"`
}

// manifest は entities.json の全体構造です。style_references に載せた
// 画像はエンティティではなく作品全体の画風参照として登録されます。
type manifest struct {
	Entities  []manifestEntry `json:"entities"`
	StyleRefs []manifestEntry `json:"style_references"`
}

// Library はアセットディレクトリからカタログへの取り込みを担います。
// 画像の読み込みはキャッシュされ、同じファイルへの並行読み込みは
// singleflight で1回に集約されます。
type Library struct {
	dir        string
	byteBudget int
	imgCache   *cache.Cache
	readGroup  singleflight.Group
}

// NewLibrary はアセットディレクトリを指す Library を返します。
// byteBudget が正の場合、それを超える画像はオフライン登録されます。
func NewLibrary(dir string, byteBudget int) *Library {
	return &Library{
		dir:        dir,
		byteBudget: byteBudget,
		imgCache:   cache.New(defaultCacheExpiration, cacheCleanupInterval),
	}
}

// Dir はアセットディレクトリのパスを返します。
func (l *Library) Dir() string {
	return l.dir
}

// LoadInto はアセットディレクトリの内容をカタログへ登録し、登録した
// 参照の数を返します。登録順は 対応表 → ディレクトリ走査 → ポートレート
// で、同名のポートレートは既存のエンティティを上書きします。
func (l *Library) LoadInto(ctx context.Context, cat *catalog.Catalog) (int, error) {
	if _, err := os.Stat(l.dir); errors.Is(err, fs.ErrNotExist) {
		slog.InfoContext(ctx, "アセットディレクトリが無いためナレッジベースは空です", "dir", l.dir)
		return 0, nil
	}

	mf, err := l.readManifest()
	if err != nil {
		return 0, err
	}

	loaded := 0
	usedFiles := make(map[string]struct{})

	for _, entry := range mf.Entities {
		ent, err := l.loadEntry(ctx, entry)
		if err != nil {
			return loaded, err
		}
		if err := cat.Put(ent); err != nil {
			return loaded, err
		}
		usedFiles[entry.File] = struct{}{}
		if ent.PreviewPath != "" {
			usedFiles[ent.PreviewPath] = struct{}{}
		}
		loaded++
	}
	for _, entry := range mf.StyleRefs {
		ref, err := l.loadEntry(ctx, entry)
		if err != nil {
			return loaded, err
		}
		if err := cat.PutSceneRef(ref); err != nil {
			return loaded, err
		}
		usedFiles[entry.File] = struct{}{}
		if ref.PreviewPath != "" {
			usedFiles[ref.PreviewPath] = struct{}{}
		}
		loaded++
	}

	n, err := l.scanLoose(ctx, cat, usedFiles)
	if err != nil {
		return loaded, err
	}
	loaded += n

	n, err = l.scanPortraits(ctx, cat)
	if err != nil {
		return loaded, err
	}
	loaded += n

	slog.InfoContext(ctx, "ナレッジベースを読み込みました", "dir", l.dir, "refs", loaded)
	return loaded, nil
}

// readManifest は entities.json を読み込みます。無ければ空の対応表を返します。
func (l *Library) readManifest() (manifest, error) {
	var mf manifest
	data, err := os.ReadFile(filepath.Join(l.dir, manifestFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return mf, nil
	}
	if err != nil {
		return mf, fmt.Errorf("対応表の読み込みに失敗しました: %w", err)
	}
	if err := json.Unmarshal(data, &mf); err != nil {
		return mf, fmt.Errorf("対応表 %s が壊れています: %w", manifestFileName, err)
	}
	return mf, nil
}

// loadEntry は対応表の1行をエンティティへ変換します。画像を読めない場合や
// サイズ超過の場合は、名前だけで参照できるオフライン・エンティティになります。
func (l *Library) loadEntry(ctx context.Context, entry manifestEntry) (domain.Entity, error) {
	name := strings.TrimSpace(entry.Name)
	if name == "" {
		return domain.Entity{}, fmt.Errorf("対応表に名前の無い行があります (file=%q)", entry.File)
	}
	if entry.File == "" || !filepath.IsLocal(entry.File) {
		return domain.Entity{}, fmt.Errorf("対応表のファイルパスが不正です: %q", entry.File)
	}

	mimeType := mimeForFile(entry.File)
	if mimeType == "" {
		slog.WarnContext(ctx, "画像形式を判定できないためオフライン登録します", "name", name, "file", entry.File)
		return domain.NewEntity(name, "", nil, ""), nil
	}

	file := entry.File
	data, err := l.readImage(filepath.Join(l.dir, file))
	if errors.Is(err, fs.ErrNotExist) {
		// 対応表が %エスケープ表記で書かれていることがあるため、復号した
		// パスでもう一度だけ探します。
		if decoded := decodedVariant(file); decoded != "" {
			file = decoded
			data, err = l.readImage(filepath.Join(l.dir, file))
		}
	}
	if errors.Is(err, fs.ErrNotExist) {
		slog.WarnContext(ctx, "画像ファイルが見つからないためオフライン登録します", "name", name, "file", entry.File)
		return domain.NewEntity(name, "", nil, ""), nil
	}
	if err != nil {
		return domain.Entity{}, err
	}
	if l.byteBudget > 0 && len(data) > l.byteBudget {
		slog.WarnContext(ctx, "サイズ超過のためオフライン登録します",
			"name", name, "file", entry.File, "bytes", len(data), "budget", l.byteBudget)
		return domain.NewEntity(name, "", nil, ""), nil
	}
	return domain.NewEntity(name, mimeType, data, file), nil
}

// decodedVariant は %エスケープ表記を復号した別表記を返します。復号できない、
// 表記が変わらない、またはディレクトリ外を指す場合は空文字を返します。
func decodedVariant(relPath string) string {
	decoded, err := url.PathUnescape(relPath)
	if err != nil || decoded == relPath || !filepath.IsLocal(decoded) {
		return ""
	}
	return decoded
}

// scanLoose は対応表に載っていないトップレベルの画像をファイル名で登録します。
func (l *Library) scanLoose(ctx context.Context, cat *catalog.Catalog, usedFiles map[string]struct{}) (int, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return 0, fmt.Errorf("アセットディレクトリの走査に失敗しました: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fileName := entry.Name()
		if _, used := usedFiles[fileName]; used {
			continue
		}
		mimeType := mimeForFile(fileName)
		if mimeType == "" {
			continue
		}
		name := strings.TrimSuffix(fileName, filepath.Ext(fileName))
		if name == "" {
			continue
		}
		if _, exists := cat.Get(name); exists {
			continue
		}

		ent, err := l.loadEntry(ctx, manifestEntry{Name: name, File: fileName})
		if err != nil {
			return loaded, err
		}
		if err := cat.Put(ent); err != nil {
			return loaded, err
		}
		loaded++
	}
	return loaded, nil
}

// scanPortraits は生成済みポートレートを登録します。キャラクターの最新の
// 同一性参照として、同名の既存エンティティを上書きします。
func (l *Library) scanPortraits(ctx context.Context, cat *catalog.Catalog) (int, error) {
	dir := filepath.Join(l.dir, portraitsDirName)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ポートレートディレクトリの走査に失敗しました: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fileName := entry.Name()
		mimeType := mimeForFile(fileName)
		if mimeType == "" {
			continue
		}
		name := strings.TrimSuffix(fileName, filepath.Ext(fileName))
		if name == "" {
			continue
		}

		relPath := filepath.Join(portraitsDirName, fileName)
		ent, err := l.loadEntry(ctx, manifestEntry{Name: name, File: relPath})
		if err != nil {
			return loaded, err
		}
		if err := cat.Put(ent); err != nil {
			return loaded, err
		}
		loaded++
	}
	return loaded, nil
}

// readImage は画像ファイルを読み込みます。結果はキャッシュされ、同じ
// ファイルへの並行読み込みは1回に集約されます。
func (l *Library) readImage(path string) ([]byte, error) {
	if cached, ok := l.imgCache.Get(path); ok {
		if data, ok := cached.([]byte); ok {
			return data, nil
		}
	}

	val, err, _ := l.readGroup.Do(path, func() (interface{}, error) {
		if cached, ok := l.imgCache.Get(path); ok {
			return cached, nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		l.imgCache.Set(path, data, cache.DefaultExpiration)
		return data, nil
	})
	if err != nil {
		return nil, err
	}

	data, ok := val.([]byte)
	if !ok {
		return nil, fmt.Errorf("キャッシュの内容が画像データではありません: %T", val)
	}
	return data, nil
}

// mimeForFile は拡張子から画像MIMEタイプを判定します。画像でなければ空文字です。
func mimeForFile(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return ""
	}
}
