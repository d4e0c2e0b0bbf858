// Package store はプロジェクト状態・レンダー画像・チャットセッションを
// ローカルファイルシステムへ永続化します。
//
// レイアウト:
//
//	<base>/projects/<id>/state.json        プロジェクトの状態スナップショット
//	<base>/projects/<id>/renders/page_*.png ページ画像のバイナリ
//	<base>/sessions/<id>.json              チャットセッションのスナップショット
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/shouni/go-banana-kit/pkg/domain"
	"github.com/shouni/go-banana-kit/pkg/session"
	"github.com/shouni/go-banana-kit/pkg/workshop"
)

// ErrSessionNotFound はストレージに該当IDのセッションが無いことを示します。
var ErrSessionNotFound = errors.New("セッションが見つかりません")

const (
	projectsDirName = "projects"
	sessionsDirName = "sessions"
	rendersDirName  = "renders"
	stateFileName   = "state.json"
)

// FileStore は workshop.Store のファイルシステム実装です。
// state.json の書き込みが並行レンダーで競合しないよう直列化します。
type FileStore struct {
	mu      sync.Mutex
	baseDir string
}

// NewFileStore はベースディレクトリ配下に保存する FileStore を返します。
func NewFileStore(baseDir string) (*FileStore, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("保存先ディレクトリは必須です")
	}
	return &FileStore{baseDir: baseDir}, nil
}

// SaveProject は状態スナップショットを state.json へ書き出します。
// レンダーの画像バイナリは含まれません（SaveRender が別管理します）。
func (s *FileStore) SaveProject(ctx context.Context, project *domain.Project) error {
	if project == nil {
		return fmt.Errorf("プロジェクトが nil です")
	}
	if err := validateID(project.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.projectDir(project.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("保存先の作成に失敗しました: %w", err)
	}
	data, err := json.MarshalIndent(project, "", "  ")
	if err != nil {
		return fmt.Errorf("プロジェクトのシリアライズに失敗しました: %w", err)
	}
	return writeFileAtomic(filepath.Join(dir, stateFileName), data, 0o644)
}

// LoadProject は state.json を読み込み、保存済みのページ画像も復元します。
// 該当IDが無い場合は workshop.ErrProjectNotFound を返します。
func (s *FileStore) LoadProject(ctx context.Context, id string) (*domain.Project, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.projectDir(id), stateFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", workshop.ErrProjectNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("プロジェクトの読み込みに失敗しました: %w", err)
	}

	var project domain.Project
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("プロジェクトの状態ファイルが壊れています: %w", err)
	}
	if project.Renders == nil {
		project.Renders = make(map[int]*domain.Render)
	}

	// 状態スナップショットに載っているレンダーのバイナリを突き合わせる。
	// バイナリを失ったエントリはレンダーなしとして扱う。
	rendersDir := filepath.Join(s.projectDir(id), rendersDirName)
	for page, render := range project.Renders {
		binary, err := os.ReadFile(filepath.Join(rendersDir, renderFileName(page, render.MIMEType)))
		if errors.Is(err, fs.ErrNotExist) {
			slog.Warn("レンダーのバイナリが見つからないため破棄します", "project", id, "page", page)
			delete(project.Renders, page)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("レンダーの読み込みに失敗しました: %w", err)
		}
		render.Data = binary
	}
	return &project, nil
}

// SaveRender はページ画像のバイナリを書き出します。
func (s *FileStore) SaveRender(ctx context.Context, projectID string, page int, render *domain.Render) error {
	if err := validateID(projectID); err != nil {
		return err
	}
	if render == nil || len(render.Data) == 0 {
		return fmt.Errorf("レンダーの画像データが空です")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.projectDir(projectID), rendersDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("保存先の作成に失敗しました: %w", err)
	}
	// 同じページの旧拡張子のファイルが残らないよう先に払う
	if err := removeRenderFiles(dir, page); err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(dir, renderFileName(page, render.MIMEType)), render.Data, 0o644)
}

// DeleteRender は保存済みページ画像を破棄します。存在しなければ何もしません。
func (s *FileStore) DeleteRender(ctx context.Context, projectID string, page int) error {
	if err := validateID(projectID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return removeRenderFiles(filepath.Join(s.projectDir(projectID), rendersDirName), page)
}

// SaveSession はチャットセッションのスナップショットを書き出します。
func (s *FileStore) SaveSession(ctx context.Context, st session.State) error {
	if err := validateID(st.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.baseDir, sessionsDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("保存先の作成に失敗しました: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("セッションのシリアライズに失敗しました: %w", err)
	}
	return writeFileAtomic(filepath.Join(dir, st.ID+".json"), data, 0o644)
}

// LoadSession はチャットセッションのスナップショットを読み込みます。
// 該当IDが無い場合は ErrSessionNotFound を返します。
func (s *FileStore) LoadSession(ctx context.Context, id string) (session.State, error) {
	var st session.State
	if err := validateID(id); err != nil {
		return st, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.baseDir, sessionsDirName, id+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return st, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return st, fmt.Errorf("セッションの読み込みに失敗しました: %w", err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("セッションの状態ファイルが壊れています: %w", err)
	}
	return st, nil
}

func (s *FileStore) projectDir(id string) string {
	return filepath.Join(s.baseDir, projectsDirName, id)
}

// renderFileName はページ番号とMIMEタイプから保存ファイル名を決めます。
func renderFileName(page int, mimeType string) string {
	ext := ".png"
	switch mimeType {
	case "image/jpeg":
		ext = ".jpg"
	case "image/webp":
		ext = ".webp"
	}
	return fmt.Sprintf("page_%04d%s", page, ext)
}

// removeRenderFiles は拡張子を問わず該当ページの画像ファイルを削除します。
func removeRenderFiles(dir string, page int) error {
	matches, err := filepath.Glob(filepath.Join(dir, fmt.Sprintf("page_%04d.*", page)))
	if err != nil {
		return fmt.Errorf("レンダーファイルの探索に失敗しました: %w", err)
	}
	for _, match := range matches {
		if err := os.Remove(match); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("レンダーファイルの削除に失敗しました: %w", err)
		}
	}
	return nil
}

// validateID は識別子がパス区切りなどを含まないことを確かめます。
func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("識別子が空です")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("不正な識別子です: %q", id)
	}
	return nil
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
