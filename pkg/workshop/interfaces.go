package workshop

import (
	"context"
	"errors"

	"google.golang.org/genai"

	"github.com/shouni/go-banana-kit/pkg/domain"
	"github.com/shouni/go-banana-kit/pkg/gateway"
)

var (
	// ErrStaleResult は、応答待ちの間により新しい同種リクエストが発行された
	// ため結果を破棄したことを示します。状態は一切変更されていません。
	ErrStaleResult = errors.New("結果はより新しいリクエストにより破棄されました")

	// ErrProjectNotFound はストレージに該当IDのプロジェクトが無いことを示します。
	ErrProjectNotFound = errors.New("プロジェクトが見つかりません")
)

// Extractor は構造化JSON抽出の依存先です。gateway.Client が実装します。
type Extractor interface {
	ExtractJSON(ctx context.Context, system string, history []domain.Turn, schema *genai.Schema) ([]byte, error)
}

// Renderer は画像生成の依存先です。gateway.Client が実装します。
type Renderer interface {
	Render(ctx context.Context, history []domain.Turn, opts gateway.RenderOptions) (*gateway.Reply, error)
}

// Store はプロジェクト状態の永続化先です。
//
// SaveProject が保存するスナップショットに画像バイナリは含まれません。
// バイナリは SaveRender で別管理し、LoadProject が両者を突き合わせて
// 復元します。未知のIDに対する LoadProject は ErrProjectNotFound を
// 返してください。
type Store interface {
	SaveProject(ctx context.Context, project *domain.Project) error
	LoadProject(ctx context.Context, id string) (*domain.Project, error)
	SaveRender(ctx context.Context, projectID string, page int, render *domain.Render) error
	DeleteRender(ctx context.Context, projectID string, page int) error
}

// PortraitSink は生成済みポートレート画像の保存先です。戻り値はあとで
// 一覧表示に使うプレビューパス（保存先の相対パスなど）です。
type PortraitSink interface {
	SavePortrait(ctx context.Context, name, mimeType string, data []byte) (string, error)
}
