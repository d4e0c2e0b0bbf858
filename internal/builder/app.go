package builder

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shouni/go-banana-kit/internal/asset"
	"github.com/shouni/go-banana-kit/internal/config"
	"github.com/shouni/go-banana-kit/internal/store"
	"github.com/shouni/go-banana-kit/pkg/catalog"
	"github.com/shouni/go-banana-kit/pkg/gateway"
	"github.com/shouni/go-banana-kit/pkg/trace"
)

// AppContext は、アプリケーション実行に必要な共通コンテキストを保持する
// これを各Build関数に渡すことで、依存関係の注入を簡素化します。
type AppContext struct {
	Config   *config.Config   // Configは、環境変数とフラグから確定したグローバルな設定です（APIキー、モデル名など）。
	Gateway  *gateway.Client  // Gatewayは、会話・構造化抽出・画像生成のすべてを送信する転送層です。
	Catalog  *catalog.Catalog // Catalogは、@メンションで参照できるエンティティの台帳です。
	Recorder *trace.Recorder  // Recorderは、送受信の記録を追記専用で保持します。
	Store    *store.FileStore // Storeは、プロジェクト状態とセッション履歴の永続化先です。
	Library  *asset.Library   // Libraryは、アセットディレクトリの読み込みとポートレート書き戻しを担います。
}

// NewAppContext は設定から共有コンポーネントを組み立てます。
//
// アセットディレクトリの読み込みは失敗しても致命傷にしません。対応表が
// 壊れていても会話とスタジオの大半は動くため、警告を出して空のカタログで
// 続行します。
func NewAppContext(ctx context.Context, cfg *config.Config) (*AppContext, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config は必須です")
	}

	gw, err := gateway.New(ctx, gateway.Config{
		APIKey:     cfg.GeminiAPIKey,
		TextModel:  cfg.TextModel(),
		ImageModel: cfg.ImageModel(),
	})
	if err != nil {
		return nil, fmt.Errorf("AIクライアントの初期化に失敗しました: %w", err)
	}

	fileStore, err := store.NewFileStore(cfg.StateDir())
	if err != nil {
		return nil, fmt.Errorf("状態保存先の初期化に失敗しました: %w", err)
	}

	cat := catalog.New()
	library := asset.NewLibrary(cfg.KnowledgeDir(), config.DefaultEntityByteBudget)
	loaded, err := library.LoadInto(ctx, cat)
	if err != nil {
		slog.WarnContext(ctx, "ナレッジベースの読み込みに失敗しました。登録済みエンティティなしで続行します", "error", err)
	} else if loaded > 0 {
		slog.InfoContext(ctx, "ナレッジベースを読み込みました", "dir", cfg.KnowledgeDir(), "entities", loaded)
	}

	return &AppContext{
		Config:   cfg,
		Gateway:  gw,
		Catalog:  cat,
		Recorder: trace.NewRecorder(),
		Store:    fileStore,
		Library:  library,
	}, nil
}
