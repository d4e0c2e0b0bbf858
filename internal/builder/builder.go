package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/shouni/go-banana-kit/internal/asset"
	"github.com/shouni/go-banana-kit/internal/config"
	"github.com/shouni/go-banana-kit/internal/store"
	"github.com/shouni/go-banana-kit/pkg/chat"
	"github.com/shouni/go-banana-kit/pkg/prompts"
	"github.com/shouni/go-banana-kit/pkg/publisher"
	"github.com/shouni/go-banana-kit/pkg/session"
	"github.com/shouni/go-banana-kit/pkg/workshop"
)

// workspaceID はフラグで渡された作業場IDを返します。未指定なら既定値なのだ。
func workspaceID(cfg *config.Config) string {
	if cfg.Options.SessionID != "" {
		return cfg.Options.SessionID
	}
	return config.DefaultSessionID
}

// BuildChatService は会話の編成サービスを構築します。
//
// 保存済みのセッションがあれば履歴と画風注入ラッチごと復元し、なければ
// 同じIDで空のセッションを開始します。
func BuildChatService(ctx context.Context, appCtx *AppContext) (*chat.Service, *session.ChatSession, error) {
	id := workspaceID(appCtx.Config)

	var sess *session.ChatSession
	st, err := appCtx.Store.LoadSession(ctx, id)
	switch {
	case err == nil:
		sess = session.Restore(st)
		slog.InfoContext(ctx, "保存済みセッションを復元しました", "session_id", id, "turns", sess.Len())
	case errors.Is(err, store.ErrSessionNotFound):
		sess = session.NewChatSession(id)
	default:
		return nil, nil, fmt.Errorf("セッションの読み込みに失敗しました: %w", err)
	}

	svc, err := chat.New(chat.Params{
		Dispatcher:   appCtx.Gateway,
		Catalog:      appCtx.Catalog,
		Session:      sess,
		Recorder:     appCtx.Recorder,
		SystemPrompt: prompts.ChatSystemPrompt,
		ModelName:    appCtx.Config.TextModel(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("会話サービスの初期化に失敗しました: %w", err)
	}
	return svc, sess, nil
}

// BuildWorkshop はコミックスタジオの編成サービスを構築します。
// プロジェクト状態の読み込み（なければ新規作成）は workshop.New が行います。
func BuildWorkshop(ctx context.Context, appCtx *AppContext) (*workshop.Service, error) {
	svc, err := workshop.New(ctx, workshop.Params{
		Extractor:    appCtx.Gateway,
		Renderer:     appCtx.Gateway,
		Store:        appCtx.Store,
		Catalog:      appCtx.Catalog,
		Recorder:     appCtx.Recorder,
		PortraitSink: appCtx.Library,
		ProjectID:    workspaceID(appCtx.Config),
		TextModel:    appCtx.Config.TextModel(),
		ImageModel:   appCtx.Config.ImageModel(),
		Limiter:      rate.NewLimiter(rate.Every(config.DefaultRateLimit), 2),
	})
	if err != nil {
		return nil, fmt.Errorf("コミックスタジオの初期化に失敗しました: %w", err)
	}
	return svc, nil
}

// BuildPublisher はローカルディレクトリへ書き出すパブリッシャーを構築します。
func BuildPublisher() (*publisher.ComicPublisher, error) {
	pub, err := publisher.NewComicPublisher(asset.DirWriter{})
	if err != nil {
		return nil, fmt.Errorf("パブリッシャーの初期化に失敗しました: %w", err)
	}
	return pub, nil
}
