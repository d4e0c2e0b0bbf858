// Package pipeline はコミックスタジオの全ステージを一括実行する編成層です。
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shouni/go-banana-kit/internal/builder"
	"github.com/shouni/go-banana-kit/internal/config"
	"github.com/shouni/go-banana-kit/pkg/publisher"
	"github.com/shouni/go-banana-kit/pkg/workshop"
)

// Execute は、原稿の取り込みから解析・コマ割り・ポートレート・ページ生成・
// 公開までの全ステージを順番に実行するのだ。
//
// ポートレート生成の失敗だけは致命傷にしない。ページ生成は外見テキストへ
// フォールバックできるため、警告を出して先へ進むのだ。
func Execute(ctx context.Context, cfg *config.Config, script, title string) error {
	appCtx, err := builder.NewAppContext(ctx, cfg)
	if err != nil {
		return err
	}
	ws, err := builder.BuildWorkshop(ctx, appCtx)
	if err != nil {
		return err
	}

	if err := ws.SetNovel(ctx, script); err != nil {
		return fmt.Errorf("原稿の取り込みに失敗したのだ: %w", err)
	}

	if err := runAnalyzeStep(ctx, ws); err != nil {
		return err
	}
	if err := runStoryboardStep(ctx, ws); err != nil {
		return err
	}
	runPortraitStep(ctx, ws)
	if err := runRenderStep(ctx, ws); err != nil {
		return err
	}
	return runPublishStep(ctx, cfg, ws, title)
}

// runAnalyzeStep は登場人物とアイテムの抽出を実行するのだ。
func runAnalyzeStep(ctx context.Context, ws *workshop.Service) error {
	slog.Info("Phase 1: 解析を開始するのだ...")
	chars, items, err := ws.Analyze(ctx)
	if err != nil {
		return fmt.Errorf("解析に失敗したのだ: %w", err)
	}
	slog.Info("解析が完了したのだ", "characters", len(chars), "items", len(items))
	return nil
}

// runStoryboardStep はページとコマの割り付けを実行するのだ。
func runStoryboardStep(ctx context.Context, ws *workshop.Service) error {
	slog.Info("Phase 2: コマ割り設計を開始するのだ...")
	pages, err := ws.Storyboard(ctx)
	if err != nil {
		return fmt.Errorf("コマ割りの設計に失敗したのだ: %w", err)
	}
	slog.Info("コマ割りが完了したのだ", "pages", len(pages))
	return nil
}

// runPortraitStep は全登場人物のポートレートを生成するのだ。失敗しても
// ページ生成は続行できるため、エラーは警告に落とすのだ。
func runPortraitStep(ctx context.Context, ws *workshop.Service) {
	slog.Info("Phase 3: ポートレート生成を開始するのだ...")
	entities, err := ws.GeneratePortraits(ctx)
	if err != nil {
		slog.WarnContext(ctx, "ポートレート生成に失敗しました。外見テキストのみでページ生成を続行します", "error", err)
		return
	}
	slog.Info("ポートレート生成が完了したのだ", "portraits", len(entities))
}

// runRenderStep は全ページの画像を一括生成するのだ。
func runRenderStep(ctx context.Context, ws *workshop.Service) error {
	slog.Info("Phase 4: ページ生成を開始するのだ...")
	done, err := ws.RenderAll(ctx)
	if err != nil {
		return fmt.Errorf("ページの一括生成に失敗したのだ（確定: %d ページ）: %w", done, err)
	}
	slog.Info("ページ生成が完了したのだ", "pages", done)
	return nil
}

// runPublishStep は確定済みのページをアルバムへ書き出すのだ。
func runPublishStep(ctx context.Context, cfg *config.Config, ws *workshop.Service, title string) error {
	slog.Info("Phase 5: 公開処理を開始するのだ...")
	pub, err := builder.BuildPublisher()
	if err != nil {
		return fmt.Errorf("PublisherRunnerの構築に失敗したのだ: %w", err)
	}

	result, err := pub.Publish(ctx, ws.Project(), publisher.Options{
		OutputDir: cfg.PublishDir(),
		Title:     title,
	})
	if err != nil {
		return fmt.Errorf("公開処理に失敗したのだ: %w", err)
	}

	slog.Info("物語の集大成が完成したのだ！",
		"markdown", result.MarkdownPath,
		"html", result.HTMLPath,
		"images", len(result.ImagePaths))
	return nil
}
