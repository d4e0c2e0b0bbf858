package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/shouni/go-banana-kit/internal/builder"

	"github.com/spf13/cobra"
)

// storyboardCmd は、スタジオの第2ステージ（コマ割りの設計）を実行するのだ。
var storyboardCmd = &cobra.Command{
	Use:   "storyboard",
	Short: "解析済みの原稿からページ構成とコマ割りを設計するのだ。",
	Long: `解析ステージで抽出した登場人物を踏まえて、原稿をページとコマに割り付けるのだ。
設計し直すと既存のページレンダーは無効化されるが、解析結果はそのまま残るのだよ。`,
	RunE: storyboardCommand,
}

func storyboardCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := loadRunConfig()

	appCtx, err := builder.NewAppContext(ctx, cfg)
	if err != nil {
		return err
	}
	ws, err := builder.BuildWorkshop(ctx, appCtx)
	if err != nil {
		return err
	}

	slog.Info("コマ割り設計を開始するのだ！", "workspace", ws.ProjectID(), "text_model", cfg.TextModel())

	pages, err := ws.Storyboard(ctx)
	if err != nil {
		return fmt.Errorf("コマ割りの設計に失敗したのだ: %w", err)
	}

	fmt.Printf("全 %d ページの構成ができました:\n", len(pages))
	for _, page := range pages {
		fmt.Printf("  Page %d（%d コマ） 登場: %s\n",
			page.PageNumber, len(page.Panels), strings.Join(page.CharacterNames(), ", "))
	}

	slog.Info("設計が完了したのだ！次は render でページ画像を生成するのだよ。")
	return nil
}
