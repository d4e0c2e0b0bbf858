package cmd

import (
	"fmt"
	"log/slog"

	"github.com/shouni/go-banana-kit/internal/builder"

	"github.com/spf13/cobra"
)

// renderCmd は、スタジオの第3ステージ（ページ画像の生成）を実行するのだ。
var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "コマ割りからページのマンガ画像を生成するのだ。",
	Long: `設計済みのコマ割りを1ページ1枚の縦長マンガ画像として生成するのだ。
ポートレート済みのキャラクターは参照画像で身元を固定し、未生成のキャラクターは
外見テキストで補うのだよ。同じページを再実行すると前の画像は破棄されるのだ。`,
	Example: "  ap-banana-go render --page 1\n  ap-banana-go render --all",
	RunE:    renderCommand,
}

var (
	renderPage int  // --page: 生成するページ番号
	renderAll  bool // --all: 全ページを一括生成
)

func init() {
	renderCmd.Flags().IntVarP(&renderPage, "page", "p", 0, "生成するページ番号なのだ。")
	renderCmd.Flags().BoolVar(&renderAll, "all", false, "全ページをレート制限つきで一括生成するのだ。")
}

func renderCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := loadRunConfig()

	if !renderAll && renderPage <= 0 {
		return fmt.Errorf("生成対象（--page N または --all）を指定してほしいのだ")
	}

	appCtx, err := builder.NewAppContext(ctx, cfg)
	if err != nil {
		return err
	}
	ws, err := builder.BuildWorkshop(ctx, appCtx)
	if err != nil {
		return err
	}

	slog.Info("ページ生成を開始するのだ！", "workspace", ws.ProjectID(), "image_model", cfg.ImageModel())

	if renderAll {
		done, err := ws.RenderAll(ctx)
		if err != nil {
			return fmt.Errorf("一括生成に失敗したのだ（確定: %d ページ）: %w", done, err)
		}
		fmt.Printf("全 %d ページの画像を確定しました。\n", done)
	} else {
		render, err := ws.RenderPage(ctx, renderPage)
		if err != nil {
			return fmt.Errorf("ページ生成に失敗したのだ: %w", err)
		}
		fmt.Printf("Page %d の画像を確定しました（%s, %d バイト）。\n", renderPage, render.MIMEType, len(render.Data))
	}

	slog.Info("ページ生成が完了したのだ！次は publish でアルバムに仕立てるのだよ。")
	return nil
}
