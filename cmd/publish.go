package cmd

import (
	"fmt"
	"log/slog"

	"github.com/shouni/go-banana-kit/internal/builder"
	"github.com/shouni/go-banana-kit/pkg/publisher"

	"github.com/spf13/cobra"
)

// publishCmd は、確定済みのページ画像をアルバムに仕立てて書き出すのだ。
var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "レンダー済みのページをマークダウンとWebtoon HTMLへ書き出すのだ。",
	Long: `作業場のプロジェクトからページ画像・アルバムのマークダウン・縦読み用の
Webtoon HTML を出力ディレクトリへ書き出すのだ。未レンダーのページは
プレースホルダーとして残るのだよ。`,
	Example: "  ap-banana-go publish -o output/my_comic --title 凡人修仙伝",
	RunE:    publishCommand,
}

// publishTitle は --title で指定されたアルバム表題なのだ。
var publishTitle string

func init() {
	publishCmd.Flags().StringVarP(&opts.OutputDir, "out", "o", "", "書き出し先ディレクトリ（既定: output）なのだ。")
	publishCmd.Flags().StringVar(&publishTitle, "title", "", "アルバムの表題（省略時は既定の表題なのだ）。")
}

func publishCommand(cmd *cobra.Command, args []string) error {
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
	pub, err := builder.BuildPublisher()
	if err != nil {
		return err
	}

	slog.Info("公開ステージを開始するのだ！", "workspace", ws.ProjectID(), "output_dir", cfg.PublishDir())

	result, err := pub.Publish(ctx, ws.Project(), publisher.Options{
		OutputDir: cfg.PublishDir(),
		Title:     publishTitle,
	})
	if err != nil {
		return fmt.Errorf("アルバムの書き出しに失敗したのだ: %w", err)
	}

	fmt.Printf("アルバム一式を書き出しました:\n")
	fmt.Printf("  マークダウン: %s\n", result.MarkdownPath)
	fmt.Printf("  Webtoon HTML: %s\n", result.HTMLPath)
	fmt.Printf("  ページ画像:   %d 枚\n", len(result.ImagePaths))

	slog.Info("公開が完了したのだ！最高のアルバムができたのだよ。")
	return nil
}
