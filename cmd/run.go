package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/shouni/go-banana-kit/internal/pipeline"

	"github.com/spf13/cobra"
)

// runCmd は、原稿からアルバム公開までの全ステージを一括実行するのだ。
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "原稿からアルバム公開までの全ステージを一括実行するのだ。",
	Long: `原稿の取り込み・登場人物の解析・コマ割り設計・ポートレート生成・
ページ画像生成・アルバム公開を、一度の実行でまとめて行うのだ。
各ステージは実行のたびに保存されるので、失敗したら個別コマンドで
途中から再開できるのだよ。`,
	Example: "  ap-banana-go run -f examples/novel.txt -o output/my_comic\n  cat novel.txt | ap-banana-go run -f -",
	RunE:    runCommand,
}

// runTitle は --title で指定されたアルバム表題なのだ。
var runTitle string

func init() {
	runCmd.Flags().StringVarP(&scriptFile, "script-file", "f", "", "原稿ファイルのパス（'-'で標準入力なのだ）。")
	runCmd.Flags().StringVarP(&opts.OutputDir, "out", "o", "", "書き出し先ディレクトリ（既定: output）なのだ。")
	runCmd.Flags().StringVar(&runTitle, "title", "", "アルバムの表題（省略時は既定の表題なのだ）。")
}

func runCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// 1. 入力ソースの必須チェック
	if scriptFile == "" {
		if !isStdin() {
			return fmt.Errorf("原稿（--script-file）を指定してほしいのだ")
		}
		scriptFile = "-"
	}

	script, err := readScript(scriptFile)
	if err != nil {
		return err
	}

	// 2. 環境変数等から基本設定をロードするのだ
	cfg := loadRunConfig()

	slog.Info("コミックスタジオの全工程を起動するのだ！",
		"workspace", cfg.Options.SessionID,
		"text_model", cfg.TextModel(),
		"image_model", cfg.ImageModel(),
		"output", cfg.PublishDir())

	// 3. 更新した config を考慮しつつパイプラインを実行するのだ
	if err := pipeline.Execute(ctx, cfg, script, runTitle); err != nil {
		return fmt.Errorf("パイプライン実行中にエラーが発生したのだ: %w", err)
	}

	slog.Info("すべての生成工程が完了したのだ！")
	return nil
}

// isStdin は標準入力がパイプ等で渡されているかを判定するのだ。
func isStdin() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}
