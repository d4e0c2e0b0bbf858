package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shouni/go-banana-kit/internal/config"

	"github.com/spf13/cobra"
)

// opts は addAppFlags で各フラグに紐付く実行時パラメータなのだ。
var opts config.RunOptions

// rootCmd は、アプリケーションのルートコマンドなのだ。
var rootCmd = &cobra.Command{
	Use:   "ap-banana-go",
	Short: "ナレッジベース連携のマルチモーダル対話と、コミックスタジオの一括実行CLIなのだ。",
	Long: `アセットディレクトリに置いた参照画像を @メンションで会話へ差し込める
マルチモーダルチャットと、原稿からの解析・コマ割り・ページ画像生成・公開までを
段階実行するコミックスタジオをまとめたコマンドラインツールなのだ。`,
	SilenceUsage:      true,
	PersistentPreRunE: preRunAppE,
}

// addAppFlags は、アプリケーション全般に適用されるグローバルフラグを定義するのだ。
func addAppFlags(rootCmd *cobra.Command) {
	// --- 作業場の指定 ---
	rootCmd.PersistentFlags().StringVarP(&opts.SessionID, "session", "s", config.DefaultSessionID, "チャット履歴とスタジオ状態を共有する作業場IDなのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.SessionDir, "session-dir", "", "状態の保存先ディレクトリ（既定: "+config.DefaultDataDir+"）なのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.AssetsDir, "assets-dir", "", "参照画像と entities.json の置き場所（既定: "+config.DefaultAssetsDir+"）なのだ。")

	// --- AIモデル・挙動設定 ---
	rootCmd.PersistentFlags().StringVar(&opts.Model, "model", "", "テキスト生成に使う Gemini モデル名（既定: "+config.DefaultModel+"）なのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.ImageModel, "image-model", "", "画像生成に使う Gemini モデル名（既定: "+config.DefaultImageModel+"）なのだ。")
}

// preRunAppE は、コマンド実行前に環境変数などの必須チェックを行うのだ。
func preRunAppE(cmd *cobra.Command, args []string) error {
	// Gemini APIを利用するため、APIキーの存在チェックは欠かせないのだ！
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("エラー: 環境変数 GEMINI_API_KEY が設定されていません。Gemini APIの利用には必須なのだ")
	}

	return nil
}

// loadRunConfig は環境変数から基本設定をロードし、フラグの値を反映するのだ。
func loadRunConfig() *config.Config {
	cfg := config.LoadConfig()
	cfg.Options = opts
	return cfg
}

// Execute は、アプリケーションのメインエントリポイントなのだ。
// main.go から呼び出されて、cobra のコマンドライン解析を開始するのだよ。
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addAppFlags(rootCmd)
	rootCmd.AddCommand(
		chatCmd,
		runCmd,
		analyzeCmd,
		storyboardCmd,
		portraitCmd,
		renderCmd,
		publishCmd,
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
