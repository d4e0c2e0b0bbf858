package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/shouni/go-banana-kit/internal/builder"

	"github.com/spf13/cobra"
)

// analyzeCmd は、スタジオの第1ステージ（登場人物とアイテムの抽出）を実行するのだ。
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "原稿から登場人物とアイテムを抽出するのだ。",
	Long: `原稿テキストを読み込んで登場人物の外見・性格と重要アイテムを構造化抽出し、
作業場のプロジェクトへ保存するのだ。原稿を渡し直すと、解析済みの内容と
下流のコマ割り・レンダーはすべて無効化されるのだよ。`,
	Example: "  ap-banana-go analyze -f novel.txt\n  cat novel.txt | ap-banana-go analyze -f -",
	RunE:    analyzeCommand,
}

func init() {
	analyzeCmd.Flags().StringVarP(&scriptFile, "script-file", "f", "", "原稿ファイルのパス（'-'で標準入力なのだ）。")
}

// scriptFile は analyze コマンドの入力ソース指定なのだ。
var scriptFile string

func analyzeCommand(cmd *cobra.Command, args []string) error {
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

	// 原稿が渡されたら取り込み直す。渡されなければ保存済みの原稿を再解析する。
	if scriptFile != "" {
		text, err := readScript(scriptFile)
		if err != nil {
			return err
		}
		if err := ws.SetNovel(ctx, text); err != nil {
			return fmt.Errorf("原稿の取り込みに失敗したのだ: %w", err)
		}
	}

	slog.Info("解析ステージを開始するのだ！", "workspace", ws.ProjectID(), "text_model", cfg.TextModel())

	chars, items, err := ws.Analyze(ctx)
	if err != nil {
		return fmt.Errorf("解析に失敗したのだ: %w", err)
	}

	fmt.Printf("登場人物 %d 人を抽出しました:\n", len(chars))
	for _, c := range chars {
		fmt.Printf("  %-16s %s\n", c.Name, c.Appearance)
	}
	if len(items) > 0 {
		fmt.Printf("重要アイテム %d 件:\n", len(items))
		for _, it := range items {
			fmt.Printf("  %-16s %s\n", it.Name, it.Description)
		}
	}

	slog.Info("解析が完了したのだ！次は storyboard でコマ割りを設計するのだよ。")
	return nil
}

// readScript はファイルまたは標準入力から原稿を読み込むのだ。
func readScript(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("標準入力の読み取りに失敗しました: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("原稿ファイルの読み込みに失敗したのだ: %w", err)
	}
	return string(data), nil
}
