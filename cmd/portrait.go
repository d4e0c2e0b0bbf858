package cmd

import (
	"fmt"
	"log/slog"

	"github.com/shouni/go-banana-kit/internal/builder"
	"github.com/shouni/go-banana-kit/pkg/domain"

	"github.com/spf13/cobra"
)

// portraitCmd は、解析済みの登場人物のポートレート（身元参照画像）を生成するのだ。
var portraitCmd = &cobra.Command{
	Use:   "portrait",
	Short: "登場人物のポートレートを生成してカタログへ登録するのだ。",
	Long: `解析ステージで抽出した外見情報からキャラクターの全身ポートレートを生成し、
アセットディレクトリへ保存してカタログに登録するのだ。以後のページ生成と
チャットの @メンションは、この画像を身元の基準として参照するのだよ。`,
	Example: "  ap-banana-go portrait --chars 韓立,南宮婉\n  ap-banana-go portrait",
	RunE:    portraitCommand,
}

// portraitChars は --chars で指定された生成対象なのだ。空なら全員分を生成する。
var portraitChars []string

func init() {
	portraitCmd.Flags().StringSliceVarP(&portraitChars, "chars", "c", nil, "生成するキャラクター名（省略時は解析済みの全員なのだ）。")
}

func portraitCommand(cmd *cobra.Command, args []string) error {
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

	slog.Info("ポートレート生成を開始するのだ！", "workspace", ws.ProjectID(), "image_model", cfg.ImageModel())

	var entities []domain.Entity
	if len(portraitChars) == 0 {
		entities, err = ws.GeneratePortraits(ctx)
		if err != nil {
			return fmt.Errorf("ポートレートの一括生成に失敗したのだ: %w", err)
		}
	} else {
		for _, name := range portraitChars {
			ent, err := ws.GeneratePortrait(ctx, name)
			if err != nil {
				return fmt.Errorf("%s のポートレート生成に失敗したのだ: %w", name, err)
			}
			entities = append(entities, ent)
		}
	}

	fmt.Printf("ポートレート %d 枚を登録しました:\n", len(entities))
	for _, ent := range entities {
		fmt.Printf("  %-20s %s\n", ent.MentionKey(), ent.PreviewPath)
	}

	slog.Info("ポートレート生成が完了したのだ！")
	return nil
}
