package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shouni/go-banana-kit/internal/builder"
	"github.com/shouni/go-banana-kit/pkg/chat"
	"github.com/shouni/go-banana-kit/pkg/domain"
	"github.com/shouni/go-banana-kit/pkg/session"

	"github.com/spf13/cobra"
)

// chatCmd は、ナレッジベース連携のマルチモーダル対話を開始するのだ。
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "@メンションで参照画像を差し込めるマルチモーダル対話を始めるのだ。",
	Long: `アセットディレクトリから読み込んだエンティティを @名前 で呼び出すと、
その参照画像と身元固定の指示が送信前のリクエストへ自動的に差し込まれるのだ。
履歴は作業場IDごとに保存され、次回起動時に続きから再開できるのだよ。

スラッシュコマンド:
  /attach <パス>  次の発言に画像を添付する
  /entities       登録済みエンティティの一覧
  /trace          送受信の記録を表示する
  /clear          履歴と画風注入ラッチを初期化する
  /quit           終了する`,
}

// RunE は変数初期化子の外で束縛する。chatCommand が（runChatDirective 経由で）
// chatCmd.Long を参照するため、リテラル内で束縛すると初期化循環になるのだ。
func init() {
	chatCmd.RunE = chatCommand
}

func chatCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := loadRunConfig()

	appCtx, err := builder.NewAppContext(ctx, cfg)
	if err != nil {
		return err
	}
	svc, sess, err := builder.BuildChatService(ctx, appCtx)
	if err != nil {
		return err
	}

	fmt.Printf("対話モードを開始するのだ（作業場: %s）。/quit で終了、/attach <パス> で画像添付なのだ。\n", sess.ID())
	if names := mentionKeys(appCtx); len(names) > 0 {
		fmt.Printf("呼び出せるエンティティ: %s\n", strings.Join(names, ", "))
	}

	reader := bufio.NewReader(os.Stdin)
	var attachments []domain.Segment

	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Println()
				return nil
			}
			return fmt.Errorf("入力の読み取りに失敗しました: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit := runChatDirective(ctx, appCtx, sess, line, &attachments)
			if quit {
				return nil
			}
			continue
		}

		reply, err := svc.Send(ctx, line, attachments)
		if err != nil {
			// 失敗したターンは履歴に残らない。添付は積んだまま再試行できる。
			fmt.Printf("送信に失敗しました: %v\n", err)
			continue
		}
		attachments = nil

		printReply(cfg.PublishDir(), reply)
		saveSession(ctx, appCtx, sess)
	}
}

// runChatDirective はスラッシュコマンドを1つ処理する。終了要求なら true を返す。
func runChatDirective(ctx context.Context, appCtx *builder.AppContext, sess *session.ChatSession, line string, attachments *[]domain.Segment) bool {
	directive, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch directive {
	case "/quit", "/exit":
		fmt.Println("また会おうなのだ！")
		return true

	case "/attach":
		if arg == "" {
			fmt.Println("使い方: /attach <画像ファイルのパス>")
			return false
		}
		seg, err := loadAttachment(arg)
		if err != nil {
			fmt.Printf("添付できませんでした: %v\n", err)
			return false
		}
		*attachments = append(*attachments, seg)
		fmt.Printf("画像を積みました（次の発言に %d 件添付）: %s\n", len(*attachments), arg)

	case "/entities":
		printEntities(appCtx)

	case "/trace":
		printTrace(appCtx)

	case "/clear":
		sess.Reset()
		saveSession(ctx, appCtx, sess)
		fmt.Println("履歴と画風注入ラッチを初期化しました。")

	case "/help":
		fmt.Println(chatCmd.Long)

	default:
		fmt.Printf("未知のコマンドです: %s （/help で一覧）\n", directive)
	}
	return false
}

// loadAttachment はローカル画像を読み込み、インライン添付セグメントにする。
func loadAttachment(path string) (domain.Segment, error) {
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if !strings.HasPrefix(mimeType, "image/") {
		return domain.Segment{}, fmt.Errorf("画像ファイルではありません: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Segment{}, fmt.Errorf("ファイルの読み込みに失敗しました: %w", err)
	}
	return domain.NewImageSegment(mimeType, data), nil
}

func mentionKeys(appCtx *builder.AppContext) []string {
	entities := appCtx.Catalog.List()
	keys := make([]string, 0, len(entities))
	for _, ent := range entities {
		keys = append(keys, ent.MentionKey())
	}
	return keys
}

func printEntities(appCtx *builder.AppContext) {
	entities := appCtx.Catalog.List()
	if len(entities) == 0 {
		fmt.Println("登録済みエンティティはありません。アセットディレクトリに画像を置くと登録されるのだ。")
		return
	}
	for _, ent := range entities {
		status := "オフライン（名前参照のみ）"
		if ent.HasImage() {
			status = ent.MIMEType
		}
		fmt.Printf("  %-20s %-28s %s\n", ent.MentionKey(), status, ent.PreviewPath)
	}
	if refs := appCtx.Catalog.SceneRefs(); len(refs) > 0 {
		fmt.Printf("  画風参照: %d 枚（最初の生成ターンに一度だけ注入）\n", len(refs))
	}
}

func printTrace(appCtx *builder.AppContext) {
	entries := appCtx.Recorder.Entries()
	if len(entries) == 0 {
		fmt.Println("記録はまだありません。")
		return
	}
	for _, e := range entries {
		took := e.CompletedAt.Sub(e.RequestedAt).Round(time.Millisecond)
		line := fmt.Sprintf("  #%d %-10s %-28s %8s", e.Seq, e.Kind, e.Model, took)
		if e.Err != "" {
			fmt.Printf("%s エラー: %s\n", line, e.Err)
			continue
		}
		texts, images := 0, 0
		for _, seg := range e.Response {
			if seg.Kind == domain.SegmentImage {
				images++
			} else {
				texts++
			}
		}
		fmt.Printf("%s OK（応答: テキスト%d/画像%d）\n", line, texts, images)
	}
}

// printReply は応答本文と出典を表示する。応答に画像があればローカルへ保存するのだ。
func printReply(outputDir string, reply *chat.Reply) {
	if text := reply.Turn.Text(); text != "" {
		fmt.Println(text)
	}

	for i, img := range reply.Turn.Images() {
		path, err := saveReplyImage(outputDir, img, i)
		if err != nil {
			slog.Warn("応答画像の保存に失敗しました", "error", err)
			continue
		}
		fmt.Printf("（応答画像を保存しました: %s）\n", path)
	}

	if len(reply.Mentioned) > 0 {
		keys := make([]string, 0, len(reply.Mentioned))
		for _, ent := range reply.Mentioned {
			keys = append(keys, ent.MentionKey())
		}
		fmt.Printf("（参照を注入: %s）\n", strings.Join(keys, ", "))
	}

	if len(reply.Grounding) > 0 {
		fmt.Println("出典:")
		for i, ref := range reply.Grounding {
			title := ref.Title
			if title == "" {
				title = ref.URI
			}
			fmt.Printf("  [%d] %s — %s\n", i+1, title, ref.URI)
		}
	}
}

// saveReplyImage は応答に含まれた画像を出力ディレクトリへ書き出す。
func saveReplyImage(outputDir string, img domain.Segment, index int) (string, error) {
	// MIMEタイプから拡張子を決定
	extension := ".png" // フォールバック
	if extensions, err := mime.ExtensionsByType(img.MIMEType); err == nil && len(extensions) > 0 {
		extension = extensions[0]
	}

	name := fmt.Sprintf("chat_%s_%d%s", time.Now().Format("20060102_150405"), index, extension)
	path := filepath.Join(outputDir, name)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("出力ディレクトリの作成に失敗したのだ: %w", err)
	}
	if err := os.WriteFile(path, img.Data, 0644); err != nil {
		return "", fmt.Errorf("画像の保存に失敗したのだ: %w", err)
	}
	return path, nil
}

// saveSession は現在の履歴スナップショットを保存する。REPLは継続するため
// 失敗しても致命傷にはしない。
func saveSession(ctx context.Context, appCtx *builder.AppContext, sess *session.ChatSession) {
	if err := appCtx.Store.SaveSession(ctx, sess.Snapshot()); err != nil {
		slog.WarnContext(ctx, "セッションの保存に失敗しました", "error", err)
	}
}
