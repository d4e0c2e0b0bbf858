package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/shouni/go-banana-kit/pkg/domain"
)

const (
	defaultAlbumName    = "comic_album.md"
	defaultImageDirName = "images"
	defaultTitle        = "Untitled Comic"
)

// Options はパブリッシュ動作を制御する設定項目です。
type Options struct {
	// OutputDir は出力先ディレクトリです。ローカルパスと gs:// URI の
	// どちらも指定できます。
	OutputDir string
	// Title はアルバムの表題です。空なら既定の表題が使われます。
	Title string
	// Lang は HTML の lang 属性です。空なら "ja" が使われます。
	Lang string
}

// Result はパブリッシュ処理で生成されたファイルの情報を保持します。
type Result struct {
	MarkdownPath string   // 生成された Markdown アルバムのパス
	HTMLPath     string   // 生成された Webtoon HTML のパス
	ImagePaths   []string // 保存された全ページ画像のパスリスト
}

// OutputWriter は成果物を外部ストレージへ保存するためのインターフェースです。
type OutputWriter interface {
	Write(ctx context.Context, path string, data []byte, contentType string) error
}

// ComicPublisher はレンダー済みページの保存と Markdown / Webtoon HTML への
// フォーマット変換を担います。
type ComicPublisher struct {
	writer OutputWriter
}

// NewComicPublisher は書き込み先を受け取ってパブリッシャーを初期化します。
func NewComicPublisher(writer OutputWriter) (*ComicPublisher, error) {
	if writer == nil {
		return nil, fmt.Errorf("OutputWriter は必須です")
	}
	return &ComicPublisher{writer: writer}, nil
}

// Publish は画像の保存、Markdown アルバムの構築、Webtoon HTML への変換を
// 一括して実行し、生成されたファイル情報を返します。
func (p *ComicPublisher) Publish(ctx context.Context, project *domain.Project, opts Options) (Result, error) {
	result := Result{}
	if project == nil || len(project.Renders) == 0 {
		return result, fmt.Errorf("公開できるレンダーがありません。先に render を実行してください")
	}

	title := strings.TrimSpace(opts.Title)
	if title == "" {
		title = defaultTitle
	}

	markdownPath, err := ResolveOutputPath(opts.OutputDir, defaultAlbumName)
	if err != nil {
		return result, err
	}
	imageDir, err := ResolveOutputPath(opts.OutputDir, defaultImageDirName)
	if err != nil {
		return result, err
	}

	savedPaths, relativePaths, err := p.saveImages(ctx, project, imageDir)
	if err != nil {
		return result, err
	}
	result.ImagePaths = savedPaths

	content := buildAlbumMarkdown(title, project, relativePaths)
	if err := p.writer.Write(ctx, markdownPath, []byte(content), "text/markdown; charset=utf-8"); err != nil {
		return result, fmt.Errorf("markdownファイルの書き込みに失敗しました: %w", err)
	}
	result.MarkdownPath = markdownPath

	html, err := renderWebtoonHTML(title, opts.Lang, content)
	if err != nil {
		return result, err
	}
	htmlPath := strings.TrimSuffix(markdownPath, path.Ext(markdownPath)) + ".html"
	if err := p.writer.Write(ctx, htmlPath, html, "text/html; charset=utf-8"); err != nil {
		return result, fmt.Errorf("HTMLファイルの書き込みに失敗しました: %w", err)
	}
	result.HTMLPath = htmlPath

	slog.InfoContext(ctx, "アルバムを公開しました",
		"markdown", result.MarkdownPath,
		"html", result.HTMLPath,
		"images", len(result.ImagePaths))
	return result, nil
}

// saveImages はレンダー済みページの画像をページ番号順に保存し、
// 保存先のフルパスと Markdown から参照する相対パスを返します。
func (p *ComicPublisher) saveImages(ctx context.Context, project *domain.Project, imageDir string) ([]string, map[int]string, error) {
	var paths []string
	relative := make(map[int]string)
	for _, page := range project.Storyboard {
		render := project.Renders[page.PageNumber]
		if render == nil || len(render.Data) == 0 {
			continue
		}
		name := fmt.Sprintf("page_%03d%s", page.PageNumber, extensionForMIME(render.MIMEType))
		fullPath, err := ResolveOutputPath(imageDir, name)
		if err != nil {
			return nil, nil, fmt.Errorf("出力パスの解決に失敗しました: %w", err)
		}
		if err := p.writer.Write(ctx, fullPath, render.Data, render.MIMEType); err != nil {
			return nil, nil, fmt.Errorf("画像の書き込みに失敗しました %s: %w", fullPath, err)
		}
		paths = append(paths, fullPath)
		relative[page.PageNumber] = path.Join(defaultImageDirName, name)
	}
	return paths, relative, nil
}

// buildAlbumMarkdown はタイトルとページ群を縦読みのアルバム Markdown へ変換します。
// レンダーの無いページは画像なしの注記だけを載せます。
func buildAlbumMarkdown(title string, project *domain.Project, relativePaths map[int]string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", title)

	for _, page := range project.Storyboard {
		fmt.Fprintf(&sb, "## Page %d\n\n", page.PageNumber)

		if rel, ok := relativePaths[page.PageNumber]; ok {
			fmt.Fprintf(&sb, "![Page %d](%s)\n\n", page.PageNumber, rel)
		} else {
			sb.WriteString("*(このページは未レンダーです)*\n\n")
		}

		for _, panel := range page.Panels {
			if panel.Dialogue == "" {
				continue
			}
			fmt.Fprintf(&sb, "> %s\n", strings.TrimSpace(panel.Dialogue))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}

// extensionForMIME は画像MIMEタイプに対応する拡張子を返します。
func extensionForMIME(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
