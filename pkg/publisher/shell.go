package publisher

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// markdownConverter は Markdown アルバムを HTML 断片へ変換するコンバーターです。
// 状態を持たないため全公開処理で共有できます。
var markdownConverter = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
)

// webtoonShell は縦読みビューアの外枠です。Body には goldmark が生成した
// HTML 断片がそのまま入ります。
const webtoonShell = `<!DOCTYPE html>
<html lang="{{.Lang}}">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
  body { margin: 0; background: #1b1b1f; color: #e8e8ec; font-family: sans-serif; }
  main.strip { max-width: 820px; margin: 0 auto; padding: 16px; }
  main.strip h1 { text-align: center; font-size: 1.5rem; }
  main.strip h2 { margin: 32px 0 8px; font-size: 1rem; color: #9a9aa5; }
  main.strip img { display: block; width: 100%; height: auto; border-radius: 4px; }
  main.strip blockquote { margin: 8px 0; padding: 4px 12px; border-left: 3px solid #5b8def; color: #c5c5cf; }
  main.strip em { color: #77777f; }
</style>
</head>
<body>
<main class="strip">
{{.Body}}
</main>
</body>
</html>
`

var webtoonTemplate = template.Must(template.New("webtoon").Parse(webtoonShell))

// renderWebtoonHTML は Markdown アルバムを変換し、縦読みビューアの
// 完全な HTML ドキュメントを返します。
func renderWebtoonHTML(title, lang, markdown string) ([]byte, error) {
	if lang == "" {
		lang = "ja"
	}

	var body bytes.Buffer
	if err := markdownConverter.Convert([]byte(markdown), &body); err != nil {
		return nil, fmt.Errorf("HTMLの変換に失敗しました: %w", err)
	}

	var out bytes.Buffer
	err := webtoonTemplate.Execute(&out, struct {
		Lang  string
		Title string
		Body  template.HTML
	}{
		Lang:  lang,
		Title: title,
		Body:  template.HTML(body.String()),
	})
	if err != nil {
		return nil, fmt.Errorf("HTMLの組み立てに失敗しました: %w", err)
	}
	return out.Bytes(), nil
}
