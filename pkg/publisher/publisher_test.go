package publisher

import (
	"context"
	"strings"
	"testing"

	"github.com/shouni/go-banana-kit/pkg/domain"
)

type memWrite struct {
	path        string
	data        []byte
	contentType string
}

type memWriter struct {
	writes []memWrite
}

func (w *memWriter) Write(ctx context.Context, path string, data []byte, contentType string) error {
	copied := make([]byte, len(data))
	copy(copied, data)
	w.writes = append(w.writes, memWrite{path: path, data: copied, contentType: contentType})
	return nil
}

func (w *memWriter) find(path string) (memWrite, bool) {
	for _, wr := range w.writes {
		if wr.path == path {
			return wr, true
		}
	}
	return memWrite{}, false
}

func fixtureProject() *domain.Project {
	p := domain.NewProject("p1")
	p.Storyboard = []domain.Page{
		{PageNumber: 1, Panels: []domain.Panel{
			{PanelNumber: 1, Scene: "山道", Dialogue: "急ぐぞ"},
			{PanelNumber: 2, Scene: "遠景"},
		}},
		{PageNumber: 2, Panels: []domain.Panel{
			{PanelNumber: 1, Scene: "城門", Dialogue: "着いたな"},
		}},
		{PageNumber: 3, Panels: []domain.Panel{
			{PanelNumber: 1, Scene: "未生成のページ"},
		}},
	}
	p.Renders[1] = &domain.Render{Data: []byte("img-1"), MIMEType: "image/png"}
	p.Renders[2] = &domain.Render{Data: []byte("img-2"), MIMEType: "image/jpeg"}
	return p
}

func TestPublish_アルバム一式の生成(t *testing.T) {
	writer := &memWriter{}
	pub, err := NewComicPublisher(writer)
	if err != nil {
		t.Fatalf("NewComicPublisher がエラーを返した: %v", err)
	}

	result, err := pub.Publish(context.Background(), fixtureProject(), Options{
		OutputDir: "out",
		Title:     "凡人修仙伝",
	})
	if err != nil {
		t.Fatalf("Publish がエラーを返した: %v", err)
	}

	if len(result.ImagePaths) != 2 {
		t.Fatalf("画像数 = %d, want 2", len(result.ImagePaths))
	}
	if _, ok := writer.find(result.ImagePaths[0]); !ok {
		t.Errorf("画像が書き込まれていない: %s", result.ImagePaths[0])
	}
	if !strings.HasSuffix(result.ImagePaths[1], "page_002.jpg") {
		t.Errorf("MIMEタイプに応じた拡張子でない: %s", result.ImagePaths[1])
	}

	md, ok := writer.find(result.MarkdownPath)
	if !ok {
		t.Fatal("Markdown が書き込まれていない")
	}
	content := string(md.data)
	for _, want := range []string{
		"# 凡人修仙伝",
		"## Page 1",
		"![Page 1](images/page_001.png)",
		"> 急ぐぞ",
		"![Page 2](images/page_002.jpg)",
		"*(このページは未レンダーです)*",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("Markdown に %q が含まれていない", want)
		}
	}
	if !strings.HasPrefix(md.contentType, "text/markdown") {
		t.Errorf("contentType = %q", md.contentType)
	}

	html, ok := writer.find(result.HTMLPath)
	if !ok {
		t.Fatal("HTML が書き込まれていない")
	}
	page := string(html.data)
	for _, want := range []string{
		`<html lang="ja">`,
		"<title>凡人修仙伝</title>",
		`<img src="images/page_001.png"`,
		"<blockquote>",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("HTML に %q が含まれていない", want)
		}
	}
	if !strings.HasSuffix(result.HTMLPath, "comic_album.html") {
		t.Errorf("HTMLPath = %q", result.HTMLPath)
	}
}

func TestPublish_レンダーなしは失敗(t *testing.T) {
	pub, err := NewComicPublisher(&memWriter{})
	if err != nil {
		t.Fatalf("NewComicPublisher がエラーを返した: %v", err)
	}

	project := domain.NewProject("p1")
	project.Storyboard = []domain.Page{{PageNumber: 1}}
	if _, err := pub.Publish(context.Background(), project, Options{OutputDir: "out"}); err == nil {
		t.Error("レンダーゼロでエラーにならなかった")
	}
}

func TestNewComicPublisher_Writerなし(t *testing.T) {
	if _, err := NewComicPublisher(nil); err == nil {
		t.Error("OutputWriter なしでエラーにならなかった")
	}
}

func TestResolveOutputPath(t *testing.T) {
	tests := []struct {
		name    string
		baseDir string
		file    string
		want    string
	}{
		{"ローカルパス", "out/album", "comic_album.md", "out/album/comic_album.md"},
		{"GCS URI", "gs://bucket/comics", "comic_album.md", "gs://bucket/comics/comic_album.md"},
		{"GCS URI 末尾スラッシュ", "gs://bucket/comics/", "page.png", "gs://bucket/comics/page.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveOutputPath(tt.baseDir, tt.file)
			if err != nil {
				t.Fatalf("エラーが返った: %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveOutputPath = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderWebtoonHTML_言語の既定値(t *testing.T) {
	html, err := renderWebtoonHTML("T", "", "# T\n")
	if err != nil {
		t.Fatalf("renderWebtoonHTML がエラーを返した: %v", err)
	}
	if !strings.Contains(string(html), `<html lang="ja">`) {
		t.Error("既定の言語が ja になっていない")
	}
}
