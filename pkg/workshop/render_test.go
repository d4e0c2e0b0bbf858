package workshop

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shouni/go-banana-kit/pkg/assembler"
	"github.com/shouni/go-banana-kit/pkg/domain"
	"github.com/shouni/go-banana-kit/pkg/gateway"
	"github.com/shouni/go-banana-kit/pkg/trace"
)

func putPortrait(t *testing.T, env *testEnv, name, data string) {
	t.Helper()
	if err := env.catalog.Put(domain.NewEntity(name, "image/png", []byte(data), "")); err != nil {
		t.Fatalf("ポートレートの登録に失敗した: %v", err)
	}
}

func putSceneRef(t *testing.T, env *testEnv, name, data string) {
	t.Helper()
	if err := env.catalog.PutSceneRef(domain.NewEntity(name, "image/png", []byte(data), "")); err != nil {
		t.Fatalf("シーン参照の登録に失敗した: %v", err)
	}
}

// ---- RenderPage ----

func TestRenderPage_確定と永続化(t *testing.T) {
	env := newTestEnv(t, seedProject("本文"))
	putPortrait(t, env, "韓立", "portrait-hanli")

	render, err := env.svc.RenderPage(context.Background(), 1)
	if err != nil {
		t.Fatalf("RenderPage がエラーを返した: %v", err)
	}

	if render.MIMEType != "image/png" || len(render.Data) == 0 {
		t.Errorf("レンダーが不完全: %+v", render)
	}
	if !strings.Contains(render.Prompt, "### PAGE 1 COMPOSITION (2 PANELS) ###") {
		t.Error("レンダーに使用プロンプトが残っていない")
	}

	got := env.svc.Project()
	if got.Renders[1] == nil || !bytes.Equal(got.Renders[1].Data, render.Data) {
		t.Error("プロジェクト状態にレンダーが確定していない")
	}
	if !env.store.hasRender("p1", 1) {
		t.Error("レンダーが永続化されていない")
	}

	call := env.renderer.call(0)
	if call.opts.AspectRatio != PageAspectRatio || call.opts.ImageSize != PageImageSize {
		t.Errorf("ページ用の生成オプションでない: %+v", call.opts)
	}

	text := joinText(call.segs)
	if !strings.Contains(text, "[REFERENCE: @韓立]") {
		t.Error("ポートレートの参照ラベルが添付されていない")
	}
	if !strings.Contains(text, "identity locked by the attached reference image") {
		t.Error("ポートレート保有者のDNAがラベル参照になっていない")
	}
	if !strings.Contains(text, "- @南宮婉: 白衣の女性修士") {
		t.Error("ポートレートの無い登場人物のDNAが埋め込まれていない")
	}
	if countImages(call.segs) != 1 {
		t.Errorf("添付画像数 = %d, want 1", countImages(call.segs))
	}

	entries := env.recorder.Entries()
	if len(entries) != 1 || entries[0].Kind != trace.KindRender {
		t.Errorf("トレースが記録されていない: %+v", entries)
	}
}

func TestRenderPage_失敗したページは空に戻る(t *testing.T) {
	seed := seedProject("本文")
	seed.Renders[1] = &domain.Render{Data: []byte("old"), MIMEType: "image/png"}
	env := newTestEnv(t, seed)
	env.store.renders["p1"] = map[int]*domain.Render{1: {Data: []byte("old"), MIMEType: "image/png"}}
	env.renderer.handler = func(n int, history []domain.Turn, opts gateway.RenderOptions) (*gateway.Reply, error) {
		return nil, errors.New("boom")
	}

	if _, err := env.svc.RenderPage(context.Background(), 1); err == nil {
		t.Fatal("エラーが返らなかった")
	}

	if got := env.svc.Project(); got.Renders[1] != nil {
		t.Error("失敗したのに旧レンダーが残っている")
	}
	if env.store.hasRender("p1", 1) {
		t.Error("永続化された旧レンダーが破棄されていない")
	}
	if saved := env.store.savedProject("p1"); saved.Renders[1] != nil {
		t.Error("破棄後の状態が永続化されていない")
	}
}

func TestRenderPage_ストーリーボードにないページ(t *testing.T) {
	env := newTestEnv(t, seedProject("本文"))
	if _, err := env.svc.RenderPage(context.Background(), 99); err == nil {
		t.Error("存在しないページでエラーにならなかった")
	}
	if env.renderer.callCount() != 0 {
		t.Error("ページ不在なのにAPIが呼ばれた")
	}
}

func TestRenderPage_古い結果は確定しない(t *testing.T) {
	env := newTestEnv(t, seedProject("本文"))
	env.renderer.handler = func(n int, history []domain.Turn, opts gateway.RenderOptions) (*gateway.Reply, error) {
		// 応答を待っている間に、同じページの新しいリクエストが発行される
		env.svc.tracker.Issue(pageScope(1))
		return imageReply("slow-result"), nil
	}

	_, err := env.svc.RenderPage(context.Background(), 1)
	if !errors.Is(err, ErrStaleResult) {
		t.Fatalf("ErrStaleResult でない: %v", err)
	}

	if got := env.svc.Project(); got.Renders[1] != nil {
		t.Error("破棄されたはずの結果が確定している")
	}
	if env.store.hasRender("p1", 1) {
		t.Error("破棄されたはずの結果が永続化されている")
	}
}

func TestRenderPage_画風参照は最初の一回だけ(t *testing.T) {
	env := newTestEnv(t, seedProject("本文"))
	putSceneRef(t, env, "水墨画トーン", "style-ink")

	if _, err := env.svc.RenderPage(context.Background(), 1); err != nil {
		t.Fatalf("1ページ目: %v", err)
	}
	if _, err := env.svc.RenderPage(context.Background(), 2); err != nil {
		t.Fatalf("2ページ目: %v", err)
	}

	first := joinText(env.renderer.call(0).segs)
	second := joinText(env.renderer.call(1).segs)
	if !strings.Contains(first, assembler.StyleSectionBegin) {
		t.Error("最初のレンダーに画風ブロックがない")
	}
	if strings.Contains(second, assembler.StyleSectionBegin) {
		t.Error("2回目のレンダーにも画風ブロックが注入された")
	}

	if !env.svc.Project().StyleFired {
		t.Error("画風消費がプロジェクト状態に反映されていない")
	}
	if !env.store.savedProject("p1").StyleFired {
		t.Error("画風消費が永続化されていない")
	}
}

func TestRenderPage_復元済みラッチは再注入しない(t *testing.T) {
	seed := seedProject("本文")
	seed.StyleFired = true
	env := newTestEnv(t, seed)
	putSceneRef(t, env, "水墨画トーン", "style-ink")

	if _, err := env.svc.RenderPage(context.Background(), 1); err != nil {
		t.Fatalf("RenderPage がエラーを返した: %v", err)
	}
	if strings.Contains(joinText(env.renderer.call(0).segs), assembler.StyleSectionBegin) {
		t.Error("発火済みで復元したのに画風ブロックが注入された")
	}
}

func TestRenderPage_失敗時は画風ラッチを巻き戻す(t *testing.T) {
	env := newTestEnv(t, seedProject("本文"))
	putSceneRef(t, env, "水墨画トーン", "style-ink")
	env.renderer.handler = func(n int, history []domain.Turn, opts gateway.RenderOptions) (*gateway.Reply, error) {
		if n == 1 {
			return nil, errors.New("boom")
		}
		return imageReply("ok"), nil
	}

	if _, err := env.svc.RenderPage(context.Background(), 1); err == nil {
		t.Fatal("エラーが返らなかった")
	}
	if env.svc.Project().StyleFired {
		t.Error("失敗したのに画風消費が確定している")
	}

	if _, err := env.svc.RenderPage(context.Background(), 1); err != nil {
		t.Fatalf("再試行: %v", err)
	}
	if !strings.Contains(joinText(env.renderer.call(1).segs), assembler.StyleSectionBegin) {
		t.Error("再試行で画風ブロックが注入されていない")
	}
}

func TestRenderPage_参照画像ゼロならラッチを消費しない(t *testing.T) {
	env := newTestEnv(t, seedProject("本文"))

	// シーン参照の未登録時は注入なしで成功する
	if _, err := env.svc.RenderPage(context.Background(), 1); err != nil {
		t.Fatalf("1回目: %v", err)
	}
	if env.svc.Project().StyleFired {
		t.Error("注入していないのに消費が確定した")
	}

	// 後から登録すれば次のレンダーが注入する
	putSceneRef(t, env, "水墨画トーン", "style-ink")
	if _, err := env.svc.RenderPage(context.Background(), 2); err != nil {
		t.Fatalf("2回目: %v", err)
	}
	if !strings.Contains(joinText(env.renderer.call(1).segs), assembler.StyleSectionBegin) {
		t.Error("登録後のレンダーで画風ブロックが注入されていない")
	}
}

// ---- GeneratePortrait ----

func TestGeneratePortrait_カタログ登録(t *testing.T) {
	env := newTestEnv(t, seedProject("本文"))

	ent, err := env.svc.GeneratePortrait(context.Background(), "韓立")
	if err != nil {
		t.Fatalf("GeneratePortrait がエラーを返した: %v", err)
	}

	if ent.Name != "韓立" || !ent.HasImage() {
		t.Errorf("エンティティが不完全: %+v", ent)
	}
	if ent.PreviewPath != "portraits/韓立.png" {
		t.Errorf("PreviewPath = %q", ent.PreviewPath)
	}

	registered, ok := env.catalog.Get("@韓立")
	if !ok || !registered.HasImage() {
		t.Error("カタログにポートレートが登録されていない")
	}

	call := env.renderer.call(0)
	if call.opts.AspectRatio != PortraitAspectRatio || call.opts.ImageSize != PortraitImageSize {
		t.Errorf("ポートレート用の生成オプションでない: %+v", call.opts)
	}
	if !strings.Contains(joinText(call.segs), "### CHARACTER REFERENCE PORTRAIT ###") {
		t.Error("ポートレートプロンプトが使われていない")
	}

	entries := env.recorder.Entries()
	if len(entries) != 1 || entries[0].Kind != trace.KindPortrait {
		t.Errorf("トレースが記録されていない: %+v", entries)
	}
}

func TestGeneratePortrait_再生成は既存ポートレートを同一性参照にする(t *testing.T) {
	env := newTestEnv(t, seedProject("本文"))
	putPortrait(t, env, "韓立", "old-portrait")

	if _, err := env.svc.GeneratePortrait(context.Background(), "韓立"); err != nil {
		t.Fatalf("GeneratePortrait がエラーを返した: %v", err)
	}

	call := env.renderer.call(0)
	text := joinText(call.segs)
	if !strings.Contains(text, "[REFERENCE: @韓立]") {
		t.Error("既存ポートレートの参照ラベルが添付されていない")
	}
	if !strings.Contains(text, "Identity locked by the attached reference image") {
		t.Error("プロンプトに同一性固定の指示が無い")
	}
	if countImages(call.segs) != 1 {
		t.Errorf("添付画像数 = %d, want 1", countImages(call.segs))
	}

	// カタログは新しい生成結果で上書きされる
	registered, _ := env.catalog.Get("韓立")
	if bytes.Equal(registered.Data, []byte("old-portrait")) {
		t.Error("カタログが新しいポートレートで上書きされていない")
	}
}

func TestGeneratePortrait_不明な人物(t *testing.T) {
	env := newTestEnv(t, seedProject("本文"))
	if _, err := env.svc.GeneratePortrait(context.Background(), "墨大夫"); err == nil {
		t.Error("未解析の人物でエラーにならなかった")
	}
	if env.renderer.callCount() != 0 {
		t.Error("人物不在なのにAPIが呼ばれた")
	}
}

func TestGeneratePortrait_古い結果は登録しない(t *testing.T) {
	env := newTestEnv(t, seedProject("本文"))
	env.renderer.handler = func(n int, history []domain.Turn, opts gateway.RenderOptions) (*gateway.Reply, error) {
		env.svc.tracker.Issue(portraitScope("韓立"))
		return imageReply("slow-portrait"), nil
	}

	_, err := env.svc.GeneratePortrait(context.Background(), "韓立")
	if !errors.Is(err, ErrStaleResult) {
		t.Fatalf("ErrStaleResult でない: %v", err)
	}
	if _, ok := env.catalog.Get("韓立"); ok {
		t.Error("破棄されたはずのポートレートが登録されている")
	}
	if len(env.sink.saved) != 0 {
		t.Error("破棄されたはずのポートレートが保存されている")
	}
}

func TestGeneratePortrait_保存失敗(t *testing.T) {
	env := newTestEnv(t, seedProject("本文"))
	env.sink.err = errors.New("disk full")

	if _, err := env.svc.GeneratePortrait(context.Background(), "韓立"); err == nil {
		t.Fatal("エラーが返らなかった")
	}
	if _, ok := env.catalog.Get("韓立"); ok {
		t.Error("保存に失敗したのにカタログへ登録された")
	}
}

func TestGeneratePortraits_全員分(t *testing.T) {
	env := newTestEnv(t, seedProject("本文"))

	ents, err := env.svc.GeneratePortraits(context.Background())
	if err != nil {
		t.Fatalf("GeneratePortraits がエラーを返した: %v", err)
	}

	if len(ents) != 2 {
		t.Fatalf("登録数 = %d, want 2", len(ents))
	}
	for _, name := range []string{"韓立", "南宮婉"} {
		if _, ok := env.catalog.Get(name); !ok {
			t.Errorf("%s のポートレートが登録されていない", name)
		}
	}
}

func TestGeneratePortraits_未解析(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.svc.GeneratePortraits(context.Background()); err == nil {
		t.Error("未解析でエラーにならなかった")
	}
}

// ---- RenderAll ----

func TestRenderAll_全ページ確定(t *testing.T) {
	env := newTestEnv(t, seedProject("本文"))

	rendered, err := env.svc.RenderAll(context.Background())
	if err != nil {
		t.Fatalf("RenderAll がエラーを返した: %v", err)
	}
	if rendered != 2 {
		t.Errorf("確定ページ数 = %d, want 2", rendered)
	}

	got := env.svc.Project()
	if got.Renders[1] == nil || got.Renders[2] == nil {
		t.Error("全ページのレンダーが確定していない")
	}
	if !env.store.hasRender("p1", 1) || !env.store.hasRender("p1", 2) {
		t.Error("全ページのレンダーが永続化されていない")
	}
}

func TestRenderAll_全滅時はゼロとエラー(t *testing.T) {
	env := newTestEnv(t, seedProject("本文"))
	env.renderer.handler = func(n int, history []domain.Turn, opts gateway.RenderOptions) (*gateway.Reply, error) {
		return nil, errors.New("boom")
	}

	rendered, err := env.svc.RenderAll(context.Background())
	if err == nil {
		t.Fatal("エラーが返らなかった")
	}
	if rendered != 0 {
		t.Errorf("確定ページ数 = %d, want 0", rendered)
	}
}

func TestRenderAll_ストーリーボード未設計(t *testing.T) {
	seed := domain.NewProject("p1")
	seed.NovelText = "本文"
	env := newTestEnv(t, seed)

	if _, err := env.svc.RenderAll(context.Background()); err == nil {
		t.Error("ストーリーボードなしでエラーにならなかった")
	}
	if env.renderer.callCount() != 0 {
		t.Error("設計前なのにAPIが呼ばれた")
	}
}

// 再生成では古いレンダーを破棄してから新しい結果を確定する。
func TestRenderPage_再生成は置き換え(t *testing.T) {
	env := newTestEnv(t, seedProject("本文"))

	first, err := env.svc.RenderPage(context.Background(), 1)
	if err != nil {
		t.Fatalf("1回目: %v", err)
	}
	second, err := env.svc.RenderPage(context.Background(), 1)
	if err != nil {
		t.Fatalf("2回目: %v", err)
	}

	if bytes.Equal(first.Data, second.Data) {
		t.Fatal("フェイクが同じ画像を返しており置き換えを検証できない")
	}
	got := env.svc.Project()
	if !bytes.Equal(got.Renders[1].Data, second.Data) {
		t.Error("最新のレンダーで置き換えられていない")
	}
	if saved := env.store.savedRender("p1", 1); !bytes.Equal(saved.Data, second.Data) {
		t.Error("永続化側が最新のレンダーでない")
	}
}
