package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shouni/go-banana-kit/pkg/assembler"
	"github.com/shouni/go-banana-kit/pkg/catalog"
	"github.com/shouni/go-banana-kit/pkg/domain"
	"github.com/shouni/go-banana-kit/pkg/gateway"
	"github.com/shouni/go-banana-kit/pkg/session"
	"github.com/shouni/go-banana-kit/pkg/trace"
)

type fakeDispatcher struct {
	calls       int
	lastSystem  string
	lastHistory []domain.Turn
	reply       *gateway.Reply
	err         error
}

func (f *fakeDispatcher) Chat(_ context.Context, system string, history []domain.Turn) (*gateway.Reply, error) {
	f.calls++
	f.lastSystem = system
	f.lastHistory = domain.CloneTurns(history)
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

func okReply(text string) *gateway.Reply {
	return &gateway.Reply{
		Turn: domain.NewTurn(domain.RoleModel, domain.NewTextSegment(text)),
	}
}

func newService(t *testing.T, d Dispatcher, c *catalog.Catalog) *Service {
	t.Helper()
	svc, err := New(Params{
		Dispatcher:   d,
		Catalog:      c,
		Session:      session.NewChatSession("test"),
		Recorder:     trace.NewRecorder(),
		SystemPrompt: "あなたは創作支援アシスタントです。",
		ModelName:    "test-model",
	})
	if err != nil {
		t.Fatalf("New がエラーを返した: %v", err)
	}
	return svc
}

func lastTurn(history []domain.Turn) domain.Turn {
	return history[len(history)-1]
}

func containsText(segs []domain.Segment, sub string) bool {
	for _, s := range segs {
		if s.Kind == domain.SegmentText && strings.Contains(s.Text, sub) {
			return true
		}
	}
	return false
}

func TestSend_成功時に履歴が対で伸びる(t *testing.T) {
	d := &fakeDispatcher{reply: okReply("こんにちは!")}
	svc := newService(t, d, catalog.New())

	reply, err := svc.Send(context.Background(), "こんにちは", nil)
	if err != nil {
		t.Fatalf("Send がエラーを返した: %v", err)
	}
	if reply.Turn.Text() != "こんにちは!" {
		t.Errorf("応答 = %q", reply.Turn.Text())
	}
	if got := svc.Session().Len(); got != 2 {
		t.Errorf("履歴ターン数 = %d, want 2", got)
	}
	if d.lastSystem == "" {
		t.Error("システムプロンプトが渡されていない")
	}
}

func TestSend_メンションが参照として載る(t *testing.T) {
	cat := catalog.New()
	cat.Put(domain.NewEntity("韓立", "image/png", []byte("hanli-img"), ""))

	d := &fakeDispatcher{reply: okReply("描きました")}
	svc := newService(t, d, cat)

	reply, err := svc.Send(context.Background(), "@韓立 が洞府で瞑想する場面を描いて", nil)
	if err != nil {
		t.Fatalf("Send がエラーを返した: %v", err)
	}

	sent := lastTurn(d.lastHistory)
	if !containsText(sent.Segments, "[REFERENCE: @韓立]") {
		t.Error("参照ラベルが送信ペイロードに無い")
	}
	if len(sent.Images()) != 1 {
		t.Errorf("送信された画像数 = %d, want 1", len(sent.Images()))
	}
	if len(reply.Mentioned) != 1 || reply.Mentioned[0].Name != "韓立" {
		t.Errorf("Mentioned = %v", reply.Mentioned)
	}

	// 本文はペイロードの末尾
	last := sent.Segments[len(sent.Segments)-1]
	if last.Text != "@韓立 が洞府で瞑想する場面を描いて" {
		t.Errorf("本文が末尾に無い: %q", last.Text)
	}
}

func TestSend_画風参照は最初の成功ターンだけ(t *testing.T) {
	cat := catalog.New()
	cat.PutSceneRef(domain.NewEntity("水墨画調", "image/png", []byte("style"), ""))

	d := &fakeDispatcher{reply: okReply("了解")}
	svc := newService(t, d, cat)

	first, err := svc.Send(context.Background(), "1ページ目を描いて", nil)
	if err != nil {
		t.Fatalf("1回目の Send がエラーを返した: %v", err)
	}
	if !first.StyleInjected {
		t.Fatal("最初のターンに画風参照が注入されていない")
	}
	if !containsText(lastTurn(d.lastHistory).Segments, assembler.StyleSectionBegin) {
		t.Error("開始マーカーが送信ペイロードに無い")
	}

	second, err := svc.Send(context.Background(), "2ページ目を描いて", nil)
	if err != nil {
		t.Fatalf("2回目の Send がエラーを返した: %v", err)
	}
	if second.StyleInjected {
		t.Error("2ターン目にも画風参照が注入された")
	}
	if containsText(lastTurn(d.lastHistory).Segments, "STYLE REFERENCE") {
		t.Error("2ターン目のペイロードにマーカーが混入している")
	}
}

func TestSend_失敗時は履歴不変でラッチも戻る(t *testing.T) {
	cat := catalog.New()
	cat.PutSceneRef(domain.NewEntity("水墨画調", "image/png", []byte("style"), ""))

	d := &fakeDispatcher{err: gateway.ErrRequestFailed}
	svc := newService(t, d, cat)

	_, err := svc.Send(context.Background(), "描いて", nil)
	if !errors.Is(err, gateway.ErrRequestFailed) {
		t.Fatalf("err = %v, want ErrRequestFailed", err)
	}
	if got := svc.Session().Len(); got != 0 {
		t.Errorf("失敗後の履歴ターン数 = %d, want 0", got)
	}
	if svc.Session().Latch().Fired() {
		t.Error("失敗したターンがラッチを消費したまま")
	}

	// 復旧後の再送で改めて注入される
	d.err = nil
	d.reply = okReply("了解")
	retry, err := svc.Send(context.Background(), "描いて", nil)
	if err != nil {
		t.Fatalf("再送がエラーを返した: %v", err)
	}
	if !retry.StyleInjected {
		t.Error("再送ターンに画風参照が注入されていない")
	}
}

func TestSend_空入力はエラーで送信しない(t *testing.T) {
	d := &fakeDispatcher{reply: okReply("x")}
	svc := newService(t, d, catalog.New())

	if _, err := svc.Send(context.Background(), "   ", nil); err == nil {
		t.Fatal("空入力がエラーにならない")
	}
	if d.calls != 0 {
		t.Errorf("空入力で送信が行われた: calls = %d", d.calls)
	}
	if svc.Session().Latch().Fired() {
		t.Error("送信しなかったのにラッチが消費された")
	}
}

func TestSend_履歴全体が送信される(t *testing.T) {
	d := &fakeDispatcher{reply: okReply("応答")}
	svc := newService(t, d, catalog.New())

	svc.Send(context.Background(), "1回目", nil)
	svc.Send(context.Background(), "2回目", nil)

	// 2回目の送信は過去の対2ターン+新しいユーザーターン
	if got := len(d.lastHistory); got != 3 {
		t.Errorf("送信された履歴のターン数 = %d, want 3", got)
	}
}

func TestSend_成否を問わず記録される(t *testing.T) {
	rec := trace.NewRecorder()
	cat := catalog.New()
	d := &fakeDispatcher{err: gateway.ErrRequestFailed}
	svc, err := New(Params{
		Dispatcher: d,
		Catalog:    cat,
		Session:    session.NewChatSession("test"),
		Recorder:   rec,
	})
	if err != nil {
		t.Fatalf("New がエラーを返した: %v", err)
	}

	svc.Send(context.Background(), "失敗する", nil)
	d.err = nil
	d.reply = okReply("成功")
	svc.Send(context.Background(), "成功する", nil)

	entries := rec.Entries()
	if len(entries) != 2 {
		t.Fatalf("記録数 = %d, want 2", len(entries))
	}
	if entries[0].Err == "" {
		t.Error("失敗の記録にエラーが無い")
	}
	if entries[1].Err != "" || len(entries[1].Response) == 0 {
		t.Error("成功の記録に応答が無い")
	}
}

func TestReset_履歴とラッチだけを戻す(t *testing.T) {
	cat := catalog.New()
	cat.Put(domain.NewEntity("韓立", "image/png", []byte("img"), ""))
	cat.PutSceneRef(domain.NewEntity("水墨画調", "image/png", []byte("style"), ""))

	d := &fakeDispatcher{reply: okReply("了解")}
	svc := newService(t, d, cat)
	svc.Send(context.Background(), "描いて", nil)

	svc.Reset()

	if svc.Session().Len() != 0 {
		t.Error("Reset 後も履歴が残っている")
	}
	if cat.Len() != 1 || len(cat.SceneRefs()) != 1 {
		t.Error("Reset がカタログまで消した")
	}

	// リセット後の最初のターンは再び注入できる
	after, err := svc.Send(context.Background(), "改めて描いて", nil)
	if err != nil {
		t.Fatalf("Send がエラーを返した: %v", err)
	}
	if !after.StyleInjected {
		t.Error("リセット後の最初のターンに画風参照が注入されていない")
	}
}
