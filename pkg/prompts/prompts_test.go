package prompts

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/shouni/go-banana-kit/pkg/domain"
)

func TestNewTextPromptBuilder_全モードが解析できる(t *testing.T) {
	b, err := NewTextPromptBuilder()
	if err != nil {
		t.Fatalf("NewTextPromptBuilder がエラーを返した: %v", err)
	}

	for _, mode := range []string{ModeChat, ModeAnalysis, ModeStoryboard} {
		t.Run(mode, func(t *testing.T) {
			out, err := b.Build(mode, TemplateData{NovelText: "novel", CharacterContext: "chars"})
			if err != nil {
				t.Fatalf("Build(%s) がエラーを返した: %v", mode, err)
			}
			if out == "" {
				t.Errorf("Build(%s) が空文字列を返した", mode)
			}
		})
	}
}

func TestBuild_テンプレート変数の流し込み(t *testing.T) {
	b, err := NewTextPromptBuilder()
	if err != nil {
		t.Fatalf("NewTextPromptBuilder がエラーを返した: %v", err)
	}

	out, err := b.Build(ModeStoryboard, TemplateData{
		NovelText:        "韓立は洞府で独り瞑想していた。",
		CharacterContext: "- @韓立: 外見=黒髪の青年修士",
	})
	if err != nil {
		t.Fatalf("Build がエラーを返した: %v", err)
	}
	if !strings.Contains(out, "韓立は洞府で独り瞑想していた。") {
		t.Error("原文がプロンプトに流し込まれていない")
	}
	if !strings.Contains(out, "- @韓立: 外見=黒髪の青年修士") {
		t.Error("登場人物ノートがプロンプトに流し込まれていない")
	}
}

func TestBuild_不明なモードはエラー(t *testing.T) {
	b, _ := NewTextPromptBuilder()
	if _, err := b.Build("render", TemplateData{}); err == nil {
		t.Error("不明なモードがエラーにならない")
	}
}

func TestChatSystemPrompt_参照ラベルの説明を含む(t *testing.T) {
	for _, marker := range []string{
		"### GLOBAL STYLE REFERENCE (VISUAL TONE ONLY) ###",
		"### END OF GLOBAL STYLE REFERENCE ###",
		"[REFERENCE: @名前]",
	} {
		if !strings.Contains(ChatSystemPrompt, marker) {
			t.Errorf("システムプロンプトにマーカーの説明が無い: %q", marker)
		}
	}
}

func TestBuildCharacterContext(t *testing.T) {
	chars := []domain.Character{
		{Name: "@韓立", Appearance: "黒髪の青年修士", Personality: "慎重"},
		{Name: "@南宮婉", Appearance: "白衣の女性修士"},
	}

	got := BuildCharacterContext(chars)
	want := "- @韓立: 外見=黒髪の青年修士 / 性格=慎重\n- @南宮婉: 外見=白衣の女性修士"
	if got != want {
		t.Errorf("BuildCharacterContext = %q, want %q", got, want)
	}

	if BuildCharacterContext(nil) != "" {
		t.Error("空の入力が空文字列にならない")
	}
}

func TestBuildPagePrompt(t *testing.T) {
	page := domain.Page{
		PageNumber: 3,
		Panels: []domain.Panel{
			{PanelNumber: 1, Scene: "洞府の入り口、夜", Dialogue: "着いたか", Characters: []string{"韓立"}},
			{PanelNumber: 2, Scene: "振り返る南宮婉", Characters: []string{"南宮婉", "韓立"}},
		},
	}
	chars := []domain.Character{
		{Name: "@韓立", Appearance: "黒髪の青年修士", Personality: "慎重"},
		{Name: "@南宮婉", Appearance: "白衣の女性修士"},
	}

	got := BuildPagePrompt(page, chars, map[string]bool{"@韓立": true})

	for _, want := range []string{
		"### PAGE 3 COMPOSITION (2 PANELS) ###",
		"#### PANEL 1 ####",
		"- DIALOGUE: 「着いたか」",
		"- DIALOGUE: (none)",
		"- CHARACTERS: @南宮婉, @韓立",
		"### CHARACTER DNA (MASTER IDENTITY) ###",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("ページプロンプトに %q が無い:\n%s", want, got)
		}
	}

	// ポートレート付きはラベル参照、無しは外見の直書き
	if !strings.Contains(got, "[REFERENCE: @韓立]") {
		t.Error("ポートレート付きキャラクターがラベル参照になっていない")
	}
	if strings.Contains(got, "- @韓立: 黒髪の青年修士") {
		t.Error("ポートレート付きキャラクターの外見が直書きされている")
	}
	if !strings.Contains(got, "- @南宮婉: 白衣の女性修士") {
		t.Error("ポートレート無しキャラクターの外見が直書きされていない")
	}
}

func TestBuildPortraitPrompt(t *testing.T) {
	char := domain.Character{
		Name:       "@韓立",
		Appearance: "黒髪の青年修士",
	}

	t.Run("参照なし", func(t *testing.T) {
		got := BuildPortraitPrompt(char, false)
		if !strings.Contains(got, "@韓立") || !strings.Contains(got, "黒髪の青年修士") {
			t.Errorf("ポートレートプロンプトが不完全:\n%s", got)
		}
		if strings.Contains(got, "[REFERENCE: @韓立]") {
			t.Error("参照が無いのに同一性固定の指示が入っている")
		}
	})

	t.Run("既存ポートレートあり", func(t *testing.T) {
		got := BuildPortraitPrompt(char, true)
		if !strings.Contains(got, "Identity locked by the attached reference image labeled [REFERENCE: @韓立]") {
			t.Errorf("同一性固定の指示が無い:\n%s", got)
		}
	})
}

func TestTruncateRunes(t *testing.T) {
	t.Run("上限以下はそのまま", func(t *testing.T) {
		if got := TruncateRunes("あいう", 3); got != "あいう" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("超過分はマーカー付きで打ち切る", func(t *testing.T) {
		got := TruncateRunes("あいうえお", 3)
		if !strings.HasPrefix(got, "あいう") {
			t.Errorf("打ち切り位置が不正: %q", got)
		}
		if !strings.Contains(got, "打ち切られています") {
			t.Errorf("マーカーが無い: %q", got)
		}
		if !utf8.ValidString(got) {
			t.Errorf("rune 境界が壊れている: %q", got)
		}
	})

	t.Run("上限ゼロは空文字列", func(t *testing.T) {
		if got := TruncateRunes("あい", 0); got != "" {
			t.Errorf("got %q", got)
		}
	})
}
