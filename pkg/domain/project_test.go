package domain

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestPage_CharacterNames(t *testing.T) {
	page := Page{
		PageNumber: 1,
		Panels: []Panel{
			{PanelNumber: 1, Scene: "森の中", Characters: []string{"@HanLi", "NanGongWan"}},
			{PanelNumber: 2, Scene: "洞窟", Characters: []string{"@HanLi"}},
			{PanelNumber: 3, Scene: "空", Characters: nil},
		},
	}

	expected := []string{"@HanLi", "@NanGongWan"}
	if got := page.CharacterNames(); !reflect.DeepEqual(got, expected) {
		t.Errorf("登場キャラクターの収集が正しくありません。期待 %v, 実際 %v", expected, got)
	}
}

func TestProject_SortStoryboard(t *testing.T) {
	p := NewProject("test")
	p.Storyboard = []Page{
		{PageNumber: 2, Panels: []Panel{{PanelNumber: 2}, {PanelNumber: 1}}},
		{PageNumber: 1, Panels: []Panel{{PanelNumber: 1}}},
	}

	p.SortStoryboard()

	if p.Storyboard[0].PageNumber != 1 || p.Storyboard[1].PageNumber != 2 {
		t.Error("ページがページ番号順に整列されていません")
	}
	if p.Storyboard[1].Panels[0].PanelNumber != 1 {
		t.Error("コマがパネル番号順に整列されていません")
	}
}

func TestProject_ClearDownstream(t *testing.T) {
	p := NewProject("test")
	p.Characters = []Character{{Name: "@HanLi"}}
	p.Storyboard = []Page{{PageNumber: 1}}
	p.Renders[1] = &Render{MIMEType: "image/png"}

	p.ClearDownstream()

	if p.Storyboard != nil {
		t.Error("ストーリーボードが破棄されていません")
	}
	if len(p.Renders) != 0 {
		t.Error("レンダーが破棄されていません")
	}
	if len(p.Characters) != 1 {
		t.Error("上流の解析結果まで消えています。無効化は前方のみに伝搬すべきです")
	}
}

func TestRender_JSON(t *testing.T) {
	t.Run("画像バイナリはスナップショットに含まれないこと", func(t *testing.T) {
		r := Render{Data: []byte{1, 2, 3}, MIMEType: "image/png", Prompt: "a hero"}
		data, err := json.Marshal(r)
		if err != nil {
			t.Fatalf("Marshal失敗: %v", err)
		}

		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("Unmarshal失敗: %v", err)
		}
		if _, ok := decoded["Data"]; ok {
			t.Error("バイナリがJSONに漏れています")
		}
		if decoded["prompt"] != "a hero" {
			t.Error("使用プロンプトがスナップショットに保存されていません")
		}
	})
}

func TestProject_FindCharacter(t *testing.T) {
	p := NewProject("test")
	p.Characters = []Character{{Name: "@HanLi", Appearance: "black robe"}}

	if c := p.FindCharacter("HanLi"); c == nil || c.Appearance != "black robe" {
		t.Error("@なしの名前で登場人物を特定できません")
	}
	if c := p.FindCharacter("@HanLi"); c == nil {
		t.Error("@付きの名前で登場人物を特定できません")
	}
	if c := p.FindCharacter("@Unknown"); c != nil {
		t.Error("存在しない名前でキャラクターが返りました")
	}
}
