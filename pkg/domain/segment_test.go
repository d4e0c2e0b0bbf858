package domain

import (
	"reflect"
	"testing"
)

func TestCloneSegments(t *testing.T) {
	t.Run("コピー後に元データを書き換えても影響しないこと", func(t *testing.T) {
		original := []Segment{
			NewTextSegment("こんにちは"),
			NewImageSegment("image/png", []byte{0x89, 0x50, 0x4e}),
		}

		copied := CloneSegments(original)
		if !reflect.DeepEqual(original, copied) {
			t.Fatalf("コピー直後は等価であるべきです。期待: %+v, 実際: %+v", original, copied)
		}

		// 元の画像バイト列を破壊する
		original[1].Data[0] = 0xFF
		original[0].Text = "改ざん"

		if copied[1].Data[0] == 0xFF {
			t.Error("画像データが共有されています。ディープコピーになっていません")
		}
		if copied[0].Text != "こんにちは" {
			t.Error("テキストが改ざんの影響を受けました")
		}
	})

	t.Run("nil入力はnilを返すこと", func(t *testing.T) {
		if CloneSegments(nil) != nil {
			t.Error("nil のコピーは nil であるべきです")
		}
	})
}

func TestTurn_Text(t *testing.T) {
	turn := NewTurn(RoleModel,
		NewTextSegment("前半"),
		NewImageSegment("image/png", []byte{1}),
		NewTextSegment("後半"),
	)

	if got := turn.Text(); got != "前半後半" {
		t.Errorf("テキスト連結が正しくありません。期待 '前半後半', 実際 '%s'", got)
	}
	if got := len(turn.Images()); got != 1 {
		t.Errorf("画像セグメント数が違います。期待 1, 実際 %d", got)
	}
}

func TestCloneTurns(t *testing.T) {
	turns := []Turn{
		NewTurn(RoleUser, NewImageSegment("image/png", []byte{1, 2})),
	}
	copied := CloneTurns(turns)

	turns[0].Segments[0].Data[0] = 99
	if copied[0].Segments[0].Data[0] == 99 {
		t.Error("ターンの画像データが共有されています")
	}
}
