// Package assembler はユーザーの1ターン分の入力をモデルへ渡すセグメント列へ組み立てます。
//
// セグメントの順序はそのままモデルへの提示順になるため、ここで決めた並びが
// 生成結果の one-shot 的な文脈を構成します。組み立ては純粋関数で、履歴や
// カタログへの副作用はありません。
package assembler

import (
	"fmt"
	"strings"

	"github.com/shouni/go-banana-kit/pkg/domain"
)

// モデル提示用のセクションマーカー。画風参照のブロックを明示的に区切り、
// 被写体参照と混同されないようにする。
const (
	StyleSectionBegin = "### GLOBAL STYLE REFERENCE (VISUAL TONE ONLY) ###\n" +
		"The following images define the visual style of the entire work. " +
		"Treat them as tone and rendering guides, not as subjects to draw."
	StyleSectionEnd = "### END OF GLOBAL STYLE REFERENCE ###"
)

// TurnInputs は1ターンの組み立て素材です。各スライスの順序は保持されます。
type TurnInputs struct {
	// UserText は本文。空ならテキストセグメントを出力しない。
	UserText string
	// Attachments はこのターンに直接添付された画像セグメント。
	Attachments []domain.Segment
	// Mentions は本文から解決済みのエンティティ(カタログ順)。
	Mentions []domain.Entity
	// StyleRefs は作品全体の画風参照。InjectStyleRefs が真のときだけ使われる。
	StyleRefs []domain.SceneReference
	// InjectStyleRefs は画風参照ブロックを先頭へ注入するかどうか。
	InjectStyleRefs bool
}

// Assemble は素材をモデル提示順のセグメント列へ変換します。
//
// 並び順は固定で、(1) 画風参照ブロック(開始マーカー、ラベルと画像の対、
// 終了マーカー)、(2) メンション参照(ラベルと画像の対。画像を持たない
// エンティティはテキストの注記のみ)、(3) 添付画像、(4) 本文、の順です。
// 2つ目の戻り値は画風参照の画像を実際に1枚以上注入したかどうかで、
// 注入ラッチの消費判定に使います。
func Assemble(in TurnInputs) ([]domain.Segment, bool) {
	var segs []domain.Segment

	styleInjected := false
	if in.InjectStyleRefs {
		styleSegs := styleSection(in.StyleRefs)
		if len(styleSegs) > 0 {
			segs = append(segs, styleSegs...)
			styleInjected = true
		}
	}

	segs = append(segs, mentionSections(in.Mentions)...)
	segs = append(segs, in.Attachments...)

	if strings.TrimSpace(in.UserText) != "" {
		segs = append(segs, domain.NewTextSegment(in.UserText))
	}

	return segs, styleInjected
}

// styleSection は画風参照ブロックを組み立てます。画像を持たない参照と
// 重複した参照は除外し、残りが無ければブロック全体を省略します。
func styleSection(refs []domain.SceneReference) []domain.Segment {
	seen := make(map[string]struct{}, len(refs))
	var body []domain.Segment
	for _, ref := range refs {
		if !ref.HasImage() {
			continue
		}
		key := styleDedupKey(ref)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		body = append(body,
			domain.NewTextSegment(fmt.Sprintf("[STYLE REFERENCE: %s]", ref.Name)),
			domain.NewImageSegment(ref.MIMEType, ref.Data),
		)
	}
	if len(body) == 0 {
		return nil
	}

	segs := make([]domain.Segment, 0, len(body)+2)
	segs = append(segs, domain.NewTextSegment(StyleSectionBegin))
	segs = append(segs, body...)
	segs = append(segs, domain.NewTextSegment(StyleSectionEnd))
	return segs
}

// mentionSections はメンション参照を組み立てます。重複はエンティティIDで
// 除外します。画像を持たないエンティティは名前のみの注記を出し、画像
// セグメントは出しません。
func mentionSections(mentions []domain.Entity) []domain.Segment {
	seen := make(map[string]struct{}, len(mentions))
	var segs []domain.Segment
	for _, ent := range mentions {
		if _, dup := seen[ent.ID]; dup {
			continue
		}
		seen[ent.ID] = struct{}{}

		if !ent.HasImage() {
			segs = append(segs, domain.NewTextSegment(
				fmt.Sprintf("[REFERENCE: %s] (no image available; referenced by name only)", ent.MentionKey())))
			continue
		}
		segs = append(segs,
			domain.NewTextSegment(fmt.Sprintf("[REFERENCE: %s]", ent.MentionKey())),
			domain.NewImageSegment(ent.MIMEType, ent.Data),
		)
	}
	return segs
}

// styleDedupKey は画像内容の先頭と名前の組で重複を判定します。
// 同じ画像が別名で添付されたケースを別参照として残すための鍵です。
func styleDedupKey(ref domain.SceneReference) string {
	prefix := ref.Data
	if len(prefix) > 64 {
		prefix = prefix[:64]
	}
	return string(prefix) + "|" + ref.Name
}
