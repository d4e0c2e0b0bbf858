// Package resolver は本文中の @メンションをカタログのエンティティへ解決します。
package resolver

import (
	"strings"

	"github.com/shouni/go-banana-kit/pkg/domain"
)

// ResolveMentions は text に現れる `@名前` の出現からエンティティを検出します。
//
// 照合は大文字小文字を区別するリテラルな部分文字列一致で、単語境界の判定や
// 正規化・曖昧一致は一切行いません。このため短い名前が長い文字列の内部に
// 埋もれて誤検出する余地が残りますが、これは既知の挙動としてそのまま
// 維持しています。同じ開始位置で複数の名前が一致した場合のみ、より長い
// 名前を優先して短い方を遮蔽します（別の位置に単独で現れればそちらで一致します）。
//
// 戻り値はカタログ順で、同一エンティティは本文中に何度現れても一度しか
// 含まれません。副作用はありません。
func ResolveMentions(text string, catalog []domain.Entity) []domain.Entity {
	if text == "" || len(catalog) == 0 {
		return nil
	}

	// 各開始位置について、その位置から一致する最長のメンションキー長を記録する
	longestAt := make(map[int]int)
	occurrences := make([][]int, len(catalog))

	for i, ent := range catalog {
		if ent.Name == "" {
			continue
		}
		key := ent.MentionKey()
		offsets := indexAll(text, key)
		occurrences[i] = offsets
		for _, off := range offsets {
			if len(key) > longestAt[off] {
				longestAt[off] = len(key)
			}
		}
	}

	var matched []domain.Entity
	seen := make(map[string]struct{})
	for i, ent := range catalog {
		if ent.Name == "" {
			continue
		}
		keyLen := len(ent.MentionKey())
		for _, off := range occurrences[i] {
			// 同一開始位置により長い名前が一致していれば、この出現は遮蔽される
			if longestAt[off] != keyLen {
				continue
			}
			if _, dup := seen[ent.ID]; !dup {
				seen[ent.ID] = struct{}{}
				matched = append(matched, ent)
			}
			break
		}
	}

	return matched
}

// indexAll は部分文字列の全開始位置を返します。重なり合う出現も数えます。
func indexAll(text, sub string) []int {
	var offsets []int
	for start := 0; ; {
		idx := strings.Index(text[start:], sub)
		if idx < 0 {
			return offsets
		}
		offsets = append(offsets, start+idx)
		start += idx + 1
	}
}
