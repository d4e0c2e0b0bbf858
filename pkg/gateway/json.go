package gateway

import (
	"regexp"
	"strings"
)

var jsonBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*\\S)\\s*```")

// RecoverJSON はモデル応答のテキストから JSON 本文を取り出します。
// コードフェンスがあればその中身を、無ければ最初の '{' または '[' から
// 対応する最後の括弧までを切り出します。どちらも見つからなければ応答全体を
// そのまま JSON とみなして返します。入力が空白のみの場合は空文字列を返します。
func RecoverJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if matches := jsonBlockRegex.FindStringSubmatch(raw); len(matches) > 1 {
		return matches[1]
	}

	// Fallback 1: 最も外側の JSON オブジェクトまたは配列を探す
	if sliced := sliceOutermost(raw, '{', '}'); sliced != "" {
		return sliced
	}
	if sliced := sliceOutermost(raw, '[', ']'); sliced != "" {
		return sliced
	}

	// Fallback 2: 応答全体を JSON とみなす
	return raw
}

func sliceOutermost(raw string, open, close byte) string {
	first := strings.IndexByte(raw, open)
	last := strings.LastIndexByte(raw, close)
	if first == -1 || last == -1 || last <= first {
		return ""
	}
	return raw[first : last+1]
}
