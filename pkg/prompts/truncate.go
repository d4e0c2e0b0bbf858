package prompts

// ステージごとの原文の上限(ルーン数)。超過分は黙って捨てず、
// 末尾のマーカーで打ち切りを示します。
const (
	// AnalysisInputBudget は解析ステージへ渡す原文の上限です。
	AnalysisInputBudget = 6000
	// StoryboardInputBudget はストーリーボードステージへ渡す原文の上限です。
	StoryboardInputBudget = 24000
)

// truncationMarker は打ち切りが起きたことを示す末尾マーカーです。
const truncationMarker = "\n…(本文はここで打ち切られています)"

// TruncateRunes は rune 境界を壊さずに文字列を上限まで打ち切ります。
// 打ち切りが起きた場合のみ末尾にマーカーを付けます。
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + truncationMarker
}
