package prompts

import (
	_ "embed"
)

const (
	ModeChat       = "chat"
	ModeAnalysis   = "analysis"
	ModeStoryboard = "storyboard"
)

// TemplateData はプロンプトテンプレートに流し込むデータ構造です。
type TemplateData struct {
	// NovelText は原作テキスト。各ステージの予算でトランケート済みであること。
	NovelText string
	// CharacterContext は解析済み登場人物の箇条書き。
	CharacterContext string
}

var (
	//go:embed chat_system.md
	ChatSystemPrompt string
	//go:embed analysis.md
	AnalysisPrompt string
	//go:embed storyboard.md
	StoryboardPrompt string
)

// allTemplates はモードとテンプレート文字列を紐づけるマップなのだ。
var allTemplates = map[string]string{
	ModeChat:       ChatSystemPrompt,
	ModeAnalysis:   AnalysisPrompt,
	ModeStoryboard: StoryboardPrompt,
}
