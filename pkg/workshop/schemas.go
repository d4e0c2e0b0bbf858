package workshop

import "google.golang.org/genai"

// analysisSchema は解析ステージの構造化出力スキーマです。
// characters は必須、items は任意です。personality が空でも受理します。
var analysisSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"characters": {
			Type:        genai.TypeArray,
			Description: "物語に登場する人物の一覧",
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":        {Type: genai.TypeString, Description: "敬称なしの正式名"},
					"appearance":  {Type: genai.TypeString, Description: "外見の要約"},
					"personality": {Type: genai.TypeString, Description: "性格の要約"},
				},
				Required: []string{"name", "appearance"},
			},
		},
		"items": {
			Type:        genai.TypeArray,
			Description: "物語上の重要アイテムの一覧",
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":        {Type: genai.TypeString},
					"description": {Type: genai.TypeString},
				},
				Required: []string{"name"},
			},
		},
	},
	Required: []string{"characters"},
}

// storyboardSchema はストーリーボードステージの構造化出力スキーマです。
// ページとパネルの番号は1始まり。dialogue はセリフが無いとき空文字です。
var storyboardSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"pages": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"page": {Type: genai.TypeInteger, Description: "1始まりのページ番号"},
					"panels": {
						Type: genai.TypeArray,
						Items: &genai.Schema{
							Type: genai.TypeObject,
							Properties: map[string]*genai.Schema{
								"panel":    {Type: genai.TypeInteger, Description: "ページ内で1始まりのコマ番号"},
								"scene":    {Type: genai.TypeString, Description: "コマの情景・構図の指示"},
								"dialogue": {Type: genai.TypeString, Description: "セリフ。無ければ空文字"},
								"characters": {
									Type:  genai.TypeArray,
									Items: &genai.Schema{Type: genai.TypeString},
								},
							},
							Required: []string{"panel", "scene"},
						},
					},
				},
				Required: []string{"page", "panels"},
			},
		},
	},
	Required: []string{"pages"},
}
