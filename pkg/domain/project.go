package domain

import (
	"sort"
	"time"
)

// Character は解析ステージで抽出された登場人物です。
// Name は内部では常に @ 付きで保持し、カタログとの照合や表示では @ を外します。
type Character struct {
	Name        string `json:"name"`
	Appearance  string `json:"appearance"`
	Personality string `json:"personality,omitempty"`
}

// DisplayName は @ を外した表示名を返します。
func (c Character) DisplayName() string {
	return StripMentionPrefix(c.Name)
}

// Item は物語に登場する重要アイテムです。
type Item struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Panel は漫画の1コマの構成（情景、セリフ、登場キャラクター）を保持します。
type Panel struct {
	PanelNumber int      `json:"panel"`
	Scene       string   `json:"scene"`
	Dialogue    string   `json:"dialogue,omitempty"`
	Characters  []string `json:"characters,omitempty"`
}

// Page は物理的な1枚の漫画ページで、パネル番号順に整列したコマ群を持ちます。
type Page struct {
	PageNumber int     `json:"page"`
	Panels     []Panel `json:"panels"`
}

// CharacterNames はページ内のどこかのコマに登場する全キャラクター名を
// 重複なしで返します。結果は決定論のためにソート済みです。
func (p Page) CharacterNames() []string {
	set := make(map[string]struct{})
	for _, panel := range p.Panels {
		for _, name := range panel.Characters {
			normalized := NormalizeMentionName(name)
			if normalized != MentionPrefix && normalized != "" {
				set[normalized] = struct{}{}
			}
		}
	}

	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render はあるページについて最後に成功した生成結果と、そのとき使った
// プロンプトを保持します。画像バイナリは軽量な状態スナップショットから
// 分離して保存するため、JSONには含めません。
type Render struct {
	Data        []byte    `json:"-"`
	MIMEType    string    `json:"mime_type"`
	Prompt      string    `json:"prompt"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Project はコミックスタジオの1プロジェクト分の状態です。
// ステージごとに段階的に埋まり、外部ストレージに不透明に永続化されます。
type Project struct {
	ID         string          `json:"id"`
	NovelText  string          `json:"novel_text"`
	Characters []Character     `json:"characters,omitempty"`
	Items      []Item          `json:"items,omitempty"`
	Storyboard []Page          `json:"storyboard,omitempty"`
	Renders    map[int]*Render `json:"renders,omitempty"`
	StyleFired bool            `json:"style_fired,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// NewProject は空のプロジェクトを生成します。
func NewProject(id string) *Project {
	return &Project{
		ID:      id,
		Renders: make(map[int]*Render),
	}
}

// PageByNumber は指定番号のページを返します。
func (p *Project) PageByNumber(n int) (Page, bool) {
	for _, page := range p.Storyboard {
		if page.PageNumber == n {
			return page, true
		}
	}
	return Page{}, false
}

// FindCharacter は @ 付き・@ なしのどちらの名前でも登場人物を特定します。
func (p *Project) FindCharacter(name string) *Character {
	normalized := NormalizeMentionName(name)
	for i := range p.Characters {
		if p.Characters[i].Name == normalized {
			return &p.Characters[i]
		}
	}
	return nil
}

// SortStoryboard はページをページ番号順、各ページのコマをパネル番号順に整列します。
// 抽出結果の取り込み時に一度だけ呼び、以降は整列済みとして扱います。
func (p *Project) SortStoryboard() {
	sort.Slice(p.Storyboard, func(i, j int) bool {
		return p.Storyboard[i].PageNumber < p.Storyboard[j].PageNumber
	})
	for i := range p.Storyboard {
		panels := p.Storyboard[i].Panels
		sort.Slice(panels, func(a, b int) bool {
			return panels[a].PanelNumber < panels[b].PanelNumber
		})
	}
}

// ClearDownstream は解析結果より下流のステージ状態（ストーリーボードと
// レンダー）を破棄します。ステージの無効化は前方のみに伝搬します。
func (p *Project) ClearDownstream() {
	p.Storyboard = nil
	p.Renders = make(map[int]*Render)
}

// Clone はレンダーの画像バイナリまで含むプロジェクトの深いコピーを返します。
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	copied := &Project{
		ID:         p.ID,
		NovelText:  p.NovelText,
		StyleFired: p.StyleFired,
		UpdatedAt:  p.UpdatedAt,
	}
	if p.Characters != nil {
		copied.Characters = make([]Character, len(p.Characters))
		copy(copied.Characters, p.Characters)
	}
	if p.Items != nil {
		copied.Items = make([]Item, len(p.Items))
		copy(copied.Items, p.Items)
	}
	if p.Storyboard != nil {
		copied.Storyboard = make([]Page, len(p.Storyboard))
		for i, page := range p.Storyboard {
			copiedPage := Page{PageNumber: page.PageNumber}
			if page.Panels != nil {
				copiedPage.Panels = make([]Panel, len(page.Panels))
				for j, panel := range page.Panels {
					copiedPanel := panel
					if panel.Characters != nil {
						copiedPanel.Characters = make([]string, len(panel.Characters))
						copy(copiedPanel.Characters, panel.Characters)
					}
					copiedPage.Panels[j] = copiedPanel
				}
			}
			copied.Storyboard[i] = copiedPage
		}
	}
	copied.Renders = make(map[int]*Render, len(p.Renders))
	for page, r := range p.Renders {
		copied.Renders[page] = r.Clone()
	}
	return copied
}

// Clone はレンダーの深いコピーを返します。
func (r *Render) Clone() *Render {
	if r == nil {
		return nil
	}
	copied := *r
	if r.Data != nil {
		copied.Data = make([]byte, len(r.Data))
		copy(copied.Data, r.Data)
	}
	return &copied
}
