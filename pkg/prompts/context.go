package prompts

import (
	"fmt"
	"strings"

	"github.com/shouni/go-banana-kit/pkg/domain"
)

// pageFormatRules はページ生成プロンプトの共通ヘッダです。
const pageFormatRules = `### FORMAT RULES: FULL COLOR MANGA PAGE ###
- Compose ALL panels below onto ONE single manga page, in Japanese reading order (right to left, top to bottom).
- Draw clear panel borders and vary panel sizes for dramatic pacing.
- Render each dialogue line inside a speech bubble exactly as given, in Japanese.
- Keep every character visually identical to their attached reference portrait, or to their DNA description when no portrait is attached.
- Full color anime/manga illustration. No photographic realism, no watermarks, no signature.`

// BuildCharacterContext は解析済みの登場人物をプロンプト用の箇条書きへ変換します。
func BuildCharacterContext(chars []domain.Character) string {
	if len(chars) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, c := range chars {
		fmt.Fprintf(&sb, "- %s: 外見=%s", c.Name, c.Appearance)
		if c.Personality != "" {
			fmt.Fprintf(&sb, " / 性格=%s", c.Personality)
		}
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

// BuildPagePrompt は1ページ分の画像生成プロンプトを構築します。
//
// hasPortrait が true の登場人物は参照ポートレートが同じターンに添付されている
// 前提でラベルだけを指し、false の登場人物は外見の文章(DNA)を直接埋め込みます。
func BuildPagePrompt(page domain.Page, chars []domain.Character, hasPortrait map[string]bool) string {
	var sb strings.Builder
	sb.WriteString(pageFormatRules)
	sb.WriteString("\n\n")

	fmt.Fprintf(&sb, "### PAGE %d COMPOSITION (%d PANELS) ###\n", page.PageNumber, len(page.Panels))
	for _, panel := range page.Panels {
		fmt.Fprintf(&sb, "#### PANEL %d ####\n", panel.PanelNumber)
		fmt.Fprintf(&sb, "- SCENE: %s\n", panel.Scene)
		if panel.Dialogue != "" {
			fmt.Fprintf(&sb, "- DIALOGUE: 「%s」\n", panel.Dialogue)
		} else {
			sb.WriteString("- DIALOGUE: (none)\n")
		}
		if len(panel.Characters) > 0 {
			names := make([]string, 0, len(panel.Characters))
			for _, n := range panel.Characters {
				names = append(names, domain.NormalizeMentionName(n))
			}
			fmt.Fprintf(&sb, "- CHARACTERS: %s\n", strings.Join(names, ", "))
		}
	}

	dna := characterDNA(page, chars, hasPortrait)
	if dna != "" {
		sb.WriteString("\n### CHARACTER DNA (MASTER IDENTITY) ###\n")
		sb.WriteString(dna)
	}

	return strings.TrimRight(sb.String(), "\n")
}

// characterDNA はこのページに登場するキャラクターの同一性情報を組み立てます。
func characterDNA(page domain.Page, chars []domain.Character, hasPortrait map[string]bool) string {
	var sb strings.Builder
	for _, name := range page.CharacterNames() {
		char := findCharacter(chars, name)
		if char == nil {
			continue
		}
		if hasPortrait[name] {
			fmt.Fprintf(&sb, "- %s: identity locked by the attached reference image labeled [REFERENCE: %s].\n", name, name)
			continue
		}
		fmt.Fprintf(&sb, "- %s: %s", name, char.Appearance)
		if char.Personality != "" {
			fmt.Fprintf(&sb, " / %s", char.Personality)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func findCharacter(chars []domain.Character, name string) *domain.Character {
	normalized := domain.NormalizeMentionName(name)
	for i := range chars {
		if chars[i].Name == normalized {
			return &chars[i]
		}
	}
	return nil
}

// BuildPortraitPrompt は登場人物1人の参照ポートレート生成プロンプトを構築します。
// hasReference が true の場合、既存ポートレートが同じターンに添付されている前提で、
// その参照画像に同一性を固定する指示を加えます(再生成時の顔ぶれ維持)。
func BuildPortraitPrompt(char domain.Character, hasReference bool) string {
	var sb strings.Builder
	sb.WriteString("### CHARACTER REFERENCE PORTRAIT ###\n")
	fmt.Fprintf(&sb, "Full-body standing reference portrait of %s.\n", char.Name)
	fmt.Fprintf(&sb, "- APPEARANCE: %s\n", char.Appearance)
	if char.Personality != "" {
		fmt.Fprintf(&sb, "- PERSONALITY HINT: %s\n", char.Personality)
	}
	if hasReference {
		fmt.Fprintf(&sb, "- Identity locked by the attached reference image labeled [REFERENCE: %s]: keep the face, hair and outfit identical.\n", char.Name)
	}
	sb.WriteString("- Single character only, facing front, neutral pose, plain light background.\n")
	sb.WriteString("- Full color anime/manga illustration. No text, no logo, no watermark.")
	return sb.String()
}
