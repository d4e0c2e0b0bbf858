package workshop

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shouni/go-banana-kit/pkg/domain"
	"github.com/shouni/go-banana-kit/pkg/gateway"
	"github.com/shouni/go-banana-kit/pkg/prompts"
	"github.com/shouni/go-banana-kit/pkg/trace"
)

// analysisResult は解析ステージの構造化出力に対応する受け皿です。
type analysisResult struct {
	Characters []domain.Character `json:"characters"`
	Items      []domain.Item      `json:"items"`
}

// Analyze は原作テキストから登場人物とアイテムを抽出し、ストーリーボード
// 以降の成果物を破棄して新しい解析結果を確定します。
func (s *Service) Analyze(ctx context.Context) ([]domain.Character, []domain.Item, error) {
	s.mu.Lock()
	novel := s.project.NovelText
	s.mu.Unlock()
	if strings.TrimSpace(novel) == "" {
		return nil, nil, fmt.Errorf("原作テキストが未設定です。先に原稿を取り込んでください")
	}

	prompt, err := s.builder.Build(prompts.ModeAnalysis, prompts.TemplateData{
		NovelText: prompts.TruncateRunes(novel, prompts.AnalysisInputBudget),
	})
	if err != nil {
		return nil, nil, err
	}

	turns := []domain.Turn{domain.NewTurn(domain.RoleUser, domain.NewTextSegment(prompt))}
	requestedAt := time.Now()
	raw, err := s.extractor.ExtractJSON(ctx, "", turns, analysisSchema)
	entry := trace.Entry{
		Kind:        trace.KindAnalyze,
		Model:       s.textModel,
		RequestedAt: requestedAt,
		CompletedAt: time.Now(),
		Request:     turns[0].Segments,
	}
	if err != nil {
		entry.Err = err.Error()
		s.recorder.Record(entry)
		return nil, nil, fmt.Errorf("解析ステージに失敗しました: %w", err)
	}
	entry.Response = []domain.Segment{domain.NewTextSegment(string(raw))}
	s.recorder.Record(entry)

	var result analysisResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, nil, fmt.Errorf("%w: 解析結果のJSONを解釈できません: %v", gateway.ErrEmptyResponse, err)
	}
	chars := normalizeCharacters(result.Characters)
	if len(chars) == 0 {
		return nil, nil, fmt.Errorf("%w: 登場人物が1人も抽出されませんでした", gateway.ErrEmptyResponse)
	}

	s.mu.Lock()
	s.project.Characters = chars
	s.project.Items = result.Items
	s.project.ClearDownstream()
	s.project.UpdatedAt = time.Now()
	snapshot := s.project.Clone()
	s.mu.Unlock()

	if err := s.store.SaveProject(ctx, snapshot); err != nil {
		return nil, nil, fmt.Errorf("プロジェクトの保存に失敗しました: %w", err)
	}
	slog.InfoContext(ctx, "解析が完了しました", "characters", len(snapshot.Characters), "items", len(snapshot.Items))
	return snapshot.Characters, snapshot.Items, nil
}

// normalizeCharacters は名前を @ 付きの正規形へ揃え、空名と重複を除きます。
// 重複時は先に現れた定義を採用します。
func normalizeCharacters(chars []domain.Character) []domain.Character {
	seen := make(map[string]struct{}, len(chars))
	out := make([]domain.Character, 0, len(chars))
	for _, c := range chars {
		name := domain.NormalizeMentionName(c.Name)
		if name == "" || name == domain.MentionPrefix {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		c.Name = name
		out = append(out, c)
	}
	return out
}
