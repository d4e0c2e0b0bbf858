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

// storyboardResult はストーリーボードステージの構造化出力に対応する受け皿です。
type storyboardResult struct {
	Pages []domain.Page `json:"pages"`
}

// Storyboard は解析済みの登場人物を前提にページ/コマ構成を設計し、
// 既存のレンダーを破棄して新しいストーリーボードを確定します。
// 解析結果そのものは維持されます。
func (s *Service) Storyboard(ctx context.Context) ([]domain.Page, error) {
	s.mu.Lock()
	novel := s.project.NovelText
	chars := make([]domain.Character, len(s.project.Characters))
	copy(chars, s.project.Characters)
	s.mu.Unlock()

	if strings.TrimSpace(novel) == "" {
		return nil, fmt.Errorf("原作テキストが未設定です。先に原稿を取り込んでください")
	}
	if len(chars) == 0 {
		return nil, fmt.Errorf("登場人物が未解析です。先に analyze を実行してください")
	}

	prompt, err := s.builder.Build(prompts.ModeStoryboard, prompts.TemplateData{
		NovelText:        prompts.TruncateRunes(novel, prompts.StoryboardInputBudget),
		CharacterContext: prompts.BuildCharacterContext(chars),
	})
	if err != nil {
		return nil, err
	}

	turns := []domain.Turn{domain.NewTurn(domain.RoleUser, domain.NewTextSegment(prompt))}
	requestedAt := time.Now()
	raw, err := s.extractor.ExtractJSON(ctx, "", turns, storyboardSchema)
	entry := trace.Entry{
		Kind:        trace.KindStoryboard,
		Model:       s.textModel,
		RequestedAt: requestedAt,
		CompletedAt: time.Now(),
		Request:     turns[0].Segments,
	}
	if err != nil {
		entry.Err = err.Error()
		s.recorder.Record(entry)
		return nil, fmt.Errorf("ストーリーボードステージに失敗しました: %w", err)
	}
	entry.Response = []domain.Segment{domain.NewTextSegment(string(raw))}
	s.recorder.Record(entry)

	var result storyboardResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: ストーリーボードのJSONを解釈できません: %v", gateway.ErrEmptyResponse, err)
	}
	if len(result.Pages) == 0 {
		return nil, fmt.Errorf("%w: ページが1枚も設計されませんでした", gateway.ErrEmptyResponse)
	}

	s.mu.Lock()
	s.project.Storyboard = result.Pages
	s.project.SortStoryboard()
	s.project.Renders = make(map[int]*domain.Render)
	s.project.UpdatedAt = time.Now()
	snapshot := s.project.Clone()
	s.mu.Unlock()

	if err := s.store.SaveProject(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("プロジェクトの保存に失敗しました: %w", err)
	}
	slog.InfoContext(ctx, "ストーリーボードが完成しました", "pages", len(snapshot.Storyboard))
	return snapshot.Storyboard, nil
}
