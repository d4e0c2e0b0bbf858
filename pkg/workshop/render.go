package workshop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shouni/go-banana-kit/pkg/assembler"
	"github.com/shouni/go-banana-kit/pkg/domain"
	"github.com/shouni/go-banana-kit/pkg/gateway"
	"github.com/shouni/go-banana-kit/pkg/prompts"
	"github.com/shouni/go-banana-kit/pkg/trace"
)

func portraitScope(name string) string {
	return "portrait/" + domain.NormalizeMentionName(name)
}

func pageScope(page int) string {
	return fmt.Sprintf("page/%d", page)
}

// GeneratePortrait は登場人物1人の参照ポートレートを生成し、カタログへ
// エンティティとして登録します。以降のページ生成とチャットの @メンション
// はこの画像を参照できます。既にポートレートを持つ人物の再生成では、
// 現在の画像を同一性参照として添付します。
//
// 応答待ちの間に同じ人物のポートレートが再要求された場合、古い方の結果は
// 登録されず ErrStaleResult が返ります。
func (s *Service) GeneratePortrait(ctx context.Context, name string) (domain.Entity, error) {
	s.mu.Lock()
	found := s.project.FindCharacter(name)
	var char domain.Character
	if found != nil {
		char = *found
	}
	s.mu.Unlock()
	if found == nil {
		return domain.Entity{}, fmt.Errorf("登場人物 %q が見つかりません。先に analyze を実行してください", name)
	}

	token := s.tracker.Issue(portraitScope(char.Name))

	// 既存ポートレートがあれば同一性参照として添付する(再生成時の見た目の引き継ぎ)。
	var identity []domain.Entity
	if ent, ok := s.catalog.Get(char.Name); ok && ent.HasImage() {
		identity = append(identity, ent)
	}

	prompt := prompts.BuildPortraitPrompt(char, len(identity) > 0)
	consumed := s.latch.TryConsume()
	segs, injected := assembler.Assemble(assembler.TurnInputs{
		UserText:        prompt,
		Mentions:        identity,
		StyleRefs:       s.catalog.SceneRefs(),
		InjectStyleRefs: consumed,
	})
	if consumed && !injected {
		s.latch.Rollback()
	}

	reply, err := s.dispatchRender(ctx, trace.KindPortrait, segs, gateway.RenderOptions{
		AspectRatio: PortraitAspectRatio,
		ImageSize:   PortraitImageSize,
	}, injected)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("%s のポートレート生成に失敗しました: %w", char.DisplayName(), err)
	}

	if !s.tracker.IsLatest(token) {
		slog.WarnContext(ctx, "古いポートレート結果を破棄します", "character", char.DisplayName())
		return domain.Entity{}, ErrStaleResult
	}

	img := reply.Turn.Images()[0]
	displayName := char.DisplayName()
	previewPath, err := s.portraits.SavePortrait(ctx, displayName, img.MIMEType, img.Data)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("ポートレートの保存に失敗しました: %w", err)
	}

	ent := domain.NewEntity(displayName, img.MIMEType, img.Data, previewPath)
	if err := s.catalog.Put(ent); err != nil {
		return domain.Entity{}, err
	}
	slog.InfoContext(ctx, "ポートレートを登録しました", "character", displayName, "bytes", len(img.Data))
	return ent, nil
}

// GeneratePortraits は解析済みの全登場人物のポートレートを並行生成します。
// 戻り値は登録に成功したエンティティで、ErrStaleResult で破棄された分は
// 含まれません。
func (s *Service) GeneratePortraits(ctx context.Context) ([]domain.Entity, error) {
	s.mu.Lock()
	chars := make([]domain.Character, len(s.project.Characters))
	copy(chars, s.project.Characters)
	s.mu.Unlock()
	if len(chars) == 0 {
		return nil, fmt.Errorf("登場人物が未解析です。先に analyze を実行してください")
	}

	eg, egCtx := errgroup.WithContext(ctx)
	results := make([]domain.Entity, len(chars))
	for i, char := range chars {
		i, char := i, char
		eg.Go(func() error {
			ent, err := s.GeneratePortrait(egCtx, char.Name)
			if err != nil {
				if errors.Is(err, ErrStaleResult) {
					return nil
				}
				return err
			}
			results[i] = ent
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	ents := make([]domain.Entity, 0, len(results))
	for _, ent := range results {
		if ent.Name != "" {
			ents = append(ents, ent)
		}
	}
	return ents, nil
}

// RenderPage はストーリーボードの1ページを画像化します。
//
// ディスパッチ前に同ページの既存レンダーを（永続化も含めて）破棄するため、
// 失敗したページは「レンダーなし」の状態に戻ります。応答待ちの間に同じ
// ページが再要求された場合、古い方の結果は確定されず ErrStaleResult が
// 返ります。
func (s *Service) RenderPage(ctx context.Context, pageNum int) (*domain.Render, error) {
	s.mu.Lock()
	page, ok := s.project.PageByNumber(pageNum)
	chars := make([]domain.Character, len(s.project.Characters))
	copy(chars, s.project.Characters)
	var cleared *domain.Project
	if ok {
		delete(s.project.Renders, pageNum)
		s.project.UpdatedAt = time.Now()
		cleared = s.project.Clone()
	}
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("ページ %d はストーリーボードにありません", pageNum)
	}

	token := s.tracker.Issue(pageScope(pageNum))

	// 古いレンダーの破棄を先に永続化する
	if err := s.store.DeleteRender(ctx, s.projectID, pageNum); err != nil {
		return nil, fmt.Errorf("既存レンダーの破棄に失敗しました: %w", err)
	}
	if err := s.store.SaveProject(ctx, cleared); err != nil {
		return nil, fmt.Errorf("プロジェクトの保存に失敗しました: %w", err)
	}

	// ページに登場するキャラクターの参照ポートレートを収集する
	var mentions []domain.Entity
	hasPortrait := make(map[string]bool)
	for _, name := range page.CharacterNames() {
		ent, found := s.catalog.Get(name)
		if found && ent.HasImage() {
			mentions = append(mentions, ent)
			hasPortrait[name] = true
		}
	}

	prompt := prompts.BuildPagePrompt(page, chars, hasPortrait)
	consumed := s.latch.TryConsume()
	segs, injected := assembler.Assemble(assembler.TurnInputs{
		UserText:        prompt,
		Mentions:        mentions,
		StyleRefs:       s.catalog.SceneRefs(),
		InjectStyleRefs: consumed,
	})
	if consumed && !injected {
		s.latch.Rollback()
	}

	slog.InfoContext(ctx, "ページ生成リクエストを送信します", "page", pageNum, "portraits", len(mentions))
	reply, err := s.dispatchRender(ctx, trace.KindRender, segs, gateway.RenderOptions{
		AspectRatio: PageAspectRatio,
		ImageSize:   PageImageSize,
	}, injected)
	if err != nil {
		return nil, fmt.Errorf("ページ %d の生成に失敗しました: %w", pageNum, err)
	}

	if !s.tracker.IsLatest(token) {
		slog.WarnContext(ctx, "古いレンダー結果を破棄します", "page", pageNum)
		return nil, ErrStaleResult
	}

	img := reply.Turn.Images()[0]
	render := &domain.Render{
		Data:        img.Data,
		MIMEType:    img.MIMEType,
		Prompt:      prompt,
		GeneratedAt: time.Now(),
	}

	s.mu.Lock()
	s.project.Renders[pageNum] = render.Clone()
	s.project.UpdatedAt = time.Now()
	snapshot := s.project.Clone()
	s.mu.Unlock()

	if err := s.store.SaveRender(ctx, s.projectID, pageNum, render); err != nil {
		return nil, fmt.Errorf("レンダーの保存に失敗しました: %w", err)
	}
	if err := s.store.SaveProject(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("プロジェクトの保存に失敗しました: %w", err)
	}
	slog.InfoContext(ctx, "ページを確定しました", "page", pageNum, "bytes", len(render.Data))
	return render, nil
}

// RenderAll はストーリーボードの全ページを並行レンダーし、確定できた
// ページ数を返します。ErrStaleResult で破棄されたページは失敗として
// 扱いません。
func (s *Service) RenderAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	pages := make([]int, 0, len(s.project.Storyboard))
	for _, page := range s.project.Storyboard {
		pages = append(pages, page.PageNumber)
	}
	s.mu.Unlock()
	if len(pages) == 0 {
		return 0, fmt.Errorf("ストーリーボードが空です。先に storyboard を実行してください")
	}

	eg, egCtx := errgroup.WithContext(ctx)
	done := make([]bool, len(pages))
	for i, pageNum := range pages {
		i, pageNum := i, pageNum
		eg.Go(func() error {
			if _, err := s.RenderPage(egCtx, pageNum); err != nil {
				if errors.Is(err, ErrStaleResult) {
					return nil
				}
				return err
			}
			done[i] = true
			return nil
		})
	}
	err := eg.Wait()

	rendered := 0
	for _, ok := range done {
		if ok {
			rendered++
		}
	}
	if err != nil {
		return rendered, err
	}
	slog.InfoContext(ctx, "全ページのレンダーが完了しました", "pages", rendered)
	return rendered, nil
}

// dispatchRender はレート制限と画像生成とトレース記録をまとめた共通経路です。
// injected が true のまま失敗した場合は画風ラッチを巻き戻します。
func (s *Service) dispatchRender(ctx context.Context, kind trace.Kind, segs []domain.Segment, opts gateway.RenderOptions, injected bool) (*gateway.Reply, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		if injected {
			s.latch.Rollback()
		}
		return nil, fmt.Errorf("リミッター待機中にエラーが発生しました: %w", err)
	}

	turns := []domain.Turn{domain.NewTurn(domain.RoleUser, segs...)}
	requestedAt := time.Now()
	reply, err := s.renderer.Render(ctx, turns, opts)
	entry := trace.Entry{
		Kind:        kind,
		Model:       s.imageModel,
		RequestedAt: requestedAt,
		CompletedAt: time.Now(),
		Request:     segs,
	}
	if err != nil {
		entry.Err = err.Error()
		s.recorder.Record(entry)
		if injected {
			s.latch.Rollback()
		}
		return nil, err
	}
	entry.Response = reply.Turn.Segments
	s.recorder.Record(entry)

	if injected {
		s.markStyleFired(ctx)
	}
	return reply, nil
}
