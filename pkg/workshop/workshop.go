package workshop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/shouni/go-banana-kit/pkg/catalog"
	"github.com/shouni/go-banana-kit/pkg/domain"
	"github.com/shouni/go-banana-kit/pkg/prompts"
	"github.com/shouni/go-banana-kit/pkg/session"
	"github.com/shouni/go-banana-kit/pkg/trace"
)

const (
	// PageAspectRatio は漫画ページの縦長アスペクト比です。
	PageAspectRatio = "3:4"
	// PageImageSize は漫画ページの生成解像度です。
	PageImageSize = "2K"
	// PortraitAspectRatio はキャラクターポートレートの正方形アスペクト比です。
	PortraitAspectRatio = "1:1"
	// PortraitImageSize はポートレートの生成解像度です。
	PortraitImageSize = "1K"
)

// Service は原作テキストから漫画ページまでの段階的パイプライン
// （取り込み → 解析 → ストーリーボード → レンダー）を1プロジェクト分
// 管理するコンポーネントです。
//
// 各ステージの成果物は Project に蓄積され、上流ステージの再実行は
// 下流の成果物を前方へのみ無効化します。画像生成は Store への保存
// まで含めて後勝ちで、古いリクエストの応答は ErrStaleResult として
// 破棄されます。
type Service struct {
	extractor Extractor
	renderer  Renderer
	store     Store
	catalog   *catalog.Catalog
	recorder  *trace.Recorder
	portraits PortraitSink
	builder   prompts.Builder
	tracker   *RequestTracker
	latch     *session.StyleLatch
	limiter   *rate.Limiter

	textModel  string
	imageModel string
	projectID  string

	mu      sync.Mutex
	project *domain.Project
}

// Params は Service の構築に必要な依存をまとめます。
type Params struct {
	Extractor    Extractor
	Renderer     Renderer
	Store        Store
	Catalog      *catalog.Catalog
	Recorder     *trace.Recorder
	PortraitSink PortraitSink
	ProjectID    string

	// TextModel と ImageModel はトレース表示用のモデル名です。
	TextModel  string
	ImageModel string

	// Limiter は画像生成の呼び出し間隔を制御します。nil なら既定の
	// 30秒間隔が使われます。
	Limiter *rate.Limiter
}

// New は保存済みプロジェクトを読み込んで（無ければ新規作成して）
// Service を初期化します。
func New(ctx context.Context, p Params) (*Service, error) {
	if p.Extractor == nil {
		return nil, fmt.Errorf("Extractor は必須です")
	}
	if p.Renderer == nil {
		return nil, fmt.Errorf("Renderer は必須です")
	}
	if p.Store == nil {
		return nil, fmt.Errorf("Store は必須です")
	}
	if p.Catalog == nil {
		return nil, fmt.Errorf("Catalog は必須です")
	}
	if p.Recorder == nil {
		return nil, fmt.Errorf("Recorder は必須です")
	}
	if p.PortraitSink == nil {
		return nil, fmt.Errorf("PortraitSink は必須です")
	}
	if strings.TrimSpace(p.ProjectID) == "" {
		return nil, fmt.Errorf("ProjectID は必須です")
	}

	builder, err := prompts.NewTextPromptBuilder()
	if err != nil {
		return nil, err
	}

	project, err := p.Store.LoadProject(ctx, p.ProjectID)
	switch {
	case errors.Is(err, ErrProjectNotFound):
		project = domain.NewProject(p.ProjectID)
		slog.InfoContext(ctx, "新規プロジェクトを作成します", "project", p.ProjectID)
	case err != nil:
		return nil, fmt.Errorf("プロジェクトの読み込みに失敗しました: %w", err)
	default:
		slog.InfoContext(ctx, "保存済みプロジェクトを読み込みました",
			"project", p.ProjectID,
			"characters", len(project.Characters),
			"pages", len(project.Storyboard),
			"renders", len(project.Renders))
	}

	limiter := p.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(30*time.Second), 1)
	}

	return &Service{
		extractor:  p.Extractor,
		renderer:   p.Renderer,
		store:      p.Store,
		catalog:    p.Catalog,
		recorder:   p.Recorder,
		portraits:  p.PortraitSink,
		builder:    builder,
		tracker:    NewRequestTracker(),
		latch:      session.RestoreStyleLatch(project.StyleFired),
		limiter:    limiter,
		textModel:  p.TextModel,
		imageModel: p.ImageModel,
		projectID:  p.ProjectID,
		project:    project,
	}, nil
}

// SetNovel は原作テキストを取り込み、全ステージの成果物を破棄します。
// 作品自体が変わるため、画風参照の注入ラッチも未発火へ戻します。
func (s *Service) SetNovel(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("原作テキストが空です")
	}

	s.mu.Lock()
	s.project.NovelText = text
	s.project.Characters = nil
	s.project.Items = nil
	s.project.ClearDownstream()
	s.project.StyleFired = false
	s.project.UpdatedAt = time.Now()
	s.mu.Unlock()
	s.latch.Reset()

	if err := s.saveProject(ctx); err != nil {
		return err
	}
	slog.InfoContext(ctx, "原作テキストを取り込みました", "project", s.projectID, "chars", len([]rune(text)))
	return nil
}

// Project は現在のプロジェクト状態のスナップショットを返します。
func (s *Service) Project() *domain.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.project.Clone()
}

// ProjectID はプロジェクト識別子を返します。
func (s *Service) ProjectID() string {
	return s.projectID
}

// saveProject は現在の状態スナップショットをストレージへ書き出します。
func (s *Service) saveProject(ctx context.Context) error {
	s.mu.Lock()
	snapshot := s.project.Clone()
	s.mu.Unlock()
	if err := s.store.SaveProject(ctx, snapshot); err != nil {
		return fmt.Errorf("プロジェクトの保存に失敗しました: %w", err)
	}
	return nil
}

// markStyleFired は画風参照の消費をプロジェクト状態へ反映します。
// 保存に失敗してもラッチ自体は発火済みのままにします（参照は既に
// モデルへ送られているため）。
func (s *Service) markStyleFired(ctx context.Context) {
	s.mu.Lock()
	s.project.StyleFired = true
	s.mu.Unlock()
	if err := s.saveProject(ctx); err != nil {
		slog.WarnContext(ctx, "画風消費状態の保存に失敗しました", "error", err)
	}
}
