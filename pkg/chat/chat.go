// Package chat は会話1ターンの往復を編成するサービスです。
//
// メンション解決、画風参照の一度きり注入、ペイロード組み立て、送信、
// 履歴への対追記、記録までを1つの流れとして実行します。送信が失敗した
// ターンは履歴に残らず、注入ラッチも消費しません。
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/shouni/go-banana-kit/pkg/assembler"
	"github.com/shouni/go-banana-kit/pkg/catalog"
	"github.com/shouni/go-banana-kit/pkg/domain"
	"github.com/shouni/go-banana-kit/pkg/gateway"
	"github.com/shouni/go-banana-kit/pkg/resolver"
	"github.com/shouni/go-banana-kit/pkg/session"
	"github.com/shouni/go-banana-kit/pkg/trace"
)

// Dispatcher は会話モードの送信先です。本番では gateway.Client が入ります。
type Dispatcher interface {
	Chat(ctx context.Context, system string, history []domain.Turn) (*gateway.Reply, error)
}

// Service は1つの会話セッションに紐づく編成サービスです。
type Service struct {
	dispatcher Dispatcher
	catalog    *catalog.Catalog
	session    *session.ChatSession
	recorder   *trace.Recorder
	system     string
	model      string
}

// Params は Service の依存関係です。
type Params struct {
	Dispatcher   Dispatcher
	Catalog      *catalog.Catalog
	Session      *session.ChatSession
	Recorder     *trace.Recorder
	SystemPrompt string
	// ModelName は記録用のモデル名。送信自体は Dispatcher の設定に従う。
	ModelName string
}

// Reply は1ターンの結果です。
type Reply struct {
	// Turn は正規化済みのモデル応答。
	Turn domain.Turn
	// Grounding は検索グラウンディングの出典。
	Grounding []domain.GroundingRef
	// Mentioned は本文から解決されたエンティティ(カタログ順)。
	Mentioned []domain.Entity
	// StyleInjected はこのターンが画風参照を運んだかどうか。
	StyleInjected bool
}

// New は依存関係を検証して Service を初期化します。
func New(p Params) (*Service, error) {
	if p.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher は必須です")
	}
	if p.Catalog == nil {
		return nil, fmt.Errorf("catalog は必須です")
	}
	if p.Session == nil {
		return nil, fmt.Errorf("session は必須です")
	}
	if p.Recorder == nil {
		return nil, fmt.Errorf("recorder は必須です")
	}
	return &Service{
		dispatcher: p.Dispatcher,
		catalog:    p.Catalog,
		session:    p.Session,
		recorder:   p.Recorder,
		system:     p.SystemPrompt,
		model:      p.ModelName,
	}, nil
}

// Send は本文と添付から1ターンを組み立てて送信します。
//
// 成功した場合のみユーザーターンとモデルターンの対が履歴へ追記されます。
// 失敗した場合、履歴は変化せず、このターンが消費した注入ラッチは巻き
// 戻されます。送信の試行は成否を問わず記録されます。
func (s *Service) Send(ctx context.Context, text string, attachments []domain.Segment) (*Reply, error) {
	mentioned := resolver.ResolveMentions(text, s.catalog.List())

	// 組み立ての前にラッチを消費する。並行するターンとの競合をここで決着させ、
	// 実際に注入できなかった場合は直後に巻き戻す。
	latch := s.session.Latch()
	consumed := latch.TryConsume()

	segs, injected := assembler.Assemble(assembler.TurnInputs{
		UserText:        text,
		Attachments:     attachments,
		Mentions:        mentioned,
		StyleRefs:       s.catalog.SceneRefs(),
		InjectStyleRefs: consumed,
	})
	if consumed && !injected {
		latch.Rollback()
	}

	if len(segs) == 0 {
		return nil, fmt.Errorf("送信する本文も添付もありません")
	}

	userTurn := domain.NewTurn(domain.RoleUser, segs...)
	history := append(s.session.History(), userTurn)

	requestedAt := time.Now()
	reply, err := s.dispatcher.Chat(ctx, s.system, history)
	entry := trace.Entry{
		Kind:        trace.KindChat,
		Model:       s.model,
		RequestedAt: requestedAt,
		CompletedAt: time.Now(),
		Request:     segs,
	}
	if err != nil {
		entry.Err = err.Error()
		s.recorder.Record(entry)
		if injected {
			latch.Rollback()
		}
		return nil, fmt.Errorf("会話の送信に失敗しました: %w", err)
	}
	entry.Response = reply.Turn.Segments
	entry.Grounding = reply.Grounding
	s.recorder.Record(entry)

	s.session.AppendExchange(userTurn, reply.Turn)

	return &Reply{
		Turn:          reply.Turn,
		Grounding:     reply.Grounding,
		Mentioned:     mentioned,
		StyleInjected: injected,
	}, nil
}

// Reset は会話を初期状態へ戻します。履歴は消え、ラッチは再武装されます。
// 記録とカタログは保持されます。
func (s *Service) Reset() {
	s.session.Reset()
}

// Session は紐づくセッションを返します。
func (s *Service) Session() *session.ChatSession {
	return s.session
}
