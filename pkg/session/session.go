// Package session は会話履歴と画風注入ラッチの状態を管理します。
package session

import (
	"sync"
	"time"

	"github.com/shouni/go-banana-kit/pkg/domain"
)

// ChatSession は1つの会話の状態を保持します。
//
// 履歴はユーザーターンとモデルターンの対でのみ伸び、対の追記は送信が
// 成功した後に限られます。途中の書き換えや削除の操作は提供しません。
// 唯一の例外は Reset で、履歴とラッチをまとめて初期状態へ戻します。
type ChatSession struct {
	mu        sync.RWMutex
	id        string
	history   []domain.Turn
	latch     *StyleLatch
	updatedAt time.Time
}

// State は永続化用のセッションのスナップショットです。
type State struct {
	ID         string        `json:"id"`
	History    []domain.Turn `json:"history"`
	StyleFired bool          `json:"style_fired"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// NewChatSession は空の履歴と未発火のラッチを持つセッションを返します。
func NewChatSession(id string) *ChatSession {
	return &ChatSession{
		id:        id,
		latch:     NewStyleLatch(),
		updatedAt: time.Now(),
	}
}

// Restore はスナップショットからセッションを復元します。
func Restore(st State) *ChatSession {
	return &ChatSession{
		id:        st.ID,
		history:   domain.CloneTurns(st.History),
		latch:     RestoreStyleLatch(st.StyleFired),
		updatedAt: st.UpdatedAt,
	}
}

// ID はセッション識別子を返します。
func (s *ChatSession) ID() string {
	return s.id
}

// Latch は画風注入ラッチを返します。
func (s *ChatSession) Latch() *StyleLatch {
	return s.latch
}

// History は履歴の深いコピーを返します。呼び出し側がどう書き換えても
// セッション内部には影響しません。
func (s *ChatSession) History() []domain.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CloneTurns(s.history)
}

// Len は履歴のターン数を返します。
func (s *ChatSession) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// AppendExchange はユーザーターンとモデルターンの対を追記します。
// 渡されたターンは深いコピーで取り込むため、呼び出し側の後続の変更は
// 履歴に波及しません。
func (s *ChatSession) AppendExchange(user, model domain.Turn) {
	userCopy := user.Clone()
	userCopy.Role = domain.RoleUser
	modelCopy := model.Clone()
	modelCopy.Role = domain.RoleModel

	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, userCopy, modelCopy)
	s.updatedAt = time.Now()
}

// Reset は履歴を消去し、ラッチを未発火へ戻します。両方が一体で行われ、
// リセット後の最初のターンは再び画風参照を注入できます。
func (s *ChatSession) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	s.latch.Reset()
	s.updatedAt = time.Now()
}

// Snapshot は永続化用の深いコピーを返します。
func (s *ChatSession) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		ID:         s.id,
		History:    domain.CloneTurns(s.history),
		StyleFired: s.latch.Fired(),
		UpdatedAt:  s.updatedAt,
	}
}
