package workshop

import "sync"

// Token は1回分の生成リクエストを識別する相関トークンです。
type Token struct {
	scope string
	seq   uint64
}

// RequestTracker はスコープ（ページやポートレートの単位）ごとに最新の
// リクエスト連番を追跡します。あるリクエストの応答が届いた時点でより
// 新しい連番が発行済みなら、その応答は破棄対象です（後勝ち）。
type RequestTracker struct {
	mu     sync.Mutex
	latest map[string]uint64
}

// NewRequestTracker は空のトラッカーを返します。
func NewRequestTracker() *RequestTracker {
	return &RequestTracker{latest: make(map[string]uint64)}
}

// Issue は指定スコープの新しいトークンを発行し、同スコープの既存
// トークンをすべて無効化します。
func (t *RequestTracker) Issue(scope string) Token {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latest[scope]++
	return Token{scope: scope, seq: t.latest[scope]}
}

// IsLatest はトークンがそのスコープの最新リクエストかどうかを返します。
func (t *RequestTracker) IsLatest(tok Token) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest[tok.scope] == tok.seq
}
