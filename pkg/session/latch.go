package session

import "sync"

// StyleLatch は画風参照の一度きり注入を制御するラッチです。
//
// 未発火の状態で TryConsume が成功したターンだけが画風参照を運びます。
// そのターンの送信が失敗した場合は Rollback で発火を取り消し、次の
// ターンが改めて注入できるようにします。並行して複数のターンが組み立て
// られても、消費に成功するのは高々1つです。
type StyleLatch struct {
	mu    sync.Mutex
	fired bool
}

// NewStyleLatch は未発火のラッチを返します。
func NewStyleLatch() *StyleLatch {
	return &StyleLatch{}
}

// RestoreStyleLatch は永続化された発火状態からラッチを復元します。
func RestoreStyleLatch(fired bool) *StyleLatch {
	return &StyleLatch{fired: fired}
}

// TryConsume は未発火であれば発火済みへ遷移して true を返します。
// 既に発火済みなら何もせず false を返します。
func (l *StyleLatch) TryConsume() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fired {
		return false
	}
	l.fired = true
	return true
}

// Rollback は発火を取り消します。送信に失敗したターンは注入を消費しません。
func (l *StyleLatch) Rollback() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fired = false
}

// Reset はラッチを未発火へ戻します。会話のリセット時に呼ばれます。
func (l *StyleLatch) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fired = false
}

// Fired は発火済みかどうかを返します。
func (l *StyleLatch) Fired() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fired
}
