// Package trace は対話とステージ実行の記録を追記専用で保持します。
package trace

import (
	"sync"
	"time"

	"github.com/shouni/go-banana-kit/pkg/domain"
)

// Kind は記録対象の操作種別です。
type Kind string

const (
	KindChat       Kind = "chat"
	KindAnalyze    Kind = "analyze"
	KindStoryboard Kind = "storyboard"
	KindPortrait   Kind = "portrait"
	KindRender     Kind = "render"
)

// Entry は1回の送信の記録です。成功・失敗を問わず記録されます。
type Entry struct {
	// Seq は記録順の連番(1始まり)。Recorder が採番する。
	Seq int `json:"seq"`
	// Kind は操作種別。
	Kind Kind `json:"kind"`
	// Model は送信先のモデル名。
	Model string `json:"model,omitempty"`
	// RequestedAt / CompletedAt は送信と完了の時刻。
	RequestedAt time.Time `json:"requested_at"`
	CompletedAt time.Time `json:"completed_at"`
	// Request はこのターンで送ったセグメント列(履歴全体ではない)。
	Request []domain.Segment `json:"request"`
	// Response は正規化済みの応答セグメント列。失敗時は nil。
	Response []domain.Segment `json:"response,omitempty"`
	// Grounding は検索グラウンディングの出典。
	Grounding []domain.GroundingRef `json:"grounding,omitempty"`
	// Err は失敗時のエラー文字列。成功時は空。
	Err string `json:"error,omitempty"`
}

func cloneEntry(e Entry) Entry {
	e.Request = domain.CloneSegments(e.Request)
	e.Response = domain.CloneSegments(e.Response)
	if e.Grounding != nil {
		refs := make([]domain.GroundingRef, len(e.Grounding))
		copy(refs, e.Grounding)
		e.Grounding = refs
	}
	return e
}

// Recorder は Entry を追記専用で蓄積します。記録済みの Entry を書き換える
// 手段は提供せず、出し入れの双方で深いコピーを取ります。
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecorder は空の Recorder を返します。
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record は記録を追記し、採番した連番を返します。
func (r *Recorder) Record(e Entry) int {
	clone := cloneEntry(e)

	r.mu.Lock()
	defer r.mu.Unlock()
	clone.Seq = len(r.entries) + 1
	r.entries = append(r.entries, clone)
	return clone.Seq
}

// Entries は全記録の深いコピーを記録順で返します。
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, cloneEntry(e))
	}
	return out
}

// Len は記録数を返します。
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
