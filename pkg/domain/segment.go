package domain

// Role は会話ターンの発話者を示します。値は上流APIのロール文字列と一致させます。
type Role string

const (
	// RoleUser はユーザー発話のターンです。
	RoleUser Role = "user"
	// RoleModel はモデル応答のターンです。
	RoleModel Role = "model"
)

// SegmentKind はセグメントの種別（テキストか画像か）を示します。
type SegmentKind string

const (
	// SegmentText はテキストセグメントです。
	SegmentText SegmentKind = "text"
	// SegmentImage はインライン画像セグメントです。
	SegmentImage SegmentKind = "image"
)

// Segment はターンを構成する最小単位（テキストまたは画像）です。
// ターン内のセグメント順序は意味を持つため、組み立てた順序を崩してはいけません。
// 参照画像はそれを使う指示文より前に置かれることをモデル側が前提にしています。
type Segment struct {
	Kind     SegmentKind `json:"kind"`
	Text     string      `json:"text,omitempty"`
	MIMEType string      `json:"mime_type,omitempty"`
	Data     []byte      `json:"data,omitempty"`
}

// NewTextSegment はテキストセグメントを生成します。
func NewTextSegment(text string) Segment {
	return Segment{Kind: SegmentText, Text: text}
}

// NewImageSegment はインライン画像セグメントを生成します。
func NewImageSegment(mimeType string, data []byte) Segment {
	return Segment{Kind: SegmentImage, MIMEType: mimeType, Data: data}
}

// Clone はセグメントの防御的コピーを返します。画像データも新しく割り当てます。
func (s Segment) Clone() Segment {
	copied := s
	if s.Data != nil {
		copied.Data = make([]byte, len(s.Data))
		copy(copied.Data, s.Data)
	}
	return copied
}

// CloneSegments はセグメント列全体のディープコピーを返すのだ。
// 履歴やトレースに保存した内容が後から書き換えられるのを防ぐために使います。
func CloneSegments(segments []Segment) []Segment {
	if segments == nil {
		return nil
	}
	copied := make([]Segment, len(segments))
	for i, seg := range segments {
		copied[i] = seg.Clone()
	}
	return copied
}

// Turn は1回分の発話（ユーザーまたはモデル）を表します。
type Turn struct {
	Role     Role      `json:"role"`
	Segments []Segment `json:"segments"`
}

// NewTurn は指定ロールのターンを生成します。セグメントはコピーせずそのまま保持します。
func NewTurn(role Role, segments ...Segment) Turn {
	return Turn{Role: role, Segments: segments}
}

// Clone はターンのディープコピーを返します。
func (t Turn) Clone() Turn {
	return Turn{Role: t.Role, Segments: CloneSegments(t.Segments)}
}

// CloneTurns はターン列全体のディープコピーを返します。
func CloneTurns(turns []Turn) []Turn {
	if turns == nil {
		return nil
	}
	copied := make([]Turn, len(turns))
	for i, turn := range turns {
		copied[i] = turn.Clone()
	}
	return copied
}

// Text はターン内のテキストセグメントを連結して返します。表示用のヘルパーです。
func (t Turn) Text() string {
	var out string
	for _, seg := range t.Segments {
		if seg.Kind == SegmentText {
			out += seg.Text
		}
	}
	return out
}

// Images はターン内の画像セグメントのみを返します。
func (t Turn) Images() []Segment {
	var images []Segment
	for _, seg := range t.Segments {
		if seg.Kind == SegmentImage {
			images = append(images, seg)
		}
	}
	return images
}

// GroundingRef は検索グラウンディングで参照されたWebソースです。
type GroundingRef struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}
