package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// MentionPrefix は本文中でエンティティを参照するための接頭辞です。
const MentionPrefix = "@"

// Entity は `@名前` で参照できる、画像付きの視覚エンティティ（キャラクター等）です。
// Name はカタログ内で一意であり、同名の登録は古いものを上書きします。
// Data が空のエンティティ（オフライン・エンティティ）も参照自体は可能ですが、
// ペイロードにはテキストの注記だけが入り、画像セグメントは決して作られません。
type Entity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MIMEType    string `json:"mime_type,omitempty"`
	Data        []byte `json:"data,omitempty"`
	PreviewPath string `json:"preview_path,omitempty"`
}

// SceneReference は構造上 Entity と同一ですが、「作品全体の画調」を表す参照として
// 扱われ、1つの会話／プロジェクトにつき一度しか注入されません。
type SceneReference = Entity

// NewEntity は名前からIDを決定論的に導出してエンティティを生成します。
func NewEntity(name, mimeType string, data []byte, previewPath string) Entity {
	return Entity{
		ID:          EntityIDFromName(name),
		Name:        name,
		MIMEType:    mimeType,
		Data:        data,
		PreviewPath: previewPath,
	}
}

// EntityIDFromName は名前のハッシュから短い決定論的IDを生成します。
func EntityIDFromName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:6])
}

// MentionKey は本文照合に使う `@名前` 形式のキーを返します。
func (e Entity) MentionKey() string {
	return MentionPrefix + e.Name
}

// HasImage は画像ペイロードを持つ（オフラインでない）場合に true を返します。
func (e Entity) HasImage() bool {
	return len(e.Data) > 0
}

// Clone はエンティティの防御的コピーを返します。
func (e Entity) Clone() Entity {
	copied := e
	if e.Data != nil {
		copied.Data = make([]byte, len(e.Data))
		copy(copied.Data, e.Data)
	}
	return copied
}

// CloneEntities はエンティティ列のディープコピーを返します。
func CloneEntities(entities []Entity) []Entity {
	if entities == nil {
		return nil
	}
	copied := make([]Entity, len(entities))
	for i, ent := range entities {
		copied[i] = ent.Clone()
	}
	return copied
}

// NormalizeMentionName は内部表現（@付き）に正規化します。
func NormalizeMentionName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return name
	}
	if strings.HasPrefix(name, MentionPrefix) {
		return name
	}
	return MentionPrefix + name
}

// StripMentionPrefix は表示やカタログ照合のために @ を外した名前を返します。
func StripMentionPrefix(name string) string {
	return strings.TrimPrefix(strings.TrimSpace(name), MentionPrefix)
}
