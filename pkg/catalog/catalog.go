// Package catalog は @メンションで参照できるエンティティの台帳を提供します。
//
// 台帳は登録順を保持した名前引きの集合で、同名の登録は位置を保ったまま
// 上書きされます。消えるのは明示的な削除だけです。通常のエンティティと、
// 作品全体の画調を表すシーン参照は別々の集合として管理します。
package catalog

import (
	"fmt"
	"sync"

	"github.com/shouni/go-banana-kit/pkg/domain"
)

// registry は登録順付きの名前引き集合です。ロックは呼び出し側が持ちます。
type registry struct {
	items []domain.Entity
	index map[string]int
}

func newRegistry() *registry {
	return &registry{index: make(map[string]int)}
}

func (r *registry) put(ent domain.Entity) {
	if pos, exists := r.index[ent.Name]; exists {
		r.items[pos] = ent
		return
	}
	r.index[ent.Name] = len(r.items)
	r.items = append(r.items, ent)
}

func (r *registry) remove(name string) bool {
	pos, exists := r.index[name]
	if !exists {
		return false
	}
	r.items = append(r.items[:pos], r.items[pos+1:]...)
	delete(r.index, name)
	for i := pos; i < len(r.items); i++ {
		r.index[r.items[i].Name] = i
	}
	return true
}

func (r *registry) get(name string) (domain.Entity, bool) {
	pos, exists := r.index[name]
	if !exists {
		return domain.Entity{}, false
	}
	return r.items[pos].Clone(), true
}

func (r *registry) list() []domain.Entity {
	return domain.CloneEntities(r.items)
}

// Catalog はエンティティとシーン参照の台帳です。全メソッドは並行安全です。
type Catalog struct {
	mu        sync.RWMutex
	entities  *registry
	sceneRefs *registry
}

// New は空の台帳を返します。
func New() *Catalog {
	return &Catalog{
		entities:  newRegistry(),
		sceneRefs: newRegistry(),
	}
}

// normalize は名前の @ を外し、IDが未設定なら名前から導出します。
func normalize(ent domain.Entity) (domain.Entity, error) {
	ent.Name = domain.StripMentionPrefix(ent.Name)
	if ent.Name == "" {
		return domain.Entity{}, fmt.Errorf("エンティティ名は必須です")
	}
	if ent.ID == "" {
		ent.ID = domain.EntityIDFromName(ent.Name)
	}
	return ent.Clone(), nil
}

// Put はエンティティを登録します。同名の既存エントリは登録位置を保った
// まま上書きされます。
func (c *Catalog) Put(ent domain.Entity) error {
	normalized, err := normalize(ent)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entities.put(normalized)
	return nil
}

// Remove はエンティティを削除します。存在しなければ false を返します。
func (c *Catalog) Remove(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entities.remove(domain.StripMentionPrefix(name))
}

// Get は名前でエンティティを引きます。@ 付きの名前も受け付けます。
// 戻り値はコピーで、書き換えても台帳には影響しません。
func (c *Catalog) Get(name string) (domain.Entity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entities.get(domain.StripMentionPrefix(name))
}

// List は全エンティティを登録順のコピーで返します。
func (c *Catalog) List() []domain.Entity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entities.list()
}

// Len は登録済みエンティティ数を返します。
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entities.items)
}

// PutSceneRef はシーン参照を登録します。上書き規則は Put と同じです。
func (c *Catalog) PutSceneRef(ref domain.SceneReference) error {
	normalized, err := normalize(ref)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sceneRefs.put(normalized)
	return nil
}

// RemoveSceneRef はシーン参照を削除します。
func (c *Catalog) RemoveSceneRef(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sceneRefs.remove(domain.StripMentionPrefix(name))
}

// SceneRefs は全シーン参照を登録順のコピーで返します。
func (c *Catalog) SceneRefs() []domain.SceneReference {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sceneRefs.list()
}
