package types

import "fmt"

// Category 实体类别（封闭集合，可通过配置扩展）
type Category string

const (
	CategoryNPC     Category = "NPC"
	CategoryMap     Category = "MAP"
	CategoryItem    Category = "ITEM"
	CategoryMonster Category = "MONSTER"
)

// DefaultCategories 返回内置实体类别集合
func DefaultCategories() []Category {
	return []Category{CategoryNPC, CategoryMap, CategoryItem, CategoryMonster}
}

// Relation 描述一条图边：谓词 + 对端实体
type Relation struct {
	Predicate    string   `json:"predicate"`
	PeerName     string   `json:"peer_name"`
	PeerCategory Category `json:"peer_category"`
}

// EntityRecord 检索的统一结果类型。
// id 全局唯一，(canonical_name, category) 唯一。
// Detail 是类别决定的不透明负载，由入库侧保证 schema，检索侧不校验。
type EntityRecord struct {
	ID            string         `json:"id"`
	CanonicalName string         `json:"canonical_name"`
	Synonyms      []string       `json:"synonyms,omitempty"`
	Category      Category       `json:"category"`
	Description   string         `json:"description,omitempty"`
	Detail        map[string]any `json:"detail,omitempty"`

	// Relations 仅由图检索填充：至少包含导致该记录入选的那条边。
	Relations []Relation `json:"relations,omitempty"`
}

// Validate reports whether the record satisfies the minimal shape every
// adapter must guarantee before a record enters fusion.
func (e *EntityRecord) Validate(allowed []Category) error {
	if e.ID == "" {
		return NewError(ErrCodeMalformedRecord, "entity record missing id")
	}
	if e.CanonicalName == "" {
		return NewError(ErrCodeMalformedRecord, fmt.Sprintf("entity %s missing canonical_name", e.ID))
	}
	for _, c := range allowed {
		if e.Category == c {
			return nil
		}
	}
	return NewError(ErrCodeMalformedRecord, fmt.Sprintf("entity %s has unknown category %q", e.ID, e.Category))
}
