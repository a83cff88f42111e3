package keyword

import (
	"encoding/json"

	"github.com/BaSui01/gamerag/types"
)

// DictionaryEntry 词典表 GORM 模型。
// synonyms 与 detail 以 JSON 文本存储，保证 postgres / mysql / sqlite 三方言一致。
type DictionaryEntry struct {
	ID            string `gorm:"column:id;primaryKey"`
	CanonicalName string `gorm:"column:canonical_name;uniqueIndex:idx_name_category"`
	Category      string `gorm:"column:category;uniqueIndex:idx_name_category;index"`
	Synonyms      string `gorm:"column:synonyms"`
	Description   string `gorm:"column:description"`
	Detail        string `gorm:"column:detail"`
}

// TableName 指定表名
func (DictionaryEntry) TableName() string { return "dictionary_entries" }

// SynonymList 解码同义词数组，坏数据返回 nil。
func (e *DictionaryEntry) SynonymList() []string {
	if e.Synonyms == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(e.Synonyms), &out); err != nil {
		return nil
	}
	return out
}

// ToRecord 转换为统一实体记录
func (e *DictionaryEntry) ToRecord() types.EntityRecord {
	rec := types.EntityRecord{
		ID:            e.ID,
		CanonicalName: e.CanonicalName,
		Synonyms:      e.SynonymList(),
		Category:      types.Category(e.Category),
		Description:   e.Description,
	}
	if e.Detail != "" {
		var detail map[string]any
		if err := json.Unmarshal([]byte(e.Detail), &detail); err == nil {
			rec.Detail = detail
		}
	}
	return rec
}

// EncodeSynonyms JSON 编码同义词数组（入库与测试夹具用）。
func EncodeSynonyms(synonyms []string) string {
	if len(synonyms) == 0 {
		return "[]"
	}
	data, err := json.Marshal(synonyms)
	if err != nil {
		return "[]"
	}
	return string(data)
}
