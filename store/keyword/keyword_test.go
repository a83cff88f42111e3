package keyword

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/gamerag/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&DictionaryEntry{}))

	entries := []DictionaryEntry{
		{
			ID:            "npc:darklord",
			CanonicalName: "다크로드",
			Category:      "NPC",
			Synonyms:      EncodeSynonyms([]string{"다크", "도적 전직관"}),
			Description:   "커닝시티의 도적 전직관. 도적으로 전직하려면 찾아가야 한다.",
			Detail:        `{"location":"커닝시티"}`,
		},
		{
			ID:            "item:icejeans",
			CanonicalName: "아이스진",
			Category:      "ITEM",
			Synonyms:      EncodeSynonyms([]string{"아진"}),
			Description:   "파란색 바지. 스포아가 떨어뜨린다.",
		},
		{
			ID:            "monster:spore",
			CanonicalName: "스포아",
			Category:      "MONSTER",
			Synonyms:      EncodeSynonyms(nil),
			Description:   "폐광에 출현하는 버섯 몬스터.",
		},
		{
			ID:            "npc:mina",
			CanonicalName: "미나",
			Category:      "NPC",
			Synonyms:      EncodeSynonyms([]string{"물약 상인"}),
			Description:   "리스항구에서 물약을 파는 상인.",
		},
	}
	require.NoError(t, db.Create(&entries).Error)

	return NewStore(db, DefaultConfig(), nil)
}

func TestSearch_ExactNameRanksFirst(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	hits, err := s.Search(context.Background(), "다크로드", nil, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	assert.Equal(t, "npc:darklord", hits[0].Entity.ID)
	assert.Equal(t, types.MatchExactName, hits[0].MatchType)
	assert.Equal(t, float64(100), hits[0].Score)
}

func TestSearch_SynonymResolvesToCanonical(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	hits, err := s.Search(context.Background(), "아진", nil, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	assert.Equal(t, "item:icejeans", hits[0].Entity.ID)
	assert.Equal(t, types.MatchSynonym, hits[0].MatchType)
}

func TestSearch_PrefixBeatsSubstring(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	// "다크" 是 synonym 也是前缀；前缀阶段先执行，记录只进一次
	hits, err := s.Search(context.Background(), "다크", nil, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, types.MatchPrefix, hits[0].MatchType)
}

func TestSearch_DescriptionStageReSearchesCanonical(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	// "물약" 不是任何 canonical/synonym 的直接命中对象之外，
	// description 阶段应通过 "미나" 的描述找到她
	hits, err := s.Search(context.Background(), "물약을", nil, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	assert.Equal(t, "npc:mina", hits[0].Entity.ID)
	assert.Equal(t, types.MatchDescription, hits[0].MatchType)
}

func TestSearch_CategoryFilter(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	hits, err := s.Search(context.Background(), "스포아", []types.Category{types.CategoryNPC}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = s.Search(context.Background(), "스포아", []types.Category{types.CategoryMonster}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "monster:spore", hits[0].Entity.ID)
}

func TestSearch_EmptyTermAndZeroLimit(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	hits, err := s.Search(context.Background(), "  ", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = s.Search(context.Background(), "다크로드", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestResolveCanonical(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	name, ok, err := s.ResolveCanonical(ctx, "아진")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "아이스진", name)

	name, ok, err = s.ResolveCanonical(ctx, "아이스진")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "아이스진", name)

	_, ok, err = s.ResolveCanonical(ctx, "없는이름")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetByIDs(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	records, err := s.GetByIDs(context.Background(), []string{"npc:mina", "monster:spore", "missing"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "미나", records["npc:mina"].CanonicalName)
	assert.Equal(t, types.CategoryMonster, records["monster:spore"].Category)
}

func TestSynonymMappings(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	mapping, err := s.SynonymMappings(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "아이스진", mapping["아진"])
	assert.Equal(t, "아이스진", mapping["아이스진"])
	assert.Equal(t, "미나", mapping["물약 상인"])
}

func TestDictionaryEntry_ToRecordParsesDetail(t *testing.T) {
	t.Parallel()

	e := DictionaryEntry{
		ID:            "npc:darklord",
		CanonicalName: "다크로드",
		Category:      "NPC",
		Synonyms:      EncodeSynonyms([]string{"다크"}),
		Detail:        `{"location":"커닝시티"}`,
	}
	rec := e.ToRecord()
	assert.Equal(t, []string{"다크"}, rec.Synonyms)
	assert.Equal(t, "커닝시티", rec.Detail["location"])

	bad := DictionaryEntry{ID: "x", CanonicalName: "x", Detail: "{broken"}
	assert.Nil(t, bad.ToRecord().Detail)
}
