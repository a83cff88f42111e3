// Package graph implements fixed-arity relationship traversals between entity
// categories over a read-only Cypher surface.
//
// 호출자는 canonical name 만 넘긴다. synonym 해석은 편성기의 몫이고,
// 여기서는 재해석하지 않는다. 每次调用恰好一跳；多跳由编排器用连续调用表达。
//
// 关系目录:
//   - NPC -[:LOCATED_IN]-> MAP
//   - MONSTER -[:SPAWNS_IN]-> MAP
//   - NPC -[:SELLS]-> ITEM
//   - MONSTER -[:DROPS]-> ITEM
//   - MAP -[:CONNECTS_TO]-> MAP
//   - MAP -[:HAS_NPC]-> NPC
//   - MAP -[:HAS_MONSTER]-> MONSTER
package graph

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"

	"github.com/BaSui01/gamerag/types"
)

// 谓词常量
const (
	PredicateLocatedIn  = "LOCATED_IN"
	PredicateSpawnsIn   = "SPAWNS_IN"
	PredicateSells      = "SELLS"
	PredicateDrops      = "DROPS"
	PredicateConnectsTo = "CONNECTS_TO"
	PredicateHasNPC     = "HAS_NPC"
	PredicateHasMonster = "HAS_MONSTER"
)

// 图结果没有内在相关度，统一用单调分值进入融合（融合只看排名，
// 同一次调用的所有图结果共享来源内最优名次）。
const graphScore = 1.0

// Config 图检索配置
type Config struct {
	// 单次遍历返回上限
	Limit int
	// 两点寻路最大深度
	MaxPathDepth int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{Limit: 10, MaxPathDepth: 5}
}

// Store 图检索器
type Store struct {
	client *Neo4jClient
	cfg    Config
	logger *zap.Logger
}

// NewStore 创建图检索器
func NewStore(client *Neo4jClient, cfg Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 10
	}
	if cfg.MaxPathDepth <= 0 {
		cfg.MaxPathDepth = 5
	}
	return &Store{
		client: client,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "graph_store")),
	}
}

// traversal 固定形状遍历的一条目录项
type traversal struct {
	cypher     string
	predicate  string
	subjectCat types.Category
	resultCat  types.Category
}

// 遍历目录：subject 按 canonical name 精确匹配。
var catalog = map[string]traversal{
	PredicateLocatedIn: {
		cypher: `MATCH (npc:NPC)-[:LOCATED_IN]->(map:MAP)
WHERE npc.name = $subject
RETURN map.id AS id, map.name AS name LIMIT $limit`,
		predicate:  PredicateLocatedIn,
		subjectCat: types.CategoryNPC,
		resultCat:  types.CategoryMap,
	},
	PredicateSpawnsIn: {
		cypher: `MATCH (monster:MONSTER)-[:SPAWNS_IN]->(map:MAP)
WHERE monster.name = $subject
RETURN map.id AS id, map.name AS name LIMIT $limit`,
		predicate:  PredicateSpawnsIn,
		subjectCat: types.CategoryMonster,
		resultCat:  types.CategoryMap,
	},
	PredicateSells: {
		cypher: `MATCH (npc:NPC)-[:SELLS]->(item:ITEM)
WHERE item.name = $subject
RETURN npc.id AS id, npc.name AS name LIMIT $limit`,
		predicate:  PredicateSells,
		subjectCat: types.CategoryItem,
		resultCat:  types.CategoryNPC,
	},
	PredicateDrops: {
		cypher: `MATCH (monster:MONSTER)-[:DROPS]->(item:ITEM)
WHERE item.name = $subject
RETURN monster.id AS id, monster.name AS name LIMIT $limit`,
		predicate:  PredicateDrops,
		subjectCat: types.CategoryItem,
		resultCat:  types.CategoryMonster,
	},
	PredicateConnectsTo: {
		cypher: `MATCH (map1:MAP)-[:CONNECTS_TO]->(map2:MAP)
WHERE map1.name = $subject
RETURN map2.id AS id, map2.name AS name LIMIT $limit`,
		predicate:  PredicateConnectsTo,
		subjectCat: types.CategoryMap,
		resultCat:  types.CategoryMap,
	},
	PredicateHasNPC: {
		cypher: `MATCH (map:MAP)-[:HAS_NPC]->(npc:NPC)
WHERE map.name = $subject
RETURN npc.id AS id, npc.name AS name LIMIT $limit`,
		predicate:  PredicateHasNPC,
		subjectCat: types.CategoryMap,
		resultCat:  types.CategoryNPC,
	},
	PredicateHasMonster: {
		cypher: `MATCH (map:MAP)-[:HAS_MONSTER]->(monster:MONSTER)
WHERE map.name = $subject
RETURN monster.id AS id, monster.name AS name LIMIT $limit`,
		predicate:  PredicateHasMonster,
		subjectCat: types.CategoryMap,
		resultCat:  types.CategoryMonster,
	},
}

// FindNPCLocation NPC가 위치한 맵 찾기
func (s *Store) FindNPCLocation(ctx context.Context, npc string) ([]types.SourceHit, error) {
	return s.run(ctx, PredicateLocatedIn, npc)
}

// FindMonsterLocations 몬스터가 출현하는 맵 찾기
func (s *Store) FindMonsterLocations(ctx context.Context, monster string) ([]types.SourceHit, error) {
	return s.run(ctx, PredicateSpawnsIn, monster)
}

// FindItemSellers 아이템을 판매하는 NPC 찾기
func (s *Store) FindItemSellers(ctx context.Context, item string) ([]types.SourceHit, error) {
	return s.run(ctx, PredicateSells, item)
}

// FindItemDroppers 아이템을 드랍하는 몬스터 찾기
func (s *Store) FindItemDroppers(ctx context.Context, item string) ([]types.SourceHit, error) {
	return s.run(ctx, PredicateDrops, item)
}

// FindMapConnections 맵의 연결된 맵들 찾기
func (s *Store) FindMapConnections(ctx context.Context, mapName string) ([]types.SourceHit, error) {
	return s.run(ctx, PredicateConnectsTo, mapName)
}

// FindMapNPCs 맵에 있는 NPC들 찾기
func (s *Store) FindMapNPCs(ctx context.Context, mapName string) ([]types.SourceHit, error) {
	return s.run(ctx, PredicateHasNPC, mapName)
}

// FindMapMonsters 맵에 출현하는 몬스터들 찾기
func (s *Store) FindMapMonsters(ctx context.Context, mapName string) ([]types.SourceHit, error) {
	return s.run(ctx, PredicateHasMonster, mapName)
}

// SearchByRelation 按谓词名分发到目录项。未知谓词返回空。
func (s *Store) SearchByRelation(ctx context.Context, predicate, subject string) ([]types.SourceHit, error) {
	if _, ok := catalog[predicate]; !ok {
		s.logger.Warn("unsupported relation predicate", zap.String("predicate", predicate))
		return nil, nil
	}
	return s.run(ctx, predicate, subject)
}

// PathHop 寻路结果中的一跳
type PathHop struct {
	Names    []string `json:"names"`
	Distance int      `json:"distance"`
}

// FindPathBetweenMaps 두 맵 사이의 최단 경로 찾기
func (s *Store) FindPathBetweenMaps(ctx context.Context, from, to string) (*PathHop, error) {
	cypher := `MATCH path = shortestPath((start:MAP)-[:CONNECTS_TO*..` +
		strconv.Itoa(s.cfg.MaxPathDepth) + `]->(end:MAP))
WHERE start.name = $from AND end.name = $to
RETURN [node IN nodes(path) | node.name] AS names, length(path) AS distance LIMIT 1`

	rows, err := s.client.Query(ctx, cypher, map[string]any{"from": from, "to": to})
	if err != nil {
		return nil, s.warn("map path search failed", from, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	hop := &PathHop{}
	if names, ok := rows[0]["names"].([]any); ok {
		for _, n := range names {
			if str, ok := n.(string); ok {
				hop.Names = append(hop.Names, str)
			}
		}
	}
	if d, ok := rows[0]["distance"].(float64); ok {
		hop.Distance = int(d)
	}
	return hop, nil
}

// run 执行目录项遍历并把行转成带关系的实体记录。
func (s *Store) run(ctx context.Context, predicate, subject string) ([]types.SourceHit, error) {
	if subject == "" {
		return nil, nil
	}
	tr := catalog[predicate]

	rows, err := s.client.Query(ctx, tr.cypher, map[string]any{
		"subject": subject,
		"limit":   s.cfg.Limit,
	})
	if err != nil {
		return nil, s.warn("graph traversal failed", subject, err)
	}

	hits := make([]types.SourceHit, 0, len(rows))
	for _, row := range rows {
		id, _ := row["id"].(string)
		name, _ := row["name"].(string)
		if id == "" || name == "" {
			continue
		}
		hits = append(hits, types.SourceHit{
			Entity: types.EntityRecord{
				ID:            id,
				CanonicalName: name,
				Category:      tr.resultCat,
				Relations: []types.Relation{{
					Predicate:    tr.predicate,
					PeerName:     subject,
					PeerCategory: tr.subjectCat,
				}},
			},
			Score:     graphScore,
			MatchType: types.GraphMatchType(tr.predicate),
		})
	}
	return hits, nil
}

func (s *Store) warn(msg, subject string, err error) error {
	code := types.ErrCodeStoreTransport
	if errors.Is(err, context.DeadlineExceeded) {
		code = types.ErrCodeStoreTimeout
	}
	s.logger.Warn(msg, zap.String("subject", subject), zap.Error(err))
	return types.NewError(code, msg).WithCause(err).WithSource(types.SourceGraph)
}

