package router

import (
	"encoding/json"
	"strings"

	"github.com/BaSui01/gamerag/types"
)

// extractJSON 从 LLM 响应里取出 JSON 文本。
// 容忍 ```json 围栏和模型偶发的 {{ }} 双大括号。
func extractJSON(content string) string {
	content = strings.TrimSpace(content)

	if idx := strings.Index(content, "```json"); idx >= 0 {
		rest := content[idx+7:]
		if end := strings.Index(rest, "```"); end >= 0 {
			content = rest[:end]
		} else {
			content = rest
		}
	} else if idx := strings.Index(content, "```"); idx >= 0 {
		rest := content[idx+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			content = rest[:end]
		} else {
			content = rest
		}
	}

	content = strings.TrimSpace(content)
	content = strings.ReplaceAll(content, "{{", "{")
	content = strings.ReplaceAll(content, "}}", "}")
	return content
}

// hopPayload HOP 응답 스키마
type hopPayload struct {
	Thought   string   `json:"thought"`
	Hop       int      `json:"hop"`
	Relation  string   `json:"relation"`
	Entities  []string `json:"entities"`
	Sentences []string `json:"sentences"`
}

// parseHopResponse 解析 HOP 策略响应。解析失败返回 LLM_MALFORMED（不重试）。
func parseHopResponse(content string) (*hopPayload, error) {
	var payload hopPayload
	if err := json.Unmarshal([]byte(extractJSON(content)), &payload); err != nil {
		return nil, types.NewError(types.ErrCodeLLMMalformed, "unparseable hop response").WithCause(err)
	}
	if payload.Hop < 1 {
		payload.Hop = 1
	}
	return &payload, nil
}

// planPayload PLAN 응답 스키마
type planPayload struct {
	Thought string `json:"thought"`
	Plan    []struct {
		Step   int    `json:"step"`
		Tool   string `json:"tool"`
		Query  string `json:"query"`
		Reason string `json:"reason"`
	} `json:"plan"`
}

// maxPlanSteps 计划步数上限
const maxPlanSteps = 4

// parsePlanResponse 解析 PLAN 策略响应。
func parsePlanResponse(content string) (string, []types.PlanStep, error) {
	var payload planPayload
	if err := json.Unmarshal([]byte(extractJSON(content)), &payload); err != nil {
		return "", nil, types.NewError(types.ErrCodeLLMMalformed, "unparseable plan response").WithCause(err)
	}
	if len(payload.Plan) == 0 {
		return "", nil, types.NewError(types.ErrCodeLLMMalformed, "plan response has no steps")
	}

	steps := make([]types.PlanStep, 0, len(payload.Plan))
	for i, s := range payload.Plan {
		if i >= maxPlanSteps {
			break
		}
		tool := types.Tool(strings.ToUpper(strings.TrimSpace(s.Tool)))
		switch tool {
		case types.ToolKeyword, types.ToolVector, types.ToolGraph:
		default:
			continue // 알 수 없는 tool 은 버린다
		}
		steps = append(steps, types.PlanStep{
			Step:      i + 1,
			Tool:      tool,
			Query:     strings.TrimSpace(s.Query),
			Rationale: s.Reason,
		})
	}
	if len(steps) == 0 {
		return "", nil, types.NewError(types.ErrCodeLLMMalformed, "plan response has no usable steps")
	}
	return payload.Thought, steps, nil
}

// intentPayload INTENT 응답 스키마
type intentPayload struct {
	Intent   string   `json:"intent"`
	Keywords []string `json:"keywords"`
}

// parseIntentResponse 解析 INTENT 策略响应。
func parseIntentResponse(content string) (*intentPayload, error) {
	var payload intentPayload
	if err := json.Unmarshal([]byte(extractJSON(content)), &payload); err != nil {
		return nil, types.NewError(types.ErrCodeLLMMalformed, "unparseable intent response").WithCause(err)
	}
	payload.Intent = strings.ToLower(strings.TrimSpace(payload.Intent))
	if payload.Intent == "" {
		return nil, types.NewError(types.ErrCodeLLMMalformed, "intent response missing intent")
	}
	return &payload, nil
}
