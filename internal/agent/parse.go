package agent

import (
	"encoding/json"
	"strings"

	"github.com/sgamolt/clawmarket/internal/model"
)

// extractJSON recovers a JSON object from free-form model output by taking
// the span from the first '{' to the last '}'. The model frequently wraps
// its answer in prose or a code fence, so structured responses are always
// recovered this way rather than decoded directly.
func extractJSON(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

type reviewResult struct {
	Approved bool
	Score    int
	Note     string
	Summary  string
}

func parseReview(text string) (reviewResult, bool) {
	blob, ok := extractJSON(text)
	if !ok {
		return reviewResult{}, false
	}
	var raw struct {
		Approved bool    `json:"approved"`
		Score    float64 `json:"score"`
		Note     string  `json:"note"`
		Summary  string  `json:"summary"`
	}
	if err := json.Unmarshal([]byte(blob), &raw); err != nil {
		return reviewResult{}, false
	}
	return reviewResult{
		Approved: raw.Approved,
		Score:    clampScore(int(raw.Score)),
		Note:     raw.Note,
		Summary:  raw.Summary,
	}, true
}

func clampScore(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

type classifyResult struct {
	Category   string
	Confidence float64
}

func parseClassify(text string) (classifyResult, bool) {
	blob, ok := extractJSON(text)
	if !ok {
		return classifyResult{}, false
	}
	var raw struct {
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(blob), &raw); err != nil {
		return classifyResult{}, false
	}
	if strings.TrimSpace(raw.Category) == "" {
		return classifyResult{}, false
	}
	return classifyResult{
		Category:   strings.TrimSpace(raw.Category),
		Confidence: raw.Confidence,
	}, true
}

type enhanceResult struct {
	Description string
	Tools       []model.ToolSummaryItem
}

func parseEnhance(text string) (enhanceResult, bool) {
	blob, ok := extractJSON(text)
	if !ok {
		return enhanceResult{}, false
	}
	var raw struct {
		Description string `json:"description"`
		Tools       []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"tools"`
	}
	if err := json.Unmarshal([]byte(blob), &raw); err != nil {
		return enhanceResult{}, false
	}
	if strings.TrimSpace(raw.Description) == "" {
		return enhanceResult{}, false
	}
	out := enhanceResult{Description: strings.TrimSpace(raw.Description)}
	for _, t := range raw.Tools {
		if strings.TrimSpace(t.Name) == "" {
			continue
		}
		out.Tools = append(out.Tools, model.ToolSummaryItem{
			Name:        strings.TrimSpace(t.Name),
			Description: strings.TrimSpace(t.Description),
		})
	}
	return out, true
}
