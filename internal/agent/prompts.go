package agent

import (
	"fmt"
	"strings"

	"github.com/sgamolt/clawmarket/internal/model"
)

func reviewPrompt(pkg model.Package) string {
	return fmt.Sprintf(`You are a security reviewer for an MCP tool package registry. Review this package:

Name: %s
Version: %s
Description: %s
Category: %s
Tools count: %d

Evaluate for:
1. Security concerns (hardcoded API keys, suspicious patterns, dangerous operations)
2. Quality (proper description, clear purpose, appropriate category)
3. Completeness (sufficient metadata)

Respond with JSON only:
{
  "approved": boolean,
  "score": number (0-100, security score — 0 is very dangerous, 100 is perfectly safe),
  "note": "Brief explanation in Chinese (max 100 chars)",
  "summary": "Suggested improved description in Chinese (max 200 chars)"
}`, pkg.Name, pkg.Version, pkg.Description, pkg.Category, pkg.ToolsCount)
}

func classifyPrompt(pkg model.Package) string {
	return fmt.Sprintf(`Classify this MCP tool package into exactly one category.

Name: %s
Description: %s

Categories: %s

Respond with JSON only:
{
  "category": "one category from the list above",
  "confidence": number (0-1)
}`, pkg.Name, pkg.Description, strings.Join(model.Categories, ", "))
}

func enhancePrompt(pkg model.Package) string {
	return fmt.Sprintf(`Improve the listing copy for this MCP tool package:

Name: %s
Description: %s
Tools count: %d

Respond with JSON only:
{
  "description": "Improved description in Chinese (max 200 chars)",
  "tools": [{"name": "tool name", "description": "short Chinese description"}]
}`, pkg.Name, pkg.Description, pkg.ToolsCount)
}

// categoryPalettes themes the generated artwork per market category.
var categoryPalettes = map[string]string{
	"效率工具": "vibrant orange and warm yellow",
	"开发工具": "deep blue and cyan",
	"数据采集": "emerald green and teal",
	"内容生成": "purple and magenta",
	"生活服务": "coral pink and soft red",
}

const fallbackPalette = "slate grey and lobster red"

func palette(category string) string {
	if p, ok := categoryPalettes[category]; ok {
		return p
	}
	return fallbackPalette
}

// imageDescription prefers the enhanced description, falling back to the raw
// one, truncated so image prompts stay short.
func imageDescription(pkg model.Package) string {
	desc := pkg.Description
	if pkg.EnhancedDescription != nil && *pkg.EnhancedDescription != "" {
		desc = *pkg.EnhancedDescription
	}
	runes := []rune(desc)
	if len(runes) > 200 {
		desc = string(runes[:200])
	}
	return desc
}

func logoPrompt(pkg model.Package) string {
	return fmt.Sprintf(
		`Minimalist flat icon logo for an MCP tool called "%s". %s. Color palette: %s. Simple geometric shapes, no text, clean solid background.`,
		pkg.Name, imageDescription(pkg), palette(pkg.Category))
}

func cardPrompt(pkg model.Package) string {
	return fmt.Sprintf(
		`Wide banner illustration for a tool marketplace card. Tool: "%s". %s. Color palette: %s. Modern flat design, subtle gradients, no text.`,
		pkg.Name, imageDescription(pkg), palette(pkg.Category))
}

func marqueePrompt(total int, latestName string) string {
	latest := ""
	if latestName != "" {
		latest = fmt.Sprintf(`, latest: "%s"`, latestName)
	}
	return fmt.Sprintf(`Generate a short, fun marquee announcement for Claw MCP Market (Chinese MCP package registry).
Stats: %d packages total%s.
Write in Chinese, max 80 chars, start with 🦞, make it engaging. Return just the text, no quotes.`, total, latest)
}
