package model

import "time"

// AnnouncementSource distinguishes agent-generated items from admin-written ones.
type AnnouncementSource string

const (
	SourceAuto   AnnouncementSource = "auto"
	SourceManual AnnouncementSource = "manual"
)

// AnnouncementItem is one marquee entry on the market home page.
// Auto-sourced items are replaced wholesale on each refresh cycle; manual
// items are never touched by the agent.
type AnnouncementItem struct {
	ID        int64              `json:"id"`
	Content   string             `json:"content"`
	Source    AnnouncementSource `json:"source"`
	Active    bool               `json:"active"`
	Priority  int                `json:"priority"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// DefaultAnnouncement is the legacy single-string announcement before the
// agent first refreshes it.
const DefaultAnnouncement = "🦞 欢迎来到 Claw MCP Market · SGA-Molt 中国社区 MCP 市场"

// Announcement is the legacy single-string announcement row kept for
// backward compatibility with older frontends. The agent rewrites it to the
// active items joined with " | ".
type Announcement struct {
	ID        int       `json:"id"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updatedAt"`
}
