// Package library defines the core types and ports shared by the reader and admin services.
package library

import (
	"strings"
	"time"
)

// RoleSuperAdmin is the profile role allowed into the admin surface.
const RoleSuperAdmin = "superadmin"

// ChapterSummary is the lightweight chapter row shown in tables of contents.
type ChapterSummary struct {
	ID          string     `json:"id"`
	Number      int        `json:"chapter_number"`
	Title       string     `json:"title"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Views       int64      `json:"views"`
}

// Chapter is a full chapter including its body.
type Chapter struct {
	ChapterSummary
	NovelID   string     `json:"novel_id"`
	Content   string     `json:"content"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Novel is a translated work together with its chapter listing.
type Novel struct {
	ID           string           `json:"id"`
	Slug         string           `json:"slug"`
	Title        string           `json:"title"`
	Author       string           `json:"author,omitempty"`
	AuthorRomaji string           `json:"author_romaji,omitempty"`
	Synopsis     string           `json:"synopsis,omitempty"`
	ImageURL     string           `json:"image_url,omitempty"`
	BannerURL    string           `json:"banner_url,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	Chapters     []ChapterSummary `json:"chapters"`
}

// DisplayAuthor prefers the romanized author name.
func (n Novel) DisplayAuthor() string {
	if strings.TrimSpace(n.AuthorRomaji) != "" {
		return n.AuthorRomaji
	}
	return n.Author
}

// Clone returns a copy whose chapter slice does not alias the receiver's.
func (n Novel) Clone() Novel {
	cp := n
	if n.Chapters != nil {
		cp.Chapters = make([]ChapterSummary, len(n.Chapters))
		copy(cp.Chapters, n.Chapters)
	}
	return cp
}

// NovelRef is the subset of novel columns the admin editor works with.
type NovelRef struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Slug     string `json:"slug"`
	Synopsis string `json:"synopsis,omitempty"`
}

// PopularNovel is a ranking entry on the home page.
type PopularNovel struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Slug     string `json:"slug"`
	ImageURL string `json:"image_url,omitempty"`
	Author   string `json:"author,omitempty"`
}

// PopularSet groups the three ranking windows.
type PopularSet struct {
	AllTime []PopularNovel `json:"all_time"`
	Weekly  []PopularNovel `json:"weekly"`
	Monthly []PopularNovel `json:"monthly"`
}

// Profile is the application-level record attached to an auth user.
type Profile struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	Username string `json:"username"`
}

// IsSuperAdmin reports whether the profile may use the admin surface.
func (p Profile) IsSuperAdmin() bool {
	return p.Role == RoleSuperAdmin
}

// Settings are the sampling knobs sent to the completion endpoint.
type Settings struct {
	Model        string  `json:"model"`
	Temperature  float64 `json:"temperature"`
	TopP         float64 `json:"top_p"`
	TopK         int     `json:"top_k"`
	MaxTokens    int     `json:"max_tokens"`
	Reasoning    bool    `json:"reasoning"`
	SystemPrompt string  `json:"system_prompt"`
}

// Preset is a named, persisted Settings row. An empty NovelID means the preset is global.
type Preset struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	NovelID   string `json:"novel_id,omitempty"`
	IsDefault bool   `json:"is_default"`
	Settings
}

// ChapterInput carries the editable chapter fields.
type ChapterInput struct {
	NovelID     string     `json:"novel_id"`
	Number      int        `json:"chapter_number"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}
