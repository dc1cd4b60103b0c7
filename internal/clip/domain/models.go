package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Platform string

const (
	PlatformTikTok    Platform = "tiktok"
	PlatformInstagram Platform = "instagram"
	PlatformYouTube   Platform = "youtube"
	PlatformShorts    Platform = "shorts"
)

func ParsePlatform(raw string) (Platform, bool) {
	switch p := Platform(raw); p {
	case PlatformTikTok, PlatformInstagram, PlatformYouTube, PlatformShorts:
		return p, true
	default:
		return "", false
	}
}

// IsYouTube reports whether view counts come from the YouTube Data API.
func (p Platform) IsYouTube() bool {
	return p == PlatformYouTube || p == PlatformShorts
}

// Namespace groups platforms that share one video id space.
func (p Platform) Namespace() string {
	if p.IsYouTube() {
		return "youtube"
	}
	return string(p)
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

// Clip is one creator-submitted video. Rows are never deleted.
type Clip struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	CreatorID         string       `gorm:"type:text;not null;index" json:"creator_id"`
	Platform          Platform     `gorm:"type:text;not null" json:"platform"`
	ExternalURL       string       `gorm:"type:text;not null" json:"clip_url"`
	ExternalID        string       `gorm:"type:text;not null" json:"external_id"`
	ExternalKey       string       `gorm:"type:text;not null;uniqueIndex:ux_clips_external_key" json:"external_key"`
	ViewCount         int64        `gorm:"not null;default:0" json:"view_count"`
	BaselineViewCount int64        `gorm:"not null;default:0" json:"baseline_view_count"`
	BaselineCaptured  bool         `gorm:"not null;default:false" json:"baseline_captured"`
	ClickThroughRate  *float64     `json:"click_through_rate,omitempty"`
	Status            Status       `gorm:"type:text;not null;default:'pending';index" json:"status"`
	SubmittedAt       time.Time    `gorm:"not null" json:"submitted_at"`
	WeekKey           string       `gorm:"type:text;not null;index" json:"week_key"`
	VerifiedAt        *time.Time   `json:"verified_at,omitempty"`
	LastCheckedAt     *time.Time   `json:"last_checked_at,omitempty"`
	VerifyAttempts    int          `gorm:"not null;default:0" json:"verify_attempts"`
	LastVerifyError   string       `gorm:"type:text;not null;default:''" json:"last_verify_error"`
	EarningsCents     int64        `gorm:"not null;default:0" json:"earnings_cents"`
	FinalizedWeek     string       `gorm:"type:text;not null;default:''" json:"finalized_week"`
	IsActivated       bool         `gorm:"not null;default:false" json:"is_activated"`
	RejectionReason   string       `gorm:"type:text;not null;default:''" json:"rejection_reason"`
	CreatedAt         time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time    `gorm:"not null" json:"updated_at"`
}

func (Clip) TableName() string { return "clips" }

// NetViews is the billable quantity; it never goes negative.
func (c Clip) NetViews() int64 {
	if !c.BaselineCaptured {
		return 0
	}
	if net := c.ViewCount - c.BaselineViewCount; net > 0 {
		return net
	}
	return 0
}

func ExternalKey(platform Platform, externalID string) string {
	return platform.Namespace() + ":" + externalID
}

// ViewSnapshot is one observed view count.
type ViewSnapshot struct {
	ViewCount        int64
	ClickThroughRate *float64
}
