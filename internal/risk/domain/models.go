package domain

import (
	"time"

	"gorm.io/datatypes"
)

// GlobalThrottleID is the primary key of the singleton throttle row.
const GlobalThrottleID int64 = 1

// GlobalThrottle is the process-wide throttle. Every write to it or to any
// creator throttle bumps Version.
type GlobalThrottle struct {
	ID               int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	IsActive         bool      `gorm:"not null;default:false" json:"is_active"`
	RPMOverrideCents *int64    `json:"rpm_override_cents,omitempty"`
	Reason           string    `gorm:"type:text;not null;default:''" json:"reason"`
	UpdatedBy        string    `gorm:"type:text;not null;default:''" json:"updated_by"`
	Version          int64     `gorm:"not null;default:0" json:"version"`
	UpdatedAt        time.Time `gorm:"not null" json:"updated_at"`
}

func (GlobalThrottle) TableName() string { return "risk_throttle" }

type ThrottleMode string

const (
	ThrottleReduced ThrottleMode = "reduced"
	ThrottleHold    ThrottleMode = "hold"
)

type ThrottleSource string

const (
	SourceAuto   ThrottleSource = "auto"
	SourceManual ThrottleSource = "manual"
)

// CreatorThrottle lowers or holds one creator's pay rate until an operator clears it.
type CreatorThrottle struct {
	CreatorID string         `gorm:"primaryKey;type:text" json:"creator_id"`
	Mode      ThrottleMode   `gorm:"type:text;not null" json:"mode"`
	RPMCents  *int64         `json:"rpm_cents,omitempty"`
	Source    ThrottleSource `gorm:"type:text;not null" json:"source"`
	Reason    string         `gorm:"type:text;not null;default:''" json:"reason"`
	Score     int            `gorm:"not null;default:0" json:"score"`
	UpdatedBy string         `gorm:"type:text;not null;default:''" json:"updated_by"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

func (CreatorThrottle) TableName() string { return "creator_throttles" }

type Band string

const (
	BandClean   Band = "clean"
	BandFlagged Band = "flagged"
	BandHigh    Band = "high"
)

// RiskScore is the latest score of a creator.
type RiskScore struct {
	CreatorID          string         `gorm:"primaryKey;type:text" json:"creator_id"`
	Score              int            `gorm:"not null" json:"score"`
	Band               Band           `gorm:"type:text;not null;index" json:"band"`
	Signals            datatypes.JSON `gorm:"type:json" json:"signals"`
	TotalClips         int            `gorm:"not null" json:"total_clips"`
	TotalViews         int64          `gorm:"not null" json:"total_views"`
	TotalEarningsCents int64          `gorm:"not null" json:"total_earnings_cents"`
	ScoredAt           time.Time      `gorm:"not null" json:"scored_at"`
}

func (RiskScore) TableName() string { return "risk_scores" }

// Snapshot is a consistent read of the throttle state for one creator.
type Snapshot struct {
	Version          int64
	GlobalActive     bool
	RPMOverrideCents *int64
	GlobalReason     string
	Creator          *CreatorThrottle
}
