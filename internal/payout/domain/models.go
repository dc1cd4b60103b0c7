package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type RecordStatus string

const (
	RecordStatusPending RecordStatus = "pending"
	RecordStatusPaid    RecordStatus = "paid"
)

// Record is a creator's payout for one week. TotalCents is what was charged
// against the budget; whatever the budget or a hold withheld is DeferredCents.
type Record struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	CreatorID         string       `gorm:"type:text;not null;uniqueIndex:ux_payout_records_creator_week,priority:1" json:"creator_id"`
	WeekKey           string       `gorm:"type:text;not null;uniqueIndex:ux_payout_records_creator_week,priority:2;index" json:"week_key"`
	Status            RecordStatus `gorm:"type:text;not null" json:"status"`
	BaseCents         int64        `gorm:"not null" json:"base_cents"`
	BonusCents        int64        `gorm:"not null" json:"bonus_cents"`
	CarryInCents      int64        `gorm:"not null" json:"carry_in_cents"`
	GrossCents        int64        `gorm:"not null" json:"gross_cents"`
	TotalCents        int64        `gorm:"not null" json:"total_cents"`
	DeferredCents     int64        `gorm:"not null" json:"deferred_cents"`
	ClipsCount        int          `gorm:"not null" json:"clips_count"`
	NetViews          int64        `gorm:"not null" json:"net_views"`
	EffectiveRPMCents int64        `gorm:"not null" json:"effective_rpm_cents"`
	RateSource        string       `gorm:"type:text;not null" json:"rate_source"`
	ThrottleVersion   int64        `gorm:"not null" json:"throttle_version"`
	Held              bool         `gorm:"not null" json:"held"`
	RunID             string       `gorm:"type:text;not null" json:"run_id"`
	PaidAt            *time.Time   `json:"paid_at,omitempty"`
	CreatedAt         time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time    `gorm:"not null" json:"updated_at"`
}

func (Record) TableName() string { return "payout_records" }

type DeferralReason string

const (
	DeferralBudget DeferralReason = "budget"
	DeferralHold   DeferralReason = "hold"
)

// Deferral is money owed from SourceWeek that a later week picks up as
// carry-in. ConsumedWeek is empty until then.
type Deferral struct {
	ID           snowflake.ID   `gorm:"primaryKey" json:"id"`
	CreatorID    string         `gorm:"type:text;not null;uniqueIndex:ux_payout_deferrals_creator_week,priority:1" json:"creator_id"`
	SourceWeek   string         `gorm:"type:text;not null;uniqueIndex:ux_payout_deferrals_creator_week,priority:2" json:"source_week"`
	AmountCents  int64          `gorm:"not null" json:"amount_cents"`
	Reason       DeferralReason `gorm:"type:text;not null" json:"reason"`
	ConsumedWeek string         `gorm:"type:text;not null;default:'';index" json:"consumed_week,omitempty"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updated_at"`
}

func (Deferral) TableName() string { return "payout_deferrals" }

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

type RunKind string

const (
	RunKindFull  RunKind = "full"
	RunKindRetry RunKind = "retry"
)

// Run is one execution of the weekly processor.
type Run struct {
	ID                string         `gorm:"primaryKey;type:text" json:"id"`
	WeekKey           string         `gorm:"type:text;not null;index" json:"week_key"`
	Kind              RunKind        `gorm:"type:text;not null" json:"kind"`
	Actor             string         `gorm:"type:text;not null" json:"actor"`
	Status            RunStatus      `gorm:"type:text;not null" json:"status"`
	ProcessedCreators int            `gorm:"not null" json:"processed_creators"`
	FailedCount       int            `gorm:"not null" json:"failed_count"`
	TotalPaidCents    int64          `gorm:"not null" json:"total_paid_cents"`
	FailedCreators    datatypes.JSON `json:"failed_creators"`
	Error             string         `gorm:"type:text;not null;default:''" json:"error,omitempty"`
	StartedAt         time.Time      `gorm:"not null" json:"started_at"`
	FinishedAt        *time.Time     `json:"finished_at,omitempty"`
}

func (Run) TableName() string { return "payout_runs" }

// UpsertResult is what happened to a creator's record in a run.
type UpsertResult string

const (
	UpsertCreated     UpsertResult = "created"
	UpsertUpdated     UpsertResult = "updated"
	UpsertAlreadyPaid UpsertResult = "already_paid"
	UpsertFailed      UpsertResult = "failed"
)

type CreatorResult struct {
	CreatorID     string       `json:"creator_id"`
	Result        UpsertResult `json:"result"`
	TotalCents    int64        `json:"total_cents"`
	DeferredCents int64        `json:"deferred_cents"`
	Error         string       `json:"error,omitempty"`
}

type RunSummary struct {
	RunID             string          `json:"run_id"`
	WeekKey           string          `json:"week_key"`
	Status            RunStatus       `json:"status"`
	ProcessedCreators int             `json:"processed_creators"`
	TotalPaidCents    int64           `json:"total_paid_cents"`
	Succeeded         []string        `json:"succeeded"`
	Failed            []CreatorResult `json:"failed"`
	Results           []CreatorResult `json:"results"`
	CyclePaid         bool            `json:"cycle_paid"`
}

// PreviewLine is a provisional figure; nothing is written and the budget
// clamp is not applied.
type PreviewLine struct {
	CreatorID         string `json:"creator_id"`
	ClipsCount        int    `json:"clips_count"`
	NetViews          int64  `json:"net_views"`
	BaseCents         int64  `json:"base_cents"`
	BonusCents        int64  `json:"bonus_cents"`
	CarryInCents      int64  `json:"carry_in_cents"`
	GrossCents        int64  `json:"gross_cents"`
	EffectiveRPMCents int64  `json:"effective_rpm_cents"`
	RateSource        string `json:"rate_source"`
	Held              bool   `json:"held"`
}

type Preview struct {
	WeekKey    string        `json:"week_key"`
	GrossCents int64         `json:"gross_cents"`
	Lines      []PreviewLine `json:"lines"`
}
