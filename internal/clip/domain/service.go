package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clipperpay/pkg/db/pagination"
)

type SubmitRequest struct {
	CreatorID string
	Platform  string
	ClipURL   string
}

type RecordViewsRequest struct {
	ClipID           snowflake.ID
	ViewCount        int64
	ClickThroughRate *float64
}

type ListRequest struct {
	CreatorID string
	Page      pagination.Pagination
}

type ListResponse struct {
	Clips    []Clip              `json:"clips"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (*Clip, error)
	// Refresh re-verifies a clip. Rejected clips are returned unchanged.
	Refresh(ctx context.Context, clipID snowflake.ID) (*Clip, error)
	RecordViewCount(ctx context.Context, req RecordViewsRequest) (*Clip, error)
	Get(ctx context.Context, clipID snowflake.ID) (*Clip, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	ListAllByCreator(ctx context.Context, creatorID string) ([]Clip, error)
	ListCreatorIDs(ctx context.Context) ([]string, error)
	ListDueForRecheck(ctx context.Context, checkedBefore time.Time, limit int) ([]Clip, error)
	Aggregate(ctx context.Context, creatorID string) (*CreatorAggregate, error)
}

// Verifier resolves platform ids and observes view counts.
type Verifier interface {
	ParseClipURL(platform Platform, rawURL string) (string, error)
	CanFetch(platform Platform) bool
	FetchViewCount(ctx context.Context, platform Platform, externalID string) (ViewSnapshot, error)
}

// Enqueuer schedules asynchronous verification. It must not block.
type Enqueuer interface {
	Enqueue(clipID snowflake.ID) bool
}

// Invalidator drops cached derived views of a creator.
type Invalidator interface {
	Invalidate(ctx context.Context, creatorID string)
}
