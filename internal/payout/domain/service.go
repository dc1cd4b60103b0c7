package domain

import "context"

type Processor interface {
	// RunWeeklyPayout pays every creator with clips or carry-in for the week.
	// Each creator commits independently; the cycle moves to paid only when
	// none failed.
	RunWeeklyPayout(ctx context.Context, actor, weekKey string) (*RunSummary, error)
	// RetryFailed re-runs the creators that failed in the week's latest run.
	RetryFailed(ctx context.Context, actor, weekKey string) (*RunSummary, error)
	Preview(ctx context.Context, actor, weekKey string) (*Preview, error)
	ListRecords(ctx context.Context, weekKey string) ([]Record, error)
	ListCreatorRecords(ctx context.Context, creatorID string) ([]Record, error)
	LatestRun(ctx context.Context, weekKey string) (*Run, error)
}
