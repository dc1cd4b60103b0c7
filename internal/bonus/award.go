package bonus

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Award records that a creator was paid a milestone. A milestone is paid at
// most once per creator.
type Award struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	CreatorID      string       `gorm:"type:text;not null;uniqueIndex:ux_bonus_awards_creator_milestone,priority:1" json:"creator_id"`
	MilestoneViews int64        `gorm:"not null;uniqueIndex:ux_bonus_awards_creator_milestone,priority:2" json:"milestone_views"`
	AmountCents    int64        `gorm:"not null" json:"amount_cents"`
	WeekKey        string       `gorm:"type:text;not null;index" json:"week_key"`
	AwardedAt      time.Time    `gorm:"not null" json:"awarded_at"`
}

func (Award) TableName() string { return "bonus_awards" }

type Store struct {
	genID *snowflake.Node
}

func NewStore(genID *snowflake.Node) *Store {
	return &Store{genID: genID}
}

func (s *Store) ListByCreator(ctx context.Context, db *gorm.DB, creatorID string) ([]Award, error) {
	var awards []Award
	err := db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Order("milestone_views asc").
		Find(&awards).Error
	return awards, err
}

// Claim inserts the award unless the milestone is already taken and reports
// whether this call won it.
func (s *Store) Claim(ctx context.Context, db *gorm.DB, creatorID, weekKey string, views, amountCents int64, now time.Time) (bool, error) {
	award := Award{
		ID:             s.genID.Generate(),
		CreatorID:      creatorID,
		MilestoneViews: views,
		AmountCents:    amountCents,
		WeekKey:        weekKey,
		AwardedAt:      now,
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&award)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// PaidElsewhere lists milestones awarded to the creator in weeks other than weekKey.
func PaidElsewhere(awards []Award, weekKey string) []int64 {
	var out []int64
	for _, a := range awards {
		if a.WeekKey != weekKey {
			out = append(out, a.MilestoneViews)
		}
	}
	return out
}
