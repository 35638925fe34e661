package reward

import "time"

// RewardEvent is the credit ledger. The unique reference makes replayed
// queue deliveries no-ops.
type RewardEvent struct {
	ID          string    `gorm:"column:id;primaryKey" json:"id"`
	ReferenceID string    `gorm:"column:reference_id;uniqueIndex" json:"reference_id"`
	Wallet      string    `gorm:"column:wallet;index" json:"wallet"`
	Points      int64     `gorm:"column:points" json:"points"`
	Source      string    `gorm:"column:source" json:"source"`
	TraceID     string    `gorm:"column:trace_id" json:"trace_id,omitempty"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (RewardEvent) TableName() string {
	return "reward_events"
}
