package submission

import (
	"time"

	"gorm.io/datatypes"
)

type Kind string

const (
	KindFullQuest      Kind = "full_quest"
	KindTaskCompletion Kind = "task_completion"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Submission covers both the campaign join record (kind full_quest, one
// per wallet and campaign, task_id empty) and per-task completion claims
// (kind task_completion, one per wallet and task). The composite unique
// index enforces both shapes.
type Submission struct {
	ID         string         `gorm:"column:id;primaryKey" json:"id"`
	CampaignID string         `gorm:"column:campaign_id;uniqueIndex:idx_submission_scope;index" json:"campaign_id"`
	TaskID     string         `gorm:"column:task_id;uniqueIndex:idx_submission_scope" json:"task_id,omitempty"`
	Wallet     string         `gorm:"column:wallet;uniqueIndex:idx_submission_scope;index" json:"wallet"`
	Kind       Kind           `gorm:"column:kind;uniqueIndex:idx_submission_scope" json:"kind"`
	Status     Status         `gorm:"column:status;default:pending" json:"status"`
	Payload    datatypes.JSON `gorm:"column:payload" json:"payload,omitempty"`
	Notes      string         `gorm:"column:notes" json:"notes,omitempty"`
	VerifiedAt *time.Time     `gorm:"column:verified_at" json:"verified_at,omitempty"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Submission) TableName() string {
	return "submissions"
}
