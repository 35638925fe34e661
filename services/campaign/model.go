package campaign

import (
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusEnded     Status = "ended"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusEnded, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether the status machine allows moving to next.
// The only legal paths are draft -> active -> {ended, cancelled}.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusDraft:
		return next == StatusActive || next == StatusCancelled
	case StatusActive:
		return next == StatusEnded || next == StatusCancelled
	default:
		return false
	}
}

type TaskType string

const (
	TaskXFollow TaskType = "x_follow"
	TaskXPost   TaskType = "x_post"
	TaskCustom  TaskType = "custom"
)

func (t TaskType) Valid() bool {
	switch t {
	case TaskXFollow, TaskXPost, TaskCustom:
		return true
	}
	return false
}

type Campaign struct {
	ID                  string         `gorm:"column:id;primaryKey" json:"id"`
	Code                string         `gorm:"column:code;uniqueIndex" json:"code"`
	Slug                string         `gorm:"column:slug;index" json:"slug"`
	OwnerWallet         string         `gorm:"column:owner_wallet;index;not null" json:"owner_wallet"`
	Title               string         `gorm:"column:title;not null" json:"title"`
	Description         string         `gorm:"column:description;type:text" json:"description,omitempty"`
	BannerObject        string         `gorm:"column:banner_object" json:"banner_object,omitempty"`
	StartAt             time.Time      `gorm:"column:start_at;not null" json:"start_at"`
	EndAt               time.Time      `gorm:"column:end_at;not null" json:"end_at"`
	MaxParticipants     int64          `gorm:"column:max_participants;not null" json:"max_participants"`
	CurrentParticipants int64          `gorm:"column:current_participants;not null;default:0" json:"current_participants"`
	RewardAmount        int64          `gorm:"column:reward_amount;not null;default:0" json:"reward_amount"`
	RewardType          string         `gorm:"column:reward_type" json:"reward_type,omitempty"`
	DistributionMethod  string         `gorm:"column:distribution_method" json:"distribution_method,omitempty"`
	Funded              bool           `gorm:"column:funded;default:false" json:"funded"`
	Status              Status         `gorm:"column:status;type:varchar(20);not null;default:'draft'" json:"status"`
	Metadata            datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt           time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`

	Tasks []Task `gorm:"foreignKey:CampaignID;constraint:OnDelete:CASCADE" json:"tasks,omitempty"`
}

// WithinWindow reports whether now falls inside the campaign's time window.
func (c *Campaign) WithinWindow(now time.Time) bool {
	return !now.Before(c.StartAt) && !now.After(c.EndAt)
}

// Joinable reports whether the campaign currently accepts new participants.
func (c *Campaign) Joinable(now time.Time) bool {
	return c.Status == StatusActive && c.WithinWindow(now)
}

type Task struct {
	ID         string   `gorm:"column:id;primaryKey" json:"id"`
	CampaignID string   `gorm:"column:campaign_id;index;not null" json:"campaign_id"`
	Type       TaskType `gorm:"column:type;type:varchar(20);not null" json:"type"`
	Title      string   `gorm:"column:title;not null" json:"title"`
	Enabled    bool     `gorm:"column:enabled;default:true" json:"enabled"`

	// x_follow criteria
	TargetAccount string `gorm:"column:target_account" json:"target_account,omitempty"`

	// x_post criteria
	Hashtags        datatypes.JSONSlice[string] `gorm:"column:hashtags" json:"hashtags,omitempty"`
	MentionAccounts datatypes.JSONSlice[string] `gorm:"column:mention_accounts" json:"mention_accounts,omitempty"`
	PostLimit       int                         `gorm:"column:post_limit;default:0" json:"post_limit,omitempty"`
	MinChars        int                         `gorm:"column:min_chars;default:0" json:"min_chars,omitempty"`

	// custom criteria, a CEL expression over the claim payload
	CustomRule string `gorm:"column:custom_rule;type:text" json:"custom_rule,omitempty"`

	RewardPoints int64     `gorm:"column:reward_points;not null;default:0" json:"reward_points"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
