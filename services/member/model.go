package member

import "time"

// UserProfile is keyed by the canonical (lower-case) wallet address.
// The twitter credential fields are cleared on Unlink, the profile row
// itself is never deleted.
type UserProfile struct {
	Wallet          string    `gorm:"column:wallet;primaryKey" json:"wallet"`
	TwitterID       string    `gorm:"column:twitter_id;index" json:"twitter_id,omitempty"`
	TwitterUsername string    `gorm:"column:twitter_username" json:"twitter_username,omitempty"`
	DisplayName     string    `gorm:"column:display_name" json:"display_name,omitempty"`
	AvatarURL       string    `gorm:"column:avatar_url" json:"avatar_url,omitempty"`
	Score           int64     `gorm:"column:score;default:0" json:"score"`
	AccessToken     string    `gorm:"column:access_token" json:"-"`
	RefreshToken    string    `gorm:"column:refresh_token" json:"-"`
	TokenExpiresAt  time.Time `gorm:"column:token_expires_at" json:"-"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (UserProfile) TableName() string {
	return "user_profiles"
}

// Linked reports whether the profile carries a live twitter identity.
func (p *UserProfile) Linked() bool {
	return p.TwitterID != "" && p.AccessToken != ""
}
