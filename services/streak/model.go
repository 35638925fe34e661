package streak

import "time"

const (
	// date-only formats used on streak rows
	DayFormat   = "2006-01-02"
	MonthFormat = "2006-01"
)

type DailyStreak struct {
	Wallet          string    `gorm:"column:wallet;primaryKey" json:"wallet"`
	CurrentStreak   int       `gorm:"column:current_streak;default:0" json:"current_streak"`
	LongestStreak   int       `gorm:"column:longest_streak;default:0" json:"longest_streak"`
	LastActiveDate  string    `gorm:"column:last_active_date" json:"last_active_date"`
	TotalActiveDays int       `gorm:"column:total_active_days;default:0" json:"total_active_days"`
	TicketsEarned   int       `gorm:"column:tickets_earned;default:0" json:"tickets_earned"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (DailyStreak) TableName() string {
	return "daily_streaks"
}

type MonthlyTracker struct {
	Wallet          string    `gorm:"column:wallet;primaryKey" json:"wallet"`
	Month           string    `gorm:"column:month;primaryKey" json:"month"`
	CampaignsJoined int       `gorm:"column:campaigns_joined;default:0" json:"campaigns_joined"`
	TicketGranted   bool      `gorm:"column:ticket_granted;default:false" json:"ticket_granted"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (MonthlyTracker) TableName() string {
	return "monthly_trackers"
}

type TicketSource string

const (
	SourceDailyStreak          TicketSource = "daily_streak"
	SourceMonthlyParticipation TicketSource = "monthly_participation"
)

// RaffleTicket rows are append-only, only IsUsed flips when a draw
// consumes the ticket.
type RaffleTicket struct {
	ID        string       `gorm:"column:id;primaryKey" json:"id"`
	Wallet    string       `gorm:"column:wallet;index" json:"wallet"`
	Source    TicketSource `gorm:"column:source" json:"source"`
	Month     string       `gorm:"column:month" json:"month"`
	IsUsed    bool         `gorm:"column:is_used;default:false" json:"is_used"`
	CreatedAt time.Time    `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (RaffleTicket) TableName() string {
	return "raffle_tickets"
}

type Milestone struct {
	Days       int    `json:"days"`
	Label      string `json:"label"`
	BonusScore int64  `json:"bonus_score"`
}
