package streak

import (
	"context"
	"strings"
	"time"

	"questplane/pkg/db/option"
	"questplane/pkg/errutil"
	"questplane/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// streakTicketEvery grants a raffle ticket on every multiple of this
// many consecutive days.
const streakTicketEvery = 5

// monthlyTicketThreshold is the number of campaigns joined in one month
// that earns the single monthly raffle ticket.
const monthlyTicketThreshold = 10

var milestones = []Milestone{
	{Days: 5, Label: "Getting Warm", BonusScore: 50},
	{Days: 10, Label: "On Fire", BonusScore: 150},
	{Days: 30, Label: "Diamond Hands", BonusScore: 500},
	{Days: 60, Label: "Degen Legend", BonusScore: 1500},
}

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	tickets repository.Repository[RaffleTicket]
}

type ServiceParams struct {
	fx.In

	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		tickets: repository.ProvideStore[RaffleTicket](p.DB),
	}
}

func Milestones() []Milestone {
	out := make([]Milestone, len(milestones))
	copy(out, milestones)
	return out
}

// RecordDailyActivity counts one active day for the wallet. A second call
// on the same day is a no-op and reports counted=false. A raffle ticket is
// appended on every fifth consecutive day.
func (s *Service) RecordDailyActivity(ctx context.Context, wallet string, day time.Time) (*DailyStreak, bool, error) {
	wallet = strings.ToLower(wallet)
	if wallet == "" {
		return nil, false, errutil.ValidationFailed("wallet is required")
	}

	today := day.Format(DayFormat)
	yesterday := day.AddDate(0, 0, -1).Format(DayFormat)

	var st DailyStreak
	counted := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st = DailyStreak{Wallet: wallet}
		if err := tx.Where(&DailyStreak{Wallet: wallet}).FirstOrCreate(&st).Error; err != nil {
			return err
		}

		if st.LastActiveDate == today {
			return nil
		}
		counted = true

		if st.LastActiveDate == yesterday {
			st.CurrentStreak++
		} else {
			st.CurrentStreak = 1
		}
		if st.CurrentStreak > st.LongestStreak {
			st.LongestStreak = st.CurrentStreak
		}
		st.LastActiveDate = today
		st.TotalActiveDays++

		if st.CurrentStreak%streakTicketEvery == 0 {
			st.TicketsEarned++
			ticket := &RaffleTicket{
				ID:     s.node.Generate().String(),
				Wallet: wallet,
				Source: SourceDailyStreak,
				Month:  day.Format(MonthFormat),
			}
			if err := tx.Create(ticket).Error; err != nil {
				return err
			}
			zap.L().Info("streak raffle ticket granted",
				zap.String("wallet", wallet),
				zap.Int("streak", st.CurrentStreak),
			)
		}

		return tx.Save(&st).Error
	})
	if err != nil {
		return nil, false, err
	}

	return &st, counted, nil
}

// RecordCampaignParticipation bumps the wallet's monthly join counter and,
// once the threshold is reached, grants the single monthly ticket. The
// conditional update on ticket_granted keeps the grant idempotent under
// concurrent joins.
func (s *Service) RecordCampaignParticipation(ctx context.Context, wallet, month string) (*MonthlyTracker, error) {
	wallet = strings.ToLower(wallet)
	if wallet == "" {
		return nil, errutil.ValidationFailed("wallet is required")
	}
	if month == "" {
		month = time.Now().Format(MonthFormat)
	}

	var mt MonthlyTracker
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		mt = MonthlyTracker{Wallet: wallet, Month: month}
		if err := tx.Where(&MonthlyTracker{Wallet: wallet, Month: month}).
			FirstOrCreate(&mt).Error; err != nil {
			return err
		}

		if err := tx.Model(&MonthlyTracker{}).
			Where("wallet = ? AND month = ?", wallet, month).
			Update("campaigns_joined", gorm.Expr("campaigns_joined + 1")).Error; err != nil {
			return err
		}
		// Re-read the incremented row. The pre-increment value can miss the
		// threshold crossing when another writer raced the counter.
		if err := tx.Where(&MonthlyTracker{Wallet: wallet, Month: month}).
			First(&mt).Error; err != nil {
			return err
		}

		if mt.CampaignsJoined < monthlyTicketThreshold || mt.TicketGranted {
			return nil
		}

		res := tx.Model(&MonthlyTracker{}).
			Where("wallet = ? AND month = ? AND ticket_granted = ?", wallet, month, false).
			Update("ticket_granted", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// another writer already granted this month's ticket
			mt.TicketGranted = true
			return nil
		}

		mt.TicketGranted = true
		return tx.Create(&RaffleTicket{
			ID:     s.node.Generate().String(),
			Wallet: wallet,
			Source: SourceMonthlyParticipation,
			Month:  month,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	return &mt, nil
}

type Progress struct {
	Streak        DailyStreak `json:"streak"`
	NextMilestone *Milestone  `json:"next_milestone,omitempty"`
	Milestones    []Milestone `json:"milestones"`
}

// GetProgress reports the wallet's streak and the next milestone ahead
// of it. Wallets with no recorded activity get a zero streak.
func (s *Service) GetProgress(ctx context.Context, wallet string) (*Progress, error) {
	var st DailyStreak
	err := s.db.WithContext(ctx).Where("wallet = ?", wallet).First(&st).Error
	if err == gorm.ErrRecordNotFound {
		st = DailyStreak{Wallet: wallet}
	} else if err != nil {
		return nil, err
	}

	p := &Progress{Streak: st, Milestones: Milestones()}
	for i := range milestones {
		if milestones[i].Days > st.CurrentStreak {
			m := milestones[i]
			p.NextMilestone = &m
			break
		}
	}
	return p, nil
}

func (s *Service) ListTickets(ctx context.Context, wallet string) ([]*RaffleTicket, error) {
	return s.tickets.Find(ctx,
		&RaffleTicket{Wallet: wallet},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "ASC"}),
	)
}
