package reward

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"questplane/pkg/db/option"
	"questplane/pkg/repository"
	"questplane/pkg/taskname"
	"questplane/services/member"
	"questplane/services/streak"
	"questplane/services/submission"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	streaks *streak.Service
	events  repository.Repository[RewardEvent]
}

type ServiceParams struct {
	fx.In

	DB      *gorm.DB
	Node    *snowflake.Node
	Streaks *streak.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		streaks: p.Streaks,
		events:  repository.ProvideStore[RewardEvent](p.DB),
	}
}

var TaskModule = fx.Module("task.reward",
	fx.Invoke(registerHandlers),
)

func registerHandlers(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(taskname.RewardCredit, svc.HandleRewardCredit)
}

// HandleRewardCredit consumes reward:credit. The ledger insert and the
// score update share one transaction, so a crash between them cannot
// leave a credited ledger row without the matching score.
func (s *Service) HandleRewardCredit(ctx context.Context, t *asynq.Task) error {
	var payload submission.RewardCreditPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	wallet := strings.ToLower(payload.Wallet)
	zapLog := zap.L().With(
		zap.String("task_type", t.Type()),
		zap.String("wallet", wallet),
		zap.String("reference_id", payload.ReferenceID),
		zap.String("trace_id", payload.TraceID),
	)

	credited, err := s.Credit(ctx, &payload)
	if err != nil {
		zapLog.Error("failed to credit reward", zap.Error(err))
		return err
	}
	if !credited {
		zapLog.Info("reward already credited, skipping")
		return nil
	}

	zapLog.Info("reward credited", zap.Int64("points", payload.Points))

	if _, _, err := s.streaks.RecordDailyActivity(ctx, wallet, time.Now()); err != nil {
		// the credit is committed, activity recording rides the retry
		zapLog.Error("failed to record daily activity", zap.Error(err))
		return err
	}
	return nil
}

// Credit writes the ledger row and bumps the member score. It reports
// false without touching anything when the reference was already paid.
func (s *Service) Credit(ctx context.Context, p *submission.RewardCreditPayload) (bool, error) {
	if p.Wallet == "" || p.ReferenceID == "" {
		return false, fmt.Errorf("reward payload missing wallet or reference")
	}
	wallet := strings.ToLower(p.Wallet)

	var existing int64
	if err := s.db.WithContext(ctx).Model(&RewardEvent{}).
		Where("reference_id = ?", p.ReferenceID).
		Count(&existing).Error; err != nil {
		return false, err
	}
	if existing > 0 {
		return false, nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&RewardEvent{
			ID:          s.node.Generate().String(),
			ReferenceID: p.ReferenceID,
			Wallet:      wallet,
			Points:      p.Points,
			Source:      p.Source,
			TraceID:     p.TraceID,
		}).Error; err != nil {
			return err
		}

		profile := member.UserProfile{Wallet: wallet}
		if err := tx.Where(&member.UserProfile{Wallet: wallet}).
			FirstOrCreate(&profile).Error; err != nil {
			return err
		}
		return tx.Model(&member.UserProfile{}).
			Where("wallet = ?", wallet).
			Update("score", gorm.Expr("score + ?", p.Points)).Error
	})
	if err != nil {
		if isDuplicate(err) {
			// raced with a concurrent delivery of the same reference
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func (s *Service) ListEvents(ctx context.Context, wallet string) ([]*RewardEvent, error) {
	return s.events.Find(ctx,
		&RewardEvent{Wallet: strings.ToLower(wallet)},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "DESC"}),
	)
}

func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if err == gorm.ErrDuplicatedKey {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
