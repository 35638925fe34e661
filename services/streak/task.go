package streak

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"questplane/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type RecordActivityPayload struct {
	Wallet         string `json:"wallet"`
	Day            string `json:"day"`
	CampaignJoined bool   `json:"campaign_joined"`
	TraceID        string `json:"trace_id,omitempty"`
}

func NewRecordActivityTask(p RecordActivityPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.StreakRecordActivity, payload,
		asynq.Queue("default"), asynq.MaxRetry(5)), nil
}

var TaskModule = fx.Module("task.streak",
	fx.Invoke(registerHandlers),
)

func registerHandlers(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(taskname.StreakRecordActivity, svc.HandleRecordActivity)
}

// HandleRecordActivity consumes streak:record_activity. The underlying
// writes are idempotent per day and per month, so asynq retries are safe.
func (s *Service) HandleRecordActivity(ctx context.Context, t *asynq.Task) error {
	var payload RecordActivityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	day, err := time.Parse(DayFormat, payload.Day)
	if err != nil {
		day = time.Now()
	}

	zapLog := zap.L().With(
		zap.String("task_type", t.Type()),
		zap.String("wallet", payload.Wallet),
		zap.String("trace_id", payload.TraceID),
	)

	st, counted, err := s.RecordDailyActivity(ctx, payload.Wallet, day)
	if err != nil {
		zapLog.Error("failed to record daily activity", zap.Error(err))
		return err
	}
	zapLog.Info("daily activity recorded",
		zap.Bool("counted", counted),
		zap.Int("current_streak", st.CurrentStreak),
	)

	if payload.CampaignJoined {
		if _, err := s.RecordCampaignParticipation(ctx, payload.Wallet, day.Format(MonthFormat)); err != nil {
			zapLog.Error("failed to record campaign participation", zap.Error(err))
			return err
		}
	}

	return nil
}
