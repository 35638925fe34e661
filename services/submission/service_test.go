package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"questplane/pkg/errutil"
	"questplane/pkg/taskname"
	"questplane/services/campaign"
	"questplane/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type enqueuerMock struct {
	tasks []*asynq.Task
	err   error
}

func (e *enqueuerMock) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{ID: task.Type()}, nil
}

func (e *enqueuerMock) ofType(taskType string) []*asynq.Task {
	var out []*asynq.Task
	for _, t := range e.tasks {
		if t.Type() == taskType {
			out = append(out, t)
		}
	}
	return out
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *enqueuerMock) {
	t.Helper()

	db := testutil.NewTestDB(t, &campaign.Campaign{}, &campaign.Task{}, &Submission{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	enq := &enqueuerMock{}
	svc := NewService(ServiceParams{In: fx.In{}, DB: db, Node: node, Enqueuer: enq})
	return svc, db, enq
}

func seedCampaign(t *testing.T, db *gorm.DB, status campaign.Status, maxParticipants int64) (*campaign.Campaign, *campaign.Task) {
	t.Helper()

	c := &campaign.Campaign{
		ID:              "c1",
		Code:            "QST-00001",
		OwnerWallet:     "0xowner",
		Title:           "Quest",
		StartAt:         time.Now().Add(-time.Hour),
		EndAt:           time.Now().Add(time.Hour),
		MaxParticipants: maxParticipants,
		RewardAmount:    500,
		Status:          status,
	}
	require.NoError(t, db.Create(c).Error)

	task := &campaign.Task{
		ID:           "t1",
		CampaignID:   c.ID,
		Type:         campaign.TaskXFollow,
		Title:        "Follow",
		Enabled:      true,
		RewardPoints: 25,
	}
	require.NoError(t, db.Create(task).Error)
	return c, task
}

func requireCode(t *testing.T, err error, code errutil.CoreStatus) {
	t.Helper()
	require.Error(t, err)
	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, code, be.Code)
}

func TestJoin(t *testing.T) {
	svc, db, enq := newTestService(t)
	c, _ := seedCampaign(t, db, campaign.StatusActive, 10)

	sub, err := svc.Join(context.Background(), c.ID, "0xPlayer01")
	require.NoError(t, err)
	require.Equal(t, KindFullQuest, sub.Kind)
	require.Equal(t, StatusPending, sub.Status)
	require.Equal(t, "0xplayer01", sub.Wallet)

	var got campaign.Campaign
	require.NoError(t, db.Where("id = ?", c.ID).First(&got).Error)
	require.Equal(t, int64(1), got.CurrentParticipants)

	streakTasks := enq.ofType(taskname.StreakRecordActivity)
	require.Len(t, streakTasks, 1)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(streakTasks[0].Payload(), &payload))
	require.Equal(t, "0xplayer01", payload["wallet"])
	require.Equal(t, true, payload["campaign_joined"])
}

func TestJoinAlreadyJoined(t *testing.T) {
	svc, db, _ := newTestService(t)
	c, _ := seedCampaign(t, db, campaign.StatusActive, 10)
	ctx := context.Background()

	_, err := svc.Join(ctx, c.ID, "0xplayer01")
	require.NoError(t, err)

	_, err = svc.Join(ctx, c.ID, "0xPLAYER01")
	requireCode(t, err, errutil.StatusConflict)

	var got campaign.Campaign
	require.NoError(t, db.Where("id = ?", c.ID).First(&got).Error)
	require.Equal(t, int64(1), got.CurrentParticipants, "failed join must not consume capacity")
}

func TestJoinCapacityExceeded(t *testing.T) {
	svc, db, _ := newTestService(t)
	c, _ := seedCampaign(t, db, campaign.StatusActive, 1)
	ctx := context.Background()

	_, err := svc.Join(ctx, c.ID, "0xplayer01")
	require.NoError(t, err)

	_, err = svc.Join(ctx, c.ID, "0xplayer02")
	requireCode(t, err, errutil.StatusUnprocessableEntity)

	var count int64
	require.NoError(t, db.Model(&Submission{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestJoinNotActive(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Join(ctx, "missing", "0xplayer01")
	requireCode(t, err, errutil.StatusNotFound)

	c, _ := seedCampaign(t, db, campaign.StatusDraft, 10)
	_, err = svc.Join(ctx, c.ID, "0xplayer01")
	requireCode(t, err, errutil.StatusUnprocessableEntity)

	// active status but outside the time window
	require.NoError(t, db.Model(&campaign.Campaign{}).Where("id = ?", c.ID).
		Updates(map[string]any{
			"status": campaign.StatusActive,
			"end_at": time.Now().Add(-time.Minute),
		}).Error)
	_, err = svc.Join(ctx, c.ID, "0xplayer01")
	requireCode(t, err, errutil.StatusUnprocessableEntity)
}

func TestSubmitTask(t *testing.T) {
	svc, db, _ := newTestService(t)
	c, task := seedCampaign(t, db, campaign.StatusActive, 10)
	ctx := context.Background()

	// must join first
	_, err := svc.SubmitTask(ctx, c.ID, task.ID, "0xplayer01", nil)
	requireCode(t, err, errutil.StatusUnprocessableEntity)

	_, err = svc.Join(ctx, c.ID, "0xplayer01")
	require.NoError(t, err)

	sub, err := svc.SubmitTask(ctx, c.ID, task.ID, "0xplayer01",
		map[string]any{"post_url": "https://x.com/a/status/123"})
	require.NoError(t, err)
	require.Equal(t, KindTaskCompletion, sub.Kind)
	require.Equal(t, StatusPending, sub.Status)
	require.Equal(t, task.ID, sub.TaskID)
	require.Contains(t, string(sub.Payload), "post_url")

	_, err = svc.SubmitTask(ctx, c.ID, task.ID, "0xplayer01", nil)
	requireCode(t, err, errutil.StatusConflict)

	_, err = svc.SubmitTask(ctx, c.ID, "missing", "0xplayer01", nil)
	requireCode(t, err, errutil.StatusNotFound)
}

func TestReviewApprove(t *testing.T) {
	svc, db, enq := newTestService(t)
	c, task := seedCampaign(t, db, campaign.StatusActive, 10)
	ctx := context.Background()

	_, err := svc.Join(ctx, c.ID, "0xplayer01")
	require.NoError(t, err)
	sub, err := svc.SubmitTask(ctx, c.ID, task.ID, "0xplayer01", nil)
	require.NoError(t, err)

	_, err = svc.Review(ctx, sub.ID, "0xstranger", DecisionApprove, "")
	requireCode(t, err, errutil.StatusForbidden)

	got, err := svc.Review(ctx, sub.ID, "0xOWNER", DecisionApprove, "looks good")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, got.Status)
	require.Equal(t, "looks good", got.Notes)
	require.NotNil(t, got.VerifiedAt)

	rewards := enq.ofType(taskname.RewardCredit)
	require.Len(t, rewards, 1)
	var payload RewardCreditPayload
	require.NoError(t, json.Unmarshal(rewards[0].Payload(), &payload))
	require.Equal(t, "0xplayer01", payload.Wallet)
	require.Equal(t, int64(25), payload.Points, "task completion pays the task's points")
	require.Equal(t, sub.ID, payload.ReferenceID)

	// terminal states stay terminal
	_, err = svc.Review(ctx, sub.ID, "0xowner", DecisionReject, "")
	requireCode(t, err, errutil.StatusConflict)
}

func TestReviewReject(t *testing.T) {
	svc, db, enq := newTestService(t)
	c, task := seedCampaign(t, db, campaign.StatusActive, 10)
	ctx := context.Background()

	_, err := svc.Join(ctx, c.ID, "0xplayer01")
	require.NoError(t, err)
	sub, err := svc.SubmitTask(ctx, c.ID, task.ID, "0xplayer01", nil)
	require.NoError(t, err)

	got, err := svc.Review(ctx, sub.ID, "0xowner", DecisionReject, "spam")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, got.Status)
	require.Empty(t, enq.ofType(taskname.RewardCredit), "rejection pays nothing")
}

func TestReviewEnqueueFailureKeepsPending(t *testing.T) {
	svc, db, enq := newTestService(t)
	c, task := seedCampaign(t, db, campaign.StatusActive, 10)
	ctx := context.Background()

	_, err := svc.Join(ctx, c.ID, "0xplayer01")
	require.NoError(t, err)
	sub, err := svc.SubmitTask(ctx, c.ID, task.ID, "0xplayer01", nil)
	require.NoError(t, err)

	enq.err = errors.New("broker unavailable")
	_, err = svc.Review(ctx, sub.ID, "0xowner", DecisionApprove, "")
	require.Error(t, err)

	var got Submission
	require.NoError(t, db.Where("id = ?", sub.ID).First(&got).Error)
	require.Equal(t, StatusPending, got.Status, "failed enqueue must roll the approval back")
	require.Nil(t, got.VerifiedAt)

	// review is retryable once the queue recovers
	enq.err = nil
	reviewed, err := svc.Review(ctx, sub.ID, "0xowner", DecisionApprove, "")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, reviewed.Status)
	require.Len(t, enq.ofType(taskname.RewardCredit), 1)
}

func TestJoinConcurrent(t *testing.T) {
	svc, db, _ := newTestService(t)
	c, _ := seedCampaign(t, db, campaign.StatusActive, 3)
	ctx := context.Background()

	const players = 8
	errs := make([]error, players)
	var wg sync.WaitGroup
	for i := 0; i < players; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Join(ctx, c.ID, fmt.Sprintf("0xplayer%02d", i))
		}(i)
	}
	wg.Wait()

	joined := 0
	for _, err := range errs {
		if err == nil {
			joined++
			continue
		}
		requireCode(t, err, errutil.StatusUnprocessableEntity)
	}
	require.Equal(t, 3, joined)

	var got campaign.Campaign
	require.NoError(t, db.Where("id = ?", c.ID).First(&got).Error)
	require.Equal(t, int64(3), got.CurrentParticipants)

	var count int64
	require.NoError(t, db.Model(&Submission{}).Count(&count).Error)
	require.Equal(t, int64(3), count)
}

func TestJoinConcurrentSameWallet(t *testing.T) {
	svc, db, _ := newTestService(t)
	c, _ := seedCampaign(t, db, campaign.StatusActive, 10)
	ctx := context.Background()

	const attempts = 6
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Join(ctx, c.ID, "0xplayer01")
		}(i)
	}
	wg.Wait()

	joined := 0
	for _, err := range errs {
		if err == nil {
			joined++
		}
	}
	require.Equal(t, 1, joined, "one wallet joins at most once")

	var got campaign.Campaign
	require.NoError(t, db.Where("id = ?", c.ID).First(&got).Error)
	require.Equal(t, int64(1), got.CurrentParticipants, "losing joins must not consume capacity")
}

func TestReviewFullQuestPaysCampaignReward(t *testing.T) {
	svc, db, enq := newTestService(t)
	c, _ := seedCampaign(t, db, campaign.StatusActive, 10)
	ctx := context.Background()

	join, err := svc.Join(ctx, c.ID, "0xplayer01")
	require.NoError(t, err)

	_, err = svc.Review(ctx, join.ID, "0xowner", DecisionApprove, "")
	require.NoError(t, err)

	rewards := enq.ofType(taskname.RewardCredit)
	require.Len(t, rewards, 1)
	var payload RewardCreditPayload
	require.NoError(t, json.Unmarshal(rewards[0].Payload(), &payload))
	require.Equal(t, c.RewardAmount, payload.Points)
}
