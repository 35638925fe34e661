package submission

import (
	"context"
	"strings"
	"time"

	qasynq "questplane/pkg/asynq"
	"questplane/pkg/db/option"
	"questplane/pkg/errutil"
	"questplane/pkg/repository"
	"questplane/pkg/taskname"
	"questplane/services/campaign"
	"questplane/services/streak"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db          *gorm.DB
	node        *snowflake.Node
	enqueuer    qasynq.Enqueuer
	submissions repository.Repository[Submission]
}

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Node     *snowflake.Node
	Enqueuer qasynq.Enqueuer
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:          p.DB,
		node:        p.Node,
		enqueuer:    p.Enqueuer,
		submissions: repository.ProvideStore[Submission](p.DB),
	}
}

// Join enrolls a wallet into an active campaign. The participant counter
// increment and the join record live in one transaction, the conditional
// UPDATE on the counter is what enforces capacity under concurrency.
func (s *Service) Join(ctx context.Context, campaignID, wallet string) (*Submission, error) {
	wallet = strings.ToLower(strings.TrimSpace(wallet))
	if wallet == "" {
		return nil, errutil.ValidationFailed("wallet is required")
	}

	var c campaign.Campaign
	if err := s.db.WithContext(ctx).Where("id = ?", campaignID).First(&c).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errutil.NotFound("campaign not found")
		}
		return nil, err
	}
	if !c.Joinable(time.Now()) {
		return nil, errutil.UnprocessableEntity("campaign is not accepting participants")
	}

	sub := &Submission{
		ID:         s.node.Generate().String(),
		CampaignID: c.ID,
		Wallet:     wallet,
		Kind:       KindFullQuest,
		Status:     StatusPending,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&Submission{}).
			Where("campaign_id = ? AND wallet = ? AND kind = ?", c.ID, wallet, KindFullQuest).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return errutil.Conflict("wallet already joined this campaign")
		}

		res := tx.Model(&campaign.Campaign{}).
			Where("id = ? AND current_participants < max_participants", c.ID).
			Update("current_participants", gorm.Expr("current_participants + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errutil.UnprocessableEntity("campaign participant capacity reached")
		}

		if err := tx.Create(sub).Error; err != nil {
			if isDuplicate(err) {
				return errutil.Conflict("wallet already joined this campaign")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.enqueueActivity(ctx, wallet, true)
	return sub, nil
}

// SubmitTask records a pending task completion claim. Verification and
// review happen later, this call only captures the claim.
func (s *Service) SubmitTask(ctx context.Context, campaignID, taskID, wallet string, payload map[string]any) (*Submission, error) {
	wallet = strings.ToLower(strings.TrimSpace(wallet))
	if wallet == "" {
		return nil, errutil.ValidationFailed("wallet is required")
	}

	var task campaign.Task
	if err := s.db.WithContext(ctx).
		Where("id = ? AND campaign_id = ?", taskID, campaignID).
		First(&task).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errutil.NotFound("task not found")
		}
		return nil, err
	}
	if !task.Enabled {
		return nil, errutil.UnprocessableEntity("task is disabled")
	}

	var c campaign.Campaign
	if err := s.db.WithContext(ctx).Where("id = ?", campaignID).First(&c).Error; err != nil {
		return nil, err
	}
	if !c.Joinable(time.Now()) {
		return nil, errutil.UnprocessableEntity("campaign is not accepting submissions")
	}

	var joined int64
	if err := s.db.WithContext(ctx).Model(&Submission{}).
		Where("campaign_id = ? AND wallet = ? AND kind = ?", campaignID, wallet, KindFullQuest).
		Count(&joined).Error; err != nil {
		return nil, err
	}
	if joined == 0 {
		return nil, errutil.UnprocessableEntity("wallet has not joined this campaign")
	}

	body, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}

	sub := &Submission{
		ID:         s.node.Generate().String(),
		CampaignID: campaignID,
		TaskID:     taskID,
		Wallet:     wallet,
		Kind:       KindTaskCompletion,
		Status:     StatusPending,
		Payload:    body,
	}
	if err := s.db.WithContext(ctx).Create(sub).Error; err != nil {
		if isDuplicate(err) {
			return nil, errutil.Conflict("task already submitted by this wallet")
		}
		return nil, err
	}

	s.enqueueActivity(ctx, wallet, false)
	return sub, nil
}

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Review moves a pending submission to its terminal state. Only the
// campaign owner may review. An approval that carries a positive reward
// enqueues the durable reward:credit task before Review reports success.
func (s *Service) Review(ctx context.Context, submissionID, reviewerWallet string, decision Decision, notes string) (*Submission, error) {
	if decision != DecisionApprove && decision != DecisionReject {
		return nil, errutil.ValidationFailed("decision must be approve or reject")
	}

	var sub Submission
	if err := s.db.WithContext(ctx).Where("id = ?", submissionID).First(&sub).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errutil.NotFound("submission not found")
		}
		return nil, err
	}

	var c campaign.Campaign
	if err := s.db.WithContext(ctx).Where("id = ?", sub.CampaignID).First(&c).Error; err != nil {
		return nil, err
	}
	if !strings.EqualFold(c.OwnerWallet, reviewerWallet) {
		return nil, errutil.Forbidden("only the campaign owner may review submissions")
	}
	if sub.Status.Terminal() {
		return nil, errutil.Conflict("submission was already reviewed")
	}

	next := StatusApproved
	if decision == DecisionReject {
		next = StatusRejected
	}

	now := time.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Submission{}).
			Where("id = ? AND status = ?", sub.ID, StatusPending).
			Updates(map[string]any{
				"status":      next,
				"notes":       notes,
				"verified_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errutil.Conflict("submission was already reviewed")
		}

		sub.Status = next
		sub.Notes = notes
		sub.VerifiedAt = &now

		// Enqueue failure rolls the status flip back, the submission stays
		// pending and reviewable. If the task went out but the commit fails,
		// the handler dedupes by reference on redelivery.
		if next == StatusApproved {
			return s.enqueueReward(ctx, tx, &sub, &c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &sub, nil
}

func (s *Service) enqueueReward(ctx context.Context, db *gorm.DB, sub *Submission, c *campaign.Campaign) error {
	points := rewardPoints(ctx, db, sub, c)
	if points <= 0 {
		return nil
	}

	task, err := NewRewardCreditTask(RewardCreditPayload{
		Wallet:      sub.Wallet,
		Points:      points,
		Source:      "submission_review",
		ReferenceID: sub.ID,
		TraceID:     traceID(ctx),
	})
	if err != nil {
		return errutil.Internal("build reward task", errutil.WithErr(err))
	}

	if _, err := s.enqueuer.Enqueue(ctx, task); err != nil {
		zap.L().Error("failed to enqueue reward credit",
			zap.String("submission_id", sub.ID),
			zap.Error(err),
		)
		return errutil.Internal("enqueue reward credit", errutil.WithErr(err))
	}
	return nil
}

// rewardPoints resolves the reward carried by an approval: the task's
// points for a task completion, the campaign reward for a full quest.
func rewardPoints(ctx context.Context, db *gorm.DB, sub *Submission, c *campaign.Campaign) int64 {
	if sub.Kind == KindFullQuest {
		return c.RewardAmount
	}

	var task campaign.Task
	if err := db.WithContext(ctx).Where("id = ?", sub.TaskID).First(&task).Error; err != nil {
		zap.L().Warn("reward task lookup failed", zap.String("task_id", sub.TaskID), zap.Error(err))
		return 0
	}
	return task.RewardPoints
}

func (s *Service) GetSubmission(ctx context.Context, submissionID string) (*Submission, error) {
	var sub Submission
	if err := s.db.WithContext(ctx).Where("id = ?", submissionID).First(&sub).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errutil.NotFound("submission not found")
		}
		return nil, err
	}
	return &sub, nil
}

type ListSubmissionsRequest struct {
	CampaignID string
	Wallet     string
	Kind       Kind
	Status     Status
	Limit      int
}

func (s *Service) ListSubmissions(ctx context.Context, req *ListSubmissionsRequest) ([]*Submission, error) {
	filter := &Submission{
		CampaignID: req.CampaignID,
		Wallet:     strings.ToLower(req.Wallet),
		Kind:       req.Kind,
		Status:     req.Status,
	}
	return s.submissions.Find(ctx, filter,
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "DESC"}),
		option.WithLimit(req.Limit),
	)
}

// enqueueActivity reports streak activity after a successful write. The
// write already committed, a queue hiccup here only delays streak credit.
func (s *Service) enqueueActivity(ctx context.Context, wallet string, joined bool) {
	task, err := streak.NewRecordActivityTask(streak.RecordActivityPayload{
		Wallet:         wallet,
		Day:            time.Now().Format(streak.DayFormat),
		CampaignJoined: joined,
		TraceID:        traceID(ctx),
	})
	if err != nil {
		zap.L().Error("failed to build streak task", zap.Error(err))
		return
	}
	if _, err := s.enqueuer.Enqueue(ctx, task); err != nil {
		zap.L().Error("failed to enqueue streak task",
			zap.String("wallet", wallet),
			zap.String("task_type", taskname.StreakRecordActivity),
			zap.Error(err),
		)
	}
}

func marshalPayload(payload map[string]any) (datatypes.JSON, error) {
	if payload == nil {
		return nil, nil
	}
	m := datatypes.JSONMap(payload)
	body, err := m.MarshalJSON()
	if err != nil {
		return nil, errutil.ValidationFailed("payload is not serializable", errutil.WithErr(err))
	}
	return datatypes.JSON(body), nil
}

func traceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
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
