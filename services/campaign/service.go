package campaign

import (
	"context"
	"io"
	"strings"
	"time"

	"questplane/pkg/db/option"
	"questplane/pkg/errutil"
	"questplane/pkg/objectstore"
	"questplane/pkg/repository"
	"questplane/pkg/sequence"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	seq   sequence.Generator
	media objectstore.Store

	campaigns repository.Repository[Campaign]
	tasks     repository.Repository[Task]
}

type ServiceParams struct {
	fx.In

	DB    *gorm.DB
	Node  *snowflake.Node
	Seq   sequence.Generator
	Media objectstore.Store `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:    p.DB,
		node:  p.Node,
		seq:   p.Seq,
		media: p.Media,

		campaigns: repository.ProvideStore[Campaign](p.DB),
		tasks:     repository.ProvideStore[Task](p.DB),
	}
}

type TaskSpec struct {
	Type            TaskType `json:"type"`
	Title           string   `json:"title"`
	TargetAccount   string   `json:"target_account,omitempty"`
	Hashtags        []string `json:"hashtags,omitempty"`
	MentionAccounts []string `json:"mention_accounts,omitempty"`
	PostLimit       int      `json:"post_limit,omitempty"`
	MinChars        int      `json:"min_chars,omitempty"`
	CustomRule      string   `json:"custom_rule,omitempty"`
	RewardPoints    int64    `json:"reward_points"`
}

type CreateCampaignRequest struct {
	OwnerWallet        string     `json:"owner_wallet"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	StartAt            time.Time  `json:"start_at"`
	EndAt              time.Time  `json:"end_at"`
	MaxParticipants    int64      `json:"max_participants"`
	RewardAmount       int64      `json:"reward_amount"`
	RewardType         string     `json:"reward_type"`
	DistributionMethod string     `json:"distribution_method"`
	Tasks              []TaskSpec `json:"tasks"`
}

func (s *Service) CreateCampaign(ctx context.Context, req *CreateCampaignRequest) (*Campaign, error) {
	owner := strings.ToLower(strings.TrimSpace(req.OwnerWallet))
	if owner == "" {
		return nil, errutil.ValidationFailed("owner_wallet is required")
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, errutil.ValidationFailed("title is required")
	}
	if !req.EndAt.After(req.StartAt) {
		return nil, errutil.ValidationFailed("end_at must be after start_at")
	}
	if req.MaxParticipants <= 0 {
		return nil, errutil.ValidationFailed("max_participants must be positive")
	}

	code, err := s.seq.NextCampaignCode(ctx)
	if err != nil {
		zap.L().Error("failed to generate campaign code", zap.Error(err))
		return nil, errutil.Internal("generate campaign code", errutil.WithErr(err))
	}

	c := &Campaign{
		ID:                 s.node.Generate().String(),
		Code:               code,
		Slug:               slug.Make(req.Title),
		OwnerWallet:        owner,
		Title:              req.Title,
		Description:        req.Description,
		StartAt:            req.StartAt,
		EndAt:              req.EndAt,
		MaxParticipants:    req.MaxParticipants,
		RewardAmount:       req.RewardAmount,
		RewardType:         req.RewardType,
		DistributionMethod: req.DistributionMethod,
		Status:             StatusDraft,
	}

	for _, spec := range req.Tasks {
		task, err := s.buildTask(c.ID, spec)
		if err != nil {
			return nil, err
		}
		c.Tasks = append(c.Tasks, *task)
	}

	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		zap.L().Error("failed to create campaign", zap.Error(err))
		return nil, err
	}

	return c, nil
}

func (s *Service) buildTask(campaignID string, spec TaskSpec) (*Task, error) {
	if !spec.Type.Valid() {
		return nil, errutil.ValidationFailed("unknown task type: " + string(spec.Type))
	}

	switch spec.Type {
	case TaskXFollow:
		if strings.TrimSpace(spec.TargetAccount) == "" {
			return nil, errutil.ValidationFailed("x_follow task requires target_account")
		}
	case TaskXPost:
		if len(spec.Hashtags) == 0 && len(spec.MentionAccounts) == 0 {
			return nil, errutil.ValidationFailed("x_post task requires hashtags or mention_accounts")
		}
	case TaskCustom:
		if strings.TrimSpace(spec.CustomRule) == "" {
			return nil, errutil.ValidationFailed("custom task requires custom_rule")
		}
	}

	return &Task{
		ID:              s.node.Generate().String(),
		CampaignID:      campaignID,
		Type:            spec.Type,
		Title:           spec.Title,
		Enabled:         true,
		TargetAccount:   strings.TrimPrefix(strings.ToLower(spec.TargetAccount), "@"),
		Hashtags:        normalizeTags(spec.Hashtags, "#"),
		MentionAccounts: normalizeTags(spec.MentionAccounts, "@"),
		PostLimit:       spec.PostLimit,
		MinChars:        spec.MinChars,
		CustomRule:      spec.CustomRule,
		RewardPoints:    spec.RewardPoints,
	}, nil
}

func normalizeTags(in []string, prefix string) datatypes.JSONSlice[string] {
	out := make(datatypes.JSONSlice[string], 0, len(in))
	for _, v := range in {
		v = strings.ToLower(strings.TrimSpace(v))
		v = strings.TrimPrefix(v, prefix)
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

type UpdateCampaignRequest struct {
	CampaignID         string     `json:"-"`
	OwnerWallet        string     `json:"owner_wallet"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	StartAt            *time.Time `json:"start_at"`
	EndAt              *time.Time `json:"end_at"`
	MaxParticipants    int64      `json:"max_participants"`
	RewardAmount       int64      `json:"reward_amount"`
	Funded             *bool      `json:"funded"`
	Tasks              []TaskSpec `json:"tasks"`
}

// UpdateCampaign applies owner-authorized edits. Task criteria and the
// time window are only mutable while the campaign is still a draft.
func (s *Service) UpdateCampaign(ctx context.Context, req *UpdateCampaignRequest) (*Campaign, error) {
	c, err := s.getOwned(ctx, req.CampaignID, req.OwnerWallet)
	if err != nil {
		return nil, err
	}

	if req.Title != "" {
		c.Title = req.Title
		c.Slug = slug.Make(req.Title)
	}
	if req.Description != "" {
		c.Description = req.Description
	}
	if req.Funded != nil {
		c.Funded = *req.Funded
	}

	structural := req.StartAt != nil || req.EndAt != nil || req.MaxParticipants > 0 ||
		req.RewardAmount > 0 || len(req.Tasks) > 0
	if structural && c.Status != StatusDraft {
		return nil, errutil.UnprocessableEntity("campaign criteria are frozen once the campaign leaves draft")
	}

	if req.StartAt != nil {
		c.StartAt = *req.StartAt
	}
	if req.EndAt != nil {
		c.EndAt = *req.EndAt
	}
	if !c.EndAt.After(c.StartAt) {
		return nil, errutil.ValidationFailed("end_at must be after start_at")
	}
	if req.MaxParticipants > 0 {
		c.MaxParticipants = req.MaxParticipants
	}
	if req.RewardAmount > 0 {
		c.RewardAmount = req.RewardAmount
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(req.Tasks) > 0 {
			if err := tx.Where("campaign_id = ?", c.ID).Delete(&Task{}).Error; err != nil {
				return err
			}
			c.Tasks = c.Tasks[:0]
			for _, spec := range req.Tasks {
				task, err := s.buildTask(c.ID, spec)
				if err != nil {
					return err
				}
				c.Tasks = append(c.Tasks, *task)
			}
		}
		return tx.Save(c).Error
	}); err != nil {
		zap.L().Error("failed to update campaign", zap.String("campaign_id", c.ID), zap.Error(err))
		return nil, err
	}

	return c, nil
}

// Transition moves the campaign through its status machine. Campaigns are
// never deleted, only transitioned.
func (s *Service) Transition(ctx context.Context, campaignID, ownerWallet string, next Status) (*Campaign, error) {
	if !next.Valid() {
		return nil, errutil.ValidationFailed("unknown status: " + string(next))
	}

	c, err := s.getOwned(ctx, campaignID, ownerWallet)
	if err != nil {
		return nil, err
	}

	if !c.Status.CanTransition(next) {
		return nil, errutil.UnprocessableEntity(
			"illegal status transition " + string(c.Status) + " -> " + string(next))
	}

	if err := s.db.WithContext(ctx).Model(&Campaign{}).
		Where("id = ? AND status = ?", c.ID, c.Status).
		Update("status", next).Error; err != nil {
		return nil, err
	}

	c.Status = next
	return c, nil
}

func (s *Service) GetCampaign(ctx context.Context, campaignID string) (*Campaign, error) {
	var c Campaign
	if err := s.db.WithContext(ctx).
		Preload("Tasks").
		Where("id = ?", campaignID).
		First(&c).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errutil.NotFound("campaign not found")
		}
		return nil, err
	}
	return &c, nil
}

type ListCampaignsRequest struct {
	OwnerWallet string
	OnlyActive  bool
	Limit       int
}

func (s *Service) ListCampaigns(ctx context.Context, req *ListCampaignsRequest) ([]*Campaign, error) {
	q := s.db.WithContext(ctx).Preload("Tasks")

	if req.OwnerWallet != "" {
		q = q.Where("owner_wallet = ?", strings.ToLower(req.OwnerWallet))
	}
	if req.OnlyActive {
		now := time.Now()
		q = q.Where("status = ?", StatusActive).Scopes(
			option.ApplyOperator(option.Condition{Field: "start_at", Operator: option.LTE, Value: now}),
			option.ApplyOperator(option.Condition{Field: "end_at", Operator: option.GTE, Value: now}),
		)
	}

	var campaigns []*Campaign
	err := q.Scopes(
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "DESC"}),
		option.WithLimit(req.Limit),
	).Find(&campaigns).Error
	if err != nil {
		return nil, err
	}

	return campaigns, nil
}

// UploadBanner stores campaign media through the object store and records
// the object name on the campaign.
func (s *Service) UploadBanner(ctx context.Context, campaignID, ownerWallet string, r io.Reader, size int64, contentType string) (*Campaign, error) {
	if s.media == nil {
		return nil, errutil.UnprocessableEntity("media storage is not configured")
	}

	c, err := s.getOwned(ctx, campaignID, ownerWallet)
	if err != nil {
		return nil, err
	}

	objectName, err := s.media.PutCampaignBanner(ctx, c.ID, r, size, contentType)
	if err != nil {
		zap.L().Error("failed to upload campaign banner", zap.String("campaign_id", c.ID), zap.Error(err))
		return nil, errutil.BadGateway("banner upload failed", errutil.WithErr(err))
	}

	if err := s.campaigns.Update(ctx, c.ID, map[string]any{"banner_object": objectName}); err != nil {
		return nil, err
	}

	c.BannerObject = objectName
	return c, nil
}

// BannerURL returns a short-lived presigned link to the campaign banner.
func (s *Service) BannerURL(ctx context.Context, campaignID string) (string, error) {
	if s.media == nil {
		return "", errutil.UnprocessableEntity("media storage is not configured")
	}

	c, err := s.GetCampaign(ctx, campaignID)
	if err != nil {
		return "", err
	}
	if c.BannerObject == "" {
		return "", errutil.NotFound("campaign has no banner")
	}

	return s.media.PresignedURL(ctx, c.BannerObject, 15*time.Minute)
}

func (s *Service) GetTask(ctx context.Context, campaignID, taskID string) (*Task, error) {
	task, err := s.tasks.FindOne(ctx, &Task{ID: taskID, CampaignID: campaignID})
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, errutil.NotFound("task not found")
	}
	return task, nil
}

func (s *Service) getOwned(ctx context.Context, campaignID, wallet string) (*Campaign, error) {
	c, err := s.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(c.OwnerWallet, wallet) {
		return nil, errutil.Forbidden("caller is not the campaign owner")
	}
	return c, nil
}
