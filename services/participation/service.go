package participation

import (
	"context"
	"strings"
	"time"

	"questplane/pkg/errutil"
	"questplane/services/campaign"
	"questplane/services/submission"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Service struct {
	db *gorm.DB
}

type ServiceParams struct {
	fx.In

	DB *gorm.DB
}

func NewService(p ServiceParams) *Service {
	return &Service{db: p.DB}
}

type Participation struct {
	CampaignID       string            `json:"campaign_id"`
	Wallet           string            `json:"wallet"`
	IsOwner          bool              `json:"is_owner"`
	HasJoined        bool              `json:"has_joined"`
	JoinedAt         *time.Time        `json:"joined_at,omitempty"`
	SubmissionStatus submission.Status `json:"submission_status,omitempty"`
	SubmissionCount  int64             `json:"submission_count"`
}

// GetParticipation aggregates a wallet's standing in one campaign. Pure
// reads, ownership takes precedence over membership in the reported role.
func (s *Service) GetParticipation(ctx context.Context, campaignID, wallet string) (*Participation, error) {
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

	p := &Participation{
		CampaignID: c.ID,
		Wallet:     wallet,
		IsOwner:    strings.EqualFold(c.OwnerWallet, wallet),
	}

	// An owner is reported as owner only, never as a joined participant,
	// even when a join record exists for the owner wallet.
	if !p.IsOwner {
		var join submission.Submission
		err := s.db.WithContext(ctx).
			Where("campaign_id = ? AND wallet = ? AND kind = ?", c.ID, wallet, submission.KindFullQuest).
			First(&join).Error
		switch err {
		case nil:
			p.HasJoined = true
			p.JoinedAt = &join.CreatedAt
			p.SubmissionStatus = join.Status
		case gorm.ErrRecordNotFound:
		default:
			return nil, err
		}
	}

	if err := s.db.WithContext(ctx).Model(&submission.Submission{}).
		Where("campaign_id = ? AND wallet = ? AND kind = ?", c.ID, wallet, submission.KindTaskCompletion).
		Count(&p.SubmissionCount).Error; err != nil {
		return nil, err
	}

	return p, nil
}
