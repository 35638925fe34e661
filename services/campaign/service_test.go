package campaign

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"questplane/pkg/errutil"
	"questplane/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
)

type seqStub struct{ n int }

func (s *seqStub) NextCampaignCode(ctx context.Context) (string, error) {
	s.n++
	return fmt.Sprintf("QST-%05d", s.n), nil
}

type mediaStub struct {
	lastObject string
}

func (m *mediaStub) PutCampaignBanner(ctx context.Context, campaignID string, r io.Reader, size int64, contentType string) (string, error) {
	m.lastObject = "campaigns/" + campaignID + "/banner"
	return m.lastObject, nil
}

func (m *mediaStub) PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	return "https://media.local/" + objectName, nil
}

func newTestService(t *testing.T) (*Service, *mediaStub) {
	t.Helper()

	db := testutil.NewTestDB(t, &Campaign{}, &Task{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	media := &mediaStub{}
	return NewService(ServiceParams{
		In:    fx.In{},
		DB:    db,
		Node:  node,
		Seq:   &seqStub{},
		Media: media,
	}), media
}

func validCreateRequest() *CreateCampaignRequest {
	return &CreateCampaignRequest{
		OwnerWallet:     "0xABCDEF0123456789",
		Title:           "Sei Summer Quest",
		Description:     "Follow and post to earn",
		StartAt:         time.Now().Add(-time.Hour),
		EndAt:           time.Now().Add(24 * time.Hour),
		MaxParticipants: 100,
		RewardAmount:    5000,
		RewardType:      "token",
		Tasks: []TaskSpec{
			{Type: TaskXFollow, Title: "Follow us", TargetAccount: "@SeiNetwork", RewardPoints: 10},
			{Type: TaskXPost, Title: "Shill post", Hashtags: []string{"#Sei", "Web3"}, RewardPoints: 25},
		},
	}
}

func TestCreateCampaign(t *testing.T) {
	svc, _ := newTestService(t)

	c, err := svc.CreateCampaign(context.Background(), validCreateRequest())
	require.NoError(t, err)
	require.Equal(t, StatusDraft, c.Status)
	require.Equal(t, "QST-00001", c.Code)
	require.Equal(t, "sei-summer-quest", c.Slug)
	require.Equal(t, "0xabcdef0123456789", c.OwnerWallet, "owner wallet should be lower-cased")
	require.Len(t, c.Tasks, 2)
	require.Equal(t, "seinetwork", c.Tasks[0].TargetAccount)
	require.Equal(t, []string{"sei", "web3"}, []string(c.Tasks[1].Hashtags))
}

func TestCreateCampaignValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	req := validCreateRequest()
	req.EndAt = req.StartAt.Add(-time.Minute)
	_, err := svc.CreateCampaign(ctx, req)
	require.Error(t, err)

	req = validCreateRequest()
	req.Tasks = []TaskSpec{{Type: TaskXFollow, Title: "Follow"}}
	_, err = svc.CreateCampaign(ctx, req)
	require.Error(t, err, "x_follow without target_account should be rejected")

	req = validCreateRequest()
	req.Tasks = []TaskSpec{{Type: TaskCustom, Title: "Custom"}}
	_, err = svc.CreateCampaign(ctx, req)
	require.Error(t, err, "custom task without rule should be rejected")
}

func TestTransition(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	c, err := svc.CreateCampaign(ctx, validCreateRequest())
	require.NoError(t, err)

	_, err = svc.Transition(ctx, c.ID, c.OwnerWallet, StatusEnded)
	require.Error(t, err, "draft cannot end directly")

	c, err = svc.Transition(ctx, c.ID, c.OwnerWallet, StatusActive)
	require.NoError(t, err)
	require.Equal(t, StatusActive, c.Status)

	_, err = svc.Transition(ctx, c.ID, "0xsomeoneelse", StatusEnded)
	require.Error(t, err)
	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusForbidden, be.Code)

	c, err = svc.Transition(ctx, c.ID, c.OwnerWallet, StatusEnded)
	require.NoError(t, err)
	require.Equal(t, StatusEnded, c.Status)

	_, err = svc.Transition(ctx, c.ID, c.OwnerWallet, StatusActive)
	require.Error(t, err, "ended is terminal")
}

func TestUpdateCampaignFrozenAfterDraft(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	c, err := svc.CreateCampaign(ctx, validCreateRequest())
	require.NoError(t, err)

	newEnd := c.EndAt.Add(48 * time.Hour)
	c, err = svc.UpdateCampaign(ctx, &UpdateCampaignRequest{
		CampaignID:  c.ID,
		OwnerWallet: c.OwnerWallet,
		EndAt:       &newEnd,
	})
	require.NoError(t, err)
	require.WithinDuration(t, newEnd, c.EndAt, time.Second)

	_, err = svc.Transition(ctx, c.ID, c.OwnerWallet, StatusActive)
	require.NoError(t, err)

	_, err = svc.UpdateCampaign(ctx, &UpdateCampaignRequest{
		CampaignID:  c.ID,
		OwnerWallet: c.OwnerWallet,
		EndAt:       &newEnd,
	})
	require.Error(t, err, "window is frozen once active")

	got, err := svc.UpdateCampaign(ctx, &UpdateCampaignRequest{
		CampaignID:  c.ID,
		OwnerWallet: c.OwnerWallet,
		Description: "updated copy",
	})
	require.NoError(t, err)
	require.Equal(t, "updated copy", got.Description)
}

func TestListActiveCampaigns(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	active, err := svc.CreateCampaign(ctx, validCreateRequest())
	require.NoError(t, err)
	_, err = svc.Transition(ctx, active.ID, active.OwnerWallet, StatusActive)
	require.NoError(t, err)

	// stays in draft, must not be listed as active
	_, err = svc.CreateCampaign(ctx, validCreateRequest())
	require.NoError(t, err)

	future := validCreateRequest()
	future.StartAt = time.Now().Add(48 * time.Hour)
	future.EndAt = time.Now().Add(96 * time.Hour)
	fc, err := svc.CreateCampaign(ctx, future)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, fc.ID, fc.OwnerWallet, StatusActive)
	require.NoError(t, err)

	got, err := svc.ListCampaigns(ctx, &ListCampaignsRequest{OnlyActive: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, active.ID, got[0].ID)
}

func TestUploadBanner(t *testing.T) {
	svc, media := newTestService(t)
	ctx := context.Background()

	c, err := svc.CreateCampaign(ctx, validCreateRequest())
	require.NoError(t, err)

	body := bytes.NewBufferString("png-bytes")
	c, err = svc.UploadBanner(ctx, c.ID, c.OwnerWallet, body, int64(body.Len()), "image/png")
	require.NoError(t, err)
	require.Equal(t, media.lastObject, c.BannerObject)

	got, err := svc.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, media.lastObject, got.BannerObject)
}
