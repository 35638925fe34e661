package participation

import (
	"context"
	"testing"
	"time"

	"questplane/pkg/errutil"
	"questplane/services/campaign"
	"questplane/services/submission"
	"questplane/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t, &campaign.Campaign{}, &submission.Submission{})
	return NewService(ServiceParams{In: fx.In{}, DB: db}), db
}

func TestGetParticipation(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&campaign.Campaign{
		ID:          "c1",
		OwnerWallet: "0xowner",
		Title:       "Quest",
		StartAt:     time.Now().Add(-time.Hour),
		EndAt:       time.Now().Add(time.Hour),
		Status:      campaign.StatusActive,
	}).Error)

	require.NoError(t, db.Create(&submission.Submission{
		ID: "s1", CampaignID: "c1", Wallet: "0xplayer01",
		Kind: submission.KindFullQuest, Status: submission.StatusPending,
	}).Error)
	require.NoError(t, db.Create(&submission.Submission{
		ID: "s2", CampaignID: "c1", TaskID: "t1", Wallet: "0xplayer01",
		Kind: submission.KindTaskCompletion, Status: submission.StatusApproved,
	}).Error)

	p, err := svc.GetParticipation(ctx, "c1", "0xPLAYER01")
	require.NoError(t, err)
	require.False(t, p.IsOwner)
	require.True(t, p.HasJoined)
	require.NotNil(t, p.JoinedAt)
	require.Equal(t, submission.StatusPending, p.SubmissionStatus)
	require.Equal(t, int64(1), p.SubmissionCount)

	owner, err := svc.GetParticipation(ctx, "c1", "0xOwner")
	require.NoError(t, err)
	require.True(t, owner.IsOwner)
	require.False(t, owner.HasJoined)

	stranger, err := svc.GetParticipation(ctx, "c1", "0xnobody")
	require.NoError(t, err)
	require.False(t, stranger.IsOwner)
	require.False(t, stranger.HasJoined)
	require.Zero(t, stranger.SubmissionCount)

	_, err = svc.GetParticipation(ctx, "missing", "0xplayer01")
	require.Error(t, err)
	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusNotFound, be.Code)
}

func TestGetParticipationOwnerPrecedence(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&campaign.Campaign{
		ID:          "c1",
		OwnerWallet: "0xowner",
		Title:       "Quest",
		StartAt:     time.Now().Add(-time.Hour),
		EndAt:       time.Now().Add(time.Hour),
		Status:      campaign.StatusActive,
	}).Error)

	// a join record under the owner wallet must not demote the reported role
	require.NoError(t, db.Create(&submission.Submission{
		ID: "s1", CampaignID: "c1", Wallet: "0xowner",
		Kind: submission.KindFullQuest, Status: submission.StatusPending,
	}).Error)

	p, err := svc.GetParticipation(ctx, "c1", "0xOwner")
	require.NoError(t, err)
	require.True(t, p.IsOwner)
	require.False(t, p.HasJoined, "owner is never reported as joined")
	require.Nil(t, p.JoinedAt)
	require.Empty(t, p.SubmissionStatus)
}
