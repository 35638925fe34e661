package verifier

import (
	"context"
	"testing"

	"questplane/pkg/errutil"
	"questplane/pkg/twitter"
	"questplane/services/member"

	"github.com/stretchr/testify/require"
)

type credsStub struct {
	profile *member.UserProfile
	err     error
}

func (c *credsStub) ValidCredential(ctx context.Context, wallet string) (*member.UserProfile, error) {
	return c.profile, c.err
}

type providerStub struct {
	resolveUsername func(ctx context.Context, accessToken, username string) (*twitter.User, error)
	listFollowing   func(ctx context.Context, accessToken, userID string) ([]string, error)
	getTweet        func(ctx context.Context, accessToken, tweetID string) (*twitter.Tweet, error)
}

func (p *providerStub) Me(ctx context.Context, accessToken string) (*twitter.User, error) {
	return nil, errutil.NotFound("not in stub")
}

func (p *providerStub) ResolveUsername(ctx context.Context, accessToken, username string) (*twitter.User, error) {
	return p.resolveUsername(ctx, accessToken, username)
}

func (p *providerStub) ListFollowing(ctx context.Context, accessToken, userID string) ([]string, error) {
	return p.listFollowing(ctx, accessToken, userID)
}

func (p *providerStub) GetTweet(ctx context.Context, accessToken, tweetID string) (*twitter.Tweet, error) {
	return p.getTweet(ctx, accessToken, tweetID)
}

func (p *providerStub) AuthCodeURL(state, verifier string) string { return "" }

func (p *providerStub) ExchangeAuthCode(ctx context.Context, code, verifier string) (*twitter.Token, error) {
	return nil, errutil.NotFound("not in stub")
}

func (p *providerStub) RefreshToken(ctx context.Context, refreshToken string) (*twitter.Token, error) {
	return nil, errutil.NotFound("not in stub")
}

func linkedProfile() *member.UserProfile {
	return &member.UserProfile{
		Wallet:      "0xwallet01",
		TwitterID:   "42",
		AccessToken: "at-1",
	}
}

func newService(creds CredentialSource, provider twitter.API) *Service {
	return &Service{creds: creds, provider: provider, eval: NewEvaluator()}
}

func TestVerifyFollow(t *testing.T) {
	provider := &providerStub{
		resolveUsername: func(ctx context.Context, accessToken, username string) (*twitter.User, error) {
			require.Equal(t, "at-1", accessToken)
			return &twitter.User{ID: "777", Username: "seinetwork"}, nil
		},
		listFollowing: func(ctx context.Context, accessToken, userID string) ([]string, error) {
			require.Equal(t, "42", userID)
			return []string{"100", "777", "900"}, nil
		},
	}
	svc := newService(&credsStub{profile: linkedProfile()}, provider)

	res, err := svc.VerifyFollow(context.Background(), "0xwallet01", "seinetwork")
	require.NoError(t, err)
	require.True(t, res.Verified)
	require.Equal(t, "777", res.TargetID)

	provider.listFollowing = func(ctx context.Context, accessToken, userID string) ([]string, error) {
		return []string{"100", "900"}, nil
	}
	res, err = svc.VerifyFollow(context.Background(), "0xwallet01", "seinetwork")
	require.NoError(t, err)
	require.False(t, res.Verified)
}

func TestVerifyFollowRequiresCredential(t *testing.T) {
	svc := newService(&credsStub{err: errutil.Unauthorized("no twitter account linked to this wallet")}, &providerStub{})

	_, err := svc.VerifyFollow(context.Background(), "0xwallet01", "seinetwork")
	require.Error(t, err)
	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusUnauthorized, be.Code)
}

func TestVerifyPost(t *testing.T) {
	provider := &providerStub{
		getTweet: func(ctx context.Context, accessToken, tweetID string) (*twitter.Tweet, error) {
			require.Equal(t, "1234567890", tweetID)
			return &twitter.Tweet{ID: tweetID, AuthorID: "42", Text: "gm #Sei #Web3 @SeiNetwork"}, nil
		},
	}
	svc := newService(&credsStub{profile: linkedProfile()}, provider)

	res, err := svc.VerifyPost(context.Background(), "0xwallet01",
		"https://x.com/seifan/status/1234567890", PostCriteria{
			RequiredHashtags: []string{"sei", "#Web3"},
			RequiredMentions: []string{"@SeiNetwork"},
		})
	require.NoError(t, err)
	require.True(t, res.Verified)
	require.Equal(t, []string{"sei", "web3"}, res.FoundHashtags)
	require.Equal(t, []string{"seinetwork"}, res.FoundMentions)
	require.Empty(t, res.MissingHashtags)
	require.Empty(t, res.MissingMentions)
}

func TestVerifyPostReportsMissing(t *testing.T) {
	provider := &providerStub{
		getTweet: func(ctx context.Context, accessToken, tweetID string) (*twitter.Tweet, error) {
			return &twitter.Tweet{ID: tweetID, AuthorID: "42", Text: "gm #Sei"}, nil
		},
	}
	svc := newService(&credsStub{profile: linkedProfile()}, provider)

	res, err := svc.VerifyPost(context.Background(), "0xwallet01",
		"https://twitter.com/seifan/statuses/1234567890", PostCriteria{
			RequiredHashtags: []string{"sei", "web3"},
			RequiredMentions: []string{"seinetwork"},
		})
	require.NoError(t, err)
	require.False(t, res.Verified)
	require.Equal(t, []string{"sei"}, res.FoundHashtags)
	require.Equal(t, []string{"web3"}, res.MissingHashtags)
	require.Equal(t, []string{"seinetwork"}, res.MissingMentions)
}

func TestVerifyPostOwnership(t *testing.T) {
	provider := &providerStub{
		getTweet: func(ctx context.Context, accessToken, tweetID string) (*twitter.Tweet, error) {
			return &twitter.Tweet{ID: tweetID, AuthorID: "9999", Text: "gm #Sei"}, nil
		},
	}
	svc := newService(&credsStub{profile: linkedProfile()}, provider)

	_, err := svc.VerifyPost(context.Background(), "0xwallet01",
		"https://x.com/other/status/1234567890", PostCriteria{})
	require.Error(t, err)
	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusForbidden, be.Code)
}

func TestVerifyPostBadURL(t *testing.T) {
	svc := newService(&credsStub{profile: linkedProfile()}, &providerStub{})

	_, err := svc.VerifyPost(context.Background(), "0xwallet01",
		"https://x.com/seifan", PostCriteria{})
	require.Error(t, err)
	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusBadRequest, be.Code)
}

func TestParseTweetID(t *testing.T) {
	require.Equal(t, "123", parseTweetID("https://x.com/a/status/123"))
	require.Equal(t, "123", parseTweetID("https://twitter.com/a/statuses/123?s=20"))
	require.Equal(t, "123", parseTweetID("123"))
	require.Empty(t, parseTweetID("https://x.com/a"))
	require.Empty(t, parseTweetID(""))
}

func TestVerifyCustom(t *testing.T) {
	svc := newService(&credsStub{profile: linkedProfile()}, &providerStub{})
	ctx := context.Background()

	ok, err := svc.VerifyCustom(ctx, "0xwallet01",
		"total_volume > 1000 && tier == 'gold'",
		map[string]any{"total_volume": 5000, "tier": "gold"})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.VerifyCustom(ctx, "0xwallet01",
		"total_volume > 1000",
		map[string]any{"total_volume": 10})
	require.NoError(t, err)
	require.False(t, ok)

	_, err = svc.VerifyCustom(ctx, "0xwallet01", "not valid ((", nil)
	require.Error(t, err)
	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusUnprocessableEntity, be.Code)
}
