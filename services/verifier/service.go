package verifier

import (
	"context"

	"questplane/pkg/errutil"
	"questplane/pkg/twitter"
	"questplane/services/member"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// CredentialSource yields a profile with a usable provider access token.
type CredentialSource interface {
	ValidCredential(ctx context.Context, wallet string) (*member.UserProfile, error)
}

type Service struct {
	creds    CredentialSource
	provider twitter.API
	eval     *Evaluator
}

type ServiceParams struct {
	fx.In

	Members  *member.Service
	Provider twitter.API
}

func NewService(p ServiceParams) *Service {
	return &Service{
		creds:    p.Members,
		provider: p.Provider,
		eval:     NewEvaluator(),
	}
}

type FollowResult struct {
	Verified       bool   `json:"verified"`
	TargetID       string `json:"target_id"`
	TargetUsername string `json:"target_username"`
}

// VerifyFollow checks whether the wallet's linked account follows the
// target. The provider's following list is paginated and capped, very
// large follow graphs beyond the cap read as not following.
func (s *Service) VerifyFollow(ctx context.Context, wallet, targetUsername string) (*FollowResult, error) {
	p, err := s.creds.ValidCredential(ctx, wallet)
	if err != nil {
		return nil, err
	}

	target, err := s.provider.ResolveUsername(ctx, p.AccessToken, targetUsername)
	if err != nil {
		return nil, err
	}

	following, err := s.provider.ListFollowing(ctx, p.AccessToken, p.TwitterID)
	if err != nil {
		return nil, err
	}

	res := &FollowResult{TargetID: target.ID, TargetUsername: target.Username}
	for _, id := range following {
		if id == target.ID {
			res.Verified = true
			break
		}
	}

	zap.L().Debug("follow verification",
		zap.String("wallet", p.Wallet),
		zap.String("target", target.Username),
		zap.Bool("verified", res.Verified),
	)
	return res, nil
}

type PostCriteria struct {
	RequiredHashtags []string
	RequiredMentions []string
	MinChars         int
}

type PostResult struct {
	Verified        bool     `json:"verified"`
	TweetID         string   `json:"tweet_id"`
	FoundHashtags   []string `json:"found_hashtags"`
	MissingHashtags []string `json:"missing_hashtags"`
	FoundMentions   []string `json:"found_mentions"`
	MissingMentions []string `json:"missing_mentions"`
}

// VerifyPost fetches the tweet behind postURL and checks it against the
// task criteria. The result always reports found and missing tokens for
// both sets, even when verification fails.
func (s *Service) VerifyPost(ctx context.Context, wallet, postURL string, crit PostCriteria) (*PostResult, error) {
	tweetID := parseTweetID(postURL)
	if tweetID == "" {
		return nil, errutil.BadRequest("post url does not contain a tweet id")
	}

	p, err := s.creds.ValidCredential(ctx, wallet)
	if err != nil {
		return nil, err
	}

	tweet, err := s.provider.GetTweet(ctx, p.AccessToken, tweetID)
	if err != nil {
		return nil, err
	}

	if tweet.AuthorID != p.TwitterID {
		return nil, errutil.Forbidden("post was not authored by the linked account")
	}

	hashtags, mentions := extractTokens(tweet.Text)

	res := &PostResult{TweetID: tweetID}
	res.FoundHashtags, res.MissingHashtags = diffRequired(crit.RequiredHashtags, hashtags, "#")
	res.FoundMentions, res.MissingMentions = diffRequired(crit.RequiredMentions, mentions, "@")

	res.Verified = len(res.MissingHashtags) == 0 && len(res.MissingMentions) == 0 &&
		(crit.MinChars <= 0 || len(tweet.Text) >= crit.MinChars)

	return res, nil
}

// VerifyCustom evaluates the task's CEL rule against the claim attributes.
// Rule errors surface as unprocessable rather than internal, a bad rule is
// campaign data, not a server fault.
func (s *Service) VerifyCustom(ctx context.Context, wallet, rule string, claim map[string]any) (bool, error) {
	if _, err := s.creds.ValidCredential(ctx, wallet); err != nil {
		return false, err
	}

	ok, err := s.eval.Evaluate(rule, claim)
	if err != nil {
		return false, errutil.UnprocessableEntity("custom rule evaluation failed", errutil.WithErr(err))
	}
	return ok, nil
}
