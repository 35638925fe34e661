package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"questplane/pkg/config"
	"questplane/pkg/errutil"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// followingPageCap bounds how many following entries a follow check will
// walk before giving up. Matches the provider's 1000-entries-per-page limit.
const followingPageCap = 1000

var Module = fx.Module("twitter",
	fx.Provide(NewClient),
)

// API is the social-platform contract the verifier and credential
// lifecycle depend on. Implementations must distinguish authentication
// failures (Unauthorized) from upstream outages (BadGateway).
type API interface {
	Me(ctx context.Context, accessToken string) (*User, error)
	ResolveUsername(ctx context.Context, accessToken, username string) (*User, error)
	ListFollowing(ctx context.Context, accessToken, userID string) ([]string, error)
	GetTweet(ctx context.Context, accessToken, tweetID string) (*Tweet, error)
	AuthCodeURL(state, verifier string) string
	ExchangeAuthCode(ctx context.Context, code, verifier string) (*Token, error)
	RefreshToken(ctx context.Context, refreshToken string) (*Token, error)
}

type Client struct {
	http    *http.Client
	baseURL string
	oauth   *oauth2.Config
}

func NewClient(cfg *config.Config) API {
	return &Client{
		http:    &http.Client{Timeout: cfg.Twitter.Timeout},
		baseURL: cfg.Twitter.APIBaseURL,
		oauth: &oauth2.Config{
			ClientID:     cfg.Twitter.ClientID,
			ClientSecret: cfg.Twitter.ClientSecret,
			RedirectURL:  cfg.Twitter.RedirectURL,
			Scopes:       []string{"tweet.read", "users.read", "follows.read", "offline.access"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://twitter.com/i/oauth2/authorize",
				TokenURL: cfg.Twitter.APIBaseURL + "/2/oauth2/token",
			},
		},
	}
}

func (c *Client) AuthCodeURL(state, verifier string) string {
	return c.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

func (c *Client) ExchangeAuthCode(ctx context.Context, code, verifier string) (*Token, error) {
	tok, err := c.oauth.Exchange(c.oauthContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, errutil.Unauthorized("authorization code exchange failed", errutil.WithErr(err))
	}
	return fromOauth2Token(tok), nil
}

func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	src := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, errutil.Unauthorized("token refresh failed", errutil.WithErr(err))
	}
	return fromOauth2Token(tok), nil
}

// oauthContext routes the token-endpoint round trips through the
// timeout-bounded client instead of http.DefaultClient.
func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

func fromOauth2Token(tok *oauth2.Token) *Token {
	out := &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		out.ExpiresIn = int64(time.Until(tok.Expiry).Seconds())
	}
	return out
}

func (c *Client) Me(ctx context.Context, accessToken string) (*User, error) {
	var resp struct {
		Data User `json:"data"`
	}
	q := url.Values{"user.fields": {"profile_image_url"}}
	if err := c.get(ctx, accessToken, "/2/users/me", q, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func (c *Client) ResolveUsername(ctx context.Context, accessToken, username string) (*User, error) {
	var resp struct {
		Data User `json:"data"`
	}
	path := "/2/users/by/username/" + url.PathEscape(username)
	if err := c.get(ctx, accessToken, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Data.ID == "" {
		return nil, errutil.NotFound(fmt.Sprintf("user %q not found", username))
	}
	return &resp.Data, nil
}

// ListFollowing returns the IDs the given user follows, paginated up to
// followingPageCap entries.
func (c *Client) ListFollowing(ctx context.Context, accessToken, userID string) ([]string, error) {
	ids := make([]string, 0, 100)
	paginationToken := ""

	for len(ids) < followingPageCap {
		var resp struct {
			Data []User `json:"data"`
			Meta struct {
				NextToken string `json:"next_token"`
			} `json:"meta"`
		}

		q := url.Values{"max_results": {"100"}}
		if paginationToken != "" {
			q.Set("pagination_token", paginationToken)
		}

		path := "/2/users/" + url.PathEscape(userID) + "/following"
		if err := c.get(ctx, accessToken, path, q, &resp); err != nil {
			return nil, err
		}

		for _, u := range resp.Data {
			ids = append(ids, u.ID)
		}
		if len(ids) >= followingPageCap {
			ids = ids[:followingPageCap]
			break
		}

		if resp.Meta.NextToken == "" {
			break
		}
		paginationToken = resp.Meta.NextToken
	}

	return ids, nil
}

func (c *Client) GetTweet(ctx context.Context, accessToken, tweetID string) (*Tweet, error) {
	var resp struct {
		Data Tweet `json:"data"`
	}
	q := url.Values{"tweet.fields": {"author_id,created_at,text"}}
	path := "/2/tweets/" + url.PathEscape(tweetID)
	if err := c.get(ctx, accessToken, path, q, &resp); err != nil {
		return nil, err
	}
	if resp.Data.ID == "" {
		return nil, errutil.NotFound(fmt.Sprintf("tweet %s not found", tweetID))
	}
	return &resp.Data, nil
}

func (c *Client) get(ctx context.Context, accessToken, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errutil.Internal("build twitter request", errutil.WithErr(err))
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	res, err := c.http.Do(req)
	if err != nil {
		return errutil.BadGateway("twitter api unreachable", errutil.WithErr(err))
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return errutil.Unauthorized("twitter rejected the access token")
	case res.StatusCode == http.StatusNotFound:
		return errutil.NotFound("twitter resource not found")
	case res.StatusCode >= 400:
		zap.L().Warn("twitter api error", zap.String("path", path), zap.Int("status", res.StatusCode))
		return errutil.BadGateway(fmt.Sprintf("twitter api returned %d", res.StatusCode))
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return errutil.BadGateway("decode twitter response", errutil.WithErr(err))
	}

	return nil
}
