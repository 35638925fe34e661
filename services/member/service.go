package member

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"questplane/pkg/errutil"
	"questplane/pkg/twitter"
	"questplane/pkg/util"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	stateKeyPrefix = "member:oauth_state:"
	stateTTL       = 10 * time.Minute

	// expiry leeway so a token is refreshed slightly before the
	// provider would start rejecting it
	expirySkew = 30 * time.Second

	defaultExpiresIn = 7200 * time.Second
)

type Service struct {
	db       *gorm.DB
	states   stateStore
	provider twitter.API

	refreshGroup singleflight.Group
}

type ServiceParams struct {
	fx.In

	DB       *gorm.DB
	Redis    *redis.Client
	Provider twitter.API
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		states:   &redisStateStore{rdb: p.Redis},
		provider: p.Provider,
	}
}

// stateStore holds pending OAuth handshakes. Consume removes the envelope
// so a state token can only be redeemed once.
type stateStore interface {
	Save(ctx context.Context, state string, envelope []byte, ttl time.Duration) error
	Consume(ctx context.Context, state string) ([]byte, error)
}

type redisStateStore struct {
	rdb *redis.Client
}

func (s *redisStateStore) Save(ctx context.Context, state string, envelope []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, stateKeyPrefix+state, envelope, ttl).Err()
}

func (s *redisStateStore) Consume(ctx context.Context, state string) ([]byte, error) {
	raw, err := s.rdb.GetDel(ctx, stateKeyPrefix+state).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return raw, err
}

// CanonicalWallet lower-cases a wallet address. All member rows are keyed
// on the canonical form.
func CanonicalWallet(wallet string) string {
	return strings.ToLower(strings.TrimSpace(wallet))
}

// GetOrCreateProfile lazily creates the profile row on first touch.
func (s *Service) GetOrCreateProfile(ctx context.Context, wallet string) (*UserProfile, error) {
	wallet = CanonicalWallet(wallet)
	if wallet == "" {
		return nil, errutil.ValidationFailed("wallet is required")
	}

	p := &UserProfile{Wallet: wallet}
	if err := s.db.WithContext(ctx).
		Where(&UserProfile{Wallet: wallet}).
		FirstOrCreate(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

type linkState struct {
	Wallet   string `json:"wallet"`
	Verifier string `json:"verifier"`
}

// BeginLink starts the twitter OAuth handshake. The state token and the
// PKCE verifier live in redis until the callback lands or the TTL expires.
func (s *Service) BeginLink(ctx context.Context, wallet string) (string, error) {
	p, err := s.GetOrCreateProfile(ctx, wallet)
	if err != nil {
		return "", err
	}

	state := util.GenerateStateToken()
	ls := linkState{Wallet: p.Wallet, Verifier: oauth2.GenerateVerifier()}

	envelope, err := json.Marshal(ls)
	if err != nil {
		return "", errutil.Internal("marshal oauth state", errutil.WithErr(err))
	}
	if err := s.states.Save(ctx, state, envelope, stateTTL); err != nil {
		zap.L().Error("failed to store oauth state", zap.Error(err))
		return "", errutil.Internal("store oauth state", errutil.WithErr(err))
	}

	return s.provider.AuthCodeURL(state, ls.Verifier), nil
}

// CompleteLink consumes the state token, exchanges the authorization code
// and binds the twitter identity to the wallet.
func (s *Service) CompleteLink(ctx context.Context, state, code string) (*UserProfile, error) {
	raw, err := s.states.Consume(ctx, state)
	if err != nil {
		return nil, errutil.Internal("load oauth state", errutil.WithErr(err))
	}
	if raw == nil {
		return nil, errutil.Unauthorized("unknown or expired oauth state")
	}

	var ls linkState
	if err := json.Unmarshal(raw, &ls); err != nil {
		return nil, errutil.Internal("decode oauth state", errutil.WithErr(err))
	}

	tok, err := s.provider.ExchangeAuthCode(ctx, code, ls.Verifier)
	if err != nil {
		zap.L().Warn("oauth code exchange failed", zap.String("wallet", ls.Wallet), zap.Error(err))
		return nil, errutil.Unauthorized("authorization code exchange failed", errutil.WithErr(err))
	}

	user, err := s.provider.Me(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}

	p, err := s.GetOrCreateProfile(ctx, ls.Wallet)
	if err != nil {
		return nil, err
	}

	p.TwitterID = user.ID
	p.TwitterUsername = user.Username
	p.DisplayName = user.Name
	p.AvatarURL = user.ProfileImageURL
	p.AccessToken = tok.AccessToken
	p.RefreshToken = tok.RefreshToken
	p.TokenExpiresAt = expiresAt(tok.ExpiresIn)

	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(p).Error; err != nil {
		return nil, err
	}

	zap.L().Info("twitter account linked",
		zap.String("wallet", p.Wallet),
		zap.String("twitter_username", p.TwitterUsername),
	)
	return p, nil
}

// Unlink clears the twitter identity and credential. The profile row and
// its score survive.
func (s *Service) Unlink(ctx context.Context, wallet string) error {
	wallet = CanonicalWallet(wallet)
	return s.db.WithContext(ctx).Model(&UserProfile{}).
		Where("wallet = ?", wallet).
		Updates(map[string]any{
			"twitter_id":       "",
			"twitter_username": "",
			"access_token":     "",
			"refresh_token":    "",
			"token_expires_at": time.Time{},
		}).Error
}

// ValidCredential returns a profile whose access token is good to use
// against the provider, refreshing it first when it has expired.
// Concurrent callers for the same wallet share a single refresh.
func (s *Service) ValidCredential(ctx context.Context, wallet string) (*UserProfile, error) {
	wallet = CanonicalWallet(wallet)

	p, err := s.getLinked(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if !expired(p.TokenExpiresAt) {
		return p, nil
	}

	fresh, err, _ := s.refreshGroup.Do(wallet, func() (any, error) {
		return s.refreshCredential(ctx, wallet)
	})
	if err != nil {
		return nil, err
	}
	return fresh.(*UserProfile), nil
}

func (s *Service) refreshCredential(ctx context.Context, wallet string) (*UserProfile, error) {
	// re-read under the flight: a concurrent caller may already have
	// refreshed this wallet
	p, err := s.getLinked(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if !expired(p.TokenExpiresAt) {
		return p, nil
	}
	if p.RefreshToken == "" {
		return nil, errutil.Unauthorized("twitter credential expired, relink required")
	}

	tok, err := s.provider.RefreshToken(ctx, p.RefreshToken)
	if err != nil {
		zap.L().Warn("twitter token refresh failed", zap.String("wallet", wallet), zap.Error(err))
		return nil, errutil.Unauthorized("twitter credential refresh failed", errutil.WithErr(err))
	}

	p.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		p.RefreshToken = tok.RefreshToken
	}
	p.TokenExpiresAt = expiresAt(tok.ExpiresIn)

	if err := s.db.WithContext(ctx).Model(&UserProfile{}).
		Where("wallet = ?", wallet).
		Updates(map[string]any{
			"access_token":     p.AccessToken,
			"refresh_token":    p.RefreshToken,
			"token_expires_at": p.TokenExpiresAt,
		}).Error; err != nil {
		return nil, err
	}

	return p, nil
}

func (s *Service) getLinked(ctx context.Context, wallet string) (*UserProfile, error) {
	var p UserProfile
	err := s.db.WithContext(ctx).Where("wallet = ?", wallet).First(&p).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errutil.Unauthorized("no twitter account linked to this wallet")
	}
	if err != nil {
		return nil, err
	}
	if !p.Linked() {
		return nil, errutil.Unauthorized("no twitter account linked to this wallet")
	}
	return &p, nil
}

// AddScore credits points atomically in the database.
func (s *Service) AddScore(ctx context.Context, wallet string, points int64) error {
	p, err := s.GetOrCreateProfile(ctx, wallet)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&UserProfile{}).
		Where("wallet = ?", p.Wallet).
		Update("score", gorm.Expr("score + ?", points)).Error
}

func (s *Service) GetProfile(ctx context.Context, wallet string) (*UserProfile, error) {
	var p UserProfile
	err := s.db.WithContext(ctx).Where("wallet = ?", CanonicalWallet(wallet)).First(&p).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errutil.NotFound("profile not found")
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func expired(expiresAt time.Time) bool {
	if expiresAt.IsZero() {
		return false
	}
	return time.Now().After(expiresAt.Add(-expirySkew))
}

func expiresAt(expiresIn int64) time.Time {
	d := time.Duration(expiresIn) * time.Second
	if d <= 0 {
		d = defaultExpiresIn
	}
	return time.Now().Add(d)
}
