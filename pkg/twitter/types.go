package twitter

import "time"

type User struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	Name            string `json:"name"`
	ProfileImageURL string `json:"profile_image_url"`
}

type Tweet struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Token is a provider access/refresh token pair. ExpiresIn is seconds
// until expiry as reported by the provider; zero means unreported.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}
