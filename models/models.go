package models

import "time"

type Platform string

const (
	Twitter   Platform = "twitter"
	Facebook  Platform = "facebook"
	LinkedIn  Platform = "linkedin"
	Instagram Platform = "instagram"
	TikTok    Platform = "tiktok"
	YouTube   Platform = "youtube"
)

// AllPlatforms lists every platform the publishing subsystem supports,
// in the order they are shown to clients.
var AllPlatforms = []Platform{Twitter, Facebook, LinkedIn, Instagram, TikTok, YouTube}

type PostStatus string

const (
	StatusDraft      PostStatus = "draft"
	StatusScheduled  PostStatus = "scheduled"
	StatusPublishing PostStatus = "publishing"
	StatusPublished  PostStatus = "published"
	StatusFailed     PostStatus = "failed"
)

type PostType string

const (
	PostTypeNormal PostType = "normal"
	PostTypeShort  PostType = "short"
	PostTypeStory  PostType = "story"
)

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Media struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Filename     string    `json:"filename"`
	Path         string    `json:"path"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	Type         MediaType `json:"type"`
	Size         int64     `json:"size"`
	MimeType     string    `json:"mime_type"`
	CreatedAt    time.Time `json:"created_at"`
}

// Post is the normalized publish request every platform publisher consumes:
// caption text, an ordered media list and an optional scheduling intent.
type Post struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Content      string     `json:"content"`
	PostType     PostType   `json:"post_type"`
	PrivacyLevel string     `json:"privacy_level,omitempty"`
	MediaIDs     []string   `json:"media_ids,omitempty"`
	Media        []*Media   `json:"media,omitempty"`
	Platforms    []Platform `json:"platforms"`
	Status       PostStatus `json:"status"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// HasVideo reports whether any media item on the post is a video.
func (p *Post) HasVideo() bool {
	return p.VideoCount() > 0
}

// VideoCount returns the number of video media items on the post.
func (p *Post) VideoCount() int {
	n := 0
	for _, m := range p.Media {
		if m.Type == MediaVideo {
			n++
		}
	}
	return n
}

// PlatformCredentials holds already-resolved tokens for one user+platform pair.
// Token acquisition happens outside this service; publishers treat these as
// valid input and may self-validate where the platform supports it cheaply.
type PlatformCredentials struct {
	ID           string   `json:"id"`
	UserID       string   `json:"user_id"`
	Platform     Platform `json:"platform"`
	AccessToken  string   `json:"-"`
	RefreshToken string   `json:"-"`
	// OAuth1Token/Secret carry the OAuth 1.0a token pair for platforms that
	// still sign legacy endpoints with it (the X v1.1 chunked video upload).
	OAuth1Token string     `json:"-"`
	Secret      string     `json:"-"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	TokenType   string     `json:"token_type"`
	// Platform-specific identity the publish endpoints are addressed to.
	PlatformUserID string    `json:"platform_user_id,omitempty"`
	PlatformPageID string    `json:"platform_page_id,omitempty"`
	BusinessID     string    `json:"business_id,omitempty"`
	OrganizationID string    `json:"organization_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PublishResult is the single outcome of one platform publish attempt.
// Constructed once, returned once, never partially mutated.
type PublishResult struct {
	Platform Platform `json:"platform"`
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	PostID   string   `json:"post_id,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type PublishResponse struct {
	PostID  string          `json:"post_id"`
	Results []PublishResult `json:"results"`
}

type UploadResponse struct {
	Media *Media `json:"media"`
}
