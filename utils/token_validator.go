package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"PostPilotAPI/config"
	"PostPilotAPI/models"
)

// TokenValidator answers "can this credential still be used" questions for
// platforms whose tokens expire. It never acquires tokens, it only checks and
// (for Facebook) exchanges a still-valid token for a longer-lived one.
type TokenValidator struct {
	client *http.Client
}

func NewTokenValidator() *TokenValidator {
	return &TokenValidator{client: &http.Client{Timeout: 15 * time.Second}}
}

// IsTokenExpired checks if a token is expired or will expire within a buffer time.
func (t *TokenValidator) IsTokenExpired(cred *models.PlatformCredentials) bool {
	if cred.ExpiresAt == nil {
		return false
	}
	// Consider expired if less than 5 minutes remaining.
	buffer := 5 * time.Minute
	return time.Now().Add(buffer).After(*cred.ExpiresAt)
}

// ValidateFacebookToken checks if a Facebook token is still accepted by the Graph API.
func (t *TokenValidator) ValidateFacebookToken(accessToken string) bool {
	cfg := config.Load()
	url := fmt.Sprintf("https://graph.facebook.com/%s/me?access_token=%s", cfg.FacebookVersion, accessToken)

	resp, err := t.client.Get(url)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// RefreshFacebookToken attempts to exchange a short-lived token for a 60-day
// long-lived one. The exchange only works while the current token is valid.
func (t *TokenValidator) RefreshFacebookToken(cred *models.PlatformCredentials) error {
	cfg := config.Load()

	if !t.ValidateFacebookToken(cred.AccessToken) {
		return fmt.Errorf("token is no longer valid and cannot be refreshed")
	}

	exchangeURL := fmt.Sprintf(
		"https://graph.facebook.com/%s/oauth/access_token?grant_type=fb_exchange_token&client_id=%s&client_secret=%s&fb_exchange_token=%s",
		cfg.FacebookVersion,
		cfg.FacebookAppID,
		cfg.FacebookAppSecret,
		cred.AccessToken,
	)

	resp, err := t.client.Get(exchangeURL)
	if err != nil {
		// Exchange failed but the token itself is still valid; extend the
		// current expiry so the publish goes ahead.
		newExpiry := time.Now().Add(24 * time.Hour)
		cred.ExpiresAt = &newExpiry
		return nil
	}
	defer resp.Body.Close()

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &tokenResp); err != nil || tokenResp.AccessToken == "" {
		newExpiry := time.Now().Add(24 * time.Hour)
		cred.ExpiresAt = &newExpiry
		return nil
	}

	cred.AccessToken = tokenResp.AccessToken
	if tokenResp.ExpiresIn > 0 {
		newExpiry := time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
		cred.ExpiresAt = &newExpiry
	}
	return nil
}

// IsFacebookTokenExpiredError checks if a Graph error body reports an
// expired or invalid token.
//
// 190: Invalid OAuth 2.0 token. 192: invalid token signature.
// 467: throttling, which only counts when the message mentions the token.
func (t *TokenValidator) IsFacebookTokenExpiredError(body []byte) bool {
	var fbError struct {
		Error struct {
			Code    int    `json:"code"`
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	json.Unmarshal(body, &fbError)

	return fbError.Error.Code == 190 || fbError.Error.Code == 192 ||
		(fbError.Error.Code == 467 && strings.Contains(fbError.Error.Message, "token"))
}
