package publishers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"PostPilotAPI/models"
	"PostPilotAPI/utils"
)

const linkedinMaxImageBytes = 10 << 20

// LinkedInPublisher shares posts through the LinkedIn REST API, posting as
// the member by default or as an organization when the credential carries an
// organization id.
type LinkedInPublisher struct {
	client     *http.Client
	baseURL    string
	engine     *MediaTransferEngine
	maxRetries int
	retryDelay time.Duration
}

type linkedinUserInfoResponse struct {
	Sub  string `json:"sub"`
	Name string `json:"name"`
}

type linkedinRegisterUploadResponse struct {
	Value struct {
		Asset           string `json:"asset"`
		UploadMechanism struct {
			Request struct {
				UploadURL string `json:"uploadUrl"`
			} `json:"com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"`
		} `json:"uploadMechanism"`
	} `json:"value"`
}

type linkedinShareResponse struct {
	ID string `json:"id"`
}

type linkedinErrorResponse struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func NewLinkedInPublisher(client *http.Client) *LinkedInPublisher {
	if client == nil {
		client = newHTTPClient()
	}
	return &LinkedInPublisher{
		client:     client,
		baseURL:    "https://api.linkedin.com",
		engine:     NewMediaTransferEngine(client),
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
	}
}

func (l *LinkedInPublisher) Publish(post *models.Post, cred *models.PlatformCredentials) models.PublishResult {
	if cred == nil || cred.AccessToken == "" {
		return models.PublishResult{
			Platform: models.LinkedIn,
			Success:  false,
			Message:  "Missing LinkedIn credentials",
		}
	}

	if post.Content == "" {
		return models.PublishResult{
			Platform: models.LinkedIn,
			Success:  false,
			Message:  "LinkedIn posts require text content",
		}
	}
	if post.HasVideo() {
		return models.PublishResult{
			Platform: models.LinkedIn,
			Success:  false,
			Message:  "LinkedIn video posts are not supported",
		}
	}

	author, err := l.resolveAuthor(cred)
	if err != nil {
		return models.PublishResult{
			Platform: models.LinkedIn,
			Success:  false,
			Message:  fmt.Sprintf("Error resolving LinkedIn author: %v", err),
		}
	}

	assets := make([]string, 0, len(post.Media))
	for _, media := range post.Media {
		asset, err := l.uploadImage(media, author, cred.AccessToken)
		if err != nil {
			return models.PublishResult{
				Platform: models.LinkedIn,
				Success:  false,
				Message:  fmt.Sprintf("Error uploading media to LinkedIn: %v", err),
			}
		}
		assets = append(assets, asset)
	}

	shareID, err := l.createShare(post.Content, author, assets, cred.AccessToken)
	if err != nil {
		return models.PublishResult{
			Platform: models.LinkedIn,
			Success:  false,
			Message:  fmt.Sprintf("Error publishing to LinkedIn: %v", err),
		}
	}

	return models.PublishResult{
		Platform: models.LinkedIn,
		Success:  true,
		Message:  "Published successfully on LinkedIn",
		PostID:   shareID,
	}
}

// resolveAuthor returns the URN the share is attributed to: the configured
// organization, or the member behind the token via userinfo.
func (l *LinkedInPublisher) resolveAuthor(cred *models.PlatformCredentials) (string, error) {
	if cred.OrganizationID != "" {
		return "urn:li:organization:" + cred.OrganizationID, nil
	}

	req, err := http.NewRequest(http.MethodGet, l.baseURL+"/v2/userinfo", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	resp, err := fetchWithRetry(l.client, req, l.maxRetries, l.retryDelay)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", &UpstreamError{
			Platform:   models.LinkedIn,
			StatusCode: resp.StatusCode,
			Message:    linkedinErrorMessage(body),
		}
	}

	var userInfo linkedinUserInfoResponse
	if err := json.Unmarshal(body, &userInfo); err != nil || userInfo.Sub == "" {
		return "", fmt.Errorf("could not resolve LinkedIn member id")
	}

	return "urn:li:person:" + userInfo.Sub, nil
}

// uploadImage registers an upload slot, then PUTs the image bytes to the
// returned upload URL. Returns the asset URN used in the share.
func (l *LinkedInPublisher) uploadImage(media *models.Media, author, accessToken string) (string, error) {
	registerPayload := map[string]interface{}{
		"registerUploadRequest": map[string]interface{}{
			"recipes": []string{"urn:li:digitalmediaRecipe:feedshare-image"},
			"owner":   author,
			"serviceRelationships": []map[string]string{
				{"relationshipType": "OWNER", "identifier": "urn:li:userGeneratedContent"},
			},
		},
	}

	body, err := l.restPost("/v2/assets?action=registerUpload", accessToken, registerPayload)
	if err != nil {
		return "", fmt.Errorf("registering upload: %w", err)
	}

	var registerResp linkedinRegisterUploadResponse
	if err := json.Unmarshal(body, &registerResp); err != nil {
		return "", fmt.Errorf("parsing registerUpload response: %w", err)
	}
	uploadURL := registerResp.Value.UploadMechanism.Request.UploadURL
	if uploadURL == "" || registerResp.Value.Asset == "" {
		return "", fmt.Errorf("registerUpload returned no upload slot")
	}

	data, err := l.engine.Download(context.Background(), media.URL, linkedinMaxImageBytes)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := fetchWithRetry(l.client, req, l.maxRetries, l.retryDelay)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return "", &UpstreamError{
			Platform:   models.LinkedIn,
			StatusCode: resp.StatusCode,
			Message:    linkedinErrorMessage(respBody),
		}
	}

	utils.Debugf("linkedin image uploaded asset=%s", registerResp.Value.Asset)
	return registerResp.Value.Asset, nil
}

func (l *LinkedInPublisher) createShare(content, author string, assets []string, accessToken string) (string, error) {
	shareMediaCategory := "NONE"
	media := make([]map[string]interface{}, 0, len(assets))
	if len(assets) > 0 {
		shareMediaCategory = "IMAGE"
		for _, asset := range assets {
			media = append(media, map[string]interface{}{
				"status": "READY",
				"media":  asset,
			})
		}
	}

	payload := map[string]interface{}{
		"author":         author,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]interface{}{
			"com.linkedin.ugc.ShareContent": map[string]interface{}{
				"shareCommentary":    map[string]string{"text": content},
				"shareMediaCategory": shareMediaCategory,
				"media":              media,
			},
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	body, err := l.restPost("/v2/ugcPosts", accessToken, payload)
	if err != nil {
		return "", err
	}

	var shareResp linkedinShareResponse
	if err := json.Unmarshal(body, &shareResp); err != nil {
		return "", fmt.Errorf("parsing share response: %w", err)
	}
	if shareResp.ID == "" {
		return "", fmt.Errorf("LinkedIn returned an empty share id")
	}
	return shareResp.ID, nil
}

func (l *LinkedInPublisher) restPost(path, accessToken string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, l.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := fetchWithRetry(l.client, req, l.maxRetries, l.retryDelay)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{
			Platform:   models.LinkedIn,
			StatusCode: resp.StatusCode,
			Message:    linkedinErrorMessage(body),
		}
	}

	return body, nil
}

func linkedinErrorMessage(body []byte) string {
	var errResp linkedinErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		return errResp.Message
	}
	return string(body)
}
