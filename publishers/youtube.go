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

// YouTubePublisher uploads videos through the YouTube Data API v3 resumable
// upload protocol: POST the metadata to open an upload session, then PUT the
// video bytes to the returned session URI.
type YouTubePublisher struct {
	client     *http.Client
	baseURL    string
	engine     *MediaTransferEngine
	maxRetries int
	retryDelay time.Duration
}

type youtubeErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Message string `json:"message"`
			Domain  string `json:"domain"`
			Reason  string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

type youtubeVideoSnippet struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	CategoryID  string   `json:"categoryId"`
}

type youtubeVideoStatus struct {
	PrivacyStatus           string `json:"privacyStatus"`
	SelfDeclaredMadeForKids bool   `json:"selfDeclaredMadeForKids"`
}

type youtubeVideoResource struct {
	Snippet *youtubeVideoSnippet `json:"snippet"`
	Status  *youtubeVideoStatus  `json:"status"`
}

type youtubeInsertResponse struct {
	ID      string `json:"id"`
	Snippet struct {
		Title string `json:"title"`
	} `json:"snippet"`
}

func NewYouTubePublisher(client *http.Client) *YouTubePublisher {
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	return &YouTubePublisher{
		client:     client,
		baseURL:    "https://www.googleapis.com",
		engine:     NewMediaTransferEngine(client),
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
	}
}

// Publish uploads the post's video. Short-form posts are published as
// YouTube Shorts.
func (y *YouTubePublisher) Publish(post *models.Post, cred *models.PlatformCredentials) models.PublishResult {
	if cred == nil || cred.AccessToken == "" {
		return models.PublishResult{
			Platform: models.YouTube,
			Success:  false,
			Message:  "Missing YouTube credentials",
		}
	}

	tokenValidator := utils.NewTokenValidator()
	if tokenValidator.IsTokenExpired(cred) {
		return models.PublishResult{
			Platform: models.YouTube,
			Success:  false,
			Message:  "YouTube token has expired. Please reconnect your account",
		}
	}

	var videoMedia *models.Media
	for _, media := range post.Media {
		if media.Type == models.MediaVideo {
			videoMedia = media
			break
		}
	}
	if videoMedia == nil {
		return models.PublishResult{
			Platform: models.YouTube,
			Success:  false,
			Message:  "YouTube requires a video attachment",
		}
	}

	isShort := post.PostType == models.PostTypeShort

	videoID, err := y.uploadVideo(post, videoMedia, cred.AccessToken, isShort)
	if err != nil {
		return models.PublishResult{
			Platform: models.YouTube,
			Success:  false,
			Message:  fmt.Sprintf("Error publishing to YouTube: %v", err),
		}
	}

	msg := "Published successfully on YouTube"
	if isShort {
		msg = "Published successfully as YouTube Short"
	}

	return models.PublishResult{
		Platform: models.YouTube,
		Success:  true,
		Message:  msg,
		PostID:   videoID,
	}
}

func (y *YouTubePublisher) uploadVideo(post *models.Post, media *models.Media, accessToken string, isShort bool) (string, error) {
	title := post.Content
	if len(title) > 100 {
		title = title[:100]
	}
	if title == "" {
		title = "Untitled"
	}

	// Prepend the #Shorts tag so YouTube recognises short-form uploads.
	tags := []string{}
	if isShort {
		tags = append(tags, "Shorts")
		if len(title) <= 92 {
			title = title + " #Shorts"
		}
	}

	resource := youtubeVideoResource{
		Snippet: &youtubeVideoSnippet{
			Title:       title,
			Description: post.Content,
			Tags:        tags,
			CategoryID:  "22", // "People & Blogs", safe default
		},
		Status: &youtubeVideoStatus{
			PrivacyStatus:           "public",
			SelfDeclaredMadeForKids: false,
		},
	}

	uploadURI, err := y.initiateResumableUpload(resource, accessToken)
	if err != nil {
		return "", fmt.Errorf("failed to initiate YouTube upload: %w", err)
	}

	data, err := y.engine.Download(context.Background(), media.URL, maxVideoUploadBytes)
	if err != nil {
		return "", fmt.Errorf("failed to download video for YouTube: %w", err)
	}

	videoID, err := y.uploadVideoBytes(uploadURI, data, media.MimeType)
	if err != nil {
		return "", fmt.Errorf("failed to upload video to YouTube: %w", err)
	}

	return videoID, nil
}

// initiateResumableUpload sends the metadata and returns the session URI.
func (y *YouTubePublisher) initiateResumableUpload(resource youtubeVideoResource, accessToken string) (string, error) {
	metadataJSON, err := json.Marshal(resource)
	if err != nil {
		return "", fmt.Errorf("failed to marshal video metadata: %w", err)
	}

	endpoint := y.baseURL + "/upload/youtube/v3/videos?uploadType=resumable&part=snippet,status"

	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(metadataJSON))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Upload-Content-Type", "video/*")

	resp, err := fetchWithRetry(y.client, req, y.maxRetries, y.retryDelay)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", &UpstreamError{
			Platform:   models.YouTube,
			StatusCode: resp.StatusCode,
			Message:    parseYouTubeError(body),
		}
	}

	uploadURI := resp.Header.Get("Location")
	if uploadURI == "" {
		return "", fmt.Errorf("youtube did not return a resumable upload URI")
	}

	return uploadURI, nil
}

func (y *YouTubePublisher) uploadVideoBytes(uploadURI string, data []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = "video/mp4"
	}

	req, err := http.NewRequest(http.MethodPut, uploadURI, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mimeType)

	resp, err := fetchWithRetry(y.client, req, y.maxRetries, y.retryDelay)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", &UpstreamError{
			Platform:   models.YouTube,
			StatusCode: resp.StatusCode,
			Message:    parseYouTubeError(body),
		}
	}

	var insertResp youtubeInsertResponse
	if err := json.Unmarshal(body, &insertResp); err != nil {
		return "", fmt.Errorf("failed to parse YouTube upload response: %w", err)
	}
	if insertResp.ID == "" {
		return "", fmt.Errorf("youtube returned empty video ID")
	}

	utils.Debugf("youtube video upload success video_id=%s", insertResp.ID)
	return insertResp.ID, nil
}

func parseYouTubeError(body []byte) string {
	var errResp youtubeErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		if errResp.Error.Message != "" {
			return errResp.Error.Message
		}
		if len(errResp.Error.Errors) > 0 {
			return errResp.Error.Errors[0].Message
		}
	}
	return string(body)
}
