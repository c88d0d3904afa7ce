package publishers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"PostPilotAPI/models"
	"PostPilotAPI/utils"
)

// TikTokPublisher posts videos through the TikTok Content Posting API using
// the PULL_FROM_URL source: TikTok downloads the video from the post's public
// media URL, and the publisher polls the publish status until terminal.
type TikTokPublisher struct {
	client     *http.Client
	baseURL    string
	poller     *StatusPoller
	maxRetries int
	retryDelay time.Duration
}

type tiktokInitResponse struct {
	Data struct {
		PublishID string `json:"publish_id"`
	} `json:"data"`
	Error tiktokError `json:"error"`
}

type tiktokStatusResponse struct {
	Data struct {
		Status     string `json:"status"`
		FailReason string `json:"fail_reason"`
	} `json:"data"`
	Error tiktokError `json:"error"`
}

type tiktokError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewTikTokPublisher(client *http.Client) *TikTokPublisher {
	if client == nil {
		client = newHTTPClient()
	}
	return &TikTokPublisher{
		client:     client,
		baseURL:    "https://open.tiktokapis.com",
		poller:     NewStatusPoller(20, 5*time.Second),
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
	}
}

func (t *TikTokPublisher) Publish(post *models.Post, cred *models.PlatformCredentials) models.PublishResult {
	if cred == nil || cred.AccessToken == "" {
		return models.PublishResult{
			Platform: models.TikTok,
			Success:  false,
			Message:  "Missing TikTok credentials",
		}
	}

	var video *models.Media
	for _, media := range post.Media {
		if media.Type == models.MediaVideo {
			video = media
			break
		}
	}
	if video == nil {
		return models.PublishResult{
			Platform: models.TikTok,
			Success:  false,
			Message:  "TikTok requires a video",
		}
	}

	publishID, err := t.initDirectPost(post, video, cred.AccessToken)
	if err != nil {
		return models.PublishResult{
			Platform: models.TikTok,
			Success:  false,
			Message:  fmt.Sprintf("Error publishing to TikTok: %v", err),
		}
	}

	if err := t.waitForPublish(publishID, cred.AccessToken); err != nil {
		return models.PublishResult{
			Platform: models.TikTok,
			Success:  false,
			Message:  fmt.Sprintf("TikTok publish did not complete: %v", err),
		}
	}

	return models.PublishResult{
		Platform: models.TikTok,
		Success:  true,
		Message:  "Published successfully on TikTok",
		PostID:   publishID,
	}
}

func (t *TikTokPublisher) initDirectPost(post *models.Post, video *models.Media, accessToken string) (string, error) {
	payload := map[string]interface{}{
		"post_info": map[string]interface{}{
			"title":         post.Content,
			"privacy_level": tiktokPrivacyLevel(post.PrivacyLevel),
		},
		"source_info": map[string]interface{}{
			"source":    "PULL_FROM_URL",
			"video_url": video.URL,
		},
	}

	body, err := t.apiPost("/v2/post/publish/video/init/", accessToken, payload)
	if err != nil {
		return "", err
	}

	var initResp tiktokInitResponse
	if err := json.Unmarshal(body, &initResp); err != nil {
		return "", fmt.Errorf("parsing init response: %w", err)
	}
	if initResp.Error.Code != "" && initResp.Error.Code != "ok" {
		return "", fmt.Errorf("%s", initResp.Error.Message)
	}
	if initResp.Data.PublishID == "" {
		return "", fmt.Errorf("TikTok returned an empty publish id")
	}

	utils.Debugf("tiktok direct post initialized publish_id=%s", initResp.Data.PublishID)
	return initResp.Data.PublishID, nil
}

// waitForPublish polls the publish status until TikTok finishes pulling and
// processing the video.
func (t *TikTokPublisher) waitForPublish(publishID, accessToken string) error {
	_, err := t.poller.WaitForReady(fmt.Sprintf("tiktok publish %s", publishID), func() (ProcessingStatus, error) {
		body, err := t.apiPost("/v2/post/publish/status/fetch/", accessToken, map[string]string{
			"publish_id": publishID,
		})
		if err != nil {
			return ProcessingStatus{}, err
		}

		var statusResp tiktokStatusResponse
		if err := json.Unmarshal(body, &statusResp); err != nil {
			return ProcessingStatus{}, fmt.Errorf("parsing status response: %w", err)
		}
		if statusResp.Error.Code != "" && statusResp.Error.Code != "ok" {
			return ProcessingStatus{}, fmt.Errorf("%s", statusResp.Error.Message)
		}

		switch statusResp.Data.Status {
		case "PUBLISH_COMPLETE":
			return ProcessingStatus{State: ProcessingSucceeded}, nil
		case "FAILED":
			return ProcessingStatus{State: ProcessingFailed, Detail: statusResp.Data.FailReason}, nil
		case "PROCESSING_DOWNLOAD", "PROCESSING_UPLOAD", "SEND_TO_USER_INBOX":
			return ProcessingStatus{State: ProcessingInProgress}, nil
		default:
			return ProcessingStatus{State: ProcessingPending}, nil
		}
	})
	return err
}

func (t *TikTokPublisher) apiPost(path, accessToken string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, t.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := fetchWithRetry(t.client, req, t.maxRetries, t.retryDelay)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{
			Platform:   models.TikTok,
			StatusCode: resp.StatusCode,
			Message:    tiktokErrorMessage(body),
		}
	}

	return body, nil
}

func tiktokPrivacyLevel(privacy string) string {
	switch strings.ToLower(privacy) {
	case "public", "":
		return "PUBLIC_TO_EVERYONE"
	case "friends":
		return "MUTUAL_FOLLOW_FRIENDS"
	default:
		return "SELF_ONLY"
	}
}

func tiktokErrorMessage(body []byte) string {
	var errResp struct {
		Error tiktokError `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	return string(body)
}
