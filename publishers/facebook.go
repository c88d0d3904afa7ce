package publishers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"PostPilotAPI/config"
	"PostPilotAPI/models"
	"PostPilotAPI/utils"
)

// FacebookPublisher publishes page feed posts and stories through the Graph
// API. Media reaches Facebook by URL reference: the platform fetches the
// bytes itself from the post's public media URLs.
type FacebookPublisher struct {
	client     *http.Client
	baseURL    string
	maxRetries int
	retryDelay time.Duration
}

type facebookPageResponse struct {
	Data []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		AccessToken string `json:"access_token"`
	} `json:"data"`
}

type facebookIDResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

type facebookStoryStartResponse struct {
	VideoID   string `json:"video_id"`
	UploadURL string `json:"upload_url"`
}

type facebookStoryFinishResponse struct {
	Success bool   `json:"success"`
	PostID  string `json:"post_id"`
}

func NewFacebookPublisher(client *http.Client) *FacebookPublisher {
	if client == nil {
		client = newHTTPClient()
	}
	cfg := config.Load()
	return &FacebookPublisher{
		client:     client,
		baseURL:    "https://graph.facebook.com/" + cfg.FacebookVersion,
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
	}
}

func (f *FacebookPublisher) Publish(post *models.Post, cred *models.PlatformCredentials) models.PublishResult {
	if cred == nil || cred.AccessToken == "" {
		return models.PublishResult{
			Platform: models.Facebook,
			Success:  false,
			Message:  "Missing Facebook credentials",
		}
	}

	tokenValidator := utils.NewTokenValidator()
	if tokenValidator.IsTokenExpired(cred) {
		if err := tokenValidator.RefreshFacebookToken(cred); err != nil {
			return models.PublishResult{
				Platform: models.Facebook,
				Success:  false,
				Message:  fmt.Sprintf("Facebook token has expired and cannot be refreshed: %v", err),
			}
		}
	}

	pageAccessToken, pageID, err := f.resolvePageToken(cred)
	if err != nil {
		return models.PublishResult{
			Platform: models.Facebook,
			Success:  false,
			Message:  fmt.Sprintf("Error getting page access token: %v", err),
		}
	}

	var postID string
	if post.PostType == models.PostTypeStory {
		postID, err = f.publishStory(post, pageAccessToken, pageID)
	} else {
		postID, err = f.publishFeed(post, pageAccessToken, pageID)
	}

	if err != nil {
		return models.PublishResult{
			Platform: models.Facebook,
			Success:  false,
			Message:  fmt.Sprintf("Error publishing to Facebook: %v", err),
		}
	}

	return models.PublishResult{
		Platform: models.Facebook,
		Success:  true,
		Message:  "Published successfully on Facebook",
		PostID:   postID,
	}
}

// resolvePageToken looks up the page-scoped access token. When the lookup
// fails but the credential already names a page, the user token is used as a
// fallback with a warning instead of failing the post.
func (f *FacebookPublisher) resolvePageToken(cred *models.PlatformCredentials) (string, string, error) {
	pageToken, pageID, err := f.getPageAccessToken(cred.AccessToken)
	if err == nil {
		return pageToken, pageID, nil
	}

	if cred.PlatformPageID != "" {
		utils.Warnf("facebook page token lookup failed, falling back to user token page_id=%s err=%v", cred.PlatformPageID, err)
		return cred.AccessToken, cred.PlatformPageID, nil
	}

	return "", "", err
}

func (f *FacebookPublisher) getPageAccessToken(userAccessToken string) (string, string, error) {
	req, err := http.NewRequest(http.MethodGet, f.baseURL+"/me/accounts", nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", "Bearer "+userAccessToken)

	resp, err := fetchWithRetry(f.client, req, f.maxRetries, f.retryDelay)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		tokenValidator := utils.NewTokenValidator()
		if tokenValidator.IsFacebookTokenExpiredError(body) {
			return "", "", fmt.Errorf("access token has expired: %s", graphErrorMessage(body))
		}
		return "", "", &UpstreamError{
			Platform:   models.Facebook,
			StatusCode: resp.StatusCode,
			Message:    graphErrorMessage(body),
		}
	}

	var pageResp facebookPageResponse
	if err := json.Unmarshal(body, &pageResp); err != nil {
		return "", "", err
	}
	if len(pageResp.Data) == 0 {
		return "", "", fmt.Errorf("no Facebook pages found for this account")
	}

	// Use the first page.
	page := pageResp.Data[0]
	return page.AccessToken, page.ID, nil
}

func (f *FacebookPublisher) publishFeed(post *models.Post, pageAccessToken, pageID string) (string, error) {
	switch {
	case len(post.Media) == 0:
		return f.publishTextOnly(post, pageAccessToken, pageID)
	case len(post.Media) == 1 && post.Media[0].Type == models.MediaVideo:
		return f.publishVideo(post, pageAccessToken, pageID)
	case len(post.Media) == 1:
		return f.publishSinglePhoto(post, pageAccessToken, pageID)
	case post.HasVideo():
		return "", &ValidationError{Platform: models.Facebook, Reason: "Facebook multi-media posts cannot include videos"}
	default:
		return f.publishMultiplePhotos(post, pageAccessToken, pageID)
	}
}

func (f *FacebookPublisher) publishTextOnly(post *models.Post, pageAccessToken, pageID string) (string, error) {
	params := url.Values{}
	params.Set("message", post.Content)

	body, err := f.graphPost(fmt.Sprintf("/%s/feed", pageID), pageAccessToken, params)
	if err != nil {
		return "", err
	}
	return parseFacebookID(body)
}

func (f *FacebookPublisher) publishSinglePhoto(post *models.Post, pageAccessToken, pageID string) (string, error) {
	return f.uploadPhoto(post.Media[0], pageAccessToken, pageID, true, post.Content)
}

func (f *FacebookPublisher) publishVideo(post *models.Post, pageAccessToken, pageID string) (string, error) {
	params := url.Values{}
	params.Set("file_url", post.Media[0].URL)
	params.Set("description", post.Content)

	body, err := f.graphPost(fmt.Sprintf("/%s/videos", pageID), pageAccessToken, params)
	if err != nil {
		return "", err
	}
	return parseFacebookID(body)
}

// publishMultiplePhotos uploads every photo unpublished with bounded
// concurrency, then creates one feed post referencing them all.
func (f *FacebookPublisher) publishMultiplePhotos(post *models.Post, pageAccessToken, pageID string) (string, error) {
	photoIDs := []string{}
	var mu sync.Mutex
	sem := make(chan struct{}, 4)
	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	for _, media := range post.Media {
		m := media
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			photoID, err := f.uploadPhoto(m, pageAccessToken, pageID, false, "")
			if err != nil {
				select {
				case errCh <- err:
				default:
				}
				return
			}
			mu.Lock()
			photoIDs = append(photoIDs, photoID)
			mu.Unlock()
		}()
	}
	wg.Wait()
	select {
	case e := <-errCh:
		return "", e
	default:
	}

	params := url.Values{}
	params.Set("message", post.Content)
	attachedMedia := make([]map[string]string, 0, len(photoIDs))
	for _, photoID := range photoIDs {
		attachedMedia = append(attachedMedia, map[string]string{"media_fbid": photoID})
	}
	attached, err := json.Marshal(attachedMedia)
	if err != nil {
		return "", err
	}
	params.Set("attached_media", string(attached))

	body, err := f.graphPost(fmt.Sprintf("/%s/feed", pageID), pageAccessToken, params)
	if err != nil {
		return "", err
	}
	return parseFacebookID(body)
}

// uploadPhoto creates a page photo from the media's public URL. When
// published is false the photo is staged for later attachment.
func (f *FacebookPublisher) uploadPhoto(media *models.Media, pageAccessToken, pageID string, published bool, message string) (string, error) {
	params := url.Values{}
	params.Set("url", media.URL)
	if message != "" {
		params.Set("message", message)
	}
	if !published {
		params.Set("published", "false")
	}

	body, err := f.graphPost(fmt.Sprintf("/%s/photos", pageID), pageAccessToken, params)
	if err != nil {
		return "", err
	}
	return parseFacebookID(body)
}

func (f *FacebookPublisher) publishStory(post *models.Post, pageAccessToken, pageID string) (string, error) {
	if len(post.Media) != 1 {
		return "", &ValidationError{Platform: models.Facebook, Reason: "Facebook stories require exactly one media item"}
	}

	if post.Media[0].Type == models.MediaVideo {
		return f.publishVideoStory(post, pageAccessToken, pageID)
	}
	return f.publishPhotoStory(post, pageAccessToken, pageID)
}

// publishPhotoStory uploads the photo unpublished, then creates a story
// referencing the photo id.
func (f *FacebookPublisher) publishPhotoStory(post *models.Post, pageAccessToken, pageID string) (string, error) {
	photoID, err := f.uploadPhoto(post.Media[0], pageAccessToken, pageID, false, "")
	if err != nil {
		return "", fmt.Errorf("uploading story photo: %w", err)
	}

	params := url.Values{}
	params.Set("photo_id", photoID)

	body, err := f.graphPost(fmt.Sprintf("/%s/photo_stories", pageID), pageAccessToken, params)
	if err != nil {
		return "", err
	}

	var storyResp facebookStoryFinishResponse
	if err := json.Unmarshal(body, &storyResp); err != nil {
		return "", fmt.Errorf("parsing photo story response: %w", err)
	}
	if storyResp.PostID != "" {
		return storyResp.PostID, nil
	}
	return parseFacebookID(body)
}

// publishVideoStory runs the three-phase video_stories flow: start the
// upload session, hand the hosted file URL to the upload endpoint, finish.
func (f *FacebookPublisher) publishVideoStory(post *models.Post, pageAccessToken, pageID string) (string, error) {
	startParams := url.Values{}
	startParams.Set("upload_phase", "start")

	body, err := f.graphPost(fmt.Sprintf("/%s/video_stories", pageID), pageAccessToken, startParams)
	if err != nil {
		return "", fmt.Errorf("starting video story upload: %w", err)
	}

	var startResp facebookStoryStartResponse
	if err := json.Unmarshal(body, &startResp); err != nil {
		return "", fmt.Errorf("parsing video story start response: %w", err)
	}
	if startResp.VideoID == "" || startResp.UploadURL == "" {
		return "", fmt.Errorf("video story start returned no upload session")
	}

	if err := f.uploadStoryVideoByURL(startResp.UploadURL, post.Media[0].URL, pageAccessToken); err != nil {
		return "", fmt.Errorf("uploading story video: %w", err)
	}

	finishParams := url.Values{}
	finishParams.Set("upload_phase", "finish")
	finishParams.Set("video_id", startResp.VideoID)
	if post.Content != "" {
		finishParams.Set("description", post.Content)
	}

	body, err = f.graphPost(fmt.Sprintf("/%s/video_stories", pageID), pageAccessToken, finishParams)
	if err != nil {
		return "", fmt.Errorf("finishing video story: %w", err)
	}

	var finishResp facebookStoryFinishResponse
	if err := json.Unmarshal(body, &finishResp); err != nil {
		return "", fmt.Errorf("parsing video story finish response: %w", err)
	}
	if finishResp.PostID != "" {
		return finishResp.PostID, nil
	}
	return startResp.VideoID, nil
}

// uploadStoryVideoByURL points the upload session at the hosted file. The
// upload host fetches the bytes itself; no video data moves through here.
func (f *FacebookPublisher) uploadStoryVideoByURL(uploadURL, fileURL, pageAccessToken string) error {
	req, err := http.NewRequest(http.MethodPost, uploadURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "OAuth "+pageAccessToken)
	req.Header.Set("file_url", fileURL)

	resp, err := fetchWithRetry(f.client, req, f.maxRetries, f.retryDelay)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &UpstreamError{
			Platform:   models.Facebook,
			StatusCode: resp.StatusCode,
			Message:    graphErrorMessage(body),
		}
	}
	return nil
}

func (f *FacebookPublisher) graphPost(path, accessToken string, params url.Values) ([]byte, error) {
	req, err := http.NewRequest(http.MethodPost, f.baseURL+path, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := fetchWithRetry(f.client, req, f.maxRetries, f.retryDelay)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{
			Platform:   models.Facebook,
			StatusCode: resp.StatusCode,
			Message:    graphErrorMessage(body),
		}
	}

	return body, nil
}

func parseFacebookID(body []byte) (string, error) {
	var idResp facebookIDResponse
	if err := json.Unmarshal(body, &idResp); err != nil {
		return "", fmt.Errorf("parsing Facebook response: %w", err)
	}
	if idResp.PostID != "" {
		return idResp.PostID, nil
	}
	if idResp.ID == "" {
		return "", fmt.Errorf("Facebook returned an empty post id")
	}
	return idResp.ID, nil
}
