package publishers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"PostPilotAPI/config"
	"PostPilotAPI/models"
	"PostPilotAPI/utils"
)

const (
	twitterMaxImages = 4
	twitterMaxVideos = 1
)

// TwitterPublisher posts to X. Two authentication schemes coexist by design:
// the user's OAuth2 bearer token drives the v2 endpoints (token validation,
// image upload, tweet create) while the legacy v1.1 chunked video upload is
// signed per-request with OAuth 1.0a HMAC-SHA1. The schemes are kept as two
// separate capabilities; unifying them would obscure the signing rules the
// v1.1 protocol depends on.
type TwitterPublisher struct {
	client        *http.Client
	apiBaseURL    string
	uploadBaseURL string
	engine        *MediaTransferEngine
	poller        *StatusPoller
	maxRetries    int
	retryDelay    time.Duration
}

type twitterUserResponse struct {
	Data struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"data"`
}

type twitterMediaResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
	MediaIDString  string                 `json:"media_id_string"`
	ProcessingInfo *twitterProcessingInfo `json:"processing_info"`
}

type twitterProcessingInfo struct {
	State          string `json:"state"`
	CheckAfterSecs int    `json:"check_after_secs"`
	Error          struct {
		Message string `json:"message"`
	} `json:"error"`
}

type twitterStatusResponse struct {
	ProcessingInfo *twitterProcessingInfo `json:"processing_info"`
}

type twitterTweetRequest struct {
	Text  string             `json:"text"`
	Media *twitterTweetMedia `json:"media,omitempty"`
}

type twitterTweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type twitterTweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

func NewTwitterPublisher(client *http.Client) *TwitterPublisher {
	if client == nil {
		client = newHTTPClient()
	}
	return &TwitterPublisher{
		client:        client,
		apiBaseURL:    "https://api.twitter.com",
		uploadBaseURL: "https://upload.twitter.com",
		engine:        NewMediaTransferEngine(client),
		poller:        NewStatusPoller(15, 5*time.Second),
		maxRetries:    defaultMaxRetries,
		retryDelay:    defaultRetryDelay,
	}
}

func (t *TwitterPublisher) Publish(post *models.Post, cred *models.PlatformCredentials) models.PublishResult {
	if cred == nil || cred.AccessToken == "" {
		return models.PublishResult{
			Platform: models.Twitter,
			Success:  false,
			Message:  "Missing Twitter credentials",
		}
	}

	if err := t.validate(post); err != nil {
		return models.PublishResult{
			Platform: models.Twitter,
			Success:  false,
			Message:  err.Error(),
		}
	}

	// Validate the token before moving any media bytes: an invalid token
	// fails fast instead of after a multi-hundred-megabyte upload.
	if err := t.validateToken(cred.AccessToken); err != nil {
		return models.PublishResult{
			Platform: models.Twitter,
			Success:  false,
			Message:  fmt.Sprintf("Twitter token validation failed: %v", err),
		}
	}

	// Any single media failure aborts the whole post. Publishing with a
	// subset of the declared media is never acceptable.
	mediaIDs, err := t.uploadAllMedia(post, cred)
	if err != nil {
		return models.PublishResult{
			Platform: models.Twitter,
			Success:  false,
			Message:  fmt.Sprintf("Error uploading media to Twitter: %v", err),
		}
	}

	tweetID, err := t.postTweet(post.Content, mediaIDs, cred.AccessToken)
	if err != nil {
		return models.PublishResult{
			Platform: models.Twitter,
			Success:  false,
			Message:  fmt.Sprintf("Error publishing to Twitter: %v", err),
		}
	}

	return models.PublishResult{
		Platform: models.Twitter,
		Success:  true,
		Message:  "Published successfully on Twitter",
		PostID:   tweetID,
	}
}

func (t *TwitterPublisher) validate(post *models.Post) error {
	if post.Content == "" && len(post.Media) == 0 {
		return &ValidationError{Platform: models.Twitter, Reason: "Tweet requires text or media"}
	}

	images, videos := 0, 0
	for _, m := range post.Media {
		if m.Type == models.MediaVideo {
			videos++
		} else {
			images++
		}
	}

	if videos > twitterMaxVideos {
		return &ValidationError{Platform: models.Twitter, Reason: "Twitter allows at most one video per tweet"}
	}
	if videos > 0 && images > 0 {
		return &ValidationError{Platform: models.Twitter, Reason: "Twitter does not allow mixing a video with images"}
	}
	if images > twitterMaxImages {
		return &ValidationError{
			Platform: models.Twitter,
			Reason:   fmt.Sprintf("Twitter allows at most %d images per tweet", twitterMaxImages),
		}
	}

	return nil
}

// validateToken performs a lightweight users/me call with the OAuth2 bearer.
func (t *TwitterPublisher) validateToken(accessToken string) error {
	req, err := http.NewRequest(http.MethodGet, t.apiBaseURL+"/2/users/me", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := fetchWithRetry(t.client, req, t.maxRetries, t.retryDelay)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &UpstreamError{
			Platform:   models.Twitter,
			StatusCode: resp.StatusCode,
			Message:    twitterErrorMessage(body),
		}
	}

	var userResp twitterUserResponse
	if err := json.Unmarshal(body, &userResp); err != nil || userResp.Data.ID == "" {
		return fmt.Errorf("could not resolve authenticated user")
	}

	utils.Debugf("twitter token valid user_id=%s username=%s", userResp.Data.ID, userResp.Data.Username)
	return nil
}

func (t *TwitterPublisher) uploadAllMedia(post *models.Post, cred *models.PlatformCredentials) ([]string, error) {
	if len(post.Media) == 0 {
		return nil, nil
	}

	mediaIDs := make([]string, 0, len(post.Media))
	for _, media := range post.Media {
		var (
			mediaID string
			err     error
		)
		if media.Type == models.MediaVideo {
			mediaID, err = t.uploadVideo(media, cred)
		} else {
			mediaID, err = t.uploadImage(media, cred.AccessToken)
		}
		if err != nil {
			return nil, err
		}
		mediaIDs = append(mediaIDs, mediaID)
	}

	return mediaIDs, nil
}

// uploadImage downloads the source image and pushes it through the v2
// JSON base64 upload endpoint. Images are capped at 5MB.
func (t *TwitterPublisher) uploadImage(media *models.Media, accessToken string) (string, error) {
	data, err := t.engine.Download(context.Background(), media.URL, maxImageUploadBytes)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(map[string]string{
		"media_data":     base64.StdEncoding.EncodeToString(data),
		"media_category": "tweet_image",
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, t.apiBaseURL+"/2/media/upload", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := fetchWithRetry(t.client, req, t.maxRetries, t.retryDelay)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &UpstreamError{
			Platform:   models.Twitter,
			StatusCode: resp.StatusCode,
			Message:    twitterErrorMessage(body),
		}
	}

	var mediaResp twitterMediaResponse
	if err := json.Unmarshal(body, &mediaResp); err != nil {
		return "", fmt.Errorf("parsing image upload response: %w", err)
	}
	mediaID := mediaResp.Data.ID
	if mediaID == "" {
		mediaID = mediaResp.MediaIDString
	}
	if mediaID == "" {
		return "", fmt.Errorf("twitter returned an empty media id")
	}

	return mediaID, nil
}

// uploadVideo downloads the source video and drives the OAuth1-signed v1.1
// chunked INIT/APPEND/FINALIZE session, then waits for async processing.
func (t *TwitterPublisher) uploadVideo(media *models.Media, cred *models.PlatformCredentials) (string, error) {
	data, err := t.engine.Download(context.Background(), media.URL, maxVideoUploadBytes)
	if err != nil {
		return "", err
	}

	signer := t.signerFor(cred)
	session := &twitterChunkSession{publisher: t, signer: signer}

	mimeType := media.MimeType
	if mimeType == "" {
		mimeType = "video/mp4"
	}

	mediaID, err := t.engine.ChunkedUpload(session, data, mimeType)
	if err != nil {
		return "", err
	}

	if session.processing != nil && session.processing.State != "succeeded" {
		if err := t.waitForProcessing(mediaID, signer, session.processing); err != nil {
			return "", err
		}
	}

	return mediaID, nil
}

// signerFor builds a per-request OAuth1 signer from the app consumer pair
// and the user's v1.1 token pair. No signer state is shared across requests.
func (t *TwitterPublisher) signerFor(cred *models.PlatformCredentials) *OAuth1Signer {
	cfg := config.Load()
	token := cred.OAuth1Token
	if token == "" {
		token = cred.AccessToken
	}
	return NewOAuth1Signer(OAuth1Config{
		ConsumerKey:    cfg.TwitterConsumerKey,
		ConsumerSecret: cfg.TwitterConsumerSecret,
		AccessToken:    token,
		AccessSecret:   cred.Secret,
	})
}

// waitForProcessing polls command=STATUS until the video finishes transcoding.
func (t *TwitterPublisher) waitForProcessing(mediaID string, signer *OAuth1Signer, initial *twitterProcessingInfo) error {
	first := initial

	ready, err := t.poller.WaitForReady(fmt.Sprintf("twitter media %s", mediaID), func() (ProcessingStatus, error) {
		// The FINALIZE response already carries the first processing_info;
		// consume it before issuing any STATUS request.
		if first != nil {
			info := first
			first = nil
			return processingInfoToStatus(info), nil
		}

		statusURL := fmt.Sprintf("%s/1.1/media/upload.json?command=STATUS&media_id=%s", t.uploadBaseURL, url.QueryEscape(mediaID))
		req, err := http.NewRequest(http.MethodGet, statusURL, nil)
		if err != nil {
			return ProcessingStatus{}, err
		}
		auth, err := signer.AuthorizationHeader(http.MethodGet, statusURL, nil)
		if err != nil {
			return ProcessingStatus{}, err
		}
		req.Header.Set("Authorization", auth)

		resp, err := fetchWithRetry(t.client, req, t.maxRetries, t.retryDelay)
		if err != nil {
			return ProcessingStatus{}, err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			return ProcessingStatus{}, &UpstreamError{
				Platform:   models.Twitter,
				StatusCode: resp.StatusCode,
				Message:    twitterErrorMessage(body),
			}
		}

		var statusResp twitterStatusResponse
		if err := json.Unmarshal(body, &statusResp); err != nil {
			return ProcessingStatus{}, fmt.Errorf("parsing media status: %w", err)
		}
		if statusResp.ProcessingInfo == nil {
			return ProcessingStatus{State: ProcessingSucceeded}, nil
		}
		return processingInfoToStatus(statusResp.ProcessingInfo), nil
	})
	if err != nil {
		return err
	}
	if !ready {
		return fmt.Errorf("twitter media %s never became ready", mediaID)
	}
	return nil
}

func processingInfoToStatus(info *twitterProcessingInfo) ProcessingStatus {
	switch info.State {
	case "succeeded":
		return ProcessingStatus{State: ProcessingSucceeded}
	case "failed":
		return ProcessingStatus{State: ProcessingFailed, Detail: info.Error.Message}
	case "in_progress":
		return ProcessingStatus{State: ProcessingInProgress, CheckAfterSecs: info.CheckAfterSecs}
	default:
		return ProcessingStatus{State: ProcessingPending, CheckAfterSecs: info.CheckAfterSecs}
	}
}

func (t *TwitterPublisher) postTweet(text string, mediaIDs []string, accessToken string) (string, error) {
	tweet := twitterTweetRequest{Text: text}
	if len(mediaIDs) > 0 {
		tweet.Media = &twitterTweetMedia{MediaIDs: mediaIDs}
	}

	payload, err := json.Marshal(tweet)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, t.apiBaseURL+"/2/tweets", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := fetchWithRetry(t.client, req, t.maxRetries, t.retryDelay)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &UpstreamError{
			Platform:   models.Twitter,
			StatusCode: resp.StatusCode,
			Message:    twitterErrorMessage(body),
		}
	}

	var tweetResp twitterTweetResponse
	if err := json.Unmarshal(body, &tweetResp); err != nil {
		return "", fmt.Errorf("parsing tweet response: %w", err)
	}
	if tweetResp.Data.ID == "" {
		return "", fmt.Errorf("twitter returned an empty tweet id")
	}

	return tweetResp.Data.ID, nil
}

// twitterChunkSession implements ChunkSession against the v1.1 chunked upload
// endpoint. Protocol parameters travel in the query string so each request
// can be OAuth1-signed without including body content in the base string;
// APPEND ships its chunk as a multipart part, which RFC 5849 excludes from
// signing.
type twitterChunkSession struct {
	publisher  *TwitterPublisher
	signer     *OAuth1Signer
	processing *twitterProcessingInfo
}

func (s *twitterChunkSession) Init(totalBytes int64, mimeType string) (string, error) {
	params := url.Values{}
	params.Set("command", "INIT")
	params.Set("total_bytes", fmt.Sprintf("%d", totalBytes))
	params.Set("media_type", mimeType)
	params.Set("media_category", "tweet_video")

	body, err := s.signedPost(params, nil, "")
	if err != nil {
		return "", err
	}

	var initResp twitterMediaResponse
	if err := json.Unmarshal(body, &initResp); err != nil {
		return "", fmt.Errorf("parsing INIT response: %w", err)
	}
	mediaID := initResp.MediaIDString
	if mediaID == "" {
		mediaID = initResp.Data.ID
	}
	if mediaID == "" {
		return "", fmt.Errorf("INIT returned an empty media id")
	}
	return mediaID, nil
}

func (s *twitterChunkSession) Append(mediaID string, segmentIndex int, chunk []byte) error {
	params := url.Values{}
	params.Set("command", "APPEND")
	params.Set("media_id", mediaID)
	params.Set("segment_index", fmt.Sprintf("%d", segmentIndex))

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("media", "chunk")
	if err != nil {
		return err
	}
	if _, err := part.Write(chunk); err != nil {
		return err
	}
	writer.Close()

	_, err = s.signedPost(params, buf.Bytes(), writer.FormDataContentType())
	return err
}

func (s *twitterChunkSession) Finalize(mediaID string) error {
	params := url.Values{}
	params.Set("command", "FINALIZE")
	params.Set("media_id", mediaID)

	body, err := s.signedPost(params, nil, "")
	if err != nil {
		return err
	}

	var finalizeResp twitterMediaResponse
	if err := json.Unmarshal(body, &finalizeResp); err != nil {
		return fmt.Errorf("parsing FINALIZE response: %w", err)
	}
	s.processing = finalizeResp.ProcessingInfo
	return nil
}

func (s *twitterChunkSession) signedPost(params url.Values, body []byte, contentType string) ([]byte, error) {
	endpoint := s.publisher.uploadBaseURL + "/1.1/media/upload.json?" + params.Encode()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(http.MethodPost, endpoint, reader)
	if err != nil {
		return nil, err
	}

	auth, err := s.signer.AuthorizationHeader(http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", auth)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := fetchWithRetry(s.publisher.client, req, s.publisher.maxRetries, s.publisher.retryDelay)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{
			Platform:   models.Twitter,
			StatusCode: resp.StatusCode,
			Message:    twitterErrorMessage(respBody),
		}
	}

	return respBody, nil
}

// twitterErrorMessage extracts a readable message from the several error
// shapes the X API produces.
func twitterErrorMessage(body []byte) string {
	var v2 struct {
		Detail string `json:"detail"`
		Title  string `json:"title"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &v2); err == nil {
		if v2.Detail != "" {
			return v2.Detail
		}
		if len(v2.Errors) > 0 && v2.Errors[0].Message != "" {
			return v2.Errors[0].Message
		}
		if v2.Title != "" {
			return v2.Title
		}
	}
	return string(body)
}
