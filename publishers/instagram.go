package publishers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"PostPilotAPI/config"
	"PostPilotAPI/models"
	"PostPilotAPI/utils"
)

// Instagram requires scheduled posts at least 10 minutes out; we add a
// 3-minute safety buffer so a slow publish pipeline cannot slip under the
// platform minimum.
const instagramMinScheduleLead = 13 * time.Minute

const instagramMaxCarouselItems = 10

// InstagramPublisher publishes feed posts, carousels and stories through the
// Instagram Graph API container protocol: create container(s), wait for any
// video container to finish processing, then media_publish.
type InstagramPublisher struct {
	client     *http.Client
	baseURL    string
	poller     *StatusPoller
	maxRetries int
	retryDelay time.Duration
	now        func() time.Time
}

type instagramContainerResponse struct {
	ID string `json:"id"`
}

type instagramStatusResponse struct {
	ID         string `json:"id"`
	StatusCode string `json:"status_code"`
	Status     string `json:"status"`
}

func NewInstagramPublisher(client *http.Client) *InstagramPublisher {
	if client == nil {
		client = newHTTPClient()
	}
	cfg := config.Load()
	return &InstagramPublisher{
		client:     client,
		baseURL:    "https://graph.facebook.com/" + cfg.FacebookVersion,
		poller:     NewStatusPoller(20, 5*time.Second),
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
		now:        time.Now,
	}
}

func (i *InstagramPublisher) Publish(post *models.Post, cred *models.PlatformCredentials) models.PublishResult {
	if cred == nil || cred.AccessToken == "" {
		return models.PublishResult{
			Platform: models.Instagram,
			Success:  false,
			Message:  "Missing Instagram credentials",
		}
	}

	igUserID := cred.BusinessID
	if igUserID == "" {
		igUserID = cred.PlatformUserID
	}
	if igUserID == "" {
		return models.PublishResult{
			Platform: models.Instagram,
			Success:  false,
			Message:  "Missing Instagram business account id",
		}
	}

	if err := i.validate(post); err != nil {
		return models.PublishResult{
			Platform: models.Instagram,
			Success:  false,
			Message:  err.Error(),
		}
	}

	// The scheduling decision is made exactly once per publish. validate has
	// already confirmed the lead; reading the clock again later could flip
	// the decision for a post sitting right on the minimum-lead boundary.
	scheduledAt := post.ScheduledFor

	var (
		postID string
		err    error
	)
	if post.PostType == models.PostTypeStory {
		postID, err = i.publishStory(post, cred.AccessToken, igUserID, scheduledAt)
	} else {
		postID, err = i.publishFeed(post, cred.AccessToken, igUserID, scheduledAt)
	}

	if err != nil {
		return models.PublishResult{
			Platform: models.Instagram,
			Success:  false,
			Message:  fmt.Sprintf("Error publishing to Instagram: %v", err),
		}
	}

	message := "Published successfully on Instagram"
	if scheduledAt != nil {
		message = "Scheduled successfully on Instagram"
	}
	return models.PublishResult{
		Platform: models.Instagram,
		Success:  true,
		Message:  message,
		PostID:   postID,
	}
}

// validate runs every input check before a single network call is made.
func (i *InstagramPublisher) validate(post *models.Post) error {
	if len(post.Media) == 0 {
		return &ValidationError{Platform: models.Instagram, Reason: "Instagram requires at least one media item"}
	}

	if post.PostType == models.PostTypeStory {
		if len(post.Media) != 1 {
			return &ValidationError{Platform: models.Instagram, Reason: "Instagram stories require exactly one media item"}
		}
	} else {
		if strings.TrimSpace(post.Content) == "" {
			return &ValidationError{Platform: models.Instagram, Reason: "Caption is required for Instagram feed posts"}
		}
	}

	if len(post.Media) > instagramMaxCarouselItems {
		return &ValidationError{
			Platform: models.Instagram,
			Reason:   fmt.Sprintf("Instagram carousels support at most %d items", instagramMaxCarouselItems),
		}
	}

	// Mixed image/video carousels are forbidden, and carousels allow at most
	// one video, so any multi-item post containing a video is rejected.
	if len(post.Media) > 1 && post.HasVideo() {
		if post.VideoCount() < len(post.Media) {
			return &ValidationError{Platform: models.Instagram, Reason: "Instagram carousels cannot mix images and videos"}
		}
		return &ValidationError{Platform: models.Instagram, Reason: "Instagram carousels allow at most one video"}
	}

	if post.ScheduledFor != nil {
		lead := post.ScheduledFor.Sub(i.now())
		if lead < instagramMinScheduleLead {
			return &ValidationError{
				Platform: models.Instagram,
				Reason: fmt.Sprintf("Instagram posts must be scheduled at least %d minutes in advance",
					int(instagramMinScheduleLead.Minutes())),
			}
		}
	}

	return nil
}

func (i *InstagramPublisher) publishFeed(post *models.Post, accessToken, igUserID string, scheduledAt *time.Time) (string, error) {
	if len(post.Media) == 1 {
		return i.publishSingle(post, accessToken, igUserID, scheduledAt)
	}
	return i.publishCarousel(post, accessToken, igUserID, scheduledAt)
}

func (i *InstagramPublisher) publishSingle(post *models.Post, accessToken, igUserID string, scheduledAt *time.Time) (string, error) {
	media := post.Media[0]

	params := url.Values{}
	if media.Type == models.MediaVideo {
		params.Set("media_type", "REELS")
		params.Set("video_url", media.URL)
		if media.ThumbnailURL != "" {
			params.Set("cover_url", media.ThumbnailURL)
		}
	} else {
		params.Set("image_url", media.URL)
	}
	params.Set("caption", post.Content)
	i.applySchedule(scheduledAt, params)

	containerID, err := i.createContainer(igUserID, accessToken, params)
	if err != nil {
		return "", err
	}

	// Only video containers process asynchronously; images are ready as soon
	// as the container exists.
	if media.Type == models.MediaVideo {
		if _, err := i.waitForContainer(containerID, accessToken); err != nil {
			return "", err
		}
	}

	return i.finishPublish(scheduledAt, accessToken, igUserID, containerID)
}

func (i *InstagramPublisher) publishCarousel(post *models.Post, accessToken, igUserID string, scheduledAt *time.Time) (string, error) {
	// validate rejects carousels containing any video, so every child here
	// is an image container and none of them needs processing polls.
	childIDs := make([]string, 0, len(post.Media))
	for _, media := range post.Media {
		params := url.Values{}
		params.Set("is_carousel_item", "true")
		params.Set("image_url", media.URL)

		childID, err := i.createContainer(igUserID, accessToken, params)
		if err != nil {
			return "", fmt.Errorf("creating carousel item container: %w", err)
		}
		childIDs = append(childIDs, childID)
	}

	params := url.Values{}
	params.Set("media_type", "CAROUSEL_ALBUM")
	params.Set("children", strings.Join(childIDs, ","))
	params.Set("caption", post.Content)
	i.applySchedule(scheduledAt, params)

	parentID, err := i.createContainer(igUserID, accessToken, params)
	if err != nil {
		return "", fmt.Errorf("creating carousel container: %w", err)
	}

	return i.finishPublish(scheduledAt, accessToken, igUserID, parentID)
}

func (i *InstagramPublisher) publishStory(post *models.Post, accessToken, igUserID string, scheduledAt *time.Time) (string, error) {
	media := post.Media[0]

	params := url.Values{}
	params.Set("media_type", "STORIES")
	if media.Type == models.MediaVideo {
		params.Set("video_url", media.URL)
	} else {
		params.Set("image_url", media.URL)
	}

	containerID, err := i.createContainer(igUserID, accessToken, params)
	if err != nil {
		return "", err
	}

	if media.Type == models.MediaVideo {
		if _, err := i.waitForContainer(containerID, accessToken); err != nil {
			return "", err
		}
	}

	return i.finishPublish(scheduledAt, accessToken, igUserID, containerID)
}

// applySchedule marks the container unpublished with a scheduled publish
// time when the post carries a scheduling intent.
func (i *InstagramPublisher) applySchedule(scheduledAt *time.Time, params url.Values) {
	if scheduledAt != nil {
		params.Set("published", "false")
		params.Set("scheduled_publish_time", strconv.FormatInt(scheduledAt.Unix(), 10))
	}
}

// finishPublish calls media_publish, unless the post is scheduled, in which
// case the container already carries scheduled_publish_time and immediate
// publish is skipped.
func (i *InstagramPublisher) finishPublish(scheduledAt *time.Time, accessToken, igUserID, containerID string) (string, error) {
	if scheduledAt != nil {
		utils.Infof("instagram container scheduled container_id=%s publish_at=%s", containerID, scheduledAt.Format(time.RFC3339))
		return containerID, nil
	}

	params := url.Values{}
	params.Set("creation_id", containerID)

	body, err := i.graphPost(fmt.Sprintf("/%s/media_publish", igUserID), accessToken, params)
	if err != nil {
		return "", err
	}

	var publishResp instagramContainerResponse
	if err := json.Unmarshal(body, &publishResp); err != nil {
		return "", fmt.Errorf("parsing media_publish response: %w", err)
	}
	return publishResp.ID, nil
}

func (i *InstagramPublisher) createContainer(igUserID, accessToken string, params url.Values) (string, error) {
	body, err := i.graphPost(fmt.Sprintf("/%s/media", igUserID), accessToken, params)
	if err != nil {
		return "", err
	}

	var containerResp instagramContainerResponse
	if err := json.Unmarshal(body, &containerResp); err != nil {
		return "", fmt.Errorf("parsing container response: %w", err)
	}
	if containerResp.ID == "" {
		return "", fmt.Errorf("Instagram returned an empty container id")
	}
	return containerResp.ID, nil
}

// waitForContainer polls the container's status_code until FINISHED/ERROR.
func (i *InstagramPublisher) waitForContainer(containerID, accessToken string) (bool, error) {
	return i.poller.WaitForReady(fmt.Sprintf("instagram container %s", containerID), func() (ProcessingStatus, error) {
		statusURL := fmt.Sprintf("%s/%s?fields=status_code,status&access_token=%s",
			i.baseURL, containerID, url.QueryEscape(accessToken))

		req, err := http.NewRequest(http.MethodGet, statusURL, nil)
		if err != nil {
			return ProcessingStatus{}, err
		}

		resp, err := fetchWithRetry(i.client, req, i.maxRetries, i.retryDelay)
		if err != nil {
			return ProcessingStatus{}, err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			return ProcessingStatus{}, &UpstreamError{
				Platform:   models.Instagram,
				StatusCode: resp.StatusCode,
				Message:    graphErrorMessage(body),
			}
		}

		var statusResp instagramStatusResponse
		if err := json.Unmarshal(body, &statusResp); err != nil {
			return ProcessingStatus{}, fmt.Errorf("parsing container status: %w", err)
		}

		switch statusResp.StatusCode {
		case "FINISHED", "PUBLISHED":
			return ProcessingStatus{State: ProcessingSucceeded}, nil
		case "ERROR", "EXPIRED":
			return ProcessingStatus{State: ProcessingFailed, Detail: statusResp.Status}, nil
		case "IN_PROGRESS":
			return ProcessingStatus{State: ProcessingInProgress}, nil
		default:
			return ProcessingStatus{State: ProcessingPending}, nil
		}
	})
}

// graphPost issues a form-encoded POST against the Graph API and returns the
// raw body. Non-2xx responses surface the platform's own error message and
// are never retried.
func (i *InstagramPublisher) graphPost(path, accessToken string, params url.Values) ([]byte, error) {
	params.Set("access_token", accessToken)

	req, err := http.NewRequest(http.MethodPost, i.baseURL+path, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := fetchWithRetry(i.client, req, i.maxRetries, i.retryDelay)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{
			Platform:   models.Instagram,
			StatusCode: resp.StatusCode,
			Message:    graphErrorMessage(body),
		}
	}

	return body, nil
}
