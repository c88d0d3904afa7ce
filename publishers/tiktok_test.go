package publishers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"PostPilotAPI/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireUnmarshal(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(data, v))
}

func newTikTokTestPublisher(server *httptest.Server) *TikTokPublisher {
	pub := NewTikTokPublisher(server.Client())
	pub.baseURL = server.URL
	pub.retryDelay = 0
	pub.poller = NewStatusPoller(5, time.Second)
	pub.poller.sleep = func(time.Duration) {}
	return pub
}

func TestTikTokDirectPostPullsFromURL(t *testing.T) {
	var initPayload map[string]interface{}
	statusPolls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/post/publish/video/init/":
			body, _ := io.ReadAll(r.Body)
			requireUnmarshal(t, body, &initPayload)
			fmt.Fprint(w, `{"data":{"publish_id":"pub-1"},"error":{"code":"ok","message":""}}`)
		case "/v2/post/publish/status/fetch/":
			statusPolls++
			if statusPolls < 2 {
				fmt.Fprint(w, `{"data":{"status":"PROCESSING_DOWNLOAD"},"error":{"code":"ok","message":""}}`)
			} else {
				fmt.Fprint(w, `{"data":{"status":"PUBLISH_COMPLETE"},"error":{"code":"ok","message":""}}`)
			}
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL)
		}
	}))
	defer server.Close()

	pub := newTikTokTestPublisher(server)
	post := &models.Post{
		Content:      "dance",
		PrivacyLevel: "public",
		Media:        []*models.Media{{URL: "https://cdn.example.com/v.mp4", Type: models.MediaVideo}},
	}

	result := pub.Publish(post, &models.PlatformCredentials{AccessToken: "tt-token"})
	require.True(t, result.Success, result.Message)
	assert.Equal(t, "pub-1", result.PostID)
	assert.Equal(t, 2, statusPolls)

	sourceInfo := initPayload["source_info"].(map[string]interface{})
	assert.Equal(t, "PULL_FROM_URL", sourceInfo["source"])
	assert.Equal(t, "https://cdn.example.com/v.mp4", sourceInfo["video_url"])

	postInfo := initPayload["post_info"].(map[string]interface{})
	assert.Equal(t, "PUBLIC_TO_EVERYONE", postInfo["privacy_level"])
}

func TestTikTokFailedProcessingSurfacesReason(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/post/publish/video/init/":
			fmt.Fprint(w, `{"data":{"publish_id":"pub-2"},"error":{"code":"ok","message":""}}`)
		case "/v2/post/publish/status/fetch/":
			fmt.Fprint(w, `{"data":{"status":"FAILED","fail_reason":"video_pull_failed"},"error":{"code":"ok","message":""}}`)
		}
	}))
	defer server.Close()

	pub := newTikTokTestPublisher(server)
	post := &models.Post{
		Content: "dance",
		Media:   []*models.Media{{URL: "https://cdn.example.com/v.mp4", Type: models.MediaVideo}},
	}

	result := pub.Publish(post, &models.PlatformCredentials{AccessToken: "tt-token"})
	require.False(t, result.Success)
	assert.Contains(t, result.Message, "video_pull_failed")
}

func TestTikTokAPIErrorCodeAborts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{},"error":{"code":"spam_risk_too_many_posts","message":"The user has reached the daily post limit"}}`)
	}))
	defer server.Close()

	pub := newTikTokTestPublisher(server)
	post := &models.Post{
		Content: "dance",
		Media:   []*models.Media{{URL: "https://cdn.example.com/v.mp4", Type: models.MediaVideo}},
	}

	result := pub.Publish(post, &models.PlatformCredentials{AccessToken: "tt-token"})
	require.False(t, result.Success)
	assert.Contains(t, result.Message, "The user has reached the daily post limit")
}

func TestTikTokRequiresVideo(t *testing.T) {
	pub := NewTikTokPublisher(nil)
	post := &models.Post{
		Content: "no video",
		Media:   []*models.Media{{URL: "https://cdn.example.com/a.jpg", Type: models.MediaImage}},
	}

	result := pub.Publish(post, &models.PlatformCredentials{AccessToken: "tt-token"})
	require.False(t, result.Success)
	assert.Contains(t, result.Message, "requires a video")
}

func TestTikTokPrivacyLevelMapping(t *testing.T) {
	assert.Equal(t, "PUBLIC_TO_EVERYONE", tiktokPrivacyLevel(""))
	assert.Equal(t, "PUBLIC_TO_EVERYONE", tiktokPrivacyLevel("public"))
	assert.Equal(t, "MUTUAL_FOLLOW_FRIENDS", tiktokPrivacyLevel("friends"))
	assert.Equal(t, "SELF_ONLY", tiktokPrivacyLevel("private"))
}
