package publishers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"PostPilotAPI/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type twitterTestServer struct {
	server *httptest.Server

	mu        sync.Mutex
	calls     []string
	segments  []string
	tweetBody twitterTweetRequest

	userMeStatus int
	statusPolls  int
}

func newTwitterTestServer(t *testing.T, videoPayload []byte) *twitterTestServer {
	ts := &twitterTestServer{userMeStatus: http.StatusOK}
	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		command := r.URL.Query().Get("command")

		ts.mu.Lock()
		label := r.Method + " " + r.URL.Path
		if command != "" {
			label += "?command=" + command
		}
		ts.calls = append(ts.calls, label)
		ts.mu.Unlock()

		switch {
		case r.URL.Path == "/2/users/me":
			if ts.userMeStatus != http.StatusOK {
				w.WriteHeader(ts.userMeStatus)
				fmt.Fprint(w, `{"title":"Unauthorized","detail":"Unauthorized"}`)
				return
			}
			fmt.Fprint(w, `{"data":{"id":"12345","username":"poster"}}`)

		case strings.HasPrefix(r.URL.Path, "/cdn/"):
			w.Write(videoPayload)

		case r.URL.Path == "/2/media/upload":
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			fmt.Fprint(w, `{"data":{"id":"img-media-1"}}`)

		case r.URL.Path == "/1.1/media/upload.json":
			require.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "OAuth "),
				"v1.1 requests must be OAuth1 signed")
			switch command {
			case "INIT":
				fmt.Fprint(w, `{"media_id_string":"vid-media-1"}`)
			case "APPEND":
				ts.mu.Lock()
				ts.segments = append(ts.segments, r.URL.Query().Get("segment_index"))
				ts.mu.Unlock()
				w.WriteHeader(http.StatusNoContent)
			case "FINALIZE":
				fmt.Fprint(w, `{"media_id_string":"vid-media-1","processing_info":{"state":"in_progress","check_after_secs":1}}`)
			case "STATUS":
				ts.mu.Lock()
				ts.statusPolls++
				polls := ts.statusPolls
				ts.mu.Unlock()
				if polls < 2 {
					fmt.Fprint(w, `{"processing_info":{"state":"in_progress","check_after_secs":1}}`)
				} else {
					fmt.Fprint(w, `{"processing_info":{"state":"succeeded"}}`)
				}
			default:
				t.Errorf("unexpected v1.1 command %q", command)
			}

		case r.URL.Path == "/2/tweets":
			assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "),
				"v2 requests use the OAuth2 bearer")
			body, _ := io.ReadAll(r.Body)
			ts.mu.Lock()
			json.Unmarshal(body, &ts.tweetBody)
			ts.mu.Unlock()
			fmt.Fprint(w, `{"data":{"id":"tweet-999","text":"ok"}}`)

		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL)
		}
	}))
	return ts
}

func (ts *twitterTestServer) callsMatching(substr string) int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	n := 0
	for _, c := range ts.calls {
		if strings.Contains(c, substr) {
			n++
		}
	}
	return n
}

func newTwitterTestPublisher(ts *twitterTestServer) *TwitterPublisher {
	pub := NewTwitterPublisher(ts.server.Client())
	pub.apiBaseURL = ts.server.URL
	pub.uploadBaseURL = ts.server.URL
	pub.engine = NewMediaTransferEngine(ts.server.Client())
	pub.retryDelay = 0
	pub.poller = NewStatusPoller(10, time.Second)
	pub.poller.sleep = func(time.Duration) {}
	return pub
}

func twitterTestCred() *models.PlatformCredentials {
	return &models.PlatformCredentials{
		AccessToken: "bearer-token",
		OAuth1Token: "user-oauth1-token",
		Secret:      "user-oauth1-secret",
	}
}

func TestTwitterTextOnlyTweet(t *testing.T) {
	ts := newTwitterTestServer(t, nil)
	defer ts.server.Close()

	pub := newTwitterTestPublisher(ts)
	result := pub.Publish(&models.Post{Content: "hello world"}, twitterTestCred())

	require.True(t, result.Success, result.Message)
	assert.Equal(t, "tweet-999", result.PostID)
	assert.Equal(t, 1, ts.callsMatching("/2/users/me"), "token is validated before publishing")
	assert.Equal(t, 1, ts.callsMatching("/2/tweets"))
	assert.Equal(t, "hello world", ts.tweetBody.Text)
	assert.Nil(t, ts.tweetBody.Media)
}

func TestTwitterInvalidTokenAbortsBeforeUpload(t *testing.T) {
	ts := newTwitterTestServer(t, nil)
	defer ts.server.Close()
	ts.userMeStatus = http.StatusUnauthorized

	pub := newTwitterTestPublisher(ts)
	post := &models.Post{
		Content: "hello",
		Media: []*models.Media{{
			URL:  ts.server.URL + "/cdn/pic.jpg",
			Type: models.MediaImage,
		}},
	}

	result := pub.Publish(post, twitterTestCred())
	require.False(t, result.Success)
	assert.Contains(t, result.Message, "Unauthorized")
	assert.Zero(t, ts.callsMatching("/cdn/"), "no media movement after a failed token check")
	assert.Zero(t, ts.callsMatching("/2/media/upload"))
	assert.Zero(t, ts.callsMatching("/2/tweets"))
}

func TestTwitterImageTweetUploadsViaV2(t *testing.T) {
	ts := newTwitterTestServer(t, bytes.Repeat([]byte{0x7F}, 1024))
	defer ts.server.Close()

	pub := newTwitterTestPublisher(ts)
	post := &models.Post{
		Content: "with picture",
		Media: []*models.Media{{
			URL:      ts.server.URL + "/cdn/pic.jpg",
			Type:     models.MediaImage,
			MimeType: "image/jpeg",
		}},
	}

	result := pub.Publish(post, twitterTestCred())
	require.True(t, result.Success, result.Message)

	assert.Equal(t, 1, ts.callsMatching("/2/media/upload"))
	require.NotNil(t, ts.tweetBody.Media)
	assert.Equal(t, []string{"img-media-1"}, ts.tweetBody.Media.MediaIDs)
}

func TestTwitterVideoTweetRunsChunkedUploadSequence(t *testing.T) {
	// 2.5 MB video: three APPEND segments at the 1 MB chunk size.
	ts := newTwitterTestServer(t, bytes.Repeat([]byte{0x42}, 5<<19))
	defer ts.server.Close()

	pub := newTwitterTestPublisher(ts)
	post := &models.Post{
		Content: "clip",
		Media: []*models.Media{{
			URL:      ts.server.URL + "/cdn/clip.mp4",
			Type:     models.MediaVideo,
			MimeType: "video/mp4",
		}},
	}

	result := pub.Publish(post, twitterTestCred())
	require.True(t, result.Success, result.Message)
	assert.Equal(t, "tweet-999", result.PostID)

	assert.Equal(t, 1, ts.callsMatching("command=INIT"))
	assert.Equal(t, []string{"0", "1", "2"}, ts.segments)
	assert.Equal(t, 1, ts.callsMatching("command=FINALIZE"))
	// FINALIZE's embedded processing_info counts as the first observation, so
	// two STATUS polls follow before the succeeded state.
	assert.Equal(t, 2, ts.callsMatching("command=STATUS"))

	require.NotNil(t, ts.tweetBody.Media)
	assert.Equal(t, []string{"vid-media-1"}, ts.tweetBody.Media.MediaIDs)
}

func TestTwitterRejectsVideoMixedWithImages(t *testing.T) {
	pub := NewTwitterPublisher(nil)
	post := &models.Post{
		Content: "mix",
		Media: []*models.Media{
			{URL: "https://cdn.example.com/a.jpg", Type: models.MediaImage},
			{URL: "https://cdn.example.com/v.mp4", Type: models.MediaVideo},
		},
	}

	result := pub.Publish(post, twitterTestCred())
	require.False(t, result.Success)
	assert.Contains(t, result.Message, "mixing a video with images")
}

func TestTwitterRejectsTooManyImages(t *testing.T) {
	pub := NewTwitterPublisher(nil)
	media := make([]*models.Media, 5)
	for i := range media {
		media[i] = &models.Media{URL: fmt.Sprintf("https://cdn.example.com/%d.jpg", i), Type: models.MediaImage}
	}

	result := pub.Publish(&models.Post{Content: "gallery", Media: media}, twitterTestCred())
	require.False(t, result.Success)
	assert.Contains(t, result.Message, "at most 4 images")
}

func TestTwitterRejectsEmptyTweet(t *testing.T) {
	pub := NewTwitterPublisher(nil)
	result := pub.Publish(&models.Post{}, twitterTestCred())
	require.False(t, result.Success)
	assert.Contains(t, result.Message, "text or media")
}
