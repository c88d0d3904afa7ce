package publishers

import (
	"fmt"
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

type graphRecorder struct {
	mu       sync.Mutex
	requests []*http.Request
	forms    []map[string]string
}

func (g *graphRecorder) record(r *http.Request) map[string]string {
	r.ParseForm()
	form := make(map[string]string)
	for k := range r.PostForm {
		form[k] = r.PostForm.Get(k)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, r)
	g.forms = append(g.forms, form)
	return form
}

func (g *graphRecorder) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

func newInstagramTestPublisher(server *httptest.Server) *InstagramPublisher {
	pub := NewInstagramPublisher(server.Client())
	pub.baseURL = server.URL
	pub.retryDelay = 0
	pub.poller = NewStatusPoller(5, time.Second)
	pub.poller.sleep = func(time.Duration) {}
	return pub
}

func instagramTestCred() *models.PlatformCredentials {
	return &models.PlatformCredentials{
		AccessToken: "ig-token",
		BusinessID:  "17841400000000000",
	}
}

func imageMedia(id string) *models.Media {
	return &models.Media{
		ID:       id,
		URL:      "https://cdn.example.com/" + id + ".jpg",
		Type:     models.MediaImage,
		MimeType: "image/jpeg",
	}
}

func videoMedia(id string) *models.Media {
	return &models.Media{
		ID:       id,
		URL:      "https://cdn.example.com/" + id + ".mp4",
		Type:     models.MediaVideo,
		MimeType: "video/mp4",
	}
}

func TestInstagramSingleImagePublishesWithTwoCalls(t *testing.T) {
	rec := &graphRecorder{}
	containerSeq := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		switch {
		case strings.HasSuffix(r.URL.Path, "/media"):
			containerSeq++
			fmt.Fprintf(w, `{"id":"container-%d"}`, containerSeq)
		case strings.HasSuffix(r.URL.Path, "/media_publish"):
			fmt.Fprint(w, `{"id":"18000000000000001"}`)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL)
		}
	}))
	defer server.Close()

	pub := newInstagramTestPublisher(server)
	post := &models.Post{
		Content:   "sunset",
		PostType:  models.PostTypeNormal,
		Media:     []*models.Media{imageMedia("m1")},
		Platforms: []models.Platform{models.Instagram},
	}

	result := pub.Publish(post, instagramTestCred())
	require.True(t, result.Success, result.Message)
	assert.Equal(t, "18000000000000001", result.PostID)
	assert.Equal(t, 2, rec.count(), "image posts never poll processing status")

	assert.Equal(t, "https://cdn.example.com/m1.jpg", rec.forms[0]["image_url"])
	assert.Equal(t, "sunset", rec.forms[0]["caption"])
	assert.Equal(t, "container-1", rec.forms[1]["creation_id"])
}

func TestInstagramCarouselCreatesChildrenThenParent(t *testing.T) {
	rec := &graphRecorder{}
	containerSeq := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		switch {
		case strings.HasSuffix(r.URL.Path, "/media"):
			containerSeq++
			fmt.Fprintf(w, `{"id":"container-%d"}`, containerSeq)
		case strings.HasSuffix(r.URL.Path, "/media_publish"):
			fmt.Fprint(w, `{"id":"18000000000000002"}`)
		}
	}))
	defer server.Close()

	pub := newInstagramTestPublisher(server)
	post := &models.Post{
		Content:   "three views",
		PostType:  models.PostTypeNormal,
		Media:     []*models.Media{imageMedia("a"), imageMedia("b"), imageMedia("c")},
		Platforms: []models.Platform{models.Instagram},
	}

	result := pub.Publish(post, instagramTestCred())
	require.True(t, result.Success, result.Message)

	// Three child containers, one carousel parent, one publish.
	require.Equal(t, 5, rec.count())
	for i := 0; i < 3; i++ {
		assert.Equal(t, "true", rec.forms[i]["is_carousel_item"])
	}
	assert.Equal(t, "CAROUSEL_ALBUM", rec.forms[3]["media_type"])
	assert.Equal(t, "container-1,container-2,container-3", rec.forms[3]["children"])
	assert.Equal(t, "container-4", rec.forms[4]["creation_id"])
}

func TestInstagramVideoPollsUntilFinished(t *testing.T) {
	rec := &graphRecorder{}
	statusPolls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		switch {
		case r.Method == http.MethodGet:
			statusPolls++
			if statusPolls < 3 {
				fmt.Fprint(w, `{"id":"container-1","status_code":"IN_PROGRESS"}`)
			} else {
				fmt.Fprint(w, `{"id":"container-1","status_code":"FINISHED"}`)
			}
		case strings.HasSuffix(r.URL.Path, "/media"):
			fmt.Fprint(w, `{"id":"container-1"}`)
		case strings.HasSuffix(r.URL.Path, "/media_publish"):
			fmt.Fprint(w, `{"id":"18000000000000003"}`)
		}
	}))
	defer server.Close()

	pub := newInstagramTestPublisher(server)
	post := &models.Post{
		Content:   "reel",
		PostType:  models.PostTypeNormal,
		Media:     []*models.Media{videoMedia("v1")},
		Platforms: []models.Platform{models.Instagram},
	}

	result := pub.Publish(post, instagramTestCred())
	require.True(t, result.Success, result.Message)
	assert.Equal(t, 3, statusPolls)
	assert.Equal(t, "REELS", rec.forms[0]["media_type"])
	assert.Equal(t, "https://cdn.example.com/v1.mp4", rec.forms[0]["video_url"])
}

func TestInstagramVideoProcessingErrorAbortsPublish(t *testing.T) {
	rec := &graphRecorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		switch {
		case r.Method == http.MethodGet:
			fmt.Fprint(w, `{"id":"container-1","status_code":"ERROR","status":"Video could not be transcoded"}`)
		case strings.HasSuffix(r.URL.Path, "/media"):
			fmt.Fprint(w, `{"id":"container-1"}`)
		case strings.HasSuffix(r.URL.Path, "/media_publish"):
			t.Error("media_publish must not be called after a processing failure")
		}
	}))
	defer server.Close()

	pub := newInstagramTestPublisher(server)
	post := &models.Post{
		Content:  "reel",
		PostType: models.PostTypeNormal,
		Media:    []*models.Media{videoMedia("v1")},
	}

	result := pub.Publish(post, instagramTestCred())
	require.False(t, result.Success)
	assert.Contains(t, result.Message, "Video could not be transcoded")
}

func TestInstagramMixedCarouselRejectedBeforeNetwork(t *testing.T) {
	rec := &graphRecorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
	}))
	defer server.Close()

	pub := newInstagramTestPublisher(server)
	post := &models.Post{
		Content:  "mixed",
		PostType: models.PostTypeNormal,
		Media:    []*models.Media{imageMedia("a"), videoMedia("v")},
	}

	result := pub.Publish(post, instagramTestCred())
	require.False(t, result.Success)
	assert.Contains(t, result.Message, "cannot mix images and videos")
	assert.Zero(t, rec.count(), "validation failures must not reach the network")
}

func TestInstagramScheduleLeadTooShortRejectedBeforeNetwork(t *testing.T) {
	rec := &graphRecorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
	}))
	defer server.Close()

	pub := newInstagramTestPublisher(server)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pub.now = func() time.Time { return now }

	soon := now.Add(5 * time.Minute)
	post := &models.Post{
		Content:      "too soon",
		PostType:     models.PostTypeNormal,
		Media:        []*models.Media{imageMedia("a")},
		ScheduledFor: &soon,
	}

	result := pub.Publish(post, instagramTestCred())
	require.False(t, result.Success)
	assert.Contains(t, result.Message, "13 minutes")
	assert.Zero(t, rec.count())
}

func TestInstagramScheduledPostSkipsMediaPublish(t *testing.T) {
	rec := &graphRecorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		if strings.HasSuffix(r.URL.Path, "/media_publish") {
			t.Error("scheduled containers must not call media_publish")
			return
		}
		fmt.Fprint(w, `{"id":"container-1"}`)
	}))
	defer server.Close()

	pub := newInstagramTestPublisher(server)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pub.now = func() time.Time { return now }

	later := now.Add(time.Hour)
	post := &models.Post{
		Content:      "later",
		PostType:     models.PostTypeNormal,
		Media:        []*models.Media{imageMedia("a")},
		ScheduledFor: &later,
	}

	result := pub.Publish(post, instagramTestCred())
	require.True(t, result.Success, result.Message)
	assert.Equal(t, "Scheduled successfully on Instagram", result.Message)
	assert.Equal(t, "container-1", result.PostID)

	require.Equal(t, 1, rec.count())
	assert.Equal(t, "false", rec.forms[0]["published"])
	assert.Equal(t, fmt.Sprintf("%d", later.Unix()), rec.forms[0]["scheduled_publish_time"])
}

func TestInstagramAllVideoCarouselRejectedBeforeNetwork(t *testing.T) {
	rec := &graphRecorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
	}))
	defer server.Close()

	pub := newInstagramTestPublisher(server)
	post := &models.Post{
		Content:  "clips",
		PostType: models.PostTypeNormal,
		Media:    []*models.Media{videoMedia("v1"), videoMedia("v2")},
	}

	result := pub.Publish(post, instagramTestCred())
	require.False(t, result.Success)
	assert.Contains(t, result.Message, "at most one video")
	assert.Zero(t, rec.count(), "validation failures must not reach the network")
}

func TestInstagramBoundaryLeadStaysScheduledAcrossClockReads(t *testing.T) {
	rec := &graphRecorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		if strings.HasSuffix(r.URL.Path, "/media_publish") {
			t.Error("a post accepted as scheduled must not be published immediately")
			return
		}
		fmt.Fprint(w, `{"id":"container-1"}`)
	}))
	defer server.Close()

	pub := newInstagramTestPublisher(server)

	// The clock advances between validation and container creation, as it
	// does in production. A post sitting exactly on the minimum lead when
	// validated must stay scheduled, not flip to an immediate publish.
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reads := 0
	pub.now = func() time.Time {
		reads++
		if reads == 1 {
			return base
		}
		return base.Add(2 * time.Second)
	}

	exact := base.Add(instagramMinScheduleLead)
	post := &models.Post{
		Content:      "on the boundary",
		PostType:     models.PostTypeNormal,
		Media:        []*models.Media{imageMedia("a")},
		ScheduledFor: &exact,
	}

	result := pub.Publish(post, instagramTestCred())
	require.True(t, result.Success, result.Message)
	assert.Equal(t, "Scheduled successfully on Instagram", result.Message)

	require.Equal(t, 1, rec.count())
	assert.Equal(t, "false", rec.forms[0]["published"])
	assert.Equal(t, fmt.Sprintf("%d", exact.Unix()), rec.forms[0]["scheduled_publish_time"])
}

func TestInstagramUpstreamErrorPropagatedVerbatimWithoutRetry(t *testing.T) {
	rec := &graphRecorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"Invalid parameter: image_url is not reachable","type":"OAuthException","code":100}}`)
	}))
	defer server.Close()

	pub := newInstagramTestPublisher(server)
	post := &models.Post{
		Content:  "bad url",
		PostType: models.PostTypeNormal,
		Media:    []*models.Media{imageMedia("a")},
	}

	result := pub.Publish(post, instagramTestCred())
	require.False(t, result.Success)
	assert.Contains(t, result.Message, "Invalid parameter: image_url is not reachable")
	assert.Equal(t, 1, rec.count(), "HTTP error statuses are never retried")
}

func TestInstagramStoryRequiresExactlyOneMediaItem(t *testing.T) {
	pub := NewInstagramPublisher(nil)

	post := &models.Post{
		PostType: models.PostTypeStory,
		Media:    []*models.Media{imageMedia("a"), imageMedia("b")},
	}

	result := pub.Publish(post, instagramTestCred())
	require.False(t, result.Success)
	assert.Contains(t, result.Message, "exactly one media item")
}

func TestInstagramRequiresBusinessAccount(t *testing.T) {
	pub := NewInstagramPublisher(nil)

	result := pub.Publish(&models.Post{Content: "x", Media: []*models.Media{imageMedia("a")}},
		&models.PlatformCredentials{AccessToken: "tok"})
	require.False(t, result.Success)
	assert.Contains(t, result.Message, "business account")
}
