package services

import (
	"database/sql"
	"sync"
	"testing"
	"time"

	"PostPilotAPI/models"
	"PostPilotAPI/publishers"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	platform models.Platform

	mu    sync.Mutex
	posts []*models.Post
}

func (r *recordingPublisher) Publish(post *models.Post, cred *models.PlatformCredentials) models.PublishResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts = append(r.posts, post)
	return models.PublishResult{Platform: r.platform, Success: true, Message: "ok", PostID: "ig-1"}
}

func TestPublishDuePostsClearsStaleScheduleBeforeAdapters(t *testing.T) {
	ps, mock := newMockedPublisherService(t)
	rec := &recordingPublisher{platform: models.Instagram}
	ps.publishers = map[models.Platform]publishers.PlatformPublisher{
		models.Instagram: rec,
	}

	now := time.Now()
	due := now.Add(-30 * time.Second)
	claimed := sqlmock.NewRows([]string{"id", "user_id", "content", "post_type", "privacy_level",
		"media_ids", "platforms", "status", "scheduled_for", "published_at", "created_at", "updated_at"}).
		AddRow("post-1", "user-1", "due post", "normal", "", "{}", "{instagram}",
			"publishing", due, nil, now, now)

	mock.ExpectQuery("UPDATE posts").WillReturnRows(claimed)
	mock.ExpectQuery("SELECT (.+) FROM credentials").WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO publish_results").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE posts SET").WillReturnResult(sqlmock.NewResult(0, 1))

	sched := NewScheduler(ps.db, ps)
	sched.publishDuePosts()

	require.Len(t, rec.posts, 1, "claimed post must reach the publisher")
	assert.Nil(t, rec.posts[0].ScheduledFor,
		"a claimed post is due now and must not carry its past schedule time to the adapters")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishDuePostsSkipsBatchOnClaimError(t *testing.T) {
	ps, mock := newMockedPublisherService(t)
	rec := &recordingPublisher{platform: models.Instagram}
	ps.publishers = map[models.Platform]publishers.PlatformPublisher{
		models.Instagram: rec,
	}

	mock.ExpectQuery("UPDATE posts").WillReturnError(sql.ErrConnDone)

	sched := NewScheduler(ps.db, ps)
	sched.publishDuePosts()

	assert.Empty(t, rec.posts)
	assert.NoError(t, mock.ExpectationsWereMet())
}
