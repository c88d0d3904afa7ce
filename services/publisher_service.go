package services

import (
	"net/http"
	"sync"
	"time"

	"PostPilotAPI/config"
	"PostPilotAPI/database"
	"PostPilotAPI/models"
	"PostPilotAPI/publishers"
	"PostPilotAPI/utils"
)

// PublisherService coordinates a publish request across platforms: it picks
// the publisher for each requested platform, runs them concurrently (each
// publish is independent and carries no shared state), and aggregates one
// PublishResult per platform.
type PublisherService struct {
	db         *database.Database
	publishers map[models.Platform]publishers.PlatformPublisher
}

func NewPublisherService(db *database.Database) *PublisherService {
	client := &http.Client{Timeout: 30 * time.Second}
	return &PublisherService{
		db: db,
		publishers: map[models.Platform]publishers.PlatformPublisher{
			models.Twitter:   publishers.NewTwitterPublisher(client),
			models.Facebook:  publishers.NewFacebookPublisher(client),
			models.LinkedIn:  publishers.NewLinkedInPublisher(client),
			models.Instagram: publishers.NewInstagramPublisher(client),
			models.TikTok:    publishers.NewTikTokPublisher(client),
			models.YouTube:   publishers.NewYouTubePublisher(nil),
		},
	}
}

// PublishPost fans the post out to every requested platform and returns the
// per-platform outcomes. The post ends up published when at least one
// platform accepted it, failed when all of them rejected it.
func (ps *PublisherService) PublishPost(post *models.Post) []models.PublishResult {
	var wg sync.WaitGroup
	results := make([]models.PublishResult, len(post.Platforms))

	// Platforms fetch media by reference, so they get short-lived signed URLs
	// rather than the bare upload paths.
	outbound := *post
	if len(post.Media) > 0 {
		outbound.Media = utils.SignMediaList(post.Media, config.Load().MediaSigningKey, time.Hour)
	}

	for i, platform := range post.Platforms {
		wg.Add(1)
		go func(idx int, plt models.Platform) {
			defer wg.Done()

			publisher, ok := ps.publishers[plt]
			if !ok {
				results[idx] = models.PublishResult{
					Platform: plt,
					Success:  false,
					Message:  "Platform not supported",
				}
				return
			}

			credentials, err := ps.db.GetCredentials(post.UserID, plt)
			if err != nil {
				utils.Warnf("no credentials for publish post_id=%s platform=%s", post.ID, plt)
			}

			result := publisher.Publish(&outbound, credentials)
			results[idx] = result

			if err := ps.db.SavePublishResult(post.ID, result); err != nil {
				utils.Errorf("saving publish result post_id=%s platform=%s err=%v", post.ID, plt, err)
			}
		}(i, platform)
	}

	wg.Wait()

	anySuccess := false
	for _, r := range results {
		if r.Success {
			anySuccess = true
			break
		}
	}

	now := time.Now()
	if anySuccess {
		post.Status = models.StatusPublished
		post.PublishedAt = &now
	} else {
		post.Status = models.StatusFailed
	}
	post.UpdatedAt = now
	if err := ps.db.UpdatePost(post); err != nil {
		utils.Errorf("updating post after publish post_id=%s err=%v", post.ID, err)
	}

	return results
}
