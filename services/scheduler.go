package services

import (
	"PostPilotAPI/database"
	"PostPilotAPI/utils"

	"github.com/robfig/cron/v3"
)

// Scheduler wakes up every minute, atomically claims due scheduled posts and
// hands them to the publisher. Claiming flips the posts to publishing status
// so a slow batch cannot be picked up twice by the next tick.
type Scheduler struct {
	cron      *cron.Cron
	db        *database.Database
	publisher *PublisherService
}

func NewScheduler(db *database.Database, publisher *PublisherService) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		db:        db,
		publisher: publisher,
	}
}

func (s *Scheduler) Start() {
	s.cron.AddFunc("@every 1m", s.publishDuePosts)
	s.cron.Start()
	utils.Infof("scheduler started")
}

func (s *Scheduler) publishDuePosts() {
	posts, err := s.db.ClaimScheduledPosts()
	if err != nil {
		utils.Errorf("claiming scheduled posts: %v", err)
		return
	}

	for _, post := range posts {
		// A claimed post is due right now. Its stored schedule time is in
		// the past and must not reach the adapters, which read a remaining
		// ScheduledFor as native platform scheduling intent and would
		// reject the stale timestamp.
		post.ScheduledFor = nil
		utils.Infof("publishing scheduled post post_id=%s platforms=%v", post.ID, post.Platforms)
		s.publisher.PublishPost(post)
	}
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}
