package handlers

import (
	"testing"
	"time"

	"PostPilotAPI/models"

	"github.com/stretchr/testify/assert"
)

func TestValidatePostShapeRejectsMixedInstagramCarousel(t *testing.T) {
	post := &models.Post{
		Platforms: []models.Platform{models.Instagram},
		Media: []*models.Media{
			{ID: "m1", Type: models.MediaImage},
			{ID: "m2", Type: models.MediaVideo},
		},
	}

	msg := validatePostShape(post)
	assert.Contains(t, msg, "cannot mix images and videos")
}

func TestValidatePostShapeAllowsUniformCarousels(t *testing.T) {
	images := &models.Post{
		Platforms: []models.Platform{models.Instagram},
		Media: []*models.Media{
			{ID: "m1", Type: models.MediaImage},
			{ID: "m2", Type: models.MediaImage},
		},
	}
	assert.Empty(t, validatePostShape(images))

	videos := &models.Post{
		Platforms: []models.Platform{models.Instagram},
		Media: []*models.Media{
			{ID: "m1", Type: models.MediaVideo},
			{ID: "m2", Type: models.MediaVideo},
		},
	}
	assert.Empty(t, validatePostShape(videos))
}

func TestValidatePostShapeIgnoresMixesOnOtherPlatforms(t *testing.T) {
	post := &models.Post{
		Platforms: []models.Platform{models.Twitter, models.Facebook},
		Media: []*models.Media{
			{ID: "m1", Type: models.MediaImage},
			{ID: "m2", Type: models.MediaVideo},
		},
	}

	assert.Empty(t, validatePostShape(post))
}

func TestValidatePostShapeEnforcesInstagramScheduleLead(t *testing.T) {
	soon := time.Now().Add(5 * time.Minute)
	post := &models.Post{
		Platforms:    []models.Platform{models.Instagram},
		ScheduledFor: &soon,
	}

	msg := validatePostShape(post)
	assert.Contains(t, msg, "13 minutes")

	later := time.Now().Add(time.Hour)
	post.ScheduledFor = &later
	assert.Empty(t, validatePostShape(post))
}

func TestValidatePostShapeAllowsShortLeadOnOtherPlatforms(t *testing.T) {
	soon := time.Now().Add(2 * time.Minute)
	post := &models.Post{
		Platforms:    []models.Platform{models.Twitter},
		ScheduledFor: &soon,
	}

	assert.Empty(t, validatePostShape(post))
}

func TestIsKnownPlatform(t *testing.T) {
	for _, platform := range models.AllPlatforms {
		assert.True(t, isKnownPlatform(platform), string(platform))
	}
	assert.False(t, isKnownPlatform(models.Platform("myspace")))
	assert.False(t, isKnownPlatform(models.Platform("")))
}
