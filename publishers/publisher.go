package publishers

import (
	"PostPilotAPI/models"
)

// PlatformPublisher drives one platform's upload-and-publish protocol to
// completion for a single post and reports a single pass/fail outcome.
type PlatformPublisher interface {
	Publish(post *models.Post, credentials *models.PlatformCredentials) models.PublishResult
}
