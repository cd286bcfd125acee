package worker

import (
	"github.com/spec-kit/helpdesk/internal/service"
)

// StartFeedWorker registers the feed relay handlers.
func StartFeedWorker(feedService *service.FeedService) {
	if feedService == nil {
		return
	}
	feedService.RegisterHandlers()
}
