package worker

import (
	"github.com/spec-kit/support-router/internal/service"
)

// StartNotificationWorker registers the event handlers that feed the pools.
func StartNotificationWorker(notificationService *service.NotificationService, selfHelpService *service.SelfHelpService) {
	if notificationService != nil {
		notificationService.RegisterHandlers()
	}
	if selfHelpService != nil {
		selfHelpService.RegisterHandlers()
	}
}
