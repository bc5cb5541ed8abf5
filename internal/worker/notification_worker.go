package worker

import (
	"github.com/spec-kit/custody-service/internal/service"
)

// StartNotificationWorker registers the audit log and cache invalidation
// handlers on the dispatcher.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}
