package worker

import (
	"github.com/spec-kit/support-relay/internal/events"
	"github.com/spec-kit/support-relay/internal/service"
)

// StartNotificationWorker registers notification handlers.
func StartNotificationWorker(notifier *service.NotifierService, dispatcher events.Dispatcher) {
	if notifier == nil {
		return
	}
	notifier.RegisterHandlers(dispatcher)
}
