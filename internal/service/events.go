package service

// Realtime event types pushed to connected clients so they refetch stale views
const (
	EventApprovalDecided = "approval.decided"
	EventClockChanged    = "clock.changed"
	EventSyncCompleted   = "sync.completed"
)

// Publisher fans events out to connected clients
type Publisher interface {
	Publish(eventType string, data interface{})
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, interface{}) {}

func publisherOrNop(p Publisher) Publisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}
