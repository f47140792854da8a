package realtime

import "time"

const (
	EventNewMessage       = "newMessage"
	EventRoomActivated    = "room-activated"
	EventRequestResponded = "request-responded"
	EventNotification     = "notification"
	EventError            = "error"
)

// Event is the envelope every server push is wrapped in.
type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	CreatedAt time.Time `json:"createdAt"`
}
