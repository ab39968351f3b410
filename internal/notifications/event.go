package notifications

// Outbound event types on the chat connection.
const (
	EventConnected       = "connected"
	EventSubscribed      = "subscribed"
	EventUnsubscribed    = "unsubscribed"
	EventHistory         = "history"
	EventMessage         = "message"
	EventStatus          = "status"
	EventReceipt         = "receipt"
	EventError           = "error"
	EventMessagesDropped = "messages_dropped"
	EventServerShutdown  = "server_shutdown"
)

// ChatEvent is the envelope of every frame sent to a chat client.
type ChatEvent struct {
	Type      string `json:"type"`
	RequestID uint   `json:"request_id,omitempty"`
	UserID    uint   `json:"user_id,omitempty"`
	Payload   any    `json:"payload"`
}

// ErrorPayload is the payload of an error event.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Receipt string `json:"receipt,omitempty"`
}

// StatusPayload announces a lifecycle transition to a request's channel.
type StatusPayload struct {
	Status     string `json:"status"`
	ItemStatus string `json:"item_status"`
	ChatActive bool   `json:"chat_active"`
}
