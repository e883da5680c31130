package messaging

// Broadcaster defines the interface for managing SSE client connections and broadcasting messages.
type Broadcaster interface {
	AddClient() (string, chan string)
	RemoveClient(id string)
	ClientCount() int
	Broadcast(event string, payload any)
}

var _ Broadcaster = (*SSEBroadcaster)(nil)
