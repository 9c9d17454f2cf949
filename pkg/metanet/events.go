package metanet

// EventType labels orchestrator lifecycle events.
type EventType string

const (
	EventMetadataNetworkCreated EventType = "metadata-network-created"
	EventMetadataNetworkRemoved EventType = "metadata-network-removed"
)

// Event records a metadata network lifecycle transition.
type Event struct {
	Type      EventType
	RouterID  string
	NetworkID string
}

// EventSink receives orchestrator events. Implementations must not block.
type EventSink interface {
	RecordEvent(Event)
}
