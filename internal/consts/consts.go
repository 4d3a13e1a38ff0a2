package consts

const (
	// EventsChannel is the redis pub/sub channel carrying mutation events
	// between instances.
	EventsChannel = "task-events"

	// SSEDataPrefix prefixes every server-sent-events frame.
	SSEDataPrefix = "data: "
)
