package domain

// Event names on the wire. Inherited from the original client protocol, so
// renaming any of them breaks deployed clients.
const (
	EventSnapshot       = "previous_messages"
	EventTaskCreated    = "receive_task"
	EventTaskEdited     = "edit_task"
	EventTaskDeleted    = "delete_task"
	EventTasksReordered = "update_tasks"
)

// Event is the envelope broadcast to subscribers. Data holds exactly one of
// the payload shapes below, selected by Type; Category carries the routing
// key for channel-scoped events.
type Event struct {
	Type     string `json:"event"`
	Category string `json:"category,omitempty"`
	Data     any    `json:"data,omitempty"`
}

// TaskRef identifies a deleted task. Category is included so clients can
// filter without a lookup.
type TaskRef struct {
	ID       string `json:"id"`
	Category string `json:"category,omitempty"`
}

// ReorderedTasks is the payload of an EventTasksReordered broadcast.
type ReorderedTasks struct {
	Category string `json:"category"`
	Tasks    []Task `json:"tasks"`
}

func NewSnapshot(category string, tasks []Task) Event {
	return Event{Type: EventSnapshot, Category: category, Data: tasks}
}

func NewTaskCreated(t Task) Event {
	return Event{Type: EventTaskCreated, Category: t.Category, Data: t}
}

func NewTaskEdited(t Task) Event {
	return Event{Type: EventTaskEdited, Category: t.Category, Data: t}
}

func NewTaskDeleted(id, category string) Event {
	return Event{Type: EventTaskDeleted, Category: category, Data: TaskRef{ID: id, Category: category}}
}

func NewTasksReordered(category string, tasks []Task) Event {
	return Event{Type: EventTasksReordered, Category: category, Data: ReorderedTasks{Category: category, Tasks: tasks}}
}
