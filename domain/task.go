package domain

import "sort"

// Task represents a single synchronized list item. Order is nil until the
// first reorder touches the task's category.
type Task struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Title    string `json:"title"`
	Order    *int   `json:"order,omitempty"`
	Created  int64  `json:"timestamp"`
}

// User is the registration record persisted alongside tasks.
type User struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email"`
	Photo   string `json:"photo,omitempty"`
	Created int64  `json:"timestamp"`
}

// TaskPatch carries the fields an edit may change. Nil means "leave as is".
type TaskPatch struct {
	Title    *string `json:"title,omitempty"`
	Category *string `json:"category,omitempty"`
	Order    *int    `json:"order,omitempty"`
}

// SortTasks orders tasks for a single category: by Order ascending when any
// task carries one, otherwise by creation time. Ties break by creation time
// then ID so iteration is deterministic.
func SortTasks(tasks []Task) {
	ordered := false
	for i := range tasks {
		if tasks[i].Order != nil {
			ordered = true
			break
		}
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if ordered && a.Order != nil && b.Order != nil && *a.Order != *b.Order {
			return *a.Order < *b.Order
		}
		if ordered && (a.Order == nil) != (b.Order == nil) {
			// Unordered stragglers sort after ranked tasks.
			return b.Order == nil
		}
		if a.Created != b.Created {
			return a.Created < b.Created
		}
		return a.ID < b.ID
	})
}

// SortTasksByCreated orders tasks by creation time regardless of rank,
// ties broken by ID.
func SortTasksByCreated(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].Created != tasks[j].Created {
			return tasks[i].Created < tasks[j].Created
		}
		return tasks[i].ID < tasks[j].ID
	})
}
