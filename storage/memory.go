package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/Takmim00/Task-Managements-server/domain"
)

// Memory is a mutex-guarded in-process store. It backs unit tests and the
// STORAGE_IN_MEMORY development mode; its semantics are the contract the
// table-backed store must match.
type Memory struct {
	mu    sync.Mutex
	tasks map[string]domain.Task
	users map[string]domain.User // keyed by email
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		tasks: make(map[string]domain.Task),
		users: make(map[string]domain.User),
	}
}

// Insert assigns an id and creation timestamp and stores the task.
func (m *Memory) Insert(ctx context.Context, t domain.Task) (domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return domain.Task{}, err
	}
	t.ID = uuid.NewString()
	t.Created = nextTimestamp()
	m.mu.Lock()
	m.tasks[t.ID] = t
	m.mu.Unlock()
	return t, nil
}

// FindByID returns the task with the given id or domain.ErrNotFound.
func (m *Memory) FindByID(ctx context.Context, id string) (domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return domain.Task{}, err
	}
	m.mu.Lock()
	t, ok := m.tasks[id]
	m.mu.Unlock()
	if !ok {
		return domain.Task{}, domain.ErrNotFound
	}
	return cloneTask(t), nil
}

// FindByCategory returns the category's tasks under the standard ordering
// rule.
func (m *Memory) FindByCategory(ctx context.Context, category string) ([]domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	tasks := []domain.Task{}
	for _, t := range m.tasks {
		if t.Category == category {
			tasks = append(tasks, cloneTask(t))
		}
	}
	m.mu.Unlock()
	domain.SortTasks(tasks)
	return tasks, nil
}

// FindAll returns every task, grouped by category with the per-category
// ordering rule applied inside each group.
func (m *Memory) FindAll(ctx context.Context) ([]domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	byCategory := map[string][]domain.Task{}
	categories := []string{}
	for _, t := range m.tasks {
		if _, ok := byCategory[t.Category]; !ok {
			categories = append(categories, t.Category)
		}
		byCategory[t.Category] = append(byCategory[t.Category], cloneTask(t))
	}
	m.mu.Unlock()
	return concatByCategory(byCategory, categories), nil
}

// Update merges the patch into the stored task.
func (m *Memory) Update(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return domain.Task{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return domain.Task{}, domain.ErrNotFound
	}
	applyPatch(&t, patch)
	m.tasks[id] = t
	return cloneTask(t), nil
}

// Delete removes the task and reports whether anything was removed. Missing
// ids are not an error.
func (m *Memory) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return false, nil
	}
	delete(m.tasks, id)
	return true, nil
}

// BulkSetOrder assigns order = index for each id and returns the category's
// tasks in the new order. The whole assignment happens under one lock so
// readers see either the old or the new ordering, never a mix.
func (m *Memory) BulkSetOrder(ctx context.Context, category string, ids []string) ([]domain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Task, 0, len(ids))
	for i, id := range ids {
		t, ok := m.tasks[id]
		if !ok || t.Category != category {
			return nil, domain.ValidationError{Field: "tasks", Reason: "id " + id + " does not belong to category " + category}
		}
		rank := i
		t.Order = &rank
		m.tasks[id] = t
		out = append(out, cloneTask(t))
	}
	return out, nil
}

// CreateUser stores the user unless the email is already registered. The
// second return reports whether a new record was created.
func (m *Memory) CreateUser(ctx context.Context, u domain.User) (domain.User, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.users[u.Email]; ok {
		return existing, false, nil
	}
	u.ID = uuid.NewString()
	u.Created = nextTimestamp()
	m.users[u.Email] = u
	return u, true, nil
}

// ListUsers returns every registered user ordered by registration time.
func (m *Memory) ListUsers(ctx context.Context) ([]domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	users := make([]domain.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	m.mu.Unlock()
	sortUsers(users)
	return users, nil
}

func cloneTask(t domain.Task) domain.Task {
	if t.Order != nil {
		o := *t.Order
		t.Order = &o
	}
	return t
}

func applyPatch(t *domain.Task, patch domain.TaskPatch) {
	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Category != nil {
		t.Category = *patch.Category
	}
	if patch.Order != nil {
		o := *patch.Order
		t.Order = &o
	}
}
