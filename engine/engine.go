// Package engine owns the synchronization protocol: snapshot delivery on
// join, per-category serialization of mutations, and the mapping from each
// mutation to the set of recipients.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/Takmim00/Task-Managements-server/domain"
	"github.com/Takmim00/Task-Managements-server/internal/consts"
	"github.com/Takmim00/Task-Managements-server/registry"
)

// Store is the persistence gateway the engine mutates through.
type Store interface {
	Insert(ctx context.Context, t domain.Task) (domain.Task, error)
	FindByID(ctx context.Context, id string) (domain.Task, error)
	FindByCategory(ctx context.Context, category string) ([]domain.Task, error)
	FindAll(ctx context.Context) ([]domain.Task, error)
	Update(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error)
	Delete(ctx context.Context, id string) (bool, error)
	BulkSetOrder(ctx context.Context, category string, ids []string) ([]domain.Task, error)
}

// DefaultTimeout bounds every storage call a mutation issues, so a stalled
// store can never hang a category lock.
const DefaultTimeout = 10 * time.Second

// Engine applies mutations and fans out the resulting events. When a redis
// client is provided, events travel through pub/sub so every instance's
// registry sees them; otherwise they dispatch to the local registry only.
type Engine struct {
	store   Store
	reg     *registry.Registry
	rc      *redis.Client
	locks   *lockTable
	timeout time.Duration
	log     *log.Logger
}

// New creates an Engine. rc may be nil for single-instance deployments.
func New(store Store, reg *registry.Registry, rc *redis.Client, timeout time.Duration, logger *log.Logger) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Engine{
		store:   store,
		reg:     reg,
		rc:      rc,
		locks:   newLockTable(),
		timeout: timeout,
		log:     logger,
	}
}

// Registry exposes the registry so transports can create connections.
func (e *Engine) Registry() *registry.Registry { return e.reg }

// Join subscribes the connection to a category and unicasts the snapshot.
// The read happens under the category lock, so a join racing a reorder sees
// either the old ordering or the new one, never a mix.
func (e *Engine) Join(ctx context.Context, c *registry.Conn, category string) error {
	if category == "" {
		return domain.ValidationError{Field: "category", Reason: "must not be empty"}
	}
	e.reg.Join(c, category)

	unlock := e.locks.lock(category)
	tctx, cancel := context.WithTimeout(ctx, e.timeout)
	tasks, err := e.store.FindByCategory(tctx, category)
	cancel()
	unlock()
	if err != nil {
		return e.storeErr(err)
	}
	e.reg.SendTo(c, domain.NewSnapshot(category, tasks))
	return nil
}

// Create inserts a task and broadcasts it to the category's subscribers,
// originator included.
func (e *Engine) Create(ctx context.Context, category, title string) (domain.Task, error) {
	if category == "" {
		return domain.Task{}, domain.ValidationError{Field: "category", Reason: "must not be empty"}
	}
	if title == "" {
		return domain.Task{}, domain.ValidationError{Field: "title", Reason: "must not be empty"}
	}

	unlock := e.locks.lock(category)
	defer unlock()

	tctx, cancel := e.bound(ctx)
	defer cancel()
	task, err := e.store.Insert(tctx, domain.Task{Category: category, Title: title})
	if err != nil {
		return domain.Task{}, e.storeErr(err)
	}
	e.emit(domain.NewTaskCreated(task))
	return task, nil
}

// Edit merges the patch into an existing task and broadcasts the result to
// every connection: the task may have changed category, and stale
// per-channel listeners have to reconcile.
func (e *Engine) Edit(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	if err := validateID(id); err != nil {
		return domain.Task{}, err
	}
	if patch.Category != nil && *patch.Category == "" {
		return domain.Task{}, domain.ValidationError{Field: "category", Reason: "must not be empty"}
	}
	if patch.Title != nil && *patch.Title == "" {
		return domain.Task{}, domain.ValidationError{Field: "title", Reason: "must not be empty"}
	}

	unlock, _, err := e.lockTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	defer unlock()

	tctx, cancel := e.bound(ctx)
	defer cancel()
	task, err := e.store.Update(tctx, id, patch)
	if err != nil {
		return domain.Task{}, e.storeErr(err)
	}
	e.emit(domain.NewTaskEdited(task))
	return task, nil
}

// Delete removes the task. A missing id returns ErrNotFound and emits
// nothing; a raced duplicate delete emits at most one event.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	unlock, current, err := e.lockTask(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	tctx, cancel := e.bound(ctx)
	defer cancel()
	removed, err := e.store.Delete(tctx, id)
	if err != nil {
		return e.storeErr(err)
	}
	if !removed {
		return domain.ErrNotFound
	}
	e.emit(domain.NewTaskDeleted(id, current.Category))
	return nil
}

// Reorder assigns ranks following the given id sequence. The ids must be
// exactly the category's current membership, otherwise the order values
// would stop forming a total order over the category.
func (e *Engine) Reorder(ctx context.Context, category string, ids []string) ([]domain.Task, error) {
	if category == "" {
		return nil, domain.ValidationError{Field: "category", Reason: "must not be empty"}
	}
	if len(ids) == 0 {
		return nil, domain.ValidationError{Field: "tasks", Reason: "must not be empty"}
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if err := validateID(id); err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			return nil, domain.ValidationError{Field: "tasks", Reason: "duplicate id " + id}
		}
		seen[id] = struct{}{}
	}

	unlock := e.locks.lock(category)
	defer unlock()

	tctx, cancel := e.bound(ctx)
	defer cancel()

	current, err := e.store.FindByCategory(tctx, category)
	if err != nil {
		return nil, e.storeErr(err)
	}
	if len(current) != len(ids) {
		return nil, domain.ValidationError{Field: "tasks", Reason: "id list must cover the whole category"}
	}
	for _, t := range current {
		if _, ok := seen[t.ID]; !ok {
			return nil, domain.ValidationError{Field: "tasks", Reason: "id list must cover the whole category"}
		}
	}

	tasks, err := e.store.BulkSetOrder(tctx, category, ids)
	if err != nil {
		return nil, e.storeErr(err)
	}
	e.emit(domain.NewTasksReordered(category, tasks))
	return tasks, nil
}

// List returns every task under the per-category ordering rule.
func (e *Engine) List(ctx context.Context) ([]domain.Task, error) {
	tctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	tasks, err := e.store.FindAll(tctx)
	if err != nil {
		return nil, e.storeErr(err)
	}
	return tasks, nil
}

// Messages returns one category's tasks ordered by creation time.
func (e *Engine) Messages(ctx context.Context, category string) ([]domain.Task, error) {
	if category == "" {
		return nil, domain.ValidationError{Field: "category", Reason: "must not be empty"}
	}
	tctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	tasks, err := e.store.FindByCategory(tctx, category)
	if err != nil {
		return nil, e.storeErr(err)
	}
	domain.SortTasksByCreated(tasks)
	return tasks, nil
}

// lockTask acquires the lock of the task's current category and returns
// the task as read under that lock. The category has to be resolved by
// re-reading after the lock is held: between the unlocked lookup and the
// lock acquisition a concurrent edit may move the task, and holding the
// old category's lock would let the mutation interleave with work on the
// task's real category. On a mismatch the stale lock is released and the
// acquisition retries against the category the re-read returned.
func (e *Engine) lockTask(ctx context.Context, id string) (func(), domain.Task, error) {
	tctx, cancel := e.bound(ctx)
	task, err := e.store.FindByID(tctx, id)
	cancel()
	if err != nil {
		return nil, domain.Task{}, e.storeErr(err)
	}
	for {
		unlock := e.locks.lock(task.Category)
		tctx, cancel := e.bound(ctx)
		check, err := e.store.FindByID(tctx, id)
		cancel()
		if err != nil {
			unlock()
			return nil, domain.Task{}, e.storeErr(err)
		}
		if check.Category == task.Category {
			return unlock, check, nil
		}
		unlock()
		task = check
	}
}

// bound derives the storage deadline for a mutation. The parent's
// cancellation is dropped on purpose: a client disconnecting mid-mutation
// must not abort the operation already in flight. Callers acquire the
// category lock first, so lock-wait time never counts against the
// storage deadline.
func (e *Engine) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
}

// emit publishes the event for fan-out. With redis configured the local
// registry is reached through the relay like every other instance; on
// publish failure delivery degrades to local-only rather than dropping the
// event entirely.
func (e *Engine) emit(ev domain.Event) {
	if e.rc == nil {
		e.dispatch(ev)
		return
	}
	data, err := sonic.Marshal(ev)
	if err != nil {
		e.log.Errorf("marshal %s event: %v", ev.Type, err)
		e.dispatch(ev)
		return
	}
	if err := e.rc.Publish(context.Background(), consts.EventsChannel, data).Err(); err != nil {
		e.log.Errorf("publish %s event: %v", ev.Type, err)
		e.dispatch(ev)
	}
}

// dispatch routes one event to its recipient set. Creates stay inside the
// category channel; edits, deletes and reorders go to every connection so
// clients watching a stale category can reconcile, filtering by category on
// their side.
func (e *Engine) dispatch(ev domain.Event) {
	switch ev.Type {
	case domain.EventTaskCreated:
		e.reg.BroadcastToChannel(ev.Category, ev)
	case domain.EventTaskEdited, domain.EventTaskDeleted, domain.EventTasksReordered:
		e.reg.BroadcastToAll(ev)
	case domain.EventSnapshot:
		// Snapshots are unicast by Join and never travel through dispatch.
	default:
		e.log.Warnf("dropping event of unknown type %s", ev.Type)
	}
}

func (e *Engine) storeErr(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrNotFound
	}
	var verr domain.ValidationError
	if errors.As(err, &verr) {
		return verr
	}
	return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ValidationError{Field: "id", Reason: "malformed identifier"}
	}
	return nil
}
