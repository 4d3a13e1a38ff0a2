package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Takmim00/Task-Managements-server/domain"
)

type backend interface {
	Insert(ctx context.Context, t domain.Task) (domain.Task, error)
	FindByID(ctx context.Context, id string) (domain.Task, error)
	FindByCategory(ctx context.Context, category string) ([]domain.Task, error)
	FindAll(ctx context.Context) ([]domain.Task, error)
	Update(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error)
	Delete(ctx context.Context, id string) (bool, error)
	BulkSetOrder(ctx context.Context, category string, ids []string) ([]domain.Task, error)
	CreateUser(ctx context.Context, u domain.User) (domain.User, bool, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
}

// Cache wraps a store with redis-backed caching of the list reads. Mutations
// pass through and evict the affected keys; redis failures degrade to the
// backing store without surfacing errors to callers.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) Insert(ctx context.Context, t domain.Task) (domain.Task, error) {
	created, err := c.base.Insert(ctx, t)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, created.Category)
	return created, nil
}

func (c *Cache) FindByID(ctx context.Context, id string) (domain.Task, error) {
	return c.base.FindByID(ctx, id)
}

func (c *Cache) FindByCategory(ctx context.Context, category string) ([]domain.Task, error) {
	if tasks, ok := c.load(ctx, categoryCacheKey(category)); ok {
		return tasks, nil
	}
	tasks, err := c.base.FindByCategory(ctx, category)
	if err != nil {
		return nil, err
	}
	c.store(ctx, categoryCacheKey(category), tasks)
	return tasks, nil
}

func (c *Cache) FindAll(ctx context.Context) ([]domain.Task, error) {
	if tasks, ok := c.load(ctx, allTasksCacheKey); ok {
		return tasks, nil
	}
	tasks, err := c.base.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, allTasksCacheKey, tasks)
	return tasks, nil
}

func (c *Cache) Update(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	// The edit may move the task between categories; both category keys
	// go stale, so look up the old one before mutating.
	oldCategory := ""
	if prev, err := c.base.FindByID(ctx, id); err == nil {
		oldCategory = prev.Category
	}
	updated, err := c.base.Update(ctx, id, patch)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, updated.Category)
	if oldCategory != "" && oldCategory != updated.Category {
		c.evict(ctx, oldCategory)
	}
	return updated, nil
}

func (c *Cache) Delete(ctx context.Context, id string) (bool, error) {
	category := ""
	if prev, err := c.base.FindByID(ctx, id); err == nil {
		category = prev.Category
	}
	removed, err := c.base.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if removed {
		c.evict(ctx, category)
	}
	return removed, nil
}

func (c *Cache) BulkSetOrder(ctx context.Context, category string, ids []string) ([]domain.Task, error) {
	tasks, err := c.base.BulkSetOrder(ctx, category, ids)
	if err != nil {
		return nil, err
	}
	c.evict(ctx, category)
	return tasks, nil
}

func (c *Cache) CreateUser(ctx context.Context, u domain.User) (domain.User, bool, error) {
	return c.base.CreateUser(ctx, u)
}

func (c *Cache) ListUsers(ctx context.Context) ([]domain.User, error) {
	return c.base.ListUsers(ctx)
}

func (c *Cache) load(ctx context.Context, key string) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) store(ctx context.Context, key string, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, category string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, allTasksCacheKey, categoryCacheKey(category)).Result()
}

const allTasksCacheKey = "tasks:all"

func categoryCacheKey(category string) string {
	return "tasks:cat:" + category
}
