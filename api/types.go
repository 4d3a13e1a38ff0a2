package api

import (
	"context"

	"github.com/Takmim00/Task-Managements-server/domain"
	"github.com/Takmim00/Task-Managements-server/registry"
)

// Engine is the synchronization core both entry surfaces normalize into,
// one method per mutation kind.
type Engine interface {
	Join(ctx context.Context, c *registry.Conn, category string) error
	Create(ctx context.Context, category, title string) (domain.Task, error)
	Edit(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error)
	Delete(ctx context.Context, id string) error
	Reorder(ctx context.Context, category string, ids []string) ([]domain.Task, error)
	List(ctx context.Context) ([]domain.Task, error)
	Messages(ctx context.Context, category string) ([]domain.Task, error)
	Registry() *registry.Registry
}

// Users is the registration store. User CRUD never touches the engine;
// there is nothing to synchronize.
type Users interface {
	CreateUser(ctx context.Context, u domain.User) (domain.User, bool, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
}
