package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"

	"github.com/Takmim00/Task-Managements-server/domain"
)

const (
	taskPartition = "task"
	userPartition = "user"
)

// Storage provides access to the durable table store. All tasks share one
// partition so that BulkSetOrder can run as a single entity-group
// transaction; users are keyed by email so uniqueness falls out of insert
// conflict detection.
type Storage struct {
	taskTable *aztables.Client
	userTable *aztables.Client
}

// New creates a Storage instance from the given connection string.
func New(connStr, tasksTable, usersTable string) (*Storage, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Storage{
		taskTable: svc.NewClient(tasksTable),
		userTable: svc.NewClient(usersTable),
	}, nil
}

type taskEntity struct {
	aztables.Entity
	Category string `json:"Category"`
	Title    string `json:"Title"`
	Order    *int   `json:"Order"`
	Created  int64  `json:"Created"`
}

func (e taskEntity) toTask() domain.Task {
	t := domain.Task{
		ID:       e.RowKey,
		Category: e.Category,
		Title:    e.Title,
		Created:  e.Created,
	}
	if e.Order != nil {
		o := *e.Order
		t.Order = &o
	}
	return t
}

func taskPayload(t domain.Task) ([]byte, error) {
	ent := map[string]any{
		"PartitionKey": taskPartition,
		"RowKey":       t.ID,
		"Category":     t.Category,
		"Title":        t.Title,
		"Created":      t.Created,
	}
	if t.Order != nil {
		ent["Order"] = *t.Order
	}
	return json.Marshal(ent)
}

// Insert assigns an id and creation timestamp, then adds the entity.
func (s *Storage) Insert(ctx context.Context, t domain.Task) (domain.Task, error) {
	t.ID = uuid.NewString()
	t.Created = nextTimestamp()
	payload, err := taskPayload(t)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.taskTable.AddEntity(ctx, payload, nil); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// FindByID fetches a single task, mapping a missing entity to ErrNotFound.
func (s *Storage) FindByID(ctx context.Context, id string) (domain.Task, error) {
	resp, err := s.taskTable.GetEntity(ctx, taskPartition, id, nil)
	if err != nil {
		if isStatus(err, 404) {
			return domain.Task{}, domain.ErrNotFound
		}
		return domain.Task{}, err
	}
	var ent taskEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.Task{}, err
	}
	return ent.toTask(), nil
}

// FindByCategory retrieves all tasks of one category under the standard
// ordering rule.
func (s *Storage) FindByCategory(ctx context.Context, category string) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + taskPartition + "' and Category eq '" + escapeODataString(category) + "'"
	tasks, err := s.listTasks(ctx, filter)
	if err != nil {
		return nil, err
	}
	domain.SortTasks(tasks)
	return tasks, nil
}

// FindAll retrieves every task, each category's slice ordered by the
// standard rule and the categories concatenated in name order.
func (s *Storage) FindAll(ctx context.Context) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + taskPartition + "'"
	tasks, err := s.listTasks(ctx, filter)
	if err != nil {
		return nil, err
	}
	byCategory := map[string][]domain.Task{}
	categories := []string{}
	for _, t := range tasks {
		if _, ok := byCategory[t.Category]; !ok {
			categories = append(categories, t.Category)
		}
		byCategory[t.Category] = append(byCategory[t.Category], t)
	}
	return concatByCategory(byCategory, categories), nil
}

func (s *Storage) listTasks(ctx context.Context, filter string) ([]domain.Task, error) {
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			tasks = append(tasks, ent.toTask())
		}
	}
	return tasks, nil
}

// Update merges the patch into the stored task and replaces the entity.
func (s *Storage) Update(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	t, err := s.FindByID(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	applyPatch(&t, patch)
	payload, err := taskPayload(t)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{UpdateMode: aztables.UpdateModeReplace}); err != nil {
		if isStatus(err, 404) {
			return domain.Task{}, domain.ErrNotFound
		}
		return domain.Task{}, err
	}
	return t, nil
}

// Delete removes the entity and reports whether anything was removed; a
// missing id is not an error.
func (s *Storage) Delete(ctx context.Context, id string) (bool, error) {
	if _, err := s.taskTable.DeleteEntity(ctx, taskPartition, id, nil); err != nil {
		if isStatus(err, 404) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// BulkSetOrder assigns order = index for each id in one entity-group
// transaction, so readers observe either the old ordering or the new one.
func (s *Storage) BulkSetOrder(ctx context.Context, category string, ids []string) ([]domain.Task, error) {
	actions := make([]aztables.TransactionAction, 0, len(ids))
	for i, id := range ids {
		ent := map[string]any{
			"PartitionKey": taskPartition,
			"RowKey":       id,
			"Order":        i,
		}
		payload, err := json.Marshal(ent)
		if err != nil {
			return nil, err
		}
		actions = append(actions, aztables.TransactionAction{
			ActionType: aztables.TransactionTypeUpdateMerge,
			Entity:     payload,
		})
	}
	if _, err := s.taskTable.SubmitTransaction(ctx, actions, nil); err != nil {
		return nil, err
	}
	return s.FindByCategory(ctx, category)
}

type userEntity struct {
	aztables.Entity
	ID      string `json:"Id"`
	Name    string `json:"Name"`
	Photo   string `json:"Photo"`
	Created int64  `json:"Created"`
}

func (e userEntity) toUser() domain.User {
	return domain.User{ID: e.ID, Name: e.Name, Email: e.RowKey, Photo: e.Photo, Created: e.Created}
}

// CreateUser registers a user. Email is the row key, so a duplicate
// registration surfaces as an insert conflict and the existing record is
// returned with created=false.
func (s *Storage) CreateUser(ctx context.Context, u domain.User) (domain.User, bool, error) {
	u.ID = uuid.NewString()
	u.Created = nextTimestamp()
	ent := map[string]any{
		"PartitionKey": userPartition,
		"RowKey":       u.Email,
		"Id":           u.ID,
		"Name":         u.Name,
		"Photo":        u.Photo,
		"Created":      u.Created,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return domain.User{}, false, err
	}
	if _, err := s.userTable.AddEntity(ctx, payload, nil); err != nil {
		if isStatus(err, 409) {
			existing, gerr := s.findUser(ctx, u.Email)
			if gerr != nil {
				return domain.User{}, false, gerr
			}
			return existing, false, nil
		}
		return domain.User{}, false, err
	}
	return u, true, nil
}

func (s *Storage) findUser(ctx context.Context, email string) (domain.User, error) {
	resp, err := s.userTable.GetEntity(ctx, userPartition, email, nil)
	if err != nil {
		return domain.User{}, err
	}
	var ent userEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.User{}, err
	}
	return ent.toUser(), nil
}

// ListUsers returns every registered user ordered by registration time.
func (s *Storage) ListUsers(ctx context.Context) ([]domain.User, error) {
	filter := "PartitionKey eq '" + userPartition + "'"
	pager := s.userTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	users := []domain.User{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent userEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			users = append(users, ent.toUser())
		}
	}
	sortUsers(users)
	return users, nil
}

func isStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}

func escapeODataString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func concatByCategory(byCategory map[string][]domain.Task, categories []string) []domain.Task {
	sort.Strings(categories)
	out := []domain.Task{}
	for _, c := range categories {
		group := byCategory[c]
		domain.SortTasks(group)
		out = append(out, group...)
	}
	return out
}

func sortUsers(users []domain.User) {
	sort.SliceStable(users, func(i, j int) bool {
		if users[i].Created != users[j].Created {
			return users[i].Created < users[j].Created
		}
		return users[i].Email < users[j].Email
	})
}
