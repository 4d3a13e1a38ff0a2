package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/Takmim00/Task-Managements-server/domain"
)

func TestMemoryInsertAssignsIDAndTimestamp(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	a, err := m.Insert(ctx, domain.Task{Category: "work", Title: "first"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	b, err := m.Insert(ctx, domain.Task{Category: "work", Title: "second"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct ids, got %q and %q", a.ID, b.ID)
	}
	if b.Created <= a.Created {
		t.Fatalf("expected strictly increasing timestamps, got %d then %d", a.Created, b.Created)
	}
}

func TestMemoryFindByCategoryOrdering(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	a, _ := m.Insert(ctx, domain.Task{Category: "work", Title: "a"})
	b, _ := m.Insert(ctx, domain.Task{Category: "work", Title: "b"})
	if _, err := m.Insert(ctx, domain.Task{Category: "home", Title: "elsewhere"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	tasks, err := m.FindByCategory(ctx, "work")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(tasks) != 2 || tasks[0].ID != a.ID || tasks[1].ID != b.ID {
		t.Fatalf("expected creation order [%s %s], got %+v", a.ID, b.ID, tasks)
	}

	if _, err := m.BulkSetOrder(ctx, "work", []string{b.ID, a.ID}); err != nil {
		t.Fatalf("bulk set order: %v", err)
	}
	tasks, err = m.FindByCategory(ctx, "work")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if tasks[0].ID != b.ID || tasks[1].ID != a.ID {
		t.Fatalf("expected rank order [%s %s], got %+v", b.ID, a.ID, tasks)
	}
	for i, task := range tasks {
		if task.Order == nil || *task.Order != i {
			t.Fatalf("expected order %d on %s, got %+v", i, task.ID, task.Order)
		}
	}
}

func TestMemoryBulkSetOrderRejectsForeignID(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	a, _ := m.Insert(ctx, domain.Task{Category: "work", Title: "a"})
	stray, _ := m.Insert(ctx, domain.Task{Category: "home", Title: "stray"})

	var verr domain.ValidationError
	if _, err := m.BulkSetOrder(ctx, "work", []string{a.ID, stray.ID}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMemoryUpdateMergesFields(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	task, _ := m.Insert(ctx, domain.Task{Category: "work", Title: "before"})

	title := "after"
	updated, err := m.Update(ctx, task.ID, domain.TaskPatch{Title: &title})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "after" || updated.Category != "work" || updated.Created != task.Created {
		t.Fatalf("unexpected merge result %+v", updated)
	}

	if _, err := m.Update(ctx, "missing", domain.TaskPatch{Title: &title}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryDeleteIsIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	task, _ := m.Insert(ctx, domain.Task{Category: "work", Title: "x"})

	removed, err := m.Delete(ctx, task.ID)
	if err != nil || !removed {
		t.Fatalf("expected removal, got removed=%v err=%v", removed, err)
	}
	removed, err = m.Delete(ctx, task.ID)
	if err != nil || removed {
		t.Fatalf("expected no-op, got removed=%v err=%v", removed, err)
	}
}

func TestMemoryFindAllGroupsByCategory(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	w1, _ := m.Insert(ctx, domain.Task{Category: "work", Title: "w1"})
	h1, _ := m.Insert(ctx, domain.Task{Category: "home", Title: "h1"})
	w2, _ := m.Insert(ctx, domain.Task{Category: "work", Title: "w2"})

	tasks, err := m.FindAll(ctx)
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	want := []string{h1.ID, w1.ID, w2.ID} // categories concatenated in name order
	if len(tasks) != len(want) {
		t.Fatalf("expected %d tasks, got %d", len(want), len(tasks))
	}
	for i := range want {
		if tasks[i].ID != want[i] {
			t.Fatalf("expected %v, got %+v", want, tasks)
		}
	}
}

func TestMemoryCreateUserDetectsDuplicates(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	u, created, err := m.CreateUser(ctx, domain.User{Name: "A", Email: "a@example.com"})
	if err != nil || !created {
		t.Fatalf("expected creation, got created=%v err=%v", created, err)
	}
	if u.ID == "" || u.Created == 0 {
		t.Fatalf("expected assigned id and timestamp, got %+v", u)
	}

	dup, created, err := m.CreateUser(ctx, domain.User{Name: "B", Email: "a@example.com"})
	if err != nil || created {
		t.Fatalf("expected duplicate, got created=%v err=%v", created, err)
	}
	if dup.ID != u.ID || dup.Name != "A" {
		t.Fatalf("expected the existing record back, got %+v", dup)
	}

	users, err := m.ListUsers(ctx)
	if err != nil || len(users) != 1 {
		t.Fatalf("expected one user, got %v err=%v", users, err)
	}
}
