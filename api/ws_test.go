package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/Takmim00/Task-Managements-server/domain"
)

type wireFrame struct {
	Event    string          `json:"event"`
	Category string          `json:"category"`
	Data     json.RawMessage `json:"data"`
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return ws
}

func writeFrame(t *testing.T, ws *websocket.Conn, event string, data any) {
	t.Helper()
	payload, err := sonic.Marshal(map[string]any{"event": event, "data": data})
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func readFrame(t *testing.T, ws *websocket.Conn) wireFrame {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var frame wireFrame
	if err := sonic.Unmarshal(data, &frame); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return frame
}

func TestWSJoinReceivesSnapshot(t *testing.T) {
	e, eng, _ := newTestServer(t)
	srv := httptest.NewServer(e)
	defer srv.Close()

	task, err := eng.Create(context.Background(), "work", "existing")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	ws := dialWS(t, srv)
	defer ws.Close()
	writeFrame(t, ws, msgJoinCategory, map[string]string{"category": "work"})

	frame := readFrame(t, ws)
	if frame.Event != domain.EventSnapshot || frame.Category != "work" {
		t.Fatalf("unexpected frame %+v", frame)
	}
	var tasks []domain.Task
	if err := json.Unmarshal(frame.Data, &tasks); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != task.ID {
		t.Fatalf("unexpected snapshot %+v", tasks)
	}
}

func TestWSCreateReachesAllChannelMembers(t *testing.T) {
	e, _, _ := newTestServer(t)
	srv := httptest.NewServer(e)
	defer srv.Close()

	c1 := dialWS(t, srv)
	defer c1.Close()
	c2 := dialWS(t, srv)
	defer c2.Close()
	writeFrame(t, c1, msgJoinCategory, map[string]string{"category": "work"})
	readFrame(t, c1) // snapshot
	writeFrame(t, c2, msgJoinCategory, map[string]string{"category": "work"})
	readFrame(t, c2) // snapshot

	writeFrame(t, c1, msgSendTask, map[string]string{"category": "work", "title": "x"})

	// The event surface returns nothing synchronously; both the originator
	// and the other member learn the outcome from the broadcast.
	for _, ws := range []*websocket.Conn{c1, c2} {
		frame := readFrame(t, ws)
		if frame.Event != domain.EventTaskCreated {
			t.Fatalf("expected %s, got %s", domain.EventTaskCreated, frame.Event)
		}
		var task domain.Task
		if err := json.Unmarshal(frame.Data, &task); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if task.ID == "" || task.Title != "x" {
			t.Fatalf("unexpected task %+v", task)
		}
	}
}

func TestWSReorderBroadcastsNewOrdering(t *testing.T) {
	e, eng, _ := newTestServer(t)
	srv := httptest.NewServer(e)
	defer srv.Close()

	t1, _ := eng.Create(context.Background(), "work", "first")
	t2, _ := eng.Create(context.Background(), "work", "second")

	ws := dialWS(t, srv)
	defer ws.Close()
	writeFrame(t, ws, msgJoinCategory, map[string]string{"category": "work"})
	readFrame(t, ws) // snapshot

	writeFrame(t, ws, msgReorderTasks, map[string]any{
		"category": "work",
		"tasks":    []map[string]string{{"id": t2.ID}, {"id": t1.ID}},
	})

	frame := readFrame(t, ws)
	if frame.Event != domain.EventTasksReordered {
		t.Fatalf("expected %s, got %s", domain.EventTasksReordered, frame.Event)
	}
	var payload domain.ReorderedTasks
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.Category != "work" || len(payload.Tasks) != 2 ||
		payload.Tasks[0].ID != t2.ID || payload.Tasks[1].ID != t1.ID {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestWSDeleteIsGlobal(t *testing.T) {
	e, eng, _ := newTestServer(t)
	srv := httptest.NewServer(e)
	defer srv.Close()

	task, _ := eng.Create(context.Background(), "work", "x")

	// Subscribed to a different category, still receives the delete.
	ws := dialWS(t, srv)
	defer ws.Close()
	writeFrame(t, ws, msgJoinCategory, map[string]string{"category": "home"})
	readFrame(t, ws) // snapshot

	other := dialWS(t, srv)
	defer other.Close()
	writeFrame(t, other, msgDeleteTask, map[string]string{"id": task.ID, "category": "work"})

	frame := readFrame(t, ws)
	if frame.Event != domain.EventTaskDeleted {
		t.Fatalf("expected %s, got %s", domain.EventTaskDeleted, frame.Event)
	}
	var ref domain.TaskRef
	if err := json.Unmarshal(frame.Data, &ref); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ref.ID != task.ID || ref.Category != "work" {
		t.Fatalf("unexpected payload %+v", ref)
	}
}

func TestWSBadFramesAreDroppedSilently(t *testing.T) {
	e, _, _ := newTestServer(t)
	srv := httptest.NewServer(e)
	defer srv.Close()

	ws := dialWS(t, srv)
	defer ws.Close()
	writeFrame(t, ws, msgJoinCategory, map[string]string{"category": "work"})
	readFrame(t, ws) // snapshot

	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	writeFrame(t, ws, "mystery_event", map[string]string{})
	writeFrame(t, ws, msgSendTask, map[string]string{"category": "work"}) // missing title
	writeFrame(t, ws, msgSendTask, map[string]string{"category": "work", "title": "valid"})

	// Only the valid mutation produces a frame.
	frame := readFrame(t, ws)
	if frame.Event != domain.EventTaskCreated {
		t.Fatalf("expected %s, got %s", domain.EventTaskCreated, frame.Event)
	}
	var task domain.Task
	if err := json.Unmarshal(frame.Data, &task); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if task.Title != "valid" {
		t.Fatalf("unexpected task %+v", task)
	}
}

func TestWSDisconnectCleansUpSubscriptions(t *testing.T) {
	e, eng, _ := newTestServer(t)
	srv := httptest.NewServer(e)
	defer srv.Close()

	gone := dialWS(t, srv)
	writeFrame(t, gone, msgJoinCategory, map[string]string{"category": "work"})
	readFrame(t, gone) // snapshot
	_ = gone.Close()
	time.Sleep(50 * time.Millisecond)

	// Broadcasting after the disconnect must not stall or fail; a
	// remaining member still receives the event.
	stays := dialWS(t, srv)
	defer stays.Close()
	writeFrame(t, stays, msgJoinCategory, map[string]string{"category": "work"})
	readFrame(t, stays) // snapshot

	if _, err := eng.Create(context.Background(), "work", "after-disconnect"); err != nil {
		t.Fatalf("create: %v", err)
	}
	frame := readFrame(t, stays)
	if frame.Event != domain.EventTaskCreated {
		t.Fatalf("expected %s, got %s", domain.EventTaskCreated, frame.Event)
	}
}
