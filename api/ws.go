package api

import (
	"context"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/Takmim00/Task-Managements-server/registry"
)

// Origin policy is handled by the CORS layer in front of the routes.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// Inbound frame names. These mirror the outbound set in domain/events.go
// and come from the original client protocol.
const (
	msgJoinCategory = "join_category"
	msgSendTask     = "send_task"
	msgDeleteTask   = "delete_task"
	msgReorderTasks = "reorder_tasks"
)

type inboundFrame struct {
	Event string                 `json:"event"`
	Data  sonic.NoCopyRawMessage `json:"data"`
}

type joinData struct {
	Category string `json:"category"`
}

type sendTaskData struct {
	Category string `json:"category"`
	Title    string `json:"title"`
}

type deleteTaskData struct {
	ID       string `json:"id"`
	Category string `json:"category"`
}

type reorderTasksData struct {
	Category string `json:"category"`
	Tasks    []struct {
		ID string `json:"id"`
	} `json:"tasks"`
}

// serveWS upgrades the connection and runs the event surface. A mutation
// arriving here produces no synchronous reply; the originator learns the
// outcome from the broadcast like every other subscriber. Failed
// validations are logged and dropped, never broadcast.
func serveWS(eng Engine, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return err
		}
		conn := eng.Registry().NewConn()
		done := make(chan struct{})
		go writeLoop(ws, conn, done, logger)

		readLoop(c.Request().Context(), ws, eng, conn, logger)

		// The connection is gone; its subscriptions must not outlive it.
		eng.Registry().LeaveAll(conn)
		close(done)
		_ = ws.Close()
		return nil
	}
}

func writeLoop(ws *websocket.Conn, conn *registry.Conn, done <-chan struct{}, logger *log.Logger) {
	for {
		select {
		case <-done:
			return
		case ev := <-conn.Events():
			data, err := sonic.Marshal(ev)
			if err != nil {
				logger.Errorf("marshal %s frame: %v", ev.Type, err)
				continue
			}
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debugf("write to %s: %v", conn.ID(), err)
				return
			}
		}
	}
}

func readLoop(ctx context.Context, ws *websocket.Conn, eng Engine, conn *registry.Conn, logger *log.Logger) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			logger.Debugf("read from %s: %v", conn.ID(), err)
			return
		}
		var frame inboundFrame
		if err := sonic.Unmarshal(data, &frame); err != nil {
			logger.Warnf("unable to parse frame from %s: %v", conn.ID(), err)
			continue
		}
		handleFrame(ctx, eng, conn, frame, logger)
	}
}

func handleFrame(ctx context.Context, eng Engine, conn *registry.Conn, frame inboundFrame, logger *log.Logger) {
	switch frame.Event {
	case msgJoinCategory:
		var d joinData
		if err := sonic.Unmarshal(frame.Data, &d); err != nil {
			logger.Warnf("parse %s: %v", frame.Event, err)
			return
		}
		if err := eng.Join(ctx, conn, d.Category); err != nil {
			logger.Warnf("join %q from %s: %v", d.Category, conn.ID(), err)
		}
	case msgSendTask:
		var d sendTaskData
		if err := sonic.Unmarshal(frame.Data, &d); err != nil {
			logger.Warnf("parse %s: %v", frame.Event, err)
			return
		}
		if _, err := eng.Create(ctx, d.Category, d.Title); err != nil {
			logger.Warnf("create in %q from %s: %v", d.Category, conn.ID(), err)
		}
	case msgDeleteTask:
		var d deleteTaskData
		if err := sonic.Unmarshal(frame.Data, &d); err != nil {
			logger.Warnf("parse %s: %v", frame.Event, err)
			return
		}
		if err := eng.Delete(ctx, d.ID); err != nil {
			logger.Warnf("delete %q from %s: %v", d.ID, conn.ID(), err)
		}
	case msgReorderTasks:
		var d reorderTasksData
		if err := sonic.Unmarshal(frame.Data, &d); err != nil {
			logger.Warnf("parse %s: %v", frame.Event, err)
			return
		}
		ids := make([]string, 0, len(d.Tasks))
		for _, t := range d.Tasks {
			ids = append(ids, t.ID)
		}
		if _, err := eng.Reorder(ctx, d.Category, ids); err != nil {
			logger.Warnf("reorder %q from %s: %v", d.Category, conn.ID(), err)
		}
	default:
		logger.Warnf("received unknown event %q from %s - ignoring it", frame.Event, conn.ID())
	}
}
