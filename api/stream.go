package api

import (
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/Takmim00/Task-Managements-server/internal/consts"
)

// streamCategory serves a read-only subscription over server-sent events
// for clients that cannot hold a websocket. The snapshot arrives as the
// first frame, followed by every event the connection is a recipient of.
func streamCategory(eng Engine, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		conn := eng.Registry().NewConn()
		defer eng.Registry().LeaveAll(conn)

		ctx := c.Request().Context()
		if err := eng.Join(ctx, conn, c.Param("category")); err != nil {
			return writeError(c, err)
		}

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		for {
			select {
			case <-ctx.Done():
				return nil
			case ev := <-conn.Events():
				data, err := sonic.Marshal(ev)
				if err != nil {
					logger.Errorf("marshal %s frame: %v", ev.Type, err)
					continue
				}
				if _, err := c.Response().Write([]byte(consts.SSEDataPrefix)); err != nil {
					return nil
				}
				if _, err := c.Response().Write(data); err != nil {
					return nil
				}
				if _, err := c.Response().Write([]byte("\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			}
		}
	}
}
