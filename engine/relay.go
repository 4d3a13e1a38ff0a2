package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bytedance/sonic"

	"github.com/Takmim00/Task-Managements-server/domain"
	"github.com/Takmim00/Task-Managements-server/internal/consts"
)

// Relay listens for events published by any instance and dispatches them to
// the local registry. It blocks until ctx is cancelled, reconnecting with a
// short pause whenever the pub/sub channel closes. A no-op without redis.
func (e *Engine) Relay(ctx context.Context) {
	if e.rc == nil {
		return
	}
	for {
		sub := e.rc.Subscribe(ctx, consts.EventsChannel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var wire struct {
					Type     string          `json:"event"`
					Category string          `json:"category"`
					Data     json.RawMessage `json:"data"`
				}
				if err := sonic.Unmarshal([]byte(msg.Payload), &wire); err != nil {
					e.log.Errorf("unable to parse relayed event: %v", err)
					continue
				}
				e.dispatch(domain.Event{Type: wire.Type, Category: wire.Category, Data: wire.Data})
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		e.log.Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}
