package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"colabcanvas/internal/models"

	"github.com/lib/pq"
)

/*
LEARNING: POSTGRES LISTEN/NOTIFY AS A CHANGEFEED

Every insert/update/delete on canvas_objects fires a trigger that publishes a
models.ChangeEvent JSON payload on the canvas_changes channel. One listener
per server process receives the stream and fans it out to room hubs, so
clients see changes made through ANY server instance, not just their own.
No polling, no extra broker.
*/

// Changefeed tails the canvas_changes NOTIFY channel.
type Changefeed struct {
	listener *pq.Listener
}

// NewChangefeed connects a listener to the canvas_changes channel.
func NewChangefeed(dsn string) (*Changefeed, error) {
	report := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Printf("changefeed: listener event %d: %v", ev, err)
		}
	}
	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, report)
	if err := listener.Listen("canvas_changes"); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to listen on canvas_changes: %w", err)
	}
	return &Changefeed{listener: listener}, nil
}

// Run decodes notifications and hands each event to fn until ctx is
// cancelled. A nil notification (connection loss) triggers a ping so pq
// re-establishes the connection. Events sent while disconnected are lost;
// clients reconcile through the object mirror on rejoin.
func (c *Changefeed) Run(ctx context.Context, fn func(models.ChangeEvent)) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-c.listener.Notify:
			if n == nil {
				go func() {
					if err := c.listener.Ping(); err != nil {
						log.Printf("changefeed: ping failed: %v", err)
					}
				}()
				continue
			}
			var ev models.ChangeEvent
			if err := json.Unmarshal([]byte(n.Extra), &ev); err != nil {
				log.Printf("changefeed: bad payload: %v", err)
				continue
			}
			fn(ev)
		case <-time.After(90 * time.Second):
			// Keep the connection honest during quiet stretches.
			go func() {
				if err := c.listener.Ping(); err != nil {
					log.Printf("changefeed: ping failed: %v", err)
				}
			}()
		}
	}
}

// Close tears down the listener connection.
func (c *Changefeed) Close() error {
	return c.listener.Close()
}
