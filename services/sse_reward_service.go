package services

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"
)

// StreamRewardEvents writes the user's reward events to w as Server-Sent
// Events until ctx is done or the client goes away. A comment line is sent
// every keepAlive so proxies keep the connection open. On a nil bus only the
// keepalives are written.
func (b *RewardEventBus) StreamRewardEvents(ctx context.Context, userID int64, w *bufio.Writer, keepAlive time.Duration) {
	events, cancel := b.Subscribe(userID)
	defer cancel()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	// Initial keepalive (comment event)
	w.WriteString(":\n\n")
	if err := w.Flush(); err != nil {
		return
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				log.Printf("[SSE] encode event for user %d: %v", userID, err)
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: reward\ndata: %s\n\n", ev.ID, payload)
			if err := w.Flush(); err != nil {
				// Client disconnected
				return
			}

		case <-ticker.C:
			w.WriteString(": keepalive\n\n")
			if err := w.Flush(); err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}
