package httpapi

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/rendis/flowgen/internal/project"
	"github.com/rendis/flowgen/internal/streaming"
	"github.com/rendis/flowgen/internal/workspace"
)

const heartbeatInterval = 15 * time.Second

// handleEvents streams a project's change events as server-sent events. The
// stream opens with a project.snapshot event; ?limit=n closes it after n
// events.
func (s *Server) handleEvents(c fiber.Ctx) error {
	id := c.Params("id")
	limit := queryInt(c, "limit", 0)

	var snapshot streaming.Event
	err := s.deps.Workspace.View(c.Context(), id, func(p *project.Project) error {
		snapshot = streaming.Event{
			ProjectID: p.ID,
			EventType: streaming.EventSnapshot,
			At:        time.Now().UTC(),
			Payload:   workspace.Summary(p),
		}
		return nil
	})
	if err != nil {
		return err
	}

	ch, cancel, err := s.deps.Workspace.Events().Subscribe(c.Context(), streaming.Filter{ProjectID: id})
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	logger := s.deps.Logger
	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer cancel()

		sent := 0
		send := func(ev streaming.Event) bool {
			data, err := json.Marshal(ev)
			if err != nil {
				logger.Warn("event not encodable", "event_type", ev.EventType, "error", err)
				return true
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.EventType, data)
			if w.Flush() != nil {
				return false
			}
			sent++
			return limit <= 0 || sent < limit
		}
		if !send(snapshot) {
			return
		}

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()
		for {
			select {
			case <-s.done:
				return
			case ev, ok := <-ch:
				if !ok || !send(ev) {
					return
				}
			case <-heartbeat.C:
				fmt.Fprint(w, ": ping\n\n")
				if w.Flush() != nil {
					return
				}
			}
		}
	})
}
