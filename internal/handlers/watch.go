package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/shelftrack/shelftrack/internal/backend"
	"github.com/shelftrack/shelftrack/internal/livequery"
	"github.com/shelftrack/shelftrack/internal/models"
	"github.com/shelftrack/shelftrack/internal/repository"
	"github.com/shelftrack/shelftrack/internal/session"
)

// WatchHandler streams live collection snapshots over SSE. Each event
// carries the full materialized list, mirroring the subscription model:
// clients replace, never merge.
type WatchHandler struct {
	Backend *backend.Backend
}

func (h *WatchHandler) Stores(c echo.Context) error {
	identity := identityFrom(c)
	return stream[models.Store](c, h.Backend, repository.StoresQuery(identity))
}

func (h *WatchHandler) Products(c echo.Context) error {
	identity := identityFrom(c)
	storeID := c.Param("id")
	return stream[models.Product](c, h.Backend, repository.ProductsQuery(identity, storeID))
}

// fixedSession drives a livequery with the request's already-authenticated
// identity; the session never changes for the lifetime of one stream.
type fixedSession struct {
	identity string
}

func (s fixedSession) State() session.State {
	return session.State{Identity: s.identity}
}

func (s fixedSession) Subscribe(fn func(session.State)) func() {
	fn(s.State())
	return func() {}
}

func stream[T any](c echo.Context, b *backend.Backend, q backend.Query) error {
	identity := identityFrom(c)

	col := livequery.NewCollection[T](b, fixedSession{identity: identity}, func(string) backend.Query {
		return q
	})
	col.Start()
	defer col.Close()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Latest-wins buffer: a slow client never blocks delivery, and the
	// final write always reflects the newest snapshot.
	snaps := make(chan livequery.Snapshot[T], 1)
	unsub := col.Subscribe(func(s livequery.Snapshot[T]) {
		for {
			select {
			case snaps <- s:
				return
			default:
				select {
				case <-snaps:
				default:
				}
			}
		}
	})
	defer unsub()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-snaps:
			if s.Loading {
				continue
			}
			if s.Err != nil {
				payload, _ := json.Marshal(echo.Map{"error": s.Err.Error()})
				fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
			} else {
				payload, _ := json.Marshal(echo.Map{"items": s.Items})
				fmt.Fprintf(w, "data: %s\n\n", payload)
			}
			w.Flush()
		}
	}
}
