package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"jobmail-engine/internal/events"
)

type EventsHandler struct {
	Hub *events.Hub
	// KeepAlive is the comment-ping period; zero disables it.
	KeepAlive time.Duration
}

func (h EventsHandler) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, r, http.StatusInternalServerError, "stream_unsupported", "Streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.Hub.Subscribe()
	defer h.Hub.Unsubscribe(ch)

	hello := events.MakeEvent(RequestIDFrom(r.Context()), "hello", "", 1, nil)
	fmt.Fprintf(w, "event: message\ndata: %s\n\n", hello.Encode())
	flusher.Flush()

	var tick <-chan time.Time
	if h.KeepAlive > 0 {
		t := time.NewTicker(h.KeepAlive)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-tick:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
