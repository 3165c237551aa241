package httpapi

import (
	"net/http"
	"time"
)

func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	sh := StatusHandler{Snapshot: d.Snapshot, LastSample: d.LastSample, Postings: d.Postings}
	mux.HandleFunc("/health", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: sh.Health,
	}))
	mux.HandleFunc("/status", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: sh.Status,
	}))
	mux.HandleFunc("/postings", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: sh.ListPostings,
	}))

	if d.Hub != nil {
		eh := EventsHandler{Hub: d.Hub, KeepAlive: 30 * time.Second}
		mux.HandleFunc("/events", methodMux(map[string]http.HandlerFunc{
			http.MethodGet: eh.ServeSSE,
		}))
	}
	return mux
}

// NewHandler is the mux wrapped in the standard middleware.
func NewHandler(d Deps) http.Handler {
	l := logging{logger: d.Logger}
	return Chain(NewMux(d), RequestID, l.Recover, l.AccessLog)
}
