package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// StreamTransitions pushes committed lifecycle transitions to the client as
// Server-Sent Events. Events carry entity, id, from and to; the client is
// expected to reconcile by re-reading the resource.
func (a *API) StreamTransitions(w http.ResponseWriter, r *http.Request) {
	if a.stream == nil {
		http.Error(w, "streaming disabled", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events := a.stream.Subscribe(ctx)

	// Opening comment so proxies and clients commit to the stream.
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "event: transition\ndata: %s\n\n", payload)
		flusher.Flush()
	}
}
