package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// JobStream handles GET /events (SSE endpoint)
func (h *Handler) JobStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// Subscribe before the snapshot so no mutation falls between the two
	eventCh := h.table.Subscribe()
	defer h.table.Unsubscribe(eventCh)

	initialData, _ := json.Marshal(map[string]interface{}{
		"type":  "init",
		"jobs":  h.table.All(),
		"stats": h.table.Stats(),
	})
	fmt.Fprintf(w, "data: %s\n\n", initialData)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}

			data, err := json.Marshal(event)
			if err != nil {
				continue
			}

			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
