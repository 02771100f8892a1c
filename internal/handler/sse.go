package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/capitalize-ai/essay-pipeline/internal/model"
)

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
}

// writeSSE writes one event as a data-only SSE frame and flushes it.
func writeSSE(w io.Writer, flusher http.Flusher, ev model.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// writeHeartbeat writes an SSE comment line, which clients ignore, and
// flushes it. An error means the client can no longer be reached.
func writeHeartbeat(w io.Writer, flusher http.Flusher) error {
	if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
