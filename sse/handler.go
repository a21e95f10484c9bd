package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/tsengine/errors"
	"github.com/kbukum/tsengine/logger"
	"github.com/kbukum/tsengine/server/endpoint"
)

// Handler returns a gin handler that subscribes the caller to the topics
// matching the "topic" query parameter, "*" when absent. A comment line is
// written every keepAlive to hold the connection open through proxies.
func Handler(h *Hub, keepAlive time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		pattern := c.DefaultQuery("topic", "*")
		if _, err := path.Match(pattern, ""); err != nil {
			endpoint.RespondWithError(c, apperrors.InvalidInput("topic", err.Error()))
			return
		}
		Serve(h, c.Writer, c.Request, pattern, keepAlive)
	}
}

// Serve streams events matching pattern to w until the request is done or
// the hub stops.
func Serve(h *Hub, w http.ResponseWriter, r *http.Request, pattern string, keepAlive time.Duration) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	// Streams outlive the server's write timeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		h.log.Debug("could not clear write deadline", logger.Fields(logger.FieldError, err.Error()))
	}

	client := NewClient(pattern)
	if !h.Register(client) {
		http.Error(w, "event stream closed", http.StatusServiceUnavailable)
		return
	}
	defer h.Unregister(client)

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")

	hello, _ := json.Marshal(ConnectedEvent{ClientID: client.id, Pattern: pattern})
	writeFrame(w, frame{event: EventConnected, data: hello})
	flusher.Flush()

	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case f, ok := <-client.events:
			if !ok {
				return
			}
			writeFrame(w, f)
			flusher.Flush()
		case <-ticker.C:
			_, _ = fmt.Fprintf(w, ": keepalive %d\n\n", time.Now().Unix())
			flusher.Flush()
		}
	}
}

func writeFrame(w http.ResponseWriter, f frame) {
	if f.event != "" {
		_, _ = fmt.Fprintf(w, "event: %s\n", f.event)
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", f.data)
}
