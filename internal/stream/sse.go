package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var errNotFlushable = errors.New("response writer does not support flushing")

// SSESink 以 text/event-stream 的 `data: <json>\n\n` 帧下发事件。
type SSESink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSESink 写入 SSE 响应头并返回 sink。
func NewSSESink(w http.ResponseWriter) (*SSESink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errNotFlushable
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &SSESink{w: w, flusher: flusher}, nil
}

func (s *SSESink) Send(ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		return fmt.Errorf("write sse frame: %w", err)
	}
	s.flusher.Flush()
	return nil
}
