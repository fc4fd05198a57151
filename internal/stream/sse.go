package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var ErrStreamingUnsupported = errors.New("response writer cannot flush")

var PingInterval = 15 * time.Second

// SetSSEHeaders applies headers that keep event streams stable across proxies.
func SetSSEHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set("X-Content-Type-Options", "nosniff")
}

func WriteSSE(w http.ResponseWriter, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if ev.ID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", ev.ID); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", ev.Event); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// Serve replays buf after the request's Last-Event-ID and then follows it
// until the client goes away or the buffer closes.
func Serve(w http.ResponseWriter, r *http.Request, buf *Buffer) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return ErrStreamingUnsupported
	}
	SetSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	ch := buf.Subscribe()
	defer buf.Unsubscribe(ch)

	sent := r.Header.Get("Last-Event-ID")
	for _, ev := range buf.Since(sent) {
		if err := WriteSSE(w, ev); err != nil {
			return err
		}
		sent = ev.ID
	}
	flusher.Flush()

	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if !newer(ev.ID, sent) {
				continue
			}
			if err := WriteSSE(w, ev); err != nil {
				return err
			}
			sent = ev.ID
			flusher.Flush()
		case <-ticker.C:
			now := time.Now().UnixMilli()
			ping := Event{Event: "ping", SessionUUID: buf.session, ServerTS: now, Data: map[string]any{"ts": now}}
			if err := WriteSSE(w, ping); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}

func newer(id, last string) bool {
	if last == "" {
		return true
	}
	return len(id) > len(last) || (len(id) == len(last) && id > last)
}
