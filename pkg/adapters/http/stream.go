package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aretw0/chainflow/internal/logging"
	"github.com/aretw0/chainflow/pkg/domain"
)

// StreamManager fans snapshot diffs out to SSE subscribers of a run.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // run id -> channels
	logger      *slog.Logger
}

// NewStreamManager creates an empty StreamManager.
func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
		logger:      logging.NewNop(),
	}
}

// Subscribe registers a buffered channel for runID. The returned func
// unregisters and closes it.
func (sm *StreamManager) Subscribe(runID string) (<-chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[runID]; !ok {
		sm.subscribers[runID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[runID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[runID]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(sm.subscribers, runID)
				}
			}
			close(ch)
		})
	}
}

// Subscribers returns the number of open streams for runID.
func (sm *StreamManager) Subscribers(runID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[runID])
}

// Broadcast sends msg to every subscriber of runID. Slow clients drop messages.
func (sm *StreamManager) Broadcast(runID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[runID] {
		select {
		case ch <- msg:
		default:
			sm.logger.Warn("sse client buffer full, dropping message", "run_id", runID)
		}
	}
}

// handleEvents streams the diffs of one run. The optional watch query
// parameter keeps only diffs touching the listed fields: status, cursor,
// memory, waiting, output.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.engine.Inspect(r.Context(), id); err != nil {
		s.writeEngineError(w, "events", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("sse write deadline", "err", err)
	}

	ch, cancel := s.streams.Subscribe(id)
	defer cancel()

	var watch []string
	if raw := r.URL.Query().Get("watch"); raw != "" {
		watch = strings.Split(raw, ",")
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if len(watch) > 0 && !watched(msg, watch) {
				continue
			}
			fmt.Fprintf(w, "event: diff\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func watched(msg string, fields []string) bool {
	var diff domain.SnapshotDiff
	if err := json.Unmarshal([]byte(msg), &diff); err != nil {
		return true
	}
	for _, field := range fields {
		switch strings.TrimSpace(field) {
		case "status":
			if diff.Status != nil {
				return true
			}
		case "cursor":
			if diff.Cursor != nil {
				return true
			}
		case "memory":
			if len(diff.Memory) > 0 {
				return true
			}
		case "waiting":
			if len(diff.Waiting) > 0 {
				return true
			}
		case "output":
			if len(diff.Output) > 0 {
				return true
			}
		}
	}
	return false
}
