package handlers

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/codebuildervaibhav/briefly/internal/status"
	"github.com/codebuildervaibhav/briefly/internal/types"
)

// ErrUnknownJob is returned when a job is not tracked in memory.
var ErrUnknownJob = errors.New("job not found")

// StreamHandler pushes live status updates of one job over a websocket
type StreamHandler struct {
	store  *status.Store
	logger *slog.Logger
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(store *status.Store, logger *slog.Logger) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{store: store, logger: logger.With("component", "stream")}
}

// Upgrade rejects plain HTTP requests on the websocket route.
func (h *StreamHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Handle processes WebSocket connections
func (h *StreamHandler) Handle(c *websocket.Conn) {
	defer c.Close()
	jobID := c.Params("jobId")
	log := h.logger.With("jobId", jobID)

	// the read loop only exists to notice the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	err := h.follow(jobID, gone, func(st types.JobStatus) error {
		return c.WriteJSON(st)
	})
	switch {
	case errors.Is(err, ErrUnknownJob):
		_ = c.WriteJSON(fiber.Map{"error": "Job not found", "code": "ERR_NOT_FOUND"})
	case err != nil:
		log.Info("status stream closed", "error", err)
	}
}

// follow sends the current status and then every change until the job
// reaches a terminal state or done is closed. The listener is always
// removed before returning.
func (h *StreamHandler) follow(jobID string, done <-chan struct{}, send func(types.JobStatus) error) error {
	w := &latest{signal: make(chan struct{}, 1)}
	id := h.store.OnChange(jobID, w.put)
	defer h.store.RemoveListener(jobID, id)

	last, ok := h.store.Get(jobID)
	if !ok {
		return ErrUnknownJob
	}
	if err := send(last); err != nil {
		return err
	}

	for !last.Status.IsTerminal() {
		select {
		case <-done:
			return nil
		case <-w.signal:
			st := w.get()
			if st == last {
				continue
			}
			if err := send(st); err != nil {
				return err
			}
			last = st
		}
	}
	return nil
}

// latest keeps only the newest status so the store callback never blocks
// on a slow socket. The newest value is always the one delivered, so a
// terminal status cannot be lost.
type latest struct {
	mu     sync.Mutex
	st     types.JobStatus
	signal chan struct{}
}

func (l *latest) put(st types.JobStatus) {
	l.mu.Lock()
	l.st = st
	l.mu.Unlock()
	select {
	case l.signal <- struct{}{}:
	default:
	}
}

func (l *latest) get() types.JobStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.st
}
