package handlers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/briefly/internal/status"
	"github.com/codebuildervaibhav/briefly/internal/storage"
	"github.com/codebuildervaibhav/briefly/internal/types"
)

// JobLister reads jobs back from the durable mirror.
type JobLister interface {
	GetJob(ctx context.Context, jobID string) (storage.JobRecord, error)
	ListJobs(ctx context.Context, ownerID string, limit int) ([]storage.JobRecord, error)
}

// JobsHandler serves status snapshots, job listings and health.
type JobsHandler struct {
	store     *status.Store
	jobs      JobLister
	simulated bool
	logger    *slog.Logger
}

// NewJobsHandler creates the read-side handler. jobs may be nil when no
// durable mirror is configured.
func NewJobsHandler(store *status.Store, jobs JobLister, simulated bool, logger *slog.Logger) *JobsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobsHandler{store: store, jobs: jobs, simulated: simulated, logger: logger.With("component", "handlers")}
}

// Status returns the live status, falling back to the durable mirror once
// the in-memory entry has been evicted.
func (h *JobsHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if st, ok := h.store.Get(jobID); ok {
		return c.JSON(st)
	}
	if h.jobs == nil {
		return notFound(c)
	}

	rec, err := h.jobs.GetJob(c.UserContext(), jobID)
	if errors.Is(err, storage.ErrJobNotFound) {
		return notFound(c)
	}
	if err != nil {
		h.logger.Error("failed to read job", "jobId", jobID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read job",
			"code":  "ERR_STORAGE",
		})
	}
	return c.JSON(types.JobStatus{
		JobID:      rec.JobID,
		Status:     rec.Status,
		Progress:   rec.Progress,
		Message:    rec.Message,
		Summary:    rec.Summary,
		OwnerEmail: rec.OwnerEmail,
		OwnerID:    rec.OwnerID,
	})
}

// List returns the most recent jobs of the calling owner.
func (h *JobsHandler) List(c *fiber.Ctx) error {
	ownerID, _ := owner(c)
	if ownerID == "" {
		return badRequest(c, "ERR_NO_OWNER", "Missing owner")
	}
	if h.jobs == nil {
		return c.JSON(fiber.Map{"jobs": []storage.JobRecord{}})
	}

	recs, err := h.jobs.ListJobs(c.UserContext(), ownerID, c.QueryInt("limit", 50))
	if err != nil {
		h.logger.Error("failed to list jobs", "owner", ownerID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list jobs",
			"code":  "ERR_STORAGE",
		})
	}
	if recs == nil {
		recs = []storage.JobRecord{}
	}
	return c.JSON(fiber.Map{"jobs": recs})
}

// Health reports liveness, tracked jobs and processing mode.
func (h *JobsHandler) Health(c *fiber.Ctx) error {
	mode := "live"
	if h.simulated {
		mode = "simulation"
	}
	return c.JSON(fiber.Map{
		"status": "ok",
		"jobs":   h.store.Len(),
		"mode":   mode,
	})
}

func notFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "Job not found",
		"code":  "ERR_NOT_FOUND",
	})
}
