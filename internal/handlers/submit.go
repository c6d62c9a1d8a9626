package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/codebuildervaibhav/briefly/internal/ratelimit"
	"github.com/codebuildervaibhav/briefly/internal/status"
	"github.com/codebuildervaibhav/briefly/internal/types"
)

// Owner attribution headers set by the fronting auth proxy.
const (
	HeaderOwnerID    = "X-Owner-Id"
	HeaderOwnerEmail = "X-Owner-Email"
)

// Processor starts a job without waiting for it.
type Processor interface {
	Process(desc types.Descriptor)
}

// SubmissionRecorder stores the immutable fields of a new job.
type SubmissionRecorder interface {
	RecordSubmission(ctx context.Context, desc types.Descriptor, at time.Time) error
}

// Submitter is the admission path shared by the submission handlers.
type Submitter struct {
	store    *status.Store
	proc     Processor
	limiter  *ratelimit.Limiter
	recorder SubmissionRecorder
	logger   *slog.Logger
	newID    func() string
}

// NewSubmitter wires the admission path. limiter and recorder may be nil.
func NewSubmitter(store *status.Store, proc Processor, limiter *ratelimit.Limiter, recorder SubmissionRecorder, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{
		store:    store,
		proc:     proc,
		limiter:  limiter,
		recorder: recorder,
		logger:   logger.With("component", "handlers"),
		newID:    uuid.NewString,
	}
}

// allow consumes one admission token for the calling client.
func (s *Submitter) allow(c *fiber.Ctx) bool {
	if s.limiter == nil {
		return true
	}
	return s.limiter.Allow(ratelimit.ClientKey(c.Get(fiber.HeaderXForwardedFor), c.IP()))
}

func owner(c *fiber.Ctx) (id, email string) {
	return c.Get(HeaderOwnerID), c.Get(HeaderOwnerEmail)
}

// accept registers the job as PENDING, hands it to the processor and
// answers 202 without waiting.
func (s *Submitter) accept(c *fiber.Ctx, desc types.Descriptor) error {
	ctx := c.UserContext()
	s.store.Set(ctx, desc.JobID, types.JobStatus{
		Status:     types.StatePending,
		Progress:   types.ProgressPending,
		OwnerEmail: desc.OwnerEmail,
	}, desc.OwnerID)

	if s.recorder != nil {
		if err := s.recorder.RecordSubmission(ctx, desc, time.Now().UTC()); err != nil {
			s.logger.Warn("failed to record submission", "jobId", desc.JobID, "error", err)
		}
	}

	s.proc.Process(desc)
	s.logger.Info("job accepted", "jobId", desc.JobID, "source", desc.Source.Kind(), "level", desc.Level)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"jobId":  desc.JobID,
		"status": types.StatePending,
	})
}

func rateLimited(c *fiber.Ctx) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"error": "Too many requests",
		"code":  "RATE_LIMITED",
	})
}

func badRequest(c *fiber.Ctx, code, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
		"code":  code,
	})
}
