package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/briefly/internal/media"
	"github.com/codebuildervaibhav/briefly/internal/types"
)

// Prober reads the duration of remote media before a job is accepted.
type Prober interface {
	ProbeDuration(ctx context.Context, url string, opts media.ProbeOptions) (float64, error)
}

// YouTubeHandler handles YouTube video submissions
type YouTubeHandler struct {
	sub         *Submitter
	prober      Prober
	maxDuration time.Duration
	probe       media.ProbeOptions
}

// NewYouTubeHandler creates a new YouTube handler
func NewYouTubeHandler(sub *Submitter, prober Prober, maxMinutes int, probe media.ProbeOptions) *YouTubeHandler {
	return &YouTubeHandler{
		sub:         sub,
		prober:      prober,
		maxDuration: time.Duration(maxMinutes) * time.Minute,
		probe:       probe,
	}
}

// YouTubeRequest represents the request body
type YouTubeRequest struct {
	URL   string `json:"url"`
	Level string `json:"level"`
}

// Handle validates the video and queues the job
func (h *YouTubeHandler) Handle(c *fiber.Ctx) error {
	if !h.sub.allow(c) {
		return rateLimited(c)
	}

	var req YouTubeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "ERR_INVALID_BODY", "Invalid request body")
	}

	url := strings.TrimSpace(req.URL)
	if url == "" || req.Level == "" {
		return badRequest(c, "ERR_MISSING_FIELDS", "Missing required fields: url, level")
	}
	level, err := types.ParseLevel(req.Level)
	if err != nil {
		return badRequest(c, "ERR_INVALID_LEVEL", err.Error())
	}
	if !media.IsYouTubeURL(url) {
		return badRequest(c, "ERR_INVALID_URL", "Invalid YouTube URL")
	}

	seconds, err := h.prober.ProbeDuration(c.UserContext(), url, h.probe)
	switch {
	case errors.Is(err, media.ErrNoDuration):
		return badRequest(c, "ERR_NO_DURATION", "Unable to read video duration")
	case err != nil:
		h.sub.logger.Warn("duration probe failed", "url", url, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch video information",
			"code":  "ERR_PROBE_FAILED",
		})
	}
	if h.maxDuration > 0 && time.Duration(seconds*float64(time.Second)) > h.maxDuration {
		return badRequest(c, "ERR_TOO_LONG",
			fmt.Sprintf("Video too long. Maximum allowed duration is %d minutes.", int(h.maxDuration.Minutes())))
	}

	ownerID, ownerEmail := owner(c)
	return h.sub.accept(c, types.NewYouTubeJob(h.sub.newID(), url, level, ownerID, ownerEmail))
}
