package handlers

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/briefly/internal/storage"
	"github.com/codebuildervaibhav/briefly/internal/transcription"
	"github.com/codebuildervaibhav/briefly/internal/types"
)

// UploadHandler handles file uploads
type UploadHandler struct {
	sub       *Submitter
	tempDir   string
	maxSizeMB int
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(sub *Submitter, tempDir string, maxSizeMB int) *UploadHandler {
	return &UploadHandler{
		sub:       sub,
		tempDir:   tempDir,
		maxSizeMB: maxSizeMB,
	}
}

// Handle processes the upload request
func (h *UploadHandler) Handle(c *fiber.Ctx) error {
	if !h.sub.allow(c) {
		return rateLimited(c)
	}

	maxSize := int64(h.maxSizeMB) * 1024 * 1024
	if n := c.Request().Header.ContentLength(); maxSize > 0 && int64(n) > maxSize {
		return h.tooLarge(c)
	}

	file, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "ERR_NO_FILE", "Missing required fields: file")
	}
	rawLevel := c.FormValue("level")
	if rawLevel == "" {
		return badRequest(c, "ERR_NO_LEVEL", "Missing required fields: level")
	}
	level, err := types.ParseLevel(rawLevel)
	if err != nil {
		return badRequest(c, "ERR_INVALID_LEVEL", err.Error())
	}

	if maxSize > 0 && file.Size > maxSize {
		return h.tooLarge(c)
	}
	if !transcription.ValidateAudioFormat(file.Filename) {
		return badRequest(c, "ERR_INVALID_FORMAT", "Unsupported audio format")
	}

	if err := storage.EnsureTempDir(h.tempDir); err != nil {
		h.sub.logger.Error("temp directory unavailable", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save file",
			"code":  "ERR_SAVE_FAILED",
		})
	}

	jobID := h.sub.newID()
	ext := strings.ToLower(filepath.Ext(file.Filename))
	tempPath := filepath.Join(h.tempDir, fmt.Sprintf("%s%s", jobID, ext))

	if err := c.SaveFile(file, tempPath); err != nil {
		h.sub.logger.Error("failed to save uploaded file", "jobId", jobID, "error", err)
		storage.RemoveTemp(h.sub.logger, tempPath)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save file",
			"code":  "ERR_SAVE_FAILED",
		})
	}

	ownerID, ownerEmail := owner(c)
	return h.sub.accept(c, types.NewUploadJob(jobID, tempPath, level, ownerID, ownerEmail))
}

func (h *UploadHandler) tooLarge(c *fiber.Ctx) error {
	return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
		"error": fmt.Sprintf("File too large (max %dMB)", h.maxSizeMB),
		"code":  "ERR_FILE_TOO_LARGE",
	})
}
