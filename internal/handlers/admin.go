package handlers

import (
	"crypto/subtle"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/gofiber/fiber/v2"
)

// HeaderAdminToken carries the shared admin secret.
const HeaderAdminToken = "X-Admin-Token"

var netscapeCookieHeader = regexp.MustCompile(`(?i)Netscape HTTP Cookie File`)

// CookiesHandler manages the yt-dlp cookies file. The downloader reads the
// file on every call, so changes apply to the next job.
type CookiesHandler struct {
	path   string
	token  string
	logger *slog.Logger
}

// NewCookiesHandler creates the admin handler for the cookies file at path.
// An empty token disables every route.
func NewCookiesHandler(path, token string, logger *slog.Logger) *CookiesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CookiesHandler{path: path, token: token, logger: logger.With("component", "admin")}
}

// Authorize rejects requests without the admin token.
func (h *CookiesHandler) Authorize(c *fiber.Ctx) error {
	got := c.Get(HeaderAdminToken)
	if h.token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
			"code":  "ERR_UNAUTHORIZED",
		})
	}
	return c.Next()
}

// Inspect reports whether the cookies file exists.
func (h *CookiesHandler) Inspect(c *fiber.Ctx) error {
	info, err := os.Stat(h.path)
	if errors.Is(err, os.ErrNotExist) {
		return c.JSON(fiber.Map{"exists": false, "size": 0, "mtime": nil, "path": h.path})
	}
	if err != nil {
		return h.serverError(c, err)
	}
	return c.JSON(fiber.Map{
		"exists": true,
		"size":   info.Size(),
		"mtime":  info.ModTime().UTC(),
		"path":   h.path,
	})
}

// Replace stores an uploaded Netscape cookies.txt atomically with 0600
// permissions.
func (h *CookiesHandler) Replace(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "ERR_NO_FILE", "Missing file")
	}
	f, err := fh.Open()
	if err != nil {
		return h.serverError(c, err)
	}
	defer f.Close()

	body, err := io.ReadAll(f)
	if err != nil {
		return h.serverError(c, err)
	}
	if !netscapeCookieHeader.Match(body) {
		return badRequest(c, "ERR_INVALID_COOKIES", "Invalid cookies.txt (Netscape format expected)")
	}

	if err := os.MkdirAll(filepath.Dir(h.path), 0700); err != nil {
		return h.serverError(c, err)
	}
	tmp := h.path + ".tmp"
	if err := os.WriteFile(tmp, body, 0600); err != nil {
		return h.serverError(c, err)
	}
	if err := os.Rename(tmp, h.path); err != nil {
		os.Remove(tmp)
		return h.serverError(c, err)
	}

	h.logger.Info("cookies file replaced", "path", h.path, "size", len(body))
	return c.JSON(fiber.Map{"ok": true})
}

// Delete removes the cookies file. Removing a missing file succeeds.
func (h *CookiesHandler) Delete(c *fiber.Ctx) error {
	if err := os.Remove(h.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return h.serverError(c, err)
	}
	h.logger.Info("cookies file removed", "path", h.path)
	return c.JSON(fiber.Map{"ok": true})
}

func (h *CookiesHandler) serverError(c *fiber.Ctx, err error) error {
	h.logger.Error("cookies file operation failed", "path", h.path, "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": err.Error(),
		"code":  "ERR_COOKIES",
	})
}
