package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// Routes groups the handlers mounted on the HTTP surface.
type Routes struct {
	Upload  *UploadHandler
	YouTube *YouTubeHandler
	Jobs    *JobsHandler
	Stream  *StreamHandler
	Cookies *CookiesHandler
}

// Register mounts every configured handler on r.
func (rt Routes) Register(r fiber.Router) {
	if rt.Upload != nil {
		r.Post("/upload", rt.Upload.Handle)
	}
	if rt.YouTube != nil {
		r.Post("/youtube", rt.YouTube.Handle)
	}
	if rt.Jobs != nil {
		r.Get("/status/:jobId", rt.Jobs.Status)
		r.Get("/jobs", rt.Jobs.List)
		r.Get("/health", rt.Jobs.Health)
	}
	if rt.Stream != nil {
		r.Use("/ws", rt.Stream.Upgrade)
		r.Get("/ws/status/:jobId", websocket.New(rt.Stream.Handle))
	}
	if rt.Cookies != nil {
		admin := r.Group("/admin", rt.Cookies.Authorize)
		admin.Get("/youtube-cookies", rt.Cookies.Inspect)
		admin.Post("/youtube-cookies", rt.Cookies.Replace)
		admin.Delete("/youtube-cookies", rt.Cookies.Delete)
	}
}
