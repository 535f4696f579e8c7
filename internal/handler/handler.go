package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lprview/internal/client"
	"lprview/internal/domain"
	"lprview/internal/middleware"
	"lprview/internal/service"
	"lprview/pkg/utils"
)

// FormField is the file input name of the picker in index.html. It is
// independent of the multipart key the detection backend expects.
const FormField = "image"

type Handler struct {
	view service.ViewController
	log  *zap.Logger
}

func NewHandler(view service.ViewController, log *zap.Logger) *Handler {
	return &Handler{
		view: view,
		log:  log,
	}
}

// GetUI renders the detection view for the caller's session.
func (h *Handler) GetUI(c *gin.Context) {
	page, err := h.view.Page(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		h.log.Error("Failed to build page", zap.Error(err))
		c.String(http.StatusInternalServerError, "Failed to load view")
		return
	}

	c.Header("Cache-Control", "no-store")
	c.HTML(http.StatusOK, "index.html", page)
}

// SelectImage stores the picked file as the session's selected image. The file
// is taken as is: no type or size checks.
func (h *Handler) SelectImage(c *gin.Context) {
	var img *domain.SelectedImage

	file, err := c.FormFile(FormField)
	switch {
	case errors.Is(err, http.ErrMissingFile):
		h.log.Debug("File picker submitted without a file")
	case err != nil:
		h.log.Error("Failed to get file from form", zap.Error(err))
		c.String(http.StatusBadRequest, "Invalid upload form")
		return
	default:
		img, err = utils.ReadFormFile(file)
		if err != nil {
			h.log.Error("Failed to read file", zap.Error(err))
			c.String(http.StatusBadRequest, "Failed to read file")
			return
		}
	}

	if err := h.view.SelectImage(c.Request.Context(), middleware.SessionID(c), img); err != nil {
		h.log.Error("Failed to select image", zap.Error(err))
		c.String(http.StatusInternalServerError, "Failed to select image")
		return
	}

	c.Redirect(http.StatusSeeOther, "/")
}

// Detect triggers detection for the selected image. Detection failures end up
// as a notice on the next render, so the browser is always sent back to the
// view.
func (h *Handler) Detect(c *gin.Context) {
	// an abandoned request still completes and updates the view
	ctx := context.WithoutCancel(c.Request.Context())

	err := h.view.Detect(ctx, middleware.SessionID(c))
	switch {
	case err == nil:
	case errors.Is(err, service.ErrNoImageSelected), errors.Is(err, client.ErrTransferFailure):
		c.Error(err)
	default:
		h.log.Error("Failed to run detection", zap.Error(err))
		c.String(http.StatusInternalServerError, "Failed to run detection")
		return
	}

	c.Redirect(http.StatusSeeOther, "/")
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}

// BuildInfo is reported by the version endpoint.
type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
}

func Version(info BuildInfo) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, info)
	}
}
