package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/collabdocs/collabdocs/internal/access"
	"github.com/collabdocs/collabdocs/internal/apperr"
	"github.com/collabdocs/collabdocs/internal/document"
	"github.com/collabdocs/collabdocs/internal/document/service"
	"github.com/collabdocs/collabdocs/internal/models"
	"github.com/collabdocs/collabdocs/internal/users"
	"github.com/collabdocs/collabdocs/pkg/logger"
	"github.com/collabdocs/collabdocs/pkg/middleware"
	"github.com/gin-gonic/gin"
)

// Handler serves the document REST API. Every route expects
// middleware.AuthMiddleware to have run.
type Handler struct {
	svc   *service.Service
	users *users.Service
}

func New(svc *service.Service, u *users.Service) *Handler {
	return &Handler{svc: svc, users: u}
}

// Register mounts the routes under rg (normally /api).
func (h *Handler) Register(rg *gin.RouterGroup) {
	docs := rg.Group("/documents")
	docs.POST("", h.create)
	docs.GET("", h.list)
	docs.GET("/:id", h.get)
	docs.PUT("/:id/content", h.updateContent)
	docs.PUT("/:id/title", h.updateTitle)
	docs.POST("/:id/share", h.share)
	docs.DELETE("/:id/share/:email", h.unshare)
	docs.DELETE("/:id", h.delete)
}

// documentView is the wire form: the owner id is replaced by display info.
type documentView struct {
	*document.Document
	Owner      models.Summary    `json:"owner"`
	Permission access.Permission `json:"permission,omitempty"`
}

func identity(c *gin.Context) (access.Identity, bool) {
	who, ok := middleware.GetIdentity(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
	}
	return who, ok
}

func respondErr(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Errorw("request failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
	}
	c.JSON(status, gin.H{"error": apperr.Message(err)})
}

// views attaches owner summaries. A failed lookup degrades to bare ids.
func (h *Handler) views(ctx context.Context, docs []service.Listed) []documentView {
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.Owner)
	}
	known := map[string]models.Summary{}
	if h.users != nil {
		m, err := h.users.Summaries(ctx, ids)
		if err != nil {
			logger.Warnw("owner lookup failed", "err", err)
		} else {
			known = m
		}
	}
	out := make([]documentView, 0, len(docs))
	for _, d := range docs {
		owner, ok := known[d.Owner]
		if !ok {
			owner = models.Summary{ID: d.Owner}
		}
		out = append(out, documentView{Document: d.Document, Owner: owner, Permission: d.Permission})
	}
	return out
}

func (h *Handler) view(ctx context.Context, d *document.Document, perm access.Permission) documentView {
	return h.views(ctx, []service.Listed{{Document: d, Permission: perm}})[0]
}

func (h *Handler) create(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	var req struct {
		Title string `json:"title"`
	}
	// an empty body, sized or chunked, creates an untitled document
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.users != nil {
		if _, err := h.users.Remember(c.Request.Context(), who); err != nil {
			logger.Warnw("user upsert failed", "user", who.UserID, "err", err)
		}
	}
	doc, err := h.svc.Create(c.Request.Context(), who, req.Title)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.view(c.Request.Context(), doc, access.PermissionOwner))
}

func (h *Handler) list(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	docs, err := h.svc.List(c.Request.Context(), who)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, h.views(c.Request.Context(), docs))
}

func (h *Handler) get(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	d, err := h.svc.Get(c.Request.Context(), who, c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(c.Request.Context(), d.Document, d.Permission))
}

func (h *Handler) updateContent(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	var req struct {
		Content *string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Content == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Content is required"})
		return
	}
	doc, err := h.svc.UpdateContent(c.Request.Context(), who, c.Param("id"), *req.Content)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(c.Request.Context(), doc, ""))
}

func (h *Handler) updateTitle(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	var req struct {
		Title string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	doc, err := h.svc.UpdateTitle(c.Request.Context(), who, c.Param("id"), req.Title)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(c.Request.Context(), doc, access.PermissionOwner))
}

func (h *Handler) share(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	var req struct {
		Email      string `json:"email"`
		Permission string `json:"permission"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	doc, err := h.svc.Share(c.Request.Context(), who, c.Param("id"), req.Email, req.Permission)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(c.Request.Context(), doc, access.PermissionOwner))
}

func (h *Handler) unshare(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	doc, err := h.svc.Unshare(c.Request.Context(), who, c.Param("id"), c.Param("email"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(c.Request.Context(), doc, access.PermissionOwner))
}

func (h *Handler) delete(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), who, c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document deleted successfully"})
}
