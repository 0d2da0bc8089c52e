package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shiftops/kanban/database"
	"github.com/shiftops/kanban/internal/auth"
	"github.com/shiftops/kanban/internal/kanban"
	"github.com/shiftops/kanban/internal/models"
	"github.com/shiftops/kanban/internal/stream"
	"go.uber.org/zap"
)

type Handler struct {
	Store     *database.Store
	Hub       *stream.Hub
	Auth      *auth.Service
	UploadDir string

	// Now is overridable in tests; nil means wall clock.
	Now func() int64
}

func (h *Handler) now() int64 {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UnixMilli()
}

// Routes wires the full API surface onto the router.
func (h *Handler) Routes(router *gin.Engine) {
	router.Static("/uploads", h.UploadDir)

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/admin/seed", h.SeedUserHandler)
		apiGroup.POST("/login", h.LoginHandler)
		apiGroup.GET("/stream", h.StreamHandler)
		apiGroup.GET("/health", h.HealthCheckHandler)

		authed := apiGroup.Group("", h.RequireAuth())
		{
			authed.GET("/board/:dateKey", h.GetBoardHandler)
			authed.POST("/board/:dateKey/cards", h.CreateCardHandler)
			authed.PATCH("/cards/:id", h.PatchCardHandler)
			authed.DELETE("/cards/:id", h.DeleteCardHandler)
			authed.GET("/cards/:id/comments", h.ListCommentsHandler)
			authed.POST("/cards/:id/comments", h.AddCommentHandler)
			authed.GET("/cards/:id/attachments", h.ListAttachmentsHandler)
			authed.POST("/cards/:id/attachments", h.AddAttachmentHandler)
			authed.DELETE("/attachments/:attId", h.DeleteAttachmentHandler)
		}
	}
}

func (h *Handler) HealthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func jsonError(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"error": msg})
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		jsonError(c, http.StatusBadRequest, "invalid_id")
		return 0, false
	}
	return id, true
}

func (h *Handler) GetBoardHandler(c *gin.Context) {
	board, err := h.Store.GetOrCreateBoard(c.Param("dateKey"))
	if err != nil {
		zap.L().Error("Failed to resolve board", zap.Error(err))
		jsonError(c, http.StatusInternalServerError, "db_error")
		return
	}

	cards, err := h.Store.BoardCards(board.ID)
	if err != nil {
		zap.L().Error("Failed to list board cards", zap.Error(err))
		jsonError(c, http.StatusInternalServerError, "db_error")
		return
	}

	c.JSON(http.StatusOK, gin.H{"board": board, "cards": cards})
}

func (h *Handler) CreateCardHandler(c *gin.Context) {
	board, err := h.Store.GetOrCreateBoard(c.Param("dateKey"))
	if err != nil {
		zap.L().Error("Failed to resolve board", zap.Error(err))
		jsonError(c, http.StatusInternalServerError, "db_error")
		return
	}

	var body models.CardPatch
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid_json")
		return
	}

	title := ""
	if body.Title != nil {
		title = strings.TrimSpace(*body.Title)
	}
	if title == "" {
		jsonError(c, http.StatusBadRequest, "title_required")
		return
	}

	status := models.StatusAFazer
	if body.Status != nil {
		status = *body.Status
	}
	if !status.Valid() {
		jsonError(c, http.StatusBadRequest, "invalid_status")
		return
	}

	priority := models.PriorityNormal
	if body.Priority != nil {
		priority = *body.Priority
	}
	if !priority.Valid() {
		jsonError(c, http.StatusBadRequest, "invalid_priority")
		return
	}

	now := h.now()
	card := &models.Card{
		BoardID:   board.ID,
		Title:     title,
		Status:    status,
		Priority:  priority,
		UpdatedAt: now,
		Tags:      models.NormalizeTags(body.Tags),
	}
	if body.Assignee != nil {
		card.Assignee = *body.Assignee
	}
	if body.Notes != nil {
		card.Notes = *body.Notes
	}
	if due, ok, present := body.DueAtValue(); present && ok {
		card.DueAt = &due
	}
	kanban.InitClocks(card, now)

	payload, _ := json.Marshal(gin.H{"status": status})
	event := &models.CardEvent{EventType: models.EventCreate, Payload: payload, CreatedAt: now}

	if err := h.Store.CreateCard(card, event); err != nil {
		zap.L().Error("Failed to create card", zap.Error(err))
		jsonError(c, http.StatusInternalServerError, "db_error")
		return
	}

	h.Hub.Publish(stream.Message{Action: stream.ActionCreate, Card: card})
	c.JSON(http.StatusOK, gin.H{"card": card})
}

func (h *Handler) PatchCardHandler(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var body models.CardPatch
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid_json")
		return
	}
	if body.Status != nil && !body.Status.Valid() {
		jsonError(c, http.StatusBadRequest, "invalid_status")
		return
	}
	if body.Priority != nil && !body.Priority.Valid() {
		jsonError(c, http.StatusBadRequest, "invalid_priority")
		return
	}

	now := h.now()
	card, err := h.Store.UpdateCard(id, func(card *models.Card) (*models.CardEvent, error) {
		if body.Title != nil {
			card.Title = *body.Title
		}
		if body.Assignee != nil {
			card.Assignee = *body.Assignee
		}
		if body.Priority != nil {
			card.Priority = *body.Priority
		}
		if body.Notes != nil {
			card.Notes = *body.Notes
		}
		if due, ok, present := body.DueAtValue(); present {
			if ok {
				card.DueAt = &due
			} else {
				card.DueAt = nil
			}
		}
		if tags, present := body.TagsValue(); present {
			card.Tags = tags
		}
		card.UpdatedAt = now

		if body.Status == nil {
			return nil, nil
		}
		change, changed := kanban.ApplyTransition(card, *body.Status, now)
		if !changed {
			return nil, nil
		}
		payload, _ := json.Marshal(change)
		return &models.CardEvent{EventType: models.EventStatusChange, Payload: payload, CreatedAt: now}, nil
	})
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			jsonError(c, http.StatusNotFound, "not_found")
			return
		}
		zap.L().Error("Failed to update card", zap.Int64("cardID", id), zap.Error(err))
		jsonError(c, http.StatusInternalServerError, "db_error")
		return
	}

	h.Hub.Publish(stream.Message{Action: stream.ActionUpdate, Card: card})
	c.JSON(http.StatusOK, gin.H{"card": card})
}

func (h *Handler) DeleteCardHandler(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.Store.DeleteCard(id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			jsonError(c, http.StatusNotFound, "not_found")
			return
		}
		zap.L().Error("Failed to delete card", zap.Int64("cardID", id), zap.Error(err))
		jsonError(c, http.StatusInternalServerError, "db_error")
		return
	}

	h.Hub.Publish(stream.Message{Action: stream.ActionDelete, CardID: id})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) ListCommentsHandler(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	comments, err := h.Store.Comments(id)
	if err != nil {
		zap.L().Error("Failed to list comments", zap.Int64("cardID", id), zap.Error(err))
		jsonError(c, http.StatusInternalServerError, "db_error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

type commentRequest struct {
	Author string `json:"author"`
	Text   string `json:"text"`
}

func (h *Handler) AddCommentHandler(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var body commentRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid_json")
		return
	}

	text := strings.TrimSpace(body.Text)
	if text == "" {
		jsonError(c, http.StatusBadRequest, "text_required")
		return
	}

	author := strings.TrimSpace(body.Author)
	if author == "" {
		if claims := currentClaims(c); claims != nil {
			author = claims.Email
		}
	}
	if author == "" {
		author = "operador"
	}

	now := h.now()
	comment := &models.Comment{CardID: id, Author: author, Text: text, CreatedAt: now}
	payload, _ := json.Marshal(gin.H{"author": author})
	event := &models.CardEvent{EventType: models.EventComment, Payload: payload, CreatedAt: now}

	if err := h.Store.AddComment(comment, event); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			jsonError(c, http.StatusNotFound, "not_found")
			return
		}
		zap.L().Error("Failed to add comment", zap.Int64("cardID", id), zap.Error(err))
		jsonError(c, http.StatusInternalServerError, "db_error")
		return
	}

	h.Hub.Publish(stream.Message{Action: stream.ActionComment, CardID: id})
	c.JSON(http.StatusOK, gin.H{"ok": true, "id": comment.ID})
}
