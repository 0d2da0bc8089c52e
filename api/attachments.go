package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shiftops/kanban/database"
	"github.com/shiftops/kanban/internal/models"
	"github.com/shiftops/kanban/internal/stream"
	"go.uber.org/zap"
)

var unsafeFilenameChars = regexp.MustCompile(`[^\w.\-]+`)

type attachmentView struct {
	models.Attachment
	URL string `json:"url"`
}

func attachmentURL(filename string) string {
	return "/uploads/" + filename
}

func (h *Handler) ListAttachmentsHandler(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	attachments, err := h.Store.Attachments(id)
	if err != nil {
		zap.L().Error("Failed to list attachments", zap.Int64("cardID", id), zap.Error(err))
		jsonError(c, http.StatusInternalServerError, "db_error")
		return
	}

	views := make([]attachmentView, 0, len(attachments))
	for _, att := range attachments {
		views = append(views, attachmentView{Attachment: att, URL: attachmentURL(att.Filename)})
	}
	c.JSON(http.StatusOK, gin.H{"attachments": views})
}

func (h *Handler) AddAttachmentHandler(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		jsonError(c, http.StatusBadRequest, "file_required")
		return
	}

	safe := unsafeFilenameChars.ReplaceAllString(file.Filename, "_")
	stored := fmt.Sprintf("%s_%s", uuid.NewString(), safe)
	dest := filepath.Join(h.UploadDir, stored)
	if err := c.SaveUploadedFile(file, dest); err != nil {
		zap.L().Error("Failed to store uploaded file", zap.String("file", stored), zap.Error(err))
		jsonError(c, http.StatusInternalServerError, "upload_failed")
		return
	}

	now := h.now()
	att := &models.Attachment{
		CardID:       id,
		Filename:     stored,
		OriginalName: file.Filename,
		Mime:         file.Header.Get("Content-Type"),
		Size:         file.Size,
		CreatedAt:    now,
	}
	payload, _ := json.Marshal(gin.H{"original_name": file.Filename})
	event := &models.CardEvent{EventType: models.EventAttachment, Payload: payload, CreatedAt: now}

	if err := h.Store.AddAttachment(att, event); err != nil {
		// The row never landed, so the stored file must not either.
		_ = os.Remove(dest)
		if errors.Is(err, database.ErrNotFound) {
			jsonError(c, http.StatusNotFound, "not_found")
			return
		}
		zap.L().Error("Failed to add attachment", zap.Int64("cardID", id), zap.Error(err))
		jsonError(c, http.StatusInternalServerError, "db_error")
		return
	}

	h.Hub.Publish(stream.Message{Action: stream.ActionAttachment, CardID: id})
	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"attachment": attachmentView{Attachment: *att, URL: attachmentURL(stored)},
	})
}

func (h *Handler) DeleteAttachmentHandler(c *gin.Context) {
	attID, ok := idParam(c, "attId")
	if !ok {
		return
	}

	att, err := h.Store.GetAttachment(attID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			jsonError(c, http.StatusNotFound, "not_found")
			return
		}
		zap.L().Error("Failed to load attachment", zap.Int64("attachmentID", attID), zap.Error(err))
		jsonError(c, http.StatusInternalServerError, "db_error")
		return
	}

	if err := h.Store.DeleteAttachment(attID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			jsonError(c, http.StatusNotFound, "not_found")
			return
		}
		zap.L().Error("Failed to delete attachment", zap.Int64("attachmentID", attID), zap.Error(err))
		jsonError(c, http.StatusInternalServerError, "db_error")
		return
	}

	// A missing file is fine; the row is the source of truth.
	if err := os.Remove(filepath.Join(h.UploadDir, att.Filename)); err != nil && !os.IsNotExist(err) {
		zap.L().Warn("Failed to remove attachment file", zap.String("file", att.Filename), zap.Error(err))
	}

	h.Hub.Publish(stream.Message{Action: stream.ActionAttachmentDelete, CardID: att.CardID})
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
