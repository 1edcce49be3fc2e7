package handler

import (
	"Go_Drop/internal/dto"
	"Go_Drop/internal/notify"
	"Go_Drop/internal/service"
	"Go_Drop/utils"
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ShareCreator creates shares and reports their status to owners.
type ShareCreator interface {
	CreateShare(ctx context.Context, ownerID uint64, storageKey string, recipientEmails []string) (*service.Share, error)
	GetShareStatus(ctx context.Context, ownerID uint64, fileID string) (*service.ShareStatus, error)
}

type ShareHandler struct {
	shares   ShareCreator
	notifier *notify.Notifier
	baseURL  string
	logger   *zap.Logger
}

func NewShareHandler(shares ShareCreator, notifier *notify.Notifier, baseURL string, logger *zap.Logger) *ShareHandler {
	return &ShareHandler{shares: shares, notifier: notifier, baseURL: baseURL, logger: logger}
}

// CreateShare creates a share and sends every recipient their access link.
func (h *ShareHandler) CreateShare(c *gin.Context) {
	ownerID, ok := utils.UserID(c)
	if !ok {
		utils.Fail(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req dto.CreateShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Fail(c, http.StatusBadRequest, "invalid params")
		return
	}

	share, err := h.shares.CreateShare(c.Request.Context(), ownerID, req.StorageKey, req.RecipientEmails)
	if errors.Is(err, service.ErrInvalidInput) {
		utils.Fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("create share failed", zap.Uint64("owner_id", ownerID), zap.Error(err))
		utils.Fail(c, http.StatusInternalServerError, "create share failed")
		return
	}

	deliveries := make([]notify.Delivery, 0, len(share.Grants))
	recipients := make([]string, 0, len(share.Grants))
	for _, g := range share.Grants {
		deliveries = append(deliveries, notify.Delivery{
			Recipient: g.RecipientEmail,
			Link:      notify.BuildAccessLink(h.baseURL, g.Token),
		})
		recipients = append(recipients, g.RecipientEmail)
	}
	// Grants are already committed; a client disconnect must not stop delivery.
	failures := h.notifier.NotifyAll(context.WithoutCancel(c.Request.Context()), deliveries)

	resp := dto.CreateShareResponse{
		FileID:               share.File.ID,
		StorageKey:           share.File.StorageKey,
		Recipients:           recipients,
		NotificationFailures: make([]dto.NotificationFailure, 0, len(failures)),
	}
	for _, f := range failures {
		resp.NotificationFailures = append(resp.NotificationFailures, dto.NotificationFailure{
			Recipient: f.Recipient,
			Error:     f.Err.Error(),
		})
	}
	utils.Success(c, http.StatusCreated, resp)
}

// GetShareStatus returns the lifecycle of one of the caller's shares.
func (h *ShareHandler) GetShareStatus(c *gin.Context) {
	ownerID, ok := utils.UserID(c)
	if !ok {
		utils.Fail(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	fileID := strings.TrimSpace(c.Param("id"))
	status, err := h.shares.GetShareStatus(c.Request.Context(), ownerID, fileID)
	if errors.Is(err, service.ErrFileNotFound) {
		utils.Fail(c, http.StatusNotFound, "share not found")
		return
	}
	if err != nil {
		h.logger.Error("get share status failed", zap.String("file_id", fileID), zap.Error(err))
		utils.Fail(c, http.StatusInternalServerError, "get share status failed")
		return
	}

	f := status.File
	resp := dto.ShareStatusResponse{
		FileID:         f.ID,
		StorageKey:     f.StorageKey,
		State:          f.State,
		GrantCount:     f.GrantCount,
		AccessedCount:  f.AccessedCount,
		DeleteAttempts: f.DeleteAttempts,
		RetiredAt:      f.RetiredAt,
		CreatedAt:      f.CreatedAt,
		Recipients:     make([]dto.RecipientStatus, 0, len(status.Recipients)),
	}
	for _, r := range status.Recipients {
		resp.Recipients = append(resp.Recipients, dto.RecipientStatus{
			Email:      r.Email,
			Accessed:   r.Accessed,
			AccessedAt: r.AccessedAt,
		})
	}
	utils.Success(c, http.StatusOK, resp)
}
